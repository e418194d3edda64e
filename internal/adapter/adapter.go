package adapter

import (
	"sort"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/W3LABS/points_engine/internal/errors"
	"github.com/W3LABS/points_engine/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ClaimSelector is the 4-byte selector of the faucet's claim() function.
const ClaimSelector = "0x4e71d92d"

// TokenInfo describes a recognized token contract.
type TokenInfo struct {
	Symbol   string
	Decimals int32
}

// Registry is the fixed set of known contract addresses classification is
// driven by. Anything outside it normalizes to type "other".
type Registry struct {
	Faucet        common.Address
	RewardToken   common.Address
	SwapContracts map[common.Address]bool
	Tokens        map[common.Address]TokenInfo
}

// NewRegistry builds a registry from hex address strings. Invalid hex is
// tolerated; it simply never matches anything.
func NewRegistry(faucet, rewardToken string, swapContracts []string, tokens map[string]TokenInfo) *Registry {
	r := &Registry{
		Faucet:        common.HexToAddress(faucet),
		RewardToken:   common.HexToAddress(rewardToken),
		SwapContracts: make(map[common.Address]bool, len(swapContracts)),
		Tokens:        make(map[common.Address]TokenInfo, len(tokens)+1),
	}
	for _, addr := range swapContracts {
		r.SwapContracts[common.HexToAddress(addr)] = true
	}
	for addr, info := range tokens {
		r.Tokens[common.HexToAddress(addr)] = info
	}
	if rewardToken != "" {
		if _, ok := r.Tokens[r.RewardToken]; !ok {
			r.Tokens[r.RewardToken] = TokenInfo{Symbol: "REWARD", Decimals: 18}
		}
	}
	return r
}

func (r *Registry) isSwapContract(addr string) bool {
	return r.SwapContracts[common.HexToAddress(addr)]
}

// Adapter normalizes source-specific transaction shapes into the canonical
// Transaction type.
type Adapter struct {
	registry *Registry
}

func New(registry *Registry) *Adapter {
	return &Adapter{registry: registry}
}

// NormalizeBackend maps backend-recorded rows into canonical transactions.
// Backend rows already carry token-unit amounts, so no decimal adjustment
// happens here.
func (a *Adapter) NormalizeBackend(records []types.BackendRecord) []types.Transaction {
	out := make([]types.Transaction, 0, len(records))
	for _, rec := range records {
		tx := types.Transaction{
			ID:         rec.ID,
			UserID:     rec.UserID,
			FromToken:  rec.FromToken,
			ToToken:    rec.ToToken,
			FromAmount: rec.FromAmount,
			ToAmount:   rec.ToAmount,
			Timestamp:  rec.CreatedAt.UTC(),
			TxHash:     strings.ToLower(rec.TxHash),
			Source:     types.SourceBackend,
		}
		switch rec.Kind {
		case "swap":
			tx.Type = types.TxSwap
		case "faucet_claim", "claim":
			tx.Type = types.TxFaucetClaim
		default:
			tx.Type = types.TxOther
		}
		switch rec.Status {
		case "completed", "success":
			tx.Status = types.StatusCompleted
		case "failed", "error":
			tx.Status = types.StatusFailed
		default:
			tx.Status = types.StatusPending
		}
		out = append(out, tx)
	}
	sortCanonical(out)
	return out
}

// NormalizeExplorer merges the explorer's normal-transaction and
// token-transfer lists into canonical transactions for one user address.
// Two token legs sharing a txHash are folded into a single logical swap,
// never counted as two. Records with unparseable amounts or timestamps are
// excluded and reported through the returned anomaly list.
func (a *Adapter) NormalizeExplorer(normal []types.ExplorerTxRecord, transfers []types.ExplorerTokenTransfer) ([]types.Transaction, []error) {
	var anomalies []error
	byHash := make(map[string]*types.Transaction)

	for _, rec := range normal {
		hash := strings.ToLower(rec.Hash)
		if hash == "" {
			continue
		}
		ts, err := parseUnixSeconds(rec.TimeStamp)
		if err != nil {
			anomalies = append(anomalies, &apperrors.PrecisionError{
				TxHash: hash, Field: "timestamp", Value: rec.TimeStamp,
			})
			continue
		}

		tx := &types.Transaction{
			Type:      a.classifyNormal(rec),
			Timestamp: ts,
			Status:    types.StatusCompleted,
			TxHash:    hash,
			Source:    types.SourceExplorer,
		}
		if tx.Type == types.TxOther {
			// The record is kept as "other"; the flag is for review only.
			anomalies = append(anomalies, &apperrors.ClassificationError{
				TxHash: hash, Reason: "no registry match for contract " + strings.ToLower(rec.To),
			})
		}
		if rec.IsError != "" && rec.IsError != "0" {
			tx.Status = types.StatusFailed
		}
		byHash[hash] = tx
	}

	for _, tr := range transfers {
		hash := strings.ToLower(tr.Hash)
		if hash == "" {
			continue
		}
		ts, err := parseUnixSeconds(tr.TimeStamp)
		if err != nil {
			anomalies = append(anomalies, &apperrors.PrecisionError{
				TxHash: hash, Field: "timestamp", Value: tr.TimeStamp,
			})
			continue
		}
		token, recognized := a.registry.Tokens[common.HexToAddress(tr.ContractAddress)]
		if !recognized {
			// Unknown token contracts carry no classification weight.
			continue
		}
		amount, err := convertRawAmount(tr.Value, token.Decimals)
		if err != nil {
			anomalies = append(anomalies, &apperrors.PrecisionError{
				TxHash: hash, Field: "amount", Value: tr.Value,
			})
			continue
		}

		tx, ok := byHash[hash]
		if !ok {
			tx = &types.Transaction{
				Type:      types.TxOther,
				Timestamp: ts,
				Status:    types.StatusCompleted,
				TxHash:    hash,
				Source:    types.SourceExplorer,
			}
			byHash[hash] = tx
		}

		switch {
		case a.isFaucetPayout(tr):
			tx.Type = types.TxFaucetClaim
			tx.ToToken = token.Symbol
			tx.ToAmount = amount
		case a.registry.isSwapContract(tr.To):
			// User-side leg sent into the swap contract: the input leg.
			tx.Type = types.TxSwap
			tx.FromToken = token.Symbol
			tx.FromAmount = amount
		case a.registry.isSwapContract(tr.From):
			// Leg paid out by the swap contract: the output leg.
			tx.Type = types.TxSwap
			tx.ToToken = token.Symbol
			tx.ToAmount = amount
		}
	}

	out := make([]types.Transaction, 0, len(byHash))
	for _, tx := range byHash {
		out = append(out, *tx)
	}
	sortCanonical(out)
	return out, anomalies
}

// classifyNormal applies the contract-address-driven rules to a normal
// transaction: a call to the faucet's claim() is a faucet claim, a direct
// call to a known swap contract with non-trivial input is a swap, anything
// else is "other".
func (a *Adapter) classifyNormal(rec types.ExplorerTxRecord) types.TxType {
	to := common.HexToAddress(rec.To)
	input := strings.ToLower(rec.Input)

	if to == a.registry.Faucet && strings.HasPrefix(input, ClaimSelector) {
		return types.TxFaucetClaim
	}
	if a.registry.SwapContracts[to] && len(input) > len("0x") {
		return types.TxSwap
	}
	return types.TxOther
}

// isFaucetPayout reports whether a token transfer is the reward token paid
// out by the faucet contract, which also counts as a faucet claim.
func (a *Adapter) isFaucetPayout(tr types.ExplorerTokenTransfer) bool {
	return common.HexToAddress(tr.From) == a.registry.Faucet &&
		common.HexToAddress(tr.ContractAddress) == a.registry.RewardToken
}

// convertRawAmount turns a raw integer-string token amount into token units
// using decimal arithmetic, so 18-decimal values never lose precision.
func convertRawAmount(raw string, decimals int32) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, err
	}
	return d.Shift(-decimals), nil
}

func parseUnixSeconds(s string) (time.Time, error) {
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(secs, 0).UTC(), nil
}

func sortCanonical(txs []types.Transaction) {
	sort.Slice(txs, func(i, j int) bool {
		if !txs[i].Timestamp.Equal(txs[j].Timestamp) {
			return txs[i].Timestamp.Before(txs[j].Timestamp)
		}
		return txs[i].TxHash < txs[j].TxHash
	})
}
