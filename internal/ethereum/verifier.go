package ethereum

import (
	"context"
	stderrors "errors"
	"time"

	customtypes "github.com/W3LABS/points_engine/internal/types"
	"github.com/W3LABS/points_engine/pkg/logger"

	"github.com/W3LABS/points_engine/internal/errors"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

const rpcTimeout = 15 * time.Second

// ChainClient is the subset of the RPC client needed to confirm
// transactions. *ethclient.Client satisfies it.
type ChainClient interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
	Close()
}

type ClientCreator func(url string) (ChainClient, error)

func defaultClientCreator(url string) (ChainClient, error) {
	return ethclient.Dial(url)
}

// Verifier resolves the on-chain status of transactions the backend or the
// explorer reported as pending. A receipt alone does not settle a
// transaction; it must also sit at least minConfirmations blocks deep.
type Verifier struct {
	client           ChainClient
	minConfirmations uint64
}

// NewVerifier connects to the chain RPC endpoint. Pass a nil creator to use
// the real ethclient dialer.
func NewVerifier(rpcURL string, minConfirmations uint64, creator ClientCreator) (*Verifier, error) {
	if creator == nil {
		creator = defaultClientCreator
	}
	client, err := creator(rpcURL)
	if err != nil {
		return nil, &errors.ChainError{Operation: "dial", Err: err}
	}
	logger.Info("Connected to chain RPC at %s", rpcURL)
	if minConfirmations == 0 {
		minConfirmations = 1
	}
	return &Verifier{client: client, minConfirmations: minConfirmations}, nil
}

// VerifyTransaction returns the settled status of txHash. A transaction with
// no receipt yet, or one buried less than minConfirmations deep, stays
// pending. Only RPC failures return an error.
func (v *Verifier) VerifyTransaction(ctx context.Context, txHash string) (customtypes.TxStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()

	receipt, err := v.client.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		if stderrors.Is(err, ethereum.NotFound) {
			return customtypes.StatusPending, nil
		}
		return customtypes.StatusPending, &errors.ChainError{Operation: "transaction receipt", Err: err}
	}

	if receipt.Status == types.ReceiptStatusFailed {
		return customtypes.StatusFailed, nil
	}

	head, err := v.client.BlockNumber(ctx)
	if err != nil {
		return customtypes.StatusPending, &errors.ChainError{Operation: "block number", Err: err}
	}

	mined := receipt.BlockNumber.Uint64()
	if head < mined {
		// A lagging replica can report a head behind the receipt's block;
		// subtracting would wrap around uint64.
		return customtypes.StatusPending, nil
	}
	depth := head - mined + 1
	if depth < v.minConfirmations {
		return customtypes.StatusPending, nil
	}
	return customtypes.StatusCompleted, nil
}

// Close closes the underlying RPC connection.
func (v *Verifier) Close() {
	if v.client != nil {
		v.client.Close()
	}
}
