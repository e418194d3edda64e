package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// TxType classifies a transaction for point accrual.
type TxType string

const (
	TxSwap        TxType = "swap"
	TxFaucetClaim TxType = "faucet_claim"
	TxOther       TxType = "other"
)

// TxStatus is the confirmation state of a transaction.
type TxStatus string

const (
	StatusPending   TxStatus = "pending"
	StatusCompleted TxStatus = "completed"
	StatusFailed    TxStatus = "failed"
)

// Source identifies which system a transaction record came from.
type Source string

const (
	SourceBackend  Source = "backend"
	SourceExplorer Source = "explorer"
)

// Transaction is the canonical shape both sources normalize into.
// A transaction is immutable once its status is completed and is uniquely
// identified by TxHash, which serves as the idempotency key for merges.
type Transaction struct {
	ID         int64           `json:"id"`
	UserID     int64           `json:"userId"`
	Type       TxType          `json:"type"`
	FromToken  string          `json:"fromToken,omitempty"`
	ToToken    string          `json:"toToken,omitempty"`
	FromAmount decimal.Decimal `json:"fromAmount"`
	ToAmount   decimal.Decimal `json:"toAmount"`
	Timestamp  time.Time       `json:"timestamp"`
	Status     TxStatus        `json:"status"`
	TxHash     string          `json:"txHash"`
	Points     decimal.Decimal `json:"pointsAwarded"`
	Source     Source          `json:"source"`
}

// BackendRecord is a transaction row as recorded by the backend at swap or
// claim time. Amounts are already in token units.
type BackendRecord struct {
	ID         int64           `json:"id"`
	UserID     int64           `json:"user_id"`
	Kind       string          `json:"kind"`
	FromToken  string          `json:"from_token"`
	ToToken    string          `json:"to_token"`
	FromAmount decimal.Decimal `json:"from_amount"`
	ToAmount   decimal.Decimal `json:"to_amount"`
	Status     string          `json:"status"`
	TxHash     string          `json:"tx_hash"`
	CreatedAt  time.Time       `json:"created_at"`
}

// ExplorerTxRecord is one entry from the explorer's normal-transaction list.
// Amounts and timestamps arrive as strings.
type ExplorerTxRecord struct {
	Hash      string `json:"hash"`
	From      string `json:"from"`
	To        string `json:"to"`
	Value     string `json:"value"`
	Input     string `json:"input"`
	TimeStamp string `json:"timeStamp"`
	IsError   string `json:"isError"`
}

// ExplorerTokenTransfer is one entry from the explorer's token-transfer
// list. Value is the raw integer amount before decimal adjustment.
type ExplorerTokenTransfer struct {
	Hash            string `json:"hash"`
	From            string `json:"from"`
	To              string `json:"to"`
	ContractAddress string `json:"contractAddress"`
	Value           string `json:"value"`
	TokenSymbol     string `json:"tokenSymbol"`
	TokenDecimal    string `json:"tokenDecimal"`
	TimeStamp       string `json:"timeStamp"`
}

// PointsUpdate is broadcast whenever a recompute changes a user's total.
type PointsUpdate struct {
	UserID       int64           `json:"userId"`
	Address      string          `json:"address"`
	PointsBefore decimal.Decimal `json:"pointsBefore"`
	PointsAfter  decimal.Decimal `json:"pointsAfter"`
	Timestamp    time.Time       `json:"timestamp"`
}

// LeaderboardUpdate is broadcast on any leaderboard-affecting change.
type LeaderboardUpdate struct {
	TotalGlobalPoints decimal.Decimal `json:"totalGlobalPoints"`
	UserCount         int             `json:"userCount"`
	Timestamp         time.Time       `json:"timestamp"`
}
