package db

import (
	"time"

	"github.com/W3LABS/points_engine/internal/types"
	"github.com/shopspring/decimal"
)

// Service defines the methods the engine needs from the database.
type Service interface {
	GetUserByAddress(address string) (*User, error)
	GetOrCreateUser(address string) (*User, error)
	ListUsers() ([]User, error)
	ListUserAddresses() ([]string, error)

	GetUserTransactions(userID int64) ([]types.Transaction, error)
	UpsertTransaction(tx types.Transaction) (bool, error)
	UpdateTransactionStatus(txHash string, status types.TxStatus) error

	ApplyRecompute(userID, expectedVersion int64, points decimal.Decimal, totalSwaps, totalClaims int) error
	AwardBadge(userID int64, badge string) error
	RecordClaim(userID int64, claimedAt time.Time) error

	Close() error
}
