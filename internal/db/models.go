package db

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// User is a registered wallet. Points is a materialized cache of the
// accrual engine's output; it is rewritten wholesale on recompute and is
// never a source of truth on its own.
type User struct {
	ID          int64
	Address     string
	Points      decimal.Decimal
	BonusPoints decimal.Decimal
	TotalSwaps  int
	TotalClaims int
	Badges      pq.StringArray
	LastClaimAt *time.Time
	// Version is bumped on every points write; recomputes carry the version
	// they read so a lost race is detected instead of silently merged.
	Version int64
}

// HasActivity reports whether the user has any recorded transactions.
// Users without activity are never ranked.
func (u *User) HasActivity() bool {
	return u.TotalSwaps > 0 || u.TotalClaims > 0 || !u.Points.IsZero()
}
