package db

import (
	"database/sql"
	"strings"
	"time"

	apperrors "github.com/W3LABS/points_engine/internal/errors"
	"github.com/W3LABS/points_engine/internal/types"
	"github.com/shopspring/decimal"
)

const userColumns = `id, address, points, bonus_points, total_swaps, total_claims, badges, last_claim_at, version`

func scanUser(row interface{ Scan(...interface{}) error }) (*User, error) {
	var u User
	var lastClaim sql.NullTime
	err := row.Scan(&u.ID, &u.Address, &u.Points, &u.BonusPoints,
		&u.TotalSwaps, &u.TotalClaims, &u.Badges, &lastClaim, &u.Version)
	if err != nil {
		return nil, err
	}
	if lastClaim.Valid {
		t := lastClaim.Time.UTC()
		u.LastClaimAt = &t
	}
	return &u, nil
}

// GetUserByAddress retrieves a user by their wallet address.
func (s *ServiceImpl) GetUserByAddress(address string) (*User, error) {
	address = strings.ToLower(address)
	row := s.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE address = $1`, address)
	user, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, &apperrors.NotFoundError{Resource: "user", Identifier: address}
		}
		return nil, &apperrors.DatabaseError{Operation: "get user by address", Err: err}
	}
	return user, nil
}

// GetOrCreateUser returns the user row for an address, registering it on
// first contact. Addresses are lowercase-normalized before storage.
func (s *ServiceImpl) GetOrCreateUser(address string) (*User, error) {
	address = strings.ToLower(address)
	row := s.db.QueryRow(`
		INSERT INTO users (address)
		VALUES ($1)
		ON CONFLICT (address) DO UPDATE SET address = EXCLUDED.address
		RETURNING `+userColumns, address)
	user, err := scanUser(row)
	if err != nil {
		return nil, &apperrors.DatabaseError{Operation: "get or create user", Err: err}
	}
	return user, nil
}

// ListUsers returns all users ordered by points descending, id ascending.
// The ordering matches the leaderboard's ranking rule so ranks can be
// assigned by position.
func (s *ServiceImpl) ListUsers() ([]User, error) {
	rows, err := s.db.Query(`SELECT ` + userColumns + ` FROM users ORDER BY points DESC, id ASC`)
	if err != nil {
		return nil, &apperrors.DatabaseError{Operation: "list users", Err: err}
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, &apperrors.DatabaseError{Operation: "scan user row", Err: err}
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, &apperrors.DatabaseError{Operation: "iterate user rows", Err: err}
	}
	return users, nil
}

// ListUserAddresses returns every registered address, for batch recompute.
func (s *ServiceImpl) ListUserAddresses() ([]string, error) {
	rows, err := s.db.Query(`SELECT address FROM users ORDER BY id ASC`)
	if err != nil {
		return nil, &apperrors.DatabaseError{Operation: "list user addresses", Err: err}
	}
	defer rows.Close()

	var addresses []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, &apperrors.DatabaseError{Operation: "scan address row", Err: err}
		}
		addresses = append(addresses, addr)
	}
	if err := rows.Err(); err != nil {
		return nil, &apperrors.DatabaseError{Operation: "iterate address rows", Err: err}
	}
	return addresses, nil
}

// GetUserTransactions returns a user's full transaction history ordered by
// (timestamp, tx_hash), the engine's canonical order.
func (s *ServiceImpl) GetUserTransactions(userID int64) ([]types.Transaction, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, type, from_token, to_token, from_amount, to_amount,
		       timestamp, status, tx_hash, points, source
		FROM transactions
		WHERE user_id = $1
		ORDER BY timestamp ASC NULLS LAST, tx_hash ASC`, userID)
	if err != nil {
		return nil, &apperrors.DatabaseError{Operation: "get user transactions", Err: err}
	}
	defer rows.Close()

	var txs []types.Transaction
	for rows.Next() {
		var tx types.Transaction
		var ts sql.NullTime
		err := rows.Scan(&tx.ID, &tx.UserID, &tx.Type, &tx.FromToken, &tx.ToToken,
			&tx.FromAmount, &tx.ToAmount, &ts, &tx.Status, &tx.TxHash, &tx.Points, &tx.Source)
		if err != nil {
			return nil, &apperrors.DatabaseError{Operation: "scan transaction row", Err: err}
		}
		if ts.Valid {
			tx.Timestamp = ts.Time.UTC()
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, &apperrors.DatabaseError{Operation: "iterate transaction rows", Err: err}
	}
	return txs, nil
}

// UpsertTransaction inserts a transaction keyed by tx_hash. Re-inserting a
// known hash is a no-op, which makes reconciliation idempotent. Returns
// whether a new row was actually inserted.
func (s *ServiceImpl) UpsertTransaction(tx types.Transaction) (bool, error) {
	var ts interface{}
	if !tx.Timestamp.IsZero() {
		ts = tx.Timestamp.UTC()
	}

	res, err := s.db.Exec(`
		INSERT INTO transactions (user_id, type, from_token, to_token, from_amount, to_amount,
		                          timestamp, status, tx_hash, points, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (tx_hash) DO NOTHING`,
		tx.UserID, tx.Type, tx.FromToken, tx.ToToken, tx.FromAmount, tx.ToAmount,
		ts, tx.Status, strings.ToLower(tx.TxHash), tx.Points, tx.Source)
	if err != nil {
		return false, &apperrors.DatabaseError{Operation: "upsert transaction", Err: err}
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, &apperrors.DatabaseError{Operation: "upsert transaction rows affected", Err: err}
	}
	return affected > 0, nil
}

// UpdateTransactionStatus records the settled on-chain status for a
// transaction. A hash nobody ingested is not an error.
func (s *ServiceImpl) UpdateTransactionStatus(txHash string, status types.TxStatus) error {
	_, err := s.db.Exec(`UPDATE transactions SET status = $1 WHERE tx_hash = $2`,
		status, strings.ToLower(txHash))
	if err != nil {
		return &apperrors.DatabaseError{Operation: "update transaction status", Err: err}
	}
	return nil
}

// ApplyRecompute writes back the accrual engine's output for a user in one
// atomic update, guarded by the version the caller read. A stale version
// means another recompute won the race; the caller gets a ConflictError and
// nothing is written.
func (s *ServiceImpl) ApplyRecompute(userID, expectedVersion int64, points decimal.Decimal, totalSwaps, totalClaims int) error {
	res, err := s.db.Exec(`
		UPDATE users
		SET points = $1, total_swaps = $2, total_claims = $3, version = version + 1
		WHERE id = $4 AND version = $5`,
		points, totalSwaps, totalClaims, userID, expectedVersion)
	if err != nil {
		return &apperrors.DatabaseError{Operation: "apply recompute", Err: err}
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return &apperrors.DatabaseError{Operation: "apply recompute rows affected", Err: err}
	}
	if affected == 0 {
		return &apperrors.ConflictError{UserID: userID}
	}
	return nil
}

// AwardBadge appends a badge to a user's badge list if not already present.
func (s *ServiceImpl) AwardBadge(userID int64, badge string) error {
	_, err := s.db.Exec(`
		UPDATE users
		SET badges = array_append(badges, $1)
		WHERE id = $2 AND NOT ($1 = ANY(badges))`, badge, userID)
	if err != nil {
		return &apperrors.DatabaseError{Operation: "award badge", Err: err}
	}
	return nil
}

// RecordClaim stamps the user's last claim time.
func (s *ServiceImpl) RecordClaim(userID int64, claimedAt time.Time) error {
	_, err := s.db.Exec(`UPDATE users SET last_claim_at = $1 WHERE id = $2`, claimedAt.UTC(), userID)
	if err != nil {
		return &apperrors.DatabaseError{Operation: "record claim", Err: err}
	}
	return nil
}
