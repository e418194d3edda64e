package db

import (
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	apperrors "github.com/W3LABS/points_engine/internal/errors"
	"github.com/W3LABS/points_engine/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testService holds common test dependencies
type testService struct {
	mock   sqlmock.Sqlmock
	db     *sql.DB
	svc    *ServiceImpl
	assert *assert.Assertions
}

// mockOperations is a mock implementation of Operations
type mockOperations struct {
	openFunc          func(driverName, dataSourceName string) (*sql.DB, error)
	runMigrationsFunc func(db *sql.DB) error
}

func (m *mockOperations) Open(driverName, dataSourceName string) (*sql.DB, error) {
	return m.openFunc(driverName, dataSourceName)
}

func (m *mockOperations) RunMigrations(db *sql.DB) error {
	return m.runMigrationsFunc(db)
}

func setupTestDB(t *testing.T) *testService {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	return &testService{
		mock:   mock,
		db:     db,
		svc:    &ServiceImpl{db: db},
		assert: assert.New(t),
	}
}

func (ts *testService) close() {
	ts.db.Close()
}

func userRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "address", "points", "bonus_points", "total_swaps",
		"total_claims", "badges", "last_claim_at", "version",
	})
}

func TestNewService(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	mockOps := &mockOperations{
		openFunc: func(driverName, dataSourceName string) (*sql.DB, error) {
			return mockDB, nil
		},
		runMigrationsFunc: func(db *sql.DB) error {
			return nil
		},
	}

	mock.ExpectPing()

	service, err := NewService(mockOps, "postgres://test")

	assert.NoError(t, err)
	assert.NotNil(t, service)
}

func TestGetUserByAddress(t *testing.T) {
	ts := setupTestDB(t)
	defer ts.close()

	ts.mock.ExpectQuery("SELECT (.+) FROM users WHERE address").
		WithArgs("0xabc").
		WillReturnRows(userRows().AddRow(1, "0xabc", "2.5", "0", 5, 1, "{early_bird}", nil, 3))

	user, err := ts.svc.GetUserByAddress("0xABC")

	require.NoError(t, err)
	ts.assert.Equal(int64(1), user.ID)
	ts.assert.Equal("2.5", user.Points.String())
	ts.assert.Equal(5, user.TotalSwaps)
	ts.assert.Equal(int64(3), user.Version)
	ts.assert.NoError(ts.mock.ExpectationsWereMet())
}

func TestGetUserByAddressNotFound(t *testing.T) {
	ts := setupTestDB(t)
	defer ts.close()

	ts.mock.ExpectQuery("SELECT (.+) FROM users WHERE address").
		WithArgs("0xmissing").
		WillReturnError(sql.ErrNoRows)

	_, err := ts.svc.GetUserByAddress("0xmissing")

	var notFound *apperrors.NotFoundError
	require.ErrorAs(t, err, &notFound)
	ts.assert.Equal("user", notFound.Resource)
}

func TestGetOrCreateUserNormalizesAddress(t *testing.T) {
	ts := setupTestDB(t)
	defer ts.close()

	ts.mock.ExpectQuery("INSERT INTO users").
		WithArgs("0xdeadbeef").
		WillReturnRows(userRows().AddRow(7, "0xdeadbeef", "0", "0", 0, 0, "{}", nil, 0))

	user, err := ts.svc.GetOrCreateUser("0xDEADBEEF")

	require.NoError(t, err)
	ts.assert.Equal("0xdeadbeef", user.Address)
	ts.assert.NoError(ts.mock.ExpectationsWereMet())
}

func TestUpsertTransaction(t *testing.T) {
	ts := setupTestDB(t)
	defer ts.close()

	tx := types.Transaction{
		UserID:    7,
		Type:      types.TxSwap,
		Status:    types.StatusCompleted,
		TxHash:    "0xAAAA",
		Timestamp: time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC),
		Source:    types.SourceExplorer,
	}

	ts.mock.ExpectExec("INSERT INTO transactions").
		WillReturnResult(sqlmock.NewResult(1, 1))

	inserted, err := ts.svc.UpsertTransaction(tx)
	require.NoError(t, err)
	ts.assert.True(inserted)

	// Second insert of the same hash hits the ON CONFLICT clause and
	// affects zero rows.
	ts.mock.ExpectExec("INSERT INTO transactions").
		WillReturnResult(sqlmock.NewResult(0, 0))

	inserted, err = ts.svc.UpsertTransaction(tx)
	require.NoError(t, err)
	ts.assert.False(inserted, "re-ingesting a known hash must be a no-op")
}

func TestUpdateTransactionStatus(t *testing.T) {
	ts := setupTestDB(t)
	defer ts.close()

	ts.mock.ExpectExec("UPDATE transactions SET status").
		WithArgs(types.StatusCompleted, "0xaaaa").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := ts.svc.UpdateTransactionStatus("0xAAAA", types.StatusCompleted)
	require.NoError(t, err)
}

func TestApplyRecompute(t *testing.T) {
	ts := setupTestDB(t)
	defer ts.close()

	ts.mock.ExpectExec("UPDATE users").
		WithArgs("2.5", 5, 1, int64(7), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := ts.svc.ApplyRecompute(7, 3, decimal.RequireFromString("2.5"), 5, 1)
	assert.NoError(t, err)
	ts.assert.NoError(ts.mock.ExpectationsWereMet())
}

func TestApplyRecomputeVersionConflict(t *testing.T) {
	ts := setupTestDB(t)
	defer ts.close()

	ts.mock.ExpectExec("UPDATE users").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := ts.svc.ApplyRecompute(7, 3, decimal.RequireFromString("2.5"), 5, 1)

	var conflict *apperrors.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, int64(7), conflict.UserID)
}

func TestGetUserTransactions(t *testing.T) {
	ts := setupTestDB(t)
	defer ts.close()

	rows := sqlmock.NewRows([]string{
		"id", "user_id", "type", "from_token", "to_token", "from_amount",
		"to_amount", "timestamp", "status", "tx_hash", "points", "source",
	}).
		AddRow(1, 7, "swap", "USDC", "RWD", "250", "1.5",
			time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC), "completed", "0x01", "0.5", "backend").
		AddRow(2, 7, "faucet_claim", "", "RWD", "0", "1",
			nil, "completed", "0x02", "0", "explorer")

	ts.mock.ExpectQuery("SELECT (.+) FROM transactions").
		WithArgs(int64(7)).
		WillReturnRows(rows)

	txs, err := ts.svc.GetUserTransactions(7)

	require.NoError(t, err)
	require.Len(t, txs, 2)
	ts.assert.Equal(types.TxSwap, txs[0].Type)
	ts.assert.Equal("250", txs[0].FromAmount.String())
	ts.assert.True(txs[1].Timestamp.IsZero(), "NULL timestamp maps to zero time")
}

func TestListUsers(t *testing.T) {
	ts := setupTestDB(t)
	defer ts.close()

	ts.mock.ExpectQuery("SELECT (.+) FROM users ORDER BY points DESC, id ASC").
		WillReturnRows(userRows().
			AddRow(2, "0xbbb", "5", "0", 10, 0, "{}", nil, 1).
			AddRow(1, "0xaaa", "2.5", "0", 5, 2, "{}", nil, 4))

	users, err := ts.svc.ListUsers()

	require.NoError(t, err)
	require.Len(t, users, 2)
	ts.assert.Equal("0xbbb", users[0].Address)
	ts.assert.Equal("5", users[0].Points.String())
}
