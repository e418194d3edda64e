package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/W3LABS/points_engine/internal/adapter"
	"github.com/W3LABS/points_engine/internal/db"
	"github.com/W3LABS/points_engine/internal/explorer"
	"github.com/W3LABS/points_engine/internal/points"
	"github.com/W3LABS/points_engine/internal/types"
	"github.com/W3LABS/points_engine/pkg/logger"
	"github.com/shopspring/decimal"
)

// Badge thresholds awarded during recompute write-back.
const (
	badgeFirstSwap   = "first_swap"
	badgePowerTrader = "power_trader"

	powerTraderSwaps = 50
)

// Notifier is the slice of the real-time channel the reconciler uses.
// Broadcasts are best-effort; a Notifier error never fails a sync.
type Notifier interface {
	BroadcastPointsUpdate(update types.PointsUpdate) error
}

// TxVerifier resolves the settled on-chain status of a pending transaction.
type TxVerifier interface {
	VerifyTransaction(ctx context.Context, txHash string) (types.TxStatus, error)
}

// SyncResult reports what a reconciliation pass did. EligibleSwaps is the
// number of swaps that actually earned points after the daily cap, which can
// be lower than TotalSwaps.
type SyncResult struct {
	NewTransactions int             `json:"newTransactionsAdded"`
	Points          decimal.Decimal `json:"recomputedPoints"`
	TotalSwaps      int             `json:"totalSwaps"`
	EligibleSwaps   int             `json:"eligibleSwaps"`
	UsedExplorer    bool            `json:"usedExplorer"`
}

// Reconciler merges explorer-observed history into the backend record and
// owns the single recompute entry point. All writes to a user's cached
// points go through here.
type Reconciler struct {
	store    db.Service
	explorer explorer.Service
	adapter  *adapter.Adapter
	engine   *points.Engine
	notifier Notifier
	verifier TxVerifier

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewReconciler(store db.Service, exp explorer.Service, adp *adapter.Adapter, engine *points.Engine, notifier Notifier) *Reconciler {
	return &Reconciler{
		store:    store,
		explorer: exp,
		adapter:  adp,
		engine:   engine,
		notifier: notifier,
		locks:    make(map[string]*sync.Mutex),
	}
}

// SetVerifier attaches an optional chain verifier. When present, pending
// transactions are re-checked against their receipts before each recompute.
func (r *Reconciler) SetVerifier(v TxVerifier) {
	r.verifier = v
}

// lockFor returns the per-address mutex, creating it on first use.
// Recomputes for one address are serialized; different addresses proceed
// in parallel.
func (r *Reconciler) lockFor(address string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[address]
	if !ok {
		l = &sync.Mutex{}
		r.locks[address] = l
	}
	return l
}

// Reconcile merges block-explorer history for an address into the backend
// record, then recomputes points. The backend record is preferred; the
// explorer is consulted only when the backend set is empty or unreadable.
// Explorer failures abort the sync with the user's existing points left
// untouched. The explorer fetch happens before the per-user lock is taken;
// the lock covers only the local write-and-recompute step.
func (r *Reconciler) Reconcile(ctx context.Context, address string) (*SyncResult, error) {
	user, err := r.store.GetOrCreateUser(address)
	if err != nil {
		return nil, err
	}

	existing, err := r.store.GetUserTransactions(user.ID)
	if err != nil {
		logger.Warn("Backend transaction query failed for %s, falling back to explorer: %v", address, err)
		existing = nil
	}

	var fetched []types.Transaction
	usedExplorer := false
	if len(existing) == 0 {
		fetched, err = r.fetchFromExplorer(ctx, address)
		if err != nil {
			// Never wipe or zero a user's points because a fetch failed.
			return nil, err
		}
		usedExplorer = true
	}

	lock := r.lockFor(user.Address)
	lock.Lock()
	defer lock.Unlock()

	inserted := 0
	for _, tx := range fetched {
		tx.UserID = user.ID
		isNew, err := r.store.UpsertTransaction(tx)
		if err != nil {
			// Partial inserts are safe: the upsert is idempotent by
			// tx_hash and the recompute below can be re-triggered.
			return nil, err
		}
		if isNew {
			inserted++
		}
	}

	result, err := r.recomputeLocked(ctx, user.ID, user.Address)
	if err != nil {
		return nil, err
	}

	return &SyncResult{
		NewTransactions: inserted,
		Points:          result.Points,
		TotalSwaps:      result.TotalSwaps,
		EligibleSwaps:   result.EligibleSwaps,
		UsedExplorer:    usedExplorer,
	}, nil
}

// IngestBackend records a batch of backend-reported transactions for an
// address and recomputes points over the merged history. Ingest is
// idempotent: re-submitting a known txHash inserts nothing.
func (r *Reconciler) IngestBackend(ctx context.Context, address string, records []types.BackendRecord) (*SyncResult, error) {
	user, err := r.store.GetOrCreateUser(address)
	if err != nil {
		return nil, err
	}

	txs := r.adapter.NormalizeBackend(records)

	lock := r.lockFor(user.Address)
	lock.Lock()
	defer lock.Unlock()

	inserted := 0
	for _, tx := range txs {
		tx.UserID = user.ID
		isNew, err := r.store.UpsertTransaction(tx)
		if err != nil {
			return nil, err
		}
		if isNew {
			inserted++
		}
	}

	result, err := r.recomputeLocked(ctx, user.ID, user.Address)
	if err != nil {
		return nil, err
	}

	return &SyncResult{
		NewTransactions: inserted,
		Points:          result.Points,
		TotalSwaps:      result.TotalSwaps,
		EligibleSwaps:   result.EligibleSwaps,
	}, nil
}

// RecomputeUser reruns the accrual engine for one address and writes the
// result back. This is the only path that mutates cached points.
func (r *Reconciler) RecomputeUser(ctx context.Context, address string) (*SyncResult, error) {
	user, err := r.store.GetOrCreateUser(address)
	if err != nil {
		return nil, err
	}

	lock := r.lockFor(user.Address)
	lock.Lock()
	defer lock.Unlock()

	result, err := r.recomputeLocked(ctx, user.ID, user.Address)
	if err != nil {
		return nil, err
	}
	return &SyncResult{Points: result.Points, TotalSwaps: result.TotalSwaps, EligibleSwaps: result.EligibleSwaps}, nil
}

// RecalculateAll reruns the accrual engine for every registered user.
// Users are independent; a failure on one is logged and skipped so the
// batch always makes progress.
func (r *Reconciler) RecalculateAll(ctx context.Context) (int, error) {
	addresses, err := r.store.ListUserAddresses()
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, address := range addresses {
		select {
		case <-ctx.Done():
			return updated, ctx.Err()
		default:
		}
		if _, err := r.RecomputeUser(ctx, address); err != nil {
			logger.Error("Recompute failed for %s: %v", address, err)
			continue
		}
		updated++
	}
	return updated, nil
}

type recomputeOutcome struct {
	Points        decimal.Decimal
	TotalSwaps    int
	EligibleSwaps int
}

// recomputeLocked loads the authoritative transaction set, runs the engine,
// and applies the result in one atomic versioned update. Caller must hold
// the per-address lock.
func (r *Reconciler) recomputeLocked(ctx context.Context, userID int64, address string) (*recomputeOutcome, error) {
	user, err := r.store.GetUserByAddress(address)
	if err != nil {
		return nil, err
	}

	txs, err := r.store.GetUserTransactions(userID)
	if err != nil {
		return nil, err
	}

	txs = r.resolvePending(ctx, address, txs)

	result := r.engine.Compute(txs)
	for _, anomaly := range result.Anomalies {
		logger.Warn("Transaction %s excluded from recompute for %s: %s", anomaly.TxHash, address, anomaly.Reason)
	}

	swaps, claims, lastClaim := countActivity(txs)

	if err := r.store.ApplyRecompute(userID, user.Version, result.Total, swaps, claims); err != nil {
		return nil, err
	}

	if lastClaim != nil {
		if err := r.store.RecordClaim(userID, *lastClaim); err != nil {
			logger.Warn("Failed to record claim time for %s: %v", address, err)
		}
	}
	r.awardBadges(userID, address, swaps)

	if !user.Points.Equal(result.Total) {
		r.notifyPointsChange(userID, address, user.Points, result.Total)
	}

	return &recomputeOutcome{
		Points:        result.Total,
		TotalSwaps:    swaps,
		EligibleSwaps: r.engine.EligibleSwapCount(txs),
	}, nil
}

func (r *Reconciler) awardBadges(userID int64, address string, swaps int) {
	if swaps >= 1 {
		if err := r.store.AwardBadge(userID, badgeFirstSwap); err != nil {
			logger.Warn("Failed to award badge to %s: %v", address, err)
		}
	}
	if swaps >= powerTraderSwaps {
		if err := r.store.AwardBadge(userID, badgePowerTrader); err != nil {
			logger.Warn("Failed to award badge to %s: %v", address, err)
		}
	}
}

// notifyPointsChange is fire-and-forget: broadcast failures are logged and
// never propagated into the write path that triggered them.
func (r *Reconciler) notifyPointsChange(userID int64, address string, before, after decimal.Decimal) {
	if r.notifier == nil {
		return
	}
	update := types.PointsUpdate{
		UserID:       userID,
		Address:      address,
		PointsBefore: before,
		PointsAfter:  after,
		Timestamp:    time.Now().UTC(),
	}
	if err := r.notifier.BroadcastPointsUpdate(update); err != nil {
		logger.Error("Failed to broadcast points update for %s: %v", address, err)
	}
}

// resolvePending re-checks pending transactions against their on-chain
// receipts and persists any settled outcome. A verification failure leaves
// the transaction pending; the recompute still runs over what is known.
func (r *Reconciler) resolvePending(ctx context.Context, address string, txs []types.Transaction) []types.Transaction {
	if r.verifier == nil {
		return txs
	}
	for i, tx := range txs {
		if tx.Status != types.StatusPending || tx.TxHash == "" {
			continue
		}
		status, err := r.verifier.VerifyTransaction(ctx, tx.TxHash)
		if err != nil {
			logger.Warn("Chain verification failed for %s (tx %s): %v", address, tx.TxHash, err)
			continue
		}
		if status == types.StatusPending {
			continue
		}
		if err := r.store.UpdateTransactionStatus(tx.TxHash, status); err != nil {
			logger.Warn("Failed to persist settled status for tx %s: %v", tx.TxHash, err)
			continue
		}
		txs[i].Status = status
	}
	return txs
}

func (r *Reconciler) fetchFromExplorer(ctx context.Context, address string) ([]types.Transaction, error) {
	normal, err := r.explorer.AccountTransactions(ctx, address)
	if err != nil {
		return nil, err
	}
	transfers, err := r.explorer.AccountTokenTransfers(ctx, address)
	if err != nil {
		return nil, err
	}

	txs, anomalies := r.adapter.NormalizeExplorer(normal, transfers)
	for _, anomaly := range anomalies {
		logger.Warn("Explorer record excluded for %s: %v", address, anomaly)
	}
	return txs, nil
}

// countActivity tallies completed swaps and claims over the deduplicated
// set, and finds the most recent claim time.
func countActivity(txs []types.Transaction) (swaps, claims int, lastClaim *time.Time) {
	seen := make(map[string]bool, len(txs))
	for _, tx := range txs {
		if tx.TxHash != "" {
			if seen[tx.TxHash] {
				continue
			}
			seen[tx.TxHash] = true
		}
		if tx.Status != types.StatusCompleted {
			continue
		}
		switch tx.Type {
		case types.TxSwap:
			swaps++
		case types.TxFaucetClaim:
			claims++
			if !tx.Timestamp.IsZero() && (lastClaim == nil || tx.Timestamp.After(*lastClaim)) {
				t := tx.Timestamp
				lastClaim = &t
			}
		}
	}
	return swaps, claims, lastClaim
}
