package points

import (
	"sort"

	"github.com/W3LABS/points_engine/internal/config"
	"github.com/W3LABS/points_engine/internal/types"
	"github.com/shopspring/decimal"
)

// Anomaly flags a transaction that had to be excluded from the eligible set.
type Anomaly struct {
	TxHash string
	Reason string
}

// Result is the output of a full point computation.
type Result struct {
	Total     decimal.Decimal
	PerDay    map[string]decimal.Decimal
	Anomalies []Anomaly
}

// Engine converts a user's transaction history into a point total.
// It is pure: no I/O, no clock reads, deterministic for any input order.
type Engine struct {
	cfg config.Points
}

func NewEngine(cfg config.Points) *Engine {
	return &Engine{cfg: cfg}
}

// Compute recomputes a user's points from scratch. Only completed swaps
// earn points; swaps are bucketed by UTC calendar day and each day is
// capped at MaxDailySwaps eligible swaps. The running total is kept in
// decimal arithmetic and rounded to one place, half-up, at the end.
func (e *Engine) Compute(txs []types.Transaction) Result {
	res := Result{
		Total:  decimal.Zero,
		PerDay: make(map[string]decimal.Decimal),
	}

	deduped := dedupeByHash(txs)

	// Sorting by (timestamp, txHash) guarantees the same result for any
	// permutation of the input set.
	sort.Slice(deduped, func(i, j int) bool {
		if !deduped[i].Timestamp.Equal(deduped[j].Timestamp) {
			return deduped[i].Timestamp.Before(deduped[j].Timestamp)
		}
		return deduped[i].TxHash < deduped[j].TxHash
	})

	swapsPerDay := make(map[string]int)
	for _, tx := range deduped {
		if tx.Type != types.TxSwap || tx.Status != types.StatusCompleted {
			continue
		}
		if tx.Timestamp.IsZero() {
			// Defaulting a missing timestamp would corrupt day bucketing,
			// so the transaction is excluded and flagged instead.
			res.Anomalies = append(res.Anomalies, Anomaly{
				TxHash: tx.TxHash,
				Reason: "missing or unparseable timestamp",
			})
			continue
		}
		day := tx.Timestamp.UTC().Format("2006-01-02")
		swapsPerDay[day]++
	}

	for day, count := range swapsPerDay {
		eligible := count
		if eligible > e.cfg.MaxDailySwaps {
			eligible = e.cfg.MaxDailySwaps
		}
		daily := e.cfg.PointsPerSwap.Mul(decimal.NewFromInt(int64(eligible)))
		// Re-cap against MaxDailyPoints in case the configured constants
		// disagree with each other.
		if daily.GreaterThan(e.cfg.MaxDailyPoints) {
			daily = e.cfg.MaxDailyPoints
		}
		res.PerDay[day] = daily
		res.Total = res.Total.Add(daily)
	}

	res.Total = res.Total.Round(1)
	return res
}

// EligibleSwapCount returns how many swaps in the set actually counted
// toward points, after dedup, status filtering, and the daily cap.
func (e *Engine) EligibleSwapCount(txs []types.Transaction) int {
	swapsPerDay := make(map[string]int)
	for _, tx := range dedupeByHash(txs) {
		if tx.Type != types.TxSwap || tx.Status != types.StatusCompleted || tx.Timestamp.IsZero() {
			continue
		}
		swapsPerDay[tx.Timestamp.UTC().Format("2006-01-02")]++
	}
	total := 0
	for _, count := range swapsPerDay {
		if count > e.cfg.MaxDailySwaps {
			count = e.cfg.MaxDailySwaps
		}
		total += count
	}
	return total
}

// dedupeByHash drops repeated txHash entries, keeping the first occurrence.
func dedupeByHash(txs []types.Transaction) []types.Transaction {
	seen := make(map[string]bool, len(txs))
	out := make([]types.Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.TxHash != "" && seen[tx.TxHash] {
			continue
		}
		seen[tx.TxHash] = true
		out = append(out, tx)
	}
	return out
}
