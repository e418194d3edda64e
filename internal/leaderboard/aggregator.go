package leaderboard

import (
	"sort"
	"strings"

	"github.com/W3LABS/points_engine/internal/db"
	"github.com/shopspring/decimal"
)

// Entry is one ranked row of the leaderboard.
type Entry struct {
	Rank       int             `json:"rank"`
	Address    string          `json:"address"`
	Points     decimal.Decimal `json:"points"`
	TotalSwaps int             `json:"totalSwaps"`
	Badges     []string        `json:"badges,omitempty"`
}

// Page is one page of the leaderboard plus totals computed over all users,
// not just the page.
type Page struct {
	Users             []Entry         `json:"users"`
	PageNum           int             `json:"page"`
	PageSize          int             `json:"pageSize"`
	TotalUsers        int             `json:"totalUsers"`
	TotalGlobalPoints decimal.Decimal `json:"totalGlobalPoints"`
	GlobalSwapCount   int             `json:"globalSwapCount"`
	GlobalClaimCount  int             `json:"globalClaimCount"`
	EligibleUsers     int             `json:"eligibleUsers"`
	IneligibleUsers   int             `json:"ineligibleUsers"`
}

// Snapshot is the full derived ranking. It is never persisted; it is
// rebuilt from user rows on every read.
type Snapshot struct {
	entries           []Entry
	rankByAddress     map[string]int
	totalGlobalPoints decimal.Decimal
	globalSwapCount   int
	globalClaimCount  int
	ineligible        int
}

// BuildSnapshot ranks users by points descending with ties broken by
// ascending user id, so repeated calls over the same rows always agree.
// Users with no recorded activity are excluded from the ranking but still
// counted in the ineligible total.
func BuildSnapshot(users []db.User) *Snapshot {
	snap := &Snapshot{
		rankByAddress:     make(map[string]int),
		totalGlobalPoints: decimal.Zero,
	}

	ranked := make([]db.User, 0, len(users))
	for i := range users {
		u := users[i]
		snap.totalGlobalPoints = snap.totalGlobalPoints.Add(u.Points)
		snap.globalSwapCount += u.TotalSwaps
		snap.globalClaimCount += u.TotalClaims
		if u.HasActivity() {
			ranked = append(ranked, u)
		} else {
			snap.ineligible++
		}
	}

	sort.Slice(ranked, func(i, j int) bool {
		if !ranked[i].Points.Equal(ranked[j].Points) {
			return ranked[i].Points.GreaterThan(ranked[j].Points)
		}
		return ranked[i].ID < ranked[j].ID
	})

	snap.entries = make([]Entry, len(ranked))
	for i, u := range ranked {
		entry := Entry{
			Rank:       i + 1,
			Address:    u.Address,
			Points:     u.Points,
			TotalSwaps: u.TotalSwaps,
			Badges:     u.Badges,
		}
		snap.entries[i] = entry
		snap.rankByAddress[u.Address] = entry.Rank
	}
	return snap
}

// PageOf slices the snapshot. Ranks are positions in the full ordering and
// do not depend on which page is requested. Page numbers are 1-based.
func (s *Snapshot) PageOf(page, pageSize int) Page {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}

	start := (page - 1) * pageSize
	end := start + pageSize
	if start > len(s.entries) {
		start = len(s.entries)
	}
	if end > len(s.entries) {
		end = len(s.entries)
	}

	return Page{
		Users:             s.entries[start:end],
		PageNum:           page,
		PageSize:          pageSize,
		TotalUsers:        len(s.entries),
		TotalGlobalPoints: s.totalGlobalPoints,
		GlobalSwapCount:   s.globalSwapCount,
		GlobalClaimCount:  s.globalClaimCount,
		EligibleUsers:     len(s.entries),
		IneligibleUsers:   s.ineligible,
	}
}

// Rank returns a user's 1-based rank, or 0 with ok=false when the user has
// no recorded activity. "Never ranked" is distinct from "ranked last".
func (s *Snapshot) Rank(address string) (int, bool) {
	rank, ok := s.rankByAddress[strings.ToLower(address)]
	return rank, ok
}

// DefaultPageSize is used when the caller does not specify one.
const DefaultPageSize = 25

// Aggregator serves leaderboard reads over the user store.
type Aggregator struct {
	store db.Service
}

func NewAggregator(store db.Service) *Aggregator {
	return &Aggregator{store: store}
}

// GetLeaderboard loads all users and returns the requested page.
func (a *Aggregator) GetLeaderboard(page, pageSize int) (*Page, error) {
	snap, err := a.snapshot()
	if err != nil {
		return nil, err
	}
	p := snap.PageOf(page, pageSize)
	return &p, nil
}

// GetUserRank returns a user's current rank, or ok=false for users with no
// recorded activity.
func (a *Aggregator) GetUserRank(address string) (int, bool, error) {
	snap, err := a.snapshot()
	if err != nil {
		return 0, false, err
	}
	rank, ok := snap.Rank(address)
	return rank, ok, nil
}

// GlobalTotals returns the aggregate totals without a page of users.
func (a *Aggregator) GlobalTotals() (decimal.Decimal, int, error) {
	snap, err := a.snapshot()
	if err != nil {
		return decimal.Zero, 0, err
	}
	return snap.totalGlobalPoints, len(snap.entries) + snap.ineligible, nil
}

func (a *Aggregator) snapshot() (*Snapshot, error) {
	users, err := a.store.ListUsers()
	if err != nil {
		return nil, err
	}
	return BuildSnapshot(users), nil
}
