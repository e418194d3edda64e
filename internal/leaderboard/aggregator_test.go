package leaderboard

import (
	"fmt"
	"testing"

	"github.com/W3LABS/points_engine/internal/db"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func user(id int64, address, points string, swaps int) db.User {
	return db.User{
		ID:         id,
		Address:    address,
		Points:     decimal.RequireFromString(points),
		TotalSwaps: swaps,
	}
}

func TestSnapshotOrderingAndTieBreak(t *testing.T) {
	users := []db.User{
		user(3, "0xccc", "1.5", 3),
		user(1, "0xaaa", "2.5", 5),
		user(2, "0xbbb", "1.5", 3),
	}

	snap := BuildSnapshot(users)
	page := snap.PageOf(1, 10)

	require.Len(t, page.Users, 3)
	assert.Equal(t, "0xaaa", page.Users[0].Address)
	// Equal points: lower user id ranks first.
	assert.Equal(t, "0xbbb", page.Users[1].Address)
	assert.Equal(t, "0xccc", page.Users[2].Address)
	assert.Equal(t, []int{1, 2, 3}, []int{page.Users[0].Rank, page.Users[1].Rank, page.Users[2].Rank})
}

func TestSnapshotTieBreakStableAcrossCalls(t *testing.T) {
	users := []db.User{
		user(9, "0xnine", "1", 2),
		user(4, "0xfour", "1", 2),
	}

	for i := 0; i < 5; i++ {
		snap := BuildSnapshot(users)
		rank4, ok4 := snap.Rank("0xfour")
		rank9, ok9 := snap.Rank("0xnine")
		require.True(t, ok4)
		require.True(t, ok9)
		assert.Equal(t, 1, rank4, "iteration %d", i)
		assert.Equal(t, 2, rank9, "iteration %d", i)
	}
}

func TestSnapshotPagination(t *testing.T) {
	var users []db.User
	for i := 1; i <= 40; i++ {
		// Descending points so user id i lands at rank i.
		users = append(users, user(int64(i), fmt.Sprintf("0xuser%02d", i), fmt.Sprintf("%d", 100-i), 1))
	}

	snap := BuildSnapshot(users)
	page := snap.PageOf(2, 15)

	require.Len(t, page.Users, 15)
	assert.Equal(t, 16, page.Users[0].Rank, "page 2 of 15 starts at rank 16")
	assert.Equal(t, 30, page.Users[14].Rank)
	assert.Equal(t, "0xuser16", page.Users[0].Address)

	// Global totals cover all users, not just the page.
	wantTotal := decimal.Zero
	for _, u := range users {
		wantTotal = wantTotal.Add(u.Points)
	}
	assert.True(t, wantTotal.Equal(page.TotalGlobalPoints))
	assert.Equal(t, 40, page.GlobalSwapCount)
	assert.Equal(t, 40, page.TotalUsers)
}

func TestSnapshotRankIndependentOfPageSize(t *testing.T) {
	var users []db.User
	for i := 1; i <= 25; i++ {
		users = append(users, user(int64(i), fmt.Sprintf("0xu%02d", i), fmt.Sprintf("%d", 50-i), 1))
	}
	snap := BuildSnapshot(users)

	small := snap.PageOf(4, 5)  // ranks 16-20
	large := snap.PageOf(2, 15) // ranks 16-30

	assert.Equal(t, small.Users[0].Rank, large.Users[0].Rank)
	assert.Equal(t, small.Users[0].Address, large.Users[0].Address)
}

func TestSnapshotExcludesInactiveUsers(t *testing.T) {
	users := []db.User{
		user(1, "0xactive", "0.5", 1),
		{ID: 2, Address: "0xidle", Points: decimal.Zero},
	}

	snap := BuildSnapshot(users)

	_, ok := snap.Rank("0xidle")
	assert.False(t, ok, "a user with no activity is never ranked")

	rank, ok := snap.Rank("0xactive")
	require.True(t, ok)
	assert.Equal(t, 1, rank)

	page := snap.PageOf(1, 10)
	assert.Equal(t, 1, page.EligibleUsers)
	assert.Equal(t, 1, page.IneligibleUsers)
}

func TestSnapshotPageBeyondEnd(t *testing.T) {
	snap := BuildSnapshot([]db.User{user(1, "0xaaa", "1", 1)})

	page := snap.PageOf(3, 20)

	assert.Empty(t, page.Users)
	assert.Equal(t, 1, page.TotalUsers)
}
