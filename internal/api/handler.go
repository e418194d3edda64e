package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/W3LABS/points_engine/internal/db"
	"github.com/W3LABS/points_engine/internal/errors"
	"github.com/W3LABS/points_engine/internal/leaderboard"
	"github.com/W3LABS/points_engine/internal/syncer"
	"github.com/W3LABS/points_engine/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

// LeaderboardService is the read side of the leaderboard.
type LeaderboardService interface {
	GetLeaderboard(page, pageSize int) (*leaderboard.Page, error)
	GetUserRank(address string) (int, bool, error)
}

// SyncService is the write side: ingestion, reconciliation and recompute.
type SyncService interface {
	IngestBackend(ctx context.Context, address string, records []types.BackendRecord) (*syncer.SyncResult, error)
	Reconcile(ctx context.Context, address string) (*syncer.SyncResult, error)
	RecomputeUser(ctx context.Context, address string) (*syncer.SyncResult, error)
	RecalculateAll(ctx context.Context) (int, error)
}

// UserService reads user rows.
type UserService interface {
	GetUserByAddress(address string) (*db.User, error)
}

// Handler carries the services the HTTP surface delegates to.
type Handler struct {
	leaderboard LeaderboardService
	sync        SyncService
	users       UserService
}

func NewHandler(lb LeaderboardService, sync SyncService, users UserService) *Handler {
	return &Handler{leaderboard: lb, sync: sync, users: users}
}

// GetLeaderboard handles GET /leaderboard
func (h *Handler) GetLeaderboard(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(leaderboard.DefaultPageSize)))

	result, err := h.leaderboard.GetLeaderboard(page, pageSize)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetUserRank handles GET /user/:address/rank
func (h *Handler) GetUserRank(c *gin.Context) {
	address, ok := requireAddress(c)
	if !ok {
		return
	}

	rank, ranked, err := h.leaderboard.GetUserRank(address)
	if err != nil {
		c.Error(err)
		return
	}

	if !ranked {
		// A user with no recorded activity is never ranked, which is not
		// the same as being ranked last.
		c.JSON(http.StatusOK, gin.H{"address": address, "rank": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": address, "rank": rank})
}

// GetUserPoints handles GET /user/:address/points
func (h *Handler) GetUserPoints(c *gin.Context) {
	address, ok := requireAddress(c)
	if !ok {
		return
	}

	user, err := h.users.GetUserByAddress(address)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"address":     user.Address,
		"points":      user.Points,
		"bonusPoints": user.BonusPoints,
		"totalSwaps":  user.TotalSwaps,
		"totalClaims": user.TotalClaims,
	})
}

// GetUserProfile handles GET /user/:address
func (h *Handler) GetUserProfile(c *gin.Context) {
	address, ok := requireAddress(c)
	if !ok {
		return
	}

	user, err := h.users.GetUserByAddress(address)
	if err != nil {
		c.Error(err)
		return
	}

	rank, ranked, err := h.leaderboard.GetUserRank(address)
	if err != nil {
		c.Error(err)
		return
	}

	resp := gin.H{
		"address":     user.Address,
		"points":      user.Points,
		"bonusPoints": user.BonusPoints,
		"totalSwaps":  user.TotalSwaps,
		"totalClaims": user.TotalClaims,
		"badges":      user.Badges,
		"lastClaimAt": user.LastClaimAt,
		"rank":        nil,
	}
	if ranked {
		resp["rank"] = rank
	}
	c.JSON(http.StatusOK, resp)
}

// RecomputePoints handles POST /user/:address/recompute
func (h *Handler) RecomputePoints(c *gin.Context) {
	address, ok := requireAddress(c)
	if !ok {
		return
	}

	result, err := h.sync.RecomputeUser(c.Request.Context(), address)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// IngestTransactions handles POST /user/:address/transactions
func (h *Handler) IngestTransactions(c *gin.Context) {
	address, ok := requireAddress(c)
	if !ok {
		return
	}

	var records []types.BackendRecord
	if err := c.ShouldBindJSON(&records); err != nil {
		c.Error(&errors.APIError{
			StatusCode: http.StatusBadRequest,
			Message:    "invalid transaction batch",
			Err:        err,
		})
		return
	}

	result, err := h.sync.IngestBackend(c.Request.Context(), address, records)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// SyncFromExplorer handles POST /user/:address/sync
func (h *Handler) SyncFromExplorer(c *gin.Context) {
	address, ok := requireAddress(c)
	if !ok {
		return
	}

	result, err := h.sync.Reconcile(c.Request.Context(), address)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// RecalculateAll handles POST /admin/recalculate
func (h *Handler) RecalculateAll(c *gin.Context) {
	updated, err := h.sync.RecalculateAll(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"usersRecalculated": updated})
}

func requireAddress(c *gin.Context) (string, bool) {
	address := c.Param("address")
	if !common.IsHexAddress(address) {
		c.Error(&errors.APIError{
			StatusCode: http.StatusBadRequest,
			Message:    "invalid wallet address",
		})
		return "", false
	}
	return address, true
}
