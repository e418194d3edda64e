package main

import (
	"log"
	"time"

	"github.com/W3LABS/points_engine/internal/adapter"
	"github.com/W3LABS/points_engine/internal/api"
	"github.com/W3LABS/points_engine/internal/config"
	"github.com/W3LABS/points_engine/internal/db"
	"github.com/W3LABS/points_engine/internal/ethereum"
	"github.com/W3LABS/points_engine/internal/explorer"
	"github.com/W3LABS/points_engine/internal/leaderboard"
	"github.com/W3LABS/points_engine/internal/points"
	"github.com/W3LABS/points_engine/internal/syncer"
	"github.com/W3LABS/points_engine/internal/types"
	"github.com/W3LABS/points_engine/internal/websocket"
	"github.com/W3LABS/points_engine/pkg/logger"
)

func main() {
	// Initialize logger
	logger.SetLevel(logger.INFO)
	err := logger.EnableFileLogging("./logs")
	if err != nil {
		log.Fatalf("Failed to enable file logging: %v", err)
	}

	logger.Info("Points engine starting...")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration: %v", err)
	}

	// Initialize database
	store, err := db.NewService(db.DefaultOperations(), cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Initialize explorer client
	explorerClient := explorer.NewClient(cfg.ExplorerBaseURL, cfg.ExplorerTimeout)

	registry := adapter.NewRegistry(cfg.FaucetAddress, cfg.RewardToken, cfg.SwapContracts, nil)
	adp := adapter.New(registry)
	engine := points.NewEngine(cfg.Points)

	// Initialize WebSocket manager
	wsManager := websocket.NewManager()
	go wsManager.Run()

	reconciler := syncer.NewReconciler(store, explorerClient, adp, engine, wsManager)

	if cfg.ChainRPCURL != "" {
		verifier, err := ethereum.NewVerifier(cfg.ChainRPCURL, uint64(cfg.MinConfirmations), nil)
		if err != nil {
			logger.Fatal("Failed to connect to chain RPC: %v", err)
		}
		defer verifier.Close()
		reconciler.SetVerifier(verifier)
	}

	aggregator := leaderboard.NewAggregator(store)

	// Set up and run the API server
	handler := api.NewHandler(aggregator, reconciler, store)
	r := api.SetupRouter(handler, wsManager)
	go func() {
		if err := r.Run(cfg.ListenAddr); err != nil {
			logger.Fatal("Failed to run server: %v", err)
		}
	}()

	// Push leaderboard totals to connected clients on a fixed cadence
	go broadcastLeaderboard(aggregator, wsManager, cfg.BroadcastEvery)

	// Keep the main goroutine running
	select {}
}

func broadcastLeaderboard(aggregator *leaderboard.Aggregator, wsManager *websocket.Manager, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for range ticker.C {
		total, userCount, err := aggregator.GlobalTotals()
		if err != nil {
			logger.LogTypedError(err)
			continue
		}

		err = wsManager.BroadcastLeaderboardUpdate(types.LeaderboardUpdate{
			TotalGlobalPoints: total,
			UserCount:         userCount,
			Timestamp:         time.Now().UTC(),
		})
		if err != nil {
			logger.LogTypedError(err)
		}
	}
}
