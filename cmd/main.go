package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/civicworks/fundflow-backend/internal/db"
	"github.com/civicworks/fundflow-backend/internal/handlers"
	"github.com/civicworks/fundflow-backend/internal/logger"
	"github.com/civicworks/fundflow-backend/internal/repos"
	"github.com/civicworks/fundflow-backend/internal/server"
	"github.com/civicworks/fundflow-backend/internal/services"
	"github.com/civicworks/fundflow-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Env
	log.Info("Loading environment variables from main...")
	ledgerEndpoint := utils.GetEnv("LEDGER_RPC_URL", "", log)
	proposalContract := utils.GetEnv("PROPOSAL_CONTRACT_ADDRESS", "", log)
	sbtContract := utils.GetEnv("SBT_CONTRACT_ADDRESS", "", log)
	callTimeout := utils.GetEnvAsInt("LEDGER_CALL_TIMEOUT_SECONDS", 15, log)
	batchConcurrency := utils.GetEnvAsInt("SYNC_BATCH_CONCURRENCY", 4, log)
	syncInterval := utils.GetEnvAsInt("SYNC_INTERVAL_SECONDS", 0, log)
	oracleTimeout := utils.GetEnvAsInt("ORACLE_TIMEOUT_SECONDS", 60, log)

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Warn("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	proposalRepo := repos.NewProposalRepo(thePG, log)
	stageRepo := repos.NewStageRepo(thePG, log)
	billRepo := repos.NewBillRepo(thePG, log)
	verificationLogRepo := repos.NewVerificationLogRepo(thePG, log)
	sbtApplicationRepo := repos.NewSBTApplicationRepo(thePG, log)

	// Services
	log.Info("Setting up Services from main...")
	syncCfg := services.SyncConfig{
		LedgerEndpoint:          ledgerEndpoint,
		ProposalContractAddress: proposalContract,
		SBTContractAddress:      sbtContract,
		CallTimeout:             time.Duration(callTimeout) * time.Second,
		BatchConcurrency:        batchConcurrency,
	}
	chainClient, err := services.NewChainClient(log, syncCfg)
	if err != nil {
		log.Error("Could not init ChainClient", "error", err)
		os.Exit(1)
	}
	oracle := services.NewBillOracle(log)
	billService := services.NewBillService(thePG, log, proposalRepo, stageRepo, billRepo, verificationLogRepo, oracle, time.Duration(oracleTimeout)*time.Second)
	proposalService := services.NewProposalService(thePG, log, proposalRepo, stageRepo, billRepo)
	syncService := services.NewSyncService(log, chainClient, proposalRepo, stageRepo, syncCfg)
	sbtService := services.NewSBTService(thePG, log, sbtApplicationRepo, chainClient)
	statsService := services.NewStatsService(log, proposalRepo, billRepo, sbtApplicationRepo)

	if syncInterval > 0 {
		go runPeriodicSync(context.Background(), log, syncService, time.Duration(syncInterval)*time.Second)
	}

	// Handlers
	log.Info("Setting up handlers from main...")
	proposalHandler := handlers.NewProposalHandler(proposalService)
	billHandler := handlers.NewBillHandler(billService)
	syncHandler := handlers.NewSyncHandler(syncService)
	sbtHandler := handlers.NewSBTHandler(sbtService)
	dashboardHandler := handlers.NewDashboardHandler(statsService)

	// Router
	log.Info("Setting up router from main...")
	var origins []string
	if raw := utils.GetEnv("CORS_ALLOW_ORIGINS", "", log); raw != "" {
		origins = strings.Split(raw, ",")
	}
	router := server.NewRouter(server.RouterConfig{
		ProposalHandler:  proposalHandler,
		BillHandler:      billHandler,
		SyncHandler:      syncHandler,
		SBTHandler:       sbtHandler,
		DashboardHandler: dashboardHandler,
		AllowOrigins:     origins,
	})

	port := utils.GetEnv("PORT", "8080", log)
	fmt.Printf("Server listening on :%s\n", port)
	if err := router.Run(":" + port); err != nil {
		log.Warn("Server failed", "error", err)
	}
}

func runPeriodicSync(ctx context.Context, log *logger.Logger, syncService services.SyncService, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := syncService.SyncAll(ctx); err != nil {
				log.Warn("periodic reconciliation failed", "error", err)
			}
		}
	}
}
