package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/civicworks/fundflow-backend/internal/handlers"
)

type RouterConfig struct {
	ProposalHandler  *handlers.ProposalHandler
	BillHandler      *handlers.BillHandler
	SyncHandler      *handlers.SyncHandler
	SBTHandler       *handlers.SBTHandler
	DashboardHandler *handlers.DashboardHandler
	AllowOrigins     []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	{
		// Proposals
		api.GET("/proposals", cfg.ProposalHandler.List)
		api.GET("/proposals/:proposalID", cfg.ProposalHandler.Get)
		api.POST("/proposals/close-voting", cfg.ProposalHandler.CloseVoting)
		api.POST("/proposals/start", cfg.ProposalHandler.StartExecution)
		api.POST("/proposals/complete-stage", cfg.ProposalHandler.CompleteStage)

		// Bills
		api.POST("/bills", cfg.BillHandler.Submit)
		api.POST("/bills/approve", cfg.BillHandler.Approve)
		api.GET("/bills/pending", cfg.BillHandler.Pending)
		api.GET("/bills/:billID/logs", cfg.BillHandler.VerificationLogs)
		api.GET("/proposals/:proposalID/bills", cfg.BillHandler.ListByProposal)

		// Ledger reconciliation
		api.POST("/sync", cfg.SyncHandler.SyncAll)
		api.POST("/sync/:proposalID", cfg.SyncHandler.SyncOne)

		// Credential applications
		api.POST("/sbt/register", cfg.SBTHandler.Register)
		api.POST("/sbt/approve", cfg.SBTHandler.Approve)
		api.POST("/sbt/reject", cfg.SBTHandler.Reject)
		api.GET("/sbt/pending", cfg.SBTHandler.Pending)
		api.GET("/sbt/applications/:applicant", cfg.SBTHandler.Get)
		api.POST("/sbt/sync", cfg.SBTHandler.Sync)

		// Dashboard
		api.GET("/dashboard/overview", cfg.DashboardHandler.Overview)
	}

	return router
}
