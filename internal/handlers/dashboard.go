package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/civicworks/fundflow-backend/internal/services"
)

type DashboardHandler struct {
	statsService services.StatsService
}

func NewDashboardHandler(statsService services.StatsService) *DashboardHandler {
	return &DashboardHandler{statsService: statsService}
}

func (dh *DashboardHandler) Overview(c *gin.Context) {
	overview, err := dh.statsService.Overview(c.Request.Context())
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{"stats": overview})
}
