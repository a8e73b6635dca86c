package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/civicworks/fundflow-backend/internal/services"
)

type SyncHandler struct {
	syncService services.SyncService
}

func NewSyncHandler(syncService services.SyncService) *SyncHandler {
	return &SyncHandler{syncService: syncService}
}

func (sh *SyncHandler) SyncAll(c *gin.Context) {
	report, err := sh.syncService.SyncAll(c.Request.Context())
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, report)
}

func (sh *SyncHandler) SyncOne(c *gin.Context) {
	proposalID, err := strconv.ParseUint(c.Param("proposalID"), 10, 64)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation_failed", fmt.Errorf("proposal id must be a positive integer"))
		return
	}
	result, err := sh.syncService.SyncOne(c.Request.Context(), proposalID)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, result)
}
