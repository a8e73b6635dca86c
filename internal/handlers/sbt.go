package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/civicworks/fundflow-backend/internal/services"
	"github.com/civicworks/fundflow-backend/internal/types"
)

type SBTHandler struct {
	sbtService services.SBTService
}

func NewSBTHandler(sbtService services.SBTService) *SBTHandler {
	return &SBTHandler{sbtService: sbtService}
}

func (sh *SBTHandler) Register(c *gin.Context) {
	var req services.RegisterApplicationInput
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "validation_failed", fmt.Errorf("invalid request body"))
		return
	}
	application, err := sh.sbtService.Register(c.Request.Context(), req)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, application)
}

func (sh *SBTHandler) Approve(c *gin.Context) {
	var req struct {
		ApplicantAddress string `json:"applicant_address"`
		Nullifier        uint64 `json:"nullifier"`
		AdminAddress     string `json:"admin_address"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "validation_failed", fmt.Errorf("invalid request body"))
		return
	}
	if req.ApplicantAddress == "" {
		RespondError(c, http.StatusBadRequest, "validation_failed", fmt.Errorf("applicant_address is required"))
		return
	}
	if req.Nullifier == 0 {
		req.Nullifier = 1
	}
	application, err := sh.sbtService.Approve(c.Request.Context(), req.ApplicantAddress, req.Nullifier, req.AdminAddress)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, application)
}

func (sh *SBTHandler) Reject(c *gin.Context) {
	var req struct {
		ApplicantAddress string `json:"applicant_address"`
		AdminAddress     string `json:"admin_address"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "validation_failed", fmt.Errorf("invalid request body"))
		return
	}
	if req.ApplicantAddress == "" {
		RespondError(c, http.StatusBadRequest, "validation_failed", fmt.Errorf("applicant_address is required"))
		return
	}
	application, err := sh.sbtService.Reject(c.Request.Context(), req.ApplicantAddress, req.AdminAddress)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, application)
}

func (sh *SBTHandler) Get(c *gin.Context) {
	application, err := sh.sbtService.Get(c.Request.Context(), c.Param("applicant"))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, application)
}

func (sh *SBTHandler) Pending(c *gin.Context) {
	applications, err := sh.sbtService.ListByStatus(c.Request.Context(), types.ApplicationPending)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, applications)
}

func (sh *SBTHandler) Sync(c *gin.Context) {
	result, err := sh.sbtService.SyncApplications(c.Request.Context())
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, result)
}
