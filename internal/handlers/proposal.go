package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/civicworks/fundflow-backend/internal/services"
	"github.com/civicworks/fundflow-backend/internal/types"
)

type ProposalHandler struct {
	proposalService services.ProposalService
}

func NewProposalHandler(proposalService services.ProposalService) *ProposalHandler {
	return &ProposalHandler{proposalService: proposalService}
}

// stateFilters maps the dashboard filter names onto state sets.
var stateFilters = map[string][]types.ProposalState{
	"pending_voting": {types.ProposalAuthorityVoting, types.ProposalPublicVoting},
	"approved":       {types.ProposalApproved},
	"rejected":       {types.ProposalRejected},
	"running":        {types.ProposalInProgress},
	"completed":      {types.ProposalCompleted},
}

func (ph *ProposalHandler) List(c *gin.Context) {
	filter := c.Query("state")
	if filter == "" || filter == "all" {
		proposals, err := ph.proposalService.List(c.Request.Context())
		if err != nil {
			RespondAppError(c, err)
			return
		}
		RespondOK(c, proposals)
		return
	}

	states, ok := stateFilters[filter]
	if !ok {
		RespondError(c, http.StatusBadRequest, "validation_failed", fmt.Errorf("unknown state filter %q", filter))
		return
	}
	proposals, err := ph.proposalService.ListByStates(c.Request.Context(), states)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, proposals)
}

func (ph *ProposalHandler) Get(c *gin.Context) {
	proposalID, err := strconv.ParseUint(c.Param("proposalID"), 10, 64)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation_failed", fmt.Errorf("proposal id must be a positive integer"))
		return
	}
	proposal, stages, err := ph.proposalService.Get(c.Request.Context(), proposalID)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{"proposal": proposal, "stages": stages})
}

func (ph *ProposalHandler) CloseVoting(c *gin.Context) {
	proposalID, ok := bindProposalAction(c)
	if !ok {
		return
	}
	proposal, err := ph.proposalService.CloseVoting(c.Request.Context(), proposalID)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, proposal)
}

func (ph *ProposalHandler) StartExecution(c *gin.Context) {
	proposalID, ok := bindProposalAction(c)
	if !ok {
		return
	}
	proposal, err := ph.proposalService.StartExecution(c.Request.Context(), proposalID)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, proposal)
}

func (ph *ProposalHandler) CompleteStage(c *gin.Context) {
	var req struct {
		ProposalID  uint64 `json:"proposal_id"`
		StageNumber uint64 `json:"stage_number"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "validation_failed", fmt.Errorf("invalid request body"))
		return
	}
	if req.ProposalID == 0 || req.StageNumber == 0 {
		RespondError(c, http.StatusBadRequest, "validation_failed", fmt.Errorf("proposal_id and stage_number are required"))
		return
	}
	proposal, stage, err := ph.proposalService.CompleteStage(c.Request.Context(), req.ProposalID, req.StageNumber)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{"proposal": proposal, "stage": stage})
}

func bindProposalAction(c *gin.Context) (uint64, bool) {
	var req struct {
		ProposalID uint64 `json:"proposal_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "validation_failed", fmt.Errorf("invalid request body"))
		return 0, false
	}
	if req.ProposalID == 0 {
		RespondError(c, http.StatusBadRequest, "validation_failed", fmt.Errorf("proposal_id is required"))
		return 0, false
	}
	return req.ProposalID, true
}
