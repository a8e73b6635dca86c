package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/civicworks/fundflow-backend/internal/services"
	"github.com/civicworks/fundflow-backend/internal/types"
)

// Evidence uploads are capped well above any realistic invoice scan.
const maxDocumentBytes = 10 << 20

type BillHandler struct {
	billService services.BillService
}

func NewBillHandler(billService services.BillService) *BillHandler {
	return &BillHandler{billService: billService}
}

// Submit accepts a multipart form: the evidence document plus the bill
// metadata fields. The response carries the verdict already applied.
func (bh *BillHandler) Submit(c *gin.Context) {
	proposalID, err := strconv.ParseUint(c.PostForm("proposal_id"), 10, 64)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation_failed", fmt.Errorf("proposal_id must be a positive integer"))
		return
	}
	stageNumber, err := strconv.ParseUint(c.PostForm("stage_number"), 10, 64)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation_failed", fmt.Errorf("stage_number must be a positive integer"))
		return
	}
	amount, err := strconv.ParseFloat(c.PostForm("amount"), 64)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation_failed", fmt.Errorf("amount must be a number"))
		return
	}
	var totalStages uint64
	if raw := c.PostForm("total_stages"); raw != "" {
		if totalStages, err = strconv.ParseUint(raw, 10, 64); err != nil {
			RespondError(c, http.StatusBadRequest, "validation_failed", fmt.Errorf("total_stages must be a positive integer"))
			return
		}
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation_failed", fmt.Errorf("file is required"))
		return
	}
	if fileHeader.Size > maxDocumentBytes {
		RespondError(c, http.StatusRequestEntityTooLarge, "file_too_large", fmt.Errorf("file exceeds %d bytes", maxDocumentBytes))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation_failed", err)
		return
	}
	defer file.Close()
	document, err := io.ReadAll(file)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "internal", err)
		return
	}

	bill, err := bh.billService.SubmitBill(c.Request.Context(), services.SubmitBillInput{
		ProposalID:       proposalID,
		StageNumber:      stageNumber,
		BillType:         types.BillType(c.PostForm("bill_type")),
		Amount:           amount,
		Currency:         c.PostForm("currency"),
		Description:      c.PostForm("description"),
		RecipientAddress: c.PostForm("recipient_address"),
		TotalStages:      totalStages,
		Document:         document,
	})
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, bill)
}

func (bh *BillHandler) Approve(c *gin.Context) {
	var req struct {
		BillID           string `json:"bill_id"`
		AuthorityAddress string `json:"authority_address"`
		Approve          *bool  `json:"approve"`
		Notes            string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "validation_failed", fmt.Errorf("invalid request body"))
		return
	}
	billID, err := uuid.Parse(req.BillID)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation_failed", fmt.Errorf("bill_id must be a uuid"))
		return
	}
	if req.AuthorityAddress == "" {
		RespondError(c, http.StatusBadRequest, "validation_failed", fmt.Errorf("authority_address is required"))
		return
	}
	if req.Approve == nil {
		RespondError(c, http.StatusBadRequest, "validation_failed", fmt.Errorf("approve is required"))
		return
	}

	bill, err := bh.billService.ApproveBill(c.Request.Context(), billID, req.AuthorityAddress, *req.Approve, req.Notes)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, bill)
}

func (bh *BillHandler) ListByProposal(c *gin.Context) {
	proposalID, err := strconv.ParseUint(c.Param("proposalID"), 10, 64)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation_failed", fmt.Errorf("proposal id must be a positive integer"))
		return
	}
	bills, err := bh.billService.ListBills(c.Request.Context(), proposalID)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, bills)
}

func (bh *BillHandler) Pending(c *gin.Context) {
	bills, err := bh.billService.PendingBills(c.Request.Context())
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, bills)
}

func (bh *BillHandler) VerificationLogs(c *gin.Context) {
	billID, err := uuid.Parse(c.Param("billID"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation_failed", fmt.Errorf("bill id must be a uuid"))
		return
	}
	logs, err := bh.billService.VerificationLogs(c.Request.Context(), billID)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, logs)
}
