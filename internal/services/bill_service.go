package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/civicworks/fundflow-backend/internal/apperr"
	"github.com/civicworks/fundflow-backend/internal/logger"
	"github.com/civicworks/fundflow-backend/internal/repos"
	"github.com/civicworks/fundflow-backend/internal/types"
)

const manualReviewWarning = "Manual verification required due to oracle processing error"

type SubmitBillInput struct {
	ProposalID       uint64
	StageNumber      uint64
	BillType         types.BillType
	Amount           float64
	Currency         string
	Description      string
	RecipientAddress string
	TotalStages      uint64
	Document         []byte
}

type BillService interface {
	SubmitBill(ctx context.Context, input SubmitBillInput) (*types.Bill, error)
	ApproveBill(ctx context.Context, billID uuid.UUID, authority string, approve bool, notes string) (*types.Bill, error)
	ListBills(ctx context.Context, proposalID uint64) ([]*types.Bill, error)
	PendingBills(ctx context.Context) ([]*types.Bill, error)
	VerificationLogs(ctx context.Context, billID uuid.UUID) ([]*types.AIVerificationLog, error)
}

type billService struct {
	db            *gorm.DB
	log           *logger.Logger
	proposalRepo  repos.ProposalRepo
	stageRepo     repos.StageRepo
	billRepo      repos.BillRepo
	logRepo       repos.VerificationLogRepo
	oracle        BillOracle
	oracleTimeout time.Duration
}

func NewBillService(db *gorm.DB, log *logger.Logger, proposalRepo repos.ProposalRepo, stageRepo repos.StageRepo, billRepo repos.BillRepo, logRepo repos.VerificationLogRepo, oracle BillOracle, oracleTimeout time.Duration) BillService {
	if oracleTimeout <= 0 {
		oracleTimeout = 60 * time.Second
	}
	return &billService{
		db:            db,
		log:           log.With("service", "BillService"),
		proposalRepo:  proposalRepo,
		stageRepo:     stageRepo,
		billRepo:      billRepo,
		logRepo:       logRepo,
		oracle:        oracle,
		oracleTimeout: oracleTimeout,
	}
}

func validateSubmitBill(input SubmitBillInput) error {
	if input.ProposalID == 0 {
		return &apperr.ValidationError{Field: "proposal_id", Reason: "required"}
	}
	if input.StageNumber == 0 {
		return &apperr.ValidationError{Field: "stage_number", Reason: "must be at least 1"}
	}
	if input.Amount <= 0 {
		return &apperr.ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if len(input.Document) == 0 {
		return &apperr.ValidationError{Field: "file", Reason: "required"}
	}
	if !types.ValidBillType(input.BillType) {
		return &apperr.ValidationError{Field: "bill_type", Reason: fmt.Sprintf("unknown type %q", input.BillType)}
	}
	return nil
}

// SubmitBill records the evidence, obtains a verdict from the oracle and
// applies the verification gate. The bill row is committed in the
// Verifying status before the oracle call so no transaction is held open
// across the network request; the verdict is then applied as a separate,
// atomic update. The bill always terminates in Verified or Failed.
func (bs *billService) SubmitBill(ctx context.Context, input SubmitBillInput) (*types.Bill, error) {
	if err := validateSubmitBill(input); err != nil {
		return nil, err
	}
	if input.Currency == "" {
		input.Currency = "USD"
	}
	if input.TotalStages == 0 {
		input.TotalStages = 3
	}

	sum := sha256.Sum256(input.Document)
	fileHash := hex.EncodeToString(sum[:])

	var bill *types.Bill
	err := bs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		proposal, err := bs.proposalRepo.GetByProposalID(ctx, tx, input.ProposalID)
		if err != nil {
			if !errors.Is(err, apperr.ErrNotFound) {
				return err
			}
			proposal, err = bs.proposalRepo.Create(ctx, tx, &types.Proposal{
				ProposalID:       input.ProposalID,
				Description:      input.Description,
				RecipientAddress: input.RecipientAddress,
				TotalAmount:      input.Amount,
				State:            types.ProposalInProgress,
				CurrentStage:     input.StageNumber,
				TotalStages:      input.TotalStages,
			})
			if err != nil {
				return err
			}
		}

		stage, err := bs.stageRepo.GetByProposalAndNumber(ctx, tx, proposal.ID, input.StageNumber)
		if err != nil {
			if !errors.Is(err, apperr.ErrNotFound) {
				return err
			}
			stage, err = bs.stageRepo.Create(ctx, tx, &types.ProposalStage{
				ProposalID:  proposal.ID,
				StageNumber: input.StageNumber,
				Amount:      input.Amount,
				State:       types.StageInProgress,
			})
			if err != nil {
				return err
			}
		}

		bill = &types.Bill{
			ProposalID:  proposal.ID,
			StageID:     stage.ID,
			BillType:    input.BillType,
			Amount:      input.Amount,
			Currency:    input.Currency,
			Description: input.Description,
			FileHash:    fileHash,
			Status:      types.BillVerifying,
		}
		_, err = bs.billRepo.Create(ctx, tx, bill)
		return err
	})
	if err != nil {
		return nil, err
	}

	oracleCtx, cancel := context.WithTimeout(ctx, bs.oracleTimeout)
	defer cancel()

	started := time.Now()
	verdict, verifyErr := bs.oracle.Verify(oracleCtx, input.Document, input.Amount, input.BillType, input.StageNumber)
	processingTime := time.Since(started).Seconds()

	// The terminal update is detached from the request context so a
	// caller disconnect during the oracle call cannot strand the bill
	// in the Verifying status.
	terminalCtx := context.WithoutCancel(ctx)
	if verifyErr != nil {
		bs.log.Warn("Oracle verification failed", "bill_id", bill.ID, "error", verifyErr)
		return bs.recordOracleFailure(terminalCtx, bill, verifyErr, processingTime)
	}
	return bs.recordVerdict(terminalCtx, bill, verdict, input.Amount, processingTime)
}

func (bs *billService) recordVerdict(ctx context.Context, bill *types.Bill, verdict *types.OracleVerdict, expectedAmount float64, processingTime float64) (*types.Bill, error) {
	accepted, reasons := DecideVerification(verdict, expectedAmount)

	analysis, err := json.Marshal(verdict)
	if err != nil {
		return nil, err
	}

	warnings := append([]string{}, verdict.Warnings...)
	warnings = append(warnings, verdict.RedFlags...)
	if !accepted {
		warnings = append(warnings, reasons...)
	}

	now := time.Now().UTC()
	bill.AIVerified = accepted
	bill.AIConfidence = verdict.ConfidenceScore
	bill.AIAnalysis = string(analysis)
	bill.AIExtractedAmount = verdict.TotalAmount
	bill.AIWarnings = warnings
	bill.AIRecommendations = verdict.Recommendations
	bill.VerifiedAt = &now
	if accepted {
		bill.Status = types.BillVerified
	} else {
		bill.Status = types.BillFailed
	}

	err = bs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := bs.billRepo.Save(ctx, tx, bill); err != nil {
			return err
		}
		_, err := bs.logRepo.Append(ctx, tx, &types.AIVerificationLog{
			BillID:          bill.ID,
			Verified:        accepted,
			Confidence:      verdict.ConfidenceScore,
			Analysis:        string(analysis),
			ExtractedAmount: verdict.TotalAmount,
			Warnings:        warnings,
			ProcessingTime:  processingTime,
			ModelUsed:       bs.oracle.Model(),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	bs.log.Info("Bill verified", "bill_id", bill.ID, "accepted", accepted, "confidence", verdict.ConfidenceScore)
	return bill, nil
}

// recordOracleFailure lands the bill in the Failed status. An unavailable
// oracle is never treated as acceptance and is never retried here.
func (bs *billService) recordOracleFailure(ctx context.Context, bill *types.Bill, verifyErr error, processingTime float64) (*types.Bill, error) {
	now := time.Now().UTC()
	analysis := fmt.Sprintf("Error during verification: %v", verifyErr)
	warnings := []string{
		fmt.Sprintf("AI verification failed: %v", verifyErr),
		manualReviewWarning,
	}

	bill.AIVerified = false
	bill.AIConfidence = 0
	bill.AIAnalysis = analysis
	bill.AIWarnings = warnings
	bill.AIRecommendations = manualReviewWarning
	bill.Status = types.BillFailed
	bill.VerifiedAt = &now

	err := bs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := bs.billRepo.Save(ctx, tx, bill); err != nil {
			return err
		}
		_, err := bs.logRepo.Append(ctx, tx, &types.AIVerificationLog{
			BillID:         bill.ID,
			Verified:       false,
			Confidence:     0,
			Analysis:       analysis,
			Warnings:       warnings,
			ProcessingTime: processingTime,
			ModelUsed:      bs.oracle.Model(),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return bill, nil
}

// ApproveBill records the authority decision. Approval is only possible
// once the verification gate has passed: a bill that is not in the
// Verified status cannot be approved, whatever the oracle said.
func (bs *billService) ApproveBill(ctx context.Context, billID uuid.UUID, authority string, approve bool, notes string) (*types.Bill, error) {
	if authority == "" {
		return nil, &apperr.ValidationError{Field: "authority_address", Reason: "required"}
	}

	var bill *types.Bill
	err := bs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		bill, err = bs.billRepo.GetByID(ctx, tx, billID)
		if err != nil {
			return err
		}
		if bill.Status != types.BillVerified {
			return &apperr.PreconditionError{
				Op:     "ApproveBill",
				Reason: fmt.Sprintf("bill must pass verification before authority review, status is %q", bill.Status),
			}
		}

		now := time.Now().UTC()
		bill.AuthorityApproved = approve
		bill.ApprovedBy = authority
		bill.ApprovalNotes = notes
		bill.ApprovedAt = &now
		if approve {
			bill.Status = types.BillApproved
		} else {
			bill.Status = types.BillRejected
		}
		return bs.billRepo.Save(ctx, tx, bill)
	})
	if err != nil {
		return nil, err
	}

	bs.log.Info("Authority decision recorded", "bill_id", billID, "approved", approve, "authority", authority)
	return bill, nil
}

func (bs *billService) ListBills(ctx context.Context, proposalID uint64) ([]*types.Bill, error) {
	proposal, err := bs.proposalRepo.GetByProposalID(ctx, nil, proposalID)
	if err != nil {
		return nil, err
	}
	return bs.billRepo.ListByProposal(ctx, nil, proposal.ID)
}

func (bs *billService) PendingBills(ctx context.Context) ([]*types.Bill, error) {
	return bs.billRepo.ListPendingApproval(ctx, nil)
}

func (bs *billService) VerificationLogs(ctx context.Context, billID uuid.UUID) ([]*types.AIVerificationLog, error) {
	return bs.logRepo.ListByBill(ctx, nil, billID)
}
