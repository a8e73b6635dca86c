package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/civicworks/fundflow-backend/internal/apperr"
	"github.com/civicworks/fundflow-backend/internal/logger"
	"github.com/civicworks/fundflow-backend/internal/repos"
	"github.com/civicworks/fundflow-backend/internal/types"
)

// ProposalService drives the proposal and stage lifecycle state machines.
// Every transition runs inside one transaction: either the whole
// transition commits or nothing does.
type ProposalService interface {
	Get(ctx context.Context, proposalID uint64) (*types.Proposal, []*types.ProposalStage, error)
	List(ctx context.Context) ([]*types.Proposal, error)
	ListByStates(ctx context.Context, states []types.ProposalState) ([]*types.Proposal, error)
	CloseVoting(ctx context.Context, proposalID uint64) (*types.Proposal, error)
	StartExecution(ctx context.Context, proposalID uint64) (*types.Proposal, error)
	CompleteStage(ctx context.Context, proposalID uint64, stageNumber uint64) (*types.Proposal, *types.ProposalStage, error)
}

type proposalService struct {
	db           *gorm.DB
	log          *logger.Logger
	proposalRepo repos.ProposalRepo
	stageRepo    repos.StageRepo
	billRepo     repos.BillRepo
}

func NewProposalService(db *gorm.DB, log *logger.Logger, proposalRepo repos.ProposalRepo, stageRepo repos.StageRepo, billRepo repos.BillRepo) ProposalService {
	return &proposalService{
		db:           db,
		log:          log.With("service", "ProposalService"),
		proposalRepo: proposalRepo,
		stageRepo:    stageRepo,
		billRepo:     billRepo,
	}
}

func (ps *proposalService) Get(ctx context.Context, proposalID uint64) (*types.Proposal, []*types.ProposalStage, error) {
	proposal, err := ps.proposalRepo.GetByProposalID(ctx, nil, proposalID)
	if err != nil {
		return nil, nil, err
	}
	stages, err := ps.stageRepo.ListByProposal(ctx, nil, proposal.ID)
	if err != nil {
		return nil, nil, err
	}
	return proposal, stages, nil
}

func (ps *proposalService) List(ctx context.Context) ([]*types.Proposal, error) {
	return ps.proposalRepo.List(ctx, nil)
}

func (ps *proposalService) ListByStates(ctx context.Context, states []types.ProposalState) ([]*types.Proposal, error) {
	return ps.proposalRepo.ListByStates(ctx, nil, states)
}

// CloseVoting tallies the public vote and moves the proposal to Approved
// or Rejected. A tie rejects: releasing public funds needs a majority.
func (ps *proposalService) CloseVoting(ctx context.Context, proposalID uint64) (*types.Proposal, error) {
	var result *types.Proposal
	err := ps.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		proposal, err := ps.proposalRepo.GetByProposalID(ctx, tx, proposalID)
		if err != nil {
			return err
		}
		if proposal.State != types.ProposalPublicVoting {
			return &apperr.InvalidStateError{Op: "CloseVoting", State: proposal.State.String()}
		}
		if proposal.PublicYesVotes > proposal.PublicNoVotes {
			proposal.State = types.ProposalApproved
		} else {
			proposal.State = types.ProposalRejected
		}
		if err := ps.proposalRepo.Save(ctx, tx, proposal); err != nil {
			return err
		}
		result = proposal
		return nil
	})
	if err != nil {
		return nil, err
	}
	ps.log.Info("Voting closed", "proposal_id", proposalID, "state", result.State.String(),
		"yes", result.PublicYesVotes, "no", result.PublicNoVotes)
	return result, nil
}

func (ps *proposalService) StartExecution(ctx context.Context, proposalID uint64) (*types.Proposal, error) {
	var result *types.Proposal
	err := ps.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		proposal, err := ps.proposalRepo.GetByProposalID(ctx, tx, proposalID)
		if err != nil {
			return err
		}
		if proposal.State != types.ProposalApproved {
			return &apperr.InvalidStateError{Op: "StartExecution", State: proposal.State.String()}
		}
		proposal.State = types.ProposalInProgress
		proposal.CurrentStage = 0
		if err := ps.proposalRepo.Save(ctx, tx, proposal); err != nil {
			return err
		}
		result = proposal
		return nil
	})
	if err != nil {
		return nil, err
	}
	ps.log.Info("Execution started", "proposal_id", proposalID)
	return result, nil
}

// CompleteStage finishes one stage and advances the proposal. Preconditions:
// the proposal is InProgress, the stage is the next one due (strict in-order,
// out-of-order requests are rejected rather than silently accepted), and the
// stage carries at least one authority-approved bill.
//
// Completing an already-completed stage is a no-op that returns the existing
// completion record, so retried requests never error and never produce a
// second completion timestamp.
func (ps *proposalService) CompleteStage(ctx context.Context, proposalID uint64, stageNumber uint64) (*types.Proposal, *types.ProposalStage, error) {
	var (
		resultProposal *types.Proposal
		resultStage    *types.ProposalStage
	)
	err := ps.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		proposal, err := ps.proposalRepo.GetByProposalID(ctx, tx, proposalID)
		if err != nil {
			return err
		}
		stage, err := ps.stageRepo.GetByProposalAndNumber(ctx, tx, proposal.ID, stageNumber)
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return err
		}

		// The no-op check runs before the proposal-state check: after the
		// final stage flips the proposal to Completed, a retried request
		// for that stage still returns the existing completion record.
		if stage != nil && stage.State == types.StageCompleted {
			resultProposal = proposal
			resultStage = stage
			return nil
		}

		if proposal.State != types.ProposalInProgress {
			return &apperr.InvalidStateError{Op: "CompleteStage", State: proposal.State.String()}
		}
		if stage == nil {
			return &apperr.PreconditionError{Op: "CompleteStage", Reason: fmt.Sprintf("stage %d does not exist", stageNumber)}
		}

		expected := proposal.CurrentStage
		if expected == 0 {
			expected = 1
		}
		if stageNumber != expected {
			return &apperr.InvalidStateError{
				Op:    "CompleteStage",
				State: fmt.Sprintf("stage %d is next, got %d", expected, stageNumber),
			}
		}

		hasApproved, err := ps.billRepo.HasApprovedForStage(ctx, tx, stage.ID)
		if err != nil {
			return err
		}
		if !hasApproved {
			return &apperr.PreconditionError{
				Op:     "CompleteStage",
				Reason: fmt.Sprintf("no authority-approved bill for stage %d", stageNumber),
			}
		}

		now := time.Now().UTC()
		if err := ps.stageRepo.MarkCompleted(ctx, tx, stage.ID, now); err != nil {
			return err
		}
		stage.State = types.StageCompleted
		stage.CompletedAt = &now

		proposal.CurrentStage = stageNumber + 1
		if proposal.CurrentStage > proposal.TotalStages {
			proposal.CurrentStage = proposal.TotalStages
		}
		if stageNumber >= proposal.TotalStages {
			proposal.State = types.ProposalCompleted
		}
		if err := ps.proposalRepo.Save(ctx, tx, proposal); err != nil {
			return err
		}

		resultProposal = proposal
		resultStage = stage
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	ps.log.Info("Stage completed", "proposal_id", proposalID, "stage", stageNumber,
		"current_stage", resultProposal.CurrentStage, "proposal_state", resultProposal.State.String())
	return resultProposal, resultStage, nil
}
