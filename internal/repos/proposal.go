package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/civicworks/fundflow-backend/internal/apperr"
	"github.com/civicworks/fundflow-backend/internal/logger"
	"github.com/civicworks/fundflow-backend/internal/types"
)

// ledgerOwnedProposalColumns are the columns the reconciler may overwrite.
// Everything else on a proposal row is locally owned and survives syncs.
var ledgerOwnedProposalColumns = []string{
	"description",
	"recipient_address",
	"total_amount",
	"state",
	"authority_yes_votes",
	"authority_no_votes",
	"public_yes_votes",
	"public_no_votes",
	"current_stage",
	"total_stages",
}

type ProposalRepo interface {
	Create(ctx context.Context, tx *gorm.DB, proposal *types.Proposal) (*types.Proposal, error)
	GetByProposalID(ctx context.Context, tx *gorm.DB, proposalID uint64) (*types.Proposal, error)
	List(ctx context.Context, tx *gorm.DB) ([]*types.Proposal, error)
	ListByStates(ctx context.Context, tx *gorm.DB, states []types.ProposalState) ([]*types.Proposal, error)
	CountByState(ctx context.Context, tx *gorm.DB, state types.ProposalState) (int64, error)
	CountByStates(ctx context.Context, tx *gorm.DB, states []types.ProposalState) (int64, error)
	Count(ctx context.Context, tx *gorm.DB) (int64, error)
	Save(ctx context.Context, tx *gorm.DB, proposal *types.Proposal) error
	Delete(ctx context.Context, tx *gorm.DB, proposalID uint64) error
	UpsertFromLedger(ctx context.Context, tx *gorm.DB, record *types.Proposal) (*types.Proposal, bool, error)
}

type proposalRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProposalRepo(db *gorm.DB, baseLog *logger.Logger) ProposalRepo {
	return &proposalRepo{db: db, log: baseLog.With("repo", "ProposalRepo")}
}

func (pr *proposalRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return pr.db
}

func (pr *proposalRepo) Create(ctx context.Context, tx *gorm.DB, proposal *types.Proposal) (*types.Proposal, error) {
	if err := pr.conn(tx).WithContext(ctx).Create(proposal).Error; err != nil {
		return nil, err
	}
	return proposal, nil
}

func (pr *proposalRepo) GetByProposalID(ctx context.Context, tx *gorm.DB, proposalID uint64) (*types.Proposal, error) {
	var result types.Proposal
	err := pr.conn(tx).WithContext(ctx).
		Where("proposal_id = ?", proposalID).
		First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return &result, nil
}

func (pr *proposalRepo) List(ctx context.Context, tx *gorm.DB) ([]*types.Proposal, error) {
	var results []*types.Proposal
	if err := pr.conn(tx).WithContext(ctx).
		Order("proposal_id").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (pr *proposalRepo) ListByStates(ctx context.Context, tx *gorm.DB, states []types.ProposalState) ([]*types.Proposal, error) {
	var results []*types.Proposal
	if len(states) == 0 {
		return results, nil
	}
	if err := pr.conn(tx).WithContext(ctx).
		Where("state IN ?", states).
		Order("proposal_id").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (pr *proposalRepo) CountByState(ctx context.Context, tx *gorm.DB, state types.ProposalState) (int64, error) {
	var count int64
	if err := pr.conn(tx).WithContext(ctx).
		Model(&types.Proposal{}).
		Where("state = ?", state).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (pr *proposalRepo) CountByStates(ctx context.Context, tx *gorm.DB, states []types.ProposalState) (int64, error) {
	var count int64
	if len(states) == 0 {
		return 0, nil
	}
	if err := pr.conn(tx).WithContext(ctx).
		Model(&types.Proposal{}).
		Where("state IN ?", states).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (pr *proposalRepo) Count(ctx context.Context, tx *gorm.DB) (int64, error) {
	var count int64
	if err := pr.conn(tx).WithContext(ctx).
		Model(&types.Proposal{}).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (pr *proposalRepo) Save(ctx context.Context, tx *gorm.DB, proposal *types.Proposal) error {
	return pr.conn(tx).WithContext(ctx).Save(proposal).Error
}

func (pr *proposalRepo) Delete(ctx context.Context, tx *gorm.DB, proposalID uint64) error {
	return pr.conn(tx).WithContext(ctx).
		Where("proposal_id = ?", proposalID).
		Delete(&types.Proposal{}).Error
}

// UpsertFromLedger creates the mirror row if absent, otherwise overwrites
// the ledger-owned columns only. Local-only rows are never deleted here;
// they may represent writes the ledger has not confirmed yet.
func (pr *proposalRepo) UpsertFromLedger(ctx context.Context, tx *gorm.DB, record *types.Proposal) (*types.Proposal, bool, error) {
	conn := pr.conn(tx).WithContext(ctx)

	var existing types.Proposal
	err := conn.Where("proposal_id = ?", record.ProposalID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if createErr := conn.Create(record).Error; createErr != nil {
			return nil, false, createErr
		}
		return record, true, nil
	}
	if err != nil {
		return nil, false, err
	}

	if err := conn.Model(&existing).
		Select(ledgerOwnedProposalColumns).
		Updates(record).Error; err != nil {
		return nil, false, err
	}

	existing.Description = record.Description
	existing.RecipientAddress = record.RecipientAddress
	existing.TotalAmount = record.TotalAmount
	existing.State = record.State
	existing.AuthorityYesVotes = record.AuthorityYesVotes
	existing.AuthorityNoVotes = record.AuthorityNoVotes
	existing.PublicYesVotes = record.PublicYesVotes
	existing.PublicNoVotes = record.PublicNoVotes
	existing.CurrentStage = record.CurrentStage
	existing.TotalStages = record.TotalStages
	return &existing, false, nil
}
