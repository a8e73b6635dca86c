package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/civicworks/fundflow-backend/internal/apperr"
	"github.com/civicworks/fundflow-backend/internal/logger"
	"github.com/civicworks/fundflow-backend/internal/types"
)

// ledgerOwnedStageColumns mirrors the field ownership split on stages.
// completed_at is locally owned; the ledger never reports it.
var ledgerOwnedStageColumns = []string{
	"amount",
	"state",
	"report",
	"ai_report",
	"vote_count",
}

type StageRepo interface {
	Create(ctx context.Context, tx *gorm.DB, stage *types.ProposalStage) (*types.ProposalStage, error)
	GetByProposalAndNumber(ctx context.Context, tx *gorm.DB, proposalID uuid.UUID, stageNumber uint64) (*types.ProposalStage, error)
	ListByProposal(ctx context.Context, tx *gorm.DB, proposalID uuid.UUID) ([]*types.ProposalStage, error)
	Save(ctx context.Context, tx *gorm.DB, stage *types.ProposalStage) error
	MarkCompleted(ctx context.Context, tx *gorm.DB, stageID uuid.UUID, completedAt time.Time) error
	UpsertFromLedger(ctx context.Context, tx *gorm.DB, record *types.ProposalStage) (*types.ProposalStage, bool, error)
}

type stageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStageRepo(db *gorm.DB, baseLog *logger.Logger) StageRepo {
	return &stageRepo{db: db, log: baseLog.With("repo", "StageRepo")}
}

func (sr *stageRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return sr.db
}

func (sr *stageRepo) Create(ctx context.Context, tx *gorm.DB, stage *types.ProposalStage) (*types.ProposalStage, error) {
	if err := sr.conn(tx).WithContext(ctx).Create(stage).Error; err != nil {
		return nil, err
	}
	return stage, nil
}

func (sr *stageRepo) GetByProposalAndNumber(ctx context.Context, tx *gorm.DB, proposalID uuid.UUID, stageNumber uint64) (*types.ProposalStage, error) {
	var result types.ProposalStage
	err := sr.conn(tx).WithContext(ctx).
		Where("proposal_id = ? AND stage_number = ?", proposalID, stageNumber).
		First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return &result, nil
}

func (sr *stageRepo) ListByProposal(ctx context.Context, tx *gorm.DB, proposalID uuid.UUID) ([]*types.ProposalStage, error) {
	var results []*types.ProposalStage
	if err := sr.conn(tx).WithContext(ctx).
		Where("proposal_id = ?", proposalID).
		Order("stage_number").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (sr *stageRepo) Save(ctx context.Context, tx *gorm.DB, stage *types.ProposalStage) error {
	return sr.conn(tx).WithContext(ctx).Save(stage).Error
}

func (sr *stageRepo) MarkCompleted(ctx context.Context, tx *gorm.DB, stageID uuid.UUID, completedAt time.Time) error {
	return sr.conn(tx).WithContext(ctx).
		Model(&types.ProposalStage{}).
		Where("id = ?", stageID).
		Updates(map[string]any{
			"state":        types.StageCompleted,
			"completed_at": completedAt,
		}).Error
}

func (sr *stageRepo) UpsertFromLedger(ctx context.Context, tx *gorm.DB, record *types.ProposalStage) (*types.ProposalStage, bool, error) {
	conn := sr.conn(tx).WithContext(ctx)

	var existing types.ProposalStage
	err := conn.
		Where("proposal_id = ? AND stage_number = ?", record.ProposalID, record.StageNumber).
		First(&existing).Error
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
		Select(ledgerOwnedStageColumns).
		Updates(record).Error; err != nil {
		return nil, false, err
	}

	existing.Amount = record.Amount
	existing.State = record.State
	existing.Report = record.Report
	existing.AIReport = record.AIReport
	existing.VoteCount = record.VoteCount
	return &existing, false, nil
}
