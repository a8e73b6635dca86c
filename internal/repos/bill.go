package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/civicworks/fundflow-backend/internal/apperr"
	"github.com/civicworks/fundflow-backend/internal/logger"
	"github.com/civicworks/fundflow-backend/internal/types"
)

type BillRepo interface {
	Create(ctx context.Context, tx *gorm.DB, bill *types.Bill) (*types.Bill, error)
	GetByID(ctx context.Context, tx *gorm.DB, billID uuid.UUID) (*types.Bill, error)
	ListByProposal(ctx context.Context, tx *gorm.DB, proposalID uuid.UUID) ([]*types.Bill, error)
	ListPendingApproval(ctx context.Context, tx *gorm.DB) ([]*types.Bill, error)
	CountPendingApproval(ctx context.Context, tx *gorm.DB) (int64, error)
	Count(ctx context.Context, tx *gorm.DB) (int64, error)
	HasApprovedForStage(ctx context.Context, tx *gorm.DB, stageID uuid.UUID) (bool, error)
	Save(ctx context.Context, tx *gorm.DB, bill *types.Bill) error
}

type billRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBillRepo(db *gorm.DB, baseLog *logger.Logger) BillRepo {
	return &billRepo{db: db, log: baseLog.With("repo", "BillRepo")}
}

func (br *billRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return br.db
}

func (br *billRepo) Create(ctx context.Context, tx *gorm.DB, bill *types.Bill) (*types.Bill, error) {
	if err := br.conn(tx).WithContext(ctx).Create(bill).Error; err != nil {
		return nil, err
	}
	return bill, nil
}

func (br *billRepo) GetByID(ctx context.Context, tx *gorm.DB, billID uuid.UUID) (*types.Bill, error) {
	var result types.Bill
	err := br.conn(tx).WithContext(ctx).
		Where("id = ?", billID).
		First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return &result, nil
}

func (br *billRepo) ListByProposal(ctx context.Context, tx *gorm.DB, proposalID uuid.UUID) ([]*types.Bill, error) {
	var results []*types.Bill
	if err := br.conn(tx).WithContext(ctx).
		Where("proposal_id = ?", proposalID).
		Order("uploaded_at DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (br *billRepo) ListPendingApproval(ctx context.Context, tx *gorm.DB) ([]*types.Bill, error) {
	var results []*types.Bill
	if err := br.conn(tx).WithContext(ctx).
		Where("status = ? AND authority_approved = ?", types.BillVerified, false).
		Order("uploaded_at").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (br *billRepo) CountPendingApproval(ctx context.Context, tx *gorm.DB) (int64, error) {
	var count int64
	if err := br.conn(tx).WithContext(ctx).
		Model(&types.Bill{}).
		Where("status = ? AND authority_approved = ?", types.BillVerified, false).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (br *billRepo) Count(ctx context.Context, tx *gorm.DB) (int64, error) {
	var count int64
	if err := br.conn(tx).WithContext(ctx).
		Model(&types.Bill{}).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (br *billRepo) HasApprovedForStage(ctx context.Context, tx *gorm.DB, stageID uuid.UUID) (bool, error) {
	var count int64
	if err := br.conn(tx).WithContext(ctx).
		Model(&types.Bill{}).
		Where("stage_id = ? AND authority_approved = ?", stageID, true).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (br *billRepo) Save(ctx context.Context, tx *gorm.DB, bill *types.Bill) error {
	return br.conn(tx).WithContext(ctx).Save(bill).Error
}
