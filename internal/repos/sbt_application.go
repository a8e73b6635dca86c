package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/civicworks/fundflow-backend/internal/apperr"
	"github.com/civicworks/fundflow-backend/internal/logger"
	"github.com/civicworks/fundflow-backend/internal/types"
)

type SBTApplicationRepo interface {
	Create(ctx context.Context, tx *gorm.DB, application *types.SBTApplication) (*types.SBTApplication, error)
	GetByApplicant(ctx context.Context, tx *gorm.DB, applicantAddress string) (*types.SBTApplication, error)
	ListByStatus(ctx context.Context, tx *gorm.DB, status types.ApplicationStatus) ([]*types.SBTApplication, error)
	CountByStatus(ctx context.Context, tx *gorm.DB, status types.ApplicationStatus) (int64, error)
	Save(ctx context.Context, tx *gorm.DB, application *types.SBTApplication) error
}

type sbtApplicationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSBTApplicationRepo(db *gorm.DB, baseLog *logger.Logger) SBTApplicationRepo {
	return &sbtApplicationRepo{db: db, log: baseLog.With("repo", "SBTApplicationRepo")}
}

func (ar *sbtApplicationRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return ar.db
}

func (ar *sbtApplicationRepo) Create(ctx context.Context, tx *gorm.DB, application *types.SBTApplication) (*types.SBTApplication, error) {
	if err := ar.conn(tx).WithContext(ctx).Create(application).Error; err != nil {
		return nil, err
	}
	return application, nil
}

func (ar *sbtApplicationRepo) GetByApplicant(ctx context.Context, tx *gorm.DB, applicantAddress string) (*types.SBTApplication, error) {
	var result types.SBTApplication
	err := ar.conn(tx).WithContext(ctx).
		Where("applicant_address = ?", applicantAddress).
		First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return &result, nil
}

func (ar *sbtApplicationRepo) ListByStatus(ctx context.Context, tx *gorm.DB, status types.ApplicationStatus) ([]*types.SBTApplication, error) {
	var results []*types.SBTApplication
	if err := ar.conn(tx).WithContext(ctx).
		Where("status = ?", status).
		Order("applied_at DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (ar *sbtApplicationRepo) CountByStatus(ctx context.Context, tx *gorm.DB, status types.ApplicationStatus) (int64, error) {
	var count int64
	if err := ar.conn(tx).WithContext(ctx).
		Model(&types.SBTApplication{}).
		Where("status = ?", status).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (ar *sbtApplicationRepo) Save(ctx context.Context, tx *gorm.DB, application *types.SBTApplication) error {
	return ar.conn(tx).WithContext(ctx).Save(application).Error
}
