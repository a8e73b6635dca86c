package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/civicworks/fundflow-backend/internal/logger"
	"github.com/civicworks/fundflow-backend/internal/types"
)

// VerificationLogRepo is append-only: rows are created once per oracle
// attempt and never updated or deleted individually.
type VerificationLogRepo interface {
	Append(ctx context.Context, tx *gorm.DB, entry *types.AIVerificationLog) (*types.AIVerificationLog, error)
	ListByBill(ctx context.Context, tx *gorm.DB, billID uuid.UUID) ([]*types.AIVerificationLog, error)
}

type verificationLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewVerificationLogRepo(db *gorm.DB, baseLog *logger.Logger) VerificationLogRepo {
	return &verificationLogRepo{db: db, log: baseLog.With("repo", "VerificationLogRepo")}
}

func (vr *verificationLogRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return vr.db
}

func (vr *verificationLogRepo) Append(ctx context.Context, tx *gorm.DB, entry *types.AIVerificationLog) (*types.AIVerificationLog, error) {
	if err := vr.conn(tx).WithContext(ctx).Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

func (vr *verificationLogRepo) ListByBill(ctx context.Context, tx *gorm.DB, billID uuid.UUID) ([]*types.AIVerificationLog, error) {
	var results []*types.AIVerificationLog
	if err := vr.conn(tx).WithContext(ctx).
		Where("bill_id = ?", billID).
		Order("timestamp DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
