package repos

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/civicworks/fundflow-backend/internal/logger"
	"github.com/civicworks/fundflow-backend/internal/types"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap test db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(
		&types.Proposal{},
		&types.ProposalStage{},
		&types.Bill{},
		&types.AIVerificationLog{},
		&types.SBTApplication{},
	); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

func ledgerRecord(id uint64) *types.Proposal {
	return &types.Proposal{
		ProposalID:       id,
		Description:      "bridge maintenance",
		RecipientAddress: "0xRecipient",
		TotalAmount:      5000,
		State:            types.ProposalPublicVoting,
		PublicYesVotes:   3,
		PublicNoVotes:    1,
		CurrentStage:     0,
		TotalStages:      3,
	}
}

func TestUpsertFromLedger_CreateThenUpdate(t *testing.T) {
	db := newTestDB(t)
	repo := NewProposalRepo(db, logger.NewNop())
	ctx := context.Background()

	first, created, err := repo.UpsertFromLedger(ctx, nil, ledgerRecord(1))
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if !created {
		t.Fatalf("expected created=true on first upsert")
	}

	update := ledgerRecord(1)
	update.PublicYesVotes = 9
	update.State = types.ProposalApproved
	second, created, err := repo.UpsertFromLedger(ctx, nil, update)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if created {
		t.Fatalf("expected created=false on second upsert")
	}
	if second.ID != first.ID {
		t.Fatalf("upsert must keep the same row, got %s vs %s", second.ID, first.ID)
	}
	if second.PublicYesVotes != 9 || second.State != types.ProposalApproved {
		t.Fatalf("ledger-owned fields not updated: %+v", second)
	}

	var count int64
	if err := db.Model(&types.Proposal{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one row, got %d", count)
	}
}

func TestUpsertFromLedger_IsIdempotent(t *testing.T) {
	db := newTestDB(t)
	repo := NewProposalRepo(db, logger.NewNop())
	ctx := context.Background()

	if _, _, err := repo.UpsertFromLedger(ctx, nil, ledgerRecord(1)); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	again, _, err := repo.UpsertFromLedger(ctx, nil, ledgerRecord(1))
	if err != nil {
		t.Fatalf("repeat upsert: %v", err)
	}

	stored, err := repo.GetByProposalID(ctx, nil, 1)
	if err != nil {
		t.Fatalf("GetByProposalID: %v", err)
	}
	if stored.Description != again.Description ||
		stored.PublicYesVotes != again.PublicYesVotes ||
		stored.State != again.State ||
		stored.CurrentStage != again.CurrentStage {
		t.Fatalf("repeat upsert drifted: stored=%+v returned=%+v", stored, again)
	}
}

func TestUpsertFromLedger_DoesNotDeleteLocalOnlyRows(t *testing.T) {
	db := newTestDB(t)
	repo := NewProposalRepo(db, logger.NewNop())
	ctx := context.Background()

	// A row the backend created locally, not yet confirmed by the ledger.
	if _, err := repo.Create(ctx, nil, &types.Proposal{
		ProposalID:  7,
		Description: "local only",
		State:       types.ProposalInProgress,
		TotalStages: 1,
	}); err != nil {
		t.Fatalf("create local row: %v", err)
	}

	if _, _, err := repo.UpsertFromLedger(ctx, nil, ledgerRecord(1)); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if _, err := repo.GetByProposalID(ctx, nil, 7); err != nil {
		t.Fatalf("local-only row must survive reconciliation: %v", err)
	}
}
