package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/civicworks/fundflow-backend/internal/logger"
	"github.com/civicworks/fundflow-backend/internal/types"
	"github.com/civicworks/fundflow-backend/internal/utils"
)

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
	serviceLog := log.With("service", "PostgresService")

	postgresHost := utils.GetEnv("POSTGRES_HOST", "localhost", log)
	postgresPort := utils.GetEnv("POSTGRES_PORT", "5432", log)
	postgresUser := utils.GetEnv("POSTGRES_USER", "postgres", log)
	postgresPassword := utils.GetEnv("POSTGRES_PASSWORD", "", log)
	postgresName := utils.GetEnv("POSTGRES_NAME", "fundflow", log)

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", postgresUser, postgresPassword, postgresHost, postgresPort, postgresName)

	serviceLog.Info("Connecting to Postgres...")
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		serviceLog.Error("Failed to connect to Postgres", "error", err)
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}

	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		serviceLog.Error("Failed to enable uuid-ossp extension", "error", err)
		return nil, fmt.Errorf("failed to enable uuid-ossp extension: %w", err)
	}

	return &PostgresService{db: db, log: serviceLog}, nil
}

func (s *PostgresService) DB() *gorm.DB {
	return s.db
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	err := s.db.AutoMigrate(
		&types.Proposal{},
		&types.ProposalStage{},
		&types.Bill{},
		&types.AIVerificationLog{},
		&types.SBTApplication{},
	)
	if err != nil {
		s.log.Error("Auto migration failed for postgres tables", "error", err)
		return err
	}

	// Ownership is a strict chain: proposal -> stages -> bills -> logs.
	// Deleting a proposal removes everything it owns.
	s.log.Info("Configuring foreign key relationships for postgres tables...")
	constraints := []struct {
		name string
		stmt string
	}{
		{
			name: "fk_proposal_stage_proposal_id",
			stmt: `
        ALTER TABLE "proposal_stage"
        ADD CONSTRAINT "fk_proposal_stage_proposal_id"
        FOREIGN KEY ("proposal_id")
        REFERENCES "proposal"("id")
        ON DELETE CASCADE
      `,
		},
		{
			name: "fk_bill_proposal_id",
			stmt: `
        ALTER TABLE "bill"
        ADD CONSTRAINT "fk_bill_proposal_id"
        FOREIGN KEY ("proposal_id")
        REFERENCES "proposal"("id")
        ON DELETE CASCADE
      `,
		},
		{
			name: "fk_bill_stage_id",
			stmt: `
        ALTER TABLE "bill"
        ADD CONSTRAINT "fk_bill_stage_id"
        FOREIGN KEY ("stage_id")
        REFERENCES "proposal_stage"("id")
        ON DELETE CASCADE
      `,
		},
		{
			name: "fk_ai_verification_log_bill_id",
			stmt: `
        ALTER TABLE "ai_verification_log"
        ADD CONSTRAINT "fk_ai_verification_log_bill_id"
        FOREIGN KEY ("bill_id")
        REFERENCES "bill"("id")
        ON DELETE CASCADE
      `,
		},
	}
	for _, c := range constraints {
		var count int64
		if err := s.db.Raw(
			`SELECT COUNT(*) FROM pg_constraint WHERE conname = ?`, c.name,
		).Scan(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		if err := s.db.Exec(c.stmt).Error; err != nil {
			s.log.Error("Failed to add foreign key constraint", "constraint", c.name, "error", err)
			return err
		}
	}
	return nil
}
