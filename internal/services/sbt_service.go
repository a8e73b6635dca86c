package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/civicworks/fundflow-backend/internal/apperr"
	"github.com/civicworks/fundflow-backend/internal/logger"
	"github.com/civicworks/fundflow-backend/internal/repos"
	"github.com/civicworks/fundflow-backend/internal/types"
)

type RegisterApplicationInput struct {
	ApplicantAddress  string `json:"applicant_address"`
	VoterHash         string `json:"voter_hash"`
	ApplicationTxHash string `json:"application_tx_hash"`
}

// SBTSyncResult reports one pass over the credential registry on chain.
type SBTSyncResult struct {
	TotalApplicants int `json:"total_applicants"`
	Synced          int `json:"synced"`
	Failed          int `json:"failed"`
}

// SBTService runs the identity-credential workflow. It mirrors the
// pending/approved/rejected lifecycle locally; minting the token on
// chain is an external authority action.
type SBTService interface {
	Register(ctx context.Context, input RegisterApplicationInput) (*types.SBTApplication, error)
	Approve(ctx context.Context, applicantAddress string, nullifier uint64, approvedBy string) (*types.SBTApplication, error)
	Reject(ctx context.Context, applicantAddress, rejectedBy string) (*types.SBTApplication, error)
	Get(ctx context.Context, applicantAddress string) (*types.SBTApplication, error)
	ListByStatus(ctx context.Context, status types.ApplicationStatus) ([]*types.SBTApplication, error)
	SyncApplications(ctx context.Context) (SBTSyncResult, error)
}

type sbtService struct {
	db           *gorm.DB
	log          *logger.Logger
	applications repos.SBTApplicationRepo
	chain        ChainClient
}

func NewSBTService(db *gorm.DB, log *logger.Logger, applications repos.SBTApplicationRepo, chain ChainClient) SBTService {
	return &sbtService{
		db:           db,
		log:          log.With("service", "SBTService"),
		applications: applications,
		chain:        chain,
	}
}

func (ss *sbtService) Register(ctx context.Context, input RegisterApplicationInput) (*types.SBTApplication, error) {
	if input.ApplicantAddress == "" {
		return nil, &apperr.ValidationError{Field: "applicant_address", Reason: "is required"}
	}
	if input.VoterHash == "" {
		return nil, &apperr.ValidationError{Field: "voter_hash", Reason: "is required"}
	}

	var application *types.SBTApplication
	err := ss.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := ss.applications.GetByApplicant(ctx, tx, input.ApplicantAddress)
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return err
		}
		if existing != nil {
			switch existing.Status {
			case types.ApplicationApproved:
				return &apperr.PreconditionError{Op: "register application", Reason: "credential already issued for this address"}
			case types.ApplicationPending:
				return &apperr.PreconditionError{Op: "register application", Reason: "application already pending approval"}
			}
			// A rejected applicant may apply again; the record resets.
			existing.VoterHash = input.VoterHash
			existing.ApplicationTxHash = input.ApplicationTxHash
			existing.Status = types.ApplicationPending
			existing.Nullifier = nil
			existing.ApprovedAt = nil
			existing.ApprovedBy = ""
			existing.AppliedAt = time.Now().UTC()
			if err := ss.applications.Save(ctx, tx, existing); err != nil {
				return err
			}
			application = existing
			return nil
		}

		created, err := ss.applications.Create(ctx, tx, &types.SBTApplication{
			ApplicantAddress:  input.ApplicantAddress,
			VoterHash:         input.VoterHash,
			ApplicationTxHash: input.ApplicationTxHash,
			Status:            types.ApplicationPending,
			AppliedAt:         time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		application = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	ss.log.Info("application registered", "applicant", input.ApplicantAddress)
	return application, nil
}

func (ss *sbtService) Approve(ctx context.Context, applicantAddress string, nullifier uint64, approvedBy string) (*types.SBTApplication, error) {
	var application *types.SBTApplication
	err := ss.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := ss.applications.GetByApplicant(ctx, tx, applicantAddress)
		if err != nil {
			return err
		}
		if existing.Status != types.ApplicationPending {
			return &apperr.PreconditionError{Op: "approve application", Reason: "application is not pending"}
		}

		now := time.Now().UTC()
		existing.Status = types.ApplicationApproved
		existing.Nullifier = &nullifier
		existing.ApprovedAt = &now
		existing.ApprovedBy = approvedBy
		if err := ss.applications.Save(ctx, tx, existing); err != nil {
			return err
		}
		application = existing
		return nil
	})
	if err != nil {
		return nil, err
	}

	ss.log.Info("application approved", "applicant", applicantAddress, "approved_by", approvedBy)
	return application, nil
}

func (ss *sbtService) Reject(ctx context.Context, applicantAddress, rejectedBy string) (*types.SBTApplication, error) {
	var application *types.SBTApplication
	err := ss.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := ss.applications.GetByApplicant(ctx, tx, applicantAddress)
		if err != nil {
			return err
		}
		if existing.Status != types.ApplicationPending {
			return &apperr.PreconditionError{Op: "reject application", Reason: "application is not pending"}
		}

		existing.Status = types.ApplicationRejected
		existing.ApprovedBy = rejectedBy
		if err := ss.applications.Save(ctx, tx, existing); err != nil {
			return err
		}
		application = existing
		return nil
	})
	if err != nil {
		return nil, err
	}

	ss.log.Info("application rejected", "applicant", applicantAddress, "rejected_by", rejectedBy)
	return application, nil
}

func (ss *sbtService) Get(ctx context.Context, applicantAddress string) (*types.SBTApplication, error) {
	return ss.applications.GetByApplicant(ctx, nil, applicantAddress)
}

func (ss *sbtService) ListByStatus(ctx context.Context, status types.ApplicationStatus) ([]*types.SBTApplication, error) {
	return ss.applications.ListByStatus(ctx, nil, status)
}

// SyncApplications walks the on-chain applicant index and pulls in
// applications submitted directly against the contract. One unreadable
// applicant never aborts the pass.
func (ss *sbtService) SyncApplications(ctx context.Context) (SBTSyncResult, error) {
	count, err := ss.chain.ApplicantCount(ctx)
	if err != nil {
		return SBTSyncResult{}, err
	}

	result := SBTSyncResult{TotalApplicants: int(count)}
	for i := uint64(0); i < count; i++ {
		if err := ss.syncApplicant(ctx, i); err != nil {
			ss.log.Warn("applicant sync failed", "index", i, "error", err)
			result.Failed++
			continue
		}
		result.Synced++
	}

	ss.log.Info("application sync complete", "total", result.TotalApplicants, "synced", result.Synced, "failed", result.Failed)
	return result, nil
}

func (ss *sbtService) syncApplicant(ctx context.Context, index uint64) error {
	address, err := ss.chain.GetApplicantByIndex(ctx, index)
	if err != nil {
		return err
	}
	status, err := ss.chain.GetApplicationStatus(ctx, address)
	if err != nil {
		return err
	}
	if !status.HasApplied {
		return nil
	}

	return ss.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := ss.applications.GetByApplicant(ctx, tx, address)
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return err
		}

		if existing == nil {
			voterHash, err := ss.chain.ApplicationHash(ctx, address)
			if err != nil {
				return err
			}
			record := &types.SBTApplication{
				ApplicantAddress: address,
				VoterHash:        voterHash,
				Status:           types.ApplicationPending,
				SyncedFromChain:  true,
				AppliedAt:        time.Now().UTC(),
			}
			if status.IsRegistered {
				record.Status = types.ApplicationApproved
			}
			_, err = ss.applications.Create(ctx, tx, record)
			return err
		}

		// The chain already minted the token; the local record follows.
		if status.IsRegistered && existing.Status != types.ApplicationApproved {
			now := time.Now().UTC()
			existing.Status = types.ApplicationApproved
			existing.ApprovedAt = &now
			existing.SyncedFromChain = true
			return ss.applications.Save(ctx, tx, existing)
		}
		return nil
	})
}
