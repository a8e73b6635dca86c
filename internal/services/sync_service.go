package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/civicworks/fundflow-backend/internal/apperr"
	"github.com/civicworks/fundflow-backend/internal/logger"
	"github.com/civicworks/fundflow-backend/internal/repos"
	"github.com/civicworks/fundflow-backend/internal/types"
)

// SyncResult reports the outcome of reconciling a single proposal.
type SyncResult struct {
	ProposalID   uint64 `json:"proposal_id"`
	Created      bool   `json:"created"`
	StagesSynced int    `json:"stages_synced"`
	StagesFailed int    `json:"stages_failed"`
	Error        string `json:"error,omitempty"`
}

// BatchSyncResult is the report for a full reconciliation pass.
type BatchSyncResult struct {
	Total   int          `json:"total"`
	Synced  int          `json:"synced"`
	Failed  int          `json:"failed"`
	Details []SyncResult `json:"details"`
}

// SyncService reconciles the mirror database against the ledger. The
// ledger is the source of truth for the fields it owns; locally owned
// fields (bill records, authority decisions, completion timestamps)
// are never touched, and local rows are never deleted.
type SyncService interface {
	SyncOne(ctx context.Context, proposalID uint64) (SyncResult, error)
	SyncAll(ctx context.Context) (BatchSyncResult, error)
}

type syncService struct {
	log         *logger.Logger
	chain       ChainClient
	proposals   repos.ProposalRepo
	stages      repos.StageRepo
	concurrency int
}

func NewSyncService(
	log *logger.Logger,
	chain ChainClient,
	proposals repos.ProposalRepo,
	stages repos.StageRepo,
	cfg SyncConfig,
) SyncService {
	concurrency := cfg.BatchConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	return &syncService{
		log:         log.With("service", "SyncService"),
		chain:       chain,
		proposals:   proposals,
		stages:      stages,
		concurrency: concurrency,
	}
}

const ledgerRetryBackoff = 500 * time.Millisecond

// retryLedger runs a ledger read and repeats it once after a short
// pause when the failure is connectivity. Missing ids are final.
func retryLedger[T any](ctx context.Context, read func() (T, error)) (T, error) {
	out, err := read()
	var connErr *apperr.ConnectivityError
	if err == nil || !errors.As(err, &connErr) {
		return out, err
	}
	select {
	case <-ctx.Done():
		return out, err
	case <-time.After(ledgerRetryBackoff):
	}
	return read()
}

func (s *syncService) SyncOne(ctx context.Context, proposalID uint64) (SyncResult, error) {
	result := SyncResult{ProposalID: proposalID}

	info, err := retryLedger(ctx, func() (*LedgerProposal, error) {
		return s.chain.GetProposalInfo(ctx, proposalID)
	})
	if err != nil {
		result.Error = err.Error()
		return result, err
	}

	record := &types.Proposal{
		ProposalID:        proposalID,
		Description:       info.Description,
		RecipientAddress:  info.Recipient,
		TotalAmount:       info.TotalAmount,
		State:             info.State,
		PublicYesVotes:    info.PublicYesVotes,
		PublicNoVotes:     info.PublicNoVotes,
		AuthorityYesVotes: info.AuthorityYesVotes,
		AuthorityNoVotes:  info.AuthorityNoVotes,
		CurrentStage:      info.CurrentStage,
		TotalStages:       info.TotalStages,
	}

	proposal, created, err := s.proposals.UpsertFromLedger(ctx, nil, record)
	if err != nil {
		result.Error = err.Error()
		return result, fmt.Errorf("upsert proposal %d: %w", proposalID, err)
	}
	result.Created = created

	// A failed stage read never aborts the proposal: remaining stages
	// still get reconciled and the miss is counted in the result.
	for stageNumber := uint64(1); stageNumber <= info.TotalStages; stageNumber++ {
		stageInfo, err := retryLedger(ctx, func() (*LedgerStage, error) {
			return s.chain.GetStageInfo(ctx, proposalID, stageNumber)
		})
		if err != nil {
			s.log.Warn("stage sync failed", "proposal_id", proposalID, "stage", stageNumber, "error", err)
			result.StagesFailed++
			continue
		}
		stageRecord := &types.ProposalStage{
			ProposalID:  proposal.ID,
			StageNumber: stageNumber,
			Amount:      stageInfo.Amount,
			State:       stageInfo.State,
			Report:      stageInfo.Report,
			AIReport:    stageInfo.AIReport,
			VoteCount:   stageInfo.VoteCount,
		}
		if _, _, err := s.stages.UpsertFromLedger(ctx, nil, stageRecord); err != nil {
			s.log.Warn("stage upsert failed", "proposal_id", proposalID, "stage", stageNumber, "error", err)
			result.StagesFailed++
			continue
		}
		result.StagesSynced++
	}

	// A proposal with unreadable stages is an incomplete mirror; the
	// batch report counts it as failed even though every reachable
	// stage was written.
	if result.StagesFailed > 0 {
		result.Error = fmt.Sprintf("%d of %d stages failed", result.StagesFailed, info.TotalStages)
	}

	return result, nil
}

func (s *syncService) SyncAll(ctx context.Context) (BatchSyncResult, error) {
	count, err := s.chain.ProposalCount(ctx)
	if err != nil {
		return BatchSyncResult{}, err
	}

	report := BatchSyncResult{Total: int(count)}
	if count == 0 {
		report.Details = []SyncResult{}
		return report, nil
	}

	var mu sync.Mutex
	details := make([]SyncResult, 0, count)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for id := uint64(1); id <= count; id++ {
		proposalID := id
		g.Go(func() error {
			result, err := s.SyncOne(gctx, proposalID)
			if err != nil {
				s.log.Warn("proposal sync failed", "proposal_id", proposalID, "error", err)
			}
			mu.Lock()
			details = append(details, result)
			mu.Unlock()
			// One bad proposal never aborts the batch.
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	sort.Slice(details, func(i, j int) bool { return details[i].ProposalID < details[j].ProposalID })
	for _, d := range details {
		if d.Error != "" {
			report.Failed++
		} else {
			report.Synced++
		}
	}
	report.Details = details

	s.log.Info("reconciliation complete", "total", report.Total, "synced", report.Synced, "failed", report.Failed)
	return report, nil
}
