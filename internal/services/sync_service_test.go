package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/civicworks/fundflow-backend/internal/apperr"
	"github.com/civicworks/fundflow-backend/internal/logger"
	"github.com/civicworks/fundflow-backend/internal/repos"
	"github.com/civicworks/fundflow-backend/internal/types"
)

type fakeChain struct {
	proposals   map[uint64]*LedgerProposal
	stages      map[string]*LedgerStage
	applicants  []string
	statuses    map[string]LedgerApplicationStatus
	hashes      map[string]string
	failStages  map[string]bool
	failIndex   int
	countErr    error
	proposalErr map[uint64]error
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		proposals:   map[uint64]*LedgerProposal{},
		stages:      map[string]*LedgerStage{},
		statuses:    map[string]LedgerApplicationStatus{},
		hashes:      map[string]string{},
		failStages:  map[string]bool{},
		failIndex:   -1,
		proposalErr: map[uint64]error{},
	}
}

func stageKey(proposalID, stageNumber uint64) string {
	return fmt.Sprintf("%d/%d", proposalID, stageNumber)
}

func (f *fakeChain) ProposalCount(context.Context) (uint64, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return uint64(len(f.proposals)), nil
}

func (f *fakeChain) GetProposalInfo(_ context.Context, id uint64) (*LedgerProposal, error) {
	if err := f.proposalErr[id]; err != nil {
		return nil, err
	}
	p, ok := f.proposals[id]
	if !ok {
		return nil, &apperr.NotFoundOnLedgerError{Resource: "proposal", ID: id}
	}
	cp := *p
	return &cp, nil
}

func (f *fakeChain) GetStageInfo(_ context.Context, id, n uint64) (*LedgerStage, error) {
	if f.failStages[stageKey(id, n)] {
		return nil, &apperr.ConnectivityError{Service: "ledger", Err: errors.New("stage read timeout")}
	}
	s, ok := f.stages[stageKey(id, n)]
	if !ok {
		return nil, &apperr.NotFoundOnLedgerError{Resource: "stage", ID: n}
	}
	cp := *s
	return &cp, nil
}

func (f *fakeChain) ApplicantCount(context.Context) (uint64, error) {
	return uint64(len(f.applicants)), nil
}

func (f *fakeChain) GetApplicantByIndex(_ context.Context, i uint64) (string, error) {
	if f.failIndex >= 0 && i == uint64(f.failIndex) {
		return "", &apperr.ConnectivityError{Service: "ledger", Err: errors.New("index read timeout")}
	}
	if i >= uint64(len(f.applicants)) {
		return "", &apperr.ConnectivityError{Service: "ledger", Err: errors.New("index out of range")}
	}
	return f.applicants[i], nil
}

func (f *fakeChain) GetApplicationStatus(_ context.Context, addr string) (LedgerApplicationStatus, error) {
	return f.statuses[addr], nil
}

func (f *fakeChain) ApplicationHash(_ context.Context, addr string) (string, error) {
	return f.hashes[addr], nil
}

func (f *fakeChain) addProposal(id uint64, totalStages uint64) {
	f.proposals[id] = &LedgerProposal{
		Description:    fmt.Sprintf("proposal %d", id),
		Recipient:      "0xRecipient",
		TotalAmount:    1000,
		State:          types.ProposalInProgress,
		PublicYesVotes: 10,
		PublicNoVotes:  2,
		CurrentStage:   1,
		TotalStages:    totalStages,
	}
	for n := uint64(1); n <= totalStages; n++ {
		f.stages[stageKey(id, n)] = &LedgerStage{
			Amount:    100,
			State:     types.StageNotStarted,
			VoteCount: 3,
		}
	}
}

type syncFixture struct {
	chain     *fakeChain
	proposals repos.ProposalRepo
	stages    repos.StageRepo
	service   SyncService
}

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()
	db := newTestDB(t)
	log := logger.NewNop()
	chain := newFakeChain()
	proposals := repos.NewProposalRepo(db, log)
	stages := repos.NewStageRepo(db, log)
	return &syncFixture{
		chain:     chain,
		proposals: proposals,
		stages:    stages,
		service:   NewSyncService(log, chain, proposals, stages, SyncConfig{BatchConcurrency: 2}),
	}
}

func TestSyncOne_CreatesMirrorRows(t *testing.T) {
	f := newSyncFixture(t)
	f.chain.addProposal(1, 3)

	result, err := f.service.SyncOne(context.Background(), 1)
	if err != nil {
		t.Fatalf("SyncOne: %v", err)
	}
	if !result.Created {
		t.Fatalf("expected created=true on first sync")
	}
	if result.StagesSynced != 3 || result.StagesFailed != 0 {
		t.Fatalf("expected 3 stages synced, got %+v", result)
	}

	proposal, err := f.proposals.GetByProposalID(context.Background(), nil, 1)
	if err != nil {
		t.Fatalf("mirror row missing: %v", err)
	}
	stages, err := f.stages.ListByProposal(context.Background(), nil, proposal.ID)
	if err != nil {
		t.Fatalf("ListByProposal: %v", err)
	}
	if len(stages) != 3 {
		t.Fatalf("expected 3 stage rows, got %d", len(stages))
	}
}

func TestSyncOne_SecondRunUpdatesWithoutDuplicates(t *testing.T) {
	f := newSyncFixture(t)
	f.chain.addProposal(1, 2)

	if _, err := f.service.SyncOne(context.Background(), 1); err != nil {
		t.Fatalf("first SyncOne: %v", err)
	}

	f.chain.proposals[1].PublicYesVotes = 42
	f.chain.stages[stageKey(1, 1)].State = types.StageCompleted

	result, err := f.service.SyncOne(context.Background(), 1)
	if err != nil {
		t.Fatalf("second SyncOne: %v", err)
	}
	if result.Created {
		t.Fatalf("second sync must update, not create")
	}

	proposal, err := f.proposals.GetByProposalID(context.Background(), nil, 1)
	if err != nil {
		t.Fatalf("GetByProposalID: %v", err)
	}
	if proposal.PublicYesVotes != 42 {
		t.Fatalf("ledger tallies must win, got %d", proposal.PublicYesVotes)
	}
	stages, err := f.stages.ListByProposal(context.Background(), nil, proposal.ID)
	if err != nil {
		t.Fatalf("ListByProposal: %v", err)
	}
	if len(stages) != 2 {
		t.Fatalf("repeat sync must not duplicate stages, got %d", len(stages))
	}
	if stages[0].State != types.StageCompleted {
		t.Fatalf("stage state not refreshed: %v", stages[0].State)
	}
}

func TestSyncOne_PreservesLocallyOwnedFields(t *testing.T) {
	f := newSyncFixture(t)
	f.chain.addProposal(1, 1)

	if _, err := f.service.SyncOne(context.Background(), 1); err != nil {
		t.Fatalf("SyncOne: %v", err)
	}

	proposal, err := f.proposals.GetByProposalID(context.Background(), nil, 1)
	if err != nil {
		t.Fatalf("GetByProposalID: %v", err)
	}
	stages, err := f.stages.ListByProposal(context.Background(), nil, proposal.ID)
	if err != nil {
		t.Fatalf("ListByProposal: %v", err)
	}
	completedAt := stages[0].CreatedAt
	if err := f.stages.MarkCompleted(context.Background(), nil, stages[0].ID, completedAt); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}

	if _, err := f.service.SyncOne(context.Background(), 1); err != nil {
		t.Fatalf("resync: %v", err)
	}
	stages, err = f.stages.ListByProposal(context.Background(), nil, proposal.ID)
	if err != nil {
		t.Fatalf("ListByProposal: %v", err)
	}
	if stages[0].CompletedAt == nil {
		t.Fatalf("completed_at is locally owned and must survive a sync")
	}
}

func TestSyncAll_OneBadProposalNeverAbortsBatch(t *testing.T) {
	f := newSyncFixture(t)
	for id := uint64(1); id <= 5; id++ {
		f.chain.addProposal(id, 2)
	}
	f.chain.proposalErr[3] = &apperr.ConnectivityError{Service: "ledger", Err: errors.New("rpc timeout")}

	report, err := f.service.SyncAll(context.Background())
	if err != nil {
		t.Fatalf("SyncAll: %v", err)
	}
	if report.Total != 5 {
		t.Fatalf("expected total 5, got %d", report.Total)
	}
	if report.Synced != 4 || report.Failed != 1 {
		t.Fatalf("expected 4 synced / 1 failed, got %d / %d", report.Synced, report.Failed)
	}
	if len(report.Details) != 5 {
		t.Fatalf("expected a detail row per proposal, got %d", len(report.Details))
	}
	for i, d := range report.Details {
		if d.ProposalID != uint64(i+1) {
			t.Fatalf("details must be sorted by proposal id, got %v", report.Details)
		}
	}
	if report.Details[2].Error == "" {
		t.Fatalf("failed proposal must carry its error")
	}

	if _, err := f.proposals.GetByProposalID(context.Background(), nil, 3); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("failed proposal must not create a mirror row, got %v", err)
	}
	if _, err := f.proposals.GetByProposalID(context.Background(), nil, 5); err != nil {
		t.Fatalf("later proposals must still sync: %v", err)
	}
}

func TestSyncAll_PartialStageFailureMarksProposalFailed(t *testing.T) {
	f := newSyncFixture(t)
	f.chain.addProposal(1, 3)
	f.chain.failStages[stageKey(1, 2)] = true

	report, err := f.service.SyncAll(context.Background())
	if err != nil {
		t.Fatalf("SyncAll: %v", err)
	}
	if report.Synced != 0 || report.Failed != 1 {
		t.Fatalf("an unreadable stage must fail the proposal, got %+v", report)
	}
	if report.Details[0].Error == "" {
		t.Fatalf("the failed proposal must carry its error")
	}
	// The reachable stages were still written before the miss was
	// reported.
	if report.Details[0].StagesSynced != 2 || report.Details[0].StagesFailed != 1 {
		t.Fatalf("expected 2 synced / 1 failed stage, got %+v", report.Details[0])
	}
	proposal, err := f.proposals.GetByProposalID(context.Background(), nil, 1)
	if err != nil {
		t.Fatalf("proposal row must still be mirrored: %v", err)
	}
	if _, err := f.stages.GetByProposalAndNumber(context.Background(), nil, proposal.ID, 3); err != nil {
		t.Fatalf("stage after the miss must still sync: %v", err)
	}
}

func TestSyncAll_CountFailurePropagates(t *testing.T) {
	f := newSyncFixture(t)
	f.chain.countErr = &apperr.ConnectivityError{Service: "ledger", Err: errors.New("dial refused")}

	_, err := f.service.SyncAll(context.Background())
	var connErr *apperr.ConnectivityError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected ConnectivityError, got %v", err)
	}
}
