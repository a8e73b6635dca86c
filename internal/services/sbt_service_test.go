package services

import (
	"context"
	"errors"
	"testing"

	"gorm.io/gorm"

	"github.com/civicworks/fundflow-backend/internal/apperr"
	"github.com/civicworks/fundflow-backend/internal/logger"
	"github.com/civicworks/fundflow-backend/internal/repos"
	"github.com/civicworks/fundflow-backend/internal/types"
)

type sbtFixture struct {
	db           *gorm.DB
	chain        *fakeChain
	applications repos.SBTApplicationRepo
	service      SBTService
}

func newSBTFixture(t *testing.T) *sbtFixture {
	t.Helper()
	db := newTestDB(t)
	log := logger.NewNop()
	chain := newFakeChain()
	applications := repos.NewSBTApplicationRepo(db, log)
	return &sbtFixture{
		db:           db,
		chain:        chain,
		applications: applications,
		service:      NewSBTService(db, log, applications, chain),
	}
}

func registerInput(addr string) RegisterApplicationInput {
	return RegisterApplicationInput{
		ApplicantAddress:  addr,
		VoterHash:         "0xabc123",
		ApplicationTxHash: "0xtx1",
	}
}

func TestRegister_CreatesPendingApplication(t *testing.T) {
	f := newSBTFixture(t)

	app, err := f.service.Register(context.Background(), registerInput("0xAlice"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if app.Status != types.ApplicationPending {
		t.Fatalf("expected pending, got %s", app.Status)
	}

	pending, err := f.service.ListByStatus(context.Background(), types.ApplicationPending)
	if err != nil {
		t.Fatalf("ListByStatus: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected one pending application, got %d", len(pending))
	}
}

func TestRegister_ValidatesInput(t *testing.T) {
	f := newSBTFixture(t)

	_, err := f.service.Register(context.Background(), RegisterApplicationInput{VoterHash: "0xabc"})
	var valErr *apperr.ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("expected ValidationError for missing address, got %v", err)
	}

	_, err = f.service.Register(context.Background(), RegisterApplicationInput{ApplicantAddress: "0xAlice"})
	if !errors.As(err, &valErr) {
		t.Fatalf("expected ValidationError for missing voter hash, got %v", err)
	}
}

func TestRegister_DuplicateGuards(t *testing.T) {
	f := newSBTFixture(t)

	if _, err := f.service.Register(context.Background(), registerInput("0xAlice")); err != nil {
		t.Fatalf("Register: %v", err)
	}

	_, err := f.service.Register(context.Background(), registerInput("0xAlice"))
	var preErr *apperr.PreconditionError
	if !errors.As(err, &preErr) {
		t.Fatalf("expected PreconditionError for pending duplicate, got %v", err)
	}

	if _, err := f.service.Approve(context.Background(), "0xAlice", 7, "0xAdmin"); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	_, err = f.service.Register(context.Background(), registerInput("0xAlice"))
	if !errors.As(err, &preErr) {
		t.Fatalf("expected PreconditionError for approved duplicate, got %v", err)
	}
}

func TestRegister_RejectedApplicantMayReapply(t *testing.T) {
	f := newSBTFixture(t)

	if _, err := f.service.Register(context.Background(), registerInput("0xAlice")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := f.service.Reject(context.Background(), "0xAlice", "0xAdmin"); err != nil {
		t.Fatalf("Reject: %v", err)
	}

	app, err := f.service.Register(context.Background(), registerInput("0xAlice"))
	if err != nil {
		t.Fatalf("re-register after rejection: %v", err)
	}
	if app.Status != types.ApplicationPending {
		t.Fatalf("expected pending after re-application, got %s", app.Status)
	}
	if app.ApprovedBy != "" {
		t.Fatalf("re-application must reset approval metadata")
	}
}

func TestApprove_RecordsNullifierAndApprover(t *testing.T) {
	f := newSBTFixture(t)

	if _, err := f.service.Register(context.Background(), registerInput("0xAlice")); err != nil {
		t.Fatalf("Register: %v", err)
	}

	app, err := f.service.Approve(context.Background(), "0xAlice", 99, "0xAdmin")
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if app.Status != types.ApplicationApproved {
		t.Fatalf("expected approved, got %s", app.Status)
	}
	if app.Nullifier == nil || *app.Nullifier != 99 {
		t.Fatalf("expected nullifier 99, got %v", app.Nullifier)
	}
	if app.ApprovedBy != "0xAdmin" || app.ApprovedAt == nil {
		t.Fatalf("approval metadata not recorded: %+v", app)
	}

	// A second approval is a state error, not a silent overwrite.
	_, err = f.service.Approve(context.Background(), "0xAlice", 100, "0xAdmin")
	var preErr *apperr.PreconditionError
	if !errors.As(err, &preErr) {
		t.Fatalf("expected PreconditionError on double approve, got %v", err)
	}
}

func TestApprove_UnknownApplicant(t *testing.T) {
	f := newSBTFixture(t)
	_, err := f.service.Approve(context.Background(), "0xNobody", 1, "0xAdmin")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSyncApplications_PullsChainApplicants(t *testing.T) {
	f := newSBTFixture(t)
	f.chain.applicants = []string{"0xAlice", "0xBob", "0xCarol"}
	f.chain.statuses["0xAlice"] = LedgerApplicationStatus{HasApplied: true, IsRegistered: false}
	f.chain.statuses["0xBob"] = LedgerApplicationStatus{HasApplied: true, IsRegistered: true}
	f.chain.statuses["0xCarol"] = LedgerApplicationStatus{HasApplied: false}
	f.chain.hashes["0xAlice"] = "0xhash-alice"
	f.chain.hashes["0xBob"] = "0xhash-bob"

	result, err := f.service.SyncApplications(context.Background())
	if err != nil {
		t.Fatalf("SyncApplications: %v", err)
	}
	if result.TotalApplicants != 3 || result.Failed != 0 {
		t.Fatalf("unexpected result %+v", result)
	}

	alice, err := f.service.Get(context.Background(), "0xAlice")
	if err != nil {
		t.Fatalf("Get alice: %v", err)
	}
	if alice.Status != types.ApplicationPending || !alice.SyncedFromChain {
		t.Fatalf("expected synced pending record, got %+v", alice)
	}
	if alice.VoterHash != "0xhash-alice" {
		t.Fatalf("voter hash not pulled from chain: %q", alice.VoterHash)
	}

	bob, err := f.service.Get(context.Background(), "0xBob")
	if err != nil {
		t.Fatalf("Get bob: %v", err)
	}
	if bob.Status != types.ApplicationApproved {
		t.Fatalf("registered applicant must mirror as approved, got %s", bob.Status)
	}

	if _, err := f.service.Get(context.Background(), "0xCarol"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("applicant without application must not be mirrored, got %v", err)
	}
}

func TestSyncApplications_ChainRegistrationUpdatesLocalPending(t *testing.T) {
	f := newSBTFixture(t)
	if _, err := f.service.Register(context.Background(), registerInput("0xAlice")); err != nil {
		t.Fatalf("Register: %v", err)
	}

	f.chain.applicants = []string{"0xAlice"}
	f.chain.statuses["0xAlice"] = LedgerApplicationStatus{HasApplied: true, IsRegistered: true}

	if _, err := f.service.SyncApplications(context.Background()); err != nil {
		t.Fatalf("SyncApplications: %v", err)
	}

	alice, err := f.service.Get(context.Background(), "0xAlice")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if alice.Status != types.ApplicationApproved {
		t.Fatalf("chain registration must promote the local record, got %s", alice.Status)
	}
}

func TestSyncApplications_BadIndexNeverAbortsPass(t *testing.T) {
	f := newSBTFixture(t)
	f.chain.applicants = []string{"0xAlice", "0xBob"}
	f.chain.statuses["0xAlice"] = LedgerApplicationStatus{HasApplied: true}
	f.chain.statuses["0xBob"] = LedgerApplicationStatus{HasApplied: true}
	f.chain.hashes["0xAlice"] = "0xh1"
	f.chain.hashes["0xBob"] = "0xh2"
	f.chain.failIndex = 0

	result, err := f.service.SyncApplications(context.Background())
	if err != nil {
		t.Fatalf("SyncApplications: %v", err)
	}
	if result.Failed != 1 || result.Synced != 1 {
		t.Fatalf("expected 1 failed / 1 synced, got %+v", result)
	}
	if _, err := f.service.Get(context.Background(), "0xBob"); err != nil {
		t.Fatalf("later applicants must still sync: %v", err)
	}
}
