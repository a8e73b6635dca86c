package services

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/civicworks/fundflow-backend/internal/logger"
	"github.com/civicworks/fundflow-backend/internal/repos"
	"github.com/civicworks/fundflow-backend/internal/types"
)

const (
	overviewCacheKey = "fundflow:stats:overview"
	overviewCacheTTL = 30 * time.Second
)

// Overview is the admin dashboard counters block.
type Overview struct {
	TotalProposals         int64 `json:"total_proposals"`
	PendingVoting          int64 `json:"pending_voting"`
	ApprovedProposals      int64 `json:"approved_proposals"`
	RunningProposals       int64 `json:"running_proposals"`
	CompletedProposals     int64 `json:"completed_proposals"`
	PendingBills           int64 `json:"pending_bills"`
	TotalBills             int64 `json:"total_bills"`
	PendingSBTApplications int64 `json:"pending_sbt_applications"`
}

type StatsService interface {
	Overview(ctx context.Context) (*Overview, error)
}

type statsService struct {
	log          *logger.Logger
	rdb          *goredis.Client
	proposals    repos.ProposalRepo
	bills        repos.BillRepo
	applications repos.SBTApplicationRepo
}

// NewStatsService wires the counters behind an optional redis cache.
// Without REDIS_ADDR every call counts straight from the database.
func NewStatsService(log *logger.Logger, proposals repos.ProposalRepo, bills repos.BillRepo, applications repos.SBTApplicationRepo) StatsService {
	svc := &statsService{
		log:          log.With("service", "StatsService"),
		proposals:    proposals,
		bills:        bills,
		applications: applications,
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return svc
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		svc.log.Warn("redis unavailable, stats cache disabled", "error", err)
		_ = rdb.Close()
		return svc
	}
	svc.rdb = rdb
	return svc
}

func (st *statsService) Overview(ctx context.Context) (*Overview, error) {
	if cached := st.cachedOverview(ctx); cached != nil {
		return cached, nil
	}

	overview := &Overview{}
	var err error
	if overview.TotalProposals, err = st.proposals.Count(ctx, nil); err != nil {
		return nil, err
	}
	if overview.PendingVoting, err = st.proposals.CountByStates(ctx, nil, []types.ProposalState{types.ProposalAuthorityVoting, types.ProposalPublicVoting}); err != nil {
		return nil, err
	}
	if overview.ApprovedProposals, err = st.proposals.CountByState(ctx, nil, types.ProposalApproved); err != nil {
		return nil, err
	}
	if overview.RunningProposals, err = st.proposals.CountByState(ctx, nil, types.ProposalInProgress); err != nil {
		return nil, err
	}
	if overview.CompletedProposals, err = st.proposals.CountByState(ctx, nil, types.ProposalCompleted); err != nil {
		return nil, err
	}
	if overview.PendingBills, err = st.bills.CountPendingApproval(ctx, nil); err != nil {
		return nil, err
	}
	if overview.TotalBills, err = st.bills.Count(ctx, nil); err != nil {
		return nil, err
	}
	if overview.PendingSBTApplications, err = st.applications.CountByStatus(ctx, nil, types.ApplicationPending); err != nil {
		return nil, err
	}

	st.cacheOverview(ctx, overview)
	return overview, nil
}

func (st *statsService) cachedOverview(ctx context.Context) *Overview {
	if st.rdb == nil {
		return nil
	}
	raw, err := st.rdb.Get(ctx, overviewCacheKey).Bytes()
	if err != nil {
		return nil
	}
	var overview Overview
	if err := json.Unmarshal(raw, &overview); err != nil {
		return nil
	}
	return &overview
}

func (st *statsService) cacheOverview(ctx context.Context, overview *Overview) {
	if st.rdb == nil {
		return
	}
	raw, err := json.Marshal(overview)
	if err != nil {
		return
	}
	if err := st.rdb.Set(ctx, overviewCacheKey, raw, overviewCacheTTL).Err(); err != nil {
		st.log.Warn("stats cache write failed", "error", err)
	}
}
