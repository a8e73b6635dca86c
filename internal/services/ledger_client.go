package services

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/civicworks/fundflow-backend/internal/apperr"
	"github.com/civicworks/fundflow-backend/internal/logger"
	"github.com/civicworks/fundflow-backend/internal/types"
)

// SyncConfig is the explicit reconciler configuration. There is no
// ambient/global contract state: everything the reconciler needs to
// reach the ledger is passed in here.
type SyncConfig struct {
	LedgerEndpoint          string
	ProposalContractAddress string
	SBTContractAddress      string
	CallTimeout             time.Duration
	BatchConcurrency        int
}

// Minimal read ABI for the fund management contract.
const fundContractABI = `[
  {"inputs":[{"internalType":"uint256","name":"_proposalId","type":"uint256"}],"name":"getProposalInfo","outputs":[{"internalType":"string","name":"description","type":"string"},{"internalType":"address","name":"recipient","type":"address"},{"internalType":"uint256","name":"totalAmount","type":"uint256"},{"internalType":"uint8","name":"state","type":"uint8"},{"internalType":"uint256","name":"publicYesVotes","type":"uint256"},{"internalType":"uint256","name":"publicNoVotes","type":"uint256"},{"internalType":"uint256","name":"currentStage","type":"uint256"},{"internalType":"uint256","name":"totalStages","type":"uint256"},{"internalType":"uint256","name":"authorityYesVotes","type":"uint256"},{"internalType":"uint256","name":"authorityNoVotes","type":"uint256"},{"internalType":"uint256","name":"publicVotingEndTime","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"proposalCount","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"internalType":"uint256","name":"_proposalId","type":"uint256"},{"internalType":"uint256","name":"_stageNumber","type":"uint256"}],"name":"getStageInfo","outputs":[{"internalType":"uint256","name":"amount","type":"uint256"},{"internalType":"string","name":"report","type":"string"},{"internalType":"string","name":"aiReport","type":"string"},{"internalType":"uint256","name":"voteCount","type":"uint256"},{"internalType":"uint8","name":"state","type":"uint8"}],"stateMutability":"view","type":"function"}
]`

// Minimal ABI for the soulbound-token registration contract.
const sbtContractABI = `[
  {"inputs":[{"internalType":"address","name":"","type":"address"}],"name":"applications","outputs":[{"internalType":"bytes32","name":"","type":"bytes32"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"internalType":"uint128","name":"index","type":"uint128"}],"name":"getApplicantByIndex","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"applicantCount","outputs":[{"internalType":"uint128","name":"","type":"uint128"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"internalType":"address","name":"applicant","type":"address"}],"name":"getApplicationStatus","outputs":[{"internalType":"bool","name":"hasApplied","type":"bool"},{"internalType":"bool","name":"isRegistered","type":"bool"}],"stateMutability":"view","type":"function"}
]`

// LedgerProposal is a proposal record as the ledger reports it.
// Amounts are converted from wei to whole-token units.
type LedgerProposal struct {
	Description       string
	Recipient         string
	TotalAmount       float64
	State             types.ProposalState
	PublicYesVotes    uint64
	PublicNoVotes     uint64
	AuthorityYesVotes uint64
	AuthorityNoVotes  uint64
	CurrentStage      uint64
	TotalStages       uint64
}

type LedgerStage struct {
	Amount    float64
	Report    string
	AIReport  string
	VoteCount uint64
	State     types.StageState
}

type LedgerApplicationStatus struct {
	HasApplied   bool
	IsRegistered bool
}

// ChainClient is the read capability against the external ledger. The
// write path (approving applications, releasing funds) is signed by an
// external authority and is out of this service's hands.
type ChainClient interface {
	ProposalCount(ctx context.Context) (uint64, error)
	GetProposalInfo(ctx context.Context, proposalID uint64) (*LedgerProposal, error)
	GetStageInfo(ctx context.Context, proposalID, stageNumber uint64) (*LedgerStage, error)
	ApplicantCount(ctx context.Context) (uint64, error)
	GetApplicantByIndex(ctx context.Context, index uint64) (string, error)
	GetApplicationStatus(ctx context.Context, applicant string) (LedgerApplicationStatus, error)
	ApplicationHash(ctx context.Context, applicant string) (string, error)
}

type ethChainClient struct {
	log          *logger.Logger
	client       *ethclient.Client
	fundContract *bind.BoundContract
	sbtContract  *bind.BoundContract
	callTimeout  time.Duration
}

func NewChainClient(log *logger.Logger, cfg SyncConfig) (ChainClient, error) {
	if cfg.LedgerEndpoint == "" {
		return nil, fmt.Errorf("missing ledger endpoint")
	}
	client, err := ethclient.Dial(cfg.LedgerEndpoint)
	if err != nil {
		return nil, &apperr.ConnectivityError{Service: "ledger", Err: err}
	}

	fundABI, err := abi.JSON(strings.NewReader(fundContractABI))
	if err != nil {
		return nil, fmt.Errorf("parse fund contract ABI: %w", err)
	}
	sbtABI, err := abi.JSON(strings.NewReader(sbtContractABI))
	if err != nil {
		return nil, fmt.Errorf("parse sbt contract ABI: %w", err)
	}

	callTimeout := cfg.CallTimeout
	if callTimeout <= 0 {
		callTimeout = 15 * time.Second
	}

	return &ethChainClient{
		log:          log.With("service", "ChainClient"),
		client:       client,
		fundContract: bind.NewBoundContract(common.HexToAddress(cfg.ProposalContractAddress), fundABI, client, client, client),
		sbtContract:  bind.NewBoundContract(common.HexToAddress(cfg.SBTContractAddress), sbtABI, client, client, client),
		callTimeout:  callTimeout,
	}, nil
}

func weiToToken(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(1e18)).Float64()
	return f
}

func (c *ethChainClient) call(ctx context.Context, contract *bind.BoundContract, method string, results *[]interface{}, params ...interface{}) error {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	return contract.Call(&bind.CallOpts{Context: callCtx}, results, method, params...)
}

func (c *ethChainClient) ProposalCount(ctx context.Context) (uint64, error) {
	var out []interface{}
	if err := c.call(ctx, c.fundContract, "proposalCount", &out); err != nil {
		return 0, &apperr.ConnectivityError{Service: "ledger", Err: err}
	}
	count, ok := out[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("unexpected proposalCount result type %T", out[0])
	}
	return count.Uint64(), nil
}

func (c *ethChainClient) GetProposalInfo(ctx context.Context, proposalID uint64) (*LedgerProposal, error) {
	var out []interface{}
	err := c.call(ctx, c.fundContract, "getProposalInfo", &out, new(big.Int).SetUint64(proposalID))
	if err != nil {
		// A revert on a read method means the id does not exist on chain.
		if strings.Contains(err.Error(), "revert") {
			return nil, &apperr.NotFoundOnLedgerError{Resource: "proposal", ID: proposalID}
		}
		return nil, &apperr.ConnectivityError{Service: "ledger", Err: err}
	}
	if len(out) < 10 {
		return nil, fmt.Errorf("unexpected getProposalInfo result arity %d", len(out))
	}
	return &LedgerProposal{
		Description:       out[0].(string),
		Recipient:         out[1].(common.Address).Hex(),
		TotalAmount:       weiToToken(out[2].(*big.Int)),
		State:             types.ProposalState(out[3].(uint8)),
		PublicYesVotes:    out[4].(*big.Int).Uint64(),
		PublicNoVotes:     out[5].(*big.Int).Uint64(),
		CurrentStage:      out[6].(*big.Int).Uint64(),
		TotalStages:       out[7].(*big.Int).Uint64(),
		AuthorityYesVotes: out[8].(*big.Int).Uint64(),
		AuthorityNoVotes:  out[9].(*big.Int).Uint64(),
	}, nil
}

func (c *ethChainClient) GetStageInfo(ctx context.Context, proposalID, stageNumber uint64) (*LedgerStage, error) {
	var out []interface{}
	err := c.call(ctx, c.fundContract, "getStageInfo", &out, new(big.Int).SetUint64(proposalID), new(big.Int).SetUint64(stageNumber))
	if err != nil {
		if strings.Contains(err.Error(), "revert") {
			return nil, &apperr.NotFoundOnLedgerError{Resource: "stage", ID: stageNumber}
		}
		return nil, &apperr.ConnectivityError{Service: "ledger", Err: err}
	}
	if len(out) < 5 {
		return nil, fmt.Errorf("unexpected getStageInfo result arity %d", len(out))
	}
	return &LedgerStage{
		Amount:    weiToToken(out[0].(*big.Int)),
		Report:    out[1].(string),
		AIReport:  out[2].(string),
		VoteCount: out[3].(*big.Int).Uint64(),
		State:     types.StageState(out[4].(uint8)),
	}, nil
}

func (c *ethChainClient) ApplicantCount(ctx context.Context) (uint64, error) {
	var out []interface{}
	if err := c.call(ctx, c.sbtContract, "applicantCount", &out); err != nil {
		return 0, &apperr.ConnectivityError{Service: "ledger", Err: err}
	}
	count, ok := out[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("unexpected applicantCount result type %T", out[0])
	}
	return count.Uint64(), nil
}

func (c *ethChainClient) GetApplicantByIndex(ctx context.Context, index uint64) (string, error) {
	var out []interface{}
	if err := c.call(ctx, c.sbtContract, "getApplicantByIndex", &out, new(big.Int).SetUint64(index)); err != nil {
		return "", &apperr.ConnectivityError{Service: "ledger", Err: err}
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return "", fmt.Errorf("unexpected getApplicantByIndex result type %T", out[0])
	}
	return addr.Hex(), nil
}

func (c *ethChainClient) GetApplicationStatus(ctx context.Context, applicant string) (LedgerApplicationStatus, error) {
	var out []interface{}
	if err := c.call(ctx, c.sbtContract, "getApplicationStatus", &out, common.HexToAddress(applicant)); err != nil {
		return LedgerApplicationStatus{}, &apperr.ConnectivityError{Service: "ledger", Err: err}
	}
	if len(out) < 2 {
		return LedgerApplicationStatus{}, fmt.Errorf("unexpected getApplicationStatus result arity %d", len(out))
	}
	return LedgerApplicationStatus{
		HasApplied:   out[0].(bool),
		IsRegistered: out[1].(bool),
	}, nil
}

func (c *ethChainClient) ApplicationHash(ctx context.Context, applicant string) (string, error) {
	var out []interface{}
	if err := c.call(ctx, c.sbtContract, "applications", &out, common.HexToAddress(applicant)); err != nil {
		return "", &apperr.ConnectivityError{Service: "ledger", Err: err}
	}
	hash, ok := out[0].([32]byte)
	if !ok {
		return "", fmt.Errorf("unexpected applications result type %T", out[0])
	}
	return "0x" + common.Bytes2Hex(hash[:]), nil
}
