package types

import (
	"time"

	"github.com/google/uuid"
)

type StageState int

const (
	StageNotStarted StageState = iota
	StageInProgress
	StageCompleted
)

func (s StageState) String() string {
	switch s {
	case StageNotStarted:
		return "NotStarted"
	case StageInProgress:
		return "InProgress"
	case StageCompleted:
		return "Completed"
	default:
		return "Unknown"
	}
}

// ProposalStage is one milestone tranche of a proposal. Stage numbers are
// 1-indexed and contiguous within a proposal.
type ProposalStage struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ProposalID  uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_stage_proposal_number;column:proposal_id" json:"proposal_id"`
	StageNumber uint64     `gorm:"not null;uniqueIndex:idx_stage_proposal_number;column:stage_number" json:"stage_number"`
	Amount      float64    `gorm:"type:numeric(18,8);not null;column:amount" json:"amount"`
	State       StageState `gorm:"not null;default:0;column:state" json:"state"`
	Report      string     `gorm:"column:report" json:"report"`
	AIReport    string     `gorm:"column:ai_report" json:"ai_report"`
	VoteCount   uint64     `gorm:"not null;default:0;column:vote_count" json:"vote_count"`
	CreatedAt   time.Time  `gorm:"not null" json:"created_at"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
}

func (ProposalStage) TableName() string {
	return "proposal_stage"
}
