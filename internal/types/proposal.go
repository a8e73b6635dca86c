package types

import (
	"time"

	"github.com/google/uuid"
)

// ProposalState mirrors the on-chain enum. The ledger owns this value;
// local transitions must stay consistent with it between syncs.
type ProposalState int

const (
	ProposalCreated ProposalState = iota
	ProposalAuthorityVoting
	ProposalPublicVoting
	ProposalApproved
	ProposalRejected
	ProposalInProgress
	ProposalCompleted
)

func (s ProposalState) String() string {
	switch s {
	case ProposalCreated:
		return "Created"
	case ProposalAuthorityVoting:
		return "AuthorityVoting"
	case ProposalPublicVoting:
		return "PublicVoting"
	case ProposalApproved:
		return "Approved"
	case ProposalRejected:
		return "Rejected"
	case ProposalInProgress:
		return "InProgress"
	case ProposalCompleted:
		return "Completed"
	default:
		return "Unknown"
	}
}

type Proposal struct {
	ID                 uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	ProposalID         uint64        `gorm:"uniqueIndex;not null;column:proposal_id" json:"proposal_id"`
	Description        string        `gorm:"not null;column:description" json:"description"`
	RecipientAddress   string        `gorm:"not null;column:recipient_address" json:"recipient_address"`
	TotalAmount        float64       `gorm:"type:numeric(18,8);not null;column:total_amount" json:"total_amount"`
	State              ProposalState `gorm:"not null;default:0;column:state" json:"state"`
	AuthorityYesVotes  uint64        `gorm:"not null;default:0;column:authority_yes_votes" json:"authority_yes_votes"`
	AuthorityNoVotes   uint64        `gorm:"not null;default:0;column:authority_no_votes" json:"authority_no_votes"`
	PublicYesVotes     uint64        `gorm:"not null;default:0;column:public_yes_votes" json:"public_yes_votes"`
	PublicNoVotes      uint64        `gorm:"not null;default:0;column:public_no_votes" json:"public_no_votes"`
	CurrentStage       uint64        `gorm:"not null;default:0;column:current_stage" json:"current_stage"`
	TotalStages        uint64        `gorm:"not null;default:1;column:total_stages" json:"total_stages"`
	CreatedAt          time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time     `gorm:"not null" json:"updated_at"`
}

func (Proposal) TableName() string {
	return "proposal"
}
