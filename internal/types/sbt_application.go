package types

import (
	"time"

	"github.com/google/uuid"
)

type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "pending"
	ApplicationApproved ApplicationStatus = "approved"
	ApplicationRejected ApplicationStatus = "rejected"
)

// SBTApplication tracks an identity-credential request. It mirrors the
// same local/ledger duality as Proposal but carries no release gating.
type SBTApplication struct {
	ID                uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	ApplicantAddress  string            `gorm:"uniqueIndex;not null;column:applicant_address" json:"applicant_address"`
	VoterHash         string            `gorm:"not null;column:voter_hash" json:"voter_hash"`
	ApplicationTxHash string            `gorm:"column:application_tx_hash" json:"application_tx_hash"`
	ApprovalTxHash    string            `gorm:"column:approval_tx_hash" json:"approval_tx_hash"`
	Status            ApplicationStatus `gorm:"not null;default:'pending';column:status" json:"status"`
	Nullifier         *uint64           `gorm:"column:nullifier" json:"nullifier,omitempty"`
	TokenID           *uint64           `gorm:"column:token_id" json:"token_id,omitempty"`
	SyncedFromChain   bool              `gorm:"not null;default:false;column:synced_from_chain" json:"synced_from_chain"`
	AppliedAt         time.Time         `gorm:"not null;column:applied_at" json:"applied_at"`
	ApprovedAt        *time.Time        `gorm:"column:approved_at" json:"approved_at,omitempty"`
	ApprovedBy        string            `gorm:"column:approved_by" json:"approved_by"`
}

func (SBTApplication) TableName() string {
	return "sbt_application"
}
