package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type BillType string

const (
	BillTypeInvoice   BillType = "invoice"
	BillTypeReceipt   BillType = "receipt"
	BillTypeQuotation BillType = "quotation"
	BillTypeOther     BillType = "other"
)

func ValidBillType(t BillType) bool {
	switch t {
	case BillTypeInvoice, BillTypeReceipt, BillTypeQuotation, BillTypeOther:
		return true
	}
	return false
}

type VerificationStatus string

const (
	BillPending   VerificationStatus = "pending"
	BillVerifying VerificationStatus = "verifying"
	BillVerified  VerificationStatus = "verified"
	BillFailed    VerificationStatus = "failed"
	BillApproved  VerificationStatus = "approved"
	BillRejected  VerificationStatus = "rejected"
)

// Bill is an evidence record submitted against a stage. The oracle verdict
// fields and the authority decision fields are locally owned and are never
// overwritten by ledger sync.
type Bill struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProposalID  uuid.UUID `gorm:"type:uuid;not null;index;column:proposal_id" json:"proposal_id"`
	StageID     uuid.UUID `gorm:"type:uuid;not null;index;column:stage_id" json:"stage_id"`
	BillType    BillType  `gorm:"not null;column:bill_type" json:"bill_type"`
	Amount      float64   `gorm:"type:numeric(18,2);not null;column:amount" json:"amount"`
	Currency    string    `gorm:"not null;default:'USD';column:currency" json:"currency"`
	Description string    `gorm:"column:description" json:"description"`
	FileHash    string    `gorm:"column:file_hash" json:"file_hash"`

	AIVerified        bool                        `gorm:"not null;default:false;column:ai_verified" json:"ai_verified"`
	AIConfidence      int                         `gorm:"not null;default:0;column:ai_confidence" json:"ai_confidence"`
	AIAnalysis        string                      `gorm:"column:ai_analysis" json:"ai_analysis"`
	AIExtractedAmount float64                     `gorm:"type:numeric(18,2);column:ai_extracted_amount" json:"ai_extracted_amount"`
	AIWarnings        datatypes.JSONSlice[string] `gorm:"column:ai_warnings" json:"ai_warnings"`
	AIRecommendations string                      `gorm:"column:ai_recommendations" json:"ai_recommendations"`

	AuthorityApproved bool   `gorm:"not null;default:false;column:authority_approved" json:"authority_approved"`
	ApprovedBy        string `gorm:"column:approved_by" json:"approved_by"`
	ApprovalNotes     string `gorm:"column:approval_notes" json:"approval_notes"`

	Status VerificationStatus `gorm:"not null;default:'pending';column:status" json:"status"`

	UploadedAt time.Time  `gorm:"not null;column:uploaded_at" json:"uploaded_at"`
	VerifiedAt *time.Time `gorm:"column:verified_at" json:"verified_at,omitempty"`
	ApprovedAt *time.Time `gorm:"column:approved_at" json:"approved_at,omitempty"`
}

func (Bill) TableName() string {
	return "bill"
}
