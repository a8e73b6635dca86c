package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// AIVerificationLog is an append-only audit record of one oracle call.
// Rows are created once per verification attempt and never mutated.
type AIVerificationLog struct {
	ID              uuid.UUID                   `gorm:"type:uuid;primaryKey" json:"id"`
	BillID          uuid.UUID                   `gorm:"type:uuid;not null;index;column:bill_id" json:"bill_id"`
	Verified        bool                        `gorm:"not null;column:verified" json:"verified"`
	Confidence      int                         `gorm:"not null;column:confidence" json:"confidence"`
	Analysis        string                      `gorm:"column:analysis" json:"analysis"`
	ExtractedAmount float64                     `gorm:"type:numeric(18,2);column:extracted_amount" json:"extracted_amount"`
	Warnings        datatypes.JSONSlice[string] `gorm:"column:warnings" json:"warnings"`
	ProcessingTime  float64                     `gorm:"not null;default:0;column:processing_time" json:"processing_time"`
	ModelUsed       string                      `gorm:"column:model_used" json:"model_used"`
	Timestamp       time.Time                   `gorm:"not null;column:timestamp" json:"timestamp"`
}

func (AIVerificationLog) TableName() string {
	return "ai_verification_log"
}
