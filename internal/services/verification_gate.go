package services

import (
	"fmt"
	"math"

	"github.com/civicworks/fundflow-backend/internal/types"
)

const (
	// minConfidenceScore is the floor below which a verdict is rejected
	// outright, whatever else it says.
	minConfidenceScore = 70
	// amountTolerancePercent bounds the allowed deviation between the
	// extracted total and the stage budget.
	amountTolerancePercent = 10.0
)

// DecideVerification applies the acceptance policy to an oracle verdict.
// It is deterministic and side-effect free: the verdict is advisory input,
// this function is the sole gate on releasing the stage's funds.
//
// Every check is evaluated independently so the caller sees all failure
// reasons, not just the first one.
func DecideVerification(verdict *types.OracleVerdict, expectedAmount float64) (bool, []string) {
	var reasons []string

	if !verdict.IsLegitimate {
		reasons = append(reasons, "document did not pass the legitimacy check")
	}
	if !verdict.IsClearReadable {
		reasons = append(reasons, "document is not clear or readable")
	}
	if !verdict.AmountMatches {
		reasons = append(reasons, "document amount does not match the stage budget")
	}
	if verdict.ConfidenceScore < minConfidenceScore {
		reasons = append(reasons, fmt.Sprintf("confidence score %d below minimum %d", verdict.ConfidenceScore, minConfidenceScore))
	}
	if len(verdict.RedFlags) > 0 {
		reasons = append(reasons, fmt.Sprintf("%d red flag(s) raised", len(verdict.RedFlags)))
	}

	// A zero or negative extraction cannot be trusted, so it fails the
	// tolerance check unconditionally.
	switch {
	case verdict.TotalAmount <= 0:
		reasons = append(reasons, "extracted amount is zero or missing, cannot verify against budget")
	case expectedAmount <= 0:
		reasons = append(reasons, "expected amount is zero or missing, cannot verify against budget")
	default:
		diffPercent := math.Abs((verdict.TotalAmount - expectedAmount) / expectedAmount * 100)
		if diffPercent > amountTolerancePercent {
			reasons = append(reasons, fmt.Sprintf("extracted amount %.2f deviates %.1f%% from expected %.2f (max %.0f%%)",
				verdict.TotalAmount, diffPercent, expectedAmount, amountTolerancePercent))
		}
	}

	return len(reasons) == 0, reasons
}
