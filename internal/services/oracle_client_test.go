package services

import (
	"context"
	"testing"

	"github.com/civicworks/fundflow-backend/internal/logger"
	"github.com/civicworks/fundflow-backend/internal/types"
)

func TestMockOracle_VerdictCarriesMockMarker(t *testing.T) {
	oracle := NewMockOracle()

	verdict, err := oracle.Verify(context.Background(), []byte("doc"), 1000, types.BillTypeInvoice, 1)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !verdict.IsLegitimate || verdict.ConfidenceScore != 85 {
		t.Fatalf("unexpected mock verdict: %+v", verdict)
	}

	found := false
	for _, w := range verdict.Warnings {
		if w == MockVerificationWarning {
			found = true
		}
	}
	if !found {
		t.Fatalf("mock verdict must carry the mock marker, got %v", verdict.Warnings)
	}
}

func TestMockOracle_VerdictPassesGate(t *testing.T) {
	oracle := NewMockOracle()
	verdict, err := oracle.Verify(context.Background(), []byte("doc"), 500, types.BillTypeReceipt, 2)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	accepted, reasons := DecideVerification(verdict, 500)
	if !accepted {
		t.Fatalf("mock verdict should pass the gate, got %v", reasons)
	}
}

func TestNewBillOracle_FallsBackToMockWithoutCredential(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	oracle := NewBillOracle(logger.NewNop())
	if oracle.Model() != "mock" {
		t.Fatalf("expected mock oracle without credential, got %q", oracle.Model())
	}
}

func TestNewBillOracle_UsesConfiguredModelWithCredential(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_MODEL", "gpt-4o-mini")
	oracle := NewBillOracle(logger.NewNop())
	if oracle.Model() != "gpt-4o-mini" {
		t.Fatalf("expected configured model, got %q", oracle.Model())
	}
}
