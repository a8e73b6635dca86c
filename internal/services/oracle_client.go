package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/civicworks/fundflow-backend/internal/apperr"
	"github.com/civicworks/fundflow-backend/internal/logger"
	"github.com/civicworks/fundflow-backend/internal/types"
)

// MockVerificationWarning marks verdicts produced without a configured
// oracle credential. Callers must be able to tell a mock verdict from a
// live judgment.
const MockVerificationWarning = "Using mock verification - configure OPENAI_API_KEY for real verification"

// BillOracle produces a structured verdict for one evidence document.
// The call is a single attempt: it is a paid external service and must
// never be retried automatically.
type BillOracle interface {
	Verify(ctx context.Context, document []byte, expectedAmount float64, billType types.BillType, stageNumber uint64) (*types.OracleVerdict, error)
	Model() string
}

// NewBillOracle returns the live vision oracle when OPENAI_API_KEY is set
// and the fixed mock oracle otherwise.
func NewBillOracle(log *logger.Logger) BillOracle {
	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		log.Warn("OPENAI_API_KEY not set, bill verification will use the mock oracle")
		return NewMockOracle()
	}
	return newVisionOracle(log, apiKey)
}

type visionOracle struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

func newVisionOracle(log *logger.Logger, apiKey string) *visionOracle {
	baseURL := os.Getenv("OPENAI_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		model = "gpt-4o"
	}
	timeoutSec := 60
	if v := os.Getenv("OPENAI_TIMEOUT_SECONDS"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}
	return &visionOracle{
		log:        log.With("service", "VisionOracle"),
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
	}
}

func (o *visionOracle) Model() string { return o.model }

type oracleHTTPError struct {
	StatusCode int
	Body       string
}

func (e *oracleHTTPError) Error() string {
	return fmt.Sprintf("oracle http %d: %s", e.StatusCode, e.Body)
}

type visionRequest struct {
	Model string              `json:"model"`
	Input []visionInputItem   `json:"input"`
	Text  visionTextFormatRef `json:"text"`
}

type visionInputItem struct {
	Role    string              `json:"role"`
	Content []visionContentPart `json:"content"`
}

type visionContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

type visionTextFormatRef struct {
	Format map[string]any `json:"format"`
}

type visionResponse struct {
	Output []struct {
		Type    string `json:"type"`
		Role    string `json:"role,omitempty"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
		} `json:"content,omitempty"`
	} `json:"output"`
	Refusal string `json:"refusal,omitempty"`
}

func verificationPrompt(expectedAmount float64, billType types.BillType, stageNumber uint64) string {
	return fmt.Sprintf(`You are an expert financial auditor analyzing a bill/invoice/receipt for a public fund management system.

CONTEXT:
- This is stage %d of a multi-stage funded project
- Expected amount: $%.2f
- Expected document type: %s

Check document authenticity, extract the exact total amount, the date,
the vendor and all line items, and look for signs of forgery or
manipulation. The amount should match the expected amount within 10%%
tolerance. Public funds are at stake; analyze carefully and be thorough.`,
		stageNumber, expectedAmount, billType)
}

func verdictSchema() map[string]any {
	stringArray := map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"document_type":  map[string]any{"type": "string"},
			"total_amount":   map[string]any{"type": "number"},
			"currency":       map[string]any{"type": "string"},
			"date":           map[string]any{"type": "string"},
			"vendor":         map[string]any{"type": "string"},
			"vendor_contact": map[string]any{"type": "string"},
			"line_items": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"description": map[string]any{"type": "string"},
						"quantity":    map[string]any{"type": "number"},
						"unit_price":  map[string]any{"type": "number"},
						"total":       map[string]any{"type": "number"},
					},
					"required":             []string{"description", "quantity", "unit_price", "total"},
					"additionalProperties": false,
				},
			},
			"is_legitimate":             map[string]any{"type": "boolean"},
			"is_clear_readable":         map[string]any{"type": "boolean"},
			"red_flags":                 stringArray,
			"warnings":                  stringArray,
			"amount_matches":            map[string]any{"type": "boolean"},
			"amount_difference_percent": map[string]any{"type": "number"},
			"confidence_score":          map[string]any{"type": "integer"},
			"reasoning":                 map[string]any{"type": "string"},
			"recommendations":           map[string]any{"type": "string"},
		},
		"required": []string{
			"document_type", "total_amount", "currency", "date", "vendor",
			"vendor_contact", "line_items", "is_legitimate", "is_clear_readable",
			"red_flags", "warnings", "amount_matches", "amount_difference_percent",
			"confidence_score", "reasoning", "recommendations",
		},
		"additionalProperties": false,
	}
}

// Verify performs exactly one oracle call. Any failure (transport, HTTP
// status, malformed verdict) is surfaced as OracleUnavailableError so the
// caller can fail the bill rather than guess.
func (o *visionOracle) Verify(ctx context.Context, document []byte, expectedAmount float64, billType types.BillType, stageNumber uint64) (*types.OracleVerdict, error) {
	imageData := base64.StdEncoding.EncodeToString(document)

	req := visionRequest{
		Model: o.model,
		Input: []visionInputItem{
			{
				Role: "user",
				Content: []visionContentPart{
					{Type: "input_text", Text: verificationPrompt(expectedAmount, billType, stageNumber)},
					{Type: "input_image", ImageURL: "data:image/jpeg;base64," + imageData},
				},
			},
		},
	}
	req.Text.Format = map[string]any{
		"type":   "json_schema",
		"name":   "bill_verdict",
		"schema": verdictSchema(),
		"strict": true,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(req); err != nil {
		return nil, &apperr.OracleUnavailableError{Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/v1/responses", &buf)
	if err != nil {
		return nil, &apperr.OracleUnavailableError{Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		o.log.Warn("Oracle request failed", "error", err)
		return nil, &apperr.OracleUnavailableError{Err: err}
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, &apperr.OracleUnavailableError{Err: readErr}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		o.log.Warn("Oracle returned error status", "status", resp.StatusCode)
		return nil, &apperr.OracleUnavailableError{Err: &oracleHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}}
	}

	var parsed visionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &apperr.OracleUnavailableError{Err: fmt.Errorf("decode oracle response: %w", err)}
	}
	if parsed.Refusal != "" {
		return nil, &apperr.OracleUnavailableError{Err: fmt.Errorf("oracle refused: %s", parsed.Refusal)}
	}

	var verdictText string
	for _, item := range parsed.Output {
		if item.Type != "message" || item.Role != "assistant" {
			continue
		}
		for _, part := range item.Content {
			if part.Type == "output_text" && part.Text != "" {
				verdictText += part.Text
			}
		}
	}
	if verdictText == "" {
		return nil, &apperr.OracleUnavailableError{Err: fmt.Errorf("no output_text in oracle response")}
	}

	var verdict types.OracleVerdict
	if err := json.Unmarshal([]byte(verdictText), &verdict); err != nil {
		return nil, &apperr.OracleUnavailableError{Err: fmt.Errorf("parse verdict JSON: %w; text=%s", err, verdictText)}
	}
	return &verdict, nil
}

// mockOracle approves everything at confidence 85. Its warnings always
// carry the mock marker so a mock verdict can never be mistaken for a
// live judgment.
type mockOracle struct{}

func NewMockOracle() BillOracle {
	return &mockOracle{}
}

func (m *mockOracle) Model() string { return "mock" }

func (m *mockOracle) Verify(_ context.Context, _ []byte, expectedAmount float64, billType types.BillType, _ uint64) (*types.OracleVerdict, error) {
	return &types.OracleVerdict{
		DocumentType:    string(billType),
		TotalAmount:     expectedAmount,
		Currency:        "USD",
		IsLegitimate:    true,
		IsClearReadable: true,
		AmountMatches:   true,
		ConfidenceScore: 85,
		Warnings:        []string{MockVerificationWarning},
		Reasoning:       "Mock verification - oracle credential not configured",
		Recommendations: "Manual verification recommended",
	}, nil
}
