package types

// LineItem is one row extracted from an evidence document.
type LineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Total       float64 `json:"total"`
}

// OracleVerdict is the structured judgment returned by the document
// oracle for one verification attempt. It is advisory input to the
// verification gate; the gate alone decides acceptance.
type OracleVerdict struct {
	DocumentType            string     `json:"document_type"`
	TotalAmount             float64    `json:"total_amount"`
	Currency                string     `json:"currency"`
	Date                    string     `json:"date"`
	Vendor                  string     `json:"vendor"`
	VendorContact           string     `json:"vendor_contact"`
	LineItems               []LineItem `json:"line_items"`
	IsLegitimate            bool       `json:"is_legitimate"`
	IsClearReadable         bool       `json:"is_clear_readable"`
	RedFlags                []string   `json:"red_flags"`
	Warnings                []string   `json:"warnings"`
	AmountMatches           bool       `json:"amount_matches"`
	AmountDifferencePercent float64    `json:"amount_difference_percent"`
	ConfidenceScore         int        `json:"confidence_score"`
	Reasoning               string     `json:"reasoning"`
	Recommendations         string     `json:"recommendations"`
}
