package models

// ValidationResult is the second-pass verdict for a single ThreatMatch,
// keyed by the threat's ID in ScanResult.Validations.
type ValidationResult struct {
	IsLegitimate       bool    `json:"is_legitimate"`
	Confidence         float64 `json:"confidence"`
	Reasoning          string  `json:"reasoning,omitempty"`
	ExploitationVector string  `json:"exploitation_vector,omitempty"`
	RemediationAdvice  string  `json:"remediation_advice,omitempty"`
	ValidationError    string  `json:"validation_error,omitempty"`
}

// ValidationStats summarizes one validation pass.
type ValidationStats struct {
	Total          int `json:"total"`
	Legitimate     int `json:"legitimate"`
	FalsePositives int `json:"false_positives"`
	Errors         int `json:"errors"`
}
