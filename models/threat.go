package models

import "strings"

// Severity is the four-level ordinal scale used across both analyzers.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank returns the ordinal position of a severity. Unknown strings rank
// below low so they never survive a threshold filter by accident.
func (s Severity) Rank() int {
	switch Severity(strings.ToLower(string(s))) {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// AtLeast reports whether s meets or exceeds the threshold.
func (s Severity) AtLeast(threshold Severity) bool {
	return s.Rank() >= threshold.Rank()
}

// ParseSeverity normalizes a user- or tool-supplied severity string.
// The empty string means "no threshold" and parses to SeverityLow.
func ParseSeverity(raw string) (Severity, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "low":
		return SeverityLow, true
	case "medium", "moderate":
		return SeverityMedium, true
	case "high":
		return SeverityHigh, true
	case "critical":
		return SeverityCritical, true
	}
	return SeverityLow, false
}

// ThreatSource identifies which analyzer produced a ThreatMatch.
type ThreatSource string

const (
	SourceStaticAnalyzer ThreatSource = "static_analyzer"
	SourceLLM            ThreatSource = "llm"
)

// ThreatMatch is one detected security issue.
type ThreatMatch struct {
	ID          string       `json:"id"`
	RuleID      string       `json:"rule_id"`
	RuleName    string       `json:"rule_name"`
	Description string       `json:"description"`
	Category    string       `json:"category"`
	Severity    Severity     `json:"severity"`
	FilePath    string       `json:"file_path"`
	LineStart   int          `json:"line_start"`
	LineEnd     int          `json:"line_end"`
	CodeSnippet string       `json:"code_snippet,omitempty"`
	Confidence  float64      `json:"confidence"`
	Source      ThreatSource `json:"source"`
	CWEIDs      []string     `json:"cwe_ids,omitempty"`
	Remediation string       `json:"remediation,omitempty"`
	References  []string     `json:"references,omitempty"`
}

// Normalize clamps fields into their documented ranges: confidence into
// [0,1] and LineEnd >= LineStart.
func (t *ThreatMatch) Normalize() {
	if t.Confidence < 0 {
		t.Confidence = 0
	}
	if t.Confidence > 1 {
		t.Confidence = 1
	}
	if t.LineStart < 1 {
		t.LineStart = 1
	}
	if t.LineEnd < t.LineStart {
		t.LineEnd = t.LineStart
	}
}
