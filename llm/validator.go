package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"secscan/logger"
	"secscan/models"
)

const validationSystemPrompt = `You are a security triage expert. For each candidate finding decide
whether it is a real, exploitable issue in the given source or a false
positive. Respond with a JSON object {"verdicts": [...]} where each verdict
has: id (copied from the candidate), is_legitimate (bool), confidence
(0.0-1.0), reasoning. When asked for exploits also include
exploitation_vector and remediation_advice. Report nothing but the JSON
object.`

// maxValidationContextBytes caps the source context sent with one
// validation request.
const maxValidationContextBytes = 32 << 10

// Validator runs the second-pass false-positive filter over candidate
// threats.
type Validator struct {
	client *Client
}

// NewValidator wraps a Client.
func NewValidator(client *Client) *Validator {
	return &Validator{client: client}
}

// IsFullyFunctional reports whether validation can run at all.
func (v *Validator) IsFullyFunctional() bool {
	return v.client.IsAvailable()
}

type verdict struct {
	ID                 string  `json:"id"`
	IsLegitimate       bool    `json:"is_legitimate"`
	Confidence         float64 `json:"confidence"`
	Reasoning          string  `json:"reasoning"`
	ExploitationVector string  `json:"exploitation_vector"`
	RemediationAdvice  string  `json:"remediation_advice"`
}

// Validate judges each candidate threat against the source context and
// returns verdicts keyed by threat ID. The model may omit candidates; the
// engine treats missing entries as legitimate.
func (v *Validator) Validate(ctx context.Context, threats []models.ThreatMatch, sourceContext, path string, generateExploits bool) (map[string]models.ValidationResult, error) {
	if len(threats) == 0 {
		return map[string]models.ValidationResult{}, nil
	}
	if !v.IsFullyFunctional() {
		return nil, ErrUnavailable
	}

	if len(sourceContext) > maxValidationContextBytes {
		sourceContext = sourceContext[:maxValidationContextBytes]
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Target: %s\n\nCandidate findings:\n", path)
	for _, t := range threats {
		fmt.Fprintf(&sb, "- id=%s rule=%s category=%s severity=%s lines=%d-%d: %s\n",
			t.ID, t.RuleName, t.Category, t.Severity, t.LineStart, t.LineEnd, t.Description)
	}
	if generateExploits {
		sb.WriteString("\nFor legitimate findings include exploitation_vector and remediation_advice.\n")
	}
	fmt.Fprintf(&sb, "\nSource context:\n```\n%s\n```", sourceContext)

	content, err := v.client.Complete(ctx, validationSystemPrompt, sb.String())
	if err != nil {
		return nil, fmt.Errorf("validation request failed: %w", err)
	}

	verdicts, err := parseVerdicts(content)
	if err != nil {
		return nil, fmt.Errorf("parsing validation verdicts: %w", err)
	}

	known := make(map[string]bool, len(threats))
	for _, t := range threats {
		known[t.ID] = true
	}

	results := make(map[string]models.ValidationResult, len(verdicts))
	for _, vd := range verdicts {
		if !known[vd.ID] {
			logger.Debug("validator: dropping verdict for unknown threat id %q", vd.ID)
			continue
		}
		conf := vd.Confidence
		if conf < 0 {
			conf = 0
		}
		if conf > 1 {
			conf = 1
		}
		results[vd.ID] = models.ValidationResult{
			IsLegitimate:       vd.IsLegitimate,
			Confidence:         conf,
			Reasoning:          vd.Reasoning,
			ExploitationVector: vd.ExploitationVector,
			RemediationAdvice:  vd.RemediationAdvice,
		}
	}
	return results, nil
}

// Stats summarizes a validation map.
func (v *Validator) Stats(validations map[string]models.ValidationResult) models.ValidationStats {
	stats := models.ValidationStats{Total: len(validations)}
	for _, r := range validations {
		switch {
		case r.ValidationError != "":
			stats.Errors++
		case r.IsLegitimate:
			stats.Legitimate++
		default:
			stats.FalsePositives++
		}
	}
	return stats
}

func parseVerdicts(content string) ([]verdict, error) {
	cleaned := stripFences(content)

	arr := gjson.Get(cleaned, "verdicts")
	if !arr.Exists() {
		root := gjson.Parse(cleaned)
		if root.IsArray() {
			arr = root
		} else {
			return nil, fmt.Errorf("response has neither a verdicts array nor a top-level array")
		}
	}

	var verdicts []verdict
	if err := json.Unmarshal([]byte(arr.Raw), &verdicts); err != nil {
		return nil, fmt.Errorf("unmarshalling verdicts array: %w", err)
	}
	return verdicts, nil
}
