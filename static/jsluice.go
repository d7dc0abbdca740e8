package static

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BishopFox/jsluice"
	"github.com/google/uuid"

	"secscan/models"
)

// isJSPath reports whether the supplemental jsluice pass applies.
func isJSPath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".js", ".jsx", ".mjs", ".cjs":
		return true
	}
	return false
}

// ExtractJSThreats runs jsluice over JavaScript source and converts
// hardcoded secrets and suspicious URLs into ThreatMatch values. This is a
// local, in-process supplement to the semgrep pass; it needs no external
// tool and never fails the static phase.
func ExtractJSThreats(code []byte, path string) []models.ThreatMatch {
	analyzer := jsluice.NewAnalyzer(code)

	var threats []models.ThreatMatch
	for _, secret := range analyzer.GetSecrets() {
		if secret == nil {
			continue
		}
		t := models.ThreatMatch{
			ID:          uuid.NewString(),
			RuleID:      "jsluice.secret." + normalizeCategory(secret.Kind),
			RuleName:    secret.Kind,
			Description: fmt.Sprintf("hardcoded %s found in JavaScript source", secret.Kind),
			Category:    "hardcoded_secret",
			Severity:    jsluiceSeverity(secret.Severity),
			FilePath:    path,
			LineStart:   1,
			LineEnd:     1,
			Confidence:  jsluiceConfidence(secret.Severity),
			Source:      models.SourceStaticAnalyzer,
			CWEIDs:      []string{"CWE-798"},
			Remediation: "move the credential into configuration or a secret store and rotate it",
		}
		t.Normalize()
		threats = append(threats, t)
	}

	for _, match := range analyzer.GetURLs() {
		if match == nil {
			continue
		}
		raw := strings.TrimSpace(match.URL)
		if !strings.HasPrefix(raw, "http://") {
			continue
		}
		t := models.ThreatMatch{
			ID:          uuid.NewString(),
			RuleID:      "jsluice.url.cleartext-http",
			RuleName:    "cleartext-http-url",
			Description: fmt.Sprintf("cleartext HTTP endpoint %q referenced from JavaScript", raw),
			Category:    "insecure_transport",
			Severity:    models.SeverityLow,
			FilePath:    path,
			LineStart:   1,
			LineEnd:     1,
			Confidence:  0.5,
			Source:      models.SourceStaticAnalyzer,
			CWEIDs:      []string{"CWE-319"},
			Remediation: "use https:// for all external endpoints",
		}
		t.Normalize()
		threats = append(threats, t)
	}
	return threats
}

func jsluiceSeverity(s jsluice.Severity) models.Severity {
	switch s {
	case jsluice.SeverityHigh:
		return models.SeverityHigh
	case jsluice.SeverityMedium:
		return models.SeverityMedium
	case jsluice.SeverityLow:
		return models.SeverityLow
	default:
		return models.SeverityLow
	}
}

func jsluiceConfidence(s jsluice.Severity) float64 {
	switch s {
	case jsluice.SeverityHigh:
		return 0.9
	case jsluice.SeverityMedium:
		return 0.7
	default:
		return 0.5
	}
}
