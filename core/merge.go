package core

import (
	"sort"

	"secscan/models"
)

// lineProximity is how close (in lines) an LLM finding must be to a static
// finding of the same category to be considered a duplicate.
const lineProximity = 2

// MergeThreats combines the two analyzers' raw lists. Static findings are
// accepted unconditionally; an LLM finding is dropped as a duplicate when
// an already-accepted finding in the same file shares its category and sits
// within lineProximity lines. Static wins: it carries exact rule provenance.
// The result is ordered by line, then by severity (critical first within a
// line), so merge output is deterministic regardless of phase completion
// order.
func MergeThreats(static, llm []models.ThreatMatch) []models.ThreatMatch {
	merged := make([]models.ThreatMatch, 0, len(static)+len(llm))
	merged = append(merged, static...)

	for _, candidate := range llm {
		if !isDuplicate(merged, candidate) {
			merged = append(merged, candidate)
		}
	}

	SortThreats(merged)
	return merged
}

func isDuplicate(accepted []models.ThreatMatch, candidate models.ThreatMatch) bool {
	for _, a := range accepted {
		if a.FilePath != candidate.FilePath {
			continue
		}
		delta := a.LineStart - candidate.LineStart
		if delta < 0 {
			delta = -delta
		}
		if delta <= lineProximity && a.Category == candidate.Category {
			return true
		}
	}
	return false
}

// SortThreats orders a threat list by (filePath asc, lineStart asc,
// severity rank desc, rule id asc). The severity tie-break is descending
// so the most severe finding on a line leads.
func SortThreats(threats []models.ThreatMatch) {
	sort.SliceStable(threats, func(i, j int) bool {
		if threats[i].FilePath != threats[j].FilePath {
			return threats[i].FilePath < threats[j].FilePath
		}
		if threats[i].LineStart != threats[j].LineStart {
			return threats[i].LineStart < threats[j].LineStart
		}
		if ri, rj := threats[i].Severity.Rank(), threats[j].Severity.Rank(); ri != rj {
			return ri > rj
		}
		return threats[i].RuleID < threats[j].RuleID
	})
}

// FilterBySeverity keeps only threats at or above the threshold. An empty
// threshold keeps everything.
func FilterBySeverity(threats []models.ThreatMatch, threshold models.Severity) []models.ThreatMatch {
	if threshold == "" {
		return threats
	}
	out := threats[:0:0]
	for _, t := range threats {
		if t.Severity.AtLeast(threshold) {
			out = append(out, t)
		}
	}
	return out
}

// ApplyValidationFilter drops threats judged to be false positives. A
// threat survives when it has no verdict at all (the validator may skip
// candidates under budget pressure) or when its verdict is legitimate with
// confidence at or above the threshold.
func ApplyValidationFilter(threats []models.ThreatMatch, validations map[string]models.ValidationResult, confidenceThreshold float64) []models.ThreatMatch {
	if len(validations) == 0 {
		return threats
	}
	out := threats[:0:0]
	for _, t := range threats {
		v, ok := validations[t.ID]
		if !ok || (v.IsLegitimate && v.Confidence >= confidenceThreshold) {
			out = append(out, t)
		}
	}
	return out
}
