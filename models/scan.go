package models

import "time"

// ScanOptions selects which phases run and how results are filtered.
// Every field that changes scan output must also be folded into the cache
// metadata hash, see cache.HashMetadata.
type ScanOptions struct {
	UseStatic         bool     `json:"use_static"`
	UseLLM            bool     `json:"use_llm"`
	UseValidation     bool     `json:"use_validation"`
	SeverityThreshold Severity `json:"severity_threshold,omitempty"`
	GenerateExploits  bool     `json:"generate_exploits,omitempty"`
}

// DefaultScanOptions enables both analyzers and no validation pass.
func DefaultScanOptions() ScanOptions {
	return ScanOptions{UseStatic: true, UseLLM: true}
}

// ScanKind distinguishes cache identities for the three granularities.
type ScanKind string

const (
	ScanKindCode      ScanKind = "code"
	ScanKindFile      ScanKind = "file"
	ScanKindDirectory ScanKind = "directory"
)

// CacheKey is the opaque identity of one reproducible scan outcome.
type CacheKey struct {
	Kind         ScanKind `json:"kind"`
	ContentHash  string   `json:"content_hash"`
	MetadataHash string   `json:"metadata_hash"`
}

func (k CacheKey) String() string {
	return string(k.Kind) + ":" + k.ContentHash + ":" + k.MetadataHash
}

// FileScanInfo is the per-file summary carried by directory-level results.
type FileScanInfo struct {
	FilePath    string `json:"file_path"`
	Language    string `json:"language"`
	ThreatCount int    `json:"threat_count"`
	HasIssues   bool   `json:"has_issues"`
}

// ScanStats are derived counts over the final (merged, filtered) threat list.
type ScanStats struct {
	Total      int            `json:"total"`
	BySeverity map[string]int `json:"by_severity,omitempty"`
	ByCategory map[string]int `json:"by_category,omitempty"`
	BySource   map[string]int `json:"by_source,omitempty"`
}

// ScanMetadata records structured phase outcomes for one scan.
type ScanMetadata struct {
	StaticPhase     PhaseResult    `json:"static_phase"`
	LLMPhase        PhaseResult    `json:"llm_phase"`
	ValidationPhase PhaseResult    `json:"validation_phase"`
	CacheHit        bool           `json:"cache_hit"`
	Error           string         `json:"error,omitempty"`
	FilesScanned    int            `json:"files_scanned,omitempty"`
	FileSummaries   []FileScanInfo `json:"file_summaries,omitempty"`
	DurationMS      int64          `json:"duration_ms"`
}

// ScanResult is the merged, deduplicated, filtered view of one scan.
// StaticThreats and LLMThreats keep the raw pre-merge lists; Threats is the
// derived final list. A cached copy is serialized, never shared.
type ScanResult struct {
	ScanID        string                      `json:"scan_id"`
	Target        string                      `json:"target"`
	Language      string                      `json:"language,omitempty"`
	StaticThreats []ThreatMatch               `json:"static_threats"`
	LLMThreats    []ThreatMatch               `json:"llm_threats"`
	Threats       []ThreatMatch               `json:"threats"`
	Validations   map[string]ValidationResult `json:"validations,omitempty"`
	Metadata      ScanMetadata                `json:"metadata"`
	Stats         ScanStats                   `json:"stats"`
	StartedAt     time.Time                   `json:"started_at"`
}

// ComputeStats rebuilds the derived counters from the final threat list.
func (r *ScanResult) ComputeStats() {
	stats := ScanStats{
		Total:      len(r.Threats),
		BySeverity: make(map[string]int),
		ByCategory: make(map[string]int),
		BySource:   make(map[string]int),
	}
	for _, t := range r.Threats {
		stats.BySeverity[string(t.Severity)]++
		stats.ByCategory[t.Category]++
		stats.BySource[string(t.Source)]++
	}
	r.Stats = stats
}

// AnalyzerStatus describes an external analyzer's availability.
type AnalyzerStatus struct {
	Name            string `json:"name"`
	Available       bool   `json:"available"`
	Version         string `json:"version,omitempty"`
	Error           string `json:"error,omitempty"`
	InstallGuidance string `json:"install_guidance,omitempty"`
}
