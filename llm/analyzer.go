package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"secscan/logger"
	"secscan/models"
)

const analysisSystemPrompt = `You are a security code auditor. Analyze the given source code for real,
exploitable vulnerabilities. Respond with a JSON object of the form
{"findings": [...]} where each finding has: rule_name, category (snake_case,
e.g. code_injection, sql_injection, hardcoded_secret), severity (low, medium,
high, critical), line_start, line_end, description, confidence (0.0-1.0),
cwe_ids (array of "CWE-N" strings), remediation. Report nothing but the JSON
object. If there are no issues return {"findings": []}.`

// maxPromptBytes caps how much source is sent in a single request.
const maxPromptBytes = 48 << 10

// batchWorkers bounds the adapter-internal parallelism of AnalyzeFiles.
const batchWorkers = 4

// Finding is one issue reported by the model, before conversion into the
// engine's ThreatMatch shape.
type Finding struct {
	RuleName    string   `json:"rule_name"`
	Category    string   `json:"category"`
	Severity    string   `json:"severity"`
	LineStart   int      `json:"line_start"`
	LineEnd     int      `json:"line_end"`
	Description string   `json:"description"`
	Confidence  float64  `json:"confidence"`
	CWEIDs      []string `json:"cwe_ids"`
	Remediation string   `json:"remediation"`
}

// ToThreatMatch converts a model finding into a ThreatMatch anchored at
// path. Severities the model invents outside the scale collapse to low.
func (f Finding) ToThreatMatch(path string) models.ThreatMatch {
	sev, _ := models.ParseSeverity(f.Severity)
	t := models.ThreatMatch{
		ID:          uuid.NewString(),
		RuleID:      "llm." + normalizeRuleName(f.RuleName),
		RuleName:    f.RuleName,
		Description: f.Description,
		Category:    normalizeRuleName(f.Category),
		Severity:    sev,
		FilePath:    path,
		LineStart:   f.LineStart,
		LineEnd:     f.LineEnd,
		Confidence:  f.Confidence,
		Source:      models.SourceLLM,
		CWEIDs:      f.CWEIDs,
		Remediation: f.Remediation,
	}
	t.Normalize()
	return t
}

func normalizeRuleName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "unspecified"
	}
	return strings.ReplaceAll(strings.ReplaceAll(s, " ", "_"), "-", "_")
}

// Analyzer is the semantic (LLM-backed) threat analyzer.
type Analyzer struct {
	client *Client
}

// NewAnalyzer wraps a Client.
func NewAnalyzer(client *Client) *Analyzer {
	return &Analyzer{client: client}
}

func (a *Analyzer) IsAvailable() bool {
	return a.client.IsAvailable()
}

func (a *Analyzer) Status() models.AnalyzerStatus {
	return a.client.Status()
}

// AnalyzeCode analyzes one in-memory snippet.
func (a *Analyzer) AnalyzeCode(ctx context.Context, code, path, language string) ([]models.ThreatMatch, error) {
	if strings.TrimSpace(code) == "" {
		return nil, nil
	}
	if len(code) > maxPromptBytes {
		logger.Warn("llm: truncating %s from %d to %d bytes for analysis", path, len(code), maxPromptBytes)
		code = code[:maxPromptBytes]
	}

	prompt := fmt.Sprintf("Language: %s\nFile: %s\n\n```\n%s\n```", language, path, code)
	content, err := a.client.Complete(ctx, analysisSystemPrompt, prompt)
	if err != nil {
		return nil, err
	}

	findings, err := ParseFindings(content)
	if err != nil {
		return nil, fmt.Errorf("parsing llm findings for %s: %w", path, err)
	}

	threats := make([]models.ThreatMatch, 0, len(findings))
	for _, f := range findings {
		threats = append(threats, f.ToThreatMatch(path))
	}
	return threats, nil
}

// AnalyzeFile reads a file from disk and analyzes its content.
func (a *Analyzer) AnalyzeFile(ctx context.Context, path, language string) ([]models.ThreatMatch, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s for llm analysis: %w", path, err)
	}
	return a.AnalyzeCode(ctx, string(raw), path, language)
}

// AnalyzeFiles is the batch entry point for directory scans: one logical
// call over the whole file set, parallelized internally under a bounded
// worker count. A single file's failure is logged and skipped; the batch
// fails only when every file fails.
func (a *Analyzer) AnalyzeFiles(ctx context.Context, paths []string, languageOf func(string) string) ([]models.ThreatMatch, error) {
	if len(paths) == 0 {
		return nil, nil
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		threats  []models.ThreatMatch
		failures int
		firstErr error
	)
	sem := make(chan struct{}, batchWorkers)

	for _, p := range paths {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				mu.Lock()
				failures++
				if firstErr == nil {
					firstErr = ctx.Err()
				}
				mu.Unlock()
				return
			}

			found, err := a.AnalyzeFile(ctx, p, languageOf(p))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
				if firstErr == nil {
					firstErr = err
				}
				logger.Warn("llm: batch analysis of %s failed: %v", p, err)
				return
			}
			threats = append(threats, found...)
		}()
	}
	wg.Wait()

	if failures == len(paths) {
		return nil, fmt.Errorf("llm batch analysis failed for all %d files: %w", len(paths), firstErr)
	}
	return threats, nil
}

// ParseFindings extracts the findings array from a model response,
// tolerating markdown fences and a bare top-level array.
func ParseFindings(content string) ([]Finding, error) {
	cleaned := stripFences(content)

	arr := gjson.Get(cleaned, "findings")
	if !arr.Exists() {
		root := gjson.Parse(cleaned)
		if root.IsArray() {
			arr = root
		} else {
			return nil, fmt.Errorf("response has neither a findings array nor a top-level array")
		}
	}

	var findings []Finding
	if err := json.Unmarshal([]byte(arr.Raw), &findings); err != nil {
		return nil, fmt.Errorf("unmarshalling findings array: %w", err)
	}
	return findings, nil
}

// stripFences removes a surrounding markdown code fence, if present.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
