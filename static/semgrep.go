package static

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"secscan/config"
	"secscan/logger"
	"secscan/models"
)

// ErrUnavailable is returned when the semgrep binary cannot be found.
var ErrUnavailable = errors.New("static analyzer unavailable")

const installGuidance = "install semgrep: pip install semgrep (or brew install semgrep); see https://semgrep.dev/docs/getting-started"

// Analyzer wraps the semgrep subprocess. A single Analyzer is safe for
// concurrent use; each scan spawns its own process.
type Analyzer struct {
	binary      string
	rulesConfig string
	timeout     time.Duration
}

// New builds an Analyzer from injected configuration.
func New(cfg *config.Config) *Analyzer {
	return &Analyzer{
		binary:      cfg.Scanner.Binary,
		rulesConfig: cfg.Scanner.RulesConfig,
		timeout:     cfg.ScannerTimeout(),
	}
}

// RulesConfig exposes the active rules identifier for cache fingerprinting.
func (a *Analyzer) RulesConfig() string {
	return a.rulesConfig
}

// IsAvailable reports whether the semgrep binary is on PATH.
func (a *Analyzer) IsAvailable() bool {
	_, err := exec.LookPath(a.binary)
	return err == nil
}

// Status reports availability, version and install guidance.
func (a *Analyzer) Status() models.AnalyzerStatus {
	status := models.AnalyzerStatus{Name: "semgrep"}
	path, err := exec.LookPath(a.binary)
	if err != nil {
		status.Error = fmt.Sprintf("%q not found on PATH", a.binary)
		status.InstallGuidance = installGuidance
		return status
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, path, "--version").Output()
	if err != nil {
		status.Error = fmt.Sprintf("%s --version failed: %v", a.binary, err)
		status.InstallGuidance = installGuidance
		return status
	}
	status.Available = true
	status.Version = strings.TrimSpace(string(out))
	return status
}

// ScanCode scans an in-memory snippet by writing it to a temp file whose
// extension matches path, so semgrep applies the right language rules.
func (a *Analyzer) ScanCode(ctx context.Context, code, path string) ([]models.ThreatMatch, error) {
	if strings.TrimSpace(code) == "" {
		return nil, nil
	}

	tmpDir, err := os.MkdirTemp("", "secscan-snippet-*")
	if err != nil {
		return nil, fmt.Errorf("creating snippet temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	name := filepath.Base(path)
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "snippet.txt"
	}
	tmpFile := filepath.Join(tmpDir, name)
	if err := os.WriteFile(tmpFile, []byte(code), 0o600); err != nil {
		return nil, fmt.Errorf("writing snippet temp file: %w", err)
	}

	threats, err := a.run(ctx, []string{tmpFile})
	if err != nil {
		return nil, err
	}
	// Findings point at the temp file; rewrite to the caller's path.
	for i := range threats {
		threats[i].FilePath = path
	}
	if isJSPath(path) {
		threats = append(threats, ExtractJSThreats([]byte(code), path)...)
	}
	return threats, nil
}

// ScanFile scans a single file on disk.
func (a *Analyzer) ScanFile(ctx context.Context, path string) ([]models.ThreatMatch, error) {
	threats, err := a.run(ctx, []string{path})
	if err != nil {
		return nil, err
	}
	return append(threats, a.jsluicePass([]string{path})...), nil
}

// ScanDirectory scans the whole eligible file set in one subprocess call,
// amortizing semgrep's startup cost. Findings carry their own file paths.
func (a *Analyzer) ScanDirectory(ctx context.Context, paths []string) ([]models.ThreatMatch, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	threats, err := a.run(ctx, paths)
	if err != nil {
		return nil, err
	}
	return append(threats, a.jsluicePass(paths)...), nil
}

// jsluicePass runs the in-process JavaScript supplement over the JS subset
// of paths. Unreadable files are skipped; the pass never fails the phase.
func (a *Analyzer) jsluicePass(paths []string) []models.ThreatMatch {
	var threats []models.ThreatMatch
	for _, p := range paths {
		if !isJSPath(p) {
			continue
		}
		raw, err := os.ReadFile(p)
		if err != nil {
			logger.Debug("jsluice pass: cannot read %s: %v", p, err)
			continue
		}
		threats = append(threats, ExtractJSThreats(raw, filepath.ToSlash(p))...)
	}
	return threats
}

func (a *Analyzer) run(ctx context.Context, targets []string) ([]models.ThreatMatch, error) {
	bin, err := exec.LookPath(a.binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %q not found on PATH", ErrUnavailable, a.binary)
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	args := []string{
		"scan",
		"--config", a.rulesConfig,
		"--json",
		"--quiet",
		"--disable-version-check",
	}
	args = append(args, targets...)

	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err = cmd.Run()
	logger.Debug("semgrep run over %d target(s) took %s", len(targets), time.Since(start))
	if ctx.Err() != nil {
		return nil, fmt.Errorf("semgrep run: %w", ctx.Err())
	}
	if err != nil {
		// Semgrep exits non-zero for operational errors; findings alone
		// exit zero. Anything here is a real failure.
		return nil, fmt.Errorf("semgrep run failed: %w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}

	return parseSemgrepOutput(stdout.Bytes())
}

// parseSemgrepOutput converts semgrep's JSON report into ThreatMatch
// values. gjson keeps us tolerant of schema drift across semgrep versions
// (cwe may be a string or an array, metadata fields come and go).
func parseSemgrepOutput(raw []byte) ([]models.ThreatMatch, error) {
	results := gjson.GetBytes(raw, "results")
	if !results.Exists() {
		return nil, fmt.Errorf("semgrep output missing results array")
	}

	var threats []models.ThreatMatch
	results.ForEach(func(_, r gjson.Result) bool {
		ruleID := r.Get("check_id").String()
		t := models.ThreatMatch{
			ID:          uuid.NewString(),
			RuleID:      ruleID,
			RuleName:    ruleNameFromID(ruleID),
			Description: r.Get("extra.message").String(),
			Category:    categoryFor(r),
			Severity:    severityFor(r),
			FilePath:    filepath.ToSlash(r.Get("path").String()),
			LineStart:   int(r.Get("start.line").Int()),
			LineEnd:     int(r.Get("end.line").Int()),
			CodeSnippet: r.Get("extra.lines").String(),
			Confidence:  confidenceFor(r),
			Source:      models.SourceStaticAnalyzer,
			CWEIDs:      cweListFor(r),
			Remediation: r.Get("extra.fix").String(),
			References:  stringList(r.Get("extra.metadata.references")),
		}
		t.Normalize()
		threats = append(threats, t)
		return true
	})
	return threats, nil
}

// ruleNameFromID keeps the last dotted segment of a semgrep check id,
// e.g. "python.lang.security.audit.eval-detected" -> "eval-detected".
func ruleNameFromID(id string) string {
	if i := strings.LastIndex(id, "."); i >= 0 && i+1 < len(id) {
		return id[i+1:]
	}
	return id
}

func categoryFor(r gjson.Result) string {
	if c := r.Get("extra.metadata.vulnerability_class.0").String(); c != "" {
		return normalizeCategory(c)
	}
	if c := r.Get("extra.metadata.category").String(); c != "" {
		return normalizeCategory(c)
	}
	return "security"
}

func normalizeCategory(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	return strings.ReplaceAll(strings.ReplaceAll(c, " ", "_"), "-", "_")
}

// severityFor maps semgrep's INFO/WARNING/ERROR onto the four-level scale,
// upgrading to critical when the rule metadata says so.
func severityFor(r gjson.Result) models.Severity {
	meta := strings.ToLower(r.Get("extra.metadata.severity").String())
	if meta == "critical" {
		return models.SeverityCritical
	}
	switch strings.ToUpper(r.Get("extra.severity").String()) {
	case "ERROR":
		return models.SeverityHigh
	case "WARNING":
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

func confidenceFor(r gjson.Result) float64 {
	switch strings.ToUpper(r.Get("extra.metadata.confidence").String()) {
	case "HIGH":
		return 0.9
	case "MEDIUM":
		return 0.7
	case "LOW":
		return 0.5
	}
	return 0.8
}

// cweListFor handles cwe appearing as a string, an array, or not at all.
func cweListFor(r gjson.Result) []string {
	cwe := r.Get("extra.metadata.cwe")
	if !cwe.Exists() {
		return nil
	}
	if cwe.IsArray() {
		return stringList(cwe)
	}
	if s := strings.TrimSpace(cwe.String()); s != "" {
		return []string{s}
	}
	return nil
}

func stringList(res gjson.Result) []string {
	if !res.IsArray() {
		return nil
	}
	var out []string
	res.ForEach(func(_, v gjson.Result) bool {
		if s := strings.TrimSpace(v.String()); s != "" {
			out = append(out, s)
		}
		return true
	})
	return out
}
