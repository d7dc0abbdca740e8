package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"secscan/cache"
	"secscan/config"
	"secscan/logger"
	"secscan/models"
)

// ErrTargetNotFound is the one fatal scan error: the requested file or
// directory does not exist. Everything else degrades.
var ErrTargetNotFound = errors.New("scan target not found")

// StaticAnalyzer is the engine's view of the pattern-based subprocess
// scanner. Every method is independently fallible.
type StaticAnalyzer interface {
	IsAvailable() bool
	Status() models.AnalyzerStatus
	ScanCode(ctx context.Context, code, path string) ([]models.ThreatMatch, error)
	ScanFile(ctx context.Context, path string) ([]models.ThreatMatch, error)
	ScanDirectory(ctx context.Context, paths []string) ([]models.ThreatMatch, error)
}

// LLMAnalyzer is the engine's view of the semantic scanner.
type LLMAnalyzer interface {
	IsAvailable() bool
	Status() models.AnalyzerStatus
	AnalyzeCode(ctx context.Context, code, path, language string) ([]models.ThreatMatch, error)
	AnalyzeFile(ctx context.Context, path, language string) ([]models.ThreatMatch, error)
	AnalyzeFiles(ctx context.Context, paths []string, languageOf func(string) string) ([]models.ThreatMatch, error)
}

// Validator is the engine's view of the second-pass false-positive filter.
type Validator interface {
	IsFullyFunctional() bool
	Validate(ctx context.Context, threats []models.ThreatMatch, sourceContext, path string, generateExploits bool) (map[string]models.ValidationResult, error)
	Stats(validations map[string]models.ValidationResult) models.ValidationStats
}

// CacheStore is the consumed caching contract. Both operations are
// best-effort; implementations signal a miss rather than an error.
type CacheStore interface {
	Get(key models.CacheKey) (*models.ScanResult, bool)
	Put(key models.CacheKey, result *models.ScanResult)
}

// ScanEngine coordinates the analyzers, the validator and the cache. All
// collaborators are injected at construction; configuration is read from
// the injected Config, never from global state.
type ScanEngine struct {
	cfg       *config.Config
	static    StaticAnalyzer
	llm       LLMAnalyzer
	validator Validator
	cache     CacheStore
	filter    *FileFilter
	telemetry TelemetrySink
}

// NewScanEngine wires an engine. cacheStore, validator and telemetry may
// be nil (caching off, validation unavailable, telemetry discarded).
func NewScanEngine(cfg *config.Config, static StaticAnalyzer, llm LLMAnalyzer, validator Validator, cacheStore CacheStore, telemetry TelemetrySink) *ScanEngine {
	if telemetry == nil {
		telemetry = NopSink{}
	}
	return &ScanEngine{
		cfg:       cfg,
		static:    static,
		llm:       llm,
		validator: validator,
		cache:     cacheStore,
		filter:    NewFileFilter(cfg),
		telemetry: telemetry,
	}
}

// FileFilter exposes the engine's file eligibility rules.
func (e *ScanEngine) FileFilter() *FileFilter {
	return e.filter
}

// StaticStatus and LLMStatus surface analyzer diagnostics.
func (e *ScanEngine) StaticStatus() models.AnalyzerStatus { return e.static.Status() }
func (e *ScanEngine) LLMStatus() models.AnalyzerStatus    { return e.llm.Status() }

func (e *ScanEngine) fingerprint(opts models.ScanOptions) cache.ScanFingerprint {
	return cache.ScanFingerprint{
		Options:             opts,
		RulesConfig:         e.cfg.Scanner.RulesConfig,
		Model:               e.cfg.LLM.Model,
		ConfidenceThreshold: e.cfg.Validation.ConfidenceThreshold,
		MaxContextFiles:     e.cfg.Validation.MaxContextFiles,
	}
}

func (e *ScanEngine) cacheLookup(key models.CacheKey) (*models.ScanResult, bool) {
	if e.cache == nil || !e.cfg.Cache.Enabled {
		return nil, false
	}
	return e.cache.Get(key)
}

func (e *ScanEngine) cacheStore(key models.CacheKey, result *models.ScanResult) {
	if e.cache == nil || !e.cfg.Cache.Enabled {
		return
	}
	e.cache.Put(key, result)
}

// ScanCode scans an in-memory snippet. path is used only for language
// detection and cache identity and need not exist. Analyzer failures are
// isolated per phase; the call returns an error only on cancellation.
func (e *ScanEngine) ScanCode(ctx context.Context, code, path string, opts models.ScanOptions) (*models.ScanResult, error) {
	result := newResult(path)
	result.Language = DetectLanguage(path)

	if code == "" {
		reason := "empty input"
		result.Metadata.StaticPhase = models.PhaseSkippedReason(reason)
		result.Metadata.LLMPhase = models.PhaseSkippedReason(reason)
		result.Metadata.ValidationPhase = models.PhaseSkippedReason(reason)
		finishResult(result)
		return result, nil
	}

	key := cache.NewKey(models.ScanKindCode, code, e.fingerprint(opts))
	if cached, ok := e.cacheLookup(key); ok {
		cached.Metadata.CacheHit = true
		logger.Debug("scan %s: cache hit for %s", cached.ScanID, path)
		return cached, nil
	}

	e.runAnalyzers(ctx, result, opts, contentTarget{code: code, path: path})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	merged := MergeThreats(result.StaticThreats, result.LLMThreats)
	merged = FilterBySeverity(merged, opts.SeverityThreshold)

	merged = e.runValidation(ctx, result, opts, merged, code, path)
	result.Threats = merged

	finishResult(result)
	e.emitTelemetry(result)
	e.cacheStore(key, result)
	return result, nil
}

// ScanFile reads a file and scans its content. A missing file is fatal
// and returns ErrTargetNotFound before any cache lookup.
func (e *ScanEngine) ScanFile(ctx context.Context, path string, opts models.ScanOptions) (*models.ScanResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrTargetNotFound, path)
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if max := e.cfg.Scanner.MaxFileSize; max > 0 && info.Size() > max {
		return nil, fmt.Errorf("%s is %d bytes, over the %d byte scan limit", path, info.Size(), max)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrTargetNotFound, path)
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	result := newResult(path)
	result.Language = DetectLanguage(path)
	code := string(raw)

	if code == "" {
		reason := "empty file"
		result.Metadata.StaticPhase = models.PhaseSkippedReason(reason)
		result.Metadata.LLMPhase = models.PhaseSkippedReason(reason)
		result.Metadata.ValidationPhase = models.PhaseSkippedReason(reason)
		finishResult(result)
		return result, nil
	}

	key := cache.NewKey(models.ScanKindFile, code, e.fingerprint(opts))
	if cached, ok := e.cacheLookup(key); ok {
		cached.Metadata.CacheHit = true
		logger.Debug("scan %s: cache hit for %s", cached.ScanID, path)
		return cached, nil
	}

	e.runAnalyzers(ctx, result, opts, contentTarget{code: code, path: path, onDisk: true})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	merged := MergeThreats(result.StaticThreats, result.LLMThreats)
	merged = FilterBySeverity(merged, opts.SeverityThreshold)

	merged = e.runValidation(ctx, result, opts, merged, code, path)
	result.Threats = merged

	finishResult(result)
	e.emitTelemetry(result)
	e.cacheStore(key, result)
	return result, nil
}

// contentTarget describes what the two analyzer phases should look at.
type contentTarget struct {
	code   string
	path   string
	onDisk bool
}

// runAnalyzers executes the static and LLM phases concurrently — neither
// depends on the other's output, and the merge step is deterministic
// regardless of completion order. Each phase's failure is recorded and
// isolated.
func (e *ScanEngine) runAnalyzers(ctx context.Context, result *models.ScanResult, opts models.ScanOptions, target contentTarget) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		result.StaticThreats, result.Metadata.StaticPhase = e.staticPhase(ctx, opts, target)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		result.LLMThreats, result.Metadata.LLMPhase = e.llmPhase(ctx, opts, target, result.Language)
	}()

	wg.Wait()
}

func (e *ScanEngine) staticPhase(ctx context.Context, opts models.ScanOptions, target contentTarget) ([]models.ThreatMatch, models.PhaseResult) {
	if !opts.UseStatic {
		return nil, models.PhaseSkippedReason("disabled by request")
	}
	if !e.static.IsAvailable() {
		status := e.static.Status()
		reason := status.Error
		if reason == "" {
			reason = "analyzer not available"
		}
		return nil, models.PhaseUnavailableReason(reason)
	}

	var threats []models.ThreatMatch
	var err error
	if target.onDisk {
		threats, err = e.static.ScanFile(ctx, target.path)
	} else {
		threats, err = e.static.ScanCode(ctx, target.code, target.path)
	}
	if err != nil {
		logger.Warn("static phase failed for %s: %v", target.path, err)
		return nil, models.PhaseFailedErr(err)
	}
	return threats, models.PhaseOK()
}

func (e *ScanEngine) llmPhase(ctx context.Context, opts models.ScanOptions, target contentTarget, language string) ([]models.ThreatMatch, models.PhaseResult) {
	if !opts.UseLLM {
		return nil, models.PhaseSkippedReason("disabled by request")
	}
	if !e.llm.IsAvailable() {
		status := e.llm.Status()
		reason := status.Error
		if reason == "" {
			reason = "analyzer not available"
		}
		return nil, models.PhaseUnavailableReason(reason)
	}

	threats, err := e.llm.AnalyzeCode(ctx, target.code, target.path, language)
	if err != nil {
		logger.Warn("llm phase failed for %s: %v", target.path, err)
		return nil, models.PhaseFailedErr(err)
	}
	return threats, models.PhaseOK()
}

// runValidation applies the optional second pass to the merged list and
// returns the (possibly filtered) threats. On any validation failure the
// original list is kept.
func (e *ScanEngine) runValidation(ctx context.Context, result *models.ScanResult, opts models.ScanOptions, merged []models.ThreatMatch, sourceContext, path string) []models.ThreatMatch {
	if !opts.UseValidation {
		result.Metadata.ValidationPhase = models.PhaseSkippedReason("disabled by request")
		return merged
	}
	if e.validator == nil || !e.validator.IsFullyFunctional() {
		result.Metadata.ValidationPhase = models.PhaseSkippedReason("validator not available")
		return merged
	}
	if len(merged) == 0 {
		result.Metadata.ValidationPhase = models.PhaseSkippedReason("no threats to validate")
		return merged
	}

	validations, err := e.validator.Validate(ctx, merged, sourceContext, path, opts.GenerateExploits)
	if err != nil {
		logger.Warn("validation failed for %s, keeping unfiltered threats: %v", path, err)
		result.Metadata.ValidationPhase = models.PhaseFailedErr(err)
		return merged
	}

	result.Validations = validations
	filtered := ApplyValidationFilter(merged, validations, e.cfg.Validation.ConfidenceThreshold)
	result.Metadata.ValidationPhase = models.PhaseOKStats(e.validator.Stats(validations))
	logger.Info("validation kept %d of %d threats for %s", len(filtered), len(merged), path)
	return filtered
}

func (e *ScanEngine) emitTelemetry(result *models.ScanResult) {
	for _, t := range result.Threats {
		e.telemetry.ThreatDetected(result.ScanID, t)
	}
	e.telemetry.PhaseCompleted(result.ScanID, "static", result.Metadata.StaticPhase)
	e.telemetry.PhaseCompleted(result.ScanID, "llm", result.Metadata.LLMPhase)
	e.telemetry.PhaseCompleted(result.ScanID, "validation", result.Metadata.ValidationPhase)
}

func newResult(target string) *models.ScanResult {
	return &models.ScanResult{
		ScanID:    uuid.NewString(),
		Target:    target,
		StartedAt: time.Now(),
		Metadata: models.ScanMetadata{
			StaticPhase:     models.PhaseResult{Status: models.PhaseNotRequested},
			LLMPhase:        models.PhaseResult{Status: models.PhaseNotRequested},
			ValidationPhase: models.PhaseResult{Status: models.PhaseNotRequested},
		},
	}
}

func finishResult(result *models.ScanResult) {
	result.ComputeStats()
	result.Metadata.DurationMS = time.Since(result.StartedAt).Milliseconds()
}
