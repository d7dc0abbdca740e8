package core

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"

	"secscan/cache"
	"secscan/logger"
	"secscan/models"
)

// maxStreamWorkers caps the streaming worker pool regardless of CPU count.
const maxStreamWorkers = 32

// ScanDirectory scans a whole directory tree as one aggregated result.
// Each analyzer is invoked once over the eligible file set (one subprocess
// call, one logical LLM batch), and the result carries per-file summary
// counts rather than N separate results.
func (e *ScanEngine) ScanDirectory(ctx context.Context, dir string, recursive bool, opts models.ScanOptions) (*models.ScanResult, error) {
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrTargetNotFound, dir)
		}
		return nil, fmt.Errorf("stat %s: %w", dir, err)
	}

	files, err := e.filter.Discover(dir, recursive)
	if err != nil {
		return nil, err
	}

	result := newResult(dir)
	result.Metadata.FilesScanned = len(files)

	if len(files) == 0 {
		reason := "no eligible files"
		result.Metadata.StaticPhase = models.PhaseSkippedReason(reason)
		result.Metadata.LLMPhase = models.PhaseSkippedReason(reason)
		result.Metadata.ValidationPhase = models.PhaseSkippedReason(reason)
		finishResult(result)
		return result, nil
	}

	key := cache.NewKey(models.ScanKindDirectory, directoryIdentity(files), e.fingerprint(opts))
	if cached, ok := e.cacheLookup(key); ok {
		cached.Metadata.CacheHit = true
		logger.Debug("scan %s: cache hit for directory %s", cached.ScanID, dir)
		return cached, nil
	}

	e.runBatchAnalyzers(ctx, result, opts, files)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	merged := MergeThreats(result.StaticThreats, result.LLMThreats)
	merged = FilterBySeverity(merged, opts.SeverityThreshold)

	merged = e.runDirectoryValidation(ctx, result, opts, merged, files, dir)
	result.Threats = merged

	result.Metadata.FileSummaries = buildFileSummaries(files, merged)
	finishResult(result)
	e.emitTelemetry(result)
	e.cacheStore(key, result)
	return result, nil
}

// runBatchAnalyzers runs the two batch phases concurrently, mirroring the
// single-target flow.
func (e *ScanEngine) runBatchAnalyzers(ctx context.Context, result *models.ScanResult, opts models.ScanOptions, files []string) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if !opts.UseStatic {
			result.Metadata.StaticPhase = models.PhaseSkippedReason("disabled by request")
			return
		}
		if !e.static.IsAvailable() {
			result.Metadata.StaticPhase = models.PhaseUnavailableReason(availabilityReason(e.static.Status()))
			return
		}
		threats, err := e.static.ScanDirectory(ctx, files)
		if err != nil {
			logger.Warn("static batch phase failed: %v", err)
			result.Metadata.StaticPhase = models.PhaseFailedErr(err)
			return
		}
		result.StaticThreats = threats
		result.Metadata.StaticPhase = models.PhaseOK()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if !opts.UseLLM {
			result.Metadata.LLMPhase = models.PhaseSkippedReason("disabled by request")
			return
		}
		if !e.llm.IsAvailable() {
			result.Metadata.LLMPhase = models.PhaseUnavailableReason(availabilityReason(e.llm.Status()))
			return
		}
		threats, err := e.llm.AnalyzeFiles(ctx, files, DetectLanguage)
		if err != nil {
			logger.Warn("llm batch phase failed: %v", err)
			result.Metadata.LLMPhase = models.PhaseFailedErr(err)
			return
		}
		result.LLMThreats = threats
		result.Metadata.LLMPhase = models.PhaseOK()
	}()

	wg.Wait()
}

// runDirectoryValidation validates the combined threat list once, using a
// bounded sample of file contents as context, then filters the raw lists
// too so per-file summary counts stay consistent with the final set.
func (e *ScanEngine) runDirectoryValidation(ctx context.Context, result *models.ScanResult, opts models.ScanOptions, merged []models.ThreatMatch, files []string, dir string) []models.ThreatMatch {
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

	sourceContext := e.validationContext(merged, files)
	validations, err := e.validator.Validate(ctx, merged, sourceContext, dir, opts.GenerateExploits)
	if err != nil {
		logger.Warn("directory validation failed for %s, keeping unfiltered threats: %v", dir, err)
		result.Metadata.ValidationPhase = models.PhaseFailedErr(err)
		return merged
	}

	result.Validations = validations
	threshold := e.cfg.Validation.ConfidenceThreshold
	filtered := ApplyValidationFilter(merged, validations, threshold)
	result.StaticThreats = ApplyValidationFilter(result.StaticThreats, validations, threshold)
	result.LLMThreats = ApplyValidationFilter(result.LLMThreats, validations, threshold)
	result.Metadata.ValidationPhase = models.PhaseOKStats(e.validator.Stats(validations))
	logger.Info("directory validation kept %d of %d threats for %s", len(filtered), len(merged), dir)
	return filtered
}

// validationContext concatenates the contents of the files that produced
// threats, capped at the configured sample size to bound payload size.
func (e *ScanEngine) validationContext(threats []models.ThreatMatch, files []string) string {
	seen := make(map[string]bool)
	var sample []string
	for _, t := range threats {
		if t.FilePath != "" && !seen[t.FilePath] {
			seen[t.FilePath] = true
			sample = append(sample, t.FilePath)
		}
	}
	if len(sample) == 0 {
		sample = files
	}
	if max := e.cfg.Validation.MaxContextFiles; len(sample) > max {
		sample = sample[:max]
	}

	var sb strings.Builder
	for _, p := range sample {
		raw, err := os.ReadFile(p)
		if err != nil {
			logger.Debug("validation context: cannot read %s: %v", p, err)
			continue
		}
		fmt.Fprintf(&sb, "=== %s ===\n%s\n", p, raw)
	}
	return sb.String()
}

// buildFileSummaries derives the per-file report list from the final
// threat set, so sum(ThreatCount) always equals len(threats).
func buildFileSummaries(files []string, threats []models.ThreatMatch) []models.FileScanInfo {
	counts := make(map[string]int)
	for _, t := range threats {
		counts[t.FilePath]++
	}

	summaries := make([]models.FileScanInfo, 0, len(files))
	known := make(map[string]bool, len(files))
	for _, p := range files {
		known[p] = true
		summaries = append(summaries, models.FileScanInfo{
			FilePath:    p,
			Language:    DetectLanguage(p),
			ThreatCount: counts[p],
			HasIssues:   counts[p] > 0,
		})
	}
	// Threats can reference normalized path spellings the discovery list
	// does not contain; keep the accounting exact either way.
	for path, n := range counts {
		if !known[path] {
			summaries = append(summaries, models.FileScanInfo{
				FilePath:    path,
				Language:    DetectLanguage(path),
				ThreatCount: n,
				HasIssues:   true,
			})
		}
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].FilePath < summaries[j].FilePath })
	return summaries
}

// directoryIdentity fingerprints a file set for cache identity: every
// path with its content hash, in discovery order.
func directoryIdentity(files []string) string {
	var sb strings.Builder
	for _, p := range files {
		raw, err := os.ReadFile(p)
		if err != nil {
			// Unreadable now means unreadable at scan time too; fold the
			// error into the identity so it never collides with a clean run.
			fmt.Fprintf(&sb, "%s:unreadable\n", p)
			continue
		}
		fmt.Fprintf(&sb, "%s:%s\n", p, cache.HashContent(string(raw)))
	}
	return sb.String()
}

func availabilityReason(status models.AnalyzerStatus) string {
	if status.Error != "" {
		return status.Error
	}
	return "analyzer not available"
}

// streamWorkerCount sizes the bounded pool for streaming scans.
func streamWorkerCount(fileCount int) int {
	n := runtime.NumCPU() + 4
	if n > maxStreamWorkers {
		n = maxStreamWorkers
	}
	if n > fileCount {
		n = fileCount
	}
	if n < 1 {
		n = 1
	}
	return n
}

// ScanDirectoryStreaming scans each eligible file individually and yields
// one ScanResult per file as it completes, under a bounded worker pool. A
// per-file failure becomes an error-flagged result rather than aborting
// the stream; the channel closes after every file is accounted for.
func (e *ScanEngine) ScanDirectoryStreaming(ctx context.Context, dir string, recursive bool, opts models.ScanOptions) (<-chan *models.ScanResult, error) {
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrTargetNotFound, dir)
		}
		return nil, fmt.Errorf("stat %s: %w", dir, err)
	}

	files, err := e.filter.Discover(dir, recursive)
	if err != nil {
		return nil, err
	}

	out := make(chan *models.ScanResult)
	if len(files) == 0 {
		close(out)
		return out, nil
	}

	workers := streamWorkerCount(len(files))
	jobs := make(chan string)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				res := e.scanFileForStream(ctx, path, opts)
				select {
				case out <- res:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(out)
		go func() {
			defer close(jobs)
			for _, p := range files {
				select {
				case jobs <- p:
				case <-ctx.Done():
					return
				}
			}
		}()
		wg.Wait()
	}()

	logger.Info("streaming scan of %s: %d files across %d workers", dir, len(files), workers)
	return out, nil
}

// scanFileForStream converts any per-file failure (including cancellation)
// into an error-flagged result so the stream's accounting stays complete.
func (e *ScanEngine) scanFileForStream(ctx context.Context, path string, opts models.ScanOptions) *models.ScanResult {
	result, err := e.ScanFile(ctx, path, opts)
	if err != nil {
		failed := newResult(path)
		failed.Language = DetectLanguage(path)
		failed.Metadata.Error = err.Error()
		failed.Metadata.StaticPhase = models.PhaseFailedErr(err)
		failed.Metadata.LLMPhase = models.PhaseFailedErr(err)
		failed.Metadata.ValidationPhase = models.PhaseSkippedReason("scan failed")
		finishResult(failed)
		return failed
	}
	return result
}
