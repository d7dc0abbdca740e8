package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secscan/models"
)

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func fileThreat(id, path, category string, line int, source models.ThreatSource) models.ThreatMatch {
	return models.ThreatMatch{
		ID:        id,
		RuleID:    "rule-" + id,
		Category:  category,
		Severity:  models.SeverityHigh,
		FilePath:  path,
		LineStart: line,
		LineEnd:   line,
		Source:    source,
	}
}

func TestScanDirectoryAccounting(t *testing.T) {
	dir := t.TempDir()
	fileA := writeTestFile(t, dir, "a.py", "eval(input())\n")
	fileB := writeTestFile(t, dir, "b.py", "import os\n")

	static := &stubStatic{available: true, threats: []models.ThreatMatch{
		fileThreat("s1", fileA, "code_injection", 1, models.SourceStaticAnalyzer),
		fileThreat("s2", fileA, "sql_injection", 20, models.SourceStaticAnalyzer),
	}}
	llm := &stubLLM{available: true, threats: []models.ThreatMatch{
		// Duplicate of s1 (same file, same category, within 2 lines).
		fileThreat("l1", fileA, "code_injection", 2, models.SourceLLM),
		fileThreat("l2", fileB, "hardcoded_secret", 5, models.SourceLLM),
	}}
	engine := NewScanEngine(testConfig(), static, llm, nil, nil, nil)

	result, err := engine.ScanDirectory(context.Background(), dir, true, models.ScanOptions{UseStatic: true, UseLLM: true})
	require.NoError(t, err)

	assert.Len(t, result.Threats, 3, "one llm duplicate dropped")
	assert.Equal(t, 1, static.calls, "one subprocess call for the whole set")
	assert.Equal(t, 1, llm.calls, "one batch call for the whole set")
	assert.Equal(t, 2, result.Metadata.FilesScanned)

	total := 0
	for _, fi := range result.Metadata.FileSummaries {
		total += fi.ThreatCount
		if fi.ThreatCount > 0 {
			assert.True(t, fi.HasIssues)
		}
	}
	assert.Equal(t, len(result.Threats), total, "per-file counts must sum to the final list")
}

func TestScanDirectoryValidationRebuildsCounts(t *testing.T) {
	dir := t.TempDir()
	fileA := writeTestFile(t, dir, "a.py", "eval(input())\n")

	static := &stubStatic{available: true, threats: []models.ThreatMatch{
		fileThreat("s1", fileA, "code_injection", 1, models.SourceStaticAnalyzer),
		fileThreat("s2", fileA, "weak_crypto", 9, models.SourceStaticAnalyzer),
	}}
	validator := &stubValidator{
		functional: true,
		verdicts: map[string]models.ValidationResult{
			"s1": {IsLegitimate: true, Confidence: 0.9},
			"s2": {IsLegitimate: false, Confidence: 0.9},
		},
	}
	engine := NewScanEngine(testConfig(), static, &stubLLM{}, validator, nil, nil)

	result, err := engine.ScanDirectory(context.Background(), dir, false,
		models.ScanOptions{UseStatic: true, UseValidation: true})
	require.NoError(t, err)

	require.Len(t, result.Threats, 1)
	assert.Len(t, result.StaticThreats, 1, "raw static list is filtered too")

	total := 0
	for _, fi := range result.Metadata.FileSummaries {
		total += fi.ThreatCount
	}
	assert.Equal(t, 1, total, "summary counts rebuilt from the filtered set")
}

func TestScanDirectoryNoEligibleFiles(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "image.dat", "\x00\x01\x02binary")

	engine := NewScanEngine(testConfig(), &stubStatic{available: true}, &stubLLM{available: true}, nil, nil, nil)

	result, err := engine.ScanDirectory(context.Background(), dir, true, models.DefaultScanOptions())
	require.NoError(t, err)

	assert.Empty(t, result.Threats)
	assert.Equal(t, models.PhaseSkipped, result.Metadata.StaticPhase.Status)
	assert.Equal(t, 0, result.Metadata.FilesScanned)
}

func TestScanDirectoryMissingIsFatal(t *testing.T) {
	engine := NewScanEngine(testConfig(), &stubStatic{}, &stubLLM{}, nil, nil, nil)

	_, err := engine.ScanDirectory(context.Background(), "/no/such/dir", true, models.DefaultScanOptions())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTargetNotFound)
}

func TestScanDirectoryCacheHit(t *testing.T) {
	dir := t.TempDir()
	fileA := writeTestFile(t, dir, "a.py", "eval(input())\n")

	static := &stubStatic{available: true, threats: []models.ThreatMatch{
		fileThreat("s1", fileA, "code_injection", 1, models.SourceStaticAnalyzer),
	}}
	engine := NewScanEngine(testConfig(), static, &stubLLM{}, nil, newMemCache(), nil)

	opts := models.ScanOptions{UseStatic: true}
	first, err := engine.ScanDirectory(context.Background(), dir, true, opts)
	require.NoError(t, err)
	assert.False(t, first.Metadata.CacheHit)

	second, err := engine.ScanDirectory(context.Background(), dir, true, opts)
	require.NoError(t, err)
	assert.True(t, second.Metadata.CacheHit)
	assert.Equal(t, first.Threats, second.Threats)
	assert.Equal(t, 1, static.calls)
}

func TestScanDirectoryStreamingYieldsPerFile(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "a.py", "eval(input())\n")
	writeTestFile(t, dir, "b.py", "import os\n")
	writeTestFile(t, dir, "c.py", "print('ok')\n")

	static := &stubStatic{available: true}
	engine := NewScanEngine(testConfig(), static, &stubLLM{available: true}, nil, nil, nil)

	results, err := engine.ScanDirectoryStreaming(context.Background(), dir, true, models.ScanOptions{UseStatic: true, UseLLM: true})
	require.NoError(t, err)

	seen := map[string]bool{}
	count := 0
	for result := range results {
		count++
		seen[result.Target] = true
		assert.Empty(t, result.Metadata.Error)
	}
	assert.Equal(t, 3, count, "one result per eligible file")
	assert.Len(t, seen, 3)
}

func TestScanDirectoryStreamingEmptyDirClosesStream(t *testing.T) {
	dir := t.TempDir()
	engine := NewScanEngine(testConfig(), &stubStatic{}, &stubLLM{}, nil, nil, nil)

	results, err := engine.ScanDirectoryStreaming(context.Background(), dir, true, models.DefaultScanOptions())
	require.NoError(t, err)

	_, open := <-results
	assert.False(t, open, "stream over an empty directory closes immediately")
}

func TestScanDirectoryStreamingCancellation(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.py", "b.py", "c.py", "d.py", "e.py", "f.py"} {
		writeTestFile(t, dir, name, "print('x')\n")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine := NewScanEngine(testConfig(), &stubStatic{available: true}, &stubLLM{available: true}, nil, nil, nil)

	results, err := engine.ScanDirectoryStreaming(ctx, dir, true, models.ScanOptions{UseStatic: true, UseLLM: true})
	require.NoError(t, err)

	done := make(chan int, 1)
	go func() {
		count := 0
		for result := range results {
			count++
			assert.NotNil(t, result)
			if count == 1 {
				cancel()
			}
		}
		done <- count
	}()

	select {
	case count := <-done:
		assert.GreaterOrEqual(t, count, 1)
		assert.LessOrEqual(t, count, 6, "no result is delivered twice")
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not close after cancellation")
	}
}

func TestStreamWorkerCount(t *testing.T) {
	assert.Equal(t, 1, streamWorkerCount(1))
	assert.LessOrEqual(t, streamWorkerCount(10000), maxStreamWorkers)
	assert.GreaterOrEqual(t, streamWorkerCount(10000), 1)
}
