package cache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secscan/models"
)

func openTestStore(t *testing.T, ttl time.Duration) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "cache.db"), ttl)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleResult() *models.ScanResult {
	return &models.ScanResult{
		ScanID: "scan-1",
		Target: "a.py",
		Threats: []models.ThreatMatch{{
			ID:        "t1",
			RuleID:    "rule",
			Category:  "code_injection",
			Severity:  models.SeverityCritical,
			FilePath:  "a.py",
			LineStart: 1,
			LineEnd:   1,
			Source:    models.SourceStaticAnalyzer,
		}},
	}
}

func TestStorePutGetRoundTrip(t *testing.T) {
	store := openTestStore(t, time.Hour)
	key := NewKey(models.ScanKindCode, "eval(input())", ScanFingerprint{})

	_, ok := store.Get(key)
	assert.False(t, ok, "fresh store must miss")

	original := sampleResult()
	store.Put(key, original)

	got, ok := store.Get(key)
	require.True(t, ok)
	assert.Equal(t, original.Threats, got.Threats)
	assert.NotSame(t, original, got, "cache returns a copy, not the stored pointer")
}

func TestStoreExpiry(t *testing.T) {
	store := openTestStore(t, time.Millisecond)
	key := NewKey(models.ScanKindCode, "code", ScanFingerprint{})

	store.Put(key, sampleResult())
	time.Sleep(10 * time.Millisecond)

	_, ok := store.Get(key)
	assert.False(t, ok, "expired entries must miss")
}

func TestStoreOverwrite(t *testing.T) {
	store := openTestStore(t, time.Hour)
	key := NewKey(models.ScanKindCode, "code", ScanFingerprint{})

	first := sampleResult()
	store.Put(key, first)

	second := sampleResult()
	second.ScanID = "scan-2"
	store.Put(key, second)

	got, ok := store.Get(key)
	require.True(t, ok)
	assert.Equal(t, "scan-2", got.ScanID)
}

func TestStoreSweep(t *testing.T) {
	store := openTestStore(t, time.Millisecond)
	store.Put(NewKey(models.ScanKindCode, "one", ScanFingerprint{}), sampleResult())
	store.Put(NewKey(models.ScanKindCode, "two", ScanFingerprint{}), sampleResult())
	time.Sleep(10 * time.Millisecond)

	removed, err := store.Sweep()
	require.NoError(t, err)
	assert.EqualValues(t, 2, removed)
}
