package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"secscan/models"
)

func TestHashContentDeterministic(t *testing.T) {
	assert.Equal(t, HashContent("eval(input())"), HashContent("eval(input())"))
	assert.NotEqual(t, HashContent("a"), HashContent("b"))
	assert.Len(t, HashContent("anything"), 64)
}

func TestHashMetadataSensitivity(t *testing.T) {
	base := ScanFingerprint{
		Options:     models.ScanOptions{UseStatic: true, UseLLM: true},
		RulesConfig: "auto",
		Model:       "test-model",
	}

	same := base
	assert.Equal(t, HashMetadata(base), HashMetadata(same))

	flipped := base
	flipped.Options.UseValidation = true
	assert.NotEqual(t, HashMetadata(base), HashMetadata(flipped), "validation flag must change the identity")

	threshold := base
	threshold.Options.SeverityThreshold = models.SeverityHigh
	assert.NotEqual(t, HashMetadata(base), HashMetadata(threshold), "severity threshold must change the identity")

	rules := base
	rules.RulesConfig = "p/security-audit"
	assert.NotEqual(t, HashMetadata(base), HashMetadata(rules), "rules config must change the identity")

	model := base
	model.Model = "other-model"
	assert.NotEqual(t, HashMetadata(base), HashMetadata(model), "model identifier must change the identity")

	confidence := base
	confidence.ConfidenceThreshold = 0.9
	assert.NotEqual(t, HashMetadata(base), HashMetadata(confidence), "validation threshold must change the identity")

	contextFiles := base
	contextFiles.MaxContextFiles = 10
	assert.NotEqual(t, HashMetadata(base), HashMetadata(contextFiles), "context sample size must change the identity")
}

func TestNewKey(t *testing.T) {
	fp := ScanFingerprint{Options: models.ScanOptions{UseStatic: true}}
	key := NewKey(models.ScanKindCode, "code", fp)

	assert.Equal(t, models.ScanKindCode, key.Kind)
	assert.Equal(t, HashContent("code"), key.ContentHash)
	assert.Contains(t, key.String(), "code:")

	other := NewKey(models.ScanKindFile, "code", fp)
	assert.NotEqual(t, key.String(), other.String(), "scan kind is part of the identity")
}
