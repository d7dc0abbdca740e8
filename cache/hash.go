package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"secscan/models"
)

// HashContent fingerprints scan input content.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// ScanFingerprint carries every parameter that changes scan output. Two
// scans of identical content with different fingerprints must never share a
// cache entry.
type ScanFingerprint struct {
	Options             models.ScanOptions `json:"options"`
	RulesConfig         string             `json:"rules_config"`
	Model               string             `json:"model"`
	ConfidenceThreshold float64            `json:"confidence_threshold"`
	MaxContextFiles     int                `json:"max_context_files"`
}

// HashMetadata fingerprints the scan parameters. The struct is serialized
// to canonical JSON (fixed field order) before hashing.
func HashMetadata(fp ScanFingerprint) string {
	raw, err := json.Marshal(fp)
	if err != nil {
		// Marshalling a plain struct of scalars cannot fail; guard anyway.
		return HashContent("unhashable")
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// NewKey assembles the cache identity for one scan invocation.
func NewKey(kind models.ScanKind, content string, fp ScanFingerprint) models.CacheKey {
	return models.CacheKey{
		Kind:         kind,
		ContentHash:  HashContent(content),
		MetadataHash: HashMetadata(fp),
	}
}
