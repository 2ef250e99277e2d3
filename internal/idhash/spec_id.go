package idhash

import (
	"crypto/sha256"
	"encoding/hex"
)

// ComputeSpecID computes a deterministic spec_id using SHA256.
// Input is the canonical form of a candidate spec (every field, fixed order).
// Returns hex-encoded hash (64 characters).
func ComputeSpecID(canonical string) string {
	hash := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(hash[:])
}
