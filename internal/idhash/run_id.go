package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/mr-tron/base58"
)

// shortIDBytes is the hash prefix length encoded into a short ID.
const shortIDBytes = 8

// ComputeRunID computes a deterministic run_id using SHA256.
// Formula: SHA256(scenario|controller|config_fingerprint|seed)
// Returns hex-encoded hash (64 characters).
func ComputeRunID(
	scenario string,
	controller string,
	fingerprint string,
	seed int64,
) string {
	data := fmt.Sprintf("%s|%s|%s|%d",
		scenario,
		controller,
		fingerprint,
		seed,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ShortID returns a base58 rendering of the first 8 bytes of a hex run ID,
// for logs and URLs. Invalid hex falls back to hashing the input.
func ShortID(runID string) string {
	raw, err := hex.DecodeString(runID)
	if err != nil || len(raw) < shortIDBytes {
		sum := sha256.Sum256([]byte(runID))
		raw = sum[:]
	}
	return base58.Encode(raw[:shortIDBytes])
}

// ComputeSweepID computes a deterministic sweep_id.
// Formula: SHA256(experiment|axes|base_fingerprint)
func ComputeSweepID(experiment, axes, baseFingerprint string) string {
	data := fmt.Sprintf("%s|%s|%s", experiment, axes, baseFingerprint)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
