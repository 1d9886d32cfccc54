// Package idhash computes deterministic identifiers for windows,
// positions and tick records. The same inputs always produce the same
// ID, so re-running discovery or replaying a session never creates
// duplicate rows.
package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeWindowID computes a deterministic window_id using SHA256.
// Formula: SHA256(slug)
// Returns hex-encoded hash (64 characters).
func ComputeWindowID(slug string) string {
	hash := sha256.Sum256([]byte(slug))
	return hex.EncodeToString(hash[:])
}

// ComputePositionID computes a deterministic position_id using SHA256.
// Formula: SHA256(window_id|token_id|opened_at_ms)
// Returns hex-encoded hash (64 characters).
func ComputePositionID(windowID, tokenID string, openedAtMs int64) string {
	data := fmt.Sprintf("%s|%s|%d", windowID, tokenID, openedAtMs)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputeTickID computes a deterministic tick record id using SHA256.
// Formula: SHA256(window_id|timestamp_ms)
// Returns hex-encoded hash (64 characters).
func ComputeTickID(windowID string, timestampMs int64) string {
	data := fmt.Sprintf("%s|%d", windowID, timestampMs)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
