// Package util holds small shared helpers.
package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a prefixed random identifier, e.g. "log_3f2a…".
// The prefix makes IDs self-describing in logs and API payloads.
func NewID(prefix string) string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic("util: crypto/rand unavailable: " + err.Error())
	}
	return prefix + "_" + hex.EncodeToString(buf)
}
