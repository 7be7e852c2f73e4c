package report

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// canonicalHash serializes v (built from map[string]any, whose keys Go's
// encoding/json always marshals in sorted order) and returns a hex digest of
// the UTF-8 bytes. Equal content always yields an equal hash, stable across
// runs and processes.
func canonicalHash(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("canonicalize report: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
