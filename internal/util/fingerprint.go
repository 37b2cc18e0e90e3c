package util

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint computes a stable hash for a finding key. Parts are joined
// with '|' after collapsing whitespace, so reformatting a line does not
// change the result.
func Fingerprint(ruleID, file string, parts ...string) string {
	h := sha256.New()
	h.Write([]byte(ruleID))
	h.Write([]byte{'|'})
	h.Write([]byte(file))
	for _, p := range parts {
		h.Write([]byte{'|'})
		h.Write([]byte(strings.Join(strings.Fields(p), " ")))
	}
	return hex.EncodeToString(h.Sum(nil))
}
