package deduplication

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/steveyegge/rcagov/internal/types"
)

var digitRun = regexp.MustCompile(`[0-9]+`)

// NormalizeCause lowercases the cause key and collapses whitespace. With
// maskDigits, every run of digits becomes a single '#'.
func NormalizeCause(cause string, maskDigits bool) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(cause)), " ")
	if maskDigits {
		normalized = digitRun.ReplaceAllString(normalized, "#")
	}
	return normalized
}

// Signature fingerprints a failure as sha256(scope_type|scope_id|cause),
// hex encoded. Digit masking is on; use Deduplicator.Signature to honor a
// Config.
func Signature(scopeType types.ScopeType, scopeID, cause string) string {
	return signature(scopeType, scopeID, cause, true)
}

func signature(scopeType types.ScopeType, scopeID, cause string, maskDigits bool) string {
	key := string(scopeType) + "|" + strings.TrimSpace(scopeID) + "|" + NormalizeCause(cause, maskDigits)
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
