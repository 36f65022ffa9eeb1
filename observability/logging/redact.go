package logging

import (
	"encoding/hex"
	"log/slog"
	"sort"
	"strings"

	"lukechampine.com/blake3"
)

// RedactedValue is the canonical placeholder used for sensitive fields in logs.
const RedactedValue = "[REDACTED]"

var redactionAllowlist = map[string]struct{}{
	"service":       {},
	"env":           {},
	"message":       {},
	"severity":      {},
	"timestamp":     {},
	"error":         {},
	"kind":          {},
	"domain":        {},
	"coupon":        {},
	"redemption_id": {},
	"public_key":    {},
	"status":        {},
}

// Keys whose values never reach a log line, whatever the caller passes.
var sensitiveKeys = map[string]struct{}{
	"code":        {},
	"coupon_code": {},
	"passphrase":  {},
	"private_key": {},
	"signer_key":  {},
	"dsn":         {},
}

// IsAllowlisted reports whether the provided key is exempt from MaskField.
func IsAllowlisted(key string) bool {
	_, ok := redactionAllowlist[normalizeKey(key)]
	return ok
}

// IsSensitive reports whether the handler must redact values under key.
func IsSensitive(key string) bool {
	_, ok := sensitiveKeys[normalizeKey(key)]
	return ok
}

// RedactionAllowlist returns a sorted copy of the allowlisted keys.
func RedactionAllowlist() []string {
	keys := make([]string, 0, len(redactionAllowlist))
	for key := range redactionAllowlist {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// MaskField returns an attr that redacts value unless key is allowlisted.
// Empty values pass through unchanged.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// Fingerprint returns a short, stable BLAKE3 digest of a secret such as a
// coupon code so log lines can be correlated without exposing the value.
func Fingerprint(secret string) string {
	if secret == "" {
		return ""
	}
	sum := blake3.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:8])
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
