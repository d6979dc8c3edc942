// Package perception provides the model client layer: provider clients
// for Google Gemini, the Hugging Face Inference API, and OpenAI-compatible
// endpoints, plus a fallback chain that degrades gracefully all the way
// down to a canned echo stub when no provider is reachable.
//
// All clients implement types.LLMClient. Construction follows the
// Default*Config(key) / New*ClientWithConfig(cfg) pattern; the chain
// factory in chain.go assembles clients from application config.
package perception

import (
	"strings"
	"unicode/utf8"
)

// isRetryableError determines if an error should be retried.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	// Network errors - retryable
	retryablePatterns := []string{
		"timeout",
		"connection",
		"network",
		"temporary",
		"rate limit",
		"503",
		"502",
		"429",
		"context deadline exceeded",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	// Auth errors - not retryable
	nonRetryablePatterns := []string{
		"unauthorized",
		"forbidden",
		"invalid api key",
		"401",
		"403",
	}

	for _, pattern := range nonRetryablePatterns {
		if strings.Contains(errStr, pattern) {
			return false
		}
	}

	// Default: retry
	return true
}

// retryableStatus reports whether an HTTP status code is worth retrying
// against the same provider. Rate limits and transient upstream failures
// qualify; client errors do not.
func retryableStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	}
	return false
}

// truncatePrompt shortens a prompt for log lines and the echo stub.
// Cuts at a rune boundary so multi-byte text stays valid.
func truncatePrompt(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
