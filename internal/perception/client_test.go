package perception

import (
	"fmt"
	"testing"
)

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil", nil, false},
		{"timeout", fmt.Errorf("request failed: dial tcp: i/o timeout"), true},
		{"connection refused", fmt.Errorf("connection refused"), true},
		{"rate limit", fmt.Errorf("rate limit exceeded (429)"), true},
		{"status 503", fmt.Errorf("API request failed with status 503: busy"), true},
		{"status 502", fmt.Errorf("API request failed with status 502: bad gateway"), true},
		{"deadline", fmt.Errorf("context deadline exceeded"), true},
		{"unauthorized", fmt.Errorf("unauthorized"), false},
		{"forbidden", fmt.Errorf("forbidden"), false},
		{"invalid key", fmt.Errorf("invalid api key"), false},
		{"status 401", fmt.Errorf("API request failed with status 401: nope"), false},
		{"status 403", fmt.Errorf("API request failed with status 403: nope"), false},
		{"unknown defaults to retry", fmt.Errorf("something odd happened"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryableError(tt.err); got != tt.retryable {
				t.Errorf("isRetryableError(%v) = %v, want %v", tt.err, got, tt.retryable)
			}
		})
	}
}

func TestRetryableStatus(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503, 504} {
		if !retryableStatus(code) {
			t.Errorf("Expected %d retryable", code)
		}
	}
	for _, code := range []int{200, 400, 401, 403, 404, 422} {
		if retryableStatus(code) {
			t.Errorf("Expected %d not retryable", code)
		}
	}
}

func TestTruncatePrompt(t *testing.T) {
	if got := truncatePrompt("short", 100); got != "short" {
		t.Errorf("Expected passthrough, got %q", got)
	}

	long := ""
	for i := 0; i < 50; i++ {
		long += "ab"
	}
	if got := truncatePrompt(long+"extra", 100); len(got) != 100 {
		t.Errorf("Expected 100 bytes, got %d", len(got))
	}

	// Multi-byte runes must not be split.
	jp := "日本語のテキストです"
	got := truncatePrompt(jp, 7)
	for _, r := range got {
		if r == '�' {
			t.Errorf("Truncation split a rune: %q", got)
		}
	}
}
