package errors

import (
	"fmt"
	"testing"
	"time"
)

func TestRateLimitError_MatchesSentinel(t *testing.T) {
	err := &RateLimitError{Operation: "resume", Key: "abc", RetryAfter: 30 * time.Second}

	if !Is(err, ErrRateLimited) {
		t.Error("RateLimitError should match ErrRateLimited via errors.Is")
	}

	var rle *RateLimitError
	if !As(err, &rle) {
		t.Fatal("errors.As should extract *RateLimitError")
	}
	if rle.RetryAfter != 30*time.Second {
		t.Errorf("RetryAfter = %v, want 30s", rle.RetryAfter)
	}
}

func TestRateLimitError_SurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("resume session: %w", &RateLimitError{Operation: "resume", Key: "abc", RetryAfter: time.Second})

	if !Is(err, ErrRateLimited) {
		t.Error("wrapped RateLimitError should still match ErrRateLimited")
	}

	var rle *RateLimitError
	if !As(err, &rle) {
		t.Fatal("errors.As should extract *RateLimitError through wrapping")
	}
	if rle.Key != "abc" {
		t.Errorf("Key = %q, want %q", rle.Key, "abc")
	}
}

func TestFieldError_MatchesInvalidRecord(t *testing.T) {
	err := NewFieldError("project_path", "is missing")

	if !Is(err, ErrInvalidRecord) {
		t.Error("FieldError should match ErrInvalidRecord via errors.Is")
	}
	if err.Error() != `invalid record: field "project_path" is missing` {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"save in progress", ErrSaveInProgress, true},
		{"rate limited sentinel", ErrRateLimited, true},
		{"rate limit error type", &RateLimitError{Operation: "resume"}, true},
		{"wrapped save in progress", fmt.Errorf("auto-save: %w", ErrSaveInProgress), true},
		{"session exists", ErrSessionExists, false},
		{"signature failure", ErrSignatureVerification, false},
		{"nil-ish plain error", New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsInvariant(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"session exists", ErrSessionExists, true},
		{"project already open", ErrProjectAlreadyOpen, true},
		{"limit reached", ErrSessionLimitReached, true},
		{"wrapped limit reached", fmt.Errorf("register: %w", ErrSessionLimitReached), true},
		{"not found", ErrSessionNotFound, false},
		{"path not found", ErrPathNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsInvariant(tt.err); got != tt.want {
				t.Errorf("IsInvariant(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsIntegrity(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"invalid json", ErrInvalidJSON, true},
		{"unsupported version", ErrUnsupportedVersion, true},
		{"invalid record", ErrInvalidRecord, true},
		{"field error", NewFieldError("version", "has wrong type"), true},
		{"signature failure", ErrSignatureVerification, true},
		{"too large", ErrRecordTooLarge, true},
		{"invalid id", ErrInvalidSessionID, true},
		{"save in progress", ErrSaveInProgress, false},
		{"path not found", ErrPathNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsIntegrity(tt.err); got != tt.want {
				t.Errorf("IsIntegrity(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
