package model

import (
	"regexp"
	"testing"
)

// crockfordBase32 matches valid ULID strings (26 chars, Crockford Base32 alphabet).
var crockfordBase32 = regexp.MustCompile(`^[0123456789ABCDEFGHJKMNPQRSTVWXYZ]{26}$`)

func TestNewRefFormat(t *testing.T) {
	ref := NewRef()
	if !crockfordBase32.MatchString(ref) {
		t.Errorf("NewRef() = %q, does not match Crockford Base32 ULID format", ref)
	}
}

func TestNewRefUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		ref := NewRef()
		if seen[ref] {
			t.Fatalf("NewRef() produced duplicate: %s", ref)
		}
		seen[ref] = true
	}
}

func TestOutcomeConstants(t *testing.T) {
	outcomes := []struct {
		constant string
		expected string
	}{
		{OutcomeSucceeded, "succeeded"},
		{OutcomeFailed, "failed"},
	}
	for _, o := range outcomes {
		if o.constant != o.expected {
			t.Errorf("outcome constant = %q, want %q", o.constant, o.expected)
		}
	}
}

func TestRecordSucceeded(t *testing.T) {
	tests := []struct {
		outcome string
		want    bool
	}{
		{OutcomeSucceeded, true},
		{OutcomeFailed, false},
		{"unknown", false},
		{"", false},
	}
	for _, tt := range tests {
		r := &ActionRecord{Outcome: tt.outcome}
		if got := r.Succeeded(); got != tt.want {
			t.Errorf("Succeeded() with outcome %q = %v, want %v", tt.outcome, got, tt.want)
		}
	}
}
