package resilience

import (
	"errors"
	"testing"
)

func TestDLQEntry_CanRetry(t *testing.T) {
	tests := []struct {
		name       string
		retryCount int
		maxRetries int
		want       bool
	}{
		{"below max", 0, 3, true},
		{"at max", 3, 3, false},
		{"above max", 5, 3, false},
		{"one below max", 2, 3, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := DLQEntry{
				RetryCount: tt.retryCount,
				MaxRetries: tt.maxRetries,
			}
			if got := e.CanRetry(); got != tt.want {
				t.Errorf("CanRetry() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"transient error", NewTransientError(errors.New("503"), 503), "transient"},
		{"permanent error", errors.New("invalid input"), "permanent"},
		{"connection reset", errors.New("connection reset by peer"), "transient"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.want {
				t.Errorf("ClassifyError() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDLQRecordAndRetryable(t *testing.T) {
	q := NewDLQ(3)

	q.Record("a.pdf", "load", NewTransientError(errors.New("503"), 503))
	q.Record("b.pdf", "extract", errors.New("malformed pdf"))

	retryable := q.Retryable()
	if len(retryable) != 1 {
		t.Fatalf("expected 1 retryable entry, got %d", len(retryable))
	}
	if retryable[0].Path != "a.pdf" {
		t.Errorf("expected a.pdf, got %q", retryable[0].Path)
	}
	if len(q.Entries()) != 2 {
		t.Errorf("expected 2 entries, got %d", len(q.Entries()))
	}
}

func TestDLQRepeatFailuresExhaustRetries(t *testing.T) {
	q := NewDLQ(2)
	err := NewTransientError(errors.New("timeout"), 504)

	q.Record("a.pdf", "load", err)
	q.Record("a.pdf", "load", err)
	q.Record("a.pdf", "load", err)

	if len(q.Retryable()) != 0 {
		t.Errorf("expected retries exhausted, got %d retryable", len(q.Retryable()))
	}

	entries := q.Entries()
	if len(entries) != 1 || entries[0].RetryCount != 2 {
		t.Errorf("expected single entry with RetryCount 2, got %+v", entries)
	}
}

func TestDLQResolve(t *testing.T) {
	q := NewDLQ(3)
	q.Record("a.pdf", "load", errors.New("boom"))
	q.Resolve("a.pdf")

	if len(q.Entries()) != 0 {
		t.Errorf("expected empty queue after resolve")
	}
}
