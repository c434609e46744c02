package resilience

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DLQEntry represents a failed document that can be retried later.
type DLQEntry struct {
	ID           string    `json:"id"`
	Path         string    `json:"path"`
	Error        string    `json:"error"`
	ErrorType    string    `json:"error_type"` // "transient" or "permanent"
	FailedStage  string    `json:"failed_stage,omitempty"`
	RetryCount   int       `json:"retry_count"`
	MaxRetries   int       `json:"max_retries"`
	CreatedAt    time.Time `json:"created_at"`
	LastFailedAt time.Time `json:"last_failed_at"`
}

// CanRetry returns true if this entry hasn't exceeded its max retry count.
func (e *DLQEntry) CanRetry() bool {
	return e.RetryCount < e.MaxRetries
}

// ClassifyError categorizes an error as "transient" or "permanent".
func ClassifyError(err error) string {
	if IsTransient(err) {
		return "transient"
	}
	return "permanent"
}

// DLQ is an in-memory dead letter queue of failed documents. Safe for
// concurrent use.
type DLQ struct {
	maxRetries int

	mu      sync.Mutex
	entries map[string]*DLQEntry // keyed by path
}

// NewDLQ creates a DLQ. maxRetries bounds how often one document re-enters
// the retry pass; zero or less means 3.
func NewDLQ(maxRetries int) *DLQ {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &DLQ{maxRetries: maxRetries, entries: map[string]*DLQEntry{}}
}

// Record adds or updates the entry for a failed document.
func (q *DLQ) Record(path, stage string, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now().UTC()
	if e, ok := q.entries[path]; ok {
		e.RetryCount++
		e.Error = err.Error()
		e.ErrorType = ClassifyError(err)
		e.FailedStage = stage
		e.LastFailedAt = now
		return
	}

	q.entries[path] = &DLQEntry{
		ID:           uuid.New().String(),
		Path:         path,
		Error:        err.Error(),
		ErrorType:    ClassifyError(err),
		FailedStage:  stage,
		MaxRetries:   q.maxRetries,
		CreatedAt:    now,
		LastFailedAt: now,
	}
}

// Resolve drops the entry for a document that eventually succeeded.
func (q *DLQ) Resolve(path string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.entries, path)
}

// Retryable returns the transient entries that still have retries left.
func (q *DLQ) Retryable() []DLQEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []DLQEntry
	for _, e := range q.entries {
		if e.ErrorType == "transient" && e.CanRetry() {
			out = append(out, *e)
		}
	}
	return out
}

// Entries returns a snapshot of every entry.
func (q *DLQ) Entries() []DLQEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]DLQEntry, 0, len(q.entries))
	for _, e := range q.entries {
		out = append(out, *e)
	}
	return out
}
