// Package alert holds the priority-ordered queue of patients waiting for
// staff attention, and the persistence backends behind it.
package alert

import "context"

// TimestampLayout is the wall-clock format stamped on queued entries.
const TimestampLayout = "2006-01-02 15:04:05"

// Unknown is the placeholder for identity fields a submitter left out.
const Unknown = "unknown"

// Entry is one queued alert. Entries are never edited once queued; they
// leave the store only through Clear.
type Entry struct {
	PatientID string `json:"patient_id"`
	Name      string `json:"name"`
	Score     int    `json:"score"`
	Priority  string `json:"priority"`
	Rationale string `json:"rationale"`
	Timestamp string `json:"timestamp"`
}

// Persister is the durable copy of the queue. Save receives the full queue
// in score-descending order and replaces whatever was stored before. Load
// returns the stored entries in the same order, or nil when nothing has
// been stored yet.
type Persister interface {
	Save(ctx context.Context, entries []Entry) error
	Load(ctx context.Context) ([]Entry, error)
}

// Notifier is told about each entry after it has been queued.
type Notifier interface {
	Notify(ctx context.Context, e *Entry) error
}
