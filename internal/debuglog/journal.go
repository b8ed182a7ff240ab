// Package debuglog keeps an append-only in-memory journal of notable steps
// (workflow progress, loader outcomes) for troubleshooting. It is the
// daemon's equivalent of an on-page debug console: bounded, best-effort, and
// never load-bearing.
package debuglog

import (
	"fmt"
	"sync"
	"time"
)

// Entry is one journal line.
type Entry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// Journal is a concurrency-safe bounded log. When full, the oldest entries
// are dropped.
type Journal struct {
	mu      sync.Mutex
	entries []Entry
	max     int
}

// New creates a Journal holding at most max entries (min 1).
func New(max int) *Journal {
	if max < 1 {
		max = 1
	}
	return &Journal{max: max}
}

// Appendf formats and appends one entry.
func (j *Journal) Appendf(format string, args ...any) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.entries = append(j.entries, Entry{
		Time:    time.Now(),
		Message: fmt.Sprintf(format, args...),
	})
	if len(j.entries) > j.max {
		j.entries = j.entries[len(j.entries)-j.max:]
	}
}

// Entries returns a copy of the journal, oldest first.
func (j *Journal) Entries() []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]Entry, len(j.entries))
	copy(out, j.entries)
	return out
}
