package security

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// FileSink appends audit entries to a file as JSON lines. Appends are
// serialized under a mutex so concurrent writers never interleave or truncate
// entries; the file is opened in append mode so restarts continue the trail.
type FileSink struct {
	mu  sync.Mutex
	f   *os.File
	enc *json.Encoder
}

// NewFileSink opens (or creates) the audit log file at path.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	return &FileSink{f: f, enc: json.NewEncoder(f)}, nil
}

// Append writes one entry as a JSON line.
func (s *FileSink) Append(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(e)
}

// Close closes the underlying file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}

// MemorySink keeps audit entries in a bounded in-memory ring. It exists for
// tests and for running without a writable filesystem; when the bound is
// exceeded the oldest entries are dropped.
type MemorySink struct {
	mu      sync.Mutex
	entries []Entry
	max     int
}

// NewMemorySink creates a memory sink keeping at most max entries.
// max <= 0 means unbounded.
func NewMemorySink(max int) *MemorySink {
	return &MemorySink{max: max}
}

// Append stores one entry, evicting the oldest at capacity.
func (s *MemorySink) Append(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, e)
	if s.max > 0 && len(s.entries) > s.max {
		s.entries = s.entries[len(s.entries)-s.max:]
	}
	return nil
}

// Entries returns a copy of the retained entries in append order.
func (s *MemorySink) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}
