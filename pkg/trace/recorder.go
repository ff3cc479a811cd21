// Package trace writes a CSV record of every command the pilot publishes.
package trace

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/open-teleop/pilot/pkg/motion"
)

// Record is one CSV row.
type Record struct {
	Time      string  `csv:"time"`
	Stream    string  `csv:"stream"`
	Type      string  `csv:"type"`
	Primary   float64 `csv:"primary"`
	Secondary float64 `csv:"secondary"`
	Burst     bool    `csv:"burst"`
}

// Recorder appends publish records to a CSV file. A nil Recorder is a no-op.
type Recorder struct {
	mu            sync.Mutex
	out           io.WriteCloser
	headerWritten bool
	errs          int
}

// NewRecorder creates the trace file. Returns nil if path is empty (tracing disabled).
func NewRecorder(path string) (*Recorder, error) {
	if path == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating trace directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating trace file: %w", err)
	}
	return NewWriterRecorder(f), nil
}

// NewWriterRecorder records to w.
func NewWriterRecorder(w io.WriteCloser) *Recorder {
	return &Recorder{out: w}
}

// Write appends one record.
func (r *Recorder) Write(p motion.Published) error {
	if r == nil {
		return nil
	}

	records := []Record{{
		Time:      p.At.UTC().Format(time.RFC3339Nano),
		Stream:    p.Stream,
		Type:      p.Type,
		Primary:   p.Command.Primary,
		Secondary: p.Command.Secondary,
		Burst:     p.Burst,
	}}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.headerWritten {
		if err := gocsv.Marshal(records, r.out); err != nil {
			r.errs++
			return fmt.Errorf("writing trace: %w", err)
		}
		r.headerWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(records, r.out); err != nil {
		r.errs++
		return fmt.Errorf("writing trace: %w", err)
	}
	return nil
}

// Observer adapts the recorder to a motion engine. Write errors are
// counted, see Errors.
func (r *Recorder) Observer() motion.Observer {
	return func(p motion.Published) {
		_ = r.Write(p)
	}
}

// Errors returns the number of failed writes.
func (r *Recorder) Errors() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errs
}

// Close closes the trace file.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.out.Close()
}
