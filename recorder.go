package biostream

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
)

// SampleRecorder appends samples to a CSV file, one
// "timestamp_s,value" row per sample. It is safe for concurrent use,
// though the natural shape is a single recording goroutine draining
// PopSamples.
type SampleRecorder struct {
	mu     sync.Mutex
	f      *os.File
	w      *csv.Writer
	closed bool
}

// NewSampleRecorder creates (or truncates) the file at path and writes
// the header row.
func NewSampleRecorder(path string) (*SampleRecorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("biostream: create recording: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write([]string{"timestamp_s", "value"}); err != nil {
		f.Close()
		return nil, fmt.Errorf("biostream: write header: %w", err)
	}
	return &SampleRecorder{f: f, w: w}, nil
}

// Record appends the given samples.
func (r *SampleRecorder) Record(samples ...Sample) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("biostream: recorder closed")
	}
	for _, s := range samples {
		row := []string{
			strconv.FormatFloat(s.T, 'f', -1, 64),
			strconv.FormatFloat(s.V, 'f', -1, 64),
		}
		if err := r.w.Write(row); err != nil {
			return fmt.Errorf("biostream: write sample: %w", err)
		}
	}
	r.w.Flush()
	return r.w.Error()
}

// Close flushes and closes the file. Idempotent.
func (r *SampleRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	r.w.Flush()
	if err := r.w.Error(); err != nil {
		r.f.Close()
		return err
	}
	return r.f.Close()
}
