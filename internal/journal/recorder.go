// Package journal appends bot events to JSON-lines files.
package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrClosed is returned when appending to a closed recorder.
var ErrClosed = errors.New("journal closed")

// JSONLRecorder appends values as JSON lines for later analysis.
type JSONLRecorder struct {
	mu    sync.Mutex
	path  string
	file  *os.File
	enc   *json.Encoder
	lines int
}

// NewJSONLRecorder creates/opens the target file and returns a recorder.
func NewJSONLRecorder(path string) (*JSONLRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("journal dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &JSONLRecorder{
		path: path,
		file: file,
		enc:  json.NewEncoder(file),
	}, nil
}

// Path returns the backing file.
func (r *JSONLRecorder) Path() string { return r.path }

// Record writes v as a single line.
func (r *JSONLRecorder) Record(v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return ErrClosed
	}
	if err := r.enc.Encode(v); err != nil {
		return fmt.Errorf("journal %s: %w", filepath.Base(r.path), err)
	}
	r.lines++
	return nil
}

// RecordAll writes each element of vs in order, stopping at the first failure.
func RecordAll[T any](r *JSONLRecorder, vs []T) error {
	for _, v := range vs {
		if err := r.Record(v); err != nil {
			return err
		}
	}
	return nil
}

// Lines reports how many lines this recorder has written since opening.
func (r *JSONLRecorder) Lines() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lines
}

// Close flushes and closes the file handle.
func (r *JSONLRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}
