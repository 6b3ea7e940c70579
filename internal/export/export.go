// Package export writes the engine status snapshot to disk for consumers
// that poll a file instead of the HTTP API.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/DimBertolami/latestbot/internal/model"
)

// Writer writes status snapshots to a fixed path. The file is replaced
// atomically so readers never observe a partial document.
type Writer struct {
	path string
}

// NewWriter returns a writer for path, or nil when path is empty.
func NewWriter(path string) *Writer {
	if path == "" {
		return nil
	}
	return &Writer{path: path}
}

// Path returns the snapshot location.
func (w *Writer) Path() string {
	if w == nil {
		return ""
	}
	return w.path
}

// Write serializes status to the snapshot file. A nil Writer is a no-op.
func (w *Writer) Write(status model.Status) error {
	if w == nil {
		return nil
	}

	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}

	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create status directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".status-*.json")
	if err != nil {
		return fmt.Errorf("create temp status file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write status: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close status: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), w.path)
}
