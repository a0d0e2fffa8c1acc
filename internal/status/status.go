// Package status tracks pipeline progress in a single polled record.
package status

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Phase identifies where the pipeline currently is. done and error are
// terminal; everything else is transient.
type Phase string

const (
	PhaseNotStarted Phase = "not_started"
	PhaseVision     Phase = "vision"
	PhaseText       Phase = "text"
	PhaseTextDone   Phase = "text_done"
	PhaseImages     Phase = "images"
	PhaseImagesDone Phase = "images_done"
	PhasePDF        Phase = "pdf"
	PhaseEmail      Phase = "email"
	PhaseDone       Phase = "done"
	PhaseError      Phase = "error"
)

// RunStatus is the last reported state of a generation run.
type RunStatus struct {
	Phase       Phase   `json:"phase"`
	Message     string  `json:"message"`
	ImagesDone  int     `json:"images_done"`
	ImagesTotal int     `json:"images_total"`
	Error       string  `json:"error,omitempty"`
	Done        bool    `json:"done"`
	Timestamp   float64 `json:"ts"`
}

// Sink receives progress updates from the pipeline. The file-backed Tracker
// is one implementation; tests use in-memory sinks.
type Sink interface {
	Publish(s RunStatus) error
}

// Tracker persists the latest RunStatus to a single file. Writes go to a
// temp file which is then renamed, so a polling reader never observes a
// half-written record. The worker is the only writer.
type Tracker struct {
	path string
}

func NewTracker(path string) *Tracker {
	return &Tracker{path: path}
}

// Publish overwrites the persisted record with s. A zero timestamp is
// filled with the current time.
func (t *Tracker) Publish(s RunStatus) error {
	if s.Timestamp == 0 {
		s.Timestamp = float64(time.Now().UnixMilli()) / 1000.0
	}

	if err := os.MkdirAll(filepath.Dir(t.path), 0755); err != nil {
		return fmt.Errorf("failed to create status directory: %w", err)
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	tmp := t.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write status temp file: %w", err)
	}
	if err := os.Rename(tmp, t.path); err != nil {
		return fmt.Errorf("failed to replace status file: %w", err)
	}
	return nil
}

// Report is a convenience wrapper for progress updates on the happy path.
func (t *Tracker) Report(phase Phase, message string, imagesDone, imagesTotal int) error {
	return t.Publish(RunStatus{
		Phase:       phase,
		Message:     message,
		ImagesDone:  imagesDone,
		ImagesTotal: imagesTotal,
		Done:        phase == PhaseDone,
	})
}

// Fail records a fatal error with diagnostic detail.
func (t *Tracker) Fail(message, detail string) error {
	return t.Publish(RunStatus{
		Phase:   PhaseError,
		Message: message,
		Error:   detail,
	})
}

// Read returns the last persisted record. A missing file means the run has
// not started yet and yields a not_started sentinel, not an error.
func (t *Tracker) Read() (RunStatus, error) {
	data, err := os.ReadFile(t.path)
	if errors.Is(err, fs.ErrNotExist) {
		return RunStatus{Phase: PhaseNotStarted}, nil
	}
	if err != nil {
		return RunStatus{}, fmt.Errorf("failed to read status file: %w", err)
	}

	var s RunStatus
	if err := json.Unmarshal(data, &s); err != nil {
		return RunStatus{}, fmt.Errorf("failed to parse status file: %w", err)
	}
	return s, nil
}

// Clear removes the persisted record, returning the tracker to the
// not_started state.
func (t *Tracker) Clear() error {
	err := os.Remove(t.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
