// Package promptlog records every illustration call: the exact prompt
// sent, whether it succeeded, and how long it took. The log is the audit
// trail for a run and can be exported for offline analysis.
package promptlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
	"gopkg.in/yaml.v3"
)

// Entry is one illustration call.
type Entry struct {
	// Page is the page identifier, e.g. "cover_front" or "7".
	Page string `json:"page" yaml:"page" parquet:"page"`
	// Prompt is the full prompt sent, brief included.
	Prompt string `json:"prompt" yaml:"prompt" parquet:"prompt"`
	// OriginalPrompt is the manifest prompt before enrichment.
	OriginalPrompt string `json:"original_prompt" yaml:"original_prompt" parquet:"original_prompt"`
	Success        bool   `json:"success" yaml:"success" parquet:"success"`
	// Timestamp is wall-clock time formatted 2006-01-02 15:04:05.
	Timestamp       string  `json:"timestamp" yaml:"timestamp" parquet:"timestamp"`
	DurationSeconds float64 `json:"duration_s" yaml:"duration_s" parquet:"duration_s"`
	UsedReferences  int     `json:"used_photo_references" yaml:"used_photo_references" parquet:"used_photo_references"`
	Retry           bool    `json:"retry,omitempty" yaml:"retry,omitempty" parquet:"retry"`
	Regeneration    bool    `json:"regeneration,omitempty" yaml:"regeneration,omitempty" parquet:"regeneration"`
}

// Log is an append-only JSON file of entries.
type Log struct {
	path string
}

// Open returns a Log backed by the given file. The file need not exist.
func Open(path string) *Log {
	return &Log{path: path}
}

// Entries reads every recorded entry. A missing file is an empty log.
func (l *Log) Entries() ([]Entry, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read prompt log: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse prompt log: %w", err)
	}
	return entries, nil
}

// Append adds entries to the log, creating it if needed.
func (l *Log) Append(entries ...Entry) error {
	existing, err := l.Entries()
	if err != nil {
		return err
	}
	existing = append(existing, entries...)

	data, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal prompt log: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	if err := os.WriteFile(l.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write prompt log: %w", err)
	}
	return nil
}

// Summary aggregates a log for reporting.
type Summary struct {
	Calls        int     `json:"calls" yaml:"calls"`
	Succeeded    int     `json:"succeeded" yaml:"succeeded"`
	Failed       int     `json:"failed" yaml:"failed"`
	Retries      int     `json:"retries" yaml:"retries"`
	TotalSeconds float64 `json:"total_seconds" yaml:"total_seconds"`
}

// Summarize computes aggregate stats over the entries.
func Summarize(entries []Entry) Summary {
	var s Summary
	for _, e := range entries {
		s.Calls++
		if e.Success {
			s.Succeeded++
		} else {
			s.Failed++
		}
		if e.Retry {
			s.Retries++
		}
		s.TotalSeconds += e.DurationSeconds
	}
	return s
}

// ExportParquet writes the entries as a parquet file for analysis in
// columnar tooling.
func ExportParquet(entries []Entry, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create parquet file: %w", err)
	}
	defer f.Close()

	writer := parquet.NewGenericWriter[Entry](f)
	if _, err := writer.Write(entries); err != nil {
		return fmt.Errorf("failed to write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return nil
}

// ExportYAML writes the entries plus a summary as a YAML report.
func ExportYAML(entries []Entry, path string) error {
	report := struct {
		Summary Summary `yaml:"summary"`
		Entries []Entry `yaml:"entries"`
	}{
		Summary: Summarize(entries),
		Entries: entries,
	}
	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal yaml report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write yaml report: %w", err)
	}
	return nil
}
