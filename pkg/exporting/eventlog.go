package exporting

import (
	"fmt"
	"os"
	"path/filepath"

	"ProcGraph/pkg/records"

	"go.uber.org/multierr"
)

// EventLog is the watcher's pair of output streams: lifetime records and
// usage samples, each an independent JSONL file.
type EventLog struct {
	lifetime *JSONLWriter
	usage    *JSONLWriter
}

// OpenEventLog creates both files. Either failing aborts with nothing left
// open, since a watcher must not run without both logs writable.
func OpenEventLog(lifetimePath, usagePath string, opts ...JSONLOption) (*EventLog, error) {
	for _, p := range []string{lifetimePath, usagePath} {
		if dir := filepath.Dir(p); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create output directory: %w", err)
			}
		}
	}
	lifetime, err := NewJSONLWriter(lifetimePath, opts...)
	if err != nil {
		return nil, fmt.Errorf("lifetime log: %w", err)
	}
	usage, err := NewJSONLWriter(usagePath, opts...)
	if err != nil {
		lifetime.Close()
		return nil, fmt.Errorf("usage log: %w", err)
	}
	return &EventLog{lifetime: lifetime, usage: usage}, nil
}

func (l *EventLog) WriteLifetime(rec records.LifetimeRecord) error {
	return l.lifetime.Write(rec)
}

func (l *EventLog) WriteUsage(rec records.UsageRecord) error {
	return l.usage.Write(rec)
}

// Paths returns the lifetime and usage file paths.
func (l *EventLog) Paths() (lifetime, usage string) {
	return l.lifetime.Path(), l.usage.Path()
}

func (l *EventLog) Close() error {
	return multierr.Combine(l.lifetime.Close(), l.usage.Close())
}

// ReadLifetimes loads a lifetime log.
func ReadLifetimes(path string) ([]records.LifetimeRecord, error) {
	return ReadJSONL[records.LifetimeRecord](path)
}

// ReadUsage loads a usage log.
func ReadUsage(path string) ([]records.UsageRecord, error) {
	return ReadJSONL[records.UsageRecord](path)
}
