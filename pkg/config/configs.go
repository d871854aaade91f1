// Package config holds the settings of every procgraph command, their
// defaults and validation.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"ProcGraph/pkg/exporting"
	"ProcGraph/pkg/probing"
)

var (
	ErrInterval   = errors.New("poll interval must be positive")
	ErrResolution = errors.New("time resolution must be positive")
	ErrLayout     = errors.New("invalid line width or separation")
)

// WatchConfig drives the watcher in both watch and run mode.
type WatchConfig struct {
	Interval    time.Duration
	LifetimeLog string
	UsageLog    string
	// Stdout and Stderr receive the detached watcher's standard streams.
	Stdout string
	Stderr string
	Source string

	PID    int32
	Detach bool

	// Run mode only.
	Graphs   bool
	GraphDir string
}

// NewWatchConfig creates a WatchConfig with default values.
func NewWatchConfig() *WatchConfig {
	return &WatchConfig{
		Interval:    DefaultInterval,
		LifetimeLog: DefaultLifetimeLog,
		UsageLog:    DefaultUsageLog,
		Stdout:      DefaultStdout,
		Stderr:      DefaultStderr,
		Source:      DefaultSource,
		GraphDir:    DefaultGraphDir,
	}
}

// Validate checks the configuration for errors.
func (c *WatchConfig) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("%w: got %v", ErrInterval, c.Interval)
	}
	if c.LifetimeLog == "" || c.UsageLog == "" {
		return fmt.Errorf("both lifetime and usage logs are required")
	}
	if c.LifetimeLog == c.UsageLog {
		return fmt.Errorf("lifetime and usage logs must differ: %s", c.LifetimeLog)
	}
	if !isValidSource(c.Source) {
		return fmt.Errorf("invalid source: %s (valid: %s)", c.Source, strings.Join(ValidSources(), ", "))
	}
	return nil
}

// GraphConfig drives offline tree reconstruction and the branching image.
type GraphConfig struct {
	LifetimeLog string
	Output      string
	Resolution  float64
	LineWidth   int
	Separation  int
	Strict      bool
	// Rows, when set, receives the render rows (.jsonl, .parquet, .csv or .tsv).
	Rows  string
	Quiet bool
}

// NewGraphConfig creates a GraphConfig with default values.
func NewGraphConfig() *GraphConfig {
	return &GraphConfig{
		LifetimeLog: DefaultLifetimeLog,
		Output:      DefaultBranchingImage,
		Resolution:  DefaultResolution,
		LineWidth:   DefaultLineWidth,
		Separation:  DefaultSeparation,
		Strict:      true,
	}
}

// Validate checks the configuration for errors.
func (c *GraphConfig) Validate() error {
	if !(c.Resolution > 0) {
		return fmt.Errorf("%w: got %v", ErrResolution, c.Resolution)
	}
	if c.LineWidth <= 0 || c.Separation < 0 {
		return fmt.Errorf("%w: line width %d, separation %d", ErrLayout, c.LineWidth, c.Separation)
	}
	if c.LifetimeLog == "" {
		return fmt.Errorf("lifetime log is required")
	}
	if c.Rows != "" {
		if _, ok := exporting.GetByPath(c.Rows); !ok {
			return fmt.Errorf("unsupported rows format: %s", c.Rows)
		}
	}
	return nil
}

// UsageConfig drives utilization derivation and charting.
type UsageConfig struct {
	UsageLog string
	Output   string
	PNG      string
	Export   string
	Title    string
}

// NewUsageConfig creates a UsageConfig with default values.
func NewUsageConfig() *UsageConfig {
	return &UsageConfig{
		UsageLog: DefaultUsageLog,
		Output:   DefaultUsageChart,
		Title:    DefaultUsageTitle,
	}
}

// Validate checks the configuration for errors.
func (c *UsageConfig) Validate() error {
	if c.UsageLog == "" {
		return fmt.Errorf("usage log is required")
	}
	if c.Output == "" && c.PNG == "" && c.Export == "" {
		return fmt.Errorf("no output requested")
	}
	if c.Export != "" {
		if _, ok := exporting.GetByPath(c.Export); !ok {
			return fmt.Errorf("unsupported export format: %s", c.Export)
		}
	}
	return nil
}

// ValidSources returns the list of supported process sources.
func ValidSources() []string {
	return []string{probing.SourcePsutil, probing.SourceProcfs}
}

func isValidSource(source string) bool {
	for _, s := range ValidSources() {
		if strings.EqualFold(s, source) {
			return true
		}
	}
	return false
}
