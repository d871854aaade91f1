package config

import "time"

const (
	DefaultInterval       = 100 * time.Millisecond
	DefaultLifetimeLog    = "lifetime.jsonl"
	DefaultUsageLog       = "usage.jsonl"
	DefaultStdout         = "watcher.out"
	DefaultStderr         = "watcher.err"
	DefaultSource         = "psutil"
	DefaultGraphDir       = "graphs"
	DefaultBranchingImage = "branching.png"
	DefaultUsageChart     = "usage.html"
	DefaultUsageTitle     = "Process Utilization"

	DefaultResolution = 0.1
	DefaultLineWidth  = 1
	DefaultSeparation = 5

	DefaultLogLevel  = "info"
	DefaultLogFormat = "console"

	EnvPrefix = "PROCGRAPH"
)
