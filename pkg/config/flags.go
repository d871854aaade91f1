package config

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

// AddWatchFlags adds watcher flags to a command.
func (c *WatchConfig) AddWatchFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.DurationVarP(&c.Interval, "interval", "i", c.Interval, "Poll interval")
	flags.StringVar(&c.LifetimeLog, "lifetime-log", c.LifetimeLog, "Lifetime log output (JSONL)")
	flags.StringVar(&c.UsageLog, "usage-log", c.UsageLog, "Usage log output (JSONL)")
	flags.StringVar(&c.Source, "source", c.Source, "Process source ("+strings.Join(ValidSources(), ", ")+")")
}

// AddDetachFlags adds attach/detach flags to a command.
func (c *WatchConfig) AddDetachFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.Int32VarP(&c.PID, "pid", "p", c.PID, "Pid of the process to watch")
	flags.BoolVarP(&c.Detach, "detach", "d", c.Detach, "Run the watcher in the background")
	flags.StringVar(&c.Stdout, "stdout", c.Stdout, "Detached watcher standard output")
	flags.StringVar(&c.Stderr, "stderr", c.Stderr, "Detached watcher standard error")
}

// AddRunGraphFlags adds post-run graph flags to a command.
func (c *WatchConfig) AddRunGraphFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.BoolVarP(&c.Graphs, "graphs", "g", c.Graphs, "Render graphs once the command exits")
	flags.StringVar(&c.GraphDir, "graph-dir", c.GraphDir, "Graph output directory")
}

// AddGraphFlags adds reconstruction and rendering flags to a command.
func (c *GraphConfig) AddGraphFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&c.LifetimeLog, "lifetime-log", c.LifetimeLog, "Lifetime log input (JSONL)")
	flags.StringVarP(&c.Output, "output", "o", c.Output, "Branching image output (PNG, empty to skip)")
	flags.Float64VarP(&c.Resolution, "resolution", "r", c.Resolution, "Seconds per horizontal pixel")
	flags.IntVar(&c.LineWidth, "line-width", c.LineWidth, "Line thickness in pixels")
	flags.IntVar(&c.Separation, "separation", c.Separation, "Spacing between lines in pixels")
	flags.BoolVar(&c.Strict, "strict", c.Strict, "Abort on any inconsistency instead of dropping lost subtrees")
	flags.StringVar(&c.Rows, "rows", c.Rows, "Write render rows to this file (.jsonl, .parquet, .csv or .tsv)")
	flags.BoolVarP(&c.Quiet, "quiet", "q", c.Quiet, "Do not print the tree")
}

// AddUsageFlags adds utilization flags to a command.
func (c *UsageConfig) AddUsageFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&c.UsageLog, "usage-log", c.UsageLog, "Usage log input (JSONL)")
	flags.StringVarP(&c.Output, "output", "o", c.Output, "Interactive chart output (HTML, empty to skip)")
	flags.StringVar(&c.PNG, "png", c.PNG, "Static chart output (PNG)")
	flags.StringVar(&c.Export, "export", c.Export, "Export derived series (.jsonl, .parquet, .csv or .tsv)")
	flags.StringVar(&c.Title, "title", c.Title, "Chart title")
}

// Load fills every flag the user did not set on the command line from the
// environment (PROCGRAPH_<FLAG>) or, when configFile is set, from that file.
// Command-line values win over the environment, which wins over the file.
func Load(flags *pflag.FlagSet, configFile string) error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}
	if err := v.BindPFlags(flags); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}

	var errs error
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Changed || f.Name == "config" || !v.IsSet(f.Name) {
			return
		}
		if err := flags.Set(f.Name, v.GetString(f.Name)); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", f.Name, err))
		}
	})
	return errs
}
