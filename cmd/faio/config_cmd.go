package main

import (
	"fmt"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	faio "github.com/superlxh02/faio"
)

// loadConfig resolves the effective configuration for a command: the
// --config flag, an upward faio.toml search, or defaults, with flag
// overrides applied on top.
func loadConfig(cmd *cobra.Command) (faio.Config, string, error) {
	var cfg faio.Config
	source := "defaults"

	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		found, ok, err := faio.FindManifest(".")
		if err != nil {
			return cfg, "", err
		}
		if ok {
			path = found
		}
	}
	if path != "" {
		loaded, err := faio.LoadConfig(path)
		if err != nil {
			return cfg, "", err
		}
		cfg = loaded
		source = path
	}

	if workers, _ := cmd.Flags().GetInt("workers"); workers > 0 {
		cfg.NumWorkers = workers
	}
	if level, _ := cmd.Flags().GetString("trace-level"); level != "" {
		cfg.TraceLevel = level
	}
	return cfg, source, nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective runtime configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, source, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		key := color.New(color.FgCyan)
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s %s\n", key.Sprint("source:"), source)
		fmt.Fprintf(out, "%s %d\n", key.Sprint("num_workers:"), orDefault(cfg.NumWorkers, runtime.NumCPU()))
		fmt.Fprintf(out, "%s %d\n", key.Sprint("num_events:"), orDefault(cfg.NumEvents, 1024))
		fmt.Fprintf(out, "%s %d\n", key.Sprint("submit_interval:"), orDefaultU32(cfg.SubmitInterval, 4))
		fmt.Fprintf(out, "%s %d\n", key.Sprint("io_interval:"), orDefaultU32(cfg.IOInterval, 61))
		fmt.Fprintf(out, "%s %d\n", key.Sprint("global_queue_interval:"), orDefaultU32(cfg.GlobalQueueInterval, 61))
		fmt.Fprintf(out, "%s %s\n", key.Sprint("trace_level:"), orDefaultStr(cfg.TraceLevel, "off"))
		return nil
	},
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func orDefaultU32(v, def uint32) uint32 {
	if v > 0 {
		return v
	}
	return def
}

func orDefaultStr(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
