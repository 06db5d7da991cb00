package faio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/superlxh02/faio/internal/core"
	"github.com/superlxh02/faio/internal/trace"
)

// Config holds the runtime knobs. The zero value selects the defaults noted
// per field.
type Config struct {
	// NumWorkers is the number of worker threads (default: number of CPUs).
	NumWorkers int `toml:"num_workers"`
	// NumEvents is each worker's submission/completion ring depth
	// (default 1024).
	NumEvents int `toml:"num_events"`
	// SubmitInterval is the number of prepared submissions between forced
	// flushes (default 4).
	SubmitInterval uint32 `toml:"submit_interval"`
	// IOInterval is the tick period of forced I/O drives in the worker hot
	// loop (default 61).
	IOInterval uint32 `toml:"io_interval"`
	// GlobalQueueInterval is the tick period of forced global queue polls
	// (default 61).
	GlobalQueueInterval uint32 `toml:"global_queue_interval"`

	// TraceLevel selects runtime event tracing:
	// off|error|phase|detail|debug (default off).
	TraceLevel string `toml:"trace_level"`
	// TraceMode selects where events go: stream|ring|both (default ring).
	TraceMode string `toml:"trace_mode"`
	// TracePath is the stream output path; "-" or empty means stderr.
	TracePath string `toml:"trace_path"`
}

// ManifestName is the config manifest searched for by FindManifest.
const ManifestName = "faio.toml"

// FindManifest walks up from startDir to locate faio.toml.
func FindManifest(startDir string) (path string, ok bool, err error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, ManifestName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// LoadConfig reads a faio.toml manifest. Unset fields keep their defaults.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%s: unknown option %q", path, undecoded[0].String())
	}
	return cfg, nil
}

// tracer builds the tracer described by the trace fields.
func (c Config) tracer() (trace.Tracer, error) {
	level := trace.LevelOff
	if c.TraceLevel != "" {
		var err error
		level, err = trace.ParseLevel(c.TraceLevel)
		if err != nil {
			return nil, err
		}
	}
	if level == trace.LevelOff {
		return trace.Nop, nil
	}
	mode := trace.ModeRing
	if c.TraceMode != "" {
		var err error
		mode, err = trace.ParseMode(c.TraceMode)
		if err != nil {
			return nil, err
		}
	}
	return trace.New(trace.Config{
		Level:      level,
		Mode:       mode,
		OutputPath: c.TracePath,
	})
}

// New starts a runtime with the given configuration. The worker threads are
// up and waiting by the time it returns.
func New(cfg Config) (*Runtime, error) {
	tracer, err := cfg.tracer()
	if err != nil {
		return nil, err
	}
	return core.NewRuntime(core.Config{
		NumWorkers:          cfg.NumWorkers,
		NumEvents:           cfg.NumEvents,
		SubmitInterval:      cfg.SubmitInterval,
		IOInterval:          cfg.IOInterval,
		GlobalQueueInterval: cfg.GlobalQueueInterval,
		Tracer:              tracer,
	})
}
