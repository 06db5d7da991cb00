package core

import (
	"runtime"

	"github.com/superlxh02/faio/internal/trace"
)

// Config carries the scheduler knobs. Zero fields take the defaults below.
type Config struct {
	// NumWorkers is the number of worker threads.
	NumWorkers int
	// NumEvents is the submission/completion ring depth per worker.
	NumEvents int
	// SubmitInterval is the number of prepared submissions between forced
	// flushes.
	SubmitInterval uint32
	// IOInterval is the tick period of forced drive_io calls in the worker
	// hot loop.
	IOInterval uint32
	// GlobalQueueInterval is the tick period of forced global queue polls,
	// so long local runs cannot starve globally queued work.
	GlobalQueueInterval uint32
	// Tracer receives runtime events. Nil disables tracing.
	Tracer trace.Tracer
}

func (c Config) withDefaults() Config {
	if c.NumWorkers <= 0 {
		c.NumWorkers = runtime.NumCPU()
	}
	if c.NumEvents <= 0 {
		c.NumEvents = 1024
	}
	if c.SubmitInterval == 0 {
		c.SubmitInterval = 4
	}
	if c.IOInterval == 0 {
		c.IOInterval = 61
	}
	if c.GlobalQueueInterval == 0 {
		c.GlobalQueueInterval = 61
	}
	if c.Tracer == nil {
		c.Tracer = trace.Nop
	}
	return c
}
