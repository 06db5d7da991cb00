package main

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	faio "github.com/superlxh02/faio"
	"github.com/superlxh02/faio/internal/core"
	"github.com/superlxh02/faio/internal/trace"
)

var (
	stressTasks      int
	stressIncrements int
	stressSubmitters int
	stressTraceDump  string
)

func init() {
	stressCmd.Flags().IntVar(&stressTasks, "tasks", 10000, "tasks per submitter")
	stressCmd.Flags().IntVar(&stressIncrements, "increments", 10000, "counter increments per task")
	stressCmd.Flags().IntVar(&stressSubmitters, "submitters", 1, "external threads calling block_on concurrently")
	stressCmd.Flags().StringVar(&stressTraceDump, "trace-dump", "", "write a msgpack trace snapshot to this path")
}

// newStressRuntime builds the runtime, routing events into a ring tracer
// when a snapshot dump was requested.
func newStressRuntime(cfg faio.Config) (*faio.Runtime, *trace.RingTracer, error) {
	if stressTraceDump == "" {
		rt, err := faio.New(cfg)
		return rt, nil, err
	}
	level := trace.LevelDebug
	if cfg.TraceLevel != "" {
		parsed, err := trace.ParseLevel(cfg.TraceLevel)
		if err != nil {
			return nil, nil, err
		}
		if parsed > trace.LevelOff {
			level = parsed
		}
	}
	ring := trace.NewRingTracer(8192, level)
	rt, err := core.NewRuntime(core.Config{
		NumWorkers:          cfg.NumWorkers,
		NumEvents:           cfg.NumEvents,
		SubmitInterval:      cfg.SubmitInterval,
		IOInterval:          cfg.IOInterval,
		GlobalQueueInterval: cfg.GlobalQueueInterval,
		Tracer:              ring,
	})
	return rt, ring, err
}

// counterTask increments a shared counter, yielding every 256 increments,
// then reports on the shared channel.
type counterTask struct {
	pc      int
	i       int
	counter *atomic.Int64
	incs    int
	tx      *faio.Sender[int]
	sendOp  faio.SendOp[int]
}

func (ct *counterTask) poll(cx faio.Ctx) faio.Step {
	switch ct.pc {
	case 0:
		for ct.i < ct.incs {
			ct.counter.Add(1)
			ct.i++
			if ct.i%256 == 0 {
				if d, _ := faio.Sleep(cx, 0); d == faio.Suspend {
					return faio.StepPending
				}
			}
		}
		ct.pc = 1
		if ct.tx.Send(cx, &ct.sendOp, 1) == faio.Suspend {
			return faio.StepPending
		}
		fallthrough
	default:
		return faio.StepDone
	}
}

// stressRoot spawns the counter tasks and receives one report per task.
type stressRoot struct {
	pc      int
	n       int
	incs    int
	recvd   int
	counter *atomic.Int64
	tx      *faio.Sender[int]
	rx      *faio.Receiver[int]
	recvOp  faio.RecvOp[int]
}

func (sr *stressRoot) poll(cx faio.Ctx) faio.Step {
	switch sr.pc {
	case 0:
		for i := 0; i < sr.n; i++ {
			cx.Spawn(faio.NewTask((&counterTask{
				counter: sr.counter,
				incs:    sr.incs,
				tx:      sr.tx,
			}).poll))
		}
		sr.pc = 1
		fallthrough
	default:
		for sr.recvd < sr.n {
			if sr.pc == 2 {
				// Resumed by a sender: recvOp already holds the value.
				sr.pc = 1
			} else if sr.rx.Recv(cx, &sr.recvOp) == faio.Suspend {
				sr.pc = 2
				return faio.StepPending
			}
			if sr.recvOp.Err() != nil {
				return faio.StepDone
			}
			sr.recvd++
		}
		return faio.StepDone
	}
}

var stressCmd = &cobra.Command{
	Use:   "stress",
	Short: "Run the counter stress scenario",
	Long:  `Spawns tasks that hammer a shared atomic counter, yield periodically and report over a bounded channel; verifies the final count`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		rt, ring, err := newStressRuntime(cfg)
		if err != nil {
			return err
		}
		defer rt.Stop()

		var counter atomic.Int64
		start := time.Now()

		var g errgroup.Group
		for s := 0; s < stressSubmitters; s++ {
			g.Go(func() error {
				tx, rx := faio.NewChannel[int](stressTasks)
				root := &stressRoot{
					n:       stressTasks,
					incs:    stressIncrements,
					counter: &counter,
					tx:      tx,
					rx:      rx,
				}
				rt.BlockOn(faio.NewTask(root.poll))
				if root.recvd != stressTasks {
					return fmt.Errorf("received %d reports, want %d", root.recvd, stressTasks)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		elapsed := time.Since(start)

		want := int64(stressSubmitters) * int64(stressTasks) * int64(stressIncrements)
		got := counter.Load()
		out := cmd.OutOrStdout()
		if got != want {
			color.New(color.FgRed, color.Bold).Fprintf(out, "FAIL counter = %d, want %d\n", got, want)
			return fmt.Errorf("counter mismatch")
		}
		color.New(color.FgGreen, color.Bold).Fprintf(out, "OK ")
		fmt.Fprintf(out, "%d increments across %d tasks in %s (%.0f incr/ms)\n",
			got, stressSubmitters*stressTasks, elapsed.Round(time.Millisecond),
			float64(got)/float64(elapsed.Milliseconds()+1))
		if ring != nil {
			if err := trace.WriteSnapshotFile(stressTraceDump, ring); err != nil {
				return err
			}
			fmt.Fprintf(out, "trace snapshot written to %s\n", stressTraceDump)
		}
		return nil
	},
}
