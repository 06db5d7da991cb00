package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	faio "github.com/superlxh02/faio"
)

var (
	sleepbenchDuration time.Duration
	sleepbenchRounds   int
)

func init() {
	sleepbenchCmd.Flags().DurationVar(&sleepbenchDuration, "duration", 10*time.Millisecond, "sleep duration per round")
	sleepbenchCmd.Flags().IntVar(&sleepbenchRounds, "rounds", 50, "number of sleeps to measure")
}

// sleepBench measures wheel accuracy: the overshoot of each sleep past its
// requested duration.
type sleepBench struct {
	pc       int
	round    int
	rounds   int
	duration time.Duration
	started  time.Time
	drifts   []time.Duration
}

func (sb *sleepBench) poll(cx faio.Ctx) faio.Step {
	for {
		switch sb.pc {
		case 0:
			if sb.round >= sb.rounds {
				return faio.StepDone
			}
			sb.started = time.Now()
			sb.pc = 1
			if d, err := faio.Sleep(cx, sb.duration); err != nil {
				panic(err)
			} else if d == faio.Suspend {
				return faio.StepPending
			}
		case 1:
			sb.drifts = append(sb.drifts, time.Since(sb.started)-sb.duration)
			sb.round++
			sb.pc = 0
		}
	}
}

var sleepbenchCmd = &cobra.Command{
	Use:   "sleepbench",
	Short: "Measure timer wheel accuracy",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		rt, err := faio.New(cfg)
		if err != nil {
			return err
		}
		defer rt.Stop()

		bench := &sleepBench{rounds: sleepbenchRounds, duration: sleepbenchDuration}
		rt.BlockOn(faio.NewTask(bench.poll))

		var min, max, sum time.Duration
		for i, d := range bench.drifts {
			if i == 0 || d < min {
				min = d
			}
			if d > max {
				max = d
			}
			sum += d
		}
		out := cmd.OutOrStdout()
		color.New(color.FgGreen, color.Bold).Fprint(out, "sleepbench ")
		fmt.Fprintf(out, "%d × %s: drift min=%s avg=%s max=%s\n",
			sleepbenchRounds, sleepbenchDuration,
			min, sum/time.Duration(len(bench.drifts)), max)
		return nil
	},
}
