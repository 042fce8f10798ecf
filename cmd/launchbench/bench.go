package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime/pprof"

	"github.com/urfave/cli/v3"

	"github.com/tkells/launchbench/internal/bench"
	"github.com/tkells/launchbench/internal/device"
	"github.com/tkells/launchbench/internal/logger"
)

func benchAction(ctx context.Context, c *cli.Command) error {
	if cpuProfile != "" {
		f, err := os.Create(cpuProfile)
		if err != nil {
			return cli.Exit(fmt.Sprintf("could not create CPU profile: %v", err), 1)
		}
		defer func() { _ = f.Close() }()
		if err := pprof.StartCPUProfile(f); err != nil {
			return cli.Exit(fmt.Sprintf("could not start CPU profile: %v", err), 1)
		}
		defer pprof.StopCPUProfile()
	}

	if memProfile != "" {
		defer func() {
			f, err := os.Create(memProfile)
			if err != nil {
				fmt.Fprintf(os.Stderr, "could not create memory profile: %v\n", err)
				return
			}
			defer func() { _ = f.Close() }()
			if err := pprof.WriteHeapProfile(f); err != nil {
				fmt.Fprintf(os.Stderr, "could not write memory profile: %v\n", err)
			}
		}()
	}

	applyConfig(c, LoadConfig())
	ctx = logger.WithContext(ctx, setupLogger())

	if err := runBenchmark(ctx, os.Stdout); err != nil {
		return cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	return nil
}

func setupLogger() logger.Logger {
	level := logLevel
	if debug {
		level = "debug"
	}
	return logger.Setup(os.Stderr, logFormat, level)
}

// runBenchmark resolves the backend, runs the harness, and writes the
// report. A capability gap surfaces as a notice inside the report, not
// as an error.
func runBenchmark(ctx context.Context, out io.Writer) error {
	backend, err := device.New(backendName, deviceOptions())
	if err != nil {
		return fmt.Errorf("open backend: %w", err)
	}
	p := bench.Params{
		N:      int(elementCount),
		Scale:  int(workScale),
		Runs:   int(benchRuns),
		Warmup: int(warmupRuns),
		Block:  int(blockSize),
		Device: int(deviceIndex),
	}
	rep, err := bench.Run(ctx, backend, p)
	if err != nil {
		return err
	}
	if jsonOut {
		return rep.WriteJSON(out)
	}
	rep.Render(out)
	return nil
}

func deviceOptions() device.Options {
	return device.Options{
		Workers: int(workerCount),
		Compute: computeCap,
	}
}
