package main

import (
	"runtime"

	"github.com/urfave/cli/v3"
)

var (
	elementCount int64
	workScale    int64
	benchRuns    int64
	warmupRuns   int64
	blockSize    int64
	deviceIndex  int64
	backendName  string
	workerCount  int64
	computeCap   string
	jsonOut      bool
	cpuProfile   string
	memProfile   string
	logLevel     string
	logFormat    string
	debug        bool
)

func benchFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{
			Name:        "n",
			Usage:       "element count for both buffers",
			Value:       1 << 20,
			Destination: &elementCount,
		},
		&cli.Int64Flag{
			Name:        "iters",
			Aliases:     []string{"scale"},
			Usage:       "per-element work scale applied by every stage",
			Value:       64,
			Destination: &workScale,
		},
		&cli.Int64Flag{
			Name:        "runs",
			Usage:       "measured invocations per strategy",
			Value:       10,
			Destination: &benchRuns,
		},
		&cli.Int64Flag{
			Name:        "warmup",
			Usage:       "untimed invocations per strategy before measuring",
			Value:       3,
			Destination: &warmupRuns,
		},
		&cli.Int64Flag{
			Name:        "block",
			Usage:       "launch block size; grid is ceil(n/block)",
			Value:       256,
			Destination: &blockSize,
		},
	}
}

func deviceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{
			Name:        "device",
			Aliases:     []string{"d"},
			Usage:       "accelerator index to select",
			Value:       0,
			Destination: &deviceIndex,
		},
		&cli.StringFlag{
			Name:        "backend",
			Usage:       "device backend (auto, virtual, webgpu)",
			Value:       "virtual",
			Destination: &backendName,
		},
		&cli.Int64Flag{
			Name:        "workers",
			Usage:       "virtual device worker count",
			Value:       int64(runtime.NumCPU()),
			Destination: &workerCount,
		},
		&cli.StringFlag{
			Name:        "compute-cap",
			Aliases:     []string{"cc"},
			Usage:       "virtual device compute capability (major.minor)",
			Value:       "7.5",
			Destination: &computeCap,
		},
	}
}

func outputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:        "json",
			Usage:       "emit the report as JSON",
			Destination: &jsonOut,
		},
	}
}

func profileFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "cpuprofile",
			Usage:       "write CPU profile to file",
			Destination: &cpuProfile,
		},
		&cli.StringFlag{
			Name:        "memprofile",
			Usage:       "write memory profile to file",
			Destination: &memProfile,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

func rootFlags() []cli.Flag {
	flags := append([]cli.Flag{}, benchFlags()...)
	flags = append(flags, deviceFlags()...)
	flags = append(flags, outputFlags()...)
	flags = append(flags, profileFlags()...)
	flags = append(flags, loggingFlags()...)
	return flags
}
