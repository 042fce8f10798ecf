package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/tkells/launchbench/internal/device"
	"github.com/tkells/launchbench/internal/version"
)

func versionCmd() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print version, build and backend information",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			printVersion(os.Stdout)
			return nil
		},
	}
}

func printVersion(w io.Writer) {
	info := version.Resolve()
	fmt.Fprintf(w, "launchbench %s\n", info.Version)
	if info.Commit != "" {
		fmt.Fprintf(w, "  commit:     %s\n", info.Commit)
	}
	if info.BuildTime != "" {
		fmt.Fprintf(w, "  build time: %s\n", info.BuildTime)
	}
	fmt.Fprintf(w, "  runtime:    %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(w, "  backends:   %s\n", strings.Join(device.Backends(), ", "))
}
