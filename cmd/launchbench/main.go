package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

func main() {
	app := &cli.Command{
		Name:   "launchbench",
		Usage:  "Compare host-sequential and device-recursive launch orchestration",
		Flags:  rootFlags(),
		Action: benchAction,
		Commands: []*cli.Command{
			devicesCmd(),
			versionCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
