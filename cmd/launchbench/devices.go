package main

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/tkells/launchbench/internal/device"
)

func devicesCmd() *cli.Command {
	flags := append([]cli.Flag{}, deviceFlags()...)
	flags = append(flags, outputFlags()...)

	return &cli.Command{
		Name:  "devices",
		Usage: "List devices visible to the selected backend",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			applyConfig(c, LoadConfig())

			backend, err := device.New(backendName, deviceOptions())
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: open backend: %v", err), 1)
			}
			infos, err := backend.Devices()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: enumerate devices: %v", err), 1)
			}

			if jsonOut {
				out, err := json.MarshalIndent(infos, "", "  ")
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: encode devices: %v", err), 1)
				}
				fmt.Println(string(out))
				return nil
			}
			fmt.Printf("backend: %s\n", backend.Name())
			for _, info := range infos {
				launch := "no"
				if info.DeviceLaunch {
					launch = "yes"
				}
				fmt.Printf("%d: %s (compute %s, %.1f GB, device launch: %s)\n",
					info.Index, info.Name, info.Compute,
					float64(info.Memory)/(1024*1024*1024), launch)
			}
			return nil
		},
	}
}
