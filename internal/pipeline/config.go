// Package pipeline defines the fixed four-stage elementwise float32
// pipeline and the two orchestration strategies that issue it: the host
// controller enqueuing every stage itself, and a single device-side
// bootstrap tail-chaining the stages.
package pipeline

import (
	"fmt"
	"math"

	"github.com/tkells/launchbench/internal/device"
)

// Config fixes one pipeline invocation: the element count, the per-stage
// work scale and the launch geometry derived from them.
type Config struct {
	N     int
	Scale int
	Grid  int
	Block int
}

// NewConfig derives the smallest grid whose grid*block covers n. A
// non-positive scale is clamped to one pass.
func NewConfig(n, scale, block int) (Config, error) {
	if n < 1 {
		return Config{}, fmt.Errorf("pipeline config: element count %d", n)
	}
	// Bounding n keeps n+block-1 below the int ceiling for every
	// accepted block.
	if n > math.MaxInt-device.MaxBlock {
		return Config{}, fmt.Errorf("pipeline config: element count %d too large", n)
	}
	if block < 1 || block > device.MaxBlock {
		return Config{}, fmt.Errorf("pipeline config: block size %d outside 1..%d", block, device.MaxBlock)
	}
	if scale < 1 {
		scale = 1
	}
	return Config{
		N:     n,
		Scale: scale,
		Grid:  (n + block - 1) / block,
		Block: block,
	}, nil
}

// Launch returns the geometry shared by all four stage launches.
func (c Config) Launch() device.Launch {
	return device.Launch{Grid: c.Grid, Block: c.Block, N: c.N, Scale: c.Scale}
}
