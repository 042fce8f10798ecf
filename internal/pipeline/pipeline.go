package pipeline

import (
	"errors"
	"fmt"

	"github.com/tkells/launchbench/internal/device"
)

// Stages returns the four launches in ping-pong order over buffers a and
// b: stage1 writes a, stage2 reads a into b, stage3 reads b back into a,
// stage4 reads a into b. The final output lives in b.
func Stages(a, b device.Buffer) []device.StageLaunch {
	return []device.StageLaunch{
		{Stage: device.Stage1, Out: a},
		{Stage: device.Stage2, In: a, Out: b},
		{Stage: device.Stage3, In: b, Out: a},
		{Stage: device.Stage4, In: a, Out: b},
	}
}

// Strategy issues one full pipeline invocation onto a queue. Enqueue
// returns once the launches are submitted; completion is observed through
// queue events or Synchronize.
type Strategy interface {
	Name() string
	// NeedsDeviceLaunch reports whether the strategy requires
	// device-initiated launch support.
	NeedsDeviceLaunch() bool
	Enqueue(q device.Queue, a, b device.Buffer, cfg Config) error
}

// Strategies returns both orchestrations in report order.
func Strategies() []Strategy {
	return []Strategy{HostSequential{}, DeviceRecursive{}}
}

// HostSequential is the baseline orchestration: the controller submits
// all four stage launches itself, in order, onto the one queue.
type HostSequential struct{}

func (HostSequential) Name() string            { return "host-sequential" }
func (HostSequential) NeedsDeviceLaunch() bool { return false }

// Enqueue attempts every stage even when an earlier launch is rejected,
// so one diagnostic reports all failing links.
func (HostSequential) Enqueue(q device.Queue, a, b device.Buffer, cfg Config) error {
	ln := cfg.Launch()
	var errs []error
	for _, sl := range Stages(a, b) {
		if err := q.LaunchStage(sl.Stage, ln, sl.In, sl.Out); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DeviceRecursive hands the whole invocation to the device: one bootstrap
// launch tail-chains the four stages with no further host involvement.
type DeviceRecursive struct{}

func (DeviceRecursive) Name() string            { return "device-recursive" }
func (DeviceRecursive) NeedsDeviceLaunch() bool { return true }

func (DeviceRecursive) Enqueue(q device.Queue, a, b device.Buffer, cfg Config) error {
	if err := q.LaunchChain(cfg.Launch(), Stages(a, b)); err != nil {
		return fmt.Errorf("device-recursive: %w", err)
	}
	return nil
}

// Reference computes the full pipeline on the host, for verification.
func Reference(cfg Config) []float32 {
	out := make([]float32, cfg.N)
	for i := range cfg.N {
		x := device.Transform(device.Stage1, 0, i, cfg.Scale)
		x = device.Transform(device.Stage2, x, i, cfg.Scale)
		x = device.Transform(device.Stage3, x, i, cfg.Scale)
		x = device.Transform(device.Stage4, x, i, cfg.Scale)
		out[i] = x
	}
	return out
}

// Intermediate computes what buffer a holds after a full run, which is
// the stage3 output under the ping-pong ordering.
func Intermediate(cfg Config) []float32 {
	out := make([]float32, cfg.N)
	for i := range cfg.N {
		x := device.Transform(device.Stage1, 0, i, cfg.Scale)
		x = device.Transform(device.Stage2, x, i, cfg.Scale)
		out[i] = device.Transform(device.Stage3, x, i, cfg.Scale)
	}
	return out
}
