// Package bench runs the launch-orchestration benchmark: it drives both
// pipeline strategies over one device queue, times each invocation with a
// queue-ordered marker pair, and reduces the samples into a report.
package bench

import (
	"context"
	"fmt"

	"github.com/tkells/launchbench/internal/device"
	"github.com/tkells/launchbench/internal/logger"
	"github.com/tkells/launchbench/internal/pipeline"
)

// Params fix one benchmark invocation.
type Params struct {
	N      int
	Scale  int
	Runs   int
	Warmup int
	Block  int
	Device int
}

// Run executes the full benchmark on one device of the backend: select
// the device, allocate the ping-pong pair, then per strategy warm up,
// drain, and measure. Errors out of Run are fatal and name the failing
// operation; a capability gap is not an error and yields a skipped
// strategy instead.
func Run(ctx context.Context, backend device.Backend, p Params) (*Report, error) {
	log := logger.FromContext(ctx)

	if p.Runs < 1 {
		return nil, fmt.Errorf("validate params: run count %d", p.Runs)
	}
	if p.Warmup < 0 {
		return nil, fmt.Errorf("validate params: warmup count %d", p.Warmup)
	}
	cfg, err := pipeline.NewConfig(p.N, p.Scale, p.Block)
	if err != nil {
		return nil, fmt.Errorf("validate params: %w", err)
	}

	dev, err := backend.Open(p.Device)
	if err != nil {
		return nil, fmt.Errorf("select device %d: %w", p.Device, err)
	}
	defer dev.Close()
	info := dev.Info()
	log.Info("device selected",
		"index", p.Device,
		"name", info.Name,
		"compute", info.Compute,
		"device_launch", info.DeviceLaunch)

	q, err := dev.NewQueue()
	if err != nil {
		return nil, fmt.Errorf("create queue: %w", err)
	}
	defer q.Close()

	a, err := dev.NewBuffer(cfg.N)
	if err != nil {
		return nil, fmt.Errorf("allocate buffer A: %w", err)
	}
	defer a.Free()
	b, err := dev.NewBuffer(cfg.N)
	if err != nil {
		return nil, fmt.Errorf("allocate buffer B: %w", err)
	}
	defer b.Free()
	log.Debug("buffers allocated", "elements", cfg.N, "bytes", uint64(cfg.N)*8)

	rep := NewReport(info, p, cfg)
	for _, s := range pipeline.Strategies() {
		res, err := measure(ctx, q, s, a, b, cfg, p, info)
		if err != nil {
			return nil, err
		}
		rep.Strategies = append(rep.Strategies, res)
	}
	rep.finish()
	return rep, nil
}

// measure runs one strategy's warm-up and measured phases. Launch-issue
// errors are logged and the run continues; marker and drain failures are
// fatal.
func measure(ctx context.Context, q device.Queue, s pipeline.Strategy,
	a, b device.Buffer, cfg pipeline.Config, p Params, info device.Info) (StrategyResult, error) {

	log := logger.FromContext(ctx)
	res := StrategyResult{Name: s.Name()}

	if s.NeedsDeviceLaunch() && !info.DeviceLaunch {
		log.Warn("strategy skipped",
			"strategy", s.Name(),
			"compute", info.Compute)
		return res, nil
	}

	for i := range p.Warmup {
		if err := s.Enqueue(q, a, b, cfg); err != nil {
			log.Warn("warmup launch issue", "strategy", s.Name(), "run", i+1, "err", err)
		}
	}
	if err := q.Synchronize(); err != nil {
		return res, fmt.Errorf("%s: drain after warmup: %w", s.Name(), err)
	}
	log.Info("measuring", "strategy", s.Name(), "runs", p.Runs)

	res.Samples = make([]float64, 0, p.Runs)
	for i := range p.Runs {
		start, err := q.Record()
		if err != nil {
			return res, fmt.Errorf("%s: record start marker: %w", s.Name(), err)
		}
		if err := s.Enqueue(q, a, b, cfg); err != nil {
			log.Warn("launch issue", "strategy", s.Name(), "run", i+1, "err", err)
		}
		end, err := q.Record()
		if err != nil {
			return res, fmt.Errorf("%s: record end marker: %w", s.Name(), err)
		}
		if err := end.Wait(); err != nil {
			return res, fmt.Errorf("%s: wait for run %d: %w", s.Name(), i+1, err)
		}
		t0, err := start.Time()
		if err != nil {
			return res, fmt.Errorf("%s: read start marker: %w", s.Name(), err)
		}
		t1, err := end.Time()
		if err != nil {
			return res, fmt.Errorf("%s: read end marker: %w", s.Name(), err)
		}
		ms := float64(t1.Sub(t0)) / 1e6
		res.Samples = append(res.Samples, ms)
		log.Debug("run sample", "strategy", s.Name(), "run", i+1, "ms", ms)
	}

	res.Ran = true
	res.Summary = Summarize(res.Samples)
	return res, nil
}
