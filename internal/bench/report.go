package bench

import (
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tkells/launchbench/internal/device"
	"github.com/tkells/launchbench/internal/pipeline"
	"github.com/tkells/launchbench/internal/version"
)

// Settings echoes the effective benchmark configuration.
type Settings struct {
	N      int `json:"n"`
	Iters  int `json:"iters"`
	Runs   int `json:"runs"`
	Warmup int `json:"warmup"`
	Block  int `json:"block"`
	Grid   int `json:"grid"`
	Device int `json:"device"`
}

// StrategyResult is one orchestration's outcome. A skipped strategy has
// Ran false, no samples and the zero Summary.
type StrategyResult struct {
	Name    string    `json:"name"`
	Ran     bool      `json:"ran"`
	Samples []float64 `json:"samples_ms,omitempty"`
	Summary Summary   `json:"summary"`
}

// Report is the full benchmark outcome.
type Report struct {
	ID         string           `json:"id"`
	Version    string           `json:"version"`
	Started    time.Time        `json:"started"`
	Device     device.Info      `json:"device"`
	Settings   Settings         `json:"settings"`
	Strategies []StrategyResult `json:"strategies"`
	// Ratio is mean(host-sequential) / mean(device-recursive), present
	// only when both strategies produced samples.
	Ratio  float64 `json:"ratio,omitempty"`
	Notice string  `json:"notice,omitempty"`
}

func NewReport(info device.Info, p Params, cfg pipeline.Config) *Report {
	return &Report{
		ID:      uuid.NewString(),
		Version: version.String(),
		Started: time.Now().UTC(),
		Device:  info,
		Settings: Settings{
			N:      cfg.N,
			Iters:  cfg.Scale,
			Runs:   p.Runs,
			Warmup: p.Warmup,
			Block:  cfg.Block,
			Grid:   cfg.Grid,
			Device: p.Device,
		},
	}
}

// finish derives the cross-strategy fields once all results are in.
func (r *Report) finish() {
	var host, rec *StrategyResult
	hostName := pipeline.HostSequential{}.Name()
	recName := pipeline.DeviceRecursive{}.Name()
	for i := range r.Strategies {
		switch r.Strategies[i].Name {
		case hostName:
			host = &r.Strategies[i]
		case recName:
			rec = &r.Strategies[i]
		}
	}
	if rec != nil && !rec.Ran {
		r.Notice = fmt.Sprintf("%s not supported: compute %s lacks device-initiated launch",
			recName, r.Device.Compute)
	}
	if host != nil && rec != nil && host.Ran && rec.Ran && rec.Summary.Mean > 0 {
		r.Ratio = host.Summary.Mean / rec.Summary.Mean
	}
}

// throughput converts a mean per-invocation latency to million elements
// per second.
func (r *Report) throughput(mean float64) float64 {
	if mean <= 0 {
		return 0
	}
	return float64(r.Settings.N) / (mean * 1000)
}

// Render writes the human-readable console report.
func (r *Report) Render(w io.Writer) {
	launch := "no"
	if r.Device.DeviceLaunch {
		launch = "yes"
	}
	fmt.Fprintf(w, "=== launchbench %s ===\n", r.Version)
	fmt.Fprintf(w, "Report:   %s\n", r.ID)
	fmt.Fprintf(w, "Device:   %s (index %d)\n", r.Device.Name, r.Device.Index)
	fmt.Fprintf(w, "Compute:  %s (device launch: %s)\n", r.Device.Compute, launch)
	if r.Device.Memory > 0 {
		fmt.Fprintf(w, "Memory:   %.1f GB\n", float64(r.Device.Memory)/(1024*1024*1024))
	}
	fmt.Fprintf(w, "Elements: %d (block %d, grid %d)\n", r.Settings.N, r.Settings.Block, r.Settings.Grid)
	fmt.Fprintf(w, "Scale:    %d passes/element\n", r.Settings.Iters)
	fmt.Fprintf(w, "Warmup:   %d runs\n", r.Settings.Warmup)
	fmt.Fprintf(w, "Runs:     %d\n", r.Settings.Runs)

	for _, st := range r.Strategies {
		fmt.Fprintf(w, "\n--- %s ---\n", st.Name)
		if !st.Ran {
			fmt.Fprintf(w, "notice: %s\n", r.Notice)
			continue
		}
		fmt.Fprintf(w, "%-6s %12s\n", "Run", "ms")
		for i, s := range st.Samples {
			fmt.Fprintf(w, "%-6d %12.3f\n", i+1, s)
		}
		fmt.Fprintf(w, "Mean: %.3f ms  Min: %.3f ms  Max: %.3f ms  (%.1f Melem/s)\n",
			st.Summary.Mean, st.Summary.Min, st.Summary.Max, r.throughput(st.Summary.Mean))
	}

	if r.Ratio > 0 {
		fmt.Fprintf(w, "\nRelative speed: mean(host-sequential) / mean(device-recursive) = %.3f\n", r.Ratio)
	}
}

// WriteJSON emits the machine-readable report.
func (r *Report) WriteJSON(w io.Writer) error {
	out, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	out = append(out, '\n')
	_, err = w.Write(out)
	return err
}
