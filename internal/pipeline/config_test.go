package pipeline

import (
	"math"
	"testing"

	"github.com/tkells/launchbench/internal/device"
)

func TestNewConfigGrid(t *testing.T) {
	tests := []struct {
		n     int
		block int
		grid  int
	}{
		{n: 1, block: 256, grid: 1},
		{n: 255, block: 256, grid: 1},
		{n: 256, block: 256, grid: 1},
		{n: 257, block: 256, grid: 2},
		{n: 1 << 20, block: 256, grid: 4096},
		{n: 1<<20 + 1, block: 256, grid: 4097},
		{n: 10, block: 1024, grid: 1},
		{n: 7, block: 1, grid: 7},
	}
	for _, tt := range tests {
		cfg, err := NewConfig(tt.n, 1, tt.block)
		if err != nil {
			t.Fatalf("NewConfig(%d,1,%d): %v", tt.n, tt.block, err)
		}
		if cfg.Grid != tt.grid {
			t.Fatalf("n=%d block=%d: grid %d, want %d", tt.n, tt.block, cfg.Grid, tt.grid)
		}
		// The covering property: enough threads, and not one block more.
		if cfg.Grid*cfg.Block < tt.n {
			t.Fatalf("n=%d block=%d: grid %d does not cover", tt.n, tt.block, cfg.Grid)
		}
		if (cfg.Grid-1)*cfg.Block >= tt.n {
			t.Fatalf("n=%d block=%d: grid %d overshoots", tt.n, tt.block, cfg.Grid)
		}
	}
}

func TestNewConfigScaleClamp(t *testing.T) {
	for _, scale := range []int{0, -1, -1000} {
		cfg, err := NewConfig(64, scale, 32)
		if err != nil {
			t.Fatalf("NewConfig scale=%d: %v", scale, err)
		}
		if cfg.Scale != 1 {
			t.Fatalf("scale %d clamped to %d, want 1", scale, cfg.Scale)
		}
	}
	cfg, _ := NewConfig(64, 8, 32)
	if cfg.Scale != 8 {
		t.Fatalf("scale 8 became %d", cfg.Scale)
	}
}

func TestNewConfigRejects(t *testing.T) {
	if _, err := NewConfig(0, 1, 256); err == nil {
		t.Fatal("zero element count accepted")
	}
	if _, err := NewConfig(-5, 1, 256); err == nil {
		t.Fatal("negative element count accepted")
	}
	if _, err := NewConfig(math.MaxInt, 1, 256); err == nil {
		t.Fatal("overflowing element count accepted")
	}
	if _, err := NewConfig(64, 1, 0); err == nil {
		t.Fatal("zero block accepted")
	}
	if _, err := NewConfig(64, 1, device.MaxBlock+1); err == nil {
		t.Fatal("oversized block accepted")
	}
}

func TestConfigLaunch(t *testing.T) {
	cfg, err := NewConfig(1000, 3, 128)
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	ln := cfg.Launch()
	if ln.Grid != 8 || ln.Block != 128 || ln.N != 1000 || ln.Scale != 3 {
		t.Fatalf("launch geometry %+v", ln)
	}
}
