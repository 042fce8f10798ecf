package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the launchbench configuration file
// (~/.config/launchbench/config.yaml). Numeric fields are pointers so we
// can distinguish "not set" from zero values.
type Config struct {
	N      *int64 `yaml:"n"`
	Iters  *int64 `yaml:"iters"`
	Runs   *int64 `yaml:"runs"`
	Warmup *int64 `yaml:"warmup"`
	Block  *int64 `yaml:"block"`

	Device     *int64 `yaml:"device"`
	Backend    string `yaml:"backend"`
	Workers    *int64 `yaml:"workers"`
	ComputeCap string `yaml:"compute_cap"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "launchbench", "config.yaml")
}

// LoadConfig reads the config file. Returns a zero Config if the file
// doesn't exist or cannot be parsed.
func LoadConfig() Config { return loadConfig(configPath()) }

func loadConfig(path string) Config {
	if path == "" {
		return Config{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}

// applyConfig applies config file defaults to the flag variables when the
// corresponding CLI flag was not explicitly set.
func applyConfig(c *cli.Command, cfg Config) {
	if cfg.N != nil && !c.IsSet("n") {
		elementCount = *cfg.N
	}
	if cfg.Iters != nil && !c.IsSet("iters") && !c.IsSet("scale") {
		workScale = *cfg.Iters
	}
	if cfg.Runs != nil && !c.IsSet("runs") {
		benchRuns = *cfg.Runs
	}
	if cfg.Warmup != nil && !c.IsSet("warmup") {
		warmupRuns = *cfg.Warmup
	}
	if cfg.Block != nil && !c.IsSet("block") {
		blockSize = *cfg.Block
	}
	if cfg.Device != nil && !c.IsSet("device") {
		deviceIndex = *cfg.Device
	}
	if cfg.Backend != "" && !c.IsSet("backend") {
		backendName = cfg.Backend
	}
	if cfg.Workers != nil && !c.IsSet("workers") {
		workerCount = *cfg.Workers
	}
	if cfg.ComputeCap != "" && !c.IsSet("compute-cap") && !c.IsSet("cc") {
		computeCap = cfg.ComputeCap
	}
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}
