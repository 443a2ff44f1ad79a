package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	SourceDir  string `yaml:"source_dir"`
	BuildDir   string `yaml:"build_dir"`
	TargetFile string `yaml:"target_file"`

	Suite     Suite              `yaml:"suite"`
	Build     Build              `yaml:"build"`
	Bench     Bench              `yaml:"bench"`
	Scheduler Scheduler          `yaml:"scheduler"`
	Weights   Weights            `yaml:"weights"`
	Datasets  map[string]Dataset `yaml:"datasets"`
	Sandbox   Sandbox            `yaml:"sandbox"`

	ResultsDir string `yaml:"results_dir"`
	Debug      bool   `yaml:"debug"`
}

type Suite struct {
	Dir      string `yaml:"dir"`
	Upstream string `yaml:"upstream"`
	ListFile string `yaml:"list_file"`
}

type Build struct {
	Projects []string `yaml:"projects"`
	Targets  []string `yaml:"targets"`
	CCache   bool     `yaml:"ccache"`
	Linker   string   `yaml:"linker"`
}

type Bench struct {
	OptLevel       string `yaml:"opt_level"`
	Runs           int    `yaml:"runs"`
	Warmup         int    `yaml:"warmup"`
	TrimExtremes   *bool  `yaml:"trim_extremes"`
	TimeoutMinutes int    `yaml:"timeout_minutes"`
}

type Scheduler struct {
	Workers             int     `yaml:"workers"`
	EarlyStop           bool    `yaml:"early_stop"`
	RegressionThreshold float64 `yaml:"regression_threshold"`
}

// Weights are the named composite-score weights. They are fixed
// configuration, never derived from measurements.
type Weights struct {
	Runtime float64 `yaml:"runtime"`
	Compile float64 `yaml:"compile"`
	Size    float64 `yaml:"size"`
}

// Dataset selects a benchmark problem size: the macro passed to the kernel
// compile and the kernel list exercised under it. An empty kernel list is
// resolved from the suite's benchmark_list file at run time.
type Dataset struct {
	Macro   string   `yaml:"macro"`
	Kernels []string `yaml:"kernels"`
}

type Sandbox struct {
	Image         string  `yaml:"image"`
	CPULimit      float64 `yaml:"cpu_limit"`
	MemoryLimitMB int64   `yaml:"memory_limit_mb"`
}

var DefaultWeights = Weights{Runtime: 0.9, Compile: 0.0, Size: 0.1}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// TargetPath is the absolute location of the file candidates replace.
func (c *Config) TargetPath() string {
	return filepath.Join(c.SourceDir, c.TargetFile)
}

// TrimExtremes defaults to true when unset.
func (c *Config) TrimExtremes() bool {
	if c.Bench.TrimExtremes == nil {
		return true
	}
	return *c.Bench.TrimExtremes
}

func validate(cfg *Config) error {
	if cfg.SourceDir == "" {
		return fmt.Errorf("source_dir is required")
	}
	if cfg.TargetFile == "" {
		return fmt.Errorf("target_file is required")
	}
	if cfg.BuildDir == "" {
		cfg.BuildDir = filepath.Join(cfg.SourceDir, "build-evolve")
	}
	if cfg.Suite.Dir == "" {
		cfg.Suite.Dir = "polybench"
	}
	if cfg.Suite.Upstream == "" {
		cfg.Suite.Upstream = "https://github.com/MatthiasJReisinger/PolyBenchC-4.2.1"
	}
	if cfg.Suite.ListFile == "" {
		cfg.Suite.ListFile = filepath.Join("utilities", "benchmark_list")
	}
	if len(cfg.Build.Projects) == 0 {
		cfg.Build.Projects = []string{"clang"}
	}
	if len(cfg.Build.Targets) == 0 {
		cfg.Build.Targets = []string{"clang"}
	}
	if cfg.Bench.OptLevel == "" {
		cfg.Bench.OptLevel = "-O3"
	}
	if cfg.Bench.Runs == 0 {
		cfg.Bench.Runs = 3
	}
	if cfg.Bench.Runs < 1 {
		return fmt.Errorf("bench.runs must be at least 1")
	}
	if cfg.Bench.Warmup < 0 {
		return fmt.Errorf("bench.warmup must not be negative")
	}
	if cfg.Bench.TimeoutMinutes == 0 {
		cfg.Bench.TimeoutMinutes = 10
	}
	if cfg.Scheduler.Workers == 0 {
		cfg.Scheduler.Workers = 1
	}
	if cfg.Scheduler.Workers < 1 {
		return fmt.Errorf("scheduler.workers must be at least 1")
	}
	if cfg.Scheduler.RegressionThreshold == 0 {
		cfg.Scheduler.RegressionThreshold = 0.05
	}
	if cfg.Scheduler.RegressionThreshold < 0 {
		return fmt.Errorf("scheduler.regression_threshold must be positive")
	}
	if cfg.Weights.Runtime < 0 || cfg.Weights.Compile < 0 || cfg.Weights.Size < 0 {
		return fmt.Errorf("weights must not be negative")
	}
	if cfg.Weights.Runtime == 0 && cfg.Weights.Compile == 0 && cfg.Weights.Size == 0 {
		cfg.Weights = DefaultWeights
	}
	if cfg.Datasets == nil {
		cfg.Datasets = map[string]Dataset{}
	}
	if _, ok := cfg.Datasets["small"]; !ok {
		cfg.Datasets["small"] = Dataset{Macro: "MINI_DATASET"}
	}
	if _, ok := cfg.Datasets["full"]; !ok {
		cfg.Datasets["full"] = Dataset{Macro: "STANDARD_DATASET"}
	}
	for name, ds := range cfg.Datasets {
		if ds.Macro == "" {
			return fmt.Errorf("dataset %q: macro is required", name)
		}
	}
	if cfg.ResultsDir == "" {
		cfg.ResultsDir = "results"
	}
	return nil
}
