// Package config holds the process-wide options. They are resolved once at
// startup (defaults, then an optional YAML file, then command line flags)
// and are immutable afterwards.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"kube-aws-autoscaler/pkg/decision"
	"kube-aws-autoscaler/pkg/resources"
	"kube-aws-autoscaler/pkg/util"
)

// EnvConfigFile names the environment variable pointing at an optional YAML
// config file applied on top of the built-in defaults. Flags set on the
// command line still win, because flag defaults are taken from the resolved
// config before parsing.
const EnvConfigFile = "AUTOSCALER_CONFIG"

type Config struct {
	Kubeconfig  string `yaml:"kubeconfig"`
	Master      string `yaml:"master"`
	AWSRegion   string `yaml:"awsRegion"`
	MetricsAddr string `yaml:"metricsAddr"`

	IntervalSeconds int  `yaml:"intervalSeconds"`
	Once            bool `yaml:"once"`
	DryRun          bool `yaml:"dryRun"`

	BufferCPUPercentage    int64 `yaml:"bufferCPUPercentage"`
	BufferMemoryPercentage int64 `yaml:"bufferMemoryPercentage"`
	BufferPodsPercentage   int64 `yaml:"bufferPodsPercentage"`

	BufferCPUFixed    string `yaml:"bufferCPUFixed"`
	BufferMemoryFixed string `yaml:"bufferMemoryFixed"`
	BufferPodsFixed   string `yaml:"bufferPodsFixed"`

	BufferSpareNodes   int  `yaml:"bufferSpareNodes"`
	IncludeMasterNodes bool `yaml:"includeMasterNodes"`

	ScaleDownStepFixed      int   `yaml:"scaleDownStepFixed"`
	ScaleDownStepPercentage int64 `yaml:"scaleDownStepPercentage"`
}

// Default returns the built-in defaults, with the metrics address
// overridable from the environment for container deployments.
func Default() Config {
	return Config{
		MetricsAddr:            util.GetEnvOrDefault("METRICS_ADDR", ":9090"),
		IntervalSeconds:        util.GetEnvInt("AUTOSCALER_INTERVAL", 60),
		BufferCPUPercentage:    10,
		BufferMemoryPercentage: 10,
		BufferPodsPercentage:   10,
		BufferCPUFixed:         "200m",
		BufferMemoryFixed:      "200Mi",
		BufferPodsFixed:        "10",
		BufferSpareNodes:       1,
		ScaleDownStepFixed:     1,
	}
}

// Load resolves the startup config: defaults, then the YAML file named by
// AUTOSCALER_CONFIG if set.
func Load() (Config, error) {
	cfg := Default()
	path := util.GetEnvOrDefault(EnvConfigFile, "")
	if path == "" {
		return cfg, nil
	}
	if err := cfg.applyFile(path); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// Interval returns the loop period.
func (c Config) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// Validate checks ranges and quantity syntax. A failure here is a
// configuration error and terminates the process.
func (c Config) Validate() error {
	if c.IntervalSeconds <= 0 {
		return fmt.Errorf("interval must be positive, got %d", c.IntervalSeconds)
	}
	for name, pct := range map[string]int64{
		"buffer-cpu-percentage":    c.BufferCPUPercentage,
		"buffer-memory-percentage": c.BufferMemoryPercentage,
		"buffer-pods-percentage":   c.BufferPodsPercentage,
	} {
		if pct < 0 {
			return fmt.Errorf("%s must not be negative, got %d", name, pct)
		}
	}
	if c.BufferSpareNodes < 0 {
		return fmt.Errorf("buffer-spare-nodes must not be negative, got %d", c.BufferSpareNodes)
	}
	if c.ScaleDownStepFixed < 0 {
		return fmt.Errorf("scale-down-step-fixed must not be negative, got %d", c.ScaleDownStepFixed)
	}
	if c.ScaleDownStepPercentage < 0 || c.ScaleDownStepPercentage > 100 {
		return fmt.Errorf("scale-down-step-percentage must be within [0, 100], got %d", c.ScaleDownStepPercentage)
	}
	_, err := c.DecisionConfig()
	return err
}

// DecisionConfig converts the quantity strings into the integer vectors the
// decision core works with.
func (c Config) DecisionConfig() (decision.Config, error) {
	cpu, err := resources.ParseCPU(c.BufferCPUFixed)
	if err != nil {
		return decision.Config{}, fmt.Errorf("buffer-cpu-fixed: %w", err)
	}
	memory, err := resources.ParseMemory(c.BufferMemoryFixed)
	if err != nil {
		return decision.Config{}, fmt.Errorf("buffer-memory-fixed: %w", err)
	}
	pods, err := resources.ParsePods(c.BufferPodsFixed)
	if err != nil {
		return decision.Config{}, fmt.Errorf("buffer-pods-fixed: %w", err)
	}
	return decision.Config{
		BufferCPUPct:       c.BufferCPUPercentage,
		BufferMemoryPct:    c.BufferMemoryPercentage,
		BufferPodsPct:      c.BufferPodsPercentage,
		BufferFixed:        resources.Vector{CPU: cpu, Memory: memory, Pods: pods},
		SpareNodes:         c.BufferSpareNodes,
		IncludeMasterNodes: c.IncludeMasterNodes,
		ScaleDownStepFixed: c.ScaleDownStepFixed,
		ScaleDownStepPct:   c.ScaleDownStepPercentage,
	}, nil
}
