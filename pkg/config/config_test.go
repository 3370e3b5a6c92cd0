package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"kube-aws-autoscaler/pkg/resources"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	if cfg.Interval() != 60*time.Second {
		t.Errorf("Interval = %v, want 60s", cfg.Interval())
	}

	dc, err := cfg.DecisionConfig()
	if err != nil {
		t.Fatalf("DecisionConfig: %v", err)
	}
	wantFixed := resources.Vector{CPU: 200, Memory: 200 << 20, Pods: 10}
	if dc.BufferFixed != wantFixed {
		t.Errorf("BufferFixed = %+v, want %+v", dc.BufferFixed, wantFixed)
	}
	if dc.BufferCPUPct != 10 || dc.SpareNodes != 1 || dc.ScaleDownStepFixed != 1 {
		t.Errorf("unexpected defaults: %+v", dc)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero interval", func(c *Config) { c.IntervalSeconds = 0 }},
		{"negative buffer pct", func(c *Config) { c.BufferMemoryPercentage = -1 }},
		{"negative spare nodes", func(c *Config) { c.BufferSpareNodes = -1 }},
		{"step pct over 100", func(c *Config) { c.ScaleDownStepPercentage = 101 }},
		{"bad cpu quantity", func(c *Config) { c.BufferCPUFixed = "lots" }},
		{"bad memory quantity", func(c *Config) { c.BufferMemoryFixed = "-1Gi" }},
	}
	for _, c := range cases {
		cfg := Default()
		c.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", c.name)
		}
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte("intervalSeconds: 30\nbufferCPUFixed: 500m\ndryRun: true\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvConfigFile, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.IntervalSeconds != 30 || cfg.BufferCPUFixed != "500m" || !cfg.DryRun {
		t.Errorf("file values not applied: %+v", cfg)
	}
	// Untouched options keep their defaults.
	if cfg.BufferMemoryFixed != "200Mi" || cfg.BufferSpareNodes != 1 {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv(EnvConfigFile, filepath.Join(t.TempDir(), "absent.yaml"))
	if _, err := Load(); err == nil {
		t.Error("expected error for missing config file")
	}
}
