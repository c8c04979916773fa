package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DR_FOLDS", "3")
	t.Setenv("DR_LOG_LEVEL", "debug")
	t.Setenv("DR_MAX_DEPTH", "10,0")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.Train.Folds != 3 {
		t.Errorf("Train.Folds = %d, want 3", cfg.Train.Folds)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %s, want debug", cfg.Log.Level)
	}

	if len(cfg.Train.MaxDepth) != 2 || cfg.Train.MaxDepth[0] != 10 || cfg.Train.MaxDepth[1] != 0 {
		t.Errorf("Train.MaxDepth = %v, want [10 0]", cfg.Train.MaxDepth)
	}

	// Untouched defaults survive.
	if cfg.Train.Trees != 100 {
		t.Errorf("Train.Trees = %d, want 100", cfg.Train.Trees)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
data:
  database_path: "/tmp/dr.db"
  label_policy: clamp
train:
  seed: 7
  scoring: f1_macro
  min_samples_leaf: [1, 4]
log:
  level: warn
  format: json
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Data.DatabasePath != "/tmp/dr.db" {
		t.Errorf("Data.DatabasePath = %s, want /tmp/dr.db", cfg.Data.DatabasePath)
	}

	if cfg.Data.LabelPolicy != "clamp" {
		t.Errorf("Data.LabelPolicy = %s, want clamp", cfg.Data.LabelPolicy)
	}

	if cfg.Train.Seed != 7 {
		t.Errorf("Train.Seed = %d, want 7", cfg.Train.Seed)
	}

	if cfg.Train.Scoring != "f1_macro" {
		t.Errorf("Train.Scoring = %s, want f1_macro", cfg.Train.Scoring)
	}

	if len(cfg.Train.MinSamplesLeaf) != 2 {
		t.Errorf("Train.MinSamplesLeaf = %v, want [1 4]", cfg.Train.MinSamplesLeaf)
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %s, want json", cfg.Log.Format)
	}

	// Defaults not present in the file are kept.
	if cfg.Train.Folds != 5 {
		t.Errorf("Train.Folds = %d, want 5", cfg.Train.Folds)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid defaults",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "invalid label policy",
			modify: func(c *Config) {
				c.Data.LabelPolicy = "passthrough"
			},
			wantErr: true,
		},
		{
			name: "test size out of range",
			modify: func(c *Config) {
				c.Train.TestSize = 1
			},
			wantErr: true,
		},
		{
			name: "single fold",
			modify: func(c *Config) {
				c.Train.Folds = 1
			},
			wantErr: true,
		},
		{
			name: "invalid scoring",
			modify: func(c *Config) {
				c.Train.Scoring = "roc_auc"
			},
			wantErr: true,
		},
		{
			name: "empty depth grid",
			modify: func(c *Config) {
				c.Train.MaxDepth = nil
			},
			wantErr: true,
		},
		{
			name: "negative depth",
			modify: func(c *Config) {
				c.Train.MaxDepth = []int{-1}
			},
			wantErr: true,
		},
		{
			name: "zero leaf size",
			modify: func(c *Config) {
				c.Train.MinSamplesLeaf = []int{0}
			},
			wantErr: true,
		},
		{
			name: "invalid log level",
			modify: func(c *Config) {
				c.Log.Level = "invalid"
			},
			wantErr: true,
		},
		{
			name: "kafka without brokers",
			modify: func(c *Config) {
				c.Bus.Type = "kafka"
			},
			wantErr: true,
		},
		{
			name: "kafka with brokers",
			modify: func(c *Config) {
				c.Bus.Type = "kafka"
				c.Bus.KafkaBrokers = "localhost:9092"
			},
			wantErr: false,
		},
		{
			name: "invalid history type",
			modify: func(c *Config) {
				c.History.Type = "postgres"
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestIsDevelopment(t *testing.T) {
	cfg := &Config{}

	cfg.Log.Level = "debug"
	if !cfg.IsDevelopment() {
		t.Error("IsDevelopment() = false, want true for debug level")
	}

	cfg.Log.Level = "info"
	if cfg.IsDevelopment() {
		t.Error("IsDevelopment() = true, want false for info level")
	}
}
