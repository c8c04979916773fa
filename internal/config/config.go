// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// Input and output locations
	Data DataConfig `yaml:"data"`

	// Training configuration
	Train TrainConfig `yaml:"train"`

	// Logging configuration
	Log LogConfig `yaml:"log"`

	// Pipeline event bus configuration
	Bus BusConfig `yaml:"bus"`

	// Run history configuration
	History HistoryConfig `yaml:"history"`
}

// DataConfig holds dataset locations and cleaning policy.
type DataConfig struct {
	MessagesPath   string `envconfig:"DR_MESSAGES_PATH" yaml:"messages_path"`
	CategoriesPath string `envconfig:"DR_CATEGORIES_PATH" yaml:"categories_path"`
	DatabasePath   string `envconfig:"DR_DATABASE_PATH" yaml:"database_path"`
	Table          string `envconfig:"DR_TABLE" yaml:"table"`
	LabelPolicy    string `envconfig:"DR_LABEL_POLICY" yaml:"label_policy"` // strict or clamp
}

// TrainConfig holds model training settings.
type TrainConfig struct {
	ModelDir       string  `envconfig:"DR_MODEL_DIR" yaml:"model_dir"`
	TestSize       float64 `envconfig:"DR_TEST_SIZE" yaml:"test_size"`
	Folds          int     `envconfig:"DR_FOLDS" yaml:"folds"`
	ShuffleFolds   bool    `envconfig:"DR_SHUFFLE_FOLDS" yaml:"shuffle_folds"`
	Seed           int64   `envconfig:"DR_SEED" yaml:"seed"`
	Workers        int     `envconfig:"DR_WORKERS" yaml:"workers"` // 0 = NumCPU
	Trees          int     `envconfig:"DR_TREES" yaml:"trees"`
	Scoring        string  `envconfig:"DR_SCORING" yaml:"scoring"`
	Lowercase      bool    `envconfig:"DR_LOWERCASE" yaml:"lowercase"`
	MinSamplesLeaf []int   `envconfig:"DR_MIN_SAMPLES_LEAF" yaml:"min_samples_leaf"`
	MaxDepth       []int   `envconfig:"DR_MAX_DEPTH" yaml:"max_depth"` // 0 = unbounded
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `envconfig:"DR_LOG_LEVEL" yaml:"level"`
	Format string `envconfig:"DR_LOG_FORMAT" yaml:"format"`
}

// BusConfig holds event bus settings.
type BusConfig struct {
	Type            string `envconfig:"DR_BUS_TYPE" yaml:"type"`
	KafkaBrokers    string `envconfig:"DR_KAFKA_BROKERS" yaml:"kafka_brokers"`
	KafkaGroup      string `envconfig:"DR_KAFKA_GROUP" yaml:"kafka_group"`
	EventLogEnabled bool   `envconfig:"DR_EVENT_LOG_ENABLED" yaml:"event_log_enabled"`
	EventLogPath    string `envconfig:"DR_EVENT_LOG_PATH" yaml:"event_log_path"`
}

// HistoryConfig holds run history settings.
type HistoryConfig struct {
	Type     string `envconfig:"DR_HISTORY_TYPE" yaml:"type"`
	RedisURL string `envconfig:"DR_REDIS_URL" yaml:"redis_url"`
	TTLHours int    `envconfig:"DR_HISTORY_TTL_HOURS" yaml:"ttl_hours"`
}

// Load loads configuration from environment variables and optional config file.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Set defaults first
	setDefaults(cfg)

	// Load from YAML file if provided (overrides defaults)
	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	// Override with environment variables (highest priority)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("processing env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	return Load("")
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

// Default returns a configuration populated with defaults only.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

func setDefaults(cfg *Config) {
	cfg.Data = DataConfig{
		MessagesPath:   "data/disaster_messages.csv",
		CategoriesPath: "data/disaster_categories.csv",
		DatabasePath:   "data/DisasterResponse.db",
		Table:          "messages",
		LabelPolicy:    "strict",
	}

	cfg.Train = TrainConfig{
		ModelDir:       "models/classifier",
		TestSize:       0.2,
		Folds:          5,
		Seed:           42,
		Workers:        0,
		Trees:          100,
		Scoring:        "label_accuracy",
		Lowercase:      true,
		MinSamplesLeaf: []int{2, 5, 10},
		MaxDepth:       []int{10, 50, 0},
	}

	cfg.Log = LogConfig{
		Level:  "info",
		Format: "text",
	}

	cfg.Bus = BusConfig{
		Type:         "memory",
		KafkaGroup:   "disaster-response",
		EventLogPath: "logs/events.jsonl",
	}

	cfg.History = HistoryConfig{
		Type:     "memory",
		RedisURL: "redis://localhost:6379",
		TTLHours: 24 * 30,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	// Data validation
	if c.Data.Table == "" {
		errs = append(errs, "table must not be empty")
	}

	validPolicies := map[string]bool{"strict": true, "clamp": true}
	if !validPolicies[c.Data.LabelPolicy] {
		errs = append(errs, fmt.Sprintf("invalid label policy: %s (must be strict or clamp)", c.Data.LabelPolicy))
	}

	// Train validation
	if c.Train.TestSize <= 0 || c.Train.TestSize >= 1 {
		errs = append(errs, "test_size must be between 0 and 1 (exclusive)")
	}

	if c.Train.Folds < 2 {
		errs = append(errs, "folds must be at least 2")
	}

	if c.Train.Workers < 0 {
		errs = append(errs, "workers must not be negative")
	}

	if c.Train.Trees < 1 {
		errs = append(errs, "trees must be positive")
	}

	validScoring := map[string]bool{"label_accuracy": true, "subset_accuracy": true, "f1_macro": true}
	if !validScoring[c.Train.Scoring] {
		errs = append(errs, fmt.Sprintf("invalid scoring: %s (must be label_accuracy, subset_accuracy, or f1_macro)", c.Train.Scoring))
	}

	if len(c.Train.MinSamplesLeaf) == 0 {
		errs = append(errs, "min_samples_leaf grid must not be empty")
	}
	for _, v := range c.Train.MinSamplesLeaf {
		if v < 1 {
			errs = append(errs, fmt.Sprintf("min_samples_leaf values must be positive, got %d", v))
		}
	}

	if len(c.Train.MaxDepth) == 0 {
		errs = append(errs, "max_depth grid must not be empty")
	}
	for _, v := range c.Train.MaxDepth {
		if v < 0 {
			errs = append(errs, fmt.Sprintf("max_depth values must be >= 0 (0 = unbounded), got %d", v))
		}
	}

	// Log validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be text or json)", c.Log.Format))
	}

	// Bus validation
	validBusTypes := map[string]bool{"memory": true, "kafka": true}
	if !validBusTypes[c.Bus.Type] {
		errs = append(errs, fmt.Sprintf("invalid bus type: %s (must be memory or kafka)", c.Bus.Type))
	}

	if c.Bus.Type == "kafka" && strings.TrimSpace(c.Bus.KafkaBrokers) == "" {
		errs = append(errs, "kafka_brokers is required when bus type is kafka")
	}

	// History validation
	validHistoryTypes := map[string]bool{"memory": true, "redis": true}
	if !validHistoryTypes[c.History.Type] {
		errs = append(errs, fmt.Sprintf("invalid history type: %s (must be memory or redis)", c.History.Type))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Log.Level == "debug"
}
