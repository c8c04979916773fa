// Package pipeline runs the process, train and classify stages end to end.
package pipeline

import (
	"github.com/ricesearch/disaster-response/internal/config"
	"github.com/ricesearch/disaster-response/internal/dataset"
	"github.com/ricesearch/disaster-response/internal/search"
	"github.com/ricesearch/disaster-response/internal/store"
)

// ProcessorConfig configures the process stage.
type ProcessorConfig struct {
	// Table is the name of the cleaned table in the database.
	Table string

	// Policy decides what happens to label values outside {0,1}.
	Policy dataset.LabelPolicy
}

// DefaultProcessorConfig returns sensible defaults.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		Table:  store.DefaultTable,
		Policy: dataset.PolicyStrict,
	}
}

// TrainerConfig configures the train stage.
type TrainerConfig struct {
	Table        string
	TestSize     float64
	Folds        int
	ShuffleFolds bool
	Seed         int64
	Workers      int // 0 = NumCPU
	Trees        int
	Scoring      string
	Lowercase    bool
	Grid         search.Grid
}

// DefaultTrainerConfig returns sensible defaults.
func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{
		Table:     store.DefaultTable,
		TestSize:  0.2,
		Folds:     search.DefaultFolds,
		Seed:      42,
		Trees:     100,
		Scoring:   search.ScoreLabelAccuracy,
		Lowercase: true,
		Grid:      search.DefaultGrid(),
	}
}

// ProcessorConfigFrom maps application config onto the process stage.
func ProcessorConfigFrom(cfg *config.Config) ProcessorConfig {
	return ProcessorConfig{
		Table:  cfg.Data.Table,
		Policy: dataset.LabelPolicy(cfg.Data.LabelPolicy),
	}
}

// TrainerConfigFrom maps application config onto the train stage.
func TrainerConfigFrom(cfg *config.Config) TrainerConfig {
	return TrainerConfig{
		Table:        cfg.Data.Table,
		TestSize:     cfg.Train.TestSize,
		Folds:        cfg.Train.Folds,
		ShuffleFolds: cfg.Train.ShuffleFolds,
		Seed:         cfg.Train.Seed,
		Workers:      cfg.Train.Workers,
		Trees:        cfg.Train.Trees,
		Scoring:      cfg.Train.Scoring,
		Lowercase:    cfg.Train.Lowercase,
		Grid: search.Grid{
			MinSamplesLeaf: cfg.Train.MinSamplesLeaf,
			MaxDepth:       cfg.Train.MaxDepth,
		},
	}
}
