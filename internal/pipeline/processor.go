package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ricesearch/disaster-response/internal/bus"
	"github.com/ricesearch/disaster-response/internal/dataset"
	"github.com/ricesearch/disaster-response/internal/pkg/errors"
	"github.com/ricesearch/disaster-response/internal/pkg/logger"
	"github.com/ricesearch/disaster-response/internal/store"
)

// Processor loads the two raw tables, cleans them and writes the result
// to the dataset store.
type Processor struct {
	cfg ProcessorConfig
	bus bus.Bus
	log *logger.Logger
}

// NewProcessor creates a process stage.
// eventBus is optional - if nil, event publishing is disabled.
func NewProcessor(cfg ProcessorConfig, log *logger.Logger, eventBus bus.Bus) *Processor {
	if cfg.Table == "" {
		cfg.Table = store.DefaultTable
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Processor{
		cfg: cfg,
		bus: eventBus,
		log: log.WithStage("process"),
	}
}

// ProcessResult reports one process run.
type ProcessResult struct {
	RunID    string             `json:"run_id"`
	Table    string             `json:"table"`
	Rows     int                `json:"rows"`
	Labels   []string           `json:"labels"`
	Stats    dataset.CleanStats `json:"stats"`
	Duration time.Duration      `json:"duration"`
}

// Run reads messagesPath and categoriesPath, cleans them and replaces the
// configured table in the database at dbPath.
func (p *Processor) Run(ctx context.Context, messagesPath, categoriesPath, dbPath string) (*ProcessResult, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := p.log.WithRun(runID)

	messages, err := readCSV(messagesPath, dataset.ReadMessagesCSV)
	if err != nil {
		return nil, err
	}
	categories, err := readCSV(categoriesPath, dataset.ReadCategoriesCSV)
	if err != nil {
		return nil, err
	}
	log.Info("Loaded raw tables", "messages", len(messages), "categories", len(categories))

	ds, stats, err := dataset.Clean(messages, categories, dataset.CleanOptions{Policy: p.cfg.Policy})
	if err != nil {
		return nil, err
	}
	log.Info("Cleaned dataset",
		logger.KeySamples, ds.Len(),
		logger.KeyTargets, len(ds.Labels),
		"joined", stats.Joined,
		"duplicates", stats.Duplicates,
		"clamped", stats.Clamped,
	)

	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.StorageError("failed to create database directory", err)
		}
	}

	st, err := store.Open(dbPath, p.log)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	if err := st.Save(ctx, p.cfg.Table, ds); err != nil {
		return nil, err
	}

	result := &ProcessResult{
		RunID:    runID,
		Table:    p.cfg.Table,
		Rows:     ds.Len(),
		Labels:   ds.Labels,
		Stats:    stats,
		Duration: time.Since(start),
	}

	publish(ctx, p.bus, log, bus.TopicDatasetCleaned, "process", runID, bus.DatasetCleaned{
		Table:      result.Table,
		Rows:       result.Rows,
		Labels:     result.Labels,
		Duplicates: stats.Duplicates,
		Clamped:    stats.Clamped,
	})

	log.Info("Saved dataset",
		"db_path", dbPath,
		"table", p.cfg.Table,
		logger.KeyDurationMs, result.Duration.Milliseconds(),
	)
	return result, nil
}

func readCSV[T any](path string, read func(io.Reader) ([]T, error)) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFoundError(fmt.Sprintf("input file %s", path))
		}
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	rows, err := read(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return rows, nil
}

// publish sends an event when a bus is configured. Failures are logged and
// never abort the stage.
func publish(ctx context.Context, b bus.Bus, log *logger.Logger, topic, source, runID string, payload any) {
	if b == nil {
		return
	}
	if err := b.Publish(ctx, topic, bus.NewEvent(topic, source, runID, payload)); err != nil {
		log.Warn("Failed to publish event", "topic", topic, "error", err.Error())
	}
}
