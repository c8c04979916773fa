// Package metrics keeps the history of training runs so scores can be
// compared across runs.
package metrics

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ricesearch/disaster-response/internal/config"
)

// Run is one completed training run.
type Run struct {
	ID             string             `json:"id"`
	Time           time.Time          `json:"time"`
	ModelDir       string             `json:"model_dir,omitempty"`
	MinSamplesLeaf int                `json:"min_samples_leaf"`
	MaxDepth       int                `json:"max_depth"`
	Trees          int                `json:"trees"`
	Scoring        string             `json:"scoring"`
	CVScore        float64            `json:"cv_score"`
	MeanF1         float64            `json:"mean_f1"`
	F1ByLabel      map[string]float64 `json:"f1_by_label,omitempty"`
	TrainRows      int                `json:"train_rows"`
	TestRows       int                `json:"test_rows"`
	DurationMs     int64              `json:"duration_ms"`
}

// Storage persists run history.
type Storage interface {
	// SaveRun appends a run.
	SaveRun(ctx context.Context, run Run) error

	// LoadRuns returns runs at or after since, oldest first.
	LoadRuns(ctx context.Context, since time.Time) ([]Run, error)

	// Close releases resources.
	Close() error
}

// MemoryStorage keeps run history in process memory.
type MemoryStorage struct {
	mu   sync.RWMutex
	runs []Run
}

// NewMemoryStorage creates an empty in-memory history.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// SaveRun appends a run.
func (m *MemoryStorage) SaveRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		return fmt.Errorf("run id must not be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

// LoadRuns returns runs at or after since, oldest first.
func (m *MemoryStorage) LoadRuns(ctx context.Context, since time.Time) ([]Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	runs := make([]Run, 0, len(m.runs))
	for _, r := range m.runs {
		if !r.Time.Before(since) {
			runs = append(runs, r)
		}
	}
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].Time.Before(runs[j].Time) })
	return runs, nil
}

// Close is a no-op.
func (m *MemoryStorage) Close() error {
	return nil
}

// Best returns the run with the highest CV score, or false when runs is
// empty. Ties keep the earlier run.
func Best(runs []Run) (Run, bool) {
	if len(runs) == 0 {
		return Run{}, false
	}
	best := runs[0]
	for _, r := range runs[1:] {
		if r.CVScore > best.CVScore {
			best = r
		}
	}
	return best, true
}

// NewStorage creates the history backend named by cfg.
func NewStorage(cfg config.HistoryConfig) (Storage, error) {
	switch cfg.Type {
	case "memory", "":
		return NewMemoryStorage(), nil
	case "redis":
		rs, err := NewRedisStorage(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		if cfg.TTLHours > 0 {
			rs.SetTTL(time.Duration(cfg.TTLHours) * time.Hour)
		}
		return rs, nil
	default:
		return nil, fmt.Errorf("unknown history type: %s", cfg.Type)
	}
}
