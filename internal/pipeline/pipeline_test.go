package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ricesearch/disaster-response/internal/bus"
	"github.com/ricesearch/disaster-response/internal/config"
	"github.com/ricesearch/disaster-response/internal/metrics"
	"github.com/ricesearch/disaster-response/internal/model"
	"github.com/ricesearch/disaster-response/internal/pkg/errors"
	"github.com/ricesearch/disaster-response/internal/pkg/logger"
	"github.com/ricesearch/disaster-response/internal/search"
	"github.com/ricesearch/disaster-response/internal/store"
)

type fieldsAnalyzer struct{}

func (fieldsAnalyzer) Tokenize(s string) []string {
	return strings.Fields(strings.ToLower(s))
}

var corpus = []struct {
	message string
	water   int
	food    int
}{
	{"Water is needed", 1, 0},
	{"we need clean water", 1, 0},
	{"no drinking water here", 1, 0},
	{"water water please", 1, 0},
	{"send water to the village", 1, 0},
	{"families need water now", 1, 0},
	{"bottled water needed", 1, 0},
	{"food is needed", 0, 1},
	{"we need food", 0, 1},
	{"no food here", 0, 1},
	{"send food to the village", 0, 1},
	{"families need rice and food", 0, 1},
	{"hungry people need food", 0, 1},
	{"food please", 0, 1},
	{"we need water and food", 1, 1},
	{"water and food needed", 1, 1},
	{"the road is blocked", 0, 0},
	{"power lines are down", 0, 0},
	{"the bridge collapsed", 0, 0},
	{"roads are flooded", 0, 0},
}

// writeInputs writes the raw tables and returns their paths.
func writeInputs(t *testing.T, dir string) (string, string) {
	t.Helper()

	var msgs, cats strings.Builder
	msgs.WriteString("id,message,original,genre\n")
	cats.WriteString("id,categories\n")
	for i, c := range corpus {
		fmt.Fprintf(&msgs, "%d,%s,,direct\n", i+1, c.message)
		fmt.Fprintf(&cats, "%d,water-%d;food-%d\n", i+1, c.water, c.food)
	}
	// Exact duplicate of row 1.
	fmt.Fprintf(&msgs, "%d,%s,,direct\n", 1, corpus[0].message)

	messagesPath := filepath.Join(dir, "messages.csv")
	categoriesPath := filepath.Join(dir, "categories.csv")
	if err := os.WriteFile(messagesPath, []byte(msgs.String()), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(categoriesPath, []byte(cats.String()), 0644); err != nil {
		t.Fatal(err)
	}
	return messagesPath, categoriesPath
}

func testTrainerConfig() TrainerConfig {
	cfg := DefaultTrainerConfig()
	cfg.Folds = 2
	cfg.Trees = 10
	cfg.Workers = 2
	cfg.Grid = search.Grid{MinSamplesLeaf: []int{1, 2}, MaxDepth: []int{5, 0}}
	return cfg
}

type recorder struct {
	mu     sync.Mutex
	topics map[string]int
}

func (r *recorder) handle(ctx context.Context, e bus.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics[e.Type]++
	return nil
}

func TestEndToEnd(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	messagesPath, categoriesPath := writeInputs(t, dir)
	dbPath := filepath.Join(dir, "data", "DisasterResponse.db")
	modelDir := filepath.Join(dir, "models", "classifier")

	eventBus := bus.NewMemoryBus(nil)
	rec := &recorder{topics: map[string]int{}}
	for _, topic := range []string{bus.TopicDatasetCleaned, bus.TopicCandidateScored, bus.TopicModelTrained, bus.TopicModelEvaluated} {
		if err := eventBus.Subscribe(ctx, topic, rec.handle); err != nil {
			t.Fatal(err)
		}
	}
	history := metrics.NewMemoryStorage()

	processed, err := NewProcessor(DefaultProcessorConfig(), nil, eventBus).Run(ctx, messagesPath, categoriesPath, dbPath)
	if err != nil {
		t.Fatalf("Processor.Run() error = %v", err)
	}
	if processed.Rows != len(corpus) {
		t.Errorf("Rows = %d, want %d", processed.Rows, len(corpus))
	}
	if processed.Stats.Duplicates != 1 {
		t.Errorf("Duplicates = %d, want 1", processed.Stats.Duplicates)
	}
	if strings.Join(processed.Labels, ",") != "water,food" {
		t.Errorf("Labels = %v", processed.Labels)
	}

	st, err := store.Open(dbPath, nil)
	if err != nil {
		t.Fatal(err)
	}
	ds, err := st.Load(ctx, store.DefaultTable)
	st.Close()
	if err != nil {
		t.Fatalf("store.Load() error = %v", err)
	}
	if ds.Rows[0].Message != "Water is needed" || ds.Rows[0].Values[0] != 1 || ds.Rows[0].Values[1] != 0 {
		t.Errorf("first row = %+v", ds.Rows[0])
	}

	var out bytes.Buffer
	trained, err := NewTrainer(testTrainerConfig(), nil, eventBus, history).
		WithAnalyzer(fieldsAnalyzer{}).
		WithReport(&out).
		Run(ctx, dbPath, modelDir)
	if err != nil {
		t.Fatalf("Trainer.Run() error = %v", err)
	}

	if len(trained.Report.Labels) != 2 {
		t.Fatalf("report has %d label sections, want 2", len(trained.Report.Labels))
	}
	for i, want := range []string{"water", "food"} {
		lr := trained.Report.Labels[i]
		if lr.Label != want {
			t.Errorf("section %d = %s, want %s", i, lr.Label, want)
		}
		for name, v := range map[string]float64{"precision": lr.Precision, "recall": lr.Recall, "f1": lr.F1} {
			if v < 0 || v > 1 {
				t.Errorf("%s %s = %v, out of [0,1]", want, name, v)
			}
		}
	}
	if trained.TrainRows+trained.TestRows != len(corpus) {
		t.Errorf("split sizes %d+%d", trained.TrainRows, trained.TestRows)
	}
	if len(trained.Search.Candidates) != 4 {
		t.Errorf("candidates = %d, want 4", len(trained.Search.Candidates))
	}
	if !strings.Contains(out.String(), "Category: water") || !strings.Contains(out.String(), "Category: food") {
		t.Errorf("report output missing sections:\n%s", out.String())
	}

	for _, name := range []string{"model.gob.zst", "manifest.yaml"} {
		if _, err := os.Stat(filepath.Join(modelDir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}

	runs, _ := history.LoadRuns(ctx, time.Time{})
	if len(runs) != 1 || runs[0].ID != trained.RunID {
		t.Errorf("history = %+v", runs)
	}

	clf, err := LoadClassifier(modelDir, fieldsAnalyzer{})
	if err != nil {
		t.Fatalf("LoadClassifier() error = %v", err)
	}
	preds, err := clf.Classify([]string{"we need water", "unseen words only"})
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if len(preds) != 2 || preds[0].Message != "we need water" {
		t.Errorf("predictions = %+v", preds)
	}
	for _, p := range preds {
		for _, l := range p.Labels {
			if l != "water" && l != "food" {
				t.Errorf("unexpected label %q", l)
			}
		}
	}

	if _, err := clf.Classify(nil); !errors.IsEmptyInput(err) {
		t.Errorf("Classify(nil) error = %v", err)
	}
	if _, err := clf.Classify([]string{"bad \xff byte"}); !errors.IsValidation(err) {
		t.Errorf("Classify(invalid utf8) error = %v", err)
	}

	eventBus.Close()
	rec.mu.Lock()
	defer rec.mu.Unlock()
	want := map[string]int{
		bus.TopicDatasetCleaned:  1,
		bus.TopicCandidateScored: 4,
		bus.TopicModelTrained:    1,
		bus.TopicModelEvaluated:  1,
	}
	for topic, n := range want {
		if rec.topics[topic] != n {
			t.Errorf("%s events = %d, want %d", topic, rec.topics[topic], n)
		}
	}
}

func TestTrainer_Deterministic(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	messagesPath, categoriesPath := writeInputs(t, dir)
	dbPath := filepath.Join(dir, "db.sqlite")

	if _, err := NewProcessor(DefaultProcessorConfig(), nil, nil).Run(ctx, messagesPath, categoriesPath, dbPath); err != nil {
		t.Fatalf("Processor.Run() error = %v", err)
	}

	var results []*TrainResult
	for i, workers := range []int{1, 4} {
		cfg := testTrainerConfig()
		cfg.Workers = workers
		res, err := NewTrainer(cfg, nil, nil, nil).
			WithAnalyzer(fieldsAnalyzer{}).
			Run(ctx, dbPath, filepath.Join(dir, fmt.Sprintf("model-%d", i)))
		if err != nil {
			t.Fatalf("Trainer.Run() error = %v", err)
		}
		results = append(results, res)
	}

	a, b := results[0].Search, results[1].Search
	if a.Best != b.Best || a.BestScore != b.BestScore {
		t.Errorf("runs disagree: %s (%v) vs %s (%v)", a.Best, a.BestScore, b.Best, b.BestScore)
	}
}

func TestProcessor_Errors(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	messagesPath, categoriesPath := writeInputs(t, dir)

	badCats := filepath.Join(dir, "bad.csv")
	os.WriteFile(badCats, []byte("id,categories\n1,water-1;food\n"), 0644)

	tests := []struct {
		name       string
		messages   string
		categories string
		check      func(error) bool
	}{
		{"missing messages", filepath.Join(dir, "nope.csv"), categoriesPath, errors.IsNotFound},
		{"missing categories", messagesPath, filepath.Join(dir, "nope.csv"), errors.IsNotFound},
		{"malformed categories", messagesPath, badCats, errors.IsSchema},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProcessor(DefaultProcessorConfig(), nil, nil).Run(ctx, tt.messages, tt.categories, filepath.Join(dir, "out.db"))
			if !tt.check(err) {
				t.Errorf("Run() error = %v", err)
			}
		})
	}
}

func TestTrainer_Errors(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	_, err := NewTrainer(testTrainerConfig(), nil, nil, nil).
		WithAnalyzer(fieldsAnalyzer{}).
		Run(ctx, filepath.Join(dir, "missing.db"), filepath.Join(dir, "model"))
	if !errors.IsNotFound(err) {
		t.Errorf("missing database error = %v", err)
	}

	messagesPath, categoriesPath := writeInputs(t, dir)
	dbPath := filepath.Join(dir, "db.sqlite")
	if _, err := NewProcessor(DefaultProcessorConfig(), nil, nil).Run(ctx, messagesPath, categoriesPath, dbPath); err != nil {
		t.Fatal(err)
	}

	cfg := testTrainerConfig()
	cfg.Table = "other"
	_, err = NewTrainer(cfg, nil, nil, nil).WithAnalyzer(fieldsAnalyzer{}).Run(ctx, dbPath, filepath.Join(dir, "model"))
	if !errors.IsNotFound(err) {
		t.Errorf("missing table error = %v", err)
	}
}

func TestClassifier_Errors(t *testing.T) {
	if _, err := LoadClassifier(t.TempDir(), fieldsAnalyzer{}); !errors.IsNotFound(err) {
		t.Errorf("LoadClassifier(empty dir) error = %v", err)
	}
	if _, err := NewClassifier(model.NewMemoryStorage(), fieldsAnalyzer{}); !errors.IsNotFound(err) {
		t.Errorf("NewClassifier(empty storage) error = %v", err)
	}
}

// brokenHistory saves runs but cannot read them back.
type brokenHistory struct {
	metrics.Storage
}

func (brokenHistory) LoadRuns(ctx context.Context, since time.Time) ([]metrics.Run, error) {
	return nil, errors.StorageError("history offline", nil)
}

func TestTrainer_HistoryLoadFailure(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	messagesPath, categoriesPath := writeInputs(t, dir)
	dbPath := filepath.Join(dir, "db.sqlite")

	if _, err := NewProcessor(DefaultProcessorConfig(), nil, nil).Run(ctx, messagesPath, categoriesPath, dbPath); err != nil {
		t.Fatalf("Processor.Run() error = %v", err)
	}

	var logs bytes.Buffer
	history := brokenHistory{Storage: metrics.NewMemoryStorage()}
	_, err := NewTrainer(testTrainerConfig(), logger.NewWithWriter(&logs, "debug", "json"), nil, history).
		WithAnalyzer(fieldsAnalyzer{}).
		Run(ctx, dbPath, filepath.Join(dir, "model"))
	if err != nil {
		t.Fatalf("Trainer.Run() error = %v", err)
	}
	if !strings.Contains(logs.String(), "Failed to load run history") {
		t.Errorf("history load failure not logged:\n%s", logs.String())
	}
}

func TestTrainer_ModelStorage(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	messagesPath, categoriesPath := writeInputs(t, dir)
	dbPath := filepath.Join(dir, "db.sqlite")
	modelDir := filepath.Join(dir, "model")

	if _, err := NewProcessor(DefaultProcessorConfig(), nil, nil).Run(ctx, messagesPath, categoriesPath, dbPath); err != nil {
		t.Fatalf("Processor.Run() error = %v", err)
	}

	models := model.NewMemoryStorage()
	trained, err := NewTrainer(testTrainerConfig(), nil, nil, nil).
		WithAnalyzer(fieldsAnalyzer{}).
		WithModelStorage(models).
		Run(ctx, dbPath, modelDir)
	if err != nil {
		t.Fatalf("Trainer.Run() error = %v", err)
	}
	if _, err := os.Stat(modelDir); !os.IsNotExist(err) {
		t.Errorf("model dir written with memory storage: %v", err)
	}

	msgs := []string{"we need water", "send food to the village", "roads are flooded"}
	want, err := trained.Model.Classify(msgs)
	if err != nil {
		t.Fatalf("Model.Classify() error = %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			clf, err := NewClassifier(models, fieldsAnalyzer{})
			if err != nil {
				errs[i] = err
				return
			}
			preds, err := clf.Classify(msgs)
			if err != nil {
				errs[i] = err
				return
			}
			for j, p := range preds {
				if strings.Join(p.Labels, ",") != strings.Join(want[j], ",") {
					errs[i] = fmt.Errorf("message %d labels = %v, want %v", j, p.Labels, want[j])
					return
				}
			}
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("classifier %d: %v", i, err)
		}
	}
}

func TestConfigFrom(t *testing.T) {
	cfg := config.Default()
	cfg.Train.MaxDepth = []int{3}
	cfg.Data.LabelPolicy = "clamp"

	tc := TrainerConfigFrom(cfg)
	if tc.Folds != cfg.Train.Folds || tc.Trees != cfg.Train.Trees || tc.Table != cfg.Data.Table {
		t.Errorf("TrainerConfigFrom() = %+v", tc)
	}
	if len(tc.Grid.Points()) != len(cfg.Train.MinSamplesLeaf) {
		t.Errorf("grid points = %d", len(tc.Grid.Points()))
	}

	pc := ProcessorConfigFrom(cfg)
	if pc.Policy != "clamp" || pc.Table != "messages" {
		t.Errorf("ProcessorConfigFrom() = %+v", pc)
	}
}
