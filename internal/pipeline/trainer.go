package pipeline

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/ricesearch/disaster-response/internal/bus"
	"github.com/ricesearch/disaster-response/internal/evaluation"
	"github.com/ricesearch/disaster-response/internal/features"
	"github.com/ricesearch/disaster-response/internal/metrics"
	"github.com/ricesearch/disaster-response/internal/model"
	"github.com/ricesearch/disaster-response/internal/pkg/errors"
	"github.com/ricesearch/disaster-response/internal/pkg/logger"
	"github.com/ricesearch/disaster-response/internal/search"
	"github.com/ricesearch/disaster-response/internal/store"
	"github.com/ricesearch/disaster-response/internal/text"
)

// Trainer loads the cleaned table, selects forest parameters by grid
// search, evaluates the winner on a held-out split and saves the model.
type Trainer struct {
	cfg      TrainerConfig
	analyzer text.Analyzer
	bus      bus.Bus
	history  metrics.Storage
	models   model.Storage
	report   io.Writer
	log      *logger.Logger
}

// NewTrainer creates a train stage. eventBus and history are optional.
func NewTrainer(cfg TrainerConfig, log *logger.Logger, eventBus bus.Bus, history metrics.Storage) *Trainer {
	if cfg.Table == "" {
		cfg.Table = store.DefaultTable
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Trainer{
		cfg:     cfg,
		bus:     eventBus,
		history: history,
		log:     log.WithStage("train"),
	}
}

// WithAnalyzer replaces the default tokenizer.
func (t *Trainer) WithAnalyzer(a text.Analyzer) *Trainer {
	t.analyzer = a
	return t
}

// WithModelStorage saves the trained model to s instead of modelDir.
func (t *Trainer) WithModelStorage(s model.Storage) *Trainer {
	t.models = s
	return t
}

// WithReport writes the formatted classification report to w.
func (t *Trainer) WithReport(w io.Writer) *Trainer {
	t.report = w
	return t
}

// TrainResult reports one train run.
type TrainResult struct {
	RunID     string
	Model     *model.TrainedModel
	Search    *search.Result
	Report    *evaluation.Report
	TrainRows int
	TestRows  int
	Duration  time.Duration
}

// Run trains on the table in dbPath and writes the model to modelDir.
// Structural errors abort the run; event and history failures only log.
func (t *Trainer) Run(ctx context.Context, dbPath, modelDir string) (*TrainResult, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := t.log.WithRun(runID)

	if _, err := os.Stat(dbPath); err != nil {
		return nil, errors.NotFoundError("database " + dbPath)
	}

	st, err := store.Open(dbPath, t.log)
	if err != nil {
		return nil, err
	}
	ds, err := st.Load(ctx, t.cfg.Table)
	st.Close()
	if err != nil {
		return nil, err
	}

	train, test, err := ds.Split(t.cfg.TestSize, t.cfg.Seed)
	if err != nil {
		return nil, err
	}
	log.Info("Split dataset", "train", train.Len(), "test", test.Len(), logger.KeyTargets, len(ds.Labels))
	for j, n := range train.PositiveCounts() {
		if n == 0 {
			log.Warn("Label has no positive training rows", "label", ds.Labels[j])
		}
	}

	analyzer := t.analyzer
	if analyzer == nil {
		tok, err := text.New()
		if err != nil {
			return nil, err
		}
		analyzer = tok
	}

	vec := features.NewVectorizer(analyzer, features.Options{Lowercase: t.cfg.Lowercase})
	xTrain, err := vec.FitTransform(train.Messages())
	if err != nil {
		return nil, err
	}
	xTest, err := vec.Transform(test.Messages())
	if err != nil {
		return nil, err
	}
	log.Info("Vectorized messages", logger.KeyFeatures, vec.VocabularySize(), logger.KeySamples, xTrain.NumRows())

	gs := &search.GridSearch{
		Grid:    t.cfg.Grid,
		CV:      search.KFold{K: t.cfg.Folds, Shuffle: t.cfg.ShuffleFolds, Seed: t.cfg.Seed},
		Scoring: t.cfg.Scoring,
		Trees:   t.cfg.Trees,
		Seed:    t.cfg.Seed,
		Workers: t.cfg.Workers,
		Log:     log,
		OnCandidate: func(c search.CandidateResult) {
			publish(ctx, t.bus, log, bus.TopicCandidateScored, "train", runID, bus.CandidateScored{
				Index:          c.Index,
				MinSamplesLeaf: c.Params.MinSamplesLeaf,
				MaxDepth:       c.Params.MaxDepth,
				FoldScores:     c.FoldScores,
				MeanScore:      c.MeanScore,
				Rank:           c.Rank,
			})
		},
	}
	res, err := gs.Fit(ctx, xTrain, train.LabelMatrix())
	if err != nil {
		return nil, err
	}

	report, err := evaluation.Evaluate(res.Model, xTest, test.LabelMatrix(), ds.Labels)
	if err != nil {
		return nil, err
	}
	summary := report.Summary()

	tm := &model.TrainedModel{
		RunID:      runID,
		Labels:     ds.Labels,
		Vectorizer: vec,
		Forest:     res.Model,
		Params:     res.Best,
		Trees:      t.cfg.Trees,
		Seed:       t.cfg.Seed,
		Scoring:    res.Scoring,
		CVScore:    res.BestScore,
		Candidates: res.Candidates,
		Evaluation: &summary,
		TrainedAt:  time.Now().UTC(),
	}
	models := t.models
	if models == nil {
		models = model.NewFileStorage(modelDir)
	}
	if err := models.Save(tm); err != nil {
		return nil, err
	}

	result := &TrainResult{
		RunID:     runID,
		Model:     tm,
		Search:    res,
		Report:    report,
		TrainRows: train.Len(),
		TestRows:  test.Len(),
		Duration:  time.Since(start),
	}

	publish(ctx, t.bus, log, bus.TopicModelTrained, "train", runID, bus.ModelTrained{
		ModelDir:       modelDir,
		MinSamplesLeaf: res.Best.MinSamplesLeaf,
		MaxDepth:       res.Best.MaxDepth,
		CVScore:        res.BestScore,
		Vocabulary:     vec.VocabularySize(),
		TrainRows:      result.TrainRows,
		DurationMs:     result.Duration.Milliseconds(),
	})
	publish(ctx, t.bus, log, bus.TopicModelEvaluated, "train", runID, bus.ModelEvaluated{
		TestRows:  result.TestRows,
		MeanF1:    summary.MeanF1,
		MeanAcc:   summary.MeanAccuracy,
		F1ByLabel: report.F1ByLabel(),
	})

	t.recordRun(ctx, log, result, modelDir)

	log.Info("Model saved",
		"model_dir", modelDir,
		"params", res.Best.String(),
		"cv_score", res.BestScore,
		"mean_f1", summary.MeanF1,
		"mean_accuracy", summary.MeanAccuracy,
		logger.KeyDurationMs, result.Duration.Milliseconds(),
	)

	if t.report != nil {
		if _, err := io.WriteString(t.report, report.Format()); err != nil {
			return result, errors.InternalError("failed to write report", err)
		}
	}
	return result, nil
}

func (t *Trainer) recordRun(ctx context.Context, log *logger.Logger, r *TrainResult, modelDir string) {
	if t.history == nil {
		return
	}
	run := metrics.Run{
		ID:             r.RunID,
		Time:           r.Model.TrainedAt,
		ModelDir:       modelDir,
		MinSamplesLeaf: r.Search.Best.MinSamplesLeaf,
		MaxDepth:       r.Search.Best.MaxDepth,
		Trees:          r.Model.Trees,
		Scoring:        r.Search.Scoring,
		CVScore:        r.Search.BestScore,
		MeanF1:         r.Model.Evaluation.MeanF1,
		F1ByLabel:      r.Report.F1ByLabel(),
		TrainRows:      r.TrainRows,
		TestRows:       r.TestRows,
		DurationMs:     r.Duration.Milliseconds(),
	}
	if err := t.history.SaveRun(ctx, run); err != nil {
		log.Warn("Failed to record run history", "error", err.Error())
		return
	}

	runs, err := t.history.LoadRuns(ctx, time.Time{})
	if err != nil {
		log.Warn("Failed to load run history", "error", err.Error())
		return
	}
	if best, ok := metrics.Best(runs); ok && best.ID != run.ID && best.CVScore > run.CVScore {
		log.Info("Earlier run scored higher", "best_run", best.ID, "cv_score", best.CVScore, "runs", len(runs))
	}
}
