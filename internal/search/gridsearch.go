package search

import (
	"context"
	"math"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ricesearch/disaster-response/internal/features"
	"github.com/ricesearch/disaster-response/internal/forest"
	"github.com/ricesearch/disaster-response/internal/pkg/errors"
	"github.com/ricesearch/disaster-response/internal/pkg/logger"
)

// CandidateResult is the cross-validation outcome of one grid point.
type CandidateResult struct {
	Index      int       `yaml:"index" json:"index"`
	Params     Params    `yaml:"params" json:"params"`
	FoldScores []float64 `yaml:"fold_scores" json:"fold_scores"`
	MeanScore  float64   `yaml:"mean_score" json:"mean_score"`
	StdScore   float64   `yaml:"std_score" json:"std_score"`
	Rank       int       `yaml:"rank" json:"rank"`
}

// Result is the outcome of GridSearch.Fit.
type Result struct {
	Scoring    string
	Best       Params
	BestIndex  int
	BestScore  float64
	Candidates []CandidateResult
	// Model is the best point refitted on all rows.
	Model    *forest.MultiOutput
	Duration time.Duration
}

// GridSearch evaluates every grid point with k-fold cross-validation and
// refits the winner on the full data.
type GridSearch struct {
	Grid    Grid
	CV      KFold
	Scoring string
	Trees   int
	Seed    int64
	// Workers bounds concurrent fits. 0 means runtime.NumCPU().
	Workers int

	// OnCandidate, if set, is called once per grid point after all of its
	// folds are scored, in grid order.
	OnCandidate func(CandidateResult)

	Log *logger.Logger
}

// unit is one (grid point, fold) fit.
type unit struct {
	point int
	fold  int
}

// Fit runs the search over x and the rows x labels matrix y. The context is
// checked before each unit starts; a running fit is not interrupted.
func (s *GridSearch) Fit(ctx context.Context, x features.Matrix, y [][]int) (*Result, error) {
	start := time.Now()
	log := s.Log
	if log == nil {
		log = logger.Discard()
	}
	log = log.WithStage("grid_search")

	if x.NumRows() == 0 {
		return nil, errors.EmptyInputError("grid search needs at least one row")
	}
	if len(y) != x.NumRows() {
		return nil, errors.ValidationError("label matrix row count does not match feature matrix")
	}
	if err := s.Grid.Validate(); err != nil {
		return nil, err
	}
	scorer, err := ScorerByName(s.Scoring)
	if err != nil {
		return nil, err
	}
	scoring := s.Scoring
	if scoring == "" {
		scoring = ScoreLabelAccuracy
	}

	folds, err := s.CV.Split(x.NumRows())
	if err != nil {
		return nil, err
	}

	workers := s.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	points := s.Grid.Points()
	units := make([]unit, 0, len(points)*len(folds))
	for p := range points {
		for f := range folds {
			units = append(units, unit{point: p, fold: f})
		}
	}

	log.Info("Starting grid search",
		"candidates", len(points),
		"folds", len(folds),
		"fits", len(units),
		"workers", workers,
		"scoring", scoring,
		logger.KeySamples, x.NumRows(),
		logger.KeyFeatures, x.Dim,
		logger.KeyTargets, len(y[0]),
	)

	// One slot per unit; each goroutine writes only its own.
	scores := make([]float64, len(units))
	var done atomic.Int64
	progress := rate.Sometimes{First: 1, Interval: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for u, un := range units {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			fold := folds[un.fold]
			params := points[un.point].Forest(s.Trees)

			model, err := forest.FitMultiOutput(gctx, x.Subset(fold.Train), subsetRows(y, fold.Train), params,
				forest.DeriveSeed(s.Seed, int64(un.fold)), 1)
			if err != nil {
				return err
			}

			scores[u] = scorer(subsetRows(y, fold.Test), model.Predict(x.Subset(fold.Test)))

			n := done.Add(1)
			log.Debug("Scored fold",
				"params", points[un.point].String(),
				"fold", un.fold,
				"score", scores[u],
			)
			progress.Do(func() {
				log.Info("Grid search progress", "completed", n, "total", len(units))
			})
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	candidates := make([]CandidateResult, len(points))
	for p := range points {
		fs := make([]float64, len(folds))
		for f := range folds {
			fs[f] = scores[p*len(folds)+f]
		}
		mean, std := meanStd(fs)
		candidates[p] = CandidateResult{
			Index:      p,
			Params:     points[p],
			FoldScores: fs,
			MeanScore:  mean,
			StdScore:   std,
		}
	}
	rank(candidates)

	// Strictly greater keeps the earliest grid point on ties.
	best := 0
	for p := 1; p < len(candidates); p++ {
		if candidates[p].MeanScore > candidates[best].MeanScore {
			best = p
		}
	}

	for _, c := range candidates {
		log.Info("Candidate scored",
			"params", c.Params.String(),
			"mean", c.MeanScore,
			"std", c.StdScore,
			"rank", c.Rank,
		)
		if s.OnCandidate != nil {
			s.OnCandidate(c)
		}
	}

	log.Info("Refitting best candidate", "params", points[best].String(), "score", candidates[best].MeanScore)

	model, err := forest.FitMultiOutput(ctx, x, y, points[best].Forest(s.Trees), s.Seed, workers)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Scoring:    scoring,
		Best:       points[best],
		BestIndex:  best,
		BestScore:  candidates[best].MeanScore,
		Candidates: candidates,
		Model:      model,
		Duration:   time.Since(start),
	}

	log.Info("Grid search complete",
		"best", res.Best.String(),
		"score", res.BestScore,
		logger.KeyDurationMs, res.Duration.Milliseconds(),
	)
	return res, nil
}

func subsetRows(y [][]int, idx []int) [][]int {
	out := make([][]int, len(idx))
	for i, j := range idx {
		out[i] = y[j]
	}
	return out
}

// meanStd returns the mean and population standard deviation.
func meanStd(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))

	var sq float64
	for _, x := range xs {
		sq += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(sq / float64(len(xs)))
}

// rank assigns 1-based ranks by descending mean; equal means share the
// lowest rank.
func rank(cs []CandidateResult) {
	for i := range cs {
		r := 1
		for j := range cs {
			if cs[j].MeanScore > cs[i].MeanScore {
				r++
			}
		}
		cs[i].Rank = r
	}
}
