package forest

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/ricesearch/disaster-response/internal/features"
	"github.com/ricesearch/disaster-response/internal/pkg/errors"
)

// MultiOutput holds one independent forest per label.
type MultiOutput struct {
	Params  Params
	Forests []*Forest
}

// FitMultiOutput trains one forest per column of y, where y is a
// rows x labels matrix of 0/1 values. Up to workers labels are fitted
// concurrently; workers <= 1 fits them in order on the calling goroutine.
func FitMultiOutput(ctx context.Context, x features.Matrix, y [][]int, params Params, seed int64, workers int) (*MultiOutput, error) {
	if x.NumRows() == 0 || len(y) == 0 {
		return nil, errors.EmptyInputError("cannot fit multi-output forest on zero rows")
	}
	if len(y) != x.NumRows() {
		return nil, errors.ValidationError("label matrix row count does not match feature matrix")
	}

	labels := len(y[0])
	if labels == 0 {
		return nil, errors.ValidationError("label matrix has no columns")
	}

	cols := x.Columns()
	m := &MultiOutput{Params: params, Forests: make([]*Forest, labels)}

	fitLabel := func(j int) error {
		target := make([]int, len(y))
		for i, row := range y {
			if len(row) != labels {
				return errors.ValidationError("label matrix is ragged")
			}
			target[i] = row[j]
		}
		f, err := Fit(x, cols, target, params, DeriveSeed(seed, int64(j)))
		if err != nil {
			return err
		}
		m.Forests[j] = f
		return nil
	}

	if workers <= 1 {
		for j := range labels {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := fitLabel(j); err != nil {
				return nil, err
			}
		}
		return m, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for j := range labels {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fitLabel(j)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return m, nil
}

// Labels returns the number of fitted targets.
func (m *MultiOutput) Labels() int {
	return len(m.Forests)
}

// PredictRow returns the 0/1 prediction of every label for x.
func (m *MultiOutput) PredictRow(x features.SparseVector) []int {
	out := make([]int, len(m.Forests))
	for j, f := range m.Forests {
		out[j] = f.Predict(x)
	}
	return out
}

// Predict returns a rows x labels matrix of predictions.
func (m *MultiOutput) Predict(x features.Matrix) [][]int {
	out := make([][]int, x.NumRows())
	for i, row := range x.Rows {
		out[i] = m.PredictRow(row)
	}
	return out
}

// PredictProba returns a rows x labels matrix of positive-class
// probabilities.
func (m *MultiOutput) PredictProba(x features.Matrix) [][]float64 {
	out := make([][]float64, x.NumRows())
	for i, row := range x.Rows {
		p := make([]float64, len(m.Forests))
		for j, f := range m.Forests {
			p[j] = f.PredictProba(row)
		}
		out[i] = p
	}
	return out
}
