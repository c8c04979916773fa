package forest

import (
	"github.com/ricesearch/disaster-response/internal/features"
	"github.com/ricesearch/disaster-response/internal/pkg/errors"
)

// DefaultTrees is the number of trees in a forest when Params.Trees is 0.
const DefaultTrees = 100

// Params configures a random forest.
type Params struct {
	Trees          int `yaml:"trees" json:"trees"`
	MaxDepth       int `yaml:"max_depth" json:"max_depth"`
	MinSamplesLeaf int `yaml:"min_samples_leaf" json:"min_samples_leaf"`
}

func (p Params) trees() int {
	if p.Trees <= 0 {
		return DefaultTrees
	}
	return p.Trees
}

func (p Params) treeParams() TreeParams {
	return TreeParams{
		MaxDepth:        p.MaxDepth,
		MinSamplesLeaf:  p.MinSamplesLeaf,
		MinSamplesSplit: 2,
	}
}

// Forest is a bagged ensemble of trees for one binary target.
type Forest struct {
	Trees []*Tree
}

// Fit trains a forest on x and the 0/1 targets y. cols must be x.Columns().
// Every tree sees a bootstrap sample of the rows drawn with its own seed
// derived from seed.
func Fit(x features.Matrix, cols []features.Column, y []int, params Params, seed int64) (*Forest, error) {
	n := x.NumRows()
	if n == 0 {
		return nil, errors.EmptyInputError("cannot fit forest on zero rows")
	}
	if len(y) != n {
		return nil, errors.ValidationError("target length does not match row count")
	}

	tp := params.treeParams()
	f := &Forest{Trees: make([]*Tree, params.trees())}

	weights := make([]float64, n)
	for t := range f.Trees {
		rng := newRand(DeriveSeed(seed, int64(t)))

		clear(weights)
		for range n {
			weights[rng.IntN(n)]++
		}

		f.Trees[t] = FitTree(x, cols, y, weights, tp, rng)
	}

	return f, nil
}

// PredictProba returns the mean of the tree probabilities for x.
func (f *Forest) PredictProba(x features.SparseVector) float64 {
	if len(f.Trees) == 0 {
		return 0
	}
	var sum float64
	for _, t := range f.Trees {
		sum += t.PredictProba(x)
	}
	return sum / float64(len(f.Trees))
}

// Predict returns 1 iff the mean probability exceeds 0.5.
func (f *Forest) Predict(x features.SparseVector) int {
	if f.PredictProba(x) > 0.5 {
		return 1
	}
	return 0
}
