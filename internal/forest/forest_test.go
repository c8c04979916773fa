package forest

import (
	"context"
	"reflect"
	"testing"

	"github.com/ricesearch/disaster-response/internal/features"
	"github.com/ricesearch/disaster-response/internal/pkg/errors"
)

// separable builds n rows where feature 0 is present exactly on positive
// rows and feature 1 on negative rows.
func separable(n int) (features.Matrix, []int) {
	m := features.Matrix{Dim: 4}
	y := make([]int, n)
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			y[i] = 1
			m.Rows = append(m.Rows, features.SparseVector{Indices: []int{0, 2}, Values: []float64{0.9, 0.1}})
		} else {
			m.Rows = append(m.Rows, features.SparseVector{Indices: []int{1, 3}, Values: []float64{0.8, 0.2}})
		}
	}
	return m, y
}

func uniformWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1
	}
	return w
}

func TestFitTree_Separable(t *testing.T) {
	x, y := separable(20)
	tree := FitTree(x, x.Columns(), y, uniformWeights(20), TreeParams{MaxFeatures: 4}, newRand(1))

	for i, row := range x.Rows {
		if got := tree.PredictProba(row); got != float64(y[i]) {
			t.Errorf("row %d: PredictProba() = %v, want %d", i, got, y[i])
		}
	}
	if tree.Depth() != 1 {
		t.Errorf("Depth() = %d, want 1", tree.Depth())
	}
}

func TestFitTree_PureNodeIsLeaf(t *testing.T) {
	x, _ := separable(6)
	y := make([]int, 6)
	tree := FitTree(x, x.Columns(), y, uniformWeights(6), TreeParams{}, newRand(1))

	if len(tree.Nodes) != 1 || tree.Nodes[0].Value != 0 {
		t.Errorf("expected single leaf with value 0, got %+v", tree.Nodes)
	}
}

func TestFitTree_Constraints(t *testing.T) {
	// Feature 0 takes a distinct value per row so the tree can isolate each
	// row unless constrained.
	n := 32
	x := features.Matrix{Dim: 1}
	y := make([]int, n)
	for i := 0; i < n; i++ {
		x.Rows = append(x.Rows, features.SparseVector{Indices: []int{0}, Values: []float64{float64(i + 1)}})
		y[i] = (i / 2) % 2
	}

	tests := []struct {
		name      string
		params    TreeParams
		maxDepth  int
		minLeaf   int
		maxLeaves int
	}{
		{"depth limited", TreeParams{MaxDepth: 2}, 2, 1, 4},
		{"leaf limited", TreeParams{MinSamplesLeaf: 5}, 0, 5, n / 5},
		{"unbounded", TreeParams{}, 0, 1, n},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := FitTree(x, x.Columns(), y, uniformWeights(n), tt.params, newRand(7))

			if tt.maxDepth > 0 && tree.Depth() > tt.maxDepth {
				t.Errorf("Depth() = %d, want <= %d", tree.Depth(), tt.maxDepth)
			}
			if tree.Leaves() > tt.maxLeaves {
				t.Errorf("Leaves() = %d, want <= %d", tree.Leaves(), tt.maxLeaves)
			}

			counts := make(map[int]int)
			for _, row := range x.Rows {
				counts[leafOf(tree, row)]++
			}
			for leaf, c := range counts {
				if c < tt.minLeaf {
					t.Errorf("leaf %d holds %d samples, want >= %d", leaf, c, tt.minLeaf)
				}
			}
		})
	}
}

func leafOf(t *Tree, x features.SparseVector) int {
	i := 0
	for t.Nodes[i].Feature != leafFeature {
		if x.At(t.Nodes[i].Feature) <= t.Nodes[i].Threshold {
			i = t.Nodes[i].Left
		} else {
			i = t.Nodes[i].Right
		}
	}
	return i
}

func TestFitTree_ThresholdMidpoint(t *testing.T) {
	x := features.Matrix{Dim: 1, Rows: []features.SparseVector{
		{},
		{},
		{Indices: []int{0}, Values: []float64{0.4}},
		{Indices: []int{0}, Values: []float64{0.6}},
	}}
	y := []int{0, 0, 1, 1}

	tree := FitTree(x, x.Columns(), y, uniformWeights(4), TreeParams{}, newRand(1))
	if got := tree.Nodes[0].Threshold; got != 0.2 {
		t.Errorf("root threshold = %v, want 0.2", got)
	}
}

func TestFitTree_ZeroWeightRowsIgnored(t *testing.T) {
	x, y := separable(10)
	w := uniformWeights(10)
	for i := range w {
		if y[i] == 1 {
			w[i] = 0
		}
	}

	tree := FitTree(x, x.Columns(), y, w, TreeParams{}, newRand(1))
	if len(tree.Nodes) != 1 || tree.Nodes[0].Value != 0 {
		t.Errorf("expected a single negative leaf, got %+v", tree.Nodes)
	}
}

func TestForest_FitPredict(t *testing.T) {
	x, y := separable(40)

	f, err := Fit(x, x.Columns(), y, Params{Trees: 15}, 42)
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	if len(f.Trees) != 15 {
		t.Fatalf("len(Trees) = %d, want 15", len(f.Trees))
	}

	for i, row := range x.Rows {
		if got := f.Predict(row); got != y[i] {
			t.Errorf("row %d: Predict() = %d, want %d", i, got, y[i])
		}
	}

	again, _ := Fit(x, x.Columns(), y, Params{Trees: 15}, 42)
	if !reflect.DeepEqual(f, again) {
		t.Error("same seed produced different forests")
	}
}

func TestForest_DefaultTrees(t *testing.T) {
	x, y := separable(4)
	f, err := Fit(x, x.Columns(), y, Params{}, 1)
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	if len(f.Trees) != DefaultTrees {
		t.Errorf("len(Trees) = %d, want %d", len(f.Trees), DefaultTrees)
	}
}

func TestForest_Errors(t *testing.T) {
	if _, err := Fit(features.Matrix{}, nil, nil, Params{}, 1); !errors.IsEmptyInput(err) {
		t.Errorf("expected empty input error, got %v", err)
	}
	x, _ := separable(4)
	if _, err := Fit(x, x.Columns(), []int{1}, Params{}, 1); !errors.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestForest_PredictThreshold(t *testing.T) {
	half := &Forest{Trees: []*Tree{
		{Nodes: []Node{{Feature: leafFeature, Value: 1}}},
		{Nodes: []Node{{Feature: leafFeature, Value: 0}}},
	}}
	if got := half.Predict(features.SparseVector{}); got != 0 {
		t.Errorf("Predict() at mean 0.5 = %d, want 0", got)
	}
}

func TestMultiOutput(t *testing.T) {
	x, y1 := separable(30)
	y := make([][]int, len(y1))
	for i, v := range y1 {
		y[i] = []int{v, 1 - v, 0}
	}

	seq, err := FitMultiOutput(context.Background(), x, y, Params{Trees: 10}, 3, 1)
	if err != nil {
		t.Fatalf("FitMultiOutput() error = %v", err)
	}
	par, err := FitMultiOutput(context.Background(), x, y, Params{Trees: 10}, 3, 4)
	if err != nil {
		t.Fatalf("FitMultiOutput() parallel error = %v", err)
	}

	if !reflect.DeepEqual(seq, par) {
		t.Error("parallel fit differs from sequential fit")
	}
	if seq.Labels() != 3 {
		t.Errorf("Labels() = %d, want 3", seq.Labels())
	}

	pred := seq.Predict(x)
	if !reflect.DeepEqual(pred, y) {
		t.Errorf("Predict() = %v, want %v", pred, y)
	}

	proba := seq.PredictProba(x)
	if proba[0][2] != 0 {
		t.Errorf("all-negative label probability = %v, want 0", proba[0][2])
	}
}

func TestMultiOutput_Cancelled(t *testing.T) {
	x, y1 := separable(10)
	y := make([][]int, len(y1))
	for i, v := range y1 {
		y[i] = []int{v}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := FitMultiOutput(ctx, x, y, Params{Trees: 2}, 1, 1); err == nil {
		t.Error("expected error from cancelled context")
	}
}

func TestDeriveSeed(t *testing.T) {
	if DeriveSeed(1, 2, 3) != DeriveSeed(1, 2, 3) {
		t.Error("DeriveSeed is not deterministic")
	}
	if DeriveSeed(1, 2) == DeriveSeed(1, 3) {
		t.Error("DeriveSeed collides on adjacent parts")
	}
	if DeriveSeed(1, 2) == DeriveSeed(2, 2) {
		t.Error("DeriveSeed collides on adjacent bases")
	}
}
