// Package search selects forest hyperparameters by cross-validated grid
// search.
package search

import (
	"fmt"

	"github.com/ricesearch/disaster-response/internal/forest"
	"github.com/ricesearch/disaster-response/internal/pkg/errors"
)

// Params is one point of the hyperparameter grid.
type Params struct {
	MinSamplesLeaf int `yaml:"min_samples_leaf" json:"min_samples_leaf"`
	// MaxDepth 0 means unbounded.
	MaxDepth int `yaml:"max_depth" json:"max_depth"`
}

// String renders the point for logs.
func (p Params) String() string {
	depth := "none"
	if p.MaxDepth > 0 {
		depth = fmt.Sprintf("%d", p.MaxDepth)
	}
	return fmt.Sprintf("max_depth=%s min_samples_leaf=%d", depth, p.MinSamplesLeaf)
}

// Forest converts the point to forest parameters with the given tree count.
func (p Params) Forest(trees int) forest.Params {
	return forest.Params{
		Trees:          trees,
		MaxDepth:       p.MaxDepth,
		MinSamplesLeaf: p.MinSamplesLeaf,
	}
}

// Grid is the cross product of candidate values.
type Grid struct {
	MinSamplesLeaf []int
	MaxDepth       []int
}

// DefaultGrid returns min_samples_leaf {2,5,10} x max_depth {10,50,unbounded}.
func DefaultGrid() Grid {
	return Grid{
		MinSamplesLeaf: []int{2, 5, 10},
		MaxDepth:       []int{10, 50, 0},
	}
}

// Points enumerates the grid max_depth-major, min_samples_leaf-minor.
func (g Grid) Points() []Params {
	out := make([]Params, 0, len(g.MaxDepth)*len(g.MinSamplesLeaf))
	for _, d := range g.MaxDepth {
		for _, l := range g.MinSamplesLeaf {
			out = append(out, Params{MinSamplesLeaf: l, MaxDepth: d})
		}
	}
	return out
}

// Validate rejects empty axes and out-of-range values.
func (g Grid) Validate() error {
	if len(g.MinSamplesLeaf) == 0 || len(g.MaxDepth) == 0 {
		return errors.ValidationError("grid needs at least one min_samples_leaf and one max_depth value")
	}
	for _, l := range g.MinSamplesLeaf {
		if l < 1 {
			return errors.ValidationError(fmt.Sprintf("min_samples_leaf must be >= 1, got %d", l))
		}
	}
	for _, d := range g.MaxDepth {
		if d < 0 {
			return errors.ValidationError(fmt.Sprintf("max_depth must be >= 0, got %d", d))
		}
	}
	return nil
}
