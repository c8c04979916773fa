// Package forest implements binary random forest classifiers over sparse
// feature matrices.
package forest

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/ricesearch/disaster-response/internal/features"
)

const leafFeature = -1

// TreeParams controls the growth of a single tree.
type TreeParams struct {
	// MaxDepth limits the depth of the tree. 0 means unbounded.
	MaxDepth int
	// MinSamplesLeaf is the minimum number of distinct samples in a leaf.
	MinSamplesLeaf int
	// MinSamplesSplit is the minimum number of distinct samples needed to
	// split a node.
	MinSamplesSplit int
	// MaxFeatures is the number of candidate features drawn per split.
	// 0 means sqrt of the matrix width.
	MaxFeatures int
}

func (p TreeParams) withDefaults(dim int) TreeParams {
	if p.MinSamplesLeaf < 1 {
		p.MinSamplesLeaf = 1
	}
	if p.MinSamplesSplit < 2 {
		p.MinSamplesSplit = 2
	}
	if p.MaxFeatures <= 0 {
		p.MaxFeatures = max(1, int(math.Sqrt(float64(dim))))
	}
	return p
}

// Node is one tree node. Leaves have Feature == -1.
type Node struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	// Value is the weighted fraction of positive samples reaching the node.
	Value float64
}

// Tree is a fitted CART classifier for one binary target.
type Tree struct {
	Nodes []Node
}

// PredictProba returns P(y=1) for x.
func (t *Tree) PredictProba(x features.SparseVector) float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.Feature == leafFeature {
			return n.Value
		}
		if x.At(n.Feature) <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Depth returns the length of the longest root-to-leaf path.
func (t *Tree) Depth() int {
	var walk func(i int) int
	walk = func(i int) int {
		n := t.Nodes[i]
		if n.Feature == leafFeature {
			return 0
		}
		return 1 + max(walk(n.Left), walk(n.Right))
	}
	return walk(0)
}

// Leaves returns the number of leaf nodes.
func (t *Tree) Leaves() int {
	count := 0
	for _, n := range t.Nodes {
		if n.Feature == leafFeature {
			count++
		}
	}
	return count
}

// builder holds the read-only training data and the scratch space reused
// across nodes of one tree.
type builder struct {
	x       features.Matrix
	cols    []features.Column
	y       []int
	weights []float64
	params  TreeParams
	rng     *rand.Rand

	nodes []Node
	mark  []int
	stamp int
	value []float64
}

// group is a run of samples sharing one feature value.
type group struct {
	value  float64
	weight float64
	pos    float64
	count  int
}

type split struct {
	feature   int
	threshold float64
	score     float64
}

// FitTree grows a tree on the rows of x with non-zero weight. cols must be
// x.Columns(); y holds 0/1 targets per row. weights are per-row sample
// multiplicities (bootstrap counts).
func FitTree(x features.Matrix, cols []features.Column, y []int, weights []float64, params TreeParams, rng *rand.Rand) *Tree {
	b := &builder{
		x:       x,
		cols:    cols,
		y:       y,
		weights: weights,
		params:  params.withDefaults(x.Dim),
		rng:     rng,
		mark:    make([]int, len(y)),
		value:   make([]float64, len(y)),
	}

	samples := make([]int, 0, len(y))
	for i, w := range weights {
		if w > 0 {
			samples = append(samples, i)
		}
	}

	b.grow(samples, 0)
	return &Tree{Nodes: b.nodes}
}

func (b *builder) grow(samples []int, depth int) int {
	var w, pos float64
	for _, i := range samples {
		w += b.weights[i]
		if b.y[i] == 1 {
			pos += b.weights[i]
		}
	}

	id := len(b.nodes)
	b.nodes = append(b.nodes, Node{Feature: leafFeature, Value: safeDiv(pos, w)})

	if (b.params.MaxDepth > 0 && depth >= b.params.MaxDepth) ||
		len(samples) < b.params.MinSamplesSplit ||
		len(samples) < 2*b.params.MinSamplesLeaf ||
		pos == 0 || pos == w {
		return id
	}

	best, ok := b.bestSplit(samples, w, pos)
	if !ok {
		return id
	}

	left, right := b.partition(samples, best)
	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)

	b.nodes[id].Feature = best.feature
	b.nodes[id].Threshold = best.threshold
	b.nodes[id].Left = l
	b.nodes[id].Right = r
	return id
}

// bestSplit draws candidate features in random order until MaxFeatures
// non-constant ones have been evaluated. Features absent from every sample
// of the node are constant and never drawn.
func (b *builder) bestSplit(samples []int, w, pos float64) (split, bool) {
	b.stamp++
	for _, i := range samples {
		b.mark[i] = b.stamp
	}

	candidates := b.presentFeatures(samples)

	best := split{score: math.Inf(1)}
	found := false
	visited := 0

	for k := 0; k < len(candidates) && visited < b.params.MaxFeatures; k++ {
		j := k + b.rng.IntN(len(candidates)-k)
		candidates[k], candidates[j] = candidates[j], candidates[k]
		f := candidates[k]

		groups := b.groups(f, len(samples), w, pos)
		if len(groups) < 2 {
			continue
		}
		visited++

		if s, ok := b.scanGroups(f, groups, len(samples), w, pos); ok && s.score < best.score {
			best = s
			found = true
		}
	}

	return best, found
}

func (b *builder) presentFeatures(samples []int) []int {
	seen := make(map[int]struct{})
	var out []int
	for _, i := range samples {
		for _, f := range b.x.Rows[i].Indices {
			if _, ok := seen[f]; !ok {
				seen[f] = struct{}{}
				out = append(out, f)
			}
		}
	}
	sort.Ints(out)
	return out
}

// groups collects the node's values of feature f as sorted runs of equal
// value. All samples not stored in the column form one zero group.
func (b *builder) groups(f, count int, w, pos float64) []group {
	col := b.cols[f]

	var out []group
	zero := group{weight: w, pos: pos, count: count}

	for k, i := range col.Rows {
		if b.mark[i] != b.stamp {
			continue
		}
		g := group{value: col.Values[k], weight: b.weights[i], count: 1}
		if b.y[i] == 1 {
			g.pos = b.weights[i]
		}
		out = append(out, g)
		zero.weight -= g.weight
		zero.pos -= g.pos
		zero.count--
	}
	if zero.count > 0 {
		out = append(out, zero)
	}

	sort.SliceStable(out, func(a, c int) bool { return out[a].value < out[c].value })

	merged := out[:0]
	for _, g := range out {
		if n := len(merged); n > 0 && merged[n-1].value == g.value {
			merged[n-1].weight += g.weight
			merged[n-1].pos += g.pos
			merged[n-1].count += g.count
			continue
		}
		merged = append(merged, g)
	}
	return merged
}

// scanGroups evaluates every threshold between adjacent groups and returns
// the one with the lowest weighted Gini impurity of the children.
func (b *builder) scanGroups(f int, groups []group, count int, w, pos float64) (split, bool) {
	best := split{feature: f, score: math.Inf(1)}
	found := false

	var lw, lpos float64
	lcount := 0
	minLeaf := b.params.MinSamplesLeaf

	for k := 0; k < len(groups)-1; k++ {
		lw += groups[k].weight
		lpos += groups[k].pos
		lcount += groups[k].count

		if lcount < minLeaf {
			continue
		}
		if count-lcount < minLeaf {
			break
		}

		score := weightedGini(lw, lpos) + weightedGini(w-lw, pos-lpos)
		if score < best.score {
			lo, hi := groups[k].value, groups[k+1].value
			threshold := lo + (hi-lo)/2
			if threshold >= hi {
				threshold = lo
			}
			best.threshold = threshold
			best.score = score
			found = true
		}
	}
	return best, found
}

// weightedGini returns w times the Gini impurity of a node with weight w
// and positive weight p.
func weightedGini(w, p float64) float64 {
	if w <= 0 {
		return 0
	}
	return 2 * p * (w - p) / w
}

func (b *builder) partition(samples []int, s split) (left, right []int) {
	col := b.cols[s.feature]
	for k, i := range col.Rows {
		if b.mark[i] == b.stamp {
			b.value[i] = col.Values[k]
		}
	}

	for _, i := range samples {
		if b.value[i] <= s.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	for _, i := range col.Rows {
		b.value[i] = 0
	}
	return left, right
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}
