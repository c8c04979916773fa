package search

import (
	"fmt"
	"math/rand/v2"

	"github.com/ricesearch/disaster-response/internal/pkg/errors"
)

// DefaultFolds is the number of cross-validation folds.
const DefaultFolds = 5

// Fold holds the row indices of one train/validation split.
type Fold struct {
	Train []int
	Test  []int
}

// KFold partitions rows into K contiguous validation blocks. With Shuffle
// the rows are permuted with Seed first.
type KFold struct {
	K       int
	Shuffle bool
	Seed    int64
}

// Split returns K folds over n rows. The first n%K folds hold one extra
// validation row.
func (k KFold) Split(n int) ([]Fold, error) {
	folds := k.K
	if folds == 0 {
		folds = DefaultFolds
	}
	if folds < 2 {
		return nil, errors.ValidationError(fmt.Sprintf("need at least 2 folds, got %d", folds))
	}
	if n < folds {
		return nil, errors.ValidationError(fmt.Sprintf("cannot split %d rows into %d folds", n, folds))
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	if k.Shuffle {
		rng := rand.New(rand.NewPCG(uint64(k.Seed), 0x2545f4914f6cdd1d))
		rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	out := make([]Fold, folds)
	start := 0
	for f := range folds {
		size := n / folds
		if f < n%folds {
			size++
		}
		end := start + size

		test := append([]int(nil), order[start:end]...)
		train := make([]int, 0, n-size)
		train = append(train, order[:start]...)
		train = append(train, order[end:]...)

		out[f] = Fold{Train: train, Test: test}
		start = end
	}
	return out, nil
}
