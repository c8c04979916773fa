package dataset

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/ricesearch/disaster-response/internal/pkg/errors"
)

// NewRand returns the deterministic random source used for splitting and
// training.
func NewRand(seed int64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), 0x9e3779b97f4a7c15))
}

// Split shuffles the rows with a seeded source and returns a train and a test
// dataset. The test split holds ceil(testSize*n) rows.
func (d *Dataset) Split(testSize float64, seed int64) (train, test *Dataset, err error) {
	if testSize <= 0 || testSize >= 1 {
		return nil, nil, errors.ValidationError(fmt.Sprintf("test size must be in (0,1), got %v", testSize))
	}

	n := len(d.Rows)
	nTest := int(math.Ceil(testSize * float64(n)))
	nTrain := n - nTest
	if nTest == 0 || nTrain == 0 {
		return nil, nil, errors.EmptyInputError(fmt.Sprintf("cannot split %d rows with test size %v", n, testSize))
	}

	perm := NewRand(seed).Perm(n)

	return d.Subset(perm[nTest:]), d.Subset(perm[:nTest]), nil
}
