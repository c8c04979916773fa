package search

import (
	"fmt"

	"github.com/ricesearch/disaster-response/internal/pkg/errors"
)

// Scorer names.
const (
	ScoreLabelAccuracy  = "label_accuracy"
	ScoreSubsetAccuracy = "subset_accuracy"
	ScoreF1Macro        = "f1_macro"
)

// Scorer rates multi-label predictions against the truth; higher is
// better. Both matrices are rows x labels.
type Scorer func(yTrue, yPred [][]int) float64

// ScorerByName resolves a scorer. An empty name selects label_accuracy.
func ScorerByName(name string) (Scorer, error) {
	switch name {
	case "", ScoreLabelAccuracy:
		return LabelAccuracy, nil
	case ScoreSubsetAccuracy:
		return SubsetAccuracy, nil
	case ScoreF1Macro:
		return F1Macro, nil
	default:
		return nil, errors.ValidationError(fmt.Sprintf("unknown scoring %q", name))
	}
}

// LabelAccuracy is the mean over labels of per-label accuracy. An empty
// input scores 0.
func LabelAccuracy(yTrue, yPred [][]int) float64 {
	if len(yTrue) == 0 || len(yTrue[0]) == 0 {
		return 0
	}
	labels := len(yTrue[0])
	correct := 0
	for i := range yTrue {
		for j := 0; j < labels; j++ {
			if yTrue[i][j] == yPred[i][j] {
				correct++
			}
		}
	}
	return float64(correct) / float64(len(yTrue)*labels)
}

// SubsetAccuracy is the fraction of rows whose labels all match.
func SubsetAccuracy(yTrue, yPred [][]int) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	exact := 0
	for i := range yTrue {
		match := true
		for j := range yTrue[i] {
			if yTrue[i][j] != yPred[i][j] {
				match = false
				break
			}
		}
		if match {
			exact++
		}
	}
	return float64(exact) / float64(len(yTrue))
}

// F1Macro is the mean over labels of the positive-class F1. A label with no
// true or predicted positives scores 0.
func F1Macro(yTrue, yPred [][]int) float64 {
	if len(yTrue) == 0 || len(yTrue[0]) == 0 {
		return 0
	}
	labels := len(yTrue[0])
	var sum float64
	for j := 0; j < labels; j++ {
		var tp, fp, fn int
		for i := range yTrue {
			switch {
			case yTrue[i][j] == 1 && yPred[i][j] == 1:
				tp++
			case yTrue[i][j] == 0 && yPred[i][j] == 1:
				fp++
			case yTrue[i][j] == 1 && yPred[i][j] == 0:
				fn++
			}
		}
		if denom := 2*tp + fp + fn; denom > 0 {
			sum += 2 * float64(tp) / float64(denom)
		}
	}
	return sum / float64(labels)
}
