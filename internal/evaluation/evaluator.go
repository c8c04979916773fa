// Package evaluation scores multi-label predictions label by label.
package evaluation

import (
	"fmt"
	"sort"

	"github.com/ricesearch/disaster-response/internal/features"
	"github.com/ricesearch/disaster-response/internal/pkg/errors"
)

// Predictor produces a rows x labels matrix of 0/1 predictions.
type Predictor interface {
	Predict(x features.Matrix) [][]int
}

// Evaluate predicts every row of x and reports each label against y.
func Evaluate(model Predictor, x features.Matrix, y [][]int, labels []string) (*Report, error) {
	if x.NumRows() == 0 {
		return nil, errors.EmptyInputError("cannot evaluate on zero rows")
	}
	if len(y) != x.NumRows() {
		return nil, errors.ValidationError("label matrix row count does not match feature matrix")
	}

	pred := model.Predict(x)
	if len(pred) != len(y) {
		return nil, errors.InternalError("predictor returned wrong row count", nil)
	}

	return Compare(y, pred, labels)
}

// Compare builds the report from truth and predictions directly.
func Compare(yTrue, yPred [][]int, labels []string) (*Report, error) {
	if len(yTrue) != len(yPred) {
		return nil, errors.ValidationError("truth and prediction row counts differ")
	}

	report := &Report{
		Samples: len(yTrue),
		Labels:  make([]LabelReport, len(labels)),
	}

	t := make([]int, len(yTrue))
	p := make([]int, len(yTrue))
	for j, name := range labels {
		for i := range yTrue {
			if len(yTrue[i]) != len(labels) || len(yPred[i]) != len(labels) {
				return nil, errors.ValidationError(fmt.Sprintf("row %d does not have %d label values", i, len(labels)))
			}
			t[i] = yTrue[i][j]
			p[i] = yPred[i][j]
		}
		report.Labels[j] = labelReport(name, t, p)
	}

	return report, nil
}

func labelReport(name string, yTrue, yPred []int) LabelReport {
	pos := NewConfusion(yTrue, yPred, 1)
	lr := LabelReport{
		Label:     name,
		Precision: pos.Precision(),
		Recall:    pos.Recall(),
		F1:        pos.F1(),
		Support:   pos.Support(),
		Accuracy:  Accuracy(yTrue, yPred),
	}

	total := 0
	for _, class := range presentClasses(yTrue, yPred) {
		c := NewConfusion(yTrue, yPred, class)
		m := ClassMetrics{
			Class:     class,
			Precision: c.Precision(),
			Recall:    c.Recall(),
			F1:        c.F1(),
			Support:   c.Support(),
		}
		lr.Classes = append(lr.Classes, m)

		lr.MacroAvg.Precision += m.Precision
		lr.MacroAvg.Recall += m.Recall
		lr.MacroAvg.F1 += m.F1

		w := float64(m.Support)
		lr.WeightedAvg.Precision += w * m.Precision
		lr.WeightedAvg.Recall += w * m.Recall
		lr.WeightedAvg.F1 += w * m.F1
		total += m.Support
	}

	if n := float64(len(lr.Classes)); n > 0 {
		lr.MacroAvg.Precision /= n
		lr.MacroAvg.Recall /= n
		lr.MacroAvg.F1 /= n
	}
	if total > 0 {
		w := float64(total)
		lr.WeightedAvg.Precision /= w
		lr.WeightedAvg.Recall /= w
		lr.WeightedAvg.F1 /= w
	} else {
		lr.WeightedAvg = ClassMetrics{}
	}
	lr.MacroAvg.Class = -1
	lr.WeightedAvg.Class = -1
	lr.MacroAvg.Support = total
	lr.WeightedAvg.Support = total

	return lr
}

func presentClasses(a, b []int) []int {
	seen := make(map[int]struct{})
	for _, v := range a {
		seen[v] = struct{}{}
	}
	for _, v := range b {
		seen[v] = struct{}{}
	}
	out := make([]int, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

// Summary returns the macro means of the positive-class metrics and the
// mean accuracy across labels.
func (r *Report) Summary() Summary {
	s := Summary{Labels: len(r.Labels)}
	if len(r.Labels) == 0 {
		return s
	}
	for _, lr := range r.Labels {
		s.MeanAccuracy += lr.Accuracy
		s.MeanPrecision += lr.Precision
		s.MeanRecall += lr.Recall
		s.MeanF1 += lr.F1
	}
	n := float64(len(r.Labels))
	s.MeanAccuracy /= n
	s.MeanPrecision /= n
	s.MeanRecall /= n
	s.MeanF1 /= n
	return s
}

// F1ByLabel returns the positive-class F1 of every label keyed by name.
func (r *Report) F1ByLabel() map[string]float64 {
	out := make(map[string]float64, len(r.Labels))
	for _, lr := range r.Labels {
		out[lr.Label] = lr.F1
	}
	return out
}
