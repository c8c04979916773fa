package evaluation

// Confusion counts the outcomes of a binary classifier for one class.
type Confusion struct {
	TP, FP, FN, TN int
}

// NewConfusion counts outcomes treating class as the positive value.
func NewConfusion(yTrue, yPred []int, class int) Confusion {
	var c Confusion
	for i := range yTrue {
		t, p := yTrue[i] == class, yPred[i] == class
		switch {
		case t && p:
			c.TP++
		case !t && p:
			c.FP++
		case t && !p:
			c.FN++
		default:
			c.TN++
		}
	}
	return c
}

// Precision is TP/(TP+FP), 0 when nothing was predicted positive.
func (c Confusion) Precision() float64 {
	return ratio(c.TP, c.TP+c.FP)
}

// Recall is TP/(TP+FN), 0 when there are no true positives to find.
func (c Confusion) Recall() float64 {
	return ratio(c.TP, c.TP+c.FN)
}

// F1 is the harmonic mean of precision and recall, 0 when both are 0.
func (c Confusion) F1() float64 {
	return ratio(2*c.TP, 2*c.TP+c.FP+c.FN)
}

// Support is the number of rows whose true value is the class.
func (c Confusion) Support() int {
	return c.TP + c.FN
}

// Accuracy returns the fraction of equal entries.
func Accuracy(yTrue, yPred []int) float64 {
	correct := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			correct++
		}
	}
	return ratio(correct, len(yTrue))
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
