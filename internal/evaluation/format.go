package evaluation

import (
	"fmt"
	"strconv"
	"strings"
)

// Format renders every label as a conventional classification report,
// separated by blank lines.
func (r *Report) Format() string {
	var sb strings.Builder
	for i, lr := range r.Labels {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(lr.Format())
	}
	return sb.String()
}

// Format renders one label's classification report.
func (lr LabelReport) Format() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Category: %s\n", lr.Label)
	fmt.Fprintf(&sb, "%12s %10s %10s %10s %10s\n\n", "", "precision", "recall", "f1-score", "support")

	for _, c := range lr.Classes {
		writeRow(&sb, strconv.Itoa(c.Class), c)
	}
	sb.WriteString("\n")

	fmt.Fprintf(&sb, "%12s %10s %10s %10.2f %10d\n", "accuracy", "", "", lr.Accuracy, lr.MacroAvg.Support)
	writeRow(&sb, "macro avg", lr.MacroAvg)
	writeRow(&sb, "weighted avg", lr.WeightedAvg)

	return sb.String()
}

func writeRow(sb *strings.Builder, name string, m ClassMetrics) {
	fmt.Fprintf(sb, "%12s %10.2f %10.2f %10.2f %10d\n", name, m.Precision, m.Recall, m.F1, m.Support)
}
