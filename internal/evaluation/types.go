package evaluation

// ClassMetrics holds precision, recall, F1 and support for one class of a
// binary label, or an average over classes.
type ClassMetrics struct {
	Class     int     `json:"class" yaml:"class"`
	Precision float64 `json:"precision" yaml:"precision"`
	Recall    float64 `json:"recall" yaml:"recall"`
	F1        float64 `json:"f1" yaml:"f1"`
	Support   int     `json:"support" yaml:"support"`
}

// LabelReport is the classification report of one label column.
type LabelReport struct {
	Label string `json:"label" yaml:"label"`

	// Positive-class metrics.
	Precision float64 `json:"precision" yaml:"precision"`
	Recall    float64 `json:"recall" yaml:"recall"`
	F1        float64 `json:"f1" yaml:"f1"`
	Support   int     `json:"support" yaml:"support"`

	// Classes holds one row per class present in the truth or the
	// predictions, ascending.
	Classes     []ClassMetrics `json:"classes" yaml:"classes"`
	Accuracy    float64        `json:"accuracy" yaml:"accuracy"`
	MacroAvg    ClassMetrics   `json:"macro_avg" yaml:"macro_avg"`
	WeightedAvg ClassMetrics   `json:"weighted_avg" yaml:"weighted_avg"`
}

// Report holds one LabelReport per label, in label order.
type Report struct {
	Samples int           `json:"samples" yaml:"samples"`
	Labels  []LabelReport `json:"labels" yaml:"labels"`
}

// Summary aggregates a report across labels.
type Summary struct {
	Labels        int     `json:"labels" yaml:"labels"`
	MeanAccuracy  float64 `json:"mean_accuracy" yaml:"mean_accuracy"`
	MeanPrecision float64 `json:"mean_precision" yaml:"mean_precision"`
	MeanRecall    float64 `json:"mean_recall" yaml:"mean_recall"`
	MeanF1        float64 `json:"mean_f1" yaml:"mean_f1"`
}
