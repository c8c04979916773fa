// Package bus publishes pipeline lifecycle events to in-process or Kafka
// subscribers.
package bus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Bus defines the interface for event bus implementations.
type Bus interface {
	// Publish publishes an event to a topic.
	Publish(ctx context.Context, topic string, event Event) error

	// Subscribe subscribes to events on a topic.
	Subscribe(ctx context.Context, topic string, handler Handler) error

	// Close closes the bus and releases resources.
	Close() error
}

// Event represents a bus event.
type Event struct {
	// ID is the unique event identifier.
	ID string `json:"id"`

	// Type is the event type, usually the topic it was published on.
	Type string `json:"type"`

	// Source is the command that generated the event.
	Source string `json:"source"`

	// Timestamp is when the event was created, in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`

	// RunID links all events of one process or train run.
	RunID string `json:"run_id,omitempty"`

	// Payload contains the event data.
	Payload any `json:"payload"`
}

// NewEvent creates an event with a fresh id and the current time.
func NewEvent(eventType, source, runID string, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UnixMilli(),
		RunID:     runID,
		Payload:   payload,
	}
}

// Topics for pipeline events.
const (
	TopicDatasetCleaned  = "dataset.cleaned"
	TopicCandidateScored = "search.candidate.scored"
	TopicModelTrained    = "model.trained"
	TopicModelEvaluated  = "model.evaluated"
)

// DatasetCleaned is the payload of TopicDatasetCleaned.
type DatasetCleaned struct {
	Table      string   `json:"table"`
	Rows       int      `json:"rows"`
	Labels     []string `json:"labels"`
	Duplicates int      `json:"duplicates"`
	Clamped    int      `json:"clamped"`
}

// CandidateScored is the payload of TopicCandidateScored.
type CandidateScored struct {
	Index          int       `json:"index"`
	MinSamplesLeaf int       `json:"min_samples_leaf"`
	MaxDepth       int       `json:"max_depth"`
	FoldScores     []float64 `json:"fold_scores"`
	MeanScore      float64   `json:"mean_score"`
	Rank           int       `json:"rank"`
}

// ModelTrained is the payload of TopicModelTrained.
type ModelTrained struct {
	ModelDir       string  `json:"model_dir"`
	MinSamplesLeaf int     `json:"min_samples_leaf"`
	MaxDepth       int     `json:"max_depth"`
	CVScore        float64 `json:"cv_score"`
	Vocabulary     int     `json:"vocabulary"`
	TrainRows      int     `json:"train_rows"`
	DurationMs     int64   `json:"duration_ms"`
}

// ModelEvaluated is the payload of TopicModelEvaluated.
type ModelEvaluated struct {
	TestRows  int                `json:"test_rows"`
	MeanF1    float64            `json:"mean_f1"`
	MeanAcc   float64            `json:"mean_accuracy"`
	F1ByLabel map[string]float64 `json:"f1_by_label"`
}
