// Package model holds the trained classifier and its on-disk artifact.
package model

import (
	"time"

	"github.com/ricesearch/disaster-response/internal/evaluation"
	"github.com/ricesearch/disaster-response/internal/features"
	"github.com/ricesearch/disaster-response/internal/forest"
	"github.com/ricesearch/disaster-response/internal/pkg/errors"
	"github.com/ricesearch/disaster-response/internal/search"
)

// TrainedModel is a fitted vectorizer plus one forest per label. It is not
// modified after construction.
type TrainedModel struct {
	RunID      string
	Labels     []string
	Vectorizer *features.Vectorizer
	Forest     *forest.MultiOutput

	Params     search.Params
	Trees      int
	Seed       int64
	Scoring    string
	CVScore    float64
	Candidates []search.CandidateResult

	Evaluation *evaluation.Summary
	TrainedAt  time.Time
}

// Validate checks that the parts of the model agree with each other.
func (m *TrainedModel) Validate() error {
	if m.Vectorizer == nil || !m.Vectorizer.Fitted() {
		return errors.NotFittedError("model vectorizer")
	}
	if m.Forest == nil {
		return errors.NotFittedError("model forest")
	}
	if len(m.Labels) == 0 {
		return errors.ValidationError("model has no labels")
	}
	if m.Forest.Labels() != len(m.Labels) {
		return errors.ValidationError("model forest count does not match label count")
	}
	return nil
}

// Predict returns a docs x labels matrix of 0/1 predictions.
func (m *TrainedModel) Predict(docs []string) ([][]int, error) {
	x, err := m.Vectorizer.Transform(docs)
	if err != nil {
		return nil, err
	}
	return m.Forest.Predict(x), nil
}

// Classify returns the names of the labels predicted for each doc.
func (m *TrainedModel) Classify(docs []string) ([][]string, error) {
	pred, err := m.Predict(docs)
	if err != nil {
		return nil, err
	}

	out := make([][]string, len(pred))
	for i, row := range pred {
		names := []string{}
		for j, v := range row {
			if v == 1 {
				names = append(names, m.Labels[j])
			}
		}
		out[i] = names
	}
	return out, nil
}
