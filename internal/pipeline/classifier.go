package pipeline

import (
	"fmt"

	"github.com/ricesearch/disaster-response/internal/model"
	"github.com/ricesearch/disaster-response/internal/pkg/errors"
	"github.com/ricesearch/disaster-response/internal/pkg/security"
	"github.com/ricesearch/disaster-response/internal/text"
)

// Prediction is the label set assigned to one message.
type Prediction struct {
	Message string   `json:"message"`
	Labels  []string `json:"labels"`
}

// Classifier assigns labels to new messages with a saved model.
type Classifier struct {
	model *model.TrainedModel
}

// LoadClassifier reads the model in modelDir. A nil analyzer uses the
// default tokenizer.
func LoadClassifier(modelDir string, analyzer text.Analyzer) (*Classifier, error) {
	storage := model.NewFileStorage(modelDir)
	if !storage.Exists() {
		return nil, errors.NotFoundError("model in " + modelDir)
	}
	return NewClassifier(storage, analyzer)
}

// NewClassifier loads the model held by storage. A nil analyzer uses the
// default tokenizer.
func NewClassifier(storage model.Storage, analyzer text.Analyzer) (*Classifier, error) {
	if !storage.Exists() {
		return nil, errors.NotFoundError("model")
	}

	if analyzer == nil {
		tok, err := text.New()
		if err != nil {
			return nil, err
		}
		analyzer = tok
	}

	m, err := storage.Load(analyzer)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{model: m}, nil
}

// Model returns the underlying model.
func (c *Classifier) Model() *model.TrainedModel {
	return c.model
}

// Classify predicts the labels of each message. Control characters are
// replaced before tokenizing; the returned predictions echo the input.
func (c *Classifier) Classify(messages []string) ([]Prediction, error) {
	if len(messages) == 0 {
		return nil, errors.EmptyInputError("no messages to classify")
	}

	docs := make([]string, len(messages))
	for i, msg := range messages {
		if err := security.ValidateMessage(msg, security.MaxMessageSize); err != nil {
			return nil, errors.Wrap(errors.CodeValidation, fmt.Sprintf("message %d", i), err)
		}
		docs[i] = security.SanitizeMessage(msg)
	}

	names, err := c.model.Classify(docs)
	if err != nil {
		return nil, err
	}

	out := make([]Prediction, len(messages))
	for i, msg := range messages {
		out[i] = Prediction{Message: msg, Labels: names[i]}
	}
	return out, nil
}
