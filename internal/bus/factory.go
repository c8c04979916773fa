package bus

import (
	"fmt"
	"strings"

	"github.com/ricesearch/disaster-response/internal/config"
	"github.com/ricesearch/disaster-response/internal/pkg/errors"
	"github.com/ricesearch/disaster-response/internal/pkg/logger"
)

// NewBus creates a Bus from configuration. When the event log is enabled
// the bus is wrapped so every published event is also appended to disk.
func NewBus(cfg config.BusConfig, log *logger.Logger) (Bus, error) {
	if log == nil {
		log = logger.Discard()
	}

	var inner Bus
	switch strings.ToLower(cfg.Type) {
	case "memory", "":
		inner = NewMemoryBus(log)

	case "kafka":
		brokers := ParseKafkaBrokers(cfg.KafkaBrokers)
		if len(brokers) == 0 {
			return nil, errors.New(errors.CodeValidation, "kafka brokers not configured")
		}

		consumerGroup := cfg.KafkaGroup
		if consumerGroup == "" {
			consumerGroup = "disaster-response"
		}

		kb, err := NewKafkaBus(KafkaConfig{
			Brokers:       brokers,
			ConsumerGroup: consumerGroup,
			ClientID:      "disaster-response-bus",
		}, log)
		if err != nil {
			return nil, err
		}
		inner = kb

	default:
		return nil, errors.New(errors.CodeValidation, fmt.Sprintf("unknown bus type: %s", cfg.Type))
	}

	if !cfg.EventLogEnabled {
		return inner, nil
	}

	eventLogger, err := NewEventLogger(cfg.EventLogPath, true)
	if err != nil {
		inner.Close()
		return nil, err
	}
	return NewLoggedBus(inner, eventLogger, log), nil
}
