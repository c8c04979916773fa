package bus

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ricesearch/disaster-response/internal/pkg/errors"
)

// LoggedEvent is one line of the event log.
type LoggedEvent struct {
	Event     Event     `json:"event"`
	Topic     string    `json:"topic"`
	Timestamp time.Time `json:"timestamp"`
}

// EventLogger appends events to a JSON-lines file so a run can be
// inspected or replayed later.
type EventLogger struct {
	logPath string
	enabled bool

	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder
}

// NewEventLogger opens logPath for appending. A disabled logger accepts
// every call and writes nothing.
func NewEventLogger(logPath string, enabled bool) (*EventLogger, error) {
	l := &EventLogger{
		logPath: logPath,
		enabled: enabled,
	}
	if !enabled {
		return l, nil
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create event log directory: %w", err)
	}

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}

	l.file = file
	l.encoder = json.NewEncoder(file)
	return l, nil
}

// Log appends an event.
func (l *EventLogger) Log(topic string, event Event) error {
	if !l.enabled {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return errors.New(errors.CodeUnavailable, "event logger is closed")
	}

	entry := LoggedEvent{
		Event:     event,
		Topic:     topic,
		Timestamp: time.Now(),
	}
	if err := l.encoder.Encode(entry); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return l.file.Sync()
}

// Events returns logged events newer than since, oldest first. A
// positive limit caps the result. Malformed lines are skipped.
func (l *EventLogger) Events(since time.Time, limit int) ([]LoggedEvent, error) {
	return l.filter(func(e LoggedEvent) bool { return e.Timestamp.After(since) }, limit)
}

// RunEvents returns every logged event of one run, oldest first.
func (l *EventLogger) RunEvents(runID string) ([]LoggedEvent, error) {
	return l.filter(func(e LoggedEvent) bool { return e.Event.RunID == runID }, 0)
}

func (l *EventLogger) filter(keep func(LoggedEvent) bool, limit int) ([]LoggedEvent, error) {
	if !l.enabled {
		return nil, errors.New(errors.CodeUnavailable, "event logging is disabled")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	file, err := os.Open(l.logPath)
	if os.IsNotExist(err) {
		return []LoggedEvent{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}
	defer file.Close()

	const maxLine = 1024 * 1024
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxLine)

	events := []LoggedEvent{}
	for scanner.Scan() {
		var e LoggedEvent
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		if !keep(e) {
			continue
		}
		events = append(events, e)
		if limit > 0 && len(events) >= limit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan event log: %w", err)
	}

	return events, nil
}

// Replay publishes every event newer than since to b, in log order.
func (l *EventLogger) Replay(ctx context.Context, b Bus, since time.Time) error {
	events, err := l.Events(since, 0)
	if err != nil {
		return err
	}
	return republish(ctx, b, events)
}

// ReplayRun publishes the logged events of one run to b, in log order.
func (l *EventLogger) ReplayRun(ctx context.Context, b Bus, runID string) error {
	events, err := l.RunEvents(runID)
	if err != nil {
		return err
	}
	return republish(ctx, b, events)
}

func republish(ctx context.Context, b Bus, events []LoggedEvent) error {
	for _, e := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.Publish(ctx, e.Topic, e.Event); err != nil {
			return fmt.Errorf("failed to replay event %s: %w", e.Event.ID, err)
		}
	}
	return nil
}

// Path returns the log file location.
func (l *EventLogger) Path() string {
	return l.logPath
}

// IsEnabled returns true if the logger writes events.
func (l *EventLogger) IsEnabled() bool {
	return l.enabled
}

// Close closes the log file.
func (l *EventLogger) Close() error {
	if !l.enabled {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	l.encoder = nil
	if err != nil {
		return fmt.Errorf("failed to close event log: %w", err)
	}
	return nil
}
