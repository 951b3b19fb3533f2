package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log records an audit event.
	Log(ctx context.Context, event *Event) error

	// Close flushes and releases the logger's resources.
	Close() error
}

// NewEvent builds an event with an ID and timestamp filled in.
func NewEvent(eventType EventType, status EventStatus) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		Status:    status,
	}
}

// NopLogger discards all events. Used when auditing is not configured.
type NopLogger struct{}

func (NopLogger) Log(ctx context.Context, event *Event) error { return nil }

func (NopLogger) Close() error { return nil }

// MultiLogger fans events out to several loggers. The first error wins but
// every logger still sees the event.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a fan-out logger.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

// Log implements Logger.
func (m *MultiLogger) Log(ctx context.Context, event *Event) error {
	var firstErr error
	for _, l := range m.loggers {
		if err := l.Log(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close implements Logger.
func (m *MultiLogger) Close() error {
	var firstErr error
	for _, l := range m.loggers {
		if err := l.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
