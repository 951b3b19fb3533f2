package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

// FileLogger writes audit events as JSON lines through logrus.
type FileLogger struct {
	mu   sync.Mutex
	file *os.File
	log  *logrus.Logger
}

// NewFileLogger creates a file-based audit logger appending to
// <dir>/audit.log.
func NewFileLogger(dir string) (*FileLogger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	file, err := os.OpenFile(filepath.Join(dir, "audit.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}

	log := logrus.New()
	log.SetOutput(file)
	log.SetFormatter(&logrus.JSONFormatter{})

	return &FileLogger{file: file, log: log}, nil
}

// Log implements Logger.
func (l *FileLogger) Log(ctx context.Context, event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	fields := logrus.Fields{
		"id":         event.ID,
		"event_type": event.Type,
		"status":     event.Status,
		"timestamp":  event.Timestamp,
	}
	if event.Actor != "" {
		fields["actor"] = event.Actor
	}
	if event.Client != "" {
		fields["client"] = event.Client
	}
	if event.Action != "" {
		fields["action"] = event.Action
	}
	if event.Resource != "" {
		fields["resource"] = event.Resource
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}

	l.log.WithFields(fields).Info(event.Message)
	return nil
}

// Close implements Logger.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
