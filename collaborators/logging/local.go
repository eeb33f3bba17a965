package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// LocalClient is the logging collaborator's local backend: JSON-lines
// records appended to a file (or any io.Writer), dispatched off a bounded
// background queue so a slow disk never stalls the caller.
type LocalClient struct {
	worker *worker

	mu     sync.Mutex
	logger *slog.Logger
	file   *os.File
}

// NewLocalFileClient opens path for append (creating its directory if
// needed) and returns a Client that writes one JSON object per line, each
// carrying the call's correlation id.
func NewLocalFileClient(path string, cfg BackgroundConfig) (*LocalClient, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("logging: create log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("logging: open log file: %w", err)
	}
	return newLocalClient(file, cfg), nil
}

// NewLocalWriterClient wraps an arbitrary io.Writer, primarily for tests.
func NewLocalWriterClient(w io.Writer, cfg BackgroundConfig) *LocalClient {
	return newLocalClient(w, cfg)
}

func newLocalClient(w io.Writer, cfg BackgroundConfig) *LocalClient {
	if cfg.QueueSize == 0 {
		cfg = defaultBackgroundConfig()
	}
	c := &LocalClient{logger: slog.New(slog.NewJSONHandler(w, nil))}
	if f, ok := w.(*os.File); ok {
		c.file = f
	}
	c.worker = newWorker(cfg, c.write)
	return c
}

func (c *LocalClient) write(r record) {
	c.mu.Lock()
	defer c.mu.Unlock()

	attrs := make([]any, 0, len(r.fields)*2+2)
	if r.correlationID != "" {
		attrs = append(attrs, "correlation_id", r.correlationID)
	}
	for k, v := range r.fields {
		attrs = append(attrs, k, v)
	}
	c.logger.Log(context.Background(), r.level.slogLevel(), r.message, attrs...)

	if c.file != nil {
		_ = c.file.Sync()
	}
}

func (c *LocalClient) Log(level Level, message string, correlationID string, fields map[string]any) {
	c.worker.enqueue(record{level: level, message: message, correlationID: correlationID, fields: fields, at: time.Now()})
}

// Flush blocks until every currently queued record has been written, or ctx
// expires first.
func (c *LocalClient) Flush(ctx context.Context) error {
	for c.worker.pendingCount() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
	return nil
}

func (c *LocalClient) PendingCount() int { return c.worker.pendingCount() }
func (c *LocalClient) DroppedCount() int { return c.worker.droppedCount() }
func (c *LocalClient) IsConnected() bool { return true }

// Close drains the background worker and closes the underlying file, if
// any.
func (c *LocalClient) Close() error {
	c.worker.close()
	if c.file != nil {
		return c.file.Close()
	}
	return nil
}
