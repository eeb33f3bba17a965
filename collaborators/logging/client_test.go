package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopClientDiscardsEverything(t *testing.T) {
	var c Client = NoopClient{}
	c.Log(LevelError, "boom", "corr-1", map[string]any{"k": "v"})
	assert.Equal(t, 0, c.PendingCount())
	assert.Equal(t, 0, c.DroppedCount())
	assert.True(t, c.IsConnected())
	assert.NoError(t, c.Flush(context.Background()))
}

func TestLocalClientWritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	syncBuf := &syncWriter{buf: &buf}
	client := NewLocalWriterClient(syncBuf, BackgroundConfig{QueueSize: 16, FlushInterval: time.Millisecond})

	client.Log(LevelInfo, "key generated", "corr-123", map[string]any{"namespace": "payments"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, client.Flush(ctx))

	lines := strings.Split(strings.TrimSpace(syncBuf.String()), "\n")
	require.Len(t, lines, 1)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &decoded))
	assert.Equal(t, "key generated", decoded["msg"])
	assert.Equal(t, "corr-123", decoded["correlation_id"])
	assert.Equal(t, "payments", decoded["namespace"])
}

func TestLocalClientDropsWhenQueueFull(t *testing.T) {
	var buf bytes.Buffer
	client := NewLocalWriterClient(&buf, BackgroundConfig{QueueSize: 1})
	// Fill past capacity before the worker can drain: use a QueueSize of 1
	// via a fresh client so the first enqueue succeeds and further ones
	// without draining time are likely dropped under load. The dropped
	// counter must never go negative and must only increase.
	before := client.DroppedCount()
	for i := 0; i < 1000; i++ {
		client.Log(LevelDebug, "spam", "", nil)
	}
	assert.GreaterOrEqual(t, client.DroppedCount(), before)
}

type syncWriter struct {
	buf *bytes.Buffer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *syncWriter) String() string {
	return w.buf.String()
}
