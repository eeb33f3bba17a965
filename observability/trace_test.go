package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func deterministicTraceID(b byte) string {
	id := make([]byte, 16)
	for i := range id {
		id[i] = b
	}
	return hexEncode(id)
}

func deterministicSpanID(b byte) string {
	id := make([]byte, 8)
	for i := range id {
		id[i] = b
	}
	return hexEncode(id)
}

func TestParseTraceparentRoundTrip(t *testing.T) {
	header := "00-" + deterministicTraceID(0xAB) + "-" + deterministicSpanID(0xCD) + "-01"

	tc, err := ParseTraceparent(header)
	require.NoError(t, err)
	assert.True(t, tc.Sampled)
	assert.Equal(t, header, tc.Traceparent())
}

func TestParseTraceparentRejectsAllZeroTraceID(t *testing.T) {
	header := "00-" + deterministicTraceID(0x00) + "-" + deterministicSpanID(0xCD) + "-01"

	_, err := ParseTraceparent(header)
	assert.Error(t, err)
}

func TestParseTraceparentRejectsWrongVersion(t *testing.T) {
	header := "01-" + deterministicTraceID(0xAB) + "-" + deterministicSpanID(0xCD) + "-01"

	_, err := ParseTraceparent(header)
	assert.Error(t, err)
}

func TestParseTracestateRoundTrip(t *testing.T) {
	state := ParseTracestate("vendor1=value1,vendor2=value2")
	assert.Equal(t, "value1", state["vendor1"])
	assert.Equal(t, "value2", state["vendor2"])
}

func TestCorrelationIDIsTraceIDPrefix(t *testing.T) {
	header := "00-" + deterministicTraceID(0xAB) + "-" + deterministicSpanID(0xCD) + "-01"
	tc, err := ParseTraceparent(header)
	require.NoError(t, err)

	assert.Equal(t, deterministicTraceID(0xAB)[:16], tc.CorrelationID())
}

func TestNewChildSpanInheritsTraceID(t *testing.T) {
	parent, err := NewRootSpan(true)
	require.NoError(t, err)

	child, err := NewChildSpan(parent)
	require.NoError(t, err)

	assert.Equal(t, parent.TraceID, child.TraceID)
	assert.Equal(t, parent.SpanID, child.ParentSpanID)
	assert.NotEqual(t, parent.SpanID, child.SpanID)
}
