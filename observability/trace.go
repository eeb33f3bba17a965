// Package observability is the substrate shared by the key service and the
// primitive engines: W3C trace-context propagation, correlation ids, and
// Prometheus-exposed counters and histograms labelled by outcome and error
// code.
package observability

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	oteltrace "go.opentelemetry.io/otel/trace"
)

// TraceContext is a parsed W3C traceparent header plus its associated
// tracestate. Trace and span ids are represented with the OpenTelemetry
// trace package's fixed-width types so they interoperate with any exporter
// built against it, even though parsing/validation follows this service's
// own rules rather than otel's propagator.
type TraceContext struct {
	TraceID      oteltrace.TraceID
	SpanID       oteltrace.SpanID
	ParentSpanID oteltrace.SpanID
	Sampled      bool
	State        map[string]string
}

// ParseTraceparent parses a W3C traceparent of the form
// "00-<32hex>-<16hex>-<01|00>". It rejects any other version byte, an
// all-zero trace id, an all-zero span id, or a header that is too short.
func ParseTraceparent(header string) (TraceContext, error) {
	parts := strings.Split(header, "-")
	if len(parts) != 4 {
		return TraceContext{}, fmt.Errorf("traceparent: expected 4 fields, got %d", len(parts))
	}
	version, traceIDHex, spanIDHex, flags := parts[0], parts[1], parts[2], parts[3]
	if version != "00" {
		return TraceContext{}, fmt.Errorf("traceparent: unsupported version %q", version)
	}
	if len(traceIDHex) != 32 {
		return TraceContext{}, fmt.Errorf("traceparent: trace id must be 32 hex chars")
	}
	if len(spanIDHex) != 16 {
		return TraceContext{}, fmt.Errorf("traceparent: span id must be 16 hex chars")
	}
	if len(flags) != 2 {
		return TraceContext{}, fmt.Errorf("traceparent: flags must be 2 hex chars")
	}
	traceID, err := oteltrace.TraceIDFromHex(traceIDHex)
	if err != nil {
		return TraceContext{}, fmt.Errorf("traceparent: invalid trace id: %w", err)
	}
	if !traceID.IsValid() {
		return TraceContext{}, fmt.Errorf("traceparent: all-zero trace id")
	}
	spanID, err := oteltrace.SpanIDFromHex(spanIDHex)
	if err != nil {
		return TraceContext{}, fmt.Errorf("traceparent: invalid span id: %w", err)
	}
	if !spanID.IsValid() {
		return TraceContext{}, fmt.Errorf("traceparent: all-zero span id")
	}
	sampled := flags[1] == '1'
	return TraceContext{TraceID: traceID, SpanID: spanID, Sampled: sampled}, nil
}

// ParseTracestate parses a W3C tracestate header of the form
// "key1=value1,key2=value2" into a map, trimming whitespace around keys and
// values. An empty header yields an empty, non-nil map.
func ParseTracestate(header string) map[string]string {
	state := make(map[string]string)
	if header == "" {
		return state
	}
	for _, pair := range strings.Split(header, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		state[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}
	return state
}

// Traceparent renders tc back to its W3C header form.
func (tc TraceContext) Traceparent() string {
	flag := "00"
	if tc.Sampled {
		flag = "01"
	}
	return fmt.Sprintf("00-%s-%s-%s", tc.TraceID, tc.SpanID, flag)
}

// Tracestate renders tc.State back to its W3C header form.
func (tc TraceContext) Tracestate() string {
	if len(tc.State) == 0 {
		return ""
	}
	pairs := make([]string, 0, len(tc.State))
	for k, v := range tc.State {
		pairs = append(pairs, k+"="+v)
	}
	return strings.Join(pairs, ",")
}

// CorrelationID is the first 16 hex characters of the trace id, the short
// opaque string attached to every error, log, and metric for a request.
func (tc TraceContext) CorrelationID() string {
	return tc.TraceID.String()[:16]
}

// NewChildSpan derives a child span context from parent: it inherits the
// parent's trace id, generates a fresh span id, records the parent's span
// id, and carries over tracestate.
func NewChildSpan(parent TraceContext) (TraceContext, error) {
	spanID, err := newSpanID()
	if err != nil {
		return TraceContext{}, err
	}
	return TraceContext{
		TraceID:      parent.TraceID,
		SpanID:       spanID,
		ParentSpanID: parent.SpanID,
		Sampled:      parent.Sampled,
		State:        parent.State,
	}, nil
}

// NewRootSpan starts a fresh trace: a new random trace id and span id, with
// no parent.
func NewRootSpan(sampled bool) (TraceContext, error) {
	traceID, err := newTraceID()
	if err != nil {
		return TraceContext{}, err
	}
	spanID, err := newSpanID()
	if err != nil {
		return TraceContext{}, err
	}
	return TraceContext{TraceID: traceID, SpanID: spanID, Sampled: sampled, State: map[string]string{}}, nil
}

func newTraceID() (oteltrace.TraceID, error) {
	var id oteltrace.TraceID
	if _, err := rand.Read(id[:]); err != nil {
		return id, fmt.Errorf("generate trace id: %w", err)
	}
	return id, nil
}

func newSpanID() (oteltrace.SpanID, error) {
	var id oteltrace.SpanID
	if _, err := rand.Read(id[:]); err != nil {
		return id, fmt.Errorf("generate span id: %w", err)
	}
	return id, nil
}

// hexEncode is used by tests to construct deterministic ids without going
// through the CSPRNG.
func hexEncode(b []byte) string {
	return hex.EncodeToString(b)
}
