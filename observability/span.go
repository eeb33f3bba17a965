package observability

import "time"

// SpanKind mirrors the coarse kind tagging used by most tracing exporters.
type SpanKind int

const (
	SpanKindInternal SpanKind = iota
	SpanKindServer
	SpanKindClient
)

// Span is a single timed unit of work carrying a TraceContext. Export is
// delegated to a registered Exporter; Span itself only accumulates
// attributes and timing.
type Span struct {
	Name       string
	Kind       SpanKind
	Context    TraceContext
	Attributes map[string]string
	start      time.Time
	end        time.Time
	ended      bool
	exporter   Exporter
}

// Exporter receives completed spans. Console and no-op implementations are
// provided; a downstream collector implementation is left to the embedding
// façade.
type Exporter interface {
	Export(Span)
}

// StartSpan begins a new span under ctx, auto-setting a correlation_id
// attribute.
func StartSpan(name string, kind SpanKind, ctx TraceContext, exporter Exporter) *Span {
	s := &Span{
		Name:       name,
		Kind:       kind,
		Context:    ctx,
		Attributes: map[string]string{"correlation_id": ctx.CorrelationID()},
		start:      time.Now(),
		exporter:   exporter,
	}
	return s
}

// SetAttribute records a string attribute on the span.
func (s *Span) SetAttribute(key, value string) {
	s.Attributes[key] = value
}

// SetCorrelationID overrides the auto-set correlation_id attribute.
func (s *Span) SetCorrelationID(id string) {
	s.Attributes["correlation_id"] = id
}

// Duration returns the span's elapsed time; valid only after End.
func (s *Span) Duration() time.Duration {
	return s.end.Sub(s.start)
}

// End marks the span complete and exports it, if an exporter was supplied.
// It is safe to call more than once; only the first call has effect.
func (s *Span) End() {
	if s.ended {
		return
	}
	s.end = time.Now()
	s.ended = true
	if s.exporter != nil {
		s.exporter.Export(*s)
	}
}

// NoopExporter discards every span.
type NoopExporter struct{}

func (NoopExporter) Export(Span) {}
