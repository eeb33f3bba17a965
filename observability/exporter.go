package observability

import (
	"fmt"
	"io"
)

// ConsoleExporter writes one line per completed span to Out. Nothing in
// this module selects it automatically; a caller passes it to StartSpan.
type ConsoleExporter struct {
	Out io.Writer
}

func (c ConsoleExporter) Export(s Span) {
	fmt.Fprintf(c.Out, "span=%s trace_id=%s span_id=%s parent_span_id=%s duration=%s correlation_id=%s\n",
		s.Name, s.Context.TraceID, s.Context.SpanID, s.Context.ParentSpanID, s.Duration(), s.Context.CorrelationID())
}
