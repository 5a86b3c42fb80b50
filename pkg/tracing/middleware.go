// Package tracing wraps the query engine's HTTP handlers in a span,
// replacing the teacher's hand-rolled Tracer/Span/Storage trio (which
// persisted spans to its own storage and exposed a query API over
// them) with real go.opentelemetry.io/otel spans: this engine has
// nowhere to store or query traces itself, so tracing here means
// emitting spans to whatever SpanProcessor the process registers
// (including the default no-op), not building a second storage tier.
package tracing

import (
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/chronosdb/chronosdb/pkg/querydriver")

// Middleware starts one server span per request, named "<method> <path>",
// and records the response status. It propagates an inbound
// traceparent header the same way the teacher's HTTPMiddleware did,
// via otel's global TextMapPropagator instead of a hand-rolled header
// parser.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagationCarrier{r.Header})

		ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.target", r.URL.Path),
			attribute.String("http.host", r.Host),
		)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r.WithContext(ctx))

		span.SetAttributes(attribute.Int("http.status_code", rw.statusCode))
		if rw.statusCode >= 500 {
			span.SetStatus(codes.Error, "HTTP "+strconv.Itoa(rw.statusCode))
		}
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// propagationCarrier adapts http.Header to otel's TextMapCarrier.
type propagationCarrier struct {
	h http.Header
}

func (c propagationCarrier) Get(key string) string { return c.h.Get(key) }
func (c propagationCarrier) Set(key, value string) { c.h.Set(key, value) }
func (c propagationCarrier) Keys() []string {
	keys := make([]string, 0, len(c.h))
	for k := range c.h {
		keys = append(keys, k)
	}
	return keys
}
