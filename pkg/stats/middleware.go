package stats

import (
	"net/http"
	"regexp"
	"strconv"
	"time"
)

// Registry holds the counters and histograms Middleware writes to and
// the stats HTTP handler reads back.
type Registry struct {
	RequestsTotal   *Counter
	RequestDuration *Histogram
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{RequestsTotal: NewCounter(), RequestDuration: NewHistogram()}
}

// Middleware wraps next, recording a request count and latency
// observation per (method, path, status), with path cardinality
// collapsed the way normalizePath does for the teacher's SDK
// middleware: numeric and UUID path segments fold into one bucket so a
// query engine's endpoint set doesn't grow unbounded per request.
func (reg *Registry) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)
		status := strconv.Itoa(rw.statusCode)

		reg.RequestsTotal.Inc("method", r.Method, "path", path, "status", status)
		reg.RequestDuration.Observe(duration, "method", r.Method, "path", path, "status", status)
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

var (
	numericSegment = regexp.MustCompile(`/\d+`)
	uuidSegment    = regexp.MustCompile(`/[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
)

func normalizePath(path string) string {
	path = uuidSegment.ReplaceAllString(path, "/{id}")
	path = numericSegment.ReplaceAllString(path, "/{id}")
	return path
}
