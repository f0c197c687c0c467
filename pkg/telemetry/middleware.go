package telemetry

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"time"
)

// ErrHijackUnsupported is returned when the wrapped writer cannot be hijacked
var ErrHijackUnsupported = errors.New("response writer does not support hijacking")

// unmatchedRoute labels requests no route pattern matched
const unmatchedRoute = "unmatched"

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := sw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, ErrHijackUnsupported
	}
	conn, buf, err := h.Hijack()
	if err == nil {
		sw.status = http.StatusSwitchingProtocols
	}
	return conn, buf, err
}

func (sw *statusWriter) Flush() {
	if f, ok := sw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sw *statusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}

// NewMiddleware records request counts and latency by route pattern.
// It must wrap the *http.ServeMux directly: the mux stores the matched
// pattern on the request it receives.
func NewMiddleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sw, r)

			route := r.Pattern
			if route == "" {
				route = unmatchedRoute
			}
			m.Request(r.Method, route, sw.status, time.Since(start))
		})
	}
}
