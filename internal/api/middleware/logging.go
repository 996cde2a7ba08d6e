package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"dealflow/internal/pkg/errors"
	"dealflow/internal/platform/metrics"
)

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.wroteHeader {
		return
	}
	r.status = code
	r.wroteHeader = true
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	return r.ResponseWriter.Write(b)
}

// RequestLogger logs every request, counts it, and turns panics into 500 problems.
func RequestLogger(log zerolog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			defer func() {
				if p := recover(); p != nil {
					log.Error().
						Str("panic", fmt.Sprint(p)).
						Str("stack", string(debug.Stack())).
						Str("path", r.URL.Path).
						Msg("handler panicked")
					// Once the status line is out the client gets a truncated response instead.
					if !rec.wroteHeader {
						rec.status = http.StatusInternalServerError
						errors.Internal(w)
					}
				}

				m.HTTPRequests.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()

				event := log.Info()
				if rec.status >= 500 {
					event = log.Error()
				}
				event.
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", rec.status).
					Dur("duration", time.Since(start)).
					Str("remote_addr", r.RemoteAddr).
					Msg("request")
			}()

			next.ServeHTTP(rec, r)
		})
	}
}
