package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/alpyxn/moviestar/internal/constants"
	"github.com/alpyxn/moviestar/internal/models"
	"github.com/alpyxn/moviestar/pkg/logger"
)

// maxRequestIDLength caps request ids accepted from clients.
const maxRequestIDLength = 64

// RequestLogger assigns every request an id, echoes it in X-Request-ID and
// makes it the correlation id forwarded to the catalog API. One log line is
// written per request, except for health probes.
func (m *Stack) RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		id := r.Header.Get(constants.HeaderXRequestID)
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.NewString()
		}
		w.Header().Set(constants.HeaderXRequestID, id)
		r = r.WithContext(logger.SetCorrelationID(r.Context(), id))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		if strings.HasPrefix(r.URL.Path, constants.HealthPathPrefix) {
			return
		}

		elapsed := time.Since(start)
		entry := logger.WithCorrelationID(r.Context(), m.logger).WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"bytes":       rec.written,
			"duration_ms": elapsed.Milliseconds(),
			"client_ip":   m.clientIP(r),
			"user_agent":  r.UserAgent(),
		})
		if r.URL.RawQuery != "" {
			entry = entry.WithField("query", r.URL.RawQuery)
		}

		switch {
		case rec.status >= http.StatusInternalServerError:
			entry.Error("HTTP request failed")
		case rec.status >= http.StatusBadRequest:
			entry.Warn("HTTP request rejected")
		default:
			entry.Info("HTTP request processed")
		}
	})
}

// Recovery turns a handler panic into a 500 with a logged stack trace.
// http.ErrAbortHandler is re-raised so net/http can abort the response.
func (m *Stack) Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if v == http.ErrAbortHandler { //nolint:errorlint // sentinel value comparison of a panic
				panic(v)
			}

			logger.WithCorrelationID(r.Context(), m.logger).WithFields(logrus.Fields{
				"method": r.Method,
				"path":   r.URL.Path,
				"panic":  fmt.Sprint(v),
				"stack":  string(debug.Stack()),
			}).Error("Panic recovered")

			m.writeError(w, models.NewServerError("An unexpected error occurred"))
		}()

		next.ServeHTTP(w, r)
	})
}

// statusRecorder remembers the status code and body size of a response.
type statusRecorder struct {
	http.ResponseWriter

	status  int
	written int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += n
	return n, err
}

// Flush lets streamed proxy responses through the wrapper.
func (rw *statusRecorder) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
