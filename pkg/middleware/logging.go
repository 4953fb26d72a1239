package middleware

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// RequestLogger returns middleware that logs each request with its outcome.
// Requests under /api/tenants/ also carry the tenant id so log lines
// correlate with the tenant-scoped queries they triggered. Server errors log
// at WARN, everything else at DEBUG. Pass a nil logger to disable logging.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logger == nil {
			return next
		}
		log := logger.Named("http")

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", wrapped.statusCode),
				zap.Int("bytes", wrapped.bytes),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr),
			}
			if tenantID := tenantFromPath(r.URL.Path); tenantID != "" {
				fields = append(fields, zap.String("tenant_id", tenantID))
			}

			if wrapped.statusCode >= http.StatusInternalServerError {
				log.Warn("HTTP request", fields...)
			} else {
				log.Debug("HTTP request", fields...)
			}
		})
	}
}

// tenantFromPath pulls the tenant segment out of /api/tenants/{tid}/...
// paths. Route values are not visible here because this middleware runs
// outside the mux.
func tenantFromPath(path string) string {
	const prefix = "/api/tenants/"
	if !strings.HasPrefix(path, prefix) {
		return ""
	}
	rest := strings.TrimPrefix(path, prefix)
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

// responseWriter captures the status code and byte count, and swallows
// duplicate WriteHeader calls from buggy handlers.
type responseWriter struct {
	http.ResponseWriter
	statusCode    int
	bytes         int
	headerWritten bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.headerWritten {
		return
	}
	rw.statusCode = code
	rw.headerWritten = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.headerWritten {
		rw.WriteHeader(rw.statusCode)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += n
	return n, err
}
