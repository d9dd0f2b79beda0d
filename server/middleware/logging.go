package middleware

import (
	"net/http"
	"time"

	"github.com/kbukum/scribe/logger"
)

// SlowRequest marks requests that take longer than this. Event streams are
// never marked.
const SlowRequest = 2 * time.Second

var quietPaths = map[string]bool{"/health": true, "/info": true}

// RequestLogger logs every request with method, path, status and duration.
// Health and info probes are not logged.
func RequestLogger(log *logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if quietPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			sw := newStatusWriter(w)
			next.ServeHTTP(sw, r)
			elapsed := time.Since(start)

			fields := logger.Fields(
				"method", r.Method,
				"path", r.URL.Path,
				logger.FieldStatus, sw.status,
				logger.FieldDuration, elapsed.Milliseconds(),
			)
			if id := r.Header.Get(HeaderRequestID); id != "" {
				fields[logger.FieldRequestID] = id
			}
			if elapsed > SlowRequest && sw.Header().Get("Content-Type") != "text/event-stream" {
				fields["slow"] = true
			}

			switch {
			case sw.status >= 500:
				log.Error("Request completed", fields)
			case sw.status >= 400:
				log.Warn("Request completed", fields)
			default:
				log.Debug("Request completed", fields)
			}
		})
	}
}
