package middleware

import (
	"net/http"
	"time"

	"github.com/chatline/internal/logger"
)

// RequestLog logs every HTTP request: method, path and duration. Logging is
// asynchronous and does not block the handler.
func RequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		defer logger.DeferLogDuration("http "+r.Method+" "+r.URL.Path, start)()
		next.ServeHTTP(w, r)
	})
}
