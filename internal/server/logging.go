package server

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/streamcatch/streamcatch/internal/session"
)

func quietPath(path string) bool {
	return path == "/api/health" || path == "/metrics" || strings.HasPrefix(path, "/static/")
}

// slogMiddleware writes one access log line per request. It runs inside the
// session middleware so the line carries the user id.
func slogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if quietPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", r.RemoteAddr,
		}
		if st, ok := session.Lookup(r.Context()); ok && st.User != nil {
			attrs = append(attrs, "user_id", st.User.ID)
		}
		slog.InfoContext(r.Context(), "http request", attrs...)
	})
}
