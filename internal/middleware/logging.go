package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

type userIDKey struct{}

// requestUser is filled in by inner handlers once the caller is authenticated.
type requestUser struct {
	id string
}

// SetUserID records the authenticated user for the request log entry. It is
// a no-op outside NewLoggingMiddleware.
func SetUserID(ctx context.Context, userID string) {
	if u, ok := ctx.Value(userIDKey{}).(*requestUser); ok {
		u.id = userID
	}
}

// NewLoggingMiddleware logs one structured entry per request with method,
// path, status, duration_ms, request_id and, for authenticated requests,
// user_id. 5xx responses log at error level and 4xx at warn.
func NewLoggingMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			user := &requestUser{}

			next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), userIDKey{}, user)))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			attrs := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Float64("duration_ms", float64(time.Since(start).Nanoseconds())/float64(time.Millisecond)),
				slog.String("remote_addr", r.RemoteAddr),
			}
			if reqID := chimw.GetReqID(r.Context()); reqID != "" {
				attrs = append(attrs, slog.String("request_id", reqID))
			}
			if user.id != "" {
				attrs = append(attrs, slog.String("user_id", user.id))
			}

			level := slog.LevelInfo
			if status >= 500 {
				level = slog.LevelError
			} else if status >= 400 {
				level = slog.LevelWarn
			}

			logger.Log(r.Context(), level, "http_request", attrs...)
		})
	}
}
