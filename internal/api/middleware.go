package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5/middleware"
)

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"remote", r.RemoteAddr,
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// bearerAuth guards operations with a static bearer token. An unset token
// rejects every request with 503 so the endpoints are never left open.
func bearerAuth(api huma.API, token string) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		if token == "" {
			_ = huma.WriteErr(api, ctx, http.StatusServiceUnavailable, "User API token is not configured.")
			return
		}

		scheme, supplied, _ := strings.Cut(ctx.Header("Authorization"), " ")
		if !strings.EqualFold(scheme, "bearer") || supplied == "" {
			_ = huma.WriteErr(api, ctx, http.StatusUnauthorized, "Missing or invalid authorization token.")
			return
		}
		if subtle.ConstantTimeCompare([]byte(supplied), []byte(token)) != 1 {
			slog.Warn("user API token rejected", "path", ctx.URL().Path)
			_ = huma.WriteErr(api, ctx, http.StatusUnauthorized, "Invalid authorization token.")
			return
		}
		next(ctx)
	}
}
