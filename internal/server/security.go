package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/streamcatch/streamcatch/internal/httputil"
)

type SecurityConfig struct {
	BaseURL string
	// StorageEndpoint serves signed poster images.
	StorageEndpoint string
}

// securityHeaders sets the CSP and hardening headers and puts a fresh script
// nonce in the request context. Posters may be absolute URLs on any https
// host and playback URLs come from the recording backend, so img-src and
// media-src allow https: in addition to storage.
func securityHeaders(cfg SecurityConfig) func(http.Handler) http.Handler {
	strictTransport := strings.HasPrefix(cfg.BaseURL, "https://")

	storage := ""
	if cfg.StorageEndpoint != "" {
		storage = " " + cfg.StorageEndpoint
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			nonce := httputil.GenerateNonce()
			ctx := httputil.ContextWithNonce(r.Context(), nonce)

			h := w.Header()
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=(), fullscreen=(self)")
			h.Set("Content-Security-Policy", fmt.Sprintf(
				"default-src 'self'; img-src 'self' data: https:%s; media-src 'self' blob: https:%s; script-src 'self' 'nonce-%s'; style-src 'self'; connect-src 'self'; form-action 'self'; frame-ancestors 'none'; base-uri 'self';",
				storage, storage, nonce,
			))

			if strictTransport {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
