package http

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strings"

	"github.com/bnema/transcoder/internal/adapter/http/ratelimit"
	"github.com/bnema/transcoder/internal/infrastructure/logger"
)

const APIKeyHeader = "X-API-Key"

type AuthService interface {
	Enabled() bool
	ValidateAPIKey(key string) error
}

// AuthMiddleware rejects requests without a valid X-API-Key when a key is
// configured. Clients that keep presenting bad keys are locked out.
func AuthMiddleware(authSvc AuthService, limiter *ratelimit.KeyRateLimiter, behindProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !authSvc.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			clientID := clientIP(r, behindProxy)
			if blocked, remaining := limiter.Blocked(clientID); blocked {
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(math.Ceil(remaining.Seconds()))))
				writeJSONError(w, "too many failed attempts", http.StatusTooManyRequests)
				return
			}

			if err := authSvc.ValidateAPIKey(r.Header.Get(APIKeyHeader)); err != nil {
				if limiter.Fail(clientID) {
					logger.Warn.Printf("blocking %s after repeated invalid API keys", logger.SanitizeForLog(clientID))
				}
				writeJSONError(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			limiter.Reset(clientID)
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request, behindProxy bool) string {
	if behindProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			return strings.TrimSpace(first)
		}
		if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
			return strings.TrimSpace(realIP)
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
