package middleware

import (
	"math"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/story-analytics/internal/gateway/ratelimit"
	apperrors "github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/logger"
	pkgmw "github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/response"
)

// RateLimit limits requests matched by applies, keyed by the peer address.
// Forwarding headers are not trusted here. Other requests pass through
// untouched.
func RateLimit(limiter *ratelimit.Limiter, applies func(r *http.Request) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !applies(r) {
				next.ServeHTTP(w, r)
				return
			}
			client := pkgmw.RemoteIP(r)
			if !limiter.Allow(client) {
				retry := int(math.Ceil(limiter.RetryAfter().Seconds()))
				w.Header().Set("Retry-After", strconv.Itoa(max(retry, 1)))
				logger.FromContext(r.Context()).Warn("rate limit exceeded",
					"client", client,
					"path", r.URL.Path,
				)
				response.Error(w, apperrors.New(apperrors.ErrRateLimited, "Too many requests, slow down"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// TrackRequests matches POST /track.
func TrackRequests(r *http.Request) bool {
	return r.Method == http.MethodPost && r.URL.Path == "/track"
}
