// Package router wires the public API routes and applies the middleware
// chain.
package router

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/story-analytics/internal/analytics"
	gwmw "github.com/Adithya-Monish-Kumar-K/story-analytics/internal/gateway/middleware"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/internal/gateway/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/internal/generation"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/internal/tracking"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/metrics"
	pkgmw "github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/middleware"
)

// Handlers are the endpoint groups served by the API. Generate and Health
// may be nil.
type Handlers struct {
	Track     *tracking.Handler
	Analytics *analytics.Handler
	Generate  *generation.Handler
	Health    *health.Checker
}

// Options tune the middleware chain. Zero values disable the matching
// middleware.
type Options struct {
	Metrics        *metrics.Metrics
	Limiter        *ratelimit.Limiter
	RequestTimeout time.Duration
	CORS           gwmw.CORSConfig
}

// New builds the API handler.
//
// Route table:
//
//	POST   /track          → record a read event
//	GET    /summary        → catalog-wide report
//	GET    /story/{id}     → one story's report
//	POST   /generate       → generate and store a story
//	GET    /health/live    → liveness
//	GET    /health/ready   → readiness
//
// Middleware chain (outermost first):
//
//	RequestID → CORS → RateLimit → Timeout → Metrics → mux
func New(h Handlers, opts Options) http.Handler {
	mux := http.NewServeMux()

	if h.Health != nil {
		mux.HandleFunc("GET /health/live", h.Health.LiveHandler())
		mux.HandleFunc("GET /health/ready", h.Health.ReadyHandler())
	}

	h.Track.Register(mux)
	h.Analytics.Register(mux)
	if h.Generate != nil {
		h.Generate.Register(mux)
	}

	// Metrics wraps the mux directly: the mux sets r.Pattern on the
	// request it receives, which is the label Metrics reads.
	var chain http.Handler = mux
	if opts.Metrics != nil {
		chain = pkgmw.Metrics(opts.Metrics)(chain)
	}
	if opts.RequestTimeout > 0 {
		chain = pkgmw.Timeout(opts.RequestTimeout)(chain)
	}
	if opts.Limiter != nil {
		chain = gwmw.RateLimit(opts.Limiter, gwmw.TrackRequests)(chain)
	}
	if opts.CORS.AllowOrigins == nil {
		opts.CORS = gwmw.DefaultCORSConfig()
	}
	chain = gwmw.CORS(opts.CORS)(chain)
	chain = pkgmw.RequestID(chain)

	return chain
}
