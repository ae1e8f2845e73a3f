// Package health reports whether the api's dependencies answer. The store
// is required; the report cache and the delegated procedures only degrade
// the service when they fail.
package health

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/response"
)

type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// severity orders statuses so the report can take the worst one.
var severity = map[Status]int{StatusUp: 0, StatusDegraded: 1, StatusDown: 2}

// Check probes a single dependency.
type Check func(ctx context.Context) ComponentHealth

type ComponentHealth struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  time.Time                  `json:"timestamp"`
}

// PingCheck adapts a ping function into a Check. A failing ping reports
// onFailure, so optional dependencies can degrade instead of going down.
func PingCheck(ping func(ctx context.Context) error, onFailure Status) Check {
	return func(ctx context.Context) ComponentHealth {
		if err := ping(ctx); err != nil {
			return ComponentHealth{Status: onFailure, Message: err.Error()}
		}
		return ComponentHealth{Status: StatusUp}
	}
}

type registered struct {
	check     Check
	onTimeout Status
}

// Checker runs registered checks concurrently, each under CheckTimeout.
type Checker struct {
	CheckTimeout time.Duration

	mu     sync.RWMutex
	checks map[string]registered
	logger *slog.Logger
	now    func() time.Time
}

func NewChecker() *Checker {
	return &Checker{
		CheckTimeout: 2 * time.Second,
		checks:       make(map[string]registered),
		logger:       slog.Default().With("component", "health"),
		now:          time.Now,
	}
}

// Register adds or replaces a named check. A check still running after
// CheckTimeout is reported down.
func (c *Checker) Register(name string, check Check) {
	c.RegisterWithTimeoutStatus(name, check, StatusDown)
}

// RegisterWithTimeoutStatus is Register for optional dependencies, whose
// slowness should report onTimeout instead of down.
func (c *Checker) RegisterWithTimeoutStatus(name string, check Check, onTimeout Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = registered{check: check, onTimeout: onTimeout}
}

// Run executes every check and reports the worst component status.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	checks := make(map[string]registered, len(c.checks))
	for name, reg := range c.checks {
		checks[name] = reg
	}
	c.mu.RUnlock()
	sort.Strings(names)

	results := make([]ComponentHealth, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			results[i] = c.runOne(gctx, checks[name])
			return nil
		})
	}
	_ = g.Wait()

	report := Report{
		Status:     StatusUp,
		Components: make(map[string]ComponentHealth, len(names)),
		Timestamp:  c.now().UTC(),
	}
	for i, name := range names {
		report.Components[name] = results[i]
		if severity[results[i].Status] > severity[report.Status] {
			report.Status = results[i].Status
		}
	}
	return report
}

func (c *Checker) runOne(ctx context.Context, reg registered) ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, c.CheckTimeout)
	defer cancel()

	start := time.Now()
	done := make(chan ComponentHealth, 1)
	go func() { done <- reg.check(ctx) }()

	var result ComponentHealth
	select {
	case result = <-done:
	case <-ctx.Done():
		result = ComponentHealth{Status: reg.onTimeout, Message: "check timed out"}
	}
	result.Latency = time.Since(start).Round(time.Millisecond).String()
	return result
}

// LiveHandler answers liveness probes. It only proves the process serves
// HTTP.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.OK(w, map[string]string{"status": "alive"})
	}
}

// ReadyHandler answers readiness probes: 200 while nothing is down, 503
// otherwise. Both carry the full report.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.Run(r.Context())
		if report.Status == StatusDown {
			c.logger.Warn("readiness check failed", "components", report.Components)
			response.JSON(w, http.StatusServiceUnavailable, response.Envelope{Success: false, Data: report})
			return
		}
		response.OK(w, report)
	}
}
