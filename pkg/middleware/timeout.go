package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/response"
)

// Timeout bounds handler execution. When the deadline passes before the
// handler has written anything, the client receives REQUEST_TIMEOUT and any
// later writes from the handler are discarded.
//
// The handler runs on its own goroutine and sees a private header map, which
// is copied to the real writer on its first write. Only the goroutine holding
// tw.mu touches the real writer.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			done := make(chan struct{})
			tw := &timeoutWriter{w: w, h: make(http.Header), ctx: ctx}
			go func() {
				next.ServeHTTP(tw, r.WithContext(ctx))
				close(done)
			}()
			select {
			case <-done:
			case <-ctx.Done():
			}

			tw.mu.Lock()
			defer tw.mu.Unlock()
			if ctx.Err() != nil {
				tw.timedOut = true
			}
			switch {
			case tw.written:
			case tw.timedOut:
				slog.Warn("request timed out", "method", r.Method, "path", r.URL.Path, "timeout", timeout)
				response.Error(w, apperrors.New(apperrors.ErrTimeout, "request timed out"))
			default:
				// Headers set without a body still reach the client.
				tw.copyHeaders()
			}
		})
	}
}

type timeoutWriter struct {
	w        http.ResponseWriter
	h        http.Header
	ctx      context.Context
	mu       sync.Mutex
	written  bool
	timedOut bool
}

func (tw *timeoutWriter) Header() http.Header {
	return tw.h
}

func (tw *timeoutWriter) WriteHeader(code int) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.expired() || tw.written {
		return
	}
	tw.commit(code)
}

func (tw *timeoutWriter) Write(b []byte) (int, error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.expired() {
		return 0, http.ErrHandlerTimeout
	}
	if !tw.written {
		tw.commit(http.StatusOK)
	}
	return tw.w.Write(b)
}

// expired reports whether the deadline has passed. Writes after it are
// dropped even if the middleware has not yet claimed the response.
func (tw *timeoutWriter) expired() bool {
	return tw.timedOut || tw.ctx.Err() != nil
}

// commit sends the buffered headers and status. Callers hold tw.mu.
func (tw *timeoutWriter) commit(code int) {
	tw.written = true
	tw.copyHeaders()
	tw.w.WriteHeader(code)
}

func (tw *timeoutWriter) copyHeaders() {
	dst := tw.w.Header()
	for k, vv := range tw.h {
		dst[k] = append([]string(nil), vv...)
	}
}
