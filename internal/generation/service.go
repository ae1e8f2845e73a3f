package generation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/story-analytics/internal/analytics"
	apperrors "github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/resilience"
)

const (
	defaultTemperature = 0.8
	defaultMaxTokens   = 2000
)

// Defaults fill in request parameters the caller left out.
type Defaults struct {
	Model        string
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
	// Timeout bounds one upstream call. Zero means no extra bound.
	Timeout time.Duration
}

// Service generates a story, stores it in the catalog and announces it.
type Service struct {
	completer Completer
	catalog   analytics.Catalog
	sink      analytics.EventSink
	breaker   *resilience.CircuitBreaker
	defaults  Defaults
	metrics   *metrics.Metrics
	now       func() time.Time
	logger    *slog.Logger
}

// NewService builds a Service. breaker, sink and m may be nil.
func NewService(completer Completer, catalog analytics.Catalog, breaker *resilience.CircuitBreaker, sink analytics.EventSink, defaults Defaults, m *metrics.Metrics) *Service {
	if defaults.Temperature <= 0 {
		defaults.Temperature = defaultTemperature
	}
	if defaults.MaxTokens <= 0 {
		defaults.MaxTokens = defaultMaxTokens
	}
	return &Service{
		completer: completer,
		catalog:   catalog,
		sink:      sink,
		breaker:   breaker,
		defaults:  defaults,
		metrics:   m,
		now:       time.Now,
		logger:    slog.Default().With("component", "story-generator"),
	}
}

// Generate runs one request end to end. Returned errors are classified
// AppErrors.
func (s *Service) Generate(ctx context.Context, req GenerateRequest, requestID string) (*GenerateResponse, error) {
	log := logger.FromContext(ctx)
	completion := s.completion(req)

	start := s.now()
	content, err := s.complete(ctx, completion)
	if s.metrics != nil {
		s.metrics.GenerationLatency.Observe(s.now().Sub(start).Seconds())
	}
	if err != nil {
		appErr := classify(err)
		log.Error("story generation failed",
			"model", completion.Model,
			"code", appErr.Code,
			"error", err,
		)
		s.observe(appErr.Code)
		return nil, appErr
	}

	title := ExtractTitle(content)
	story, err := s.catalog.CreateStory(ctx, analytics.NewStory{
		Title:    title,
		Filename: Filename(title),
		Content:  content,
	})
	if err != nil {
		log.Error("failed to save generated story", "title", title, "error", err)
		s.observe(apperrors.CodeInternalError)
		return nil, apperrors.Wrap(apperrors.ErrInternal, err, "Failed to save story")
	}

	if s.sink != nil {
		s.sink.Track(analytics.StoryEvent{
			Type:      analytics.EventStoryCreated,
			StoryID:   story.ID,
			Timestamp: story.CreatedAt,
			RequestID: requestID,
		})
	}
	s.observe("OK")
	log.Info("story generated",
		"story_id", story.ID,
		"title", story.Title,
		"model", completion.Model,
	)
	return &GenerateResponse{
		ID:        story.ID,
		Title:     story.Title,
		Content:   story.Content,
		CreatedAt: story.CreatedAt,
	}, nil
}

func (s *Service) completion(req GenerateRequest) Completion {
	c := Completion{
		Model:       s.defaults.Model,
		System:      s.defaults.SystemPrompt,
		Prompt:      req.Prompt,
		Temperature: s.defaults.Temperature,
		MaxTokens:   s.defaults.MaxTokens,
	}
	if req.Model != "" {
		c.Model = req.Model
	}
	if req.Temperature > 0 {
		c.Temperature = req.Temperature
	}
	if req.MaxTokens > 0 {
		c.MaxTokens = req.MaxTokens
	}
	return c
}

func (s *Service) complete(ctx context.Context, c Completion) (string, error) {
	call := func() (string, error) {
		return resilience.Timed(ctx, s.defaults.Timeout, "chat-completion", func(ctx context.Context) (string, error) {
			return s.completer.Complete(ctx, c)
		})
	}
	if s.breaker == nil {
		return call()
	}
	return resilience.Call(s.breaker, call)
}

func (s *Service) observe(code string) {
	if s.metrics != nil {
		s.metrics.GenerationsTotal.WithLabelValues(code).Inc()
	}
}

// classify maps an upstream failure onto the error taxonomy.
func classify(err error) *apperrors.AppError {
	var status *StatusError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Wrap(apperrors.ErrTimeout, err, "Story generation timed out")
	case errors.As(err, &status):
		return apperrors.Wrap(apperrors.ErrGenerationFailed, err, status.Error())
	case errors.Is(err, ErrUnavailable), errors.Is(err, resilience.ErrCircuitOpen):
		return apperrors.Wrap(apperrors.ErrGenerationDown, err, "Story generation service is unavailable")
	default:
		return apperrors.Wrap(apperrors.ErrInternal, err, "Failed to generate story")
	}
}
