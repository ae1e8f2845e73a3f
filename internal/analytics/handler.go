package analytics

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/story-analytics/internal/analytics/cache"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/internal/period"
	apperrors "github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/response"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/tracing"
)

type HandlerConfig struct {
	DefaultLimit int
	MaxLimit     int
	Sampler      tracing.Sampler
}

type Handler struct {
	aggregator *Aggregator
	catalog    Catalog
	cache      *cache.ReportCache
	cfg        HandlerConfig
	logger     *slog.Logger
}

// NewHandler wires the report endpoints. reports may be nil, in which case
// every request is computed.
func NewHandler(aggregator *Aggregator, catalog Catalog, reports *cache.ReportCache, cfg HandlerConfig) *Handler {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 10
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = 100
	}
	return &Handler{
		aggregator: aggregator,
		catalog:    catalog,
		cache:      reports,
		cfg:        cfg,
		logger:     logger.WithComponent("analytics-handler"),
	}
}

// Register mounts the handlers on mux. Methods are checked by the handlers
// so that a wrong method yields the JSON METHOD_NOT_ALLOWED envelope.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/summary", h.Summary)
	mux.HandleFunc("/story/{id}", h.StoryDetail)
	mux.HandleFunc("/story/", h.StoryDetail)
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		response.Error(w, apperrors.Newf(apperrors.ErrMethodNotAllowed, "method %s not allowed", r.Method))
		return
	}
	limit, err := h.parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		response.Error(w, err)
		return
	}
	window := period.Parse(r.URL.Query().Get("period"), period.SummaryDefault)

	ctx, span := h.cfg.Sampler.Start(r.Context(), "summary", middleware.GetRequestID(r.Context()))
	report, hit, err := cache.GetOrCompute(ctx, h.cache, cache.SummaryKey(window.Label, limit), func() (*SummaryReport, error) {
		return h.aggregator.Summary(ctx, window, limit), nil
	})
	span.SetAttr("cache_hit", hit)
	span.End()
	span.Log(logger.FromContext(ctx))
	if err != nil {
		response.Error(w, apperrors.Wrap(apperrors.ErrInternal, err, "failed to build summary"))
		return
	}
	response.OK(w, report)
}

func (h *Handler) StoryDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		response.Error(w, apperrors.Newf(apperrors.ErrMethodNotAllowed, "method %s not allowed", r.Method))
		return
	}
	raw := r.PathValue("id")
	storyID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || storyID <= 0 {
		response.Error(w, apperrors.New(apperrors.ErrInvalidInput, "story id must be a positive integer").
			WithDetails(map[string]string{"id": raw}))
		return
	}
	window := period.Parse(r.URL.Query().Get("period"), period.StoryDefault)

	ctx, span := h.cfg.Sampler.Start(r.Context(), "story_detail", middleware.GetRequestID(r.Context()))
	span.SetAttr("story_id", storyID)
	report, hit, err := cache.GetOrCompute(ctx, h.cache, cache.StoryKey(storyID, window.Label), func() (*StoryReport, error) {
		story, err := h.catalog.GetStory(ctx, storyID)
		if err != nil {
			return nil, err
		}
		return h.aggregator.StoryDetail(ctx, story, window), nil
	})
	span.SetAttr("cache_hit", hit)
	span.End()
	span.Log(logger.FromContext(ctx))
	if err != nil {
		if errors.Is(err, apperrors.ErrStoryNotFound) {
			response.Error(w, apperrors.Newf(apperrors.ErrStoryNotFound, "story %d not found", storyID))
			return
		}
		logger.FromContext(ctx).Error("story lookup failed", "story_id", storyID, "error", err)
		response.Error(w, apperrors.Wrap(apperrors.ErrInternal, err, "failed to load story"))
		return
	}
	response.OK(w, report)
}

func (h *Handler) parseLimit(raw string) (int, error) {
	if raw == "" {
		return h.cfg.DefaultLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > h.cfg.MaxLimit {
		return 0, apperrors.Newf(apperrors.ErrInvalidInput, "limit must be an integer between 1 and %d", h.cfg.MaxLimit).
			WithDetails(map[string]string{"limit": raw})
	}
	return limit, nil
}
