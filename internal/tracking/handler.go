package tracking

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	apperrors "github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/response"
)

const maxBodyBytes = 64 << 10

type Handler struct {
	recorder *Recorder
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewHandler(recorder *Recorder, m *metrics.Metrics) *Handler {
	return &Handler{
		recorder: recorder,
		metrics:  m,
		logger:   logger.WithComponent("track-handler"),
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/track", h.Track)
}

func (h *Handler) Track(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		response.Error(w, apperrors.New(apperrors.ErrMethodNotAllowed, "Only POST method is allowed"))
		return
	}

	var req TrackRequest
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		h.observe("invalid")
		if errors.Is(err, io.EOF) {
			response.Error(w, apperrors.New(apperrors.ErrInvalidInput, "Request body is required"))
			return
		}
		response.Error(w, apperrors.Wrap(apperrors.ErrInvalidInput, err, "request body must be a JSON object"))
		return
	}

	storyID, identifier, err := Validate(&req)
	if err != nil {
		h.observe("invalid")
		response.Error(w, err)
		return
	}

	in := TrackInput{
		StoryID:   storyID,
		UserAgent: firstNonEmpty(req.UserAgent, r.Header.Get("User-Agent")),
		Referrer:  firstNonEmpty(req.Referrer, r.Header.Get("Referer")),
		RequestID: middleware.GetRequestID(r.Context()),
	}
	if identifier != nil {
		in.UserIdentifier = *identifier
	} else {
		in.UserIdentifier = DefaultIdentifier(middleware.ClientIP(r))
	}

	resp, err := h.recorder.Record(r.Context(), in)
	if err != nil {
		h.observe(outcome(err))
		response.Error(w, err)
		return
	}
	h.observe("recorded")
	logger.FromContext(r.Context()).Info("read tracked",
		"read_id", resp.ID,
		"story_id", resp.StoryID,
	)
	response.OK(w, resp)
}

func (h *Handler) observe(outcome string) {
	if h.metrics != nil {
		h.metrics.ReadsTrackedTotal.WithLabelValues(outcome).Inc()
	}
}

func outcome(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrStoryNotFound):
		return "not_found"
	case errors.Is(err, apperrors.ErrDatabase):
		return "database_error"
	default:
		return "error"
	}
}

// firstNonEmpty prefers the explicit body value and falls back to the
// header. Both empty yields nil so the column stays NULL.
func firstNonEmpty(explicit *string, header string) *string {
	if explicit != nil && *explicit != "" {
		return explicit
	}
	if header != "" {
		return &header
	}
	return nil
}
