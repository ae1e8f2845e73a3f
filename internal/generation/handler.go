package generation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/response"
)

const maxBodyBytes = 64 << 10

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service) *Handler {
	return &Handler{
		service: service,
		logger:  slog.Default().With("component", "generate-handler"),
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/generate", h.Generate)
}

func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		response.Error(w, apperrors.New(apperrors.ErrMethodNotAllowed, "Only POST method is allowed"))
		return
	}

	var req GenerateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		response.Error(w, decodeError(err))
		return
	}
	if err := validate.Struct(&req); err != nil {
		response.Error(w, validationError(err))
		return
	}

	resp, err := h.service.Generate(r.Context(), req, middleware.GetRequestID(r.Context()))
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, resp)
}

func decodeError(err error) *apperrors.AppError {
	if errors.Is(err, io.EOF) {
		return apperrors.New(apperrors.ErrInvalidInput, "Request body is required")
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field == "prompt" {
		return apperrors.New(apperrors.ErrInvalidInput, "prompt is required and must be a string").
			WithDetails(map[string]string{"field": "prompt"})
	}
	return apperrors.Wrap(apperrors.ErrInvalidInput, err, "request body must be a JSON object")
}

// validationError reports the first failed rule.
func validationError(err error) *apperrors.AppError {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return apperrors.Wrap(apperrors.ErrInvalidInput, err, "invalid request")
	}
	fe := fieldErrs[0]
	var msg string
	switch fe.Tag() {
	case "required":
		msg = fmt.Sprintf("%s is required and must be a string", fe.Field())
	case "min":
		msg = fmt.Sprintf("%s must be at least %s characters long", fe.Field(), fe.Param())
	case "max":
		msg = fmt.Sprintf("%s must not exceed %s characters", fe.Field(), fe.Param())
	case "lte":
		msg = fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "gte":
		msg = fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	default:
		msg = fmt.Sprintf("%s is invalid", fe.Field())
	}
	return apperrors.New(apperrors.ErrInvalidInput, msg).WithDetails(map[string]string{"field": fe.Field()})
}
