package tracking

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/errors"
)

const maxIdentifierLength = 255

var validate = validator.New()

// Validate checks req and returns the story id and the caller-supplied
// identifier, nil when absent or empty. Fields are checked in order and the
// first violation is reported as INVALID_INPUT.
func Validate(req *TrackRequest) (int64, *string, error) {
	storyID, err := decodeStoryID(req.StoryID)
	if err != nil {
		return 0, nil, err
	}
	if err := validate.Var(storyID, "gt=0"); err != nil {
		return 0, nil, fieldError("story_id", err, "story_id must be a positive number")
	}

	identifier, err := decodeIdentifier(req.UserIdentifier)
	if err != nil {
		return 0, nil, err
	}
	if identifier != nil {
		if err := validate.Var(*identifier, fmt.Sprintf("max=%d", maxIdentifierLength)); err != nil {
			return 0, nil, fieldError("user_identifier", err,
				fmt.Sprintf("user_identifier must not exceed %d characters", maxIdentifierLength))
		}
	}
	return storyID, identifier, nil
}

// DefaultIdentifier turns a derived client address into a user identifier
// that fits the column, cutting it to maxIdentifierLength characters.
func DefaultIdentifier(addr string) string {
	if utf8.RuneCountInString(addr) <= maxIdentifierLength {
		return addr
	}
	return string([]rune(addr)[:maxIdentifierLength])
}

func decodeStoryID(raw json.RawMessage) (int64, error) {
	if isAbsent(raw) {
		return 0, invalid("story_id", "story_id is required and must be a number")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, invalid("story_id", "story_id is required and must be a number")
	}
	n, ok := v.(json.Number)
	if !ok {
		return 0, invalid("story_id", "story_id is required and must be a number")
	}
	if id, err := n.Int64(); err == nil {
		return id, nil
	}
	// Accept integral floats such as 3.0, reject 3.5.
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || f > math.MaxInt64 || f < math.MinInt64 {
		return 0, invalid("story_id", "story_id must be an integer")
	}
	return int64(f), nil
}

func decodeIdentifier(raw json.RawMessage) (*string, error) {
	if isAbsent(raw) {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, invalid("user_identifier", "user_identifier must be a string if provided")
	}
	if s == "" {
		return nil, nil
	}
	return &s, nil
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// fieldError maps a failed rule to message. Errors other than rule
// violations, such as an unsupported type, keep the validator's text.
func fieldError(field string, err error, message string) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperrors.Wrap(apperrors.ErrInvalidInput, err, field+" is invalid")
	}
	return invalid(field, message)
}

func invalid(field, message string) *apperrors.AppError {
	return apperrors.New(apperrors.ErrInvalidInput, message).WithDetails(map[string]string{"field": field})
}
