package generation

import "time"

// GenerateRequest is the body of POST /generate. Zero values take the
// configured defaults.
type GenerateRequest struct {
	Prompt      string  `json:"prompt" validate:"required,min=10,max=1000"`
	Model       string  `json:"model,omitempty" validate:"max=100"`
	Temperature float64 `json:"temperature,omitempty" validate:"gte=0,lte=2"`
	MaxTokens   int     `json:"max_tokens,omitempty" validate:"gte=0,lte=32000"`
}

type GenerateResponse struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
