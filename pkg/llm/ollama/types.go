package ollama

import (
	"time"

	"github.com/papercomputeco/callflow/pkg/llm"
)

// chatRequest is the Ollama /api/chat request body.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []llm.Message `json:"messages"`
	Stream   *bool         `json:"stream,omitempty"` // Ollama streams unless told otherwise
	Options  *options      `json:"options,omitempty"`
}

// options contains model inference parameters.
type options struct {
	Temperature *float64 `json:"temperature,omitempty"`
	NumPredict  *int     `json:"num_predict,omitempty"`
}

// chatResponse is the non-streaming Ollama /api/chat response body.
type chatResponse struct {
	Model     string      `json:"model"`
	CreatedAt time.Time   `json:"created_at"`
	Message   llm.Message `json:"message"`
	Done      bool        `json:"done"`

	TotalDuration   int64 `json:"total_duration,omitempty"`
	PromptEvalCount int   `json:"prompt_eval_count,omitempty"`
	EvalCount       int   `json:"eval_count,omitempty"`
}
