package server

import (
	"encoding/json"
	"fmt"

	"github.com/run-bigpig/llm-guardrails/pkg/guardrails"
)

// CheckRequest is the body of both check endpoints
type CheckRequest struct {
	Prompt string `json:"prompt" description:"Prompt sent to the model"`
}

// RatingView is a safety rating with its display forms
type RatingView struct {
	Category        string `json:"category"`
	DisplayCategory string `json:"display_category"`
	Probability     string `json:"probability"`
	Label           string `json:"label"`
}

// CheckResponse is the outcome of a one-shot check
type CheckResponse struct {
	Text          string       `json:"text"`
	SafetyRatings []RatingView `json:"safety_ratings"`
	MaxSeverity   string       `json:"max_severity"`
	Filtered      bool         `json:"filtered"`
	Failed        bool         `json:"failed"`
}

// HealthResponse is returned by the health endpoint
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Transport string `json:"transport"`
}

// ErrorResponse is the body of every non-2xx JSON reply
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func ratingViews(ratings []guardrails.SafetyRating) []RatingView {
	views := make([]RatingView, 0, len(ratings))
	for _, r := range ratings {
		views = append(views, RatingView{
			Category:        r.Category,
			DisplayCategory: r.DisplayCategory(),
			Probability:     r.Probability.String(),
			Label:           r.Label(),
		})
	}
	return views
}

func newCheckResponse(result guardrails.Result) CheckResponse {
	return CheckResponse{
		Text:          result.Text,
		SafetyRatings: ratingViews(result.SafetyRatings),
		MaxSeverity:   result.MaxSeverity().String(),
		Filtered:      result.Filtered(),
		Failed:        result.Failed(),
	}
}

// SSEEvent is one server-sent event
type SSEEvent struct {
	Event string      `json:"-"`
	Data  interface{} `json:"-"`
}

// StreamStartEvent opens a stream
type StreamStartEvent struct {
	Transport string `json:"transport"`
	RequestID string `json:"request_id,omitempty"`
}

// StreamChunkEvent carries one chunk
type StreamChunkEvent struct {
	TextDelta     string       `json:"text_delta"`
	SafetyRatings []RatingView `json:"safety_ratings"`
}

// StreamDoneEvent closes a stream that ended cleanly
type StreamDoneEvent struct {
	Chunks      int    `json:"chunks"`
	MaxSeverity string `json:"max_severity"`
	Filtered    bool   `json:"filtered"`
}

// StreamErrorEvent closes a stream that failed
type StreamErrorEvent struct {
	Error string `json:"error"`
}

// Format renders the event in text/event-stream framing
func (e SSEEvent) Format() (string, error) {
	jsonData, err := json.Marshal(e.Data)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("event: %s\ndata: %s\n\n", e.Event, string(jsonData)), nil
}
