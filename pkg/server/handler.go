package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/emicklei/go-restful/v3"

	"github.com/run-bigpig/llm-guardrails/pkg/guardrails"
	"github.com/run-bigpig/llm-guardrails/pkg/logging"
	"github.com/run-bigpig/llm-guardrails/pkg/prompts"
	"github.com/run-bigpig/llm-guardrails/pkg/requestid"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// Handler serves the guardrails API
type Handler struct {
	guardrail guardrails.Guardrail
	transport string
	logger    logging.Logger
}

// NewHandler creates a Handler. transport is only used for reporting.
func NewHandler(guardrail guardrails.Guardrail, transport string, logger logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Handler{
		guardrail: guardrail,
		transport: transport,
		logger:    logger,
	}
}

// Health handler GET /api/v1/health
func (h *Handler) Health(req *restful.Request, resp *restful.Response) {
	resp.WriteHeaderAndEntity(http.StatusOK, HealthResponse{
		Status:    "ok",
		Version:   Version,
		Transport: h.transport,
	})
}

// Samples handler GET /api/v1/samples
func (h *Handler) Samples(req *restful.Request, resp *restful.Response) {
	resp.WriteHeaderAndEntity(http.StatusOK, prompts.Samples())
}

// Layers handler GET /api/v1/layers
func (h *Handler) Layers(req *restful.Request, resp *restful.Response) {
	resp.WriteHeaderAndEntity(http.StatusOK, prompts.Layers())
}

// Check handler POST /api/v1/check
// Body: CheckRequest
// Returns: CheckResponse, also when the provider could not be reached
func (h *Handler) Check(req *restful.Request, resp *restful.Response) {
	prompt, ok := h.readPrompt(req, resp)
	if !ok {
		return
	}

	result := h.guardrail.Check(req.Request.Context(), prompt)
	resp.WriteHeaderAndEntity(http.StatusOK, newCheckResponse(result))
}

// CheckStream handler POST /api/v1/check/stream
// Body: CheckRequest
// Returns: text/event-stream of start, chunk..., then done or error
func (h *Handler) CheckStream(req *restful.Request, resp *restful.Response) {
	prompt, ok := h.readPrompt(req, resp)
	if !ok {
		return
	}

	writer := resp.ResponseWriter
	flusher, ok := writer.(http.Flusher)
	if !ok {
		writeError(req, resp, http.StatusInternalServerError, errors.New("streaming not supported"))
		return
	}

	ctx := req.Request.Context()
	id, _ := requestid.GetRequestID(ctx)

	resp.AddHeader("Content-Type", "text/event-stream")
	resp.AddHeader("Cache-Control", "no-cache")
	resp.AddHeader("Connection", "keep-alive")
	resp.AddHeader("X-Accel-Buffering", "no")

	send := func(event SSEEvent) {
		formatted, err := event.Format()
		if err != nil {
			h.logger.Error(ctx, "Failed to format SSE event", map[string]interface{}{
				"event": event.Event,
				"error": err.Error(),
			})
			return
		}
		fmt.Fprint(writer, formatted)
		flusher.Flush()
	}

	send(SSEEvent{Event: "start", Data: StreamStartEvent{Transport: h.transport, RequestID: id}})

	start := time.Now()
	chunks := 0
	ratings := []guardrails.SafetyRating{}
	text := false

	// a client disconnect cancels ctx, which stops the stream and releases the connection
	for chunk, err := range h.guardrail.Stream(ctx, prompt) {
		if err != nil {
			h.logger.Warn(ctx, "Stream ended with error", map[string]interface{}{
				"error":  err.Error(),
				"chunks": chunks,
			})
			send(SSEEvent{Event: "error", Data: StreamErrorEvent{Error: guardrails.ErrorSentinel}})
			return
		}

		chunks++
		text = text || chunk.TextDelta != ""
		ratings = append(ratings, chunk.SafetyRatings...)
		send(SSEEvent{Event: "chunk", Data: StreamChunkEvent{
			TextDelta:     chunk.TextDelta,
			SafetyRatings: ratingViews(chunk.SafetyRatings),
		}})
	}

	summary := guardrails.Result{SafetyRatings: ratings}
	send(SSEEvent{Event: "done", Data: StreamDoneEvent{
		Chunks:      chunks,
		MaxSeverity: summary.MaxSeverity().String(),
		Filtered:    !text,
	}})

	h.logger.Debug(ctx, "Stream response finished", map[string]interface{}{
		"chunks":     chunks,
		"elapsed_ms": time.Since(start).Milliseconds(),
	})
}

func (h *Handler) readPrompt(req *restful.Request, resp *restful.Response) (string, bool) {
	var body CheckRequest
	if err := req.ReadEntity(&body); err != nil {
		h.logger.Warn(req.Request.Context(), "Failed to parse request body", map[string]interface{}{
			"error": err.Error(),
		})
		writeError(req, resp, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return "", false
	}

	prompt, err := prompts.Validate(body.Prompt)
	if err != nil {
		writeError(req, resp, http.StatusBadRequest, err)
		return "", false
	}
	return prompt, true
}

func writeError(req *restful.Request, resp *restful.Response, status int, err error) {
	id, _ := requestid.GetRequestID(req.Request.Context())
	resp.WriteHeaderAndEntity(status, ErrorResponse{
		Error:     err.Error(),
		RequestID: id,
	})
}
