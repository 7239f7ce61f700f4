package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	aigateway "github.com/ferro-labs/llm-gateway"
	"github.com/ferro-labs/llm-gateway/internal/selector"
	"github.com/ferro-labs/llm-gateway/providers"
)

// httpStatusForKind maps a selector.ErrorKind to the HTTP status the
// OpenAI-compatible endpoint should report, per the error-handling design:
// unknown models and exhausted plans are client-visible failures, transient
// and credential/availability provider errors surface as 502 (an empty
// plan as 503), and context cancellation/deadline
// errors get their own codes rather than a blanket 500.
func httpStatusForKind(kind selector.ErrorKind) int {
	switch kind {
	case selector.KindUnknownModel:
		return http.StatusNotFound
	case selector.KindNoAvailableProvider:
		return http.StatusServiceUnavailable
	case selector.KindProviderTransient, selector.KindProviderCredentialOrAvailable:
		return http.StatusBadGateway
	case selector.KindProviderClient:
		return http.StatusUnprocessableEntity
	case selector.KindDeadlineExceeded:
		return http.StatusGatewayTimeout
	case selector.KindCancelled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// errorTypeForKind maps a selector.ErrorKind to the OpenAI-style error
// "type" string returned in the response body.
func errorTypeForKind(kind selector.ErrorKind) string {
	switch kind {
	case selector.KindUnknownModel:
		return "invalid_request_error"
	case selector.KindNoAvailableProvider, selector.KindProviderTransient, selector.KindProviderCredentialOrAvailable:
		return "upstream_error"
	case selector.KindProviderClient:
		return "invalid_request_error"
	case selector.KindDeadlineExceeded, selector.KindCancelled:
		return "timeout_error"
	default:
		return "server_error"
	}
}

// listModelsHandler returns the canonical model catalog in an
// OpenAI-compatible "list" envelope.
func listModelsHandler(gw *aigateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"data":   gw.Registry().Export().Models,
		})
	}
}

// chatCompletionsHandler dispatches an OpenAI-compatible chat completion
// request through the gateway, streaming via SSE when req.Stream is set.
func chatCompletionsHandler(gw *aigateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req providers.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeOpenAIError(w, http.StatusBadRequest, err.Error(), "invalid_request_error")
			return
		}
		if err := req.Validate(); err != nil {
			writeOpenAIError(w, http.StatusBadRequest, err.Error(), "invalid_request_error")
			return
		}

		if req.Stream {
			ch, err := gw.ExecuteStream(r.Context(), req)
			if err != nil {
				kind := selector.KindOf(err)
				writeOpenAIError(w, httpStatusForKind(kind), err.Error(), errorTypeForKind(kind))
				return
			}
			writeSSE(w, ch)
			return
		}

		resp, out, err := gw.Execute(r.Context(), req)
		if err != nil {
			writeOpenAIError(w, httpStatusForKind(out.ErrorKind), err.Error(), errorTypeForKind(out.ErrorKind))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// writeOpenAIError writes an OpenAI-compatible JSON error response.
func writeOpenAIError(w http.ResponseWriter, status int, message, errType string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"message": message,
			"type":    errType,
		},
	})
}

// writeSSE streams chat completion chunks from ch to the response writer.
func writeSSE(w http.ResponseWriter, ch <-chan providers.StreamChunk) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher, _ := w.(http.Flusher)
	now := time.Now().Unix()
	for chunk := range ch {
		if chunk.Error != nil {
			errData := fmt.Sprintf(`{"error":{"message":"%s","type":"stream_error"}}`, chunk.Error.Error())
			_, _ = fmt.Fprintf(w, "data: %s\n\n", errData)
			if flusher != nil {
				flusher.Flush()
			}
			return
		}
		if chunk.Object == "" {
			chunk.Object = "chat.completion.chunk"
		}
		if chunk.Created == 0 {
			chunk.Created = now
		}
		data, _ := json.Marshal(chunk)
		_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
		if flusher != nil {
			flusher.Flush()
		}
	}
	_, _ = fmt.Fprintf(w, "data: %s\n\n", providers.SSEDone)
	if flusher != nil {
		flusher.Flush()
	}
}
