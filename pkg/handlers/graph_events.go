package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kudwa-ai/kudwa-engine/pkg/auth"
	"github.com/kudwa-ai/kudwa-engine/pkg/events"
)

const keepAliveInterval = 25 * time.Second

// EventSource hands out subscriptions to graph change events.
type EventSource interface {
	Subscribe() (<-chan events.GraphChangeEvent, func())
}

// GraphEventsHandler streams graph change events to browsers so open graph
// views can refetch their projection.
type GraphEventsHandler struct {
	source EventSource
	logger *zap.Logger
}

// NewGraphEventsHandler creates a new graph events handler.
func NewGraphEventsHandler(source EventSource, logger *zap.Logger) *GraphEventsHandler {
	return &GraphEventsHandler{source: source, logger: logger}
}

// RegisterRoutes registers the graph events route on the given mux.
func (h *GraphEventsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/graph/events", authMiddleware.RequireAuth(h.Stream))
}

// Stream handles GET /api/graph/events
func (h *GraphEventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("SSE not supported")
		if err := ErrorResponse(w, http.StatusInternalServerError, "sse_unsupported", "SSE not supported"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch, cancel := h.source.Subscribe()
	defer cancel()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case event, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("Failed to marshal event", zap.Error(err))
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Event, data)
			flusher.Flush()
		}
	}
}
