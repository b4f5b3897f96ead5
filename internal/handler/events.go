package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/agent-conversations/internal/model"
	"github.com/capitalize-ai/agent-conversations/internal/resilience"
	"github.com/capitalize-ai/agent-conversations/internal/service"
	"github.com/capitalize-ai/agent-conversations/pkg/logger"
	"github.com/capitalize-ai/agent-conversations/pkg/metrics"
)

const (
	eventBatchSize    = 50
	heartbeatInterval = 30 * time.Second
)

// EventSource reads conversation events after a stream sequence.
type EventSource interface {
	RecentEvents(ctx context.Context, organizationID string, conversationID int64, afterSequence uint64, limit int) ([]model.ConversationEvent, uint64, error)
}

// EventHandler streams conversation events over SSE.
type EventHandler struct {
	store        *resilience.Adapter
	source       EventSource
	logger       *logger.Logger
	pollInterval time.Duration
}

// NewEventHandler creates a new event handler. A nil source disables the
// endpoint.
func NewEventHandler(store *resilience.Adapter, source EventSource, log *logger.Logger) *EventHandler {
	return &EventHandler{
		store:        store,
		source:       source,
		logger:       log,
		pollInterval: 2 * time.Second,
	}
}

// ReplayCompleteEvent marks the end of the initial replay.
type ReplayCompleteEvent struct {
	LastSequence uint64 `json:"last_sequence"`
	EventCount   int    `json:"event_count"`
}

// Stream handles GET /api/v1/conversations/{id}/events.
// Supports ?after_sequence=N for resuming from a specific point.
func (h *EventHandler) Stream(w http.ResponseWriter, r *http.Request) {
	scope, ok := conversationScope(w, r)
	if !ok {
		return
	}
	if h.source == nil {
		writeError(w, http.StatusServiceUnavailable, "event streaming is not configured")
		return
	}
	ctx := r.Context()

	conv, err := h.store.GetConversation(ctx, scope, scope.ConversationID(), service.GetOptions{})
	if err != nil {
		writeStoreError(w, h.logger, "stream events", err)
		return
	}
	if conv == nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}

	var afterSequence uint64
	if seqStr := r.URL.Query().Get("after_sequence"); seqStr != "" {
		if seq, err := strconv.ParseUint(seqStr, 10, 64); err == nil {
			afterSequence = seq
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	metrics.EventStreamConnections.Inc()
	defer metrics.EventStreamConnections.Dec()

	log := h.logger.WithConversation(scope.OrganizationID(), scope.UserID(), scope.ConversationID())
	sendSSEEvent(w, flusher, "connected", map[string]int64{
		"conversation_id": scope.ConversationID(),
	})

	lastSequence, replayed, err := h.forward(ctx, w, flusher, scope, afterSequence)
	if err != nil {
		log.Error("failed to replay events", zap.Error(err))
		sendSSEEvent(w, flusher, "error", map[string]string{
			"code":    "replay_error",
			"message": "failed to replay events",
		})
		return
	}
	sendSSEEvent(w, flusher, "replay_complete", &ReplayCompleteEvent{
		LastSequence: lastSequence,
		EventCount:   replayed,
	})
	log.Debug("event replay complete", zap.Int("events", replayed), zap.Uint64("last_sequence", lastSequence))

	poll := time.NewTicker(h.pollInterval)
	defer poll.Stop()
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("event stream client disconnected")
			return
		case <-heartbeat.C:
			sendSSEEvent(w, flusher, "heartbeat", map[string]time.Time{"timestamp": time.Now().UTC()})
		case <-poll.C:
			seq, _, err := h.forward(ctx, w, flusher, scope, lastSequence)
			if err != nil {
				if ctx.Err() == nil {
					log.Warn("failed to poll events", zap.Error(err))
				}
				continue
			}
			lastSequence = seq
		}
	}
}

// forward writes every event after afterSequence, in batches, and returns
// the last sequence seen.
func (h *EventHandler) forward(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, scope model.Scope, afterSequence uint64) (uint64, int, error) {
	var total int
	for {
		events, last, err := h.source.RecentEvents(ctx, scope.OrganizationID(), scope.ConversationID(), afterSequence, eventBatchSize)
		if err != nil {
			return afterSequence, total, err
		}
		for i := range events {
			select {
			case <-ctx.Done():
				return afterSequence, total, ctx.Err()
			default:
			}
			sendSSEEvent(w, flusher, string(events[i].Kind), &events[i])
			total++
		}
		if last > afterSequence {
			afterSequence = last
		}
		if len(events) < eventBatchSize {
			return afterSequence, total, nil
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()

	return nil
}
