package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ramiqadoumi/planflow/internal/domain"
	"github.com/ramiqadoumi/planflow/internal/kafka"
)

const (
	subscriberBuffer = 64
	heartbeatEvery   = 15 * time.Second
)

// Hub fans orchestrator events from the events topic out to SSE subscribers.
// Slow subscribers drop events rather than stall the consumer.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[chan domain.Event]struct{}
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{subs: make(map[string]map[chan domain.Event]struct{}), logger: logger}
}

// Run feeds the hub from c until ctx is cancelled.
func (h *Hub) Run(ctx context.Context, c kafka.Consumer) error {
	return c.Subscribe(ctx, h.Handle)
}

// Handle is a kafka.HandlerFunc. Undecodable messages are logged and committed.
func (h *Hub) Handle(_ context.Context, msg kafka.Message) error {
	ev, err := kafka.DecodeEvent(msg.Value)
	if err != nil {
		h.logger.Warn("dropping malformed event", slog.Int64("offset", msg.Offset), slog.String("error", err.Error()))
		return nil
	}
	h.Broadcast(ev)
	return nil
}

// Broadcast delivers ev to every subscriber of its project.
func (h *Hub) Broadcast(ev domain.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[ev.ProjectID] {
		select {
		case ch <- ev:
		default:
			h.logger.Debug("subscriber behind, event dropped", slog.String("project_id", ev.ProjectID))
		}
	}
}

// Subscribe registers for a project's events. Call the returned func to leave.
func (h *Hub) Subscribe(projectID string) (<-chan domain.Event, func()) {
	ch := make(chan domain.Event, subscriberBuffer)
	h.mu.Lock()
	if h.subs[projectID] == nil {
		h.subs[projectID] = make(map[chan domain.Event]struct{})
	}
	h.subs[projectID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[projectID], ch)
			if len(h.subs[projectID]) == 0 {
				delete(h.subs, projectID)
			}
		})
	}
}

// Subscribers reports how many streams are open for a project.
func (h *Hub) Subscribers(projectID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[projectID])
}

// StreamEvents handles GET /api/v1/projects/{id}/events as server-sent events.
// The stream opens with a "snapshot" of the current state and ends after the
// project finishes.
func (h *REST) StreamEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	events, leave := h.hub.Subscribe(id)
	defer leave()

	sum, err := h.svc.Summary(r.Context(), id)
	if err != nil {
		h.fail(w, err, "stream events")
		return
	}

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeSSE(w, "snapshot", sum.ProjectID, sum); err != nil {
		return
	}
	_ = rc.Flush()
	if sum.OverallStatus.IsTerminal() && sum.Round > 0 {
		return
	}

	heartbeat := time.NewTicker(heartbeatEvery)
	defer heartbeat.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case ev := <-events:
			if err := writeSSE(w, string(ev.Type), ev.ID, ev); err != nil {
				return
			}
			if ev.Type == domain.EventProjectFinished {
				_ = rc.Flush()
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeSSE(w http.ResponseWriter, event, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", id, event, data)
	return err
}
