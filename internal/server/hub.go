package server

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/google/uuid"

	"github.com/pthm/aggui"
	"github.com/pthm/aggui/internal/app"
	"github.com/pthm/aggui/internal/components"
	"github.com/pthm/aggui/internal/logger"
)

// Event is one server-sent event. Data may span lines.
type Event struct {
	Name string
	Data string
}

type client struct {
	id       uuid.UUID
	session  string
	outbound chan Event
}

// Hub fans root notifications out to the SSE streams of their session.
// A session may have several streams open, one per tab.
type Hub struct {
	log       *logger.Logger
	heartbeat time.Duration

	mu       sync.RWMutex
	sessions map[string]map[*client]bool

	bus       EventBus.Bus
	onChanged func(id string)
	onAlert   func(id string, a app.Alert)
}

// NewHub returns a hub with no streams. A nil log is replaced by a nop logger.
func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	h := &Hub{
		log:       log.With("component", "sse"),
		heartbeat: 15 * time.Second,
		sessions:  make(map[string]map[*client]bool),
	}
	h.onChanged = func(id string) {
		h.Broadcast(id, Event{Name: components.RefreshEvent, Data: "changed"})
	}
	h.onAlert = func(id string, a app.Alert) {
		var buf bytes.Buffer
		flash := aggui.Flash{Level: string(a.Level), Message: a.Message}
		if err := aggui.AlertDialog(flash).Render(context.Background(), &buf); err != nil {
			h.log.Warn("render alert failed", "error", err)
			return
		}
		h.Broadcast(id, Event{Name: components.AlertEvent, Data: buf.String()})
	}
	return h
}

// Attach subscribes the hub to the roots' topics on bus.
func (h *Hub) Attach(bus EventBus.Bus) error {
	if err := bus.Subscribe(app.TopicChanged, h.onChanged); err != nil {
		return fmt.Errorf("subscribe %s: %w", app.TopicChanged, err)
	}
	if err := bus.Subscribe(app.TopicAlert, h.onAlert); err != nil {
		_ = bus.Unsubscribe(app.TopicChanged, h.onChanged)
		return fmt.Errorf("subscribe %s: %w", app.TopicAlert, err)
	}
	h.bus = bus
	return nil
}

// Detach undoes Attach.
func (h *Hub) Detach() {
	if h.bus == nil {
		return
	}
	_ = h.bus.Unsubscribe(app.TopicChanged, h.onChanged)
	_ = h.bus.Unsubscribe(app.TopicAlert, h.onAlert)
	h.bus = nil
}

// Broadcast queues ev on every stream of session. Full buffers drop the
// event rather than block the publisher.
func (h *Hub) Broadcast(session string, ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.sessions[session] {
		select {
		case c.outbound <- ev:
		default:
			h.log.Warn("dropping SSE event, outbound buffer full", "client", c.id, "event", ev.Name)
		}
	}
}

// Streams returns the number of open streams for session.
func (h *Hub) Streams(session string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[session])
}

func (h *Hub) add(session string) *client {
	c := &client{id: uuid.New(), session: session, outbound: make(chan Event, 16)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sessions[session] == nil {
		h.sessions[session] = make(map[*client]bool)
	}
	h.sessions[session][c] = true
	h.log.Debug("SSE client connected", "client", c.id, "session", session)
	return c
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.sessions[c.session]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.sessions, c.session)
		}
	}
	h.log.Debug("SSE client disconnected", "client", c.id, "session", c.session)
}

// Serve streams session's events to w until the request ends.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, session string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	c := h.add(session)
	defer h.remove(c)

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev := <-c.outbound:
			if _, err := fmt.Fprint(w, formatEvent(ev)); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// formatEvent encodes ev in the text/event-stream format.
func formatEvent(ev Event) string {
	var sb strings.Builder
	sb.WriteString("event: " + ev.Name + "\n")
	for _, line := range strings.Split(ev.Data, "\n") {
		sb.WriteString("data: " + line + "\n")
	}
	sb.WriteString("\n")
	return sb.String()
}
