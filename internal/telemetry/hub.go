package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event types.
const (
	EventReady     = "ready"
	EventStatus    = "status"
	EventControls  = "controls"
	EventQueue     = "queue"
	EventLive      = "live"
	EventHeartbeat = "heartbeat"
)

// Event is one server-sent event.
type Event struct {
	ID   int64          `json:"id,omitempty"`
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// Config sizes the hub.
type Config struct {
	HeartbeatInterval time.Duration
	BufferSize        int
	ClientQueue       int
}

// Client is one SSE subscriber.
type Client struct {
	ID     string
	LastID int64
	Events chan Event

	writer http.ResponseWriter
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// Hub fans events out to SSE clients. Publishing never blocks: a client
// whose queue is full misses the event and can resume from the buffer.
type Hub struct {
	cfg    Config
	logger *zap.Logger
	nextID atomic.Int64

	mu      sync.RWMutex
	clients map[string]*Client
	buffer  *EventBuffer
	latest  map[string]Event // last event of each display type, for the ready snapshot

	heartbeatStop chan struct{}
	done          chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup
}

// NewHub creates a hub.
func NewHub(cfg Config, logger *zap.Logger) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 50
	}
	if cfg.ClientQueue <= 0 {
		cfg.ClientQueue = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		cfg:     cfg,
		logger:  logger.Named("telemetry"),
		clients: make(map[string]*Client),
		buffer:  NewEventBuffer(cfg.BufferSize),
		latest:  make(map[string]Event),
		done:    make(chan struct{}),
	}
}

// Status implements command.Notifier.
func (h *Hub) Status(text, color string) {
	h.Publish(Event{Type: EventStatus, Data: map[string]any{"text": text, "color": color}})
}

// Controls implements command.Notifier.
func (h *Hub) Controls(enabled bool) {
	h.Publish(Event{Type: EventControls, Data: map[string]any{"enabled": enabled}})
}

// QueueDepth implements command.Notifier.
func (h *Hub) QueueDepth(n int) {
	h.Publish(Event{Type: EventQueue, Data: map[string]any{"depth": n}})
}

// Live implements command.Notifier.
func (h *Hub) Live(id, name string) {
	h.Publish(Event{Type: EventLive, Data: map[string]any{"activityId": id, "activityName": name}})
}

// Subscribe streams events to w until the request or the hub ends. A
// Last-Event-ID header replays buffered events newer than that id.
func (h *Hub) Subscribe(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	select {
	case <-h.done:
		return fmt.Errorf("telemetry hub stopped")
	default:
	}

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	clientCtx, cancel := context.WithCancel(ctx)
	client := &Client{
		ID:     uuid.NewString(),
		Events: make(chan Event, h.cfg.ClientQueue),
		writer: w,
		ctx:    clientCtx,
		cancel: cancel,
	}
	if lastID := r.Header.Get("Last-Event-ID"); lastID != "" {
		if id, err := strconv.ParseInt(lastID, 10, 64); err == nil {
			client.LastID = id
		}
	}

	// Register before the snapshot so nothing published in between is lost.
	h.register(client)
	defer h.unregister(client)

	if err := h.sendEvent(client, h.readyEvent()); err != nil {
		return fmt.Errorf("failed to send ready event: %w", err)
	}
	if client.LastID > 0 {
		for _, e := range h.buffer.EventsAfter(client.LastID) {
			if err := h.sendEvent(client, e); err != nil {
				return fmt.Errorf("failed to replay events: %w", err)
			}
			client.LastID = e.ID
		}
	}

	h.logger.Debug("client subscribed", zap.String("client", client.ID), zap.Int64("lastEventId", client.LastID))
	h.handleClient(client)
	return nil
}

// Publish assigns an id, buffers the event and queues it for every client.
func (h *Hub) Publish(event Event) {
	select {
	case <-h.done:
		return
	default:
	}
	if event.ID == 0 {
		event.ID = h.nextID.Add(1)
	}
	if event.Type != EventHeartbeat {
		h.buffer.Add(event)
	}

	h.mu.Lock()
	if event.Type != EventHeartbeat {
		h.latest[event.Type] = event
	}
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		select {
		case c.Events <- event:
		default:
			h.logger.Debug("client queue full, event dropped", zap.String("client", c.ID), zap.Int64("id", event.ID))
		}
	}
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) readyEvent() Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	snapshot := make(map[string]any, len(h.latest))
	for typ, e := range h.latest {
		snapshot[typ] = e.Data
	}
	return Event{Type: EventReady, Data: map[string]any{"snapshot": snapshot}}
}

func (h *Hub) sendEvent(c *Client, e Event) error {
	if e.ID > 0 {
		if _, err := fmt.Fprintf(c.writer, "id: %d\n", e.ID); err != nil {
			return fmt.Errorf("failed to write event ID: %w", err)
		}
	}
	if _, err := fmt.Fprintf(c.writer, "event: %s\n", e.Type); err != nil {
		return fmt.Errorf("failed to write event type: %w", err)
	}
	data, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}
	if _, err := fmt.Fprintf(c.writer, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("failed to write event data: %w", err)
	}
	if f, ok := c.writer.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

func (h *Hub) handleClient(c *Client) {
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-h.done:
			return
		case e := <-c.Events:
			if e.ID > 0 && e.ID <= c.LastID {
				continue // already replayed
			}
			if err := h.sendEvent(c, e); err != nil {
				h.logger.Debug("client write failed", zap.String("client", c.ID), zap.Error(err))
				return
			}
		}
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID] = c
	if len(h.clients) == 1 && h.heartbeatStop == nil && h.cfg.HeartbeatInterval > 0 {
		h.startHeartbeat()
	}
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.cancel()
	delete(h.clients, c.ID)
	if len(h.clients) == 0 && h.heartbeatStop != nil {
		close(h.heartbeatStop)
		h.heartbeatStop = nil
	}
	h.logger.Debug("client unsubscribed", zap.String("client", c.ID))
}

// startHeartbeat must be called with h.mu held.
func (h *Hub) startHeartbeat() {
	stop := make(chan struct{})
	h.heartbeatStop = stop
	ticker := time.NewTicker(h.cfg.HeartbeatInterval)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				h.Publish(Event{Type: EventHeartbeat, Data: map[string]any{
					"ts": time.Now().UTC().Format(time.RFC3339),
				}})
			case <-stop:
				return
			case <-h.done:
				return
			}
		}
	}()
}

// Stop disconnects every client and stops the heartbeat.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.mu.Lock()
		for _, c := range h.clients {
			c.cancel()
		}
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// EventBuffer is a fixed-size ring of recent events.
type EventBuffer struct {
	mu       sync.RWMutex
	events   []Event
	capacity int
}

// NewEventBuffer creates a buffer holding up to capacity events.
func NewEventBuffer(capacity int) *EventBuffer {
	return &EventBuffer{events: make([]Event, 0, capacity), capacity: capacity}
}

// Add appends e, evicting the oldest event when full.
func (b *EventBuffer) Add(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
	if len(b.events) > b.capacity {
		b.events = b.events[1:]
	}
}

// EventsAfter returns buffered events with an id above lastID.
func (b *EventBuffer) EventsAfter(lastID int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []Event
	for _, e := range b.events {
		if e.ID > lastID {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of buffered events.
func (b *EventBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.events)
}
