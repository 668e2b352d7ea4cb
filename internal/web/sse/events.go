package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// EventType represents the type of SSE event
type EventType string

const (
	EventInventoryChanged  EventType = "inventory_changed"
	EventSchemaInitialized EventType = "schema_initialized"

	EventBackupCompleted EventType = "backup_completed"
	EventBackupFailed    EventType = "backup_failed"

	EventHeartbeat EventType = "heartbeat"
)

// Event represents an SSE event to be sent to clients
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// InventoryChange is the payload of EventInventoryChanged.
type InventoryChange struct {
	Entity string `json:"entity"`
	Action string `json:"action"` // created or deleted
	ID     int64  `json:"id"`
}

// Client is one connected event stream
type Client struct {
	ID       string
	Messages chan []byte
}

// Broker fans events out to connected dashboard clients
type Broker struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan Event
	done       chan struct{}
	stopOnce   sync.Once
	nextID     atomic.Uint64
	heartbeat  time.Duration
	mu         sync.RWMutex
}

// NewBroker creates a broker and starts its dispatch loop
func NewBroker() *Broker {
	return newBroker(30 * time.Second)
}

func newBroker(heartbeat time.Duration) *Broker {
	b := &Broker{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Event, 64),
		done:       make(chan struct{}),
		heartbeat:  heartbeat,
	}
	go b.run()
	return b
}

func (b *Broker) run() {
	ticker := time.NewTicker(b.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-b.done:
			b.mu.Lock()
			for _, client := range b.clients {
				close(client.Messages)
			}
			b.clients = make(map[string]*Client)
			b.mu.Unlock()
			log.Debug().Msg("Event broker stopped")
			return

		case client := <-b.register:
			b.mu.Lock()
			b.clients[client.ID] = client
			total := len(b.clients)
			b.mu.Unlock()
			log.Debug().Str("client_id", client.ID).Int("total_clients", total).Msg("Event client connected")

		case client := <-b.unregister:
			b.mu.Lock()
			if _, ok := b.clients[client.ID]; ok {
				delete(b.clients, client.ID)
				close(client.Messages)
			}
			total := len(b.clients)
			b.mu.Unlock()
			log.Debug().Str("client_id", client.ID).Int("total_clients", total).Msg("Event client disconnected")

		case event := <-b.broadcast:
			b.deliver(event)

		case now := <-ticker.C:
			b.deliver(Event{Type: EventHeartbeat, Data: map[string]any{"time": now.Unix()}})
		}
	}
}

func (b *Broker) deliver(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(event.Type)).Msg("Failed to marshal event")
		return
	}
	message := formatMessage(string(event.Type), data)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, client := range b.clients {
		select {
		case client.Messages <- message:
		default:
			log.Warn().Str("client_id", client.ID).Msg("Event client buffer full, dropping message")
		}
	}
}

// Broadcast queues an event for all connected clients. It never blocks;
// events are dropped when the queue is full or the broker is stopped.
func (b *Broker) Broadcast(event Event) {
	select {
	case <-b.done:
		return
	default:
	}

	select {
	case b.broadcast <- event:
	default:
		log.Warn().Str("event_type", string(event.Type)).Msg("Event queue full, dropping event")
	}
}

// InventoryChanged broadcasts a create or delete of an inventory row.
func (b *Broker) InventoryChanged(entity, action string, id int64) {
	b.Broadcast(Event{Type: EventInventoryChanged, Data: InventoryChange{Entity: entity, Action: action, ID: id}})
}

// Stop closes every client stream. It is safe to call more than once.
func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.done) })
}

// ServeHTTP streams events to one client until it disconnects
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	client := &Client{
		ID:       fmt.Sprintf("client-%d", b.nextID.Add(1)),
		Messages: make(chan []byte, 16),
	}

	select {
	case b.register <- client:
	case <-b.done:
		http.Error(w, "Shutting down", http.StatusServiceUnavailable)
		return
	}
	defer func() {
		select {
		case b.unregister <- client:
		case <-b.done:
		}
	}()

	hello, _ := json.Marshal(Event{Type: "connected", Data: map[string]any{"client_id": client.ID}})
	_, _ = w.Write(formatMessage("connected", hello))
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-client.Messages:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}

// ClientCount returns the number of connected clients
func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func formatMessage(eventType string, data []byte) []byte {
	return fmt.Appendf(nil, "event: %s\ndata: %s\n\n", eventType, data)
}
