// Package streaming fans attempt lifecycle events out to websocket
// clients. The hub holds one bus subscription covering every attempt
// subject and routes each event to the clients watching that attempt.
package streaming

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/codecommand/codecommand/internal/common/logger"
	"github.com/codecommand/codecommand/internal/events"
	"github.com/codecommand/codecommand/internal/events/bus"
)

// Hub manages websocket client connections and their per-attempt routing.
type Hub struct {
	eventBus bus.EventBus

	// clients and attemptSubscribers are guarded by mu; the channels
	// serialize registration with the run loop.
	clients            map[*Client]bool
	attemptSubscribers map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	incoming   chan *bus.Event

	mu     sync.RWMutex
	logger *logger.Logger
}

// NewHub creates a hub over the given event bus.
func NewHub(eventBus bus.EventBus, log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Default()
	}
	return &Hub{
		eventBus:           eventBus,
		clients:            make(map[*Client]bool),
		attemptSubscribers: make(map[string]map[*Client]bool),
		register:           make(chan *Client),
		unregister:         make(chan *Client),
		incoming:           make(chan *bus.Event, 256),
		logger:             log.WithFields(zap.String("component", "streaming-hub")),
	}
}

// Run subscribes to the attempt event stream and processes client
// registration and event fan-out until the context is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	sub, err := h.eventBus.Subscribe(events.AttemptStream, func(_ context.Context, event *bus.Event) error {
		select {
		case h.incoming <- event:
		default:
			h.logger.Warn("event dropped, hub queue full", zap.String("type", event.Type))
		}
		return nil
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := sub.Unsubscribe(); err != nil {
			h.logger.Warn("failed to unsubscribe from attempt stream", zap.Error(err))
		}
	}()

	h.logger.Info("streaming hub started")

	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			h.logger.Info("streaming hub stopped")
			return nil

		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case event := <-h.incoming:
			h.dispatch(event)
		}
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true
	if _, ok := h.attemptSubscribers[client.attemptID]; !ok {
		h.attemptSubscribers[client.attemptID] = make(map[*Client]bool)
	}
	h.attemptSubscribers[client.attemptID][client] = true

	h.logger.Debug("client registered",
		zap.String("client_id", client.id),
		zap.String("attempt_id", client.attemptID))
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)

	if subscribers, ok := h.attemptSubscribers[client.attemptID]; ok {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.attemptSubscribers, client.attemptID)
		}
	}

	h.logger.Debug("client unregistered", zap.String("client_id", client.id))
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.attemptSubscribers = make(map[string]map[*Client]bool)
}

// dispatch routes one event to the clients watching its attempt. Events
// without an attempt_id are dropped; every publisher sets it.
func (h *Hub) dispatch(event *bus.Event) {
	attemptID, _ := event.Data["attempt_id"].(string)
	if attemptID == "" {
		h.logger.Warn("event without attempt_id", zap.String("type", event.Type))
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to marshal event", zap.Error(err))
		return
	}

	h.mu.RLock()
	subscribers := h.attemptSubscribers[attemptID]
	h.mu.RUnlock()

	for client := range subscribers {
		select {
		case client.send <- data:
		default:
			// slow client; the write pump will clean it up
		}
	}
}
