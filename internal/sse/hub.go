package sse

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/docuvault/docuvault-backend/internal/logger"
)

type SSEEvent string

const (
	SSEEventExtractionQueued     SSEEvent = "ExtractionQueued"
	SSEEventExtractionProcessing SSEEvent = "ExtractionProcessing"
	SSEEventExtractionExtracted  SSEEvent = "ExtractionExtracted"
	SSEEventExtractionRetrying   SSEEvent = "ExtractionRetrying"
	SSEEventExtractionFailed     SSEEvent = "ExtractionFailed"
	SSEEventQAGenerated          SSEEvent = "QAGenerated"
)

type SSEMessage struct {
	Channel string   `json:"channel"`
	Event   SSEEvent `json:"event"`
	Data    any      `json:"data,omitempty"`
}

type SSEClient struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	Channels map[string]bool
	Outbound chan SSEMessage
	done     chan struct{}
}

func (c *SSEClient) Done() <-chan struct{} {
	return c.done
}

func (c *SSEClient) Close() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}

type SSEHub struct {
	mu            sync.RWMutex
	logger        *logger.Logger
	subscriptions map[string]map[*SSEClient]bool
}

func NewSSEHub(log *logger.Logger) *SSEHub {
	return &SSEHub{
		logger:        log.With("component", "SSEHub"),
		subscriptions: make(map[string]map[*SSEClient]bool),
	}
}

func (hub *SSEHub) NewSSEClient(userID uuid.UUID) *SSEClient {
	return &SSEClient{
		ID:       uuid.New(),
		UserID:   userID,
		Channels: make(map[string]bool),
		Outbound: make(chan SSEMessage, 16),
		done:     make(chan struct{}),
	}
}

func (hub *SSEHub) AddChannel(client *SSEClient, channel string) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	channel = strings.TrimSpace(channel)
	if channel == "" {
		return
	}

	client.Channels[channel] = true

	clients, exists := hub.subscriptions[channel]
	if !exists {
		clients = make(map[*SSEClient]bool)
		hub.subscriptions[channel] = clients
	}
	clients[client] = true

	hub.logger.Debug("SSE client subscribed", "clientID", client.ID, "channel", channel)
}

func (hub *SSEHub) RemoveChannel(client *SSEClient, channel string) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	channel = strings.TrimSpace(channel)
	if channel == "" {
		return
	}
	delete(client.Channels, channel)

	clients, exists := hub.subscriptions[channel]
	if !exists {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(hub.subscriptions, channel)
	}
}

func (hub *SSEHub) RemoveClient(client *SSEClient) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	for channel := range client.Channels {
		if clients, exists := hub.subscriptions[channel]; exists {
			delete(clients, client)
			if len(clients) == 0 {
				delete(hub.subscriptions, channel)
			}
		}
	}
	client.Close()
	hub.logger.Debug("SSE client removed", "clientID", client.ID)
}

// Broadcast delivers to every subscriber of msg.Channel. Slow clients get
// dropped messages instead of blocking the publisher.
func (hub *SSEHub) Broadcast(msg SSEMessage) {
	hub.mu.RLock()
	defer hub.mu.RUnlock()

	clients, exists := hub.subscriptions[msg.Channel]
	if !exists {
		return
	}
	for client := range clients {
		select {
		case client.Outbound <- msg:
		default:
			hub.logger.Warn("SSE client outbound full, dropping message", "clientID", client.ID, "channel", msg.Channel)
		}
	}
}
