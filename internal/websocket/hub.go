package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"research-flowstream/internal/pkg/logger"
	"research-flowstream/pkg/events"

	"github.com/redis/go-redis/v9"
)

const (
	hubLogModule = "Hub"

	// ClusterChannel carries feed messages between instances.
	ClusterChannel = "report_feed"
)

// FeedMessage is what report feed subscribers receive.
type FeedMessage struct {
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data"`
}

// Hub fans report events out to connected feed clients. With redis, every
// instance publishes to ClusterChannel and delivers only what it receives
// from there, so each client sees an event once.
type Hub struct {
	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client

	// done is closed when Run returns.
	done chan struct{}

	mu sync.RWMutex

	rdb    redis.UniversalClient
	logger logger.ILogger
}

func NewHub(rdb redis.UniversalClient, log logger.ILogger) *Hub {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		rdb:        rdb,
		logger:     log,
	}
}

// Run owns client registration until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	if h.rdb != nil {
		go h.subscribeToRedis(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			h.mu.Unlock()
			h.logger.Debug(hubLogModule, "Client registered", map[string]interface{}{"clients": h.ClientCount()})

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish implements the consumer's event forwarder.
func (h *Hub) Publish(ctx context.Context, event events.Event) error {
	data, err := json.Marshal(FeedMessage{Type: event.EventType(), Data: event.Payload()})
	if err != nil {
		return fmt.Errorf("encode feed message: %w", err)
	}

	if h.rdb != nil {
		if err := h.rdb.Publish(ctx, ClusterChannel, data).Err(); err != nil {
			return fmt.Errorf("publish feed message: %w", err)
		}
		return nil
	}
	h.deliver(data)
	return nil
}

// deliver sends data to every local client. Clients whose buffer is full are
// dropped.
func (h *Hub) deliver(data []byte) {
	var slow []*Client

	h.mu.RLock()
	for client := range h.clients {
		select {
		case client.Send <- data:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.logger.Warn(hubLogModule, "Client send buffer full, dropping client", nil)
		h.remove(client)
	}
}

// add registers client; it reports false once the hub has stopped.
func (h *Hub) add(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) subscribeToRedis(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, ClusterChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.deliver([]byte(msg.Payload))
		}
	}
}
