package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/your-org/photolabel/internal/models"
	"github.com/your-org/photolabel/internal/observability"
	"github.com/your-org/photolabel/pkg/dto"
)

const jobStatusEvent = "job_status"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one connected websocket subscriber with optional filters.
type Client struct {
	conn    *websocket.Conn
	send    chan []byte
	imageID string
	status  string
}

func (c *Client) wants(ev dto.WSJobEvent) bool {
	if c.imageID != "" && c.imageID != ev.ImageID {
		return false
	}
	if c.status != "" && c.status != string(ev.LabelStatus) {
		return false
	}
	return true
}

type message struct {
	event dto.WSJobEvent
	data  []byte
}

// Hub fans job status events out to connected websocket clients.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run is the hub event loop. It returns when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
				observability.WSConnections.Dec()
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			observability.WSConnections.Inc()
			slog.Debug("ws client connected", "image_id", client.imageID, "status", client.status)

		case client := <-h.unregister:
			h.remove(client)
			slog.Debug("ws client disconnected")

		case msg := <-h.broadcast:
			var slow []*Client
			h.mu.RLock()
			for client := range h.clients {
				if !client.wants(msg.event) {
					continue
				}
				select {
				case client.send <- msg.data:
				default:
					slow = append(slow, client)
				}
			}
			h.mu.RUnlock()
			for _, client := range slow {
				slog.Warn("drop slow ws client")
				h.remove(client)
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		observability.WSConnections.Dec()
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastJobEvent queues a job status transition for delivery. It has the
// shape of a queue.JobEventHandler so the hub can sit directly behind the
// NATS consumer.
func (h *Hub) BroadcastJobEvent(ctx context.Context, ev models.JobEvent) error {
	out := dto.WSJobEvent{
		Type:        jobStatusEvent,
		ImageID:     ev.ImageID,
		BucketID:    ev.BucketID,
		ImageName:   ev.ObjectName,
		LabelStatus: ev.Status,
		Labels:      ev.Labels,
		Error:       ev.Error,
		Timestamp:   ev.Timestamp,
	}
	data, err := json.Marshal(out)
	if err != nil {
		slog.Error("marshal ws event", "error", err)
		return nil
	}

	select {
	case h.broadcast <- message{event: out, data: data}:
		return nil
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleWS upgrades the request. Optional query filters: image_id, status.
func (h *Hub) HandleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "error", err)
		return
	}

	client := &Client{
		conn:    conn,
		send:    make(chan []byte, 64),
		imageID: c.Query("image_id"),
		status:  c.Query("status"),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump(h)
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// readPump only detects disconnects; clients never send anything meaningful.
func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
