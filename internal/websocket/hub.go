// Package websocket 把群发进度推送给会员区页面。
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"repaircafe/backend/internal/domain"
)

// upgraderFactory 创建带有 Origin 验证的 WebSocket 升级器
func upgraderFactory(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			for _, origin := range allowedOrigins {
				if origin == "*" {
					return true
				}
			}

			requestOrigin := r.Header.Get("Origin")
			if requestOrigin == "" {
				return true
			}

			for _, origin := range allowedOrigins {
				if requestOrigin == origin {
					return true
				}
			}
			return false
		},
	}
}

// MessageType 定义WebSocket消息类型
type MessageType string

const (
	MessageTypeProgress   MessageType = "progress"
	MessageTypePing       MessageType = "ping"
	MessageTypeSubscribe  MessageType = "subscribe"
	MessageTypeSubscribed MessageType = "subscribed"
)

// Message 定义WebSocket消息结构
type Message struct {
	Type      MessageType             `json:"type"`
	JobID     string                  `json:"jobId,omitempty"`
	Index     int                     `json:"index,omitempty"`
	Total     int                     `json:"total,omitempty"`
	Outcome   *domain.DeliveryOutcome `json:"outcome,omitempty"`
	Timestamp time.Time               `json:"timestamp"`
}

// Client 代表一个WebSocket客户端连接
type Client struct {
	conn  *websocket.Conn
	send  chan []byte
	hub   *Hub
	mu    sync.RWMutex
	jobID string // 为空表示接收全部任务
}

func (c *Client) wants(jobID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.jobID == "" || c.jobID == jobID
}

// Hub 管理所有WebSocket连接
type Hub struct {
	clients        map[*Client]struct{}
	register       chan *Client
	unregister     chan *Client
	broadcast      chan *Message
	mu             sync.RWMutex
	log            *zap.Logger
	allowedOrigins []string
}

// NewHub 创建WebSocket Hub
func NewHub(allowedOrigins []string, log *zap.Logger) *Hub {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Hub{
		clients:        make(map[*Client]struct{}),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		broadcast:      make(chan *Message, 256),
		log:            log,
		allowedOrigins: allowedOrigins,
	}
}

// Run 启动Hub，ctx 取消时关闭所有连接
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Info("websocket hub stopped")
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.deliver(msg)

		case <-ticker.C:
			h.deliver(&Message{Type: MessageTypePing, Timestamp: time.Now()})
		}
	}
}

// Publish 推送单个发送结果，队列满时丢弃
func (h *Hub) Publish(jobID string, index, total int, outcome domain.DeliveryOutcome) {
	msg := &Message{
		Type:      MessageTypeProgress,
		JobID:     jobID,
		Index:     index,
		Total:     total,
		Outcome:   &outcome,
		Timestamp: time.Now(),
	}

	select {
	case h.broadcast <- msg:
	default:
		h.log.Warn("progress queue full, dropping event", zap.String("job_id", jobID))
	}
}

// ClientCount 当前连接数
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) deliver(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("failed to marshal message", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if msg.Type == MessageTypeProgress && !client.wants(msg.JobID) {
			continue
		}
		select {
		case client.send <- data:
		default:
			h.log.Warn("client channel blocked, skipping")
		}
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
	}
	h.clients = make(map[*Client]struct{})
}

// HandleWebSocket 处理WebSocket连接，认证由路由上的中间件完成。
// 可通过 ?jobId= 只订阅某个任务。
func HandleWebSocket(hub *Hub) gin.HandlerFunc {
	upgrader := upgraderFactory(hub.allowedOrigins)

	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.log.Warn("failed to upgrade connection",
				zap.Error(err),
				zap.String("origin", c.Request.Header.Get("Origin")),
			)
			return
		}

		client := &Client{
			conn:  conn,
			send:  make(chan []byte, 256),
			hub:   hub,
			jobID: c.Query("jobId"),
		}

		hub.register <- client

		go client.writePump()
		go client.readPump()
	}
}

// readPump 处理客户端消息
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("websocket closed", zap.Error(err))
			}
			return
		}

		if msg.Type == MessageTypeSubscribe {
			c.mu.Lock()
			c.jobID = msg.JobID
			c.mu.Unlock()

			ack, _ := json.Marshal(&Message{Type: MessageTypeSubscribed, JobID: msg.JobID, Timestamp: time.Now()})
			select {
			case c.send <- ack:
			default:
			}
		}
	}
}

// writePump 发送消息给客户端
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
