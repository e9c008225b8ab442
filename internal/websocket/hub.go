package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mailsink/backend/internal/auth/jwt"
	"mailsink/backend/internal/domain"
)

// AddressStore 地址查询接口，订阅时做归属校验用
type AddressStore interface {
	GetAddress(id string) (*domain.Address, error)
}

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
				// 无 Origin 按同源请求处理
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
	MessageTypeNewMail     MessageType = "new_mail"
	MessageTypePing        MessageType = "ping"
	MessageTypePong        MessageType = "pong"
	MessageTypeSubscribe   MessageType = "subscribe"
	MessageTypeUnsubscribe MessageType = "unsubscribe"
	MessageTypeSubscribed  MessageType = "subscribed"
	MessageTypeError       MessageType = "error"
)

// Message 定义WebSocket消息结构
type Message struct {
	Type      MessageType     `json:"type"`
	AddressID string          `json:"addressId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Client 代表一个WebSocket客户端连接
type Client struct {
	ID         string
	conn       *websocket.Conn
	send       chan []byte
	hub        *Hub
	addressIDs map[string]bool // 已订阅的地址ID
	mu         sync.RWMutex
	log        *zap.Logger

	// UserID 为空表示匿名连接，只能订阅无归属的地址
	UserID string
}

// Hub 管理所有WebSocket连接，按地址分发新邮件通知。
type Hub struct {
	clients        map[string]*Client            // clientID -> Client
	addresses      map[string]map[string]*Client // addressID -> clientID -> Client
	register       chan *Client
	unregister     chan *Client
	broadcast      chan *BroadcastMessage
	mu             sync.RWMutex
	log            *zap.Logger
	allowedOrigins []string

	tokens *jwt.Manager // 可选：带令牌的连接解析出 UserID
	store  AddressStore
}

// BroadcastMessage 广播消息
type BroadcastMessage struct {
	AddressID string
	Message   *Message
}

// NewHub 创建WebSocket Hub
func NewHub(allowedOrigins []string, tokens *jwt.Manager, store AddressStore, log *zap.Logger) *Hub {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Hub{
		clients:        make(map[string]*Client),
		addresses:      make(map[string]map[string]*Client),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		broadcast:      make(chan *BroadcastMessage, 256),
		log:            log,
		allowedOrigins: allowedOrigins,
		tokens:         tokens,
		store:          store,
	}
}

// Run 启动Hub
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
			h.clients[client.ID] = client
			h.mu.Unlock()
			h.log.Info("client registered", zap.String("id", client.ID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				for addressID := range client.addressIDs {
					if clients, exists := h.addresses[addressID]; exists {
						delete(clients, client.ID)
						if len(clients) == 0 {
							delete(h.addresses, addressID)
						}
					}
				}
				delete(h.clients, client.ID)
				close(client.send)
				h.log.Info("client unregistered", zap.String("id", client.ID))
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.broadcastToAddress(msg.AddressID, msg.Message)

		case <-ticker.C:
			h.pingAllClients()
		}
	}
}

// NewMailData 新邮件通知数据
type NewMailData struct {
	MessageID  string `json:"messageId"`
	AddressID  string `json:"addressId"`
	From       string `json:"from"`
	Subject    string `json:"subject"`
	Preview    string `json:"preview,omitempty"`
	HasHTML    bool   `json:"hasHtml"`
	HasText    bool   `json:"hasText"`
	ReceivedAt string `json:"receivedAt"`
}

// NotifyNewMail 向订阅该地址的客户端推送新邮件通知。
// 实现 service.Notifier。
func (h *Hub) NotifyNewMail(addressID string, message *domain.Message) {
	preview := message.TextBody
	if len(preview) > 100 {
		preview = preview[:100]
	}

	data, err := json.Marshal(NewMailData{
		MessageID:  message.ID,
		AddressID:  addressID,
		From:       message.FromAddress,
		Subject:    message.Subject,
		Preview:    preview,
		HasHTML:    message.HTMLBody != "",
		HasText:    message.TextBody != "",
		ReceivedAt: message.ReceivedAt.Format(time.RFC3339),
	})
	if err != nil {
		h.log.Error("failed to marshal new mail data", zap.Error(err))
		return
	}

	msg := &Message{
		Type:      MessageTypeNewMail,
		AddressID: addressID,
		Data:      data,
		Timestamp: time.Now(),
	}

	select {
	case h.broadcast <- &BroadcastMessage{AddressID: addressID, Message: msg}:
	default:
		// 广播队列满时丢弃通知，入库流程不被推送阻塞
		h.log.Warn("broadcast queue full, dropping notification",
			zap.String("addressID", addressID))
	}
}

// broadcastToAddress 向订阅特定地址的客户端广播消息。
// 订阅表只能在持锁期间读取，先拷出快照再逐个投递。
func (h *Hub) broadcastToAddress(addressID string, msg *Message) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.addresses[addressID]))
	for _, client := range h.addresses[addressID] {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	if len(clients) == 0 {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("failed to marshal message", zap.Error(err))
		return
	}

	for _, client := range clients {
		select {
		case client.send <- data:
		default:
			// 客户端阻塞，跳过
			h.log.Warn("client channel blocked, skipping", zap.String("clientID", client.ID))
		}
	}
}

// pingAllClients 向所有客户端发送ping
func (h *Hub) pingAllClients() {
	msg := &Message{
		Type:      MessageTypePing,
		Timestamp: time.Now(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		select {
		case client.send <- data:
		default:
		}
	}
}

// closeAllClients 关闭所有客户端连接
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		close(client.send)
	}
	h.clients = make(map[string]*Client)
	h.addresses = make(map[string]map[string]*Client)
}

// identifyClient 解析连接的用户身份。
// 令牌缺失或无效不拒绝连接，只是按匿名处理。
func (h *Hub) identifyClient(c *gin.Context) *Client {
	client := &Client{
		ID:         uuid.NewString(),
		addressIDs: make(map[string]bool),
		log:        h.log,
	}

	token := c.Query("token")
	if token == "" {
		authHeader := c.GetHeader("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			token = parts[1]
		}
	}

	if token != "" && h.tokens != nil {
		if claims, err := h.tokens.ValidateToken(token); err == nil {
			client.UserID = claims.UserID
		}
	}

	return client
}

// HandleWebSocket 处理WebSocket连接
func HandleWebSocket(hub *Hub) gin.HandlerFunc {
	upgrader := upgraderFactory(hub.allowedOrigins)

	return func(c *gin.Context) {
		client := hub.identifyClient(c)

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.log.Error("failed to upgrade connection",
				zap.Error(err),
				zap.String("origin", c.Request.Header.Get("Origin")),
				zap.String("remote_addr", c.ClientIP()))
			return
		}

		client.conn = conn
		client.hub = hub
		client.send = make(chan []byte, 256)

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
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Error("websocket error", zap.Error(err))
			}
			break
		}

		c.handleMessage(&msg)
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

			c.conn.WriteMessage(websocket.TextMessage, message)

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage 处理接收到的消息
func (c *Client) handleMessage(msg *Message) {
	switch msg.Type {
	case MessageTypeSubscribe:
		c.subscribeAddress(msg.AddressID)
	case MessageTypeUnsubscribe:
		c.unsubscribeAddress(msg.AddressID)
	case MessageTypePong:
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	default:
		c.log.Warn("unknown message type", zap.String("type", string(msg.Type)))
	}
}

// subscribeAddress 订阅地址的新邮件通知。
//
// 权限模型与 HTTP 层一致：匿名地址凭 ID 即可订阅，
// 有归属的地址只接受所有者的连接。
func (c *Client) subscribeAddress(addressID string) {
	if addressID == "" {
		c.sendError("address ID is required")
		return
	}

	address, err := c.hub.store.GetAddress(addressID)
	if err != nil {
		c.sendError("unknown address: " + addressID)
		return
	}

	if address.OwnerID != nil && *address.OwnerID != "" && *address.OwnerID != c.UserID {
		c.log.Warn("subscription denied: no permission",
			zap.String("clientID", c.ID),
			zap.String("addressID", addressID))
		c.sendError("no permission to access address: " + addressID)
		return
	}

	c.mu.Lock()
	c.addressIDs[addressID] = true
	c.mu.Unlock()

	c.hub.mu.Lock()
	if c.hub.addresses[addressID] == nil {
		c.hub.addresses[addressID] = make(map[string]*Client)
	}
	c.hub.addresses[addressID][c.ID] = c
	c.hub.mu.Unlock()

	c.log.Info("subscribed to address",
		zap.String("clientID", c.ID),
		zap.String("addressID", addressID),
		zap.String("userID", c.UserID))

	c.sendMessage(&Message{
		Type:      MessageTypeSubscribed,
		AddressID: addressID,
		Timestamp: time.Now(),
	})
}

// unsubscribeAddress 取消订阅地址
func (c *Client) unsubscribeAddress(addressID string) {
	c.mu.Lock()
	delete(c.addressIDs, addressID)
	c.mu.Unlock()

	c.hub.mu.Lock()
	if clients, exists := c.hub.addresses[addressID]; exists {
		delete(clients, c.ID)
		if len(clients) == 0 {
			delete(c.hub.addresses, addressID)
		}
	}
	c.hub.mu.Unlock()

	c.log.Info("unsubscribed from address",
		zap.String("clientID", c.ID),
		zap.String("addressID", addressID))
}

// sendError 发送错误消息给客户端
func (c *Client) sendError(errMsg string) {
	c.sendMessage(&Message{
		Type:      MessageTypeError,
		Error:     errMsg,
		Timestamp: time.Now(),
	})
}

// sendMessage 发送消息给客户端
func (c *Client) sendMessage(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.log.Error("failed to marshal message", zap.Error(err))
		return
	}

	select {
	case c.send <- data:
	default:
		c.log.Warn("client channel blocked", zap.String("clientID", c.ID))
	}
}
