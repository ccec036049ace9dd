package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"Mx1Studio/cache"
	"Mx1Studio/logger"

	"github.com/gorilla/websocket"
)

// MessageType 消息类型
type MessageType string

const (
	// 系统消息
	MsgTypeJoin  MessageType = "join"  // 加入会话
	MsgTypeLeave MessageType = "leave" // 离开会话
	MsgTypeError MessageType = "error" // 错误消息
	MsgTypePing  MessageType = "ping"  // 心跳
	MsgTypePong  MessageType = "pong"  // 心跳响应
	MsgTypeSync  MessageType = "sync"  // 时间线状态同步

	// 播放头控制消息
	MsgTypePlay     MessageType = "play"     // 播放
	MsgTypePause    MessageType = "pause"    // 暂停
	MsgTypeSeek     MessageType = "seek"     // 跳转
	MsgTypePlayhead MessageType = "playhead" // 播放头状态更新

	// 编辑消息
	MsgTypeEdit     MessageType = "edit"      // 时间线编辑已应用
	MsgTypeTimeline MessageType = "timeline"  // 完整时间线快照

	// 导出消息
	MsgTypeExportProgress MessageType = "export_progress" // 导出进度
)

// WSMessage WebSocket 消息结构
type WSMessage struct {
	Type      MessageType     `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	ClientID  string          `json:"clientId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// PlayheadData 播放头控制数据
type PlayheadData struct {
	Position  float64 `json:"position"`
	IsPlaying bool    `json:"isPlaying"`
}

// Client WebSocket 客户端
type Client struct {
	Hub       *SessionHub
	Conn      *websocket.Conn
	Send      chan []byte
	SessionID string
	ClientID  string
}

// SessionHub 编辑会话 WebSocket 管理中心
type SessionHub struct {
	// 会话 -> 客户端集合
	sessions map[string]map[*Client]bool

	// 客户端 -> 连接（一个客户端在一个会话只能有一个连接）
	clients map[string]*Client // key: sessionID:clientID

	// 注册/注销通道
	register   chan *Client
	unregister chan *Client

	// 广播通道
	broadcast chan *BroadcastMessage

	// 互斥锁
	mu sync.RWMutex

	// 关闭信号
	done chan struct{}
}

// BroadcastMessage 广播消息
type BroadcastMessage struct {
	SessionID string
	Message   []byte
	ExcludeID string // 排除的客户端ID（不向发送者回发）
}

// NewSessionHub 创建会话 Hub
func NewSessionHub() *SessionHub {
	return &SessionHub{
		sessions:   make(map[string]map[*Client]bool),
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
		done:       make(chan struct{}),
	}
}

// Run 启动 Hub 主循环
func (h *SessionHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.broadcastToSession(msg)

		case <-h.done:
			h.cleanup()
			return
		}
	}
}

// Stop 停止 Hub
func (h *SessionHub) Stop() {
	close(h.done)
}

// registerClient 注册客户端
func (h *SessionHub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sessionID := client.SessionID
	key := h.clientKey(sessionID, client.ClientID)

	// 同一客户端重复连接时踢掉旧连接
	if oldClient, exists := h.clients[key]; exists {
		h.removeClient(oldClient)
	}

	if h.sessions[sessionID] == nil {
		h.sessions[sessionID] = make(map[*Client]bool)
	}
	h.sessions[sessionID][client] = true
	h.clients[key] = client

	// 更新 Redis 中的客户端在线状态
	ctx := context.Background()
	sessionCache := cache.NewSessionCache()
	if err := sessionCache.UpdateViewerPresence(ctx, sessionID, client.ClientID); err != nil {
		logger.Warn("failed to update viewer presence on register",
			logger.ErrorField(err),
			logger.String("session", sessionID),
			logger.String("client", client.ClientID))
	}

	logger.Info("client registered",
		logger.String("session", sessionID),
		logger.String("client", client.ClientID))
}

// unregisterClient 注销客户端
func (h *SessionHub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeClient(client)
}

// removeClient 移除客户端（内部方法，需要持有锁）
func (h *SessionHub) removeClient(client *Client) {
	sessionID := client.SessionID
	key := h.clientKey(sessionID, client.ClientID)

	if _, ok := h.sessions[sessionID]; ok {
		if _, ok := h.sessions[sessionID][client]; ok {
			delete(h.sessions[sessionID], client)
			close(client.Send)

			// 会话空了就删掉
			if len(h.sessions[sessionID]) == 0 {
				delete(h.sessions, sessionID)
			}
		}
	}

	delete(h.clients, key)

	// 移除 Redis 中的客户端在线状态
	ctx := context.Background()
	sessionCache := cache.NewSessionCache()
	if err := sessionCache.RemoveViewerPresence(ctx, sessionID, client.ClientID); err != nil {
		logger.Warn("failed to remove viewer presence on unregister",
			logger.ErrorField(err),
			logger.String("session", sessionID),
			logger.String("client", client.ClientID))
	}

	logger.Info("client unregistered",
		logger.String("session", sessionID),
		logger.String("client", client.ClientID))
}

// broadcastToSession 向会话广播消息
func (h *SessionHub) broadcastToSession(msg *BroadcastMessage) {
	h.mu.RLock()
	clients, ok := h.sessions[msg.SessionID]
	if !ok {
		h.mu.RUnlock()
		return
	}

	// 复制客户端列表以避免长时间持有锁
	clientList := make([]*Client, 0, len(clients))
	for client := range clients {
		clientList = append(clientList, client)
	}
	h.mu.RUnlock()

	for _, client := range clientList {
		if msg.ExcludeID != "" && client.ClientID == msg.ExcludeID {
			continue
		}

		select {
		case client.Send <- msg.Message:
		default:
			// 发送缓冲区满，移除客户端
			h.unregister <- client
		}
	}
}

// cleanup 清理所有连接
func (h *SessionHub) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.sessions {
		for client := range clients {
			close(client.Send)
		}
	}
	h.sessions = make(map[string]map[*Client]bool)
	h.clients = make(map[string]*Client)
}

// clientKey 生成客户端键
func (h *SessionHub) clientKey(sessionID, clientID string) string {
	return fmt.Sprintf("%s:%s", sessionID, clientID)
}

// Register 注册客户端
func (h *SessionHub) Register(client *Client) {
	h.register <- client
}

// Unregister 注销客户端
func (h *SessionHub) Unregister(client *Client) {
	h.unregister <- client
}

// Broadcast 广播消息到会话
func (h *SessionHub) Broadcast(sessionID string, message []byte, excludeClientID string) {
	h.broadcast <- &BroadcastMessage{
		SessionID: sessionID,
		Message:   message,
		ExcludeID: excludeClientID,
	}
}

// BroadcastWSMessage 广播 WSMessage
func (h *SessionHub) BroadcastWSMessage(sessionID string, msg *WSMessage, excludeClientID string) error {
	msg.Timestamp = time.Now().UnixMilli()
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	h.Broadcast(sessionID, data, excludeClientID)
	return nil
}

// GetSessionClientCount 获取会话客户端数量
func (h *SessionHub) GetSessionClientCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.sessions[sessionID])
}

// ========== Client 方法 ==========

// ReadPump 读取消息循环
func (c *Client) ReadPump(ctx context.Context, handler func(ctx context.Context, client *Client, msg *WSMessage)) {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(4096) // 4KB
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, message, err := c.Conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logger.Warn("websocket read error",
						logger.ErrorField(err),
						logger.String("session", c.SessionID),
						logger.String("client", c.ClientID))
				}
				return
			}

			var msg WSMessage
			if err := json.Unmarshal(message, &msg); err != nil {
				logger.Warn("invalid message format",
					logger.ErrorField(err),
					logger.String("session", c.SessionID))
				continue
			}

			// 处理心跳
			if msg.Type == MsgTypePing {
				sessionCache := cache.NewSessionCache()
				if err := sessionCache.UpdateViewerPresence(ctx, c.SessionID, c.ClientID); err != nil {
					logger.Warn("failed to update viewer presence",
						logger.ErrorField(err),
						logger.String("session", c.SessionID),
						logger.String("client", c.ClientID))
				}

				pong := &WSMessage{Type: MsgTypePong, Timestamp: time.Now().UnixMilli()}
				if data, err := json.Marshal(pong); err == nil {
					select {
					case c.Send <- data:
					default:
					}
				}
				continue
			}

			// 调用消息处理器
			handler(ctx, c, &msg)
		}
	}
}

// WritePump 写入消息循环
func (c *Client) WritePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Hub 关闭了通道
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// 合并发送队列中的消息
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage 发送消息给客户端
func (c *Client) SendMessage(msg *WSMessage) error {
	msg.Timestamp = time.Now().UnixMilli()
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	select {
	case c.Send <- data:
		return nil
	default:
		return nil // 缓冲区满，丢弃消息
	}
}
