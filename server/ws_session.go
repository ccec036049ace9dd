package server

import (
	"context"
	"net/http"

	"Mx1Studio/core/session"
	"Mx1Studio/logger"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// WSSessionHandler 会话 WebSocket 处理器
type WSSessionHandler struct {
	hub      *session.SessionHub
	manager  *session.Manager
	upgrader websocket.Upgrader
}

// NewWSSessionHandler 创建 WebSocket 处理器
func NewWSSessionHandler(hub *session.SessionHub, manager *session.Manager) *WSSessionHandler {
	return &WSSessionHandler{
		hub:     hub,
		manager: manager,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeWS 建立播放头/状态同步连接
func (h *WSSessionHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	if h.manager.Get(sessionID) == nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	clientID := r.URL.Query().Get("clientId")
	if clientID == "" {
		clientID = uuid.New().String()
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", logger.ErrorField(err))
		return
	}

	client := &session.Client{
		Hub:       h.hub,
		Conn:      conn,
		Send:      make(chan []byte, 64),
		SessionID: sessionID,
		ClientID:  clientID,
	}

	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump(context.Background(), h.manager.HandleMessage)

	// 给新连接推送当前状态
	h.manager.HandleMessage(context.Background(), client, &session.WSMessage{Type: session.MsgTypeJoin})
}
