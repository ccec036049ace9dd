package server

import (
	"encoding/json"
	"net/http"

	"Mx1Studio/core/session"
	"Mx1Studio/logger"

	"github.com/gorilla/mux"
)

// SessionHandler 编辑会话 HTTP 处理器
type SessionHandler struct {
	manager *session.Manager
}

// NewSessionHandler 创建会话处理器
func NewSessionHandler(manager *session.Manager) *SessionHandler {
	return &SessionHandler{manager: manager}
}

// OpenSessionRequest 打开会话请求
type OpenSessionRequest struct {
	ProjectID string `json:"projectId,omitempty"`
}

// OpenSessionResponse 打开会话响应
type OpenSessionResponse struct {
	SessionID string `json:"sessionId"`
	ProjectID string `json:"projectId,omitempty"`
}

// OpenSessionHandler 打开编辑会话
func (h *SessionHandler) OpenSessionHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req OpenSessionRequest
	if r.Body != nil {
		// 允许空请求体：从空时间线开始
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	sess, err := h.manager.Open(ctx, req.ProjectID)
	if err != nil {
		logger.Warn("打开会话失败", logger.ErrorField(err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(&OpenSessionResponse{
		SessionID: sess.ID,
		ProjectID: sess.ProjectID,
	})
}

// EditHandler 对会话应用一次命名编辑操作
func (h *SessionHandler) EditHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := mux.Vars(r)["id"]

	var req session.EditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.Op == "" {
		http.Error(w, "op is required", http.StatusBadRequest)
		return
	}

	result, err := h.manager.ApplyEdit(ctx, sessionID, &req)
	if err != nil {
		logger.Warn("编辑操作失败",
			logger.String("session", sessionID),
			logger.String("op", req.Op),
			logger.ErrorField(err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// TimelineHandler 返回会话当前时间线状态
func (h *SessionHandler) TimelineHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	sess := h.manager.Get(sessionID)
	if sess == nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sess.EditState())
}

// CloseSessionHandler 关闭会话
func (h *SessionHandler) CloseSessionHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := mux.Vars(r)["id"]

	if h.manager.Get(sessionID) == nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	h.manager.Close(ctx, sessionID)
	w.WriteHeader(http.StatusNoContent)
}
