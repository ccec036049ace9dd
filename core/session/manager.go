package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"Mx1Studio/cache"
	"Mx1Studio/core/timeline"
	"Mx1Studio/logger"
	"Mx1Studio/model"
	"Mx1Studio/repository"

	"github.com/google/uuid"
)

// Session 服务端持有的编辑会话：一个项目的时间线编辑器加上共享播放头。
type Session struct {
	ID        string
	ProjectID string
	Editor    *timeline.Editor
	Filters   model.FilterSettings
	TrimStart float64
	TrimEnd   float64
	CreatedAt time.Time

	mu sync.Mutex
}

// Manager 编辑会话业务管理器
type Manager struct {
	projects repository.ProjectRepository
	cache    *cache.SessionCache
	hub      *SessionHub

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager 创建会话管理器
func NewManager(projects repository.ProjectRepository, sessionCache *cache.SessionCache, hub *SessionHub) *Manager {
	return &Manager{
		projects: projects,
		cache:    sessionCache,
		hub:      hub,
		sessions: make(map[string]*Session),
	}
}

// ========== 会话管理 ==========

// Open 为一个项目打开编辑会话。项目文档存在时从其恢复编辑状态，
// 否则从空时间线开始。
func (m *Manager) Open(ctx context.Context, projectID string) (*Session, error) {
	editor := timeline.NewEditor()
	filters := model.DefaultFilters()
	trimStart, trimEnd := 0.0, 0.0

	if projectID != "" {
		project, err := m.projects.GetByID(ctx, projectID)
		if err != nil {
			return nil, fmt.Errorf("加载项目失败: %w", err)
		}
		if project == nil {
			return nil, fmt.Errorf("project not found: %s", projectID)
		}
		if len(project.Document) > 0 {
			pf, err := model.ParseProjectFile(project.Document)
			if err != nil {
				return nil, err
			}
			editor = timeline.NewEditorFromState(pf.EditState.Timeline)
			filters = pf.EditState.Filters
			trimStart = pf.EditState.TrimStart
			trimEnd = pf.EditState.TrimEnd
		}
	}

	sess := &Session{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		Editor:    editor,
		Filters:   filters,
		TrimStart: trimStart,
		TrimEnd:   trimEnd,
		CreatedAt: time.Now(),
	}

	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()

	// 缓存初始快照
	if err := m.cache.SaveStateSnapshot(ctx, sess.ID, sess.EditState()); err != nil {
		logger.Warn("缓存会话快照失败", logger.ErrorField(err))
	}

	logger.Info("会话已打开",
		logger.String("sessionId", sess.ID),
		logger.String("projectId", projectID))
	return sess, nil
}

// Get 获取会话
func (m *Manager) Get(sessionID string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[sessionID]
}

// Close 关闭会话并清理缓存
func (m *Manager) Close(ctx context.Context, sessionID string) {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	if err := m.cache.ClearSession(ctx, sessionID); err != nil {
		logger.Warn("清理会话缓存失败", logger.ErrorField(err))
	}
}

// EditState 组装会话当前的完整编辑状态。
func (s *Session) EditState() *model.EditState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &model.EditState{
		Timeline:  s.Editor.State(),
		Filters:   s.Filters,
		TrimStart: s.TrimStart,
		TrimEnd:   s.TrimEnd,
	}
}

// ========== 编辑操作 ==========

// EditRequest 一次命名编辑操作。Op 决定哪些字段生效。
type EditRequest struct {
	Op string `json:"op"`

	TrackID   string            `json:"trackId,omitempty"`
	TrackType model.TrackType   `json:"trackType,omitempty"`
	ClipID    string            `json:"clipId,omitempty"`
	Clip      json.RawMessage   `json:"clip,omitempty"`
	Update    *model.ClipUpdate `json:"update,omitempty"`
	Time      float64           `json:"time,omitempty"`
	Zoom      float64           `json:"zoom,omitempty"`
	Volume    float64           `json:"volume,omitempty"`
	Flag      bool              `json:"flag,omitempty"`
}

// EditResult 编辑操作的结果
type EditResult struct {
	Applied  bool            `json:"applied"`
	Timeline *model.Timeline `json:"timeline"`
}

// ApplyEdit 对会话应用一次命名编辑操作，成功后广播新状态。
func (m *Manager) ApplyEdit(ctx context.Context, sessionID string, req *EditRequest) (*EditResult, error) {
	sess := m.Get(sessionID)
	if sess == nil {
		return nil, fmt.Errorf("session not found: %s", sessionID)
	}

	applied, err := sess.apply(req)
	if err != nil {
		return nil, err
	}

	state := sess.Editor.State()

	// 缓存快照并广播
	if err := m.cache.SaveStateSnapshot(ctx, sessionID, sess.EditState()); err != nil {
		logger.Warn("缓存会话快照失败", logger.ErrorField(err))
	}
	m.broadcastTimeline(sessionID, state)

	return &EditResult{Applied: applied, Timeline: state}, nil
}

// apply 将编辑操作转给编辑器
func (s *Session) apply(req *EditRequest) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.Editor
	switch req.Op {
	case "addTrack":
		return e.AddTrack(req.TrackType) != nil, nil
	case "addClip":
		clip, err := model.UnmarshalClip(req.Clip)
		if err != nil {
			return false, fmt.Errorf("invalid clip payload: %w", err)
		}
		return e.AddClip(req.TrackID, clip) != nil, nil
	case "updateClip":
		if req.Update == nil {
			return false, fmt.Errorf("updateClip requires an update payload")
		}
		return e.UpdateClip(req.ClipID, *req.Update), nil
	case "deleteClip":
		return e.DeleteClip(req.ClipID), nil
	case "splitClip":
		return e.SplitClip(req.ClipID, req.Time), nil
	case "copyClip":
		return e.CopyClip(req.ClipID), nil
	case "pasteClip":
		return e.PasteClip(req.TrackID) != nil, nil
	case "snapToStart":
		return e.SnapToStart(req.TrackID), nil
	case "deleteTrack":
		return e.DeleteTrack(req.TrackID), nil
	case "muteTrack":
		return e.SetTrackMuted(req.TrackID, req.Flag), nil
	case "lockTrack":
		return e.SetTrackLocked(req.TrackID, req.Flag), nil
	case "setTrackVolume":
		return e.SetTrackVolume(req.TrackID, req.Volume), nil
	case "seek":
		e.Seek(req.Time)
		return true, nil
	case "setZoom":
		e.SetZoom(req.Zoom)
		return true, nil
	case "undo":
		return e.Undo(), nil
	case "redo":
		return e.Redo(), nil
	default:
		return false, fmt.Errorf("unknown edit op: %s", req.Op)
	}
}

// broadcastTimeline 向会话广播完整时间线快照
func (m *Manager) broadcastTimeline(sessionID string, state *model.Timeline) {
	data, err := json.Marshal(state)
	if err != nil {
		logger.Warn("序列化时间线失败", logger.ErrorField(err))
		return
	}
	if err := m.hub.BroadcastWSMessage(sessionID, &WSMessage{
		Type:      MsgTypeTimeline,
		SessionID: sessionID,
		Data:      data,
	}, ""); err != nil {
		logger.Warn("广播时间线失败", logger.ErrorField(err))
	}
}

// ========== WebSocket 消息处理 ==========

// HandleMessage 处理客户端的播放头控制消息
func (m *Manager) HandleMessage(ctx context.Context, client *Client, msg *WSMessage) {
	switch msg.Type {
	case MsgTypePlay, MsgTypePause, MsgTypeSeek:
		var data PlayheadData
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &data); err != nil {
				client.SendMessage(&WSMessage{Type: MsgTypeError, Data: json.RawMessage(`"invalid playhead payload"`)})
				return
			}
		}

		isPlaying := msg.Type == MsgTypePlay
		if msg.Type == MsgTypeSeek {
			isPlaying = data.IsPlaying
		}

		// 同步到编辑器播放头
		if sess := m.Get(client.SessionID); sess != nil {
			sess.mu.Lock()
			sess.Editor.Seek(data.Position)
			sess.mu.Unlock()
		}

		if err := m.cache.UpdatePlayheadPlaying(ctx, client.SessionID, isPlaying, data.Position, client.ClientID); err != nil {
			logger.Warn("更新播放头状态失败", logger.ErrorField(err))
		}

		// 转发给会话内其他客户端
		out := &WSMessage{
			Type:      msg.Type,
			SessionID: client.SessionID,
			ClientID:  client.ClientID,
			Data:      msg.Data,
		}
		if err := m.hub.BroadcastWSMessage(client.SessionID, out, client.ClientID); err != nil {
			logger.Warn("广播播放头消息失败", logger.ErrorField(err))
		}

	case MsgTypeJoin:
		// 给新加入的客户端发送当前状态快照
		m.sendSnapshot(ctx, client)

	default:
		logger.Debug("忽略未知消息类型",
			logger.String("type", string(msg.Type)),
			logger.String("session", client.SessionID))
	}
}

// sendSnapshot 给客户端发送时间线与播放头快照
func (m *Manager) sendSnapshot(ctx context.Context, client *Client) {
	sess := m.Get(client.SessionID)
	if sess == nil {
		client.SendMessage(&WSMessage{Type: MsgTypeError, Data: json.RawMessage(`"session not found"`)})
		return
	}

	if data, err := json.Marshal(sess.Editor.State()); err == nil {
		client.SendMessage(&WSMessage{
			Type:      MsgTypeTimeline,
			SessionID: client.SessionID,
			Data:      data,
		})
	}

	playhead, err := m.cache.GetPlayheadState(ctx, client.SessionID)
	if err != nil || playhead == nil {
		return
	}
	if data, err := json.Marshal(playhead); err == nil {
		client.SendMessage(&WSMessage{
			Type:      MsgTypePlayhead,
			SessionID: client.SessionID,
			Data:      data,
		})
	}
}
