package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	sessionPlaybackKey = "session:%s:playback"    // Hash: 播放头状态
	sessionViewersKey  = "session:%s:viewers"     // Set: 连接中的客户端
	sessionPresenceKey = "session:%s:presence:%s" // String: 客户端心跳 key (sessionID:clientID)
	sessionTTL         = 24 * time.Hour
	viewerPresenceTTL  = 60 * time.Second // 心跳过期时间 60秒
)

// PlayheadState 会话播放头的共享状态
type PlayheadState struct {
	Position  float64 `json:"position"` // 秒
	IsPlaying bool    `json:"isPlaying"`
	Zoom      float64 `json:"zoom"`
	UpdatedAt int64   `json:"updatedAt"`
	UpdatedBy string  `json:"updatedBy"`
}

// SessionCache 编辑会话缓存操作
type SessionCache struct {
	client *redis.Client
}

// NewSessionCache 创建会话缓存
func NewSessionCache() *SessionCache {
	return &SessionCache{client: RedisClient}
}

// ========== 播放头状态 ==========

// SetPlayheadState 设置播放头状态
func (c *SessionCache) SetPlayheadState(ctx context.Context, sessionID string, state *PlayheadState) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	key := fmt.Sprintf(sessionPlaybackKey, sessionID)

	pipe := c.client.Pipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"position":   state.Position,
		"is_playing": state.IsPlaying,
		"zoom":       state.Zoom,
		"updated_at": state.UpdatedAt,
		"updated_by": state.UpdatedBy,
	})
	pipe.Expire(ctx, key, sessionTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// GetPlayheadState 获取播放头状态
func (c *SessionCache) GetPlayheadState(ctx context.Context, sessionID string) (*PlayheadState, error) {
	if c.client == nil {
		return nil, fmt.Errorf("Redis client not initialized")
	}

	key := fmt.Sprintf(sessionPlaybackKey, sessionID)
	result, err := c.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, nil
	}

	state := &PlayheadState{}

	if v, ok := result["position"]; ok {
		state.Position, _ = strconv.ParseFloat(v, 64)
	}
	if v, ok := result["is_playing"]; ok {
		state.IsPlaying = v == "1" || v == "true"
	}
	if v, ok := result["zoom"]; ok {
		state.Zoom, _ = strconv.ParseFloat(v, 64)
	}
	if v, ok := result["updated_at"]; ok {
		state.UpdatedAt, _ = strconv.ParseInt(v, 10, 64)
	}
	if v, ok := result["updated_by"]; ok {
		state.UpdatedBy = v
	}

	return state, nil
}

// UpdatePlayheadPosition 更新播放头位置
func (c *SessionCache) UpdatePlayheadPosition(ctx context.Context, sessionID string, position float64, updatedBy string) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	key := fmt.Sprintf(sessionPlaybackKey, sessionID)
	return c.client.HSet(ctx, key, map[string]interface{}{
		"position":   position,
		"updated_at": time.Now().UnixMilli(),
		"updated_by": updatedBy,
	}).Err()
}

// UpdatePlayheadPlaying 更新播放/暂停状态
func (c *SessionCache) UpdatePlayheadPlaying(ctx context.Context, sessionID string, isPlaying bool, position float64, updatedBy string) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	key := fmt.Sprintf(sessionPlaybackKey, sessionID)
	return c.client.HSet(ctx, key, map[string]interface{}{
		"is_playing": isPlaying,
		"position":   position,
		"updated_at": time.Now().UnixMilli(),
		"updated_by": updatedBy,
	}).Err()
}

// ========== 客户端在线状态 ==========

// UpdateViewerPresence 更新客户端心跳
func (c *SessionCache) UpdateViewerPresence(ctx context.Context, sessionID, clientID string) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	presenceKey := fmt.Sprintf(sessionPresenceKey, sessionID, clientID)
	viewersKey := fmt.Sprintf(sessionViewersKey, sessionID)

	pipe := c.client.Pipeline()
	pipe.Set(ctx, presenceKey, time.Now().UnixMilli(), viewerPresenceTTL)
	pipe.SAdd(ctx, viewersKey, clientID)
	pipe.Expire(ctx, viewersKey, sessionTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// RemoveViewerPresence 移除客户端在线状态
func (c *SessionCache) RemoveViewerPresence(ctx context.Context, sessionID, clientID string) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	presenceKey := fmt.Sprintf(sessionPresenceKey, sessionID, clientID)
	viewersKey := fmt.Sprintf(sessionViewersKey, sessionID)

	pipe := c.client.Pipeline()
	pipe.Del(ctx, presenceKey)
	pipe.SRem(ctx, viewersKey, clientID)
	_, err := pipe.Exec(ctx)
	return err
}

// GetActiveViewers 获取活跃客户端ID列表（基于心跳）
func (c *SessionCache) GetActiveViewers(ctx context.Context, sessionID string) ([]string, error) {
	if c.client == nil {
		return nil, fmt.Errorf("Redis client not initialized")
	}

	viewersKey := fmt.Sprintf(sessionViewersKey, sessionID)
	members, err := c.client.SMembers(ctx, viewersKey).Result()
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return []string{}, nil
	}

	active := make([]string, 0, len(members))
	expired := make([]interface{}, 0)

	for _, clientID := range members {
		presenceKey := fmt.Sprintf(sessionPresenceKey, sessionID, clientID)
		exists, err := c.client.Exists(ctx, presenceKey).Result()
		if err != nil {
			continue
		}
		if exists > 0 {
			active = append(active, clientID)
		} else {
			expired = append(expired, clientID)
		}
	}

	// 清理过期客户端
	if len(expired) > 0 {
		c.client.SRem(ctx, viewersKey, expired...)
	}

	return active, nil
}

// ========== 编辑状态快照 ==========

// SaveStateSnapshot 缓存会话的编辑状态快照，加速恢复
func (c *SessionCache) SaveStateSnapshot(ctx context.Context, sessionID string, state interface{}) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal session state: %w", err)
	}

	key := fmt.Sprintf("session:%s:state", sessionID)
	return c.client.Set(ctx, key, data, sessionTTL).Err()
}

// LoadStateSnapshot 读取会话的编辑状态快照，未命中时返回 redis.Nil
func (c *SessionCache) LoadStateSnapshot(ctx context.Context, sessionID string, out interface{}) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	key := fmt.Sprintf("session:%s:state", sessionID)
	data, err := c.client.Get(ctx, key).Result()
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), out)
}

// ========== 清理 ==========

// ClearSession 清理会话所有缓存
func (c *SessionCache) ClearSession(ctx context.Context, sessionID string) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	keys := []string{
		fmt.Sprintf(sessionPlaybackKey, sessionID),
		fmt.Sprintf(sessionViewersKey, sessionID),
		fmt.Sprintf("session:%s:state", sessionID),
	}
	return c.client.Del(ctx, keys...).Err()
}
