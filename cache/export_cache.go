package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	exportJobKey     = "export:%s"        // String: ExportJobStatus JSON
	exportHistoryKey = "export:recent:%s" // Sorted Set: 项目最近完成的导出
	exportJobTTL     = 12 * time.Hour
	exportHistoryTTL = 7 * 24 * time.Hour
	exportHistoryMax = 20
)

// ExportJobStatus 导出任务在缓存中的状态
type ExportJobStatus struct {
	JobID      string  `json:"jobId"`
	ProjectID  string  `json:"projectId"`
	State      string  `json:"state"`
	Progress   float64 `json:"progress"`
	StatusText string  `json:"statusText"`
	OutputURL  string  `json:"outputUrl,omitempty"`
	MimeType   string  `json:"mimeType,omitempty"`
	Error      string  `json:"error,omitempty"`
	StartedAt  int64   `json:"startedAt"`
	UpdatedAt  int64   `json:"updatedAt"`
}

// ExportCache 导出任务缓存操作
type ExportCache struct {
	client *redis.Client
}

// NewExportCache 创建导出缓存
func NewExportCache() *ExportCache {
	return &ExportCache{client: RedisClient}
}

// ========== 任务状态 ==========

// SetJobStatus 写入任务状态
func (c *ExportCache) SetJobStatus(ctx context.Context, status *ExportJobStatus) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	status.UpdatedAt = time.Now().UnixMilli()
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal export job status: %w", err)
	}

	key := fmt.Sprintf(exportJobKey, status.JobID)
	return c.client.Set(ctx, key, data, exportJobTTL).Err()
}

// GetJobStatus 获取任务状态，不存在时返回 nil
func (c *ExportCache) GetJobStatus(ctx context.Context, jobID string) (*ExportJobStatus, error) {
	if c.client == nil {
		return nil, fmt.Errorf("Redis client not initialized")
	}

	key := fmt.Sprintf(exportJobKey, jobID)
	data, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var status ExportJobStatus
	if err := json.Unmarshal([]byte(data), &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal export job status: %w", err)
	}
	return &status, nil
}

// DeleteJobStatus 删除任务状态
func (c *ExportCache) DeleteJobStatus(ctx context.Context, jobID string) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	key := fmt.Sprintf(exportJobKey, jobID)
	return c.client.Del(ctx, key).Err()
}

// ========== 导出历史 ==========

// RecordFinishedJob 将完成的任务记入项目导出历史
func (c *ExportCache) RecordFinishedJob(ctx context.Context, status *ExportJobStatus) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal export job status: %w", err)
	}

	key := fmt.Sprintf(exportHistoryKey, status.ProjectID)

	pipe := c.client.Pipeline()
	pipe.ZAdd(ctx, key, &redis.Z{
		Score:  float64(status.UpdatedAt),
		Member: data,
	})
	// 只保留最近 exportHistoryMax 条
	pipe.ZRemRangeByRank(ctx, key, 0, int64(-exportHistoryMax-1))
	pipe.Expire(ctx, key, exportHistoryTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// GetRecentJobs 获取项目最近的导出记录，按时间倒序
func (c *ExportCache) GetRecentJobs(ctx context.Context, projectID string) ([]ExportJobStatus, error) {
	if c.client == nil {
		return nil, fmt.Errorf("Redis client not initialized")
	}

	key := fmt.Sprintf(exportHistoryKey, projectID)
	result, err := c.client.ZRevRange(ctx, key, 0, exportHistoryMax-1).Result()
	if err != nil {
		return nil, err
	}

	jobs := make([]ExportJobStatus, 0, len(result))
	for _, data := range result {
		var status ExportJobStatus
		if err := json.Unmarshal([]byte(data), &status); err == nil {
			jobs = append(jobs, status)
		}
	}
	return jobs, nil
}
