package server

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"Mx1Studio/cache"
	"Mx1Studio/config"
	"Mx1Studio/core/export"
	"Mx1Studio/core/library"
	"Mx1Studio/core/session"
	"Mx1Studio/logger"
	"Mx1Studio/model"
	"Mx1Studio/repository"
	"Mx1Studio/storage"

	"github.com/google/uuid"
)

// 导出任务状态
const (
	JobStatePending   = "pending"
	JobStateRunning   = "running"
	JobStateDone      = "done"
	JobStateFailed    = "failed"
	JobStateCancelled = "cancelled"
)

// ExportJob 一次进行中的导出
type ExportJob struct {
	ID        string
	ProjectID string
	SessionID string
	Engine    *export.Engine
	cancel    context.CancelFunc
}

// ExportJobManager 管理并发导出任务。每个任务有自己的引擎实例，
// 进度写入 Redis 并通过会话 Hub 广播。
type ExportJobManager struct {
	backend export.Backend
	library *library.Library
	assets  repository.MediaAssetRepository
	hub     *session.SessionHub
	cache   *cache.ExportCache
	cfg     *config.Config

	mu   sync.RWMutex
	jobs map[string]*ExportJob
}

// NewExportJobManager 创建导出任务管理器
func NewExportJobManager(backend export.Backend, lib *library.Library, assets repository.MediaAssetRepository,
	hub *session.SessionHub, exportCache *cache.ExportCache, cfg *config.Config) *ExportJobManager {
	return &ExportJobManager{
		backend: backend,
		library: lib,
		assets:  assets,
		hub:     hub,
		cache:   exportCache,
		cfg:     cfg,
		jobs:    make(map[string]*ExportJob),
	}
}

// StartJobRequest 启动导出所需的全部输入
type StartJobRequest struct {
	ProjectID     string
	SessionID     string
	EditState     *model.EditState
	SourceAssetID string
	FileName      string
	Container     string
	Quality       export.Quality
	Width         int
	Height        int
	AllowFallback bool
}

// 源素材探测不到分辨率时的默认画布
const (
	defaultExportWidth  = 1280
	defaultExportHeight = 720
)

// exportDimensions 确定导出画布：请求值优先，其次源素材分辨率，最后默认画布。
func exportDimensions(reqW, reqH, srcW, srcH int) (int, int) {
	if reqW > 0 && reqH > 0 {
		return reqW, reqH
	}
	if srcW > 0 && srcH > 0 {
		return srcW, srcH
	}
	return defaultExportWidth, defaultExportHeight
}

// Start 启动一个导出任务并立即返回任务ID，渲染在后台进行。
func (m *ExportJobManager) Start(ctx context.Context, req StartJobRequest) (*ExportJob, error) {
	source, err := m.assets.GetByID(ctx, req.SourceAssetID)
	if err != nil {
		return nil, fmt.Errorf("加载源素材失败: %w", err)
	}
	if source == nil {
		return nil, fmt.Errorf("source asset not found: %s", req.SourceAssetID)
	}
	if source.Status != model.AssetStatusReady {
		return nil, fmt.Errorf("source asset is not ready: %s", source.Status)
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	job := &ExportJob{
		ID:        uuid.New().String(),
		ProjectID: req.ProjectID,
		SessionID: req.SessionID,
		Engine:    export.NewEngine(m.backend),
		cancel:    cancel,
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	status := &cache.ExportJobStatus{
		JobID:     job.ID,
		ProjectID: req.ProjectID,
		State:     JobStatePending,
		StartedAt: time.Now().UnixMilli(),
	}
	if err := m.cache.SetJobStatus(ctx, status); err != nil {
		logger.Warn("写入导出状态失败", logger.ErrorField(err))
	}

	go m.run(jobCtx, job, req, source)
	return job, nil
}

// Get 获取进行中的任务
func (m *ExportJobManager) Get(jobID string) *ExportJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[jobID]
}

// Cancel 取消任务。返回 false 表示任务不存在或已结束。
func (m *ExportJobManager) Cancel(jobID string) bool {
	m.mu.RLock()
	job := m.jobs[jobID]
	m.mu.RUnlock()
	if job == nil {
		return false
	}
	job.Engine.Cancel()
	job.cancel()
	return true
}

// Status 读取任务状态，优先取缓存
func (m *ExportJobManager) Status(ctx context.Context, jobID string) (*cache.ExportJobStatus, error) {
	return m.cache.GetJobStatus(ctx, jobID)
}

// run 在后台执行导出：下载源素材、渲染、上传结果。
func (m *ExportJobManager) run(ctx context.Context, job *ExportJob, req StartJobRequest, source *model.MediaAsset) {
	defer func() {
		m.mu.Lock()
		delete(m.jobs, job.ID)
		m.mu.Unlock()
	}()

	workDir := filepath.Join(m.cfg.ExportDir, "work")
	sourcePath, err := m.library.FetchLocal(ctx, source, workDir)
	if err != nil {
		m.finishJob(job, JobStateFailed, nil, fmt.Errorf("获取源素材失败: %w", err))
		return
	}

	width, height := exportDimensions(req.Width, req.Height, source.Width, source.Height)

	result, err := job.Engine.Export(ctx, export.Request{
		EditState:  req.EditState,
		SourcePath: sourcePath,
		Resolve: func(mediaFileID string) (string, error) {
			asset, err := m.assets.GetByID(ctx, mediaFileID)
			if err != nil {
				return "", err
			}
			if asset == nil {
				return "", fmt.Errorf("asset not found: %s", mediaFileID)
			}
			return m.library.FetchLocal(ctx, asset, workDir)
		},
		Options: export.Options{
			FileName:      req.FileName,
			Container:     req.Container,
			Quality:       req.Quality,
			OutputDir:     m.cfg.ExportDir,
			Width:         width,
			Height:        height,
			FontPath:      m.cfg.FontPath,
			AllowFallback: req.AllowFallback,
		},
		OnProgress: func(percent float64, statusText string) {
			m.reportProgress(job, percent, statusText)
		},
	})
	if err != nil {
		state := JobStateFailed
		if ctx.Err() != nil {
			state = JobStateCancelled
		}
		m.finishJob(job, state, nil, err)
		return
	}

	// 上传结果到对象存储
	objectKey := storage.ExportPrefix + filepath.Base(result.Path)
	uploadCtx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	if err := storage.UploadFile(uploadCtx, objectKey, result.Path, result.MimeType); err != nil {
		logger.Warn("上传导出结果失败，仅保留本地文件",
			logger.String("jobId", job.ID),
			logger.ErrorField(err))
	} else {
		os.Remove(result.Path)
	}

	m.finishJob(job, JobStateDone, &cache.ExportJobStatus{
		OutputURL: "/media/" + objectKey,
		MimeType:  result.MimeType,
	}, nil)

	logger.Info("导出完成",
		logger.String("jobId", job.ID),
		logger.String("output", objectKey),
		logger.String("mime", result.MimeType))
}

// reportProgress 将进度写入缓存并广播给会话
func (m *ExportJobManager) reportProgress(job *ExportJob, percent float64, statusText string) {
	ctx := context.Background()
	status := &cache.ExportJobStatus{
		JobID:      job.ID,
		ProjectID:  job.ProjectID,
		State:      JobStateRunning,
		Progress:   percent,
		StatusText: statusText,
	}
	if err := m.cache.SetJobStatus(ctx, status); err != nil {
		logger.Warn("写入导出进度失败", logger.ErrorField(err))
	}

	if job.SessionID != "" {
		if data, err := json.Marshal(status); err == nil {
			m.hub.BroadcastWSMessage(job.SessionID, &session.WSMessage{
				Type:      session.MsgTypeExportProgress,
				SessionID: job.SessionID,
				Data:      data,
			}, "")
		}
	}
}

// finishJob 落盘最终状态
func (m *ExportJobManager) finishJob(job *ExportJob, state string, extra *cache.ExportJobStatus, runErr error) {
	ctx := context.Background()

	status := &cache.ExportJobStatus{
		JobID:     job.ID,
		ProjectID: job.ProjectID,
		State:     state,
	}
	switch state {
	case JobStateDone:
		status.Progress = 100
		status.StatusText = "Export complete"
		if extra != nil {
			status.OutputURL = extra.OutputURL
			status.MimeType = extra.MimeType
		}
	case JobStateCancelled:
		status.StatusText = "Export cancelled"
	default:
		status.StatusText = "Export failed"
		if runErr != nil {
			status.Error = runErr.Error()
			logger.Error("导出失败",
				logger.String("jobId", job.ID),
				logger.ErrorField(runErr))
		}
	}

	if err := m.cache.SetJobStatus(ctx, status); err != nil {
		logger.Warn("写入导出状态失败", logger.ErrorField(err))
	}
	if state == JobStateDone {
		if err := m.cache.RecordFinishedJob(ctx, status); err != nil {
			logger.Warn("记录导出历史失败", logger.ErrorField(err))
		}
	}

	if job.SessionID != "" {
		if data, err := json.Marshal(status); err == nil {
			m.hub.BroadcastWSMessage(job.SessionID, &session.WSMessage{
				Type:      session.MsgTypeExportProgress,
				SessionID: job.SessionID,
				Data:      data,
			}, "")
		}
	}
}
