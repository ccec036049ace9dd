package server

import (
	"encoding/json"
	"net/http"

	"Mx1Studio/core/export"
	"Mx1Studio/logger"
	"Mx1Studio/model"
	"Mx1Studio/repository"

	"github.com/gorilla/mux"
)

// ExportHandler 导出 HTTP 处理器
type ExportHandler struct {
	jobs     *ExportJobManager
	projects repository.ProjectRepository
}

// NewExportHandler 创建导出处理器
func NewExportHandler(jobs *ExportJobManager, projects repository.ProjectRepository) *ExportHandler {
	return &ExportHandler{jobs: jobs, projects: projects}
}

// StartExportRequest 启动导出请求。EditState 缺省时从项目文档读取。
type StartExportRequest struct {
	ProjectID     string           `json:"projectId,omitempty"`
	SessionID     string           `json:"sessionId,omitempty"`
	EditState     *model.EditState `json:"editState,omitempty"`
	SourceAssetID string           `json:"sourceAssetId"`
	FileName      string           `json:"fileName,omitempty"`
	Container     string           `json:"container,omitempty"`
	Quality       string           `json:"quality,omitempty"`
	Width         int              `json:"width,omitempty"`
	Height        int              `json:"height,omitempty"`
	AllowFallback bool             `json:"allowFallback,omitempty"`
}

// StartExportResponse 启动导出响应
type StartExportResponse struct {
	JobID string `json:"jobId"`
}

// StartExportHandler 启动导出任务
func (h *ExportHandler) StartExportHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req StartExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.SourceAssetID == "" {
		http.Error(w, "sourceAssetId is required", http.StatusBadRequest)
		return
	}

	editState := req.EditState
	if editState == nil {
		if req.ProjectID == "" {
			http.Error(w, "editState or projectId is required", http.StatusBadRequest)
			return
		}
		project, err := h.projects.GetByID(ctx, req.ProjectID)
		if err != nil {
			logger.Error("加载项目失败", logger.ErrorField(err))
			http.Error(w, "failed to load project", http.StatusInternalServerError)
			return
		}
		if project == nil {
			http.Error(w, "project not found", http.StatusNotFound)
			return
		}
		pf, err := model.ParseProjectFile(project.Document)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		editState = pf.EditState
	}

	job, err := h.jobs.Start(ctx, StartJobRequest{
		ProjectID:     req.ProjectID,
		SessionID:     req.SessionID,
		EditState:     editState,
		SourceAssetID: req.SourceAssetID,
		FileName:      req.FileName,
		Container:     req.Container,
		Quality:       export.QualityFromString(req.Quality),
		Width:         req.Width,
		Height:        req.Height,
		AllowFallback: req.AllowFallback,
	})
	if err != nil {
		logger.Warn("启动导出失败", logger.ErrorField(err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(&StartExportResponse{JobID: job.ID})
}

// GetExportHandler 查询导出进度/状态
func (h *ExportHandler) GetExportHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID := mux.Vars(r)["id"]

	status, err := h.jobs.Status(ctx, jobID)
	if err != nil {
		logger.Error("查询导出状态失败", logger.ErrorField(err))
		http.Error(w, "failed to read export status", http.StatusInternalServerError)
		return
	}
	if status == nil {
		http.Error(w, "export job not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// CancelExportHandler 取消导出任务
func (h *ExportHandler) CancelExportHandler(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]

	if !h.jobs.Cancel(jobID) {
		http.Error(w, "export job not found or already finished", http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
