package server

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"Mx1Studio/logger"
	"Mx1Studio/model"
	"Mx1Studio/repository"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// ProjectHandler 项目 HTTP 处理器
type ProjectHandler struct {
	projects repository.ProjectRepository
}

// NewProjectHandler 创建项目处理器
func NewProjectHandler(projects repository.ProjectRepository) *ProjectHandler {
	return &ProjectHandler{projects: projects}
}

// SaveProjectRequest 保存项目请求：项目文件加上可选的 id 与名称
type SaveProjectRequest struct {
	ID      string          `json:"id,omitempty"`
	Name    string          `json:"name"`
	Project json.RawMessage `json:"project"`
}

// ProjectSummary 列表响应中的项目摘要
type ProjectSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SaveProjectHandler 保存项目文件。文档校验失败时不写入任何状态。
func (h *ProjectHandler) SaveProjectHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, 32<<20)) // 32MB
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	var req SaveProjectRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	// 校验项目文档；无效的文档不落库
	if _, err := model.ParseProjectFile(req.Project); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.Name == "" {
		req.Name = "Untitled project"
	}

	if req.ID == "" {
		project := &model.Project{
			ID:       uuid.New().String(),
			Name:     req.Name,
			Document: req.Project,
		}
		if err := h.projects.Create(ctx, project); err != nil {
			logger.Error("创建项目失败", logger.ErrorField(err))
			http.Error(w, "failed to save project", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(project)
		return
	}

	existing, err := h.projects.GetByID(ctx, req.ID)
	if err != nil {
		logger.Error("加载项目失败", logger.ErrorField(err))
		http.Error(w, "failed to load project", http.StatusInternalServerError)
		return
	}
	if existing == nil {
		http.Error(w, "project not found", http.StatusNotFound)
		return
	}

	existing.Name = req.Name
	existing.Document = req.Project
	if err := h.projects.Update(ctx, existing); err != nil {
		logger.Error("更新项目失败", logger.ErrorField(err))
		http.Error(w, "failed to save project", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(existing)
}

// GetProjectHandler 加载项目文件
func (h *ProjectHandler) GetProjectHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	project, err := h.projects.GetByID(ctx, id)
	if err != nil {
		logger.Error("加载项目失败", logger.ErrorField(err))
		http.Error(w, "failed to load project", http.StatusInternalServerError)
		return
	}
	if project == nil {
		http.Error(w, "project not found", http.StatusNotFound)
		return
	}

	// 返回原始项目文档；解析失败说明库里有坏数据
	pf, err := model.ParseProjectFile(project.Document)
	if err != nil {
		logger.Error("项目文档损坏",
			logger.String("projectId", id),
			logger.ErrorField(err))
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		ID      string             `json:"id"`
		Name    string             `json:"name"`
		Project *model.ProjectFile `json:"project"`
	}{ID: project.ID, Name: project.Name, Project: pf})
}

// ListProjectsHandler 列出项目
func (h *ProjectHandler) ListProjectsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	projects, err := h.projects.List(ctx, 100, 0)
	if err != nil {
		logger.Error("列出项目失败", logger.ErrorField(err))
		http.Error(w, "failed to list projects", http.StatusInternalServerError)
		return
	}

	summaries := make([]ProjectSummary, 0, len(projects))
	for _, p := range projects {
		summaries = append(summaries, ProjectSummary{
			ID:        p.ID,
			Name:      p.Name,
			UpdatedAt: p.UpdatedAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summaries)
}

// DeleteProjectHandler 删除项目
func (h *ProjectHandler) DeleteProjectHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	if err := h.projects.Delete(ctx, id); err != nil {
		logger.Error("删除项目失败", logger.ErrorField(err))
		http.Error(w, "failed to delete project", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
