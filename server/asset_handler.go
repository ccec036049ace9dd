package server

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"Mx1Studio/config"
	"Mx1Studio/core/library"
	"Mx1Studio/logger"
	"Mx1Studio/model"
	"Mx1Studio/repository"
	"Mx1Studio/storage"

	"github.com/gorilla/mux"
)

// AssetHandler 素材库 HTTP 处理器
type AssetHandler struct {
	assets  repository.MediaAssetRepository
	library *library.Library
	cfg     *config.Config
}

// NewAssetHandler 创建素材处理器
func NewAssetHandler(assets repository.MediaAssetRepository, lib *library.Library, cfg *config.Config) *AssetHandler {
	return &AssetHandler{assets: assets, library: lib, cfg: cfg}
}

// ListAssetsHandler 列出素材，?kind=video|audio 过滤
func (h *AssetHandler) ListAssetsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	kind := model.ClipKind(r.URL.Query().Get("kind"))
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	assets, err := h.assets.List(ctx, kind, limit, 0)
	if err != nil {
		logger.Error("列出素材失败", logger.ErrorField(err))
		http.Error(w, "failed to list assets", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(assets)
}

// GetAssetHandler 获取单个素材
func (h *AssetHandler) GetAssetHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	asset, err := h.assets.GetByID(ctx, id)
	if err != nil {
		logger.Error("加载素材失败", logger.ErrorField(err))
		http.Error(w, "failed to load asset", http.StatusInternalServerError)
		return
	}
	if asset == nil {
		http.Error(w, "asset not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(asset)
}

// UploadAssetHandler 上传并入库一个媒体文件 (multipart form, field "file")
func (h *AssetHandler) UploadAssetHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// 512MB 上限
	if err := r.ParseMultipartForm(512 << 20); err != nil {
		http.Error(w, "failed to parse upload", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file field is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if !library.IsMediaFile(header.Filename) {
		http.Error(w, "unsupported media type", http.StatusUnsupportedMediaType)
		return
	}

	// 写入监视目录旁的上传暂存区，避免与 watcher 抢同一批文件
	uploadDir := filepath.Join(h.cfg.WatchDir, "uploads")
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		logger.Error("创建上传目录失败", logger.ErrorField(err))
		http.Error(w, "failed to store upload", http.StatusInternalServerError)
		return
	}

	localPath := filepath.Join(uploadDir, filepath.Base(header.Filename))
	dst, err := os.Create(localPath)
	if err != nil {
		logger.Error("创建上传文件失败", logger.ErrorField(err))
		http.Error(w, "failed to store upload", http.StatusInternalServerError)
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		os.Remove(localPath)
		logger.Error("写入上传文件失败", logger.ErrorField(err))
		http.Error(w, "failed to store upload", http.StatusInternalServerError)
		return
	}
	dst.Close()

	asset, err := h.library.Ingest(ctx, localPath)
	os.Remove(localPath)
	if err != nil {
		logger.Warn("素材入库失败",
			logger.String("file", header.Filename),
			logger.ErrorField(err))
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(asset)
}

// DeleteAssetHandler 删除素材及其存储对象
func (h *AssetHandler) DeleteAssetHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	asset, err := h.assets.GetByID(ctx, id)
	if err != nil {
		logger.Error("加载素材失败", logger.ErrorField(err))
		http.Error(w, "failed to load asset", http.StatusInternalServerError)
		return
	}
	if asset == nil {
		http.Error(w, "asset not found", http.StatusNotFound)
		return
	}

	if err := storage.RemoveObject(ctx, asset.ObjectKey); err != nil {
		logger.Warn("删除存储对象失败",
			logger.String("objectKey", asset.ObjectKey),
			logger.ErrorField(err))
	}
	if asset.ThumbnailKey != "" {
		if err := storage.RemoveObject(ctx, asset.ThumbnailKey); err != nil {
			logger.Warn("删除封面图失败", logger.ErrorField(err))
		}
	}

	if err := h.assets.Delete(ctx, id); err != nil {
		logger.Error("删除素材失败", logger.ErrorField(err))
		http.Error(w, "failed to delete asset", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
