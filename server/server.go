package server

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"Mx1Studio/cache"
	"Mx1Studio/config"
	"Mx1Studio/core/export"
	"Mx1Studio/core/library"
	"Mx1Studio/core/media"
	"Mx1Studio/core/session"
	"Mx1Studio/db"
	"Mx1Studio/model"
	"Mx1Studio/repository"
	"Mx1Studio/storage"

	"github.com/gorilla/mux"
	"github.com/minio/minio-go/v7"
)

// Start initializes and starts the HTTP server.
func Start() {
	cfg := config.Load()

	// 设置服务器超时
	server := &http.Server{
		Addr:         cfg.ServerAddr,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 初始化 MinIO 客户端
	if err := storage.InitMinio(cfg); err != nil {
		log.Fatalf("Failed to initialize MinIO: %v", err)
	}

	// Connect to the database
	if err := db.ConnectDB(cfg); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.DB.Close()

	if err := db.ConnectGormDB(cfg); err != nil {
		log.Fatalf("Failed to connect to database with GORM: %v", err)
	}
	defer db.CloseGormDB()

	// Connect to Redis
	if err := cache.ConnectRedis(cfg); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer cache.CloseRedis()
	log.Println("Successfully connected to Redis")

	// Initialize database schema
	if err := db.InitDB(); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	if err := db.AutoMigrateModels(&model.Project{}, &model.MediaAsset{}); err != nil {
		log.Fatalf("Failed to migrate models: %v", err)
	}

	// Create necessary directories if they don't exist
	ensureDirExists(cfg.WatchDir)
	ensureDirExists(cfg.ExportDir)
	ensureDirExists(cfg.ThumbnailDir)

	ffmpeg := media.NewFFmpegProcessor(cfg.FFmpegPath)
	projectRepo := repository.NewGormProjectRepository(db.GormDB)
	assetRepo := repository.NewGormMediaAssetRepository(db.GormDB)

	// 媒体库：目录监视 + 入库
	lib := library.NewLibrary(ffmpeg, assetRepo, cfg.ThumbnailDir)
	watcherCtx, watcherCancel := context.WithCancel(context.Background())
	defer watcherCancel()
	watcher := library.NewWatcher(lib, cfg.WatchDir)
	if err := watcher.Start(watcherCtx); err != nil {
		log.Fatalf("Failed to start media watcher: %v", err)
	}
	defer watcher.Stop()

	// 编辑会话
	hub := session.NewSessionHub()
	go hub.Run()
	defer hub.Stop()
	sessionManager := session.NewManager(projectRepo, cache.NewSessionCache(), hub)

	// 导出
	backend := export.NewFFmpegBackend(ffmpeg)
	exportJobs := NewExportJobManager(backend, lib, assetRepo, hub, cache.NewExportCache(), cfg)

	// 初始化处理器
	projectHandler := NewProjectHandler(projectRepo)
	sessionHandler := NewSessionHandler(sessionManager)
	exportHandler := NewExportHandler(exportJobs, projectRepo)
	assetHandler := NewAssetHandler(assetRepo, lib, cfg)
	wsHandler := NewWSSessionHandler(hub, sessionManager)

	// 使用 gorilla/mux 创建路由器
	router := mux.NewRouter()

	// 添加 CORS 中间件
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Range")
			w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range")
			w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// 项目相关的API端点
	router.HandleFunc("/api/projects", projectHandler.ListProjectsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/projects", projectHandler.SaveProjectHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/projects/{id}", projectHandler.GetProjectHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/projects/{id}", projectHandler.DeleteProjectHandler).Methods(http.MethodDelete)

	// 编辑会话相关的API端点
	router.HandleFunc("/api/sessions", sessionHandler.OpenSessionHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/sessions/{id}/edit", sessionHandler.EditHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/sessions/{id}/timeline", sessionHandler.TimelineHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/sessions/{id}", sessionHandler.CloseSessionHandler).Methods(http.MethodDelete)

	// 导出相关的API端点
	router.HandleFunc("/api/exports", exportHandler.StartExportHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/exports/{id}", exportHandler.GetExportHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/exports/{id}", exportHandler.CancelExportHandler).Methods(http.MethodDelete)

	// 素材库相关的API端点
	router.HandleFunc("/api/assets", assetHandler.ListAssetsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/assets", assetHandler.UploadAssetHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/assets/{id}", assetHandler.GetAssetHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/assets/{id}", assetHandler.DeleteAssetHandler).Methods(http.MethodDelete)

	// WebSocket 播放头/状态同步
	router.HandleFunc("/ws/sessions/{id}", wsHandler.ServeWS)

	// MinIO 文件服务路由（封面图与导出结果）
	router.PathPrefix("/media/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		objectPath := strings.TrimPrefix(r.URL.Path, "/media/")
		client := storage.GetMinioClient()
		if client == nil {
			http.Error(w, "MinIO client not available", http.StatusInternalServerError)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		object, err := client.GetObject(ctx, cfg.MinioBucket, objectPath, minio.GetObjectOptions{})
		if err != nil {
			http.Error(w, "File not found", http.StatusNotFound)
			return
		}
		defer object.Close()

		var contentType string
		if strings.HasPrefix(objectPath, storage.ThumbnailPrefix) {
			contentType = "image/jpeg"
		} else if strings.HasSuffix(objectPath, ".mp4") {
			contentType = "video/mp4"
		} else if strings.HasSuffix(objectPath, ".webm") {
			contentType = "video/webm"
		} else {
			contentType = "application/octet-stream"
		}

		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Cache-Control", "public, max-age=31536000") // 缓存一年

		_, err = io.Copy(w, object)
		if err != nil {
			log.Printf("Error serving file from MinIO: %v", err)
		}
	})

	server.Handler = router

	// 创建一个通道来接收操作系统信号
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// 在goroutine中启动服务器
	go func() {
		log.Printf("Server starting on %s...", cfg.ServerAddr)
		log.Println("Manage projects via /api/projects endpoints")
		log.Println("Apply timeline edits via POST /api/sessions/{id}/edit")
		log.Println("Start exports via POST /api/exports")
		log.Println("Sync playhead via /ws/sessions/{id}")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// 等待中断信号
	<-stop
	log.Println("Shutting down server...")

	// 创建一个5秒超时的上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 优雅关闭服务器
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

func ensureDirExists(path string) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Printf("Creating directory: %s", path)
		if err := os.MkdirAll(path, 0755); err != nil {
			log.Fatalf("Failed to create directory %s: %v", path, err)
		}
	} else if err != nil {
		log.Fatalf("Failed to check directory %s: %v", path, err)
	}
}
