package library

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"Mx1Studio/logger"

	"github.com/fsnotify/fsnotify"
)

const (
	// 文件稳定性检查：最后一次写入 2s 后才认为写入完成
	stableAfter   = 2 * time.Second
	checkInterval = 500 * time.Millisecond
)

// Watcher monitors a drop directory and ingests media files as they appear.
// 架构：fsnotify 监听 → 稳定性检查 → Library.Ingest
type Watcher struct {
	library  *Library
	watchDir string

	mu      sync.Mutex
	started bool
	stopped bool
	done    chan struct{}
	watcher *fsnotify.Watcher
}

// NewWatcher creates a directory watcher over watchDir.
func NewWatcher(library *Library, watchDir string) *Watcher {
	return &Watcher{
		library:  library,
		watchDir: watchDir,
		done:     make(chan struct{}),
	}
}

// Start begins watching. Files already present in the directory are ingested
// first, then new arrivals are picked up from filesystem events.
func (w *Watcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.watchDir, 0o755); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(w.watchDir); err != nil {
		watcher.Close()
		return err
	}
	w.mu.Lock()
	w.watcher = watcher
	w.mu.Unlock()

	// 先处理目录中已有的文件
	w.scanExisting(ctx)

	w.mu.Lock()
	w.started = true
	w.mu.Unlock()
	go w.run(ctx, watcher)

	logger.Info("media watcher started", logger.String("dir", w.watchDir))
	return nil
}

// Stop shuts the watcher down. Idempotent, and safe when Start never ran
// (or failed before the event loop launched).
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.stopped = true
	if w.watcher != nil {
		w.watcher.Close()
	}
	if w.started {
		<-w.done
	}
}

func (w *Watcher) scanExisting(ctx context.Context) {
	entries, err := os.ReadDir(w.watchDir)
	if err != nil {
		logger.Warn("failed to scan watch dir", logger.ErrorField(err))
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(w.watchDir, entry.Name())
		if !IsMediaFile(path) {
			continue
		}
		if _, err := w.library.Ingest(ctx, path); err != nil {
			logger.Warn("failed to ingest existing file",
				logger.String("file", entry.Name()),
				logger.ErrorField(err))
		}
	}
}

func (w *Watcher) run(ctx context.Context, watcher *fsnotify.Watcher) {
	defer close(w.done)

	// 文件稳定性检查的延迟队列
	pendingFiles := make(map[string]time.Time)
	checkTicker := time.NewTicker(checkInterval)
	defer checkTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}

			// 只关心媒体文件的写入事件
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if IsMediaFile(event.Name) {
					pendingFiles[event.Name] = time.Now()
				}
			}

		case <-checkTicker.C:
			now := time.Now()
			for path, lastModTime := range pendingFiles {
				if now.Sub(lastModTime) < stableAfter {
					continue // 文件可能还在写入
				}

				delete(pendingFiles, path)

				if _, err := os.Stat(path); err != nil {
					continue // 文件被移走或删除
				}

				if _, err := w.library.Ingest(ctx, path); err != nil {
					logger.Warn("failed to ingest file",
						logger.String("file", filepath.Base(path)),
						logger.ErrorField(err))
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("文件监听错误", logger.ErrorField(err))
		}
	}
}
