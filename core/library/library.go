package library

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"Mx1Studio/core/media"
	"Mx1Studio/logger"
	"Mx1Studio/model"
	"Mx1Studio/repository"
	"Mx1Studio/storage"

	"github.com/google/uuid"
)

const thumbnailWidth = 320

// Library ingests media files into the asset catalog: probe, thumbnail,
// upload to object storage, register the database record.
type Library struct {
	ffmpeg       *media.FFmpegProcessor
	assets       repository.MediaAssetRepository
	thumbnailDir string
}

// NewLibrary creates the ingest service.
func NewLibrary(ffmpeg *media.FFmpegProcessor, assets repository.MediaAssetRepository, thumbnailDir string) *Library {
	return &Library{
		ffmpeg:       ffmpeg,
		assets:       assets,
		thumbnailDir: thumbnailDir,
	}
}

// mimeForFile resolves a MIME type from the file extension.
func mimeForFile(path string) string {
	return mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
}

// IsMediaFile reports whether the file looks like audio or video we can ingest.
func IsMediaFile(path string) bool {
	return model.KindFromMime(mimeForFile(path)) != ""
}

// Ingest registers a local media file as a library asset. The record is
// created in processing state first so a crash mid-ingest leaves a visible
// failed entry rather than a silent gap.
func (l *Library) Ingest(ctx context.Context, path string) (*model.MediaAsset, error) {
	mimeType := mimeForFile(path)
	kind := model.KindFromMime(mimeType)
	if kind == "" {
		return nil, fmt.Errorf("unsupported media type for %s", filepath.Base(path))
	}

	objectKey := storage.AssetPrefix + filepath.Base(path)

	// 已登记过的文件直接返回
	existing, err := l.assets.GetByObjectKey(ctx, objectKey)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing asset: %w", err)
	}
	if existing != nil {
		logger.Debug("asset already registered",
			logger.String("objectKey", objectKey),
			logger.String("assetId", existing.ID))
		return existing, nil
	}

	asset := &model.MediaAsset{
		ID:        uuid.New().String(),
		Name:      strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		ObjectKey: objectKey,
		MimeType:  mimeType,
		Kind:      kind,
		Status:    model.AssetStatusProcessing,
	}
	if err := l.assets.Create(ctx, asset); err != nil {
		return nil, fmt.Errorf("failed to register asset: %w", err)
	}

	if err := l.process(ctx, asset, path); err != nil {
		if statusErr := l.assets.UpdateStatus(ctx, asset.ID, model.AssetStatusFailed); statusErr != nil {
			logger.Warn("failed to mark asset as failed",
				logger.String("assetId", asset.ID),
				logger.ErrorField(statusErr))
		}
		return nil, err
	}

	asset.Status = model.AssetStatusReady
	if err := l.assets.Update(ctx, asset); err != nil {
		return nil, fmt.Errorf("failed to finalize asset: %w", err)
	}

	logger.Info("asset ingested",
		logger.String("assetId", asset.ID),
		logger.String("name", asset.Name),
		logger.String("kind", string(asset.Kind)),
		logger.Float64("duration", asset.Duration))
	return asset, nil
}

// process probes, thumbnails and uploads the file behind an asset record.
func (l *Library) process(ctx context.Context, asset *model.MediaAsset, path string) error {
	info, err := l.ffmpeg.Probe(path)
	if err != nil {
		return fmt.Errorf("probe failed for %s: %w", path, err)
	}

	asset.Duration = info.Duration
	asset.Width = info.Width
	asset.Height = info.Height

	if err := storage.UploadFile(ctx, asset.ObjectKey, path, asset.MimeType); err != nil {
		return err
	}

	// 视频素材生成封面图
	if info.HasVideo {
		if err := os.MkdirAll(l.thumbnailDir, 0o755); err != nil {
			return fmt.Errorf("failed to create thumbnail dir: %w", err)
		}
		thumbPath := filepath.Join(l.thumbnailDir, asset.ID+".jpg")
		// 取第一秒的帧，避开很多视频开头的黑场
		at := 1.0
		if info.Duration < 1 {
			at = 0
		}
		if err := l.ffmpeg.ExtractThumbnail(path, at, thumbPath, thumbnailWidth); err != nil {
			logger.Warn("thumbnail extraction failed",
				logger.String("assetId", asset.ID),
				logger.ErrorField(err))
		} else {
			thumbKey := storage.ThumbnailPrefix + asset.ID + ".jpg"
			if err := storage.UploadFile(ctx, thumbKey, thumbPath, "image/jpeg"); err != nil {
				logger.Warn("thumbnail upload failed",
					logger.String("assetId", asset.ID),
					logger.ErrorField(err))
			} else {
				asset.ThumbnailKey = thumbKey
			}
			os.Remove(thumbPath)
		}
	}

	return nil
}

// FetchLocal downloads an asset's media to a local path for export, reusing a
// previous download if it is still on disk.
func (l *Library) FetchLocal(ctx context.Context, asset *model.MediaAsset, workDir string) (string, error) {
	localPath := filepath.Join(workDir, asset.ID+filepath.Ext(asset.ObjectKey))
	if _, err := os.Stat(localPath); err == nil {
		return localPath, nil
	}

	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create download dir: %w", err)
	}

	start := time.Now()
	if err := storage.DownloadFile(ctx, asset.ObjectKey, localPath); err != nil {
		return "", err
	}
	logger.Debug("asset downloaded for export",
		logger.String("assetId", asset.ID),
		logger.Duration("elapsed", time.Since(start)))
	return localPath, nil
}
