package storage

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"time"

	"Mx1Studio/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var (
	minioClient *minio.Client
	minioBucket string
)

// 对象键前缀，按用途划分
const (
	AssetPrefix     = "assets/"
	ThumbnailPrefix = "thumbnails/"
	ExportPrefix    = "exports/"
)

// InitMinio 初始化 MinIO 客户端
func InitMinio(cfg *config.Config) error {
	log.Printf("正在连接 MinIO 服务器...")
	log.Printf("Bucket: %s", cfg.MinioBucket)
	if len(cfg.MinioAccessKey) > 4 {
		log.Printf("AccessKey: %s...", cfg.MinioAccessKey[:4])
	}

	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return fmt.Errorf("创建 MinIO 客户端失败: %v", err)
	}

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 检查存储桶是否存在
	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return fmt.Errorf("检查存储桶失败: %v", err)
	}

	if !exists {
		// 如果存储桶不存在，尝试创建它
		err = client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{
			Region: cfg.MinioRegion,
		})
		if err != nil {
			return fmt.Errorf("创建存储桶失败: %v", err)
		}
		log.Printf("✅ 成功创建存储桶: %s", cfg.MinioBucket)
	} else {
		log.Printf("✅ 存储桶已存在: %s", cfg.MinioBucket)
	}

	minioClient = client
	minioBucket = cfg.MinioBucket
	log.Println("✅ MinIO 客户端初始化成功！")
	return nil
}

// GetMinioClient 获取 MinIO 客户端实例
func GetMinioClient() *minio.Client {
	return minioClient
}

// UploadFile 上传本地文件到指定对象键
func UploadFile(ctx context.Context, objectKey, filePath, contentType string) error {
	if minioClient == nil {
		return fmt.Errorf("MinIO 客户端未初始化")
	}

	_, err := minioClient.FPutObject(ctx, minioBucket, objectKey, filePath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("上传文件失败 %s: %w", objectKey, err)
	}
	return nil
}

// DownloadFile 下载对象到本地文件
func DownloadFile(ctx context.Context, objectKey, filePath string) error {
	if minioClient == nil {
		return fmt.Errorf("MinIO 客户端未初始化")
	}

	err := minioClient.FGetObject(ctx, minioBucket, objectKey, filePath, minio.GetObjectOptions{})
	if err != nil {
		return fmt.Errorf("下载文件失败 %s: %w", objectKey, err)
	}
	return nil
}

// RemoveObject 删除对象
func RemoveObject(ctx context.Context, objectKey string) error {
	if minioClient == nil {
		return fmt.Errorf("MinIO 客户端未初始化")
	}

	return minioClient.RemoveObject(ctx, minioBucket, objectKey, minio.RemoveObjectOptions{})
}

// PresignedGetURL 生成带签名的下载链接
func PresignedGetURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	if minioClient == nil {
		return "", fmt.Errorf("MinIO 客户端未初始化")
	}

	u, err := minioClient.PresignedGetObject(ctx, minioBucket, objectKey, expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("生成签名链接失败 %s: %w", objectKey, err)
	}
	return u.String(), nil
}

// StatObject 查询对象信息，对象不存在时返回错误
func StatObject(ctx context.Context, objectKey string) (minio.ObjectInfo, error) {
	if minioClient == nil {
		return minio.ObjectInfo{}, fmt.Errorf("MinIO 客户端未初始化")
	}
	return minioClient.StatObject(ctx, minioBucket, objectKey, minio.StatObjectOptions{})
}
