package repository

import (
	"context"

	"Mx1Studio/model"

	"gorm.io/gorm"
)

// MediaAssetRepository 媒体素材数据访问接口
type MediaAssetRepository interface {
	Create(ctx context.Context, asset *model.MediaAsset) error
	GetByID(ctx context.Context, id string) (*model.MediaAsset, error)
	GetByObjectKey(ctx context.Context, objectKey string) (*model.MediaAsset, error)
	List(ctx context.Context, kind model.ClipKind, limit, offset int) ([]*model.MediaAsset, error)
	UpdateStatus(ctx context.Context, id, status string) error
	Update(ctx context.Context, asset *model.MediaAsset) error
	Delete(ctx context.Context, id string) error
}

// gormMediaAssetRepository GORM 实现
type gormMediaAssetRepository struct {
	db *gorm.DB
}

// NewGormMediaAssetRepository 创建 GORM 素材仓库
func NewGormMediaAssetRepository(db *gorm.DB) MediaAssetRepository {
	return &gormMediaAssetRepository{db: db}
}

// Create 登记素材
func (r *gormMediaAssetRepository) Create(ctx context.Context, asset *model.MediaAsset) error {
	return r.db.WithContext(ctx).Create(asset).Error
}

// GetByID 根据ID获取素材
func (r *gormMediaAssetRepository) GetByID(ctx context.Context, id string) (*model.MediaAsset, error) {
	var asset model.MediaAsset
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&asset).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &asset, nil
}

// GetByObjectKey 根据存储键获取素材，用于监视目录去重
func (r *gormMediaAssetRepository) GetByObjectKey(ctx context.Context, objectKey string) (*model.MediaAsset, error) {
	var asset model.MediaAsset
	err := r.db.WithContext(ctx).
		Where("object_key = ?", objectKey).
		First(&asset).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &asset, nil
}

// List 列出素材，kind 为空时不过滤
func (r *gormMediaAssetRepository) List(ctx context.Context, kind model.ClipKind, limit, offset int) ([]*model.MediaAsset, error) {
	query := r.db.WithContext(ctx).Model(&model.MediaAsset{})
	if kind != "" {
		query = query.Where("kind = ?", kind)
	}

	var assets []*model.MediaAsset
	err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&assets).Error
	return assets, err
}

// UpdateStatus 更新素材处理状态
func (r *gormMediaAssetRepository) UpdateStatus(ctx context.Context, id, status string) error {
	return r.db.WithContext(ctx).Model(&model.MediaAsset{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// Update 更新素材
func (r *gormMediaAssetRepository) Update(ctx context.Context, asset *model.MediaAsset) error {
	return r.db.WithContext(ctx).Save(asset).Error
}

// Delete 删除素材
func (r *gormMediaAssetRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&model.MediaAsset{}, "id = ?", id).Error
}
