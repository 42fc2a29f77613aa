package repository

import (
	"context"
	"time"

	"github.com/ikkim/catalog-admin/internal/app/model"
	"github.com/ikkim/catalog-admin/pkg/logger"
	"gorm.io/gorm"
)

type StagedUploadRepository interface {
	Create(ctx context.Context, upload *model.StagedUpload) error
	FindByKey(ctx context.Context, key string) (*model.StagedUpload, error)
	FindByOwner(ctx context.Context, owner model.UploadOwner, ownerID string) ([]model.StagedUpload, error)
	Delete(ctx context.Context, key string) error
	DeleteByOwner(ctx context.Context, owner model.UploadOwner, ownerID string) error
	FindOrphans(ctx context.Context, before time.Time, limit int) ([]model.StagedUpload, error)
}

type stagedUploadRepository struct {
	db *gorm.DB
}

func NewStagedUploadRepository(db *gorm.DB) StagedUploadRepository {
	return &stagedUploadRepository{db: db}
}

func (r *stagedUploadRepository) Create(ctx context.Context, upload *model.StagedUpload) error {
	if err := r.db.WithContext(ctx).Create(upload).Error; err != nil {
		logger.Error("Failed to record staged upload", err, map[string]interface{}{
			"key":      upload.Key,
			"owner":    upload.OwnerType,
			"owner_id": upload.OwnerID,
		})
		return err
	}
	return nil
}

func (r *stagedUploadRepository) FindByKey(ctx context.Context, key string) (*model.StagedUpload, error) {
	var upload model.StagedUpload
	if err := r.db.WithContext(ctx).Where(&model.StagedUpload{Key: key}).First(&upload).Error; err != nil {
		return nil, err
	}
	return &upload, nil
}

func (r *stagedUploadRepository) FindByOwner(ctx context.Context, owner model.UploadOwner, ownerID string) ([]model.StagedUpload, error) {
	var uploads []model.StagedUpload
	err := r.db.WithContext(ctx).
		Where("owner_type = ? AND owner_id = ?", owner, ownerID).
		Order("created_at ASC").
		Find(&uploads).Error
	if err != nil {
		logger.Error("Failed to list staged uploads", err, map[string]interface{}{
			"owner":    owner,
			"owner_id": ownerID,
		})
		return nil, err
	}
	return uploads, nil
}

func (r *stagedUploadRepository) Delete(ctx context.Context, key string) error {
	return r.db.WithContext(ctx).Delete(&model.StagedUpload{Key: key}).Error
}

func (r *stagedUploadRepository) DeleteByOwner(ctx context.Context, owner model.UploadOwner, ownerID string) error {
	return r.db.WithContext(ctx).
		Where("owner_type = ? AND owner_id = ?", owner, ownerID).
		Delete(&model.StagedUpload{}).Error
}

// FindOrphans returns uploads older than before whose owning draft or batch
// no longer exists.
func (r *stagedUploadRepository) FindOrphans(ctx context.Context, before time.Time, limit int) ([]model.StagedUpload, error) {
	var uploads []model.StagedUpload
	query := r.db.WithContext(ctx).
		Where("created_at < ?", before).
		Where("(owner_type = ? AND owner_id NOT IN (?)) OR (owner_type = ? AND owner_id NOT IN (?))",
			model.OwnerDraft, r.db.Model(&model.ProductDraft{}).Select("id"),
			model.OwnerImport, r.db.Model(&model.ImportBatch{}).Select("id"),
		).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&uploads).Error; err != nil {
		logger.Error("Failed to find orphaned uploads", err)
		return nil, err
	}
	return uploads, nil
}
