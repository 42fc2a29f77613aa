package repository

import (
	"context"
	"time"

	"github.com/ikkim/catalog-admin/internal/app/model"
	"github.com/ikkim/catalog-admin/pkg/logger"
	"gorm.io/gorm"
)

type ImportBatchRepository interface {
	Create(ctx context.Context, batch *model.ImportBatch) error
	FindByID(ctx context.Context, id string) (*model.ImportBatch, error)
	Update(ctx context.Context, batch *model.ImportBatch) error
	Delete(ctx context.Context, id string) error
	FindStale(ctx context.Context, before time.Time, limit int) ([]model.ImportBatch, error)
	FindInterrupted(ctx context.Context, before time.Time, limit int) ([]model.ImportBatch, error)
}

type importBatchRepository struct {
	db *gorm.DB
}

func NewImportBatchRepository(db *gorm.DB) ImportBatchRepository {
	return &importBatchRepository{db: db}
}

func (r *importBatchRepository) Create(ctx context.Context, batch *model.ImportBatch) error {
	if err := r.db.WithContext(ctx).Create(batch).Error; err != nil {
		logger.Error("Failed to create import batch in database", err, map[string]interface{}{
			"created_by": batch.CreatedBy,
		})
		return err
	}
	logger.Debug("Import batch created in database", map[string]interface{}{
		"batch_id": batch.ID,
	})
	return nil
}

func (r *importBatchRepository) FindByID(ctx context.Context, id string) (*model.ImportBatch, error) {
	var batch model.ImportBatch
	if err := r.db.WithContext(ctx).First(&batch, "id = ?", id).Error; err != nil {
		if err != gorm.ErrRecordNotFound {
			logger.Error("Failed to find import batch by ID", err, map[string]interface{}{
				"batch_id": id,
			})
		}
		return nil, err
	}
	return &batch, nil
}

func (r *importBatchRepository) Update(ctx context.Context, batch *model.ImportBatch) error {
	if err := r.db.WithContext(ctx).Save(batch).Error; err != nil {
		logger.Error("Failed to update import batch", err, map[string]interface{}{
			"batch_id": batch.ID,
			"state":    batch.State,
		})
		return err
	}
	return nil
}

func (r *importBatchRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&model.ImportBatch{}, "id = ?", id)
	if result.Error != nil {
		logger.Error("Failed to delete import batch", result.Error, map[string]interface{}{
			"batch_id": id,
		})
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// FindStale skips batches mid-request so a sweep never races a save.
func (r *importBatchRepository) FindStale(ctx context.Context, before time.Time, limit int) ([]model.ImportBatch, error) {
	var batches []model.ImportBatch
	query := r.db.WithContext(ctx).
		Where("updated_at < ?", before).
		Where("state NOT IN ?", []model.ImportState{model.ImportPreviewing, model.ImportSaving}).
		Order("updated_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&batches).Error; err != nil {
		logger.Error("Failed to find stale import batches", err)
		return nil, err
	}
	return batches, nil
}

// FindInterrupted lists busy batches that have not been touched since before.
func (r *importBatchRepository) FindInterrupted(ctx context.Context, before time.Time, limit int) ([]model.ImportBatch, error) {
	var batches []model.ImportBatch
	query := r.db.WithContext(ctx).
		Where("updated_at < ?", before).
		Where("state IN ?", []model.ImportState{model.ImportPreviewing, model.ImportSaving}).
		Order("updated_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&batches).Error; err != nil {
		logger.Error("Failed to find interrupted import batches", err)
		return nil, err
	}
	return batches, nil
}
