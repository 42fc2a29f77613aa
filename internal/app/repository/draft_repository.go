package repository

import (
	"context"
	"time"

	"github.com/ikkim/catalog-admin/internal/app/model"
	"github.com/ikkim/catalog-admin/pkg/logger"
	"gorm.io/gorm"
)

type DraftRepository interface {
	Create(ctx context.Context, draft *model.ProductDraft) error
	FindByID(ctx context.Context, id string) (*model.ProductDraft, error)
	FindByCreator(ctx context.Context, userID uint) ([]model.ProductDraft, error)
	Update(ctx context.Context, draft *model.ProductDraft) error
	Delete(ctx context.Context, id string) error
	FindStale(ctx context.Context, before time.Time, limit int) ([]model.ProductDraft, error)
}

type draftRepository struct {
	db *gorm.DB
}

func NewDraftRepository(db *gorm.DB) DraftRepository {
	return &draftRepository{db: db}
}

func (r *draftRepository) Create(ctx context.Context, draft *model.ProductDraft) error {
	if err := r.db.WithContext(ctx).Create(draft).Error; err != nil {
		logger.Error("Failed to create draft in database", err, map[string]interface{}{
			"created_by": draft.CreatedBy,
			"product_id": draft.ProductID,
		})
		return err
	}

	logger.Debug("Draft created in database", map[string]interface{}{
		"draft_id":   draft.ID,
		"created_by": draft.CreatedBy,
	})
	return nil
}

func (r *draftRepository) FindByID(ctx context.Context, id string) (*model.ProductDraft, error) {
	var draft model.ProductDraft
	if err := r.db.WithContext(ctx).First(&draft, "id = ?", id).Error; err != nil {
		if err != gorm.ErrRecordNotFound {
			logger.Error("Failed to find draft by ID in database", err, map[string]interface{}{
				"draft_id": id,
			})
		}
		return nil, err
	}
	return &draft, nil
}

func (r *draftRepository) FindByCreator(ctx context.Context, userID uint) ([]model.ProductDraft, error) {
	var drafts []model.ProductDraft
	err := r.db.WithContext(ctx).
		Where("created_by = ?", userID).
		Order("updated_at DESC").
		Find(&drafts).Error
	if err != nil {
		logger.Error("Failed to list drafts in database", err, map[string]interface{}{
			"user_id": userID,
		})
		return nil, err
	}
	return drafts, nil
}

func (r *draftRepository) Update(ctx context.Context, draft *model.ProductDraft) error {
	if err := r.db.WithContext(ctx).Save(draft).Error; err != nil {
		logger.Error("Failed to update draft in database", err, map[string]interface{}{
			"draft_id": draft.ID,
		})
		return err
	}
	return nil
}

func (r *draftRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&model.ProductDraft{}, "id = ?", id)
	if result.Error != nil {
		logger.Error("Failed to delete draft from database", result.Error, map[string]interface{}{
			"draft_id": id,
		})
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	logger.Debug("Draft deleted from database", map[string]interface{}{
		"draft_id": id,
	})
	return nil
}

// FindStale returns drafts untouched since before, oldest first.
func (r *draftRepository) FindStale(ctx context.Context, before time.Time, limit int) ([]model.ProductDraft, error) {
	var drafts []model.ProductDraft
	query := r.db.WithContext(ctx).
		Where("updated_at < ?", before).
		Order("updated_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&drafts).Error; err != nil {
		logger.Error("Failed to find stale drafts", err)
		return nil, err
	}
	return drafts, nil
}
