package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ikkim/catalog-admin/internal/app/model"
	"github.com/ikkim/catalog-admin/internal/app/repository"
	"github.com/ikkim/catalog-admin/internal/metrics"
	"github.com/ikkim/catalog-admin/pkg/catalogapi"
	"github.com/ikkim/catalog-admin/pkg/logger"
	"gorm.io/gorm"
)

var (
	ErrDraftNotFound = errors.New("draft not found")
)

// DraftInput holds the product-level fields of a draft.
type DraftInput struct {
	ProductID   *uint
	Title       string
	Description string
	CategoryID  uint
}

// ColorRef names a color by id or by name.
type ColorRef struct {
	ID   uint
	Name string
}

type SubmitResult struct {
	ProductID uint   `json:"productId"`
	Created   bool   `json:"created"`
	Message   string `json:"message,omitempty"`
}

type VariantEditorService interface {
	CreateDraft(ctx context.Context, input DraftInput, userID uint) (*model.ProductDraft, error)
	GetDraft(ctx context.Context, id string) (*model.ProductDraft, error)
	ListDrafts(ctx context.Context, userID uint) ([]model.ProductDraft, error)
	UpdateDraft(ctx context.Context, id string, input DraftInput) (*model.ProductDraft, error)
	AddColor(ctx context.Context, id string, color ColorRef) (*model.ProductDraft, error)
	RemoveColor(ctx context.Context, id string, colorID uint) (*model.ProductDraft, error)
	ToggleSize(ctx context.Context, id string, colorID, sizeID uint) (*model.ProductDraft, bool, error)
	SetSizeVariantField(ctx context.Context, id string, colorID, sizeID uint, field string, value float64) (*model.ProductDraft, error)
	SetColorDefaults(ctx context.Context, id string, colorID uint, price, quantity float64) (*model.ProductDraft, error)
	AddImages(ctx context.Context, id string, colorID uint, files []UploadFile) (*model.ProductDraft, error)
	RemoveImage(ctx context.Context, id string, colorID uint, index int) (*model.ProductDraft, error)
	SetThumbnail(ctx context.Context, id string, file UploadFile) (*model.ProductDraft, error)
	ClearThumbnail(ctx context.Context, id string) (*model.ProductDraft, error)
	Validate(ctx context.Context, id string) error
	BuildSubmission(ctx context.Context, id string) (*model.ProductSubmission, []model.SubmissionFile, error)
	Submit(ctx context.Context, id string) (*SubmitResult, error)
	Discard(ctx context.Context, id string) error
	SweepStale(ctx context.Context, olderThan time.Duration) (int, error)
}

type variantEditorService struct {
	drafts   repository.DraftRepository
	uploads  UploadStager
	vocab    VocabularyService
	products ProductAPI
	limits   model.ImageLimits
	locks    *keyedMutex
}

func NewVariantEditorService(
	drafts repository.DraftRepository,
	uploads UploadStager,
	vocab VocabularyService,
	products ProductAPI,
	limits model.ImageLimits,
) VariantEditorService {
	if limits.MaxPerColor <= 0 || limits.MaxBytes <= 0 {
		limits = model.DefaultImageLimits
	}
	return &variantEditorService{
		drafts:   drafts,
		uploads:  uploads,
		vocab:    vocab,
		products: products,
		limits:   limits,
		locks:    newKeyedMutex(),
	}
}

func (s *variantEditorService) CreateDraft(ctx context.Context, input DraftInput, userID uint) (*model.ProductDraft, error) {
	draft := &model.ProductDraft{
		ProductID:   input.ProductID,
		Title:       input.Title,
		Description: input.Description,
		CategoryID:  input.CategoryID,
		CreatedBy:   userID,
	}
	if input.CategoryID != 0 {
		if _, err := s.vocab.CategoryByID(ctx, input.CategoryID); err != nil {
			return nil, err
		}
	}
	if input.ProductID != nil {
		existing, err := s.products.GetProduct(ctx, *input.ProductID)
		if err != nil {
			logger.FromContext(ctx).Warn("Failed to load product for editing", map[string]interface{}{
				"product_id": *input.ProductID,
				"error":      err.Error(),
			})
			return nil, err
		}
		draft.Seed(existing)
	}
	if err := s.drafts.Create(ctx, draft); err != nil {
		return nil, err
	}

	logger.Info("Draft created", map[string]interface{}{
		"draft_id":   draft.ID,
		"product_id": input.ProductID,
		"user_id":    userID,
		"colors":     len(draft.Matrix.Details),
	})
	return draft, nil
}

func (s *variantEditorService) GetDraft(ctx context.Context, id string) (*model.ProductDraft, error) {
	draft, err := s.drafts.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDraftNotFound
		}
		return nil, err
	}
	return draft, nil
}

func (s *variantEditorService) ListDrafts(ctx context.Context, userID uint) ([]model.ProductDraft, error) {
	return s.drafts.FindByCreator(ctx, userID)
}

// mutate loads the draft under its lock, applies fn and persists the result.
func (s *variantEditorService) mutate(ctx context.Context, id string, fn func(*model.ProductDraft) error) (*model.ProductDraft, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	draft, err := s.GetDraft(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(draft); err != nil {
		return nil, err
	}
	if err := s.drafts.Update(ctx, draft); err != nil {
		return nil, err
	}
	return draft, nil
}

func (s *variantEditorService) UpdateDraft(ctx context.Context, id string, input DraftInput) (*model.ProductDraft, error) {
	if input.CategoryID != 0 {
		if _, err := s.vocab.CategoryByID(ctx, input.CategoryID); err != nil {
			return nil, err
		}
	}
	return s.mutate(ctx, id, func(d *model.ProductDraft) error {
		d.Title = input.Title
		d.Description = input.Description
		d.CategoryID = input.CategoryID
		if input.ProductID != nil {
			d.ProductID = input.ProductID
		}
		return nil
	})
}

func (s *variantEditorService) AddColor(ctx context.Context, id string, ref ColorRef) (*model.ProductDraft, error) {
	var (
		color model.VariantColor
		err   error
	)
	if ref.ID != 0 {
		color, err = s.vocab.ColorByID(ctx, ref.ID)
	} else {
		color, err = s.vocab.ResolveColor(ctx, ref.Name)
	}
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, id, func(d *model.ProductDraft) error {
		if !d.Matrix.AddColor(color) {
			logger.Debug("Color already in draft", map[string]interface{}{
				"draft_id": id,
				"color_id": color.ID,
			})
		}
		return nil
	})
}

func (s *variantEditorService) RemoveColor(ctx context.Context, id string, colorID uint) (*model.ProductDraft, error) {
	var removed model.ProductDetail
	draft, err := s.mutate(ctx, id, func(d *model.ProductDraft) error {
		removed, _ = d.Matrix.RemoveColor(colorID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	var keys []string
	for _, img := range removed.Images {
		if img.Pending() {
			keys = append(keys, img.StagedKey)
		}
	}
	if err := s.uploads.Release(ctx, keys...); err != nil {
		// the sweeper picks up what is left
		logger.Warn("Failed to release images of removed color", map[string]interface{}{
			"draft_id": id,
			"color_id": colorID,
			"error":    err.Error(),
		})
	}
	return draft, nil
}

func (s *variantEditorService) ToggleSize(ctx context.Context, id string, colorID, sizeID uint) (*model.ProductDraft, bool, error) {
	if _, err := s.vocab.SizeByID(ctx, sizeID); err != nil {
		return nil, false, err
	}

	var enabled bool
	draft, err := s.mutate(ctx, id, func(d *model.ProductDraft) error {
		var err error
		enabled, err = d.Matrix.ToggleSize(colorID, sizeID)
		return err
	})
	return draft, enabled, err
}

func (s *variantEditorService) SetSizeVariantField(ctx context.Context, id string, colorID, sizeID uint, field string, value float64) (*model.ProductDraft, error) {
	f, err := model.ParseVariantField(field)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, id, func(d *model.ProductDraft) error {
		_, err := d.Matrix.SetSizeVariantField(colorID, sizeID, f, value)
		return err
	})
}

func (s *variantEditorService) SetColorDefaults(ctx context.Context, id string, colorID uint, price, quantity float64) (*model.ProductDraft, error) {
	return s.mutate(ctx, id, func(d *model.ProductDraft) error {
		return d.Matrix.SetColorDefaults(colorID, price, quantity)
	})
}

// AddImages checks the whole batch before anything is staged.
func (s *variantEditorService) AddImages(ctx context.Context, id string, colorID uint, files []UploadFile) (*model.ProductDraft, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	draft, err := s.GetDraft(ctx, id)
	if err != nil {
		return nil, err
	}

	infos := make([]model.ImageFile, 0, len(files))
	for _, f := range files {
		infos = append(infos, f.imageFile())
	}
	if err := draft.Matrix.CheckImages(colorID, infos, s.limits); err != nil {
		return nil, err
	}

	staged, err := s.uploads.Stage(ctx, model.OwnerDraft, id, strconv.FormatUint(uint64(colorID), 10), files)
	if err != nil {
		return nil, err
	}

	images := make([]model.DetailImage, 0, len(staged))
	keys := make([]string, 0, len(staged))
	for _, u := range staged {
		images = append(images, model.DetailImage{URL: u.URL, StagedKey: u.Key})
		keys = append(keys, u.Key)
	}
	if err := draft.Matrix.AttachImages(colorID, images); err != nil {
		_ = s.uploads.Release(context.WithoutCancel(ctx), keys...)
		return nil, err
	}
	if err := s.drafts.Update(ctx, draft); err != nil {
		_ = s.uploads.Release(context.WithoutCancel(ctx), keys...)
		return nil, err
	}

	logger.Info("Images added to draft", map[string]interface{}{
		"draft_id": id,
		"color_id": colorID,
		"count":    len(images),
	})
	return draft, nil
}

func (s *variantEditorService) RemoveImage(ctx context.Context, id string, colorID uint, index int) (*model.ProductDraft, error) {
	var removed model.DetailImage
	draft, err := s.mutate(ctx, id, func(d *model.ProductDraft) error {
		var err error
		removed, err = d.Matrix.RemoveImage(colorID, index)
		return err
	})
	if err != nil {
		return nil, err
	}

	if removed.Pending() {
		if err := s.uploads.Release(ctx, removed.StagedKey); err != nil {
			logger.Warn("Failed to release removed image", map[string]interface{}{
				"draft_id": id,
				"key":      removed.StagedKey,
				"error":    err.Error(),
			})
		}
	}
	return draft, nil
}

func (s *variantEditorService) checkThumbnail(f UploadFile) error {
	var errs model.ValidationErrors
	if !strings.HasPrefix(strings.ToLower(f.ContentType), "image/") {
		errs.Add("image_type", model.ThumbnailField, "%s is not an image", f.Filename)
	}
	if f.Size > s.limits.MaxBytes {
		errs.Add("image_size", model.ThumbnailField, "%s exceeds %d bytes", f.Filename, s.limits.MaxBytes)
	}
	return errs.Err()
}

func (s *variantEditorService) SetThumbnail(ctx context.Context, id string, file UploadFile) (*model.ProductDraft, error) {
	if err := s.checkThumbnail(file); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	draft, err := s.GetDraft(ctx, id)
	if err != nil {
		return nil, err
	}

	staged, err := s.uploads.Stage(ctx, model.OwnerDraft, id, model.SlotThumbnail, []UploadFile{file})
	if err != nil {
		return nil, err
	}

	previous := draft.ThumbnailKey
	draft.ThumbnailKey = staged[0].Key
	draft.ThumbnailURL = staged[0].URL
	if err := s.drafts.Update(ctx, draft); err != nil {
		_ = s.uploads.Release(context.WithoutCancel(ctx), staged[0].Key)
		return nil, err
	}

	if err := s.uploads.Release(ctx, previous); err != nil {
		logger.Warn("Failed to release replaced thumbnail", map[string]interface{}{
			"draft_id": id,
			"error":    err.Error(),
		})
	}
	return draft, nil
}

func (s *variantEditorService) ClearThumbnail(ctx context.Context, id string) (*model.ProductDraft, error) {
	var previous string
	draft, err := s.mutate(ctx, id, func(d *model.ProductDraft) error {
		previous = d.ThumbnailKey
		d.ThumbnailKey = ""
		d.ThumbnailURL = ""
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := s.uploads.Release(ctx, previous); err != nil {
		logger.Warn("Failed to release cleared thumbnail", map[string]interface{}{
			"draft_id": id,
			"error":    err.Error(),
		})
	}
	return draft, nil
}

func (s *variantEditorService) Validate(ctx context.Context, id string) error {
	draft, err := s.GetDraft(ctx, id)
	if err != nil {
		return err
	}
	return draft.Validate()
}

func (s *variantEditorService) BuildSubmission(ctx context.Context, id string) (*model.ProductSubmission, []model.SubmissionFile, error) {
	draft, err := s.GetDraft(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	sub, files := draft.BuildSubmission()
	return &sub, files, nil
}

// Submit sends the draft to the catalog API. Staged files are released only
// after the catalog accepted the product.
func (s *variantEditorService) Submit(ctx context.Context, id string) (*SubmitResult, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	draft, err := s.GetDraft(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	sub, files := draft.BuildSubmission()

	parts := make([]catalogapi.FilePart, 0, len(files))
	closers := make([]io.Closer, 0, len(files))
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()
	for _, f := range files {
		rc, upload, err := s.uploads.Open(ctx, f.StagedKey)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", f.Field, err)
		}
		closers = append(closers, rc)
		parts = append(parts, catalogapi.FilePart{
			Field:       f.Field,
			Filename:    upload.Filename,
			ContentType: upload.ContentType,
			Body:        rc,
		})
	}

	log := logger.FromContext(ctx)
	result := &SubmitResult{}
	var resp *catalogapi.ProductResponse
	if draft.ProductID != nil {
		resp, err = s.products.UpdateProduct(ctx, *draft.ProductID, sub, parts)
	} else {
		resp, err = s.products.CreateProduct(ctx, sub, parts)
		result.Created = true
	}
	if err != nil {
		metrics.ProductSubmissions.WithLabelValues("error").Inc()
		log.Error("Draft submission failed", err, map[string]interface{}{
			"draft_id": id,
			"files":    len(parts),
		})
		return nil, err
	}
	metrics.ProductSubmissions.WithLabelValues("ok").Inc()
	result.ProductID = resp.ID
	result.Message = resp.Message

	if err := s.uploads.ReleaseOwner(ctx, model.OwnerDraft, id); err != nil {
		log.Warn("Failed to release submitted draft uploads", map[string]interface{}{
			"draft_id": id,
			"error":    err.Error(),
		})
	}
	if err := s.drafts.Delete(ctx, id); err != nil {
		log.Warn("Failed to delete submitted draft", map[string]interface{}{
			"draft_id": id,
			"error":    err.Error(),
		})
	}

	log.Info("Draft submitted", map[string]interface{}{
		"draft_id":   id,
		"product_id": result.ProductID,
		"created":    result.Created,
	})
	return result, nil
}

func (s *variantEditorService) Discard(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	if err := s.drafts.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrDraftNotFound
		}
		return err
	}
	if err := s.uploads.ReleaseOwner(ctx, model.OwnerDraft, id); err != nil {
		logger.Warn("Failed to release discarded draft uploads", map[string]interface{}{
			"draft_id": id,
			"error":    err.Error(),
		})
	}

	logger.Info("Draft discarded", map[string]interface{}{
		"draft_id": id,
	})
	return nil
}

// SweepStale discards drafts that nobody touched for olderThan.
func (s *variantEditorService) SweepStale(ctx context.Context, olderThan time.Duration) (int, error) {
	stale, err := s.drafts.FindStale(ctx, time.Now().Add(-olderThan), 100)
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, d := range stale {
		if err := s.Discard(ctx, d.ID); err != nil && !errors.Is(err, ErrDraftNotFound) {
			logger.Warn("Failed to sweep stale draft", map[string]interface{}{
				"draft_id": d.ID,
				"error":    err.Error(),
			})
			continue
		}
		swept++
	}
	return swept, nil
}
