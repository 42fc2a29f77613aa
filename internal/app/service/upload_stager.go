package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/ikkim/catalog-admin/internal/app/model"
	"github.com/ikkim/catalog-admin/internal/app/repository"
	"github.com/ikkim/catalog-admin/internal/metrics"
	"github.com/ikkim/catalog-admin/internal/storage"
	"github.com/ikkim/catalog-admin/pkg/logger"
	"gorm.io/gorm"
)

var (
	ErrUploadNotFound = errors.New("staged upload not found")
)

// UploadFile is an incoming file that can be opened for reading.
type UploadFile struct {
	Filename    string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// BytesFile wraps in-memory content as an UploadFile.
func BytesFile(filename, contentType string, data []byte) UploadFile {
	return UploadFile{
		Filename:    filename,
		ContentType: contentType,
		Size:        int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// LocalFile wraps a file on disk as an UploadFile. The content type comes
// from the extension.
func LocalFile(path string) (UploadFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return UploadFile{}, err
	}
	if info.IsDir() {
		return UploadFile{}, fmt.Errorf("%s is a directory", path)
	}
	return UploadFile{
		Filename:    filepath.Base(path),
		ContentType: mime.TypeByExtension(filepath.Ext(path)),
		Size:        info.Size(),
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}

func (f UploadFile) imageFile() model.ImageFile {
	return model.ImageFile{Filename: f.Filename, ContentType: f.ContentType, Size: f.Size}
}

// UploadStager owns every staged file. A file stays in storage exactly as long
// as its ownership row exists.
type UploadStager interface {
	Stage(ctx context.Context, owner model.UploadOwner, ownerID, slot string, files []UploadFile) ([]model.StagedUpload, error)
	Open(ctx context.Context, key string) (io.ReadCloser, *model.StagedUpload, error)
	Release(ctx context.Context, keys ...string) error
	ReleaseOwner(ctx context.Context, owner model.UploadOwner, ownerID string) error
	SweepOrphans(ctx context.Context, olderThan time.Duration) (int, error)
}

type uploadStager struct {
	store storage.Storage
	repo  repository.StagedUploadRepository
}

func NewUploadStager(store storage.Storage, repo repository.StagedUploadRepository) UploadStager {
	return &uploadStager{store: store, repo: repo}
}

// Stage stores every file or none: a failure midway releases what this call staged.
func (s *uploadStager) Stage(ctx context.Context, owner model.UploadOwner, ownerID, slot string, files []UploadFile) ([]model.StagedUpload, error) {
	staged := make([]model.StagedUpload, 0, len(files))
	for _, f := range files {
		upload, err := s.stageOne(ctx, owner, ownerID, slot, f)
		if err != nil {
			logger.Warn("Staging failed, rolling back batch", map[string]interface{}{
				"owner":    owner,
				"owner_id": ownerID,
				"file":     f.Filename,
				"staged":   len(staged),
				"error":    err.Error(),
			})
			keys := make([]string, 0, len(staged))
			for _, u := range staged {
				keys = append(keys, u.Key)
			}
			if rbErr := s.Release(context.WithoutCancel(ctx), keys...); rbErr != nil {
				logger.Error("Failed to roll back staged uploads", rbErr, map[string]interface{}{
					"owner_id": ownerID,
				})
			}
			return nil, fmt.Errorf("failed to stage %s: %w", f.Filename, err)
		}
		staged = append(staged, *upload)
	}

	logger.Debug("Files staged", map[string]interface{}{
		"owner":    owner,
		"owner_id": ownerID,
		"slot":     slot,
		"count":    len(staged),
	})
	return staged, nil
}

func (s *uploadStager) stageOne(ctx context.Context, owner model.UploadOwner, ownerID, slot string, f UploadFile) (*model.StagedUpload, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	res, err := s.store.Put(ctx, rc, storage.PutInput{
		Folder:      fmt.Sprintf("%ss/%s", owner, ownerID),
		Filename:    f.Filename,
		ContentType: f.ContentType,
		Size:        f.Size,
	})
	if err != nil {
		return nil, err
	}

	upload := &model.StagedUpload{
		Key:         res.Key,
		OwnerType:   owner,
		OwnerID:     ownerID,
		Slot:        slot,
		Filename:    f.Filename,
		ContentType: f.ContentType,
		Size:        f.Size,
		URL:         res.URL,
	}
	if err := s.repo.Create(ctx, upload); err != nil {
		_ = s.store.Delete(context.WithoutCancel(ctx), res.Key)
		return nil, err
	}
	metrics.StagedUploads.WithLabelValues("stage").Inc()
	return upload, nil
}

func (s *uploadStager) Open(ctx context.Context, key string) (io.ReadCloser, *model.StagedUpload, error) {
	upload, err := s.repo.FindByKey(ctx, key)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("%w: %s", ErrUploadNotFound, key)
		}
		return nil, nil, err
	}
	rc, err := s.store.Open(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, nil, fmt.Errorf("%w: %s", ErrUploadNotFound, key)
		}
		return nil, nil, err
	}
	return rc, upload, nil
}

// Release deletes the objects and their ownership rows. Unknown keys are ignored.
func (s *uploadStager) Release(ctx context.Context, keys ...string) error {
	var errs []error
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := s.store.Delete(ctx, key); err != nil {
			// keep the row so the sweeper retries
			errs = append(errs, err)
			continue
		}
		if err := s.repo.Delete(ctx, key); err != nil {
			errs = append(errs, err)
			continue
		}
		metrics.StagedUploads.WithLabelValues("release").Inc()
	}
	if len(errs) > 0 {
		err := errors.Join(errs...)
		logger.Error("Failed to release staged uploads", err, map[string]interface{}{
			"keys": len(keys),
		})
		return err
	}
	return nil
}

func (s *uploadStager) ReleaseOwner(ctx context.Context, owner model.UploadOwner, ownerID string) error {
	uploads, err := s.repo.FindByOwner(ctx, owner, ownerID)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(uploads))
	for _, u := range uploads {
		keys = append(keys, u.Key)
	}
	return s.Release(ctx, keys...)
}

// SweepOrphans releases uploads whose draft or batch is gone.
func (s *uploadStager) SweepOrphans(ctx context.Context, olderThan time.Duration) (int, error) {
	orphans, err := s.repo.FindOrphans(ctx, time.Now().Add(-olderThan), 500)
	if err != nil {
		return 0, err
	}
	if len(orphans) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(orphans))
	for _, o := range orphans {
		keys = append(keys, o.Key)
	}
	err = s.Release(ctx, keys...)

	logger.Info("Swept orphaned uploads", map[string]interface{}{
		"count": len(keys),
	})
	return len(keys), err
}
