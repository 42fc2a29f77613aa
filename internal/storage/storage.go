package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ikkim/catalog-admin/config"
)

var ErrObjectNotFound = errors.New("stored object not found")

type PutInput struct {
	Folder      string
	Filename    string
	ContentType string
	Size        int64
}

type PutResult struct {
	Key string
	URL string
}

// Storage keeps staged files until they are submitted or released.
type Storage interface {
	Put(ctx context.Context, r io.Reader, in PutInput) (PutResult, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// New builds the storage driver selected by configuration.
func New(ctx context.Context, cfg *config.StorageConfig) (Storage, error) {
	switch cfg.Driver {
	case "", "local":
		return NewLocalStorage(cfg.LocalDir, cfg.URLPrefix), nil
	case "s3":
		s3cfg := cfg.S3
		if s3cfg.Bucket == "" || s3cfg.Region == "" {
			return nil, fmt.Errorf("s3 storage requires AWS_REGION and AWS_S3_BUCKET")
		}
		return NewS3Storage(ctx, s3cfg.Region, s3cfg.Bucket, s3cfg.Prefix, s3cfg.AccessKeyID, s3cfg.SecretAccessKey, s3cfg.BaseURL), nil
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER: %s", cfg.Driver)
	}
}

// ValidateFileSize validates the file size
func ValidateFileSize(size int64, maxSize int64) error {
	if size > maxSize {
		return fmt.Errorf("file size exceeds maximum allowed size of %d bytes", maxSize)
	}
	return nil
}

// ValidateExtension checks filename against a list of lowercase extensions.
func ValidateExtension(filename string, allowed ...string) error {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, a := range allowed {
		if ext == a {
			return nil
		}
	}
	return fmt.Errorf("file type %q is not allowed", ext)
}

func safeExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".png", ".jpg", ".jpeg", ".webp", ".gif", ".csv", ".xlsx", ".zip":
		return ext
	default:
		return ""
	}
}

func objectKey(prefix, folder, name string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{prefix, folder} {
		if p = strings.Trim(p, "/"); p != "" {
			parts = append(parts, p)
		}
	}
	parts = append(parts, name)
	return strings.Join(parts, "/")
}
