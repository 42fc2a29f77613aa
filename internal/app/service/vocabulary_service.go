package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ikkim/catalog-admin/internal/app/model"
	"github.com/ikkim/catalog-admin/internal/cache"
	"github.com/ikkim/catalog-admin/internal/metrics"
	"github.com/ikkim/catalog-admin/pkg/logger"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

var (
	ErrUnknownColor    = errors.New("color is not in the active vocabulary")
	ErrUnknownSize     = errors.New("size is not in the active vocabulary")
	ErrUnknownCategory = errors.New("category is not in the category tree")
)

var vocabularyKey = cache.Key(cache.VocabularyKeyPrefix, "snapshot")

// VocabularyService answers name and id lookups against the active colors,
// sizes and categories. A lookup miss is always an error.
type VocabularyService interface {
	Get(ctx context.Context) (*model.Vocabulary, error)
	Refresh(ctx context.Context) (*model.Vocabulary, error)
	ResolveColor(ctx context.Context, name string) (model.VariantColor, error)
	ResolveSize(ctx context.Context, name string) (model.VariantSize, error)
	ColorByID(ctx context.Context, id uint) (model.VariantColor, error)
	SizeByID(ctx context.Context, id uint) (model.VariantSize, error)
	CategoryByID(ctx context.Context, id uint) (model.CategoryPath, error)
}

type vocabularyService struct {
	source VocabularySource
	cache  cache.Cache
	ttl    time.Duration
	group  singleflight.Group
	now    func() time.Time
}

func NewVocabularyService(source VocabularySource, c cache.Cache, ttl time.Duration) VocabularyService {
	return &vocabularyService{
		source: source,
		cache:  c,
		ttl:    ttl,
		now:    time.Now,
	}
}

func (s *vocabularyService) Get(ctx context.Context) (*model.Vocabulary, error) {
	var vocab model.Vocabulary
	found, err := s.cache.Get(ctx, vocabularyKey, &vocab)
	if err != nil {
		logger.Warn("Vocabulary cache read failed, fetching from catalog", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if found {
		return &vocab, nil
	}
	return s.load(ctx)
}

func (s *vocabularyService) Refresh(ctx context.Context) (*model.Vocabulary, error) {
	return s.load(ctx)
}

// load collapses concurrent misses into one upstream fetch.
func (s *vocabularyService) load(ctx context.Context) (*model.Vocabulary, error) {
	ch := s.group.DoChan("vocabulary", func() (interface{}, error) {
		// one caller going away must not fail the others
		return s.fetch(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		vocab := res.Val.(*model.Vocabulary)
		return vocab, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *vocabularyService) fetch(ctx context.Context) (*model.Vocabulary, error) {
	vocab := &model.Vocabulary{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		colors, err := s.source.GetActiveColors(gctx)
		vocab.Colors = colors
		return err
	})
	g.Go(func() error {
		sizes, err := s.source.GetActiveSizes(gctx)
		vocab.Sizes = sizes
		return err
	})
	g.Go(func() error {
		tree, err := s.source.GetCategoryTree(gctx)
		vocab.Categories = tree
		return err
	})
	if err := g.Wait(); err != nil {
		metrics.VocabularyFetches.WithLabelValues("error").Inc()
		logger.Error("Failed to fetch vocabulary", err)
		return nil, fmt.Errorf("failed to load vocabulary: %w", err)
	}
	vocab.FetchedAt = s.now()
	metrics.VocabularyFetches.WithLabelValues("ok").Inc()

	if err := s.cache.Set(ctx, vocabularyKey, vocab, s.ttl); err != nil {
		logger.Warn("Failed to cache vocabulary", map[string]interface{}{
			"error": err.Error(),
		})
	}

	logger.Info("Vocabulary loaded", map[string]interface{}{
		"colors":     len(vocab.Colors),
		"sizes":      len(vocab.Sizes),
		"categories": len(vocab.Categories),
	})
	return vocab, nil
}

func (s *vocabularyService) ResolveColor(ctx context.Context, name string) (model.VariantColor, error) {
	vocab, err := s.Get(ctx)
	if err != nil {
		return model.VariantColor{}, err
	}
	if c, ok := vocab.ColorByName(name); ok {
		return c, nil
	}
	return model.VariantColor{}, fmt.Errorf("%w: %q", ErrUnknownColor, strings.TrimSpace(name))
}

func (s *vocabularyService) ResolveSize(ctx context.Context, name string) (model.VariantSize, error) {
	vocab, err := s.Get(ctx)
	if err != nil {
		return model.VariantSize{}, err
	}
	if sz, ok := vocab.SizeByName(name); ok {
		return sz, nil
	}
	return model.VariantSize{}, fmt.Errorf("%w: %q", ErrUnknownSize, strings.TrimSpace(name))
}

func (s *vocabularyService) ColorByID(ctx context.Context, id uint) (model.VariantColor, error) {
	vocab, err := s.Get(ctx)
	if err != nil {
		return model.VariantColor{}, err
	}
	if c, ok := vocab.ColorByID(id); ok {
		return c, nil
	}
	return model.VariantColor{}, fmt.Errorf("%w: id %d", ErrUnknownColor, id)
}

func (s *vocabularyService) SizeByID(ctx context.Context, id uint) (model.VariantSize, error) {
	vocab, err := s.Get(ctx)
	if err != nil {
		return model.VariantSize{}, err
	}
	if sz, ok := vocab.SizeByID(id); ok {
		return sz, nil
	}
	return model.VariantSize{}, fmt.Errorf("%w: id %d", ErrUnknownSize, id)
}

func (s *vocabularyService) CategoryByID(ctx context.Context, id uint) (model.CategoryPath, error) {
	vocab, err := s.Get(ctx)
	if err != nil {
		return model.CategoryPath{}, err
	}
	if c, ok := vocab.CategoryByID(id); ok {
		return c, nil
	}
	return model.CategoryPath{}, fmt.Errorf("%w: id %d", ErrUnknownCategory, id)
}
