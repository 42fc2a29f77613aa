package service

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ikkim/catalog-admin/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVocabularyService_GetCaches(t *testing.T) {
	catalog := newFakeCatalog()
	svc := NewVocabularyService(catalog, cache.NewMemoryCache(time.Minute), time.Minute)

	v1, err := svc.Get(t.Context())
	require.NoError(t, err)
	v2, err := svc.Get(t.Context())
	require.NoError(t, err)

	assert.Len(t, v1.Colors, 2)
	assert.Equal(t, v1.Sizes, v2.Sizes)
	assert.Equal(t, int32(1), catalog.colorCalls.Load())

	_, err = svc.Refresh(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int32(2), catalog.colorCalls.Load())
}

func TestVocabularyService_ConcurrentMissesShareOneFetch(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.vocabGate = make(chan struct{})
	svc := NewVocabularyService(catalog, cache.NewMemoryCache(time.Minute), time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Get(t.Context())
			assert.NoError(t, err)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(catalog.vocabGate)
	wg.Wait()

	assert.Equal(t, int32(1), catalog.colorCalls.Load())
}

func TestVocabularyService_FetchErrorNotCached(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.vocabErr = errors.New("catalog down")
	svc := NewVocabularyService(catalog, cache.NewMemoryCache(time.Minute), time.Minute)

	_, err := svc.Get(t.Context())
	require.Error(t, err)

	catalog.vocabErr = nil
	v, err := svc.Get(t.Context())
	require.NoError(t, err)
	assert.Len(t, v.Colors, 2)
}

func TestVocabularyService_Lookups(t *testing.T) {
	svc := NewVocabularyService(newFakeCatalog(), cache.NewMemoryCache(time.Minute), time.Minute)
	ctx := t.Context()

	tests := []struct {
		name    string
		lookup  func() (uint, error)
		wantID  uint
		wantErr error
	}{
		{"Color by name, case-insensitive", func() (uint, error) { c, err := svc.ResolveColor(ctx, " red "); return c.ID, err }, 1, nil},
		{"Unknown color", func() (uint, error) { c, err := svc.ResolveColor(ctx, "Magenta"); return c.ID, err }, 0, ErrUnknownColor},
		{"Size by code", func() (uint, error) { s, err := svc.ResolveSize(ctx, "M"); return s.ID, err }, 11, nil},
		{"Size by label", func() (uint, error) { s, err := svc.ResolveSize(ctx, "large"); return s.ID, err }, 12, nil},
		{"Empty size", func() (uint, error) { s, err := svc.ResolveSize(ctx, ""); return s.ID, err }, 0, ErrUnknownSize},
		{"Color by id", func() (uint, error) { c, err := svc.ColorByID(ctx, 2); return c.ID, err }, 2, nil},
		{"Unknown size id", func() (uint, error) { s, err := svc.SizeByID(ctx, 99); return s.ID, err }, 0, ErrUnknownSize},
		{"Nested category", func() (uint, error) { c, err := svc.CategoryByID(ctx, 101); return c.ID, err }, 101, nil},
		{"Unknown category", func() (uint, error) { c, err := svc.CategoryByID(ctx, 7); return c.ID, err }, 0, ErrUnknownCategory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := tt.lookup()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, id)
		})
	}
}
