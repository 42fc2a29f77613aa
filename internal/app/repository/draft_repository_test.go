package repository

import (
	"testing"
	"time"

	"github.com/ikkim/catalog-admin/internal/app/model"
	"github.com/ikkim/catalog-admin/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupDraftTest(t *testing.T) (*gorm.DB, DraftRepository) {
	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() { db.CleanupTestDB(testDB) })

	return testDB, NewDraftRepository(testDB)
}

func TestDraftRepository_CreateAndFind(t *testing.T) {
	_, repo := setupDraftTest(t)
	ctx := t.Context()

	draft := &model.ProductDraft{Title: "Linen Shirt", CreatedBy: 7}
	require.True(t, draft.Matrix.AddColor(model.VariantColor{ID: 3, Name: "Red"}))
	_, err := draft.Matrix.ToggleSize(3, 10)
	require.NoError(t, err)

	require.NoError(t, repo.Create(ctx, draft))
	assert.Len(t, draft.ID, 36)

	found, err := repo.FindByID(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, "Linen Shirt", found.Title)
	require.Len(t, found.Matrix.Details, 1)
	assert.Equal(t, []uint{10}, found.Matrix.Details[0].Sizes)

	_, err = repo.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestDraftRepository_UpdateAndDelete(t *testing.T) {
	_, repo := setupDraftTest(t)
	ctx := t.Context()

	draft := &model.ProductDraft{Title: "Before"}
	require.NoError(t, repo.Create(ctx, draft))

	draft.Title = "After"
	require.NoError(t, repo.Update(ctx, draft))

	found, err := repo.FindByID(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, "After", found.Title)

	require.NoError(t, repo.Delete(ctx, draft.ID))
	assert.ErrorIs(t, repo.Delete(ctx, draft.ID), gorm.ErrRecordNotFound)
}

func TestDraftRepository_FindByCreator(t *testing.T) {
	_, repo := setupDraftTest(t)
	ctx := t.Context()

	require.NoError(t, repo.Create(ctx, &model.ProductDraft{Title: "a", CreatedBy: 1}))
	require.NoError(t, repo.Create(ctx, &model.ProductDraft{Title: "b", CreatedBy: 1}))
	require.NoError(t, repo.Create(ctx, &model.ProductDraft{Title: "c", CreatedBy: 2}))

	drafts, err := repo.FindByCreator(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, drafts, 2)
}

func TestDraftRepository_FindStale(t *testing.T) {
	testDB, repo := setupDraftTest(t)
	ctx := t.Context()

	old := &model.ProductDraft{Title: "old"}
	fresh := &model.ProductDraft{Title: "fresh"}
	require.NoError(t, repo.Create(ctx, old))
	require.NoError(t, repo.Create(ctx, fresh))

	past := time.Now().Add(-96 * time.Hour)
	require.NoError(t, testDB.Model(&model.ProductDraft{}).Where("id = ?", old.ID).
		UpdateColumn("updated_at", past).Error)

	stale, err := repo.FindStale(ctx, time.Now().Add(-72*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, old.ID, stale[0].ID)
}
