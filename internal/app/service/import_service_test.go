package service

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/ikkim/catalog-admin/internal/app/model"
	"github.com/ikkim/catalog-admin/pkg/catalogapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const importCSV = `
productTitle,description,category,color,size,price,quantity,images
Shirt A,,Tops > Shirts,red,M,15000,2,a.png
Shirt A,,Tops > Shirts,blue,M,15000,1,b.png
Pants,,Bottoms,black,L,30000,4,c.png
`

func previewGroups() []model.ProductGroup {
	return []model.ProductGroup{
		{
			ProductTitle: "Shirt A",
			Category:     "Tops > Shirts",
			ProductDetails: []model.ImportRow{
				{ProductTitle: "Shirt A", Category: "Tops > Shirts", Color: "red", Size: "M", Price: model.NewMoney(15000), Quantity: 2},
				{ProductTitle: "Shirt A", Category: "Tops > Shirts", Color: "blue", Size: "M", Price: model.NewMoney(15000), Quantity: 1,
					IsError: true, ErrorMessage: "image b.png not found in zip"},
			},
		},
		{
			ProductTitle: "Pants",
			Category:     "Bottoms",
			ProductDetails: []model.ImportRow{
				{ProductTitle: "Pants", Category: "Bottoms", Color: "black", Size: "L", Price: model.NewMoney(30000), Quantity: 4},
			},
		},
	}
}

func rowEdit(title, category, color, size string, price, quantity float64) model.RowEdit {
	return model.RowEdit{
		ProductTitle: title,
		Category:     category,
		Color:        color,
		Size:         size,
		Price:        &price,
		Quantity:     &quantity,
	}
}

// previewedBatch walks a batch up to the previewed state.
func previewedBatch(t *testing.T, env *testEnv) *model.ImportBatch {
	t.Helper()
	ctx := t.Context()

	env.catalog.previewImport = func(ctx context.Context, file catalogapi.FilePart, zips []catalogapi.FilePart) ([]model.ProductGroup, error) {
		return previewGroups(), nil
	}

	batch, err := env.imports.CreateBatch(ctx, 9)
	require.NoError(t, err)
	_, err = env.imports.AttachFile(ctx, batch.ID, csvFile(importCSV))
	require.NoError(t, err)
	_, err = env.imports.AttachZip(ctx, batch.ID, BytesFile("images.zip", "application/zip", []byte("PK")))
	require.NoError(t, err)
	batch, err = env.imports.Preview(ctx, batch.ID)
	require.NoError(t, err)
	return batch
}

func TestImportService_PreviewFlow(t *testing.T) {
	env := setupServiceTest(t)
	ctx := t.Context()

	var sentFile string
	var sentZips []string
	env.catalog.previewImport = func(ctx context.Context, file catalogapi.FilePart, zips []catalogapi.FilePart) ([]model.ProductGroup, error) {
		data, err := io.ReadAll(file.Body)
		require.NoError(t, err)
		sentFile = string(data)
		for _, z := range zips {
			sentZips = append(sentZips, z.Filename)
		}
		return previewGroups(), nil
	}

	batch, err := env.imports.CreateBatch(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, model.ImportNoFile, batch.State)

	_, err = env.imports.Preview(ctx, batch.ID)
	assert.ErrorIs(t, err, model.ErrInvalidImportTransition)

	batch, err = env.imports.AttachFile(ctx, batch.ID, csvFile(importCSV))
	require.NoError(t, err)
	assert.Equal(t, model.ImportFileSelected, batch.State)

	batch, err = env.imports.AttachZip(ctx, batch.ID, BytesFile("images.zip", "application/zip", []byte("PK")))
	require.NoError(t, err)
	assert.Equal(t, model.ImportReadyToPreview, batch.State)

	batch, err = env.imports.Preview(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ImportPreviewed, batch.State)
	assert.Equal(t, 3, batch.RowCount())
	assert.Equal(t, 1, batch.ErrorCount())
	assert.Contains(t, sentFile, "Shirt A,,Tops > Shirts,red,M")
	assert.Equal(t, []string{"images.zip"}, sentZips)

	assert.Equal(t, []model.ImportState{
		model.ImportNoFile,
		model.ImportFileSelected,
		model.ImportReadyToPreview,
		model.ImportPreviewing,
		model.ImportPreviewed,
	}, env.events.states())
}

func TestImportService_AttachWorkbook(t *testing.T) {
	env := setupServiceTest(t)
	ctx := t.Context()

	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"productTitle *", "description", "category *"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]interface{}{"Shirt A", "", "Shirts"}))
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	require.NoError(t, f.Close())

	batch, err := env.imports.CreateBatch(ctx, 1)
	require.NoError(t, err)
	batch, err = env.imports.AttachFile(ctx, batch.ID,
		BytesFile("rows.xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "rows.csv", batch.FileName)

	rc, upload, err := env.stager.Open(ctx, batch.FileKey)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "text/csv", upload.ContentType)
	assert.Equal(t, "productTitle,description,category\nShirt A,,Shirts\n", string(data))
}

func TestImportService_AttachRejectsBadFiles(t *testing.T) {
	env := setupServiceTest(t)
	ctx := t.Context()
	batch, err := env.imports.CreateBatch(ctx, 1)
	require.NoError(t, err)

	tests := []struct {
		name   string
		attach func() error
		want   error
	}{
		{
			name: "Rows file with wrong extension",
			attach: func() error {
				_, err := env.imports.AttachFile(ctx, batch.ID, BytesFile("rows.txt", "text/plain", []byte("x")))
				return err
			},
			want: ErrImportFileType,
		},
		{
			name: "Archive that is not a zip",
			attach: func() error {
				_, err := env.imports.AttachZip(ctx, batch.ID, BytesFile("images.rar", "application/x-rar", []byte("x")))
				return err
			},
			want: ErrImportFileType,
		},
		{
			name: "Rows file over the size limit",
			attach: func() error {
				_, err := env.imports.AttachFile(ctx, batch.ID, UploadFile{Filename: "rows.csv", Size: 2 << 20})
				return err
			},
			want: ErrImportFileTooBig,
		},
		{
			name: "Unknown batch",
			attach: func() error {
				_, err := env.imports.AttachFile(ctx, "missing", csvFile(importCSV))
				return err
			},
			want: ErrImportNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.attach(), tt.want)
		})
	}
	assert.Zero(t, env.storedFiles(t))
}

func TestImportService_ReplacingFileReleasesPrevious(t *testing.T) {
	env := setupServiceTest(t)
	ctx := t.Context()
	batch, err := env.imports.CreateBatch(ctx, 1)
	require.NoError(t, err)

	_, err = env.imports.AttachFile(ctx, batch.ID, csvFile(importCSV))
	require.NoError(t, err)
	_, err = env.imports.AttachFile(ctx, batch.ID, csvFile("productTitle\nOther"))
	require.NoError(t, err)

	assert.Equal(t, 1, env.storedFiles(t))
	assert.Equal(t, 1, env.ownedUploads(t, model.OwnerImport, batch.ID))
}

func TestImportService_PreviewFailure(t *testing.T) {
	env := setupServiceTest(t)
	ctx := t.Context()
	batch := previewedBatch(t, env)

	env.catalog.previewImport = func(ctx context.Context, file catalogapi.FilePart, zips []catalogapi.FilePart) ([]model.ProductGroup, error) {
		return nil, catalogapi.ErrNetwork
	}
	_, err := env.imports.Preview(ctx, batch.ID)
	assert.ErrorIs(t, err, catalogapi.ErrNetwork)

	after, err := env.imports.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ImportReadyToPreview, after.State)
	assert.NotEmpty(t, after.LastError)
	assert.Equal(t, 2, env.storedFiles(t))
}

func TestImportService_EditRowUsesCatalogVerdict(t *testing.T) {
	env := setupServiceTest(t)
	ctx := t.Context()
	batch := previewedBatch(t, env)

	env.catalog.checkDetail = func(ctx context.Context, req catalogapi.CheckDetailRequest) (*catalogapi.CheckDetailResponse, error) {
		for _, sibling := range req.FileProductDetails {
			if sibling.ProductTitle == req.ProductTitle && sibling.Color == req.Detail.Color && sibling.Size == req.Detail.Size {
				return &catalogapi.CheckDetailResponse{Error: true, ErrorMessage: "중복된 색상/사이즈 조합입니다"}, nil
			}
		}
		return &catalogapi.CheckDetailResponse{}, nil
	}

	after, err := env.imports.EditRow(ctx, batch.ID, 1, rowEdit("Shirt A", "Tops > Shirts", "red", "M", 15000, 1))
	require.NoError(t, err)

	row, err := after.Row(1)
	require.NoError(t, err)
	assert.True(t, row.IsError)
	assert.Equal(t, "중복된 색상/사이즈 조합입니다", row.ErrorMessage)

	require.Len(t, env.catalog.checkRequests, 1)
	req := env.catalog.checkRequests[0]
	assert.Equal(t, "Shirts", req.Detail.Category)
	assert.Len(t, req.FileProductDetails, 2)
	assert.NotContains(t, req.FileProductDetails, model.FileProductDetail{ProductTitle: "Shirt A", Color: "blue", Size: "M"})

	after, err = env.imports.EditRow(ctx, batch.ID, 1, rowEdit("Shirt A", "Tops > Shirts", "green", "M", 15000, 1))
	require.NoError(t, err)
	row, err = after.Row(1)
	require.NoError(t, err)
	assert.False(t, row.IsError)
	assert.Empty(t, row.ErrorMessage)
	assert.Equal(t, 0, after.ErrorCount())
}

func TestImportService_EditRowLocalRules(t *testing.T) {
	env := setupServiceTest(t)
	ctx := t.Context()
	batch := previewedBatch(t, env)

	_, err := env.imports.EditRow(ctx, batch.ID, 0, rowEdit("Shirt A", "Shirts", "", "M", 100, 1.5))
	verrs, ok := model.AsValidationErrors(err)
	require.True(t, ok)
	assert.Contains(t, verrs.Fields(), "color")
	assert.Contains(t, verrs.Fields(), "quantity")
	assert.Empty(t, env.catalog.checkRequests)

	_, err = env.imports.EditRow(ctx, batch.ID, 10, rowEdit("Shirt A", "Shirts", "red", "M", 100, 1))
	assert.ErrorIs(t, err, model.ErrRowIndexOutOfRange)
}

func TestImportService_EditRowTransportFailureLeavesRow(t *testing.T) {
	env := setupServiceTest(t)
	ctx := t.Context()
	batch := previewedBatch(t, env)

	env.catalog.checkDetail = func(ctx context.Context, req catalogapi.CheckDetailRequest) (*catalogapi.CheckDetailResponse, error) {
		return nil, catalogapi.ErrNetwork
	}
	_, err := env.imports.EditRow(ctx, batch.ID, 1, rowEdit("Shirt A", "Shirts", "green", "M", 100, 1))
	assert.ErrorIs(t, err, catalogapi.ErrNetwork)

	after, err := env.imports.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	row, err := after.Row(1)
	require.NoError(t, err)
	assert.Equal(t, "blue", row.Color)
	assert.True(t, row.IsError)
}

func TestImportService_EditRowTitleChangeRegroups(t *testing.T) {
	env := setupServiceTest(t)
	ctx := t.Context()
	batch := previewedBatch(t, env)

	after, err := env.imports.EditRow(ctx, batch.ID, 0, rowEdit("Pants", "Bottoms", "red", "M", 100, 1))
	require.NoError(t, err)
	require.Len(t, after.Groups, 2)
	assert.Len(t, after.Groups[0].ProductDetails, 1)
	assert.Equal(t, "Pants", after.Groups[1].ProductTitle)
	assert.Len(t, after.Groups[1].ProductDetails, 2)
}

func TestImportService_SaveRefusedWithErrorsOrNoRows(t *testing.T) {
	env := setupServiceTest(t)
	ctx := t.Context()
	batch := previewedBatch(t, env)

	_, err := env.imports.Save(ctx, batch.ID)
	assert.ErrorIs(t, err, ErrImportHasErrors)

	for i := 0; i < 3; i++ {
		_, err = env.imports.DeleteRow(ctx, batch.ID, 0)
		require.NoError(t, err)
	}
	_, err = env.imports.DeleteRow(ctx, batch.ID, 0)
	assert.ErrorIs(t, err, model.ErrRowIndexOutOfRange)

	_, err = env.imports.Save(ctx, batch.ID)
	assert.ErrorIs(t, err, ErrImportEmpty)
	assert.Empty(t, env.catalog.savedGroups)

	after, err := env.imports.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ImportPreviewed, after.State)
}

func TestImportService_SaveSuccessClears(t *testing.T) {
	env := setupServiceTest(t)
	ctx := t.Context()
	batch := previewedBatch(t, env)

	_, err := env.imports.DeleteRow(ctx, batch.ID, 1)
	require.NoError(t, err)

	saved, err := env.imports.Save(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ImportSaved, saved.State)
	assert.Zero(t, saved.RowCount())
	assert.Empty(t, saved.FileKey)
	assert.Empty(t, saved.Zips)
	assert.Zero(t, env.storedFiles(t))

	require.Len(t, env.catalog.savedGroups, 1)
	sent := env.catalog.savedGroups[0]
	require.Len(t, sent, 2)
	assert.Equal(t, "Shirts", sent[0].Category)
	assert.Equal(t, "Shirts", sent[0].ProductDetails[0].Category)

	states := env.events.states()
	assert.Equal(t, model.ImportSaved, states[len(states)-1])
	assert.Equal(t, model.ImportSaving, states[len(states)-2])
}

func TestImportService_SaveFailureThenEdit(t *testing.T) {
	env := setupServiceTest(t)
	ctx := t.Context()
	batch := previewedBatch(t, env)

	_, err := env.imports.DeleteRow(ctx, batch.ID, 1)
	require.NoError(t, err)

	env.catalog.saveImport = func(ctx context.Context, groups []model.ProductGroup) (*catalogapi.ActionResponse, error) {
		return &catalogapi.ActionResponse{Success: false, Message: "category not found"}, nil
	}
	_, err = env.imports.Save(ctx, batch.ID)
	assert.ErrorIs(t, err, catalogapi.ErrRejected)

	failed, err := env.imports.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ImportSaveFailed, failed.State)
	assert.Contains(t, failed.LastError, "category not found")
	assert.Equal(t, 2, failed.RowCount())
	assert.Equal(t, 2, env.storedFiles(t))

	edited, err := env.imports.EditRow(ctx, batch.ID, 0, rowEdit("Shirt A", "Tops > Shirts", "red", "L", 100, 1))
	require.NoError(t, err)
	assert.Equal(t, model.ImportPreviewed, edited.State)
}

func TestImportService_EditBeforePreviewRefused(t *testing.T) {
	env := setupServiceTest(t)
	ctx := t.Context()
	batch, err := env.imports.CreateBatch(ctx, 1)
	require.NoError(t, err)

	_, err = env.imports.EditRow(ctx, batch.ID, 0, rowEdit("Shirt A", "Shirts", "red", "M", 100, 1))
	assert.ErrorIs(t, err, model.ErrInvalidImportTransition)
	_, err = env.imports.Save(ctx, batch.ID)
	assert.ErrorIs(t, err, model.ErrInvalidImportTransition)
}

func TestImportService_DiscardAndSweep(t *testing.T) {
	env := setupServiceTest(t)
	ctx := t.Context()
	batch := previewedBatch(t, env)

	require.NoError(t, env.imports.Discard(ctx, batch.ID))
	assert.Zero(t, env.storedFiles(t))
	_, err := env.imports.GetBatch(ctx, batch.ID)
	assert.ErrorIs(t, err, ErrImportNotFound)
	assert.ErrorIs(t, env.imports.Discard(ctx, batch.ID), ErrImportNotFound)

	stale := previewedBatch(t, env)
	n, err := env.imports.SweepStale(ctx, -1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = env.imports.GetBatch(ctx, stale.ID)
	assert.ErrorIs(t, err, ErrImportNotFound)
}

// markBusy rewrites the stored batch as if a request died mid-flight.
func markBusy(t *testing.T, env *testEnv, id string, state model.ImportState, age time.Duration) {
	t.Helper()
	require.NoError(t, env.db.Model(&model.ImportBatch{}).Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"state":      state,
			"updated_at": time.Now().Add(-age),
		}).Error)
}

func TestImportService_InterruptedSaveCanBeRetried(t *testing.T) {
	env := setupServiceTest(t)
	ctx := t.Context()
	batch := previewedBatch(t, env)
	markBusy(t, env, batch.ID, model.ImportSaving, 48*time.Hour)

	// the error row has to go before a retry is allowed
	batch, err := env.imports.DeleteRow(ctx, batch.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, model.ImportPreviewed, batch.State)
	assert.Equal(t, 2, batch.RowCount())

	batch, err = env.imports.Save(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ImportSaved, batch.State)
	assert.Contains(t, env.events.states(), model.ImportSaveFailed)
}

func TestImportService_RecentBusyBatchLeftAlone(t *testing.T) {
	env := setupServiceTest(t)
	ctx := t.Context()
	batch := previewedBatch(t, env)
	markBusy(t, env, batch.ID, model.ImportSaving, time.Minute)

	_, err := env.imports.DeleteRow(ctx, batch.ID, 1)
	assert.ErrorIs(t, err, model.ErrInvalidImportTransition)

	n, err := env.imports.SweepStale(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)
	found, err := env.imports.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ImportSaving, found.State)
}

func TestImportService_SweepRecoversInterruptedBatches(t *testing.T) {
	env := setupServiceTest(t)
	ctx := t.Context()
	previewing := previewedBatch(t, env)
	saving := previewedBatch(t, env)
	markBusy(t, env, previewing.ID, model.ImportPreviewing, 48*time.Hour)
	markBusy(t, env, saving.ID, model.ImportSaving, 48*time.Hour)

	n, err := env.imports.SweepStale(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)

	found, err := env.imports.GetBatch(ctx, previewing.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ImportReadyToPreview, found.State)
	assert.Equal(t, "preview was interrupted", found.LastError)

	found, err = env.imports.GetBatch(ctx, saving.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ImportSaveFailed, found.State)
	assert.Equal(t, 3, found.RowCount())

	_, err = env.imports.Preview(ctx, previewing.ID)
	require.NoError(t, err)
}
