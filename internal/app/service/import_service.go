package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/ikkim/catalog-admin/internal/app/model"
	"github.com/ikkim/catalog-admin/internal/app/repository"
	"github.com/ikkim/catalog-admin/internal/metrics"
	"github.com/ikkim/catalog-admin/internal/storage"
	"github.com/ikkim/catalog-admin/pkg/catalogapi"
	"github.com/ikkim/catalog-admin/pkg/logger"
	"gorm.io/gorm"
)

var (
	ErrImportNotFound    = errors.New("import batch not found")
	ErrImportHasErrors   = errors.New("import has rows with errors")
	ErrImportEmpty       = errors.New("import has no rows")
	ErrImportFileType    = errors.New("unsupported import file type")
	ErrImportFileTooBig  = errors.New("import file is too large")
	ErrImportFileMissing = errors.New("import file is missing")
)

// importInFlightLimit is well past the catalog client timeout. A batch busy
// for longer has lost its request.
const importInFlightLimit = 10 * time.Minute

// ImportEvent is pushed to subscribers whenever a batch changes.
type ImportEvent struct {
	BatchID   string            `json:"batchId"`
	State     model.ImportState `json:"state"`
	Rows      int               `json:"rows"`
	Errors    int               `json:"errors"`
	Message   string            `json:"message,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// ImportEventPublisher fans import events out to listeners.
type ImportEventPublisher interface {
	PublishImportEvent(event ImportEvent)
}

type ImportService interface {
	CreateBatch(ctx context.Context, userID uint) (*model.ImportBatch, error)
	GetBatch(ctx context.Context, id string) (*model.ImportBatch, error)
	AttachFile(ctx context.Context, id string, file UploadFile) (*model.ImportBatch, error)
	AttachZip(ctx context.Context, id string, file UploadFile) (*model.ImportBatch, error)
	Preview(ctx context.Context, id string) (*model.ImportBatch, error)
	EditRow(ctx context.Context, id string, index int, edit model.RowEdit) (*model.ImportBatch, error)
	DeleteRow(ctx context.Context, id string, index int) (*model.ImportBatch, error)
	Save(ctx context.Context, id string) (*model.ImportBatch, error)
	Discard(ctx context.Context, id string) error
	SweepStale(ctx context.Context, olderThan time.Duration) (int, error)
}

type importService struct {
	batches   repository.ImportBatchRepository
	uploads   UploadStager
	api       ImportAPI
	publisher ImportEventPublisher
	maxBytes  int64
	locks     *keyedMutex
}

func NewImportService(
	batches repository.ImportBatchRepository,
	uploads UploadStager,
	api ImportAPI,
	publisher ImportEventPublisher,
	maxBytes int64,
) ImportService {
	return &importService{
		batches:   batches,
		uploads:   uploads,
		api:       api,
		publisher: publisher,
		maxBytes:  maxBytes,
		locks:     newKeyedMutex(),
	}
}

func (s *importService) publish(batch *model.ImportBatch) {
	metrics.ImportTransitions.WithLabelValues(string(batch.State)).Inc()
	if s.publisher == nil {
		return
	}
	s.publisher.PublishImportEvent(NewImportEvent(batch))
}

// NewImportEvent snapshots the batch counters for subscribers.
func NewImportEvent(batch *model.ImportBatch) ImportEvent {
	return ImportEvent{
		BatchID:   batch.ID,
		State:     batch.State,
		Rows:      batch.RowCount(),
		Errors:    batch.ErrorCount(),
		Message:   batch.LastError,
		Timestamp: time.Now(),
	}
}

func (s *importService) CreateBatch(ctx context.Context, userID uint) (*model.ImportBatch, error) {
	batch := &model.ImportBatch{CreatedBy: userID}
	if err := s.batches.Create(ctx, batch); err != nil {
		return nil, err
	}
	logger.Info("Import batch created", map[string]interface{}{
		"batch_id": batch.ID,
		"user_id":  userID,
	})
	s.publish(batch)
	return batch, nil
}

func (s *importService) GetBatch(ctx context.Context, id string) (*model.ImportBatch, error) {
	batch, err := s.batches.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrImportNotFound
		}
		return nil, err
	}
	return batch, nil
}

// load reads a batch under its lock and releases it when a previous request
// left it busy.
func (s *importService) load(ctx context.Context, id string) (*model.ImportBatch, error) {
	batch, err := s.GetBatch(ctx, id)
	if err != nil {
		return nil, err
	}
	if !batch.Interrupted(time.Now(), importInFlightLimit) {
		return batch, nil
	}
	stuck := batch.State
	batch.Recover()
	if err := s.save(ctx, batch); err != nil {
		return nil, err
	}
	logger.Warn("Recovered interrupted import batch", map[string]interface{}{
		"batch_id": id,
		"was":      stuck,
		"state":    batch.State,
	})
	return batch, nil
}

// save persists the batch and notifies subscribers.
func (s *importService) save(ctx context.Context, batch *model.ImportBatch) error {
	if err := s.batches.Update(ctx, batch); err != nil {
		return err
	}
	s.publish(batch)
	return nil
}

func (s *importService) checkSize(f UploadFile) error {
	if s.maxBytes > 0 {
		if err := storage.ValidateFileSize(f.Size, s.maxBytes); err != nil {
			return fmt.Errorf("%w: %s", ErrImportFileTooBig, f.Filename)
		}
	}
	return nil
}

// AttachFile sets the rows file. A workbook is converted to CSV first.
func (s *importService) AttachFile(ctx context.Context, id string, file UploadFile) (*model.ImportBatch, error) {
	if err := storage.ValidateExtension(file.Filename, ".csv", ".xlsx"); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrImportFileType, file.Filename)
	}
	if err := s.checkSize(file); err != nil {
		return nil, err
	}

	if isXLSX(file.Filename) {
		converted, err := s.convertWorkbook(file)
		if err != nil {
			return nil, err
		}
		file = converted
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	batch, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if batch.State.Busy() {
		return nil, model.ErrInvalidImportTransition
	}

	staged, err := s.uploads.Stage(ctx, model.OwnerImport, id, model.SlotImportCSV, []UploadFile{file})
	if err != nil {
		return nil, err
	}

	previous := batch.FileKey
	batch.FileKey = staged[0].Key
	batch.FileName = file.Filename
	batch.Groups = model.ProductGroups{}
	batch.LastError = ""
	if err := batch.TransitionTo(batch.FileState()); err != nil {
		_ = s.uploads.Release(context.WithoutCancel(ctx), staged[0].Key)
		return nil, err
	}
	if err := s.save(ctx, batch); err != nil {
		_ = s.uploads.Release(context.WithoutCancel(ctx), staged[0].Key)
		return nil, err
	}

	if err := s.uploads.Release(ctx, previous); err != nil {
		logger.Warn("Failed to release replaced import file", map[string]interface{}{
			"batch_id": id,
			"error":    err.Error(),
		})
	}
	logger.Info("Import file attached", map[string]interface{}{
		"batch_id": id,
		"file":     file.Filename,
		"state":    batch.State,
	})
	return batch, nil
}

func (s *importService) convertWorkbook(file UploadFile) (UploadFile, error) {
	rc, err := file.Open()
	if err != nil {
		return UploadFile{}, err
	}
	defer rc.Close()

	data, err := xlsxToCSV(rc)
	if err != nil {
		return UploadFile{}, fmt.Errorf("%w: %v", ErrImportFileType, err)
	}
	name := strings.TrimSuffix(file.Filename, filepath.Ext(file.Filename)) + ".csv"
	return BytesFile(name, "text/csv", data), nil
}

func (s *importService) AttachZip(ctx context.Context, id string, file UploadFile) (*model.ImportBatch, error) {
	if err := storage.ValidateExtension(file.Filename, ".zip"); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrImportFileType, file.Filename)
	}
	if err := s.checkSize(file); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	batch, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if batch.State.Busy() {
		return nil, model.ErrInvalidImportTransition
	}

	staged, err := s.uploads.Stage(ctx, model.OwnerImport, id, model.SlotImportZip, []UploadFile{file})
	if err != nil {
		return nil, err
	}

	batch.Zips = append(batch.Zips, model.UploadRef{Key: staged[0].Key, Filename: file.Filename})
	batch.Groups = model.ProductGroups{}
	if err := batch.TransitionTo(batch.FileState()); err != nil {
		_ = s.uploads.Release(context.WithoutCancel(ctx), staged[0].Key)
		return nil, err
	}
	if err := s.save(ctx, batch); err != nil {
		_ = s.uploads.Release(context.WithoutCancel(ctx), staged[0].Key)
		return nil, err
	}
	return batch, nil
}

// Preview uploads the staged files and replaces the rows with the catalog's
// parse of them. The batch lock is held for the whole call.
func (s *importService) Preview(ctx context.Context, id string) (*model.ImportBatch, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	batch, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := batch.TransitionTo(model.ImportPreviewing); err != nil {
		return nil, err
	}
	if err := s.save(ctx, batch); err != nil {
		return nil, err
	}

	groups, callErr := s.preview(ctx, batch)
	// persist the outcome even if the caller went away
	ctx = context.WithoutCancel(ctx)

	if callErr != nil {
		batch.LastError = errorMessage(callErr)
		_ = batch.TransitionTo(model.ImportReadyToPreview)
		if err := s.save(ctx, batch); err != nil {
			logger.Error("Failed to record preview failure", err, map[string]interface{}{
				"batch_id": id,
			})
		}
		logger.FromContext(ctx).Warn("Import preview failed", map[string]interface{}{
			"batch_id": id,
			"error":    callErr.Error(),
		})
		return nil, callErr
	}

	batch.Groups = model.ProductGroups(groups)
	if batch.Groups == nil {
		batch.Groups = model.ProductGroups{}
	}
	batch.LastError = ""
	_ = batch.TransitionTo(model.ImportPreviewed)
	if err := s.save(ctx, batch); err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("Import previewed", map[string]interface{}{
		"batch_id": id,
		"groups":   len(batch.Groups),
		"rows":     batch.RowCount(),
		"errors":   batch.ErrorCount(),
	})
	return batch, nil
}

func (s *importService) preview(ctx context.Context, batch *model.ImportBatch) ([]model.ProductGroup, error) {
	var closers []io.Closer
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()

	rc, upload, err := s.uploads.Open(ctx, batch.FileKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImportFileMissing, err)
	}
	closers = append(closers, rc)
	file := catalogapi.FilePart{Filename: batch.FileName, ContentType: upload.ContentType, Body: rc}

	zips := make([]catalogapi.FilePart, 0, len(batch.Zips))
	for _, z := range batch.Zips {
		zrc, zu, err := s.uploads.Open(ctx, z.Key)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrImportFileMissing, err)
		}
		closers = append(closers, zrc)
		zips = append(zips, catalogapi.FilePart{Filename: z.Filename, ContentType: zu.ContentType, Body: zrc})
	}

	return s.api.PreviewImport(ctx, file, zips)
}

// EditRow validates locally, asks the catalog whether the row is acceptable
// next to every other row, then commits the edit with the verdict.
func (s *importService) EditRow(ctx context.Context, id string, index int, edit model.RowEdit) (*model.ImportBatch, error) {
	if err := edit.Check(); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	batch, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !batch.State.Editable() {
		return nil, model.ErrInvalidImportTransition
	}
	prev, err := batch.Row(index)
	if err != nil {
		return nil, err
	}
	row := edit.Apply(prev)

	req := catalogapi.CheckDetailRequest{
		ProductTitle: row.ProductTitle,
		Detail: catalogapi.CheckDetail{
			ProductTitle: row.ProductTitle,
			Color:        row.Color,
			Size:         row.Size,
			Category:     model.LeafCategoryName(row.Category),
		},
		FileProductDetails: batch.Siblings(index),
	}
	resp, err := s.api.CheckImportDetail(ctx, req)
	if err != nil {
		logger.FromContext(ctx).Warn("Row check failed", map[string]interface{}{
			"batch_id": id,
			"row":      index,
			"error":    err.Error(),
		})
		return nil, err
	}

	row.IsError = resp.Error
	row.ErrorMessage = resp.ErrorMessage
	if err := batch.CommitRow(index, row); err != nil {
		return nil, err
	}
	if batch.State == model.ImportSaveFailed {
		_ = batch.TransitionTo(model.ImportPreviewed)
	}
	if err := s.save(context.WithoutCancel(ctx), batch); err != nil {
		return nil, err
	}
	return batch, nil
}

func (s *importService) DeleteRow(ctx context.Context, id string, index int) (*model.ImportBatch, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	batch, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !batch.State.Editable() {
		return nil, model.ErrInvalidImportTransition
	}
	if err := batch.DeleteRow(index); err != nil {
		return nil, err
	}
	if batch.State == model.ImportSaveFailed {
		_ = batch.TransitionTo(model.ImportPreviewed)
	}
	if err := s.save(ctx, batch); err != nil {
		return nil, err
	}
	return batch, nil
}

// Save refuses batches with error rows or no rows before anything is sent.
func (s *importService) Save(ctx context.Context, id string) (*model.ImportBatch, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	batch, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !model.CanTransition(batch.State, model.ImportSaving) {
		return nil, model.ErrInvalidImportTransition
	}
	if batch.HasErrors() {
		return nil, ErrImportHasErrors
	}
	if batch.RowCount() == 0 {
		return nil, ErrImportEmpty
	}

	batch.StripBreadcrumbs()
	_ = batch.TransitionTo(model.ImportSaving)
	if err := s.save(ctx, batch); err != nil {
		return nil, err
	}

	resp, callErr := s.api.SaveImport(ctx, batch.Groups)
	if callErr == nil {
		callErr = resp.Err()
	}
	ctx = context.WithoutCancel(ctx)

	if callErr != nil {
		batch.LastError = errorMessage(callErr)
		_ = batch.TransitionTo(model.ImportSaveFailed)
		if err := s.save(ctx, batch); err != nil {
			logger.Error("Failed to record save failure", err, map[string]interface{}{
				"batch_id": id,
			})
		}
		logger.FromContext(ctx).Warn("Import save failed", map[string]interface{}{
			"batch_id": id,
			"error":    callErr.Error(),
		})
		return nil, callErr
	}

	rows := batch.RowCount()
	keys := batch.StagedKeys()
	batch.Clear()
	batch.LastError = ""
	_ = batch.TransitionTo(model.ImportSaved)
	if err := s.save(ctx, batch); err != nil {
		return nil, err
	}
	if err := s.uploads.Release(ctx, keys...); err != nil {
		logger.Warn("Failed to release saved import files", map[string]interface{}{
			"batch_id": id,
			"error":    err.Error(),
		})
	}

	logger.FromContext(ctx).Info("Import saved", map[string]interface{}{
		"batch_id": id,
		"rows":     rows,
	})
	return batch, nil
}

func (s *importService) Discard(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	if err := s.batches.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrImportNotFound
		}
		return err
	}
	if err := s.uploads.ReleaseOwner(ctx, model.OwnerImport, id); err != nil {
		logger.Warn("Failed to release discarded import files", map[string]interface{}{
			"batch_id": id,
			"error":    err.Error(),
		})
	}
	logger.Info("Import batch discarded", map[string]interface{}{
		"batch_id": id,
	})
	return nil
}

func (s *importService) SweepStale(ctx context.Context, olderThan time.Duration) (int, error) {
	if err := s.recoverInterrupted(ctx); err != nil {
		return 0, err
	}

	stale, err := s.batches.FindStale(ctx, time.Now().Add(-olderThan), 100)
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, b := range stale {
		if err := s.Discard(ctx, b.ID); err != nil && !errors.Is(err, ErrImportNotFound) {
			logger.Warn("Failed to sweep stale import batch", map[string]interface{}{
				"batch_id": b.ID,
				"error":    err.Error(),
			})
			continue
		}
		swept++
	}
	return swept, nil
}

func (s *importService) recoverInterrupted(ctx context.Context) error {
	stuck, err := s.batches.FindInterrupted(ctx, time.Now().Add(-importInFlightLimit), 100)
	if err != nil {
		return err
	}
	for _, b := range stuck {
		unlock := s.locks.Lock(b.ID)
		_, err := s.load(ctx, b.ID)
		unlock()
		if err != nil && !errors.Is(err, ErrImportNotFound) {
			logger.Warn("Failed to recover interrupted import batch", map[string]interface{}{
				"batch_id": b.ID,
				"error":    err.Error(),
			})
		}
	}
	return nil
}
