package service

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ikkim/catalog-admin/internal/app/model"
	"github.com/ikkim/catalog-admin/internal/app/repository"
	"github.com/ikkim/catalog-admin/internal/cache"
	"github.com/ikkim/catalog-admin/internal/db"
	"github.com/ikkim/catalog-admin/internal/storage"
	"github.com/ikkim/catalog-admin/pkg/catalogapi"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeCatalog stands in for the catalog API. Hooks left nil use a default.
type fakeCatalog struct {
	mu sync.Mutex

	colors     []model.VariantColor
	sizes      []model.VariantSize
	categories []model.Category
	vocabErr   error
	vocabGate  chan struct{}
	colorCalls atomic.Int32

	sizesByColor   func(ctx context.Context, detailID uint, color string) (*model.SizesByColorResponse, error)
	productByColor func(ctx context.Context, detailID uint, color, size string) (*model.ProductDetailQueryResponse, error)
	updateDetail   func(ctx context.Context, detailID uint, req catalogapi.UpdateDetailRequest) (*catalogapi.ActionResponse, error)
	checkDetail    func(ctx context.Context, req catalogapi.CheckDetailRequest) (*catalogapi.CheckDetailResponse, error)
	previewImport  func(ctx context.Context, file catalogapi.FilePart, zips []catalogapi.FilePart) ([]model.ProductGroup, error)
	saveImport     func(ctx context.Context, groups []model.ProductGroup) (*catalogapi.ActionResponse, error)
	createProduct  func(ctx context.Context, sub model.ProductSubmission, files []catalogapi.FilePart) (*catalogapi.ProductResponse, error)
	products       map[uint]*model.ExistingProduct

	updateCalls   []catalogapi.UpdateDetailRequest
	checkRequests []catalogapi.CheckDetailRequest
	savedGroups   [][]model.ProductGroup
	submissions   []model.ProductSubmission
	submitted     map[string][]string
	updatedID     uint
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		colors: []model.VariantColor{
			{ID: 1, Name: "Red", Hex: "#ff0000"},
			{ID: 2, Name: "Blue", Hex: "#0000ff"},
		},
		sizes: []model.VariantSize{
			{ID: 10, Code: "S", Label: "Small"},
			{ID: 11, Code: "M", Label: "Medium"},
			{ID: 12, Code: "L", Label: "Large"},
		},
		categories: []model.Category{
			{ID: 100, Name: "Tops", Children: []model.Category{{ID: 101, Name: "Shirts"}}},
		},
		submitted: make(map[string][]string),
	}
}

func (f *fakeCatalog) GetActiveColors(ctx context.Context) ([]model.VariantColor, error) {
	f.colorCalls.Add(1)
	if f.vocabGate != nil {
		<-f.vocabGate
	}
	return f.colors, f.vocabErr
}

func (f *fakeCatalog) GetActiveSizes(ctx context.Context) ([]model.VariantSize, error) {
	return f.sizes, nil
}

func (f *fakeCatalog) GetCategoryTree(ctx context.Context) ([]model.Category, error) {
	return f.categories, nil
}

func (f *fakeCatalog) GetSizesByColor(ctx context.Context, detailID uint, color string) (*model.SizesByColorResponse, error) {
	if f.sizesByColor == nil {
		return nil, catalogapi.ErrNotFound
	}
	return f.sizesByColor(ctx, detailID, color)
}

func (f *fakeCatalog) GetProductByColorPublic(ctx context.Context, detailID uint, color, size string) (*model.ProductDetailQueryResponse, error) {
	if f.productByColor == nil {
		return &model.ProductDetailQueryResponse{DetailID: detailID, ActiveColor: color, ActiveSize: size}, nil
	}
	return f.productByColor(ctx, detailID, color, size)
}

func (f *fakeCatalog) UpdateProductDetailAdmin(ctx context.Context, detailID uint, req catalogapi.UpdateDetailRequest) (*catalogapi.ActionResponse, error) {
	f.mu.Lock()
	f.updateCalls = append(f.updateCalls, req)
	f.mu.Unlock()
	if f.updateDetail == nil {
		return &catalogapi.ActionResponse{Success: true}, nil
	}
	return f.updateDetail(ctx, detailID, req)
}

func (f *fakeCatalog) CheckImportDetail(ctx context.Context, req catalogapi.CheckDetailRequest) (*catalogapi.CheckDetailResponse, error) {
	f.mu.Lock()
	f.checkRequests = append(f.checkRequests, req)
	f.mu.Unlock()
	if f.checkDetail == nil {
		return &catalogapi.CheckDetailResponse{}, nil
	}
	return f.checkDetail(ctx, req)
}

func (f *fakeCatalog) PreviewImport(ctx context.Context, file catalogapi.FilePart, zips []catalogapi.FilePart) ([]model.ProductGroup, error) {
	if f.previewImport == nil {
		return nil, errors.New("preview not configured")
	}
	return f.previewImport(ctx, file, zips)
}

func (f *fakeCatalog) SaveImport(ctx context.Context, groups []model.ProductGroup) (*catalogapi.ActionResponse, error) {
	f.mu.Lock()
	f.savedGroups = append(f.savedGroups, groups)
	f.mu.Unlock()
	if f.saveImport == nil {
		return &catalogapi.ActionResponse{Success: true}, nil
	}
	return f.saveImport(ctx, groups)
}

func (f *fakeCatalog) GetProduct(ctx context.Context, productID uint) (*model.ExistingProduct, error) {
	p, ok := f.products[productID]
	if !ok {
		return nil, catalogapi.ErrNotFound
	}
	return p, nil
}

func (f *fakeCatalog) record(sub model.ProductSubmission, files []catalogapi.FilePart) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submissions = append(f.submissions, sub)
	for _, p := range files {
		data, err := io.ReadAll(p.Body)
		if err != nil {
			return err
		}
		f.submitted[p.Field] = append(f.submitted[p.Field], string(data))
	}
	return nil
}

func (f *fakeCatalog) CreateProduct(ctx context.Context, sub model.ProductSubmission, files []catalogapi.FilePart) (*catalogapi.ProductResponse, error) {
	if err := f.record(sub, files); err != nil {
		return nil, err
	}
	if f.createProduct != nil {
		return f.createProduct(ctx, sub, files)
	}
	return &catalogapi.ProductResponse{ID: 501}, nil
}

func (f *fakeCatalog) UpdateProduct(ctx context.Context, productID uint, sub model.ProductSubmission, files []catalogapi.FilePart) (*catalogapi.ProductResponse, error) {
	if err := f.record(sub, files); err != nil {
		return nil, err
	}
	f.updatedID = productID
	return &catalogapi.ProductResponse{ID: productID}, nil
}

// recordingPublisher keeps every published import event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []ImportEvent
}

func (p *recordingPublisher) PublishImportEvent(event ImportEvent) {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
}

func (p *recordingPublisher) states() []model.ImportState {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.ImportState, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.State)
	}
	return out
}

type testEnv struct {
	db       *gorm.DB
	catalog  *fakeCatalog
	dir      string
	uploads  repository.StagedUploadRepository
	stager   UploadStager
	vocab    VocabularyService
	editor   VariantEditorService
	resolver *detailResolverService
	imports  ImportService
	events   *recordingPublisher
}

func setupServiceTest(t *testing.T) *testEnv {
	t.Helper()

	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() {
		db.CleanupTestDB(testDB)
	})

	env := &testEnv{
		db:      testDB,
		catalog: newFakeCatalog(),
		dir:     t.TempDir(),
		uploads: repository.NewStagedUploadRepository(testDB),
		events:  &recordingPublisher{},
	}
	env.stager = NewUploadStager(storage.NewLocalStorage(env.dir, "/uploads"), env.uploads)
	env.vocab = NewVocabularyService(env.catalog, cache.NewMemoryCache(time.Minute), time.Minute)
	env.editor = NewVariantEditorService(
		repository.NewDraftRepository(testDB), env.stager, env.vocab, env.catalog, model.DefaultImageLimits)
	env.resolver = NewDetailResolverService(env.catalog, env.vocab).(*detailResolverService)
	env.imports = NewImportService(
		repository.NewImportBatchRepository(testDB), env.stager, env.catalog, env.events, 1<<20)
	return env
}

// storedFiles counts the objects currently held by local storage.
func (e *testEnv) storedFiles(t *testing.T) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(e.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			n++
		}
		return nil
	})
	require.NoError(t, err)
	return n
}

func (e *testEnv) ownedUploads(t *testing.T, owner model.UploadOwner, id string) int {
	t.Helper()
	uploads, err := e.uploads.FindByOwner(t.Context(), owner, id)
	require.NoError(t, err)
	return len(uploads)
}

func pngFile(name, body string) UploadFile {
	return BytesFile(name, "image/png", []byte(body))
}

func failingFile(name string) UploadFile {
	return UploadFile{
		Filename:    name,
		ContentType: "image/png",
		Size:        3,
		Open: func() (io.ReadCloser, error) {
			return nil, errors.New("disk gone")
		},
	}
}

func csvFile(body string) UploadFile {
	return BytesFile("rows.csv", "text/csv", []byte(strings.TrimSpace(body)+"\n"))
}
