package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/ikkim/catalog-admin/internal/app/model"
	"github.com/ikkim/catalog-admin/internal/app/service"
	"github.com/ikkim/catalog-admin/internal/middleware"
	"github.com/stretchr/testify/require"
)

const testAdminID uint = 7

// Unset hooks fall through to the nil embedded interface and panic, which
// fails the test that reached an unexpected call.

type fakeVocabulary struct {
	service.VocabularyService
	get     func() (*model.Vocabulary, error)
	refresh func() (*model.Vocabulary, error)
}

func (f *fakeVocabulary) Get(context.Context) (*model.Vocabulary, error)     { return f.get() }
func (f *fakeVocabulary) Refresh(context.Context) (*model.Vocabulary, error) { return f.refresh() }

type fakeEditor struct {
	service.VariantEditorService
	createDraft  func(input service.DraftInput, userID uint) (*model.ProductDraft, error)
	getDraft     func(id string) (*model.ProductDraft, error)
	removeColor  func(id string, colorID uint) (*model.ProductDraft, error)
	toggleSize   func(id string, colorID, sizeID uint) (*model.ProductDraft, bool, error)
	setField     func(id string, colorID, sizeID uint, field string, value float64) (*model.ProductDraft, error)
	addImages    func(id string, colorID uint, files []service.UploadFile) (*model.ProductDraft, error)
	setThumbnail func(id string, file service.UploadFile) (*model.ProductDraft, error)
	validate     func(id string) error
	submit       func(id string) (*service.SubmitResult, error)
}

func (f *fakeEditor) CreateDraft(_ context.Context, input service.DraftInput, userID uint) (*model.ProductDraft, error) {
	return f.createDraft(input, userID)
}
func (f *fakeEditor) GetDraft(_ context.Context, id string) (*model.ProductDraft, error) {
	return f.getDraft(id)
}
func (f *fakeEditor) RemoveColor(_ context.Context, id string, colorID uint) (*model.ProductDraft, error) {
	return f.removeColor(id, colorID)
}
func (f *fakeEditor) ToggleSize(_ context.Context, id string, colorID, sizeID uint) (*model.ProductDraft, bool, error) {
	return f.toggleSize(id, colorID, sizeID)
}
func (f *fakeEditor) SetSizeVariantField(_ context.Context, id string, colorID, sizeID uint, field string, value float64) (*model.ProductDraft, error) {
	return f.setField(id, colorID, sizeID, field, value)
}
func (f *fakeEditor) AddImages(_ context.Context, id string, colorID uint, files []service.UploadFile) (*model.ProductDraft, error) {
	return f.addImages(id, colorID, files)
}
func (f *fakeEditor) SetThumbnail(_ context.Context, id string, file service.UploadFile) (*model.ProductDraft, error) {
	return f.setThumbnail(id, file)
}
func (f *fakeEditor) Validate(_ context.Context, id string) error { return f.validate(id) }
func (f *fakeEditor) Submit(_ context.Context, id string) (*service.SubmitResult, error) {
	return f.submit(id)
}

type fakeResolver struct {
	service.DetailResolverService
	open        func(input service.OpenSessionInput, userID uint) (*model.DetailSession, error)
	changeColor func(id, color string) (*model.DetailSession, error)
	selectImage func(id string, index int) (*model.DetailSession, error)
	save        func(id string, price, quantity float64) (*model.SaveResult, error)
	close       func(id string) error
}

func (f *fakeResolver) Open(_ context.Context, input service.OpenSessionInput, userID uint) (*model.DetailSession, error) {
	return f.open(input, userID)
}
func (f *fakeResolver) ChangeColor(_ context.Context, id, color string) (*model.DetailSession, error) {
	return f.changeColor(id, color)
}
func (f *fakeResolver) SelectImage(id string, index int) (*model.DetailSession, error) {
	return f.selectImage(id, index)
}
func (f *fakeResolver) Save(_ context.Context, id string, price, quantity float64) (*model.SaveResult, error) {
	return f.save(id, price, quantity)
}
func (f *fakeResolver) Close(id string) error { return f.close(id) }

type fakeImports struct {
	service.ImportService
	getBatch   func(id string) (*model.ImportBatch, error)
	attachFile func(id string, file service.UploadFile) (*model.ImportBatch, error)
	attachZip  func(id string, file service.UploadFile) (*model.ImportBatch, error)
	editRow    func(id string, index int, edit model.RowEdit) (*model.ImportBatch, error)
	save       func(id string) (*model.ImportBatch, error)
}

func (f *fakeImports) GetBatch(_ context.Context, id string) (*model.ImportBatch, error) {
	return f.getBatch(id)
}
func (f *fakeImports) AttachFile(_ context.Context, id string, file service.UploadFile) (*model.ImportBatch, error) {
	return f.attachFile(id, file)
}
func (f *fakeImports) AttachZip(_ context.Context, id string, file service.UploadFile) (*model.ImportBatch, error) {
	return f.attachZip(id, file)
}
func (f *fakeImports) EditRow(_ context.Context, id string, index int, edit model.RowEdit) (*model.ImportBatch, error) {
	return f.editRow(id, index, edit)
}
func (f *fakeImports) Save(_ context.Context, id string) (*model.ImportBatch, error) {
	return f.save(id)
}

// setupControllerTest returns an engine that acts as an authenticated admin.
func setupControllerTest() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.LoggingMiddleware())
	router.Use(func(c *gin.Context) {
		c.Set(middleware.UserIDKey, testAdminID)
		c.Set(middleware.UserRoleKey, "admin")
		c.Next()
	})
	return router
}

func doJSON(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

type formPart struct {
	field, filename, contentType, content string
}

func doMultipart(t *testing.T, router *gin.Engine, method, path string, parts ...formPart) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		h := make(map[string][]string)
		h["Content-Disposition"] = []string{`form-data; name="` + p.field + `"; filename="` + p.filename + `"`}
		h["Content-Type"] = []string{p.contentType}
		pw, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = pw.Write([]byte(p.content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}
