package controller

import (
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/ikkim/catalog-admin/internal/app/model"
	"github.com/ikkim/catalog-admin/internal/app/service"
	apperrors "github.com/ikkim/catalog-admin/internal/errors"
	"github.com/ikkim/catalog-admin/pkg/catalogapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDraftController_CreateDraft(t *testing.T) {
	productID := uint(77)
	editor := &fakeEditor{
		createDraft: func(input service.DraftInput, userID uint) (*model.ProductDraft, error) {
			assert.Equal(t, testAdminID, userID)
			assert.Equal(t, "Linen Shirt", input.Title)
			assert.Equal(t, uint(101), input.CategoryID)
			require.NotNil(t, input.ProductID)
			assert.Equal(t, productID, *input.ProductID)
			return &model.ProductDraft{ID: "d-1", Title: input.Title}, nil
		},
	}
	router := setupControllerTest()
	router.POST("/drafts", NewDraftController(editor).CreateDraft)

	w := doJSON(router, http.MethodPost, "/drafts", map[string]interface{}{
		"productId":  productID,
		"title":      "Linen Shirt",
		"categoryId": 101,
	})

	assert.Equal(t, http.StatusCreated, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "d-1", body["draft"].(map[string]interface{})["id"])
}

func TestDraftController_GetDraft_NotFound(t *testing.T) {
	editor := &fakeEditor{
		getDraft: func(id string) (*model.ProductDraft, error) {
			assert.Equal(t, "missing", id)
			return nil, service.ErrDraftNotFound
		},
	}
	router := setupControllerTest()
	router.GET("/drafts/:id", NewDraftController(editor).GetDraft)

	w := doJSON(router, http.MethodGet, "/drafts/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, apperrors.VariantDraftNotFound, decodeBody(t, w)["error"])
}

func TestDraftController_PathParams(t *testing.T) {
	editor := &fakeEditor{
		removeColor: func(id string, colorID uint) (*model.ProductDraft, error) {
			return &model.ProductDraft{ID: id}, nil
		},
		toggleSize: func(id string, colorID, sizeID uint) (*model.ProductDraft, bool, error) {
			assert.Equal(t, uint(3), colorID)
			assert.Equal(t, uint(11), sizeID)
			return &model.ProductDraft{ID: id}, true, nil
		},
	}
	router := setupControllerTest()
	ctrl := NewDraftController(editor)
	router.DELETE("/drafts/:id/colors/:color_id", ctrl.RemoveColor)
	router.POST("/drafts/:id/colors/:color_id/sizes/:size_id/toggle", ctrl.ToggleSize)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{name: "Remove color", method: http.MethodDelete, path: "/drafts/d-1/colors/3", wantStatus: http.StatusOK},
		{name: "Non numeric color", method: http.MethodDelete, path: "/drafts/d-1/colors/red", wantStatus: http.StatusBadRequest},
		{name: "Negative color", method: http.MethodDelete, path: "/drafts/d-1/colors/-1", wantStatus: http.StatusBadRequest},
		{name: "Toggle size", method: http.MethodPost, path: "/drafts/d-1/colors/3/sizes/11/toggle", wantStatus: http.StatusOK},
		{name: "Bad size", method: http.MethodPost, path: "/drafts/d-1/colors/3/sizes/x/toggle", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(router, tt.method, tt.path, nil)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
		})
	}

	w := doJSON(router, http.MethodPost, "/drafts/d-1/colors/3/sizes/11/toggle", nil)
	assert.Equal(t, true, decodeBody(t, w)["enabled"])
}

func TestDraftController_SetSizeVariantField(t *testing.T) {
	var gotField string
	var gotValue float64
	editor := &fakeEditor{
		setField: func(id string, colorID, sizeID uint, field string, value float64) (*model.ProductDraft, error) {
			gotField, gotValue = field, value
			if field != "price" && field != "quantity" {
				return nil, model.ErrInvalidVariantField
			}
			return &model.ProductDraft{ID: id}, nil
		},
	}
	router := setupControllerTest()
	router.PATCH("/drafts/:id/colors/:color_id/sizes/:size_id", NewDraftController(editor).SetSizeVariantField)

	w := doJSON(router, http.MethodPatch, "/drafts/d-1/colors/1/sizes/10", map[string]interface{}{"field": "price", "value": 0})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "price", gotField)
	assert.Equal(t, float64(0), gotValue)

	w = doJSON(router, http.MethodPatch, "/drafts/d-1/colors/1/sizes/10", map[string]interface{}{"field": "weight", "value": 3})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperrors.VariantInvalidField, decodeBody(t, w)["error"])

	w = doJSON(router, http.MethodPatch, "/drafts/d-1/colors/1/sizes/10", map[string]interface{}{"field": "price"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperrors.ValidationInvalidInput, decodeBody(t, w)["error"])
}

func TestDraftController_AddImages(t *testing.T) {
	editor := &fakeEditor{
		addImages: func(id string, colorID uint, files []service.UploadFile) (*model.ProductDraft, error) {
			assert.Equal(t, uint(2), colorID)
			require.Len(t, files, 2)
			assert.Equal(t, "front.png", files[0].Filename)
			assert.Equal(t, "image/png", files[0].ContentType)
			assert.Equal(t, int64(len("front-bytes")), files[0].Size)

			rc, err := files[1].Open()
			require.NoError(t, err)
			defer rc.Close()
			data, err := io.ReadAll(rc)
			require.NoError(t, err)
			assert.Equal(t, "back-bytes", string(data))
			return &model.ProductDraft{ID: id}, nil
		},
	}
	router := setupControllerTest()
	router.POST("/drafts/:id/colors/:color_id/images", NewDraftController(editor).AddImages)

	w := doMultipart(t, router, http.MethodPost, "/drafts/d-1/colors/2/images",
		formPart{field: "images", filename: "front.png", contentType: "image/png", content: "front-bytes"},
		formPart{field: "images", filename: "back.jpg", contentType: "image/jpeg", content: "back-bytes"},
	)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// wrong field name
	w = doMultipart(t, router, http.MethodPost, "/drafts/d-1/colors/2/images",
		formPart{field: "photos", filename: "front.png", contentType: "image/png", content: "x"},
	)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// not multipart at all
	w = doJSON(router, http.MethodPost, "/drafts/d-1/colors/2/images", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDraftController_AddImages_Rejected(t *testing.T) {
	editor := &fakeEditor{
		addImages: func(string, uint, []service.UploadFile) (*model.ProductDraft, error) {
			var errs model.ValidationErrors
			errs.Add("image_type", "images", "only image files are allowed")
			return nil, errs
		},
	}
	router := setupControllerTest()
	router.POST("/drafts/:id/colors/:color_id/images", NewDraftController(editor).AddImages)

	w := doMultipart(t, router, http.MethodPost, "/drafts/d-1/colors/2/images",
		formPart{field: "images", filename: "notes.txt", contentType: "text/plain", content: "x"},
	)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, apperrors.ValidationFailed, decodeBody(t, w)["error"])
}

func TestDraftController_SetThumbnail(t *testing.T) {
	editor := &fakeEditor{
		setThumbnail: func(id string, file service.UploadFile) (*model.ProductDraft, error) {
			assert.Equal(t, "thumb.webp", file.Filename)
			return &model.ProductDraft{ID: id, ThumbnailURL: "/uploads/t.webp"}, nil
		},
	}
	router := setupControllerTest()
	router.PUT("/drafts/:id/thumbnail", NewDraftController(editor).SetThumbnail)

	w := doMultipart(t, router, http.MethodPut, "/drafts/d-1/thumbnail",
		formPart{field: "thumbnail", filename: "thumb.webp", contentType: "image/webp", content: "x"},
	)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doMultipart(t, router, http.MethodPut, "/drafts/d-1/thumbnail")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDraftController_ValidateDraft(t *testing.T) {
	var failing bool
	editor := &fakeEditor{
		validate: func(string) error {
			if !failing {
				return nil
			}
			var errs model.ValidationErrors
			errs.Add("title_required", "title", "title is required")
			errs.Add("images_required", "colors[0].images", "color %s needs at least one image", "Red")
			return errs
		},
	}
	router := setupControllerTest()
	router.GET("/drafts/:id/validate", NewDraftController(editor).ValidateDraft)

	w := doJSON(router, http.MethodGet, "/drafts/d-1/validate", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeBody(t, w)["valid"])

	failing = true
	w = doJSON(router, http.MethodGet, "/drafts/d-1/validate", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := decodeBody(t, w)
	violations := body["violations"].([]interface{})
	require.Len(t, violations, 2)
	assert.Equal(t, "title_required", violations[0].(map[string]interface{})["rule"])
	assert.Equal(t, "color Red needs at least one image", violations[1].(map[string]interface{})["message"])
}

func TestDraftController_SubmitDraft(t *testing.T) {
	tests := []struct {
		name       string
		result     *service.SubmitResult
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "Created", result: &service.SubmitResult{ProductID: 501, Created: true}, wantStatus: http.StatusCreated},
		{name: "Updated", result: &service.SubmitResult{ProductID: 77}, wantStatus: http.StatusOK},
		{name: "Catalog rejected", err: fmt.Errorf("%w: duplicate title", catalogapi.ErrRejected), wantStatus: http.StatusUnprocessableEntity, wantCode: apperrors.UpstreamRejected},
		{name: "Catalog down", err: fmt.Errorf("%w: dial tcp", catalogapi.ErrNetwork), wantStatus: http.StatusBadGateway, wantCode: apperrors.UpstreamUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			editor := &fakeEditor{
				submit: func(string) (*service.SubmitResult, error) { return tt.result, tt.err },
			}
			router := setupControllerTest()
			router.POST("/drafts/:id/submit", NewDraftController(editor).SubmitDraft)

			w := doJSON(router, http.MethodPost, "/drafts/d-1/submit", nil)
			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decodeBody(t, w)["error"])
			}
		})
	}
}
