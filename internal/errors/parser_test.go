package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/ikkim/catalog-admin/internal/app/model"
	"github.com/ikkim/catalog-admin/internal/app/service"
	"github.com/ikkim/catalog-admin/pkg/catalogapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestParseError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "Nil", err: nil, status: http.StatusInternalServerError, code: InternalServerError},
		{name: "Draft not found", err: service.ErrDraftNotFound, status: http.StatusNotFound, code: VariantDraftNotFound},
		{name: "Wrapped unknown color", err: fmt.Errorf("%w: %q", service.ErrUnknownColor, "teal"), status: http.StatusUnprocessableEntity, code: VocabUnknownColor},
		{name: "Busy session", err: service.ErrSessionBusy, status: http.StatusConflict, code: SessionBusy},
		{name: "Import with error rows", err: service.ErrImportHasErrors, status: http.StatusConflict, code: ImportHasErrors},
		{name: "Illegal transition", err: model.ErrInvalidImportTransition, status: http.StatusConflict, code: ImportInvalidState},
		{name: "Catalog unreachable", err: fmt.Errorf("failed to save import: %w", catalogapi.ErrNetwork), status: http.StatusBadGateway, code: UpstreamUnavailable},
		{name: "Catalog rejected", err: fmt.Errorf("%w: category not found", catalogapi.ErrRejected), status: http.StatusUnprocessableEntity, code: UpstreamRejected},
		{name: "Record not found", err: gorm.ErrRecordNotFound, status: http.StatusNotFound, code: ResourceNotFound},
		{name: "Unknown", err: fmt.Errorf("boom"), status: http.StatusInternalServerError, code: InternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := ParseError(tt.err)
			assert.Equal(t, tt.status, info.Status)
			assert.Equal(t, tt.code, info.Code)
			assert.NotEmpty(t, info.Message)
		})
	}
}

func TestParseError_KeepsDomainDetail(t *testing.T) {
	info := ParseError(fmt.Errorf("%w: %q", service.ErrUnknownSize, "XXL"))
	assert.Contains(t, info.Message, `"XXL"`)
}

func TestParseAndRespond_ValidationErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	var violations model.ValidationErrors
	violations.Add("title_required", "title", "title is required")
	violations.Add("sizes_required", "productDetails[0].sizes", "Red needs at least one size")

	ParseAndRespond(c, fmt.Errorf("validate draft: %w", violations.Err()))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, ValidationFailed, body.Error)
	assert.Len(t, body.Violations, 2)
	assert.Equal(t, "title is required", body.Fields["title"])
}
