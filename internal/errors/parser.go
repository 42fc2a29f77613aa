package errors

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/ikkim/catalog-admin/internal/app/model"
	"github.com/ikkim/catalog-admin/internal/app/service"
	"github.com/ikkim/catalog-admin/internal/storage"
	"github.com/ikkim/catalog-admin/pkg/catalogapi"
	"gorm.io/gorm"
)

// ErrorInfo is the response an error maps to
type ErrorInfo struct {
	Status  int
	Code    string // see codes.go
	Message string
}

type mapping struct {
	target  error
	status  int
	code    string
	message string // empty keeps err.Error()
}

// Checked in order; the first errors.Is match wins.
var mappings = []mapping{
	{service.ErrDraftNotFound, http.StatusNotFound, VariantDraftNotFound, "draft not found"},
	{model.ErrColorNotInMatrix, http.StatusBadRequest, VariantColorNotInMatrix, "color is not part of this product"},
	{model.ErrInvalidVariantField, http.StatusBadRequest, VariantInvalidField, "field must be price or quantity"},
	{model.ErrImageIndexOutOfRange, http.StatusBadRequest, VariantImageIndex, "image index out of range"},

	{service.ErrUnknownColor, http.StatusUnprocessableEntity, VocabUnknownColor, ""},
	{service.ErrUnknownSize, http.StatusUnprocessableEntity, VocabUnknownSize, ""},
	{service.ErrUnknownCategory, http.StatusUnprocessableEntity, VocabUnknownCategory, ""},

	{service.ErrSessionNotFound, http.StatusNotFound, SessionNotFound, "detail session not found or closed"},
	{service.ErrSessionBusy, http.StatusConflict, SessionBusy, "a request for this session is still in flight"},
	{service.ErrStaleResponse, http.StatusConflict, SessionStaleResponse, "the session changed while the request was in flight"},
	{service.ErrInvalidPrice, http.StatusBadRequest, ValidationInvalidPrice, "price must be a number greater than 0"},
	{service.ErrInvalidQuantity, http.StatusBadRequest, ValidationInvalidQuantity, "quantity must be a whole number of 0 or more"},

	{service.ErrImportNotFound, http.StatusNotFound, ImportNotFound, "import batch not found"},
	{service.ErrImportHasErrors, http.StatusConflict, ImportHasErrors, "fix or delete the rows with errors before saving"},
	{service.ErrImportEmpty, http.StatusConflict, ImportEmpty, "there are no rows to save"},
	{service.ErrImportFileType, http.StatusBadRequest, UploadInvalidFileType, ""},
	{service.ErrImportFileTooBig, http.StatusRequestEntityTooLarge, UploadFileTooLarge, ""},
	{service.ErrImportFileMissing, http.StatusGone, ImportFileMissing, "the staged import file is gone, attach it again"},
	{model.ErrInvalidImportTransition, http.StatusConflict, ImportInvalidState, "the import batch is not in a state that allows this"},
	{model.ErrRowIndexOutOfRange, http.StatusBadRequest, ImportRowIndex, "row index out of range"},

	{service.ErrUploadNotFound, http.StatusNotFound, UploadNotFound, "staged file not found"},
	{storage.ErrObjectNotFound, http.StatusNotFound, UploadNotFound, "staged file not found"},

	{catalogapi.ErrNetwork, http.StatusBadGateway, UpstreamUnavailable, "the catalog service is unreachable, please try again"},
	{catalogapi.ErrUnauthorized, http.StatusBadGateway, UpstreamUnauthorized, "the catalog service refused our credentials"},
	{catalogapi.ErrNotFound, http.StatusNotFound, UpstreamNotFound, ""},
	{catalogapi.ErrBadRequest, http.StatusUnprocessableEntity, UpstreamRejected, ""},
	{catalogapi.ErrRejected, http.StatusUnprocessableEntity, UpstreamRejected, ""},
	{catalogapi.ErrConflict, http.StatusConflict, UpstreamConflict, ""},
	{catalogapi.ErrDecode, http.StatusBadGateway, UpstreamBadResponse, "the catalog service sent an unreadable response"},
	{catalogapi.ErrUpstream, http.StatusBadGateway, UpstreamError, ""},

	{gorm.ErrRecordNotFound, http.StatusNotFound, ResourceNotFound, "requested data not found"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, InternalTimeout, "the request timed out"},
}

// ParseError maps a service, model, storage or upstream error to a response.
// Upstream messages are passed through so admins see the catalog's wording.
func ParseError(err error) ErrorInfo {
	if err == nil {
		return ErrorInfo{Status: http.StatusInternalServerError, Code: InternalServerError, Message: "internal server error"}
	}

	for _, m := range mappings {
		if !errors.Is(err, m.target) {
			continue
		}
		msg := m.message
		if upstream := catalogapi.UpstreamMessage(err); upstream != "" {
			msg = upstream
		}
		if msg == "" {
			msg = err.Error()
		}
		return ErrorInfo{Status: m.status, Code: m.code, Message: msg}
	}

	errLower := strings.ToLower(err.Error())
	if strings.Contains(errLower, "duplicate key") || strings.Contains(errLower, "unique constraint") ||
		strings.Contains(errLower, "database is locked") {
		return ErrorInfo{Status: http.StatusInternalServerError, Code: InternalDatabaseError, Message: "database error, please try again"}
	}

	return ErrorInfo{
		Status:  http.StatusInternalServerError,
		Code:    InternalServerError,
		Message: "internal server error, please try again later",
	}
}

// ParseAndRespond writes the response err maps to. Validation errors carry
// their per-field violations.
func ParseAndRespond(c *gin.Context, err error) {
	if violations, ok := model.AsValidationErrors(err); ok {
		RespondWithValidationError(c, violations)
		return
	}
	info := ParseError(err)
	RespondWithError(c, info.Status, info.Code, info.Message)
}
