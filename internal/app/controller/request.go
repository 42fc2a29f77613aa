package controller

import (
	"io"
	"mime/multipart"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/ikkim/catalog-admin/internal/app/service"
	apperrors "github.com/ikkim/catalog-admin/internal/errors"
	"github.com/ikkim/catalog-admin/internal/middleware"
)

// parseIDParam reads a numeric path parameter. It writes the 400 itself.
func parseIDParam(c *gin.Context, name string) (uint, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		middleware.GetLoggerFromContext(c).Warn("Invalid path parameter", map[string]interface{}{
			"param": name,
			"value": raw,
		})
		apperrors.BadRequest(c, apperrors.ValidationInvalidID, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}

func parseIndexParam(c *gin.Context, name string) (int, bool) {
	raw := c.Param(name)
	idx, err := strconv.Atoi(raw)
	if err != nil || idx < 0 {
		apperrors.BadRequest(c, apperrors.ValidationInvalidID, "invalid "+name)
		return 0, false
	}
	return idx, true
}

func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		middleware.GetLoggerFromContext(c).Warn("Invalid request body", map[string]interface{}{
			"path":  c.FullPath(),
			"error": err.Error(),
		})
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, err.Error())
		return false
	}
	return true
}

func currentUserID(c *gin.Context) uint {
	id, _ := middleware.GetUserID(c)
	return id
}

func uploadFile(fh *multipart.FileHeader) service.UploadFile {
	return service.UploadFile{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

// formFiles collects the files of one multipart field. An empty field is a 400.
func formFiles(c *gin.Context, field string) ([]service.UploadFile, bool) {
	form, err := c.MultipartForm()
	if err != nil {
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "multipart form is required")
		return nil, false
	}
	headers := form.File[field]
	if len(headers) == 0 {
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "no files in field "+field)
		return nil, false
	}
	files := make([]service.UploadFile, 0, len(headers))
	for _, fh := range headers {
		files = append(files, uploadFile(fh))
	}
	return files, true
}

func formFile(c *gin.Context, field string) (service.UploadFile, bool) {
	fh, err := c.FormFile(field)
	if err != nil {
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, field+" file is required")
		return service.UploadFile{}, false
	}
	return uploadFile(fh), true
}
