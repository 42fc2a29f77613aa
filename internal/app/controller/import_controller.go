package controller

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/ikkim/catalog-admin/internal/app/model"
	"github.com/ikkim/catalog-admin/internal/app/service"
	apperrors "github.com/ikkim/catalog-admin/internal/errors"
	"github.com/ikkim/catalog-admin/internal/middleware"
	ws "github.com/ikkim/catalog-admin/internal/websocket"
)

type ImportController struct {
	importService service.ImportService
	hub           *ws.Hub
	upgrader      websocket.Upgrader
}

func NewImportController(importService service.ImportService, hub *ws.Hub, allowedOrigins []string) *ImportController {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}

	return &ImportController{
		importService: importService,
		hub:           hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// non-browser clients send no Origin
				return origin == "" || origins["*"] || origins[origin]
			},
		},
	}
}

func respondBatch(c *gin.Context, action string, batch interface{}, err error) {
	if err != nil {
		middleware.GetLoggerFromContext(c).Warn("Import operation failed", map[string]interface{}{
			"action":   action,
			"batch_id": c.Param("id"),
			"error":    err.Error(),
		})
		apperrors.ParseAndRespond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"batch": batch})
}

// CreateBatch starts an empty import
// POST /api/v1/admin/imports
func (ctrl *ImportController) CreateBatch(c *gin.Context) {
	batch, err := ctrl.importService.CreateBatch(c.Request.Context(), currentUserID(c))
	if err != nil {
		middleware.GetLoggerFromContext(c).Error("Failed to create import batch", err, nil)
		apperrors.ParseAndRespond(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"batch": batch})
}

// GET /api/v1/admin/imports/:id
func (ctrl *ImportController) GetBatch(c *gin.Context) {
	batch, err := ctrl.importService.GetBatch(c.Request.Context(), c.Param("id"))
	respondBatch(c, "get", batch, err)
}

// AttachFile stages the CSV or XLSX sheet, replacing any earlier one
// POST /api/v1/admin/imports/:id/file
func (ctrl *ImportController) AttachFile(c *gin.Context) {
	file, ok := formFile(c, "file")
	if !ok {
		return
	}
	batch, err := ctrl.importService.AttachFile(c.Request.Context(), c.Param("id"), file)
	respondBatch(c, "attach_file", batch, err)
}

// AttachZips stages every archive of the multipart "zips" field
// POST /api/v1/admin/imports/:id/zips
func (ctrl *ImportController) AttachZips(c *gin.Context) {
	files, ok := formFiles(c, "zips")
	if !ok {
		return
	}

	var batch *model.ImportBatch
	var err error
	for _, f := range files {
		batch, err = ctrl.importService.AttachZip(c.Request.Context(), c.Param("id"), f)
		if err != nil {
			break
		}
	}
	respondBatch(c, "attach_zips", batch, err)
}

// Preview sends the staged files to the catalog and stores the parsed rows
// POST /api/v1/admin/imports/:id/preview
func (ctrl *ImportController) Preview(c *gin.Context) {
	batch, err := ctrl.importService.Preview(c.Request.Context(), c.Param("id"))
	respondBatch(c, "preview", batch, err)
}

// EditRow validates the row locally, then against the catalog
// PUT /api/v1/admin/imports/:id/rows/:index
func (ctrl *ImportController) EditRow(c *gin.Context) {
	index, ok := parseIndexParam(c, "index")
	if !ok {
		return
	}
	var edit model.RowEdit
	if !bindJSON(c, &edit) {
		return
	}
	batch, err := ctrl.importService.EditRow(c.Request.Context(), c.Param("id"), index, edit)
	respondBatch(c, "edit_row", batch, err)
}

// DELETE /api/v1/admin/imports/:id/rows/:index
func (ctrl *ImportController) DeleteRow(c *gin.Context) {
	index, ok := parseIndexParam(c, "index")
	if !ok {
		return
	}
	batch, err := ctrl.importService.DeleteRow(c.Request.Context(), c.Param("id"), index)
	respondBatch(c, "delete_row", batch, err)
}

// Save commits an error-free batch to the catalog
// POST /api/v1/admin/imports/:id/save
func (ctrl *ImportController) Save(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	batch, err := ctrl.importService.Save(c.Request.Context(), c.Param("id"))
	if err != nil {
		log.Warn("Import save failed", map[string]interface{}{
			"batch_id": c.Param("id"),
			"error":    err.Error(),
		})
		apperrors.ParseAndRespond(c, err)
		return
	}

	log.Info("Import saved", map[string]interface{}{
		"batch_id": batch.ID,
	})
	c.JSON(http.StatusOK, gin.H{"batch": batch})
}

// DELETE /api/v1/admin/imports/:id
func (ctrl *ImportController) Discard(c *gin.Context) {
	if err := ctrl.importService.Discard(c.Request.Context(), c.Param("id")); err != nil {
		apperrors.ParseAndRespond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "import discarded"})
}

// Template serves the XLSX sheet with the expected header row
// GET /api/v1/admin/imports/template
func (ctrl *ImportController) Template(c *gin.Context) {
	var buf bytes.Buffer
	if err := service.WriteImportTemplate(&buf); err != nil {
		middleware.GetLoggerFromContext(c).Error("Failed to build import template", err, nil)
		apperrors.InternalError(c, "failed to build import template")
		return
	}
	c.Header("Content-Disposition", `attachment; filename="product-import-template.xlsx"`)
	c.Data(http.StatusOK, service.XLSXContentType, buf.Bytes())
}

// Events streams state changes of one batch over a websocket. The first
// message is the current snapshot.
// GET /api/v1/admin/imports/:id/events
func (ctrl *ImportController) Events(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	batch, err := ctrl.importService.GetBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		apperrors.ParseAndRespond(c, err)
		return
	}

	conn, err := ctrl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("Failed to upgrade to WebSocket", err, nil)
		return
	}

	client := ws.NewClient(ctrl.hub, &ws.Conn{Conn: conn}, currentUserID(c), batch.ID)
	if snapshot, err := json.Marshal(service.NewImportEvent(batch)); err == nil {
		client.Send <- snapshot
	}
	ctrl.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()

	log.Info("Import event stream opened", map[string]interface{}{
		"batch_id": batch.ID,
	})
}
