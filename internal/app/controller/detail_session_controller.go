package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ikkim/catalog-admin/internal/app/service"
	apperrors "github.com/ikkim/catalog-admin/internal/errors"
	"github.com/ikkim/catalog-admin/internal/middleware"
)

type DetailSessionController struct {
	resolverService service.DetailResolverService
}

func NewDetailSessionController(resolverService service.DetailResolverService) *DetailSessionController {
	return &DetailSessionController{resolverService: resolverService}
}

type OpenSessionRequest struct {
	DetailID uint   `json:"detailId" binding:"required"`
	Color    string `json:"color" binding:"required"`
	Size     string `json:"size" binding:"required"`
}

type ChangeColorRequest struct {
	Color string `json:"color" binding:"required"`
}

type ChangeSizeRequest struct {
	Size string `json:"size" binding:"required"`
}

type SelectImageRequest struct {
	Index *int `json:"index" binding:"required"`
}

type SaveDetailRequest struct {
	Price    *float64 `json:"price" binding:"required"`
	Quantity *float64 `json:"quantity" binding:"required"`
}

func respondSession(c *gin.Context, action string, session interface{}, err error) {
	if err != nil {
		middleware.GetLoggerFromContext(c).Warn("Detail session operation failed", map[string]interface{}{
			"action":     action,
			"session_id": c.Param("id"),
			"error":      err.Error(),
		})
		apperrors.ParseAndRespond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}

// OpenSession loads one SKU row for editing
// POST /api/v1/admin/detail-sessions
func (ctrl *DetailSessionController) OpenSession(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	var req OpenSessionRequest
	if !bindJSON(c, &req) {
		return
	}

	session, err := ctrl.resolverService.Open(c.Request.Context(), service.OpenSessionInput{
		DetailID: req.DetailID,
		Color:    req.Color,
		Size:     req.Size,
	}, currentUserID(c))
	if err != nil {
		log.Warn("Failed to open detail session", map[string]interface{}{
			"detail_id": req.DetailID,
			"error":     err.Error(),
		})
		apperrors.ParseAndRespond(c, err)
		return
	}

	log.Info("Detail session opened", map[string]interface{}{
		"session_id": session.ID,
		"detail_id":  session.DetailID,
	})
	c.JSON(http.StatusCreated, gin.H{"session": session})
}

// GET /api/v1/admin/detail-sessions/:id
func (ctrl *DetailSessionController) GetSession(c *gin.Context) {
	session, err := ctrl.resolverService.Get(c.Param("id"))
	respondSession(c, "get", session, err)
}

// PUT /api/v1/admin/detail-sessions/:id/color
func (ctrl *DetailSessionController) ChangeColor(c *gin.Context) {
	var req ChangeColorRequest
	if !bindJSON(c, &req) {
		return
	}
	session, err := ctrl.resolverService.ChangeColor(c.Request.Context(), c.Param("id"), req.Color)
	respondSession(c, "change_color", session, err)
}

// PUT /api/v1/admin/detail-sessions/:id/size
func (ctrl *DetailSessionController) ChangeSize(c *gin.Context) {
	var req ChangeSizeRequest
	if !bindJSON(c, &req) {
		return
	}
	session, err := ctrl.resolverService.ChangeSize(c.Request.Context(), c.Param("id"), req.Size)
	respondSession(c, "change_size", session, err)
}

// PUT /api/v1/admin/detail-sessions/:id/image
func (ctrl *DetailSessionController) SelectImage(c *gin.Context) {
	var req SelectImageRequest
	if !bindJSON(c, &req) {
		return
	}
	session, err := ctrl.resolverService.SelectImage(c.Param("id"), *req.Index)
	respondSession(c, "select_image", session, err)
}

// SaveSession writes price and quantity for the selected color and size
// POST /api/v1/admin/detail-sessions/:id/save
func (ctrl *DetailSessionController) SaveSession(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	var req SaveDetailRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := ctrl.resolverService.Save(c.Request.Context(), c.Param("id"), *req.Price, *req.Quantity)
	if err != nil {
		log.Warn("Detail save failed", map[string]interface{}{
			"session_id": c.Param("id"),
			"error":      err.Error(),
		})
		apperrors.ParseAndRespond(c, err)
		return
	}

	log.Info("Detail saved", map[string]interface{}{
		"session_id": c.Param("id"),
	})
	c.JSON(http.StatusOK, gin.H{"result": result})
}

// DELETE /api/v1/admin/detail-sessions/:id
func (ctrl *DetailSessionController) CloseSession(c *gin.Context) {
	if err := ctrl.resolverService.Close(c.Param("id")); err != nil {
		apperrors.ParseAndRespond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "session closed"})
}
