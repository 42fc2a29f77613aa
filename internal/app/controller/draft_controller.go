package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ikkim/catalog-admin/internal/app/service"
	apperrors "github.com/ikkim/catalog-admin/internal/errors"
	"github.com/ikkim/catalog-admin/internal/middleware"
)

type DraftController struct {
	editorService service.VariantEditorService
}

func NewDraftController(editorService service.VariantEditorService) *DraftController {
	return &DraftController{editorService: editorService}
}

type DraftRequest struct {
	ProductID   *uint  `json:"productId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	CategoryID  uint   `json:"categoryId"`
}

func (r DraftRequest) input() service.DraftInput {
	return service.DraftInput{
		ProductID:   r.ProductID,
		Title:       r.Title,
		Description: r.Description,
		CategoryID:  r.CategoryID,
	}
}

type AddColorRequest struct {
	ColorID uint   `json:"colorId"`
	Name    string `json:"name"`
}

type ColorDefaultsRequest struct {
	Price    *float64 `json:"price" binding:"required"`
	Quantity *float64 `json:"quantity" binding:"required"`
}

type VariantFieldRequest struct {
	Field string   `json:"field" binding:"required"`
	Value *float64 `json:"value" binding:"required"`
}

// respondDraft is the common tail of every draft mutation.
func respondDraft(c *gin.Context, action string, draft interface{}, err error) {
	if err != nil {
		middleware.GetLoggerFromContext(c).Warn("Draft operation failed", map[string]interface{}{
			"action":   action,
			"draft_id": c.Param("id"),
			"error":    err.Error(),
		})
		apperrors.ParseAndRespond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"draft": draft})
}

// CreateDraft starts an empty matrix, or one tied to an existing product
// POST /api/v1/admin/drafts
func (ctrl *DraftController) CreateDraft(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	var req DraftRequest
	if !bindJSON(c, &req) {
		return
	}

	draft, err := ctrl.editorService.CreateDraft(c.Request.Context(), req.input(), currentUserID(c))
	if err != nil {
		log.Error("Failed to create draft", err, nil)
		apperrors.ParseAndRespond(c, err)
		return
	}

	log.Info("Draft created", map[string]interface{}{
		"draft_id": draft.ID,
	})
	c.JSON(http.StatusCreated, gin.H{"draft": draft})
}

// ListDrafts returns the caller's open drafts
// GET /api/v1/admin/drafts
func (ctrl *DraftController) ListDrafts(c *gin.Context) {
	drafts, err := ctrl.editorService.ListDrafts(c.Request.Context(), currentUserID(c))
	if err != nil {
		apperrors.ParseAndRespond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"drafts": drafts, "count": len(drafts)})
}

// GET /api/v1/admin/drafts/:id
func (ctrl *DraftController) GetDraft(c *gin.Context) {
	draft, err := ctrl.editorService.GetDraft(c.Request.Context(), c.Param("id"))
	respondDraft(c, "get", draft, err)
}

// PUT /api/v1/admin/drafts/:id
func (ctrl *DraftController) UpdateDraft(c *gin.Context) {
	var req DraftRequest
	if !bindJSON(c, &req) {
		return
	}
	draft, err := ctrl.editorService.UpdateDraft(c.Request.Context(), c.Param("id"), req.input())
	respondDraft(c, "update", draft, err)
}

// DiscardDraft drops the draft and its staged images
// DELETE /api/v1/admin/drafts/:id
func (ctrl *DraftController) DiscardDraft(c *gin.Context) {
	if err := ctrl.editorService.Discard(c.Request.Context(), c.Param("id")); err != nil {
		apperrors.ParseAndRespond(c, err)
		return
	}
	middleware.GetLoggerFromContext(c).Info("Draft discarded", map[string]interface{}{
		"draft_id": c.Param("id"),
	})
	c.JSON(http.StatusOK, gin.H{"message": "draft discarded"})
}

// POST /api/v1/admin/drafts/:id/colors
func (ctrl *DraftController) AddColor(c *gin.Context) {
	var req AddColorRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.ColorID == 0 && req.Name == "" {
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "colorId or name is required")
		return
	}
	draft, err := ctrl.editorService.AddColor(c.Request.Context(), c.Param("id"), service.ColorRef{ID: req.ColorID, Name: req.Name})
	respondDraft(c, "add_color", draft, err)
}

// DELETE /api/v1/admin/drafts/:id/colors/:color_id
func (ctrl *DraftController) RemoveColor(c *gin.Context) {
	colorID, ok := parseIDParam(c, "color_id")
	if !ok {
		return
	}
	draft, err := ctrl.editorService.RemoveColor(c.Request.Context(), c.Param("id"), colorID)
	respondDraft(c, "remove_color", draft, err)
}

// SetColorDefaults copies price and quantity onto every size of the color
// PUT /api/v1/admin/drafts/:id/colors/:color_id/defaults
func (ctrl *DraftController) SetColorDefaults(c *gin.Context) {
	colorID, ok := parseIDParam(c, "color_id")
	if !ok {
		return
	}
	var req ColorDefaultsRequest
	if !bindJSON(c, &req) {
		return
	}
	draft, err := ctrl.editorService.SetColorDefaults(c.Request.Context(), c.Param("id"), colorID, *req.Price, *req.Quantity)
	respondDraft(c, "color_defaults", draft, err)
}

// POST /api/v1/admin/drafts/:id/colors/:color_id/sizes/:size_id/toggle
func (ctrl *DraftController) ToggleSize(c *gin.Context) {
	colorID, ok := parseIDParam(c, "color_id")
	if !ok {
		return
	}
	sizeID, ok := parseIDParam(c, "size_id")
	if !ok {
		return
	}

	draft, enabled, err := ctrl.editorService.ToggleSize(c.Request.Context(), c.Param("id"), colorID, sizeID)
	if err != nil {
		apperrors.ParseAndRespond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"draft": draft, "enabled": enabled})
}

// PATCH /api/v1/admin/drafts/:id/colors/:color_id/sizes/:size_id
func (ctrl *DraftController) SetSizeVariantField(c *gin.Context) {
	colorID, ok := parseIDParam(c, "color_id")
	if !ok {
		return
	}
	sizeID, ok := parseIDParam(c, "size_id")
	if !ok {
		return
	}
	var req VariantFieldRequest
	if !bindJSON(c, &req) {
		return
	}
	draft, err := ctrl.editorService.SetSizeVariantField(c.Request.Context(), c.Param("id"), colorID, sizeID, req.Field, *req.Value)
	respondDraft(c, "variant_field", draft, err)
}

// AddImages stages the multipart "images" field for one color
// POST /api/v1/admin/drafts/:id/colors/:color_id/images
func (ctrl *DraftController) AddImages(c *gin.Context) {
	colorID, ok := parseIDParam(c, "color_id")
	if !ok {
		return
	}
	files, ok := formFiles(c, "images")
	if !ok {
		return
	}
	draft, err := ctrl.editorService.AddImages(c.Request.Context(), c.Param("id"), colorID, files)
	respondDraft(c, "add_images", draft, err)
}

// DELETE /api/v1/admin/drafts/:id/colors/:color_id/images/:index
func (ctrl *DraftController) RemoveImage(c *gin.Context) {
	colorID, ok := parseIDParam(c, "color_id")
	if !ok {
		return
	}
	index, ok := parseIndexParam(c, "index")
	if !ok {
		return
	}
	draft, err := ctrl.editorService.RemoveImage(c.Request.Context(), c.Param("id"), colorID, index)
	respondDraft(c, "remove_image", draft, err)
}

// PUT /api/v1/admin/drafts/:id/thumbnail
func (ctrl *DraftController) SetThumbnail(c *gin.Context) {
	file, ok := formFile(c, "thumbnail")
	if !ok {
		return
	}
	draft, err := ctrl.editorService.SetThumbnail(c.Request.Context(), c.Param("id"), file)
	respondDraft(c, "set_thumbnail", draft, err)
}

// DELETE /api/v1/admin/drafts/:id/thumbnail
func (ctrl *DraftController) ClearThumbnail(c *gin.Context) {
	draft, err := ctrl.editorService.ClearThumbnail(c.Request.Context(), c.Param("id"))
	respondDraft(c, "clear_thumbnail", draft, err)
}

// ValidateDraft reports every violated rule at once
// GET /api/v1/admin/drafts/:id/validate
func (ctrl *DraftController) ValidateDraft(c *gin.Context) {
	if err := ctrl.editorService.Validate(c.Request.Context(), c.Param("id")); err != nil {
		apperrors.ParseAndRespond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

// GetSubmission previews the payload Submit would send
// GET /api/v1/admin/drafts/:id/submission
func (ctrl *DraftController) GetSubmission(c *gin.Context) {
	sub, files, err := ctrl.editorService.BuildSubmission(c.Request.Context(), c.Param("id"))
	if err != nil {
		apperrors.ParseAndRespond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"submission": sub, "files": files})
}

// SubmitDraft sends the draft to the catalog as a create or an update
// POST /api/v1/admin/drafts/:id/submit
func (ctrl *DraftController) SubmitDraft(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	id := c.Param("id")

	result, err := ctrl.editorService.Submit(c.Request.Context(), id)
	if err != nil {
		log.Warn("Draft submit failed", map[string]interface{}{
			"draft_id": id,
			"error":    err.Error(),
		})
		apperrors.ParseAndRespond(c, err)
		return
	}

	log.Info("Draft submitted", map[string]interface{}{
		"draft_id":   id,
		"product_id": result.ProductID,
		"created":    result.Created,
	})
	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"result": result})
}
