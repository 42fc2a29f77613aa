package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ikkim/catalog-admin/internal/app/service"
	apperrors "github.com/ikkim/catalog-admin/internal/errors"
	"github.com/ikkim/catalog-admin/internal/middleware"
)

type VocabularyController struct {
	vocabularyService service.VocabularyService
}

func NewVocabularyController(vocabularyService service.VocabularyService) *VocabularyController {
	return &VocabularyController{vocabularyService: vocabularyService}
}

// GetVocabulary returns the cached colors, sizes and category tree
// GET /api/v1/admin/vocabulary
func (ctrl *VocabularyController) GetVocabulary(c *gin.Context) {
	vocab, err := ctrl.vocabularyService.Get(c.Request.Context())
	if err != nil {
		middleware.GetLoggerFromContext(c).Error("Failed to load vocabulary", err, nil)
		apperrors.ParseAndRespond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"vocabulary": vocab})
}

// RefreshVocabulary drops the cache and reloads from the catalog
// POST /api/v1/admin/vocabulary/refresh
func (ctrl *VocabularyController) RefreshVocabulary(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	vocab, err := ctrl.vocabularyService.Refresh(c.Request.Context())
	if err != nil {
		log.Error("Failed to refresh vocabulary", err, nil)
		apperrors.ParseAndRespond(c, err)
		return
	}

	log.Info("Vocabulary refreshed", map[string]interface{}{
		"colors":     len(vocab.Colors),
		"sizes":      len(vocab.Sizes),
		"categories": len(vocab.Categories),
	})
	c.JSON(http.StatusOK, gin.H{"vocabulary": vocab})
}
