package router

import (
	"github.com/gin-gonic/gin"
	"github.com/ikkim/catalog-admin/config"
	"github.com/ikkim/catalog-admin/internal/app/controller"
	"github.com/ikkim/catalog-admin/internal/metrics"
	"github.com/ikkim/catalog-admin/internal/middleware"
)

type Router struct {
	vocabularyController    *controller.VocabularyController
	draftController         *controller.DraftController
	detailSessionController *controller.DetailSessionController
	importController        *controller.ImportController
	authMiddleware          *middleware.AuthMiddleware
	config                  *config.Config
}

func NewRouter(
	vocabularyController *controller.VocabularyController,
	draftController *controller.DraftController,
	detailSessionController *controller.DetailSessionController,
	importController *controller.ImportController,
	authMiddleware *middleware.AuthMiddleware,
	cfg *config.Config,
) *Router {
	return &Router{
		vocabularyController:    vocabularyController,
		draftController:         draftController,
		detailSessionController: detailSessionController,
		importController:        importController,
		authMiddleware:          authMiddleware,
		config:                  cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	gin.SetMode(r.config.Server.GinMode)

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.LoggingMiddleware())
	router.Use(metrics.Middleware())
	router.Use(corsMiddleware(r.config.CORS.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"message": "Catalog admin API is running",
		})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Staged files are served by the bucket when S3 is used
	if r.config.Storage.Driver == "" || r.config.Storage.Driver == "local" {
		router.Static("/uploads", r.config.Storage.LocalDir)
	}

	admin := router.Group("/api/v1/admin")
	admin.Use(r.authMiddleware.Authenticate())
	admin.Use(r.authMiddleware.RequireRole(r.config.JWT.AdminRole))
	{
		admin.GET("/vocabulary", r.vocabularyController.GetVocabulary)
		admin.POST("/vocabulary/refresh", r.vocabularyController.RefreshVocabulary)

		drafts := admin.Group("/drafts")
		{
			drafts.GET("", r.draftController.ListDrafts)
			drafts.POST("", r.draftController.CreateDraft)
			drafts.GET("/:id", r.draftController.GetDraft)
			drafts.PUT("/:id", r.draftController.UpdateDraft)
			drafts.DELETE("/:id", r.draftController.DiscardDraft)

			drafts.POST("/:id/colors", r.draftController.AddColor)
			drafts.DELETE("/:id/colors/:color_id", r.draftController.RemoveColor)
			drafts.PUT("/:id/colors/:color_id/defaults", r.draftController.SetColorDefaults)
			drafts.POST("/:id/colors/:color_id/sizes/:size_id/toggle", r.draftController.ToggleSize)
			drafts.PATCH("/:id/colors/:color_id/sizes/:size_id", r.draftController.SetSizeVariantField)
			drafts.POST("/:id/colors/:color_id/images", r.draftController.AddImages)
			drafts.DELETE("/:id/colors/:color_id/images/:index", r.draftController.RemoveImage)

			drafts.PUT("/:id/thumbnail", r.draftController.SetThumbnail)
			drafts.DELETE("/:id/thumbnail", r.draftController.ClearThumbnail)

			drafts.GET("/:id/validate", r.draftController.ValidateDraft)
			drafts.GET("/:id/submission", r.draftController.GetSubmission)
			drafts.POST("/:id/submit", r.draftController.SubmitDraft)
		}

		sessions := admin.Group("/detail-sessions")
		{
			sessions.POST("", r.detailSessionController.OpenSession)
			sessions.GET("/:id", r.detailSessionController.GetSession)
			sessions.PUT("/:id/color", r.detailSessionController.ChangeColor)
			sessions.PUT("/:id/size", r.detailSessionController.ChangeSize)
			sessions.PUT("/:id/image", r.detailSessionController.SelectImage)
			sessions.POST("/:id/save", r.detailSessionController.SaveSession)
			sessions.DELETE("/:id", r.detailSessionController.CloseSession)
		}

		imports := admin.Group("/imports")
		{
			imports.GET("/template", r.importController.Template)
			imports.POST("", r.importController.CreateBatch)
			imports.GET("/:id", r.importController.GetBatch)
			imports.DELETE("/:id", r.importController.Discard)
			imports.POST("/:id/file", r.importController.AttachFile)
			imports.POST("/:id/zips", r.importController.AttachZips)
			imports.POST("/:id/preview", r.importController.Preview)
			imports.PUT("/:id/rows/:index", r.importController.EditRow)
			imports.DELETE("/:id/rows/:index", r.importController.DeleteRow)
			imports.POST("/:id/save", r.importController.Save)
			imports.GET("/:id/events", r.importController.Events)
		}
	}

	return router
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		allowed := false
		for _, allowedOrigin := range allowedOrigins {
			if origin == allowedOrigin || allowedOrigin == "*" {
				allowed = true
				break
			}
		}

		if allowed {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
