package server

import (
	"github.com/arborlabs/arbor/backend/internal/server/middleware"
	"github.com/arborlabs/arbor/backend/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Document routes
	apiRoutes.GET("/documents", routes.GetDocumentsHandler)
	apiRoutes.POST("/documents", routes.UploadDocumentsHandler)
	apiRoutes.GET("/documents/:id", routes.GetDocumentHandler)
	apiRoutes.DELETE("/documents/:id", routes.DeleteDocumentHandler)

	// Retrieval routes
	apiRoutes.POST("/search", routes.SearchHandler)

	// Graph routes
	apiRoutes.GET("/graph/communities", routes.GetCommunitiesHandler)
	apiRoutes.POST("/graph/path", routes.FindPathHandler)
	apiRoutes.POST("/graph/rebuild", routes.RebuildGraphHandler)
}
