package routes

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/arborlabs/arbor/backend/internal/server/middleware"
	"github.com/arborlabs/arbor/backend/pkg/common"
	"github.com/arborlabs/arbor/backend/pkg/logger"
	"github.com/arborlabs/arbor/backend/pkg/store"
)

func GetDocumentsHandler(c echo.Context) error {
	type listResponse struct {
		Message   string            `json:"message"`
		Documents []common.Document `json:"documents"`
	}

	user := c.(*middleware.AppContext).User
	app := c.(*middleware.AppContext).App

	documents, err := app.Storage.ListDocuments(c.Request().Context(), user.OwnerID)
	if err != nil {
		logger.Error("Failed to list documents", "owner_id", user.OwnerID, "err", err)
		return c.JSON(http.StatusInternalServerError, listResponse{
			Message: "Internal server error",
		})
	}
	if documents == nil {
		documents = []common.Document{}
	}

	return c.JSON(http.StatusOK, listResponse{
		Message:   "OK",
		Documents: documents,
	})
}

func GetDocumentHandler(c echo.Context) error {
	type documentResponse struct {
		Message  string           `json:"message"`
		Document *common.Document `json:"document,omitempty"`
	}

	user := c.(*middleware.AppContext).User
	app := c.(*middleware.AppContext).App

	document, err := app.Storage.GetDocument(c.Request().Context(), user.OwnerID, c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, documentResponse{
				Message: "Document not found",
			})
		}
		logger.Error("Failed to get document", "document_id", c.Param("id"), "err", err)
		return c.JSON(http.StatusInternalServerError, documentResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, documentResponse{
		Message:  "OK",
		Document: document,
	})
}
