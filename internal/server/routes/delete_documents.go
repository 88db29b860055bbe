package routes

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/arborlabs/arbor/backend/internal/queue"
	"github.com/arborlabs/arbor/backend/internal/server/middleware"
	"github.com/arborlabs/arbor/backend/pkg/logger"
	"github.com/arborlabs/arbor/backend/pkg/store"
)

// DeleteDocumentHandler queues a document for deletion. The worker owns
// the actual cascade so it can serialize against in-flight ingestion of
// the same owner.
func DeleteDocumentHandler(c echo.Context) error {
	type deleteResponse struct {
		Message string `json:"message"`
	}

	user := c.(*middleware.AppContext).User
	app := c.(*middleware.AppContext).App
	documentID := c.Param("id")

	if _, err := app.Storage.GetDocument(c.Request().Context(), user.OwnerID, documentID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, deleteResponse{
				Message: "Document not found",
			})
		}
		logger.Error("Failed to get document", "document_id", documentID, "err", err)
		return c.JSON(http.StatusInternalServerError, deleteResponse{
			Message: "Internal server error",
		})
	}

	body, err := json.Marshal(queue.DeleteDocumentMsg{
		OwnerID:    user.OwnerID,
		DocumentID: documentID,
	})
	if err != nil {
		logger.Error("Failed to marshal delete message", "document_id", documentID, "err", err)
		return c.JSON(http.StatusInternalServerError, deleteResponse{
			Message: "Internal server error",
		})
	}
	if err := queue.PublishFIFO(app.Queue, queue.DeleteQueue, body); err != nil {
		logger.Error("Failed to queue document deletion", "document_id", documentID, "err", err)
		return c.JSON(http.StatusInternalServerError, deleteResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusAccepted, deleteResponse{
		Message: "Document queued for deletion",
	})
}
