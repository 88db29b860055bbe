package routes

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/arborlabs/arbor/backend/internal/queue"
	"github.com/arborlabs/arbor/backend/internal/server/middleware"
	"github.com/arborlabs/arbor/backend/pkg/common"
	"github.com/arborlabs/arbor/backend/pkg/extract"
	"github.com/arborlabs/arbor/backend/pkg/logger"
)

// UploadDocumentsHandler accepts multipart uploads, stores the raw bytes,
// creates pending document rows and queues them for ingestion.
func UploadDocumentsHandler(c echo.Context) error {
	type uploadResponse struct {
		Message   string            `json:"message"`
		Documents []common.Document `json:"documents,omitempty"`
	}

	form, err := c.MultipartForm()
	if err != nil {
		return c.JSON(http.StatusBadRequest, uploadResponse{
			Message: "Invalid request body",
		})
	}
	uploads := form.File["files"]
	if len(uploads) == 0 {
		return c.JSON(http.StatusBadRequest, uploadResponse{
			Message: "No files provided",
		})
	}

	user := c.(*middleware.AppContext).User
	app := c.(*middleware.AppContext).App
	ctx := c.Request().Context()

	for _, upload := range uploads {
		fileType := strings.TrimPrefix(strings.ToLower(filepath.Ext(upload.Filename)), ".")
		if !extract.Supported(fileType) {
			return c.JSON(http.StatusBadRequest, uploadResponse{
				Message: fmt.Sprintf("Unsupported file format %q", fileType),
			})
		}
	}

	documents := make([]common.Document, 0, len(uploads))
	for _, upload := range uploads {
		fileType := strings.TrimPrefix(strings.ToLower(filepath.Ext(upload.Filename)), ".")
		doc := common.Document{
			OwnerID:   user.OwnerID,
			Name:      upload.Filename,
			FileType:  fileType,
			SizeBytes: upload.Size,
			Status:    common.DocumentStatusPending,
		}
		if err := app.Storage.CreateDocument(ctx, &doc); err != nil {
			logger.Error("Failed to create document", "name", upload.Filename, "err", err)
			return c.JSON(http.StatusInternalServerError, uploadResponse{
				Message: "Internal server error",
			})
		}

		src, err := upload.Open()
		if err != nil {
			logger.Error("Failed to open upload", "document_id", doc.ID, "err", err)
			return c.JSON(http.StatusInternalServerError, uploadResponse{
				Message: "Internal server error",
			})
		}
		err = app.Files.Upload(ctx, user.OwnerID, doc.ID, fileType, src)
		src.Close()
		if err != nil {
			logger.Error("Failed to store upload", "document_id", doc.ID, "err", err)
			return c.JSON(http.StatusInternalServerError, uploadResponse{
				Message: "Internal server error",
			})
		}

		body, err := json.Marshal(queue.IngestDocumentMsg{
			OwnerID:    user.OwnerID,
			DocumentID: doc.ID,
		})
		if err != nil {
			logger.Error("Failed to marshal ingest message", "document_id", doc.ID, "err", err)
			return c.JSON(http.StatusInternalServerError, uploadResponse{
				Message: "Internal server error",
			})
		}
		if err := queue.PublishFIFO(app.Queue, queue.IngestQueue, body); err != nil {
			logger.Error("Failed to queue document", "document_id", doc.ID, "err", err)
			return c.JSON(http.StatusInternalServerError, uploadResponse{
				Message: "Internal server error",
			})
		}

		documents = append(documents, doc)
	}

	return c.JSON(http.StatusAccepted, uploadResponse{
		Message:   "Documents queued for ingestion",
		Documents: documents,
	})
}
