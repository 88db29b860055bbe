package routes

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/arborlabs/arbor/backend/internal/queue"
	"github.com/arborlabs/arbor/backend/internal/server/middleware"
	"github.com/arborlabs/arbor/backend/pkg/graph"
	"github.com/arborlabs/arbor/backend/pkg/logger"
)

// FindPathHandler answers "how are X and Y connected" over the caller's
// knowledge graph.
func FindPathHandler(c echo.Context) error {
	type pathBody struct {
		Source string `json:"source"`
		Target string `json:"target"`
	}

	type pathResponse struct {
		Message string            `json:"message"`
		Path    *graph.PathResult `json:"path,omitempty"`
		Text    string            `json:"text,omitempty"`
	}

	body := new(pathBody)
	if err := c.Bind(body); err != nil {
		return c.JSON(http.StatusBadRequest, pathResponse{
			Message: "Invalid request body",
		})
	}
	if strings.TrimSpace(body.Source) == "" || strings.TrimSpace(body.Target) == "" {
		return c.JSON(http.StatusBadRequest, pathResponse{
			Message: "Source and target are required",
		})
	}

	user := c.(*middleware.AppContext).User
	app := c.(*middleware.AppContext).App

	result, err := app.PathFinder.FindPath(c.Request().Context(), user.OwnerID, body.Source, body.Target)
	if err != nil {
		logger.Error("Path query failed", "owner_id", user.OwnerID, "err", err)
		return c.JSON(http.StatusInternalServerError, pathResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, pathResponse{
		Message: "OK",
		Path:    &result,
		Text:    result.Text(),
	})
}

// RebuildGraphHandler queues a community rebuild for the caller.
func RebuildGraphHandler(c echo.Context) error {
	type rebuildResponse struct {
		Message string `json:"message"`
	}

	user := c.(*middleware.AppContext).User
	app := c.(*middleware.AppContext).App

	body, err := json.Marshal(queue.RebuildMsg{OwnerID: user.OwnerID})
	if err != nil {
		logger.Error("Failed to marshal rebuild message", "owner_id", user.OwnerID, "err", err)
		return c.JSON(http.StatusInternalServerError, rebuildResponse{
			Message: "Internal server error",
		})
	}
	if err := queue.PublishFIFO(app.Queue, queue.RebuildQueue, body); err != nil {
		logger.Error("Failed to queue rebuild", "owner_id", user.OwnerID, "err", err)
		return c.JSON(http.StatusInternalServerError, rebuildResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusAccepted, rebuildResponse{
		Message: "Community rebuild queued",
	})
}
