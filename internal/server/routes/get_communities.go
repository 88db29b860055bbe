package routes

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/arborlabs/arbor/backend/internal/server/middleware"
	"github.com/arborlabs/arbor/backend/pkg/common"
	"github.com/arborlabs/arbor/backend/pkg/logger"
)

func GetCommunitiesHandler(c echo.Context) error {
	type communitiesResponse struct {
		Message     string             `json:"message"`
		Communities []common.Community `json:"communities"`
	}

	user := c.(*middleware.AppContext).User
	app := c.(*middleware.AppContext).App

	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	communities, err := app.Storage.TopCommunities(c.Request().Context(), user.OwnerID, limit)
	if err != nil {
		logger.Error("Failed to list communities", "owner_id", user.OwnerID, "err", err)
		return c.JSON(http.StatusInternalServerError, communitiesResponse{
			Message: "Internal server error",
		})
	}
	if communities == nil {
		communities = []common.Community{}
	}

	return c.JSON(http.StatusOK, communitiesResponse{
		Message:     "OK",
		Communities: communities,
	})
}
