package middleware

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rabbitmq/amqp091-go"

	"github.com/arborlabs/arbor/backend/internal/storage"
	"github.com/arborlabs/arbor/backend/pkg/ai"
	"github.com/arborlabs/arbor/backend/pkg/graph"
	"github.com/arborlabs/arbor/backend/pkg/retrieve"
	"github.com/arborlabs/arbor/backend/pkg/store"
)

// AppUser is the authenticated caller. Owner ids are opaque strings; the
// backend never interprets them beyond scoping data access.
type AppUser struct {
	OwnerID string
}

type App struct {
	DBConn  *pgxpool.Pool
	Storage store.Storage
	Queue   *amqp091.Channel
	Files   *storage.S3FileStore

	AIClient   ai.Client
	Retriever  *retrieve.Retriever
	Expander   *graph.Expander
	PathFinder *graph.PathFinder

	APIKey string
}

type AppContext struct {
	echo.Context
	App  *App
	User *AppUser
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			return next(&AppContext{
				Context: c,
				App:     app,
			})
		}
	}
}
