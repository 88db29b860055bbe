package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/arborlabs/arbor/backend/internal/db"
	"github.com/arborlabs/arbor/backend/internal/queue"
	mid "github.com/arborlabs/arbor/backend/internal/server/middleware"
	"github.com/arborlabs/arbor/backend/internal/storage"
	"github.com/arborlabs/arbor/backend/internal/util"
	"github.com/arborlabs/arbor/backend/pkg/ai"
	oai "github.com/arborlabs/arbor/backend/pkg/ai/ollama"
	gai "github.com/arborlabs/arbor/backend/pkg/ai/openai"
	"github.com/arborlabs/arbor/backend/pkg/graph"
	"github.com/arborlabs/arbor/backend/pkg/logger"
	"github.com/arborlabs/arbor/backend/pkg/retrieve"
	pgxstore "github.com/arborlabs/arbor/backend/pkg/store/pgx"
)

func newAIClient() ai.Client {
	switch util.GetEnv("AI_ADAPTER") {
	case "ollama":
		client, err := oai.NewClient(oai.NewClientParams{
			EmbeddingModel:  util.GetEnv("AI_EMBED_MODEL"),
			CompletionModel: util.GetEnv("AI_CHAT_MODEL"),

			BaseURL: util.GetEnv("AI_CHAT_URL"),
			APIKey:  util.GetEnv("AI_CHAT_KEY"),

			MaxConcurrentRequests: int64(util.GetEnvNumeric("AI_PARALLEL_REQ", 15)),
		})
		if err != nil {
			logger.Fatal("Failed to create Ollama client", "err", err)
		}
		return client
	default:
		return gai.NewClient(gai.NewClientParams{
			EmbeddingModel:  util.GetEnv("AI_EMBED_MODEL"),
			CompletionModel: util.GetEnv("AI_CHAT_MODEL"),

			EmbeddingURL: util.GetEnv("AI_EMBED_URL"),
			EmbeddingKey: util.GetEnv("AI_EMBED_KEY"),
			ChatURL:      util.GetEnv("AI_CHAT_URL"),
			ChatKey:      util.GetEnv("AI_CHAT_KEY"),

			MaxConcurrentEmbeddings: int64(util.GetEnvNumeric("AI_PARALLEL_REQ", 15)),
		})
	}
}

func Init() {
	e := echo.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	databaseURL := util.GetEnv("DATABASE_URL")
	migrations := "file://" + util.GetEnvString("MIGRATIONS_DIR", "internal/db/migrations")
	if err := db.Migrate(migrations, databaseURL); err != nil {
		logger.Fatal("Failed to migrate database", "err", err)
	}

	st, pool, err := pgxstore.NewStore(ctx, databaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", "err", err)
	}
	defer pool.Close()

	que := queue.Init()
	defer que.Close()
	ch, err := que.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	if err := queue.SetupQueues(ch, queue.Queues); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	s3Client, err := storage.NewS3Client(ctx)
	if err != nil {
		logger.Fatal("Failed to create S3 client", "err", err)
	}
	files, err := storage.NewS3FileStore(s3Client, util.GetEnv("S3_BUCKET"))
	if err != nil {
		logger.Fatal("Failed to create S3 file store", "err", err)
	}

	aiClient := newAIClient()

	retriever, err := retrieve.NewRetriever(retrieve.NewRetrieverParams{
		Storage:       st,
		AIClient:      aiClient,
		Candidates:    util.GetEnvInt("SEARCH_CANDIDATES", 20),
		RerankTopN:    util.GetEnvInt("SEARCH_TOP_N", 5),
		FusionQueries: util.GetEnvInt("SEARCH_FUSION_QUERIES", 3),
	})
	if err != nil {
		logger.Fatal("Failed to create retriever", "err", err)
	}
	expander, err := graph.NewExpander(st, util.GetEnvInt("GRAPH_EXPANSION_TOP_K", 3))
	if err != nil {
		logger.Fatal("Failed to create graph expander", "err", err)
	}
	pathFinder, err := graph.NewPathFinder(st, util.GetEnvInt("GRAPH_MAX_HOPS", 4))
	if err != nil {
		logger.Fatal("Failed to create path finder", "err", err)
	}

	e.Use(mid.AppContextMiddleware(&mid.App{
		DBConn:     pool,
		Storage:    st,
		Queue:      ch,
		Files:      files,
		AIClient:   aiClient,
		Retriever:  retriever,
		Expander:   expander,
		PathFinder: pathFinder,
		APIKey:     util.GetEnv("API_KEY"),
	}))
	e.Use(echomw.CORS())
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())
	e.Use(echomw.BodyLimit("1G"))

	RegisterRoutes(e)

	go func() {
		port := util.GetEnvString("PORT", "8080")
		logger.Info("Starting server", "port", port)
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
}
