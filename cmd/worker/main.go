package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/arborlabs/arbor/backend/internal/queue"
	"github.com/arborlabs/arbor/backend/internal/storage"
	"github.com/arborlabs/arbor/backend/internal/util"
	"github.com/arborlabs/arbor/backend/pkg/ai"
	oai "github.com/arborlabs/arbor/backend/pkg/ai/ollama"
	gai "github.com/arborlabs/arbor/backend/pkg/ai/openai"
	"github.com/arborlabs/arbor/backend/pkg/chunk"
	"github.com/arborlabs/arbor/backend/pkg/graph"
	"github.com/arborlabs/arbor/backend/pkg/ingest"
	"github.com/arborlabs/arbor/backend/pkg/logger"
	"github.com/arborlabs/arbor/backend/pkg/logger/console"
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
			logger.Fatal("Could not create Ollama client", "err", err)
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

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	s3Client, err := storage.NewS3Client(ctx)
	if err != nil {
		logger.Fatal("Failed to create S3 client", "err", err)
	}
	files, err := storage.NewS3FileStore(s3Client, util.GetEnv("S3_BUCKET"))
	if err != nil {
		logger.Fatal("Failed to create S3 file store", "err", err)
	}

	aiClient := newAIClient()

	st, pool, err := pgxstore.NewStore(ctx, util.GetEnv("DATABASE_URL"))
	if err != nil {
		logger.Fatal("Unable to connect to database", "err", err)
	}
	defer pool.Close()

	chunker, err := chunk.NewChunker(chunk.NewChunkerParams{
		MaxTokens:     util.GetEnvInt("CHUNK_MAX_TOKENS", 500),
		OverlapTokens: util.GetEnvInt("CHUNK_OVERLAP_TOKENS", 50),
	})
	if err != nil {
		logger.Fatal("Failed to create chunker", "err", err)
	}

	extractor, err := graph.NewExtractor(graph.NewExtractorParams{
		Storage:  st,
		AIClient: aiClient,
	})
	if err != nil {
		logger.Fatal("Failed to create graph extractor", "err", err)
	}
	communities, err := graph.NewCommunityBuilder(graph.NewCommunityBuilderParams{
		Storage:  st,
		AIClient: aiClient,
	})
	if err != nil {
		logger.Fatal("Failed to create community builder", "err", err)
	}
	enricher, err := ingest.NewEnricher(st, aiClient, util.GetEnvInt("ENRICH_PARALLELISM", 4))
	if err != nil {
		logger.Fatal("Failed to create enricher", "err", err)
	}

	pipeline, err := ingest.NewPipeline(ingest.NewPipelineParams{
		Storage:     st,
		Files:       files,
		AIClient:    aiClient,
		Chunker:     chunker,
		Extractor:   extractor,
		Communities: communities,
		Enricher:    enricher,
	})
	if err != nil {
		logger.Fatal("Failed to create ingestion pipeline", "err", err)
	}

	handlers, err := queue.NewHandlers(pipeline, communities, pool)
	if err != nil {
		logger.Fatal("Failed to create queue handlers", "err", err)
	}

	conn := queue.Init()
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch, queue.Queues); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	logger.Info("Listening for messages")

	// A single consumer channel with prefetch=1 so only one message is
	// in flight at a time across all queues.
	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	err = consumerCh.Qos(1, 0, true)
	if err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	type queuedMessage struct {
		msg       amqp.Delivery
		queueName string
	}

	messageChan := make(chan queuedMessage)

	for _, queueName := range queue.Queues {
		go func(qName string) {
			consumerTag := fmt.Sprintf("%s_consumer", qName)
			msgs, err := consumerCh.Consume(
				qName,
				consumerTag,
				false, // autoAck
				false, // exclusive
				false, // noLocal
				false, // noWait
				nil,   // args
			)
			if err != nil {
				logger.Fatal("Failed to start consuming", "queue", qName, "err", err)
			}

			for {
				select {
				case <-ctx.Done():
					logger.Info("Stopping consumer", "queue", qName)
					return
				case msg, ok := <-msgs:
					if !ok {
						logger.Info("Message channel closed", "queue", qName)
						return
					}
					messageChan <- queuedMessage{msg: msg, queueName: qName}
				}
			}
		}(queueName)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				logger.Info("Stopping message processor")
				return
			case qm := <-messageChan:
				startTime := time.Now()
				logger.Info("Received message", "queue", qm.queueName)

				processingErr := handlers.Handle(ctx, qm.queueName, qm.msg.Body)

				if processingErr != nil {
					logger.Error("Error processing message", "queue", qm.queueName, "err", processingErr)
					queue.HandleProcessingError(consumerCh, qm.msg, qm.queueName)
				} else {
					if err := qm.msg.Ack(false); err != nil {
						logger.Error("Failed to ack message", "err", err)
					}
					logger.Info("Message processed successfully", "queue", qm.queueName)
				}

				metrics := aiClient.GetMetrics()
				aiDuration := time.Duration(metrics.DurationMs) * time.Millisecond
				aiHours := int(aiDuration.Hours())
				aiMinutes := int(aiDuration.Minutes()) % 60
				aiSeconds := int(aiDuration.Seconds()) % 60
				logger.Info(
					"AI Metrics",
					"input_tokens", metrics.InputTokens,
					"output_tokens", metrics.OutputTokens,
					"total_tokens", metrics.TotalTokens,
					"duration", fmt.Sprintf("%02d:%02d:%02d", aiHours, aiMinutes, aiSeconds),
				)

				processingDuration := time.Since(startTime)
				hours := int(processingDuration.Hours())
				minutes := int(processingDuration.Minutes()) % 60
				seconds := int(processingDuration.Seconds()) % 60
				logger.Info(
					"Processing time",
					"duration", fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds),
				)
				logger.Info("Waiting for next message")
				aiClient.ResetMetrics()
			}
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received, exiting...")
}
