package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arborlabs/arbor/backend/pkg/graph"
	"github.com/arborlabs/arbor/backend/pkg/ingest"
	"github.com/arborlabs/arbor/backend/pkg/leaselock"
	"github.com/arborlabs/arbor/backend/pkg/logger"
)

// Handlers processes worker messages. Ingestion and deletion run under a
// per-owner lease so concurrent workers never rebuild the same owner's
// graph at once.
type Handlers struct {
	pipeline    *ingest.Pipeline
	communities *graph.CommunityBuilder
	locks       *leaselock.Client
}

func NewHandlers(pipeline *ingest.Pipeline, communities *graph.CommunityBuilder, pool *pgxpool.Pool) (*Handlers, error) {
	if pipeline == nil {
		return nil, fmt.Errorf("queue handlers: pipeline is nil")
	}
	if communities == nil {
		return nil, fmt.Errorf("queue handlers: community builder is nil")
	}
	return &Handlers{
		pipeline:    pipeline,
		communities: communities,
		locks:       leaselock.New(pool),
	}, nil
}

func (h *Handlers) withOwnerLease(ctx context.Context, ownerID, op string, fn func(ctx context.Context) error) error {
	return h.locks.WithLease(ctx, "owner:"+ownerID, leaselock.Options{
		TTL:         10 * time.Minute,
		RenewEvery:  4 * time.Minute,
		Wait:        true,
		TokenPrefix: op + "/" + ownerID + "/",
	}, fn)
}

func (h *Handlers) HandleIngest(ctx context.Context, body []byte) error {
	var msg IngestDocumentMsg
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("decode ingest message: %w", err)
	}
	if msg.OwnerID == "" || msg.DocumentID == "" {
		return fmt.Errorf("ingest message missing owner or document id")
	}

	return h.withOwnerLease(ctx, msg.OwnerID, "ingest", func(ctx context.Context) error {
		return h.pipeline.IngestDocument(ctx, msg.OwnerID, msg.DocumentID)
	})
}

func (h *Handlers) HandleDelete(ctx context.Context, body []byte) error {
	var msg DeleteDocumentMsg
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("decode delete message: %w", err)
	}
	if msg.OwnerID == "" || msg.DocumentID == "" {
		return fmt.Errorf("delete message missing owner or document id")
	}

	return h.withOwnerLease(ctx, msg.OwnerID, "delete", func(ctx context.Context) error {
		return h.pipeline.DeleteDocument(ctx, msg.OwnerID, msg.DocumentID)
	})
}

func (h *Handlers) HandleRebuild(ctx context.Context, body []byte) error {
	var msg RebuildMsg
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("decode rebuild message: %w", err)
	}

	if msg.OwnerID == "" {
		logger.Info("Rebuilding communities for all owners")
		return h.communities.BuildForAllOwners(ctx)
	}
	return h.withOwnerLease(ctx, msg.OwnerID, "rebuild", func(ctx context.Context) error {
		return h.communities.BuildForOwner(ctx, msg.OwnerID)
	})
}

// Handle dispatches a delivery body by queue name.
func (h *Handlers) Handle(ctx context.Context, queueName string, body []byte) error {
	switch queueName {
	case IngestQueue:
		return h.HandleIngest(ctx, body)
	case DeleteQueue:
		return h.HandleDelete(ctx, body)
	case RebuildQueue:
		return h.HandleRebuild(ctx, body)
	default:
		return fmt.Errorf("unknown queue %s", queueName)
	}
}
