package pgx

import (
	"context"
	"fmt"
	"strings"

	"github.com/arborlabs/arbor/backend/pkg/common"
	"github.com/arborlabs/arbor/backend/pkg/store"
)

func (s *Store) UpsertEntity(ctx context.Context, params store.UpsertEntityParams) (string, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return "", fmt.Errorf("upsert entity: name is empty")
	}
	id, err := newID()
	if err != nil {
		return "", err
	}

	// Identity is (owner, lower(name)). The description only fills an
	// empty slot and document ids accumulate as a set.
	row := s.conn.QueryRow(ctx, `
		INSERT INTO entities (id, owner_id, name, type, description, document_ids)
		VALUES ($1, $2, $3, $4, nullif($5, ''), $6)
		ON CONFLICT (owner_id, lower(name)) DO UPDATE SET
			description = coalesce(entities.description, excluded.description),
			document_ids = (
				SELECT array_agg(DISTINCT d)
				FROM unnest(entities.document_ids || excluded.document_ids) d
			)
		RETURNING id`,
		id, params.OwnerID, name, params.Type, params.Description,
		store.DedupeStrings(params.DocumentIDs),
	)
	var entityID string
	if err := row.Scan(&entityID); err != nil {
		return "", fmt.Errorf("upsert entity: %w", err)
	}
	return entityID, nil
}

func (s *Store) UpsertRelationship(ctx context.Context, params store.UpsertRelationshipParams) error {
	id, err := newID()
	if err != nil {
		return err
	}

	_, err = s.conn.Exec(ctx, `
		INSERT INTO relationships (id, owner_id, source_id, target_id, type, description, weight, document_ids)
		VALUES ($1, $2, $3, $4, $5, nullif($6, ''), 1, $7)
		ON CONFLICT (owner_id, source_id, target_id, type) DO UPDATE SET
			weight = relationships.weight + 1,
			description = coalesce(relationships.description, excluded.description),
			document_ids = (
				SELECT array_agg(DISTINCT d)
				FROM unnest(relationships.document_ids || excluded.document_ids) d
			)`,
		id, params.OwnerID, params.SourceID, params.TargetID, params.Type,
		params.Description, store.DedupeStrings(params.DocumentIDs),
	)
	if err != nil {
		return fmt.Errorf("upsert relationship: %w", err)
	}
	return nil
}

func (s *Store) LinkChunkEntities(ctx context.Context, links []common.ChunkEntityLink) error {
	if len(links) == 0 {
		return nil
	}

	chunkIDs := make([]string, len(links))
	entityIDs := make([]string, len(links))
	for i, link := range links {
		chunkIDs[i] = link.ChunkID
		entityIDs[i] = link.EntityID
	}

	_, err := s.conn.Exec(ctx, `
		INSERT INTO chunk_entities (chunk_id, entity_id)
		SELECT * FROM unnest($1::text[], $2::text[])
		ON CONFLICT DO NOTHING`,
		chunkIDs, entityIDs,
	)
	if err != nil {
		return fmt.Errorf("link chunk entities: %w", err)
	}
	return nil
}

func (s *Store) ListEntities(ctx context.Context, ownerID string) ([]common.Entity, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, owner_id, name, type, coalesce(description, ''), document_ids
		FROM entities
		WHERE owner_id = $1
		ORDER BY name`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	out := make([]common.Entity, 0)
	for rows.Next() {
		var entity common.Entity
		err := rows.Scan(
			&entity.ID, &entity.OwnerID, &entity.Name, &entity.Type,
			&entity.Description, &entity.DocumentIDs,
		)
		if err != nil {
			return nil, fmt.Errorf("list entities: %w", err)
		}
		out = append(out, entity)
	}
	return out, rows.Err()
}

func (s *Store) ListRelationships(ctx context.Context, ownerID string) ([]common.Relationship, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, owner_id, source_id, target_id, type, coalesce(description, ''), weight, document_ids
		FROM relationships
		WHERE owner_id = $1
		ORDER BY id`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list relationships: %w", err)
	}
	defer rows.Close()

	out := make([]common.Relationship, 0)
	for rows.Next() {
		var rel common.Relationship
		err := rows.Scan(
			&rel.ID, &rel.OwnerID, &rel.SourceID, &rel.TargetID, &rel.Type,
			&rel.Description, &rel.Weight, &rel.DocumentIDs,
		)
		if err != nil {
			return nil, fmt.Errorf("list relationships: %w", err)
		}
		out = append(out, rel)
	}
	return out, rows.Err()
}

func (s *Store) ListEntityOwners(ctx context.Context) ([]string, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT DISTINCT owner_id FROM entities ORDER BY owner_id`)
	if err != nil {
		return nil, fmt.Errorf("list entity owners: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, fmt.Errorf("list entity owners: %w", err)
		}
		out = append(out, owner)
	}
	return out, rows.Err()
}

func (s *Store) GetEntitiesForChunks(ctx context.Context, ownerID string, chunkIDs []string) ([]common.Entity, error) {
	if len(chunkIDs) == 0 {
		return nil, nil
	}

	rows, err := s.conn.Query(ctx, `
		SELECT e.id, e.owner_id, e.name, e.type, coalesce(e.description, ''), e.document_ids
		FROM entities e
		JOIN chunk_entities ce ON ce.entity_id = e.id
		WHERE e.owner_id = $1 AND ce.chunk_id = ANY($2)
		GROUP BY e.id, e.owner_id, e.name, e.type, e.description, e.document_ids
		ORDER BY count(*) DESC, e.name`,
		ownerID, chunkIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("entities for chunks: %w", err)
	}
	defer rows.Close()

	out := make([]common.Entity, 0)
	for rows.Next() {
		var entity common.Entity
		err := rows.Scan(
			&entity.ID, &entity.OwnerID, &entity.Name, &entity.Type,
			&entity.Description, &entity.DocumentIDs,
		)
		if err != nil {
			return nil, fmt.Errorf("entities for chunks: %w", err)
		}
		out = append(out, entity)
	}
	return out, rows.Err()
}

func (s *Store) GetEntityNeighborChunks(
	ctx context.Context,
	ownerID string,
	entityIDs []string,
	limit int,
) ([]string, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.conn.Query(ctx, `
		SELECT ce.chunk_id
		FROM chunk_entities ce
		JOIN chunks c ON c.id = ce.chunk_id
		JOIN documents d ON d.id = c.document_id
		WHERE d.owner_id = $1 AND ce.entity_id = ANY($2)
		GROUP BY ce.chunk_id, c.chunk_index
		ORDER BY count(DISTINCT ce.entity_id) DESC, c.chunk_index, ce.chunk_id
		LIMIT $3`,
		ownerID, entityIDs, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("entity neighbor chunks: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("entity neighbor chunks: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
