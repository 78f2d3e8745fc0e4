package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/MrWong99/natuvoice/internal/knowledge"
)

// Upsert implements [knowledge.Indexer].
func (s *Store) Upsert(ctx context.Context, chunk knowledge.Chunk) error {
	if chunk.ID == "" {
		return fmt.Errorf("knowledge store: upsert: chunk id is required")
	}
	meta, err := json.Marshal(chunk.ToMetadata())
	if err != nil {
		return fmt.Errorf("knowledge store: upsert: encode metadata: %w", err)
	}

	q := fmt.Sprintf(`
		INSERT INTO %s (id, content, embedding, metadata, updated_at)
		VALUES ($1, $2, $3, $4::jsonb, now())
		ON CONFLICT (id) DO UPDATE SET
		    content    = EXCLUDED.content,
		    embedding  = EXCLUDED.embedding,
		    metadata   = EXCLUDED.metadata,
		    updated_at = EXCLUDED.updated_at`, s.table)

	if _, err := s.pool.Exec(ctx, q, chunk.ID, chunk.Text, pgvector.NewVector(chunk.Embedding), string(meta)); err != nil {
		return fmt.Errorf("knowledge store: upsert %q: %w", chunk.ID, err)
	}
	return nil
}

// Search implements [knowledge.Retriever]. Results are ordered by ascending
// cosine distance; Score is 1 - distance.
func (s *Store) Search(ctx context.Context, embedding []float32, topK int, filter knowledge.Filter) ([]knowledge.Result, error) {
	if topK <= 0 {
		return []knowledge.Result{}, nil
	}
	q, args := buildSearch(s.table, embedding, topK, filter)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("knowledge store: search: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (knowledge.Result, error) {
		var (
			r        knowledge.Result
			meta     map[string]any
			distance float64
		)
		if err := row.Scan(&r.Chunk.ID, &r.Chunk.Text, &meta, &distance); err != nil {
			return knowledge.Result{}, err
		}
		r.Chunk.FromMetadata(meta)
		r.Score = 1 - distance
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("knowledge store: scan rows: %w", err)
	}
	if results == nil {
		results = []knowledge.Result{}
	}
	return results, nil
}

// buildSearch renders the similarity query. Filter keys and values are
// always bound as parameters.
func buildSearch(t table, embedding []float32, topK int, filter knowledge.Filter) (string, []any) {
	args := []any{pgvector.NewVector(embedding)} // $1 = query vector
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var conditions []string
	for _, k := range filter.Keys() {
		conditions = append(conditions, fmt.Sprintf("metadata->>%s = %s", next(k), next(filter[k])))
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, "\n  AND ")
	}
	limitArg := next(topK)

	q := fmt.Sprintf(`
		SELECT id, content, metadata, embedding <=> $1 AS distance
		FROM   %s
		%s
		ORDER  BY distance
		LIMIT  %s`, t, whereClause, limitArg)
	return q, args
}
