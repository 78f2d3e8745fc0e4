package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

func ddl(t table, dims int) []string {
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    id         TEXT         PRIMARY KEY,
    content    TEXT         NOT NULL,
    embedding  vector(%d)   NOT NULL,
    metadata   JSONB        NOT NULL DEFAULT '{}'::jsonb,
    updated_at TIMESTAMPTZ  NOT NULL DEFAULT now()
)`, t, dims),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding vector_cosine_ops)`,
			t.index("embedding_idx"), t),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING gin (metadata)`,
			t.index("metadata_idx"), t),
	}
}

// migrate creates the chunk table and its indexes. It is idempotent and
// safe to run on every start.
func migrate(ctx context.Context, pool *pgxpool.Pool, t table, dims int) error {
	for _, stmt := range ddl(t, dims) {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", t, err)
		}
	}
	return nil
}
