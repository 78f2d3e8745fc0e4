// Package postgres provides the PostgreSQL + pgvector knowledge base.
//
// Each chunk lives in a single row holding its text, its embedding and a
// JSONB metadata object. Similarity is cosine distance served by an HNSW
// index; metadata filters are plain equality predicates on the JSONB keys.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn, "knowledge_chunks", postgres.WithMigration(1536))
//	if err != nil { … }
//	defer store.Close()
//
//	results, err := store.Search(ctx, queryVec, 4, knowledge.Filter{"section": "uso"})
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/MrWong99/natuvoice/internal/knowledge"
)

// Compile-time interface assertions.
var (
	_ knowledge.Retriever = (*Store)(nil)
	_ knowledge.Indexer   = (*Store)(nil)
)

// Store is the knowledge base backed by a pgxpool connection pool.
// All methods are safe for concurrent use.
type Store struct {
	pool  *pgxpool.Pool
	table table
}

// Option configures [NewStore].
type Option func(*storeOptions)

type storeOptions struct {
	migrateDims int
}

// WithMigration makes NewStore create the table and indexes when they are
// missing. dims must match the embedding model the catalogue was indexed
// with; it is baked into the column type.
func WithMigration(dims int) Option {
	return func(o *storeOptions) { o.migrateDims = dims }
}

// NewStore connects to the database at dsn, registers pgvector types on
// every connection and verifies connectivity. tableName may be schema
// qualified ("catalog.chunks").
func NewStore(ctx context.Context, dsn, tableName string, opts ...Option) (*Store, error) {
	var o storeOptions
	for _, opt := range opts {
		opt(&o)
	}

	tbl, err := parseTable(tableName)
	if err != nil {
		return nil, fmt.Errorf("knowledge store: %w", err)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("knowledge store: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("knowledge store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("knowledge store: ping: %w", err)
	}

	if o.migrateDims > 0 {
		if err := migrate(ctx, pool, tbl, o.migrateDims); err != nil {
			pool.Close()
			return nil, fmt.Errorf("knowledge store: %w", err)
		}
	}

	return &Store{pool: pool, table: tbl}, nil
}

// Ping verifies that a connection can be acquired and used.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all pooled connections.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// table is a possibly schema-qualified table name.
type table struct {
	ident pgx.Identifier
}

func parseTable(name string) (table, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return table{}, errors.New("table name is required")
	}
	parts := strings.Split(name, ".")
	if len(parts) > 2 {
		return table{}, fmt.Errorf("invalid table name %q", name)
	}
	for _, p := range parts {
		if p == "" {
			return table{}, fmt.Errorf("invalid table name %q", name)
		}
	}
	return table{ident: pgx.Identifier(parts)}, nil
}

// String returns the quoted name for use in SQL text.
func (t table) String() string { return t.ident.Sanitize() }

// index returns a quoted index name derived from the table name.
func (t table) index(suffix string) string {
	base := t.ident[len(t.ident)-1]
	return pgx.Identifier{base + "_" + suffix}.Sanitize()
}
