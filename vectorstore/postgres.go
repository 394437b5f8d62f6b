package vectorstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PostgresIndex stores vectors in Postgres with the pgvector extension.
// All workspaces share one table; the embedding column is dimensionless and
// the per-workspace dimension is enforced through vector_workspaces.
// Queries run as exact scans so result ordering stays deterministic.
type PostgresIndex struct {
	pool *pgxpool.Pool
}

// NewPostgresIndex connects and ensures the schema exists.
func NewPostgresIndex(ctx context.Context, dsn string, maxConns int) (*PostgresIndex, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse vector store DSN: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect vector store: %w", err)
	}

	idx := &PostgresIndex{pool: pool}
	if err := idx.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return idx, nil
}

// Close releases the underlying connection pool.
func (s *PostgresIndex) Close() {
	s.pool.Close()
}

func (s *PostgresIndex) ensureSchema(ctx context.Context) error {
	const schema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS vector_workspaces (
	workspace_id UUID PRIMARY KEY,
	dimension INT NOT NULL
);

CREATE TABLE IF NOT EXISTS vector_records (
	chunk_id UUID PRIMARY KEY,
	workspace_id UUID NOT NULL,
	document_id UUID NOT NULL,
	chunk_index INT NOT NULL,
	content TEXT NOT NULL,
	embedding vector NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS vector_records_workspace_idx
	ON vector_records (workspace_id);

CREATE INDEX IF NOT EXISTS vector_records_document_idx
	ON vector_records (workspace_id, document_id);
`
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure vector schema: %w", err)
	}
	return nil
}

func (s *PostgresIndex) Upsert(ctx context.Context, workspaceID uuid.UUID, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	dim := len(records[0].Embedding)
	if err := s.checkDimension(ctx, tx, workspaceID, dim); err != nil {
		return err
	}
	for _, r := range records {
		if len(r.Embedding) != dim {
			return fmt.Errorf("%w: expected %d, got %d", ErrSchemaConflict, dim, len(r.Embedding))
		}
	}

	for _, r := range records {
		if _, err := tx.Exec(ctx,
			`INSERT INTO vector_records (chunk_id, workspace_id, document_id, chunk_index, content, embedding)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (chunk_id) DO UPDATE
			 SET content = EXCLUDED.content, embedding = EXCLUDED.embedding`,
			r.ChunkID, workspaceID, r.DocumentID, r.ChunkIndex, r.Text, pgvector.NewVector(r.Embedding),
		); err != nil {
			return fmt.Errorf("insert vector record: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

// checkDimension locks the workspace's dimension row and verifies or
// establishes it. Runs inside the upsert transaction so concurrent upserts
// to one workspace serialize on the row.
func (s *PostgresIndex) checkDimension(ctx context.Context, tx pgx.Tx, workspaceID uuid.UUID, dim int) error {
	var existing int
	err := tx.QueryRow(ctx,
		`SELECT dimension FROM vector_workspaces WHERE workspace_id = $1 FOR UPDATE`,
		workspaceID,
	).Scan(&existing)
	switch {
	case err == pgx.ErrNoRows:
		if _, err := tx.Exec(ctx,
			`INSERT INTO vector_workspaces (workspace_id, dimension) VALUES ($1, $2)`,
			workspaceID, dim,
		); err != nil {
			return fmt.Errorf("register workspace dimension: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("read workspace dimension: %w", err)
	case existing != dim:
		return fmt.Errorf("%w: expected %d, got %d", ErrSchemaConflict, existing, dim)
	}
	return nil
}

func (s *PostgresIndex) Query(ctx context.Context, workspaceID uuid.UUID, embedding []float32, topK int, threshold *float64) ([]Match, error) {
	if topK <= 0 {
		return nil, nil
	}

	query := `
SELECT chunk_id, document_id, chunk_index, content, 1 - (embedding <=> $2) AS score
FROM vector_records
WHERE workspace_id = $1`
	args := []any{workspaceID, pgvector.NewVector(embedding)}
	if threshold != nil {
		query += ` AND 1 - (embedding <=> $2) >= $3`
		args = append(args, *threshold)
	}
	query += `
ORDER BY score DESC, document_id ASC, chunk_index ASC
LIMIT ` + fmt.Sprintf("%d", topK)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ChunkID, &m.DocumentID, &m.ChunkIndex, &m.Text, &m.Score); err != nil {
			return nil, fmt.Errorf("scan vector match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (s *PostgresIndex) DeleteWorkspace(ctx context.Context, workspaceID uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM vector_records WHERE workspace_id = $1`, workspaceID); err != nil {
		return fmt.Errorf("delete workspace vectors: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM vector_workspaces WHERE workspace_id = $1`, workspaceID); err != nil {
		return fmt.Errorf("delete workspace dimension: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresIndex) DeleteDocument(ctx context.Context, workspaceID, documentID uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM vector_records WHERE workspace_id = $1 AND document_id = $2`,
		workspaceID, documentID,
	)
	if err != nil {
		return fmt.Errorf("delete document vectors: %w", err)
	}
	return nil
}
