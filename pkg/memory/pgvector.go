package memory

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/echomem/echomem/pkg/embedding"
)

// PgvectorCollection is a DenseCollection backed by Postgres with the
// pgvector extension. It exists for deployments where the index must
// survive restarts and grow beyond a single process.
type PgvectorCollection struct {
	pool     *pgxpool.Pool
	embedder embedding.Embedder
	table    string
}

// NewPgvectorCollection connects to Postgres and ensures the schema.
// The table name must be a trusted identifier from configuration.
func NewPgvectorCollection(ctx context.Context, databaseURL, table string, embedder embedding.Embedder) (*PgvectorCollection, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	c := &PgvectorCollection{
		pool:     pool,
		embedder: embedder,
		table:    table,
	}
	if err := c.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return c, nil
}

func (c *PgvectorCollection) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			embedding vector(%d) NOT NULL
		)`, c.table, c.embedder.Dimension()),
	}
	for _, stmt := range stmts {
		if _, err := c.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure pgvector schema: %w", err)
		}
	}
	return nil
}

// Upsert implements DenseCollection.
func (c *PgvectorCollection) Upsert(ctx context.Context, ids, texts []string) error {
	if len(ids) != len(texts) {
		return fmt.Errorf("memory: ids/texts length mismatch: %d vs %d", len(ids), len(texts))
	}
	if len(ids) == 0 {
		return nil
	}

	vecs, err := c.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed for upsert: %w", err)
	}

	batch := fmt.Sprintf(`INSERT INTO %s (id, content, embedding) VALUES ($1, $2, $3::vector)
		ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content, embedding = EXCLUDED.embedding`, c.table)

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin upsert tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for i, id := range ids {
		if _, err := tx.Exec(ctx, batch, id, texts[i], vectorLiteral(vecs[i])); err != nil {
			return fmt.Errorf("upsert chunk %s: %w", id, err)
		}
	}
	return tx.Commit(ctx)
}

// Query implements DenseCollection. Uses cosine distance (<=>).
func (c *PgvectorCollection) Query(ctx context.Context, text string, n int) ([]DenseMatch, error) {
	if n <= 0 {
		return nil, nil
	}

	vecs, err := c.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	sql := fmt.Sprintf(`SELECT id, embedding <=> $1::vector AS distance
		FROM %s ORDER BY distance, id LIMIT $2`, c.table)

	rows, err := c.pool.Query(ctx, sql, vectorLiteral(vecs[0]), n)
	if err != nil {
		return nil, fmt.Errorf("pgvector query: %w", err)
	}
	defer rows.Close()

	var matches []DenseMatch
	for rows.Next() {
		var m DenseMatch
		if err := rows.Scan(&m.ID, &m.Distance); err != nil {
			return nil, fmt.Errorf("scan pgvector row: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// Vectors implements DenseCollection.
func (c *PgvectorCollection) Vectors(ctx context.Context, ids []string) (map[string][]float32, error) {
	if len(ids) == 0 {
		return map[string][]float32{}, nil
	}

	sql := fmt.Sprintf(`SELECT id, embedding::text FROM %s WHERE id = ANY($1)`, c.table)
	rows, err := c.pool.Query(ctx, sql, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch vectors: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]float32, len(ids))
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan vector row: %w", err)
		}
		vec, err := parseVectorLiteral(raw)
		if err != nil {
			return nil, err
		}
		out[id] = vec
	}
	return out, rows.Err()
}

// Delete implements DenseCollection.
func (c *PgvectorCollection) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	sql := fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, c.table)
	_, err := c.pool.Exec(ctx, sql, ids)
	return err
}

// Count implements DenseCollection.
func (c *PgvectorCollection) Count(ctx context.Context) (int, error) {
	var count int
	err := c.pool.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, c.table)).Scan(&count)
	return count, err
}

// Close implements DenseCollection.
func (c *PgvectorCollection) Close() error {
	c.pool.Close()
	return nil
}

// vectorLiteral renders a vector in pgvector's textual format: [1,2,3].
func vectorLiteral(vec []float32) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}

func parseVectorLiteral(raw string) ([]float32, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "[")
	raw = strings.TrimSuffix(raw, "]")
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	vec := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("parse vector literal: %w", err)
		}
		vec[i] = float32(f)
	}
	return vec, nil
}

var _ DenseCollection = (*PgvectorCollection)(nil)
