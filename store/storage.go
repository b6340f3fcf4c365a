package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"sambot/types"
)

// ErrSearchUnavailable marks a failure of the match_chunks function path,
// as opposed to a query that ran and found nothing. Both cases trigger the
// direct-query fallback, but only deliberately.
var ErrSearchUnavailable = errors.New("similarity function unavailable")

type DBStorer interface {
	Init(ctx context.Context) error
	UpsertDocuments(ctx context.Context, docs []types.Document) error
	UpsertChunks(ctx context.Context, chunks []types.Chunk) error
	Search(ctx context.Context, queryVec []float32, state string, k int) ([]types.RetrievedRow, error)
	Close() error
}

type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{
		pool:   pool,
		logger: slog.Default(),
	}, nil
}

// DSNFromEnv builds the connection string from the PG_* environment keys.
func DSNFromEnv() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		os.Getenv("PG_HOST"), os.Getenv("PG_PORT"), os.Getenv("PG_USER"),
		os.Getenv("PG_PASS"), os.Getenv("PG_DB_NAME"))
}

func (p *PostgresStore) UpsertDocuments(ctx context.Context, docs []types.Document) error {
	if len(docs) == 0 {
		return nil
	}

	query := `INSERT INTO documents (doc_id, url, title, state, doc_type)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (doc_id) DO UPDATE SET
			title = EXCLUDED.title,
			state = EXCLUDED.state,
			doc_type = EXCLUDED.doc_type
		`
	batch := &pgx.Batch{}
	for _, d := range docs {
		batch.Queue(query, d.DocID, d.URL, d.Title, d.State, string(d.DocType))
	}

	br := p.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range docs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to upsert document: %w", err)
		}
	}
	return nil
}

func (p *PostgresStore) UpsertChunks(ctx context.Context, chunks []types.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	query := `INSERT INTO chunks (doc_id, chunk_id, seq, text, page_num, heading, embedding, embedding_failed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (doc_id, chunk_id) DO UPDATE SET
			seq = EXCLUDED.seq,
			text = EXCLUDED.text,
			page_num = EXCLUDED.page_num,
			heading = EXCLUDED.heading,
			embedding = EXCLUDED.embedding,
			embedding_failed = EXCLUDED.embedding_failed
		`
	batch := &pgx.Batch{}
	for _, c := range chunks {
		batch.Queue(query, c.DocID, c.ChunkID, c.Seq, c.Text, c.PageNum, c.Heading,
			pgvector.NewVector(c.Embedding), c.EmbeddingFailed)
	}

	br := p.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range chunks {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to upsert chunk: %w", err)
		}
	}
	return nil
}

// Search returns up to k rows ordered by ascending cosine distance, scoped
// to one state. The match_chunks function is the primary path; the direct
// join is the fallback when the function is unavailable or came back empty.
func (p *PostgresStore) Search(ctx context.Context, queryVec []float32, state string, k int) ([]types.RetrievedRow, error) {
	rows, err := p.searchMatchFn(ctx, queryVec, state, k)
	if err != nil {
		p.logger.Warn("similarity function failed, using direct query", "error", err)
		return p.searchDirect(ctx, queryVec, state, k)
	}
	if len(rows) == 0 {
		return p.searchDirect(ctx, queryVec, state, k)
	}
	return rows, nil
}

func (p *PostgresStore) searchMatchFn(ctx context.Context, queryVec []float32, state string, k int) ([]types.RetrievedRow, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT url, title, text, page_num FROM match_chunks($1, $2, $3)`,
		pgvector.NewVector(queryVec), state, k)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchUnavailable, err)
	}
	defer rows.Close()
	return scanRetrieved(rows)
}

func (p *PostgresStore) searchDirect(ctx context.Context, queryVec []float32, state string, k int) ([]types.RetrievedRow, error) {
	query := `
		SELECT d.url, d.title, c.text, c.page_num
		FROM chunks c
		JOIN documents d ON d.doc_id = c.doc_id
		WHERE d.state = $2
		  AND NOT c.embedding_failed
		ORDER BY c.embedding <=> $1
		LIMIT $3
	`
	rows, err := p.pool.Query(ctx, query, pgvector.NewVector(queryVec), state, k)
	if err != nil {
		return nil, fmt.Errorf("fallback search failed: %w", err)
	}
	defer rows.Close()
	return scanRetrieved(rows)
}

func scanRetrieved(rows pgx.Rows) ([]types.RetrievedRow, error) {
	var out []types.RetrievedRow
	for rows.Next() {
		var r types.RetrievedRow
		if err := rows.Scan(&r.URL, &r.Title, &r.Text, &r.PageNum); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresStore) createTables(ctx context.Context) error {
	query := `
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS documents (
		doc_id UUID PRIMARY KEY,
		url TEXT NOT NULL,
		title TEXT,
		state TEXT NOT NULL,
		doc_type TEXT CHECK (doc_type IN ('pdf','html'))
	);

	CREATE TABLE IF NOT EXISTS chunks (
		doc_id UUID NOT NULL REFERENCES documents(doc_id),
		chunk_id TEXT NOT NULL,
		seq INT NOT NULL,
		text TEXT NOT NULL,
		page_num INT,
		heading TEXT,
		embedding vector(1536),
		embedding_failed BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (doc_id, chunk_id)
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_embedding ON chunks USING ivfflat (embedding vector_cosine_ops)
	WITH (lists = 100);

	CREATE INDEX IF NOT EXISTS idx_documents_state ON documents(state);
	CREATE INDEX IF NOT EXISTS idx_chunks_doc_id ON chunks(doc_id);

	CREATE OR REPLACE FUNCTION match_chunks(query_embedding vector(1536), match_state text, match_count int)
	RETURNS TABLE (url text, title text, text text, page_num int)
	LANGUAGE sql STABLE AS $$
		SELECT d.url, d.title, c.text, c.page_num
		FROM chunks c
		JOIN documents d ON d.doc_id = c.doc_id
		WHERE d.state = match_state
		  AND NOT c.embedding_failed
		ORDER BY c.embedding <=> query_embedding
		LIMIT match_count;
	$$;
	`
	_, err := p.pool.Exec(ctx, query)
	return err
}

func (p *PostgresStore) Init(ctx context.Context) error {
	return p.createTables(ctx)
}

func (p *PostgresStore) Close() error {
	if p.pool != nil {
		p.pool.Close()
		p.logger.Info("postgres connection pool closed")
	}
	return nil
}
