// Package searchproxy implements the sole holder of vector-index
// credentials: a pgvector-backed chunk store reachable
// only through this package's HTTP surface, which hard-enforces the
// per-tenant ownership filter on every read and validates ownership on
// every write.
package searchproxy

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/regassist/regassist/internal/tools/retrieval"
	"github.com/regassist/regassist/pkg/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrForbidden is returned when a caller attempts to write or delete a
// chunk it does not own.
var ErrForbidden = errors.New("searchproxy: ownership violation")

// ErrNotFound is returned when a requested document has no chunks.
var ErrNotFound = errors.New("searchproxy: document not found")

// Store is the pgvector-backed chunk store, adapted from
// internal/rag/store/pgvector's single-tenant document store into a
// multi-tenant one where every table row carries its own
// owner_fingerprint and every query is filtered by it.
type Store struct {
	db        *sql.DB
	dimension int
	ownsDB    bool
}

// Config configures a Store.
type Config struct {
	// DSN is the PostgreSQL/CockroachDB connection string. If empty, DB
	// must be provided.
	DSN string

	// DB reuses an existing connection; if set, DSN is ignored and Close
	// will not close it.
	DB *sql.DB

	// Dimension is the embedding width every stored chunk must match
	// (models.EmbeddingDimension).
	Dimension int

	// RunMigrations applies pending schema migrations on New.
	RunMigrations bool
}

// New opens (or reuses) a database connection and optionally runs
// migrations.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Dimension == 0 {
		cfg.Dimension = models.EmbeddingDimension
	}

	var db *sql.DB
	var ownsDB bool
	switch {
	case cfg.DB != nil:
		db = cfg.DB
	case cfg.DSN != "":
		var err error
		db, err = sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		ownsDB = true
		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
	default:
		return nil, fmt.Errorf("either DSN or DB must be provided")
	}

	s := &Store{db: db, dimension: cfg.Dimension, ownsDB: ownsDB}

	if cfg.RunMigrations {
		if err := s.runMigrations(ctx); err != nil {
			if ownsDB {
				db.Close()
			}
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	return s, nil
}

func (s *Store) runMigrations(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS searchproxy_schema_migrations (
			id TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`); err != nil {
		return fmt.Errorf("create searchproxy_schema_migrations: %w", err)
	}

	migrations, err := loadMigrations()
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.ID] {
			continue
		}
		if strings.TrimSpace(m.UpSQL) == "" {
			return fmt.Errorf("missing up migration for %s", m.ID)
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", m.ID, err)
		}
		if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", m.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO searchproxy_schema_migrations (id) VALUES ($1)`, m.ID); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", m.ID, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", m.ID, err)
		}
	}
	return nil
}

func (s *Store) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM searchproxy_schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	applied := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		applied[id] = true
	}
	return applied, rows.Err()
}

// WriteChunks validates each chunk's ownership against requestFingerprint
// (regulatoryWrite authorizes owner_fingerprint == "" writes) and upserts
// them, replacing any prior chunk sharing the same chunk id (the conflict
// key is the id alone; an existing row keeps its index and owner).
func (s *Store) WriteChunks(ctx context.Context, index, requestFingerprint string, regulatoryWrite bool, chunks []*models.Chunk) error {
	for _, c := range chunks {
		if !writeOwnershipOK(c.OwnerFingerprint, requestFingerprint, regulatoryWrite) {
			return ErrForbidden
		}
		if len(c.Embedding) != s.dimension {
			return fmt.Errorf("chunk %s: embedding dimension %d, want %d", c.ID, len(c.Embedding), s.dimension)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, index_name, document_id, title, body, citation, source, owner_fingerprint, chunk_index, uploaded_at, page_count, file_hash, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			body = EXCLUDED.body,
			citation = EXCLUDED.citation,
			chunk_index = EXCLUDED.chunk_index,
			uploaded_at = EXCLUDED.uploaded_at,
			embedding = EXCLUDED.embedding
	`)
	if err != nil {
		return fmt.Errorf("prepare chunk upsert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		if c.UploadedAt.IsZero() {
			c.UploadedAt = time.Now()
		}
		ownerFingerprint := sql.NullString{}
		if c.OwnerFingerprint != "" {
			ownerFingerprint = sql.NullString{String: c.OwnerFingerprint, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			c.ID, index, c.DocumentID, c.Title, c.Body, c.Citation, string(c.Source),
			ownerFingerprint, c.Index, c.UploadedAt, c.PageCount, c.FileHash, encodeEmbedding(c.Embedding),
		); err != nil {
			return fmt.Errorf("upsert chunk %s: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

// Search ranks chunks in index against queryEmbedding, restricted to
// chunks visible to fingerprint (the ownership filter applied
// unconditionally, never supplied by the caller).
func (s *Store) Search(ctx context.Context, index, fingerprint string, queryEmbedding []float32, top int) ([]models.SearchHit, error) {
	if len(queryEmbedding) != s.dimension {
		return nil, fmt.Errorf("query embedding dimension %d, want %d", len(queryEmbedding), s.dimension)
	}
	if top <= 0 {
		top = 10
	}

	query := fmt.Sprintf(`
		SELECT id, document_id, title, body, citation, source, owner_fingerprint, chunk_index, uploaded_at, page_count, file_hash,
			1 - (embedding <=> $1::vector) AS score
		FROM chunks
		WHERE index_name = $2 AND %s
		ORDER BY embedding <=> $1::vector ASC
		LIMIT $4
	`, ownershipFilterSQL(3))

	rows, err := s.db.QueryContext(ctx, query, encodeEmbedding(queryEmbedding), index, fingerprint, top)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()

	var hits []models.SearchHit
	for rows.Next() {
		c := &models.Chunk{}
		var owner sql.NullString
		var score float64
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Title, &c.Body, &c.Citation, &c.Source, &owner, &c.Index, &c.UploadedAt, &c.PageCount, &c.FileHash, &score); err != nil {
			return nil, fmt.Errorf("scan search hit: %w", err)
		}
		if owner.Valid {
			c.OwnerFingerprint = owner.String
		}
		hits = append(hits, models.SearchHit{Chunk: c, Score: float32(score)})
	}
	return hits, rows.Err()
}

// ListDocuments lists the distinct personal documents a fingerprint has
// uploaded into index.
func (s *Store) ListDocuments(ctx context.Context, index, fingerprint string) ([]retrieval.DocumentSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT document_id, title, MAX(page_count), MIN(uploaded_at)
		FROM chunks
		WHERE index_name = $1 AND owner_fingerprint = $2
		GROUP BY document_id, title
		ORDER BY MIN(uploaded_at) DESC
	`, index, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []retrieval.DocumentSummary
	for rows.Next() {
		var d retrieval.DocumentSummary
		if err := rows.Scan(&d.ID, &d.Title, &d.PageCount, &d.UploadedAt); err != nil {
			return nil, fmt.Errorf("scan document summary: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DocumentChunks returns every chunk of documentID visible to
// fingerprint, in chunk order.
func (s *Store) DocumentChunks(ctx context.Context, index, fingerprint, documentID string) ([]models.Chunk, error) {
	query := fmt.Sprintf(`
		SELECT id, document_id, title, body, citation, source, owner_fingerprint, chunk_index, uploaded_at, page_count, file_hash
		FROM chunks
		WHERE index_name = $1 AND document_id = $2 AND %s
		ORDER BY chunk_index ASC
	`, ownershipFilterSQL(3))

	rows, err := s.db.QueryContext(ctx, query, index, documentID, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("document chunks query: %w", err)
	}
	defer rows.Close()

	var out []models.Chunk
	for rows.Next() {
		var c models.Chunk
		var owner sql.NullString
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Title, &c.Body, &c.Citation, &c.Source, &owner, &c.Index, &c.UploadedAt, &c.PageCount, &c.FileHash); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if owner.Valid {
			c.OwnerFingerprint = owner.String
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

// DeleteDocument removes every chunk of documentID owned by fingerprint.
// A fingerprint that does not own documentID deletes nothing and gets
// ErrNotFound; the HTTP layer also checks visibility with DocumentChunks
// before calling this.
func (s *Store) DeleteDocument(ctx context.Context, index, fingerprint, documentID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM chunks WHERE index_name = $1 AND document_id = $2 AND owner_fingerprint = $3
	`, index, documentID, fingerprint)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Close releases the underlying connection if this Store opened it.
func (s *Store) Close() error {
	if s.ownsDB && s.db != nil {
		return s.db.Close()
	}
	return nil
}

func encodeEmbedding(embedding []float32) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, f := range embedding {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%g", f)
	}
	sb.WriteByte(']')
	return sb.String()
}

// Migration is one embedded schema migration.
type Migration struct {
	ID    string
	UpSQL string
}

func loadMigrations() ([]Migration, error) {
	paths, err := fs.Glob(migrationsFS, "migrations/*.up.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	migrations := make([]Migration, 0, len(paths))
	for _, p := range paths {
		data, err := migrationsFS.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", p, err)
		}
		id := strings.TrimSuffix(strings.TrimPrefix(p, "migrations/"), ".up.sql")
		migrations = append(migrations, Migration{ID: id, UpSQL: string(data)})
	}
	return migrations, nil
}
