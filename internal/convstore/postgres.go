// Package convstore implements the conversation store: an
// append-only log of turns keyed by conversation id, with three
// interchangeable backends — PostgreSQL/CockroachDB, embedded SQLite, and
// an in-memory implementation for tests — all satisfying
// orchestrator.ConversationStore's AppendTurn/History contract.
package convstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/regassist/regassist/pkg/models"
)

// PostgresStore is the lib/pq-backed ConversationStore, grounded on
// internal/sessions/cockroach.go's connection/prepared-statement shape.
type PostgresStore struct {
	db *sql.DB

	stmtAppend *sql.Stmt
	stmtLoad   *sql.Stmt
}

// PostgresConfig configures a PostgresStore connection.
type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultPostgresConfig returns sane pool defaults.
func DefaultPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// NewPostgresStore opens a connection, runs the schema migration, and
// prepares statements for reuse.
func NewPostgresStore(cfg *PostgresConfig) (*PostgresStore, error) {
	if cfg == nil {
		cfg = DefaultPostgresConfig()
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("dsn is required")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare statements: %w", err)
	}
	return s, nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS conversation_turns (
    conversation_id TEXT NOT NULL,
    sequence        BIGINT NOT NULL,
    role            TEXT NOT NULL,
    text            TEXT NOT NULL DEFAULT '',
    tool_calls      JSONB NOT NULL DEFAULT '[]',
    tool_results    JSONB NOT NULL DEFAULT '[]',
    created_at      TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (conversation_id, sequence)
);

CREATE TABLE IF NOT EXISTS conversation_sequences (
    conversation_id TEXT PRIMARY KEY,
    next_sequence   BIGINT NOT NULL DEFAULT 0
);
`

func (s *PostgresStore) prepareStatements() error {
	var err error
	s.stmtAppend, err = s.db.Prepare(`
		INSERT INTO conversation_turns (conversation_id, sequence, role, text, tool_calls, tool_results, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`)
	if err != nil {
		return fmt.Errorf("prepare append turn: %w", err)
	}
	s.stmtLoad, err = s.db.Prepare(`
		SELECT conversation_id, sequence, role, text, tool_calls, tool_results, created_at
		FROM conversation_turns
		WHERE conversation_id = $1
		ORDER BY sequence ASC
	`)
	if err != nil {
		return fmt.Errorf("prepare load turns: %w", err)
	}
	return nil
}

// AppendTurn assigns the next gap-free sequence number for
// turn.ConversationID and inserts it, all within one transaction: a single
// INSERT ... ON CONFLICT ... DO UPDATE ... RETURNING upsert on the
// per-conversation row in conversation_sequences claims the next value,
// and the row lock that upsert takes makes concurrent appends to the same
// conversation serialize on that row rather than racing on the sequence
// value.
func (s *PostgresStore) AppendTurn(ctx context.Context, turn *models.Turn) error {
	toolCallsJSON, err := json.Marshal(turn.ToolCalls)
	if err != nil {
		return fmt.Errorf("marshal tool calls: %w", err)
	}
	toolResultsJSON, err := json.Marshal(turn.ToolResults)
	if err != nil {
		return fmt.Errorf("marshal tool results: %w", err)
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var next int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO conversation_sequences (conversation_id, next_sequence)
		VALUES ($1, 1)
		ON CONFLICT (conversation_id) DO UPDATE SET next_sequence = conversation_sequences.next_sequence + 1
		RETURNING next_sequence - 1
	`, turn.ConversationID).Scan(&next)
	if err != nil {
		return fmt.Errorf("allocate sequence: %w", err)
	}
	turn.Sequence = next

	if _, err := tx.StmtContext(ctx, s.stmtAppend).ExecContext(ctx,
		turn.ConversationID, turn.Sequence, string(turn.Role), turn.Text,
		toolCallsJSON, toolResultsJSON, turn.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}

	return tx.Commit()
}

// History returns every turn for conversationID in ascending,
// gap-free sequence order.
func (s *PostgresStore) History(ctx context.Context, conversationID string) ([]*models.Turn, error) {
	rows, err := s.stmtLoad.QueryContext(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var turns []*models.Turn
	for rows.Next() {
		t := &models.Turn{}
		var role string
		var toolCallsJSON, toolResultsJSON []byte
		if err := rows.Scan(&t.ConversationID, &t.Sequence, &role, &t.Text, &toolCallsJSON, &toolResultsJSON, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.Role = models.Role(role)
		if len(toolCallsJSON) > 0 && string(toolCallsJSON) != "null" {
			if err := json.Unmarshal(toolCallsJSON, &t.ToolCalls); err != nil {
				return nil, fmt.Errorf("unmarshal tool calls: %w", err)
			}
		}
		if len(toolResultsJSON) > 0 && string(toolResultsJSON) != "null" {
			if err := json.Unmarshal(toolResultsJSON, &t.ToolResults); err != nil {
				return nil, fmt.Errorf("unmarshal tool results: %w", err)
			}
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// Close releases prepared statements and the underlying connection.
func (s *PostgresStore) Close() error {
	if s.stmtAppend != nil {
		s.stmtAppend.Close()
	}
	if s.stmtLoad != nil {
		s.stmtLoad.Close()
	}
	return s.db.Close()
}
