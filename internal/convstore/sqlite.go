package convstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, registers as "sqlite"

	"github.com/regassist/regassist/pkg/models"
)

// SQLiteStore is the pure-Go embedded alternative to PostgresStore, for
// single-process/dev deployments that don't want an external database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens path (or ":memory:") and applies the schema. A
// single shared connection is used — database/sql's pool would otherwise
// let two goroutines open separate SQLite connections against the same
// file and trip "database is locked" under write contention.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

const sqliteSchemaSQL = `
CREATE TABLE IF NOT EXISTS conversation_turns (
    conversation_id TEXT NOT NULL,
    sequence        INTEGER NOT NULL,
    role            TEXT NOT NULL,
    text            TEXT NOT NULL DEFAULT '',
    tool_calls      TEXT NOT NULL DEFAULT '[]',
    tool_results    TEXT NOT NULL DEFAULT '[]',
    created_at      DATETIME NOT NULL,
    PRIMARY KEY (conversation_id, sequence)
);

CREATE TABLE IF NOT EXISTS conversation_sequences (
    conversation_id TEXT PRIMARY KEY,
    next_sequence   INTEGER NOT NULL DEFAULT 0
);
`

// AppendTurn mirrors PostgresStore.AppendTurn's gap-free sequence
// allocation, using SQLite's own upsert-with-RETURNING support instead of
// row-level locking (the single shared connection already serializes
// writes).
func (s *SQLiteStore) AppendTurn(ctx context.Context, turn *models.Turn) error {
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
		VALUES (?, 1)
		ON CONFLICT (conversation_id) DO UPDATE SET next_sequence = next_sequence + 1
		RETURNING next_sequence - 1
	`, turn.ConversationID).Scan(&next)
	if err != nil {
		return fmt.Errorf("allocate sequence: %w", err)
	}
	turn.Sequence = next

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conversation_turns (conversation_id, sequence, role, text, tool_calls, tool_results, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, turn.ConversationID, turn.Sequence, string(turn.Role), turn.Text, toolCallsJSON, toolResultsJSON, turn.CreatedAt); err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}

	return tx.Commit()
}

// History returns every turn for conversationID in ascending sequence
// order.
func (s *SQLiteStore) History(ctx context.Context, conversationID string) ([]*models.Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT conversation_id, sequence, role, text, tool_calls, tool_results, created_at
		FROM conversation_turns
		WHERE conversation_id = ?
		ORDER BY sequence ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var turns []*models.Turn
	for rows.Next() {
		t := &models.Turn{}
		var role string
		var toolCallsJSON, toolResultsJSON string
		if err := rows.Scan(&t.ConversationID, &t.Sequence, &role, &t.Text, &toolCallsJSON, &toolResultsJSON, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.Role = models.Role(role)
		if toolCallsJSON != "" && toolCallsJSON != "null" {
			if err := json.Unmarshal([]byte(toolCallsJSON), &t.ToolCalls); err != nil {
				return nil, fmt.Errorf("unmarshal tool calls: %w", err)
			}
		}
		if toolResultsJSON != "" && toolResultsJSON != "null" {
			if err := json.Unmarshal([]byte(toolResultsJSON), &t.ToolResults); err != nil {
				return nil, fmt.Errorf("unmarshal tool results: %w", err)
			}
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// Close releases the underlying connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
