package convstore

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/regassist/regassist/pkg/models"
)

func setupMockPostgresStore(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresStore) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	mock.ExpectPrepare("INSERT INTO conversation_turns")
	mock.ExpectPrepare("SELECT conversation_id, sequence, role, text, tool_calls, tool_results, created_at")

	store := &PostgresStore{db: db}
	if err := store.prepareStatements(); err != nil {
		t.Fatalf("prepare statements: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock, store
}

func TestPostgresStoreAppendTurnAllocatesSequenceAndInserts(t *testing.T) {
	_, mock, store := setupMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO conversation_sequences").
		WithArgs("conv-1").
		WillReturnRows(sqlmock.NewRows([]string{"next_sequence"}).AddRow(int64(3)))
	mock.ExpectExec("INSERT INTO conversation_turns").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	turn := &models.Turn{ConversationID: "conv-1", Role: models.RoleUser, Text: "hello", CreatedAt: time.Now()}
	if err := store.AppendTurn(context.Background(), turn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if turn.Sequence != 3 {
		t.Errorf("expected sequence 3, got %d", turn.Sequence)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresStoreAppendTurnRollsBackOnInsertFailure(t *testing.T) {
	_, mock, store := setupMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO conversation_sequences").
		WillReturnRows(sqlmock.NewRows([]string{"next_sequence"}).AddRow(int64(0)))
	mock.ExpectExec("INSERT INTO conversation_turns").
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	turn := &models.Turn{ConversationID: "conv-1", Role: models.RoleUser, Text: "hello"}
	if err := store.AppendTurn(context.Background(), turn); err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresStoreHistoryReturnsAscendingTurns(t *testing.T) {
	_, mock, store := setupMockPostgresStore(t)

	rows := sqlmock.NewRows([]string{"conversation_id", "sequence", "role", "text", "tool_calls", "tool_results", "created_at"}).
		AddRow("conv-1", int64(0), "user", "hi", []byte("[]"), []byte("[]"), time.Now()).
		AddRow("conv-1", int64(1), "assistant", "hello there", []byte("[]"), []byte("[]"), time.Now())

	mock.ExpectQuery("SELECT conversation_id, sequence, role, text, tool_calls, tool_results, created_at").
		WithArgs("conv-1").
		WillReturnRows(rows)

	turns, err := store.History(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].Sequence != 0 || turns[1].Sequence != 1 {
		t.Errorf("expected ascending sequence, got %d then %d", turns[0].Sequence, turns[1].Sequence)
	}
}
