package searchproxy

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/regassist/regassist/pkg/models"
)

func setupMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &Store{db: db, dimension: 3}, mock
}

func TestStoreWriteChunksRejectsOwnershipMismatch(t *testing.T) {
	store, _ := setupMockStore(t)

	chunks := []*models.Chunk{{ID: "c1", OwnerFingerprint: "alice", Embedding: []float32{1, 2, 3}}}
	err := store.WriteChunks(context.Background(), "faa-agent", "bob", false, chunks)
	if err != ErrForbidden {
		t.Fatalf("expected ErrForbidden for mismatched fingerprint, got %v", err)
	}
}

func TestStoreWriteChunksRejectsRegulatoryWithoutAuthorization(t *testing.T) {
	store, _ := setupMockStore(t)

	chunks := []*models.Chunk{{ID: "c1", OwnerFingerprint: "", Embedding: []float32{1, 2, 3}}}
	err := store.WriteChunks(context.Background(), "faa-agent", "bob", false, chunks)
	if err != ErrForbidden {
		t.Fatalf("expected ErrForbidden for unauthorized regulatory write, got %v", err)
	}
}

func TestStoreWriteChunksRejectsDimensionMismatch(t *testing.T) {
	store, _ := setupMockStore(t)

	chunks := []*models.Chunk{{ID: "c1", OwnerFingerprint: "bob", Embedding: []float32{1, 2}}}
	err := store.WriteChunks(context.Background(), "faa-agent", "bob", false, chunks)
	if err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestStoreWriteChunksUpsertsOwnedChunk(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO chunks")
	mock.ExpectExec("INSERT INTO chunks").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	chunks := []*models.Chunk{{
		ID:               "c1",
		DocumentID:       "personal/doc-1",
		Title:            "My upload",
		Body:             "body text",
		Source:           models.SourcePersonal,
		OwnerFingerprint: "bob",
		Embedding:        []float32{0.1, 0.2, 0.3},
	}}

	if err := store.WriteChunks(context.Background(), "faa-agent", "bob", false, chunks); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestStoreWriteChunksAllowsRegulatoryWithAuthorization(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO chunks")
	mock.ExpectExec("INSERT INTO chunks").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	chunks := []*models.Chunk{{
		ID:         "c1",
		DocumentID: "cfr/14-25-1309",
		Source:     models.SourceCFR,
		Embedding:  []float32{0.1, 0.2, 0.3},
	}}

	if err := store.WriteChunks(context.Background(), "faa-agent", "", true, chunks); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestStoreDeleteDocumentNotFoundWhenNoRowsAffected(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectExec("DELETE FROM chunks").WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.DeleteDocument(context.Background(), "faa-agent", "bob", "personal/doc-1")
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestStoreSearchRejectsWrongDimension(t *testing.T) {
	store, _ := setupMockStore(t)
	_, err := store.Search(context.Background(), "faa-agent", "bob", []float32{1, 2}, 5)
	if err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestEncodeEmbedding(t *testing.T) {
	in := []float32{0.5, -0.25, 1}
	encoded := encodeEmbedding(in)
	if encoded != "[0.5,-0.25,1]" {
		t.Fatalf("unexpected encoding: %s", encoded)
	}
}

func TestWriteOwnershipOK(t *testing.T) {
	cases := []struct {
		name             string
		ownerFingerprint string
		requestFP        string
		regulatoryWrite  bool
		want             bool
	}{
		{"owned match", "alice", "alice", false, true},
		{"owned mismatch", "alice", "bob", false, false},
		{"regulatory authorized", "", "alice", true, true},
		{"regulatory unauthorized", "", "alice", false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := writeOwnershipOK(tc.ownerFingerprint, tc.requestFP, tc.regulatoryWrite); got != tc.want {
				t.Errorf("writeOwnershipOK(%q,%q,%v) = %v, want %v", tc.ownerFingerprint, tc.requestFP, tc.regulatoryWrite, got, tc.want)
			}
		})
	}
}
