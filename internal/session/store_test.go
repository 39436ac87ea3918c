package session

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return store
}

func TestSaveAndGetRoundtrip(t *testing.T) {
	store := newTestStore(t)

	session := Session{
		"id":        "abc",
		"name":      "Morning rounds",
		"createdAt": float64(1700000000),
		"content":   map[string]any{"fields": []any{}},
	}

	if err := store.Save(session); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Get("abc")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if loaded.ID() != "abc" {
		t.Errorf("Expected id abc, got '%s'", loaded.ID())
	}

	if loaded["name"] != "Morning rounds" {
		t.Errorf("Expected name preserved, got %v", loaded["name"])
	}

	content, ok := loaded.Content().(map[string]any)
	if !ok {
		t.Fatalf("Expected content object, got %T", loaded.Content())
	}
	if _, ok := content["fields"]; !ok {
		t.Errorf("Expected content fields preserved, got %v", content)
	}
}

func TestSaveBatch(t *testing.T) {
	store := newTestStore(t)

	err := store.Save(
		Session{"id": "one"},
		Session{"id": "two"},
		Session{"id": "three"},
	)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	sessions, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	if len(sessions) != 3 {
		t.Errorf("Expected 3 sessions, got %d", len(sessions))
	}
}

func TestSaveOverwritesWholeDocument(t *testing.T) {
	store := newTestStore(t)

	if err := store.Save(Session{"id": "abc", "name": "old", "extra": "field"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := store.Save(Session{"id": "abc", "name": "new"}); err != nil {
		t.Fatalf("Second save failed: %v", err)
	}

	loaded, err := store.Get("abc")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if loaded["name"] != "new" {
		t.Errorf("Expected name replaced, got %v", loaded["name"])
	}

	if _, ok := loaded["extra"]; ok {
		t.Error("Expected stale field dropped by whole-document overwrite")
	}
}

func TestSaveMissingID(t *testing.T) {
	store := newTestStore(t)

	err := store.Save(Session{"name": "no id"})
	if err == nil {
		t.Fatal("Expected error for missing id")
	}

	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("Expected ValidationError, got %T: %v", err, err)
	}
}

func TestSaveRejectsPathEscapingID(t *testing.T) {
	store := newTestStore(t)

	for _, id := range []string{"../escape", "a/b", `a\b`} {
		err := store.Save(Session{"id": id})

		var validationErr *ValidationError
		if !errors.As(err, &validationErr) {
			t.Errorf("Expected ValidationError for id '%s', got %v", id, err)
		}
	}
}

func TestGetNonexistent(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestDeleteNonexistent(t *testing.T) {
	store := newTestStore(t)

	if err := store.Delete("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestDeleteRemovesSession(t *testing.T) {
	store := newTestStore(t)

	if err := store.Save(Session{"id": "abc"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := store.Delete("abc"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := store.Get("abc"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected session gone after delete, got %v", err)
	}
}

func TestListSkipsMalformedFiles(t *testing.T) {
	store := newTestStore(t)

	if err := store.Save(Session{"id": "good"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := os.WriteFile(filepath.Join(store.dir, "broken.json"), []byte("{not json"), 0644); err != nil {
		t.Fatalf("Failed to write malformed file: %v", err)
	}

	if err := os.WriteFile(filepath.Join(store.dir, "notes.txt"), []byte("ignored"), 0644); err != nil {
		t.Fatalf("Failed to write non-json file: %v", err)
	}

	sessions, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	if len(sessions) != 1 {
		t.Fatalf("Expected 1 session, got %d", len(sessions))
	}

	if sessions[0].ID() != "good" {
		t.Errorf("Expected the valid session, got %v", sessions[0])
	}
}

func TestListOrdersByCreatedAt(t *testing.T) {
	store := newTestStore(t)

	err := store.Save(
		Session{"id": "late", "createdAt": float64(1700000300)},
		Session{"id": "early", "createdAt": float64(1700000100)},
		Session{"id": "middle", "createdAt": float64(1700000200)},
	)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	sessions, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	want := []string{"early", "middle", "late"}
	for i, id := range want {
		if sessions[i].ID() != id {
			t.Errorf("Expected position %d to be %s, got %s", i, id, sessions[i].ID())
		}
	}
}

func TestUpdateContentPreservesOtherFields(t *testing.T) {
	store := newTestStore(t)

	original := Session{
		"id":        "abc",
		"name":      "Follow-up visit",
		"createdAt": float64(1700000000),
		"content":   nil,
	}
	if err := store.Save(original); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	newContent := map[string]any{"assessment": "improving"}
	if err := store.UpdateContent("abc", newContent); err != nil {
		t.Fatalf("UpdateContent failed: %v", err)
	}

	loaded, err := store.Get("abc")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	content, ok := loaded.Content().(map[string]any)
	if !ok || content["assessment"] != "improving" {
		t.Errorf("Expected updated content, got %v", loaded.Content())
	}

	if loaded["name"] != "Follow-up visit" {
		t.Errorf("Expected name preserved, got %v", loaded["name"])
	}

	if loaded["createdAt"] != float64(1700000000) {
		t.Errorf("Expected createdAt preserved, got %v", loaded["createdAt"])
	}
}

func TestUpdateContentSeesConcurrentEdits(t *testing.T) {
	store := newTestStore(t)

	if err := store.Save(Session{"id": "abc", "name": "old"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Simulate an edit landing between pipeline start and write-back.
	if err := store.Save(Session{"id": "abc", "name": "renamed"}); err != nil {
		t.Fatalf("Concurrent save failed: %v", err)
	}

	if err := store.UpdateContent("abc", "note text"); err != nil {
		t.Fatalf("UpdateContent failed: %v", err)
	}

	loaded, err := store.Get("abc")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if loaded["name"] != "renamed" {
		t.Errorf("Expected fresh reload to keep the concurrent edit, got %v", loaded["name"])
	}

	if loaded.Content() != "note text" {
		t.Errorf("Expected content written, got %v", loaded.Content())
	}
}

func TestUpdateContentNonexistent(t *testing.T) {
	store := newTestStore(t)

	if err := store.UpdateContent("missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	store := newTestStore(t)

	if err := store.Save(Session{"id": "abc"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	entries, err := os.ReadDir(store.dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}

	for _, entry := range entries {
		if filepath.Ext(entry.Name()) == ".tmp" {
			t.Errorf("Unexpected leftover temp file: %s", entry.Name())
		}
	}
}
