package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNotFound indicates no session exists at the requested identifier.
var ErrNotFound = errors.New("session not found")

// ValidationError indicates a session record that cannot be persisted, such
// as a missing identifier.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// Session is one persisted dictation session document. The shape of the
// document is caller-defined; the store only interprets the id, content and
// createdAt fields. All other fields pass through unmodified.
type Session map[string]any

// ID returns the session identifier, or an empty string when absent.
func (s Session) ID() string {
	id, _ := s["id"].(string)
	return id
}

// Content returns the structured note content of the session.
func (s Session) Content() any {
	return s["content"]
}

// Store persists sessions as one JSON document per identifier under a
// directory. There is no locking: concurrent writers to the same identifier
// race, last writer wins. See UpdateContent for the narrower merge write.
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore creates a session store rooted at dir, creating it if needed.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory %s: %w", dir, err)
	}

	return &Store{dir: dir, logger: logger}, nil
}

// List returns all persisted sessions. Records that fail to parse are
// skipped, not fatal. When records carry a createdAt field the result is in
// creation order; otherwise the order is unspecified.
func (s *Store) List() ([]Session, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions directory %s: %w", s.dir, err)
	}

	sessions := make([]Session, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("Skipping unreadable session file",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			continue
		}

		var session Session
		if err := json.Unmarshal(data, &session); err != nil {
			s.logger.Warn("Skipping malformed session file",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			continue
		}

		sessions = append(sessions, session)
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		return createdAt(sessions[i]) < createdAt(sessions[j])
	})

	return sessions, nil
}

// Get returns the session at the given identifier, or ErrNotFound.
func (s *Store) Get(id string) (Session, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read session %s: %w", id, err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to parse session %s: %w", id, err)
	}

	return session, nil
}

// Save persists one or more sessions, fully replacing any existing record at
// each identifier. This is a whole-document overwrite, not a field merge.
// Every record must carry a non-empty id.
func (s *Store) Save(sessions ...Session) error {
	for _, session := range sessions {
		id := session.ID()
		if id == "" {
			return &ValidationError{Reason: "missing session id"}
		}
		if err := validateID(id); err != nil {
			return err
		}

		if err := s.write(id, session); err != nil {
			return err
		}

		s.logger.Debug("Session saved", slog.String("session_id", id))
	}

	return nil
}

// Delete removes the session at the given identifier, failing with
// ErrNotFound when no record exists.
func (s *Store) Delete(id string) error {
	if err := validateID(id); err != nil {
		return err
	}

	path := s.path(id)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return ErrNotFound
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}

	s.logger.Debug("Session deleted", slog.String("session_id", id))
	return nil
}

// UpdateContent reloads the session fresh, replaces only its content field
// and writes the whole document back. The fresh read guards against clobbering
// edits made while a slow pipeline was running, but the read-replace-write is
// not atomic: two concurrent updates of the same session can still interleave.
// Strengthening this to per-identifier locking is a deliberate extension
// point, not an implied guarantee.
func (s *Store) UpdateContent(id string, content any) error {
	session, err := s.Get(id)
	if err != nil {
		return err
	}

	session["content"] = content

	if err := s.write(id, session); err != nil {
		return err
	}

	s.logger.Info("Session content updated", slog.String("session_id", id))
	return nil
}

// write persists a document with a temp-file rename so no concurrent reader
// observes a half-written record.
func (s *Store) write(id string, session Session) error {
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", id, err)
	}

	tmp, err := os.CreateTemp(s.dir, id+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for session %s: %w", id, err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write session %s: %w", id, err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp file for session %s: %w", id, err)
	}

	if err := os.Rename(tmp.Name(), s.path(id)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to persist session %s: %w", id, err)
	}

	return nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// validateID rejects identifiers that would escape the sessions directory.
func validateID(id string) error {
	if id == "" {
		return &ValidationError{Reason: "missing session id"}
	}
	if strings.ContainsAny(id, `/\`) || id != filepath.Base(id) {
		return &ValidationError{Reason: fmt.Sprintf("invalid session id '%s'", id)}
	}
	return nil
}

// createdAt extracts a numeric creation timestamp when present. JSON numbers
// decode as float64; zero sorts records without the field first.
func createdAt(session Session) float64 {
	value, _ := session["createdAt"].(float64)
	return value
}
