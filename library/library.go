// Package library keeps the recent-documents store: which documents were
// opened, where the reader stopped, and which cache build they map to.
// Everything here is best effort; pagination never depends on it.
package library

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	path       TEXT PRIMARY KEY,
	title      TEXT NOT NULL DEFAULT '',
	kind       TEXT NOT NULL DEFAULT '',
	last_page  INTEGER NOT NULL DEFAULT 0,
	page_count INTEGER NOT NULL DEFAULT 0,
	build_id   TEXT NOT NULL DEFAULT '',
	opened_at  INTEGER NOT NULL DEFAULT 0
);
`

// Document is one remembered document.
type Document struct {
	Path      string
	Title     string
	Kind      string
	LastPage  int
	PageCount int
	BuildID   string
	OpenedAt  time.Time
}

// Store is the recent-documents database. A single connection is shared and
// serialized; the store sees one reader at a time anyway.
type Store struct {
	mu   sync.Mutex
	conn *sqlite.Conn
	log  *zap.Logger
}

// Open opens or creates the database at path.
func Open(path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	conn, err := sqlite.OpenConn(path, sqlite.OpenReadWrite, sqlite.OpenCreate, sqlite.OpenWAL)
	if err != nil {
		return nil, fmt.Errorf("opening library database: %w", err)
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("preparing library schema: %w", err)
	}
	return &Store{conn: conn, log: log.Named("library")}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

// Touch records that a document was opened, creating or refreshing its row.
func (s *Store) Touch(doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	openedAt := doc.OpenedAt
	if openedAt.IsZero() {
		openedAt = time.Now()
	}
	err := sqlitex.Execute(s.conn, `
		INSERT INTO documents (path, title, kind, last_page, page_count, build_id, opened_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			title      = excluded.title,
			kind       = excluded.kind,
			page_count = excluded.page_count,
			build_id   = excluded.build_id,
			opened_at  = excluded.opened_at`,
		&sqlitex.ExecOptions{Args: []any{
			doc.Path, doc.Title, doc.Kind, doc.LastPage, doc.PageCount, doc.BuildID, openedAt.Unix(),
		}})
	if err != nil {
		return fmt.Errorf("recording document %q: %w", doc.Path, err)
	}
	return nil
}

// SetPosition remembers the page the reader stopped on.
func (s *Store) SetPosition(path string, page int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := sqlitex.Execute(s.conn,
		`UPDATE documents SET last_page = ? WHERE path = ?`,
		&sqlitex.ExecOptions{Args: []any{page, path}})
	if err != nil {
		return fmt.Errorf("saving position for %q: %w", path, err)
	}
	return nil
}

// Get looks one document up by path.
func (s *Store) Get(path string) (Document, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var doc Document
	found := false
	err := sqlitex.Execute(s.conn, `
		SELECT path, title, kind, last_page, page_count, build_id, opened_at
		FROM documents WHERE path = ?`,
		&sqlitex.ExecOptions{
			Args: []any{path},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				doc = scanDocument(stmt)
				found = true
				return nil
			}})
	if err != nil {
		return Document{}, false, fmt.Errorf("looking up %q: %w", path, err)
	}
	return doc, found, nil
}

// Recent lists the most recently opened documents, newest first.
func (s *Store) Recent(n int) ([]Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Document
	err := sqlitex.Execute(s.conn, `
		SELECT path, title, kind, last_page, page_count, build_id, opened_at
		FROM documents ORDER BY opened_at DESC, path LIMIT ?`,
		&sqlitex.ExecOptions{
			Args: []any{n},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, scanDocument(stmt))
				return nil
			}})
	if err != nil {
		return nil, fmt.Errorf("listing recent documents: %w", err)
	}
	return out, nil
}

// Forget drops a document from the store.
func (s *Store) Forget(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := sqlitex.Execute(s.conn,
		`DELETE FROM documents WHERE path = ?`,
		&sqlitex.ExecOptions{Args: []any{path}})
	if err != nil {
		return fmt.Errorf("forgetting %q: %w", path, err)
	}
	return nil
}

func scanDocument(stmt *sqlite.Stmt) Document {
	return Document{
		Path:      stmt.ColumnText(0),
		Title:     stmt.ColumnText(1),
		Kind:      stmt.ColumnText(2),
		LastPage:  int(stmt.ColumnInt64(3)),
		PageCount: int(stmt.ColumnInt64(4)),
		BuildID:   stmt.ColumnText(5),
		OpenedAt:  time.Unix(stmt.ColumnInt64(6), 0),
	}
}
