// Package store persists reading state between sessions: last position per
// book, named bookmarks, the visited-position history and the recently
// opened list. Everything lives in a single SQLite database under the
// configured storage path.
package store

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"go.uber.org/zap"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"tbr/book"
)

const schema = `
CREATE TABLE IF NOT EXISTS books (
	key        TEXT PRIMARY KEY,
	path       TEXT NOT NULL,
	title      TEXT NOT NULL,
	chapter    INTEGER NOT NULL DEFAULT 0,
	block      INTEGER NOT NULL DEFAULT 0,
	run        INTEGER NOT NULL DEFAULT 0,
	offset     INTEGER NOT NULL DEFAULT 0,
	opened_at  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS bookmarks (
	id         TEXT PRIMARY KEY,
	book_key   TEXT NOT NULL REFERENCES books(key) ON DELETE CASCADE,
	name       TEXT NOT NULL,
	chapter    INTEGER NOT NULL,
	block      INTEGER NOT NULL,
	run        INTEGER NOT NULL,
	offset     INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS bookmarks_book ON bookmarks(book_key, created_at);
CREATE TABLE IF NOT EXISTS history (
	book_key   TEXT NOT NULL REFERENCES books(key) ON DELETE CASCADE,
	chapter    INTEGER NOT NULL,
	block      INTEGER NOT NULL,
	run        INTEGER NOT NULL,
	offset     INTEGER NOT NULL,
	visited_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS history_book ON history(book_key, visited_at);
`

// historyKeep caps the stored trail per book, matching the in-session trace.
const historyKeep = 100

// Store wraps one SQLite connection. zombiezen connections are not safe for
// concurrent use, the mutex serializes callers.
type Store struct {
	mu   sync.Mutex
	conn *sqlite.Conn
	log  *zap.Logger
}

// BookKey derives a stable identifier for a book file: a readable slug of
// the base name plus a short hash of the full path, so moving the library
// directory does not collide identical titles.
func BookKey(path string) string {
	base := filepath.Base(path)
	sum := sha1.Sum([]byte(path))
	return slug.Make(base) + "-" + hex.EncodeToString(sum[:4])
}

// Bookmark is one saved location in a book.
type Bookmark struct {
	ID      string
	Name    string
	Pos     book.Position
	Created time.Time
}

// Visit is one history entry, a position a reading session passed through.
type Visit struct {
	Pos     book.Position
	Visited time.Time
}

// BookRecord is one row of the recently opened list.
type BookRecord struct {
	Key    string
	Path   string
	Title  string
	Pos    book.Position
	Opened time.Time
}

// Open creates or opens the state database at dir/state.db and applies the
// schema.
func Open(dir string, log *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	path := filepath.Join(dir, "state.db")
	conn, err := sqlite.OpenConn(path, sqlite.OpenReadWrite, sqlite.OpenCreate, sqlite.OpenWAL)
	if err != nil {
		return nil, fmt.Errorf("opening state database %s: %w", path, err)
	}
	s := &Store{conn: conn, log: log}
	if err := s.init(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// OpenMemory opens a throwaway in-memory store, used by tests and --no-persist.
func OpenMemory(log *zap.Logger) (*Store, error) {
	conn, err := sqlite.OpenConn(":memory:", sqlite.OpenReadWrite, sqlite.OpenMemory)
	if err != nil {
		return nil, fmt.Errorf("opening in-memory state database: %w", err)
	}
	s := &Store{conn: conn, log: log}
	if err := s.init(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	if err := sqlitex.ExecuteScript(s.conn, schema, nil); err != nil {
		return fmt.Errorf("applying state schema: %w", err)
	}
	if err := sqlitex.Execute(s.conn, `PRAGMA foreign_keys = ON;`, nil); err != nil {
		return fmt.Errorf("enabling foreign keys: %w", err)
	}
	return nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

// SaveReading upserts the last reading position of a book and refreshes its
// slot in the recently opened list.
func (s *Store) SaveReading(key, path, title string, pos book.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := sqlitex.Execute(s.conn, `
		INSERT INTO books (key, path, title, chapter, block, run, offset, opened_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			path=excluded.path, title=excluded.title,
			chapter=excluded.chapter, block=excluded.block,
			run=excluded.run, offset=excluded.offset,
			opened_at=excluded.opened_at`,
		&sqlitex.ExecOptions{Args: []any{
			key, path, title, pos.Chapter, pos.Block, pos.Run, pos.Offset, time.Now().Unix(),
		}})
	if err != nil {
		return fmt.Errorf("saving reading position for %s: %w", key, err)
	}
	return nil
}

// LoadReading returns the saved position for a book key. found is false for
// a book never seen before.
func (s *Store) LoadReading(key string) (pos book.Position, found bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	err = sqlitex.Execute(s.conn, `SELECT chapter, block, run, offset FROM books WHERE key = ?`,
		&sqlitex.ExecOptions{
			Args: []any{key},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				pos = book.Position{
					Chapter: int(stmt.ColumnInt64(0)),
					Block:   int(stmt.ColumnInt64(1)),
					Run:     int(stmt.ColumnInt64(2)),
					Offset:  int(stmt.ColumnInt64(3)),
				}
				found = true
				return nil
			},
		})
	if err != nil {
		return book.Position{}, false, fmt.Errorf("loading reading position for %s: %w", key, err)
	}
	return pos, found, nil
}

// AddBookmark stores a named bookmark and returns its id.
func (s *Store) AddBookmark(bookKey, name string, pos book.Position) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	err := sqlitex.Execute(s.conn, `
		INSERT INTO bookmarks (id, book_key, name, chapter, block, run, offset, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{
			id, bookKey, name, pos.Chapter, pos.Block, pos.Run, pos.Offset, time.Now().Unix(),
		}})
	if err != nil {
		return "", fmt.Errorf("adding bookmark %q: %w", name, err)
	}
	return id, nil
}

// Bookmarks lists a book's bookmarks oldest first.
func (s *Store) Bookmarks(bookKey string) ([]Bookmark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Bookmark
	err := sqlitex.Execute(s.conn, `
		SELECT id, name, chapter, block, run, offset, created_at
		FROM bookmarks WHERE book_key = ? ORDER BY created_at, id`,
		&sqlitex.ExecOptions{
			Args: []any{bookKey},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, Bookmark{
					ID:   stmt.ColumnText(0),
					Name: stmt.ColumnText(1),
					Pos: book.Position{
						Chapter: int(stmt.ColumnInt64(2)),
						Block:   int(stmt.ColumnInt64(3)),
						Run:     int(stmt.ColumnInt64(4)),
						Offset:  int(stmt.ColumnInt64(5)),
					},
					Created: time.Unix(stmt.ColumnInt64(6), 0),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("listing bookmarks for %s: %w", bookKey, err)
	}
	return out, nil
}

// DeleteBookmark removes a bookmark by id.
func (s *Store) DeleteBookmark(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := sqlitex.Execute(s.conn, `DELETE FROM bookmarks WHERE id = ?`,
		&sqlitex.ExecOptions{Args: []any{id}})
	if err != nil {
		return fmt.Errorf("deleting bookmark %s: %w", id, err)
	}
	return nil
}

// AppendHistory records a visited position, trimming the trail to the most
// recent entries. The book row must exist, positions reference it.
func (s *Store) AppendHistory(bookKey string, pos book.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := sqlitex.Execute(s.conn, `
		INSERT INTO history (book_key, chapter, block, run, offset, visited_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{
			bookKey, pos.Chapter, pos.Block, pos.Run, pos.Offset, time.Now().Unix(),
		}})
	if err != nil {
		return fmt.Errorf("appending history for %s: %w", bookKey, err)
	}
	err = sqlitex.Execute(s.conn, `
		DELETE FROM history WHERE book_key = ? AND rowid NOT IN (
			SELECT rowid FROM history WHERE book_key = ?
			ORDER BY visited_at DESC, rowid DESC LIMIT ?)`,
		&sqlitex.ExecOptions{Args: []any{bookKey, bookKey, historyKeep}})
	if err != nil {
		return fmt.Errorf("trimming history for %s: %w", bookKey, err)
	}
	return nil
}

// History lists a book's visited positions newest first.
func (s *Store) History(bookKey string, limit int) ([]Visit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > historyKeep {
		limit = historyKeep
	}
	var out []Visit
	err := sqlitex.Execute(s.conn, `
		SELECT chapter, block, run, offset, visited_at
		FROM history WHERE book_key = ?
		ORDER BY visited_at DESC, rowid DESC LIMIT ?`,
		&sqlitex.ExecOptions{
			Args: []any{bookKey, limit},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, Visit{
					Pos: book.Position{
						Chapter: int(stmt.ColumnInt64(0)),
						Block:   int(stmt.ColumnInt64(1)),
						Run:     int(stmt.ColumnInt64(2)),
						Offset:  int(stmt.ColumnInt64(3)),
					},
					Visited: time.Unix(stmt.ColumnInt64(4), 0),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("listing history for %s: %w", bookKey, err)
	}
	return out, nil
}

// RecentBooks lists books most recently opened first.
func (s *Store) RecentBooks(limit int) ([]BookRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 20
	}
	var out []BookRecord
	err := sqlitex.Execute(s.conn, `
		SELECT key, path, title, chapter, block, run, offset, opened_at
		FROM books ORDER BY opened_at DESC LIMIT ?`,
		&sqlitex.ExecOptions{
			Args: []any{limit},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, BookRecord{
					Key:   stmt.ColumnText(0),
					Path:  stmt.ColumnText(1),
					Title: stmt.ColumnText(2),
					Pos: book.Position{
						Chapter: int(stmt.ColumnInt64(3)),
						Block:   int(stmt.ColumnInt64(4)),
						Run:     int(stmt.ColumnInt64(5)),
						Offset:  int(stmt.ColumnInt64(6)),
					},
					Opened: time.Unix(stmt.ColumnInt64(7), 0),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("listing recent books: %w", err)
	}
	return out, nil
}
