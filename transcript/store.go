package transcript

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ponyo877/salachat/chat"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	room       TEXT NOT NULL,
	author     TEXT NOT NULL,
	body       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_room ON messages(room, id);
`

// Store is a local append-only cache of the room traffic rendered during
// a session. The session core works without one; the CLI wires it in when
// a transcript path is configured.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript db %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init transcript schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Append(m chat.Message) error {
	query := "INSERT INTO messages (room, author, body, created_at) VALUES (?, ?, ?, ?)"
	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	if _, err := s.db.Exec(query, m.Room, m.Author, m.Body, ts); err != nil {
		return fmt.Errorf("failed to insert message for %s: %w", m.Room, err)
	}
	return nil
}

// Recent returns up to limit of the newest messages for a room, oldest
// first.
func (s *Store) Recent(room string, limit int) ([]chat.Message, error) {
	query := `
		SELECT room, author, body, created_at FROM (
			SELECT id, room, author, body, created_at
			FROM messages WHERE room = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC
	`
	rows, err := s.db.Query(query, room, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcript for %s: %w", room, err)
	}
	defer rows.Close()

	var results []chat.Message
	for rows.Next() {
		var m chat.Message
		if err := rows.Scan(&m.Room, &m.Author, &m.Body, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan transcript row: %w", err)
		}
		results = append(results, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transcript rows: %w", err)
	}
	return results, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
