package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when an entity lookup misses, optionally
// scoped to the requesting owner.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a unique constraint is violated.
var ErrDuplicate = errors.New("duplicate entry")

// Store is the entity repository. All handler and relay mutations go
// through it; nothing else touches the database.
type Store struct {
	conn *sql.DB
}

// Open opens the store. The default path ":memory:" keeps every entity
// in process memory, lost on restart; a file path enables WAL-backed
// persistence without touching callers.
func Open(path string) (*Store, error) {
	memory := path == "" || path == ":memory:"

	dsn := path
	if memory {
		// Shared cache so every pooled connection sees the same data.
		dsn = "file::memory:?cache=shared"
	}

	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if memory {
		// A single connection keeps the in-memory database alive and
		// serializes mutations the way the original single-threaded
		// process did.
		conn.SetMaxOpenConns(1)
	} else {
		// WAL mode allows readers to work while a writer is writing.
		if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
		if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
			return nil, fmt.Errorf("failed to set busy timeout: %w", err)
		}
		if _, err := conn.Exec("PRAGMA synchronous=NORMAL"); err != nil {
			return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
		}

		conn.SetMaxOpenConns(25)
		conn.SetMaxIdleConns(5)
		conn.SetConnMaxLifetime(5 * time.Minute)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{conn: conn}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		email TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		display_name TEXT,
		avatar_url TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL DEFAULT 'direct',
		name TEXT NOT NULL DEFAULT '',
		pinned INTEGER NOT NULL DEFAULT 0,
		muted INTEGER NOT NULL DEFAULT 0,
		archived INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS conversation_participants (
		conversation_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'member',
		unread_count INTEGER NOT NULL DEFAULT 0,
		last_read_at TIMESTAMP,
		joined_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (conversation_id, user_id),
		FOREIGN KEY (conversation_id) REFERENCES conversations(id),
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		content TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'sent',
		edited INTEGER NOT NULL DEFAULT 0,
		deleted INTEGER NOT NULL DEFAULT 0,
		reply_to_id TEXT,
		reply_to_content TEXT,
		reply_to_sender TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (conversation_id) REFERENCES conversations(id),
		FOREIGN KEY (sender_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS reactions (
		message_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		emoji TEXT NOT NULL,
		username TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (message_id, user_id),
		FOREIGN KEY (message_id) REFERENCES messages(id)
	);

	CREATE TABLE IF NOT EXISTS attachments (
		id TEXT PRIMARY KEY,
		message_id TEXT,
		kind TEXT NOT NULL,
		url TEXT NOT NULL,
		name TEXT NOT NULL,
		size INTEGER NOT NULL DEFAULT 0,
		mime_type TEXT,
		duration INTEGER,
		width INTEGER,
		height INTEGER,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS meetings (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		date TIMESTAMP NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		attendees TEXT NOT NULL DEFAULT '[]',
		status TEXT NOT NULL DEFAULT 'scheduled',
		location TEXT,
		meeting_link TEXT,
		priority TEXT NOT NULL DEFAULT 'medium',
		created_by TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS todos (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		due_date TIMESTAMP,
		completed INTEGER NOT NULL DEFAULT 0,
		user_id TEXT NOT NULL,
		priority TEXT NOT NULL DEFAULT 'medium',
		tags TEXT NOT NULL DEFAULT '[]',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS push_subscriptions (
		endpoint TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		p256dh TEXT NOT NULL,
		auth TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		revoked_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_participants_user ON conversation_participants(user_id);
	CREATE INDEX IF NOT EXISTS idx_attachments_message ON attachments(message_id);
	CREATE INDEX IF NOT EXISTS idx_todos_user ON todos(user_id);
	CREATE INDEX IF NOT EXISTS idx_push_user ON push_subscriptions(user_id);
	`

	_, err := s.conn.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.conn.Close()
}

// Conn exposes the underlying connection for read-only diagnostics
// (the status subcommand). Mutations must go through the repository.
func (s *Store) Conn() *sql.DB {
	return s.conn
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
