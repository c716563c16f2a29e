package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Open opens a SQLite database with the given DSN.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return db, nil
}

// Migrate creates the schema. Statements are idempotent.
func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email VARCHAR(100) COLLATE NOCASE UNIQUE NOT NULL,
			username VARCHAR(50) COLLATE NOCASE UNIQUE NOT NULL,
			hashed_password VARCHAR(255) NOT NULL,
			avatar TEXT NOT NULL DEFAULT '/default-avatar.png',
			bio TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		// pair_key is the sorted member pair; its uniqueness is what makes
		// "at most one chat per pair" hold at the storage layer.
		`CREATE TABLE IF NOT EXISTS chats (
			id TEXT PRIMARY KEY,
			pair_key TEXT UNIQUE NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS chat_members (
			chat_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			unread INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (chat_id, user_id),
			FOREIGN KEY (chat_id) REFERENCES chats(id),
			FOREIGN KEY (user_id) REFERENCES users(id)
		);`,
		// seq preserves insertion order for messages sharing a timestamp.
		`CREATE TABLE IF NOT EXISTS messages (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT UNIQUE NOT NULL,
			chat_id TEXT NOT NULL,
			sender_id TEXT NOT NULL,
			sender_username TEXT NOT NULL,
			sender_avatar TEXT NOT NULL,
			text TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			reply_to_id TEXT,
			reply_to_text TEXT,
			reply_to_sender_id TEXT,
			reply_to_username TEXT,
			FOREIGN KEY (chat_id) REFERENCES chats(id),
			FOREIGN KEY (sender_id) REFERENCES users(id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);`,
		`CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_members_user ON chat_members(user_id);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id, created_at, seq);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	return nil
}
