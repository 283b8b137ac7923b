package ledger

import (
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Open initializes the client-local ledger database and runs migrations.
func Open(path string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run ledger migrations: %w", err)
	}

	return db, nil
}

func runMigrations(db *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS removed_messages (
            conversation_id TEXT NOT NULL,
            message_id TEXT NOT NULL,
            removed_at TIMESTAMP NOT NULL,
            PRIMARY KEY (conversation_id, message_id)
        );`,
		`CREATE TABLE IF NOT EXISTS cleared_conversations (
            conversation_id TEXT PRIMARY KEY,
            cleared_at TIMESTAMP NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS drafts (
            conversation_id TEXT PRIMARY KEY,
            body TEXT NOT NULL,
            updated_at TIMESTAMP NOT NULL
        );`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	log.Println("ledger migrations applied")
	return nil
}
