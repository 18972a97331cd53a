// internal/db/db.go
package db

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"
)

// Connect opens the Postgres pool from DB_* env vars (or DATABASE_URL when
// set) and verifies the connection.
func Connect() (*sql.DB, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		user := os.Getenv("DB_USER")
		pass := os.Getenv("DB_PASSWORD")
		host := os.Getenv("DB_HOST")
		port := os.Getenv("DB_PORT")
		name := os.Getenv("DB_NAME")
		dsn = fmt.Sprintf(
			"postgres://%s:%s@%s:%s/%s?sslmode=disable",
			user, pass, host, port, name,
		)
	}

	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to DB: %w", err)
	}
	if err = conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}

	log.Println("✅ Connected to database")
	return conn, nil
}

// Migrate creates the schema. The partial unique index on outbound_items is
// the database-level backstop for the single-in-flight-item invariant; the
// unique index on messages.external_id is the ingestion dedup key.
func Migrate(conn *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			contact_id TEXT NOT NULL,
			contact_ref TEXT NOT NULL,
			channel_account_id TEXT NOT NULL,
			channel TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'open',
			ai_enabled BOOLEAN NOT NULL DEFAULT TRUE,
			response_counter JSONB NOT NULL DEFAULT '{}',
			lead_score JSONB NOT NULL DEFAULT '{}',
			milestone JSONB NOT NULL DEFAULT '{}',
			last_activity_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_contact
			ON conversations (channel_account_id, contact_id)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id),
			direction TEXT NOT NULL,
			external_id TEXT NOT NULL DEFAULT '',
			sender_ref TEXT NOT NULL DEFAULT '',
			text TEXT NOT NULL,
			processed BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_external_id
			ON messages (external_id) WHERE external_id <> ''`,
		`CREATE INDEX IF NOT EXISTS idx_messages_unprocessed
			ON messages (created_at) WHERE direction = 'in' AND processed = FALSE`,
		`CREATE TABLE IF NOT EXISTS outbound_items (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id),
			message_id TEXT NOT NULL UNIQUE,
			priority INT NOT NULL DEFAULT 1,
			status TEXT NOT NULL DEFAULT 'pending',
			attempts INT NOT NULL DEFAULT 0,
			max_attempts INT NOT NULL DEFAULT 3,
			scheduled_for TIMESTAMPTZ NOT NULL,
			next_attempt_at TIMESTAMPTZ,
			expires_at TIMESTAMPTZ,
			error_history JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_outbound_in_flight
			ON outbound_items (conversation_id)
			WHERE status IN ('pending', 'processing')`,
		`CREATE TABLE IF NOT EXISTS agent_config (
			id INT PRIMARY KEY DEFAULT 1,
			settings JSONB NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := conn.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
