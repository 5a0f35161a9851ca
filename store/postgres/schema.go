package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema creates the five tables. Message ids are 32-char hex so the
// btree order on id equals message id value order.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		mailbox    TEXT PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS labels (
		mailbox  TEXT NOT NULL,
		label_id INTEGER NOT NULL,
		name     TEXT NOT NULL,
		PRIMARY KEY (mailbox, label_id)
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		mailbox TEXT NOT NULL,
		id      CHAR(32) NOT NULL,
		row     JSONB NOT NULL,
		PRIMARY KEY (mailbox, id)
	)`,
	`CREATE TABLE IF NOT EXISTS label_index (
		mailbox  TEXT NOT NULL,
		label_id INTEGER NOT NULL,
		id       CHAR(32) NOT NULL,
		PRIMARY KEY (mailbox, label_id, id)
	)`,
	`CREATE TABLE IF NOT EXISTS label_counters (
		mailbox  TEXT NOT NULL,
		label_id INTEGER NOT NULL,
		bytes    BIGINT NOT NULL DEFAULT 0,
		messages BIGINT NOT NULL DEFAULT 0,
		unread   BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (mailbox, label_id)
	)`,
}

// EnsureSchema creates missing tables. Safe to run repeatedly.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
