// Package storage persists the moderation incident journal.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"harold-bot/model"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const incidentsSchema = `CREATE TABLE IF NOT EXISTS incidents (
	id TEXT PRIMARY KEY,
	guild_id TEXT NOT NULL,
	channel_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	status TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_incidents_guild_user ON incidents (guild_id, user_id);`

// Journal is an append-only audit log of punishment incidents. It is never
// read back to rebuild punishment state.
type Journal struct {
	db *sqlx.DB
}

// Open connects to the sqlite database at path and ensures the schema.
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := db.Exec(incidentsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create incidents table: %w", err)
	}
	return &Journal{db: db}, nil
}

// Record appends one incident.
func (j *Journal) Record(ctx context.Context, inc model.Incident) error {
	query := `INSERT INTO incidents (id, guild_id, channel_id, user_id, kind, status, detail, created_at)
			  VALUES (:id, :guild_id, :channel_id, :user_id, :kind, :status, :detail, :created_at)`
	if _, err := j.db.NamedExecContext(ctx, query, inc); err != nil {
		return fmt.Errorf("failed to insert incident: %w", err)
	}
	return nil
}

// Total is the number of incidents of one kind and status.
type Total struct {
	Kind   string `db:"kind"`
	Status string `db:"status"`
	Count  int    `db:"count"`
}

// Totals groups all incidents by kind and status.
func (j *Journal) Totals(ctx context.Context) ([]Total, error) {
	var totals []Total
	query := `SELECT kind, status, COUNT(*) AS count FROM incidents GROUP BY kind, status ORDER BY kind, status`
	if err := j.db.SelectContext(ctx, &totals, query); err != nil {
		return nil, fmt.Errorf("failed to count incidents: %w", err)
	}
	return totals, nil
}

// ForMember lists the most recent incidents of one member, newest first.
func (j *Journal) ForMember(ctx context.Context, guildID, userID string, limit int) ([]model.Incident, error) {
	var incidents []model.Incident
	query := `SELECT * FROM incidents WHERE guild_id = ? AND user_id = ? ORDER BY created_at DESC, id LIMIT ?`
	if err := j.db.SelectContext(ctx, &incidents, query, guildID, userID, limit); err != nil {
		return nil, fmt.Errorf("failed to query incidents: %w", err)
	}
	return incidents, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}
