package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/acheong08/spr-behavior/pkg/models"
)

// ErrNotFound is returned when no summary has the requested id
var ErrNotFound = errors.New("summary not found")

// DB persists behavior summaries
type DB struct {
	Db *sql.DB
}

// SummaryRecord is one stored summary
type SummaryRecord struct {
	ID         string
	Collection string
	CreatedAt  time.Time
	Summary    *models.Summary
}

// Observation kinds, one per report set
const (
	KindOpened    = "opened"
	KindToAppend  = "to_append"
	KindToWrite   = "to_write"
	KindReadonly  = "readonly"
	KindCreated   = "created"
	KindFailed    = "failed"
	KindDirectory = "directory"
	KindRead      = "read"
	KindWritten   = "written"
	KindIP        = "ip"
	KindSocket    = "socket"
)

const schema = `
CREATE TABLE IF NOT EXISTS summaries (
	id TEXT PRIMARY KEY,
	collection TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	body TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS observations (
	summary_id TEXT NOT NULL REFERENCES summaries(id) ON DELETE CASCADE,
	category TEXT NOT NULL,
	kind TEXT NOT NULL,
	value TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_observations_value ON observations(value);
CREATE INDEX IF NOT EXISTS idx_observations_summary ON observations(summary_id);
`

// Open opens (creating if needed) the sqlite database at path
func Open(path string) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &DB{Db: db}, nil
}

// Close closes the database
func (db *DB) Close() error {
	return db.Db.Close()
}

// SaveSummary stores a summary and its flattened observations
func (db *DB) SaveSummary(ctx context.Context, rec *SummaryRecord) error {
	body, err := json.Marshal(rec.Summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	tx, err := db.Db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO summaries (id, collection, created_at, body) VALUES (?, ?, ?, ?)`,
		rec.ID, rec.Collection, rec.CreatedAt.UTC(), string(body)); err != nil {
		return fmt.Errorf("failed to insert summary: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO observations (summary_id, category, kind, value) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare observation insert: %w", err)
	}
	defer stmt.Close()

	for _, obs := range observations(rec.Summary) {
		if _, err := stmt.ExecContext(ctx, rec.ID, obs.category, obs.kind, obs.value); err != nil {
			return fmt.Errorf("failed to insert observation: %w", err)
		}
	}

	return tx.Commit()
}

// LoadSummary returns the summary stored under id
func (db *DB) LoadSummary(ctx context.Context, id string) (*SummaryRecord, error) {
	var (
		rec  SummaryRecord
		body string
	)
	err := db.Db.QueryRowContext(ctx,
		`SELECT id, collection, created_at, body FROM summaries WHERE id = ?`, id).
		Scan(&rec.ID, &rec.Collection, &rec.CreatedAt, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query summary: %w", err)
	}

	rec.Summary = &models.Summary{}
	if err := json.Unmarshal([]byte(body), rec.Summary); err != nil {
		return nil, fmt.Errorf("failed to parse summary: %w", err)
	}
	return &rec, nil
}

// SummariesWith returns the ids of summaries that observed value, e.g. a
// path or an endpoint, newest first
func (db *DB) SummariesWith(ctx context.Context, value string) ([]string, error) {
	rows, err := db.Db.QueryContext(ctx, `
		SELECT DISTINCT s.id FROM summaries s
		JOIN observations o ON o.summary_id = s.id
		WHERE o.value = ?
		ORDER BY s.created_at DESC, s.id`, value)
	if err != nil {
		return nil, fmt.Errorf("failed to query observations: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type observation struct {
	category, kind, value string
}

func observations(s *models.Summary) []observation {
	var out []observation
	add := func(category, kind string, values []string) {
		for _, v := range values {
			out = append(out, observation{category, kind, v})
		}
	}

	if f := s.Files; f != nil {
		add(models.KeyFiles, KindOpened, f.Opened.All)
		add(models.KeyFiles, KindToAppend, f.Opened.ToAppend)
		add(models.KeyFiles, KindToWrite, f.Opened.ToWrite)
		add(models.KeyFiles, KindReadonly, f.Opened.Readonly)
		add(models.KeyFiles, KindCreated, f.Opened.Created)
		add(models.KeyFiles, KindFailed, f.Opened.Failed)
		add(models.KeyFiles, KindDirectory, f.Directories)
		add(models.KeyFiles, KindRead, f.ReadFilenames)
		add(models.KeyFiles, KindWritten, f.WrittenFilenames)
	}
	if n := s.Network; n != nil {
		add(models.KeyNetwork, KindIP, n.ConnectedIPs)
		add(models.KeyNetwork, KindSocket, n.ConnectedSockets)
	}
	return out
}
