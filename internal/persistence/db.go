// Package persistence provides SQLite-based storage for colony saves
// and the event audit log.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/lordpba/AEON/internal/engine"
	"github.com/lordpba/AEON/internal/events"
)

// ErrNoSaves is returned when no save exists yet.
var ErrNoSaves = errors.New("no saves stored")

// DB wraps a SQLite connection for save and event storage.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path, creating
// the parent directory if needed.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS saves (
		id TEXT PRIMARY KEY,
		colony TEXT NOT NULL,
		sol REAL NOT NULL,
		saved_at TEXT NOT NULL,
		document TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL,
		sol REAL NOT NULL,
		category TEXT NOT NULL,
		severity INTEGER NOT NULL,
		description TEXT NOT NULL,
		resource_deltas TEXT,
		health_deltas TEXT,
		resolved INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_saves_sol ON saves(sol);
	CREATE INDEX IF NOT EXISTS idx_events_sol ON events(sol);
	CREATE INDEX IF NOT EXISTS idx_events_category ON events(category);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveInfo is a save listing entry without the document payload.
type SaveInfo struct {
	ID      string    `db:"id" json:"id"`
	Colony  string    `db:"colony" json:"colony"`
	Sol     float64   `db:"sol" json:"sol"`
	SavedAt time.Time `db:"saved_at" json:"saved_at"`
}

// StoreSave persists a save document, keyed by its id.
func (db *DB) StoreSave(doc engine.SaveDocument) error {
	blob, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal save: %w", err)
	}
	_, err = db.conn.Exec(
		"INSERT OR REPLACE INTO saves (id, colony, sol, saved_at, document) VALUES (?, ?, ?, ?, ?)",
		doc.ID, doc.Colony, doc.Clock.Sol, doc.SavedAt.UTC().Format(time.RFC3339Nano), string(blob),
	)
	if err != nil {
		return fmt.Errorf("store save %s: %w", doc.ID, err)
	}
	return nil
}

// LoadSave loads one save document by id.
func (db *DB) LoadSave(id string) (engine.SaveDocument, error) {
	var blob string
	err := db.conn.Get(&blob, "SELECT document FROM saves WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.SaveDocument{}, fmt.Errorf("%w: id %s", ErrNoSaves, id)
	}
	if err != nil {
		return engine.SaveDocument{}, fmt.Errorf("load save %s: %w", id, err)
	}
	return decodeSave(blob)
}

// LoadLatest loads the most recently stored save document.
func (db *DB) LoadLatest() (engine.SaveDocument, error) {
	var blob string
	err := db.conn.Get(&blob, "SELECT document FROM saves ORDER BY saved_at DESC LIMIT 1")
	if errors.Is(err, sql.ErrNoRows) {
		return engine.SaveDocument{}, ErrNoSaves
	}
	if err != nil {
		return engine.SaveDocument{}, fmt.Errorf("load latest save: %w", err)
	}
	return decodeSave(blob)
}

func decodeSave(blob string) (engine.SaveDocument, error) {
	var doc engine.SaveDocument
	if err := json.Unmarshal([]byte(blob), &doc); err != nil {
		return engine.SaveDocument{}, fmt.Errorf("decode save: %w", err)
	}
	return doc, nil
}

// ListSaves returns save metadata, newest first.
func (db *DB) ListSaves(limit int) ([]SaveInfo, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.conn.Queryx(
		"SELECT id, colony, sol, saved_at FROM saves ORDER BY saved_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list saves: %w", err)
	}
	defer rows.Close()

	var out []SaveInfo
	for rows.Next() {
		var (
			info SaveInfo
			at   string
		)
		if err := rows.Scan(&info.ID, &info.Colony, &info.Sol, &at); err != nil {
			return nil, fmt.Errorf("scan save row: %w", err)
		}
		info.SavedAt, err = time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("parse saved_at %q: %w", at, err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// AppendEvents appends events to the audit log.
func (db *DB) AppendEvents(evs []events.Event) error {
	if len(evs) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(`INSERT INTO events
		(id, sol, category, severity, description, resource_deltas, health_deltas, resolved)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range evs {
		resJSON, _ := json.Marshal(e.ResourceDeltas)
		healthJSON, _ := json.Marshal(e.HealthDeltas)

		resolved := 0
		if e.Resolved {
			resolved = 1
		}

		_, err := stmt.Exec(
			e.ID, e.Sol, string(e.Category), int(e.Severity), e.Description,
			string(resJSON), string(healthJSON), resolved,
		)
		if err != nil {
			return fmt.Errorf("insert event %s: %w", e.ID, err)
		}
	}

	return tx.Commit()
}

// RecentEvents returns the most recent N audited events, oldest first.
func (db *DB) RecentEvents(limit int) ([]events.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.conn.Queryx(`SELECT id, sol, category, severity, description,
		resource_deltas, health_deltas, resolved
		FROM events ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		var (
			e                   events.Event
			category            string
			severity, resolved  int
			resJSON, healthJSON string
		)
		if err := rows.Scan(&e.ID, &e.Sol, &category, &severity, &e.Description,
			&resJSON, &healthJSON, &resolved); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		e.Category = events.Category(category)
		e.Severity = events.Severity(severity)
		e.Resolved = resolved != 0
		if resJSON != "" && resJSON != "null" {
			if err := json.Unmarshal([]byte(resJSON), &e.ResourceDeltas); err != nil {
				return nil, fmt.Errorf("decode resource deltas for %s: %w", e.ID, err)
			}
		}
		if healthJSON != "" && healthJSON != "null" {
			if err := json.Unmarshal([]byte(healthJSON), &e.HealthDeltas); err != nil {
				return nil, fmt.Errorf("decode health deltas for %s: %w", e.ID, err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse into chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// SetMeta stores a key-value pair.
func (db *DB) SetMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM meta WHERE key = ?", key)
	return value, err
}
