package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/wesm/knowledge-harvest/internal/storage"
)

// DB represents the database connection
type DB struct {
	*sql.DB
	path string
}

// New creates a new database connection
func New(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db, path: dbPath}, nil
}

// Initialize creates the database schema if it doesn't exist
func (db *DB) Initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		project TEXT NOT NULL,
		kind TEXT NOT NULL,
		document BLOB NOT NULL,
		entities INTEGER NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (project, kind)
	);
	`

	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// Load reads the snapshot document for key. A missing row is not found.
func (db *DB) Load(ctx context.Context, key storage.Key) (storage.Result, error) {
	query := `SELECT document FROM snapshots WHERE project = ? AND kind = ?`

	var document []byte
	err := db.QueryRowContext(ctx, query, key.Project, string(key.Kind)).Scan(&document)
	if err != nil {
		if err == sql.ErrNoRows {
			return storage.DecodeDocument(nil), nil
		}
		return storage.Result{}, fmt.Errorf("failed to load snapshot: %w", err)
	}

	return storage.DecodeDocument(document), nil
}

// Save replaces the snapshot document for key
func (db *DB) Save(ctx context.Context, key storage.Key, snapshot storage.Snapshot) error {
	document, err := storage.EncodeDocument(snapshot)
	if err != nil {
		return err
	}

	query := `
	INSERT INTO snapshots (project, kind, document, entities, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(project, kind) DO UPDATE SET
		document = excluded.document,
		entities = excluded.entities,
		updated_at = excluded.updated_at
	`

	_, err = db.ExecContext(ctx, query, key.Project, string(key.Kind), document, len(snapshot), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	return nil
}

// Location returns the database file and row of the snapshot for key
func (db *DB) Location(key storage.Key) string {
	return fmt.Sprintf("%s#%s", db.path, key.Path())
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
