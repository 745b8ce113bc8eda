package infra

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlcipher "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/eliteGoblin/focusd/detox/internal/domain"
)

// Ensure sqlcipher driver is registered.
var _ = sqlcipher.ErrBusy

// EncryptedStore implements domain.StateStore on a SQLCipher database.
// Engine state lives in one JSON row; the history ledger is a table that
// only ever grows.
type EncryptedStore struct {
	db     *sql.DB
	dbPath string
}

// NewEncryptedStore opens (or creates) the encrypted database at dbPath.
// The key is used as the SQLCipher passphrase via PRAGMA key.
func NewEncryptedStore(dbPath string, key []byte) (*EncryptedStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, hex.EncodeToString(key))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}
	// One writer; serializes the persister and readers on one connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	s := &EncryptedStore{db: db, dbPath: dbPath}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *EncryptedStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS engine_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		payload TEXT NOT NULL,
		saved_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS lock_history (
		seq INTEGER PRIMARY KEY,
		started_at INTEGER NOT NULL,
		duration_minutes INTEGER NOT NULL,
		outcome TEXT NOT NULL DEFAULT ''
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Path returns the database file path.
func (s *EncryptedStore) Path() string {
	return s.dbPath
}

// Load returns nil when no snapshot was saved yet.
func (s *EncryptedStore) Load(ctx context.Context) (*domain.Snapshot, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM engine_state WHERE id = 1`).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read engine state: %w", err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return nil, fmt.Errorf("decode engine state: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT started_at, duration_minutes, outcome FROM lock_history ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	defer rows.Close()

	snap.History = nil
	for rows.Next() {
		var startedAt int64
		var rec domain.LockSession
		var outcome string
		if err := rows.Scan(&startedAt, &rec.DurationMinutes, &outcome); err != nil {
			return nil, err
		}
		rec.Timestamp = time.UnixMilli(startedAt)
		rec.Outcome = domain.Outcome(outcome)
		snap.History = append(snap.History, rec)
	}
	return &snap, rows.Err()
}

// Save replaces the engine state row and appends history records not yet stored.
func (s *EncryptedStore) Save(ctx context.Context, snap domain.Snapshot) error {
	history := snap.History
	snap.History = nil
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode engine state: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO engine_state (id, payload, saved_at) VALUES (1, ?, ?)`,
		string(payload), snap.SavedAt.Unix()); err != nil {
		return fmt.Errorf("write engine state: %w", err)
	}

	var stored int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM lock_history`).Scan(&stored); err != nil {
		return err
	}
	for i := stored; i < len(history); i++ {
		rec := history[i]
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO lock_history (seq, started_at, duration_minutes, outcome) VALUES (?, ?, ?, ?)`,
			i+1, rec.Timestamp.UnixMilli(), rec.DurationMinutes, string(rec.Outcome)); err != nil {
			return fmt.Errorf("append history: %w", err)
		}
	}

	return tx.Commit()
}

// Close releases the database connection.
func (s *EncryptedStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ensure EncryptedStore implements domain.StateStore.
var _ domain.StateStore = (*EncryptedStore)(nil)
