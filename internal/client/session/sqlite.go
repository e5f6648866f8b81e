package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/mbelkin/courierdesk/internal/dbx"
)

// slotKey is the single named slot holding the serialized record. The table
// is keyed so the slot is last-writer-wins by construction.
const slotKey = "current"

// SQLiteStore keeps the session record in the client database.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Load reads and decodes the record from the slot. An empty slot yields
// (nil, nil). An undecodable or invalid value is wiped and reported as
// absent, equivalent to "not logged in".
func (s *SQLiteStore) Load(ctx context.Context) (*Record, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM session WHERE slot = ?`, slotKey).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(value, &rec); err != nil {
		_ = s.Clear(ctx)
		return nil, nil
	}
	if err := rec.Validate(); err != nil {
		_ = s.Clear(ctx)
		return nil, nil
	}
	return &rec, nil
}

// Save validates and upserts the record into the slot inside a transaction.
func (s *SQLiteStore) Save(ctx context.Context, rec *Record) error {
	if rec == nil {
		return ErrInvalidRecord
	}
	if err := rec.Validate(); err != nil {
		return err
	}

	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO session (slot, value) VALUES (?, ?)
			ON CONFLICT(slot) DO UPDATE SET value = excluded.value
		`, slotKey, value)
		if err != nil {
			return fmt.Errorf("failed to save session: %w", err)
		}
		return nil
	})
}

// Clear empties the slot. Clearing an already empty slot is not an error.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM session WHERE slot = ?`, slotKey)
	if err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
