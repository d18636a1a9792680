package db

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/hpungsan/arcana/internal/deck"
)

// ErrCorruptRecord marks a persisted row that could not be decoded.
var ErrCorruptRecord = stderrors.New("corrupt persisted record")

// GetDaily loads the owner's daily-card record.
// A row that fails to decode yields ErrCorruptRecord; callers treat it as absent.
func GetDaily(ctx context.Context, db *sql.DB, owner string) (*deck.DailyCard, bool, error) {
	var (
		recordJSON string
		version    int
	)
	err := db.QueryRowContext(ctx,
		`SELECT record_json, schema_version FROM daily_cards WHERE owner = ?`, owner,
	).Scan(&recordJSON, &version)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, storageErr(ctx, "get daily card", err)
	}

	rec, err := decodeDaily(recordJSON, version)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

func decodeDaily(recordJSON string, version int) (*deck.DailyCard, error) {
	if version > RecordSchemaVersion {
		return nil, fmt.Errorf("%w: daily card schema_version %d", ErrCorruptRecord, version)
	}
	var rec deck.DailyCard
	if err := json.Unmarshal([]byte(recordJSON), &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if rec.Date == "" || rec.Card.ID == "" {
		return nil, fmt.Errorf("%w: daily card missing date or card", ErrCorruptRecord)
	}
	if rec.Orientation != deck.Upright && rec.Orientation != deck.Reversed {
		return nil, fmt.Errorf("%w: daily card orientation %q", ErrCorruptRecord, rec.Orientation)
	}
	return &rec, nil
}

// PutDaily stores rec as the owner's single daily-card record, replacing any previous one.
func PutDaily(ctx context.Context, db *sql.DB, owner string, rec *deck.DailyCard, now int64) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return storageErr(ctx, "encode daily card", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO daily_cards (owner, date_key, record_json, schema_version, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(owner) DO UPDATE SET
			date_key = excluded.date_key,
			record_json = excluded.record_json,
			schema_version = excluded.schema_version,
			updated_at = excluded.updated_at
	`, owner, rec.Date, string(data), RecordSchemaVersion, now)
	return storageErr(ctx, "put daily card", err)
}
