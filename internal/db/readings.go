package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/hpungsan/arcana/internal/deck"
)

const readingColumns = "id, owner, spread_id, spread_name, question, cards_json, notes, schema_version, created_at, updated_at"

// ReadingFilter selects readings for ListReadings. Owner is required.
// Limit <= 0 means no limit.
type ReadingFilter struct {
	Owner    string
	SpreadID int
	Limit    int
	Offset   int

	// OldestFirst reverses the default newest-first order (used by export).
	OldestFirst bool
}

// InsertReading appends a reading to the owner's log.
func InsertReading(ctx context.Context, db *sql.DB, r *deck.Reading) error {
	cardsJSON, err := json.Marshal(r.Cards)
	if err != nil {
		return storageErr(ctx, "encode reading cards", err)
	}

	query, args, err := sq.Insert("readings").
		Columns("id", "owner", "spread_id", "spread_name", "question", "cards_json",
			"notes", "schema_version", "created_at", "updated_at").
		Values(r.ID, r.Owner, r.SpreadID, r.SpreadName, toNullString(r.Question), string(cardsJSON),
			r.Notes, RecordSchemaVersion, r.CreatedAt, r.UpdatedAt).
		ToSql()
	if err != nil {
		return storageErr(ctx, "build insert reading", err)
	}

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicateID
		}
		return storageErr(ctx, "insert reading", err)
	}
	return nil
}

// GetReading retrieves one of the owner's readings by id.
func GetReading(ctx context.Context, db *sql.DB, owner, id string) (*deck.Reading, bool, error) {
	query, args, err := sq.Select(readingColumns).
		From("readings").
		Where(sq.Eq{"owner": owner, "id": id}).
		ToSql()
	if err != nil {
		return nil, false, storageErr(ctx, "build get reading", err)
	}

	r, err := scanReading(db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, storageErr(ctx, "get reading", err)
	}
	return r, true, nil
}

// ListReadings returns matching readings newest first, plus the total match count.
func ListReadings(ctx context.Context, db *sql.DB, f ReadingFilter) ([]deck.Reading, int, error) {
	where := sq.Eq{"owner": f.Owner}
	if f.SpreadID != 0 {
		where["spread_id"] = f.SpreadID
	}

	total, err := count(ctx, db, "readings", where)
	if err != nil {
		return nil, 0, err
	}

	b := sq.Select(readingColumns).From("readings").Where(where).OrderBy(seqOrder(f.OldestFirst))
	b = paginate(b, f.Limit, f.Offset)

	query, args, err := b.ToSql()
	if err != nil {
		return nil, 0, storageErr(ctx, "build list readings", err)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, storageErr(ctx, "list readings", err)
	}
	defer rows.Close()

	out := make([]deck.Reading, 0)
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, 0, storageErr(ctx, "scan reading", err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, storageErr(ctx, "list readings", err)
	}
	return out, total, nil
}

// UpdateReadingNotes replaces the notes of one reading and bumps updated_at.
// Reports false when the owner has no reading with that id.
func UpdateReadingNotes(ctx context.Context, db *sql.DB, owner, id, notes string, now int64) (bool, error) {
	query, args, err := sq.Update("readings").
		Set("notes", notes).
		Set("updated_at", now).
		Where(sq.Eq{"owner": owner, "id": id}).
		ToSql()
	if err != nil {
		return false, storageErr(ctx, "build update notes", err)
	}
	return execAffected(ctx, db, "update reading notes", query, args)
}

// DeleteReading removes one reading. Reports false when nothing matched.
func DeleteReading(ctx context.Context, db *sql.DB, owner, id string) (bool, error) {
	query, args, err := sq.Delete("readings").
		Where(sq.Eq{"owner": owner, "id": id}).
		ToSql()
	if err != nil {
		return false, storageErr(ctx, "build delete reading", err)
	}
	return execAffected(ctx, db, "delete reading", query, args)
}

// ReadingExists reports whether a reading id is taken, by any owner.
func ReadingExists(ctx context.Context, db *sql.DB, id string) (bool, error) {
	return exists(ctx, db, "readings", id)
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanReading(s scanner) (*deck.Reading, error) {
	var (
		r         deck.Reading
		question  sql.NullString
		cardsJSON string
		version   int
	)
	err := s.Scan(&r.ID, &r.Owner, &r.SpreadID, &r.SpreadName, &question, &cardsJSON,
		&r.Notes, &version, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if version > RecordSchemaVersion {
		return nil, fmt.Errorf("%w: reading %s schema_version %d", ErrCorruptRecord, r.ID, version)
	}
	r.Question = question.String
	if err := json.Unmarshal([]byte(cardsJSON), &r.Cards); err != nil {
		return nil, fmt.Errorf("%w: reading %s cards: %v", ErrCorruptRecord, r.ID, err)
	}
	return &r, nil
}

func count(ctx context.Context, db *sql.DB, table string, where sq.Sqlizer) (int, error) {
	query, args, err := sq.Select("COUNT(*)").From(table).Where(where).ToSql()
	if err != nil {
		return 0, storageErr(ctx, "build count", err)
	}
	var n int
	if err := db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, storageErr(ctx, "count "+table, err)
	}
	return n, nil
}

func exists(ctx context.Context, db *sql.DB, table, id string) (bool, error) {
	query, args, err := sq.Select("1").From(table).Where(sq.Eq{"id": id}).Limit(1).ToSql()
	if err != nil {
		return false, storageErr(ctx, "build exists", err)
	}
	var one int
	err = db.QueryRowContext(ctx, query, args...).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, storageErr(ctx, "check "+table, err)
	}
	return true, nil
}

func execAffected(ctx context.Context, db *sql.DB, op, query string, args []any) (bool, error) {
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, storageErr(ctx, op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, storageErr(ctx, op, err)
	}
	return n > 0, nil
}

func seqOrder(oldestFirst bool) string {
	if oldestFirst {
		return "seq ASC"
	}
	return "seq DESC"
}

func paginate(b sq.SelectBuilder, limit, offset int) sq.SelectBuilder {
	if limit > 0 {
		b = b.Limit(uint64(limit))
		if offset > 0 {
			b = b.Offset(uint64(offset))
		}
	}
	return b
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// toNullString stores empty optional text as NULL.
func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
