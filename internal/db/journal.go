package db

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/hpungsan/arcana/internal/deck"
)

const journalColumns = "id, owner, content, card_id, reading_id, schema_version, created_at"

// JournalFilter selects entries for ListJournal. Owner is required.
type JournalFilter struct {
	Owner     string
	CardID    string
	ReadingID string
	Limit     int
	Offset    int

	OldestFirst bool
}

// InsertJournal appends an entry to the owner's journal.
func InsertJournal(ctx context.Context, db *sql.DB, e *deck.JournalEntry) error {
	query, args, err := sq.Insert("journal_entries").
		Columns("id", "owner", "content", "card_id", "reading_id", "schema_version", "created_at").
		Values(e.ID, e.Owner, e.Content, toNullString(e.CardID), toNullString(e.ReadingID),
			RecordSchemaVersion, e.CreatedAt).
		ToSql()
	if err != nil {
		return storageErr(ctx, "build insert journal", err)
	}

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicateID
		}
		return storageErr(ctx, "insert journal entry", err)
	}
	return nil
}

// GetJournal retrieves one of the owner's journal entries by id.
func GetJournal(ctx context.Context, db *sql.DB, owner, id string) (*deck.JournalEntry, bool, error) {
	query, args, err := sq.Select(journalColumns).
		From("journal_entries").
		Where(sq.Eq{"owner": owner, "id": id}).
		ToSql()
	if err != nil {
		return nil, false, storageErr(ctx, "build get journal", err)
	}

	e, err := scanJournal(db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, storageErr(ctx, "get journal entry", err)
	}
	return e, true, nil
}

// ListJournal returns matching entries newest first, plus the total match count.
func ListJournal(ctx context.Context, db *sql.DB, f JournalFilter) ([]deck.JournalEntry, int, error) {
	where := sq.Eq{"owner": f.Owner}
	if f.CardID != "" {
		where["card_id"] = f.CardID
	}
	if f.ReadingID != "" {
		where["reading_id"] = f.ReadingID
	}

	total, err := count(ctx, db, "journal_entries", where)
	if err != nil {
		return nil, 0, err
	}

	b := sq.Select(journalColumns).From("journal_entries").Where(where).OrderBy(seqOrder(f.OldestFirst))
	b = paginate(b, f.Limit, f.Offset)

	query, args, err := b.ToSql()
	if err != nil {
		return nil, 0, storageErr(ctx, "build list journal", err)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, storageErr(ctx, "list journal", err)
	}
	defer rows.Close()

	out := make([]deck.JournalEntry, 0)
	for rows.Next() {
		e, err := scanJournal(rows)
		if err != nil {
			return nil, 0, storageErr(ctx, "scan journal entry", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, storageErr(ctx, "list journal", err)
	}
	return out, total, nil
}

// JournalExists reports whether a journal id is taken, by any owner.
func JournalExists(ctx context.Context, db *sql.DB, id string) (bool, error) {
	return exists(ctx, db, "journal_entries", id)
}

func scanJournal(s scanner) (*deck.JournalEntry, error) {
	var (
		e         deck.JournalEntry
		cardID    sql.NullString
		readingID sql.NullString
		version   int
	)
	if err := s.Scan(&e.ID, &e.Owner, &e.Content, &cardID, &readingID, &version, &e.CreatedAt); err != nil {
		return nil, err
	}
	if version > RecordSchemaVersion {
		return nil, fmt.Errorf("%w: journal entry %s schema_version %d", ErrCorruptRecord, e.ID, version)
	}
	e.CardID = cardID.String
	e.ReadingID = readingID.String
	return &e, nil
}
