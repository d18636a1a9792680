package ops

import (
	"context"
	"fmt"
	"strings"

	"github.com/hpungsan/arcana/internal/db"
	"github.com/hpungsan/arcana/internal/deck"
	"github.com/hpungsan/arcana/internal/errors"
)

// AddJournalInput contains parameters for the AddJournalEntry operation.
type AddJournalInput struct {
	Owner     string
	Content   string
	CardID    string // optional catalog reference
	ReadingID string // optional reference to one of the owner's readings
}

// AddJournalEntry appends an entry to the journal. Entries can't be edited afterwards.
func AddJournalEntry(ctx context.Context, d *Deps, input AddJournalInput) (*deck.JournalEntry, error) {
	trimmed := strings.TrimSpace(input.Content)
	if trimmed == "" {
		return nil, errors.NewInvalidRequest("content is required")
	}
	if err := checkLength("content", trimmed, d.cfg().JournalMaxChars); err != nil {
		return nil, err
	}

	owner := d.owner(input.Owner)
	cardID, readingID, err := resolveJournalRefs(ctx, d, owner, input.CardID, input.ReadingID)
	if err != nil {
		return nil, err
	}

	now := d.now()
	id, err := newID(now)
	if err != nil {
		return nil, err
	}

	e := &deck.JournalEntry{
		ID:        id,
		Owner:     owner,
		Content:   input.Content,
		CardID:    cardID,
		ReadingID: readingID,
		CreatedAt: now.Unix(),
	}
	if err := db.InsertJournal(ctx, d.DB, e); err != nil {
		return nil, err
	}
	return e, nil
}

// resolveJournalRefs canonicalizes the optional card id and checks both
// references point at something that exists.
func resolveJournalRefs(ctx context.Context, d *Deps, owner, cardID, readingID string) (string, string, error) {
	cardID = strings.TrimSpace(cardID)
	readingID = strings.TrimSpace(readingID)

	if cardID != "" {
		catalog, err := d.catalog()
		if err != nil {
			return "", "", err
		}
		card, ok := catalog.CardByID(cardID)
		if !ok {
			return "", "", errors.NewValidation("card_id", fmt.Sprintf("unknown card %q", cardID))
		}
		cardID = card.ID
	}

	if readingID != "" {
		_, found, err := db.GetReading(ctx, d.DB, owner, readingID)
		if err != nil {
			return "", "", err
		}
		if !found {
			return "", "", errors.NewValidation("reading_id", fmt.Sprintf("unknown reading %q", readingID))
		}
	}
	return cardID, readingID, nil
}

// ListJournalInput contains parameters for the ListJournal operation.
type ListJournalInput struct {
	Owner     string
	CardID    string // optional filter
	ReadingID string // optional filter
	Limit     int
	Offset    int
	All       bool
}

// ListJournalOutput contains the result of the ListJournal operation.
type ListJournalOutput struct {
	Items      []deck.JournalEntry `json:"items"`
	Pagination Pagination          `json:"pagination"`
	Sort       string              `json:"sort"`
}

// ListJournal returns the owner's journal entries, newest first.
func ListJournal(ctx context.Context, d *Deps, input ListJournalInput) (*ListJournalOutput, error) {
	limit, offset := clampPage(input.Limit, input.Offset, input.All)

	cardID := strings.TrimSpace(input.CardID)
	if cardID != "" {
		// Filter on the canonical id so "P13" finds entries stored as "p13".
		if catalog, err := d.catalog(); err == nil {
			if card, ok := catalog.CardByID(cardID); ok {
				cardID = card.ID
			}
		}
	}

	items, total, err := db.ListJournal(ctx, d.DB, db.JournalFilter{
		Owner:     d.owner(input.Owner),
		CardID:    cardID,
		ReadingID: strings.TrimSpace(input.ReadingID),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		return nil, err
	}

	return &ListJournalOutput{
		Items:      items,
		Pagination: buildPagination(limit, offset, len(items), total),
		Sort:       "created_desc",
	}, nil
}

// AllJournalEntries returns every journal entry of the owner, newest first.
func AllJournalEntries(ctx context.Context, d *Deps, owner string) ([]deck.JournalEntry, error) {
	out, err := ListJournal(ctx, d, ListJournalInput{Owner: owner, All: true})
	if err != nil {
		return nil, err
	}
	return out.Items, nil
}

// GetJournalInput addresses one journal entry.
type GetJournalInput struct {
	Owner string
	ID    string
}

// GetJournalEntry looks an entry up by id. An unknown id yields found=false.
func GetJournalEntry(ctx context.Context, d *Deps, input GetJournalInput) (*deck.JournalEntry, bool, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, false, errors.NewInvalidRequest("journal entry id is required")
	}
	return db.GetJournal(ctx, d.DB, d.owner(input.Owner), id)
}
