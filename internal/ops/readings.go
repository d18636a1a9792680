package ops

import (
	"context"
	"strings"

	"github.com/hpungsan/arcana/internal/db"
	"github.com/hpungsan/arcana/internal/deck"
	"github.com/hpungsan/arcana/internal/errors"
)

// ListReadingsInput contains parameters for the ListReadings operation.
type ListReadingsInput struct {
	Owner    string
	SpreadID int // optional filter
	Limit    int // default: 20, max: 100
	Offset   int
	// All returns every matching reading and ignores Limit/Offset.
	All bool
}

// ListReadingsOutput contains the result of the ListReadings operation.
type ListReadingsOutput struct {
	Items      []deck.Reading `json:"items"`
	Pagination Pagination     `json:"pagination"`
	Sort       string         `json:"sort"`
}

// ListReadings returns the owner's readings, newest first.
func ListReadings(ctx context.Context, d *Deps, input ListReadingsInput) (*ListReadingsOutput, error) {
	if input.SpreadID < 0 {
		return nil, errors.NewInvalidRequest("spread_id must not be negative")
	}
	limit, offset := clampPage(input.Limit, input.Offset, input.All)

	items, total, err := db.ListReadings(ctx, d.DB, db.ReadingFilter{
		Owner:    d.owner(input.Owner),
		SpreadID: input.SpreadID,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		return nil, err
	}

	return &ListReadingsOutput{
		Items:      items,
		Pagination: buildPagination(limit, offset, len(items), total),
		Sort:       "created_desc",
	}, nil
}

// AllReadings returns every reading of the owner, newest first.
func AllReadings(ctx context.Context, d *Deps, owner string) ([]deck.Reading, error) {
	out, err := ListReadings(ctx, d, ListReadingsInput{Owner: owner, All: true})
	if err != nil {
		return nil, err
	}
	return out.Items, nil
}

// GetReadingInput addresses one reading.
type GetReadingInput struct {
	Owner string
	ID    string
}

// GetReading looks a reading up by id. An unknown id yields found=false.
func GetReading(ctx context.Context, d *Deps, input GetReadingInput) (*deck.Reading, bool, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, false, errors.NewInvalidRequest("reading id is required")
	}
	return db.GetReading(ctx, d.DB, d.owner(input.Owner), id)
}

// UpdateNotesInput replaces the notes on a reading.
type UpdateNotesInput struct {
	Owner string
	ID    string
	Notes string
}

// UpdateNotesOutput reports whether a reading was changed.
type UpdateNotesOutput struct {
	ID      string `json:"id"`
	Updated bool   `json:"updated"`
}

// UpdateReadingNotes replaces only the notes of one reading. An unknown id is
// reported as Updated=false, not as an error, and leaves the log untouched.
func UpdateReadingNotes(ctx context.Context, d *Deps, input UpdateNotesInput) (*UpdateNotesOutput, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, errors.NewInvalidRequest("reading id is required")
	}
	if err := checkLength("notes", input.Notes, d.cfg().JournalMaxChars); err != nil {
		return nil, err
	}

	ok, err := db.UpdateReadingNotes(ctx, d.DB, d.owner(input.Owner), id, input.Notes, d.now().Unix())
	if err != nil {
		return nil, err
	}
	return &UpdateNotesOutput{ID: id, Updated: ok}, nil
}

// DeleteReadingInput addresses the reading to remove.
type DeleteReadingInput struct {
	Owner string
	ID    string
}

// DeleteReadingOutput reports whether a reading was removed.
type DeleteReadingOutput struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

// DeleteReading removes one reading. Unknown ids report Deleted=false.
func DeleteReading(ctx context.Context, d *Deps, input DeleteReadingInput) (*DeleteReadingOutput, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, errors.NewInvalidRequest("reading id is required")
	}
	ok, err := db.DeleteReading(ctx, d.DB, d.owner(input.Owner), id)
	if err != nil {
		return nil, err
	}
	return &DeleteReadingOutput{ID: id, Deleted: ok}, nil
}
