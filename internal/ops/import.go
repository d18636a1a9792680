package ops

import (
	"bufio"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/hpungsan/arcana/internal/db"
	"github.com/hpungsan/arcana/internal/deck"
	"github.com/hpungsan/arcana/internal/errors"
)

// maxImportLine bounds a single JSONL line. Journal entries are the largest records.
const maxImportLine = 8 << 20

// ImportInput contains parameters for the Import operation.
type ImportInput struct {
	Owner string // records are imported into this owner, whatever the file says
	Path  string // required
}

// ImportOutput contains the result of the Import operation.
type ImportOutput struct {
	Imported int           `json:"imported"`
	Skipped  int           `json:"skipped"`
	Errors   []ImportError `json:"errors"`
}

// ImportError describes a line that could not be imported.
type ImportError struct {
	Line    int    `json:"line"`
	Kind    string `json:"kind,omitempty"`
	ID      string `json:"id,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Import reads an export file and appends its records to the owner's
// collections. Records whose id already exists are skipped, so importing the
// same file twice is harmless. Invalid lines are reported and skipped; a
// storage failure aborts the import.
func Import(ctx context.Context, d *Deps, input ImportInput) (*ImportOutput, error) {
	if strings.TrimSpace(input.Path) == "" {
		return nil, errors.NewInvalidRequest("path is required")
	}
	if err := ValidatePath(input.Path, PathCheckRead, d.cfg(), ExportsDir(d.BaseDir)); err != nil {
		return nil, err
	}

	file, err := openFileNoFollowRead(input.Path)
	if err != nil {
		if _, ok := errors.As(err); ok {
			return nil, err
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to open import file: %w", err))
	}
	defer file.Close()

	imp := &importer{d: d, owner: d.owner(input.Owner), out: &ImportOutput{Errors: []ImportError{}}}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxImportLine)
	lineNum := 0
	sawHeader := false

	for scanner.Scan() {
		lineNum++
		if ctx.Err() != nil {
			return nil, errors.NewCancelled("import")
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if !sawHeader {
			if err := checkHeader(line); err != nil {
				return nil, err
			}
			sawHeader = true
			continue
		}

		var record ExportRecord
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			imp.fail(lineNum, "", "", "PARSE_ERROR", fmt.Sprintf("invalid JSON: %v", err))
			continue
		}
		if err := imp.apply(ctx, lineNum, record); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		imp.fail(lineNum, "", "", "READ_ERROR", fmt.Sprintf("failed to read file: %v", err))
	}
	if !sawHeader {
		return nil, errors.NewInvalidRequest("import file is empty")
	}

	d.log().Info("import finished",
		"path", input.Path, "owner", imp.owner,
		"imported", imp.out.Imported, "skipped", imp.out.Skipped, "errors", len(imp.out.Errors))
	return imp.out, nil
}

// checkHeader accepts only Arcana export files of a known schema version.
func checkHeader(line string) error {
	var header ExportHeader
	if err := json.Unmarshal([]byte(line), &header); err != nil || !header.ArcanaExport {
		return errors.NewInvalidRequest("not an arcana export file (missing header line)")
	}
	if header.SchemaVersion != ExportSchemaVersion {
		return errors.NewInvalidRequest(fmt.Sprintf("unsupported export schema_version %q", header.SchemaVersion))
	}
	return nil
}

type importer struct {
	d     *Deps
	owner string
	out   *ImportOutput
}

func (imp *importer) fail(line int, kind, id, code, msg string) {
	imp.out.Errors = append(imp.out.Errors, ImportError{
		Line:    line,
		Kind:    kind,
		ID:      id,
		Code:    code,
		Message: msg,
	})
}

// apply imports one record. Only storage and cancellation errors are returned;
// everything else becomes a per-line ImportError.
func (imp *importer) apply(ctx context.Context, line int, record ExportRecord) error {
	var (
		id  string
		err error
	)
	switch record.Kind {
	case KindReading:
		if record.Reading == nil {
			imp.fail(line, record.Kind, "", "INVALID_RECORD", "missing reading payload")
			return nil
		}
		id = record.Reading.ID
		err = imp.reading(ctx, record.Reading)
	case KindJournal:
		if record.Journal == nil {
			imp.fail(line, record.Kind, "", "INVALID_RECORD", "missing journal payload")
			return nil
		}
		id = record.Journal.ID
		err = imp.journal(ctx, record.Journal)
	case KindDaily:
		if record.Daily == nil {
			imp.fail(line, record.Kind, "", "INVALID_RECORD", "missing daily payload")
			return nil
		}
		id = record.Daily.Date
		err = imp.daily(ctx, record.Daily)
	default:
		imp.fail(line, record.Kind, "", "INVALID_RECORD", fmt.Sprintf("unknown record kind %q", record.Kind))
		return nil
	}

	switch {
	case err == nil:
		imp.out.Imported++
	case stderrors.Is(err, errSkip) || errors.Is(err, db.ErrDuplicateID.Code):
		imp.out.Skipped++
	case errors.Is(err, errors.ErrStorage) || errors.Is(err, errors.ErrCancelled):
		return err
	default:
		code, msg := "INVALID_RECORD", err.Error()
		if aErr, ok := errors.As(err); ok {
			code, msg = string(aErr.Code), aErr.Message
		}
		imp.fail(line, record.Kind, id, code, msg)
	}
	return nil
}

// errSkip marks a record that is already present.
var errSkip = stderrors.New("already present")

func (imp *importer) reading(ctx context.Context, r *deck.Reading) error {
	id := strings.TrimSpace(r.ID)
	if id == "" {
		return errors.NewInvalidRequest("reading id is required")
	}
	exists, err := db.ReadingExists(ctx, imp.d.DB, id)
	if err != nil {
		return err
	}
	if exists {
		return errSkip
	}

	if err := checkLength("question", strings.TrimSpace(r.Question), imp.d.cfg().QuestionMaxChars); err != nil {
		return err
	}
	placements := make([]CardPlacement, len(r.Cards))
	for i, c := range r.Cards {
		placements[i] = CardPlacement{CardID: c.CardID, Orientation: string(c.Orientation)}
	}
	spread, drawn, err := resolveSpreadCards(imp.d, r.SpreadID, placements)
	if err != nil {
		return err
	}

	spreadName := r.SpreadName
	if spreadName == "" {
		spreadName = spread.Name
	}
	createdAt, updatedAt := imp.timestamps(r.CreatedAt, r.UpdatedAt)
	return db.InsertReading(ctx, imp.d.DB, &deck.Reading{
		ID:         id,
		Owner:      imp.owner,
		SpreadID:   spread.ID,
		SpreadName: spreadName,
		Question:   r.Question,
		Cards:      drawn,
		Notes:      r.Notes,
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
	})
}

func (imp *importer) journal(ctx context.Context, e *deck.JournalEntry) error {
	id := strings.TrimSpace(e.ID)
	if id == "" {
		return errors.NewInvalidRequest("journal entry id is required")
	}
	exists, err := db.JournalExists(ctx, imp.d.DB, id)
	if err != nil {
		return err
	}
	if exists {
		return errSkip
	}

	trimmed := strings.TrimSpace(e.Content)
	if trimmed == "" {
		return errors.NewInvalidRequest("content is required")
	}
	if err := checkLength("content", trimmed, imp.d.cfg().JournalMaxChars); err != nil {
		return err
	}
	cardID, readingID, err := resolveJournalRefs(ctx, imp.d, imp.owner, e.CardID, e.ReadingID)
	if err != nil {
		return err
	}

	createdAt, _ := imp.timestamps(e.CreatedAt, 0)
	return db.InsertJournal(ctx, imp.d.DB, &deck.JournalEntry{
		ID:        id,
		Owner:     imp.owner,
		Content:   e.Content,
		CardID:    cardID,
		ReadingID: readingID,
		CreatedAt: createdAt,
	})
}

// daily restores the card of the day only when the owner has none. A live
// record always wins over a backup.
func (imp *importer) daily(ctx context.Context, rec *deck.DailyCard) error {
	_, found, err := db.GetDaily(ctx, imp.d.DB, imp.owner)
	if err != nil && !stderrors.Is(err, db.ErrCorruptRecord) {
		return err
	}
	if found {
		return errSkip
	}

	if _, err := time.Parse(deck.DateLayout, rec.Date); err != nil {
		return errors.NewValidation("date", fmt.Sprintf("must be YYYY-MM-DD, got %q", rec.Date))
	}
	catalog, err := imp.d.catalog()
	if err != nil {
		return err
	}
	card, ok := catalog.CardByID(rec.Card.ID)
	if !ok {
		return errors.NewValidation("card", fmt.Sprintf("unknown card %q", rec.Card.ID))
	}
	orientation, err := deck.ParseOrientation(string(rec.Orientation))
	if err != nil {
		return errors.NewValidation("orientation", err.Error())
	}
	if err := checkLength("reflection", rec.Reflection, imp.d.cfg().JournalMaxChars); err != nil {
		return err
	}

	createdAt, _ := imp.timestamps(rec.CreatedAt, 0)
	restored := &deck.DailyCard{
		Date:        rec.Date,
		Card:        card,
		Orientation: orientation,
		Meaning:     card.MeaningFor(orientation),
		Message:     rec.Message,
		Reflection:  strings.TrimSpace(rec.Reflection),
		CreatedAt:   createdAt,
	}
	return db.PutDaily(ctx, imp.d.DB, imp.owner, restored, imp.d.now().Unix())
}

// timestamps fills missing timestamps with the current time; updated never precedes created.
func (imp *importer) timestamps(created, updated int64) (int64, int64) {
	if created <= 0 {
		created = imp.d.now().Unix()
	}
	if updated < created {
		updated = created
	}
	return created, updated
}
