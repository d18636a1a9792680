package ops

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/arcana/internal/db"
	"github.com/hpungsan/arcana/internal/deck"
	"github.com/hpungsan/arcana/internal/errors"
)

// ExportSchemaVersion is written in the header line of every export file.
const ExportSchemaVersion = "1"

// Record kinds in an export file.
const (
	KindDaily   = "daily"
	KindReading = "reading"
	KindJournal = "journal"
)

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	Owner string
	Path  string // optional, default: <base>/exports/<owner>-<timestamp>.jsonl
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	Path       string `json:"path"`
	Daily      int    `json:"daily"`
	Readings   int    `json:"readings"`
	Journal    int    `json:"journal"`
	ExportedAt int64  `json:"exported_at"`
}

// ExportHeader represents the header line in a JSONL export file.
type ExportHeader struct {
	ArcanaExport  bool   `json:"_arcana_export"`
	SchemaVersion string `json:"schema_version"`
	Owner         string `json:"owner"`
	ExportedAt    int64  `json:"exported_at"`
}

// ExportRecord is one data line. Exactly one payload matches Kind.
type ExportRecord struct {
	Kind    string             `json:"kind"`
	Daily   *deck.DailyCard    `json:"daily,omitempty"`
	Reading *deck.Reading      `json:"reading,omitempty"`
	Journal *deck.JournalEntry `json:"journal,omitempty"`
}

// Export writes the owner's daily record, readings and journal to a JSONL file.
// Readings and journal entries are written oldest first so an import appends
// them in their original order.
func Export(ctx context.Context, d *Deps, input ExportInput) (*ExportOutput, error) {
	now := d.now()
	owner := d.owner(input.Owner)
	exportsDir := ExportsDir(d.BaseDir)

	exportPath := input.Path
	if exportPath == "" {
		exportPath = defaultExportPath(exportsDir, owner, now)
	}

	// Default paths are validated too: the owner name ends up in the filename.
	if err := ValidatePath(exportPath, PathCheckWrite, d.cfg(), exportsDir); err != nil {
		return nil, err
	}

	// Gather everything before touching the filesystem so a storage error
	// never leaves a half-written export behind.
	var (
		daily    *deck.DailyCard
		hasDaily bool
		readings []deck.Reading
		entries  []deck.JournalEntry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		daily, hasDaily, err = db.GetDaily(gctx, d.DB, owner)
		if stderrors.Is(err, db.ErrCorruptRecord) {
			d.log().Warn("skipping unreadable daily card in export", "owner", owner, "error", err)
			return nil
		}
		return err
	})
	g.Go(func() error {
		var err error
		readings, _, err = db.ListReadings(gctx, d.DB, db.ReadingFilter{Owner: owner, OldestFirst: true})
		return err
	})
	g.Go(func() error {
		var err error
		entries, _, err = db.ListJournal(gctx, d.DB, db.JournalFilter{Owner: owner, OldestFirst: true})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	records := make([]any, 0, 2+len(readings)+len(entries))
	records = append(records, ExportHeader{
		ArcanaExport:  true,
		SchemaVersion: ExportSchemaVersion,
		Owner:         owner,
		ExportedAt:    now.Unix(),
	})
	out := &ExportOutput{Path: exportPath, ExportedAt: now.Unix()}
	if hasDaily {
		records = append(records, ExportRecord{Kind: KindDaily, Daily: daily})
		out.Daily = 1
	}
	for i := range readings {
		records = append(records, ExportRecord{Kind: KindReading, Reading: &readings[i]})
	}
	for i := range entries {
		records = append(records, ExportRecord{Kind: KindJournal, Journal: &entries[i]})
	}
	out.Readings = len(readings)
	out.Journal = len(entries)

	if err := writeJSONLAtomic(ctx, exportPath, records); err != nil {
		return nil, err
	}

	d.log().Info("export written",
		"path", exportPath, "readings", out.Readings, "journal", out.Journal, "daily", out.Daily)
	return out, nil
}

// writeJSONLAtomic writes one JSON document per line to a temp file and
// renames it into place, so an existing file survives any failure.
func writeJSONLAtomic(ctx context.Context, path string, lines []any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := path + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		if _, ok := errors.As(err); ok {
			return err
		}
		return errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	w := bufio.NewWriter(file)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, line := range lines {
		if ctx.Err() != nil {
			return errors.NewCancelled("export")
		}
		// Encode appends the newline.
		if err := enc.Encode(line); err != nil {
			return errors.NewInternal(err)
		}
	}
	if err := w.Flush(); err != nil {
		return errors.NewInternal(err)
	}
	if err := file.Sync(); err != nil {
		return errors.NewInternal(err)
	}

	// Close before rename (required on Windows).
	if err := file.Close(); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	// os.Rename would follow a symlinked destination.
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInvalidRequest("export path is a symlink")
	}

	if err := os.Rename(tempPath, path); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(path); statErr == nil {
				return errors.NewInvalidRequest("export destination already exists; choose a new path or delete the existing file")
			}
		}
		return errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}

	success = true
	return nil
}

// defaultExportPath builds <exportsDir>/<owner>-<timestamp>.jsonl.
func defaultExportPath(exportsDir, owner string, now time.Time) string {
	name := SanitizeForFilename(deck.Normalize(owner))
	filename := fmt.Sprintf("%s-%s.jsonl", name, now.UTC().Format("2006-01-02T150405"))
	return filepath.Join(exportsDir, filename)
}
