package ops

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/hpungsan/arcana/internal/errors"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open export file: %v", err)
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return lines
}

func TestExport_HappyPath(t *testing.T) {
	d, _ := newTestDeps(t)
	ctx := context.Background()

	if _, err := DailyCard(ctx, d, DailyInput{}); err != nil {
		t.Fatalf("DailyCard failed: %v", err)
	}
	first, err := CreateReading(ctx, d, CreateReadingInput{SpreadID: 1, Cards: threeCards()})
	if err != nil {
		t.Fatalf("CreateReading failed: %v", err)
	}
	second, err := CreateReading(ctx, d, CreateReadingInput{SpreadID: 1, Question: "second", Cards: threeCards()})
	if err != nil {
		t.Fatalf("CreateReading failed: %v", err)
	}
	if _, err := AddJournalEntry(ctx, d, AddJournalInput{Content: "note", ReadingID: first.ID}); err != nil {
		t.Fatalf("AddJournalEntry failed: %v", err)
	}

	exportPath := filepath.Join(ExportsDir(d.BaseDir), "backup.jsonl")
	output, err := Export(ctx, d, ExportInput{Path: exportPath})
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	if output.Path != exportPath {
		t.Errorf("Path = %q, want %q", output.Path, exportPath)
	}
	if output.Daily != 1 || output.Readings != 2 || output.Journal != 1 {
		t.Errorf("counts = %d/%d/%d, want 1/2/1", output.Daily, output.Readings, output.Journal)
	}
	if output.ExportedAt != 1710061200 {
		t.Errorf("ExportedAt = %d", output.ExportedAt)
	}

	lines := readLines(t, exportPath)
	if len(lines) != 5 {
		t.Fatalf("got %d lines, want 5 (header + daily + 2 readings + 1 journal)", len(lines))
	}

	var header ExportHeader
	if err := json.Unmarshal([]byte(lines[0]), &header); err != nil {
		t.Fatalf("header is not JSON: %v", err)
	}
	if !header.ArcanaExport || header.SchemaVersion != ExportSchemaVersion || header.Owner != "local" {
		t.Errorf("header = %+v", header)
	}

	wantKinds := []string{KindDaily, KindReading, KindReading, KindJournal}
	var records []ExportRecord
	for i, line := range lines[1:] {
		var rec ExportRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("line %d is not JSON: %v", i+2, err)
		}
		if rec.Kind != wantKinds[i] {
			t.Errorf("line %d kind = %q, want %q", i+2, rec.Kind, wantKinds[i])
		}
		records = append(records, rec)
	}

	// Oldest first, so an import re-appends in the original order.
	if records[1].Reading.ID != first.ID || records[2].Reading.ID != second.ID {
		t.Errorf("readings out of order: %s, %s", records[1].Reading.ID, records[2].Reading.ID)
	}
}

func TestExport_Empty(t *testing.T) {
	d, _ := newTestDeps(t)

	exportPath := filepath.Join(ExportsDir(d.BaseDir), "empty.jsonl")
	output, err := Export(context.Background(), d, ExportInput{Path: exportPath})
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if output.Daily+output.Readings+output.Journal != 0 {
		t.Errorf("expected nothing exported, got %+v", output)
	}
	if lines := readLines(t, exportPath); len(lines) != 1 {
		t.Errorf("got %d lines, want header only", len(lines))
	}
}

func TestExport_OnlyOwnersData(t *testing.T) {
	d, _ := newTestDeps(t)
	ctx := context.Background()

	if _, err := AddJournalEntry(ctx, d, AddJournalInput{Owner: "anna", Content: "mine"}); err != nil {
		t.Fatalf("AddJournalEntry failed: %v", err)
	}
	if _, err := AddJournalEntry(ctx, d, AddJournalInput{Owner: "boris", Content: "not mine"}); err != nil {
		t.Fatalf("AddJournalEntry failed: %v", err)
	}

	output, err := Export(ctx, d, ExportInput{Owner: "anna", Path: filepath.Join(ExportsDir(d.BaseDir), "anna.jsonl")})
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if output.Journal != 1 {
		t.Errorf("Journal = %d, want 1", output.Journal)
	}
}

func TestExport_FilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not meaningful on Windows")
	}
	d, _ := newTestDeps(t)

	exportPath := filepath.Join(ExportsDir(d.BaseDir), "perm.jsonl")
	if _, err := Export(context.Background(), d, ExportInput{Path: exportPath}); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	info, err := os.Stat(exportPath)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("permissions = %o, want 0600", perm)
	}
}

func TestExport_DefaultPath(t *testing.T) {
	d, _ := newTestDeps(t)

	output, err := Export(context.Background(), d, ExportInput{Owner: "Anna Maria"})
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	want := filepath.Join(ExportsDir(d.BaseDir), "anna maria-2024-03-10T090000.jsonl")
	if output.Path != want {
		t.Errorf("Path = %q, want %q", output.Path, want)
	}
	if _, err := os.Stat(output.Path); err != nil {
		t.Errorf("export file missing: %v", err)
	}
}

func TestExport_DefaultPathSanitizesOwner(t *testing.T) {
	d, _ := newTestDeps(t)

	output, err := Export(context.Background(), d, ExportInput{Owner: "../../etc"})
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if filepath.Dir(output.Path) != ExportsDir(d.BaseDir) {
		t.Errorf("export escaped the exports dir: %q", output.Path)
	}
	if strings.Contains(filepath.Base(output.Path), "..") {
		t.Errorf("filename still contains traversal: %q", output.Path)
	}
}

func TestExport_OverwritesExisting(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("rename over an existing file is rejected on Windows")
	}
	d, _ := newTestDeps(t)

	exportPath := filepath.Join(ExportsDir(d.BaseDir), "twice.jsonl")
	if err := os.WriteFile(exportPath, []byte("old\nold\nold\n"), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := Export(context.Background(), d, ExportInput{Path: exportPath}); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if lines := readLines(t, exportPath); len(lines) != 1 {
		t.Errorf("got %d lines, want 1", len(lines))
	}

	entries, err := os.ReadDir(ExportsDir(d.BaseDir))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestExport_PathTraversalRejected(t *testing.T) {
	d, _ := newTestDeps(t)

	_, err := Export(context.Background(), d, ExportInput{Path: ExportsDir(d.BaseDir) + "/../escape.jsonl"})
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got: %v", err)
	}
}

func TestExport_RequiresJSONLExtension(t *testing.T) {
	d, _ := newTestDeps(t)

	_, err := Export(context.Background(), d, ExportInput{Path: filepath.Join(ExportsDir(d.BaseDir), "backup.json")})
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got: %v", err)
	}
}

func TestExport_OutsideAllowedDirRejected(t *testing.T) {
	d, _ := newTestDeps(t)

	_, err := Export(context.Background(), d, ExportInput{Path: filepath.Join(t.TempDir(), "backup.jsonl")})
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got: %v", err)
	}

	d.Config.AllowUnsafePaths = true
	if _, err := Export(context.Background(), d, ExportInput{Path: filepath.Join(t.TempDir(), "backup.jsonl")}); err != nil {
		t.Errorf("unsafe mode should allow any directory, got: %v", err)
	}
}
