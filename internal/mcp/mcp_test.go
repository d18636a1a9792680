package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/arcana/internal/config"
	"github.com/hpungsan/arcana/internal/db"
	"github.com/hpungsan/arcana/internal/errors"
	"github.com/hpungsan/arcana/internal/logging"
	"github.com/hpungsan/arcana/internal/ops"
)

type zeroRNG struct{}

func (zeroRNG) Intn(int) int { return 0 }

// testSetup creates a temporary database and deps for testing.
func testSetup(t *testing.T) *ops.Deps {
	t.Helper()

	tmpDir := t.TempDir()
	database, err := db.Init(tmpDir)
	if err != nil {
		t.Fatalf("failed to init db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"

	deps, err := ops.NewDeps(database, cfg, tmpDir, nil)
	if err != nil {
		t.Fatalf("failed to build deps: %v", err)
	}
	deps.RNG = zeroRNG{}
	deps.Now = func() time.Time { return time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC) }
	return deps
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

func threeCards() []any {
	return []any{
		map[string]any{"card_id": "m00"},
		map[string]any{"card_id": "c02", "orientation": "reversed"},
		map[string]any{"card_id": "s10", "orientation": "upright"},
	}
}

func TestHandleCardList(t *testing.T) {
	h := NewHandlers(testSetup(t))
	ctx := context.Background()

	tests := []struct {
		name      string
		args      map[string]any
		wantCount int
		wantCode  string
	}{
		{name: "whole deck", args: map[string]any{}, wantCount: 78},
		{name: "major arcana", args: map[string]any{"arcana": "major"}, wantCount: 22},
		{name: "one suit", args: map[string]any{"suit": "cups"}, wantCount: 14},
		{name: "free text", args: map[string]any{"query": "the star"}, wantCount: 1},
		{name: "unknown suit", args: map[string]any{"suit": "coins"}, wantCode: string(errors.ErrValidationFailed)},
		{name: "wrong type", args: map[string]any{"suit": 7}, wantCode: string(errors.ErrInvalidRequest)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.HandleCardList(ctx, makeRequest(tt.args))
			if err != nil {
				t.Fatalf("handler returned error: %v", err)
			}
			if tt.wantCode != "" {
				assertErrorCode(t, result, tt.wantCode)
				return
			}
			output := parseOutput(t, result)
			if got := int(output["count"].(float64)); got != tt.wantCount {
				t.Errorf("count = %d, want %d", got, tt.wantCount)
			}
		})
	}
}

func TestHandleCardGet(t *testing.T) {
	h := NewHandlers(testSetup(t))
	ctx := context.Background()

	result, err := h.HandleCardGet(ctx, makeRequest(map[string]any{"id": "M17"}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	output := parseOutput(t, result)
	if output["id"] != "m17" || output["name"] != "The Star" {
		t.Errorf("got %v / %v, want m17 / The Star", output["id"], output["name"])
	}

	result, _ = h.HandleCardGet(ctx, makeRequest(map[string]any{"id": "m99"}))
	assertErrorCode(t, result, string(errors.ErrNotFound))

	result, _ = h.HandleCardGet(ctx, makeRequest(map[string]any{}))
	assertErrorCode(t, result, string(errors.ErrInvalidRequest))
}

func TestHandleSpreads(t *testing.T) {
	h := NewHandlers(testSetup(t))
	ctx := context.Background()

	result, err := h.HandleSpreadList(ctx, makeRequest(nil))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if got := int(parseOutput(t, result)["count"].(float64)); got != 4 {
		t.Errorf("count = %d, want 4", got)
	}

	result, _ = h.HandleSpreadGet(ctx, makeRequest(map[string]any{"id": 2}))
	output := parseOutput(t, result)
	if output["name"] != "Celtic Cross" {
		t.Errorf("name = %v, want Celtic Cross", output["name"])
	}
	if positions := output["positions"].([]any); len(positions) != 10 {
		t.Errorf("positions = %d, want 10", len(positions))
	}

	result, _ = h.HandleSpreadGet(ctx, makeRequest(map[string]any{"id": 99}))
	assertErrorCode(t, result, string(errors.ErrNotFound))

	result, _ = h.HandleSpreadGet(ctx, makeRequest(map[string]any{"id": "two"}))
	assertErrorCode(t, result, string(errors.ErrInvalidRequest))
}

func TestHandleSpreadDraw(t *testing.T) {
	deps := testSetup(t)
	h := NewHandlers(deps)
	ctx := context.Background()

	result, err := h.HandleSpreadDraw(ctx, makeRequest(map[string]any{"spread_id": 1}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	output := parseOutput(t, result)
	if cards := output["cards"].([]any); len(cards) != 3 {
		t.Errorf("drew %d cards, want 3", len(cards))
	}
	if _, ok := output["reading"]; ok {
		t.Error("unsaved draw should not carry a reading")
	}

	result, _ = h.HandleSpreadDraw(ctx, makeRequest(map[string]any{"spread_id": 3, "save": true, "question": "what next?"}))
	output = parseOutput(t, result)
	reading, ok := output["reading"].(map[string]any)
	if !ok {
		t.Fatalf("saved draw should carry a reading, got %v", output)
	}
	if reading["question"] != "what next?" {
		t.Errorf("question = %v", reading["question"])
	}

	list, err := ops.AllReadings(ctx, deps, "")
	if err != nil {
		t.Fatalf("AllReadings failed: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("reading log has %d entries, want 1", len(list))
	}

	result, _ = h.HandleSpreadDraw(ctx, makeRequest(map[string]any{"spread_id": 42}))
	assertErrorCode(t, result, string(errors.ErrValidationFailed))
}

func TestHandleDaily(t *testing.T) {
	h := NewHandlers(testSetup(t))
	ctx := context.Background()

	// Reflecting before the card has been drawn today.
	result, _ := h.HandleDailyReflect(ctx, makeRequest(map[string]any{"reflection": "early"}))
	assertErrorCode(t, result, string(errors.ErrNotFound))

	result, err := h.HandleDailyGet(ctx, makeRequest(nil))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	first := parseOutput(t, result)
	if first["date"] != "2024-03-10" {
		t.Errorf("date = %v, want 2024-03-10", first["date"])
	}

	result, _ = h.HandleDailyGet(ctx, makeRequest(nil))
	second := parseOutput(t, result)
	if first["card"].(map[string]any)["id"] != second["card"].(map[string]any)["id"] {
		t.Error("daily card changed within the same day")
	}

	result, _ = h.HandleDailyReflect(ctx, makeRequest(map[string]any{"reflection": "a calm day"}))
	if parseOutput(t, result)["reflection"] != "a calm day" {
		t.Error("reflection not stored")
	}

	result, _ = h.HandleDailyGet(ctx, makeRequest(nil))
	if parseOutput(t, result)["reflection"] != "a calm day" {
		t.Error("reflection not returned by daily_get")
	}
}

func TestHandleReadingLifecycle(t *testing.T) {
	h := NewHandlers(testSetup(t))
	ctx := context.Background()

	result, err := h.HandleReadingCreate(ctx, makeRequest(map[string]any{
		"spread_id": 1,
		"question":  "career",
		"cards":     threeCards(),
	}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	created := parseOutput(t, result)
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatal("created reading has no id")
	}
	if created["spread_name"] != "Three Card Spread" {
		t.Errorf("spread_name = %v", created["spread_name"])
	}

	result, _ = h.HandleReadingList(ctx, makeRequest(map[string]any{"spread_id": 1}))
	list := parseOutput(t, result)
	if items := list["items"].([]any); len(items) != 1 {
		t.Fatalf("listed %d readings, want 1", len(items))
	}

	result, _ = h.HandleReadingNotes(ctx, makeRequest(map[string]any{"id": id, "notes": "Focus on growth"}))
	if parseOutput(t, result)["updated"] != true {
		t.Error("expected updated=true")
	}

	result, _ = h.HandleReadingNotes(ctx, makeRequest(map[string]any{"id": "01HZZZZZZZZZZZZZZZZZZZZZZZ", "notes": "x"}))
	if parseOutput(t, result)["updated"] != false {
		t.Error("expected updated=false for unknown id")
	}

	result, _ = h.HandleReadingGet(ctx, makeRequest(map[string]any{"id": id}))
	if parseOutput(t, result)["notes"] != "Focus on growth" {
		t.Error("notes not persisted")
	}

	result, _ = h.HandleReadingDelete(ctx, makeRequest(map[string]any{"id": id}))
	if parseOutput(t, result)["deleted"] != true {
		t.Error("expected deleted=true")
	}

	result, _ = h.HandleReadingGet(ctx, makeRequest(map[string]any{"id": id}))
	assertErrorCode(t, result, string(errors.ErrNotFound))
}

func TestHandleReadingCreate_Invalid(t *testing.T) {
	h := NewHandlers(testSetup(t))
	ctx := context.Background()

	tests := []struct {
		name     string
		args     map[string]any
		wantCode string
	}{
		{
			name:     "wrong card count",
			args:     map[string]any{"spread_id": 1, "cards": threeCards()[:2]},
			wantCode: string(errors.ErrValidationFailed),
		},
		{
			name:     "unknown spread",
			args:     map[string]any{"spread_id": 12, "cards": threeCards()},
			wantCode: string(errors.ErrValidationFailed),
		},
		{
			name:     "cards not a list",
			args:     map[string]any{"spread_id": 1, "cards": "m00,m01,m02"},
			wantCode: string(errors.ErrInvalidRequest),
		},
		{
			name:     "question too long",
			args:     map[string]any{"spread_id": 1, "question": strings.Repeat("?", 501), "cards": threeCards()},
			wantCode: string(errors.ErrContentTooLarge),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.HandleReadingCreate(ctx, makeRequest(tt.args))
			if err != nil {
				t.Fatalf("handler returned error: %v", err)
			}
			assertErrorCode(t, result, tt.wantCode)
		})
	}
}

func TestHandleReadingList_CancelledContextReturnsCancelled(t *testing.T) {
	h := NewHandlers(testSetup(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := h.HandleReadingList(ctx, makeRequest(nil))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	assertErrorCode(t, result, string(errors.ErrCancelled))
}

func TestHandleJournal(t *testing.T) {
	h := NewHandlers(testSetup(t))
	ctx := context.Background()

	result, _ := h.HandleReadingCreate(ctx, makeRequest(map[string]any{"spread_id": 1, "cards": threeCards()}))
	readingID := parseOutput(t, result)["id"].(string)

	result, err := h.HandleJournalAdd(ctx, makeRequest(map[string]any{"content": "about that reading", "reading_id": readingID}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	entryID := parseOutput(t, result)["id"].(string)

	result, _ = h.HandleJournalAdd(ctx, makeRequest(map[string]any{"content": "about the star", "card_id": "M17"}))
	if parseOutput(t, result)["card_id"] != "m17" {
		t.Error("card id not canonicalised")
	}

	result, _ = h.HandleJournalAdd(ctx, makeRequest(map[string]any{"content": "   "}))
	assertErrorCode(t, result, string(errors.ErrInvalidRequest))

	result, _ = h.HandleJournalAdd(ctx, makeRequest(map[string]any{"content": "x", "reading_id": "nope"}))
	assertErrorCode(t, result, string(errors.ErrValidationFailed))

	result, _ = h.HandleJournalList(ctx, makeRequest(nil))
	if items := parseOutput(t, result)["items"].([]any); len(items) != 2 {
		t.Errorf("listed %d entries, want 2", len(items))
	}

	result, _ = h.HandleJournalList(ctx, makeRequest(map[string]any{"reading_id": readingID}))
	items := parseOutput(t, result)["items"].([]any)
	if len(items) != 1 || items[0].(map[string]any)["id"] != entryID {
		t.Errorf("filtered list = %v, want only %s", items, entryID)
	}

	result, _ = h.HandleJournalGet(ctx, makeRequest(map[string]any{"id": entryID}))
	if parseOutput(t, result)["content"] != "about that reading" {
		t.Error("journal_get returned the wrong entry")
	}

	result, _ = h.HandleJournalGet(ctx, makeRequest(map[string]any{"id": "missing"}))
	assertErrorCode(t, result, string(errors.ErrNotFound))
}

func TestHandleOwnerIsolation(t *testing.T) {
	h := NewHandlers(testSetup(t))
	ctx := context.Background()

	h.HandleJournalAdd(ctx, makeRequest(map[string]any{"content": "mine", "owner": "anna"}))
	h.HandleJournalAdd(ctx, makeRequest(map[string]any{"content": "theirs", "owner": "boris"}))

	result, _ := h.HandleJournalList(ctx, makeRequest(map[string]any{"owner": "anna"}))
	items := parseOutput(t, result)["items"].([]any)
	if len(items) != 1 || items[0].(map[string]any)["content"] != "mine" {
		t.Errorf("anna sees %v", items)
	}
}

func TestHandleExportImport(t *testing.T) {
	deps := testSetup(t)
	h := NewHandlers(deps)
	ctx := context.Background()

	h.HandleDailyGet(ctx, makeRequest(nil))
	h.HandleReadingCreate(ctx, makeRequest(map[string]any{"spread_id": 1, "cards": threeCards()}))
	h.HandleJournalAdd(ctx, makeRequest(map[string]any{"content": "kept"}))

	exportPath := filepath.Join(ops.ExportsDir(deps.BaseDir), "backup.jsonl")
	exportResult, err := h.HandleDataExport(ctx, makeRequest(map[string]any{"path": exportPath}))
	if err != nil {
		t.Fatalf("export handler returned error: %v", err)
	}
	exported := parseOutput(t, exportResult)
	if exported["readings"].(float64) != 1 || exported["journal"].(float64) != 1 {
		t.Errorf("export counts = %v", exported)
	}
	if _, err := os.Stat(exportPath); os.IsNotExist(err) {
		t.Fatal("export file not created")
	}

	deps2 := testSetup(t)
	deps2.Config.AllowedPaths = []string{ops.ExportsDir(deps.BaseDir)}
	h2 := NewHandlers(deps2)

	importResult, err := h2.HandleDataImport(ctx, makeRequest(map[string]any{"path": exportPath}))
	if err != nil {
		t.Fatalf("import handler returned error: %v", err)
	}
	imported := parseOutput(t, importResult)
	if imported["imported"].(float64) != 3 {
		t.Errorf("imported = %v, want 3", imported["imported"])
	}

	result, _ := h2.HandleJournalList(ctx, makeRequest(nil))
	if items := parseOutput(t, result)["items"].([]any); len(items) != 1 {
		t.Errorf("imported journal has %d entries, want 1", len(items))
	}

	result, _ = h2.HandleDataImport(ctx, makeRequest(map[string]any{}))
	assertErrorCode(t, result, string(errors.ErrInvalidRequest))

	result, _ = h2.HandleDataExport(ctx, makeRequest(map[string]any{"path": filepath.Join(t.TempDir(), "out.jsonl")}))
	assertErrorCode(t, result, string(errors.ErrInvalidRequest))
}

func TestServerRegistration(t *testing.T) {
	s := NewServer(testSetup(t), "test")
	tools := s.ListTools()
	if tools == nil {
		t.Fatal("expected tools to be registered, got nil")
	}

	expectedTools := []string{
		"card_list",
		"card_get",
		"spread_list",
		"spread_get",
		"spread_draw",
		"daily_get",
		"daily_reflect",
		"reading_create",
		"reading_list",
		"reading_get",
		"reading_notes",
		"reading_delete",
		"journal_add",
		"journal_list",
		"journal_get",
		"data_export",
		"data_import",
	}

	if len(tools) != len(expectedTools) {
		t.Errorf("registered tool count = %d, want %d", len(tools), len(expectedTools))
	}

	for _, name := range expectedTools {
		if _, ok := tools[name]; !ok {
			t.Errorf("missing registered tool: %s", name)
		}
	}
}

func TestServerRegistration_WithDisabledTools(t *testing.T) {
	deps := testSetup(t)
	deps.Config.DisabledTools = []string{"reading_delete", "data_import", "data_import"}
	s := NewServer(deps, "test")
	tools := s.ListTools()

	if len(tools) != 15 {
		t.Errorf("registered tool count = %d, want 15", len(tools))
	}
	for _, name := range []string{"reading_delete", "data_import"} {
		if _, ok := tools[name]; ok {
			t.Errorf("disabled tool %q should not be registered", name)
		}
	}
	if _, ok := tools["reading_create"]; !ok {
		t.Error("reading_create should still be registered")
	}
}

func TestServerRegistration_WithDisabledTypes(t *testing.T) {
	deps := testSetup(t)
	deps.Config.DisabledTypes = []string{"reading", "data"}
	s := NewServer(deps, "test")
	tools := s.ListTools()

	// 17 - 5 reading tools - 2 data tools
	if len(tools) != 10 {
		t.Errorf("registered tool count = %d, want 10", len(tools))
	}
	for name := range tools {
		if typ := GetTypeForTool(name); typ == "reading" || typ == "data" {
			t.Errorf("tool %q of a disabled type is registered", name)
		}
	}
}

func TestServerRegistration_AllToolsDisabled(t *testing.T) {
	deps := testSetup(t)
	deps.Config.DisabledTools = AllToolNames()
	s := NewServer(deps, "test")

	if tools := s.ListTools(); len(tools) != 0 {
		t.Errorf("registered tool count = %d, want 0 (all disabled)", len(tools))
	}
}

func TestServerRegistration_LogsUnknownNames(t *testing.T) {
	deps := testSetup(t)
	var buf bytes.Buffer
	deps.Logger = logging.New("warn", "text", &buf)
	deps.Config.DisabledTools = []string{"card_shuffle"}
	deps.Config.DisabledTypes = []string{"tarot"}

	NewServer(deps, "test")

	out := buf.String()
	if !strings.Contains(out, "card_shuffle") || !strings.Contains(out, "tarot") {
		t.Errorf("expected warnings for unknown names, got: %s", out)
	}
}

func TestValidateDisabledTools(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		wantLen int
	}{
		{name: "all valid", input: []string{"reading_delete", "data_import"}, wantLen: 0},
		{name: "one unknown", input: []string{"reading_delete", "fake_tool"}, wantLen: 1},
		{name: "all unknown", input: []string{"foo", "bar", "baz"}, wantLen: 3},
		{name: "empty list", input: []string{}, wantLen: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unknown := ValidateDisabledTools(tt.input)
			if len(unknown) != tt.wantLen {
				t.Errorf("ValidateDisabledTools() returned %d unknown, want %d", len(unknown), tt.wantLen)
			}
		})
	}
}

func TestValidateDisabledTypes(t *testing.T) {
	if unknown := ValidateDisabledTypes(KnownTypes); len(unknown) != 0 {
		t.Errorf("known types reported unknown: %v", unknown)
	}
	if unknown := ValidateDisabledTypes([]string{"journal", "oracle"}); len(unknown) != 1 || unknown[0] != "oracle" {
		t.Errorf("unknown = %v, want [oracle]", unknown)
	}
}

func TestAllToolNames(t *testing.T) {
	names := AllToolNames()
	if len(names) != 17 {
		t.Errorf("AllToolNames() returned %d names, want 17", len(names))
	}
	if unknown := ValidateDisabledTools(names); len(unknown) != 0 {
		t.Errorf("AllToolNames() returned invalid names: %v", unknown)
	}
	for _, name := range names {
		if unknown := ValidateDisabledTypes([]string{GetTypeForTool(name)}); len(unknown) != 0 {
			t.Errorf("tool %q has unknown type prefix", name)
		}
	}
}

func TestErrorResult_InternalDoesNotExposeDetails(t *testing.T) {
	r := errorResult(errors.NewInternal(fmt.Errorf("sql error: open /tmp/secret.db: permission denied")))
	errObj := errorObject(t, r)

	if errObj["code"] != string(errors.ErrInternal) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrInternal)
	}
	if strings.Contains(errObj["message"].(string), "secret") {
		t.Errorf("message leaks internals: %v", errObj["message"])
	}
	if _, ok := errObj["details"]; ok {
		t.Fatal("expected INTERNAL errors to omit details")
	}
}

func TestErrorResult_StorageIsRetryableAndOpaque(t *testing.T) {
	r := errorResult(errors.NewStorage(fmt.Errorf("insert reading: database is locked")))
	errObj := errorObject(t, r)

	if errObj["code"] != string(errors.ErrStorage) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrStorage)
	}
	if strings.Contains(errObj["message"].(string), "locked") {
		t.Errorf("message leaks internals: %v", errObj["message"])
	}
	if errObj["retryable"] != true {
		t.Error("expected retryable=true")
	}
}

func TestErrorResult_WrappedErrorPreservesCode(t *testing.T) {
	r := errorResult(fmt.Errorf("line 3: %w", errors.NewCardCountMismatch(1, 3, 2)))
	errObj := errorObject(t, r)

	if errObj["code"] != string(errors.ErrValidationFailed) {
		t.Errorf("code=%v, want %v", errObj["code"], errors.ErrValidationFailed)
	}
	if _, ok := errObj["details"]; !ok {
		t.Error("expected validation errors to include details")
	}
}

func TestErrorResult_PlainErrorIsInternal(t *testing.T) {
	errObj := errorObject(t, errorResult(fmt.Errorf("boom")))
	if errObj["code"] != string(errors.ErrInternal) {
		t.Errorf("code=%v, want %v", errObj["code"], errors.ErrInternal)
	}
	if errObj["message"] == "boom" {
		t.Error("plain error text should not reach the client")
	}
}

// Helper functions

// parseOutput extracts and unmarshals the JSON output from an MCP result.
func parseOutput(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	if result.IsError {
		t.Fatalf("expected success, got error: %v", extractErrorMessage(result))
	}
	var output map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &output); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return output
}

func errorObject(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	if !result.IsError {
		t.Fatal("expected IsError=true")
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &payload); err != nil {
		t.Fatalf("failed to unmarshal error payload: %v", err)
	}
	errObj, ok := payload["error"].(map[string]any)
	if !ok {
		t.Fatalf("no error object in payload: %v", payload)
	}
	return errObj
}

func assertErrorCode(t *testing.T, result *mcp.CallToolResult, expectedCode string) {
	t.Helper()
	if got := errorObject(t, result)["code"]; got != expectedCode {
		t.Errorf("got error code %v, want %q", got, expectedCode)
	}
}

func extractErrorMessage(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return "<no content>"
	}

	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return "<not text content>"
	}

	return text.Text
}
