package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/arcana/internal/errors"
	"github.com/hpungsan/arcana/internal/logging"
	"github.com/hpungsan/arcana/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	deps *ops.Deps
	log  *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(deps *ops.Deps) *Handlers {
	log := deps.Logger
	if log == nil {
		log = logging.Discard()
	}
	return &Handlers{deps: deps, log: log.With("surface", "mcp")}
}

// Request types for each tool

// CardListRequest represents the arguments for card_list.
type CardListRequest struct {
	Query  string `json:"query,omitempty"`
	Arcana string `json:"arcana,omitempty"`
	Suit   string `json:"suit,omitempty"`
}

// IDRequest represents the arguments of tools that address one record.
type IDRequest struct {
	ID    string `json:"id"`
	Owner string `json:"owner,omitempty"`
}

// SpreadGetRequest represents the arguments for spread_get.
type SpreadGetRequest struct {
	ID int `json:"id"`
}

// SpreadDrawRequest represents the arguments for spread_draw.
type SpreadDrawRequest struct {
	SpreadID int    `json:"spread_id"`
	Question string `json:"question,omitempty"`
	Save     bool   `json:"save,omitempty"`
	Owner    string `json:"owner,omitempty"`
}

// OwnerRequest represents the arguments of tools that only take an owner.
type OwnerRequest struct {
	Owner string `json:"owner,omitempty"`
}

// DailyReflectRequest represents the arguments for daily_reflect.
type DailyReflectRequest struct {
	Reflection string `json:"reflection"`
	Owner      string `json:"owner,omitempty"`
}

// ReadingCreateRequest represents the arguments for reading_create.
type ReadingCreateRequest struct {
	SpreadID int                 `json:"spread_id"`
	Question string              `json:"question,omitempty"`
	Cards    []ops.CardPlacement `json:"cards"`
	Owner    string              `json:"owner,omitempty"`
}

// ReadingListRequest represents the arguments for reading_list.
type ReadingListRequest struct {
	SpreadID int    `json:"spread_id,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
	Owner    string `json:"owner,omitempty"`
}

// ReadingNotesRequest represents the arguments for reading_notes.
type ReadingNotesRequest struct {
	ID    string `json:"id"`
	Notes string `json:"notes"`
	Owner string `json:"owner,omitempty"`
}

// JournalAddRequest represents the arguments for journal_add.
type JournalAddRequest struct {
	Content   string `json:"content"`
	CardID    string `json:"card_id,omitempty"`
	ReadingID string `json:"reading_id,omitempty"`
	Owner     string `json:"owner,omitempty"`
}

// JournalListRequest represents the arguments for journal_list.
type JournalListRequest struct {
	CardID    string `json:"card_id,omitempty"`
	ReadingID string `json:"reading_id,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Offset    int    `json:"offset,omitempty"`
	Owner     string `json:"owner,omitempty"`
}

// PathRequest represents the arguments for data_export and data_import.
type PathRequest struct {
	Path  string `json:"path,omitempty"`
	Owner string `json:"owner,omitempty"`
}

// Handler implementations

// HandleCardList handles the card_list tool call.
func (h *Handlers) HandleCardList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CardListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ListCards(ctx, h.deps, ops.ListCardsInput{
		Query:  input.Query,
		Arcana: input.Arcana,
		Suit:   input.Suit,
	})
	if err != nil {
		return h.fail(ctx, "card_list", err), nil
	}

	return successResult(result)
}

// HandleCardGet handles the card_get tool call.
func (h *Handlers) HandleCardGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	card, found, err := ops.GetCard(ctx, h.deps, input.ID)
	if err != nil {
		return h.fail(ctx, "card_get", err), nil
	}
	if !found {
		return errorResult(errors.NewNotFound("card", input.ID)), nil
	}

	return successResult(card)
}

// HandleSpreadList handles the spread_list tool call.
func (h *Handlers) HandleSpreadList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	spreads, err := ops.ListSpreads(ctx, h.deps)
	if err != nil {
		return h.fail(ctx, "spread_list", err), nil
	}

	return successResult(map[string]any{"items": spreads, "count": len(spreads)})
}

// HandleSpreadGet handles the spread_get tool call.
func (h *Handlers) HandleSpreadGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SpreadGetRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	spread, found, err := ops.GetSpread(ctx, h.deps, input.ID)
	if err != nil {
		return h.fail(ctx, "spread_get", err), nil
	}
	if !found {
		return errorResult(errors.NewNotFound("spread", strconv.Itoa(input.ID))), nil
	}

	return successResult(spread)
}

// HandleSpreadDraw handles the spread_draw tool call.
func (h *Handlers) HandleSpreadDraw(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SpreadDrawRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.DrawSpread(ctx, h.deps, ops.DrawInput{
		Owner:    input.Owner,
		SpreadID: input.SpreadID,
		Question: input.Question,
		Save:     input.Save,
	})
	if err != nil {
		return h.fail(ctx, "spread_draw", err), nil
	}

	return successResult(result)
}

// HandleDailyGet handles the daily_get tool call.
func (h *Handlers) HandleDailyGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[OwnerRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.DailyCard(ctx, h.deps, ops.DailyInput{Owner: input.Owner})
	if err != nil {
		return h.fail(ctx, "daily_get", err), nil
	}

	return successResult(result)
}

// HandleDailyReflect handles the daily_reflect tool call.
func (h *Handlers) HandleDailyReflect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DailyReflectRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ReflectDaily(ctx, h.deps, ops.ReflectInput{
		Owner:      input.Owner,
		Reflection: input.Reflection,
	})
	if err != nil {
		return h.fail(ctx, "daily_reflect", err), nil
	}

	return successResult(result)
}

// HandleReadingCreate handles the reading_create tool call.
func (h *Handlers) HandleReadingCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ReadingCreateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.CreateReading(ctx, h.deps, ops.CreateReadingInput{
		Owner:    input.Owner,
		SpreadID: input.SpreadID,
		Question: input.Question,
		Cards:    input.Cards,
	})
	if err != nil {
		return h.fail(ctx, "reading_create", err), nil
	}

	return successResult(result)
}

// HandleReadingList handles the reading_list tool call.
func (h *Handlers) HandleReadingList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ReadingListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ListReadings(ctx, h.deps, ops.ListReadingsInput{
		Owner:    input.Owner,
		SpreadID: input.SpreadID,
		Limit:    input.Limit,
		Offset:   input.Offset,
	})
	if err != nil {
		return h.fail(ctx, "reading_list", err), nil
	}

	return successResult(result)
}

// HandleReadingGet handles the reading_get tool call.
func (h *Handlers) HandleReadingGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	reading, found, err := ops.GetReading(ctx, h.deps, ops.GetReadingInput{Owner: input.Owner, ID: input.ID})
	if err != nil {
		return h.fail(ctx, "reading_get", err), nil
	}
	if !found {
		return errorResult(errors.NewNotFound("reading", input.ID)), nil
	}

	return successResult(reading)
}

// HandleReadingNotes handles the reading_notes tool call.
func (h *Handlers) HandleReadingNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ReadingNotesRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.UpdateReadingNotes(ctx, h.deps, ops.UpdateNotesInput{
		Owner: input.Owner,
		ID:    input.ID,
		Notes: input.Notes,
	})
	if err != nil {
		return h.fail(ctx, "reading_notes", err), nil
	}

	return successResult(result)
}

// HandleReadingDelete handles the reading_delete tool call.
func (h *Handlers) HandleReadingDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.DeleteReading(ctx, h.deps, ops.DeleteReadingInput{Owner: input.Owner, ID: input.ID})
	if err != nil {
		return h.fail(ctx, "reading_delete", err), nil
	}

	return successResult(result)
}

// HandleJournalAdd handles the journal_add tool call.
func (h *Handlers) HandleJournalAdd(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[JournalAddRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.AddJournalEntry(ctx, h.deps, ops.AddJournalInput{
		Owner:     input.Owner,
		Content:   input.Content,
		CardID:    input.CardID,
		ReadingID: input.ReadingID,
	})
	if err != nil {
		return h.fail(ctx, "journal_add", err), nil
	}

	return successResult(result)
}

// HandleJournalList handles the journal_list tool call.
func (h *Handlers) HandleJournalList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[JournalListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ListJournal(ctx, h.deps, ops.ListJournalInput{
		Owner:     input.Owner,
		CardID:    input.CardID,
		ReadingID: input.ReadingID,
		Limit:     input.Limit,
		Offset:    input.Offset,
	})
	if err != nil {
		return h.fail(ctx, "journal_list", err), nil
	}

	return successResult(result)
}

// HandleJournalGet handles the journal_get tool call.
func (h *Handlers) HandleJournalGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	entry, found, err := ops.GetJournalEntry(ctx, h.deps, ops.GetJournalInput{Owner: input.Owner, ID: input.ID})
	if err != nil {
		return h.fail(ctx, "journal_get", err), nil
	}
	if !found {
		return errorResult(errors.NewNotFound("journal entry", input.ID)), nil
	}

	return successResult(entry)
}

// HandleDataExport handles the data_export tool call.
func (h *Handlers) HandleDataExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PathRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Export(ctx, h.deps, ops.ExportInput{Owner: input.Owner, Path: input.Path})
	if err != nil {
		return h.fail(ctx, "data_export", err), nil
	}

	return successResult(result)
}

// HandleDataImport handles the data_import tool call.
func (h *Handlers) HandleDataImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PathRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Import(ctx, h.deps, ops.ImportInput{Owner: input.Owner, Path: input.Path})
	if err != nil {
		return h.fail(ctx, "data_import", err), nil
	}

	return successResult(result)
}

// Result helpers

// fail logs server-side failures before converting err into a tool result.
// Caller mistakes are not logged above debug.
func (h *Handlers) fail(ctx context.Context, tool string, err error) *mcp.CallToolResult {
	if aErr, ok := errors.As(err); ok && aErr.Status < 500 {
		h.log.DebugContext(ctx, "tool call rejected", "tool", tool, "code", aErr.Code, "error", err)
	} else {
		h.log.ErrorContext(ctx, "tool call failed", "tool", tool, "error", err)
	}
	return errorResult(err)
}

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Storage and internal failures get a fixed message and no details so SQL
// errors and file paths never reach the client.
func errorResult(err error) *mcp.CallToolResult {
	errorObj := map[string]any{
		"code":    string(errors.ErrInternal),
		"message": "an internal error occurred",
		"status":  500,
	}

	if aErr, ok := errors.As(err); ok {
		errorObj["code"] = string(aErr.Code)
		errorObj["status"] = aErr.Status
		switch aErr.Code {
		case errors.ErrInternal:
		case errors.ErrStorage:
			errorObj["message"] = "storage unavailable, try again"
			errorObj["retryable"] = true
		default:
			errorObj["message"] = aErr.Message
			if aErr.Details != nil {
				errorObj["details"] = aErr.Details
			}
		}
	}

	content, _ := json.Marshal(map[string]any{"error": errorObj})
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
