package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/hpungsan/arcana/internal/deck"
	"github.com/hpungsan/arcana/internal/errors"
	"github.com/hpungsan/arcana/internal/state"
)

// PageData contains common fields used across all page templates.
type PageData struct {
	Title   string
	Version string
	Nav     string // active nav item: "daily", "cards", "spreads", "readings", "journal"
	Saving  bool
}

// DailyPageData is the template data for the card of the day.
type DailyPageData struct {
	PageData
	Daily          *deck.DailyCard
	Reversed       bool
	ReflectionHTML template.HTML
}

// CardsPageData is the template data for the catalog browser.
type CardsPageData struct {
	PageData
	Cards  []deck.Card
	Query  string
	Arcana string
	Suit   string
}

// CardPageData is the template data for one card.
type CardPageData struct {
	PageData
	Card    *deck.Card
	Entries []JournalItem
}

// SpreadsPageData is the template data for the spread list.
type SpreadsPageData struct {
	PageData
	Spreads []deck.Spread
}

// SpreadPageData is the template data for one spread and, after a draw, its result.
type SpreadPageData struct {
	PageData
	Spread   *deck.Spread
	Question string
	Drawn    []PlacedCard
	Reading  *deck.Reading
}

// ReadingsPageData is the template data for the reading log.
type ReadingsPageData struct {
	PageData
	Readings []deck.Reading
	Spreads  []deck.Spread
	SpreadID int
	Stale    bool
}

// ReadingPageData is the template data for one reading.
type ReadingPageData struct {
	PageData
	Reading   *deck.Reading
	Cards     []PlacedCard
	NotesHTML template.HTML
	Entries   []JournalItem
}

// JournalPageData is the template data for the journal.
type JournalPageData struct {
	PageData
	Entries []JournalItem
	Stale   bool
}

// JournalItem is a journal entry with its content rendered from markdown.
type JournalItem struct {
	deck.JournalEntry
	HTML template.HTML
}

// PlacedCard is a drawn card labelled with the spread position it fills.
type PlacedCard struct {
	Position    string
	Meaning     string
	CardID      string
	CardName    string
	Orientation deck.Orientation
}

// ErrorPageData is the template data for the error page.
type ErrorPageData struct {
	PageData
	StatusCode int
	Message    string
	Retryable  bool
}

// Renderer manages template parsing and rendering.
type Renderer struct {
	templates map[string]*template.Template
	version   string
	log       *slog.Logger
}

// NewRenderer creates a Renderer by parsing templates from the given FS.
func NewRenderer(templateFS fs.FS, version string, logger *slog.Logger) *Renderer {
	funcMap := template.FuncMap{
		"add":        func(a, b int) int { return a + b },
		"formatTime": formatTime,
		"reversed":   func(o deck.Orientation) bool { return o == deck.Reversed },
		"join":       strings.Join,
		"list":       func(items ...string) []string { return items },
	}

	layoutTmpl := template.Must(template.New("layout").Funcs(funcMap).ParseFS(templateFS, "layout.html"))

	pages := map[string]string{
		"daily":    "daily.html",
		"cards":    "cards.html",
		"card":     "card.html",
		"spreads":  "spreads.html",
		"spread":   "spread.html",
		"readings": "readings.html",
		"reading":  "reading.html",
		"journal":  "journal.html",
		"error":    "error.html",
	}

	templates := make(map[string]*template.Template, len(pages))
	for name, file := range pages {
		t := template.Must(layoutTmpl.Clone())
		template.Must(t.ParseFS(templateFS, file))
		templates[name] = t
	}

	return &Renderer{
		templates: templates,
		version:   version,
		log:       logger,
	}
}

// renderPage renders a named page template with the given data and HTTP 200 status.
func (r *Renderer) renderPage(w http.ResponseWriter, req *http.Request, name string, data any) {
	r.renderPageStatus(w, req, http.StatusOK, name, data)
}

// renderPageStatus renders a named page template with the given data and HTTP status code.
// For HTMX requests, only the "content" block is rendered to avoid duplicating the layout.
func (r *Renderer) renderPageStatus(w http.ResponseWriter, req *http.Request, status int, name string, data any) {
	block := "layout"
	if isHTMX(req) {
		block = "content"
	}
	r.renderBlock(w, req, status, name, block, data)
}

// renderBlock renders a specific named block from a page template.
func (r *Renderer) renderBlock(w http.ResponseWriter, req *http.Request, status int, page, block string, data any) {
	t, ok := r.templates[page]
	if !ok {
		r.log.ErrorContext(req.Context(), "template not found",
			"template", page, "request_id", RequestIDFrom(req.Context()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, block, data); err != nil {
		r.log.ErrorContext(req.Context(), "template execution failed",
			"template", page, "block", block, "error", err, "request_id", RequestIDFrom(req.Context()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// failureOf turns any handler error into what may be shown to the user.
// Facade failures already carry a safe message; bare errors from request
// parsing are caller mistakes and keep theirs.
func failureOf(err error) (status int, code, message string, retryable bool) {
	if f, ok := state.AsFailure(err); ok {
		return f.Status, string(f.Code), f.Message, f.Retryable
	}
	if aErr, ok := errors.As(err); ok && aErr.Status < 500 {
		return aErr.Status, string(aErr.Code), aErr.Message, false
	}
	return http.StatusInternalServerError, string(errors.ErrInternal), "Something went wrong. Please try again.", false
}

// renderError renders an error response with content negotiation.
func (r *Renderer) renderError(w http.ResponseWriter, req *http.Request, err error) {
	status, code, message, retryable := failureOf(err)

	// HTMX request: return HTML fragment
	if isHTMX(req) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		fmt.Fprintf(w, `<div class="error-message">%s</div>`, template.HTMLEscapeString(message))
		return
	}

	if wantsJSON(req) {
		renderJSON(w, status, map[string]any{
			"error": map[string]any{
				"code":      code,
				"message":   message,
				"status":    status,
				"retryable": retryable,
			},
		})
		return
	}

	r.renderPageStatus(w, req, status, "error", ErrorPageData{
		PageData: PageData{
			Title:   fmt.Sprintf("Error %d", status),
			Version: r.version,
		},
		StatusCode: status,
		Message:    message,
		Retryable:  retryable,
	})
}

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// renderMarkdown converts markdown text to HTML using goldmark. Raw HTML in
// the source is dropped by goldmark's default renderer.
func renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}

// formatTime formats a Unix timestamp as "2006-01-02 15:04" UTC.
func formatTime(unix int64) string {
	return time.Unix(unix, 0).UTC().Format("2006-01-02 15:04")
}

// placeCards labels drawn cards with their spread position. Positions the
// spread no longer has fall back to a numbered label.
func placeCards(spread *deck.Spread, cards []deck.DrawnCard) []PlacedCard {
	placed := make([]PlacedCard, len(cards))
	for i, c := range cards {
		p := PlacedCard{
			Position:    fmt.Sprintf("Position %d", c.Position),
			CardID:      c.CardID,
			CardName:    c.CardName,
			Orientation: c.Orientation,
		}
		if spread != nil && c.Position >= 1 && c.Position <= len(spread.Positions) {
			pos := spread.Positions[c.Position-1]
			p.Position = pos.Name
			p.Meaning = pos.Description
		}
		if p.CardName == "" {
			p.CardName = c.CardID
		}
		placed[i] = p
	}
	return placed
}

func journalItems(entries []deck.JournalEntry) []JournalItem {
	items := make([]JournalItem, len(entries))
	for i, e := range entries {
		items[i] = JournalItem{JournalEntry: e, HTML: renderMarkdown(e.Content)}
	}
	return items
}

