package web

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/hpungsan/arcana/internal/deck"
	"github.com/hpungsan/arcana/internal/errors"
	"github.com/hpungsan/arcana/internal/ops"
	"github.com/hpungsan/arcana/internal/state"
)

// Handlers contains HTTP route handlers for the web UI. Every read and
// write goes through the facade, so pages share one cache per process.
type Handlers struct {
	facade   *state.Facade
	renderer *Renderer
}

func (h *Handlers) page(title, nav string) PageData {
	return PageData{
		Title:   title,
		Version: h.renderer.version,
		Nav:     nav,
		Saving:  h.facade.Snapshot().Saving,
	}
}

// HandleDaily handles GET /daily: today's card, drawn on first visit.
func (h *Handlers) HandleDaily(w http.ResponseWriter, r *http.Request) {
	daily, err := h.facade.Daily(r.Context())
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, daily)
		return
	}

	data := DailyPageData{
		PageData: h.page("Card of the Day", "daily"),
		Daily:    daily,
		Reversed: daily.Orientation == deck.Reversed,
	}
	if daily.Reflection != "" {
		data.ReflectionHTML = renderMarkdown(daily.Reflection)
	}
	h.renderer.renderPage(w, r, "daily", data)
}

// HandleReflect handles POST /daily/reflection: attach a reflection to today's card.
func (h *Handlers) HandleReflect(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	daily, err := h.facade.Reflect(r.Context(), r.FormValue("reflection"))
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.afterWrite(w, r, "/daily", daily)
}

// HandleCards handles GET /cards: browse and filter the catalog.
func (h *Handlers) HandleCards(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	input := ops.ListCardsInput{
		Query:  q.Get("q"),
		Arcana: q.Get("arcana"),
		Suit:   q.Get("suit"),
	}

	cards, err := h.facade.Cards(r.Context(), input)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, map[string]any{"items": cards, "count": len(cards)})
		return
	}

	h.renderer.renderPage(w, r, "cards", CardsPageData{
		PageData: h.page("Cards", "cards"),
		Cards:    cards,
		Query:    input.Query,
		Arcana:   input.Arcana,
		Suit:     input.Suit,
	})
}

// HandleCard handles GET /cards/{id}: one card and the journal entries about it.
func (h *Handlers) HandleCard(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("card ID is required"))
		return
	}

	card, found, err := h.facade.Card(r.Context(), id)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if !found {
		h.renderer.renderError(w, r, errors.NewNotFound("card", id))
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, card)
		return
	}

	entries, err := h.journalAbout(r.Context(), func(e deck.JournalEntry) bool { return e.CardID == card.ID })
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.renderPage(w, r, "card", CardPageData{
		PageData: h.page(card.Name, "cards"),
		Card:     card,
		Entries:  entries,
	})
}

// HandleSpreads handles GET /spreads: every layout.
func (h *Handlers) HandleSpreads(w http.ResponseWriter, r *http.Request) {
	spreads, err := h.facade.Spreads(r.Context())
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, map[string]any{"items": spreads, "count": len(spreads)})
		return
	}

	h.renderer.renderPage(w, r, "spreads", SpreadsPageData{
		PageData: h.page("Spreads", "spreads"),
		Spreads:  spreads,
	})
}

// HandleSpread handles GET /spreads/{id}: a layout and its draw form.
func (h *Handlers) HandleSpread(w http.ResponseWriter, r *http.Request) {
	spread, ok := h.spreadFromPath(w, r)
	if !ok {
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, spread)
		return
	}

	h.renderer.renderPage(w, r, "spread", SpreadPageData{
		PageData: h.page(spread.Name, "spreads"),
		Spread:   spread,
	})
}

// HandleDraw handles POST /spreads/{id}/draw: deal the spread, optionally saving it.
func (h *Handlers) HandleDraw(w http.ResponseWriter, r *http.Request) {
	spreadID, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("spread id must be an integer"))
		return
	}
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	question := r.FormValue("question")
	out, err := h.facade.Draw(r.Context(), spreadID, question, formBool(r, "save"))
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, out)
		return
	}

	h.renderer.renderPage(w, r, "spread", SpreadPageData{
		PageData: h.page(out.Spread.Name, "spreads"),
		Spread:   &out.Spread,
		Question: strings.TrimSpace(question),
		Drawn:    placeCards(&out.Spread, out.Cards),
		Reading:  out.Reading,
	})
}

// HandleReadings handles GET /readings: the reading log, newest first.
func (h *Handlers) HandleReadings(w http.ResponseWriter, r *http.Request) {
	readings, err := h.facade.Readings(r.Context())
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	spreadID := parseIntParam(r, "spread_id", 0)
	if spreadID > 0 {
		filtered := make([]deck.Reading, 0, len(readings))
		for _, rd := range readings {
			if rd.SpreadID == spreadID {
				filtered = append(filtered, rd)
			}
		}
		readings = filtered
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, map[string]any{"items": readings, "count": len(readings)})
		return
	}

	spreads, err := h.facade.Spreads(r.Context())
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.renderPage(w, r, "readings", ReadingsPageData{
		PageData: h.page("Readings", "readings"),
		Readings: readings,
		Spreads:  spreads,
		SpreadID: spreadID,
		Stale:    h.facade.Snapshot().Readings.Status == state.StatusStale,
	})
}

// HandleReading handles GET /readings/{id}: one reading with its notes.
func (h *Handlers) HandleReading(w http.ResponseWriter, r *http.Request) {
	reading, ok := h.readingFromPath(w, r)
	if !ok {
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, reading)
		return
	}

	spread, _, err := h.facade.Spread(r.Context(), reading.SpreadID)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	entries, err := h.journalAbout(r.Context(), func(e deck.JournalEntry) bool { return e.ReadingID == reading.ID })
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	data := ReadingPageData{
		PageData: h.page(reading.SpreadName, "readings"),
		Reading:  reading,
		Cards:    placeCards(spread, reading.Cards),
		Entries:  entries,
	}
	if reading.Notes != "" {
		data.NotesHTML = renderMarkdown(reading.Notes)
	}
	h.renderer.renderPage(w, r, "reading", data)
}

// HandleNotes handles POST /readings/{id}/notes: replace a reading's notes.
func (h *Handlers) HandleNotes(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("reading ID is required"))
		return
	}
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	updated, err := h.facade.UpdateReadingNotes(r.Context(), id, r.FormValue("notes"))
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if !updated {
		h.renderer.renderError(w, r, errors.NewNotFound("reading", id))
		return
	}

	h.afterWrite(w, r, "/readings/"+id, map[string]any{"id": id, "updated": true})
}

// HandleDeleteReading handles DELETE /readings/{id}.
func (h *Handlers) HandleDeleteReading(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("reading ID is required"))
		return
	}

	deleted, err := h.facade.DeleteReading(r.Context(), id)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if !deleted {
		h.renderer.renderError(w, r, errors.NewNotFound("reading", id))
		return
	}

	h.afterWrite(w, r, "/readings", map[string]any{"id": id, "deleted": true})
}

// HandleJournal handles GET /journal: entries newest first, with the add form.
func (h *Handlers) HandleJournal(w http.ResponseWriter, r *http.Request) {
	entries, err := h.facade.Journal(r.Context())
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, map[string]any{"items": entries, "count": len(entries)})
		return
	}

	h.renderer.renderPage(w, r, "journal", JournalPageData{
		PageData: h.page("Journal", "journal"),
		Entries:  journalItems(entries),
		Stale:    h.facade.Snapshot().Journal.Status == state.StatusStale,
	})
}

// HandleAddJournal handles POST /journal: append an entry.
func (h *Handlers) HandleAddJournal(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	entry, err := h.facade.AddJournalEntry(r.Context(),
		r.FormValue("content"), r.FormValue("card_id"), r.FormValue("reading_id"))
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	next := "/journal"
	switch {
	case entry.ReadingID != "":
		next = "/readings/" + entry.ReadingID
	case entry.CardID != "":
		next = "/cards/" + entry.CardID
	}
	if wantsJSON(r) {
		renderJSON(w, http.StatusCreated, entry)
		return
	}
	h.afterWrite(w, r, next, entry)
}

// afterWrite finishes a successful form submission: htmx gets a redirect
// header, JSON clients the result, browsers a 303 to the page to show next.
func (h *Handlers) afterWrite(w http.ResponseWriter, r *http.Request, next string, result any) {
	if isHTMX(r) {
		w.Header().Set("HX-Redirect", next)
		w.WriteHeader(http.StatusOK)
		return
	}
	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}
	http.Redirect(w, r, next, http.StatusSeeOther)
}

func (h *Handlers) spreadFromPath(w http.ResponseWriter, r *http.Request) (*deck.Spread, bool) {
	raw := r.PathValue("id")
	id, err := strconv.Atoi(raw)
	if err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("spread id must be an integer"))
		return nil, false
	}
	spread, found, err := h.facade.Spread(r.Context(), id)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return nil, false
	}
	if !found {
		h.renderer.renderError(w, r, errors.NewNotFound("spread", raw))
		return nil, false
	}
	return spread, true
}

func (h *Handlers) readingFromPath(w http.ResponseWriter, r *http.Request) (*deck.Reading, bool) {
	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("reading ID is required"))
		return nil, false
	}
	reading, found, err := h.facade.Reading(r.Context(), id)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return nil, false
	}
	if !found {
		h.renderer.renderError(w, r, errors.NewNotFound("reading", id))
		return nil, false
	}
	return reading, true
}

// journalAbout returns the cached journal entries matching keep, rendered.
func (h *Handlers) journalAbout(ctx context.Context, keep func(deck.JournalEntry) bool) ([]JournalItem, error) {
	entries, err := h.facade.Journal(ctx)
	if err != nil {
		return nil, err
	}
	matched := make([]deck.JournalEntry, 0)
	for _, e := range entries {
		if keep(e) {
			matched = append(matched, e)
		}
	}
	return journalItems(matched), nil
}

func isHTMX(r *http.Request) bool {
	return r != nil && r.Header.Get("HX-Request") == "true"
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// formBool reads a checkbox-style form value.
func formBool(r *http.Request, name string) bool {
	switch r.FormValue(name) {
	case "on", "true", "1":
		return true
	}
	return false
}
