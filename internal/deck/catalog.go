package deck

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

//go:embed data/*.json
var dataFS embed.FS

// Catalog is read-only reference data: the 78-card deck and the spread layouts.
// Accessors return copies, so callers can't mutate the shared catalog.
type Catalog struct {
	cards      []Card
	cardIndex  map[string]int
	spreads    []Spread
	spreadByID map[int]int
}

var (
	embeddedOnce    sync.Once
	embeddedCatalog *Catalog
	embeddedErr     error
)

// Embedded returns the catalog bundled into the binary. Parsed once.
func Embedded() (*Catalog, error) {
	embeddedOnce.Do(func() {
		var cards []Card
		var spreads []Spread
		if embeddedErr = readJSON("data/cards.json", &cards); embeddedErr != nil {
			return
		}
		if embeddedErr = readJSON("data/spreads.json", &spreads); embeddedErr != nil {
			return
		}
		embeddedCatalog, embeddedErr = NewCatalog(cards, spreads)
	})
	return embeddedCatalog, embeddedErr
}

func readJSON(name string, v any) error {
	raw, err := dataFS.ReadFile(name)
	if err != nil {
		return fmt.Errorf("read embedded %s: %w", name, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("parse embedded %s: %w", name, err)
	}
	return nil
}

// NewCatalog indexes cards and spreads. Card ids and spread ids must be
// unique and every spread needs at least one position.
func NewCatalog(cards []Card, spreads []Spread) (*Catalog, error) {
	c := &Catalog{
		cards:      cards,
		cardIndex:  make(map[string]int, len(cards)),
		spreads:    spreads,
		spreadByID: make(map[int]int, len(spreads)),
	}
	for i, card := range cards {
		id := normalizeCardID(card.ID)
		if id == "" {
			return nil, fmt.Errorf("card %d has no id", i)
		}
		if _, dup := c.cardIndex[id]; dup {
			return nil, fmt.Errorf("duplicate card id %q", card.ID)
		}
		c.cardIndex[id] = i
	}
	for i, s := range spreads {
		if len(s.Positions) == 0 {
			return nil, fmt.Errorf("spread %d has no positions", s.ID)
		}
		if _, dup := c.spreadByID[s.ID]; dup {
			return nil, fmt.Errorf("duplicate spread id %d", s.ID)
		}
		c.spreadByID[s.ID] = i
	}
	return c, nil
}

// AllCards returns every card in catalog order.
func (c *Catalog) AllCards() []Card {
	out := make([]Card, len(c.cards))
	copy(out, c.cards)
	return out
}

// CardByID looks a card up by id. Matching ignores case and surrounding space.
func (c *Catalog) CardByID(id string) (Card, bool) {
	i, ok := c.cardIndex[normalizeCardID(id)]
	if !ok {
		return Card{}, false
	}
	return c.cards[i], true
}

// AllSpreads returns every spread in catalog order.
func (c *Catalog) AllSpreads() []Spread {
	out := make([]Spread, len(c.spreads))
	copy(out, c.spreads)
	return out
}

// SpreadByID looks a spread up by id.
func (c *Catalog) SpreadByID(id int) (Spread, bool) {
	i, ok := c.spreadByID[id]
	if !ok {
		return Spread{}, false
	}
	return c.spreads[i], true
}

// CardFilter narrows Search. Zero fields match everything.
type CardFilter struct {
	// Query matches name, keywords and description (case-insensitive substring).
	Query  string
	Arcana Arcana
	Suit   Suit
}

// Search returns the cards matching f, in catalog order.
func (c *Catalog) Search(f CardFilter) []Card {
	q := Normalize(f.Query)
	out := make([]Card, 0)
	for _, card := range c.cards {
		if f.Arcana != "" && card.Arcana != f.Arcana {
			continue
		}
		if f.Suit != "" && card.Suit != f.Suit {
			continue
		}
		if q != "" && !cardMatches(card, q) {
			continue
		}
		out = append(out, card)
	}
	return out
}

func cardMatches(card Card, q string) bool {
	if strings.Contains(Normalize(card.Name), q) || strings.Contains(Normalize(card.Description), q) {
		return true
	}
	for _, kw := range card.Keywords {
		if strings.Contains(Normalize(kw), q) {
			return true
		}
	}
	return false
}

func normalizeCardID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
