package ops

import (
	"context"
	"strings"

	"github.com/hpungsan/arcana/internal/deck"
	"github.com/hpungsan/arcana/internal/errors"
)

// ListCardsInput filters the card catalog. Empty fields match everything.
type ListCardsInput struct {
	Query  string
	Arcana string
	Suit   string
}

// ListCardsOutput contains the matching cards in catalog order.
type ListCardsOutput struct {
	Items []deck.Card `json:"items"`
	Count int         `json:"count"`
}

// ListCards returns the catalog, optionally narrowed by text, arcana and suit.
func ListCards(_ context.Context, d *Deps, input ListCardsInput) (*ListCardsOutput, error) {
	catalog, err := d.catalog()
	if err != nil {
		return nil, err
	}
	arcana, err := deck.ParseArcana(input.Arcana)
	if err != nil {
		return nil, errors.NewValidation("arcana", err.Error())
	}
	suit, err := deck.ParseSuit(input.Suit)
	if err != nil {
		return nil, errors.NewValidation("suit", err.Error())
	}

	var cards []deck.Card
	if input.Query == "" && arcana == "" && suit == "" {
		cards = catalog.AllCards()
	} else {
		cards = catalog.Search(deck.CardFilter{Query: input.Query, Arcana: arcana, Suit: suit})
	}
	return &ListCardsOutput{Items: cards, Count: len(cards)}, nil
}

// GetCard looks a card up by id. A well-formed id that matches nothing is
// reported through found=false, not an error.
func GetCard(_ context.Context, d *Deps, id string) (*deck.Card, bool, error) {
	if strings.TrimSpace(id) == "" {
		return nil, false, errors.NewInvalidRequest("card id is required")
	}
	catalog, err := d.catalog()
	if err != nil {
		return nil, false, err
	}
	card, ok := catalog.CardByID(id)
	if !ok {
		return nil, false, nil
	}
	return &card, true, nil
}

// ListSpreads returns every spread layout in catalog order.
func ListSpreads(_ context.Context, d *Deps) ([]deck.Spread, error) {
	catalog, err := d.catalog()
	if err != nil {
		return nil, err
	}
	return catalog.AllSpreads(), nil
}

// GetSpread looks a spread up by id, with the same soft not-found as GetCard.
func GetSpread(_ context.Context, d *Deps, id int) (*deck.Spread, bool, error) {
	if id <= 0 {
		return nil, false, errors.NewInvalidRequest("spread id must be a positive integer")
	}
	catalog, err := d.catalog()
	if err != nil {
		return nil, false, err
	}
	s, ok := catalog.SpreadByID(id)
	if !ok {
		return nil, false, nil
	}
	return &s, true, nil
}
