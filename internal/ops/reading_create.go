package ops

import (
	"context"
	"fmt"
	"strings"

	"github.com/hpungsan/arcana/internal/db"
	"github.com/hpungsan/arcana/internal/deck"
	"github.com/hpungsan/arcana/internal/errors"
)

// CardPlacement is one drawn card as supplied by a caller. Positions follow
// slice order.
type CardPlacement struct {
	CardID      string `json:"card_id"`
	Orientation string `json:"orientation"`
}

// CreateReadingInput contains parameters for the CreateReading operation.
type CreateReadingInput struct {
	Owner    string
	SpreadID int
	Question string
	Cards    []CardPlacement
}

// CreateReading validates the drawn cards against the spread and appends a
// new reading. The spread name is snapshotted so later catalog edits don't
// rewrite history.
func CreateReading(ctx context.Context, d *Deps, input CreateReadingInput) (*deck.Reading, error) {
	// The question is stored as typed; trimming only decides whether it's too long.
	if err := checkLength("question", strings.TrimSpace(input.Question), d.cfg().QuestionMaxChars); err != nil {
		return nil, err
	}

	spread, drawn, err := resolveSpreadCards(d, input.SpreadID, input.Cards)
	if err != nil {
		return nil, err
	}

	now := d.now()
	id, err := newID(now)
	if err != nil {
		return nil, err
	}

	r := &deck.Reading{
		ID:         id,
		Owner:      d.owner(input.Owner),
		SpreadID:   spread.ID,
		SpreadName: spread.Name,
		Question:   input.Question,
		Cards:      drawn,
		Notes:      "",
		CreatedAt:  now.Unix(),
		UpdatedAt:  now.Unix(),
	}
	if err := db.InsertReading(ctx, d.DB, r); err != nil {
		return nil, err
	}
	return r, nil
}

// resolveSpreadCards checks the spread exists, that exactly one card fills
// each position and that every card is in the catalog. A card may fill more
// than one position; only random draws deal distinct cards.
func resolveSpreadCards(d *Deps, spreadID int, cards []CardPlacement) (deck.Spread, []deck.DrawnCard, error) {
	if spreadID <= 0 {
		return deck.Spread{}, nil, errors.NewValidation("spread_id", "must be a positive integer")
	}
	catalog, err := d.catalog()
	if err != nil {
		return deck.Spread{}, nil, err
	}
	spread, ok := catalog.SpreadByID(spreadID)
	if !ok {
		return deck.Spread{}, nil, errors.NewValidation("spread_id", fmt.Sprintf("unknown spread %d", spreadID))
	}
	if len(cards) != spread.CardCount() {
		return deck.Spread{}, nil, errors.NewCardCountMismatch(spread.ID, spread.CardCount(), len(cards))
	}

	drawn := make([]deck.DrawnCard, len(cards))
	for i, p := range cards {
		field := fmt.Sprintf("cards[%d]", i)
		if strings.TrimSpace(p.CardID) == "" {
			return deck.Spread{}, nil, errors.NewValidation(field, "card_id is required")
		}
		card, ok := catalog.CardByID(p.CardID)
		if !ok {
			return deck.Spread{}, nil, errors.NewValidation(field, fmt.Sprintf("unknown card %q", p.CardID))
		}

		orientation, err := deck.ParseOrientation(p.Orientation)
		if err != nil {
			return deck.Spread{}, nil, errors.NewValidation(field, err.Error())
		}
		drawn[i] = deck.DrawnCard{
			CardID:      card.ID,
			CardName:    card.Name,
			Position:    i + 1,
			Orientation: orientation,
		}
	}
	return spread, drawn, nil
}
