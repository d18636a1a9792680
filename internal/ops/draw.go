package ops

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/hpungsan/arcana/internal/deck"
	"github.com/hpungsan/arcana/internal/errors"
)

// DrawInput contains parameters for the DrawSpread operation.
type DrawInput struct {
	Owner    string
	SpreadID int
	Question string
	// Save appends the draw to the reading log.
	Save bool
}

// DrawOutput is a freshly dealt spread. Reading is set only when saved.
type DrawOutput struct {
	Spread  deck.Spread      `json:"spread"`
	Cards   []deck.DrawnCard `json:"cards"`
	Reading *deck.Reading    `json:"reading,omitempty"`
}

// DrawSpread deals distinct random cards into every position of a spread,
// each reversed with the configured probability.
func DrawSpread(ctx context.Context, d *Deps, input DrawInput) (*DrawOutput, error) {
	if input.SpreadID <= 0 {
		return nil, errors.NewValidation("spread_id", "must be a positive integer")
	}
	catalog, err := d.catalog()
	if err != nil {
		return nil, err
	}
	spread, ok := catalog.SpreadByID(input.SpreadID)
	if !ok {
		return nil, errors.NewValidation("spread_id", fmt.Sprintf("unknown spread %d", input.SpreadID))
	}

	drawn, err := deck.DrawSpread(catalog.AllCards(), spread, d.rng(), d.cfg().ReadingReversed())
	if stderrors.Is(err, deck.ErrDeckTooSmall) {
		return nil, errors.NewValidation("spread_id", err.Error())
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	out := &DrawOutput{Spread: spread, Cards: drawn}
	if !input.Save {
		return out, nil
	}

	placements := make([]CardPlacement, len(drawn))
	for i, c := range drawn {
		placements[i] = CardPlacement{CardID: c.CardID, Orientation: string(c.Orientation)}
	}
	r, err := CreateReading(ctx, d, CreateReadingInput{
		Owner:    input.Owner,
		SpreadID: spread.ID,
		Question: input.Question,
		Cards:    placements,
	})
	if err != nil {
		return nil, err
	}
	out.Reading = r
	return out, nil
}
