package ops

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/hpungsan/arcana/internal/db"
	"github.com/hpungsan/arcana/internal/deck"
	"github.com/hpungsan/arcana/internal/errors"
)

// DailyInput selects whose card of the day to return.
type DailyInput struct {
	Owner string
}

// TodayKey returns the YYYY-MM-DD key for the current moment in the configured zone.
func TodayKey(d *Deps) (string, error) {
	loc, err := d.cfg().Location()
	if err != nil {
		return "", errors.NewInternal(err)
	}
	return d.now().In(loc).Format(deck.DateLayout), nil
}

// DailyCard returns today's card, drawing and persisting a new one when the
// stored record belongs to another date. Within one date every call returns
// the same record. A stored record that can't be decoded is replaced.
func DailyCard(ctx context.Context, d *Deps, input DailyInput) (*deck.DailyCard, error) {
	owner := d.owner(input.Owner)
	today, err := TodayKey(d)
	if err != nil {
		return nil, err
	}

	rec, found, err := db.GetDaily(ctx, d.DB, owner)
	switch {
	case stderrors.Is(err, db.ErrCorruptRecord):
		d.log().Warn("daily card record unreadable, regenerating",
			"owner", owner, "error", err)
	case err != nil:
		return nil, err
	case found && rec.Date == today:
		return rec, nil
	}

	catalog, err := d.catalog()
	if err != nil {
		return nil, err
	}
	cards := catalog.AllCards()
	if len(cards) == 0 {
		return nil, errors.NewInternal(stderrors.New("card catalog is empty"))
	}

	rng := d.rng()
	card := deck.PickCard(cards, rng)
	orientation := deck.Orient(rng, d.cfg().DailyReversed())
	now := d.now()

	next := &deck.DailyCard{
		Date:        today,
		Card:        card,
		Orientation: orientation,
		Meaning:     card.MeaningFor(orientation),
		Message:     deck.DailyMessage(rng),
		CreatedAt:   now.Unix(),
	}
	if err := db.PutDaily(ctx, d.DB, owner, next, now.Unix()); err != nil {
		return nil, err
	}

	d.log().Debug("daily card drawn",
		"owner", owner, "date", today, "card_id", card.ID, "orientation", orientation)
	return next, nil
}

// ReflectInput attaches a reflection to today's card.
type ReflectInput struct {
	Owner      string
	Reflection string
}

// ReflectDaily stores a reflection on today's record. Returns NOT_FOUND when
// no card has been drawn today yet.
func ReflectDaily(ctx context.Context, d *Deps, input ReflectInput) (*deck.DailyCard, error) {
	reflection := strings.TrimSpace(input.Reflection)
	if reflection == "" {
		return nil, errors.NewInvalidRequest("reflection is required")
	}
	if err := checkLength("reflection", reflection, d.cfg().JournalMaxChars); err != nil {
		return nil, err
	}

	owner := d.owner(input.Owner)
	today, err := TodayKey(d)
	if err != nil {
		return nil, err
	}

	rec, found, err := db.GetDaily(ctx, d.DB, owner)
	if err != nil && !stderrors.Is(err, db.ErrCorruptRecord) {
		return nil, err
	}
	if !found || rec.Date != today {
		return nil, errors.NewNotFound("daily card", today)
	}

	rec.Reflection = reflection
	if err := db.PutDaily(ctx, d.DB, owner, rec, d.now().Unix()); err != nil {
		return nil, err
	}
	return rec, nil
}
