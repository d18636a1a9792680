package deck

// Arcana distinguishes the 22 trump cards from the 56 suit cards.
type Arcana string

const (
	Major Arcana = "major"
	Minor Arcana = "minor"
)

// Suit is set on minor arcana cards only.
type Suit string

const (
	Wands     Suit = "wands"
	Cups      Suit = "cups"
	Swords    Suit = "swords"
	Pentacles Suit = "pentacles"
)

// Orientation represents the orientation of a drawn tarot card.
type Orientation string

const (
	Upright  Orientation = "upright"
	Reversed Orientation = "reversed"
)

// Card is one entry of the bundled catalog.
type Card struct {
	// ID is the catalog code: m00..m21 for major arcana, then a suit letter
	// (w, c, s, p) and a rank 01..14.
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Number          int      `json:"number"`
	Arcana          Arcana   `json:"arcana"`
	Suit            Suit     `json:"suit,omitempty"`
	Description     string   `json:"description"`
	UprightMeaning  string   `json:"upright_meaning"`
	ReversedMeaning string   `json:"reversed_meaning"`
	Keywords        []string `json:"keywords"`
	Element         string   `json:"element"`
	Image           string   `json:"image"`
}

// MeaningFor returns the meaning that applies to the given orientation.
func (c Card) MeaningFor(o Orientation) string {
	if o == Reversed {
		return c.ReversedMeaning
	}
	return c.UprightMeaning
}

// Position is one slot of a spread.
type Position struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Spread is a fixed layout of positions. Its card count is len(Positions).
type Spread struct {
	ID          int        `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Difficulty  string     `json:"difficulty,omitempty"`
	Positions   []Position `json:"positions"`
}

// CardCount is the number of cards a reading of this spread holds.
func (s Spread) CardCount() int {
	return len(s.Positions)
}

// DrawnCard places a card, with its orientation, in a spread position.
// Position is 1-based; CardName is a snapshot for display.
type DrawnCard struct {
	CardID      string      `json:"card_id"`
	CardName    string      `json:"card_name,omitempty"`
	Position    int         `json:"position"`
	Orientation Orientation `json:"orientation"`
}

// Reading is a saved spread.
type Reading struct {
	ID         string      `json:"id"`
	Owner      string      `json:"owner"`
	SpreadID   int         `json:"spread_id"`
	SpreadName string      `json:"spread_name"`
	Question   string      `json:"question,omitempty"`
	Cards      []DrawnCard `json:"cards"`
	Notes      string      `json:"notes"`
	CreatedAt  int64       `json:"created_at"`
	UpdatedAt  int64       `json:"updated_at"`
}

// JournalEntry is an immutable free-text note, optionally tied to a card or reading.
type JournalEntry struct {
	ID        string `json:"id"`
	Owner     string `json:"owner"`
	Content   string `json:"content"`
	CardID    string `json:"card_id,omitempty"`
	ReadingID string `json:"reading_id,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

// DailyCard is the card of the day. Date is the YYYY-MM-DD key in the
// configured time zone; at most one record exists per owner.
type DailyCard struct {
	Date        string      `json:"date"`
	Card        Card        `json:"card"`
	Orientation Orientation `json:"orientation"`
	Meaning     string      `json:"meaning"`
	Message     string      `json:"message,omitempty"`
	Reflection  string      `json:"reflection,omitempty"`
	CreatedAt   int64       `json:"created_at"`
}

// DateLayout formats daily-card date keys.
const DateLayout = "2006-01-02"
