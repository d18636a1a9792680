package deck

import (
	"errors"
	"math/rand/v2"
)

// ErrDeckTooSmall is returned when a spread needs more cards than the deck holds.
var ErrDeckTooSmall = errors.New("spread needs more cards than the deck holds")

// RNG abstracts random number generation for deterministic testing.
type RNG interface {
	// Intn returns a non-negative random int in [0, n).
	Intn(n int) int
}

type systemRNG struct{}

func (systemRNG) Intn(n int) int { return rand.IntN(n) }

// SystemRNG returns an RNG backed by math/rand/v2's global source.
func SystemRNG() RNG {
	return systemRNG{}
}

// Orient draws an orientation: reversed with probability reversedPercent/100.
func Orient(rng RNG, reversedPercent int) Orientation {
	if reversedPercent <= 0 {
		return Upright
	}
	if reversedPercent >= 100 || rng.Intn(100) < reversedPercent {
		return Reversed
	}
	return Upright
}

// PickCard draws one card uniformly. cards must not be empty.
func PickCard(cards []Card, rng RNG) Card {
	return cards[rng.Intn(len(cards))]
}

// DrawSpread deals one distinct card into every position of s.
// The shuffle is a Fisher-Yates pass over card indices; each card then gets
// an independent orientation.
func DrawSpread(cards []Card, s Spread, rng RNG, reversedPercent int) ([]DrawnCard, error) {
	n := s.CardCount()
	if n > len(cards) {
		return nil, ErrDeckTooSmall
	}

	indices := make([]int, len(cards))
	for i := range indices {
		indices[i] = i
	}
	for i := len(indices) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		indices[i], indices[j] = indices[j], indices[i]
	}

	drawn := make([]DrawnCard, n)
	for i := range n {
		card := cards[indices[i]]
		drawn[i] = DrawnCard{
			CardID:      card.ID,
			CardName:    card.Name,
			Position:    i + 1,
			Orientation: Orient(rng, reversedPercent),
		}
	}
	return drawn, nil
}

var dailyMessages = []string{
	"Today, pay attention to your emotions and intuition.",
	"A good day for self-reflection and inner growth.",
	"Listen to your inner voice today.",
	"A good day for new beginnings and bringing ideas to life.",
	"Be careful with important decisions today.",
	"The day favours strengthening ties with the people close to you.",
	"Unexpected discoveries and insights are possible today.",
}

// DailyMessage picks the message of the day.
func DailyMessage(rng RNG) string {
	return dailyMessages[rng.Intn(len(dailyMessages))]
}
