// internal/game/uno/deck.go
package uno

import (
	"github.com/google/uuid"
	"github.com/jason-s-yu/gamehub/internal/game"
)

// Color of a card. Wild cards are black until played.
type Color string

const (
	Red    Color = "red"
	Yellow Color = "yellow"
	Green  Color = "green"
	Blue   Color = "blue"
	Black  Color = "black"
)

// Colors are the four playable colors.
var Colors = []Color{Red, Yellow, Green, Blue}

// Value is the face of a card.
type Value string

const (
	Skip         Value = "skip"
	Reverse      Value = "reverse"
	DrawTwo      Value = "draw-two"
	Wild         Value = "wild"
	WildDrawFour Value = "wild-draw-four"
)

var numbers = []Value{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9"}
var actions = []Value{Skip, Reverse, DrawTwo}

// Card is one physical card. ID tells apart the two copies of a face.
type Card struct {
	ID    string `json:"id"`
	Color Color  `json:"color"`
	Value Value  `json:"value"`
}

func newCard(c Color, v Value) Card {
	return Card{ID: uuid.NewString(), Color: c, Value: v}
}

// NewDeck builds the standard 108-card deck, unshuffled.
func NewDeck() []Card {
	deck := make([]Card, 0, 108)
	for _, color := range Colors {
		deck = append(deck, newCard(color, "0"))
		for _, n := range numbers[1:] {
			deck = append(deck, newCard(color, n), newCard(color, n))
		}
		for _, a := range actions {
			deck = append(deck, newCard(color, a), newCard(color, a))
		}
	}
	for i := 0; i < 4; i++ {
		deck = append(deck, newCard(Black, Wild), newCard(Black, WildDrawFour))
	}
	return deck
}

// shuffle returns a shuffled copy of cards.
func shuffle(r game.Rand, cards []Card) []Card {
	out := append([]Card(nil), cards...)
	game.Shuffle(r, len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}
