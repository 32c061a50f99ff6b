// internal/game/uno/uno.go
package uno

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/jason-s-yu/gamehub/internal/game"
	"github.com/jason-s-yu/gamehub/internal/models"
)

// ID is the registry id of this game.
const ID = "uno"

// Action types.
const (
	ActionPlayCard    = "PLAY_CARD"
	ActionDrawCard    = "DRAW_CARD"
	ActionSayUno      = "SAY_UNO"
	ActionChooseColor = "CHOOSE_COLOR"
)

const handSize = 7

// Rules are the options a round was dealt with.
type Rules struct {
	TurnTimer     int  `json:"turnTimer"`
	StackPlusTwo  bool `json:"stackPlusTwo"`
	StackPlusFour bool `json:"stackPlusFour"`
}

// State is the full table. Hands are visible to the host and every guest;
// hiding them is up to the renderer.
type State struct {
	Deck                []Card                     `json:"deck"`
	DiscardPile         []Card                     `json:"discardPile"`
	PlayerHands         map[models.PlayerID][]Card `json:"playerHands"`
	PlayerOrder         []models.PlayerID          `json:"playerOrder"`
	CurrentPlayerIndex  int                        `json:"currentPlayerIndex"`
	CurrentPlayerID     models.PlayerID            `json:"currentPlayerId"`
	Direction           int                        `json:"direction"`
	Winner              models.PlayerID            `json:"winner,omitempty"`
	ActiveColor         Color                      `json:"activeColor"`
	DrawCount           int                        `json:"drawCount"`
	UnoSaid             []models.PlayerID          `json:"unoSaid"`
	AwaitingColorChoice bool                       `json:"awaitingColorChoice"`
	Options             Rules                      `json:"options"`
	DeckSize            int                        `json:"deckSize"`
}

// PlayCard is the payload of ActionPlayCard. Card.ID picks an exact copy;
// without it the first card of matching color and value is played.
// ChosenColor settles a wild right away instead of waiting for ActionChooseColor.
type PlayCard struct {
	Card        Card  `json:"card"`
	ChosenColor Color `json:"chosenColor,omitempty"`
}

// ChooseColor is the payload of ActionChooseColor.
type ChooseColor struct {
	Color Color `json:"color"`
}

// Game implements game.Module.
type Game struct {
	rand game.Rand
}

// New returns the module shuffling with r. A nil r uses game.DefaultRand.
func New(r game.Rand) *Game {
	if r == nil {
		r = game.DefaultRand
	}
	return &Game{rand: r}
}

func (g *Game) Info() game.Info {
	return game.Info{
		ID:          ID,
		DisplayName: "Uno",
		Description: "The classic card game of matching colors and numbers. Be the first to empty your hand!",
		MinPlayers:  2,
		MaxPlayers:  10,
		Options: []game.OptionSpec{
			{
				ID:      "turnTimer",
				Label:   "Turn Timer",
				Type:    game.OptionSelect,
				Default: 0,
				Choices: []game.Choice{
					{Label: "Unlimited", Value: 0},
					{Label: "15 Seconds", Value: 15},
					{Label: "30 Seconds", Value: 30},
					{Label: "60 Seconds", Value: 60},
				},
			},
			{ID: "stackPlusTwo", Label: "Stack +2 Cards", Type: game.OptionBoolean, Default: true},
			{ID: "stackPlusFour", Label: "Stack +4 Cards", Type: game.OptionBoolean, Default: true},
		},
	}
}

// InitialState deals a fresh round. Nothing carries over from prev.
func (g *Game) InitialState(players []models.PlayerID, _ game.State, opts models.Options) (game.State, error) {
	if len(players) < 2 || len(players) > 10 {
		return nil, fmt.Errorf("uno needs 2 to 10 players, got %d", len(players))
	}
	deck := shuffle(g.rand, NewDeck())

	hands := make(map[models.PlayerID][]Card, len(players))
	for _, id := range players {
		hands[id] = append([]Card(nil), deck[:handSize]...)
		deck = deck[handSize:]
	}

	// flip until the starting card has a color
	var discard []Card
	var top Card
	for {
		top, deck = deck[len(deck)-1], deck[:len(deck)-1]
		discard = append(discard, top)
		if top.Color != Black {
			break
		}
	}

	return &State{
		Deck:               deck,
		DiscardPile:        discard,
		PlayerHands:        hands,
		PlayerOrder:        append([]models.PlayerID(nil), players...),
		CurrentPlayerIndex: 0,
		CurrentPlayerID:    players[0],
		Direction:          1,
		ActiveColor:        top.Color,
		UnoSaid:            []models.PlayerID{},
		Options: Rules{
			TurnTimer:     opts.Int("turnTimer", 0),
			StackPlusTwo:  opts.Bool("stackPlusTwo", true),
			StackPlusFour: opts.Bool("stackPlusFour", true),
		},
		DeckSize: len(deck),
	}, nil
}

func (g *Game) HandleAction(state game.State, action models.GameAction) game.State {
	s, ok := state.(*State)
	if !ok || s.Winner != "" {
		return state
	}
	if s.AwaitingColorChoice && action.Type != ActionChooseColor {
		return state
	}

	switch action.Type {
	case ActionPlayCard:
		var p PlayCard
		if err := json.Unmarshal(action.Payload, &p); err != nil {
			return state
		}
		if next := g.playCard(s, action.PlayerID, p); next != nil {
			return next
		}
	case ActionDrawCard:
		next := s.clone()
		count := 1
		if next.DrawCount > 0 {
			count = next.DrawCount
			next.DrawCount = 0
		}
		g.draw(next, action.PlayerID, count)
		next.advance(1)
		return next
	case ActionChooseColor:
		var p ChooseColor
		if err := json.Unmarshal(action.Payload, &p); err != nil {
			return state
		}
		if !s.AwaitingColorChoice || action.PlayerID != s.CurrentPlayerID || !playable(p.Color) {
			return state
		}
		next := s.clone()
		next.ActiveColor = p.Color
		next.advance(1)
		return next
	case ActionSayUno:
		if len(s.PlayerHands[action.PlayerID]) == 1 && !slices.Contains(s.UnoSaid, action.PlayerID) {
			next := s.clone()
			next.UnoSaid = append(next.UnoSaid, action.PlayerID)
			return next
		}
	}
	return state
}

// playCard returns nil when the play is not legal.
func (g *Game) playCard(s *State, player models.PlayerID, p PlayCard) *State {
	hand := s.PlayerHands[player]
	idx := slices.IndexFunc(hand, func(c Card) bool {
		if p.Card.ID != "" {
			return c.ID == p.Card.ID
		}
		return c.Color == p.Card.Color && c.Value == p.Card.Value
	})
	if idx < 0 {
		return nil
	}
	card := hand[idx]
	top := s.DiscardPile[len(s.DiscardPile)-1]

	var legal bool
	if s.DrawCount > 0 {
		stackTwo := card.Value == DrawTwo && top.Value == DrawTwo && s.Options.StackPlusTwo
		stackFour := card.Value == WildDrawFour && (top.Value == DrawTwo || top.Value == WildDrawFour) && s.Options.StackPlusFour
		legal = stackTwo || stackFour
	} else {
		legal = card.Color == Black || card.Color == s.ActiveColor || card.Value == top.Value
	}
	if !legal {
		return nil
	}

	next := s.clone()
	next.PlayerHands[player] = slices.Delete(next.PlayerHands[player], idx, idx+1)
	next.DiscardPile = append(next.DiscardPile, card)
	if card.Color != Black {
		next.ActiveColor = card.Color
	}
	next.UnoSaid = slices.DeleteFunc(next.UnoSaid, func(id models.PlayerID) bool { return id == player })

	if len(next.PlayerHands[player]) == 0 {
		next.Winner = player
		return next
	}

	switch card.Value {
	case Skip:
		next.advance(2)
	case Reverse:
		next.Direction = -next.Direction
		next.advance(1)
	case DrawTwo:
		next.DrawCount += 2
		next.advance(1)
	case Wild, WildDrawFour:
		if card.Value == WildDrawFour {
			next.DrawCount += 4
		}
		if playable(p.ChosenColor) {
			next.ActiveColor = p.ChosenColor
			next.advance(1)
		} else {
			next.AwaitingColorChoice = true
		}
	default:
		next.advance(1)
	}
	return next
}

// draw moves count cards into player's hand, reshuffling the discard pile
// (minus its top card) into the deck when it runs out.
func (g *Game) draw(s *State, player models.PlayerID, count int) {
	for i := 0; i < count; i++ {
		if len(s.Deck) == 0 {
			if len(s.DiscardPile) <= 1 {
				break
			}
			top := s.DiscardPile[len(s.DiscardPile)-1]
			s.Deck = shuffle(g.rand, s.DiscardPile[:len(s.DiscardPile)-1])
			s.DiscardPile = []Card{top}
		}
		card := s.Deck[len(s.Deck)-1]
		s.Deck = s.Deck[:len(s.Deck)-1]
		s.PlayerHands[player] = append(s.PlayerHands[player], card)
	}
	s.DeckSize = len(s.Deck)
}

func (g *Game) IsGameOver(state game.State) bool {
	s, ok := state.(*State)
	return ok && s.Winner != ""
}

func (g *Game) IsTurnOf(state game.State, player models.PlayerID) bool {
	s, ok := state.(*State)
	return ok && s.Winner == "" && s.CurrentPlayerID == player
}

func (g *Game) StatusText(state game.State, players []models.Player) string {
	s, ok := state.(*State)
	if !ok {
		return ""
	}
	name := func(id models.PlayerID) string {
		if i := models.FindPlayer(players, id); i >= 0 && players[i].Username != "" {
			return players[i].Username
		}
		return "Player"
	}
	switch {
	case s.Winner != "":
		return name(s.Winner) + " wins!"
	case s.AwaitingColorChoice:
		return name(s.CurrentPlayerID) + " is choosing a color..."
	case s.DrawCount > 0:
		return fmt.Sprintf("%s must draw %d or play a draw card.", name(s.CurrentPlayerID), s.DrawCount)
	}
	return name(s.CurrentPlayerID) + "'s Turn"
}

func (g *Game) DecodeState(raw json.RawMessage) (game.State, error) {
	var s State
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", game.ErrBadState, err)
	}
	return &s, nil
}

func (g *Game) TurnTimeout(state game.State) time.Duration {
	s, ok := state.(*State)
	if !ok || s.Winner != "" {
		return 0
	}
	return time.Duration(s.Options.TurnTimer) * time.Second
}

// TimeoutAction picks a random color for a pending wild, otherwise draws.
func (g *Game) TimeoutAction(state game.State) (models.GameAction, bool) {
	s, ok := state.(*State)
	if !ok || s.Winner != "" {
		return models.GameAction{}, false
	}
	var action models.GameAction
	var err error
	if s.AwaitingColorChoice {
		action, err = models.NewGameAction(ActionChooseColor, ChooseColor{Color: Colors[g.rand.IntN(len(Colors))]})
	} else {
		action, err = models.NewGameAction(ActionDrawCard, nil)
	}
	if err != nil {
		return models.GameAction{}, false
	}
	action.PlayerID = s.CurrentPlayerID
	return action, true
}

// RemovePlayer takes a departed player out of the turn order. Their hand
// goes under the deck. If they held the turn it passes on and a pending
// color choice is dropped; a pending draw penalty stays for the next player.
func (g *Game) RemovePlayer(state game.State, player models.PlayerID) game.State {
	s, ok := state.(*State)
	if !ok {
		return state
	}
	idx := slices.Index(s.PlayerOrder, player)
	if idx < 0 {
		return state
	}
	next := s.clone()
	next.Deck = append(append([]Card(nil), next.PlayerHands[player]...), next.Deck...)
	next.DeckSize = len(next.Deck)
	delete(next.PlayerHands, player)
	next.PlayerOrder = slices.Delete(next.PlayerOrder, idx, idx+1)
	next.UnoSaid = slices.DeleteFunc(next.UnoSaid, func(id models.PlayerID) bool { return id == player })

	if len(next.PlayerOrder) == 0 {
		return next
	}
	if len(next.PlayerOrder) == 1 && next.Winner == "" {
		next.Winner = next.PlayerOrder[0]
	}

	n := len(next.PlayerOrder)
	switch {
	case idx < s.CurrentPlayerIndex:
		next.CurrentPlayerIndex--
	case idx == s.CurrentPlayerIndex:
		next.AwaitingColorChoice = false
		if next.Direction < 0 {
			next.CurrentPlayerIndex--
		}
	}
	next.CurrentPlayerIndex = ((next.CurrentPlayerIndex % n) + n) % n
	next.CurrentPlayerID = next.PlayerOrder[next.CurrentPlayerIndex]
	return next
}

// advance moves the turn by steps in the current direction.
func (s *State) advance(steps int) {
	n := len(s.PlayerOrder)
	s.CurrentPlayerIndex = ((s.CurrentPlayerIndex+s.Direction*steps)%n + n) % n
	s.CurrentPlayerID = s.PlayerOrder[s.CurrentPlayerIndex]
	s.AwaitingColorChoice = false
}

// clone deep-copies everything a handler may touch.
func (s *State) clone() *State {
	next := *s
	next.Deck = slices.Clone(s.Deck)
	next.DiscardPile = slices.Clone(s.DiscardPile)
	next.PlayerOrder = slices.Clone(s.PlayerOrder)
	next.UnoSaid = slices.Clone(s.UnoSaid)
	if next.UnoSaid == nil {
		next.UnoSaid = []models.PlayerID{}
	}
	next.PlayerHands = make(map[models.PlayerID][]Card, len(s.PlayerHands))
	for id, hand := range s.PlayerHands {
		next.PlayerHands[id] = slices.Clone(hand)
	}
	return &next
}

func playable(c Color) bool {
	return slices.Contains(Colors, c)
}
