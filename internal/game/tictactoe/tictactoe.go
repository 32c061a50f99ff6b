// internal/game/tictactoe/tictactoe.go
package tictactoe

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jason-s-yu/gamehub/internal/game"
	"github.com/jason-s-yu/gamehub/internal/models"
)

// ID is the registry id of this game.
const ID = "tic-tac-toe"

// ActionMove places the mover's mark; the payload is the cell index 0..8.
const ActionMove = "MAKE_MOVE"

// Draw is the Winner value of a full board without a line.
const Draw = "draw"

// Mark is "X" or "O". Empty cells hold "".
type Mark string

const (
	MarkX Mark = "X"
	MarkO Mark = "O"
)

var lines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

// State is the full game. Scores survive rematches.
type State struct {
	Board     [9]Mark                  `json:"board"`
	IsNext    Mark                     `json:"isNext"`
	Winner    string                   `json:"winner,omitempty"`
	PlayerMap map[models.PlayerID]Mark `json:"playerMap"`
	Scores    map[models.PlayerID]int  `json:"scores"`
	TurnTimer int                      `json:"turnTimer"`
}

// Game implements game.Module.
type Game struct {
	rand game.Rand
}

// New returns the module using r for mark assignment and timeout moves.
// A nil r uses game.DefaultRand.
func New(r game.Rand) *Game {
	if r == nil {
		r = game.DefaultRand
	}
	return &Game{rand: r}
}

func (g *Game) Info() game.Info {
	return game.Info{
		ID:          ID,
		DisplayName: "Tic Tac Toe",
		Description: "The classic game of X's and O's. First to get three in a row wins.",
		MinPlayers:  2,
		MaxPlayers:  2,
		Options: []game.OptionSpec{
			{
				ID:      "turnTimer",
				Label:   "Turn Timer",
				Type:    game.OptionSelect,
				Default: 0,
				Choices: []game.Choice{
					{Label: "Unlimited", Value: 0},
					{Label: "2 Seconds", Value: 2},
					{Label: "5 Seconds", Value: 5},
					{Label: "10 Seconds", Value: 10},
				},
			},
		},
	}
}

func (g *Game) InitialState(players []models.PlayerID, prev game.State, opts models.Options) (game.State, error) {
	if len(players) != 2 {
		return nil, fmt.Errorf("tic-tac-toe needs exactly 2 players, got %d", len(players))
	}
	p1, p2 := players[0], players[1]

	scores := map[models.PlayerID]int{p1: 0, p2: 0}
	timer := 0
	if last, ok := prev.(*State); ok && last != nil {
		for id, score := range last.Scores {
			if id == p1 || id == p2 {
				scores[id] = score
			}
		}
		timer = last.TurnTimer
	}
	timer = opts.Int("turnTimer", timer)

	first, second := MarkX, MarkO
	if g.rand.IntN(2) == 1 {
		first, second = MarkO, MarkX
	}
	return &State{
		IsNext:    MarkX,
		PlayerMap: map[models.PlayerID]Mark{p1: first, p2: second},
		Scores:    scores,
		TurnTimer: timer,
	}, nil
}

// HandleAction returns state unchanged for anything but a legal move.
func (g *Game) HandleAction(state game.State, action models.GameAction) game.State {
	s, ok := state.(*State)
	if !ok || action.Type != ActionMove {
		return state
	}
	var idx int
	if err := json.Unmarshal(action.Payload, &idx); err != nil || idx < 0 || idx >= len(s.Board) {
		return state
	}
	mark, ok := s.PlayerMap[action.PlayerID]
	if !ok || s.Board[idx] != "" || s.Winner != "" || s.IsNext != mark {
		return state
	}

	next := *s
	next.Board[idx] = mark
	next.IsNext = other(mark)
	next.Winner = winner(next.Board)
	next.Scores = make(map[models.PlayerID]int, len(s.Scores))
	for id, score := range s.Scores {
		next.Scores[id] = score
	}
	if next.Winner != "" && next.Winner != Draw {
		if id, ok := s.playerFor(Mark(next.Winner)); ok {
			next.Scores[id]++
		}
	}
	return &next
}

func (g *Game) IsGameOver(state game.State) bool {
	s, ok := state.(*State)
	return ok && s.Winner != ""
}

func (g *Game) IsTurnOf(state game.State, player models.PlayerID) bool {
	s, ok := state.(*State)
	if !ok || s.Winner != "" {
		return false
	}
	mark, ok := s.PlayerMap[player]
	return ok && mark == s.IsNext
}

func (g *Game) StatusText(state game.State, players []models.Player) string {
	s, ok := state.(*State)
	if !ok {
		return ""
	}
	switch s.Winner {
	case "":
	case Draw:
		return "It's a Draw!"
	default:
		return s.nameFor(Mark(s.Winner), players) + " wins!"
	}
	status := s.nameFor(s.IsNext, players) + "'s Turn"
	if s.TurnTimer > 0 {
		status += fmt.Sprintf(" (%ds)", s.TurnTimer)
	}
	return status
}

func (g *Game) DecodeState(raw json.RawMessage) (game.State, error) {
	var s State
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", game.ErrBadState, err)
	}
	return &s, nil
}

// TurnTimeout is the configured per-move limit.
func (g *Game) TurnTimeout(state game.State) time.Duration {
	s, ok := state.(*State)
	if !ok || s.Winner != "" {
		return 0
	}
	return time.Duration(s.TurnTimer) * time.Second
}

// TimeoutAction places the late player's mark on a random free cell.
func (g *Game) TimeoutAction(state game.State) (models.GameAction, bool) {
	s, ok := state.(*State)
	if !ok || s.Winner != "" {
		return models.GameAction{}, false
	}
	player, ok := s.playerFor(s.IsNext)
	if !ok {
		return models.GameAction{}, false
	}
	var free []int
	for i, cell := range s.Board {
		if cell == "" {
			free = append(free, i)
		}
	}
	if len(free) == 0 {
		return models.GameAction{}, false
	}
	action, err := models.NewGameAction(ActionMove, free[g.rand.IntN(len(free))])
	if err != nil {
		return models.GameAction{}, false
	}
	action.PlayerID = player
	return action, true
}

func (s *State) playerFor(mark Mark) (models.PlayerID, bool) {
	for id, m := range s.PlayerMap {
		if m == mark {
			return id, true
		}
	}
	return "", false
}

func (s *State) nameFor(mark Mark, players []models.Player) string {
	if id, ok := s.playerFor(mark); ok {
		if i := models.FindPlayer(players, id); i >= 0 && players[i].Username != "" {
			return players[i].Username
		}
	}
	return "Player " + string(mark)
}

func other(m Mark) Mark {
	if m == MarkX {
		return MarkO
	}
	return MarkX
}

func winner(board [9]Mark) string {
	for _, l := range lines {
		a, b, c := board[l[0]], board[l[1]], board[l[2]]
		if a != "" && a == b && a == c {
			return string(a)
		}
	}
	for _, cell := range board {
		if cell == "" {
			return ""
		}
	}
	return Draw
}
