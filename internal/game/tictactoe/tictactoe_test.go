// internal/game/tictactoe/tictactoe_test.go
package tictactoe

import (
	"encoding/json"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/jason-s-yu/gamehub/internal/game"
	"github.com/jason-s-yu/gamehub/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ game.Module    = (*Game)(nil)
	_ game.TurnTimer = (*Game)(nil)
)

var roster = []models.Player{{ID: "p1", Username: "Alice"}, {ID: "g-1", Username: "Bob"}}

func move(player models.PlayerID, idx int) models.GameAction {
	a, _ := models.NewGameAction(ActionMove, idx)
	a.PlayerID = player
	return a
}

// newRound deals a round and returns the player holding X and the one holding O.
func newRound(t *testing.T, g *Game, prev game.State) (*State, models.PlayerID, models.PlayerID) {
	t.Helper()
	st, err := g.InitialState(models.PlayerIDs(roster), prev, g.Info().DefaultOptions())
	require.NoError(t, err)
	s := st.(*State)
	x, _ := s.playerFor(MarkX)
	o, _ := s.playerFor(MarkO)
	return s, x, o
}

func TestInitialState(t *testing.T) {
	g := New(rand.New(rand.NewPCG(1, 2)))
	s, x, o := newRound(t, g, nil)

	assert.Equal(t, MarkX, s.IsNext)
	assert.NotEqual(t, x, o)
	assert.Equal(t, map[models.PlayerID]int{"p1": 0, "g-1": 0}, s.Scores)
	assert.True(t, g.IsTurnOf(s, x))
	assert.False(t, g.IsTurnOf(s, o))

	_, err := g.InitialState([]models.PlayerID{"p1"}, nil, nil)
	assert.Error(t, err)
}

func TestWinUpdatesScoreAndCarriesOver(t *testing.T) {
	g := New(rand.New(rand.NewPCG(3, 4)))
	s, x, o := newRound(t, g, nil)

	var st game.State = s
	for _, m := range []models.GameAction{move(x, 0), move(o, 3), move(x, 1), move(o, 4), move(x, 2)} {
		next := g.HandleAction(st, m)
		require.NotSame(t, st, next)
		st = next
	}
	require.True(t, g.IsGameOver(st))
	assert.Equal(t, 1, st.(*State).Scores[x])
	assert.Equal(t, roster[models.FindPlayer(roster, x)].Username+" wins!", g.StatusText(st, roster))
	assert.False(t, g.IsTurnOf(st, o))

	rematch, _, _ := newRound(t, g, st)
	assert.Equal(t, 1, rematch.Scores[x])
	assert.False(t, g.IsGameOver(rematch))
}

func TestIllegalMovesAreNoOps(t *testing.T) {
	g := New(rand.New(rand.NewPCG(5, 6)))
	s, x, o := newRound(t, g, nil)

	assert.Same(t, s, g.HandleAction(s, move(o, 0)), "out of turn")
	assert.Same(t, s, g.HandleAction(s, move("stranger", 0)), "not a player")
	assert.Same(t, s, g.HandleAction(s, move(x, 9)), "off the board")
	assert.Same(t, s, g.HandleAction(s, models.GameAction{Type: "OTHER", PlayerID: x}))

	after := g.HandleAction(s, move(x, 4))
	assert.Same(t, after, g.HandleAction(after, move(o, 4)), "occupied cell")
	assert.Equal(t, Mark(""), s.Board[4], "input state must not change")
}

func TestDraw(t *testing.T) {
	g := New(rand.New(rand.NewPCG(7, 8)))
	s, x, o := newRound(t, g, nil)

	// X O X / X O O / O X X
	var st game.State = s
	for _, m := range []models.GameAction{
		move(x, 0), move(o, 1), move(x, 2), move(o, 4), move(x, 3),
		move(o, 5), move(x, 7), move(o, 6), move(x, 8),
	} {
		st = g.HandleAction(st, m)
	}
	assert.Equal(t, Draw, st.(*State).Winner)
	assert.Equal(t, "It's a Draw!", g.StatusText(st, roster))
}

func TestStatusTextAndWireRoundTrip(t *testing.T) {
	g := New(rand.New(rand.NewPCG(9, 10)))
	st, err := g.InitialState(models.PlayerIDs(roster), nil, models.Options{"turnTimer": float64(5)})
	require.NoError(t, err)
	s := st.(*State)
	x, _ := s.playerFor(MarkX)
	xName := roster[models.FindPlayer(roster, x)].Username
	assert.Equal(t, xName+"'s Turn (5s)", g.StatusText(s, roster))
	assert.Equal(t, "Player X's Turn (5s)", g.StatusText(s, nil))

	raw, err := json.Marshal(s)
	require.NoError(t, err)
	decoded, err := g.DecodeState(raw)
	require.NoError(t, err)
	assert.Equal(t, s, decoded)
	assert.Equal(t, g.StatusText(s, roster), g.StatusText(decoded, roster))

	local := g.HandleAction(s, move(x, 4))
	remote := g.HandleAction(decoded, move(x, 4))
	assert.Equal(t, local, remote)
}

func TestTurnTimer(t *testing.T) {
	g := New(rand.New(rand.NewPCG(11, 12)))
	st, err := g.InitialState(models.PlayerIDs(roster), nil, models.Options{"turnTimer": 2})
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, g.TurnTimeout(st))

	action, ok := g.TimeoutAction(st)
	require.True(t, ok)
	assert.True(t, g.IsTurnOf(st, action.PlayerID))
	assert.NotSame(t, st, g.HandleAction(st, action), "timeout move must be legal")

	untimed, _, _ := newRound(t, g, nil)
	assert.Zero(t, g.TurnTimeout(untimed))
}
