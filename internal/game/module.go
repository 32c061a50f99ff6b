// internal/game/module.go
package game

import (
	"encoding/json"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/jason-s-yu/gamehub/internal/models"
)

// ErrBadState is returned when a module receives a state of another module
// or a payload it cannot decode.
var ErrBadState = errors.New("game: state does not belong to this module")

// State is an opaque game state owned by one Module. Modules never mutate a
// state in place; HandleAction returns either the same value (no-op) or a
// new one.
type State interface{}

// Module is the rule set of one game. The session layer only ever talks to
// games through this interface.
type Module interface {
	Info() Info
	// InitialState deals a new round. prev is the last finished state of the
	// same session (nil for the first round) so a module may carry over scores.
	InitialState(players []models.PlayerID, prev State, opts models.Options) (State, error)
	HandleAction(state State, action models.GameAction) State
	IsGameOver(state State) bool
	IsTurnOf(state State, player models.PlayerID) bool
	StatusText(state State, players []models.Player) string
	// DecodeState restores a state that traveled over the wire as JSON.
	DecodeState(raw json.RawMessage) (State, error)
}

// TurnTimer is implemented by modules that limit how long a player may take.
// The host runs the timer and submits TimeoutAction through the normal
// action gate when it fires.
type TurnTimer interface {
	TurnTimeout(state State) time.Duration
	TimeoutAction(state State) (models.GameAction, bool)
}

// PlayerRemover is implemented by modules that can keep a round going after
// a player leaves.
type PlayerRemover interface {
	RemovePlayer(state State, player models.PlayerID) State
}

// Rand is the randomness a module needs. *rand.Rand from math/rand/v2
// satisfies it; tests pass a seeded one.
type Rand interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// DefaultRand uses the process-wide, goroutine-safe source.
var DefaultRand Rand = globalRand{}

// Shuffle permutes n elements with r.
func Shuffle(r Rand, n int, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		swap(i, r.IntN(i+1))
	}
}
