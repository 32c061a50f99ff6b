// internal/protocol/protocol.go
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jason-s-yu/gamehub/internal/models"
)

var (
	// ErrUnknownType is returned by Decode for a type outside the closed set.
	ErrUnknownType = errors.New("protocol: unknown message type")
	// ErrMalformed is returned when the envelope or its payload is not valid JSON of the expected shape.
	ErrMalformed = errors.New("protocol: malformed message")
)

// Type discriminates envelopes on the data channel.
type Type string

// Host-originated types.
const (
	TypeSyncPlayers       Type = "sync_players"
	TypeGameOptionsChange Type = "game_options_change"
	TypeStartGame         Type = "start_game"
	TypeGameStateUpdate   Type = "game_state_update"
	TypeSyncFullGameState Type = "sync_full_game_state"
	TypeReturnToLobby     Type = "return_to_lobby"
)

// Guest-originated types.
const (
	TypeGameAction     Type = "game_action"
	TypeUsernameChange Type = "username_change"
	TypePlayerLeaving  Type = "player_leaving"
)

// HostOnly reports whether only the host may originate messages of type t.
// Guests may originate the remaining three types.
func HostOnly(t Type) bool {
	switch t {
	case TypeSyncPlayers, TypeGameOptionsChange, TypeStartGame,
		TypeGameStateUpdate, TypeSyncFullGameState, TypeReturnToLobby:
		return true
	}
	return false
}

// Envelope is the wire form of every message.
type Envelope struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Message is one of the payload structs below.
type Message interface {
	MessageType() Type
}

type SyncPlayers struct {
	Players []models.Player `json:"players"`
}

type GameOptionsChange struct {
	Options models.Options `json:"options"`
}

// StartGame and GameStateUpdate carry the module's state as raw JSON; the
// session decodes it with the game module.
type StartGame struct {
	GameState json.RawMessage `json:"gameState"`
}

type GameStateUpdate struct {
	GameState json.RawMessage `json:"gameState"`
}

// SyncFullGameState replaces everything a guest knows. GameState is JSON
// null outside a round.
type SyncFullGameState struct {
	Players   []models.Player  `json:"players"`
	GameState json.RawMessage  `json:"gameState"`
	GamePhase models.GamePhase `json:"gamePhase"`
	Options   models.Options   `json:"options"`
}

type ReturnToLobby struct{}

type GameAction struct {
	Action models.GameAction `json:"action"`
}

type UsernameChange struct {
	NewUsername string `json:"newUsername"`
}

type PlayerLeaving struct{}

func (SyncPlayers) MessageType() Type { return TypeSyncPlayers }
func (GameOptionsChange) MessageType() Type { return TypeGameOptionsChange }
func (StartGame) MessageType() Type { return TypeStartGame }
func (GameStateUpdate) MessageType() Type { return TypeGameStateUpdate }
func (SyncFullGameState) MessageType() Type { return TypeSyncFullGameState }
func (ReturnToLobby) MessageType() Type { return TypeReturnToLobby }
func (GameAction) MessageType() Type { return TypeGameAction }
func (UsernameChange) MessageType() Type { return TypeUsernameChange }
func (PlayerLeaving) MessageType() Type { return TypePlayerLeaving }

// Encode wraps msg in its envelope.
func Encode(msg Message) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", msg.MessageType(), err)
	}
	return json.Marshal(Envelope{Type: msg.MessageType(), Payload: payload})
}

// Decode parses an envelope into its typed payload.
func Decode(data []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var msg Message
	switch env.Type {
	case TypeSyncPlayers:
		msg = &SyncPlayers{}
	case TypeGameOptionsChange:
		msg = &GameOptionsChange{}
	case TypeStartGame:
		msg = &StartGame{}
	case TypeGameStateUpdate:
		msg = &GameStateUpdate{}
	case TypeSyncFullGameState:
		msg = &SyncFullGameState{}
	case TypeReturnToLobby:
		msg = &ReturnToLobby{}
	case TypeGameAction:
		msg = &GameAction{}
	case TypeUsernameChange:
		msg = &UsernameChange{}
	case TypePlayerLeaving:
		msg = &PlayerLeaving{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}

	if len(env.Payload) > 0 && string(env.Payload) != "null" {
		if err := json.Unmarshal(env.Payload, msg); err != nil {
			return nil, fmt.Errorf("%w: %s payload: %v", ErrMalformed, env.Type, err)
		}
	}
	return msg, nil
}
