// internal/models/game_action.go
package models

import "encoding/json"

// GameAction captures a player's in-game move. The session layer only reads
// PlayerID; Type and Payload belong to the game module.
type GameAction struct {
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	PlayerID PlayerID        `json:"playerId"`
}

// NewGameAction marshals payload into an action. A nil payload is omitted.
func NewGameAction(actionType string, payload interface{}) (GameAction, error) {
	action := GameAction{Type: actionType}
	if payload == nil {
		return action, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return GameAction{}, err
	}
	action.Payload = raw
	return action, nil
}
