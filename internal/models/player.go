// internal/models/player.go
package models

import "github.com/google/uuid"

// PlayerID identifies a player for the lifetime of a session.
type PlayerID string

// HostPlayerID is reserved for the player that creates a session.
const HostPlayerID PlayerID = "p1"

// NewGuestID returns a random id for a joining guest.
func NewGuestID() PlayerID {
	return PlayerID("g-" + uuid.NewString()[:8])
}

// Player is a roster entry. The same shape is mirrored to the signaling
// document and broadcast to guests.
type Player struct {
	ID       PlayerID `json:"id"`
	Username string   `json:"username"`
}

// PlayerIDs returns the ids of the roster in order.
func PlayerIDs(players []Player) []PlayerID {
	ids := make([]PlayerID, 0, len(players))
	for _, p := range players {
		ids = append(ids, p.ID)
	}
	return ids
}

// FindPlayer returns the index of the player with the given id, or -1.
func FindPlayer(players []Player, id PlayerID) int {
	for i, p := range players {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// ClonePlayers copies a roster so callers never share the backing array.
func ClonePlayers(players []Player) []Player {
	if players == nil {
		return []Player{}
	}
	out := make([]Player, len(players))
	copy(out, players)
	return out
}
