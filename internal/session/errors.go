// internal/session/errors.go
package session

import "errors"

// Join-time rejections. Notice turns them into text for the player.
var (
	ErrGameNotFound = errors.New("session: game not found")
	ErrLobbyFull    = errors.New("session: lobby is full")
	ErrUnknownGame  = errors.New("session: unknown game kind")
)

var (
	// ErrNotHost is returned for host-only operations called on a guest session.
	ErrNotHost = errors.New("session: only the host can do this")
	// ErrSessionClosed is returned for calls on a session that has ended.
	ErrSessionClosed = errors.New("session: closed")
	// ErrNotInLobby is returned when options change outside the lobby.
	ErrNotInLobby = errors.New("session: options can only change in the lobby")
	// ErrNotEnoughPlayers is returned by StartGame below the module's minimum.
	ErrNotEnoughPlayers = errors.New("session: not enough players to start")
	// ErrInvalidName is returned for a blank username.
	ErrInvalidName = errors.New("session: username must not be empty")
)

// Terminal notices surfaced on the View of an ended guest session.
const (
	NoticeHostLeft       = "The host has left the game."
	NoticeHostLost       = "Lost connection to the host."
	NoticeSessionRemoved = "The game session no longer exists."
	NoticeGameNotFound   = "Game not found or has been ended by the host."
	NoticeLobbyFull      = "This game lobby is already full."
	NoticeUnknownGame    = "This game is not available."
)

// Notice returns the player-facing text for a join error, or err's own
// message for anything else.
func Notice(err error) string {
	switch {
	case errors.Is(err, ErrGameNotFound):
		return NoticeGameNotFound
	case errors.Is(err, ErrLobbyFull):
		return NoticeLobbyFull
	case errors.Is(err, ErrUnknownGame):
		return NoticeUnknownGame
	}
	return err.Error()
}
