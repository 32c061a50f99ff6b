// internal/session/api.go
package session

import (
	"context"
	"errors"
	"strings"

	"github.com/jason-s-yu/gamehub/internal/models"
	"github.com/jason-s-yu/gamehub/internal/protocol"
	"github.com/jason-s-yu/gamehub/internal/signaling"
)

// StartGame deals a new round. Host only; a no-op while a round is running.
func (s *Session) StartGame() error {
	return s.call(request{kind: reqStartGame})
}

// PerformAction plays a move as the local player. The host applies it
// directly; a guest forwards it and waits for the host's update.
func (s *Session) PerformAction(a models.GameAction) error {
	return s.call(request{kind: reqPerformAction, action: a})
}

// SetOptions merges changes into the game options. Host only, lobby only.
func (s *Session) SetOptions(changes models.Options) error {
	return s.call(request{kind: reqSetOptions, options: changes})
}

// SetUsername renames the local player.
func (s *Session) SetUsername(name string) error {
	return s.call(request{kind: reqSetUsername, name: name})
}

// ReturnToLobby ends the current round for everybody. Host only.
func (s *Session) ReturnToLobby() error {
	return s.call(request{kind: reqReturnToLobby})
}

// Leave ends the session. A leaving host deletes the game for everybody.
func (s *Session) Leave(ctx context.Context) error {
	err := s.call(request{kind: reqLeave, ctx: ctx})
	if errors.Is(err, ErrSessionClosed) {
		return nil
	}
	return err
}

func (s *Session) onSnapshot(snap signaling.Snapshot) {
	if s.role == RoleHost {
		s.hostSnapshot(snap)
		return
	}
	s.guestSnapshot(snap)
}

func (s *Session) onPeerOpened(id models.PlayerID) {
	if s.role == RoleHost {
		s.onGuestOpened(id)
		return
	}
	s.onHostOpened(id)
}

func (s *Session) onPeerMessage(id models.PlayerID, data []byte) {
	m, err := protocol.Decode(data)
	if err != nil {
		s.log.WithField("peer_id", id).WithError(err).Warn("dropping bad message")
		return
	}
	if s.role == RoleHost {
		s.hostMessage(id, m)
		return
	}
	s.guestMessage(id, m)
}

func (s *Session) performLocalAction(a models.GameAction) error {
	if s.role == RoleGuest {
		return s.guestAction(a)
	}
	a.PlayerID = s.selfID
	s.performAction(a)
	return nil
}

func (s *Session) setUsername(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidName
	}
	if s.role == RoleGuest {
		return s.guestRename(name)
	}
	s.renamePlayer(s.selfID, name)
	return nil
}

func (s *Session) leave(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.role == RoleHost {
		return s.hostLeave(ctx)
	}
	return s.guestLeave()
}
