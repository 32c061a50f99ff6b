// internal/session/disconnect.go
package session

import (
	"context"
	"errors"
	"time"

	"github.com/jason-s-yu/gamehub/internal/game"
	"github.com/jason-s-yu/gamehub/internal/models"
	"github.com/jason-s-yu/gamehub/internal/peer"
	"github.com/jason-s-yu/gamehub/internal/protocol"
	"github.com/jason-s-yu/gamehub/internal/signaling"
	"github.com/sirupsen/logrus"
)

// hostCheckTimeout bounds the lookup a guest makes after losing the host.
const hostCheckTimeout = 5 * time.Second

func (s *Session) onPeerLost(id models.PlayerID, state peer.State) {
	s.log.WithFields(logrus.Fields{
		"peer_id": id,
		"state":   state,
	}).Info("peer connection lost")
	if s.role == RoleHost {
		s.removePlayer(id)
		return
	}
	if id != s.hostID {
		return
	}
	// Tell a departed host from a broken link by looking at the document.
	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, hostCheckTimeout)
		defer cancel()
		notice := NoticeHostLost
		if _, err := s.channel.Lookup(ctx, s.id); errors.Is(err, signaling.ErrNotFound) {
			notice = NoticeHostLeft
		}
		s.post(hostLossChecked{notice: notice})
	}()
}

// removePlayer drops a guest from the roster, the connection set and the
// document. A round keeps going while enough players remain and the module
// can take the player out; otherwise everybody returns to the lobby.
func (s *Session) removePlayer(id models.PlayerID) {
	s.peers.Close(id)
	delete(s.opened, id)
	delete(s.peerStates, id)
	idx := models.FindPlayer(s.players, id)
	if idx < 0 || id == s.selfID {
		return
	}
	gone := s.players[idx]
	s.players = append(s.players[:idx:idx], s.players[idx+1:]...)
	s.removed[id] = true
	s.dirty = true
	s.mirror(func(ctx context.Context) error {
		if err := s.channel.RemovePlayer(ctx, s.id, gone); err != nil {
			return err
		}
		return s.channel.RemoveSlot(ctx, s.id, id)
	})

	if s.phase != models.PhaseInGame || s.state == nil {
		s.broadcast(protocol.SyncPlayers{Players: models.ClonePlayers(s.players)})
		return
	}

	remover, ok := s.module.(game.PlayerRemover)
	if !ok || len(s.players) < s.info.MinPlayers {
		s.log.WithField("player_id", id).Info("not enough players left, back to lobby")
		s.timer.stop()
		s.setState(nil, nil)
		s.setPhase(models.PhaseLobby)
		s.broadcast(s.fullSync())
		return
	}

	s.broadcast(protocol.SyncPlayers{Players: models.ClonePlayers(s.players)})
	next := remover.RemovePlayer(s.state, id)
	raw, err := encodeState(next)
	if err != nil {
		s.log.WithError(err).Error("encode game state")
		return
	}
	if string(raw) != string(s.stateRaw) {
		s.commitState(next, raw)
	}
}
