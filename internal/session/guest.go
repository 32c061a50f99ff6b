// internal/session/guest.go
package session

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jason-s-yu/gamehub/internal/models"
	"github.com/jason-s-yu/gamehub/internal/protocol"
	"github.com/jason-s-yu/gamehub/internal/signaling"
	"github.com/sirupsen/logrus"
)

// JoinGame looks up gameID and joins it as a guest. It fails with
// ErrGameNotFound, ErrUnknownGame or ErrLobbyFull without touching the
// session document.
func JoinGame(ctx context.Context, cfg Config, gameID string) (*Session, error) {
	doc, err := cfg.Channel.Lookup(ctx, gameID)
	if errors.Is(err, signaling.ErrNotFound) {
		return nil, ErrGameNotFound
	}
	if err != nil {
		return nil, err
	}
	mod, ok := cfg.Registry.Lookup(doc.GameKind)
	if !ok {
		return nil, ErrUnknownGame
	}
	if len(doc.Players) >= mod.Info().MaxPlayers {
		return nil, ErrLobbyFull
	}

	s := newSession(ctx, cfg, gameID, RoleGuest, mod)
	s.selfID = models.NewGuestID()
	s.hostID = doc.HostID
	s.username = displayName(cfg.Username, "Guest")
	self := models.Player{ID: s.selfID, Username: s.username}
	s.players = append(models.ClonePlayers(doc.Players), self)
	s.options = doc.Options.Clone()
	s.phase = models.PhaseLobby
	s.log = s.log.WithField("player_id", s.selfID)

	sub, err := cfg.Channel.Subscribe(s.ctx, gameID)
	if err != nil {
		s.cancel()
		return nil, err
	}
	s.start(sub)

	// The link must exist before the host's offer shows up in a snapshot.
	if err := s.peers.ConnectAsGuest(s.ctx, s.hostID, s.selfID); err != nil {
		s.abort()
		return nil, err
	}
	if err := cfg.Channel.AddPlayer(ctx, gameID, self); err != nil {
		s.abort()
		if errors.Is(err, signaling.ErrNotFound) {
			return nil, ErrGameNotFound
		}
		return nil, err
	}
	s.post(joinWritten{})
	s.log.Info("joined game")
	return s, nil
}

// abort stops a session that never finished joining.
func (s *Session) abort() {
	s.cancel()
	<-s.done
}

// guestSnapshot watches the document for the end of the game and, until the
// host connection opens, for the host turning us away. Snapshots may skip
// values, so a missing entry is confirmed with a fresh read before the join
// counts as rejected.
func (s *Session) guestSnapshot(snap signaling.Snapshot) {
	if snap.Deleted {
		s.log.Info("session document deleted")
		s.end(NoticeHostLeft)
		return
	}
	if s.opened[s.hostID] {
		return
	}
	if models.FindPlayer(snap.Doc.Players, s.selfID) >= 0 {
		s.sawSelf = true
		return
	}
	if s.sawSelf {
		s.checkListed()
	}
}

// checkListed reads the roster once. A snapshot arriving while a read is in
// flight queues another one.
func (s *Session) checkListed() {
	if s.checking {
		s.recheckJoin = true
		return
	}
	s.checking = true
	go func() {
		doc, err := s.channel.Lookup(s.ctx, s.id)
		switch {
		case errors.Is(err, signaling.ErrNotFound):
			s.post(joinChecked{deleted: true})
		case err != nil:
			if s.ctx.Err() == nil {
				s.log.WithError(err).Warn("roster check failed")
			}
			s.post(joinChecked{listed: true})
		default:
			s.post(joinChecked{listed: models.FindPlayer(doc.Players, s.selfID) >= 0})
		}
	}()
}

func (s *Session) onJoinChecked(m joinChecked) {
	s.checking = false
	if s.opened[s.hostID] {
		return
	}
	switch {
	case m.deleted:
		s.end(NoticeHostLeft)
	case !m.listed:
		s.log.Info("host rejected the join")
		s.end(NoticeLobbyFull)
	case s.recheckJoin:
		s.recheckJoin = false
		s.checkListed()
	}
}

// onHostOpened announces our name; the host answers with a full sync.
func (s *Session) onHostOpened(id models.PlayerID) {
	if id != s.hostID {
		return
	}
	s.opened[id] = true
	if err := s.send(id, protocol.UsernameChange{NewUsername: s.username}); err != nil {
		s.log.WithError(err).Warn("announce username failed")
	}
}

// guestMessage applies a host envelope. Guests never run game logic; they
// replace their copy with whatever the host sent.
func (s *Session) guestMessage(from models.PlayerID, m protocol.Message) {
	if from != s.hostID {
		return
	}
	if !protocol.HostOnly(m.MessageType()) {
		s.log.WithField("type", m.MessageType()).Warn("host sent a guest message")
		return
	}
	switch m := m.(type) {
	case *protocol.SyncPlayers:
		s.syncPlayers(m.Players)
	case *protocol.GameOptionsChange:
		s.options = m.Options.Clone()
		s.dirty = true
	case *protocol.StartGame:
		s.applyState(m.GameState)
	case *protocol.GameStateUpdate:
		s.applyState(m.GameState)
	case *protocol.SyncFullGameState:
		s.syncPlayers(m.Players)
		s.options = m.Options.Clone()
		s.phase = m.GamePhase
		s.dirty = true
		s.applyState(m.GameState)
	case *protocol.ReturnToLobby:
		s.phase = models.PhaseLobby
		s.setState(nil, nil)
	}
}

func (s *Session) syncPlayers(players []models.Player) {
	s.players = models.ClonePlayers(players)
	s.joined = models.FindPlayer(s.players, s.selfID) >= 0
	if idx := models.FindPlayer(s.players, s.selfID); idx >= 0 {
		s.username = s.players[idx].Username
	}
	s.dirty = true
}

// applyState replaces the local game state. A null state means no round.
func (s *Session) applyState(raw json.RawMessage) {
	if len(raw) == 0 || string(raw) == "null" {
		s.setState(nil, nil)
		return
	}
	st, err := s.module.DecodeState(raw)
	if err != nil {
		s.log.WithError(err).Error("decode game state")
		return
	}
	s.setState(st, raw)
	if s.module.IsGameOver(st) {
		s.phase = models.PhasePostGame
	} else {
		s.phase = models.PhaseInGame
	}
}

// guestAction forwards an action to the host. Nothing changes locally until
// the host's update arrives.
func (s *Session) guestAction(a models.GameAction) error {
	a.PlayerID = s.selfID
	if err := s.send(s.hostID, protocol.GameAction{Action: a}); err != nil {
		s.log.WithFields(logrus.Fields{"action": a.Type}).WithError(err).Warn("send action failed")
		return err
	}
	return nil
}

func (s *Session) guestRename(name string) error {
	s.username = name
	if !s.opened[s.hostID] {
		// announced once the channel opens
		if idx := models.FindPlayer(s.players, s.selfID); idx >= 0 {
			s.players[idx].Username = name
			s.dirty = true
		}
		return nil
	}
	return s.send(s.hostID, protocol.UsernameChange{NewUsername: name})
}

// guestLeave tells the host before hanging up.
func (s *Session) guestLeave() error {
	if s.opened[s.hostID] {
		if err := s.send(s.hostID, protocol.PlayerLeaving{}); err != nil {
			s.log.WithError(err).Debug("leave notice not delivered")
		}
	}
	s.end("")
	return nil
}
