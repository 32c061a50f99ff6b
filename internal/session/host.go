// internal/session/host.go
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jason-s-yu/gamehub/internal/game"
	"github.com/jason-s-yu/gamehub/internal/models"
	"github.com/jason-s-yu/gamehub/internal/protocol"
	"github.com/jason-s-yu/gamehub/internal/signaling"
	"github.com/sirupsen/logrus"
)

// createAttempts bounds retries when a random game id is already taken.
const createAttempts = 5

// CreateGame publishes a new session document for kind and returns the host
// session. The host is always player p1.
func CreateGame(ctx context.Context, cfg Config, kind string) (*Session, error) {
	mod, ok := cfg.Registry.Lookup(kind)
	if !ok {
		return nil, ErrUnknownGame
	}
	info := mod.Info()
	self := models.Player{ID: models.HostPlayerID, Username: displayName(cfg.Username, "Host")}

	var id string
	for attempt := 0; ; attempt++ {
		id = cfg.GameID
		if id == "" {
			code, err := NewGameID()
			if err != nil {
				return nil, fmt.Errorf("generate game id: %w", err)
			}
			id = code
		}
		doc := &models.SessionDoc{
			GameKind:    info.ID,
			HostID:      self.ID,
			Players:     []models.Player{self},
			Options:     info.DefaultOptions(),
			GamePhase:   models.PhaseLobby,
			Connections: map[models.PlayerID]*models.ConnectionSlot{},
		}
		err := cfg.Channel.CreateSession(ctx, id, doc)
		if err == nil {
			break
		}
		if !errors.Is(err, signaling.ErrExists) || cfg.GameID != "" || attempt+1 >= createAttempts {
			return nil, err
		}
	}

	s := newSession(ctx, cfg, id, RoleHost, mod)
	s.selfID = self.ID
	s.hostID = self.ID
	s.players = []models.Player{self}
	s.options = info.DefaultOptions()
	s.joined = true

	sub, err := cfg.Channel.Subscribe(s.ctx, id)
	if err != nil {
		s.cancel()
		_ = cfg.Channel.DeleteSession(ctx, id)
		return nil, err
	}
	s.start(sub)
	s.log.WithField("game", info.ID).Info("game created")
	return s, nil
}

func displayName(name, fallback string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return fallback
	}
	return name
}

// hostSnapshot adds roster entries guests wrote themselves.
func (s *Session) hostSnapshot(snap signaling.Snapshot) {
	if snap.Deleted {
		s.end(NoticeSessionRemoved)
		return
	}
	for _, p := range snap.Doc.Players {
		if p.ID == s.selfID || s.removed[p.ID] || models.FindPlayer(s.players, p.ID) >= 0 {
			continue
		}
		s.onGuestJoined(p)
	}
}

// onGuestJoined admits a guest or rejects it when the lobby is full.
func (s *Session) onGuestJoined(p models.Player) {
	log := s.log.WithField("player_id", p.ID)
	if len(s.players) >= s.info.MaxPlayers {
		log.Info("lobby full, rejecting guest")
		s.removed[p.ID] = true
		s.mirror(func(ctx context.Context) error {
			if err := s.channel.RemovePlayer(ctx, s.id, p); err != nil {
				return err
			}
			return s.channel.RemoveSlot(ctx, s.id, p.ID)
		})
		return
	}

	s.players = append(s.players, p)
	s.dirty = true
	log.WithField("username", p.Username).Info("guest joined")
	s.broadcast(protocol.SyncPlayers{Players: models.ClonePlayers(s.players)})

	go func() {
		if err := s.peers.ConnectAsHost(s.ctx, p.ID); err != nil && s.ctx.Err() == nil {
			log.WithError(err).Warn("connect to guest failed")
		}
	}()
}

// onGuestOpened brings a freshly connected guest up to date.
func (s *Session) onGuestOpened(id models.PlayerID) {
	if models.FindPlayer(s.players, id) < 0 {
		return
	}
	s.opened[id] = true
	if err := s.send(id, s.fullSync()); err != nil {
		s.log.WithField("player_id", id).WithError(err).Warn("full sync failed")
	}
}

func (s *Session) fullSync() protocol.SyncFullGameState {
	raw := s.stateRaw
	if raw == nil {
		raw = []byte("null")
	}
	return protocol.SyncFullGameState{
		Players:   models.ClonePlayers(s.players),
		GameState: raw,
		GamePhase: s.phase,
		Options:   s.options.Clone(),
	}
}

// hostMessage handles an envelope from a guest. The transport identity is
// the only trusted sender id.
func (s *Session) hostMessage(from models.PlayerID, m protocol.Message) {
	if protocol.HostOnly(m.MessageType()) {
		s.log.WithFields(logrus.Fields{
			"player_id": from,
			"type":      m.MessageType(),
		}).Warn("guest sent a host-only message")
		return
	}
	if models.FindPlayer(s.players, from) < 0 {
		return
	}
	switch m := m.(type) {
	case *protocol.GameAction:
		action := m.Action
		action.PlayerID = from
		s.performAction(action)
	case *protocol.UsernameChange:
		s.renamePlayer(from, m.NewUsername)
	case *protocol.PlayerLeaving:
		s.log.WithField("player_id", from).Info("guest left")
		s.removePlayer(from)
	}
}

func (s *Session) renamePlayer(id models.PlayerID, name string) {
	name = strings.TrimSpace(name)
	idx := models.FindPlayer(s.players, id)
	if name == "" || idx < 0 || s.players[idx].Username == name {
		return
	}
	old := s.players[idx]
	renamed := models.Player{ID: id, Username: name}
	s.players[idx] = renamed
	s.dirty = true
	s.broadcast(protocol.SyncPlayers{Players: models.ClonePlayers(s.players)})
	s.mirror(func(ctx context.Context) error {
		return s.channel.RenamePlayer(ctx, s.id, old, renamed)
	})
}

// performAction is the action gate. Out-of-turn and no-op actions change
// nothing and send nothing.
func (s *Session) performAction(a models.GameAction) {
	log := s.log.WithFields(logrus.Fields{
		"player_id": a.PlayerID,
		"action":    a.Type,
	})
	if s.phase != models.PhaseInGame || s.state == nil {
		log.Debug("action outside a round ignored")
		return
	}
	if !s.module.IsTurnOf(s.state, a.PlayerID) {
		log.Debug("out-of-turn action ignored")
		return
	}
	next := s.module.HandleAction(s.state, a)
	raw, err := encodeState(next)
	if err != nil {
		log.WithError(err).Error("encode game state")
		return
	}
	if string(raw) == string(s.stateRaw) {
		log.Debug("action did not change the game")
		return
	}
	s.commitState(next, raw)
}

// commitState installs a new in-round state and tells every guest.
func (s *Session) commitState(next game.State, raw []byte) {
	s.setState(next, raw)
	s.broadcast(protocol.GameStateUpdate{GameState: raw})
	if s.module.IsGameOver(next) {
		s.finishRound()
		return
	}
	s.armTurnTimer()
}

func (s *Session) finishRound() {
	s.timer.stop()
	s.lastFinished = s.state
	s.setPhase(models.PhasePostGame)
	s.log.Info("round finished")
}

func (s *Session) setPhase(p models.GamePhase) {
	if s.phase == p {
		return
	}
	s.phase = p
	s.dirty = true
	s.mirror(func(ctx context.Context) error {
		return s.channel.SetPhase(ctx, s.id, p)
	})
}

func (s *Session) startGame() error {
	if s.role != RoleHost {
		return ErrNotHost
	}
	if s.phase == models.PhaseInGame {
		return nil
	}
	if len(s.players) < s.info.MinPlayers {
		return ErrNotEnoughPlayers
	}
	st, err := s.module.InitialState(models.PlayerIDs(s.players), s.lastFinished, s.options)
	if err != nil {
		return err
	}
	raw, err := encodeState(st)
	if err != nil {
		return err
	}
	s.setState(st, raw)
	s.setPhase(models.PhaseInGame)
	s.broadcast(protocol.StartGame{GameState: raw})
	s.log.WithField("players", len(s.players)).Info("round started")
	s.armTurnTimer()
	return nil
}

func (s *Session) returnToLobby() error {
	if s.role != RoleHost {
		return ErrNotHost
	}
	if s.phase == models.PhaseLobby {
		return nil
	}
	s.timer.stop()
	s.setState(nil, nil)
	s.setPhase(models.PhaseLobby)
	s.broadcast(protocol.ReturnToLobby{})
	return nil
}

func (s *Session) setOptions(changes models.Options) error {
	if s.role != RoleHost {
		return ErrNotHost
	}
	if s.phase != models.PhaseLobby {
		return ErrNotInLobby
	}
	merged, err := s.info.MergeOptions(s.options, changes)
	if err != nil {
		return err
	}
	s.options = merged
	s.dirty = true
	s.broadcast(protocol.GameOptionsChange{Options: merged.Clone()})
	s.mirror(func(ctx context.Context) error {
		return s.channel.SetOptions(ctx, s.id, merged)
	})
	return nil
}

// hostLeave deletes the document before closing connections, so guests
// learn that the host left rather than that the link dropped.
func (s *Session) hostLeave(ctx context.Context) error {
	s.timer.stop()
	err := s.channel.DeleteSession(ctx, s.id)
	if errors.Is(err, signaling.ErrNotFound) {
		err = nil
	}
	s.end("")
	return err
}
