// internal/session/view.go
package session

import (
	"github.com/jason-s-yu/gamehub/internal/game"
	"github.com/jason-s-yu/gamehub/internal/models"
	"github.com/jason-s-yu/gamehub/internal/peer"
)

// View is an immutable snapshot of a session for rendering.
type View struct {
	GameID   string
	GameKind string
	Role     Role
	SelfID   models.PlayerID
	HostID   models.PlayerID

	Players []models.Player
	Options models.Options
	Phase   models.GamePhase
	// GameState is nil outside a round. Treat it as read-only.
	GameState  game.State
	StatusText string
	MyTurn     bool

	Peers  map[models.PlayerID]peer.State
	Joined bool
	// Notice explains why a session ended, when it did not end by choice.
	Notice string
	Ended  bool
}

// View returns the latest snapshot. It keeps working after the session ended.
func (s *Session) View() View {
	s.viewMu.Lock()
	defer s.viewMu.Unlock()
	return s.view
}

// Subscribe returns a channel that receives a View after every change. A slow
// reader skips intermediate views but always gets the newest one. The
// channel is closed by the returned cancel func or when the session ends.
func (s *Session) Subscribe() (<-chan View, func()) {
	ch := make(chan View, 8)
	s.viewMu.Lock()
	if s.view.Ended {
		ch <- s.view
		close(ch)
		s.viewMu.Unlock()
		return ch, func() {}
	}
	s.subs[ch] = struct{}{}
	ch <- s.view
	s.viewMu.Unlock()

	return ch, func() {
		s.viewMu.Lock()
		defer s.viewMu.Unlock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
	}
}

// publish rebuilds the view when the loop changed something.
func (s *Session) publish() {
	if !s.dirty {
		return
	}
	s.dirty = false
	v := s.buildView()

	s.viewMu.Lock()
	defer s.viewMu.Unlock()
	s.view = v
	for ch := range s.subs {
		offer(ch, v)
		if v.Ended {
			delete(s.subs, ch)
			close(ch)
		}
	}
}

// offer replaces the oldest queued view when ch is full.
func offer(ch chan View, v View) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func (s *Session) buildView() View {
	v := View{
		GameID:    s.id,
		GameKind:  s.info.ID,
		Role:      s.role,
		SelfID:    s.selfID,
		HostID:    s.hostID,
		Players:   models.ClonePlayers(s.players),
		Options:   s.options.Clone(),
		Phase:     s.phase,
		GameState: s.state,
		Peers:     make(map[models.PlayerID]peer.State, len(s.peerStates)),
		Joined:    s.joined,
		Notice:    s.notice,
		Ended:     s.ended,
	}
	for id, st := range s.peerStates {
		v.Peers[id] = st
	}
	if s.state != nil {
		v.StatusText = s.module.StatusText(s.state, s.players)
		v.MyTurn = s.phase == models.PhaseInGame && s.module.IsTurnOf(s.state, s.selfID)
	}
	return v
}
