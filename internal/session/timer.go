// internal/session/timer.go
package session

import (
	"time"

	"github.com/jason-s-yu/gamehub/internal/game"
	"github.com/jason-s-yu/gamehub/internal/models"
)

// turnTimer tracks the single pending turn deadline. gen invalidates
// timeouts that fire after the turn already moved on.
type turnTimer struct {
	t   *time.Timer
	gen uint64
}

func (t *turnTimer) stop() {
	t.gen++
	if t.t != nil {
		t.t.Stop()
		t.t = nil
	}
}

// armTurnTimer restarts the deadline for whoever moves next.
func (s *Session) armTurnTimer() {
	s.timer.stop()
	if s.role != RoleHost || s.phase != models.PhaseInGame || s.state == nil {
		return
	}
	tt, ok := s.module.(game.TurnTimer)
	if !ok {
		return
	}
	d := tt.TurnTimeout(s.state)
	if d <= 0 {
		return
	}
	gen := s.timer.gen
	s.timer.t = time.AfterFunc(d, func() { s.post(turnTimeout{gen: gen}) })
}

// onTurnTimeout plays the module's fallback move through the action gate.
func (s *Session) onTurnTimeout(gen uint64) {
	if gen != s.timer.gen || s.phase != models.PhaseInGame || s.state == nil {
		return
	}
	tt := s.module.(game.TurnTimer)
	action, ok := tt.TimeoutAction(s.state)
	if !ok {
		s.armTurnTimer()
		return
	}
	s.log.WithField("player_id", action.PlayerID).Info("turn timed out")
	before := s.timer.gen
	s.performAction(action)
	if s.timer.gen == before && s.phase == models.PhaseInGame {
		s.armTurnTimer()
	}
}
