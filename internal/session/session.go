// internal/session/session.go
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jason-s-yu/gamehub/internal/game"
	"github.com/jason-s-yu/gamehub/internal/models"
	"github.com/jason-s-yu/gamehub/internal/peer"
	"github.com/jason-s-yu/gamehub/internal/protocol"
	"github.com/jason-s-yu/gamehub/internal/signaling"
	"github.com/sirupsen/logrus"
)

// Role tells whether the local player runs the game or follows it.
type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

// Config wires a session to its collaborators.
type Config struct {
	Channel  *signaling.Channel
	Registry *game.Registry
	Factory  peer.Factory
	Logger   *logrus.Logger
	Username string
	// GameID fixes the id of a created game. Empty picks a random code.
	GameID string
}

// Session is one player's view of one game. All mutable state is owned by
// the loop goroutine; every other goroutine talks to it through the inbox.
type Session struct {
	id     string
	role   Role
	selfID models.PlayerID
	hostID models.PlayerID
	module game.Module
	info   game.Info

	channel *signaling.Channel
	peers   *peer.Manager
	log     *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
	inbox  chan msg
	done   chan struct{}
	writes chan func(context.Context) error

	// loop-owned
	players      []models.Player
	options      models.Options
	phase        models.GamePhase
	state        game.State
	stateRaw     json.RawMessage
	lastFinished game.State
	peerStates   map[models.PlayerID]peer.State
	joined       bool
	notice       string
	ended        bool
	dirty        bool
	timer        turnTimer

	// host only
	opened  map[models.PlayerID]bool
	removed map[models.PlayerID]bool

	// guest only
	username    string
	sawSelf     bool
	checking    bool
	recheckJoin bool

	viewMu sync.Mutex
	view   View
	subs   map[chan View]struct{}
}

func newSession(parent context.Context, cfg Config, id string, role Role, mod game.Module) *Session {
	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		id:         id,
		role:       role,
		module:     mod,
		info:       mod.Info(),
		channel:    cfg.Channel,
		ctx:        ctx,
		cancel:     cancel,
		inbox:      make(chan msg, 64),
		done:       make(chan struct{}),
		writes:     make(chan func(context.Context) error, 64),
		phase:      models.PhaseLobby,
		peerStates: make(map[models.PlayerID]peer.State),
		opened:     make(map[models.PlayerID]bool),
		removed:    make(map[models.PlayerID]bool),
		subs:       make(map[chan View]struct{}),
	}
	s.log = cfg.Logger.WithFields(logrus.Fields{
		"game_id": id,
		"role":    role,
	})
	s.peers = peer.NewManager(ctx, peer.Config{
		GameID:  id,
		Channel: cfg.Channel,
		Factory: cfg.Factory,
		Handler: s,
		Logger:  s.log,
	})
	return s
}

// start launches the loop, the signaling pump and the mirror writer.
func (s *Session) start(sub <-chan signaling.Snapshot) {
	s.dirty = true
	s.publish()
	go s.loop()
	go s.pump(sub)
	go s.writer()
}

// ID is the game id other players join with.
func (s *Session) ID() string { return s.id }

// SelfID is the local player's id.
func (s *Session) SelfID() models.PlayerID { return s.selfID }

// Role reports whether the local player hosts the game.
func (s *Session) Role() Role { return s.role }

// Game describes the module the session plays.
func (s *Session) Game() game.Info { return s.info }

// Done is closed once the session has ended.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			if !s.ended {
				s.end("")
			}
			return
		case m := <-s.inbox:
			s.handle(m)
			s.publish()
			if s.ended {
				return
			}
		}
	}
}

func (s *Session) handle(m msg) {
	switch m := m.(type) {
	case docChanged:
		s.onSnapshot(m.snap)
	case peerStateChanged:
		s.peerStates[m.id] = m.state
		s.dirty = true
	case peerOpened:
		s.onPeerOpened(m.id)
	case peerMessage:
		s.onPeerMessage(m.id, m.data)
	case peerLost:
		s.onPeerLost(m.id, m.state)
	case hostLossChecked:
		s.end(m.notice)
	case joinWritten:
		s.sawSelf = true
	case joinChecked:
		s.onJoinChecked(m)
	case turnTimeout:
		s.onTurnTimeout(m.gen)
	case request:
		m.reply <- s.handleRequest(m)
	default:
		s.log.Warnf("unknown session message %T", m)
	}
}

func (s *Session) handleRequest(r request) error {
	switch r.kind {
	case reqStartGame:
		return s.startGame()
	case reqPerformAction:
		return s.performLocalAction(r.action)
	case reqSetOptions:
		return s.setOptions(r.options)
	case reqSetUsername:
		return s.setUsername(r.name)
	case reqReturnToLobby:
		return s.returnToLobby()
	case reqLeave:
		return s.leave(r.ctx)
	}
	return fmt.Errorf("session: unknown request %d", r.kind)
}

// post hands a message to the loop. It gives up once the session ended.
func (s *Session) post(m msg) {
	select {
	case s.inbox <- m:
	case <-s.done:
	}
}

// call runs a request on the loop and waits for its result.
func (s *Session) call(r request) error {
	r.reply = make(chan error, 1)
	select {
	case s.inbox <- r:
	case <-s.done:
		return ErrSessionClosed
	}
	select {
	case err := <-r.reply:
		return err
	case <-s.done:
		// the loop may have answered right before stopping
		select {
		case err := <-r.reply:
			return err
		default:
			return ErrSessionClosed
		}
	}
}

// pump applies every snapshot to the peer manager and forwards it to the
// loop. Negotiation runs here so the loop never blocks on a connection.
func (s *Session) pump(sub <-chan signaling.Snapshot) {
	for snap := range sub {
		if snap.Doc != nil {
			s.peers.ApplySignal(snap.Doc)
		}
		s.post(docChanged{snap: snap})
	}
}

// writer applies mirror writes to the session document in order.
func (s *Session) writer() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case w := <-s.writes:
			if err := w(s.ctx); err != nil && s.ctx.Err() == nil {
				s.log.WithError(err).Warn("mirror write failed")
			}
		}
	}
}

// mirror queues a write to the session document.
func (s *Session) mirror(w func(context.Context) error) {
	select {
	case s.writes <- w:
	case <-s.ctx.Done():
	}
}

// send encodes msg and delivers it to one peer.
func (s *Session) send(id models.PlayerID, m protocol.Message) error {
	data, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	return s.peers.Send(id, data)
}

// broadcast delivers msg to every guest with an open channel.
func (s *Session) broadcast(m protocol.Message) {
	data, err := protocol.Encode(m)
	if err != nil {
		s.log.WithError(err).Error("encode broadcast")
		return
	}
	reached := s.peers.Broadcast(data)
	s.log.WithFields(logrus.Fields{
		"type":    m.MessageType(),
		"reached": len(reached),
	}).Debug("broadcast")
}

// end tears the session down once. Guests surface notice on their view.
func (s *Session) end(notice string) {
	if s.ended {
		return
	}
	s.ended = true
	s.timer.stop()
	s.peers.CloseAll()
	s.cancel()
	if s.role == RoleGuest {
		s.players = []models.Player{}
		s.state = nil
		s.stateRaw = nil
		s.phase = models.PhaseLobby
	}
	s.joined = false
	s.notice = notice
	s.dirty = true
	s.log.WithField("notice", notice).Info("session ended")
}

func (s *Session) setState(st game.State, raw json.RawMessage) {
	s.state = st
	s.stateRaw = raw
	s.dirty = true
}

// encodeState marshals st, mapping nil to JSON null.
func encodeState(st game.State) (json.RawMessage, error) {
	if st == nil {
		return json.RawMessage("null"), nil
	}
	return json.Marshal(st)
}
