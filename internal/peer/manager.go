// internal/peer/manager.go
package peer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jason-s-yu/gamehub/internal/models"
	"github.com/jason-s-yu/gamehub/internal/signaling"
	"github.com/sirupsen/logrus"
)

// ErrNotConnected is returned by Send when the peer has no open data channel.
var ErrNotConnected = errors.New("peer: no open data channel")

// Handler receives connection events. Calls arrive on connection goroutines
// and must not block for long.
type Handler interface {
	PeerStateChanged(id models.PlayerID, state State)
	// PeerOpened fires when the data channel becomes usable.
	PeerOpened(id models.PlayerID)
	PeerMessage(id models.PlayerID, data []byte)
	// PeerLost fires once per failure episode, when the peer first reaches
	// disconnected, failed or closed.
	PeerLost(id models.PlayerID, state State)
}

// Config wires a Manager to one game.
type Config struct {
	GameID  string
	Channel *signaling.Channel
	Factory Factory
	Handler Handler
	Logger  *logrus.Entry
}

type role int

const (
	roleHost role = iota // we offered; the remote is a guest
	roleGuest            // we answered; the remote is the host
)

// link is the connection to one remote peer.
type link struct {
	remote models.PlayerID
	slot   models.PlayerID // guest id owning the connection slot
	role   role
	conn   Conn

	// guarded by Manager.mu
	dc           DataChannel
	open         bool
	state        State
	lost         bool
	localReady   bool // offer or answer written; local candidates may go out
	localPending []models.ICECandidate

	// negMu serializes calls into conn that drive negotiation.
	negMu    sync.Mutex
	answered bool
	seen     signaling.CandidateSet
}

// Manager owns one peer connection and data channel per remote peer.
type Manager struct {
	gameID  string
	channel *signaling.Channel
	factory Factory
	handler Handler
	log     *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	links map[models.PlayerID]*link
}

// NewManager returns a manager whose background signaling writes stop when
// ctx ends or CloseAll is called.
func NewManager(ctx context.Context, cfg Config) *Manager {
	ctx, cancel := context.WithCancel(ctx)
	return &Manager{
		gameID:  cfg.GameID,
		channel: cfg.Channel,
		factory: cfg.Factory,
		handler: cfg.Handler,
		log:     cfg.Logger,
		ctx:     ctx,
		cancel:  cancel,
		links:   make(map[models.PlayerID]*link),
	}
}

// ConnectAsHost starts a connection to a guest: creates the data channel,
// writes the offer into the guest's slot and trickles host candidates. The
// guest's answer and candidates are consumed by ApplySignal.
func (m *Manager) ConnectAsHost(ctx context.Context, guestID models.PlayerID) error {
	l, err := m.newLink(guestID, guestID, roleHost)
	if err != nil {
		return err
	}

	dc, err := l.conn.CreateDataChannel(DataChannelLabel)
	if err != nil {
		m.fail(l, err)
		return fmt.Errorf("create data channel: %w", err)
	}
	m.attachChannel(l, dc)

	offer, err := l.conn.CreateOffer()
	if err != nil {
		m.fail(l, err)
		return fmt.Errorf("create offer: %w", err)
	}
	if err := m.channel.WriteOffer(ctx, m.gameID, guestID, offer); err != nil {
		m.fail(l, err)
		return err
	}
	m.markLocalReady(l)
	return nil
}

// ConnectAsGuest prepares the connection to the host. The host's offer is
// picked up by ApplySignal, which answers it.
func (m *Manager) ConnectAsGuest(ctx context.Context, hostID, selfID models.PlayerID) error {
	l, err := m.newLink(hostID, selfID, roleGuest)
	if err != nil {
		return err
	}
	l.conn.OnDataChannel(func(dc DataChannel) {
		if dc.Label() != DataChannelLabel {
			dc.Close()
			return
		}
		m.attachChannel(l, dc)
	})
	return nil
}

func (m *Manager) newLink(remote, slot models.PlayerID, r role) (*link, error) {
	conn, err := m.factory()
	if err != nil {
		return nil, err
	}
	l := &link{
		remote: remote,
		slot:   slot,
		role:   r,
		conn:   conn,
		state:  StateConnecting,
		seen:   signaling.CandidateSet{},
	}

	m.mu.Lock()
	old := m.links[remote]
	m.links[remote] = l
	m.mu.Unlock()
	if old != nil {
		old.conn.Close()
	}

	conn.OnICECandidate(func(c models.ICECandidate) { m.localCandidate(l, c) })
	conn.OnConnectionStateChange(func(s State) { m.setState(l, s) })
	m.handler.PeerStateChanged(remote, StateConnecting)
	return l, nil
}

func (m *Manager) attachChannel(l *link, dc DataChannel) {
	m.mu.Lock()
	l.dc = dc
	m.mu.Unlock()

	dc.OnOpen(func() {
		m.mu.Lock()
		current := m.links[l.remote] == l
		if current {
			l.open = true
		}
		m.mu.Unlock()
		if current {
			m.handler.PeerOpened(l.remote)
		}
	})
	dc.OnMessage(func(data []byte) {
		if m.current(l) {
			m.handler.PeerMessage(l.remote, data)
		}
	})
	dc.OnClose(func() {
		m.mu.Lock()
		l.open = false
		m.mu.Unlock()
		m.setState(l, StateClosed)
	})
}

// localCandidate forwards a local candidate into our half of the slot. An
// offer write replaces the whole slot, so candidates found before it are held back.
func (m *Manager) localCandidate(l *link, c models.ICECandidate) {
	m.mu.Lock()
	if m.links[l.remote] != l {
		m.mu.Unlock()
		return
	}
	if !l.localReady {
		l.localPending = append(l.localPending, c)
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	m.sendCandidate(l, c)
}

func (m *Manager) markLocalReady(l *link) {
	m.mu.Lock()
	l.localReady = true
	pending := l.localPending
	l.localPending = nil
	m.mu.Unlock()
	for _, c := range pending {
		m.sendCandidate(l, c)
	}
}

func (m *Manager) sendCandidate(l *link, c models.ICECandidate) {
	path := signaling.HostCandidatesPath(l.slot)
	if l.role == roleGuest {
		path = signaling.GuestCandidatesPath(l.slot)
	}
	go func() {
		// failures are logged by the channel; the peer may already be gone
		_ = m.channel.AppendCandidate(m.ctx, m.gameID, path, c)
	}()
}

// ApplySignal consumes the negotiation fields of a document snapshot for
// every link: the host's answer or the guest's offer, then any remote
// candidates not seen before. Candidates are only added once the remote
// description is in place; later snapshots repeat them until then.
func (m *Manager) ApplySignal(doc *models.SessionDoc) {
	m.mu.Lock()
	links := make([]*link, 0, len(m.links))
	for _, l := range m.links {
		links = append(links, l)
	}
	m.mu.Unlock()

	for _, l := range links {
		slot := doc.Slot(l.slot)
		if slot == nil {
			continue
		}
		m.applySlot(l, slot)
	}
}

func (m *Manager) applySlot(l *link, slot *models.ConnectionSlot) {
	l.negMu.Lock()
	defer l.negMu.Unlock()

	log := m.log.WithField("peer_id", l.remote)
	remoteCands := slot.GuestCandidates

	switch l.role {
	case roleHost:
		if slot.Answer != nil && !l.conn.HasRemoteDescription() {
			if err := l.conn.SetRemoteDescription(*slot.Answer); err != nil {
				log.WithError(err).Warn("rejecting answer")
				m.fail(l, err)
				return
			}
		}
	case roleGuest:
		remoteCands = slot.HostCandidates
		if slot.Offer != nil && !l.answered {
			if err := l.conn.SetRemoteDescription(*slot.Offer); err != nil {
				log.WithError(err).Warn("rejecting offer")
				m.fail(l, err)
				return
			}
			answer, err := l.conn.CreateAnswer()
			if err != nil {
				log.WithError(err).Warn("creating answer")
				m.fail(l, err)
				return
			}
			l.answered = true
			go func() {
				if err := m.channel.WriteAnswer(m.ctx, m.gameID, l.slot, answer); err == nil {
					m.markLocalReady(l)
				}
			}()
		}
	}

	if !l.conn.HasRemoteDescription() {
		return
	}
	for _, c := range l.seen.Fresh(remoteCands) {
		if err := l.conn.AddICECandidate(c); err != nil {
			log.WithError(err).Debug("ignoring remote candidate")
		}
	}
}

func (m *Manager) current(l *link) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.links[l.remote] == l
}

func (m *Manager) fail(l *link, err error) {
	m.log.WithField("peer_id", l.remote).WithError(err).Warn("peer connection failed")
	m.setState(l, StateFailed)
}

// setState records a transition and reports the first terminal state of an
// episode as lost. Events from replaced or closed links are dropped.
func (m *Manager) setState(l *link, s State) {
	m.mu.Lock()
	if m.links[l.remote] != l || l.state == s {
		m.mu.Unlock()
		return
	}
	l.state = s
	reportLost := false
	switch {
	case s.Terminal() && !l.lost:
		l.lost = true
		reportLost = true
	case s == StateConnected:
		l.lost = false
	}
	m.mu.Unlock()

	m.log.WithFields(logrus.Fields{"peer_id": l.remote, "state": s}).Debug("peer state changed")
	m.handler.PeerStateChanged(l.remote, s)
	if reportLost {
		m.handler.PeerLost(l.remote, s)
	}
}

// Send delivers data to one peer.
func (m *Manager) Send(id models.PlayerID, data []byte) error {
	m.mu.Lock()
	l := m.links[id]
	var dc DataChannel
	if l != nil && l.open {
		dc = l.dc
	}
	m.mu.Unlock()
	if dc == nil {
		return ErrNotConnected
	}
	return dc.Send(data)
}

// Broadcast delivers data to every peer with an open channel and returns
// the ids it reached.
func (m *Manager) Broadcast(data []byte) []models.PlayerID {
	m.mu.Lock()
	targets := make(map[models.PlayerID]DataChannel, len(m.links))
	for id, l := range m.links {
		if l.open && l.dc != nil {
			targets[id] = l.dc
		}
	}
	m.mu.Unlock()

	var reached []models.PlayerID
	for id, dc := range targets {
		if err := dc.Send(data); err != nil {
			m.log.WithField("peer_id", id).WithError(err).Debug("broadcast send failed")
			continue
		}
		reached = append(reached, id)
	}
	return reached
}

// Close tears down the link to one peer without reporting it as lost.
func (m *Manager) Close(id models.PlayerID) {
	m.mu.Lock()
	l := m.links[id]
	delete(m.links, id)
	var dc DataChannel
	if l != nil {
		dc = l.dc
		l.open = false
	}
	m.mu.Unlock()
	if l == nil {
		return
	}
	if dc != nil {
		dc.Close()
	}
	l.conn.Close()
}

// CloseAll tears down every link and stops background writes.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	ids := make([]models.PlayerID, 0, len(m.links))
	for id := range m.links {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		m.Close(id)
	}
	m.cancel()
}

// States returns the current state of every known peer.
func (m *Manager) States() map[models.PlayerID]State {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[models.PlayerID]State, len(m.links))
	for id, l := range m.links {
		out[id] = l.state
	}
	return out
}
