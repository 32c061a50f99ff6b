// internal/peer/peertest/network.go
package peertest

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/jason-s-yu/gamehub/internal/models"
	"github.com/jason-s-yu/gamehub/internal/peer"
)

var (
	errNoRemote = errors.New("peertest: remote description not set")
	errClosed   = errors.New("peertest: closed")
	errNotOpen  = errors.New("peertest: data channel not open")
)

// Network is an in-memory stand-in for WebRTC. Conns created by the same
// Network pair up through the SDP strings they exchange, emit fake ICE
// candidates, and connect once both sides hold the other's description and
// at least one of its candidates. Every callback runs on a per-conn
// goroutine, in order, like a real stack.
type Network struct {
	mu    sync.Mutex
	seq   int
	conns map[int]*Conn
}

// NewNetwork returns an empty network.
func NewNetwork() *Network {
	return &Network{conns: make(map[int]*Conn)}
}

// Factory returns a peer.Factory whose conns are tagged with owner, so tests
// can find them again with Between.
func (n *Network) Factory(owner string) peer.Factory {
	return func() (peer.Conn, error) {
		n.mu.Lock()
		defer n.mu.Unlock()
		n.seq++
		c := &Conn{
			net:     n,
			id:      n.seq,
			owner:   owner,
			state:   peer.StateIdle,
			queue:   make(chan func(), 1024),
			added:   make(map[string]int),
			gotFrom: make(map[int]bool),
		}
		n.conns[c.id] = c
		go c.run()
		return c, nil
	}
}

// Between returns the newest conn owned by a whose remote side is owned by b.
func (n *Network) Between(a, b string) *Conn {
	n.mu.Lock()
	defer n.mu.Unlock()
	var found *Conn
	for _, c := range n.conns {
		c.mu.Lock()
		remote := n.conns[c.remoteID]
		match := c.owner == a && remote != nil && remote.owner == b
		c.mu.Unlock()
		if match && (found == nil || c.id > found.id) {
			found = c
		}
	}
	return found
}

func (n *Network) lookup(id int) *Conn {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.conns[id]
}

// Conn is a fake peer connection.
type Conn struct {
	net   *Network
	id    int
	owner string
	queue chan func()

	mu          sync.Mutex
	onDC        func(peer.DataChannel)
	onCand      func(models.ICECandidate)
	onState     func(peer.State)
	localSet    bool
	remoteID    int
	state       peer.State
	channels    []*Channel
	added       map[string]int // remote candidates added, with counts
	gotFrom     map[int]bool
	closed      bool
	queueClosed bool
	connected   bool
}

func (c *Conn) run() {
	for f := range c.queue {
		f()
	}
}

// post schedules f on the conn's callback goroutine.
func (c *Conn) post(f func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.queueClosed {
		return
	}
	c.queue <- f
}

// Owner is the tag given to the Factory.
func (c *Conn) Owner() string { return c.owner }

// AddedCandidates reports how often each remote candidate was added.
func (c *Conn) AddedCandidates() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.added))
	for k, v := range c.added {
		out[k] = v
	}
	return out
}

// State is the last state this conn reported.
func (c *Conn) State() peer.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetState simulates a transport transition, e.g. an ICE failure. Terminal
// states also close the data channels on both ends.
func (c *Conn) SetState(s peer.State) {
	c.mu.Lock()
	c.state = s
	channels := append([]*Channel(nil), c.channels...)
	c.mu.Unlock()
	c.post(func() { c.emitState(s) })
	if s.Terminal() {
		for _, ch := range channels {
			ch.Close()
		}
	}
}

func (c *Conn) emitState(s peer.State) {
	c.mu.Lock()
	f := c.onState
	c.mu.Unlock()
	if f != nil {
		f(s)
	}
}

func (c *Conn) CreateDataChannel(label string) (peer.DataChannel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errClosed
	}
	ch := &Channel{label: label, owner: c}
	c.channels = append(c.channels, ch)
	return ch, nil
}

func (c *Conn) OnDataChannel(f func(peer.DataChannel)) {
	c.mu.Lock()
	c.onDC = f
	c.mu.Unlock()
}

func (c *Conn) OnICECandidate(f func(models.ICECandidate)) {
	c.mu.Lock()
	c.onCand = f
	c.mu.Unlock()
}

func (c *Conn) OnConnectionStateChange(f func(peer.State)) {
	c.mu.Lock()
	c.onState = f
	c.mu.Unlock()
}

func (c *Conn) CreateOffer() (models.SessionDescription, error) {
	return c.setLocal("offer")
}

func (c *Conn) CreateAnswer() (models.SessionDescription, error) {
	c.mu.Lock()
	hasRemote := c.remoteID != 0
	c.mu.Unlock()
	if !hasRemote {
		return models.SessionDescription{}, errNoRemote
	}
	return c.setLocal("answer")
}

// setLocal installs the local description and starts "gathering" two candidates.
func (c *Conn) setLocal(kind string) (models.SessionDescription, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return models.SessionDescription{}, errClosed
	}
	c.localSet = true
	c.mu.Unlock()

	for port := 1; port <= 2; port++ {
		cand := models.ICECandidate{
			Candidate: fmt.Sprintf("candidate:%d %d udp 2122260223 10.0.0.%d 5000%d typ host", c.id, port, c.id, port),
		}
		c.post(func() {
			c.mu.Lock()
			f := c.onCand
			c.mu.Unlock()
			if f != nil {
				f(cand)
			}
		})
	}
	return models.SessionDescription{Type: kind, SDP: kind + "-" + strconv.Itoa(c.id)}, nil
}

func (c *Conn) SetRemoteDescription(d models.SessionDescription) error {
	_, idStr, ok := strings.Cut(d.SDP, "-")
	id, err := strconv.Atoi(idStr)
	if !ok || err != nil || c.net.lookup(id) == nil {
		return fmt.Errorf("peertest: bad sdp %q", d.SDP)
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errClosed
	}
	c.remoteID = id
	c.mu.Unlock()
	c.tryConnect()
	return nil
}

func (c *Conn) HasRemoteDescription() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remoteID != 0
}

func (c *Conn) AddICECandidate(cand models.ICECandidate) error {
	var from int
	if _, err := fmt.Sscanf(cand.Candidate, "candidate:%d", &from); err != nil {
		return fmt.Errorf("peertest: bad candidate %q", cand.Candidate)
	}
	c.mu.Lock()
	if c.remoteID == 0 {
		c.mu.Unlock()
		return errNoRemote
	}
	c.added[cand.Candidate]++
	c.gotFrom[from] = true
	c.mu.Unlock()
	c.tryConnect()
	return nil
}

// tryConnect links both ends once each holds the other's description and
// at least one of its candidates.
func (c *Conn) tryConnect() {
	c.mu.Lock()
	remoteID := c.remoteID
	c.mu.Unlock()
	remote := c.net.lookup(remoteID)
	if remote == nil || remote == c {
		return
	}

	// lock in id order
	a, b := c, remote
	if a.id > b.id {
		a, b = b, a
	}
	a.mu.Lock()
	b.mu.Lock()
	ready := !a.connected && !a.closed && !b.closed &&
		a.localSet && b.localSet &&
		a.remoteID == b.id && b.remoteID == a.id &&
		a.gotFrom[b.id] && b.gotFrom[a.id]
	if ready {
		a.connected, b.connected = true, true
		a.state, b.state = peer.StateConnected, peer.StateConnected
	}
	var offerer, answerer *Conn
	if ready {
		offerer, answerer = a, b
		if len(b.channels) > 0 {
			offerer, answerer = b, a
		}
	}
	b.mu.Unlock()
	a.mu.Unlock()
	if !ready {
		return
	}

	offerer.post(func() { offerer.emitState(peer.StateConnected) })
	answerer.post(func() { answerer.emitState(peer.StateConnected) })

	offerer.mu.Lock()
	locals := append([]*Channel(nil), offerer.channels...)
	offerer.mu.Unlock()
	for _, local := range locals {
		remoteCh := &Channel{label: local.label, owner: answerer}
		local.mu.Lock()
		local.peer = remoteCh
		local.mu.Unlock()
		remoteCh.peer = local

		answerer.mu.Lock()
		answerer.channels = append(answerer.channels, remoteCh)
		answerer.mu.Unlock()

		answerer.post(func() {
			answerer.mu.Lock()
			f := answerer.onDC
			answerer.mu.Unlock()
			if f != nil {
				f(remoteCh)
			}
		})
		local.setOpen()
		remoteCh.setOpen()
	}
}

// Close shuts the conn. The remote end sees its data channels close.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.state = peer.StateClosed
	channels := append([]*Channel(nil), c.channels...)
	c.mu.Unlock()

	for _, ch := range channels {
		ch.Close()
	}
	c.post(func() { c.emitState(peer.StateClosed) })
	c.mu.Lock()
	c.queueClosed = true
	close(c.queue)
	c.mu.Unlock()
	return nil
}

// Channel is a fake data channel delivering messages to its peer in order.
type Channel struct {
	label string
	owner *Conn

	mu        sync.Mutex
	peer      *Channel
	open      bool
	closed    bool
	onOpen    func()
	onClose   func()
	onMessage func([]byte)
}

func (ch *Channel) Label() string { return ch.label }

func (ch *Channel) OnOpen(f func()) {
	ch.mu.Lock()
	ch.onOpen = f
	open := ch.open
	ch.mu.Unlock()
	if open {
		ch.owner.post(f)
	}
}

func (ch *Channel) OnClose(f func()) {
	ch.mu.Lock()
	ch.onClose = f
	ch.mu.Unlock()
}

func (ch *Channel) OnMessage(f func([]byte)) {
	ch.mu.Lock()
	ch.onMessage = f
	ch.mu.Unlock()
}

func (ch *Channel) setOpen() {
	ch.owner.post(func() {
		ch.mu.Lock()
		if ch.closed {
			ch.mu.Unlock()
			return
		}
		ch.open = true
		f := ch.onOpen
		ch.mu.Unlock()
		if f != nil {
			f()
		}
	})
}

func (ch *Channel) Send(data []byte) error {
	ch.mu.Lock()
	open, remote := ch.open, ch.peer
	ch.mu.Unlock()
	if !open || remote == nil {
		return errNotOpen
	}
	msg := append([]byte(nil), data...)
	remote.owner.post(func() {
		remote.mu.Lock()
		f := remote.onMessage
		closed := remote.closed
		remote.mu.Unlock()
		if f != nil && !closed {
			f(msg)
		}
	})
	return nil
}

// Close closes both ends.
func (ch *Channel) Close() error {
	if !ch.shut() {
		return nil
	}
	ch.mu.Lock()
	remote := ch.peer
	ch.mu.Unlock()
	if remote != nil {
		remote.shut()
	}
	return nil
}

// shut marks the end closed and schedules its close callback. It reports
// false if the end was already closed.
func (ch *Channel) shut() bool {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return false
	}
	ch.closed = true
	ch.open = false
	f := ch.onClose
	ch.mu.Unlock()
	if f != nil {
		ch.owner.post(f)
	}
	return true
}

var (
	_ peer.Conn        = (*Conn)(nil)
	_ peer.DataChannel = (*Channel)(nil)
)
