// internal/session/messages.go
package session

import (
	"context"

	"github.com/jason-s-yu/gamehub/internal/models"
	"github.com/jason-s-yu/gamehub/internal/peer"
	"github.com/jason-s-yu/gamehub/internal/signaling"
)

// msg is anything the session loop consumes.
type msg interface{ isSessionMsg() }

type docChanged struct {
	snap signaling.Snapshot
}

type peerStateChanged struct {
	id    models.PlayerID
	state peer.State
}

type peerOpened struct {
	id models.PlayerID
}

type peerMessage struct {
	id   models.PlayerID
	data []byte
}

type peerLost struct {
	id    models.PlayerID
	state peer.State
}

// hostLossChecked carries the guest's verdict on a lost host connection.
type hostLossChecked struct {
	notice string
}

// joinWritten reports that our roster entry is in the document.
type joinWritten struct{}

// joinChecked carries a fresh read of the roster taken after a snapshot
// came without our entry.
type joinChecked struct {
	listed  bool
	deleted bool
}

type turnTimeout struct {
	gen uint64
}

type requestKind int

const (
	reqStartGame requestKind = iota
	reqPerformAction
	reqSetOptions
	reqSetUsername
	reqReturnToLobby
	reqLeave
)

// request is a call from the public API. The loop answers on reply.
type request struct {
	kind    requestKind
	ctx     context.Context
	action  models.GameAction
	options models.Options
	name    string
	reply   chan error
}

func (docChanged) isSessionMsg()       {}
func (peerStateChanged) isSessionMsg() {}
func (peerOpened) isSessionMsg()       {}
func (peerMessage) isSessionMsg()      {}
func (peerLost) isSessionMsg()         {}
func (hostLossChecked) isSessionMsg()  {}
func (joinWritten) isSessionMsg()      {}
func (joinChecked) isSessionMsg()      {}
func (turnTimeout) isSessionMsg()      {}
func (request) isSessionMsg()          {}

// The session is the peer manager's event handler. Events are queued for
// the loop and never touch session state directly.

func (s *Session) PeerStateChanged(id models.PlayerID, state peer.State) {
	s.post(peerStateChanged{id: id, state: state})
}

func (s *Session) PeerOpened(id models.PlayerID) {
	s.post(peerOpened{id: id})
}

func (s *Session) PeerMessage(id models.PlayerID, data []byte) {
	s.post(peerMessage{id: id, data: data})
}

func (s *Session) PeerLost(id models.PlayerID, state peer.State) {
	s.post(peerLost{id: id, state: state})
}
