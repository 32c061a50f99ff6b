// internal/peer/conn.go
package peer

import "github.com/jason-s-yu/gamehub/internal/models"

// State is the connection state of one remote peer.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateFailed       State = "failed"
	StateClosed       State = "closed"
)

// Terminal reports whether the peer should be treated as gone.
func (s State) Terminal() bool {
	return s == StateDisconnected || s == StateFailed || s == StateClosed
}

// DataChannelLabel names the single ordered, reliable channel per peer.
const DataChannelLabel = "gameData"

// Conn is one WebRTC peer connection. CreateOffer and CreateAnswer also
// install the result as the local description. Callbacks may run on any
// goroutine.
type Conn interface {
	CreateDataChannel(label string) (DataChannel, error)
	OnDataChannel(func(DataChannel))
	// OnICECandidate reports local candidates; the end-of-gathering marker is not reported.
	OnICECandidate(func(models.ICECandidate))
	OnConnectionStateChange(func(State))
	CreateOffer() (models.SessionDescription, error)
	CreateAnswer() (models.SessionDescription, error)
	SetRemoteDescription(models.SessionDescription) error
	HasRemoteDescription() bool
	AddICECandidate(models.ICECandidate) error
	Close() error
}

// DataChannel is the message pipe of a Conn.
type DataChannel interface {
	Label() string
	OnOpen(func())
	OnClose(func())
	OnMessage(func([]byte))
	Send(data []byte) error
	Close() error
}

// Factory creates a fresh, unconnected Conn.
type Factory func() (Conn, error)
