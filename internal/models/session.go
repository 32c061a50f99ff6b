// internal/models/session.go
package models

// GamePhase is the host-decided phase replicated to every guest.
type GamePhase string

const (
	PhaseLobby    GamePhase = "lobby"
	PhaseInGame   GamePhase = "in-game"
	PhasePostGame GamePhase = "post-game"
)

// SessionDescription is an SDP offer or answer in the browser's JSON shape.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// ICECandidate mirrors RTCIceCandidateInit so browser and Go peers can share
// the same signaling document.
type ICECandidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// ConnectionSlot holds the negotiation artifacts for one (host, guest) pair.
// The host writes Offer and HostCandidates, the guest writes Answer and
// GuestCandidates, so the two parties never write the same field.
type ConnectionSlot struct {
	Offer           *SessionDescription `json:"offer,omitempty"`
	Answer          *SessionDescription `json:"answer,omitempty"`
	HostCandidates  []ICECandidate      `json:"hostCandidates"`
	GuestCandidates []ICECandidate      `json:"guestCandidates"`
}

// SessionDoc is the signaling document stored under a game id.
type SessionDoc struct {
	GameKind    string                       `json:"gameKind"`
	HostID      PlayerID                     `json:"hostId"`
	Players     []Player                     `json:"players"`
	Options     Options                      `json:"options"`
	GamePhase   GamePhase                    `json:"gamePhase"`
	Connections map[PlayerID]*ConnectionSlot `json:"connections"`
}

// Slot returns the connection slot for a guest, or nil.
func (d *SessionDoc) Slot(guestID PlayerID) *ConnectionSlot {
	if d == nil || d.Connections == nil {
		return nil
	}
	return d.Connections[guestID]
}
