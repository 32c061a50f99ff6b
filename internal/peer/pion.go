// internal/peer/pion.go
package peer

import (
	"fmt"

	"github.com/jason-s-yu/gamehub/internal/models"
	"github.com/pion/webrtc/v3"
)

// PionFactory builds connections on pion/webrtc using the given STUN servers.
func PionFactory(stunURLs []string) Factory {
	cfg := webrtc.Configuration{
		ICEServers:           []webrtc.ICEServer{{URLs: stunURLs}},
		ICECandidatePoolSize: 10,
	}
	return func() (Conn, error) {
		pc, err := webrtc.NewPeerConnection(cfg)
		if err != nil {
			return nil, fmt.Errorf("new peer connection: %w", err)
		}
		return &pionConn{pc: pc}, nil
	}
}

type pionConn struct {
	pc *webrtc.PeerConnection
}

func (c *pionConn) CreateDataChannel(label string) (DataChannel, error) {
	// nil init means ordered and reliable
	dc, err := c.pc.CreateDataChannel(label, nil)
	if err != nil {
		return nil, err
	}
	return &pionChannel{dc: dc}, nil
}

func (c *pionConn) OnDataChannel(f func(DataChannel)) {
	c.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		f(&pionChannel{dc: dc})
	})
}

func (c *pionConn) OnICECandidate(f func(models.ICECandidate)) {
	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		init := cand.ToJSON()
		f(models.ICECandidate{
			Candidate:        init.Candidate,
			SDPMid:           init.SDPMid,
			SDPMLineIndex:    init.SDPMLineIndex,
			UsernameFragment: init.UsernameFragment,
		})
	})
}

func (c *pionConn) OnConnectionStateChange(f func(State)) {
	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		f(fromPionState(s))
	})
}

func (c *pionConn) CreateOffer() (models.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return models.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return models.SessionDescription{}, err
	}
	return models.SessionDescription{Type: offer.Type.String(), SDP: offer.SDP}, nil
}

func (c *pionConn) CreateAnswer() (models.SessionDescription, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return models.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return models.SessionDescription{}, err
	}
	return models.SessionDescription{Type: answer.Type.String(), SDP: answer.SDP}, nil
}

func (c *pionConn) SetRemoteDescription(d models.SessionDescription) error {
	return c.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.NewSDPType(d.Type),
		SDP:  d.SDP,
	})
}

func (c *pionConn) HasRemoteDescription() bool {
	return c.pc.RemoteDescription() != nil
}

func (c *pionConn) AddICECandidate(cand models.ICECandidate) error {
	return c.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:        cand.Candidate,
		SDPMid:           cand.SDPMid,
		SDPMLineIndex:    cand.SDPMLineIndex,
		UsernameFragment: cand.UsernameFragment,
	})
}

func (c *pionConn) Close() error {
	return c.pc.Close()
}

func fromPionState(s webrtc.PeerConnectionState) State {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return StateConnecting
	case webrtc.PeerConnectionStateConnected:
		return StateConnected
	case webrtc.PeerConnectionStateDisconnected:
		return StateDisconnected
	case webrtc.PeerConnectionStateFailed:
		return StateFailed
	case webrtc.PeerConnectionStateClosed:
		return StateClosed
	}
	return StateIdle
}

type pionChannel struct {
	dc *webrtc.DataChannel
}

func (c *pionChannel) Label() string { return c.dc.Label() }
func (c *pionChannel) OnOpen(f func()) { c.dc.OnOpen(f) }
func (c *pionChannel) OnClose(f func()) { c.dc.OnClose(f) }
func (c *pionChannel) Close() error { return c.dc.Close() }

func (c *pionChannel) OnMessage(f func([]byte)) {
	c.dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		f(msg.Data)
	})
}

// Send uses text frames; browser peers parse messages as JSON strings.
func (c *pionChannel) Send(data []byte) error {
	return c.dc.SendText(string(data))
}
