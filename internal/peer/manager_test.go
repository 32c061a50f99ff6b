// internal/peer/manager_test.go
package peer_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jason-s-yu/gamehub/internal/models"
	"github.com/jason-s-yu/gamehub/internal/peer"
	"github.com/jason-s-yu/gamehub/internal/peer/peertest"
	"github.com/jason-s-yu/gamehub/internal/signaling"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const gameID = "GAME01"

type recorder struct {
	mu     sync.Mutex
	states map[models.PlayerID][]peer.State
	opened map[models.PlayerID]int
	lost   map[models.PlayerID][]peer.State
	msgs   map[models.PlayerID][]string
}

func newRecorder() *recorder {
	return &recorder{
		states: map[models.PlayerID][]peer.State{},
		opened: map[models.PlayerID]int{},
		lost:   map[models.PlayerID][]peer.State{},
		msgs:   map[models.PlayerID][]string{},
	}
}

func (r *recorder) PeerStateChanged(id models.PlayerID, s peer.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[id] = append(r.states[id], s)
}

func (r *recorder) PeerOpened(id models.PlayerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opened[id]++
}

func (r *recorder) PeerMessage(id models.PlayerID, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs[id] = append(r.msgs[id], string(data))
}

func (r *recorder) PeerLost(id models.PlayerID, s peer.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lost[id] = append(r.lost[id], s)
}

func (r *recorder) openedCount(id models.PlayerID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opened[id]
}

func (r *recorder) lostStates(id models.PlayerID) []peer.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]peer.State(nil), r.lost[id]...)
}

func (r *recorder) messages(id models.PlayerID) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs[id]...)
}

type pair struct {
	net           *peertest.Network
	channel       *signaling.Channel
	host, guest   *peer.Manager
	hostH, guestH *recorder
}

// connectPair wires a host and a guest manager through one in-memory store
// and pumps every document snapshot into both, like a session does.
func connectPair(t *testing.T) *pair {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	channel := signaling.NewChannel(signaling.NewMemoryStore(), logger)
	require.NoError(t, channel.CreateSession(ctx, gameID, &models.SessionDoc{
		GameKind:  "tic-tac-toe",
		HostID:    models.HostPlayerID,
		Players:   []models.Player{{ID: models.HostPlayerID, Username: "Host"}, {ID: "g-1", Username: "Guest"}},
		GamePhase: models.PhaseLobby,
	}))

	p := &pair{net: peertest.NewNetwork(), channel: channel, hostH: newRecorder(), guestH: newRecorder()}
	p.host = peer.NewManager(ctx, peer.Config{
		GameID: gameID, Channel: channel, Factory: p.net.Factory("host"),
		Handler: p.hostH, Logger: logrus.NewEntry(logger),
	})
	p.guest = peer.NewManager(ctx, peer.Config{
		GameID: gameID, Channel: channel, Factory: p.net.Factory("guest"),
		Handler: p.guestH, Logger: logrus.NewEntry(logger),
	})
	t.Cleanup(p.host.CloseAll)
	t.Cleanup(p.guest.CloseAll)

	snaps, err := channel.Subscribe(ctx, gameID)
	require.NoError(t, err)
	go func() {
		for snap := range snaps {
			if snap.Doc == nil {
				continue
			}
			p.host.ApplySignal(snap.Doc)
			p.guest.ApplySignal(snap.Doc)
		}
	}()

	require.NoError(t, p.guest.ConnectAsGuest(ctx, models.HostPlayerID, "g-1"))
	require.NoError(t, p.host.ConnectAsHost(ctx, "g-1"))

	require.Eventually(t, func() bool {
		return p.hostH.openedCount("g-1") == 1 && p.guestH.openedCount(models.HostPlayerID) == 1
	}, 2*time.Second, 5*time.Millisecond)
	return p
}

func TestConnectAndExchange(t *testing.T) {
	p := connectPair(t)

	assert.Equal(t, peer.StateConnected, p.host.States()["g-1"])
	assert.Equal(t, peer.StateConnected, p.guest.States()[models.HostPlayerID])

	require.NoError(t, p.host.Send("g-1", []byte("one")))
	require.NoError(t, p.host.Send("g-1", []byte("two")))
	require.NoError(t, p.guest.Send(models.HostPlayerID, []byte("hello")))

	require.Eventually(t, func() bool {
		return len(p.guestH.messages(models.HostPlayerID)) == 2 && len(p.hostH.messages("g-1")) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"one", "two"}, p.guestH.messages(models.HostPlayerID), "ordered delivery")
	assert.Equal(t, []string{"hello"}, p.hostH.messages("g-1"))

	assert.Equal(t, []models.PlayerID{"g-1"}, p.host.Broadcast([]byte("all")))
}

func TestRemoteCandidatesAddedOnce(t *testing.T) {
	p := connectPair(t)

	// more snapshots repeating the same candidate lists
	ctx := context.Background()
	require.NoError(t, p.channel.SetPhase(ctx, gameID, models.PhaseInGame))
	require.NoError(t, p.channel.SetPhase(ctx, gameID, models.PhaseLobby))

	hostConn := p.net.Between("host", "guest")
	require.NotNil(t, hostConn)
	require.Eventually(t, func() bool { return len(hostConn.AddedCandidates()) == 2 }, time.Second, 5*time.Millisecond)
	for cand, n := range hostConn.AddedCandidates() {
		assert.Equal(t, 1, n, cand)
	}
}

func TestSignalingDocumentCarriesNegotiation(t *testing.T) {
	p := connectPair(t)

	require.Eventually(t, func() bool {
		doc, err := p.channel.Lookup(context.Background(), gameID)
		if err != nil {
			return false
		}
		slot := doc.Slot("g-1")
		return slot != nil && slot.Offer != nil && slot.Answer != nil &&
			len(slot.HostCandidates) == 2 && len(slot.GuestCandidates) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestPeerLostReportedOncePerEpisode(t *testing.T) {
	p := connectPair(t)

	p.net.Between("host", "guest").SetState(peer.StateFailed)

	require.Eventually(t, func() bool {
		return p.host.States()["g-1"] == peer.StateClosed && len(p.guestH.lostStates(models.HostPlayerID)) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []peer.State{peer.StateFailed}, p.hostH.lostStates("g-1"))
	assert.Equal(t, []peer.State{peer.StateClosed}, p.guestH.lostStates(models.HostPlayerID))

	assert.ErrorIs(t, p.host.Send("g-1", []byte("x")), peer.ErrNotConnected)
}

func TestCloseIsNotReportedLocally(t *testing.T) {
	p := connectPair(t)

	p.host.Close("g-1")

	require.Eventually(t, func() bool {
		return len(p.guestH.lostStates(models.HostPlayerID)) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, p.hostH.lostStates("g-1"))
	assert.NotContains(t, p.host.States(), models.PlayerID("g-1"))
}

func TestOfferWriteFailureReportsLost(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	h := newRecorder()
	m := peer.NewManager(context.Background(), peer.Config{
		GameID:  "missing",
		Channel: signaling.NewChannel(signaling.NewMemoryStore(), logger),
		Factory: peertest.NewNetwork().Factory("host"),
		Handler: h,
		Logger:  logrus.NewEntry(logger),
	})
	defer m.CloseAll()

	err := m.ConnectAsHost(context.Background(), "g-1")
	assert.ErrorIs(t, err, signaling.ErrNotFound)
	assert.Equal(t, []peer.State{peer.StateFailed}, h.lostStates("g-1"))
}

func TestStateTerminal(t *testing.T) {
	for _, s := range []peer.State{peer.StateDisconnected, peer.StateFailed, peer.StateClosed} {
		assert.True(t, s.Terminal(), s)
	}
	for _, s := range []peer.State{peer.StateIdle, peer.StateConnecting, peer.StateConnected} {
		assert.False(t, s.Terminal(), s)
	}
}
