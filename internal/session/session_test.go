// internal/session/session_test.go
package session_test

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/jason-s-yu/gamehub/internal/game"
	"github.com/jason-s-yu/gamehub/internal/game/tictactoe"
	"github.com/jason-s-yu/gamehub/internal/game/uno"
	"github.com/jason-s-yu/gamehub/internal/models"
	"github.com/jason-s-yu/gamehub/internal/peer"
	"github.com/jason-s-yu/gamehub/internal/peer/peertest"
	"github.com/jason-s-yu/gamehub/internal/session"
	"github.com/jason-s-yu/gamehub/internal/signaling"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 3 * time.Second
	tick    = 10 * time.Millisecond
)

// zeroRand makes the host X in tic-tac-toe and keeps deals deterministic.
type zeroRand struct{}

func (zeroRand) IntN(int) int { return 0 }

type harness struct {
	t        *testing.T
	store    *signaling.MemoryStore
	channel  *signaling.Channel
	net      *peertest.Network
	registry *game.Registry
	logger   *logrus.Logger
}

func newHarness(t *testing.T) *harness {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	store := signaling.NewMemoryStore()
	registry, err := game.NewRegistry(tictactoe.New(zeroRand{}), uno.New(zeroRand{}))
	require.NoError(t, err)
	return &harness{
		t:        t,
		store:    store,
		channel:  signaling.NewChannel(store, logger),
		net:      peertest.NewNetwork(),
		registry: registry,
		logger:   logger,
	}
}

func (h *harness) config(owner, name string) session.Config {
	return session.Config{
		Channel:  h.channel,
		Registry: h.registry,
		Factory:  h.net.Factory(owner),
		Logger:   h.logger,
		Username: name,
	}
}

func (h *harness) host(kind, name string) *session.Session {
	s, err := session.CreateGame(context.Background(), h.config("host", name), kind)
	require.NoError(h.t, err)
	h.t.Cleanup(func() { _ = s.Leave(context.Background()) })
	return s
}

// join adds a guest and waits until both sides see it connected.
func (h *harness) join(host *session.Session, owner, name string) *session.Session {
	g, err := session.JoinGame(context.Background(), h.config(owner, name), host.ID())
	require.NoError(h.t, err)
	h.t.Cleanup(func() { _ = g.Leave(context.Background()) })

	waitView(h.t, g, func(v session.View) bool {
		return v.Joined && v.Peers[models.HostPlayerID] == peer.StateConnected
	})
	waitView(h.t, host, func(v session.View) bool {
		return v.Peers[g.SelfID()] == peer.StateConnected
	})
	return g
}

func (h *harness) doc(id string) *models.SessionDoc {
	doc, err := h.channel.Lookup(context.Background(), id)
	require.NoError(h.t, err)
	return doc
}

func waitView(t *testing.T, s *session.Session, cond func(session.View) bool) session.View {
	t.Helper()
	require.Eventually(t, func() bool { return cond(s.View()) }, waitFor, tick)
	return s.View()
}

func board(v session.View) [9]tictactoe.Mark {
	st, ok := v.GameState.(*tictactoe.State)
	if !ok {
		return [9]tictactoe.Mark{}
	}
	return st.Board
}

func move(t *testing.T, s *session.Session, cell int) {
	t.Helper()
	action, err := models.NewGameAction(tictactoe.ActionMove, cell)
	require.NoError(t, err)
	require.NoError(t, s.PerformAction(action))
}

func encoded(t *testing.T, st game.State) string {
	raw, err := json.Marshal(st)
	require.NoError(t, err)
	return string(raw)
}

// sameGame waits until host and guest hold the same state and status line.
func sameGame(t *testing.T, host, guest *session.Session) {
	t.Helper()
	require.Eventually(t, func() bool {
		hv, gv := host.View(), guest.View()
		return hv.GameState != nil && gv.GameState != nil &&
			encoded(t, hv.GameState) == encoded(t, gv.GameState) &&
			hv.StatusText == gv.StatusText &&
			hv.Phase == gv.Phase
	}, waitFor, tick)
}

func TestCreateGameWritesDefaults(t *testing.T) {
	h := newHarness(t)
	host := h.host(tictactoe.ID, "Alice")

	doc := h.doc(host.ID())
	assert.Equal(t, tictactoe.ID, doc.GameKind)
	assert.Equal(t, models.HostPlayerID, doc.HostID)
	assert.Equal(t, []models.Player{{ID: "p1", Username: "Alice"}}, doc.Players)
	assert.Equal(t, models.PhaseLobby, doc.GamePhase)
	assert.Len(t, doc.Options, 1)
	assert.Equal(t, 0, doc.Options.Int("turnTimer", -1))

	v := host.View()
	assert.Equal(t, session.RoleHost, v.Role)
	assert.True(t, v.Joined)
	assert.Equal(t, models.PhaseLobby, v.Phase)
	assert.Nil(t, v.GameState)
	assert.Len(t, host.ID(), 6)
}

func TestCreateGameUnknownKind(t *testing.T) {
	h := newHarness(t)
	_, err := session.CreateGame(context.Background(), h.config("host", "Alice"), "chess")
	assert.ErrorIs(t, err, session.ErrUnknownGame)
}

func TestJoinGameNotFound(t *testing.T) {
	h := newHarness(t)
	_, err := session.JoinGame(context.Background(), h.config("g1", "Bob"), "NOPE42")
	assert.ErrorIs(t, err, session.ErrGameNotFound)
	assert.Equal(t, "Game not found or has been ended by the host.", err.Error())
}

func TestJoinSyncsRoster(t *testing.T) {
	h := newHarness(t)
	host := h.host(tictactoe.ID, "Alice")
	guest := h.join(host, "g1", "Bob")

	want := []models.Player{
		{ID: models.HostPlayerID, Username: "Alice"},
		{ID: guest.SelfID(), Username: "Bob"},
	}
	waitView(t, guest, func(v session.View) bool { return len(v.Players) == 2 })
	assert.Equal(t, want, guest.View().Players)
	assert.Equal(t, want, host.View().Players)
	assert.Equal(t, session.RoleGuest, guest.View().Role)
	assert.ElementsMatch(t, want, h.doc(host.ID()).Players)
}

func TestJoinFullLobbyLeavesRosterAlone(t *testing.T) {
	h := newHarness(t)
	host := h.host(tictactoe.ID, "Alice")
	h.join(host, "g1", "Bob")
	before := h.doc(host.ID()).Players

	_, err := session.JoinGame(context.Background(), h.config("g2", "Carol"), host.ID())
	require.ErrorIs(t, err, session.ErrLobbyFull)
	assert.Equal(t, session.NoticeLobbyFull, session.Notice(err))
	assert.Equal(t, before, h.doc(host.ID()).Players)
	assert.Len(t, host.View().Players, 2)
}

func TestHostRejectsSurplusRosterEntry(t *testing.T) {
	h := newHarness(t)
	host := h.host(tictactoe.ID, "Alice")
	guest := h.join(host, "g1", "Bob")

	// a second guest that slipped past the join check
	ghost := models.Player{ID: "g-ghost", Username: "Eve"}
	require.NoError(t, h.channel.AddPlayer(context.Background(), host.ID(), ghost))

	require.Eventually(t, func() bool {
		return models.FindPlayer(h.doc(host.ID()).Players, ghost.ID) < 0
	}, waitFor, tick)
	assert.Equal(t, []models.PlayerID{models.HostPlayerID, guest.SelfID()}, models.PlayerIDs(host.View().Players))
}

func TestPlayRoundWithoutDivergence(t *testing.T) {
	h := newHarness(t)
	host := h.host(tictactoe.ID, "Alice")
	guest := h.join(host, "g1", "Bob")

	require.NoError(t, host.StartGame())
	sameGame(t, host, guest)
	assert.Equal(t, "Alice's Turn", guest.View().StatusText)
	assert.True(t, host.View().MyTurn)
	assert.False(t, guest.View().MyTurn)

	// X: 0 1 2, O: 3 4
	for i, cell := range []int{0, 3, 1, 4, 2} {
		mover := host
		if i%2 == 1 {
			mover = guest
		}
		move(t, mover, cell)
		want := i + 1
		require.Eventually(t, func() bool {
			n := 0
			for _, m := range board(guest.View()) {
				if m != "" {
					n++
				}
			}
			return n == want
		}, waitFor, tick)
		sameGame(t, host, guest)
	}

	v := guest.View()
	assert.Equal(t, models.PhasePostGame, v.Phase)
	assert.Equal(t, "Alice wins!", v.StatusText)
	assert.Equal(t, 1, v.GameState.(*tictactoe.State).Scores[models.HostPlayerID])
	require.Eventually(t, func() bool {
		return h.doc(host.ID()).GamePhase == models.PhasePostGame
	}, waitFor, tick)

	// scores carry into the rematch
	require.NoError(t, host.StartGame())
	sameGame(t, host, guest)
	rematch := guest.View()
	assert.Equal(t, models.PhaseInGame, rematch.Phase)
	assert.Equal(t, [9]tictactoe.Mark{}, board(rematch))
	assert.Equal(t, 1, rematch.GameState.(*tictactoe.State).Scores[models.HostPlayerID])
}

func TestOutOfTurnActionChangesNothing(t *testing.T) {
	h := newHarness(t)
	host := h.host(tictactoe.ID, "Alice")
	guest := h.join(host, "g1", "Bob")
	require.NoError(t, host.StartGame())
	sameGame(t, host, guest)

	move(t, host, 4)
	sameGame(t, host, guest)
	before := host.View().GameState

	// guest's turn now
	move(t, host, 0)
	assert.Same(t, before, host.View().GameState)

	updates, cancel := guest.Subscribe()
	defer cancel()
	<-updates
	assert.Never(t, func() bool {
		select {
		case <-updates:
			return true
		default:
			return false
		}
	}, 200*time.Millisecond, tick)
	assert.Equal(t, tictactoe.Mark(""), board(guest.View())[0])
}

func TestGuestCannotActForAnotherPlayer(t *testing.T) {
	h := newHarness(t)
	host := h.host(tictactoe.ID, "Alice")
	guest := h.join(host, "g1", "Bob")
	require.NoError(t, host.StartGame())
	sameGame(t, host, guest)

	// host's turn; the claimed id is replaced by the sender's
	action, err := models.NewGameAction(tictactoe.ActionMove, 0)
	require.NoError(t, err)
	action.PlayerID = models.HostPlayerID
	require.NoError(t, guest.PerformAction(action))

	assert.Never(t, func() bool {
		return board(host.View())[0] != ""
	}, 200*time.Millisecond, tick)
}

func TestHostOnlyOperationsOnGuest(t *testing.T) {
	h := newHarness(t)
	host := h.host(tictactoe.ID, "Alice")
	guest := h.join(host, "g1", "Bob")

	assert.ErrorIs(t, guest.StartGame(), session.ErrNotHost)
	assert.ErrorIs(t, guest.SetOptions(models.Options{"turnTimer": 5}), session.ErrNotHost)
	assert.ErrorIs(t, guest.ReturnToLobby(), session.ErrNotHost)
}

func TestStartGameNeedsEnoughPlayers(t *testing.T) {
	h := newHarness(t)
	host := h.host(tictactoe.ID, "Alice")

	assert.ErrorIs(t, host.StartGame(), session.ErrNotEnoughPlayers)
	assert.Equal(t, models.PhaseLobby, host.View().Phase)
}

func TestStartGameDuringRoundIsNoop(t *testing.T) {
	h := newHarness(t)
	host := h.host(tictactoe.ID, "Alice")
	guest := h.join(host, "g1", "Bob")
	require.NoError(t, host.StartGame())
	sameGame(t, host, guest)

	move(t, host, 4)
	sameGame(t, host, guest)
	before := host.View()

	updates, cancel := guest.Subscribe()
	defer cancel()
	<-updates

	require.NoError(t, host.StartGame())
	after := host.View()
	assert.Same(t, before.GameState, after.GameState)
	assert.Equal(t, before.Players, after.Players)
	assert.Equal(t, models.PhaseInGame, after.Phase)

	// a restart would clear the board on the guest
	assert.Never(t, func() bool {
		select {
		case <-updates:
			return true
		default:
			return false
		}
	}, 200*time.Millisecond, tick)
	assert.Equal(t, tictactoe.MarkX, board(guest.View())[4])
}

func TestSetOptionsSyncsGuestsAndDocument(t *testing.T) {
	h := newHarness(t)
	host := h.host(tictactoe.ID, "Alice")
	guest := h.join(host, "g1", "Bob")

	require.NoError(t, host.SetOptions(models.Options{"turnTimer": 5}))
	waitView(t, guest, func(v session.View) bool { return v.Options.Int("turnTimer", 0) == 5 })
	require.Eventually(t, func() bool {
		return h.doc(host.ID()).Options.Int("turnTimer", 0) == 5
	}, waitFor, tick)

	assert.ErrorIs(t, host.SetOptions(models.Options{"fog": true}), game.ErrUnknownOption)
	assert.ErrorIs(t, host.SetOptions(models.Options{"turnTimer": 7}), game.ErrInvalidOption)

	require.NoError(t, host.StartGame())
	assert.ErrorIs(t, host.SetOptions(models.Options{"turnTimer": 2}), session.ErrNotInLobby)
	sameGame(t, host, guest)
	assert.Equal(t, "Alice's Turn (5s)", guest.View().StatusText)
}

func TestUsernameChanges(t *testing.T) {
	h := newHarness(t)
	host := h.host(tictactoe.ID, "Alice")
	guest := h.join(host, "g1", "Bob")

	require.NoError(t, guest.SetUsername("  Bobby "))
	waitView(t, host, func(v session.View) bool {
		i := models.FindPlayer(v.Players, guest.SelfID())
		return i >= 0 && v.Players[i].Username == "Bobby"
	})
	waitView(t, guest, func(v session.View) bool {
		i := models.FindPlayer(v.Players, guest.SelfID())
		return i >= 0 && v.Players[i].Username == "Bobby"
	})

	require.NoError(t, host.SetUsername("Ally"))
	waitView(t, guest, func(v session.View) bool { return v.Players[0].Username == "Ally" })
	require.Eventually(t, func() bool {
		names := map[models.PlayerID]string{}
		for _, p := range h.doc(host.ID()).Players {
			names[p.ID] = p.Username
		}
		return assert.ObjectsAreEqual(map[models.PlayerID]string{
			models.HostPlayerID: "Ally",
			guest.SelfID():      "Bobby",
		}, names)
	}, waitFor, tick)

	assert.ErrorIs(t, host.SetUsername("   "), session.ErrInvalidName)
}

func TestFailedPeerLeavesRoundRunning(t *testing.T) {
	h := newHarness(t)
	host := h.host(uno.ID, "Alice")
	g1 := h.join(host, "g1", "Bob")
	g2 := h.join(host, "g2", "Carol")
	g3 := h.join(host, "g3", "Dan")
	require.NoError(t, host.StartGame())
	sameGame(t, host, g1)

	h.net.Between("host", "g2").SetState(peer.StateFailed)

	v := waitView(t, host, func(v session.View) bool { return len(v.Players) == 3 })
	assert.Equal(t, models.PhaseInGame, v.Phase)
	st := v.GameState.(*uno.State)
	assert.NotContains(t, st.PlayerOrder, g2.SelfID())
	assert.Len(t, st.PlayerOrder, 3)

	for _, g := range []*session.Session{g1, g3} {
		waitView(t, g, func(v session.View) bool { return len(v.Players) == 3 })
		sameGame(t, host, g)
	}
	require.Eventually(t, func() bool {
		doc := h.doc(host.ID())
		return len(doc.Players) == 3 && doc.Slot(g2.SelfID()) == nil
	}, waitFor, tick)
}

func TestFailedPeerBelowMinimumReturnsToLobby(t *testing.T) {
	h := newHarness(t)
	host := h.host(tictactoe.ID, "Alice")
	guest := h.join(host, "g1", "Bob")
	require.NoError(t, host.StartGame())
	sameGame(t, host, guest)

	h.net.Between("host", "g1").SetState(peer.StateFailed)

	v := waitView(t, host, func(v session.View) bool { return len(v.Players) == 1 })
	assert.Equal(t, models.PhaseLobby, v.Phase)
	assert.Nil(t, v.GameState)
	assert.Empty(t, v.StatusText)
	require.Eventually(t, func() bool {
		return h.doc(host.ID()).GamePhase == models.PhaseLobby
	}, waitFor, tick)
}

func TestHostLeaveNotifiesGuestsOnce(t *testing.T) {
	h := newHarness(t)
	host := h.host(uno.ID, "Alice")
	guests := []*session.Session{h.join(host, "g1", "Bob"), h.join(host, "g2", "Carol")}

	var feeds []<-chan session.View
	for _, g := range guests {
		ch, cancel := g.Subscribe()
		defer cancel()
		feeds = append(feeds, ch)
	}

	require.NoError(t, host.Leave(context.Background()))
	_, err := h.channel.Lookup(context.Background(), host.ID())
	assert.ErrorIs(t, err, signaling.ErrNotFound)

	for i, g := range guests {
		<-g.Done()
		ended := 0
		for v := range feeds[i] {
			if v.Ended {
				ended++
				assert.Equal(t, session.NoticeHostLeft, v.Notice)
				assert.False(t, v.Joined)
				assert.Empty(t, v.Players)
			}
		}
		assert.Equal(t, 1, ended)
		assert.ErrorIs(t, g.StartGame(), session.ErrSessionClosed)
	}
}

func TestGuestSeesLostHost(t *testing.T) {
	h := newHarness(t)
	host := h.host(tictactoe.ID, "Alice")
	guest := h.join(host, "g1", "Bob")

	h.net.Between("g1", "host").SetState(peer.StateFailed)

	v := waitView(t, guest, func(v session.View) bool { return v.Ended })
	assert.Equal(t, session.NoticeHostLost, v.Notice)
	waitView(t, host, func(v session.View) bool { return len(v.Players) == 1 })
}

func TestGuestLeave(t *testing.T) {
	h := newHarness(t)
	host := h.host(tictactoe.ID, "Alice")
	guest := h.join(host, "g1", "Bob")

	require.NoError(t, guest.Leave(context.Background()))
	<-guest.Done()
	assert.True(t, guest.View().Ended)
	assert.Empty(t, guest.View().Notice)

	waitView(t, host, func(v session.View) bool { return len(v.Players) == 1 })
	require.Eventually(t, func() bool {
		return len(h.doc(host.ID()).Players) == 1
	}, waitFor, tick)
}

func TestReturnToLobby(t *testing.T) {
	h := newHarness(t)
	host := h.host(tictactoe.ID, "Alice")
	guest := h.join(host, "g1", "Bob")
	require.NoError(t, host.StartGame())
	sameGame(t, host, guest)

	require.NoError(t, host.ReturnToLobby())
	v := waitView(t, guest, func(v session.View) bool { return v.Phase == models.PhaseLobby })
	assert.Nil(t, v.GameState)
	assert.Nil(t, host.View().GameState)
}

func TestTurnTimerPlaysForLatePlayer(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for a real turn timeout")
	}
	h := newHarness(t)
	host := h.host(tictactoe.ID, "Alice")
	guest := h.join(host, "g1", "Bob")
	require.NoError(t, host.SetOptions(models.Options{"turnTimer": 2}))
	require.NoError(t, host.StartGame())

	// zeroRand picks the first free cell for the late player
	require.Eventually(t, func() bool {
		return board(guest.View())[0] == tictactoe.MarkX
	}, 4*time.Second, 50*time.Millisecond)
	assert.Equal(t, "Bob's Turn (2s)", guest.View().StatusText)
}
