// internal/relay/server_test.go
package relay_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jason-s-yu/gamehub/internal/auth"
	"github.com/jason-s-yu/gamehub/internal/game/catalog"
	"github.com/jason-s-yu/gamehub/internal/models"
	"github.com/jason-s-yu/gamehub/internal/peer/peertest"
	"github.com/jason-s-yu/gamehub/internal/relay"
	"github.com/jason-s-yu/gamehub/internal/session"
	"github.com/jason-s-yu/gamehub/internal/signaling"
	"github.com/jason-s-yu/gamehub/internal/signaling/wsstore"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRelay(t *testing.T) (*httptest.Server, *logrus.Logger) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	issuer, err := auth.NewIssuer(time.Hour)
	require.NoError(t, err)
	srv := httptest.NewServer(relay.NewServer(signaling.NewMemoryStore(), issuer, logger).Routes())
	t.Cleanup(srv.Close)
	return srv, logger
}

func newClient(t *testing.T, srv *httptest.Server, logger *logrus.Logger) *wsstore.Client {
	c, err := wsstore.New(srv.URL, logger)
	require.NoError(t, err)
	return c
}

func lobbyDoc() *models.SessionDoc {
	return &models.SessionDoc{
		GameKind:  "tic-tac-toe",
		HostID:    models.HostPlayerID,
		Players:   []models.Player{{ID: models.HostPlayerID, Username: "Alice"}},
		Options:   models.Options{"turnTimer": 0},
		GamePhase: models.PhaseLobby,
	}
}

func next(t *testing.T, ch <-chan signaling.Snapshot) signaling.Snapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		require.True(t, ok, "subscription closed")
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot")
	}
	return signaling.Snapshot{}
}

func TestHealthz(t *testing.T) {
	srv, _ := newRelay(t)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRelayDocumentLifecycle(t *testing.T) {
	ctx := context.Background()
	srv, logger := newRelay(t)
	host := newClient(t, srv, logger)

	require.NoError(t, host.Create(ctx, "ABC123", lobbyDoc()))
	assert.ErrorIs(t, host.Create(ctx, "ABC123", lobbyDoc()), signaling.ErrExists)

	doc, err := host.Get(ctx, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, "tic-tac-toe", doc.GameKind)
	assert.Equal(t, 0, doc.Options.Int("turnTimer", -1))

	bob := models.Player{ID: "g-1", Username: "Bob"}
	require.NoError(t, host.Apply(ctx, "ABC123", signaling.Union("players", bob)))
	doc, err = host.Get(ctx, "ABC123")
	require.NoError(t, err)
	assert.Contains(t, doc.Players, bob)

	err = host.Apply(ctx, "ABC123", signaling.Set("gameKind.nested", 1))
	assert.ErrorIs(t, err, signaling.ErrBadPath)

	_, err = host.Get(ctx, "NOPE")
	assert.ErrorIs(t, err, signaling.ErrNotFound)
	assert.ErrorIs(t, host.Apply(ctx, "NOPE", signaling.Set("gamePhase", "lobby")), signaling.ErrNotFound)
}

func TestRelayDeleteNeedsHostToken(t *testing.T) {
	ctx := context.Background()
	srv, logger := newRelay(t)
	host := newClient(t, srv, logger)
	guest := newClient(t, srv, logger)
	require.NoError(t, host.Create(ctx, "ABC123", lobbyDoc()))
	require.NoError(t, host.Create(ctx, "XYZ789", lobbyDoc()))

	assert.Error(t, guest.Delete(ctx, "ABC123"))
	_, err := guest.Get(ctx, "ABC123")
	require.NoError(t, err)

	// a token for one game does not open another
	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/games/ABC123", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer not-a-token")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	require.NoError(t, host.Delete(ctx, "ABC123"))
	_, err = guest.Get(ctx, "ABC123")
	assert.ErrorIs(t, err, signaling.ErrNotFound)
	_, err = guest.Get(ctx, "XYZ789")
	assert.NoError(t, err)
}

func TestRelaySubscribePushesSnapshots(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv, logger := newRelay(t)
	host := newClient(t, srv, logger)
	guest := newClient(t, srv, logger)
	require.NoError(t, host.Create(ctx, "ABC123", lobbyDoc()))

	_, err := guest.Subscribe(ctx, "NOPE")
	assert.ErrorIs(t, err, signaling.ErrNotFound)

	sub, err := guest.Subscribe(ctx, "ABC123")
	require.NoError(t, err)
	first := next(t, sub)
	require.NotNil(t, first.Doc)
	assert.Len(t, first.Doc.Players, 1)

	require.NoError(t, host.Apply(ctx, "ABC123", signaling.Set("gamePhase", models.PhaseInGame)))
	assert.Equal(t, models.PhaseInGame, next(t, sub).Doc.GamePhase)

	require.NoError(t, host.Delete(ctx, "ABC123"))
	assert.True(t, next(t, sub).Deleted)
	select {
	case _, ok := <-sub:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not closed after delete")
	}
}

func TestSessionsOverRelay(t *testing.T) {
	srv, logger := newRelay(t)
	net := peertest.NewNetwork()
	config := func(owner, name string) session.Config {
		return session.Config{
			Channel:  signaling.NewChannel(newClient(t, srv, logger), logger),
			Registry: catalog.Default(),
			Factory:  net.Factory(owner),
			Logger:   logger,
			Username: name,
		}
	}

	host, err := session.CreateGame(context.Background(), config("host", "Alice"), "tic-tac-toe")
	require.NoError(t, err)
	defer host.Leave(context.Background())

	guest, err := session.JoinGame(context.Background(), config("g1", "Bob"), host.ID())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return guest.View().Joined && len(host.View().Players) == 2
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, host.Leave(context.Background()))
	require.Eventually(t, func() bool { return guest.View().Ended }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, session.NoticeHostLeft, guest.View().Notice)
}
