// internal/relay/ws.go
package relay

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/jason-s-yu/gamehub/internal/middleware"
	"github.com/jason-s-yu/gamehub/internal/signaling"
	"github.com/jason-s-yu/gamehub/internal/signaling/wsstore"
)

// writeTimeout bounds a single frame write to a slow subscriber.
const writeTimeout = 5 * time.Second

// subscribeGame streams full snapshots of one session document. The socket
// is push only; anything the client sends is discarded.
func (s *Server) subscribeGame(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.Get(r.Context(), id); err != nil {
		s.storeError(w, id, err)
		return
	}

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Warnf("websocket accept error: %v", err)
		return
	}
	defer c.Close(websocket.StatusInternalError, "handler finished")
	middleware.LogWebSocketConnect(s.logger, r.RemoteAddr, r.URL.Path)

	// CloseRead cancels ctx once the client goes away.
	ctx := c.CloseRead(r.Context())
	sub, err := s.store.Subscribe(ctx, id)
	if err != nil {
		middleware.LogWebSocketDisconnect(s.logger, r.RemoteAddr, r.URL.Path, err)
		c.Close(websocket.StatusInternalError, "subscribe failed")
		return
	}

	err = pushSnapshots(ctx, c, sub)
	middleware.LogWebSocketDisconnect(s.logger, r.RemoteAddr, r.URL.Path, err)
	if err == nil {
		c.Close(websocket.StatusNormalClosure, "session deleted")
	}
}

func pushSnapshots(ctx context.Context, c *websocket.Conn, sub <-chan signaling.Snapshot) error {
	for snap := range sub {
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		err := wsjson.Write(wctx, c, wsstore.Frame{Doc: snap.Doc, Deleted: snap.Deleted})
		cancel()
		if err != nil {
			return err
		}
		if snap.Deleted {
			return nil
		}
	}
	// the feed only closes early when the client went away
	return ctx.Err()
}
