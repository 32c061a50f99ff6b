// internal/relay/server.go
package relay

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jason-s-yu/gamehub/internal/auth"
	"github.com/jason-s-yu/gamehub/internal/middleware"
	"github.com/jason-s-yu/gamehub/internal/signaling"
	"github.com/sirupsen/logrus"
)

// maxDocBytes caps request bodies. Session documents stay small.
const maxDocBytes = 1 << 20

// Server exposes a signaling.Store over HTTP so peers on different machines
// share one set of session documents.
type Server struct {
	store  signaling.Store
	issuer *auth.Issuer
	logger *logrus.Logger
}

// NewServer returns a relay in front of store. issuer signs the host tokens
// that guard deletion.
func NewServer(store signaling.Store, issuer *auth.Issuer, logger *logrus.Logger) *Server {
	return &Server{store: store, issuer: issuer, logger: logger}
}

// Routes returns the relay's HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.LogMiddleware(s.logger))

	r.Get("/healthz", Healthz)

	r.Post("/games/{id}", s.createGame)
	r.Get("/games/{id}", s.getGame)
	r.Patch("/games/{id}", s.patchGame)
	r.Delete("/games/{id}", s.deleteGame)
	r.Get("/games/{id}/ws", s.subscribeGame)
	return r
}

// Healthz reports that the relay is up.
func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
