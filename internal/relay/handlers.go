// internal/relay/handlers.go
package relay

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jason-s-yu/gamehub/internal/signaling"
	"github.com/jason-s-yu/gamehub/internal/signaling/wsstore"
	"github.com/sirupsen/logrus"
)

func (s *Server) createGame(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxDocBytes))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	doc, err := signaling.DecodeDoc(raw)
	if err != nil {
		http.Error(w, "invalid session document", http.StatusBadRequest)
		return
	}
	if err := s.store.Create(r.Context(), id, doc); err != nil {
		s.storeError(w, id, err)
		return
	}
	token, err := s.issuer.CreateHostToken(id)
	if err != nil {
		s.logger.WithError(err).WithField("game_id", id).Error("failed to sign host token")
		http.Error(w, "failed to create host token", http.StatusInternalServerError)
		return
	}
	s.logger.WithField("game_id", id).Info("session created")
	writeJSON(w, http.StatusCreated, wsstore.CreateResponse{Token: token})
}

func (s *Server) getGame(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.storeError(w, id, err)
		return
	}
	raw, err := signaling.EncodeDoc(doc)
	if err != nil {
		http.Error(w, "failed to encode document", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func (s *Server) patchGame(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req wsstore.PatchRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxDocBytes)).Decode(&req); err != nil {
		http.Error(w, "invalid patch", http.StatusBadRequest)
		return
	}
	if len(req.Ops) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := s.store.Apply(r.Context(), id, req.Ops...); err != nil {
		s.storeError(w, id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// deleteGame is the host-only call. The bearer token must be the one
// returned when the game was created.
func (s *Server) deleteGame(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		http.Error(w, "missing host token", http.StatusUnauthorized)
		return
	}
	if err := s.issuer.AuthenticateHost(token, id); err != nil {
		s.logger.WithFields(logrus.Fields{
			"game_id": id,
			"remote":  r.RemoteAddr,
		}).Warnf("rejected delete: %v", err)
		http.Error(w, "invalid host token", http.StatusForbidden)
		return
	}
	if err := s.store.Delete(r.Context(), id); err != nil {
		s.storeError(w, id, err)
		return
	}
	s.logger.WithField("game_id", id).Info("session deleted")
	w.WriteHeader(http.StatusNoContent)
}

// storeError maps store sentinels to status codes the client maps back.
func (s *Server) storeError(w http.ResponseWriter, id string, err error) {
	switch {
	case errors.Is(err, signaling.ErrNotFound):
		http.Error(w, "session not found", http.StatusNotFound)
	case errors.Is(err, signaling.ErrExists):
		http.Error(w, "session already exists", http.StatusConflict)
	case errors.Is(err, signaling.ErrBadPath):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		s.logger.WithError(err).WithField("game_id", id).Error("store call failed")
		http.Error(w, "store unavailable", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
