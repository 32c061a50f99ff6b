// internal/signaling/channel.go
package signaling

import (
	"context"
	"fmt"

	"github.com/jason-s-yu/gamehub/internal/models"
	"github.com/sirupsen/logrus"
)

// Channel moves SDP and ICE payloads plus the mirrored lobby state between
// peers through a Store. It is the only component that touches the store.
type Channel struct {
	store Store
	log   *logrus.Logger
}

// NewChannel wraps a store.
func NewChannel(store Store, logger *logrus.Logger) *Channel {
	return &Channel{store: store, log: logger}
}

// HostCandidatesPath is the field the host appends its candidates to.
func HostCandidatesPath(guestID models.PlayerID) string {
	return slotPath(guestID) + ".hostCandidates"
}

// GuestCandidatesPath is the field the guest appends its candidates to.
func GuestCandidatesPath(guestID models.PlayerID) string {
	return slotPath(guestID) + ".guestCandidates"
}

func slotPath(guestID models.PlayerID) string {
	return "connections." + string(guestID)
}

// CreateSession writes the initial document for a new game.
func (c *Channel) CreateSession(ctx context.Context, gameID string, doc *models.SessionDoc) error {
	if err := c.store.Create(ctx, gameID, doc); err != nil {
		return c.failed(gameID, "create session", err)
	}
	return nil
}

// Lookup reads the current document. It returns ErrNotFound for unknown or ended games.
func (c *Channel) Lookup(ctx context.Context, gameID string) (*models.SessionDoc, error) {
	doc, err := c.store.Get(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", gameID, err)
	}
	return doc, nil
}

// Subscribe delivers the full document on every change. Callers diff
// snapshots themselves.
func (c *Channel) Subscribe(ctx context.Context, gameID string) (<-chan Snapshot, error) {
	ch, err := c.store.Subscribe(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", gameID, err)
	}
	return ch, nil
}

// WriteOffer creates the connection slot for a guest, replacing any earlier one.
func (c *Channel) WriteOffer(ctx context.Context, gameID string, guestID models.PlayerID, offer models.SessionDescription) error {
	slot := models.ConnectionSlot{
		Offer:           &offer,
		HostCandidates:  []models.ICECandidate{},
		GuestCandidates: []models.ICECandidate{},
	}
	return c.apply(ctx, gameID, "write offer", Set(slotPath(guestID), slot))
}

// WriteAnswer stores the guest's answer in its own slot.
func (c *Channel) WriteAnswer(ctx context.Context, gameID string, guestID models.PlayerID, answer models.SessionDescription) error {
	return c.apply(ctx, gameID, "write answer", Set(slotPath(guestID)+".answer", answer))
}

// AppendCandidate adds a candidate to a candidate list with set-union
// semantics, so concurrent appends never clobber each other.
func (c *Channel) AppendCandidate(ctx context.Context, gameID string, path string, cand models.ICECandidate) error {
	return c.apply(ctx, gameID, "append candidate", Union(path, cand))
}

// RemoveSlot retires a guest's negotiation artifacts.
func (c *Channel) RemoveSlot(ctx context.Context, gameID string, guestID models.PlayerID) error {
	return c.apply(ctx, gameID, "remove slot", Delete(slotPath(guestID)))
}

// AddPlayer registers a joining guest in the mirrored roster.
func (c *Channel) AddPlayer(ctx context.Context, gameID string, p models.Player) error {
	return c.apply(ctx, gameID, "add player", Union("players", p))
}

// RemovePlayer drops a roster entry.
func (c *Channel) RemovePlayer(ctx context.Context, gameID string, p models.Player) error {
	return c.apply(ctx, gameID, "remove player", Remove("players", p))
}

// RenamePlayer swaps a roster entry for its renamed version in one write.
func (c *Channel) RenamePlayer(ctx context.Context, gameID string, old, renamed models.Player) error {
	return c.apply(ctx, gameID, "rename player", Remove("players", old), Union("players", renamed))
}

// SetOptions mirrors the host's game options.
func (c *Channel) SetOptions(ctx context.Context, gameID string, opts models.Options) error {
	return c.apply(ctx, gameID, "set options", Set("options", opts))
}

// SetPhase mirrors the host's game phase.
func (c *Channel) SetPhase(ctx context.Context, gameID string, phase models.GamePhase) error {
	return c.apply(ctx, gameID, "set phase", Set("gamePhase", phase))
}

// DeleteSession ends the game for every subscriber. Host only.
func (c *Channel) DeleteSession(ctx context.Context, gameID string) error {
	if err := c.store.Delete(ctx, gameID); err != nil {
		return c.failed(gameID, "delete session", err)
	}
	return nil
}

func (c *Channel) apply(ctx context.Context, gameID, what string, ops ...Op) error {
	if err := c.store.Apply(ctx, gameID, ops...); err != nil {
		return c.failed(gameID, what, err)
	}
	return nil
}

func (c *Channel) failed(gameID, what string, err error) error {
	c.log.WithFields(logrus.Fields{
		"game_id": gameID,
		"op":      what,
	}).Warnf("signaling write failed: %v", err)
	return fmt.Errorf("%s: %w", what, err)
}
