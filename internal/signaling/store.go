// internal/signaling/store.go
package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jason-s-yu/gamehub/internal/models"
)

var (
	// ErrNotFound is returned when no document exists for a game id.
	ErrNotFound = errors.New("signaling: session not found")
	// ErrExists is returned by Create when the game id is already taken.
	ErrExists = errors.New("signaling: session already exists")
	// ErrBadPath is returned when a patch path walks through a non-object value.
	ErrBadPath = errors.New("signaling: invalid field path")
)

// Snapshot is one full value of a session document as seen by a subscriber.
// Deleted is set once the host removed the document; Doc is nil then.
type Snapshot struct {
	Doc     *models.SessionDoc
	Deleted bool
}

// Store is the shared, eventually-consistent document store used as a
// mailbox between peers. Every successful write must be pushed to all
// subscribers of that id as a full snapshot.
type Store interface {
	Create(ctx context.Context, id string, doc *models.SessionDoc) error
	Get(ctx context.Context, id string) (*models.SessionDoc, error)
	Apply(ctx context.Context, id string, ops ...Op) error
	Delete(ctx context.Context, id string) error
	// Subscribe delivers the current value first, then every change, until
	// ctx is done. The channel is closed afterwards.
	Subscribe(ctx context.Context, id string) (<-chan Snapshot, error)
}

// EncodeDoc marshals a session document, normalizing nil collections so the
// stored shape always carries players, options and connections.
func EncodeDoc(doc *models.SessionDoc) ([]byte, error) {
	if doc == nil {
		return nil, fmt.Errorf("signaling: nil document")
	}
	out := *doc
	if out.Players == nil {
		out.Players = []models.Player{}
	}
	if out.Options == nil {
		out.Options = models.Options{}
	}
	if out.Connections == nil {
		out.Connections = map[models.PlayerID]*models.ConnectionSlot{}
	}
	return json.Marshal(&out)
}

// DecodeDoc unmarshals a stored document.
func DecodeDoc(data []byte) (*models.SessionDoc, error) {
	var doc models.SessionDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("signaling: decode document: %w", err)
	}
	return &doc, nil
}
