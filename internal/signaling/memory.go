// internal/signaling/memory.go
package signaling

import (
	"context"
	"sync"

	"github.com/jason-s-yu/gamehub/internal/models"
)

// MemoryStore keeps session documents in process memory. It backs the relay
// server by default and wires peers together in tests.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string][]byte
	subs map[string]map[*Feed]struct{}
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string][]byte),
		subs: make(map[string]map[*Feed]struct{}),
	}
}

func (s *MemoryStore) Create(ctx context.Context, id string, doc *models.SessionDoc) error {
	raw, err := EncodeDoc(doc)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.docs[id]; exists {
		return ErrExists
	}
	s.docs[id] = raw
	s.publishLocked(id, raw)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.SessionDoc, error) {
	s.mu.Lock()
	raw, ok := s.docs[id]
	s.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return DecodeDoc(raw)
}

func (s *MemoryStore) Apply(ctx context.Context, id string, ops ...Op) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.docs[id]
	if !ok {
		return ErrNotFound
	}
	next, err := ApplyOps(raw, ops)
	if err != nil {
		return err
	}
	s.docs[id] = next
	s.publishLocked(id, next)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return ErrNotFound
	}
	delete(s.docs, id)
	s.publishLocked(id, nil)
	return nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, id string) (<-chan Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	feed := NewFeed(ctx, func(f *Feed) {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs[id], f)
		if len(s.subs[id]) == 0 {
			delete(s.subs, id)
		}
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs[id] == nil {
		s.subs[id] = make(map[*Feed]struct{})
	}
	s.subs[id][feed] = struct{}{}
	if raw, ok := s.docs[id]; ok {
		pushRaw(feed, raw)
	} else {
		feed.Push(Snapshot{Deleted: true})
	}
	return feed.C(), nil
}

// publishLocked fans a new value out to subscribers; nil raw means deleted.
// Caller holds s.mu.
func (s *MemoryStore) publishLocked(id string, raw []byte) {
	for feed := range s.subs[id] {
		pushRaw(feed, raw)
	}
}

// pushRaw decodes per subscriber so no two readers share a document value.
func pushRaw(feed *Feed, raw []byte) {
	if raw == nil {
		feed.Push(Snapshot{Deleted: true})
		return
	}
	doc, err := DecodeDoc(raw)
	if err != nil {
		return
	}
	feed.Push(Snapshot{Doc: doc})
}
