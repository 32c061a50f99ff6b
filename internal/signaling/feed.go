// internal/signaling/feed.go
package signaling

import (
	"context"
	"sync"
)

// Feed hands snapshots to a single subscriber without ever blocking the
// writer. Snapshots are full document values, so when the reader falls
// behind only the newest one is kept.
type Feed struct {
	out    chan Snapshot
	notify chan struct{}

	mu     sync.Mutex
	latest *Snapshot
}

// NewFeed starts the delivery goroutine. The returned feed's channel closes
// once ctx is done; onClose (may be nil) runs right before that.
func NewFeed(ctx context.Context, onClose func(*Feed)) *Feed {
	f := &Feed{
		out:    make(chan Snapshot),
		notify: make(chan struct{}, 1),
	}
	go f.run(ctx, onClose)
	return f
}

// C returns the receive side of the feed.
func (f *Feed) C() <-chan Snapshot { return f.out }

// Push replaces the pending snapshot.
func (f *Feed) Push(snap Snapshot) {
	f.mu.Lock()
	f.latest = &snap
	f.mu.Unlock()
	select {
	case f.notify <- struct{}{}:
	default:
	}
}

func (f *Feed) take() (Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.latest == nil {
		return Snapshot{}, false
	}
	snap := *f.latest
	f.latest = nil
	return snap, true
}

func (f *Feed) run(ctx context.Context, onClose func(*Feed)) {
	defer close(f.out)
	if onClose != nil {
		defer onClose(f)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.notify:
		}
		snap, ok := f.take()
		if !ok {
			continue
		}
		select {
		case f.out <- snap:
		case <-ctx.Done():
			return
		}
	}
}
