// internal/game/registry.go
package game

import (
	"fmt"
	"sync"
)

// Registry maps game ids to modules. It is filled once at startup.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]Module
	order   []string
}

// NewRegistry registers mods in order.
func NewRegistry(mods ...Module) (*Registry, error) {
	r := &Registry{modules: make(map[string]Module)}
	for _, m := range mods {
		if err := r.Register(m); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a module. Ids must be unique and the player bounds sane.
func (r *Registry) Register(m Module) error {
	info := m.Info()
	if info.ID == "" {
		return fmt.Errorf("game module has empty id")
	}
	if info.MinPlayers < 1 || info.MaxPlayers < info.MinPlayers {
		return fmt.Errorf("game module %s has invalid player bounds %d..%d", info.ID, info.MinPlayers, info.MaxPlayers)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.modules[info.ID]; exists {
		return fmt.Errorf("game module %s registered twice", info.ID)
	}
	r.modules[info.ID] = m
	r.order = append(r.order, info.ID)
	return nil
}

// Lookup returns the module for id.
func (r *Registry) Lookup(id string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[id]
	return m, ok
}

// List returns the registered modules' info in registration order.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.modules[id].Info())
	}
	return out
}
