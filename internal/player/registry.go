package player

import (
	"sync"
)

// Registry is the process-wide map from guild id to player. Creation is
// atomic per guild: two concurrent callers never observe distinct players
// for the same guild.
type Registry struct {
	mu      sync.RWMutex
	players map[string]*Player
}

func NewRegistry() *Registry {
	return &Registry{players: make(map[string]*Player)}
}

// GetOrCreate returns the existing player for the guild or constructs one
// with newPlayer and inserts it. The second return reports whether a new
// player was created.
func (r *Registry) GetOrCreate(guildID string, newPlayer func() *Player) (*Player, bool) {
	r.mu.RLock()
	p, ok := r.players[guildID]
	r.mu.RUnlock()
	if ok {
		return p, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.players[guildID]; ok {
		return p, false
	}
	p = newPlayer()
	r.players[guildID] = p
	return p, true
}

// Get returns the existing player or ErrNotFound. Event-dispatch paths use
// this so stale node events never create state for unknown guilds.
func (r *Registry) Get(guildID string) (*Player, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.players[guildID]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

// Remove detaches and returns the player for teardown. Idempotent: a second
// call reports ErrNotFound.
func (r *Registry) Remove(guildID string) (*Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[guildID]
	if !ok {
		return nil, ErrNotFound
	}
	delete(r.players, guildID)
	return p, nil
}

// RemoveIf detaches the player only if it is still the registered instance
// for the guild. Teardown paths that decided on a specific player (idle
// expiry, stale-event cleanup) use this so they can never evict a fresh
// session that replaced it under the same guild id.
func (r *Registry) RemoveIf(guildID string, p *Player) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.players[guildID]
	if !ok || cur != p {
		return false
	}
	delete(r.players, guildID)
	return true
}

// All returns a snapshot of the registered players, used by the idle sweep.
func (r *Registry) All() []*Player {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Player, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, p)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players)
}
