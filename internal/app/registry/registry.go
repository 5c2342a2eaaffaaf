package registry

import (
	"context"
	"encoding/json"
	"sync"

	"civicstream/internal/core/contracts"
	"civicstream/internal/core/domain"
)

// Registry is the in-memory room membership table for this gateway
// node: client id → connection, room → member set, and the reverse
// index used to clean up on unregister.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]contracts.Client
	rooms   map[domain.Room]map[string]contracts.Client
	joined  map[string]map[domain.Room]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]contracts.Client),
		rooms:   make(map[domain.Room]map[string]contracts.Client),
		joined:  make(map[string]map[domain.Room]struct{}),
	}
}

func (r *Registry) Register(c contracts.Client) {
	r.mu.Lock()
	r.clients[c.ID()] = c
	r.joined[c.ID()] = make(map[domain.Room]struct{})
	r.mu.Unlock()
	// every connection participates in its owner's personal room
	r.Join(c, domain.UserRoom(c.UserID()))
}

func (r *Registry) Unregister(c contracts.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := c.ID()
	for room := range r.joined[id] {
		delete(r.rooms[room], id)
		if len(r.rooms[room]) == 0 {
			delete(r.rooms, room)
		}
	}
	delete(r.joined, id)
	delete(r.clients, id)
}

func (r *Registry) Join(c contracts.Client, room domain.Room) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := c.ID()
	if _, ok := r.clients[id]; !ok {
		return
	}
	if r.rooms[room] == nil {
		r.rooms[room] = make(map[string]contracts.Client)
	}
	r.rooms[room][id] = c
	r.joined[id][room] = struct{}{}
}

func (r *Registry) Leave(c contracts.Client, room domain.Room) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := c.ID()
	delete(r.rooms[room], id)
	if len(r.rooms[room]) == 0 {
		delete(r.rooms, room)
	}
	delete(r.joined[id], room)
}

// Members returns how many connections currently sit in a room.
func (r *Registry) Members(room domain.Room) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}

func (r *Registry) Broadcast(
	ctx context.Context,
	room domain.Room,
	env domain.Envelope,
	exceptUser string,
) {
	r.mu.RLock()
	members := make([]contracts.Client, 0, len(r.rooms[room]))
	for _, c := range r.rooms[room] {
		if exceptUser != "" && c.UserID() == exceptUser {
			continue
		}
		members = append(members, c)
	}
	r.mu.RUnlock()
	if len(members) == 0 {
		return
	}
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	for _, c := range members {
		_ = c.Send(ctx, data)
	}
}

func (r *Registry) BroadcastAll(ctx context.Context, env domain.Envelope) {
	r.mu.RLock()
	members := make([]contracts.Client, 0, len(r.clients))
	for _, c := range r.clients {
		members = append(members, c)
	}
	r.mu.RUnlock()
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	for _, c := range members {
		_ = c.Send(ctx, data)
	}
}
