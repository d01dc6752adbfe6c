package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Memory is an in-memory catalog safe for concurrent use.
type Memory struct {
	mu    sync.RWMutex
	rooms map[int64]Room
}

// NewMemory returns a catalog holding copies of rooms.
func NewMemory(rooms ...Room) *Memory {
	m := &Memory{rooms: make(map[int64]Room, len(rooms))}
	for _, r := range rooms {
		m.Put(r)
	}
	return m
}

// Put adds or replaces a room definition.
func (m *Memory) Put(r Room) {
	r = r.Clone()
	r.normalize()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[r.ID] = r
}

// Lookup implements Catalog.
func (m *Memory) Lookup(_ context.Context, roomID int64) (Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rooms[roomID]
	if !ok {
		return Room{}, fmt.Errorf("room %d: %w", roomID, ErrRoomNotFound)
	}
	return r.Clone(), nil
}

// Rooms returns copies of every room, ordered by id.
func (m *Memory) Rooms() []Room {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
