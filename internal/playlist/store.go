// Package playlist keeps the ordered playlist of a single room.
//
// A Store is not safe for concurrent use; it is owned by one room and only
// touched from that room's execution context.
package playlist

import (
	"sort"
	"time"

	"github.com/jason-s-yu/roomsim/internal/models"
)

// Listener receives playlist mutations in the order they happen.
type Listener interface {
	PlaylistItemAdded(item models.PlaylistItem)
	PlaylistItemChanged(item models.PlaylistItem)
	PlaylistItemRemoved(itemID int64)
}

type nopListener struct{}

func (nopListener) PlaylistItemAdded(models.PlaylistItem)   {}
func (nopListener) PlaylistItemChanged(models.PlaylistItem) {}
func (nopListener) PlaylistItemRemoved(int64)               {}

// Store owns the playlist items of one room.
type Store struct {
	items    []*models.PlaylistItem // id ascending
	byID     map[int64]*models.PlaylistItem
	lastID   int64
	mode     models.QueueMode
	listener Listener
}

// New builds a store from pre-existing items. The items are copied, the id
// counter continues from the largest existing id and the initial ordering is
// computed without notifying.
func New(items []models.PlaylistItem, mode models.QueueMode, listener Listener) *Store {
	if listener == nil {
		listener = nopListener{}
	}
	s := &Store{
		items:    make([]*models.PlaylistItem, 0, len(items)),
		byID:     make(map[int64]*models.PlaylistItem, len(items)),
		mode:     mode,
		listener: listener,
	}
	for _, item := range items {
		it := item.Clone()
		s.items = append(s.items, &it)
		s.byID[it.ID] = &it
		if it.ID > s.lastID {
			s.lastID = it.ID
		}
	}
	sort.Slice(s.items, func(i, j int) bool { return s.items[i].ID < s.items[j].ID })
	s.reorder(false)
	return s
}

// QueueMode returns the mode the store currently orders by.
func (s *Store) QueueMode() models.QueueMode {
	return s.mode
}

// SetQueueMode changes the ordering policy. Call Reorder to apply it.
func (s *Store) SetQueueMode(mode models.QueueMode) {
	s.mode = mode
}

// Add queues a copy of item under the next unused id, at the back of the queue,
// then re-ranks the pending items. It returns the stored item.
func (s *Store) Add(item models.PlaylistItem) models.PlaylistItem {
	s.lastID++

	it := item.Clone()
	it.ID = s.lastID
	it.Expired = false
	it.PlayedAt = nil
	it.PlaylistOrder = s.PendingCount()

	s.items = append(s.items, &it)
	s.byID[it.ID] = &it

	s.listener.PlaylistItemAdded(it.Clone())
	s.reorder(true)
	return it.Clone()
}

// Edit replaces the content of an existing item. The owner and the rank are kept.
func (s *Store) Edit(actorID, hostID int, item models.PlaylistItem) (models.PlaylistItem, error) {
	existing, ok := s.byID[item.ID]
	if !ok {
		return models.PlaylistItem{}, models.ErrNotFound
	}
	if existing.OwnerID != actorID && actorID != hostID {
		return models.PlaylistItem{}, models.ErrPermissionDenied
	}
	if existing.Expired {
		return models.PlaylistItem{}, models.ErrAlreadyPlayed
	}

	updated := item.Clone()
	updated.OwnerID = existing.OwnerID
	updated.PlaylistOrder = existing.PlaylistOrder
	updated.Expired = false
	updated.PlayedAt = nil
	*existing = updated

	s.listener.PlaylistItemChanged(existing.Clone())
	return existing.Clone(), nil
}

// Remove deletes a pending item owned by actorID. The current item can never be removed.
func (s *Store) Remove(actorID int, itemID int64) error {
	existing, ok := s.byID[itemID]
	if !ok {
		return models.ErrNotFound
	}
	if cur := s.current(); cur != nil && cur.ID == itemID {
		return models.ErrCannotRemoveCurrent
	}
	if existing.OwnerID != actorID {
		return models.ErrPermissionDenied
	}
	if existing.Expired {
		return models.ErrAlreadyPlayed
	}

	delete(s.byID, itemID)
	for i, it := range s.items {
		if it.ID == itemID {
			s.items = append(s.items[:i], s.items[i+1:]...)
			break
		}
	}

	s.listener.PlaylistItemRemoved(itemID)
	s.reorder(true)
	return nil
}

// ExpireCurrent marks the current item as played at the given time. It reports
// false when there is no pending item to expire.
func (s *Store) ExpireCurrent(at time.Time) (models.PlaylistItem, bool) {
	cur := s.current()
	if cur == nil || cur.Expired {
		return models.PlaylistItem{}, false
	}

	playedAt := at
	cur.Expired = true
	cur.PlayedAt = &playedAt

	s.listener.PlaylistItemChanged(cur.Clone())
	s.reorder(true)
	return cur.Clone(), true
}

// DuplicateCurrent queues a fresh copy of the current item's beatmap, ruleset and mods.
func (s *Store) DuplicateCurrent(ownerID int) (models.PlaylistItem, bool) {
	cur := s.current()
	if cur == nil {
		return models.PlaylistItem{}, false
	}
	src := cur.Clone()
	return s.Add(models.PlaylistItem{
		OwnerID:         ownerID,
		BeatmapID:       src.BeatmapID,
		BeatmapChecksum: src.BeatmapChecksum,
		RulesetID:       src.RulesetID,
		RequiredMods:    src.RequiredMods,
		AllowedMods:     src.AllowedMods,
	}), true
}

// Reorder re-ranks the pending items under the current queue mode, notifying
// only the items whose rank changed.
func (s *Store) Reorder() {
	s.reorder(true)
}

// Current returns the lowest-ranked pending item or, once the queue is
// exhausted, the most recently played one.
func (s *Store) Current() (models.PlaylistItem, bool) {
	cur := s.current()
	if cur == nil {
		return models.PlaylistItem{}, false
	}
	return cur.Clone(), true
}

// Get returns a copy of the item with the given id.
func (s *Store) Get(itemID int64) (models.PlaylistItem, bool) {
	it, ok := s.byID[itemID]
	if !ok {
		return models.PlaylistItem{}, false
	}
	return it.Clone(), true
}

// Items returns copies of all items, expired ones included, in id order.
func (s *Store) Items() []models.PlaylistItem {
	out := make([]models.PlaylistItem, len(s.items))
	for i, it := range s.items {
		out[i] = it.Clone()
	}
	return out
}

// PendingCount is the number of items that have not been played yet.
func (s *Store) PendingCount() int {
	n := 0
	for _, it := range s.items {
		if !it.Expired {
			n++
		}
	}
	return n
}

// AllExpired reports whether no item is left to play.
func (s *Store) AllExpired() bool {
	return s.PendingCount() == 0
}

// LastID is the most recently assigned item id.
func (s *Store) LastID() int64 {
	return s.lastID
}

func (s *Store) current() *models.PlaylistItem {
	var best *models.PlaylistItem
	for _, it := range s.items {
		if it.Expired {
			continue
		}
		if best == nil || it.PlaylistOrder < best.PlaylistOrder {
			best = it
		}
	}
	if best != nil {
		return best
	}

	// queue exhausted: fall back to the most recently played item
	for _, it := range s.items {
		if best == nil || playedAfter(it, best) {
			best = it
		}
	}
	return best
}

func playedAfter(a, b *models.PlaylistItem) bool {
	switch {
	case a.PlayedAt == nil && b.PlayedAt == nil:
		return a.ID > b.ID
	case a.PlayedAt == nil:
		return false
	case b.PlayedAt == nil:
		return true
	case a.PlayedAt.Equal(*b.PlayedAt):
		return a.ID > b.ID
	}
	return a.PlayedAt.After(*b.PlayedAt)
}

func (s *Store) reorder(notify bool) {
	for i, it := range s.orderedPending() {
		if it.PlaylistOrder == i {
			continue
		}
		it.PlaylistOrder = i
		if notify {
			s.listener.PlaylistItemChanged(it.Clone())
		}
	}
}

func (s *Store) orderedPending() []*models.PlaylistItem {
	pending := make([]*models.PlaylistItem, 0, len(s.items))
	for _, it := range s.items {
		if !it.Expired {
			pending = append(pending, it)
		}
	}

	if s.mode != models.QueueModeAllPlayersRoundRobin {
		// s.items is already in id order
		return pending
	}

	priority := make(map[int64]int, len(pending))
	queued := make(map[int]int)
	for _, it := range pending {
		priority[it.ID] = queued[it.OwnerID]
		queued[it.OwnerID]++
	}

	sort.SliceStable(pending, func(i, j int) bool {
		a, b := pending[i], pending[j]
		if priority[a.ID] != priority[b.ID] {
			return priority[a.ID] < priority[b.ID]
		}
		if a.PlaylistOrder != b.PlaylistOrder {
			return a.PlaylistOrder < b.PlaylistOrder
		}
		return a.ID < b.ID
	})
	return pending
}
