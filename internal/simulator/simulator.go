// Package simulator stands in for a multiplayer server: it lets the local user
// join a predefined room and drives that room's state machine in-process.
//
// Every intent for the joined room is queued onto one goroutine, so intents
// and countdown resolutions never interleave. Notifications are delivered
// through subscriptions in the order the room mutated.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jason-s-yu/roomsim/internal/catalog"
	"github.com/jason-s-yu/roomsim/internal/models"
	"github.com/jason-s-yu/roomsim/internal/notify"
	"github.com/jason-s-yu/roomsim/internal/room"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

const defaultQueueSize = 64

// Config holds a simulator's collaborators.
type Config struct {
	Catalog   catalog.Catalog
	LocalUser models.User

	// Clock drives countdowns and timestamps. Defaults to the real clock.
	Clock clockwork.Clock
	Log   logrus.FieldLogger
	// QueueSize bounds how many intents may wait for the room. Defaults to 64.
	QueueSize int
}

// Simulator is the public surface of an in-process multiplayer session. It is
// safe for concurrent use.
type Simulator struct {
	catalog   catalog.Catalog
	user      models.User
	clock     clockwork.Clock
	log       logrus.FieldLogger
	queueSize int
	hub       *notify.Hub

	mu      sync.Mutex
	session *session
}

type session struct {
	roomID  int64
	machine *room.Machine
	actor   *actor
}

// New creates a simulator that is not joined to any room.
func New(cfg Config) *Simulator {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	return &Simulator{
		catalog:   cfg.Catalog,
		user:      cfg.LocalUser,
		clock:     cfg.Clock,
		log:       cfg.Log,
		queueSize: cfg.QueueSize,
		hub:       notify.NewHub(cfg.Clock, cfg.Log),
	}
}

// LocalUser returns the identity the simulator joins rooms as.
func (s *Simulator) LocalUser() models.User {
	return s.user
}

// Subscribe returns a subscription receiving every notification published
// from now on. Subscriptions outlive individual room sessions.
func (s *Simulator) Subscribe(buffer int) *notify.Subscription {
	return s.hub.Subscribe(buffer)
}

// Join looks the room up in the catalog and joins it as the sole member and host.
// The match type's default sub-states are applied by a separately queued task,
// after the returned snapshot was taken.
func (s *Simulator) Join(ctx context.Context, roomID int64, password string) (models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != nil {
		return models.Room{}, models.ErrAlreadyJoined
	}

	def, err := s.catalog.Lookup(ctx, roomID)
	if err != nil {
		return models.Room{}, fmt.Errorf("join room %d: %w", roomID, err)
	}
	if err := catalog.VerifyPassword(password, def.PasswordHash); err != nil {
		return models.Room{}, fmt.Errorf("join room %d: %w", roomID, err)
	}

	settings := def.Settings()
	settings.Password = password

	a := newActor(s.queueSize)
	m, err := room.New(room.Config{
		RoomID:    roomID,
		Settings:  settings,
		Playlist:  def.Playlist,
		Host:      s.user,
		Clock:     s.clock,
		Dispatch:  a.post,
		Publisher: s.hub,
		Log:       s.log,
	})
	if err != nil {
		a.stop()
		return models.Room{}, fmt.Errorf("join room %d: %w", roomID, err)
	}

	var snapshot models.Room
	if err := a.do(ctx, func() error {
		snapshot = m.Snapshot()
		return nil
	}); err != nil {
		a.stop()
		return models.Room{}, fmt.Errorf("join room %d: %w", roomID, err)
	}
	a.post(m.ApplyMatchType)

	s.session = &session{roomID: roomID, machine: m, actor: a}
	s.log.WithFields(logrus.Fields{
		"room_id": roomID,
		"user_id": s.user.ID,
	}).Info("joined room")
	return snapshot, nil
}

// Leave ends the session. The room's countdown is cancelled silently and no
// further notifications are published for it.
func (s *Simulator) Leave(ctx context.Context) error {
	s.mu.Lock()
	sess := s.session
	s.session = nil
	s.mu.Unlock()

	if sess == nil {
		return models.ErrNotJoined
	}
	defer sess.actor.stop()

	err := sess.actor.do(ctx, func() error {
		sess.machine.Shutdown()
		return nil
	})
	s.log.WithField("room_id", sess.roomID).Info("left room")
	return err
}

// Close leaves the joined room, if any, and closes every subscription.
func (s *Simulator) Close(ctx context.Context) error {
	err := s.Leave(ctx)
	if errors.Is(err, models.ErrNotJoined) {
		err = nil
	}
	s.hub.Close()
	return err
}

func (s *Simulator) current() (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil, models.ErrNotJoined
	}
	return s.session, nil
}

// run executes fn on the joined room's goroutine and waits for it.
func (s *Simulator) run(ctx context.Context, op string, fn func(m *room.Machine) error) error {
	sess, err := s.current()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := sess.actor.do(ctx, func() error { return fn(sess.machine) }); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Room returns a snapshot of the joined room.
func (s *Simulator) Room(ctx context.Context) (models.Room, error) {
	var r models.Room
	err := s.run(ctx, "room snapshot", func(m *room.Machine) error {
		r = m.Snapshot()
		return nil
	})
	return r, err
}

// ChangeSettings replaces the room settings on the local user's behalf.
func (s *Simulator) ChangeSettings(ctx context.Context, settings models.RoomSettings) error {
	return s.run(ctx, "change settings", func(m *room.Machine) error {
		return m.ChangeSettings(s.user.ID, settings)
	})
}

// ChangeState changes the local user's state.
func (s *Simulator) ChangeState(ctx context.Context, state models.UserState) error {
	return s.ChangeUserState(ctx, s.user.ID, state)
}

// ChangeBeatmapAvailability reports the local user's download state.
func (s *Simulator) ChangeBeatmapAvailability(ctx context.Context, availability models.BeatmapAvailability) error {
	return s.ChangeUserBeatmapAvailability(ctx, s.user.ID, availability)
}

// SendMatchRequest sends a match request as the local user.
func (s *Simulator) SendMatchRequest(ctx context.Context, req models.MatchRequest) error {
	return s.SendUserMatchRequest(ctx, s.user.ID, req)
}

// AddPlaylistItem queues an item owned by the local user.
func (s *Simulator) AddPlaylistItem(ctx context.Context, item models.PlaylistItem) (models.PlaylistItem, error) {
	return s.AddUserPlaylistItem(ctx, s.user.ID, item)
}

// EditPlaylistItem edits an item as the local user.
func (s *Simulator) EditPlaylistItem(ctx context.Context, item models.PlaylistItem) (models.PlaylistItem, error) {
	return s.EditUserPlaylistItem(ctx, s.user.ID, item)
}

// RemovePlaylistItem removes an item as the local user.
func (s *Simulator) RemovePlaylistItem(ctx context.Context, itemID int64) error {
	return s.RemoveUserPlaylistItem(ctx, s.user.ID, itemID)
}

// FinishCurrentItem expires the current item and advances the playlist.
func (s *Simulator) FinishCurrentItem(ctx context.Context) error {
	return s.run(ctx, "finish current item", func(m *room.Machine) error {
		m.FinishCurrentItem()
		return nil
	})
}

// StartMatch asks ready users to load, on the local user's behalf.
func (s *Simulator) StartMatch(ctx context.Context) error {
	return s.run(ctx, "start match", func(m *room.Machine) error {
		return m.StartMatch(s.user.ID)
	})
}

// TransferHost hands the host role to another user.
func (s *Simulator) TransferHost(ctx context.Context, userID int) error {
	return s.run(ctx, "transfer host", func(m *room.Machine) error {
		return m.TransferHost(s.user.ID, userID)
	})
}

// KickUser removes another user from the room.
func (s *Simulator) KickUser(ctx context.Context, userID int) error {
	return s.run(ctx, "kick user", func(m *room.Machine) error {
		return m.KickUser(s.user.ID, userID)
	})
}

// SkipCountdown resolves the running countdown immediately. It is a no-op
// when no countdown runs.
func (s *Simulator) SkipCountdown(ctx context.Context) error {
	return s.run(ctx, "skip countdown", func(m *room.Machine) error {
		m.SkipCountdown()
		return nil
	})
}

// AddUser simulates a remote user joining the room.
func (s *Simulator) AddUser(ctx context.Context, user models.User) error {
	return s.run(ctx, "add user", func(m *room.Machine) error {
		return m.AddUser(user)
	})
}

// RemoveUser simulates a remote user leaving the room. The local user leaves
// through Leave instead.
func (s *Simulator) RemoveUser(ctx context.Context, userID int) error {
	if userID == s.user.ID {
		return fmt.Errorf("remove user: %w", models.ErrInvalidState)
	}
	return s.run(ctx, "remove user", func(m *room.Machine) error {
		return m.RemoveUser(userID)
	})
}

// ChangeUserState changes any user's state.
func (s *Simulator) ChangeUserState(ctx context.Context, userID int, state models.UserState) error {
	return s.run(ctx, "change user state", func(m *room.Machine) error {
		return m.ChangeUserState(userID, state)
	})
}

// ChangeUserBeatmapAvailability reports any user's download state.
func (s *Simulator) ChangeUserBeatmapAvailability(ctx context.Context, userID int, availability models.BeatmapAvailability) error {
	return s.run(ctx, "change beatmap availability", func(m *room.Machine) error {
		return m.ChangeBeatmapAvailability(userID, availability)
	})
}

// SendUserMatchRequest sends a match request as any user.
func (s *Simulator) SendUserMatchRequest(ctx context.Context, userID int, req models.MatchRequest) error {
	return s.run(ctx, "match request", func(m *room.Machine) error {
		return m.HandleMatchRequest(userID, req)
	})
}

// AddUserPlaylistItem queues an item owned by any user.
func (s *Simulator) AddUserPlaylistItem(ctx context.Context, userID int, item models.PlaylistItem) (models.PlaylistItem, error) {
	var added models.PlaylistItem
	err := s.run(ctx, "add playlist item", func(m *room.Machine) error {
		var err error
		added, err = m.AddItem(userID, item)
		return err
	})
	return added, err
}

// EditUserPlaylistItem edits an item as any user.
func (s *Simulator) EditUserPlaylistItem(ctx context.Context, userID int, item models.PlaylistItem) (models.PlaylistItem, error) {
	var edited models.PlaylistItem
	err := s.run(ctx, "edit playlist item", func(m *room.Machine) error {
		var err error
		edited, err = m.EditItem(userID, item)
		return err
	})
	return edited, err
}

// RemoveUserPlaylistItem removes an item as any user.
func (s *Simulator) RemoveUserPlaylistItem(ctx context.Context, userID int, itemID int64) error {
	return s.run(ctx, "remove playlist item", func(m *room.Machine) error {
		return m.RemoveItem(userID, itemID)
	})
}
