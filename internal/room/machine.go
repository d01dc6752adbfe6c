// Package room holds the authoritative state of a single multiplayer room.
//
// A Machine is not safe for concurrent use. Every method must be called from
// the room's serialized execution context, which is also where countdown
// resolutions are delivered through Config.Dispatch.
package room

import (
	"time"

	"github.com/jason-s-yu/roomsim/internal/countdown"
	"github.com/jason-s-yu/roomsim/internal/models"
	"github.com/jason-s-yu/roomsim/internal/notify"
	"github.com/jason-s-yu/roomsim/internal/playlist"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// Publisher receives the room's notifications in mutation order.
type Publisher interface {
	Publish(e notify.Event) notify.Event
}

// Config describes the room a Machine starts from.
type Config struct {
	RoomID   int64
	Settings models.RoomSettings
	Playlist []models.PlaylistItem

	// Host is the local user; it is admitted as the first member and host.
	Host models.User

	Clock     clockwork.Clock
	Dispatch  countdown.Dispatcher
	Publisher Publisher
	Log       logrus.FieldLogger
}

// Machine applies every mutation of one room and derives its state transitions.
type Machine struct {
	roomID   int64
	state    models.RoomState
	settings models.RoomSettings

	users  map[int]*models.RoomUser
	joined []int // user ids in join order
	hostID int
	local  int

	matchState  *models.MatchRoomState
	handler     MatchHandler
	appliedType models.MatchType

	playlist      *playlist.Store
	countdown     *countdown.Scheduler
	autoCountdown bool

	clock clockwork.Clock
	pub   Publisher
	log   logrus.FieldLogger
}

// New builds a room in the Open state with cfg.Host as its only member. The
// playlist is copied and ordered, and the current item derived, without
// publishing anything. The match type's defaults are not applied until
// ApplyMatchType is called.
func New(cfg Config) (*Machine, error) {
	handler, ok := handlerFor(cfg.Settings.MatchType)
	if !ok || !cfg.Settings.QueueMode.Valid() {
		return nil, models.ErrInvalidSettings
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	if cfg.Publisher == nil {
		cfg.Publisher = discard{}
	}

	m := &Machine{
		roomID:   cfg.RoomID,
		state:    models.RoomStateOpen,
		settings: cfg.Settings,
		users:    make(map[int]*models.RoomUser),
		hostID:   cfg.Host.ID,
		local:    cfg.Host.ID,
		handler:  handler,
		clock:    cfg.Clock,
		pub:      cfg.Publisher,
		log:      cfg.Log.WithField("room_id", cfg.RoomID),
	}
	m.users[cfg.Host.ID] = models.NewRoomUser(cfg.Host)
	m.joined = []int{cfg.Host.ID}

	m.playlist = playlist.New(cfg.Playlist, cfg.Settings.QueueMode, playlistEvents{m})
	m.countdown = countdown.New(cfg.Clock, cfg.Dispatch, m.countdownChanged, m.log)
	m.refreshCurrentItem()

	return m, nil
}

// Snapshot returns a deep copy of the room.
func (m *Machine) Snapshot() models.Room {
	r := models.Room{
		RoomID:     m.roomID,
		State:      m.state,
		Settings:   m.settings,
		Users:      make([]models.RoomUser, 0, len(m.joined)),
		HostID:     m.hostID,
		MatchState: m.matchState.Clone(),
		Playlist:   m.playlist.Items(),
		Countdown:  m.countdown.Active(),
	}
	for _, id := range m.joined {
		r.Users = append(r.Users, m.users[id].Clone())
	}
	return r
}

// Shutdown silently cancels the countdown. The machine must not be used afterwards.
func (m *Machine) Shutdown() {
	m.countdown.Shutdown()
}

// ApplyMatchType installs the default room and user sub-states of the current
// match type. Re-applying the type already in effect changes nothing.
func (m *Machine) ApplyMatchType() {
	if m.appliedType == m.settings.MatchType {
		return
	}
	h, _ := handlerFor(m.settings.MatchType)
	m.handler = h
	m.appliedType = m.settings.MatchType
	h.Apply(m)
	m.log.WithField("match_type", m.appliedType).Debug("applied match type")
}

// AddUser admits a user in the idle state.
func (m *Machine) AddUser(u models.User) error {
	if _, ok := m.users[u.ID]; ok {
		return models.ErrUserAlreadyInRoom
	}
	user := models.NewRoomUser(u)
	m.users[u.ID] = user
	m.joined = append(m.joined, u.ID)

	snapshot := user.Clone()
	m.publish(notify.Event{Type: notify.UserJoined, UserID: u.ID, User: &snapshot})

	if len(m.joined) == 1 {
		m.setHost(u.ID)
	}
	m.handler.UserJoined(m, user)
	m.evaluate()
	return nil
}

// RemoveUser removes a user that left on its own. If it was the host, the
// earliest-joined remaining user becomes host.
func (m *Machine) RemoveUser(userID int) error {
	user, ok := m.users[userID]
	if !ok {
		return models.ErrUserNotInRoom
	}
	m.removeUser(user, notify.UserLeft)
	return nil
}

// KickUser removes another user on the host's behalf.
func (m *Machine) KickUser(actorID, userID int) error {
	if err := m.requireHost(actorID); err != nil {
		return err
	}
	user, ok := m.users[userID]
	if !ok {
		return models.ErrUserNotInRoom
	}
	if userID == actorID {
		return models.ErrInvalidState
	}
	m.removeUser(user, notify.UserKicked)
	return nil
}

func (m *Machine) removeUser(user *models.RoomUser, evt notify.EventType) {
	delete(m.users, user.UserID)
	for i, id := range m.joined {
		if id == user.UserID {
			m.joined = append(m.joined[:i], m.joined[i+1:]...)
			break
		}
	}

	snapshot := user.Clone()
	m.publish(notify.Event{Type: evt, UserID: user.UserID, User: &snapshot})

	if user.UserID == m.hostID {
		if len(m.joined) > 0 {
			m.setHost(m.joined[0])
		} else {
			m.hostID = 0
		}
	}
	m.evaluate()
}

// TransferHost hands the host role to another member.
func (m *Machine) TransferHost(actorID, userID int) error {
	if err := m.requireHost(actorID); err != nil {
		return err
	}
	if _, ok := m.users[userID]; !ok {
		return models.ErrUserNotInRoom
	}
	if userID == m.hostID {
		return nil
	}
	m.setHost(userID)
	return nil
}

func (m *Machine) setHost(userID int) {
	m.hostID = userID
	m.publish(notify.Event{Type: notify.HostChanged, UserID: userID})
	m.log.WithField("host_id", userID).Debug("host changed")
}

// ChangeSettings replaces the room settings. The current playlist item pointer
// is kept as derived by the room, whatever the caller passes.
func (m *Machine) ChangeSettings(actorID int, settings models.RoomSettings) error {
	if err := m.requireHost(actorID); err != nil {
		return err
	}
	if m.state != models.RoomStateOpen {
		return models.ErrInvalidState
	}
	if _, ok := handlerFor(settings.MatchType); !ok || !settings.QueueMode.Valid() || settings.AutoStartDuration < 0 {
		return models.ErrInvalidSettings
	}

	settings.PlaylistItemID = m.settings.PlaylistItemID
	modeChanged := settings.QueueMode != m.playlist.QueueMode()
	m.settings = settings

	if modeChanged {
		m.playlist.SetQueueMode(settings.QueueMode)
		if settings.QueueMode == models.QueueModeHostOnly && m.playlist.AllExpired() {
			m.playlist.DuplicateCurrent(m.hostID)
		}
	}
	m.playlist.Reorder()
	m.refreshCurrentItem()

	s := m.settings
	m.publish(notify.Event{Type: notify.SettingsChanged, Settings: &s})

	for _, id := range m.joined {
		if m.users[id].State == models.UserStateReady {
			m.setUserState(m.users[id], models.UserStateIdle)
		}
	}

	m.ApplyMatchType()
	m.evaluate()
	return nil
}

// ChangeUserState moves a user to a new state. The local user asking to go
// idle while waiting for load is ignored.
func (m *Machine) ChangeUserState(userID int, state models.UserState) error {
	user, ok := m.users[userID]
	if !ok {
		return models.ErrUserNotInRoom
	}
	if !state.Valid() {
		return models.ErrInvalidState
	}
	if userID == m.local && user.State == models.UserStateWaitingForLoad && state == models.UserStateIdle {
		m.log.WithField("user_id", userID).Debug("ignoring idle request while waiting for load")
		return nil
	}
	if user.State == state {
		return nil
	}
	m.setUserState(user, state)
	m.evaluate()
	return nil
}

func (m *Machine) setUserState(user *models.RoomUser, state models.UserState) {
	user.State = state
	m.publish(notify.Event{Type: notify.UserStateChanged, UserID: user.UserID, UserState: state})
}

// ChangeBeatmapAvailability records a user's download state for the current item.
func (m *Machine) ChangeBeatmapAvailability(userID int, availability models.BeatmapAvailability) error {
	user, ok := m.users[userID]
	if !ok {
		return models.ErrUserNotInRoom
	}
	if sameAvailability(user.BeatmapAvailability, availability) {
		return nil
	}
	if availability.DownloadProgress != nil {
		p := *availability.DownloadProgress
		availability.DownloadProgress = &p
	}
	user.BeatmapAvailability = availability
	snapshot := user.Clone().BeatmapAvailability
	m.publish(notify.Event{Type: notify.UserBeatmapAvailabilityChanged, UserID: userID, Availability: &snapshot})
	m.evaluate()
	return nil
}

func sameAvailability(a, b models.BeatmapAvailability) bool {
	if a.State != b.State {
		return false
	}
	if a.DownloadProgress == nil || b.DownloadProgress == nil {
		return a.DownloadProgress == nil && b.DownloadProgress == nil
	}
	return *a.DownloadProgress == *b.DownloadProgress
}

// HandleMatchRequest dispatches a match request. Countdown requests are handled
// by the room; everything else goes to the match type's handler.
func (m *Machine) HandleMatchRequest(userID int, req models.MatchRequest) error {
	user, ok := m.users[userID]
	if !ok {
		return models.ErrUserNotInRoom
	}
	switch r := req.(type) {
	case models.StartMatchCountdownRequest:
		return m.StartCountdown(userID, r.Duration)
	case models.StopCountdownRequest:
		return m.StopCountdown(userID)
	case nil:
		return models.ErrInvalidMatchRequest
	}
	return m.handler.HandleRequest(m, user, req)
}

// StartCountdown starts a match-start countdown on the host's behalf,
// superseding any countdown already running.
func (m *Machine) StartCountdown(actorID int, d time.Duration) error {
	if err := m.requireHost(actorID); err != nil {
		return err
	}
	if m.state != models.RoomStateOpen || d <= 0 {
		return models.ErrInvalidState
	}
	m.countdown.Start(models.CountdownMatchStart, d, m.startMatchFromCountdown)
	m.autoCountdown = false
	return nil
}

// StopCountdown cancels the running countdown on the host's behalf. Stopping
// when nothing runs is a no-op.
func (m *Machine) StopCountdown(actorID int) error {
	if err := m.requireHost(actorID); err != nil {
		return err
	}
	m.countdown.Stop()
	return nil
}

// SkipCountdown resolves the running countdown immediately.
func (m *Machine) SkipCountdown() {
	m.countdown.Skip()
}

// AddItem queues an item owned by actorID.
func (m *Machine) AddItem(actorID int, item models.PlaylistItem) (models.PlaylistItem, error) {
	if _, ok := m.users[actorID]; !ok {
		return models.PlaylistItem{}, models.ErrUserNotInRoom
	}
	if m.settings.QueueMode == models.QueueModeHostOnly && actorID != m.hostID {
		return models.PlaylistItem{}, models.ErrNotHost
	}
	item.OwnerID = actorID
	added := m.playlist.Add(item)
	m.currentItemMayHaveChanged()
	return added, nil
}

// EditItem changes an item owned by actorID, or any item if actorID is the host.
func (m *Machine) EditItem(actorID int, item models.PlaylistItem) (models.PlaylistItem, error) {
	if _, ok := m.users[actorID]; !ok {
		return models.PlaylistItem{}, models.ErrUserNotInRoom
	}
	edited, err := m.playlist.Edit(actorID, m.hostID, item)
	if err != nil {
		return models.PlaylistItem{}, err
	}
	m.currentItemMayHaveChanged()
	return edited, nil
}

// RemoveItem removes a pending item owned by actorID.
func (m *Machine) RemoveItem(actorID int, itemID int64) error {
	if _, ok := m.users[actorID]; !ok {
		return models.ErrUserNotInRoom
	}
	if err := m.playlist.Remove(actorID, itemID); err != nil {
		return err
	}
	m.currentItemMayHaveChanged()
	return nil
}

// FinishCurrentItem expires the current item and advances the playlist. In
// host-only mode an exhausted playlist gets a copy of the finished item.
func (m *Machine) FinishCurrentItem() {
	m.finishCurrentItem()
	m.evaluate()
}

func (m *Machine) finishCurrentItem() {
	if _, ok := m.playlist.ExpireCurrent(m.clock.Now()); !ok {
		return
	}
	if m.settings.QueueMode == models.QueueModeHostOnly && m.playlist.AllExpired() {
		m.playlist.DuplicateCurrent(m.hostID)
	}
	if m.refreshCurrentItem() {
		m.publishSettings()
	}
}

func (m *Machine) currentItemMayHaveChanged() {
	if m.refreshCurrentItem() {
		m.publishSettings()
	}
	m.evaluate()
}

// refreshCurrentItem points the settings at the playlist's current item and
// reports whether the pointer moved.
func (m *Machine) refreshCurrentItem() bool {
	var id int64
	if cur, ok := m.playlist.Current(); ok {
		id = cur.ID
	}
	if id == m.settings.PlaylistItemID {
		return false
	}
	m.settings.PlaylistItemID = id
	return true
}

func (m *Machine) publishSettings() {
	s := m.settings
	m.publish(notify.Event{Type: notify.SettingsChanged, Settings: &s})
}

// StartMatch asks every ready user to load the current item.
func (m *Machine) StartMatch(actorID int) error {
	if err := m.requireHost(actorID); err != nil {
		return err
	}
	if m.state != models.RoomStateOpen {
		return models.ErrInvalidState
	}
	if err := m.playable(); err != nil {
		return err
	}
	if !m.anyUserIn(models.UserStateReady) {
		return models.ErrNoReadyUsers
	}
	m.startMatch()
	return nil
}

func (m *Machine) startMatchFromCountdown() {
	if m.state != models.RoomStateOpen || m.playable() != nil || !m.anyUserIn(models.UserStateReady) {
		m.log.WithField("state", m.state).Info("countdown finished but the match can not start")
		return
	}
	m.startMatch()
}

func (m *Machine) startMatch() {
	m.countdown.Stop()
	m.setRoomState(models.RoomStateWaitingForLoad)
	for _, id := range m.joined {
		if u := m.users[id]; u.State == models.UserStateReady {
			m.setUserState(u, models.UserStateWaitingForLoad)
		}
	}
	m.publish(notify.Event{Type: notify.LoadRequested})
	m.log.WithField("playlist_item_id", m.settings.PlaylistItemID).Info("match load requested")
}

func (m *Machine) playable() error {
	cur, ok := m.playlist.Current()
	if !ok {
		return models.ErrNotFound
	}
	if cur.Expired {
		return models.ErrAlreadyPlayed
	}
	return nil
}

func (m *Machine) setRoomState(state models.RoomState) {
	m.state = state
	m.publish(notify.Event{Type: notify.RoomStateChanged, RoomState: state})
}

// evaluate applies the transition rules until the room state settles.
func (m *Machine) evaluate() {
	for {
		before := m.state
		switch m.state {
		case models.RoomStateOpen:
			m.evaluateOpen()
		case models.RoomStateWaitingForLoad:
			m.evaluateWaitingForLoad()
		case models.RoomStatePlaying:
			m.evaluatePlaying()
		}
		if m.state == before {
			return
		}
	}
}

func (m *Machine) evaluateOpen() {
	eligible := m.settings.AutoStartEnabled() && m.playable() == nil && m.anyUserIn(models.UserStateReady)
	if m.countdown.Running() {
		if m.autoCountdown && !eligible {
			m.countdown.Stop()
		}
		return
	}
	if eligible {
		m.countdown.Start(models.CountdownMatchStart, m.settings.AutoStartDuration, m.startMatchFromCountdown)
		m.autoCountdown = true
	}
}

func (m *Machine) evaluateWaitingForLoad() {
	if m.anyUserIn(models.UserStateWaitingForLoad) {
		return
	}
	if !m.anyUserIn(models.UserStateLoaded) {
		m.log.Info("nobody loaded, aborting match start")
		m.setRoomState(models.RoomStateOpen)
		return
	}
	for _, id := range m.joined {
		if u := m.users[id]; u.State == models.UserStateLoaded {
			m.setUserState(u, models.UserStatePlaying)
		}
	}
	m.setRoomState(models.RoomStatePlaying)
	m.publish(notify.Event{Type: notify.MatchStarted})
}

func (m *Machine) evaluatePlaying() {
	if m.anyUserIn(models.UserStatePlaying) {
		return
	}
	for _, id := range m.joined {
		if u := m.users[id]; u.State == models.UserStateFinishedPlay {
			m.setUserState(u, models.UserStateResults)
		}
	}
	m.setRoomState(models.RoomStateOpen)
	m.publish(notify.Event{Type: notify.ResultsReady})
	m.finishCurrentItem()
}

func (m *Machine) anyUserIn(state models.UserState) bool {
	for _, u := range m.users {
		if u.State == state {
			return true
		}
	}
	return false
}

func (m *Machine) requireHost(actorID int) error {
	if _, ok := m.users[actorID]; !ok {
		return models.ErrUserNotInRoom
	}
	if actorID != m.hostID {
		return models.ErrNotHost
	}
	return nil
}

func (m *Machine) countdownChanged(cd *models.Countdown) {
	if cd == nil {
		m.autoCountdown = false
	}
	m.publish(notify.Event{Type: notify.CountdownChanged, Countdown: cd})
}

func (m *Machine) publish(e notify.Event) {
	e.RoomID = m.roomID
	m.pub.Publish(e)
}

// playlistEvents forwards playlist mutations as room notifications.
type playlistEvents struct{ m *Machine }

func (p playlistEvents) PlaylistItemAdded(item models.PlaylistItem) {
	p.m.publish(notify.Event{Type: notify.PlaylistItemAdded, Item: &item})
}

func (p playlistEvents) PlaylistItemChanged(item models.PlaylistItem) {
	p.m.publish(notify.Event{Type: notify.PlaylistItemChanged, Item: &item})
}

func (p playlistEvents) PlaylistItemRemoved(itemID int64) {
	p.m.publish(notify.Event{Type: notify.PlaylistItemRemoved, ItemID: itemID})
}

type discard struct{}

func (discard) Publish(e notify.Event) notify.Event { return e }
