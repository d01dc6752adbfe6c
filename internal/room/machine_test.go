package room

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jason-s-yu/roomsim/internal/models"
	"github.com/jason-s-yu/roomsim/internal/notify"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects published events instead of fanning them out.
type recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recorder) Publish(e notify.Event) notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return e
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func (r *recorder) types() []notify.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func (r *recorder) ofType(t notify.EventType) []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	m     *Machine
	rec   *recorder
	clock *clockwork.FakeClock
	tasks chan func()
}

var host = models.User{ID: 1, Username: "host"}

func defaultSettings() models.RoomSettings {
	return models.RoomSettings{
		Name:      "test room",
		MatchType: models.MatchTypeHeadToHead,
		QueueMode: models.QueueModeHostOnly,
	}
}

func newFixture(t *testing.T, settings models.RoomSettings) *fixture {
	t.Helper()
	log, _ := test.NewNullLogger()
	f := &fixture{
		rec:   &recorder{},
		clock: clockwork.NewFakeClock(),
		tasks: make(chan func(), 8),
	}
	m, err := New(Config{
		RoomID:    1234,
		Settings:  settings,
		Playlist:  []models.PlaylistItem{{ID: 1, OwnerID: host.ID, BeatmapID: 100, RulesetID: 0}},
		Host:      host,
		Clock:     f.clock,
		Dispatch:  func(fn func()) { f.tasks <- fn },
		Publisher: f.rec,
		Log:       log,
	})
	require.NoError(t, err)
	f.m = m
	t.Cleanup(m.Shutdown)
	return f
}

func (f *fixture) addUsers(t *testing.T, ids ...int) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, f.m.AddUser(models.User{ID: id, Username: "user"}))
	}
}

func (f *fixture) setState(t *testing.T, state models.UserState, ids ...int) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, f.m.ChangeUserState(id, state))
	}
}

func (f *fixture) userState(t *testing.T, id int) models.UserState {
	t.Helper()
	u, ok := f.m.Snapshot().User(id)
	require.True(t, ok)
	return u.State
}

func TestNewAdmitsHostSilently(t *testing.T) {
	f := newFixture(t, defaultSettings())

	room := f.m.Snapshot()
	assert.Equal(t, int64(1234), room.RoomID)
	assert.Equal(t, models.RoomStateOpen, room.State)
	assert.Equal(t, host.ID, room.HostID)
	require.Len(t, room.Users, 1)
	assert.Equal(t, models.UserStateIdle, room.Users[0].State)
	assert.Equal(t, int64(1), room.Settings.PlaylistItemID)
	assert.Nil(t, room.Countdown)
	assert.Empty(t, f.rec.types())
}

func TestNewRejectsUnknownMatchType(t *testing.T) {
	settings := defaultSettings()
	settings.MatchType = "tag_coop"
	_, err := New(Config{Settings: settings, Host: host})
	assert.ErrorIs(t, err, models.ErrInvalidSettings)
}

func TestHostTransfersToEarliestJoined(t *testing.T) {
	f := newFixture(t, defaultSettings())
	f.addUsers(t, 5, 3)
	f.rec.reset()

	require.NoError(t, f.m.RemoveUser(host.ID))

	assert.Equal(t, []notify.EventType{notify.UserLeft, notify.HostChanged}, f.rec.types())
	assert.Equal(t, 5, f.m.Snapshot().HostID)
	assert.ErrorIs(t, f.m.RemoveUser(host.ID), models.ErrUserNotInRoom)
}

func TestLastUserLeavingPublishesNoHost(t *testing.T) {
	f := newFixture(t, defaultSettings())
	f.rec.reset()

	require.NoError(t, f.m.RemoveUser(host.ID))

	assert.Equal(t, []notify.EventType{notify.UserLeft}, f.rec.types())
	room := f.m.Snapshot()
	assert.Zero(t, room.HostID)
	_, ok := room.Host()
	assert.False(t, ok)
}

func TestKickUser(t *testing.T) {
	f := newFixture(t, defaultSettings())
	f.addUsers(t, 2, 3)
	f.rec.reset()

	assert.ErrorIs(t, f.m.KickUser(2, 3), models.ErrNotHost)
	assert.ErrorIs(t, f.m.KickUser(host.ID, 9), models.ErrUserNotInRoom)
	assert.ErrorIs(t, f.m.KickUser(host.ID, host.ID), models.ErrInvalidState)
	assert.Empty(t, f.rec.types(), "failed intents publish nothing")

	require.NoError(t, f.m.KickUser(host.ID, 3))
	kicked := f.rec.ofType(notify.UserKicked)
	require.Len(t, kicked, 1)
	assert.Equal(t, 3, kicked[0].UserID)
	assert.Empty(t, f.rec.ofType(notify.UserLeft))
	assert.Len(t, f.m.Snapshot().Users, 2)
}

func TestTransferHost(t *testing.T) {
	f := newFixture(t, defaultSettings())
	f.addUsers(t, 2)
	f.rec.reset()

	assert.ErrorIs(t, f.m.TransferHost(2, 2), models.ErrNotHost)
	require.NoError(t, f.m.TransferHost(host.ID, 2))

	changed := f.rec.ofType(notify.HostChanged)
	require.Len(t, changed, 1)
	assert.Equal(t, 2, changed[0].UserID)
	assert.ErrorIs(t, f.m.TransferHost(host.ID, 2), models.ErrNotHost)
}

func TestAutoStartCountdownAndSkip(t *testing.T) {
	settings := defaultSettings()
	settings.AutoStartDuration = 5 * time.Second
	f := newFixture(t, settings)

	f.setState(t, models.UserStateReady, host.ID)

	countdowns := f.rec.ofType(notify.CountdownChanged)
	require.Len(t, countdowns, 1)
	require.NotNil(t, countdowns[0].Countdown)
	assert.Equal(t, 5*time.Second, countdowns[0].Countdown.TimeRemaining)
	require.NotNil(t, f.m.Snapshot().Countdown)

	f.m.SkipCountdown()

	assert.Len(t, f.rec.ofType(notify.LoadRequested), 1)
	room := f.m.Snapshot()
	assert.Equal(t, models.RoomStateWaitingForLoad, room.State)
	assert.Nil(t, room.Countdown)
	assert.Equal(t, models.UserStateWaitingForLoad, f.userState(t, host.ID))
}

func TestAutoStartCountdownStopsWhenNobodyIsReady(t *testing.T) {
	settings := defaultSettings()
	settings.AutoStartDuration = 5 * time.Second
	f := newFixture(t, settings)

	f.setState(t, models.UserStateReady, host.ID)
	f.setState(t, models.UserStateIdle, host.ID)

	countdowns := f.rec.ofType(notify.CountdownChanged)
	require.Len(t, countdowns, 2)
	assert.Nil(t, countdowns[1].Countdown)
	assert.Nil(t, f.m.Snapshot().Countdown)
}

func TestManualCountdownSurvivesUnready(t *testing.T) {
	f := newFixture(t, defaultSettings())
	f.setState(t, models.UserStateReady, host.ID)

	require.NoError(t, f.m.HandleMatchRequest(host.ID, models.StartMatchCountdownRequest{Duration: 10 * time.Second}))
	f.setState(t, models.UserStateIdle, host.ID)

	assert.NotNil(t, f.m.Snapshot().Countdown)
}

func TestCountdownElapseStartsMatch(t *testing.T) {
	f := newFixture(t, defaultSettings())
	f.setState(t, models.UserStateReady, host.ID)
	require.NoError(t, f.m.HandleMatchRequest(host.ID, models.StartMatchCountdownRequest{Duration: 10 * time.Second}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))
	f.clock.Advance(10 * time.Second)

	select {
	case fn := <-f.tasks:
		fn()
	case <-time.After(time.Second):
		t.Fatal("countdown never delivered")
	}

	assert.Len(t, f.rec.ofType(notify.LoadRequested), 1)
	assert.Equal(t, models.RoomStateWaitingForLoad, f.m.Snapshot().State)
}

func TestCountdownRequestsAreHostOnly(t *testing.T) {
	f := newFixture(t, defaultSettings())
	f.addUsers(t, 2)

	err := f.m.HandleMatchRequest(2, models.StartMatchCountdownRequest{Duration: time.Second})
	assert.ErrorIs(t, err, models.ErrNotHost)
	assert.ErrorIs(t, f.m.HandleMatchRequest(2, models.StopCountdownRequest{}), models.ErrNotHost)
	assert.ErrorIs(t, f.m.HandleMatchRequest(9, models.StopCountdownRequest{}), models.ErrUserNotInRoom)
}

func TestDoubleStopCountdownNotifiesOnce(t *testing.T) {
	f := newFixture(t, defaultSettings())
	require.NoError(t, f.m.HandleMatchRequest(host.ID, models.StartMatchCountdownRequest{Duration: time.Minute}))
	f.rec.reset()

	require.NoError(t, f.m.HandleMatchRequest(host.ID, models.StopCountdownRequest{}))
	require.NoError(t, f.m.HandleMatchRequest(host.ID, models.StopCountdownRequest{}))

	countdowns := f.rec.ofType(notify.CountdownChanged)
	require.Len(t, countdowns, 1)
	assert.Nil(t, countdowns[0].Countdown)
}

func TestRestartingCountdownSupersedesFirst(t *testing.T) {
	f := newFixture(t, defaultSettings())
	require.NoError(t, f.m.HandleMatchRequest(host.ID, models.StartMatchCountdownRequest{Duration: time.Minute}))
	require.NoError(t, f.m.HandleMatchRequest(host.ID, models.StartMatchCountdownRequest{Duration: 2 * time.Minute}))

	countdowns := f.rec.ofType(notify.CountdownChanged)
	require.Len(t, countdowns, 3)
	assert.NotNil(t, countdowns[0].Countdown)
	assert.Nil(t, countdowns[1].Countdown)
	require.NotNil(t, countdowns[2].Countdown)
	assert.Equal(t, 2*time.Minute, f.m.Snapshot().Countdown.TimeRemaining)
}

func TestStartMatchValidation(t *testing.T) {
	f := newFixture(t, defaultSettings())
	f.addUsers(t, 2)

	assert.ErrorIs(t, f.m.StartMatch(2), models.ErrNotHost)
	assert.ErrorIs(t, f.m.StartMatch(host.ID), models.ErrNoReadyUsers)

	f.setState(t, models.UserStateReady, 2)
	require.NoError(t, f.m.StartMatch(host.ID))
	assert.ErrorIs(t, f.m.StartMatch(host.ID), models.ErrInvalidState)

	assert.Equal(t, models.UserStateWaitingForLoad, f.userState(t, 2))
	assert.Equal(t, models.UserStateIdle, f.userState(t, host.ID), "only ready users are asked to load")
}

func TestWaitingForLoadAbortsWhenNobodyLoads(t *testing.T) {
	f := newFixture(t, defaultSettings())
	f.addUsers(t, 2, 3, 4)
	f.setState(t, models.UserStateReady, 2, 3, 4)
	require.NoError(t, f.m.StartMatch(host.ID))
	f.rec.reset()

	f.setState(t, models.UserStateIdle, 2)
	assert.Equal(t, models.RoomStateWaitingForLoad, f.m.Snapshot().State)

	f.setState(t, models.UserStateIdle, 3, 4)

	assert.Equal(t, models.RoomStateOpen, f.m.Snapshot().State)
	assert.Empty(t, f.rec.ofType(notify.MatchStarted))
	states := f.rec.ofType(notify.RoomStateChanged)
	require.Len(t, states, 1)
	assert.Equal(t, models.RoomStateOpen, states[0].RoomState)
}

func TestLocalIdleWhileWaitingForLoadIsIgnored(t *testing.T) {
	f := newFixture(t, defaultSettings())
	f.setState(t, models.UserStateReady, host.ID)
	require.NoError(t, f.m.StartMatch(host.ID))
	f.rec.reset()

	f.setState(t, models.UserStateIdle, host.ID)

	assert.Empty(t, f.rec.types())
	assert.Equal(t, models.UserStateWaitingForLoad, f.userState(t, host.ID))
	assert.Equal(t, models.RoomStateWaitingForLoad, f.m.Snapshot().State)
}

func TestFullRoundInHostOnlyDuplicatesOnce(t *testing.T) {
	f := newFixture(t, defaultSettings())
	f.addUsers(t, 2)
	f.setState(t, models.UserStateReady, host.ID, 2)
	require.NoError(t, f.m.StartMatch(host.ID))

	f.setState(t, models.UserStateLoaded, host.ID)
	assert.Equal(t, models.RoomStateWaitingForLoad, f.m.Snapshot().State)
	f.setState(t, models.UserStateLoaded, 2)

	assert.Equal(t, models.RoomStatePlaying, f.m.Snapshot().State)
	assert.Len(t, f.rec.ofType(notify.MatchStarted), 1)
	assert.Equal(t, models.UserStatePlaying, f.userState(t, host.ID))
	f.rec.reset()

	f.setState(t, models.UserStateFinishedPlay, host.ID, 2)

	room := f.m.Snapshot()
	assert.Equal(t, models.RoomStateOpen, room.State)
	assert.Equal(t, models.UserStateResults, f.userState(t, host.ID))
	assert.Equal(t, models.UserStateResults, f.userState(t, 2))
	assert.Len(t, f.rec.ofType(notify.ResultsReady), 1)

	added := f.rec.ofType(notify.PlaylistItemAdded)
	require.Len(t, added, 1)
	require.Len(t, room.Playlist, 2)
	assert.True(t, room.Playlist[0].Expired)
	assert.NotNil(t, room.Playlist[0].PlayedAt)
	assert.True(t, room.Playlist[1].SameContent(room.Playlist[0]))
	assert.Equal(t, room.Playlist[1].ID, room.Settings.PlaylistItemID)
	assert.Equal(t, host.ID, room.Playlist[1].OwnerID)
}

func TestFinishCurrentItemWithoutDuplicateOutsideHostOnly(t *testing.T) {
	settings := defaultSettings()
	settings.QueueMode = models.QueueModeAllPlayers
	f := newFixture(t, settings)

	f.m.FinishCurrentItem()

	room := f.m.Snapshot()
	require.Len(t, room.Playlist, 1)
	assert.True(t, room.Playlist[0].Expired)
	assert.Equal(t, int64(1), room.Settings.PlaylistItemID, "exhausted queue keeps pointing at the last played item")
	assert.ErrorIs(t, f.m.StartMatch(host.ID), models.ErrAlreadyPlayed)
}

func TestChangeSettings(t *testing.T) {
	settings := defaultSettings()
	settings.QueueMode = models.QueueModeAllPlayers
	f := newFixture(t, settings)
	f.addUsers(t, 2)
	f.setState(t, models.UserStateReady, 2)
	f.m.FinishCurrentItem()
	f.rec.reset()

	next := settings
	next.Name = "renamed"
	next.QueueMode = models.QueueModeHostOnly
	next.PlaylistItemID = 99

	assert.ErrorIs(t, f.m.ChangeSettings(2, next), models.ErrNotHost)
	bad := next
	bad.QueueMode = "free_for_all"
	assert.ErrorIs(t, f.m.ChangeSettings(host.ID, bad), models.ErrInvalidSettings)
	assert.Empty(t, f.rec.types())

	require.NoError(t, f.m.ChangeSettings(host.ID, next))

	room := f.m.Snapshot()
	assert.Equal(t, "renamed", room.Settings.Name)
	assert.Equal(t, int64(2), room.Settings.PlaylistItemID, "switching to host-only with an exhausted queue duplicates the last item")
	assert.Equal(t, models.UserStateIdle, f.userState(t, 2))
	changed := f.rec.ofType(notify.SettingsChanged)
	require.Len(t, changed, 1)
	assert.Equal(t, int64(2), changed[0].Settings.PlaylistItemID)
}

func TestChangeSettingsRequiresOpenRoom(t *testing.T) {
	f := newFixture(t, defaultSettings())
	f.setState(t, models.UserStateReady, host.ID)
	require.NoError(t, f.m.StartMatch(host.ID))

	assert.ErrorIs(t, f.m.ChangeSettings(host.ID, defaultSettings()), models.ErrInvalidState)
}

func TestAddItemHostOnly(t *testing.T) {
	f := newFixture(t, defaultSettings())
	f.addUsers(t, 2)

	_, err := f.m.AddItem(2, models.PlaylistItem{BeatmapID: 200})
	assert.ErrorIs(t, err, models.ErrNotHost)

	added, err := f.m.AddItem(host.ID, models.PlaylistItem{BeatmapID: 200, OwnerID: 2})
	require.NoError(t, err)
	assert.Equal(t, host.ID, added.OwnerID)
	assert.Equal(t, int64(2), added.ID)
}

func TestPlaylistIntentsUpdateCurrentItem(t *testing.T) {
	settings := defaultSettings()
	settings.QueueMode = models.QueueModeAllPlayers
	f := newFixture(t, settings)
	f.addUsers(t, 2)

	item, err := f.m.AddItem(2, models.PlaylistItem{BeatmapID: 200})
	require.NoError(t, err)

	_, err = f.m.EditItem(3, item)
	assert.ErrorIs(t, err, models.ErrUserNotInRoom)
	assert.ErrorIs(t, f.m.RemoveItem(host.ID, item.ID), models.ErrPermissionDenied)
	assert.ErrorIs(t, f.m.RemoveItem(host.ID, 1), models.ErrCannotRemoveCurrent)

	f.m.FinishCurrentItem()
	assert.Equal(t, item.ID, f.m.Snapshot().Settings.PlaylistItemID)
	assert.Len(t, f.rec.ofType(notify.SettingsChanged), 1)
}

func TestTeamVersusAssignment(t *testing.T) {
	settings := defaultSettings()
	settings.MatchType = models.MatchTypeTeamVersus
	f := newFixture(t, settings)

	f.m.ApplyMatchType()
	assert.Equal(t, []notify.EventType{notify.MatchRoomStateChanged, notify.MatchUserStateChanged}, f.rec.types())

	f.rec.reset()
	f.m.ApplyMatchType()
	assert.Empty(t, f.rec.types(), "re-applying the same match type is a no-op")

	f.addUsers(t, 2, 3)
	room := f.m.Snapshot()
	require.NotNil(t, room.MatchState)
	assert.Len(t, room.MatchState.Teams, 2)

	team := func(id int) int {
		u, ok := room.User(id)
		require.True(t, ok)
		require.NotNil(t, u.MatchState)
		return u.MatchState.TeamID
	}
	assert.Equal(t, 0, team(host.ID))
	assert.Equal(t, 1, team(2))
	assert.Equal(t, 0, team(3))
}

func TestChangeTeam(t *testing.T) {
	settings := defaultSettings()
	settings.MatchType = models.MatchTypeTeamVersus
	f := newFixture(t, settings)
	f.m.ApplyMatchType()
	f.rec.reset()

	require.NoError(t, f.m.HandleMatchRequest(host.ID, models.ChangeTeamRequest{TeamID: 1}))
	require.NoError(t, f.m.HandleMatchRequest(host.ID, models.ChangeTeamRequest{TeamID: 1}))
	require.NoError(t, f.m.HandleMatchRequest(host.ID, models.ChangeTeamRequest{TeamID: 7}))

	changes := f.rec.ofType(notify.MatchUserStateChanged)
	require.Len(t, changes, 1)
	assert.Equal(t, 1, changes[0].MatchUserState.TeamID)
}

func TestChangeTeamInHeadToHead(t *testing.T) {
	f := newFixture(t, defaultSettings())
	f.m.ApplyMatchType()

	err := f.m.HandleMatchRequest(host.ID, models.ChangeTeamRequest{TeamID: 1})
	assert.ErrorIs(t, err, models.ErrInvalidMatchRequest)
}

func TestSwitchingBackToHeadToHeadClearsSubStates(t *testing.T) {
	settings := defaultSettings()
	settings.MatchType = models.MatchTypeTeamVersus
	f := newFixture(t, settings)
	f.m.ApplyMatchType()
	f.addUsers(t, 2)
	f.rec.reset()

	next := settings
	next.MatchType = models.MatchTypeHeadToHead
	require.NoError(t, f.m.ChangeSettings(host.ID, next))

	room := f.m.Snapshot()
	assert.Nil(t, room.MatchState)
	for _, u := range room.Users {
		assert.Nil(t, u.MatchState)
	}
	assert.Len(t, f.rec.ofType(notify.MatchRoomStateChanged), 1)
	assert.Len(t, f.rec.ofType(notify.MatchUserStateChanged), 2)
}

func TestBeatmapAvailability(t *testing.T) {
	f := newFixture(t, defaultSettings())
	progress := 0.5

	require.NoError(t, f.m.ChangeBeatmapAvailability(host.ID, models.BeatmapAvailability{
		State:            models.DownloadStateDownloading,
		DownloadProgress: &progress,
	}))
	same := 0.5
	require.NoError(t, f.m.ChangeBeatmapAvailability(host.ID, models.BeatmapAvailability{
		State:            models.DownloadStateDownloading,
		DownloadProgress: &same,
	}))
	require.NoError(t, f.m.ChangeBeatmapAvailability(host.ID, models.LocallyAvailable()))

	changes := f.rec.ofType(notify.UserBeatmapAvailabilityChanged)
	require.Len(t, changes, 2)
	assert.Equal(t, models.DownloadStateLocallyAvailable, changes[1].Availability.State)

	progress = 0.9
	u, _ := f.m.Snapshot().User(host.ID)
	assert.Nil(t, u.BeatmapAvailability.DownloadProgress)
	assert.ErrorIs(t, f.m.ChangeBeatmapAvailability(9, models.LocallyAvailable()), models.ErrUserNotInRoom)
}

func TestBeatmapAvailabilityReevaluates(t *testing.T) {
	settings := defaultSettings()
	settings.AutoStartDuration = 5 * time.Second
	f := newFixture(t, settings)

	f.setState(t, models.UserStateReady, host.ID)
	require.NotNil(t, f.m.Snapshot().Countdown)
	require.NoError(t, f.m.StopCountdown(host.ID))
	require.Nil(t, f.m.Snapshot().Countdown)

	require.NoError(t, f.m.ChangeBeatmapAvailability(host.ID, models.LocallyAvailable()))
	assert.NotNil(t, f.m.Snapshot().Countdown, "auto-start is re-checked after the change")
}

func TestEventsCarryRoomID(t *testing.T) {
	f := newFixture(t, defaultSettings())
	f.addUsers(t, 2)

	for _, e := range f.rec.events {
		assert.Equal(t, int64(1234), e.RoomID)
	}
}
