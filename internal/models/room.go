package models

import "time"

// RoomState is the room-wide phase of a round.
type RoomState string

const (
	RoomStateOpen           RoomState = "open"
	RoomStateWaitingForLoad RoomState = "waiting_for_load"
	RoomStatePlaying        RoomState = "playing"
)

// MatchType selects the match-type handler a room runs under.
type MatchType string

const (
	MatchTypeHeadToHead MatchType = "head_to_head"
	MatchTypeTeamVersus MatchType = "team_versus"
)

// QueueMode governs who may queue items and how the playlist is ordered.
type QueueMode string

const (
	// QueueModeHostOnly lets only the host queue items; items play in the order they were added.
	QueueModeHostOnly QueueMode = "host_only"
	// QueueModeAllPlayers lets anyone queue items; items play in the order they were added.
	QueueModeAllPlayers QueueMode = "all_players"
	// QueueModeAllPlayersRoundRobin lets anyone queue items and interleaves owners fairly.
	QueueModeAllPlayersRoundRobin QueueMode = "all_players_round_robin"
)

// Valid reports whether m is a known queue mode.
func (m QueueMode) Valid() bool {
	switch m {
	case QueueModeHostOnly, QueueModeAllPlayers, QueueModeAllPlayersRoundRobin:
		return true
	}
	return false
}

// RoomSettings are the host-controlled room settings.
type RoomSettings struct {
	Name              string        `json:"name"`
	PlaylistItemID    int64         `json:"playlistItemId"` // server-authoritative
	Password          string        `json:"password,omitempty"`
	MatchType         MatchType     `json:"matchType"`
	QueueMode         QueueMode     `json:"queueMode"`
	AutoStartDuration time.Duration `json:"autoStartDuration"`
}

// AutoStartEnabled reports whether a countdown starts automatically once a user is ready.
func (s RoomSettings) AutoStartEnabled() bool {
	return s.AutoStartDuration > 0
}

// Room is a point-in-time snapshot of a live room.
type Room struct {
	RoomID     int64           `json:"roomId"`
	State      RoomState       `json:"state"`
	Settings   RoomSettings    `json:"settings"`
	Users      []RoomUser      `json:"users"`
	HostID     int             `json:"hostId"`
	MatchState *MatchRoomState `json:"matchState,omitempty"`
	Playlist   []PlaylistItem  `json:"playlist"`
	Countdown  *Countdown      `json:"countdown,omitempty"`
}

// User returns the room user with the given id.
func (r Room) User(userID int) (RoomUser, bool) {
	for _, u := range r.Users {
		if u.UserID == userID {
			return u, true
		}
	}
	return RoomUser{}, false
}

// Host returns the host, if the room has any users.
func (r Room) Host() (RoomUser, bool) {
	return r.User(r.HostID)
}

// CurrentItem returns the playlist item the settings point at.
func (r Room) CurrentItem() (PlaylistItem, bool) {
	for _, item := range r.Playlist {
		if item.ID == r.Settings.PlaylistItemID {
			return item, true
		}
	}
	return PlaylistItem{}, false
}
