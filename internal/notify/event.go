// Package notify fans room notifications out to subscribers.
package notify

import (
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/roomsim/internal/models"
)

// EventType names what changed in a room.
type EventType string

const (
	UserJoined                     EventType = "user_joined"
	UserLeft                       EventType = "user_left"
	UserKicked                     EventType = "user_kicked"
	HostChanged                    EventType = "host_changed"
	RoomStateChanged               EventType = "room_state_changed"
	UserStateChanged               EventType = "user_state_changed"
	UserBeatmapAvailabilityChanged EventType = "user_beatmap_availability_changed"
	MatchRoomStateChanged          EventType = "match_room_state_changed"
	MatchUserStateChanged          EventType = "match_user_state_changed"
	SettingsChanged                EventType = "settings_changed"
	PlaylistItemAdded              EventType = "playlist_item_added"
	PlaylistItemChanged            EventType = "playlist_item_changed"
	PlaylistItemRemoved            EventType = "playlist_item_removed"
	CountdownChanged               EventType = "countdown_changed"
	LoadRequested                  EventType = "load_requested"
	MatchStarted                   EventType = "match_started"
	ResultsReady                   EventType = "results_ready"
)

// Event is a single change notification. Only the fields relevant to Type are set;
// the hub fills in ID, Seq and Timestamp when publishing.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Seq       uint64    `json:"seq"`
	RoomID    int64     `json:"roomId"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// UserID is the subject of user, host and match-user events.
	UserID int `json:"userId,omitempty"`

	User           *models.RoomUser            `json:"user,omitempty"`
	RoomState      models.RoomState            `json:"roomState,omitempty"`
	UserState      models.UserState            `json:"userState,omitempty"`
	Availability   *models.BeatmapAvailability `json:"availability,omitempty"`
	MatchRoomState *models.MatchRoomState      `json:"matchRoomState,omitempty"`
	MatchUserState *models.MatchUserState      `json:"matchUserState,omitempty"`
	Settings       *models.RoomSettings        `json:"settings,omitempty"`
	Item           *models.PlaylistItem        `json:"item,omitempty"`
	ItemID         int64                       `json:"itemId,omitempty"`
	Countdown      *models.Countdown           `json:"countdown,omitempty"`
}
