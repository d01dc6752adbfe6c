// Package catalog provides read-only lookup of the predefined rooms a
// simulator session can join.
package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/jason-s-yu/roomsim/internal/models"
)

// ErrRoomNotFound is returned when no room has the requested id.
var ErrRoomNotFound = errors.New("room not found in catalog")

// Room is a predefined room definition. The simulator copies it on join and
// never writes back.
type Room struct {
	ID                int64                 `json:"id" yaml:"id"`
	Name              string                `json:"name" yaml:"name"`
	MatchType         models.MatchType      `json:"matchType" yaml:"match_type"`
	QueueMode         models.QueueMode      `json:"queueMode" yaml:"queue_mode"`
	AutoStartDuration time.Duration         `json:"autoStartDuration" yaml:"auto_start_duration"`
	PasswordHash      string                `json:"passwordHash,omitempty" yaml:"password_hash,omitempty"`
	Playlist          []models.PlaylistItem `json:"playlist" yaml:"playlist"`
}

// Catalog looks rooms up by id. Implementations return deep copies.
type Catalog interface {
	Lookup(ctx context.Context, roomID int64) (Room, error)
}

// Clone returns a deep copy of the room.
func (r Room) Clone() Room {
	if r.Playlist != nil {
		items := make([]models.PlaylistItem, len(r.Playlist))
		for i, item := range r.Playlist {
			items[i] = item.Clone()
		}
		r.Playlist = items
	}
	return r
}

// Settings returns the initial room settings. The password is left empty; the
// catalog only knows its hash.
func (r Room) Settings() models.RoomSettings {
	return models.RoomSettings{
		Name:              r.Name,
		MatchType:         r.MatchType,
		QueueMode:         r.QueueMode,
		AutoStartDuration: r.AutoStartDuration,
	}
}

// normalize fills defaults for fields a definition may omit.
func (r *Room) normalize() {
	if r.MatchType == "" {
		r.MatchType = models.MatchTypeHeadToHead
	}
	if r.QueueMode == "" {
		r.QueueMode = models.QueueModeHostOnly
	}
}
