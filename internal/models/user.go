package models

// User is the identity handed to the simulator at join time. It is trusted as-is.
type User struct {
	ID       int    `json:"id" yaml:"id"`
	Username string `json:"username" yaml:"username"`
}

// UserState is the per-user progression through a round.
type UserState string

const (
	UserStateIdle           UserState = "idle"
	UserStateReady          UserState = "ready"
	UserStateWaitingForLoad UserState = "waiting_for_load"
	UserStateLoaded         UserState = "loaded"
	UserStatePlaying        UserState = "playing"
	UserStateFinishedPlay   UserState = "finished_play"
	UserStateResults        UserState = "results"
)

// Valid reports whether s is one of the known user states.
func (s UserState) Valid() bool {
	switch s {
	case UserStateIdle, UserStateReady, UserStateWaitingForLoad, UserStateLoaded,
		UserStatePlaying, UserStateFinishedPlay, UserStateResults:
		return true
	}
	return false
}

// DownloadState describes how far a user is from having the current beatmap locally.
type DownloadState string

const (
	DownloadStateUnknown          DownloadState = "unknown"
	DownloadStateNotDownloaded    DownloadState = "not_downloaded"
	DownloadStateDownloading      DownloadState = "downloading"
	DownloadStateImporting        DownloadState = "importing"
	DownloadStateLocallyAvailable DownloadState = "locally_available"
)

// BeatmapAvailability is reported by each client for the room's current item.
type BeatmapAvailability struct {
	State            DownloadState `json:"state"`
	DownloadProgress *float64      `json:"downloadProgress,omitempty"` // only meaningful while downloading
}

// LocallyAvailable returns the availability of a fully imported beatmap.
func LocallyAvailable() BeatmapAvailability {
	return BeatmapAvailability{State: DownloadStateLocallyAvailable}
}

func (a BeatmapAvailability) clone() BeatmapAvailability {
	if a.DownloadProgress != nil {
		p := *a.DownloadProgress
		a.DownloadProgress = &p
	}
	return a
}

// RoomUser is a user as seen by one room.
type RoomUser struct {
	UserID              int                 `json:"userId"`
	Username            string              `json:"username"`
	State               UserState           `json:"state"`
	MatchState          *MatchUserState     `json:"matchState,omitempty"`
	BeatmapAvailability BeatmapAvailability `json:"beatmapAvailability"`
}

// NewRoomUser admits u into a room in the idle state.
func NewRoomUser(u User) *RoomUser {
	return &RoomUser{
		UserID:              u.ID,
		Username:            u.Username,
		State:               UserStateIdle,
		BeatmapAvailability: BeatmapAvailability{State: DownloadStateUnknown},
	}
}

// Clone returns a deep copy safe to hand to subscribers.
func (u RoomUser) Clone() RoomUser {
	u.MatchState = u.MatchState.Clone()
	u.BeatmapAvailability = u.BeatmapAvailability.clone()
	return u
}
