package models

import (
	"reflect"
	"time"
)

// Mod is a gameplay modifier attached to a playlist item.
type Mod struct {
	Acronym  string         `json:"acronym" yaml:"acronym"`
	Settings map[string]any `json:"settings,omitempty" yaml:"settings,omitempty"`
}

func cloneMods(mods []Mod) []Mod {
	if mods == nil {
		return nil
	}
	out := make([]Mod, len(mods))
	for i, m := range mods {
		out[i] = Mod{Acronym: m.Acronym}
		if m.Settings != nil {
			out[i].Settings = make(map[string]any, len(m.Settings))
			for k, v := range m.Settings {
				out[i].Settings[k] = v
			}
		}
	}
	return out
}

// PlaylistItem is one queued beatmap in a room's playlist.
//
// ID is assigned by the room and is never reused. PlaylistOrder is the item's
// dense zero-based rank among the non-expired items; expired items keep the rank
// they had when they were played.
type PlaylistItem struct {
	ID              int64      `json:"id" yaml:"id"`
	OwnerID         int        `json:"ownerId" yaml:"owner_id"`
	BeatmapID       int        `json:"beatmapId" yaml:"beatmap_id"`
	BeatmapChecksum string     `json:"beatmapChecksum" yaml:"beatmap_checksum"`
	RulesetID       int        `json:"rulesetId" yaml:"ruleset_id"`
	RequiredMods    []Mod      `json:"requiredMods,omitempty" yaml:"required_mods,omitempty"`
	AllowedMods     []Mod      `json:"allowedMods,omitempty" yaml:"allowed_mods,omitempty"`
	Expired         bool       `json:"expired" yaml:"expired"`
	PlayedAt        *time.Time `json:"playedAt,omitempty" yaml:"played_at,omitempty"`
	PlaylistOrder   int        `json:"playlistOrder" yaml:"playlist_order"`
}

// Clone returns a deep copy of the item.
func (p PlaylistItem) Clone() PlaylistItem {
	p.RequiredMods = cloneMods(p.RequiredMods)
	p.AllowedMods = cloneMods(p.AllowedMods)
	if p.PlayedAt != nil {
		t := *p.PlayedAt
		p.PlayedAt = &t
	}
	return p
}

// SameContent reports whether two items play the same beatmap with the same ruleset and mods.
func (p PlaylistItem) SameContent(other PlaylistItem) bool {
	if p.BeatmapID != other.BeatmapID || p.BeatmapChecksum != other.BeatmapChecksum || p.RulesetID != other.RulesetID {
		return false
	}
	return sameMods(p.RequiredMods, other.RequiredMods) && sameMods(p.AllowedMods, other.AllowedMods)
}

func sameMods(a, b []Mod) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Acronym != b[i].Acronym || len(a[i].Settings) != len(b[i].Settings) {
			return false
		}
		if len(a[i].Settings) > 0 && !reflect.DeepEqual(a[i].Settings, b[i].Settings) {
			return false
		}
	}
	return true
}
