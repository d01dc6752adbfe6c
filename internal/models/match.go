package models

// MatchRoomState is the room-level match sub-state. A nil *MatchRoomState means the
// match type carries no room state (head-to-head).
type MatchRoomState struct {
	Type  MatchType `json:"type"`
	Teams []Team    `json:"teams,omitempty"`
}

// Team is one side of a team-versus match.
type Team struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Clone returns a deep copy, preserving nil.
func (s *MatchRoomState) Clone() *MatchRoomState {
	if s == nil {
		return nil
	}
	out := &MatchRoomState{Type: s.Type}
	if s.Teams != nil {
		out.Teams = append([]Team(nil), s.Teams...)
	}
	return out
}

// HasTeam reports whether teamID names one of the room's teams.
func (s *MatchRoomState) HasTeam(teamID int) bool {
	if s == nil {
		return false
	}
	for _, t := range s.Teams {
		if t.ID == teamID {
			return true
		}
	}
	return false
}

// MatchUserState is the user-level match sub-state, tagged by match type.
type MatchUserState struct {
	Type   MatchType `json:"type"`
	TeamID int       `json:"teamId"`
}

// Clone returns a copy, preserving nil.
func (s *MatchUserState) Clone() *MatchUserState {
	if s == nil {
		return nil
	}
	out := *s
	return &out
}
