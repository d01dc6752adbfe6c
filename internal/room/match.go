package room

import (
	"github.com/jason-s-yu/roomsim/internal/models"
	"github.com/jason-s-yu/roomsim/internal/notify"
)

// MatchHandler implements the rules specific to one match type.
type MatchHandler interface {
	// Apply installs the type's room sub-state and a default sub-state for every user.
	Apply(m *Machine)
	// UserJoined assigns a default sub-state to a user admitted after Apply.
	UserJoined(m *Machine, user *models.RoomUser)
	// HandleRequest handles a match request the room does not handle itself.
	HandleRequest(m *Machine, user *models.RoomUser, req models.MatchRequest) error
}

var handlers = map[models.MatchType]MatchHandler{}

// RegisterMatchHandler installs the handler used for rooms of type t.
func RegisterMatchHandler(t models.MatchType, h MatchHandler) {
	handlers[t] = h
}

func handlerFor(t models.MatchType) (MatchHandler, bool) {
	h, ok := handlers[t]
	return h, ok
}

func init() {
	RegisterMatchHandler(models.MatchTypeHeadToHead, headToHead{})
	RegisterMatchHandler(models.MatchTypeTeamVersus, teamVersus{})
}

func (m *Machine) setMatchState(state *models.MatchRoomState) {
	m.matchState = state
	m.publish(notify.Event{Type: notify.MatchRoomStateChanged, MatchRoomState: state.Clone()})
}

func (m *Machine) setMatchUserState(user *models.RoomUser, state *models.MatchUserState) {
	user.MatchState = state
	m.publish(notify.Event{Type: notify.MatchUserStateChanged, UserID: user.UserID, MatchUserState: state.Clone()})
}

// headToHead carries no sub-state.
type headToHead struct{}

func (headToHead) Apply(m *Machine) {
	if m.matchState != nil {
		m.setMatchState(nil)
	}
	for _, id := range m.joined {
		if u := m.users[id]; u.MatchState != nil {
			m.setMatchUserState(u, nil)
		}
	}
}

func (headToHead) UserJoined(*Machine, *models.RoomUser) {}

func (headToHead) HandleRequest(*Machine, *models.RoomUser, models.MatchRequest) error {
	return models.ErrInvalidMatchRequest
}

type teamVersus struct{}

func defaultTeams() []models.Team {
	return []models.Team{
		{ID: 0, Name: "Team Red"},
		{ID: 1, Name: "Team Blue"},
	}
}

func (teamVersus) Apply(m *Machine) {
	m.setMatchState(&models.MatchRoomState{Type: models.MatchTypeTeamVersus, Teams: defaultTeams()})
	for _, id := range m.joined {
		m.setMatchUserState(m.users[id], &models.MatchUserState{Type: models.MatchTypeTeamVersus, TeamID: 0})
	}
}

func (teamVersus) UserJoined(m *Machine, user *models.RoomUser) {
	if m.matchState == nil || len(m.matchState.Teams) == 0 {
		return
	}
	m.setMatchUserState(user, &models.MatchUserState{Type: models.MatchTypeTeamVersus, TeamID: smallestTeam(m, user.UserID)})
}

// smallestTeam returns the team with the fewest members other than exclude,
// preferring the lowest id on ties.
func smallestTeam(m *Machine, exclude int) int {
	counts := make(map[int]int, len(m.matchState.Teams))
	for _, u := range m.users {
		if u.UserID != exclude && u.MatchState != nil {
			counts[u.MatchState.TeamID]++
		}
	}
	best := m.matchState.Teams[0].ID
	for _, t := range m.matchState.Teams[1:] {
		if counts[t.ID] < counts[best] || (counts[t.ID] == counts[best] && t.ID < best) {
			best = t.ID
		}
	}
	return best
}

func (teamVersus) HandleRequest(m *Machine, user *models.RoomUser, req models.MatchRequest) error {
	r, ok := req.(models.ChangeTeamRequest)
	if !ok {
		return models.ErrInvalidMatchRequest
	}
	if !m.matchState.HasTeam(r.TeamID) {
		return nil
	}
	if user.MatchState != nil && user.MatchState.TeamID == r.TeamID {
		return nil
	}
	m.setMatchUserState(user, &models.MatchUserState{Type: models.MatchTypeTeamVersus, TeamID: r.TeamID})
	return nil
}
