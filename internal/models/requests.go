package models

import "time"

// MatchRequest is a match-type specific request sent by a user.
type MatchRequest interface {
	matchRequest()
}

// StartMatchCountdownRequest asks the room to start the match after Duration.
type StartMatchCountdownRequest struct {
	Duration time.Duration `json:"duration"`
}

// StopCountdownRequest cancels the active countdown, if any.
type StopCountdownRequest struct{}

// ChangeTeamRequest moves the sender to another team in a team-versus match.
type ChangeTeamRequest struct {
	TeamID int `json:"teamId"`
}

func (StartMatchCountdownRequest) matchRequest() {}
func (StopCountdownRequest) matchRequest()       {}
func (ChangeTeamRequest) matchRequest()          {}
