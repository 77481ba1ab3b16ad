// Package identity supplies who is drawing: the team a session belongs to,
// the session's own id, and a colour to tell sessions apart.
package identity

import (
	"errors"

	"github.com/google/uuid"

	"whiteboard/internal/object"
)

var ErrNoTeam = errors.New("identity has no team")

// Provider reports the current user's team and session.
type Provider interface {
	TeamID() string
	SessionID() string
}

// Static is a fixed identity.
type Static struct {
	Team    string
	Session string
}

// NewStatic returns an identity for team with a fresh random session id.
func NewStatic(team string) Static {
	return Static{Team: team, Session: uuid.NewString()}
}

func (s Static) TeamID() string    { return s.Team }
func (s Static) SessionID() string { return s.Session }

// ScopeFor builds the board scope for p's team.
func ScopeFor(p Provider, boardID string) (object.Scope, error) {
	team := p.TeamID()
	if team == "" {
		return object.Scope{}, ErrNoTeam
	}
	scope := object.Scope{TeamID: team, BoardID: boardID}
	if !scope.Valid() {
		return object.Scope{}, errors.New("invalid board id")
	}
	return scope, nil
}
