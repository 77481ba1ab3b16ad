package redisstore

import (
	"fmt"

	"whiteboard/internal/object"
)

// Redis key pattern helpers
//
// Keys and channels are namespaced by scope so boards of different teams
// can share a Redis server. The team id is length-prefixed, so ids that
// contain ':' cannot make two scopes share a key.
//
// Key pattern: wb:{len(team)}:{team}:{board}:{entity}

func scopePrefix(s object.Scope) string {
	return fmt.Sprintf("wb:%d:%s:%s", len(s.TeamID), s.TeamID, s.BoardID)
}

// ObjectsKey returns the hash holding a board's objects, keyed by id.
// Pattern: wb:{len(team)}:{team}:{board}:objects
func ObjectsKey(s object.Scope) string {
	return scopePrefix(s) + ":objects"
}

// RevKey returns the counter stamped onto every write in a board.
// Pattern: wb:{len(team)}:{team}:{board}:rev
func RevKey(s object.Scope) string {
	return scopePrefix(s) + ":rev"
}

// EventsChannel returns the Pub/Sub channel carrying a board's changes.
// Pattern: wb:{len(team)}:{team}:{board}:events
func EventsChannel(s object.Scope) string {
	return scopePrefix(s) + ":events"
}
