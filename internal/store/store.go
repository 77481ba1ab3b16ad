// Package store defines the persisted-object store the whiteboard core
// consumes: scoped CRUD plus a scoped change feed.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"whiteboard/internal/object"
)

var (
	ErrNotFound      = errors.New("object not found")
	ErrFieldTooLarge = errors.New("field exceeds size ceiling")
	ErrScopeMismatch = errors.New("object belongs to another scope")
	ErrInvalidScope  = errors.New("invalid scope")
	ErrSubscribe     = errors.New("subscribe failed")
	ErrFeedLost      = errors.New("change feed lost")
)

// EventKind classifies a change-feed event.
type EventKind string

const (
	EventCreated EventKind = "created"
	EventUpdated EventKind = "updated"
	EventDeleted EventKind = "deleted"
)

// Event is one change-feed entry. For deletions Payload carries only the
// id, scope and revision of the removed object.
type Event struct {
	Kind    EventKind     `json:"kind"`
	Payload object.Object `json:"payload"`
}

// Handler receives change-feed events. Handlers must not call back into the
// store synchronously.
type Handler func(Event)

// Subscription is a live change feed. Done is closed when the feed ends,
// either through Close or because the store dropped it; Err then reports
// why (nil after Close).
type Subscription interface {
	Done() <-chan struct{}
	Err() error
	Close() error
}

// Store is the persisted-object store. Every call is scoped: List and
// Subscribe only ever return or deliver objects of the requested scope.
type Store interface {
	Create(ctx context.Context, scope object.Scope, obj object.Object) (object.Object, error)
	Update(ctx context.Context, scope object.Scope, id string, patch object.Patch) (object.Object, error)
	Delete(ctx context.Context, scope object.Scope, id string) error
	List(ctx context.Context, scope object.Scope) ([]object.Object, error)
	Subscribe(ctx context.Context, scope object.Scope, h Handler) (Subscription, error)
}

// Bind stamps obj with scope, rejecting objects that already name a
// different scope.
func Bind(scope object.Scope, obj object.Object) (object.Object, error) {
	if !scope.Valid() {
		return object.Object{}, ErrInvalidScope
	}
	if (obj.TeamID != "" || obj.BoardID != "") && !obj.InScope(scope) {
		return object.Object{}, fmt.Errorf("%w: %s", ErrScopeMismatch, obj.Scope())
	}
	obj.TeamID, obj.BoardID = scope.TeamID, scope.BoardID
	return obj, nil
}

// CheckFields enforces the per-field ceiling on every string field.
func CheckFields(obj object.Object, ceiling int) error {
	fields := map[string]string{
		"points":    obj.Points,
		"imageUrl":  obj.ImageURL,
		"color":     obj.Color,
		"fillColor": obj.FillColor,
		"createdBy": obj.CreatedBy,
	}
	for name, value := range fields {
		if len(value) > ceiling {
			return fmt.Errorf("%w: %s is %d bytes (max %d)", ErrFieldTooLarge, name, len(value), ceiling)
		}
	}
	return nil
}

// SortBySeq orders objects by creation, oldest first.
func SortBySeq(objs []object.Object) {
	sort.SliceStable(objs, func(i, j int) bool {
		if objs[i].Seq != objs[j].Seq {
			return objs[i].Seq < objs[j].Seq
		}
		return objs[i].ID < objs[j].ID
	})
}
