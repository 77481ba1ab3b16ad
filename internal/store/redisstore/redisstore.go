// Package redisstore implements store.Store on Redis. Each board is a hash
// of object JSON plus a revision counter, and changes are fanned out over a
// per-board Pub/Sub channel.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"whiteboard/internal/codec"
	"whiteboard/internal/object"
	"whiteboard/internal/store"
)

// maxTxRetries bounds optimistic-lock retries for a single write.
const maxTxRetries = 16

// ErrConflict is returned when a write loses the optimistic lock too often.
var ErrConflict = errors.New("write conflict")

// Store is a Redis-backed store. It is safe for concurrent use.
type Store struct {
	rdb       *redis.Client
	validator *object.Validator
	ceiling   int
}

// New connects a store using redisOpts. ceiling bounds every string field;
// a non-positive value selects codec.DefaultCeiling.
func New(redisOpts *redis.Options, ceiling int) *Store {
	return NewWithClient(redis.NewClient(redisOpts), ceiling)
}

// NewWithClient wraps an existing client. Close closes it.
func NewWithClient(rdb *redis.Client, ceiling int) *Store {
	if ceiling <= 0 {
		ceiling = codec.DefaultCeiling
	}
	return &Store{rdb: rdb, validator: object.NewValidator(), ceiling: ceiling}
}

// Ping verifies Redis connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) Create(ctx context.Context, scope object.Scope, obj object.Object) (object.Object, error) {
	obj, err := s.check(scope, obj)
	if err != nil {
		return object.Object{}, err
	}
	obj.ID = uuid.NewString()

	ev, err := s.write(ctx, scope, "", func(_ *object.Object, rev int64) (store.Event, error) {
		obj.Seq, obj.Rev = rev, rev
		return store.Event{Kind: store.EventCreated, Payload: obj}, nil
	})
	if err != nil {
		return object.Object{}, err
	}
	return ev.Payload, nil
}

func (s *Store) Update(ctx context.Context, scope object.Scope, id string, patch object.Patch) (object.Object, error) {
	ev, err := s.write(ctx, scope, id, func(current *object.Object, rev int64) (store.Event, error) {
		updated, err := s.check(scope, patch.Apply(*current))
		if err != nil {
			return store.Event{}, err
		}
		updated.Rev = rev
		return store.Event{Kind: store.EventUpdated, Payload: updated}, nil
	})
	if err != nil {
		return object.Object{}, err
	}
	return ev.Payload, nil
}

func (s *Store) Delete(ctx context.Context, scope object.Scope, id string) error {
	_, err := s.write(ctx, scope, id, func(current *object.Object, rev int64) (store.Event, error) {
		tombstone := object.Object{
			ID:      current.ID,
			TeamID:  current.TeamID,
			BoardID: current.BoardID,
			Kind:    current.Kind,
			Rev:     rev,
		}
		return store.Event{Kind: store.EventDeleted, Payload: tombstone}, nil
	})
	return err
}

func (s *Store) List(ctx context.Context, scope object.Scope) ([]object.Object, error) {
	if !scope.Valid() {
		return nil, store.ErrInvalidScope
	}

	hash, err := s.rdb.HGetAll(ctx, ObjectsKey(scope)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read objects from Redis: %w", err)
	}

	objs := make([]object.Object, 0, len(hash))
	for id, raw := range hash {
		var o object.Object
		if err := json.Unmarshal([]byte(raw), &o); err != nil {
			return nil, fmt.Errorf("failed to deserialize object %s: %w", id, err)
		}
		if o.InScope(scope) {
			objs = append(objs, o)
		}
	}
	store.SortBySeq(objs)
	return objs, nil
}

// Subscribe confirms the Pub/Sub subscription before returning, so no write
// made after Subscribe returns is missed. The feed ends with
// store.ErrFeedLost if the connection drops.
func (s *Store) Subscribe(ctx context.Context, scope object.Scope, h store.Handler) (store.Subscription, error) {
	if !scope.Valid() {
		return nil, store.ErrInvalidScope
	}

	pubsub := s.rdb.Subscribe(ctx, EventsChannel(scope))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("%w: %v", store.ErrSubscribe, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	feed := store.NewFeed(func() {
		cancel()
		_ = pubsub.Close()
	})

	go func() {
		for {
			msg, err := pubsub.ReceiveMessage(subCtx)
			if err != nil {
				if subCtx.Err() != nil {
					feed.Finish(nil)
				} else {
					feed.Finish(fmt.Errorf("%w: %v", store.ErrFeedLost, err))
				}
				return
			}

			var ev store.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				// skip malformed events
				continue
			}
			if !ev.Payload.InScope(scope) {
				continue
			}
			h(ev)
		}
	}()

	return feed, nil
}

func (s *Store) check(scope object.Scope, obj object.Object) (object.Object, error) {
	obj, err := store.Bind(scope, obj)
	if err != nil {
		return object.Object{}, err
	}
	if err := store.CheckFields(obj, s.ceiling); err != nil {
		return object.Object{}, err
	}
	return s.validator.Validate(obj)
}

// write runs one optimistic transaction on the board: it reads the current
// revision (and the object named by id, if any), lets build produce the
// event for the next revision, then commits the object change, the new
// revision and the published event together. Every write bumps the
// revision key, so watching it serializes writers per board.
func (s *Store) write(ctx context.Context, scope object.Scope, id string, build func(current *object.Object, rev int64) (store.Event, error)) (store.Event, error) {
	if !scope.Valid() {
		return store.Event{}, store.ErrInvalidScope
	}

	objectsKey, revKey := ObjectsKey(scope), RevKey(scope)
	var ev store.Event

	txf := func(tx *redis.Tx) error {
		rev, err := tx.Get(ctx, revKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("failed to read revision: %w", err)
		}

		var current *object.Object
		if id != "" {
			raw, err := tx.HGet(ctx, objectsKey, id).Result()
			if errors.Is(err, redis.Nil) {
				return store.ErrNotFound
			}
			if err != nil {
				return fmt.Errorf("failed to read object %s: %w", id, err)
			}
			var o object.Object
			if err := json.Unmarshal([]byte(raw), &o); err != nil {
				return fmt.Errorf("failed to deserialize object %s: %w", id, err)
			}
			if !o.InScope(scope) {
				return store.ErrNotFound
			}
			current = &o
		}

		ev, err = build(current, rev+1)
		if err != nil {
			return err
		}

		objJSON, err := json.Marshal(ev.Payload)
		if err != nil {
			return fmt.Errorf("failed to serialize object: %w", err)
		}
		evJSON, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, revKey, rev+1, 0)
			if ev.Kind == store.EventDeleted {
				pipe.HDel(ctx, objectsKey, ev.Payload.ID)
			} else {
				pipe.HSet(ctx, objectsKey, ev.Payload.ID, objJSON)
			}
			pipe.Publish(ctx, EventsChannel(scope), evJSON)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, revKey)
		if err == nil {
			return ev, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return store.Event{}, err
	}
	return store.Event{}, ErrConflict
}

var _ store.Store = (*Store)(nil)
