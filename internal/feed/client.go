package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"whiteboard/internal/logging"
	"whiteboard/internal/object"
	"whiteboard/internal/store"
)

// Client is a store.Store backed by a feed Server connection.
type Client struct {
	conn *websocket.Conn
	log  logging.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan Response
	subs    map[object.Scope]map[*clientSub]struct{}
	err     error
	done    chan struct{}
}

type clientSub struct {
	handler store.Handler
	feed    *store.Feed
}

type ClientOption func(*Client)

func WithClientLogger(l logging.Logger) ClientOption {
	return func(c *Client) { c.log = l }
}

// Dial connects to the feed server at url (ws:// or wss://).
func Dial(ctx context.Context, url string, header http.Header, opts ...ClientOption) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	c := &Client{
		conn:    conn,
		log:     logging.Nop(),
		pending: make(map[string]chan Response),
		subs:    make(map[object.Scope]map[*clientSub]struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.readLoop()
	return c, nil
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close ends the connection and every subscription on it.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	err := c.conn.Close()
	<-c.done
	return err
}

func (c *Client) readLoop() {
	var err error
	for {
		var msg []byte
		if _, msg, err = c.conn.ReadMessage(); err != nil {
			break
		}
		var resp Response
		if jerr := json.Unmarshal(msg, &resp); jerr != nil {
			c.log.Warn(context.Background(), "malformed feed message", "error", jerr)
			continue
		}
		c.dispatch(resp)
	}
	c.shutdown(err)
}

func (c *Client) dispatch(resp Response) {
	switch resp.Type {
	case TypeResult:
		c.mu.Lock()
		ch, ok := c.pending[resp.ReqID]
		delete(c.pending, resp.ReqID)
		c.mu.Unlock()
		if ok {
			ch <- resp
		}

	case TypeEvent:
		if resp.Scope == nil || resp.Event == nil {
			return
		}
		for _, sub := range c.subscribers(*resp.Scope) {
			select {
			case <-sub.feed.Done():
			default:
				sub.handler(*resp.Event)
			}
		}

	case TypeFeedLost:
		if resp.Scope == nil {
			return
		}
		for _, sub := range c.subscribers(*resp.Scope) {
			sub.feed.Finish(fmt.Errorf("%w: %s", store.ErrFeedLost, resp.Error))
		}
	}
}

func (c *Client) subscribers(scope object.Scope) []*clientSub {
	c.mu.Lock()
	defer c.mu.Unlock()

	subs := make([]*clientSub, 0, len(c.subs[scope]))
	for sub := range c.subs[scope] {
		subs = append(subs, sub)
	}
	return subs
}

// shutdown fails everything waiting on the connection.
func (c *Client) shutdown(err error) {
	c.mu.Lock()
	c.err = fmt.Errorf("%w: %v", ErrConnClosed, err)
	c.pending = make(map[string]chan Response)
	var subs []*clientSub
	for _, set := range c.subs {
		for sub := range set {
			subs = append(subs, sub)
		}
	}
	c.mu.Unlock()

	close(c.done)
	for _, sub := range subs {
		sub.feed.Finish(store.ErrFeedLost)
	}
}

func (c *Client) closedErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Client) write(req Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", req.Type, err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// call sends req and waits for its result.
func (c *Client) call(ctx context.Context, req Request) (Response, error) {
	req.ReqID = uuid.NewString()
	ch := make(chan Response, 1)

	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return Response{}, c.err
	}
	c.pending[req.ReqID] = ch
	c.mu.Unlock()

	forget := func() {
		c.mu.Lock()
		delete(c.pending, req.ReqID)
		c.mu.Unlock()
	}

	if err := c.write(req); err != nil {
		forget()
		return Response{}, fmt.Errorf("%w: %v", ErrConnClosed, err)
	}

	select {
	case resp := <-ch:
		if resp.Code != "" {
			return resp, errorFor(resp.Code, resp.Error)
		}
		return resp, nil
	case <-ctx.Done():
		forget()
		return Response{}, ctx.Err()
	case <-c.done:
		return Response{}, c.closedErr()
	}
}

func (c *Client) Create(ctx context.Context, scope object.Scope, obj object.Object) (object.Object, error) {
	resp, err := c.call(ctx, Request{Type: TypeCreate, Scope: scope, Object: &obj})
	if err != nil {
		return object.Object{}, err
	}
	if resp.Object == nil {
		return object.Object{}, fmt.Errorf("%w: create returned no object", ErrRemote)
	}
	return *resp.Object, nil
}

func (c *Client) Update(ctx context.Context, scope object.Scope, id string, patch object.Patch) (object.Object, error) {
	resp, err := c.call(ctx, Request{Type: TypeUpdate, Scope: scope, ID: id, Patch: &patch})
	if err != nil {
		return object.Object{}, err
	}
	if resp.Object == nil {
		return object.Object{}, fmt.Errorf("%w: update returned no object", ErrRemote)
	}
	return *resp.Object, nil
}

func (c *Client) Delete(ctx context.Context, scope object.Scope, id string) error {
	_, err := c.call(ctx, Request{Type: TypeDelete, Scope: scope, ID: id})
	return err
}

func (c *Client) List(ctx context.Context, scope object.Scope) ([]object.Object, error) {
	resp, err := c.call(ctx, Request{Type: TypeList, Scope: scope})
	if err != nil {
		return nil, err
	}
	return resp.Objects, nil
}

// Subscribe joins scope's change feed. The handler runs on the client's
// read goroutine, so events arrive in order and it must not block on
// further calls to c.
func (c *Client) Subscribe(ctx context.Context, scope object.Scope, h store.Handler) (store.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !scope.Valid() {
		return nil, store.ErrInvalidScope
	}

	sub := &clientSub{handler: h}
	sub.feed = store.NewFeed(func() { c.unsubscribe(scope, sub) })

	c.mu.Lock()
	first := len(c.subs[scope]) == 0
	if first {
		c.subs[scope] = make(map[*clientSub]struct{})
	}
	c.subs[scope][sub] = struct{}{}
	c.mu.Unlock()

	// the server holds one membership per connection and scope
	if _, err := c.call(ctx, Request{Type: TypeSubscribe, Scope: scope}); err != nil {
		c.mu.Lock()
		delete(c.subs[scope], sub)
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %w", store.ErrSubscribe, err)
	}

	go func() {
		select {
		case <-ctx.Done():
			sub.feed.Close()
		case <-sub.feed.Done():
		}
	}()
	return sub.feed, nil
}

func (c *Client) unsubscribe(scope object.Scope, sub *clientSub) {
	c.mu.Lock()
	delete(c.subs[scope], sub)
	last := len(c.subs[scope]) == 0
	if last {
		delete(c.subs, scope)
	}
	closed := c.err != nil
	c.mu.Unlock()

	if last && !closed {
		// result is not awaited; it may run on the read goroutine
		if err := c.write(Request{Type: TypeUnsubscribe, ReqID: uuid.NewString(), Scope: scope}); err != nil {
			c.log.Debug(context.Background(), "unsubscribe failed", "scope", scope.String(), "error", err)
		}
	}
}

var _ store.Store = (*Client)(nil)
