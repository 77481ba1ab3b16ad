package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"whiteboard/internal/config"
	"whiteboard/internal/logging"
	"whiteboard/internal/store"
)

// Server exposes a store.Store to WebSocket clients.
type Server struct {
	store    store.Store
	hub      *Hub
	limits   limits
	origins  []string
	ipLimit  *IPRateLimit
	upgrader websocket.Upgrader
	clock    clock.Clock
	log      logging.Logger
}

type serverOptions struct {
	clock   clock.Clock
	log     logging.Logger
	origins []string
	ipEvery time.Duration
	ipBurst int
}

type ServerOption func(*serverOptions)

func WithClock(c clock.Clock) ServerOption {
	return func(o *serverOptions) { o.clock = c }
}

func WithLogger(l logging.Logger) ServerOption {
	return func(o *serverOptions) { o.log = l }
}

// WithAllowedOrigins restricts browser origins. Empty allows all.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(o *serverOptions) { o.origins = origins }
}

// WithIPLimit sets the per-IP connection budget: one every every, up to
// burst at once.
func WithIPLimit(every time.Duration, burst int) ServerOption {
	return func(o *serverOptions) { o.ipEvery, o.ipBurst = every, burst }
}

func NewServer(st store.Store, cfg config.LimitsConfig, opts ...ServerOption) *Server {
	o := serverOptions{
		clock:   clock.New(),
		log:     logging.Nop(),
		ipEvery: defaultIPEvery,
		ipBurst: defaultIPBurst,
	}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Server{
		store:   st,
		hub:     NewHub(st, o.clock, o.log, cfg.MaxRooms, cfg.RoomIdle),
		limits:  limits{cfg},
		origins: o.origins,
		ipLimit: NewIPRateLimit(o.clock, o.ipEvery, o.ipBurst),
		clock:   o.clock,
		log:     o.log,
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	return s
}

func (s *Server) Hub() *Hub { return s.hub }

// checkOrigin accepts configured origins. Requests without an Origin
// header come from non-browser clients and are allowed.
func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.origins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.origins {
		if origin == strings.TrimSpace(allowed) {
			return true
		}
	}
	return false
}

// Run performs periodic housekeeping until ctx ends.
func (s *Server) Run(ctx context.Context) {
	go s.hub.Run(ctx)

	ticker := s.clock.Ticker(maxCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.ipLimit.Cleanup()
		}
	}
}

func (s *Server) Close() {
	s.hub.Close()
}

// ServeHTTP upgrades the request and serves the connection until it ends.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ip := ClientIP(r)
	if !s.ipLimit.Allow(ip) {
		s.log.Warn(r.Context(), "connection rate limit exceeded", "ip", ip)
		http.Error(w, "Too many connections", http.StatusTooManyRequests)
		return
	}

	w.Header().Set("X-Content-Type-Options", "nosniff")
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn(r.Context(), "upgrade failed", "ip", ip, "error", err)
		return
	}

	p := newPeer(uuid.NewString(), ip, conn, s.limits.newLimiter())
	defer p.Close()
	s.log.Info(r.Context(), "connection opened", "peer", p.id, "ip", ip)
	defer s.cleanup(p)

	go func() {
		if err := p.writePump(); err != nil {
			s.log.Warn(r.Context(), "event write failed", "peer", p.id, "error", err)
			p.Close()
		}
	}()

	s.run(r.Context(), p)
}

func (s *Server) cleanup(p *peer) {
	for scope := range p.scopes {
		s.hub.Leave(scope, p)
	}
	s.log.Info(context.Background(), "connection closed", "peer", p.id)
}

// run is the connection's read loop, with a keepalive ping alongside.
func (s *Server) run(ctx context.Context, p *peer) {
	conn := p.conn
	conn.SetReadLimit(s.limits.readLimit())
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Warn(ctx, "read failed", "peer", p.id, "error", err)
			}
			return
		}

		resp := s.handle(ctx, p, msg)
		if err := p.send(resp); err != nil {
			s.log.Warn(ctx, "write failed", "peer", p.id, "error", err)
			return
		}
	}
}

// handle applies one message and returns the reply. Oversized and
// rate-limited messages are answered with an error, not applied.
func (s *Server) handle(ctx context.Context, p *peer, msg []byte) Response {
	if !s.limits.ValidateMessageSize(len(msg)) {
		s.log.Warn(ctx, "message too large", "peer", p.id, "bytes", len(msg))
		// only the envelope is decoded so the reply can be correlated
		var env envelope
		_ = json.Unmarshal(msg, &env)
		return failure(Request{Type: env.Type, ReqID: env.ReqID},
			fmt.Errorf("%w: %d bytes (max %d)", ErrMessageTooLarge, len(msg), s.limits.MaxMessageSize))
	}

	var req Request
	if err := json.Unmarshal(msg, &req); err != nil {
		return failure(req, fmt.Errorf("%w: %v", ErrBadRequest, err))
	}
	if !p.limiter.AllowN(s.clock.Now(), 1) {
		s.log.Warn(ctx, "message rate limit exceeded", "peer", p.id)
		return failure(req, ErrRateLimited)
	}

	resp, err := s.route(ctx, p, req)
	if err != nil {
		s.log.Debug(ctx, "request failed", "peer", p.id, "type", req.Type, "error", err)
		return failure(req, err)
	}
	resp.Type = TypeResult
	resp.ReqID = req.ReqID
	return resp
}

func (s *Server) route(ctx context.Context, p *peer, req Request) (Response, error) {
	if !req.Scope.Valid() {
		return Response{}, store.ErrInvalidScope
	}

	switch req.Type {
	case TypeCreate:
		if req.Object == nil {
			return Response{}, fmt.Errorf("%w: missing object", ErrBadRequest)
		}
		count, err := s.hub.ObjectCount(ctx, req.Scope)
		if err != nil {
			return Response{}, err
		}
		if !s.limits.CanAddObject(fixedCount(count)) {
			return Response{}, ErrObjectLimit
		}
		created, err := s.store.Create(ctx, req.Scope, *req.Object)
		if err != nil {
			return Response{}, err
		}
		return Response{Object: &created}, nil

	case TypeUpdate:
		if req.ID == "" || req.Patch == nil {
			return Response{}, fmt.Errorf("%w: missing id or patch", ErrBadRequest)
		}
		updated, err := s.store.Update(ctx, req.Scope, req.ID, *req.Patch)
		if err != nil {
			return Response{}, err
		}
		return Response{Object: &updated}, nil

	case TypeDelete:
		if req.ID == "" {
			return Response{}, fmt.Errorf("%w: missing id", ErrBadRequest)
		}
		return Response{}, s.store.Delete(ctx, req.Scope, req.ID)

	case TypeList:
		objs, err := s.store.List(ctx, req.Scope)
		if err != nil {
			return Response{}, err
		}
		return Response{Objects: objs}, nil

	case TypeSubscribe:
		// a room retired after a lost feed no longer holds p
		if rm, ok := s.hub.Room(req.Scope); ok && rm.has(p) {
			return Response{}, nil
		}
		if _, err := s.hub.Join(ctx, req.Scope, p); err != nil {
			return Response{}, err
		}
		p.scopes[req.Scope] = true
		return Response{}, nil

	case TypeUnsubscribe:
		if p.scopes[req.Scope] {
			s.hub.Leave(req.Scope, p)
			delete(p.scopes, req.Scope)
		}
		return Response{}, nil

	default:
		return Response{}, fmt.Errorf("%w: unknown message type %q", ErrBadRequest, req.Type)
	}
}

type fixedCount int

func (n fixedCount) ObjectCount() int { return int(n) }
