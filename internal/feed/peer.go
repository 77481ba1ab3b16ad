package feed

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"whiteboard/internal/object"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// sendBuffer is how many events may wait for a slow connection before
	// it is dropped.
	sendBuffer = 256
)

// peer is one connected client.
type peer struct {
	id      string
	ip      string
	conn    *websocket.Conn
	limiter *rate.Limiter

	writeMu sync.Mutex

	out       chan []byte
	quit      chan struct{}
	closeOnce sync.Once

	// scopes is only touched by the connection's read loop.
	scopes map[object.Scope]bool
}

func newPeer(id, ip string, conn *websocket.Conn, limiter *rate.Limiter) *peer {
	return &peer{
		id:      id,
		ip:      ip,
		conn:    conn,
		limiter: limiter,
		out:     make(chan []byte, sendBuffer),
		quit:    make(chan struct{}),
		scopes:  make(map[object.Scope]bool),
	}
}

// WriteMessage serializes writes; gorilla connections allow one writer.
func (p *peer) WriteMessage(messageType int, data []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if err := p.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return p.conn.WriteMessage(messageType, data)
}

func (p *peer) send(resp Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", resp.Type, err)
	}
	return p.WriteMessage(websocket.TextMessage, data)
}

// enqueue queues an event for writePump without blocking. It reports
// false when the peer is closed or too far behind.
func (p *peer) enqueue(msg []byte) bool {
	select {
	case <-p.quit:
		return false
	default:
	}
	select {
	case p.out <- msg:
		return true
	default:
		return false
	}
}

// writePump writes queued events until the peer closes or a write fails.
func (p *peer) writePump() error {
	for {
		select {
		case msg := <-p.out:
			if err := p.WriteMessage(websocket.TextMessage, msg); err != nil {
				return err
			}
		case <-p.quit:
			return nil
		}
	}
}

func (p *peer) Close() error {
	p.closeOnce.Do(func() { close(p.quit) })
	return p.conn.Close()
}

// ClientIP extracts the client address from the request. Only RemoteAddr
// is used; forwarding headers can be spoofed.
func ClientIP(r *http.Request) string {
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return strings.Trim(ip, "[]")
}
