// ABOUTME: boardRelay bridges websocket connections for one board onto an in-process bus.Hub.
// ABOUTME: It also keeps a passive mirror of the board by merging every relayed envelope.
package web

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"github.com/2389-research/retroboard/board/bus"
	"github.com/2389-research/retroboard/board/core"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = (pongWait * 9) / 10
	maxFrameBytes = 1 << 20
	watcherBuffer = 64
)

// boardRelay owns the hub for one board name. Frames read from a connection
// are published on that connection's hub endpoint, so the hub's sender
// exclusion keeps them from echoing back.
type boardRelay struct {
	name    string
	hub     *bus.Hub
	verbose bool

	mirrorEnd *bus.HubEndpoint
	mu        sync.RWMutex
	mirror    *core.State

	connMu sync.Mutex
	conns  map[ulid.ULID]*relayConn
	closed bool
}

func newBoardRelay(name string, verbose bool) *boardRelay {
	r := &boardRelay{
		name:    name,
		hub:     bus.NewHub(name, bus.DefaultBuffer),
		verbose: verbose,
		mirror:  core.NewState(),
		conns:   map[ulid.ULID]*relayConn{},
	}
	r.mirrorEnd = r.hub.Endpoint()
	if _, err := r.mirrorEnd.Subscribe(r.observe); err != nil {
		log.Printf("component=web.relay action=mirror_subscribe_failed board=%s err=%v", name, err)
	}
	return r
}

// observe merges a relayed frame into the mirror. The mirror never publishes.
func (r *boardRelay) observe(frame []byte) {
	env, err := core.Decode(frame)
	if err != nil {
		log.Printf("component=web.relay action=mirror_drop board=%s err=%v", r.name, err)
		return
	}
	r.mu.Lock()
	changed := core.Merge(r.mirror, env, time.Now())
	r.mu.Unlock()
	if r.verbose {
		log.Printf("component=web.relay action=mirror board=%s kind=%s user=%s changed=%t",
			r.name, env.Kind, env.OriginatingUser, changed)
	}
}

// snapshot returns a deep copy of the mirrored board.
func (r *boardRelay) snapshot() *core.State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mirror.Clone()
}

func (r *boardRelay) connections() int {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	return len(r.conns)
}

// attach takes ownership of an upgraded websocket and serves it until the
// peer goes away or the relay closes.
func (r *boardRelay) attach(ws *websocket.Conn, remote string) error {
	c := &relayConn{
		id:     core.NewULID(),
		ws:     ws,
		relay:  r,
		end:    r.hub.Endpoint(),
		remote: remote,
		done:   make(chan struct{}),
	}

	r.connMu.Lock()
	if r.closed {
		r.connMu.Unlock()
		return errRelayClosed
	}
	r.conns[c.id] = c
	r.connMu.Unlock()

	if _, err := c.end.Subscribe(c.write); err != nil {
		r.detach(c)
		return err
	}
	log.Printf("component=web.relay action=connect board=%s conn=%s remote=%s", r.name, c.id, remote)

	go c.pinger()
	c.readLoop()
	return nil
}

func (r *boardRelay) detach(c *relayConn) {
	r.connMu.Lock()
	_, ok := r.conns[c.id]
	delete(r.conns, c.id)
	r.connMu.Unlock()
	c.shutdown()
	if ok {
		log.Printf("component=web.relay action=disconnect board=%s conn=%s", r.name, c.id)
	}
}

// close disconnects every connection and the mirror.
func (r *boardRelay) close() {
	r.connMu.Lock()
	r.closed = true
	conns := make([]*relayConn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.connMu.Unlock()
	for _, c := range conns {
		r.detach(c)
	}
	_ = r.mirrorEnd.Close()
}

// watch subscribes to relayed frames for a stream consumer. Frames that do
// not fit in the buffer are dropped.
func (r *boardRelay) watch() (<-chan []byte, func(), error) {
	end := r.hub.Endpoint()
	ch := make(chan []byte, watcherBuffer)
	_, err := end.Subscribe(func(frame []byte) {
		select {
		case ch <- frame:
		default:
			log.Printf("component=web.relay action=drop board=%s reason=watcher_full", r.name)
		}
	})
	if err != nil {
		return nil, nil, err
	}
	return ch, func() { _ = end.Close() }, nil
}

var errRelayClosed = errors.New("relay closed")

// relayConn is one websocket participant. Data frames are written by the
// hub subscription's goroutine; pings go through WriteControl, which gorilla
// allows concurrently with other writers.
type relayConn struct {
	id     ulid.ULID
	ws     *websocket.Conn
	relay  *boardRelay
	end    *bus.HubEndpoint
	remote string

	once sync.Once
	done chan struct{}
}

func (c *relayConn) write(frame []byte) {
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		log.Printf("component=web.relay action=write_failed board=%s conn=%s err=%v", c.relay.name, c.id, err)
		go c.relay.detach(c)
	}
}

func (c *relayConn) readLoop() {
	defer c.relay.detach(c)
	c.ws.SetReadLimit(maxFrameBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		kind, frame, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("component=web.relay action=read_failed board=%s conn=%s err=%v", c.relay.name, c.id, err)
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		if err := c.end.Publish(frame); err != nil {
			return
		}
	}
}

func (c *relayConn) pinger() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *relayConn) shutdown() {
	c.once.Do(func() {
		close(c.done)
		_ = c.end.Close()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
		_ = c.ws.Close()
	})
}
