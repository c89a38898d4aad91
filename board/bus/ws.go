// ABOUTME: WSEndpoint joins a board through a websocket relay server.
// ABOUTME: One goroutine reads frames into local subscriptions, one goroutine owns all writes.
package bus

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 256
)

// WSEndpoint is an Endpoint backed by a websocket connection to a relay. The
// relay excludes the sending connection when it fans a frame out.
type WSEndpoint struct {
	conn *websocket.Conn
	url  string
	in   *fanout
	send chan []byte

	closeOnce sync.Once
	done      chan struct{}
	mu        sync.Mutex
	closed    bool
}

var _ Endpoint = (*WSEndpoint)(nil)

// Dial connects to a relay websocket URL such as ws://host:7780/boards/retro-board/ws.
func Dial(ctx context.Context, url string) (*WSEndpoint, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay %s: %w", url, err)
	}
	e := &WSEndpoint{
		conn: conn,
		url:  url,
		in:   newFanout(url, DefaultBuffer),
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	go e.readPump()
	go e.writePump()
	log.Printf("component=board.bus action=dial url=%s", url)
	return e, nil
}

// Done is closed once the connection has gone away.
func (e *WSEndpoint) Done() <-chan struct{} {
	return e.done
}

// Publish queues frame for the relay. A full send queue drops the frame.
func (e *WSEndpoint) Publish(frame []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	select {
	case e.send <- append([]byte(nil), frame...):
	default:
		log.Printf("component=board.bus action=drop url=%s reason=send_buffer_full", e.url)
	}
	return nil
}

// Subscribe registers h for frames relayed from other participants.
func (e *WSEndpoint) Subscribe(h Handler) (Subscription, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	return e.in.add(e, h), nil
}

// Close sends a close frame and tears the connection down.
func (e *WSEndpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.send)
	e.mu.Unlock()

	select {
	case <-e.done:
	case <-time.After(writeWait):
		_ = e.conn.Close()
	}
	e.in.removeOwned(e)
	return nil
}

func (e *WSEndpoint) shutdown() {
	e.closeOnce.Do(func() {
		_ = e.conn.Close()
		close(e.done)
	})
}

func (e *WSEndpoint) readPump() {
	defer e.shutdown()
	e.conn.SetReadLimit(1 << 20)
	_ = e.conn.SetReadDeadline(time.Now().Add(pongWait))
	e.conn.SetPongHandler(func(string) error {
		return e.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		kind, frame, err := e.conn.ReadMessage()
		if err != nil {
			if !errors.Is(err, websocket.ErrCloseSent) && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("component=board.bus action=read_failed url=%s err=%v", e.url, err)
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		e.in.deliver(nil, frame)
	}
}

func (e *WSEndpoint) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case frame, ok := <-e.send:
			_ = e.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = e.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := e.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Printf("component=board.bus action=write_failed url=%s err=%v", e.url, err)
				e.shutdown()
				return
			}
		case <-ticker.C:
			_ = e.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := e.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				e.shutdown()
				return
			}
		case <-e.done:
			return
		}
	}
}
