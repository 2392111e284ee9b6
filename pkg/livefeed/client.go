package livefeed

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haivivi/guide/pkg/exchange"
)

// client is one websocket connection. Views are coalesced: a slow client
// skips intermediate snapshots and always receives the latest one.
type client struct {
	ws *websocket.Conn

	mu     sync.Mutex
	view   *exchange.View
	errs   []string
	wake   chan struct{}
	done   chan struct{}
	closed bool
}

func newClient(ws *websocket.Conn) *client {
	return &client{
		ws:   ws,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (c *client) pushView(v exchange.View) {
	c.mu.Lock()
	c.view = &v
	c.mu.Unlock()
	c.signal()
}

func (c *client) pushError(msg string) {
	c.mu.Lock()
	c.errs = append(c.errs, msg)
	c.mu.Unlock()
	c.signal()
}

func (c *client) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *client) take() (*exchange.View, []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, errs := c.view, c.errs
	c.view, c.errs = nil, nil
	return v, errs
}

func (c *client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.ws.Close()
	for {
		select {
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.wake:
			v, errs := c.take()
			for _, e := range errs {
				if err := c.write(Message{Type: TypeError, Error: e}); err != nil {
					return
				}
			}
			if v != nil {
				if err := c.write(Message{Type: TypeView, View: v}); err != nil {
					return
				}
			}
		}
	}
}

func (c *client) write(m Message) error {
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(m)
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}
