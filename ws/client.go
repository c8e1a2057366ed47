package ws

import (
	"sync"
	"time"

	"github.com/cmallory/chat-relay/types"
	"github.com/gorilla/websocket"
)

const (
	maxMessageSize   = 4096
	defaultPongWait  = 2 * time.Minute
	defaultWriteWait = 10 * time.Second
	sendChannelSize  = 256
)

// Client is one connected participant's live send path. It is a middleman
// between the websocket connection and the registry.
type Client struct {
	conn *websocket.Conn

	principal      types.Principal
	roomIdentifier string

	// Buffered channel of outbound payloads.
	send chan []byte

	mu     sync.Mutex
	closed bool

	writeWait time.Duration
	pongWait  time.Duration
}

func newClient(conn *websocket.Conn, principal types.Principal, roomIdentifier string, writeWait, pongWait time.Duration) *Client {
	if writeWait <= 0 {
		writeWait = defaultWriteWait
	}
	if pongWait <= 0 {
		pongWait = defaultPongWait
	}
	return &Client{
		conn:           conn,
		principal:      principal,
		roomIdentifier: roomIdentifier,
		send:           make(chan []byte, sendChannelSize),
		writeWait:      writeWait,
		pongWait:       pongWait,
	}
}

func (c *Client) pingPeriod() time.Duration {
	return c.pongWait / 2
}

// trySend queues payload for delivery. It reports false when the client is
// already closed or its buffer is full; callers treat that as an implicit
// unregister.
func (c *Client) trySend(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// closeSend marks the client closed and closes the send channel. Safe to call
// more than once; the lock guarantees no trySend is in flight when the
// channel closes.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// writeLoop pumps queued payloads to the websocket connection.
//
// A goroutine running writeLoop is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) writeLoop() {
	ticker := time.NewTicker(c.pingPeriod())
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if !ok {
				// The registry closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
