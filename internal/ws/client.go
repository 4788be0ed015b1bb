package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum inbound message size allowed from peer.
	maxMessageSize = 4096

	// Outbound queue depth per connection.
	sendBuffer = 64
)

// client is one live websocket connection. The hub enqueues outbound
// payloads; the write pump drains them in order, so per-group publish order
// is preserved per connection. The read pump dispatches inbound frames to
// the connection's handler table.
type client struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool

	teardown sync.Once
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
}

// Enqueue hands an outbound payload to the connection. Never blocks. Returns
// false once the connection is closed so the hub can prune the subscription;
// a momentarily full queue drops the single delivery but keeps the
// subscription alive.
func (cl *client) Enqueue(payload []byte) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.closed {
		return false
	}
	select {
	case cl.send <- payload:
	default:
		zap.L().Warn("dropping delivery to slow websocket client",
			zap.String("remote_addr", cl.conn.RemoteAddr().String()))
	}
	return true
}

// closeSend marks the client closed and closes the outbound queue. Must only
// be called after the client is unsubscribed from every group, so no
// publisher can enqueue afterwards.
func (cl *client) closeSend() {
	cl.mu.Lock()
	cl.closed = true
	cl.mu.Unlock()
	close(cl.send)
}

// writePump drains the outbound queue onto the wire and keeps the connection
// alive with pings. Exits when the queue is closed or a write fails.
func (cl *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cl.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-cl.send:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				cl.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes inbound frames, dispatching each through the handler
// table. Inbound processing is single-threaded per connection. Returns when
// the peer goes away or errors out.
func (cl *client) readPump(handle func(payload []byte)) {
	defer cl.conn.Close()

	cl.conn.SetReadLimit(maxMessageSize)
	cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		cl.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := cl.conn.ReadMessage()
		if err != nil {
			return
		}
		if handle != nil {
			handle(payload)
		}
	}
}
