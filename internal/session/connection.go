package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/git-eri/smart-lift/internal/model"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer. Roster snapshots of large
	// installations are the biggest frames.
	maxMessageSize = 64 * 1024
)

// State is the lifecycle state of a Connection.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	}
	return "UNKNOWN"
}

// Connection is one WebSocket attempt. It is never reused: a reconnect
// creates a new Connection.
type Connection struct {
	id    string
	state atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc

	mu sync.Mutex // guards ws and state transitions out of CONNECTING/OPEN
	ws *websocket.Conn

	writeMu sync.Mutex
}

func newConnection() *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:     uuid.New().String(),
		ctx:    ctx,
		cancel: cancel,
	}
	c.state.Store(int32(StateConnecting))
	return c
}

// ID returns the connection's correlation id.
func (c *Connection) ID() string {
	return c.id
}

// State returns the current state.
func (c *Connection) State() State {
	return State(c.state.Load())
}

// attach installs the dialed socket and moves to OPEN. It reports false if
// the connection was closed while dialing.
func (c *Connection) attach(ws *websocket.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() != StateConnecting {
		return false
	}
	ws.SetReadLimit(maxMessageSize)
	c.ws = ws
	c.state.Store(int32(StateOpen))
	return true
}

func (c *Connection) write(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.State() != StateOpen {
		return model.ErrNotConnected
	}
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

func (c *Connection) read() ([]byte, error) {
	for {
		kind, frame, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			return frame, nil
		}
	}
}

// close starts a normal closure. It is a no-op unless the connection is
// CONNECTING or OPEN.
func (c *Connection) close() {
	c.mu.Lock()
	st := c.State()
	if st != StateConnecting && st != StateOpen {
		c.mu.Unlock()
		return
	}
	c.state.Store(int32(StateClosing))
	ws := c.ws
	c.mu.Unlock()

	c.cancel()
	if ws == nil {
		return
	}

	c.writeMu.Lock()
	ws.SetWriteDeadline(time.Now().Add(writeWait))
	ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	ws.Close()
}

func (c *Connection) markClosed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Store(int32(StateClosed))
	c.cancel()
	if c.ws != nil {
		c.ws.Close()
	}
}
