// Package wstest runs an in-process controller backend for tests.
//
// A Server accepts WebSocket peers on /ws/{id} and /api/ws/{id}, records
// every frame each peer sends and lets the test push frames back. In relay
// mode it also routes traffic between panel clients ("cli" ids) and
// controllers ("con" ids) the way the production backend does.
package wstest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 2 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 8192
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Peer is one accepted connection.
type Peer struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	mu     sync.Mutex
	closed bool
}

func newPeer(conn *websocket.Conn, id string) *Peer {
	return &Peer{
		id:   id,
		conn: conn,
		send: make(chan []byte, 256),
	}
}

// ID returns the path id the peer connected with.
func (p *Peer) ID() string {
	return p.id
}

// Send queues a frame to the peer.
func (p *Peer) Send(frame []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	select {
	case p.send <- frame:
	default:
		p.closeLocked()
	}
}

// Close ends the connection with a normal close frame.
func (p *Peer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
}

func (p *Peer) closeLocked() {
	if p.closed {
		return
	}
	p.closed = true
	close(p.send)
}

// Option configures a Server.
type Option func(*Server)

// WithRelay routes frames between clients and controllers.
func WithRelay() Option {
	return func(s *Server) {
		s.relay = newRelay(s)
	}
}

// WithPath serves peers under /<path>/{id} only.
func WithPath(path string) Option {
	return func(s *Server) {
		s.paths = []string{"/" + strings.Trim(path, "/") + "/"}
	}
}

// Server is the test backend.
type Server struct {
	srv   *httptest.Server
	paths []string
	relay *relay

	mu       sync.Mutex
	cond     *sync.Cond
	peers    map[string]*Peer
	received map[string][][]byte
	connects map[string]int
	requests []string
}

// NewServer starts a backend on a random local port.
func NewServer(opts ...Option) *Server {
	s := &Server{
		paths:    []string{"/ws/", "/api/ws/"},
		peers:    make(map[string]*Peer),
		received: make(map[string][][]byte),
		connects: make(map[string]int),
	}
	s.cond = sync.NewCond(&s.mu)
	for _, opt := range opts {
		opt(s)
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// Host returns host:port of the listener.
func (s *Server) Host() string {
	return strings.TrimPrefix(s.srv.URL, "http://")
}

// URL returns the WebSocket URL a peer with id dials.
func (s *Server) URL(id string) string {
	return "ws://" + s.Host() + s.paths[0] + id
}

// Close disconnects every peer and stops the listener.
func (s *Server) Close() {
	s.mu.Lock()
	peers := make([]*Peer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()

	for _, p := range peers {
		p.Close()
	}
	s.srv.CloseClientConnections()
	s.srv.Close()
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	var id string
	for _, prefix := range s.paths {
		if strings.HasPrefix(r.URL.Path, prefix) {
			id = strings.TrimPrefix(r.URL.Path, prefix)
			break
		}
	}
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}

	s.mu.Lock()
	s.requests = append(s.requests, r.URL.Path)
	s.mu.Unlock()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	peer := newPeer(conn, id)
	s.mu.Lock()
	if old, ok := s.peers[id]; ok {
		old.Close()
	}
	s.peers[id] = peer
	s.connects[id]++
	s.cond.Broadcast()
	s.mu.Unlock()

	if s.relay != nil {
		s.relay.connected(peer)
	}

	go s.writePump(peer)
	go s.readPump(peer)
}

func (s *Server) readPump(peer *Peer) {
	defer func() {
		s.unregister(peer)
		peer.conn.Close()
	}()

	peer.conn.SetReadLimit(maxMessageSize)

	for {
		_, frame, err := peer.conn.ReadMessage()
		if err != nil {
			return
		}

		s.mu.Lock()
		s.received[peer.id] = append(s.received[peer.id], frame)
		s.cond.Broadcast()
		s.mu.Unlock()

		if s.relay != nil {
			s.relay.route(peer, frame)
		}
	}
}

func (s *Server) writePump(peer *Peer) {
	defer peer.conn.Close()

	for frame := range peer.send {
		peer.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := peer.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return
		}
	}
	peer.conn.SetWriteDeadline(time.Now().Add(writeWait))
	peer.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (s *Server) unregister(peer *Peer) {
	peer.Close()

	s.mu.Lock()
	current := s.peers[peer.id] == peer
	if current {
		delete(s.peers, peer.id)
	}
	s.cond.Broadcast()
	s.mu.Unlock()

	if current && s.relay != nil {
		s.relay.disconnected(peer)
	}
}

// Send pushes a frame to the peer with id. It reports false when no such
// peer is connected.
func (s *Server) Send(id string, frame []byte) bool {
	s.mu.Lock()
	peer, ok := s.peers[id]
	s.mu.Unlock()
	if !ok {
		return false
	}
	peer.Send(frame)
	return true
}

// Broadcast pushes a frame to every connected peer.
func (s *Server) Broadcast(frame []byte) {
	for _, peer := range s.snapshot("") {
		peer.Send(frame)
	}
}

// Drop closes the peer's socket without a close handshake, as a crashed
// backend would.
func (s *Server) Drop(id string) bool {
	s.mu.Lock()
	peer, ok := s.peers[id]
	s.mu.Unlock()
	if !ok {
		return false
	}
	return peer.conn.Close() == nil
}

// Received returns a copy of every frame the peer with id has sent.
func (s *Server) Received(id string) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.received[id]...)
}

// Connects returns how many times a peer with id has connected.
func (s *Server) Connects(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects[id]
}

// Connected reports whether a peer with id is currently connected.
func (s *Server) Connected(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.peers[id]
	return ok
}

// Requests returns the request paths of every accepted upgrade.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// WaitFrames blocks until the peer with id has sent at least n frames or
// timeout elapses, and returns what was received so far.
func (s *Server) WaitFrames(id string, n int, timeout time.Duration) ([][]byte, bool) {
	ok := s.wait(timeout, func() bool { return len(s.received[id]) >= n })
	return s.Received(id), ok
}

// WaitConnects blocks until the peer with id has connected n times.
func (s *Server) WaitConnects(id string, n int, timeout time.Duration) bool {
	return s.wait(timeout, func() bool { return s.connects[id] >= n })
}

// WaitDisconnected blocks until no peer with id is connected.
func (s *Server) WaitDisconnected(id string, timeout time.Duration) bool {
	return s.wait(timeout, func() bool {
		_, ok := s.peers[id]
		return !ok
	})
}

// wait evaluates cond under s.mu until it holds or timeout elapses.
func (s *Server) wait(timeout time.Duration, cond func() bool) bool {
	timer := time.AfterFunc(timeout, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer timer.Stop()

	deadline := time.Now().Add(timeout)
	s.mu.Lock()
	defer s.mu.Unlock()
	for !cond() {
		if !time.Now().Before(deadline) {
			return false
		}
		s.cond.Wait()
	}
	return true
}

// snapshot returns connected peers whose id starts with prefix.
func (s *Server) snapshot(prefix string) []*Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	peers := make([]*Peer, 0, len(s.peers))
	for id, p := range s.peers {
		if strings.HasPrefix(id, prefix) {
			peers = append(peers, p)
		}
	}
	return peers
}
