// Package session owns the WebSocket connection to the controller backend.
//
// A Session has one identity for the life of the process and at most one
// live Connection. It dials in the background, reconnects after unexpected
// closes, and delivers decoded envelopes to listeners on a single dispatch
// goroutine so that every listener sees messages in arrival order.
package session

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/git-eri/smart-lift/internal/logger"
	"github.com/git-eri/smart-lift/internal/model"
	"github.com/git-eri/smart-lift/internal/protocol"
)

// MessageHandler receives every decoded inbound envelope.
type MessageHandler func(env protocol.Envelope)

// OpenHandler runs after each successful open.
type OpenHandler func()

// Config holds configuration for a Session.
type Config struct {
	// ID is the client identity. Empty means NewClientID(Role).
	ID string
	// URL builds the endpoint for an id. Required.
	URL func(id string) string

	Role       protocol.Role
	Codec      protocol.Codec
	Dialer     *websocket.Dialer
	Policy     ReconnectPolicy
	Transcript *logger.Transcript
	Logger     zerolog.Logger
}

// NewClientID returns "<prefix><unix millis>" for role, e.g. "cli-1717171717171".
func NewClientID(role protocol.Role) string {
	return fmt.Sprintf("%s%d", role.IDPrefix(), time.Now().UnixMilli())
}

// NewDialer returns a dialer with the given handshake timeout. insecure
// disables TLS certificate verification for wss endpoints.
func NewDialer(handshakeTimeout time.Duration, insecure bool) *websocket.Dialer {
	d := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}
	if insecure {
		d.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return d
}

type event struct {
	open bool
	env  protocol.Envelope
}

// Session manages the connection lifecycle for one client identity.
type Session struct {
	id         string
	url        string
	role       protocol.Role
	codec      protocol.Codec
	dialer     *websocket.Dialer
	policy     ReconnectPolicy
	transcript *logger.Transcript
	log        zerolog.Logger

	mu           sync.Mutex
	current      *Connection
	timer        *time.Timer
	reconnectGen uint64
	changed      chan struct{}
	closed       bool

	listenerMu    sync.RWMutex
	listeners     []MessageHandler
	openListeners []OpenHandler

	inbox        chan event
	quit         chan struct{}
	dispatchDone chan struct{}
}

// New creates a Session. It does not connect; call Startup.
func New(cfg Config) (*Session, error) {
	if cfg.URL == nil {
		return nil, fmt.Errorf("session: URL builder is required")
	}
	if cfg.ID == "" {
		cfg.ID = NewClientID(cfg.Role)
	}
	if cfg.Codec == nil {
		cfg.Codec = protocol.NewJSONCodec(cfg.Role)
	}
	if cfg.Dialer == nil {
		cfg.Dialer = NewDialer(10*time.Second, false)
	}
	if cfg.Policy == nil {
		cfg.Policy = FixedPolicy(DefaultReconnectDelay)
	}

	s := &Session{
		id:           cfg.ID,
		url:          cfg.URL(cfg.ID),
		role:         cfg.Role,
		codec:        cfg.Codec,
		dialer:       cfg.Dialer,
		policy:       cfg.Policy,
		transcript:   cfg.Transcript,
		changed:      make(chan struct{}),
		inbox:        make(chan event, 64),
		quit:         make(chan struct{}),
		dispatchDone: make(chan struct{}),
	}
	s.log = logger.Component(cfg.Logger, "session").With().
		Str("session_id", s.id).
		Str("role", s.role.String()).
		Logger()

	if s.transcript != nil {
		if err := s.transcript.WriteHeader(s.id, s.url, s.codec.Name()); err != nil {
			return nil, fmt.Errorf("failed to start transcript: %w", err)
		}
	}

	go s.dispatch()
	return s, nil
}

// ID returns the client identity.
func (s *Session) ID() string {
	return s.id
}

// URL returns the endpoint the session dials.
func (s *Session) URL() string {
	return s.url
}

// State returns the state of the current connection, or CLOSED if there is
// none.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return StateClosed
	}
	return s.current.State()
}

// OnMessage registers a listener. Listeners run in registration order.
func (s *Session) OnMessage(handler MessageHandler) {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	s.listeners = append(s.listeners, handler)
}

// OnOpen registers a listener that runs after every successful open.
func (s *Session) OnOpen(handler OpenHandler) {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	s.openListeners = append(s.openListeners, handler)
}

// Startup opens a connection unless one exists that is not CLOSED. The dial
// happens in the background; use WaitOpen to block until it is OPEN.
func (s *Session) Startup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked()
}

func (s *Session) startLocked() error {
	if s.closed {
		return model.ErrSessionClosed
	}
	if s.current != nil && s.current.State() != StateClosed {
		return nil
	}
	s.stopTimerLocked()

	c := newConnection()
	s.current = c
	s.notifyLocked()

	s.log.Debug().Str("conn_id", c.ID()).Str("url", s.url).Msg("connecting")
	go s.run(c)
	return nil
}

// Disconnect closes the current connection without scheduling a reconnect.
func (s *Session) Disconnect() {
	s.mu.Lock()
	s.stopTimerLocked()
	c := s.current
	s.current = nil
	s.notifyLocked()
	s.mu.Unlock()

	if c != nil {
		s.log.Info().Str("conn_id", c.ID()).Msg("disconnecting")
		c.close()
	}
}

// ReconnectIfNeeded starts a new connection if the current one is not OPEN.
func (s *Session) ReconnectIfNeeded() error {
	if s.State() == StateOpen {
		return nil
	}
	return s.Startup()
}

// SetVisible follows the operator UI's visibility: hidden disconnects,
// visible reconnects if needed.
func (s *Session) SetVisible(visible bool) error {
	if !visible {
		s.Disconnect()
		return nil
	}
	return s.ReconnectIfNeeded()
}

// Send encodes env and writes it if the connection is OPEN. Otherwise the
// envelope is dropped. It reports whether the frame was written.
func (s *Session) Send(env protocol.Envelope) bool {
	s.mu.Lock()
	c := s.current
	s.mu.Unlock()

	if c == nil || c.State() != StateOpen {
		s.log.Warn().Str("case", string(env.Case())).Msg("not connected, dropping message")
		return false
	}

	frame, err := s.codec.Encode(env)
	if err != nil {
		s.log.Error().Err(err).Str("case", string(env.Case())).Msg("failed to encode message")
		return false
	}
	if err := c.write(frame); err != nil {
		s.log.Warn().Err(err).Str("conn_id", c.ID()).Msg("failed to send message")
		return false
	}
	if s.transcript != nil {
		if err := s.transcript.WriteOutbound(frame); err != nil {
			s.log.Warn().Err(err).Msg("failed to record outbound frame")
		}
	}
	return true
}

// WaitOpen blocks until the current connection is OPEN or ctx is done.
func (s *Session) WaitOpen(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return model.ErrSessionClosed
		}
		if s.current != nil && s.current.State() == StateOpen {
			s.mu.Unlock()
			return nil
		}
		changed := s.changed
		s.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close disconnects, stops the dispatcher and rejects further Startup calls.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.stopTimerLocked()
	c := s.current
	s.current = nil
	s.notifyLocked()
	s.mu.Unlock()

	if c != nil {
		c.close()
	}
	close(s.quit)
	<-s.dispatchDone
	return nil
}

func (s *Session) run(c *Connection) {
	ws, _, err := s.dialer.DialContext(c.ctx, s.url, nil)
	if err != nil {
		s.lost(c, fmt.Errorf("dial: %w", err))
		return
	}
	if !c.attach(ws) {
		ws.Close()
		s.lost(c, model.ErrConnectionClosed)
		return
	}
	s.opened(c)

	for {
		frame, err := c.read()
		if err != nil {
			s.lost(c, err)
			return
		}
		if s.transcript != nil {
			if err := s.transcript.WriteInbound(frame); err != nil {
				s.log.Warn().Err(err).Msg("failed to record inbound frame")
			}
		}

		env, err := s.codec.Decode(frame)
		if err != nil {
			s.log.Warn().Err(err).Str("frame", string(frame)).Msg("dropping inbound frame")
			continue
		}

		select {
		case s.inbox <- event{env: env}:
		case <-s.quit:
			return
		}
	}
}

func (s *Session) opened(c *Connection) {
	s.policy.Reset()

	s.mu.Lock()
	s.notifyLocked()
	s.mu.Unlock()

	s.log.Info().Str("conn_id", c.ID()).Msg("connection opened")

	select {
	case s.inbox <- event{open: true}:
	case <-s.quit:
	}
}

// lost handles the end of c. A reconnect is scheduled only if c is still the
// current connection, i.e. nobody called Disconnect or Close.
func (s *Session) lost(c *Connection, cause error) {
	wasOpen := c.State() == StateOpen
	c.markClosed()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != c || s.closed {
		s.log.Debug().Str("conn_id", c.ID()).Msg("connection closed")
		return
	}
	s.notifyLocked()

	delay := s.policy.Next()
	ev := s.log.Warn()
	if wasOpen && websocket.IsCloseError(cause, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		ev = s.log.Info()
	}
	ev.Err(cause).Str("conn_id", c.ID()).Dur("retry_in", delay).Msg("connection lost, reconnecting")

	s.stopTimerLocked()
	gen := s.reconnectGen
	s.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if gen != s.reconnectGen {
			return
		}
		s.timer = nil
		if err := s.startLocked(); err != nil {
			s.log.Debug().Err(err).Msg("reconnect skipped")
		}
	})
}

// stopTimerLocked cancels any pending reconnect.
func (s *Session) stopTimerLocked() {
	s.reconnectGen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// notifyLocked wakes WaitOpen callers.
func (s *Session) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *Session) dispatch() {
	defer close(s.dispatchDone)

	for {
		select {
		case ev := <-s.inbox:
			s.deliver(ev)
		case <-s.quit:
			return
		}
	}
}

func (s *Session) deliver(ev event) {
	s.listenerMu.RLock()
	listeners := s.listeners
	openListeners := s.openListeners
	s.listenerMu.RUnlock()

	if ev.open {
		for _, fn := range openListeners {
			fn()
		}
		return
	}
	for _, fn := range listeners {
		fn(ev.env)
	}
}
