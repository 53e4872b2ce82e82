// Package app assembles the panel client and the simulator from
// configuration.
package app

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/git-eri/smart-lift/api/handlers"
	"github.com/git-eri/smart-lift/internal/command"
	"github.com/git-eri/smart-lift/internal/config"
	"github.com/git-eri/smart-lift/internal/logger"
	"github.com/git-eri/smart-lift/internal/panel"
	"github.com/git-eri/smart-lift/internal/protocol"
	"github.com/git-eri/smart-lift/internal/roster"
	"github.com/git-eri/smart-lift/internal/session"
	"github.com/git-eri/smart-lift/internal/simulator"
)

// NewSession builds a session for role from cfg. The returned transcript is
// nil unless cfg.Transcript is set; the caller closes it.
func NewSession(cfg *config.Config, role protocol.Role, log zerolog.Logger) (*session.Session, *logger.Transcript, error) {
	var codec protocol.Codec
	switch cfg.Codec {
	case "legacy":
		if role != protocol.RoleClient {
			return nil, nil, fmt.Errorf("legacy codec is only available to panel clients")
		}
		codec = protocol.NewLegacyCodec()
	default:
		codec = protocol.NewJSONCodec(role)
	}

	var policy session.ReconnectPolicy = session.FixedPolicy(cfg.ReconnectDelay)
	if cfg.UsesBackoff() {
		policy = session.NewBackoffPolicy(cfg.ReconnectDelay, cfg.MaxReconnectDelay)
	}

	var transcript *logger.Transcript
	if cfg.Transcript != "" {
		t, err := logger.NewTranscript(cfg.Transcript)
		if err != nil {
			return nil, nil, err
		}
		transcript = t
	}

	sess, err := session.New(session.Config{
		ID:         session.NewClientID(role),
		URL:        cfg.ServerURL,
		Role:       role,
		Codec:      codec,
		Dialer:     session.NewDialer(cfg.HandshakeTimeout, cfg.InsecureSkipVerify),
		Policy:     policy,
		Transcript: transcript,
		Logger:     log,
	})
	if err != nil {
		if transcript != nil {
			transcript.Close()
		}
		return nil, nil, err
	}
	return sess, transcript, nil
}

// Panel is the operator client: session, safety controller, roster tracker
// and the board served over HTTP.
type Panel struct {
	Session    *session.Session
	Controller *command.Controller
	Tracker    *roster.Tracker
	Board      *panel.Board
	Router     *gin.Engine

	transcript *logger.Transcript
}

// NewPanel wires a panel client. Call Start to connect.
func NewPanel(cfg *config.Config, log zerolog.Logger) (*Panel, error) {
	sess, transcript, err := NewSession(cfg, protocol.RoleClient, log)
	if err != nil {
		return nil, err
	}

	board := panel.NewBoard(cfg.EventHistory)
	controller := command.NewController(sess.ID(), sess, board, board, log)
	tracker := roster.NewTracker(board, board, board, log)

	sess.OnMessage(board.Record)
	sess.OnMessage(tracker.Handle)
	if cfg.Codec != "legacy" {
		// Power changes missed while disconnected are only recovered by a
		// fresh snapshot; legacy backends have no such request.
		sess.OnOpen(func() { sess.Send(protocol.GetPowerStates{}) })
	}

	handler := handlers.NewPanelHandler(sess, controller, board)

	return &Panel{
		Session:    sess,
		Controller: controller,
		Tracker:    tracker,
		Board:      board,
		Router:     handlers.NewRouter(handler, logger.Component(log, "http")),
		transcript: transcript,
	}, nil
}

// Start connects to the backend.
func (p *Panel) Start() error {
	return p.Session.Startup()
}

// Close disconnects and flushes the transcript.
func (p *Panel) Close() error {
	err := p.Session.Close()
	if p.transcript != nil {
		if cerr := p.transcript.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Simulator is a fake controller connected through its own session.
type Simulator struct {
	Session   *session.Session
	Simulator *simulator.Simulator

	transcript *logger.Transcript
}

// NewSimulator wires a simulator serving cfg.SimLifts.
func NewSimulator(cfg *config.Config, log zerolog.Logger) (*Simulator, error) {
	lifts, err := config.ParseLifts(cfg.SimLifts)
	if err != nil {
		return nil, err
	}
	var power *int
	if cfg.SimPowerState >= 0 {
		p := cfg.SimPowerState
		power = &p
	}

	sess, transcript, err := NewSession(cfg, protocol.RoleController, log)
	if err != nil {
		return nil, err
	}

	sim := simulator.New(lifts, power, sess, log)
	sess.OnOpen(func() { sim.Hello() })
	sess.OnMessage(sim.Handle)

	return &Simulator{
		Session:    sess,
		Simulator:  sim,
		transcript: transcript,
	}, nil
}

// Start connects to the backend.
func (s *Simulator) Start() error {
	return s.Session.Startup()
}

// Close disconnects and flushes the transcript.
func (s *Simulator) Close() error {
	err := s.Session.Close()
	if s.transcript != nil {
		if cerr := s.transcript.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
