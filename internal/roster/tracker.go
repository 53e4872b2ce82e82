// Package roster follows server-pushed lift state: the roster of online
// lifts, direction indicators and controller power.
package roster

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/git-eri/smart-lift/internal/logger"
	"github.com/git-eri/smart-lift/internal/model"
	"github.com/git-eri/smart-lift/internal/protocol"
)

// EmergencyStopAlert is raised when the server broadcasts a stop.
const EmergencyStopAlert = "EMERGENCY STOP"

// Renderer draws the panel.
type Renderer interface {
	// Render discards the current panel and builds it from roster.
	Render(roster model.Roster)
	// RenderPower shows controller power states.
	RenderPower(states model.PowerStates)
}

// IndicatorSink shows or clears a direction indicator.
type IndicatorSink interface {
	SetIndicator(liftID model.LiftID, dir model.Direction, on bool)
}

// Alerter shows a blocking warning to the operator.
type Alerter interface {
	Alert(message string)
}

// Tracker applies inbound envelopes to a Renderer. Register Handle with the
// session's OnMessage.
type Tracker struct {
	renderer   Renderer
	indicators IndicatorSink
	alerter    Alerter
	log        zerolog.Logger

	mu      sync.Mutex
	roster  model.Roster
	powers  model.PowerStates
	renders int
}

// NewTracker creates a Tracker.
func NewTracker(renderer Renderer, indicators IndicatorSink, alerter Alerter, log zerolog.Logger) *Tracker {
	return &Tracker{
		renderer:   renderer,
		indicators: indicators,
		alerter:    alerter,
		log:        logger.Component(log, "roster"),
		powers:     make(model.PowerStates),
	}
}

// Handle applies one envelope.
func (t *Tracker) Handle(env protocol.Envelope) {
	switch msg := env.(type) {
	case protocol.OnlineLifts:
		t.applyRoster(msg.Lifts)
	case protocol.LiftMoved:
		t.log.Debug().
			Str("lift_id", string(msg.LiftID)).
			Stringer("direction", msg.Direction).
			Int("toggle", int(msg.Toggle)).
			Msg("lift moved")
		t.indicators.SetIndicator(msg.LiftID, msg.Direction, msg.Toggle == model.ToggleOn)
	case protocol.PowerStates:
		t.mu.Lock()
		t.powers = msg.States.Clone()
		powers := t.powers.Clone()
		t.mu.Unlock()
		t.renderer.RenderPower(powers)
	case protocol.PowerState:
		t.mu.Lock()
		t.powers.Merge(msg.ConID, msg.On())
		powers := t.powers.Clone()
		t.mu.Unlock()
		t.renderer.RenderPower(powers)
	case protocol.Stop:
		t.log.Warn().Str("client_id", msg.ClientID).Msg("emergency stop received")
		t.alerter.Alert(EmergencyStopAlert)
	case protocol.ClientDisconnect:
		t.log.Debug().Str("client_id", msg.ClientID).Msg("client disconnected")
	case protocol.Info:
		t.log.Debug().Str("message", msg.Message).Msg("info")
	case protocol.Error:
		t.log.Warn().Str("detail", string(msg.Detail)).Msg("server reported error")
	default:
		t.log.Debug().Str("case", string(env.Case())).Msg("ignoring message")
	}
}

// applyRoster rebuilds the panel only when the snapshot differs from the
// previous one.
func (t *Tracker) applyRoster(next model.Roster) {
	t.mu.Lock()
	if t.renders > 0 && t.roster.Equal(next) {
		t.mu.Unlock()
		t.log.Debug().Msg("roster unchanged")
		return
	}
	t.roster = next.Clone()
	t.renders++
	snapshot := t.roster.Clone()
	t.mu.Unlock()

	t.log.Info().
		Int("controllers", len(snapshot)).
		Int("lifts", snapshot.LiftCount()).
		Msg("roster changed, rebuilding panel")
	t.renderer.Render(snapshot)
}

// Roster returns a copy of the last applied roster.
func (t *Tracker) Roster() model.Roster {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.roster.Clone()
}

// PowerStates returns a copy of the known power states.
func (t *Tracker) PowerStates() model.PowerStates {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.powers.Clone()
}
