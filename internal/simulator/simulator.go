// Package simulator plays a lift controller for testing panels without
// hardware. It announces its lifts on every open and confirms each
// move_lift with a lift_moved echo.
package simulator

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/git-eri/smart-lift/internal/logger"
	"github.com/git-eri/smart-lift/internal/model"
	"github.com/git-eri/smart-lift/internal/protocol"
)

// Sender delivers envelopes to the backend.
type Sender interface {
	Send(env protocol.Envelope) bool
}

// Indicator is one engaged lift direction.
type Indicator struct {
	LiftID    model.LiftID
	Direction model.Direction
}

// Simulator is a fake controller.
type Simulator struct {
	lifts  []model.LiftID
	served map[model.LiftID]bool
	sender Sender
	log    zerolog.Logger

	mu      sync.Mutex
	power   *int
	engaged map[Indicator]bool
	stops   int
}

// New creates a Simulator serving lifts. power is the power state announced
// in hello; nil omits it.
func New(lifts []model.LiftID, power *int, sender Sender, log zerolog.Logger) *Simulator {
	served := make(map[model.LiftID]bool, len(lifts))
	for _, id := range lifts {
		served[id] = true
	}
	return &Simulator{
		lifts:   append([]model.LiftID(nil), lifts...),
		served:  served,
		sender:  sender,
		log:     logger.Component(log, "simulator"),
		power:   power,
		engaged: make(map[Indicator]bool),
	}
}

// Lifts returns the served lift ids.
func (s *Simulator) Lifts() []model.LiftID {
	return append([]model.LiftID(nil), s.lifts...)
}

// Hello announces the served lifts. Register it with the session's OnOpen.
func (s *Simulator) Hello() bool {
	s.mu.Lock()
	hello := protocol.Hello{Lifts: s.Lifts()}
	if s.power != nil {
		p := *s.power
		hello.PowerState = &p
	}
	s.mu.Unlock()

	s.log.Info().Int("lifts", len(hello.Lifts)).Msg("announcing lifts")
	return s.sender.Send(hello)
}

// Handle applies one inbound envelope. Register it with the session's
// OnMessage.
func (s *Simulator) Handle(env protocol.Envelope) {
	switch msg := env.(type) {
	case protocol.MoveLift:
		s.move(msg)
	case protocol.Stop:
		s.mu.Lock()
		s.stops++
		cleared := len(s.engaged)
		s.engaged = make(map[Indicator]bool)
		s.mu.Unlock()
		s.log.Warn().Str("client_id", msg.ClientID).Int("cleared", cleared).Msg("emergency stop")
	case protocol.Info:
		s.log.Info().Str("message", msg.Message).Msg("info")
	case protocol.Error:
		s.log.Warn().Str("detail", string(msg.Detail)).Msg("server reported error")
	default:
		s.log.Debug().Str("case", string(env.Case())).Msg("unhandled message")
	}
}

func (s *Simulator) move(msg protocol.MoveLift) {
	if !s.served[msg.LiftID] {
		s.log.Warn().Str("lift_id", string(msg.LiftID)).Msg("move_lift for a lift this controller does not serve")
	}

	ind := Indicator{LiftID: msg.LiftID, Direction: msg.Direction}
	s.mu.Lock()
	if msg.Toggle == model.ToggleOn {
		s.engaged[ind] = true
	} else {
		delete(s.engaged, ind)
	}
	s.mu.Unlock()

	s.log.Debug().
		Str("client_id", msg.ClientID).
		Str("lift_id", string(msg.LiftID)).
		Stringer("direction", msg.Direction).
		Int("toggle", int(msg.Toggle)).
		Msg("moving lift")

	s.sender.Send(protocol.LiftMoved{
		LiftID:    msg.LiftID,
		Direction: msg.Direction,
		Toggle:    msg.Toggle,
	})
}

// SetPower reports a new power state to the backend.
func (s *Simulator) SetPower(on bool) bool {
	state := 0
	if on {
		state = 1
	}
	s.mu.Lock()
	s.power = &state
	s.mu.Unlock()
	return s.sender.Send(protocol.PowerState{State: state})
}

// Engaged returns the engaged indicators ordered by lift and direction.
func (s *Simulator) Engaged() []Indicator {
	s.mu.Lock()
	out := make([]Indicator, 0, len(s.engaged))
	for ind := range s.engaged {
		out = append(out, ind)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].LiftID != out[j].LiftID {
			return out[i].LiftID < out[j].LiftID
		}
		return out[i].Direction < out[j].Direction
	})
	return out
}

// Stops returns how many emergency stops were received.
func (s *Simulator) Stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}
