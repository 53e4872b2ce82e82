// Package command turns operator button events into move_lift commands and
// enforces that only one lift is under manual control at a time.
package command

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/git-eri/smart-lift/internal/logger"
	"github.com/git-eri/smart-lift/internal/model"
	"github.com/git-eri/smart-lift/internal/protocol"
)

// SafetyWarning is raised when a second lift is pressed while one is active.
const SafetyWarning = "more than one action cannot be controlled"

// Sender delivers envelopes to the backend.
type Sender interface {
	Send(env protocol.Envelope) bool
}

// IndicatorSink shows or clears a direction indicator.
type IndicatorSink interface {
	SetIndicator(liftID model.LiftID, dir model.Direction, on bool)
}

// Alerter shows a blocking warning to the operator.
type Alerter interface {
	Alert(message string)
}

type activeLift struct {
	conID  string
	liftID model.LiftID
}

// Controller tracks which lifts this client is driving.
type Controller struct {
	clientID   string
	sender     Sender
	indicators IndicatorSink
	alerter    Alerter
	log        zerolog.Logger

	mu     sync.Mutex
	active []activeLift
}

// NewController creates a Controller sending as clientID.
func NewController(clientID string, sender Sender, indicators IndicatorSink, alerter Alerter, log zerolog.Logger) *Controller {
	return &Controller{
		clientID:   clientID,
		sender:     sender,
		indicators: indicators,
		alerter:    alerter,
		log:        logger.Component(log, "command"),
	}
}

// Press handles a button going down. If another lift is already active,
// every active lift is forced off in all directions, the warning is raised
// and nothing is engaged.
func (c *Controller) Press(conID string, liftID model.LiftID, dir model.Direction) error {
	if err := validate(liftID, dir); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.indexLocked(liftID) < 0 {
		c.active = append(c.active, activeLift{conID: conID, liftID: liftID})
	}

	if len(c.active) > 1 {
		c.log.Warn().
			Str("lift_id", string(liftID)).
			Int("active", len(c.active)).
			Msg("multiple lifts pressed, forcing all off")
		for _, a := range c.active {
			for _, d := range model.Directions {
				c.move(a.conID, a.liftID, d, model.ToggleOff)
				c.indicators.SetIndicator(a.liftID, d, false)
			}
		}
		c.active = c.active[:0]
		c.alerter.Alert(SafetyWarning)
		return nil
	}

	c.move(conID, liftID, dir, model.ToggleOn)
	return nil
}

// Release handles a button going up or the pointer leaving it. It is a
// no-op for lifts that are not active. The toggle-off goes to the controller
// the lift was pressed on, whatever conID the caller names.
func (c *Controller) Release(conID string, liftID model.LiftID, dir model.Direction) error {
	if err := validate(liftID, dir); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexLocked(liftID)
	if i < 0 {
		return nil
	}
	if held := c.active[i].conID; held != conID {
		c.log.Debug().Str("con_id", conID).Str("held_on", held).Msg("release routed to pressing controller")
	}
	c.move(c.active[i].conID, liftID, dir, model.ToggleOff)
	c.active = append(c.active[:i], c.active[i+1:]...)
	return nil
}

// EmergencyStop broadcasts a stop for every controller.
func (c *Controller) EmergencyStop() bool {
	c.log.Warn().Msg("emergency stop requested")
	return c.sender.Send(protocol.Stop{ClientID: c.clientID})
}

// Active returns the lifts currently under control.
func (c *Controller) Active() []model.LiftID {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]model.LiftID, len(c.active))
	for i, a := range c.active {
		ids[i] = a.liftID
	}
	return ids
}

func (c *Controller) indexLocked(liftID model.LiftID) int {
	for i, a := range c.active {
		if a.liftID == liftID {
			return i
		}
	}
	return -1
}

func (c *Controller) move(conID string, liftID model.LiftID, dir model.Direction, toggle model.Toggle) {
	sent := c.sender.Send(protocol.MoveLift{
		ConID:     conID,
		ClientID:  c.clientID,
		LiftID:    liftID,
		Direction: dir,
		Toggle:    toggle,
	})
	c.log.Debug().
		Str("con_id", conID).
		Str("lift_id", string(liftID)).
		Stringer("direction", dir).
		Int("toggle", int(toggle)).
		Bool("sent", sent).
		Msg("move_lift")
}

func validate(liftID model.LiftID, dir model.Direction) error {
	if liftID == "" {
		return model.ErrInvalidLiftID
	}
	if !dir.Valid() {
		return fmt.Errorf("direction %d: %w", dir, model.ErrInvalidDirection)
	}
	return nil
}
