// Package panel holds the operator panel view: one group per controller,
// one entry per lift with Up/Down/Lock buttons and their indicators.
//
// Board is the render target of the roster tracker and the command
// controller. Operator UIs read it through the panel HTTP API.
package panel

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/git-eri/smart-lift/internal/buffer"
	"github.com/git-eri/smart-lift/internal/model"
	"github.com/git-eri/smart-lift/internal/protocol"
)

// ButtonID returns the element id of a lift's direction button.
func ButtonID(liftID model.LiftID, dir model.Direction) string {
	return fmt.Sprintf("button-%s-%d", liftID, dir)
}

// IndicatorID returns the element id of a lift's direction indicator.
func IndicatorID(liftID model.LiftID, dir model.Direction) string {
	return fmt.Sprintf("indicator-%s-%d", liftID, dir)
}

// Control is one button/indicator pair.
type Control struct {
	Direction   model.Direction `json:"direction"`
	Label       string          `json:"label"`
	ButtonID    string          `json:"button_id"`
	IndicatorID string          `json:"indicator_id"`
	Active      bool            `json:"active"`
}

// LiftView is one lift on the panel.
type LiftView struct {
	ID       model.LiftID `json:"id"`
	Name     string       `json:"name"`
	ConID    string       `json:"con_id"`
	Controls []Control    `json:"controls"`
}

// Group is one controller's lifts.
type Group struct {
	ConID   string     `json:"con_id"`
	Powered *bool      `json:"powered,omitempty"`
	Lifts   []LiftView `json:"lifts"`
}

// View is a snapshot of the whole panel.
type View struct {
	Version int     `json:"version"`
	Groups  []Group `json:"groups"`
}

// Alert is a warning waiting to be shown to the operator.
type Alert struct {
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Event is one inbound envelope kept for the operator's history view.
type Event struct {
	Time    time.Time       `json:"time"`
	Case    protocol.Case   `json:"case"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

var wire = protocol.NewJSONCodec(protocol.RoleClient)

// Board is the panel state. All methods are safe for concurrent use.
type Board struct {
	mu         sync.Mutex
	version    int
	groups     []Group
	indicators map[string]bool
	powers     model.PowerStates
	alerts     []Alert

	events *buffer.Ring[Event]
}

// NewBoard creates an empty board keeping the last history inbound events.
func NewBoard(history int) *Board {
	return &Board{
		indicators: make(map[string]bool),
		powers:     make(model.PowerStates),
		events:     buffer.NewRing[Event](history),
	}
}

// Render discards the current panel and rebuilds it from roster.
// All indicators start inactive.
func (b *Board) Render(roster model.Roster) {
	groups := make([]Group, 0, len(roster))
	indicators := make(map[string]bool)

	for _, conID := range roster.ControllerIDs() {
		lifts := roster[conID]
		group := Group{ConID: conID, Lifts: make([]LiftView, 0, len(lifts))}
		for _, lift := range lifts {
			view := LiftView{
				ID:       lift.ID,
				Name:     lift.Name,
				ConID:    conID,
				Controls: make([]Control, 0, len(model.Directions)),
			}
			for _, dir := range model.Directions {
				ctl := Control{
					Direction:   dir,
					Label:       dir.String(),
					ButtonID:    ButtonID(lift.ID, dir),
					IndicatorID: IndicatorID(lift.ID, dir),
				}
				indicators[ctl.IndicatorID] = false
				view.Controls = append(view.Controls, ctl)
			}
			group.Lifts = append(group.Lifts, view)
		}
		groups = append(groups, group)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.groups = groups
	b.indicators = indicators
	b.version++
}

// RenderPower replaces the shown power states.
func (b *Board) RenderPower(states model.PowerStates) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.powers = states.Clone()
}

// SetIndicator updates one indicator. Unknown indicators are ignored.
func (b *Board) SetIndicator(liftID model.LiftID, dir model.Direction, on bool) {
	id := IndicatorID(liftID, dir)

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.indicators[id]; ok {
		b.indicators[id] = on
	}
}

// Indicator reports whether the indicator with id is active and whether it
// exists at all.
func (b *Board) Indicator(id string) (active, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	active, ok = b.indicators[id]
	return active, ok
}

// Alert queues a warning for the operator.
func (b *Board) Alert(message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.alerts = append(b.alerts, Alert{Message: message, Time: time.Now()})
}

// DrainAlerts returns and clears the queued alerts.
func (b *Board) DrainAlerts() []Alert {
	b.mu.Lock()
	defer b.mu.Unlock()
	alerts := b.alerts
	b.alerts = nil
	return alerts
}

// Record keeps env in the event history. The payload is the envelope as it
// appears on the wire, case tag included.
func (b *Board) Record(env protocol.Envelope) {
	frame, err := wire.Encode(env)
	if err != nil {
		frame = nil
	}
	b.events.Push(Event{Time: time.Now(), Case: env.Case(), Payload: frame})
}

// Events returns the event history, oldest first.
func (b *Board) Events() []Event {
	return b.events.Items()
}

// EventCapacity is the number of events the history keeps.
func (b *Board) EventCapacity() int {
	return b.events.Cap()
}

// Lift finds a lift on the current panel.
func (b *Board) Lift(liftID model.LiftID) (LiftView, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, g := range b.groups {
		for _, l := range g.Lifts {
			if l.ID == liftID {
				return l, true
			}
		}
	}
	return LiftView{}, false
}

// View returns a deep copy of the panel with current indicator and power
// states filled in.
func (b *Board) View() View {
	b.mu.Lock()
	defer b.mu.Unlock()

	view := View{Version: b.version, Groups: make([]Group, len(b.groups))}
	for i, g := range b.groups {
		out := Group{ConID: g.ConID, Lifts: make([]LiftView, len(g.Lifts))}
		if on, ok := b.powers[g.ConID]; ok {
			out.Powered = &on
		}
		for j, l := range g.Lifts {
			lv := l
			lv.Controls = make([]Control, len(l.Controls))
			for k, ctl := range l.Controls {
				ctl.Active = b.indicators[ctl.IndicatorID]
				lv.Controls[k] = ctl
			}
			out.Lifts[j] = lv
		}
		view.Groups[i] = out
	}
	return view
}
