// Package protocol defines the lift-control wire envelopes and their codecs.
//
// Every frame exchanged with the controller backend is an Envelope tagged by
// its Case. The set of envelopes is closed: decoding rejects any case the
// receiving Role does not expect, and only types declared here satisfy the
// Envelope interface.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/git-eri/smart-lift/internal/model"
)

// Case is the tag carried in the "case" field of every envelope.
type Case string

const (
	// Client -> Server
	CaseMoveLift       Case = "move_lift"
	CaseGetPowerStates Case = "get_power_states"

	// Controller -> Server
	CaseHello     Case = "hello"
	CaseLiftMoved Case = "lift_moved"

	// Server -> Client
	CaseOnlineLifts      Case = "online_lifts"
	CasePowerStates      Case = "power_states"
	CasePowerState       Case = "power_state"
	CaseInfo             Case = "info"
	CaseClientDisconnect Case = "client_disconnect"
	CaseError            Case = "error"

	// Any direction
	CaseStop Case = "stop"
)

// Envelope is a decoded wire message.
type Envelope interface {
	Case() Case
	sealed()
}

// MoveLift asks a controller to engage or disengage one lift direction.
type MoveLift struct {
	ConID     string          `json:"con_id"`
	ClientID  string          `json:"client_id"`
	LiftID    model.LiftID    `json:"lift_id"`
	Direction model.Direction `json:"direction"`
	Toggle    model.Toggle    `json:"toggle"`
}

// Stop is the emergency stop, sent by a client and broadcast by the server.
type Stop struct {
	ClientID string `json:"client_id,omitempty"`
}

// Hello registers a controller and the lifts it serves.
type Hello struct {
	Lifts      []model.LiftID `json:"lifts"`
	PowerState *int           `json:"power_state,omitempty"`
}

// GetPowerStates requests a power_states snapshot.
type GetPowerStates struct{}

// LiftMoved confirms an actuation change. Only this message lights indicators.
type LiftMoved struct {
	ConID     string          `json:"con_id,omitempty"`
	LiftID    model.LiftID    `json:"lift_id"`
	Direction model.Direction `json:"direction"`
	Toggle    model.Toggle    `json:"toggle"`
}

// OnlineLifts is a full roster snapshot.
type OnlineLifts struct {
	Lifts model.Roster `json:"lifts"`
}

// PowerStates is a full power snapshot.
type PowerStates struct {
	States model.PowerStates `json:"states"`
}

// PowerState is a single controller power update. Controllers omit ConID;
// the server fills it in before forwarding to clients.
type PowerState struct {
	ConID string `json:"con_id,omitempty"`
	State int    `json:"state"`
}

// On reports whether the controller is powered.
func (p PowerState) On() bool { return p.State == 1 }

// Info carries an informational notice with no UI effect.
type Info struct {
	Message string `json:"message,omitempty"`
}

// ClientDisconnect announces that another client left.
type ClientDisconnect struct {
	ClientID string `json:"client_id"`
}

// Error reports a peer-side failure.
type Error struct {
	Detail json.RawMessage `json:"detail,omitempty"`
}

func (MoveLift) Case() Case         { return CaseMoveLift }
func (Stop) Case() Case             { return CaseStop }
func (Hello) Case() Case            { return CaseHello }
func (GetPowerStates) Case() Case   { return CaseGetPowerStates }
func (LiftMoved) Case() Case        { return CaseLiftMoved }
func (OnlineLifts) Case() Case      { return CaseOnlineLifts }
func (PowerStates) Case() Case      { return CasePowerStates }
func (PowerState) Case() Case       { return CasePowerState }
func (Info) Case() Case             { return CaseInfo }
func (ClientDisconnect) Case() Case { return CaseClientDisconnect }
func (Error) Case() Case            { return CaseError }

func (MoveLift) sealed()         {}
func (Stop) sealed()             {}
func (Hello) sealed()            {}
func (GetPowerStates) sealed()   {}
func (LiftMoved) sealed()        {}
func (OnlineLifts) sealed()      {}
func (PowerStates) sealed()      {}
func (PowerState) sealed()       {}
func (Info) sealed()             {}
func (ClientDisconnect) sealed() {}
func (Error) sealed()            {}

// validator is implemented by envelopes with field constraints.
type validator interface {
	validate() error
}

func (m MoveLift) validate() error {
	if m.LiftID == "" {
		return fmt.Errorf("move_lift without lift_id: %w", model.ErrInvalidLiftID)
	}
	if !m.Direction.Valid() {
		return fmt.Errorf("move_lift direction %d: %w", m.Direction, model.ErrInvalidDirection)
	}
	if !m.Toggle.Valid() {
		return fmt.Errorf("move_lift toggle %d: %w", m.Toggle, model.ErrInvalidToggle)
	}
	return nil
}

func (m LiftMoved) validate() error {
	if m.LiftID == "" {
		return fmt.Errorf("lift_moved without lift_id: %w", model.ErrInvalidLiftID)
	}
	if !m.Direction.Valid() {
		return fmt.Errorf("lift_moved direction %d: %w", m.Direction, model.ErrInvalidDirection)
	}
	if !m.Toggle.Valid() {
		return fmt.Errorf("lift_moved toggle %d: %w", m.Toggle, model.ErrInvalidToggle)
	}
	return nil
}

func (m PowerState) validate() error {
	if m.State != 0 && m.State != 1 {
		return fmt.Errorf("power_state %d: %w", m.State, model.ErrInvalidToggle)
	}
	return nil
}

// Role selects which envelopes a peer accepts inbound.
type Role int

const (
	// RoleClient is an operator panel ("cli-" peers).
	RoleClient Role = iota
	// RoleController is a lift controller or the simulator ("con" peers).
	RoleController
)

var inbound = map[Role]map[Case]bool{
	RoleClient: {
		CaseLiftMoved:        true,
		CaseOnlineLifts:      true,
		CasePowerStates:      true,
		CasePowerState:       true,
		CaseStop:             true,
		CaseInfo:             true,
		CaseClientDisconnect: true,
		CaseError:            true,
	},
	RoleController: {
		CaseMoveLift: true,
		CaseStop:     true,
		CaseInfo:     true,
		CaseError:    true,
	},
}

// Accepts reports whether the role expects c from the server.
func (r Role) Accepts(c Case) bool {
	return inbound[r][c]
}

// IDPrefix is the session id prefix the server uses to route the role.
func (r Role) IDPrefix() string {
	if r == RoleController {
		return "con-sim"
	}
	return "cli-"
}

// String implements fmt.Stringer.
func (r Role) String() string {
	if r == RoleController {
		return "controller"
	}
	return "client"
}
