package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Direction selects one of the three actions a lift button drives.
type Direction int

const (
	DirectionUp Direction = iota
	DirectionDown
	DirectionLock
)

// Directions lists every direction in wire order.
var Directions = [...]Direction{DirectionUp, DirectionDown, DirectionLock}

var directionLabels = [...]string{"Up", "Down", "Lock"}

// Valid reports whether d is one of Up, Down or Lock.
func (d Direction) Valid() bool {
	return d >= DirectionUp && d <= DirectionLock
}

// String returns the button label for the direction.
func (d Direction) String() string {
	if !d.Valid() {
		return fmt.Sprintf("Direction(%d)", int(d))
	}
	return directionLabels[d]
}

// ParseDirection accepts either the ordinal ("0".."2") or the label ("up", "Down", ...).
func ParseDirection(s string) (Direction, error) {
	if n, err := strconv.Atoi(s); err == nil {
		d := Direction(n)
		if !d.Valid() {
			return 0, fmt.Errorf("%q: %w", s, ErrInvalidDirection)
		}
		return d, nil
	}
	for i, label := range directionLabels {
		if strings.EqualFold(label, s) {
			return Direction(i), nil
		}
	}
	return 0, fmt.Errorf("%q: %w", s, ErrInvalidDirection)
}

// Toggle engages (1) or disengages (0) a lift direction.
type Toggle int

const (
	ToggleOff Toggle = 0
	ToggleOn  Toggle = 1
)

// Valid reports whether t is 0 or 1.
func (t Toggle) Valid() bool {
	return t == ToggleOff || t == ToggleOn
}

// LiftID identifies a lift. The backend uses integers, the legacy clients
// strings; both decode into LiftID and purely numeric ids encode back as numbers.
type LiftID string

// Numeric reports whether the id is a canonical non-negative integer.
func (id LiftID) Numeric() bool {
	s := string(id)
	if s == "" || (len(s) > 1 && s[0] == '0') {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// MarshalJSON implements json.Marshaler.
func (id LiftID) MarshalJSON() ([]byte, error) {
	if id.Numeric() {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *LiftID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("%s: %w", data, ErrInvalidLiftID)
		}
		*id = LiftID(s)
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", data, ErrInvalidLiftID)
	}
	*id = LiftID(strconv.FormatInt(n, 10))
	return nil
}

// Less orders numeric ids numerically and everything else lexically after
// them.
func (id LiftID) Less(other LiftID) bool {
	a, b := id.Numeric(), other.Numeric()
	switch {
	case a && b:
		if len(id) != len(other) {
			return len(id) < len(other)
		}
		return id < other
	case a != b:
		return a
	default:
		return id < other
	}
}

// Lift describes one lift as listed in a roster snapshot.
type Lift struct {
	ID   LiftID `json:"id"`
	Name string `json:"name"`
}

// Roster maps a controller id to the lifts it currently serves.
type Roster map[string][]Lift

// UnmarshalJSON accepts each controller group either as a list of lifts or
// as an object keyed by lift id. Object groups are ordered by lift id.
func (r *Roster) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Roster, len(raw))
	for conID, group := range raw {
		group = bytes.TrimSpace(group)
		if len(group) == 0 || bytes.Equal(group, []byte("null")) {
			out[conID] = []Lift{}
			continue
		}
		switch group[0] {
		case '[':
			var lifts []Lift
			if err := json.Unmarshal(group, &lifts); err != nil {
				return fmt.Errorf("controller %s: %w", conID, err)
			}
			out[conID] = lifts
		case '{':
			var byID map[string]Lift
			if err := json.Unmarshal(group, &byID); err != nil {
				return fmt.Errorf("controller %s: %w", conID, err)
			}
			lifts := make([]Lift, 0, len(byID))
			for key, lift := range byID {
				if lift.ID == "" {
					lift.ID = LiftID(key)
				}
				lifts = append(lifts, lift)
			}
			sort.Slice(lifts, func(i, j int) bool { return lifts[i].ID.Less(lifts[j].ID) })
			out[conID] = lifts
		default:
			return fmt.Errorf("controller %s: unexpected group %s", conID, group)
		}
	}
	*r = out
	return nil
}

// ControllerIDs returns the controller ids in a stable order.
func (r Roster) ControllerIDs() []string {
	ids := make([]string, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clone returns a deep copy.
func (r Roster) Clone() Roster {
	if r == nil {
		return nil
	}
	out := make(Roster, len(r))
	for conID, lifts := range r {
		out[conID] = append([]Lift(nil), lifts...)
	}
	return out
}

// Equal reports deep equality. A nil roster equals an empty one.
func (r Roster) Equal(other Roster) bool {
	if len(r) != len(other) {
		return false
	}
	for conID, lifts := range r {
		theirs, ok := other[conID]
		if !ok || len(lifts) != len(theirs) {
			return false
		}
		for i := range lifts {
			if lifts[i] != theirs[i] {
				return false
			}
		}
	}
	return true
}

// LiftCount returns the number of lifts over all controllers.
func (r Roster) LiftCount() int {
	n := 0
	for _, lifts := range r {
		n += len(lifts)
	}
	return n
}

// PowerStates maps a controller id to whether its power is on.
// On the wire the states are 0/1 integers.
type PowerStates map[string]bool

// MarshalJSON implements json.Marshaler.
func (p PowerStates) MarshalJSON() ([]byte, error) {
	wire := make(map[string]int, len(p))
	for conID, on := range p {
		wire[conID] = boolToInt(on)
	}
	return json.Marshal(wire)
}

// UnmarshalJSON accepts 0/1 integers or booleans.
func (p *PowerStates) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(PowerStates, len(raw))
	for conID, v := range raw {
		on, err := ParsePowerState(v)
		if err != nil {
			return fmt.Errorf("controller %s: %w", conID, err)
		}
		out[conID] = on
	}
	*p = out
	return nil
}

// Merge sets a single controller's state.
func (p PowerStates) Merge(conID string, on bool) {
	p[conID] = on
}

// Clone returns a copy.
func (p PowerStates) Clone() PowerStates {
	out := make(PowerStates, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// ParsePowerState decodes a 0/1 integer or a boolean.
func ParsePowerState(v json.RawMessage) (bool, error) {
	switch string(bytes.TrimSpace(v)) {
	case "1", "true":
		return true, nil
	case "0", "false":
		return false, nil
	}
	return false, fmt.Errorf("power state %s: %w", v, ErrInvalidToggle)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
