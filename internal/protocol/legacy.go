package protocol

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/git-eri/smart-lift/internal/model"
)

// LegacyCodec speaks the semicolon-delimited text format of the first
// controller backend. It only covers the client role.
//
//	out: lift;<con>;<lift>;<dir>;on|off   stop
//	in:  moved_lift;<lift>;<dir>;on|off   lift_status;<json>   msg;<text>   error;<text>   stop
type LegacyCodec struct{}

// NewLegacyCodec returns a LegacyCodec.
func NewLegacyCodec() *LegacyCodec {
	return &LegacyCodec{}
}

// Name implements Codec.
func (c *LegacyCodec) Name() string { return "legacy" }

// Encode implements Codec.
func (c *LegacyCodec) Encode(env Envelope) ([]byte, error) {
	switch m := env.(type) {
	case MoveLift:
		if err := m.validate(); err != nil {
			return nil, err
		}
		frame := strings.Join([]string{
			"lift", m.ConID, string(m.LiftID), strconv.Itoa(int(m.Direction)), onOff(m.Toggle),
		}, ";")
		return []byte(frame), nil
	case Stop:
		return []byte("stop"), nil
	}
	return nil, fmt.Errorf("%w: %q has no legacy form", model.ErrUnknownCase, env.Case())
}

// Decode implements Codec.
func (c *LegacyCodec) Decode(frame []byte) (Envelope, error) {
	text := string(frame)
	tag, rest, _ := strings.Cut(text, ";")

	switch tag {
	case "moved_lift":
		parts := strings.Split(rest, ";")
		if len(parts) < 3 {
			return nil, fmt.Errorf("%w: %q", model.ErrMalformedFrame, text)
		}
		dir, err := model.ParseDirection(parts[1])
		if err != nil {
			return nil, err
		}
		toggle, err := parseOnOff(parts[2])
		if err != nil {
			return nil, err
		}
		if parts[0] == "" {
			return nil, fmt.Errorf("%w: %q", model.ErrInvalidLiftID, text)
		}
		return LiftMoved{LiftID: model.LiftID(parts[0]), Direction: dir, Toggle: toggle}, nil

	case "lift_status":
		roster, err := parseLegacyRoster(rest)
		if err != nil {
			return nil, err
		}
		return OnlineLifts{Lifts: roster}, nil

	case "stop":
		return Stop{}, nil

	case "msg":
		return Info{Message: rest}, nil

	case "error":
		detail, _ := json.Marshal(rest)
		return Error{Detail: detail}, nil
	}
	return nil, fmt.Errorf("%w: %q", model.ErrUnknownCase, tag)
}

// legacyLift is one entry of the flat lift_status list.
type legacyLift struct {
	ID         model.LiftID `json:"id"`
	Name       string       `json:"name"`
	Controller string       `json:"controller"`
}

func parseLegacyRoster(payload string) (model.Roster, error) {
	var flat []legacyLift
	if err := json.Unmarshal([]byte(payload), &flat); err != nil {
		return nil, fmt.Errorf("%w: lift_status: %v", model.ErrMalformedFrame, err)
	}
	sort.SliceStable(flat, func(i, j int) bool {
		return flat[i].ID.Less(flat[j].ID)
	})
	roster := make(model.Roster)
	for _, l := range flat {
		roster[l.Controller] = append(roster[l.Controller], model.Lift{ID: l.ID, Name: l.Name})
	}
	return roster, nil
}

func onOff(t model.Toggle) string {
	if t == model.ToggleOn {
		return "on"
	}
	return "off"
}

func parseOnOff(s string) (model.Toggle, error) {
	switch s {
	case "on", "1":
		return model.ToggleOn, nil
	case "off", "0":
		return model.ToggleOff, nil
	}
	return 0, fmt.Errorf("%q: %w", s, model.ErrInvalidToggle)
}
