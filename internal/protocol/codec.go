package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/git-eri/smart-lift/internal/model"
)

// Codec converts envelopes to and from wire frames.
type Codec interface {
	Encode(env Envelope) ([]byte, error)
	Decode(frame []byte) (Envelope, error)
	Name() string
}

// JSONCodec is the current wire format: one JSON object per frame with the
// tag in "case".
type JSONCodec struct {
	role Role
}

// NewJSONCodec returns a JSON codec decoding the envelopes role accepts.
func NewJSONCodec(role Role) *JSONCodec {
	return &JSONCodec{role: role}
}

// Name implements Codec.
func (c *JSONCodec) Name() string { return "json" }

// Encode implements Codec.
func (c *JSONCodec) Encode(env Envelope) ([]byte, error) {
	if v, ok := env.(validator); ok {
		if err := v.validate(); err != nil {
			return nil, err
		}
	}
	body, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", env.Case(), err)
	}
	tag, err := json.Marshal(env.Case())
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(len(body) + len(tag) + 10)
	buf.WriteString(`{"case":`)
	buf.Write(tag)
	if len(body) > 2 {
		buf.WriteByte(',')
		buf.Write(body[1:])
	} else {
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}

// Decode implements Codec.
func (c *JSONCodec) Decode(frame []byte) (Envelope, error) {
	var head struct {
		Case *Case `json:"case"`
	}
	if err := json.Unmarshal(frame, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMalformedFrame, err)
	}
	if head.Case == nil {
		return nil, fmt.Errorf("%w: missing case", model.ErrMalformedFrame)
	}
	if !c.role.Accepts(*head.Case) {
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownCase, *head.Case)
	}

	env, err := decodeBody(*head.Case, frame)
	if err != nil {
		return nil, err
	}
	if v, ok := env.(validator); ok {
		if err := v.validate(); err != nil {
			return nil, err
		}
	}
	return env, nil
}

func decodeBody(c Case, frame []byte) (Envelope, error) {
	switch c {
	case CaseMoveLift:
		return unmarshalAs[MoveLift](frame)
	case CaseStop:
		return unmarshalAs[Stop](frame)
	case CaseHello:
		return unmarshalAs[Hello](frame)
	case CaseGetPowerStates:
		return GetPowerStates{}, nil
	case CaseLiftMoved:
		return unmarshalAs[LiftMoved](frame)
	case CaseOnlineLifts:
		return unmarshalAs[OnlineLifts](frame)
	case CasePowerStates:
		return unmarshalAs[PowerStates](frame)
	case CasePowerState:
		return unmarshalAs[PowerState](frame)
	case CaseInfo:
		return unmarshalAs[Info](frame)
	case CaseClientDisconnect:
		return unmarshalAs[ClientDisconnect](frame)
	case CaseError:
		return unmarshalAs[Error](frame)
	}
	return nil, fmt.Errorf("%w: %q", model.ErrUnknownCase, c)
}

func unmarshalAs[T Envelope](frame []byte) (Envelope, error) {
	var v T
	if err := json.Unmarshal(frame, &v); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", model.ErrMalformedFrame, v.Case(), err)
	}
	return v, nil
}
