package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/git-eri/smart-lift/internal/model"
)

func TestLegacyCodec_Encode(t *testing.T) {
	codec := NewLegacyCodec()

	frame, err := codec.Encode(MoveLift{ConID: "con1", LiftID: "3", Direction: model.DirectionDown, Toggle: model.ToggleOn})
	require.NoError(t, err)
	assert.Equal(t, "lift;con1;3;1;on", string(frame))

	frame, err = codec.Encode(MoveLift{ConID: "con1", LiftID: "3", Direction: model.DirectionLock, Toggle: model.ToggleOff})
	require.NoError(t, err)
	assert.Equal(t, "lift;con1;3;2;off", string(frame))

	frame, err = codec.Encode(Stop{ClientID: "cli-1"})
	require.NoError(t, err)
	assert.Equal(t, "stop", string(frame))

	_, err = codec.Encode(GetPowerStates{})
	assert.ErrorIs(t, err, model.ErrUnknownCase)
}

func TestLegacyCodec_Decode(t *testing.T) {
	codec := NewLegacyCodec()

	env, err := codec.Decode([]byte("moved_lift;3;1;on"))
	require.NoError(t, err)
	assert.Equal(t, LiftMoved{LiftID: "3", Direction: model.DirectionDown, Toggle: model.ToggleOn}, env)

	env, err = codec.Decode([]byte(`lift_status;[{"id":10,"name":"Lift 11","controller":"con1"},{"id":2,"name":"Lift 3","controller":"con1"},{"id":0,"name":"Lift 1","controller":"con1"},{"id":1,"name":"Lift 2","controller":"con2"}]`))
	require.NoError(t, err)
	assert.Equal(t, OnlineLifts{Lifts: model.Roster{
		"con1": {{ID: "0", Name: "Lift 1"}, {ID: "2", Name: "Lift 3"}, {ID: "10", Name: "Lift 11"}},
		"con2": {{ID: "1", Name: "Lift 2"}},
	}}, env)

	env, err = codec.Decode([]byte("msg;Controller con1 left"))
	require.NoError(t, err)
	assert.Equal(t, Info{Message: "Controller con1 left"}, env)

	env, err = codec.Decode([]byte("stop"))
	require.NoError(t, err)
	assert.Equal(t, CaseStop, env.Case())

	env, err = codec.Decode([]byte("error;Controller con1 sent invalid data"))
	require.NoError(t, err)
	assert.Equal(t, CaseError, env.Case())
}

func TestLegacyCodec_DecodeErrors(t *testing.T) {
	codec := NewLegacyCodec()

	_, err := codec.Decode([]byte("moved_lift;3;1;maybe"))
	assert.ErrorIs(t, err, model.ErrInvalidToggle)

	_, err = codec.Decode([]byte("moved_lift;3;9;on"))
	assert.ErrorIs(t, err, model.ErrInvalidDirection)

	_, err = codec.Decode([]byte("moved_lift;3"))
	assert.ErrorIs(t, err, model.ErrMalformedFrame)

	_, err = codec.Decode([]byte("lift_status;{broken"))
	assert.ErrorIs(t, err, model.ErrMalformedFrame)

	_, err = codec.Decode([]byte("hello;[1,2]"))
	assert.ErrorIs(t, err, model.ErrUnknownCase)
}
