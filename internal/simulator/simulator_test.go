package simulator

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/git-eri/smart-lift/internal/model"
	"github.com/git-eri/smart-lift/internal/protocol"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []protocol.Envelope
}

func (s *recordingSender) Send(env protocol.Envelope) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, env)
	return true
}

func TestSimulator_Hello(t *testing.T) {
	sender := &recordingSender{}
	on := 1
	sim := New([]model.LiftID{"0", "1", "2"}, &on, sender, zerolog.Nop())

	require.True(t, sim.Hello())
	require.Len(t, sender.sent, 1)
	hello := sender.sent[0].(protocol.Hello)
	assert.Equal(t, []model.LiftID{"0", "1", "2"}, hello.Lifts)
	require.NotNil(t, hello.PowerState)
	assert.Equal(t, 1, *hello.PowerState)

	frame, err := protocol.NewJSONCodec(protocol.RoleController).Encode(hello)
	require.NoError(t, err)
	assert.JSONEq(t, `{"case":"hello","lifts":[0,1,2],"power_state":1}`, string(frame))
}

func TestSimulator_HelloWithoutPower(t *testing.T) {
	sender := &recordingSender{}
	sim := New([]model.LiftID{"4"}, nil, sender, zerolog.Nop())

	sim.Hello()
	assert.Nil(t, sender.sent[0].(protocol.Hello).PowerState)
}

func TestSimulator_EchoesMoves(t *testing.T) {
	sender := &recordingSender{}
	sim := New([]model.LiftID{"0", "1"}, nil, sender, zerolog.Nop())

	sim.Handle(protocol.MoveLift{ConID: "con-sim1", ClientID: "cli-1", LiftID: "1", Direction: model.DirectionLock, Toggle: model.ToggleOn})
	assert.Equal(t, []Indicator{{LiftID: "1", Direction: model.DirectionLock}}, sim.Engaged())

	sim.Handle(protocol.MoveLift{ConID: "con-sim1", ClientID: "cli-1", LiftID: "1", Direction: model.DirectionLock, Toggle: model.ToggleOff})
	assert.Empty(t, sim.Engaged())

	assert.Equal(t, []protocol.Envelope{
		protocol.LiftMoved{LiftID: "1", Direction: model.DirectionLock, Toggle: model.ToggleOn},
		protocol.LiftMoved{LiftID: "1", Direction: model.DirectionLock, Toggle: model.ToggleOff},
	}, sender.sent)
}

func TestSimulator_StopClearsIndicators(t *testing.T) {
	sender := &recordingSender{}
	sim := New([]model.LiftID{"0", "1"}, nil, sender, zerolog.Nop())

	sim.Handle(protocol.MoveLift{LiftID: "0", Direction: model.DirectionUp, Toggle: model.ToggleOn})
	sim.Handle(protocol.MoveLift{LiftID: "1", Direction: model.DirectionDown, Toggle: model.ToggleOn})
	require.Len(t, sim.Engaged(), 2)

	sim.Handle(protocol.Stop{ClientID: "cli-1"})
	assert.Empty(t, sim.Engaged())
	assert.Equal(t, 1, sim.Stops())
	assert.Len(t, sender.sent, 2, "stop is not answered")
}

func TestSimulator_SetPower(t *testing.T) {
	sender := &recordingSender{}
	sim := New([]model.LiftID{"0"}, nil, sender, zerolog.Nop())

	require.True(t, sim.SetPower(true))
	assert.Equal(t, protocol.PowerState{State: 1}, sender.sent[0])

	sim.Hello()
	hello := sender.sent[1].(protocol.Hello)
	require.NotNil(t, hello.PowerState)
	assert.Equal(t, 1, *hello.PowerState)
}
