package session

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/git-eri/smart-lift/internal/logger"
	"github.com/git-eri/smart-lift/internal/model"
	"github.com/git-eri/smart-lift/internal/protocol"
	"github.com/git-eri/smart-lift/internal/wstest"
)

const (
	testID      = "cli-test"
	waitTimeout = 2 * time.Second
)

func newTestSession(t *testing.T, srv *wstest.Server, mutate ...func(*Config)) *Session {
	t.Helper()
	cfg := Config{
		ID:     testID,
		URL:    srv.URL,
		Role:   protocol.RoleClient,
		Policy: FixedPolicy(20 * time.Millisecond),
		Logger: zerolog.Nop(),
	}
	for _, fn := range mutate {
		fn(&cfg)
	}
	s, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func startAndWait(t *testing.T, s *Session, srv *wstest.Server) {
	t.Helper()
	require.NoError(t, s.Startup())
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	require.NoError(t, s.WaitOpen(ctx))
	require.True(t, srv.WaitConnects(s.ID(), 1, waitTimeout))
}

func TestSession_StartupIsIdempotent(t *testing.T) {
	srv := wstest.NewServer()
	defer srv.Close()
	s := newTestSession(t, srv)

	assert.Equal(t, StateClosed, s.State())
	require.NoError(t, s.Startup())
	require.NoError(t, s.Startup())

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	require.NoError(t, s.WaitOpen(ctx))
	require.NoError(t, s.Startup())

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, srv.Connects(testID))
	assert.Equal(t, StateOpen, s.State())
	assert.Equal(t, []string{"/ws/" + testID}, srv.Requests())
}

func TestSession_SendDroppedWhenNotOpen(t *testing.T) {
	srv := wstest.NewServer()
	defer srv.Close()
	s := newTestSession(t, srv)

	assert.False(t, s.Send(protocol.Stop{ClientID: testID}))

	startAndWait(t, s, srv)
	s.Disconnect()
	assert.False(t, s.Send(protocol.Stop{ClientID: testID}))

	assert.Empty(t, srv.Received(testID))
}

func TestSession_SendWritesFrame(t *testing.T) {
	srv := wstest.NewServer()
	defer srv.Close()
	s := newTestSession(t, srv)
	startAndWait(t, s, srv)

	ok := s.Send(protocol.MoveLift{
		ConID:     "con1",
		ClientID:  testID,
		LiftID:    "2",
		Direction: model.DirectionDown,
		Toggle:    model.ToggleOn,
	})
	require.True(t, ok)

	frames, ok := srv.WaitFrames(testID, 1, waitTimeout)
	require.True(t, ok)
	assert.JSONEq(t,
		`{"case":"move_lift","con_id":"con1","client_id":"cli-test","lift_id":2,"direction":1,"toggle":1}`,
		string(frames[0]))
}

func TestSession_ListenersRunInRegistrationOrder(t *testing.T) {
	srv := wstest.NewServer()
	defer srv.Close()
	s := newTestSession(t, srv)

	var (
		mu    sync.Mutex
		calls []string
	)
	done := make(chan struct{})
	record := func(name string) MessageHandler {
		return func(env protocol.Envelope) {
			mu.Lock()
			defer mu.Unlock()
			calls = append(calls, name+":"+env.(protocol.Info).Message)
			if len(calls) == 6 {
				close(done)
			}
		}
	}
	s.OnMessage(record("a"))
	s.OnMessage(record("b"))

	startAndWait(t, s, srv)
	for _, msg := range []string{"1", "2", "3"} {
		require.True(t, srv.Send(testID, []byte(`{"case":"info","message":"`+msg+`"}`)))
	}

	select {
	case <-done:
	case <-time.After(waitTimeout):
		t.Fatal("listeners did not receive all messages")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a:1", "b:1", "a:2", "b:2", "a:3", "b:3"}, calls)
}

func TestSession_MalformedFramesAreDropped(t *testing.T) {
	srv := wstest.NewServer()
	defer srv.Close()
	s := newTestSession(t, srv)

	received := make(chan protocol.Envelope, 4)
	s.OnMessage(func(env protocol.Envelope) { received <- env })
	startAndWait(t, s, srv)

	srv.Send(testID, []byte(`not json`))
	srv.Send(testID, []byte(`{"case":"teleport"}`))
	srv.Send(testID, []byte(`{"case":"move_lift","con_id":"c","client_id":"x","lift_id":1,"direction":0,"toggle":1}`))
	srv.Send(testID, []byte(`{"case":"lift_moved","lift_id":1,"direction":7,"toggle":1}`))
	srv.Send(testID, []byte(`{"case":"info","message":"still here"}`))

	select {
	case env := <-received:
		assert.Equal(t, protocol.Info{Message: "still here"}, env)
	case <-time.After(waitTimeout):
		t.Fatal("valid message after malformed ones was not delivered")
	}
	assert.Len(t, received, 0)
	assert.Equal(t, StateOpen, s.State())
}

func TestSession_ReconnectsAfterServerDrop(t *testing.T) {
	srv := wstest.NewServer()
	defer srv.Close()
	s := newTestSession(t, srv)

	var opens atomic.Int32
	s.OnOpen(func() { opens.Add(1) })
	startAndWait(t, s, srv)

	require.True(t, srv.Drop(testID))
	require.True(t, srv.WaitConnects(testID, 2, waitTimeout))

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	require.NoError(t, s.WaitOpen(ctx))
	require.Eventually(t, func() bool { return opens.Load() == 2 }, waitTimeout, 10*time.Millisecond)
}

func TestSession_NoReconnectAfterDisconnect(t *testing.T) {
	srv := wstest.NewServer()
	defer srv.Close()
	s := newTestSession(t, srv)
	startAndWait(t, s, srv)

	s.Disconnect()
	require.True(t, srv.WaitDisconnected(testID, waitTimeout))

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, srv.Connects(testID))
	assert.Equal(t, StateClosed, s.State())
}

func TestSession_SetVisible(t *testing.T) {
	srv := wstest.NewServer()
	defer srv.Close()
	s := newTestSession(t, srv)
	startAndWait(t, s, srv)

	require.NoError(t, s.SetVisible(false))
	require.True(t, srv.WaitDisconnected(testID, waitTimeout))
	assert.Equal(t, StateClosed, s.State())

	require.NoError(t, s.SetVisible(true))
	require.True(t, srv.WaitConnects(testID, 2, waitTimeout))

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	require.NoError(t, s.WaitOpen(ctx))

	require.NoError(t, s.SetVisible(true))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, srv.Connects(testID))
}

type countingPolicy struct {
	next   atomic.Int32
	resets atomic.Int32
}

func (p *countingPolicy) Next() time.Duration {
	p.next.Add(1)
	return 10 * time.Millisecond
}

func (p *countingPolicy) Reset() { p.resets.Add(1) }

func TestSession_DialFailureSchedulesReconnect(t *testing.T) {
	srv := wstest.NewServer()
	url := srv.URL
	srv.Close()

	policy := &countingPolicy{}
	s, err := New(Config{
		ID:     testID,
		URL:    url,
		Policy: policy,
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Startup())
	require.Eventually(t, func() bool { return policy.next.Load() >= 3 }, waitTimeout, 10*time.Millisecond)
	assert.Zero(t, policy.resets.Load())
}

func TestSession_CloseRejectsStartup(t *testing.T) {
	srv := wstest.NewServer()
	defer srv.Close()
	s := newTestSession(t, srv)
	startAndWait(t, s, srv)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Startup(), model.ErrSessionClosed)
	assert.ErrorIs(t, s.WaitOpen(context.Background()), model.ErrSessionClosed)
	assert.False(t, s.Send(protocol.Stop{}))
	require.True(t, srv.WaitDisconnected(testID, waitTimeout))
}

func TestSession_WaitOpenHonorsContext(t *testing.T) {
	srv := wstest.NewServer()
	defer srv.Close()
	s := newTestSession(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.WaitOpen(ctx), context.DeadlineExceeded)
}

func TestSession_Transcript(t *testing.T) {
	srv := wstest.NewServer()
	defer srv.Close()

	var buf bytes.Buffer
	tr := logger.NewTranscriptWithWriter(&buf)
	s := newTestSession(t, srv, func(c *Config) { c.Transcript = tr })

	received := make(chan struct{}, 1)
	s.OnMessage(func(protocol.Envelope) { received <- struct{}{} })
	startAndWait(t, s, srv)

	require.True(t, s.Send(protocol.Stop{ClientID: testID}))
	_, ok := srv.WaitFrames(testID, 1, waitTimeout)
	require.True(t, ok)
	srv.Send(testID, []byte(`{"case":"stop"}`))
	<-received
	require.NoError(t, s.Close())

	header, events, err := logger.ReadTranscript(&buf)
	require.NoError(t, err)
	assert.Equal(t, testID, header.SessionID)
	assert.Equal(t, "json", header.Codec)
	require.Len(t, events, 2)
	assert.Equal(t, logger.EventOutbound, events[0].Direction)
	assert.Equal(t, logger.EventInbound, events[1].Direction)
}

func TestSession_LegacyCodec(t *testing.T) {
	srv := wstest.NewServer()
	defer srv.Close()
	s := newTestSession(t, srv, func(c *Config) { c.Codec = protocol.NewLegacyCodec() })

	received := make(chan protocol.Envelope, 1)
	s.OnMessage(func(env protocol.Envelope) { received <- env })
	startAndWait(t, s, srv)

	require.True(t, s.Send(protocol.MoveLift{ConID: "con1", LiftID: "4", Direction: model.DirectionUp, Toggle: model.ToggleOn}))
	frames, ok := srv.WaitFrames(testID, 1, waitTimeout)
	require.True(t, ok)
	assert.Equal(t, "lift;con1;4;0;on", string(frames[0]))

	srv.Send(testID, []byte("moved_lift;4;0;off"))
	select {
	case env := <-received:
		assert.Equal(t, protocol.LiftMoved{LiftID: "4", Direction: model.DirectionUp, Toggle: model.ToggleOff}, env)
	case <-time.After(waitTimeout):
		t.Fatal("legacy frame was not delivered")
	}
}

func TestNewClientID(t *testing.T) {
	assert.True(t, strings.HasPrefix(NewClientID(protocol.RoleClient), "cli-"))
	assert.True(t, strings.HasPrefix(NewClientID(protocol.RoleController), "con-sim"))
}

func TestNew_RequiresURL(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestPolicies(t *testing.T) {
	assert.Equal(t, time.Second, FixedPolicy(time.Second).Next())

	p := NewBackoffPolicy(10*time.Millisecond, 80*time.Millisecond)
	for i := 0; i < 6; i++ {
		d := p.Next()
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.LessOrEqual(t, d, 80*time.Millisecond)
	}
	assert.Equal(t, 6, p.Attempts())
	p.Reset()
	assert.Zero(t, p.Attempts())
}
