package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/git-eri/smart-lift/internal/command"
	"github.com/git-eri/smart-lift/internal/model"
	"github.com/git-eri/smart-lift/internal/panel"
	"github.com/git-eri/smart-lift/internal/protocol"
	"github.com/git-eri/smart-lift/internal/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSession struct {
	state   session.State
	visible []bool
	sent    []protocol.Envelope
}

func (s *fakeSession) ID() string            { return "cli-42" }
func (s *fakeSession) State() session.State  { return s.state }
func (s *fakeSession) SetVisible(v bool) error {
	s.visible = append(s.visible, v)
	if v {
		s.state = session.StateOpen
	} else {
		s.state = session.StateClosed
	}
	return nil
}

func (s *fakeSession) Send(env protocol.Envelope) bool {
	if s.state != session.StateOpen {
		return false
	}
	s.sent = append(s.sent, env)
	return true
}

type fixture struct {
	router  *gin.Engine
	session *fakeSession
	board   *panel.Board
}

func newFixture() *fixture {
	sess := &fakeSession{state: session.StateOpen}
	board := panel.NewBoard(8)
	board.Render(model.Roster{"con1": {{ID: "0", Name: "Lift 1"}, {ID: "1", Name: "Lift 2"}}})
	ctrl := command.NewController(sess.ID(), sess, board, board, zerolog.Nop())
	h := NewPanelHandler(sess, ctrl, board)
	return &fixture{
		router:  NewRouter(h, zerolog.Nop()),
		session: sess,
		board:   board,
	}
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture()
	w := f.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestPanel(t *testing.T) {
	f := newFixture()
	w := f.do(http.MethodGet, "/api/panel", "")
	require.Equal(t, http.StatusOK, w.Code)

	view := decodeBody[panel.View](t, w)
	require.Len(t, view.Groups, 1)
	assert.Len(t, view.Groups[0].Lifts, 2)
	assert.Equal(t, "button-1-2", view.Groups[0].Lifts[1].Controls[2].ButtonID)
}

func TestPressAndRelease(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodPost, "/api/lifts/con1/1/up/press", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	resp := decodeBody[CommandResponse](t, w)
	assert.Equal(t, []model.LiftID{"1"}, resp.Active)
	assert.True(t, resp.Connected)

	w = f.do(http.MethodPost, "/api/lifts/con1/1/0/release", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Empty(t, decodeBody[CommandResponse](t, w).Active)

	require.Len(t, f.session.sent, 2)
	assert.Equal(t, model.ToggleOn, f.session.sent[0].(protocol.MoveLift).Toggle)
	assert.Equal(t, model.ToggleOff, f.session.sent[1].(protocol.MoveLift).Toggle)

	active, _ := f.board.Indicator("indicator-1-0")
	assert.False(t, active, "pressing never lights an indicator")
}

func TestPress_SafetyViolationRaisesAlert(t *testing.T) {
	f := newFixture()

	require.Equal(t, http.StatusAccepted, f.do(http.MethodPost, "/api/lifts/con1/0/down/press", "").Code)
	w := f.do(http.MethodPost, "/api/lifts/con1/1/down/press", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Empty(t, decodeBody[CommandResponse](t, w).Active)

	w = f.do(http.MethodGet, "/api/alerts", "")
	var body struct {
		Alerts []panel.Alert `json:"alerts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Alerts, 1)
	assert.Equal(t, command.SafetyWarning, body.Alerts[0].Message)

	w = f.do(http.MethodGet, "/api/alerts", "")
	assert.JSONEq(t, `{"alerts":[]}`, w.Body.String())
}

func TestRelease_AfterLiftLeavesRoster(t *testing.T) {
	f := newFixture()

	require.Equal(t, http.StatusAccepted, f.do(http.MethodPost, "/api/lifts/con1/1/up/press", "").Code)
	f.board.Render(model.Roster{"con1": {{ID: "0", Name: "Lift 1"}}})

	w := f.do(http.MethodPost, "/api/lifts/con1/1/up/release", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Empty(t, decodeBody[CommandResponse](t, w).Active)

	require.Len(t, f.session.sent, 2)
	off := f.session.sent[1].(protocol.MoveLift)
	assert.Equal(t, model.ToggleOff, off.Toggle)
	assert.Equal(t, model.LiftID("1"), off.LiftID)
	assert.Equal(t, "con1", off.ConID)

	require.Equal(t, http.StatusAccepted, f.do(http.MethodPost, "/api/lifts/con1/0/up/press", "").Code)
	w = f.do(http.MethodGet, "/api/alerts", "")
	assert.JSONEq(t, `{"alerts":[]}`, w.Body.String())
}

func TestRelease_UnknownLiftIsNoop(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodPost, "/api/lifts/con9/9/up/release", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Empty(t, f.session.sent)
}

func TestPress_Validation(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodPost, "/api/lifts/con1/1/sideways/press", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeValidation, decodeBody[ErrorResponse](t, w).Error.Code)

	w = f.do(http.MethodPost, "/api/lifts/con1/9/up/press", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodPost, "/api/lifts/con2/1/up/press", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	notFound := decodeBody[ErrorResponse](t, w).Error
	assert.Equal(t, CodeNotFound, notFound.Code)
	assert.Contains(t, notFound.Details, "lift_id")

	assert.Empty(t, f.session.sent)
}

func TestStop(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodPost, "/api/stop", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []protocol.Envelope{protocol.Stop{ClientID: "cli-42"}}, f.session.sent)

	f.session.state = session.StateConnecting
	w = f.do(http.MethodPost, "/api/stop", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, CodeNotConnected, decodeBody[ErrorResponse](t, w).Error.Code)
}

func TestVisibility(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodPost, "/api/visibility", `{"visible":false}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "CLOSED", decodeBody[SessionResponse](t, w).State)

	w = f.do(http.MethodPost, "/api/visibility", `{"visible":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OPEN", decodeBody[SessionResponse](t, w).State)

	assert.Equal(t, []bool{false, true}, f.session.visible)

	w = f.do(http.MethodPost, "/api/visibility", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionAndEvents(t *testing.T) {
	f := newFixture()
	f.board.Record(protocol.Info{Message: "hello"})

	w := f.do(http.MethodGet, "/api/session", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody[SessionResponse](t, w)
	assert.Equal(t, "cli-42", resp.ID)
	assert.Equal(t, "OPEN", resp.State)
	assert.Empty(t, resp.Active)

	w = f.do(http.MethodGet, "/api/events", "")
	var body struct {
		Events   []panel.Event `json:"events"`
		Capacity int           `json:"capacity"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Events, 1)
	assert.Equal(t, protocol.CaseInfo, body.Events[0].Case)
	assert.JSONEq(t, `{"case":"info","message":"hello"}`, string(body.Events[0].Payload))
	assert.Equal(t, 8, body.Capacity)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture()
	w := f.do(http.MethodOptions, "/api/stop", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
