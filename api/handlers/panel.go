package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/git-eri/smart-lift/internal/model"
	"github.com/git-eri/smart-lift/internal/panel"
	"github.com/git-eri/smart-lift/internal/session"
)

// Session is the connection the panel drives.
type Session interface {
	ID() string
	State() session.State
	SetVisible(visible bool) error
}

// Controller turns button events into lift commands.
type Controller interface {
	Press(conID string, liftID model.LiftID, dir model.Direction) error
	Release(conID string, liftID model.LiftID, dir model.Direction) error
	EmergencyStop() bool
	Active() []model.LiftID
}

// Board is the rendered panel.
type Board interface {
	View() panel.View
	Lift(liftID model.LiftID) (panel.LiftView, bool)
	DrainAlerts() []panel.Alert
	Events() []panel.Event
	EventCapacity() int
}

// PanelHandler handles HTTP requests from the operator UI.
type PanelHandler struct {
	session    Session
	controller Controller
	board      Board
}

// NewPanelHandler creates a new PanelHandler.
func NewPanelHandler(sess Session, controller Controller, board Board) *PanelHandler {
	return &PanelHandler{
		session:    sess,
		controller: controller,
		board:      board,
	}
}

// SessionResponse describes the client's connection.
type SessionResponse struct {
	ID     string         `json:"id"`
	State  string         `json:"state"`
	Active []model.LiftID `json:"active"`
}

// CommandResponse is returned after a press or release.
type CommandResponse struct {
	Active    []model.LiftID `json:"active"`
	Connected bool           `json:"connected"`
}

// VisibilityRequest represents the request body for POST /api/visibility.
type VisibilityRequest struct {
	Visible *bool `json:"visible" binding:"required"`
}

// RegisterRoutes registers the panel routes.
func (h *PanelHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/panel", h.Panel)
	rg.GET("/session", h.Session)
	rg.POST("/lifts/:conId/:liftId/:direction/press", h.Press)
	rg.POST("/lifts/:conId/:liftId/:direction/release", h.Release)
	rg.POST("/stop", h.Stop)
	rg.POST("/visibility", h.Visibility)
	rg.GET("/alerts", h.Alerts)
	rg.GET("/events", h.Events)
}

// Panel handles GET /api/panel.
func (h *PanelHandler) Panel(c *gin.Context) {
	c.JSON(http.StatusOK, h.board.View())
}

// Session handles GET /api/session.
func (h *PanelHandler) Session(c *gin.Context) {
	c.JSON(http.StatusOK, h.sessionResponse())
}

// Press handles POST /api/lifts/:conId/:liftId/:direction/press.
func (h *PanelHandler) Press(c *gin.Context) {
	h.command(c, h.controller.Press, true)
}

// Release handles POST /api/lifts/:conId/:liftId/:direction/release.
// Operator UIs call it on pointer-up and on pointer-leave. A held lift must
// always be releasable, so it is not checked against the current roster.
func (h *PanelHandler) Release(c *gin.Context) {
	h.command(c, h.controller.Release, false)
}

func (h *PanelHandler) command(c *gin.Context, fn func(string, model.LiftID, model.Direction) error, online bool) {
	conID := c.Param("conId")
	liftID := model.LiftID(c.Param("liftId"))

	dir, err := model.ParseDirection(c.Param("direction"))
	if err != nil {
		sendError(c, http.StatusBadRequest, CodeValidation, err.Error())
		return
	}

	if online && !h.onBoard(conID, liftID) {
		sendErrorDetails(c, http.StatusNotFound, CodeNotFound, "Lift is not online", map[string]interface{}{
			"con_id":  conID,
			"lift_id": string(liftID),
		})
		return
	}

	if err := fn(conID, liftID, dir); err != nil {
		if errors.Is(err, model.ErrInvalidDirection) || errors.Is(err, model.ErrInvalidLiftID) {
			sendError(c, http.StatusBadRequest, CodeValidation, err.Error())
			return
		}
		sendError(c, http.StatusInternalServerError, CodeInternal, err.Error())
		return
	}

	c.JSON(http.StatusAccepted, CommandResponse{
		Active:    nonNil(h.controller.Active()),
		Connected: h.session.State() == session.StateOpen,
	})
}

func (h *PanelHandler) onBoard(conID string, liftID model.LiftID) bool {
	lift, ok := h.board.Lift(liftID)
	return ok && lift.ConID == conID
}

// Stop handles POST /api/stop.
func (h *PanelHandler) Stop(c *gin.Context) {
	if !h.controller.EmergencyStop() {
		sendError(c, http.StatusServiceUnavailable, CodeNotConnected, "Emergency stop could not be sent: not connected")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"sent": true})
}

// Visibility handles POST /api/visibility.
func (h *PanelHandler) Visibility(c *gin.Context) {
	var req VisibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, CodeValidation, "Invalid request body: "+err.Error())
		return
	}

	if err := h.session.SetVisible(*req.Visible); err != nil {
		sendError(c, http.StatusConflict, CodeNotConnected, err.Error())
		return
	}
	c.JSON(http.StatusOK, h.sessionResponse())
}

// Alerts handles GET /api/alerts. Returned alerts are removed from the queue.
func (h *PanelHandler) Alerts(c *gin.Context) {
	alerts := h.board.DrainAlerts()
	if alerts == nil {
		alerts = []panel.Alert{}
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

// Events handles GET /api/events.
func (h *PanelHandler) Events(c *gin.Context) {
	events := h.board.Events()
	if events == nil {
		events = []panel.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "capacity": h.board.EventCapacity()})
}

func (h *PanelHandler) sessionResponse() SessionResponse {
	return SessionResponse{
		ID:     h.session.ID(),
		State:  h.session.State().String(),
		Active: nonNil(h.controller.Active()),
	}
}

func nonNil(ids []model.LiftID) []model.LiftID {
	if ids == nil {
		return []model.LiftID{}
	}
	return ids
}
