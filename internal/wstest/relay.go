package wstest

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/git-eri/smart-lift/internal/model"
	"github.com/git-eri/smart-lift/internal/protocol"
)

// relay mirrors the production backend's lift manager: controllers announce
// lifts with hello, clients receive the roster as an object keyed by lift id,
// move_lift goes to the addressed controller and lift_moved fans out to
// every client.
type relay struct {
	srv   *Server
	codec protocol.Codec

	mu     sync.Mutex
	lifts  map[string][]model.LiftID
	powers map[string]bool
}

func newRelay(srv *Server) *relay {
	return &relay{
		srv:    srv,
		codec:  protocol.NewJSONCodec(protocol.RoleClient),
		lifts:  make(map[string][]model.LiftID),
		powers: make(map[string]bool),
	}
}

func isClient(id string) bool     { return strings.HasPrefix(id, "cli") }
func isController(id string) bool { return strings.HasPrefix(id, "con") }

func (r *relay) connected(peer *Peer) {
	if isClient(peer.id) {
		peer.Send(r.onlineLifts())
		peer.Send(r.powerStates())
	}
}

func (r *relay) disconnected(peer *Peer) {
	if !isController(peer.id) {
		return
	}
	r.mu.Lock()
	delete(r.lifts, peer.id)
	delete(r.powers, peer.id)
	r.mu.Unlock()

	r.toClients(r.encode(protocol.Info{Message: fmt.Sprintf("Controller %s left", peer.id)}))
	r.toClients(r.onlineLifts())
}

func (r *relay) route(peer *Peer, frame []byte) {
	var head struct {
		Case protocol.Case `json:"case"`
	}
	if err := json.Unmarshal(frame, &head); err != nil {
		peer.Send(r.encode(protocol.Error{Detail: json.RawMessage(strconv.Quote(err.Error()))}))
		return
	}

	switch {
	case head.Case == protocol.CaseStop:
		for _, p := range r.srv.snapshot("") {
			if p != peer {
				p.Send(frame)
			}
		}

	case isClient(peer.id) && head.Case == protocol.CaseMoveLift:
		var msg protocol.MoveLift
		if err := json.Unmarshal(frame, &msg); err != nil {
			return
		}
		r.srv.Send(msg.ConID, frame)

	case isClient(peer.id) && head.Case == protocol.CaseGetPowerStates:
		peer.Send(r.powerStates())

	case isController(peer.id) && head.Case == protocol.CaseHello:
		var msg protocol.Hello
		if err := json.Unmarshal(frame, &msg); err != nil {
			return
		}
		r.mu.Lock()
		r.lifts[peer.id] = msg.Lifts
		if msg.PowerState != nil {
			r.powers[peer.id] = *msg.PowerState == 1
		}
		r.mu.Unlock()
		r.toClients(r.onlineLifts())
		if msg.PowerState != nil {
			r.toClients(r.encode(protocol.PowerState{ConID: peer.id, State: *msg.PowerState}))
		}

	case isController(peer.id) && head.Case == protocol.CaseLiftMoved:
		var msg protocol.LiftMoved
		if err := json.Unmarshal(frame, &msg); err != nil {
			return
		}
		msg.ConID = peer.id
		r.toClients(r.encode(msg))

	case isController(peer.id) && head.Case == protocol.CasePowerState:
		var msg protocol.PowerState
		if err := json.Unmarshal(frame, &msg); err != nil {
			return
		}
		r.mu.Lock()
		r.powers[peer.id] = msg.On()
		r.mu.Unlock()
		msg.ConID = peer.id
		r.toClients(r.encode(msg))
	}
}

func (r *relay) toClients(frame []byte) {
	if frame == nil {
		return
	}
	for _, p := range r.srv.snapshot("cli") {
		p.Send(frame)
	}
}

func (r *relay) encode(env protocol.Envelope) []byte {
	frame, err := r.codec.Encode(env)
	if err != nil {
		return nil
	}
	return frame
}

// onlineLifts renders the roster in the object-per-controller form:
// {"con1": {"0": {"id": 0, "name": "Lift 1"}}}.
func (r *relay) onlineLifts() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	groups := make(map[string]map[string]model.Lift, len(r.lifts))
	for conID, ids := range r.lifts {
		group := make(map[string]model.Lift, len(ids))
		for _, id := range ids {
			group[string(id)] = model.Lift{ID: id, Name: liftName(id)}
		}
		groups[conID] = group
	}
	frame, err := json.Marshal(struct {
		Case  protocol.Case                      `json:"case"`
		Lifts map[string]map[string]model.Lift `json:"lifts"`
	}{protocol.CaseOnlineLifts, groups})
	if err != nil {
		return nil
	}
	return frame
}

func (r *relay) powerStates() []byte {
	r.mu.Lock()
	states := make(model.PowerStates, len(r.powers))
	for conID, on := range r.powers {
		states[conID] = on
	}
	r.mu.Unlock()
	return r.encode(protocol.PowerStates{States: states})
}

// Controllers returns the ids of controllers that said hello, sorted.
func (s *Server) Controllers() []string {
	if s.relay == nil {
		return nil
	}
	s.relay.mu.Lock()
	defer s.relay.mu.Unlock()
	ids := make([]string, 0, len(s.relay.lifts))
	for id := range s.relay.lifts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func liftName(id model.LiftID) string {
	n, err := strconv.Atoi(string(id))
	if err != nil {
		return "Lift " + string(id)
	}
	return fmt.Sprintf("Lift %d", n+1)
}
