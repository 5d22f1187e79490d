package server

import (
	"fmt"

	"github.com/halvorsen/speedd/internal/heartbeat"
	"github.com/halvorsen/speedd/internal/transport"
	"github.com/halvorsen/speedd/internal/wire"
	"github.com/halvorsen/speedd/internal/world"
)

// role is the connection's identity, fixed at most once per connection.
type role int

const (
	roleUnknown role = iota
	roleCamera
	roleDispatcher
)

// session owns the single-goroutine state machine driving one connection's
// role transitions, per spec.md section 4.3. It is mutated only by the
// reader goroutine; the writer goroutine only drains the shared Outbox, so
// no additional locking is needed here.
type session struct {
	world *world.World
	out   *transport.Outbox

	role          role
	camera        world.Camera
	dispatchRoads []wire.Road
	heartbeatSent bool
}

func newSession(w *world.World, out *transport.Outbox) *session {
	return &session{world: w, out: out}
}

// handle applies one decoded inbound message to the state machine. It
// returns an error for any transition the protocol forbids; the caller is
// expected to respond with a single Error frame and close the connection.
func (s *session) handle(msg wire.Message) error {
	switch m := msg.(type) {
	case wire.IAmCameraMsg:
		if s.role != roleUnknown {
			return fmt.Errorf("%w: already identified", ErrDoubleIdentify)
		}
		s.role = roleCamera
		s.camera = world.Camera{Road: m.Road, Mile: m.Mile, Limit: m.Limit}
		return nil

	case wire.IAmDispatcherMsg:
		if s.role != roleUnknown {
			return fmt.Errorf("%w: already identified", ErrDoubleIdentify)
		}
		s.role = roleDispatcher
		s.dispatchRoads = m.Roads
		s.world.RegisterDispatcher(m.Roads, s.out)
		return nil

	case wire.PlateMsg:
		if s.role != roleCamera {
			return fmt.Errorf("%w: Plate from non-camera", ErrWrongRole)
		}
		s.world.ReportPlate(s.camera, m.Plate, m.Timestamp)
		return nil

	case wire.WantHeartbeatMsg:
		if s.heartbeatSent {
			return fmt.Errorf("%w: heartbeat already requested", ErrProtocol)
		}
		s.heartbeatSent = true
		if m.Interval != 0 {
			go heartbeat.Run(m.Interval, s.out)
		}
		return nil

	default:
		return fmt.Errorf("%w: unexpected message type %T", ErrProtocol, msg)
	}
}

// close releases any world registration held by this session. Safe to call
// multiple times.
func (s *session) close() {
	if s.role == roleDispatcher && s.dispatchRoads != nil {
		s.world.UnregisterDispatcher(s.dispatchRoads, s.out)
		s.dispatchRoads = nil
	}
}
