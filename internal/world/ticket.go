package world

import "github.com/halvorsen/speedd/internal/wire"

// Camera identifies the reporting camera's fixed position and speed limit,
// as announced once by IAmCamera at the start of a camera connection.
type Camera struct {
	Road  wire.Road
	Mile  wire.Mile
	Limit wire.Limit
}

// adjudicate compares two observations of the same plate on the same road
// and decides whether their average speed exceeds the road's limit. ok is
// false when the two observations land in the same timestamp (no elapsed
// time to compute a speed from) or the computed speed does not exceed the
// limit.
func adjudicate(camera Camera, plate wire.Plate, a, b observation) (wire.TicketMsg, bool) {
	if a.timestamp == b.timestamp {
		return wire.TicketMsg{}, false
	}

	earlier, later := a, b
	if later.timestamp < earlier.timestamp {
		earlier, later = later, earlier
	}

	var miles uint32
	if later.mile >= earlier.mile {
		miles = uint32(later.mile - earlier.mile)
	} else {
		miles = uint32(earlier.mile - later.mile)
	}

	seconds := later.timestamp - earlier.timestamp
	speedMPH := float64(miles) / float64(seconds) * 3600.0

	if speedMPH <= float64(camera.Limit) {
		return wire.TicketMsg{}, false
	}

	speed100 := clampSpeed100(speedMPH * 100.0)

	return wire.TicketMsg{
		Plate:      plate,
		Road:       camera.Road,
		Mile1:      earlier.mile,
		Timestamp1: earlier.timestamp,
		Mile2:      later.mile,
		Timestamp2: later.timestamp,
		Speed100:   speed100,
	}, true
}

// clampSpeed100 floors a speed*100 value into the uint16 range the wire
// format uses, saturating instead of wrapping on pathological inputs.
func clampSpeed100(v float64) uint16 {
	if v < 0 {
		return 0
	}
	if v > 65535 {
		return 65535
	}
	return uint16(v)
}
