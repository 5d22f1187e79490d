// Package wire implements the speed-daemon binary framing protocol: message
// types, their tag bytes, and an incremental encoder/decoder pair.
package wire

// Road, Mile and Limit are all 16-bit fields on the wire; Timestamp is
// 32-bit. Plate is treated as an opaque byte string (1-255 bytes) and is
// kept as a Go string since the protocol only ever copies it, never
// interprets it.
type (
	Road      = uint16
	Mile      = uint16
	Limit     = uint16
	Timestamp = uint32
	Plate     = string
)

// Day is the calendar-day unit used by the one-ticket-per-plate-per-day
// rule: floor(timestamp / 86400).
type Day uint32

// SecondsPerDay is the width of one Day bucket in seconds.
const SecondsPerDay = 86400

// DayOf converts a timestamp to its calendar day.
func DayOf(ts Timestamp) Day { return Day(ts / SecondsPerDay) }

// Tag identifies a message's wire type. Tags occupy one shared byte space
// for both inbound (client→server) and outbound (server→client) messages;
// receiving a tag intended for the other direction is a protocol error.
type Tag byte

const (
	TagError         Tag = 0x10
	TagPlate         Tag = 0x20
	TagTicket        Tag = 0x21
	TagWantHeartbeat Tag = 0x40
	TagHeartbeat     Tag = 0x41
	TagIAmCamera     Tag = 0x80
	TagIAmDispatcher Tag = 0x81
)

// Message is implemented by every decodable/encodable frame payload.
type Message interface {
	Tag() Tag
}

// ErrorMsg is server→client: a short human-readable reason, then close.
type ErrorMsg struct {
	Reason string
}

func (ErrorMsg) Tag() Tag { return TagError }

// PlateMsg is client→server: a camera's observation of a plate.
type PlateMsg struct {
	Plate     Plate
	Timestamp Timestamp
}

func (PlateMsg) Tag() Tag { return TagPlate }

// TicketMsg is server→client: an adjudicated speeding violation.
type TicketMsg struct {
	Plate      Plate
	Road       Road
	Mile1      Mile
	Timestamp1 Timestamp
	Mile2      Mile
	Timestamp2 Timestamp
	Speed100   uint16 // mph * 100, clamped to uint16 range
}

func (TicketMsg) Tag() Tag { return TagTicket }

// WantHeartbeatMsg is client→server: interval is in deciseconds (100ms
// units); zero means "no heartbeat".
type WantHeartbeatMsg struct {
	Interval uint32
}

func (WantHeartbeatMsg) Tag() Tag { return TagWantHeartbeat }

// HeartbeatMsg is server→client, empty payload.
type HeartbeatMsg struct{}

func (HeartbeatMsg) Tag() Tag { return TagHeartbeat }

// IAmCameraMsg is client→server: binds the connection's role to Camera.
type IAmCameraMsg struct {
	Road  Road
	Mile  Mile
	Limit Limit
}

func (IAmCameraMsg) Tag() Tag { return TagIAmCamera }

// IAmDispatcherMsg is client→server: binds the connection's role to
// Dispatcher for the given set of roads.
type IAmDispatcherMsg struct {
	Roads []Road
}

func (IAmDispatcherMsg) Tag() Tag { return TagIAmDispatcher }
