package wire

import (
	"bytes"
	"encoding/binary"
	"io"
)

// Decode attempts to parse one complete frame from the front of buf.
//
// On success it returns the message and consumes exactly the bytes that
// made up the frame (via buf.Next). If buf does not yet hold a complete
// frame it returns ErrIncomplete and leaves buf entirely untouched, so the
// caller can append more bytes read from the connection and retry. Any
// other error is terminal: the tag byte is malformed, unknown, or reserved
// for the opposite direction, and the caller should send a single Error
// frame and close the connection.
func Decode(buf *bytes.Buffer) (Message, error) {
	data := buf.Bytes()
	if len(data) < 1 {
		return nil, ErrIncomplete
	}

	switch Tag(data[0]) {
	case TagWantHeartbeat:
		const n = 1 + 4
		if len(data) < n {
			return nil, ErrIncomplete
		}
		msg := WantHeartbeatMsg{Interval: binary.BigEndian.Uint32(data[1:5])}
		buf.Next(n)
		return msg, nil

	case TagPlate:
		if len(data) < 2 {
			return nil, ErrIncomplete
		}
		plateLen := int(data[1])
		total := 1 + 1 + plateLen + 4
		if len(data) < total {
			return nil, ErrIncomplete
		}
		plate := string(data[2 : 2+plateLen])
		ts := binary.BigEndian.Uint32(data[2+plateLen : total])
		buf.Next(total)
		return PlateMsg{Plate: plate, Timestamp: ts}, nil

	case TagIAmCamera:
		const n = 1 + 2 + 2 + 2
		if len(data) < n {
			return nil, ErrIncomplete
		}
		msg := IAmCameraMsg{
			Road:  binary.BigEndian.Uint16(data[1:3]),
			Mile:  binary.BigEndian.Uint16(data[3:5]),
			Limit: binary.BigEndian.Uint16(data[5:7]),
		}
		buf.Next(n)
		return msg, nil

	case TagIAmDispatcher:
		if len(data) < 2 {
			return nil, ErrIncomplete
		}
		numRoads := int(data[1])
		total := 1 + 1 + numRoads*2
		if len(data) < total {
			return nil, ErrIncomplete
		}
		roads := make([]Road, numRoads)
		for i := 0; i < numRoads; i++ {
			off := 2 + i*2
			roads[i] = binary.BigEndian.Uint16(data[off : off+2])
		}
		buf.Next(total)
		return IAmDispatcherMsg{Roads: roads}, nil

	case TagError, TagTicket, TagHeartbeat:
		return nil, ErrReservedTag

	default:
		return nil, ErrUnknownTag
	}
}

// Encode writes the wire representation of m to w.
func Encode(w io.Writer, m Message) error {
	var buf bytes.Buffer
	switch msg := m.(type) {
	case ErrorMsg:
		buf.Grow(2 + len(msg.Reason))
		buf.WriteByte(byte(TagError))
		buf.WriteByte(byte(len(msg.Reason)))
		buf.WriteString(msg.Reason)

	case TicketMsg:
		buf.Grow(1 + 1 + len(msg.Plate) + 2 + 2 + 4 + 2 + 4 + 2)
		buf.WriteByte(byte(TagTicket))
		buf.WriteByte(byte(len(msg.Plate)))
		buf.WriteString(msg.Plate)
		writeU16(&buf, msg.Road)
		writeU16(&buf, msg.Mile1)
		writeU32(&buf, msg.Timestamp1)
		writeU16(&buf, msg.Mile2)
		writeU32(&buf, msg.Timestamp2)
		writeU16(&buf, msg.Speed100)

	case HeartbeatMsg:
		buf.WriteByte(byte(TagHeartbeat))

	case PlateMsg:
		buf.Grow(1 + 1 + len(msg.Plate) + 4)
		buf.WriteByte(byte(TagPlate))
		buf.WriteByte(byte(len(msg.Plate)))
		buf.WriteString(msg.Plate)
		writeU32(&buf, msg.Timestamp)

	case WantHeartbeatMsg:
		buf.Grow(1 + 4)
		buf.WriteByte(byte(TagWantHeartbeat))
		writeU32(&buf, msg.Interval)

	case IAmCameraMsg:
		buf.Grow(1 + 2 + 2 + 2)
		buf.WriteByte(byte(TagIAmCamera))
		writeU16(&buf, msg.Road)
		writeU16(&buf, msg.Mile)
		writeU16(&buf, msg.Limit)

	case IAmDispatcherMsg:
		buf.Grow(1 + 1 + len(msg.Roads)*2)
		buf.WriteByte(byte(TagIAmDispatcher))
		buf.WriteByte(byte(len(msg.Roads)))
		for _, r := range msg.Roads {
			writeU16(&buf, r)
		}

	default:
		return wrapProtocol("unencodable message type")
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}
