package wire

import (
	"bytes"
	"errors"
	"testing"
)

func TestDecode_Plate(t *testing.T) {
	data := []byte{0x20, 0x04, 0x55, 0x4e, 0x31, 0x58, 0x00, 0x00, 0x03, 0xe8}
	buf := bytes.NewBuffer(data)
	msg, err := Decode(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	plate, ok := msg.(PlateMsg)
	if !ok {
		t.Fatalf("wrong type %T", msg)
	}
	if plate.Plate != "UN1X" || plate.Timestamp != 1000 {
		t.Fatalf("got %+v", plate)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected buffer drained, got %d bytes left", buf.Len())
	}
}

func TestDecode_WantHeartbeat(t *testing.T) {
	data := []byte{0x40, 0x00, 0x00, 0x04, 0xdb}
	buf := bytes.NewBuffer(data)
	msg, err := Decode(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	wh, ok := msg.(WantHeartbeatMsg)
	if !ok || wh.Interval != 1243 {
		t.Fatalf("got %+v (%T)", msg, msg)
	}
}

func TestDecode_IAmCamera(t *testing.T) {
	data := []byte{0x80, 0x01, 0x70, 0x04, 0xd2, 0x00, 0x28}
	buf := bytes.NewBuffer(data)
	msg, err := Decode(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	cam, ok := msg.(IAmCameraMsg)
	if !ok {
		t.Fatalf("wrong type %T", msg)
	}
	if cam.Road != 368 || cam.Mile != 1234 || cam.Limit != 40 {
		t.Fatalf("got %+v", cam)
	}
}

func TestDecode_IAmDispatcher(t *testing.T) {
	data := []byte{0x81, 0x03, 0x00, 0x42, 0x01, 0x70, 0x13, 0x88}
	buf := bytes.NewBuffer(data)
	msg, err := Decode(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	d, ok := msg.(IAmDispatcherMsg)
	if !ok {
		t.Fatalf("wrong type %T", msg)
	}
	want := []Road{66, 368, 5000}
	if len(d.Roads) != len(want) {
		t.Fatalf("got %v", d.Roads)
	}
	for i := range want {
		if d.Roads[i] != want[i] {
			t.Fatalf("road %d: got %d want %d", i, d.Roads[i], want[i])
		}
	}
}

func TestDecode_Incomplete_LeavesBufferUntouched(t *testing.T) {
	// Every proper prefix of a full IAmCamera frame, from empty up to the
	// frame minus its last byte.
	full := []byte{0x80, 0x01, 0x70, 0x04, 0xd2, 0x00, 0x28}
	for n := 0; n < len(full); n++ {
		buf := bytes.NewBuffer(append([]byte(nil), full[:n]...))
		before := append([]byte(nil), buf.Bytes()...)
		_, err := Decode(buf)
		if !errors.Is(err, ErrIncomplete) {
			t.Fatalf("prefix len %d: expected ErrIncomplete, got %v", n, err)
		}
		if !bytes.Equal(buf.Bytes(), before) {
			t.Fatalf("prefix len %d: buffer was mutated on incomplete decode", n)
		}
	}
}

func TestDecode_ReservedTag(t *testing.T) {
	for _, tag := range []byte{byte(TagError), byte(TagTicket), byte(TagHeartbeat)} {
		buf := bytes.NewBuffer([]byte{tag})
		_, err := Decode(buf)
		if !errors.Is(err, ErrReservedTag) {
			t.Fatalf("tag 0x%x: expected ErrReservedTag, got %v", tag, err)
		}
	}
}

func TestDecode_UnknownTag(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0xFF})
	_, err := Decode(buf)
	if !errors.Is(err, ErrUnknownTag) {
		t.Fatalf("expected ErrUnknownTag, got %v", err)
	}
}

func TestEncode_Ticket(t *testing.T) {
	msg := TicketMsg{
		Plate:      "RE05BKG",
		Road:       368,
		Mile1:      1234,
		Timestamp1: 1000000,
		Mile2:      1235,
		Timestamp2: 1000060,
		Speed100:   6000,
	}
	var buf bytes.Buffer
	if err := Encode(&buf, msg); err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := []byte{
		0x21, 0x07, 0x52, 0x45, 0x30, 0x35, 0x42, 0x4b, 0x47,
		0x01, 0x70, 0x04, 0xd2, 0x00, 0x0f, 0x42, 0x40, 0x04, 0xd3, 0x00, 0x0f, 0x42, 0x7c, 0x17, 0x70,
	}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("got % x, want % x", buf.Bytes(), want)
	}
}

func TestEncode_Error(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, ErrorMsg{Reason: "illegal msg"}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := []byte("\x10\x0billegal msg")
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("got % x, want % x", buf.Bytes(), want)
	}
}

func TestEncode_Heartbeat(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, HeartbeatMsg{}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), []byte{0x41}) {
		t.Fatalf("got % x", buf.Bytes())
	}
}

func TestRoundTrip_Plate(t *testing.T) {
	in := PlateMsg{Plate: "UN1X", Timestamp: 1000}
	var buf bytes.Buffer
	if err := Encode(&buf, in); err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out != Message(in) {
		t.Fatalf("round trip mismatch: got %+v want %+v", out, in)
	}
}

func TestDecode_PlateBoundaryLengths(t *testing.T) {
	for _, n := range []int{0, 255} {
		plate := make([]byte, n)
		for i := range plate {
			plate[i] = byte('A' + i%26)
		}
		in := PlateMsg{Plate: string(plate), Timestamp: 42}
		var buf bytes.Buffer
		if err := Encode(&buf, in); err != nil {
			t.Fatalf("encode len %d: %v", n, err)
		}
		out, err := Decode(&buf)
		if err != nil {
			t.Fatalf("decode len %d: %v", n, err)
		}
		pm := out.(PlateMsg)
		if len(pm.Plate) != n {
			t.Fatalf("len %d: got plate len %d", n, len(pm.Plate))
		}
	}
}

// Simulates a byte-at-a-time arrival on the wire: feed the decoder one
// extra byte at a time until it stops reporting ErrIncomplete.
func TestDecode_PartialArrival(t *testing.T) {
	full := []byte{0x81, 0x03, 0x00, 0x42, 0x01, 0x70, 0x13, 0x88}
	buf := &bytes.Buffer{}
	var msg Message
	var err error
	for i := 0; i < len(full); i++ {
		buf.WriteByte(full[i])
		msg, err = Decode(buf)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrIncomplete) {
			t.Fatalf("unexpected error mid-stream: %v", err)
		}
	}
	if err != nil {
		t.Fatalf("never completed: %v", err)
	}
	d := msg.(IAmDispatcherMsg)
	if len(d.Roads) != 3 {
		t.Fatalf("got %+v", d)
	}
}
