package insteon

import (
	"testing"
	"time"
)

func addr(t *testing.T, s string) Address {
	t.Helper()
	a, err := ParseAddress(s)
	if err != nil {
		t.Fatalf("ParseAddress(%q): %v", s, err)
	}
	return a
}

func hexEqual(t *testing.T, got, want []byte) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d bytes %x, want %d bytes %x", len(got), got, len(want), want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d: got %#02x, want %#02x (full: got %x want %x)", i, got[i], want[i], got, want)
		}
	}
}

// TestEncodeSendOff is scenario 1: encode send_off(22.b7.00).
func TestEncodeSendOff(t *testing.T) {
	f := SendStandard{To: addr(t, "22.B7.00"), Flags: DefaultFlags(), Cmd1: 0x13, Cmd2: 0x00}
	got, err := Encode(f)
	if err != nil {
		t.Fatal(err)
	}
	hexEqual(t, got, []byte{0x02, 0x62, 0x22, 0xb7, 0x00, 0x0f, 0x13, 0x00})
}

// TestEncodeSendOn is scenario 2: encode send_on(22.b7.00, level=0x80).
func TestEncodeSendOn(t *testing.T) {
	f := SendStandard{To: addr(t, "22.B7.00"), Flags: DefaultFlags(), Cmd1: 0x11, Cmd2: 0x80}
	got, err := Encode(f)
	if err != nil {
		t.Fatal(err)
	}
	hexEqual(t, got, []byte{0x02, 0x62, 0x22, 0xb7, 0x00, 0x0f, 0x11, 0x80})
}

// TestEncodeSendStatusRequest is scenario 3.
func TestEncodeSendStatusRequest(t *testing.T) {
	f := SendStandard{To: addr(t, "22.B7.00"), Flags: DefaultFlags(), Cmd1: 0x19, Cmd2: 0x00}
	got, err := Encode(f)
	if err != nil {
		t.Fatal(err)
	}
	hexEqual(t, got, []byte{0x02, 0x62, 0x22, 0xb7, 0x00, 0x0f, 0x19, 0x00})
}

// TestDecodeStatusEchoAndAck is scenarios 4 and 5: the PLM echoes the
// status request, then the device's direct ACK carries the level.
func TestDecodeStatusEchoAndAck(t *testing.T) {
	var dec Decoder

	frames, err := dec.Feed([]byte{0x02, 0x62, 0x22, 0xb7, 0x00, 0x0f, 0x19, 0x00, 0x06})
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	echo, ok := frames[0].(SendEcho)
	if !ok {
		t.Fatalf("frame is %T, want SendEcho", frames[0])
	}
	want := SendEcho{To: addr(t, "22.B7.00"), Flags: FlagsFromByte(0x0f), Cmd1: 0x19, Cmd2: 0x00, Ack: true}
	if echo != want {
		t.Fatalf("got %+v, want %+v", echo, want)
	}

	dev := &Device{Address: echo.To}
	if _, err := dev.Arm(Expectation{Flags: echo.Flags, Cmd1: echo.Cmd1, Cmd2: echo.Cmd2}, time.Minute); err != nil {
		t.Fatalf("Arm: %v", err)
	}

	frames, err = dec.Feed([]byte{0x02, 0x50, 0x22, 0xb7, 0x00, 0x11, 0x22, 0x33, 0x2b, 0x05, 0xcc})
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	rs, ok := frames[0].(ReceiveStandard)
	if !ok {
		t.Fatalf("frame is %T, want ReceiveStandard", frames[0])
	}
	if rs.Flags.MessageType() != AckOfDirect {
		t.Fatalf("MessageType() = %v, want AckOfDirect", rs.Flags.MessageType())
	}

	report := dev.Dispatch(rs.To, rs.Flags, rs.Cmd1, rs.Cmd2, nil)
	if report.Kind != ReportStatus {
		t.Fatalf("report.Kind = %v, want ReportStatus", report.Kind)
	}
	if report.DBDelta != 0x05 {
		t.Errorf("DBDelta = %#02x, want 0x05", report.DBDelta)
	}
	if report.Percent != 80 {
		t.Errorf("Percent = %d, want 80", report.Percent)
	}
	if _, ok := dev.Pending(); ok {
		t.Error("expectation still armed after matching ACK")
	}
}

// TestDecodeAllLinkWalk is scenario 6's frame-level half: ACK echo, a
// record, and a NAK echo terminating the walk.
func TestDecodeAllLinkWalk(t *testing.T) {
	var dec Decoder

	frames, err := dec.Feed([]byte{0x02, 0x69, 0x06})
	if err != nil {
		t.Fatal(err)
	}
	if len(frames) != 1 {
		t.Fatalf("got %d frames", len(frames))
	}
	echo, ok := frames[0].(AllLinkRecordEcho)
	if !ok || !echo.Ack || echo.Opcode != 0x69 {
		t.Fatalf("got %+v", frames[0])
	}

	frames, err = dec.Feed([]byte{0x02, 0x57, 0x02, 0x01, 0x11, 0x22, 0x33, 0xff, 0xff, 0xff})
	if err != nil {
		t.Fatal(err)
	}
	if len(frames) != 1 {
		t.Fatalf("got %d frames", len(frames))
	}
	rec, ok := frames[0].(AllLinkRecord)
	if !ok {
		t.Fatalf("frame is %T, want AllLinkRecord", frames[0])
	}
	if rec.Group != 0x01 || rec.Addr != (Address{0x11, 0x22, 0x33}) {
		t.Fatalf("got %+v", rec)
	}

	frames, err = dec.Feed([]byte{0x02, 0x6a, 0x15})
	if err != nil {
		t.Fatal(err)
	}
	if len(frames) != 1 {
		t.Fatalf("got %d frames", len(frames))
	}
	echo, ok = frames[0].(AllLinkRecordEcho)
	if !ok || echo.Ack || echo.Opcode != 0x6a {
		t.Fatalf("got %+v", frames[0])
	}
}

func TestDecodeGetIMInfo(t *testing.T) {
	var dec Decoder
	frames, err := dec.Feed([]byte{0x02, 0x60, 0x11, 0x22, 0x33, 0x01, 0x02, 0x03, 0x00, 0x06})
	if err != nil {
		t.Fatal(err)
	}
	if len(frames) != 1 {
		t.Fatalf("got %d frames", len(frames))
	}
	info, ok := frames[0].(IMInfo)
	if !ok {
		t.Fatalf("frame is %T, want IMInfo", frames[0])
	}
	want := IMInfo{Address: Address{0x11, 0x22, 0x33}, Category: 0x01, Subcategory: 0x02, Firmware: 0x03, Reserved: 0x00, Ack: true}
	if info != want {
		t.Fatalf("got %+v, want %+v", info, want)
	}
}

// TestDecoderResync is the §8 decoder resync invariant: garbage bytes
// between two valid frames must not prevent either from decoding, and
// order is preserved.
func TestDecoderResync(t *testing.T) {
	var dec Decoder
	stream := []byte{0x02, 0x60, 0x11, 0x22, 0x33, 0x01, 0x02, 0x03, 0x00, 0x06}
	garbage := []byte{0xaa, 0xbb, 0xcc, 0x99, 0x01}
	second := []byte{0x02, 0x69, 0x06}

	input := append(append(append([]byte{}, stream...), garbage...), second...)
	frames, err := dec.Feed(input)
	if err == nil {
		t.Fatal("expected a FramingError for the injected garbage")
	}
	if _, ok := err.(*FramingError); !ok {
		t.Fatalf("got error %T, want *FramingError", err)
	}
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if _, ok := frames[0].(IMInfo); !ok {
		t.Fatalf("frames[0] is %T, want IMInfo", frames[0])
	}
	if _, ok := frames[1].(AllLinkRecordEcho); !ok {
		t.Fatalf("frames[1] is %T, want AllLinkRecordEcho", frames[1])
	}
}

// TestEncodeRoundTrip checks that an encoded host→PLM send, echoed back
// verbatim with an ACK byte, decodes to a SendEcho carrying the same
// cmd1/cmd2 and Ack=true.
func TestEncodeRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		send Frame
		cmd1 byte
		cmd2 byte
	}{
		{"standard", SendStandard{To: addr(t, "22.B7.00"), Flags: DefaultFlags(), Cmd1: 0x11, Cmd2: 0x80}, 0x11, 0x80},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			encoded, err := Encode(c.send)
			if err != nil {
				t.Fatal(err)
			}
			echoBytes := append(append([]byte{}, encoded...), 0x06)
			var dec Decoder
			frames, err := dec.Feed(echoBytes)
			if err != nil {
				t.Fatal(err)
			}
			if len(frames) != 1 {
				t.Fatalf("got %d frames", len(frames))
			}
			echo, ok := frames[0].(SendEcho)
			if !ok {
				t.Fatalf("frame is %T, want SendEcho", frames[0])
			}
			if echo.Cmd1 != c.cmd1 || echo.Cmd2 != c.cmd2 || !echo.Ack {
				t.Fatalf("got %+v", echo)
			}
		})
	}
}

func TestEncodeExtended(t *testing.T) {
	ud, err := padUserData([]byte{0x01, 0x02, 0x03})
	if err != nil {
		t.Fatal(err)
	}
	f := SendExtended{To: addr(t, "22.B7.00"), Flags: DefaultFlags(), Cmd1: 0x2e, Cmd2: 0x00, UserData: ud}
	got, err := Encode(f)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 22 {
		t.Fatalf("got %d bytes, want 22", len(got))
	}
	if got[5]&extendedBit == 0 {
		t.Error("extended bit not set in encoded flags byte")
	}
	if got[8] != 0x01 || got[9] != 0x02 || got[10] != 0x03 {
		t.Fatalf("user data not encoded correctly: %x", got[6:22])
	}
}
