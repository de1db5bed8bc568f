package insteon

import "testing"

func TestFlagsByteRoundTrip(t *testing.T) {
	for b := 0; b < 256; b++ {
		got := FlagsFromByte(byte(b)).Byte()
		if got != byte(b) {
			t.Fatalf("round trip mismatch for 0x%02x: got 0x%02x", b, got)
		}
	}
}

func TestDefaultFlags(t *testing.T) {
	f := DefaultFlags()
	if f.MessageType() != Direct {
		t.Errorf("MessageType() = %v, want Direct", f.MessageType())
	}
	if f.Extended() {
		t.Error("Extended() = true, want false")
	}
	if f.MaxHops() != 3 {
		t.Errorf("MaxHops() = %d, want 3", f.MaxHops())
	}
	if f.HopsLeft() != 3 {
		t.Errorf("HopsLeft() = %d, want 3", f.HopsLeft())
	}
	if f.Byte() != 0x0f {
		t.Errorf("Byte() = %#02x, want 0x0f", f.Byte())
	}
}

func TestFlagsAccessorsMutators(t *testing.T) {
	f := FlagsFromByte(0x00)

	f = f.WithMessageType(GroupBroadcast)
	if f.MessageType() != GroupBroadcast {
		t.Errorf("MessageType() = %v, want GroupBroadcast", f.MessageType())
	}

	f = f.WithExtended(true)
	if !f.Extended() {
		t.Error("Extended() = false after WithExtended(true)")
	}
	f = f.WithExtended(false)
	if f.Extended() {
		t.Error("Extended() = true after WithExtended(false)")
	}

	f = f.WithHopsLeft(2)
	if f.HopsLeft() != 2 {
		t.Errorf("HopsLeft() = %d, want 2", f.HopsLeft())
	}

	f = f.WithMaxHops(1)
	if f.MaxHops() != 1 {
		t.Errorf("MaxHops() = %d, want 1", f.MaxHops())
	}

	// mutating one field must not disturb the others
	if f.MessageType() != GroupBroadcast {
		t.Errorf("MessageType() disturbed: got %v", f.MessageType())
	}
}

func TestMessageTypeConstants(t *testing.T) {
	want := map[MessageType]byte{
		Direct:                  0,
		AckOfDirect:             1,
		GroupCleanupDirect:      2,
		AckOfGroupCleanupDirect: 3,
		Broadcast:               4,
		NakOfDirect:             5,
		GroupBroadcast:          6,
		NakOfGroupCleanupDirect: 7,
	}
	for mt, b := range want {
		if byte(mt) != b {
			t.Errorf("%v = %d, want %d", mt, byte(mt), b)
		}
		f := DefaultFlags().WithMessageType(mt)
		if f.MessageType() != mt {
			t.Errorf("round trip through flags byte failed for %v", mt)
		}
	}
}
