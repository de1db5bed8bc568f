package insteon

import "testing"

func TestParseAddressRoundTrip(t *testing.T) {
	cases := []Address{
		{0x22, 0xb7, 0x00},
		{0x00, 0x00, 0x00},
		{0xff, 0xff, 0xff},
		{0x0a, 0x1b, 0x2c},
	}
	for _, a := range cases {
		rendered := a.String()
		got, err := ParseAddress(rendered)
		if err != nil {
			t.Fatalf("ParseAddress(render(%v)) = %q: %v", a, rendered, err)
		}
		if got != a {
			t.Fatalf("round trip mismatch: parsed %v, want %v", got, a)
		}
	}
}

func TestParseAddressCaseInsensitive(t *testing.T) {
	a, err := ParseAddress("22.b7.00")
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	if a != (Address{0x22, 0xb7, 0x00}) {
		t.Fatalf("got %v", a)
	}
}

func TestParseAddressRejectsMalformed(t *testing.T) {
	cases := []string{"", "22.B7", "22.B7.00.11", "GG.00.00", "2.B7.00"}
	for _, text := range cases {
		if _, err := ParseAddress(text); err == nil {
			t.Errorf("ParseAddress(%q): expected error, got nil", text)
		}
	}
}

func TestAddressFromBytes(t *testing.T) {
	a, err := AddressFromBytes([]byte{0x22, 0xb7, 0x00})
	if err != nil {
		t.Fatalf("AddressFromBytes: %v", err)
	}
	if a.String() != "22.B7.00" {
		t.Fatalf("got %s, want 22.B7.00", a)
	}
	if _, err := AddressFromBytes([]byte{0x01, 0x02}); err == nil {
		t.Fatal("expected error for short byte slice")
	}
}

func TestAddressComponents(t *testing.T) {
	a, err := ParseAddress("22.B7.01")
	if err != nil {
		t.Fatal(err)
	}
	if a.High() != 0x22 || a.Middle() != 0xb7 || a.Low() != 0x01 {
		t.Fatalf("unexpected components: %#v", a)
	}
	if got := a.Bytes(); len(got) != 3 || got[0] != 0x22 || got[1] != 0xb7 || got[2] != 0x01 {
		t.Fatalf("unexpected Bytes(): %v", got)
	}
}
