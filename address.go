package insteon

import (
	"fmt"
	"strconv"
	"strings"
)

// Address is a 3-byte Insteon device identifier (high, middle, low).
// Addresses are immutable once constructed.
type Address [3]byte

// ParseAddress parses the canonical "HH.MM.LL" hexadecimal textual form.
// The match is case-insensitive; each component must be exactly two hex
// digits in [0,255].
func ParseAddress(text string) (Address, error) {
	parts := strings.Split(text, ".")
	if len(parts) != 3 {
		return Address{}, &ParseError{Input: text, Reason: "expected HH.MM.LL"}
	}
	var a Address
	for i, p := range parts {
		if len(p) != 2 {
			return Address{}, &ParseError{Input: text, Reason: "component must be 2 hex digits"}
		}
		v, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return Address{}, &ParseError{Input: text, Reason: "invalid hex component: " + p}
		}
		a[i] = byte(v)
	}
	return a, nil
}

// AddressFromBytes accepts exactly three bytes.
func AddressFromBytes(b []byte) (Address, error) {
	if len(b) != 3 {
		return Address{}, &ParseError{Input: fmt.Sprintf("%v", b), Reason: "address requires exactly 3 bytes"}
	}
	return Address{b[0], b[1], b[2]}, nil
}

// String renders the address in its canonical uppercase "HH.MM.LL" form.
func (a Address) String() string {
	return fmt.Sprintf("%02X.%02X.%02X", a[0], a[1], a[2])
}

// Bytes returns the 3-byte wire representation.
func (a Address) Bytes() []byte {
	return []byte{a[0], a[1], a[2]}
}

// High, Middle and Low expose the individual address bytes; several
// broadcast messages (spec.md §4.4) re-use these as identity data rather
// than as addressing.
func (a Address) High() byte   { return a[0] }
func (a Address) Middle() byte { return a[1] }
func (a Address) Low() byte    { return a[2] }
