package insteon

import "fmt"

// ParseError signals malformed user input to the address or flags
// constructors.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("insteon: parse error: %s: %q", e.Reason, e.Input)
}

// FramingError signals an undecodable byte on the wire. It is recoverable:
// the decoder resynchronizes by dropping the offending byte.
type FramingError struct {
	Offset int
	Byte   byte
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("insteon: framing error: unrecognized opcode 0x%02x at offset %d", e.Byte, e.Offset)
}

// EncodingError signals a programmer error: caller-supplied user data
// longer than the 14 bytes an extended message allows, a frame kind that
// is not host→PLM encodable, or a status request for a device that
// already has an outstanding expectation.
type EncodingError struct {
	Reason string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("insteon: encoding error: %s", e.Reason)
}

// TransportError wraps an underlying transport failure. It is fatal for
// the session: Closed() is closed, the pacer is paused, and calls blocked
// awaiting a PLM reply return this error. The pacer's own waiters are not
// failed by it; they are failed only by Session.Close.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("insteon: transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Timeout signals that a device expectation was not satisfied within the
// configured bound. It is non-fatal and scoped to a single device.
type Timeout struct {
	Address Address
}

func (e *Timeout) Error() string {
	return fmt.Sprintf("insteon: timeout awaiting ack from %s", e.Address)
}

// PlmNakError signals that the PLM NAK'd a submitted command in its echo.
// The submitting operation fails but the session continues.
type PlmNakError struct {
	Cmd1 byte
}

func (e *PlmNakError) Error() string {
	return fmt.Sprintf("insteon: PLM NAK for command 0x%02x", e.Cmd1)
}

// ErrNotReady is returned by session verbs when the session has been
// closed without a transport error (Session.Close). Verbs invoked before
// the session is ready block until it is, or until their ctx ends.
var ErrNotReady = &notReadyError{}

type notReadyError struct{}

func (*notReadyError) Error() string { return "insteon: session not ready" }
