package insteon

// MessageType is the 3-bit tag held in the top bits of a MessageFlags
// byte (spec.md §4.2).
type MessageType byte

const (
	Direct                  MessageType = 0
	AckOfDirect             MessageType = 1
	GroupCleanupDirect      MessageType = 2
	AckOfGroupCleanupDirect MessageType = 3
	Broadcast               MessageType = 4
	NakOfDirect             MessageType = 5
	GroupBroadcast          MessageType = 6
	NakOfGroupCleanupDirect MessageType = 7
)

// bit layout, matching original_source/src/txHA/insteon/__init__.py's
// InsteonMessageFlags bitfield and spec.md §3:
//
//	bits [5..8) message type (3 bits)
//	bit  [4]    extended
//	bits [2..4) hops left (2 bits)
//	bits [0..2) max hops (2 bits)
const (
	messageTypeShift = 5
	messageTypeMask  = 0x07
	extendedBit      = 1 << 4
	hopsLeftShift    = 2
	hopsLeftMask     = 0x03
	maxHopsShift     = 0
	maxHopsMask      = 0x03
)

// MessageFlags is the single flags byte attached to every standard and
// extended Insteon message.
type MessageFlags byte

// DefaultFlags returns the default flags used when a session verb omits
// them explicitly (spec.md §4.5): Direct, max hops 3, hops left 3, not
// extended.
func DefaultFlags() MessageFlags {
	var f MessageFlags
	f = f.WithMessageType(Direct)
	f = f.WithMaxHops(3)
	f = f.WithHopsLeft(3)
	return f
}

// FlagsFromByte interprets a raw byte as MessageFlags.
func FlagsFromByte(b byte) MessageFlags {
	return MessageFlags(b)
}

// Byte renders the flags back to their wire form.
func (f MessageFlags) Byte() byte {
	return byte(f)
}

func (f MessageFlags) MessageType() MessageType {
	return MessageType((byte(f) >> messageTypeShift) & messageTypeMask)
}

func (f MessageFlags) WithMessageType(t MessageType) MessageFlags {
	b := byte(f) &^ (messageTypeMask << messageTypeShift)
	b |= (byte(t) & messageTypeMask) << messageTypeShift
	return MessageFlags(b)
}

func (f MessageFlags) Extended() bool {
	return byte(f)&extendedBit != 0
}

func (f MessageFlags) WithExtended(on bool) MessageFlags {
	b := byte(f) &^ extendedBit
	if on {
		b |= extendedBit
	}
	return MessageFlags(b)
}

func (f MessageFlags) HopsLeft() byte {
	return (byte(f) >> hopsLeftShift) & hopsLeftMask
}

func (f MessageFlags) WithHopsLeft(n byte) MessageFlags {
	b := byte(f) &^ (hopsLeftMask << hopsLeftShift)
	b |= (n & hopsLeftMask) << hopsLeftShift
	return MessageFlags(b)
}

func (f MessageFlags) MaxHops() byte {
	return (byte(f) >> maxHopsShift) & maxHopsMask
}

func (f MessageFlags) WithMaxHops(n byte) MessageFlags {
	b := byte(f) &^ (maxHopsMask << maxHopsShift)
	b |= (n & maxHopsMask) << maxHopsShift
	return MessageFlags(b)
}
