package insteon

import (
	"bytes"
)

// Frame is a tagged variant over every wire message kind in spec.md §3/§4.2.
type Frame interface {
	isFrame()
}

// SendStandard is a host→PLM standard-length send command.
type SendStandard struct {
	To    Address
	Flags MessageFlags
	Cmd1  byte
	Cmd2  byte
}

func (SendStandard) isFrame() {}

// SendExtended is a host→PLM extended send command carrying 14 bytes of
// user data.
type SendExtended struct {
	To       Address
	Flags    MessageFlags
	Cmd1     byte
	Cmd2     byte
	UserData [14]byte
}

func (SendExtended) isFrame() {}

// GetFirstAllLink requests the first record of the PLM's all-link database.
type GetFirstAllLink struct{}

func (GetFirstAllLink) isFrame() {}

// GetNextAllLink requests the next record of the PLM's all-link database.
type GetNextAllLink struct{}

func (GetNextAllLink) isFrame() {}

// GetIMInfo requests the PLM's own identity (category/subcategory/firmware).
type GetIMInfo struct{}

func (GetIMInfo) isFrame() {}

// SendEcho is the PLM's echo of a previously submitted Send frame,
// terminated with a 1-byte ACK (0x06) or NAK (0x15).
type SendEcho struct {
	To       Address
	Flags    MessageFlags
	Cmd1     byte
	Cmd2     byte
	Extended bool
	UserData [14]byte
	Ack      bool
}

func (SendEcho) isFrame() {}

// ReceiveStandard is an inbound standard-length device report.
type ReceiveStandard struct {
	From  Address
	To    Address
	Flags MessageFlags
	Cmd1  byte
	Cmd2  byte
}

func (ReceiveStandard) isFrame() {}

// ReceiveExtended is an inbound extended-length device report.
type ReceiveExtended struct {
	From     Address
	To       Address
	Flags    MessageFlags
	Cmd1     byte
	Cmd2     byte
	UserData [14]byte
}

func (ReceiveExtended) isFrame() {}

// AllLinkRecord is one row of the PLM's all-link database, returned in
// response to GetFirstAllLink/GetNextAllLink.
type AllLinkRecord struct {
	LinkFlags byte
	Group     byte
	Addr      Address
	LinkData  [3]byte
}

func (AllLinkRecord) isFrame() {}

// AllLinkRecordEcho is the PLM's echo (ACK/NAK) of a GetFirstAllLink or
// GetNextAllLink request.
type AllLinkRecordEcho struct {
	Opcode byte // 0x69 or 0x6a
	Ack    bool
}

func (AllLinkRecordEcho) isFrame() {}

// IMInfo is the PLM's reply to GetIMInfo: the PLM's own identity plus a
// trailing ACK/NAK byte (spec.md §4.2: "7+1 reply").
type IMInfo struct {
	Address     Address
	Category    byte
	Subcategory byte
	Firmware    byte
	Reserved    byte
	Ack         bool
}

func (IMInfo) isFrame() {}

// Encode renders a host→PLM frame as its wire bytes. Only the host→PLM
// kinds are encodable; others are a programmer error.
func Encode(f Frame) ([]byte, error) {
	switch v := f.(type) {
	case SendStandard:
		return put(8, byte(0x02), byte(0x62), v.To, v.Flags.WithExtended(false), v.Cmd1, v.Cmd2), nil
	case SendExtended:
		flags := v.Flags.WithExtended(true)
		buf := make([]byte, 0, 22)
		buf = append(buf, 0x02, 0x62)
		buf = append(buf, v.To.Bytes()...)
		buf = append(buf, flags.Byte(), v.Cmd1, v.Cmd2)
		buf = append(buf, v.UserData[:]...)
		return buf, nil
	case GetFirstAllLink:
		return []byte{0x02, 0x69}, nil
	case GetNextAllLink:
		return []byte{0x02, 0x6a}, nil
	case GetIMInfo:
		return []byte{0x02, 0x60}, nil
	default:
		return nil, &EncodingError{Reason: "frame kind is not host→PLM encodable"}
	}
}

// opcode byte values, keyed off the second byte following the leading
// 0x02 (spec.md §4.2).
const (
	opReceiveStandard = 0x50
	opReceiveExtended = 0x51
	opAllLinkRecord   = 0x57
	opGetIMInfo       = 0x60
	opSend            = 0x62
	opGetFirstAllLink = 0x69
	opGetNextAllLink  = 0x6a
)

// Decoder is a restartable byte-stream frame decoder. Bytes accumulate in
// an internal buffer; Feed may be called repeatedly with arbitrary
// chunking and returns every complete frame recognized so far.
type Decoder struct {
	buf bytes.Buffer
}

// Feed appends chunk to the internal buffer and extracts every complete
// frame it can. Unrecognized opcodes are reported as a FramingError and
// the single offending leading 0x02 is dropped so decoding can resume
// from the next byte (spec.md §4.2).
func (d *Decoder) Feed(chunk []byte) ([]Frame, error) {
	d.buf.Write(chunk)

	var frames []Frame
	var firstErr error
	for {
		f, n, err := decodeOne(d.buf.Bytes())
		switch {
		case err != nil:
			if firstErr == nil {
				firstErr = err
			}
			d.buf.Next(1)
			continue
		case n == 0:
			return frames, firstErr
		default:
			frames = append(frames, f)
			d.buf.Next(n)
		}
	}
}

// decodeOne attempts to decode exactly one frame from the head of data.
// It returns n==0 when more bytes are needed (not an error); it returns
// a non-nil error when the leading byte(s) are not a recognizable opcode,
// in which case the caller resyncs by dropping one byte.
func decodeOne(data []byte) (Frame, int, error) {
	// find the next frame-start marker
	i := bytes.IndexByte(data, 0x02)
	if i < 0 {
		return nil, 0, nil
	}
	if i > 0 {
		// garbage before the marker; resync one byte at a time by
		// letting the caller drop data[0].
		return nil, 0, &FramingError{Offset: 0, Byte: data[0]}
	}
	if len(data) < 2 {
		return nil, 0, nil
	}
	code := data[1]
	switch code {
	case opReceiveStandard:
		const total = 2 + 9
		if len(data) < total {
			return nil, 0, nil
		}
		body := data[2:total]
		return ReceiveStandard{
			From:  Address{body[0], body[1], body[2]},
			To:    Address{body[3], body[4], body[5]},
			Flags: FlagsFromByte(body[6]),
			Cmd1:  body[7],
			Cmd2:  body[8],
		}, total, nil

	case opReceiveExtended:
		const total = 2 + 23
		if len(data) < total {
			return nil, 0, nil
		}
		body := data[2:total]
		var ud [14]byte
		copy(ud[:], body[9:23])
		return ReceiveExtended{
			From:     Address{body[0], body[1], body[2]},
			To:       Address{body[3], body[4], body[5]},
			Flags:    FlagsFromByte(body[6]),
			Cmd1:     body[7],
			Cmd2:     body[8],
			UserData: ud,
		}, total, nil

	case opAllLinkRecord:
		const total = 2 + 8
		if len(data) < total {
			return nil, 0, nil
		}
		body := data[2:total]
		return AllLinkRecord{
			LinkFlags: body[0],
			Group:     body[1],
			Addr:      Address{body[2], body[3], body[4]},
			LinkData:  [3]byte{body[5], body[6], body[7]},
		}, total, nil

	case opGetIMInfo:
		// reply to a GetIMInfo send: address(3) + category(1) +
		// subcategory(1) + firmware(1) + reserved(1), then a
		// trailing ACK/NAK byte (spec.md §4.2: "7+1 reply").
		const total = 2 + 7 + 1
		if len(data) < total {
			return nil, 0, nil
		}
		body := data[2 : total-1]
		return IMInfo{
			Address:     Address{body[0], body[1], body[2]},
			Category:    body[3],
			Subcategory: body[4],
			Firmware:    body[5],
			Reserved:    body[6],
			Ack:         data[total-1] == 0x06,
		}, total, nil

	case opGetFirstAllLink, opGetNextAllLink:
		const total = 2 + 1
		if len(data) < total {
			return nil, 0, nil
		}
		return AllLinkRecordEcho{Opcode: code, Ack: data[2] == 0x06}, total, nil

	case opSend:
		// echo of a send: standard is 6 bytes + 1 ack, extended is
		// 20 bytes + 1 ack. Extended-ness is inferred from the
		// echoed flags byte's extended bit (spec.md §4.2).
		const headerLen = 2 + 6 // addr(3) flags(1) cmd1(1) cmd2(1)
		if len(data) < headerLen {
			return nil, 0, nil
		}
		body := data[2:headerLen]
		flags := FlagsFromByte(body[3])
		if !flags.Extended() {
			const total = headerLen + 1
			if len(data) < total {
				return nil, 0, nil
			}
			return SendEcho{
				To:    Address{body[0], body[1], body[2]},
				Flags: flags,
				Cmd1:  body[4],
				Cmd2:  body[5],
				Ack:   data[total-1] == 0x06,
			}, total, nil
		}
		const total = 2 + 20 + 1
		if len(data) < total {
			return nil, 0, nil
		}
		var ud [14]byte
		copy(ud[:], data[headerLen:headerLen+14])
		return SendEcho{
			To:       Address{body[0], body[1], body[2]},
			Flags:    flags,
			Cmd1:     body[4],
			Cmd2:     body[5],
			Extended: true,
			UserData: ud,
			Ack:      data[total-1] == 0x06,
		}, total, nil

	default:
		return nil, 0, &FramingError{Offset: 1, Byte: code}
	}
}
