package protocol

import "encoding/binary"

// Envelope wraps one frame for a byte-oriented link (UDP datagram or serial
// stream).
// Layout: Length(2) | Flags(1) | Seq(4) | Payload(0-65525) | CRC32C(4) | Terminal(1)
// Length counts everything AFTER the length field. The CRC covers flags, seq
// and payload.
type Envelope struct {
	Length  uint16
	Flags   uint8
	Seq     uint32
	Payload []byte
	CRC     uint32 // decoded envelopes only; ignored by encoder
}

const (
	LengthFieldSize   = 2
	FlagsFieldSize    = 1
	SequenceFieldSize = 4
	CRCSize           = 4
	TerminalSize      = 1

	EnvelopeHeaderSize = LengthFieldSize + FlagsFieldSize + SequenceFieldSize // 7 bytes
	EnvelopeOverhead   = EnvelopeHeaderSize + CRCSize + TerminalSize
	MaxEnvelopeSize    = LengthFieldSize + 0xFFFF
	MaxEnvelopePayload = MaxEnvelopeSize - EnvelopeOverhead

	// Terminal byte value appended to the end of every envelope
	EnvelopeTerminal = 0x55

	// internal helper (bytes in header after length field)
	headerWithoutLen = EnvelopeHeaderSize - LengthFieldSize
)

// Envelope flags
const (
	FlagAckRequest uint8 = 1 << 0
	FlagAck        uint8 = 1 << 1
)

func (e *Envelope) AckRequested() bool { return e.Flags&FlagAckRequest != 0 }

func (e *Envelope) IsAck() bool { return e.Flags&FlagAck != 0 }

// EncodeEnvelope serialises e. Payloads longer than MaxEnvelopePayload are
// rejected.
func EncodeEnvelope(e *Envelope) ([]byte, error) {
	if e == nil {
		return nil, ErrInvalidFrame
	}
	payloadLen := len(e.Payload)
	if payloadLen > MaxEnvelopePayload {
		return nil, ErrInvalidPayload
	}

	bodyLen := headerWithoutLen + payloadLen + CRCSize + TerminalSize // bytes AFTER Length field
	totalLen := LengthFieldSize + bodyLen

	data := make([]byte, totalLen)
	binary.BigEndian.PutUint16(data[0:2], uint16(bodyLen))
	data[2] = e.Flags
	binary.BigEndian.PutUint32(data[3:7], e.Seq)
	copy(data[EnvelopeHeaderSize:], e.Payload)

	crcPos := EnvelopeHeaderSize + payloadLen
	binary.BigEndian.PutUint32(data[crcPos:crcPos+CRCSize], Checksum(data[LengthFieldSize:crcPos]))

	// Terminal byte
	data[totalLen-1] = EnvelopeTerminal

	e.Length = uint16(bodyLen)
	return data, nil
}

// DecodeEnvelope parses one envelope from the start of data and returns the
// number of bytes it occupied. ErrShortPayload means more bytes are needed;
// ErrInvalidFrame and ErrChecksum mean the leading bytes are not a valid
// envelope.
func DecodeEnvelope(data []byte) (*Envelope, int, error) {
	// Must at least fit header + CRC + Terminal
	if len(data) < EnvelopeOverhead {
		return nil, 0, ErrShortPayload
	}

	bodyLen := int(binary.BigEndian.Uint16(data[0:2]))
	if bodyLen < headerWithoutLen+CRCSize+TerminalSize {
		return nil, 0, ErrInvalidFrame
	}
	totalLen := LengthFieldSize + bodyLen
	if totalLen > len(data) {
		return nil, 0, ErrShortPayload
	}

	// Validate Terminal
	if data[totalLen-1] != EnvelopeTerminal {
		return nil, 0, ErrInvalidFrame
	}

	payloadLen := bodyLen - headerWithoutLen - (CRCSize + TerminalSize)
	crcOffset := EnvelopeHeaderSize + payloadLen

	recvCRC := binary.BigEndian.Uint32(data[crcOffset : crcOffset+CRCSize])
	if !VerifyChecksum(data[LengthFieldSize:crcOffset], recvCRC) {
		return nil, 0, ErrChecksum
	}

	e := &Envelope{
		Length:  uint16(bodyLen),
		Flags:   data[2],
		Seq:     binary.BigEndian.Uint32(data[3:7]),
		Payload: make([]byte, payloadLen),
		CRC:     recvCRC,
	}
	copy(e.Payload, data[EnvelopeHeaderSize:crcOffset])

	return e, totalLen, nil
}
