package protocol

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeEncoding(t *testing.T) {
	tests := []struct {
		name     string
		envelope *Envelope
		wantSize int
	}{
		{
			name:     "empty payload",
			envelope: &Envelope{Seq: 42, Payload: []byte{}},
			wantSize: EnvelopeOverhead,
		},
		{
			name:     "small payload with ack request",
			envelope: &Envelope{Flags: FlagAckRequest, Seq: 123, Payload: []byte{1, 2, 3, 4, 5}},
			wantSize: EnvelopeOverhead + 5,
		},
		{
			name:     "maximum payload",
			envelope: &Envelope{Seq: 255, Payload: bytes.Repeat([]byte{0xAA}, MaxEnvelopePayload)},
			wantSize: MaxEnvelopeSize,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := EncodeEnvelope(tt.envelope)
			require.NoError(t, err)
			require.Len(t, encoded, tt.wantSize)

			// Length field counts everything after itself
			assert.Equal(t, uint16(len(encoded)-LengthFieldSize), binary.BigEndian.Uint16(encoded[0:2]))
			assert.Equal(t, tt.envelope.Flags, encoded[2])
			assert.Equal(t, tt.envelope.Seq, binary.BigEndian.Uint32(encoded[3:7]))
			assert.Equal(t, byte(EnvelopeTerminal), encoded[len(encoded)-1])

			crcPos := EnvelopeHeaderSize + len(tt.envelope.Payload)
			assert.Equal(t, Checksum(encoded[LengthFieldSize:crcPos]), binary.BigEndian.Uint32(encoded[crcPos:crcPos+CRCSize]))
		})
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	in := &Envelope{Flags: FlagAck, Seq: 0xDEADBEEF, Payload: []byte{1, 2, 3}}
	encoded, err := EncodeEnvelope(in)
	require.NoError(t, err)

	// trailing bytes belong to the next envelope
	out, n, err := DecodeEnvelope(append(encoded, 0x00, 0x01))
	require.NoError(t, err)
	assert.Equal(t, len(encoded), n)
	assert.Equal(t, in.Seq, out.Seq)
	assert.True(t, out.IsAck())
	assert.False(t, out.AckRequested())
	assert.Equal(t, in.Payload, out.Payload)
}

func TestEnvelopeTooLarge(t *testing.T) {
	_, err := EncodeEnvelope(&Envelope{Payload: make([]byte, MaxEnvelopePayload+1)})
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestDecodeInvalidEnvelopes(t *testing.T) {
	valid := func() []byte {
		b, err := EncodeEnvelope(&Envelope{Seq: 1, Payload: []byte{1, 2, 3}})
		require.NoError(t, err)
		return b
	}

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{name: "nil data", data: nil, wantErr: ErrShortPayload},
		{name: "too short", data: []byte{0x01, 0x02}, wantErr: ErrShortPayload},
		{
			name:    "length beyond buffer",
			data:    append([]byte{0xFF, 0xFF}, make([]byte, 20)...),
			wantErr: ErrShortPayload,
		},
		{
			name:    "length below overhead",
			data:    append([]byte{0x00, 0x02}, make([]byte, 20)...),
			wantErr: ErrInvalidFrame,
		},
		{
			name: "wrong terminal byte",
			data: func() []byte {
				b := valid()
				b[len(b)-1] = 0xAA
				return b
			}(),
			wantErr: ErrInvalidFrame,
		},
		{
			name: "corrupt payload",
			data: func() []byte {
				b := valid()
				b[EnvelopeHeaderSize] ^= 0x01
				return b
			}(),
			wantErr: ErrChecksum,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded, _, err := DecodeEnvelope(tt.data)
			assert.Nil(t, decoded)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestFirmwareChunk(t *testing.T) {
	f := NewFrame()
	FirmwareChunk{Offset: 4096, Data: []byte("firmware-bytes")}.AppendTo(f)

	for op, r := range Uplink.Records(f.Bytes()) {
		require.Equal(t, UpdateUploadData, op)
		chunk, err := ReadFirmwareChunk(r)
		require.NoError(t, err)
		assert.Equal(t, uint32(4096), chunk.Offset)
		assert.Equal(t, []byte("firmware-bytes"), chunk.Data)
	}

	t.Run("mismatched duplicate offset", func(t *testing.T) {
		f := NewFrame()
		FirmwareChunk{Offset: 1, Data: []byte{1}}.AppendTo(f)
		b := f.Bytes()
		b[2+4+4+3] = 2 // second offset copy
		_, err := ReadFirmwareChunk(NewReader(b[2:]))
		assert.ErrorIs(t, err, ErrInvalidPayload)
	})

	t.Run("corrupt data", func(t *testing.T) {
		f := NewFrame()
		FirmwareChunk{Offset: 1, Data: []byte{1, 2}}.AppendTo(f)
		b := f.Bytes()
		b[len(b)-1] ^= 0xFF
		_, err := ReadFirmwareChunk(NewReader(b[2:]))
		assert.ErrorIs(t, err, ErrChecksum)
	})
}
