package protocol

// FirmwareChunk is one UPDATE_UPLOAD_DATA payload.
//
// Wire layout: CRC(4) | Offset(4) | Offset(4) | Size(4) | Size(4) | Data(Size)
//
// Offset and size are each written twice. Deployed vehicles expect the
// duplicated layout, so the encoder keeps it; the decoder rejects chunks whose
// copies disagree.
type FirmwareChunk struct {
	Offset uint32
	Data   []byte
}

// AppendTo writes the chunk record, opcode included, to f.
func (c FirmwareChunk) AppendTo(f *Frame) {
	size := uint32(len(c.Data))
	f.WriteOpcode(UpdateUploadData)
	f.WriteU32(Checksum(c.Data))
	f.WriteU32(c.Offset)
	f.WriteU32(c.Offset)
	f.WriteU32(size)
	f.WriteU32(size)
	f.WriteBytes(c.Data)
}

// ReadFirmwareChunk decodes an UPDATE_UPLOAD_DATA payload and verifies its
// checksum.
func ReadFirmwareChunk(r *Reader) (FirmwareChunk, error) {
	var hdr [5]uint32
	for i := range hdr {
		v, err := r.ReadU32()
		if err != nil {
			return FirmwareChunk{}, err
		}
		hdr[i] = v
	}
	crc, off, offDup, size, sizeDup := hdr[0], hdr[1], hdr[2], hdr[3], hdr[4]
	if off != offDup || size != sizeDup {
		return FirmwareChunk{}, ErrInvalidPayload
	}
	data, err := r.ReadBytes(int(size))
	if err != nil {
		return FirmwareChunk{}, err
	}
	if !VerifyChecksum(data, crc) {
		return FirmwareChunk{}, ErrChecksum
	}
	return FirmwareChunk{Offset: off, Data: data}, nil
}
