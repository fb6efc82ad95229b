package protocol

import "hash/crc32"

// castagnoliTable uses the reflected polynomial 0x82F63B78 (CRC-32C). Bulk
// payloads (config file, recordings list, firmware chunks) and link
// envelopes are checksummed with it.
var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// Checksum returns the CRC-32C of b.
func Checksum(b []byte) uint32 { return crc32.Checksum(b, castagnoliTable) }

// VerifyChecksum reports whether sum is the CRC-32C of b.
func VerifyChecksum(b []byte, sum uint32) bool { return Checksum(b) == sum }
