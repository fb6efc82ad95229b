package protocol

import "errors"

var (
	ErrShortPayload   = errors.New("payload shorter than its layout")
	ErrInvalidPayload = errors.New("invalid payload size")
	ErrInvalidFrame   = errors.New("invalid frame")
	ErrChecksum       = errors.New("checksum mismatch")
	ErrNotCalibrated  = errors.New("vehicle not calibrated")
	ErrNotConnected   = errors.New("link not connected")
	ErrNotConfirmed   = errors.New("vehicle did not confirm the request")
	ErrTimeout        = errors.New("operation timed out")
)
