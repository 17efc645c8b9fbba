package radio

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidFrequency indicates the carrier frequency is out of range.
	ErrInvalidFrequency = errors.New("invalid frequency")
	// ErrInvalidSpreadingFactor indicates the spreading factor is not supported.
	ErrInvalidSpreadingFactor = errors.New("invalid spreading factor")
	// ErrInvalidBandwidth indicates the bandwidth is not one of the supported values.
	ErrInvalidBandwidth = errors.New("invalid bandwidth")
	// ErrInvalidCodingRate indicates the coding rate denominator is out of range.
	ErrInvalidCodingRate = errors.New("invalid coding rate")
	// ErrInvalidOutputPower indicates the TX power is out of range.
	ErrInvalidOutputPower = errors.New("invalid output power")
	// ErrCRCMismatch indicates a received packet failed its integrity check.
	ErrCRCMismatch = errors.New("crc mismatch")
	// ErrPacketTooLong indicates a frame exceeds MaxPayloadSize.
	ErrPacketTooLong = errors.New("packet too long")
	// ErrNotInitialized indicates the transceiver was used before Initialize.
	ErrNotInitialized = errors.New("transceiver not initialized")
)

// StatusError wraps a raw status code reported by the device.
type StatusError struct {
	Op   string
	Code int
}

// Error implements error.
func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed, code %d", e.Op, e.Code)
}
