package link

import "fmt"

// Event is a non-fatal outcome surfaced as a diagnostic.
type Event interface {
	// Kind is a short stable name of the event.
	Kind() string
}

// Event kinds
const (
	KindTransmit       = "transmit"
	KindReceive        = "receive"
	KindIntegrityError = "integrity-error"
	KindReceiveError   = "receive-error"
	KindOverflow       = "overflow"
)

// LinkQuality is measured for a received packet when diagnostics are enabled.
type LinkQuality struct {
	// RSSI in dBm.
	RSSI float64
	// SNR in dB.
	SNR float64
	// FreqError in Hz.
	FreqError float64
}

// TransmitEvent reports the completion of a transmit.
type TransmitEvent struct {
	Size int
	Err  error
}

// Kind implements Event.
func (e *TransmitEvent) Kind() string { return KindTransmit }

func (e *TransmitEvent) String() string {
	if e.Err != nil {
		return fmt.Sprintf("transmit of %d bytes failed: %v", e.Size, e.Err)
	}
	return fmt.Sprintf("transmitted %d bytes", e.Size)
}

// ReceiveEvent reports a successfully received packet.
type ReceiveEvent struct {
	Payload []byte
	// Quality is nil unless diagnostics are enabled.
	Quality *LinkQuality
}

// Kind implements Event.
func (e *ReceiveEvent) Kind() string { return KindReceive }

func (e *ReceiveEvent) String() string {
	if q := e.Quality; q != nil {
		return fmt.Sprintf("received %d bytes, RSSI %.2f dBm, SNR %.2f dB, freq error %.1f Hz",
			len(e.Payload), q.RSSI, q.SNR, q.FreqError)
	}
	return fmt.Sprintf("received %d bytes", len(e.Payload))
}

// IntegrityErrorEvent reports a received packet discarded because it
// failed the integrity check.
type IntegrityErrorEvent struct{}

// Kind implements Event.
func (e *IntegrityErrorEvent) Kind() string { return KindIntegrityError }

func (e *IntegrityErrorEvent) String() string { return "received malformed packet, discarded" }

// ReceiveErrorEvent reports a failure while reading a packet or re-arming
// reception.
type ReceiveErrorEvent struct {
	Op  string
	Err error
}

// Kind implements Event.
func (e *ReceiveErrorEvent) Kind() string { return KindReceiveError }

func (e *ReceiveErrorEvent) String() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

// OverflowEvent reports serial bytes dropped because the frame was full.
type OverflowEvent struct {
	Dropped int
	Limit   int
}

// Kind implements Event.
func (e *OverflowEvent) Kind() string { return KindOverflow }

func (e *OverflowEvent) String() string {
	return fmt.Sprintf("frame limit %d reached, dropped %d bytes", e.Limit, e.Dropped)
}
