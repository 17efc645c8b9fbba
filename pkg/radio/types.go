package radio

// MaxPayloadSize is the largest payload accepted by BeginTransmit,
// limited by the SX126x data buffer and the 8-bit LoRa length field.
const MaxPayloadSize = 255

// Transceiver is a packet radio that signals completion of an
// operation asynchronously.
type Transceiver interface {
	// Initialize resets the device and applies the default modem setup.
	Initialize() error
	// ConfigureFrequency sets the carrier frequency in Hz.
	ConfigureFrequency(hz uint32) error
	// ConfigureSpreadingFactor sets the LoRa spreading factor.
	ConfigureSpreadingFactor(sf uint8) error
	// ConfigureBandwidth sets the LoRa bandwidth in kHz.
	ConfigureBandwidth(khz float64) error
	// RegisterCompletionCallback installs the function called from
	// interrupt context when an operation finishes. It must be called
	// before the first operation is started.
	RegisterCompletionCallback(fn func())
	// BeginTransmit starts sending one frame and returns immediately.
	BeginTransmit(frame []byte) error
	// BeginReceive puts the device into listening mode and returns immediately.
	BeginReceive() error
	// ReadReceivedData fetches the payload of the packet which completed
	// reception. It returns ErrCRCMismatch if the packet failed the
	// integrity check.
	ReadReceivedData() ([]byte, error)
	// SignalStrength is the RSSI of the last packet in dBm.
	SignalStrength() float64
	// SignalToNoiseRatio is the SNR of the last packet in dB.
	SignalToNoiseRatio() float64
	// FrequencyError is the estimated carrier offset of the last packet in Hz.
	FrequencyError() float64
}

// Mode describes what the transceiver is currently doing.
type Mode int

// Modes
const (
	ModeStandby Mode = iota
	ModeTransmit
	ModeReceive
)

func (m Mode) String() string {
	switch m {
	case ModeStandby:
		return "standby"
	case ModeTransmit:
		return "transmit"
	case ModeReceive:
		return "receive"
	}
	return "unknown"
}
