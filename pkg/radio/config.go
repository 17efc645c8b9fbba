package radio

import "fmt"

// Config is the modem configuration applied at start-up.
type Config struct {
	// Frequency is the carrier frequency in Hz.
	Frequency uint32
	// SpreadingFactor is 5..12.
	SpreadingFactor uint8
	// Bandwidth in kHz, one of Bandwidths.
	Bandwidth float64
	// CodingRate is the denominator of 4/CR, 5..8.
	CodingRate uint8
	// SyncWord is the LoRa sync word, 0x12 for private networks.
	SyncWord uint8
	// TxPower in dBm.
	TxPower int8
	// PreambleLength in symbols.
	PreambleLength uint16
}

// Frequency limits accepted by the SX126x synthesizer.
const (
	MinFrequency uint32 = 150000000
	MaxFrequency uint32 = 960000000
)

// Bandwidths are the supported LoRa bandwidths in kHz.
var Bandwidths = []float64{7.8, 10.4, 15.6, 20.8, 31.25, 41.7, 62.5, 125, 250, 500}

// DefaultConfig matches the settings other nodes on the link use out of the box.
func DefaultConfig() Config {
	return Config{
		Frequency:       868000000,
		SpreadingFactor: 9,
		Bandwidth:       125,
		CodingRate:      7,
		SyncWord:        0x12,
		TxPower:         10,
		PreambleLength:  8,
	}
}

// ValidateFrequency validates a carrier frequency in Hz.
func ValidateFrequency(hz uint32) error {
	if hz < MinFrequency || hz > MaxFrequency {
		return fmt.Errorf("%w: %d Hz", ErrInvalidFrequency, hz)
	}
	return nil
}

// ValidateSpreadingFactor validates a spreading factor.
func ValidateSpreadingFactor(sf uint8) error {
	if sf < 5 || sf > 12 {
		return fmt.Errorf("%w: %d", ErrInvalidSpreadingFactor, sf)
	}
	return nil
}

// BandwidthIndex returns the index of khz in Bandwidths.
func BandwidthIndex(khz float64) (int, error) {
	for n, bw := range Bandwidths {
		// allow the rounding commonly used on the command line, e.g. 41.67
		if d := khz - bw; d > -0.05 && d < 0.05 {
			return n, nil
		}
	}
	return -1, fmt.Errorf("%w: %v kHz", ErrInvalidBandwidth, khz)
}

// Validate checks every field and returns the error for the first
// invalid one.
func (c *Config) Validate() error {
	if err := ValidateFrequency(c.Frequency); err != nil {
		return err
	}
	if err := ValidateSpreadingFactor(c.SpreadingFactor); err != nil {
		return err
	}
	if _, err := BandwidthIndex(c.Bandwidth); err != nil {
		return err
	}
	if c.CodingRate < 5 || c.CodingRate > 8 {
		return fmt.Errorf("%w: 4/%d", ErrInvalidCodingRate, c.CodingRate)
	}
	if c.TxPower < -9 || c.TxPower > 22 {
		return fmt.Errorf("%w: %d dBm", ErrInvalidOutputPower, c.TxPower)
	}
	return nil
}

// Setup initializes t and applies the frequency, spreading factor and
// bandwidth from c. Any error is a configuration error and the radio
// must not be used.
func Setup(t Transceiver, c Config) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := t.Initialize(); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	if err := t.ConfigureFrequency(c.Frequency); err != nil {
		return err
	}
	if err := t.ConfigureSpreadingFactor(c.SpreadingFactor); err != nil {
		return err
	}
	return t.ConfigureBandwidth(c.Bandwidth)
}
