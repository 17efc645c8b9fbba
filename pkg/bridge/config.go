package bridge

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/robotalks/lorabridge/pkg/radio"
	"github.com/robotalks/lorabridge/pkg/serial"
	"github.com/robotalks/lorabridge/pkg/telemetry/mqtt"
)

// StdioPort selects the process stdin/stdout as the serial stream.
const StdioPort = "-"

// Config defines the configurations of the bridge.
type Config struct {
	SerialPort string
	BaudRate   int

	// SPIPort is the periph SPI port name, empty for the first one.
	SPIPort      string
	BusyPin      string
	DIO1Pin      string
	ResetPin     string
	TCXOVoltage  float64
	DIO2RFSwitch bool

	FrequencyMHz    float64
	SpreadingFactor uint
	BandwidthKHz    float64
	CodingRate      uint
	SyncWord        uint
	TxPower         int
	PreambleLength  uint

	StartListening bool
	Diagnostics    bool
	MaxFrameSize   int
	PollInterval   time.Duration

	// MQTTURL enables telemetry, e.g. mqtt://host:1883/lora/
	MQTTURL           string
	TelemetryEncoding string
	// NodeID defaults to an id derived from the machine id.
	NodeID string
}

var defaultConfig = Config{
	SerialPort:      StdioPort,
	BaudRate:        serial.DefaultBaudRate,
	BusyPin:         "GPIO20",
	DIO1Pin:         "GPIO16",
	ResetPin:        "GPIO18",
	TCXOVoltage:     1.8,
	DIO2RFSwitch:    true,
	FrequencyMHz:    868,
	SpreadingFactor: 9,
	BandwidthKHz:    125,
	CodingRate:      7,
	SyncWord:        0x12,
	TxPower:         10,
	PreambleLength:  8,
	StartListening:  true,
	MaxFrameSize:    radio.MaxPayloadSize,
	PollInterval:    5 * time.Millisecond,
}

func init() {
	if val := os.Getenv("LORABRIDGE_SERIAL"); val != "" {
		defaultConfig.SerialPort = val
	}
	if val := os.Getenv("LORABRIDGE_MQTT_URL"); val != "" {
		defaultConfig.MQTTURL = val
	}
	if val := os.Getenv("LORABRIDGE_NODE_ID"); val != "" {
		defaultConfig.NodeID = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.SerialPort, "serial", defaultConfig.SerialPort, "Serial port, - for stdin/stdout.")
	flag.IntVar(&defaultConfig.BaudRate, "baud", defaultConfig.BaudRate, "Serial baud rate.")
	flag.StringVar(&defaultConfig.SPIPort, "spi", defaultConfig.SPIPort, "SPI port name, empty for the first available.")
	flag.StringVar(&defaultConfig.BusyPin, "busy-pin", defaultConfig.BusyPin, "GPIO connected to BUSY.")
	flag.StringVar(&defaultConfig.DIO1Pin, "dio1-pin", defaultConfig.DIO1Pin, "GPIO connected to DIO1.")
	flag.StringVar(&defaultConfig.ResetPin, "reset-pin", defaultConfig.ResetPin, "GPIO connected to NRST, empty if not connected.")
	flag.Float64Var(&defaultConfig.TCXOVoltage, "tcxo", defaultConfig.TCXOVoltage, "TCXO voltage supplied by DIO3, 0 for a crystal.")
	flag.BoolVar(&defaultConfig.DIO2RFSwitch, "dio2-rf-switch", defaultConfig.DIO2RFSwitch, "DIO2 controls the RF switch.")
	flag.Float64Var(&defaultConfig.FrequencyMHz, "freq", defaultConfig.FrequencyMHz, "Carrier frequency in MHz.")
	flag.UintVar(&defaultConfig.SpreadingFactor, "sf", defaultConfig.SpreadingFactor, "LoRa spreading factor.")
	flag.Float64Var(&defaultConfig.BandwidthKHz, "bw", defaultConfig.BandwidthKHz, "LoRa bandwidth in kHz.")
	flag.UintVar(&defaultConfig.CodingRate, "cr", defaultConfig.CodingRate, "LoRa coding rate denominator, 5 to 8.")
	flag.UintVar(&defaultConfig.SyncWord, "sync-word", defaultConfig.SyncWord, "LoRa sync word.")
	flag.IntVar(&defaultConfig.TxPower, "power", defaultConfig.TxPower, "Output power in dBm.")
	flag.UintVar(&defaultConfig.PreambleLength, "preamble", defaultConfig.PreambleLength, "Preamble length in symbols.")
	flag.BoolVar(&defaultConfig.StartListening, "listen", defaultConfig.StartListening, "Start in receive mode.")
	flag.BoolVar(&defaultConfig.Diagnostics, "diag", defaultConfig.Diagnostics, "Print RSSI, SNR and frequency error of received packets.")
	flag.IntVar(&defaultConfig.MaxFrameSize, "max-frame", defaultConfig.MaxFrameSize, "Maximum bytes per transmitted frame.")
	flag.DurationVar(&defaultConfig.PollInterval, "poll-interval", defaultConfig.PollInterval, "Interval between polls without wake-ups.")
	flag.StringVar(&defaultConfig.MQTTURL, "mqtt", defaultConfig.MQTTURL, "MQTT broker URL for telemetry, empty to disable.")
	flag.StringVar(&defaultConfig.TelemetryEncoding, "telemetry-encoding", defaultConfig.TelemetryEncoding, "Telemetry encoding: json or protobuf.")
	flag.StringVar(&defaultConfig.NodeID, "node-id", defaultConfig.NodeID, "Node ID used in telemetry topics.")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a config with defaults.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// RadioConfig converts the modem settings.
func (c *Config) RadioConfig() radio.Config {
	return radio.Config{
		Frequency:       uint32(c.FrequencyMHz*1e6 + 0.5),
		SpreadingFactor: uint8(c.SpreadingFactor),
		Bandwidth:       c.BandwidthKHz,
		CodingRate:      uint8(c.CodingRate),
		SyncWord:        uint8(c.SyncWord),
		TxPower:         int8(c.TxPower),
		PreambleLength:  uint16(c.PreambleLength),
	}
}

// Validate checks the configuration, any error is fatal.
func (c *Config) Validate() error {
	// range check before the conversion to Hz can wrap
	if hz := c.FrequencyMHz * 1e6; !(hz >= float64(radio.MinFrequency) && hz <= float64(radio.MaxFrequency)) {
		return fmt.Errorf("%w: %v MHz", radio.ErrInvalidFrequency, c.FrequencyMHz)
	}
	if c.SpreadingFactor > 0xFF || c.CodingRate > 0xFF || c.TxPower < -128 || c.TxPower > 127 {
		return errors.New("radio setting out of range")
	}
	if c.SyncWord > 0xFF {
		return fmt.Errorf("invalid sync word %#x", c.SyncWord)
	}
	if c.PreambleLength == 0 || c.PreambleLength > 0xFFFF {
		return fmt.Errorf("invalid preamble length %d", c.PreambleLength)
	}
	rc := c.RadioConfig()
	if err := rc.Validate(); err != nil {
		return err
	}
	if c.MaxFrameSize < 1 || c.MaxFrameSize > radio.MaxPayloadSize {
		return fmt.Errorf("max frame size must be 1..%d", radio.MaxPayloadSize)
	}
	if c.PollInterval <= 0 {
		return errors.New("poll interval must be positive")
	}
	if _, err := mqtt.ParseEncoding(c.TelemetryEncoding); err != nil {
		return err
	}
	return nil
}

// Meta describes the bridge in telemetry.
func (c *Config) Meta() map[string]interface{} {
	rc := c.RadioConfig()
	return map[string]interface{}{
		"frequency":        rc.Frequency,
		"spreading_factor": rc.SpreadingFactor,
		"bandwidth":        rc.Bandwidth,
		"coding_rate":      rc.CodingRate,
		"sync_word":        rc.SyncWord,
		"tx_power":         rc.TxPower,
		"preamble_length":  rc.PreambleLength,
		"max_frame_size":   c.MaxFrameSize,
		"start_listening":  c.StartListening,
		"diagnostics":      c.Diagnostics,
	}
}
