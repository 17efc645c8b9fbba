// Package sim provides a simulated transceiver for host-side testing
// and the interactive simulator.
package sim

import (
	"errors"
	"sync"

	"github.com/robotalks/lorabridge/pkg/radio"
)

// ErrNoPacket is returned by ReadReceivedData when nothing was received.
var ErrNoPacket = errors.New("sim: no packet received")

// Call names recorded by Transceiver.
const (
	CallBeginTransmit    = "BeginTransmit"
	CallBeginReceive     = "BeginReceive"
	CallReadReceivedData = "ReadReceivedData"
)

// Quality is the link quality reported for received packets.
type Quality struct {
	RSSI      float64
	SNR       float64
	FreqError float64
}

type reception struct {
	payload []byte
	err     error
}

// Transceiver implements radio.Transceiver in memory.
type Transceiver struct {
	Quality Quality

	lock            sync.Mutex
	callback        func()
	initialized     bool
	mode            radio.Mode
	frequency       uint32
	spreadingFactor uint8
	bandwidth       float64
	txErr           error
	rxQueue         []reception
	sent            [][]byte
	calls           []string
}

var _ radio.Transceiver = &Transceiver{}

// New creates a simulated Transceiver.
func New() *Transceiver {
	return &Transceiver{Quality: Quality{RSSI: -60, SNR: 9.5}}
}

// Initialize implements radio.Transceiver.
func (t *Transceiver) Initialize() error {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.initialized, t.mode = true, radio.ModeStandby
	return nil
}

// ConfigureFrequency implements radio.Transceiver.
func (t *Transceiver) ConfigureFrequency(hz uint32) error {
	if err := radio.ValidateFrequency(hz); err != nil {
		return err
	}
	t.lock.Lock()
	t.frequency = hz
	t.lock.Unlock()
	return nil
}

// ConfigureSpreadingFactor implements radio.Transceiver.
func (t *Transceiver) ConfigureSpreadingFactor(sf uint8) error {
	if err := radio.ValidateSpreadingFactor(sf); err != nil {
		return err
	}
	t.lock.Lock()
	t.spreadingFactor = sf
	t.lock.Unlock()
	return nil
}

// ConfigureBandwidth implements radio.Transceiver.
func (t *Transceiver) ConfigureBandwidth(khz float64) error {
	if _, err := radio.BandwidthIndex(khz); err != nil {
		return err
	}
	t.lock.Lock()
	t.bandwidth = khz
	t.lock.Unlock()
	return nil
}

// RegisterCompletionCallback implements radio.Transceiver.
func (t *Transceiver) RegisterCompletionCallback(fn func()) {
	t.lock.Lock()
	t.callback = fn
	t.lock.Unlock()
}

// BeginTransmit implements radio.Transceiver.
func (t *Transceiver) BeginTransmit(frame []byte) error {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.calls = append(t.calls, CallBeginTransmit)
	if !t.initialized {
		return radio.ErrNotInitialized
	}
	if len(frame) > radio.MaxPayloadSize {
		return radio.ErrPacketTooLong
	}
	t.mode = radio.ModeTransmit
	if err := t.txErr; err != nil {
		t.txErr = nil
		return err
	}
	t.sent = append(t.sent, append([]byte(nil), frame...))
	return nil
}

// BeginReceive implements radio.Transceiver.
func (t *Transceiver) BeginReceive() error {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.calls = append(t.calls, CallBeginReceive)
	if !t.initialized {
		return radio.ErrNotInitialized
	}
	t.mode = radio.ModeReceive
	return nil
}

// ReadReceivedData implements radio.Transceiver.
func (t *Transceiver) ReadReceivedData() ([]byte, error) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.calls = append(t.calls, CallReadReceivedData)
	if len(t.rxQueue) == 0 {
		return nil, ErrNoPacket
	}
	rx := t.rxQueue[0]
	t.rxQueue = t.rxQueue[1:]
	return rx.payload, rx.err
}

// SignalStrength implements radio.Transceiver.
func (t *Transceiver) SignalStrength() float64 { return t.Quality.RSSI }

// SignalToNoiseRatio implements radio.Transceiver.
func (t *Transceiver) SignalToNoiseRatio() float64 { return t.Quality.SNR }

// FrequencyError implements radio.Transceiver.
func (t *Transceiver) FrequencyError() float64 { return t.Quality.FreqError }

// FailNextTransmit makes the next BeginTransmit return err.
func (t *Transceiver) FailNextTransmit(err error) {
	t.lock.Lock()
	t.txErr = err
	t.lock.Unlock()
}

// Complete fires the completion callback as the interrupt would.
func (t *Transceiver) Complete() {
	t.lock.Lock()
	fn := t.callback
	t.lock.Unlock()
	if fn != nil {
		fn()
	}
}

// Receive simulates a packet arriving over the air and fires completion.
func (t *Transceiver) Receive(payload []byte) {
	t.enqueue(reception{payload: append([]byte(nil), payload...)})
}

// Corrupt simulates a packet failing the integrity check.
func (t *Transceiver) Corrupt() {
	t.enqueue(reception{err: radio.ErrCRCMismatch})
}

// FailReceive simulates a reception reporting err.
func (t *Transceiver) FailReceive(err error) {
	t.enqueue(reception{err: err})
}

func (t *Transceiver) enqueue(rx reception) {
	t.lock.Lock()
	t.rxQueue = append(t.rxQueue, rx)
	t.lock.Unlock()
	t.Complete()
}

// Mode returns the current mode.
func (t *Transceiver) Mode() radio.Mode {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.mode
}

// Sent returns and clears transmitted frames.
func (t *Transceiver) Sent() [][]byte {
	t.lock.Lock()
	defer t.lock.Unlock()
	sent := t.sent
	t.sent = nil
	return sent
}

// Calls returns and clears the recorded operation calls.
func (t *Transceiver) Calls() []string {
	t.lock.Lock()
	defer t.lock.Unlock()
	calls := t.calls
	t.calls = nil
	return calls
}

// Settings returns the applied configuration.
func (t *Transceiver) Settings() (hz uint32, sf uint8, khz float64) {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.frequency, t.spreadingFactor, t.bandwidth
}
