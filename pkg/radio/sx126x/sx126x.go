// Package sx126x drives a Semtech SX1261/SX1262 LoRa transceiver over SPI
// using periph.io.
//
// The driver is interrupt driven: DIO1 is routed to an interrupt capable
// GPIO pin and raised on TxDone, RxDone, header/CRC errors and timeout.
// Run waits for the rising edge and invokes the registered completion
// callback, and nothing else; the commands are issued by the owner of the
// Device from a single goroutine.
package sx126x

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"

	"github.com/robotalks/lorabridge/pkg/radio"
)

// ErrBusyTimeout indicates the BUSY line did not go low in time.
var ErrBusyTimeout = errors.New("sx126x: busy timeout")

// ErrNoPacket indicates ReadReceivedData was called without RxDone.
var ErrNoPacket = errors.New("sx126x: no packet received")

const (
	busyTimeout     = 100 * time.Millisecond
	busyPollPeriod  = 50 * time.Microsecond
	edgeWaitTimeout = 500 * time.Millisecond
	// DefaultSPISpeed is safely below the 16 MHz limit.
	DefaultSPISpeed = 8 * physic.MegaHertz
)

// Pins are the control lines of the module besides SPI.
type Pins struct {
	Busy gpio.PinIn
	DIO1 gpio.PinIn
	// Reset is optional.
	Reset gpio.PinOut
}

// Options configures the device.
type Options struct {
	// Config provides coding rate, sync word, TX power and preamble.
	// Frequency, spreading factor and bandwidth are applied through the
	// Configure methods.
	Config radio.Config
	// TCXOVoltage powers a TCXO from DIO3 when non-zero, e.g. 1.8.
	TCXOVoltage float64
	// DIO2RFSwitch lets DIO2 drive the antenna switch.
	DIO2RFSwitch bool
	// UseLDO selects the LDO regulator instead of DC-DC.
	UseLDO bool
	// SPISpeed defaults to DefaultSPISpeed.
	SPISpeed physic.Frequency
}

// Device is an SX126x transceiver.
type Device struct {
	conn  conn.Conn
	port  spi.PortCloser
	busy  gpio.PinIn
	dio1  gpio.PinIn
	reset gpio.PinOut
	opts  Options

	callbackLock sync.Mutex
	callback     func()

	initialized bool
	frequency   uint32
	sf          uint8
	bwIndex     int
}

var _ radio.Transceiver = &Device{}

// New connects to the device on port. The device is not touched until
// Initialize is called.
func New(port spi.PortCloser, pins Pins, opts Options) (*Device, error) {
	speed := opts.SPISpeed
	if speed == 0 {
		speed = DefaultSPISpeed
	}
	c, err := port.Connect(speed, spi.Mode0, 8)
	if err != nil {
		return nil, fmt.Errorf("sx126x: connect spi: %w", err)
	}
	if err := pins.Busy.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("sx126x: busy pin: %w", err)
	}
	if err := pins.DIO1.In(gpio.PullDown, gpio.RisingEdge); err != nil {
		return nil, fmt.Errorf("sx126x: dio1 pin: %w", err)
	}
	d := newDevice(c, pins, opts)
	d.port = port
	return d, nil
}

func newDevice(c conn.Conn, pins Pins, opts Options) *Device {
	cfg := radio.DefaultConfig()
	if opts.Config.CodingRate == 0 {
		opts.Config.CodingRate = cfg.CodingRate
	}
	if opts.Config.SyncWord == 0 {
		opts.Config.SyncWord = cfg.SyncWord
	}
	if opts.Config.PreambleLength == 0 {
		opts.Config.PreambleLength = cfg.PreambleLength
	}
	d := &Device{
		conn:  c,
		busy:  pins.Busy,
		dio1:  pins.DIO1,
		reset: pins.Reset,
		opts:  opts,
		sf:    cfg.SpreadingFactor,
	}
	d.bwIndex, _ = radio.BandwidthIndex(cfg.Bandwidth)
	return d
}

// Close stops edge detection and releases the SPI port.
func (d *Device) Close() error {
	d.dio1.In(gpio.PullNoChange, gpio.NoEdge)
	if d.port != nil {
		return d.port.Close()
	}
	return nil
}

// Initialize implements radio.Transceiver.
func (d *Device) Initialize() error {
	if d.reset != nil {
		if err := d.reset.Out(gpio.Low); err != nil {
			return err
		}
		time.Sleep(time.Millisecond)
		if err := d.reset.Out(gpio.High); err != nil {
			return err
		}
		time.Sleep(10 * time.Millisecond)
	}
	steps := []func() error{
		func() error { return d.command(cmdSetStandby, standbyRC) },
		d.setupTCXO,
		func() error {
			mode := regulatorDCDC
			if d.opts.UseLDO {
				mode = regulatorLDO
			}
			return d.command(cmdSetRegulatorMode, mode)
		},
		func() error { return d.command(cmdCalibrate, calibrateAll) },
		d.checkDeviceErrors,
		func() error {
			if !d.opts.DIO2RFSwitch {
				return nil
			}
			return d.command(cmdSetDIO2AsRfSwitchCtrl, 0x01)
		},
		func() error { return d.command(cmdSetPacketType, packetTypeLoRa) },
		func() error { return d.command(cmdSetBufferBaseAddress, 0x00, 0x00) },
		d.setModulation,
		func() error { return d.setPacketParams(radio.MaxPayloadSize) },
		func() error {
			return d.command(cmdSetDioIrqParams,
				byte(irqCompletion>>8), byte(irqCompletion&0xFF),
				byte(irqCompletion>>8), byte(irqCompletion&0xFF),
				0x00, 0x00, 0x00, 0x00)
		},
		func() error { return d.writeRegister(regSyncWord, syncWordBytes(d.opts.Config.SyncWord)...) },
		// SX1262 high power PA, optimal settings for +22 dBm
		func() error { return d.command(cmdSetPaConfig, 0x04, 0x07, 0x00, 0x01) },
		func() error { return d.writeRegister(regOCP, 0x38) },
		func() error { return d.command(cmdSetTxParams, byte(d.opts.Config.TxPower), rampTime200us) },
		d.clearIrq,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	d.initialized = true
	glog.V(1).Info("sx126x initialized")
	return nil
}

// ConfigureFrequency implements radio.Transceiver.
func (d *Device) ConfigureFrequency(hz uint32) error {
	if err := radio.ValidateFrequency(hz); err != nil {
		return err
	}
	f1, f2 := imageCalibration(hz)
	if err := d.command(cmdCalibrateImage, f1, f2); err != nil {
		return err
	}
	w := frequencyWord(hz)
	if err := d.command(cmdSetRfFrequency, byte(w>>24), byte(w>>16), byte(w>>8), byte(w)); err != nil {
		return err
	}
	d.frequency = hz
	return nil
}

// ConfigureSpreadingFactor implements radio.Transceiver.
func (d *Device) ConfigureSpreadingFactor(sf uint8) error {
	if err := radio.ValidateSpreadingFactor(sf); err != nil {
		return err
	}
	prev := d.sf
	d.sf = sf
	if err := d.setModulation(); err != nil {
		d.sf = prev
		return err
	}
	return nil
}

// ConfigureBandwidth implements radio.Transceiver.
func (d *Device) ConfigureBandwidth(khz float64) error {
	index, err := radio.BandwidthIndex(khz)
	if err != nil {
		return err
	}
	prev := d.bwIndex
	d.bwIndex = index
	if err := d.setModulation(); err != nil {
		d.bwIndex = prev
		return err
	}
	return nil
}

// RegisterCompletionCallback implements radio.Transceiver.
func (d *Device) RegisterCompletionCallback(fn func()) {
	d.callbackLock.Lock()
	d.callback = fn
	d.callbackLock.Unlock()
}

// BeginTransmit implements radio.Transceiver.
func (d *Device) BeginTransmit(frame []byte) error {
	if !d.initialized {
		return radio.ErrNotInitialized
	}
	if len(frame) > radio.MaxPayloadSize {
		return radio.ErrPacketTooLong
	}
	if err := d.command(cmdSetStandby, standbyRC); err != nil {
		return err
	}
	if err := d.setPacketParams(byte(len(frame))); err != nil {
		return err
	}
	if err := d.command(cmdWriteBuffer, append([]byte{0x00}, frame...)...); err != nil {
		return err
	}
	if err := d.clearIrq(); err != nil {
		return err
	}
	return d.command(cmdSetTx, 0x00, 0x00, 0x00)
}

// BeginReceive implements radio.Transceiver. The receiver runs in
// continuous mode.
func (d *Device) BeginReceive() error {
	if !d.initialized {
		return radio.ErrNotInitialized
	}
	if err := d.setPacketParams(radio.MaxPayloadSize); err != nil {
		return err
	}
	if err := d.clearIrq(); err != nil {
		return err
	}
	return d.command(cmdSetRx, 0xFF, 0xFF, 0xFF)
}

// ReadReceivedData implements radio.Transceiver.
func (d *Device) ReadReceivedData() ([]byte, error) {
	status, err := d.query(cmdGetIrqStatus, 2)
	if err != nil {
		return nil, err
	}
	irq := uint16(status[0])<<8 | uint16(status[1])
	if err = d.clearIrq(); err != nil {
		return nil, err
	}
	if irq&(irqCRCErr|irqHeaderErr) != 0 {
		return nil, radio.ErrCRCMismatch
	}
	if irq&irqRxDone == 0 {
		return nil, fmt.Errorf("%w (irq %#04x)", ErrNoPacket, irq)
	}
	bufStatus, err := d.query(cmdGetRxBufferStatus, 2)
	if err != nil {
		return nil, err
	}
	size, offset := int(bufStatus[0]), bufStatus[1]
	if size == 0 {
		return []byte{}, nil
	}
	return d.query(cmdReadBuffer, size, offset)
}

// SignalStrength implements radio.Transceiver.
func (d *Device) SignalStrength() float64 {
	status, err := d.query(cmdGetPacketStatus, 3)
	if err != nil {
		glog.Warningf("sx126x: get packet status: %v", err)
		return 0
	}
	return -float64(status[0]) / 2
}

// SignalToNoiseRatio implements radio.Transceiver.
func (d *Device) SignalToNoiseRatio() float64 {
	status, err := d.query(cmdGetPacketStatus, 3)
	if err != nil {
		glog.Warningf("sx126x: get packet status: %v", err)
		return 0
	}
	return float64(int8(status[1])) / 4
}

// FrequencyError implements radio.Transceiver.
func (d *Device) FrequencyError() float64 {
	raw, err := d.readRegister(regFreqError, 3)
	if err != nil {
		glog.Warningf("sx126x: read frequency error: %v", err)
		return 0
	}
	return frequencyError(raw, radio.Bandwidths[d.bwIndex])
}

// Run implements framework.Runnable. It is the interrupt context: it
// waits for DIO1 edges and calls the completion callback.
func (d *Device) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if d.dio1.WaitForEdge(edgeWaitTimeout) {
			d.callbackLock.Lock()
			fn := d.callback
			d.callbackLock.Unlock()
			if fn != nil {
				fn()
			}
		}
	}
}

// Name implements framework.Named.
func (d *Device) Name() string {
	return "sx126x"
}

func (d *Device) setupTCXO() error {
	if d.opts.TCXOVoltage == 0 {
		return nil
	}
	for _, v := range tcxoVoltages {
		if diff := v.volts - d.opts.TCXOVoltage; diff > -0.05 && diff < 0.05 {
			// 5 ms startup delay in 15.625 us steps
			delay := uint32(5000 * 64 / 1000)
			return d.command(cmdSetDIO3AsTCXOCtrl, v.code, byte(delay>>16), byte(delay>>8), byte(delay))
		}
	}
	return fmt.Errorf("sx126x: unsupported TCXO voltage %v", d.opts.TCXOVoltage)
}

func (d *Device) checkDeviceErrors() error {
	errs, err := d.query(cmdGetDeviceErrors, 2)
	if err != nil {
		return err
	}
	if code := int(errs[0])<<8 | int(errs[1]); code != 0 {
		glog.Warningf("sx126x: device errors %#04x after calibration", code)
		return d.command(cmdClearDeviceErrors, 0x00, 0x00)
	}
	return nil
}

func (d *Device) setModulation() error {
	cr := d.opts.Config.CodingRate - 4
	bw := radio.Bandwidths[d.bwIndex]
	return d.command(cmdSetModulationParams, d.sf, bandwidthCodes[d.bwIndex], cr, lowDataRateOptimize(d.sf, bw))
}

func (d *Device) setPacketParams(size byte) error {
	preamble := d.opts.Config.PreambleLength
	return d.command(cmdSetPacketParams, byte(preamble>>8), byte(preamble), headerExplicit, size, crcOn, iqStandard)
}

func (d *Device) clearIrq() error {
	return d.command(cmdClearIrqStatus, byte(irqAll>>8), byte(irqAll&0xFF))
}

func (d *Device) waitBusy() error {
	deadline := time.Now().Add(busyTimeout)
	for d.busy.Read() == gpio.High {
		if time.Now().After(deadline) {
			return ErrBusyTimeout
		}
		time.Sleep(busyPollPeriod)
	}
	return nil
}

// command writes an opcode with its parameters.
func (d *Device) command(op byte, params ...byte) error {
	if err := d.waitBusy(); err != nil {
		return err
	}
	w := make([]byte, 1+len(params))
	w[0] = op
	copy(w[1:], params)
	if err := d.conn.Tx(w, nil); err != nil {
		return fmt.Errorf("sx126x: command %#02x: %w", op, err)
	}
	return nil
}

// query writes an opcode with its parameters and reads n bytes following
// the status byte.
func (d *Device) query(op byte, n int, params ...byte) ([]byte, error) {
	if err := d.waitBusy(); err != nil {
		return nil, err
	}
	w := make([]byte, 2+len(params)+n)
	w[0] = op
	copy(w[1:], params)
	r := make([]byte, len(w))
	if err := d.conn.Tx(w, r); err != nil {
		return nil, fmt.Errorf("sx126x: query %#02x: %w", op, err)
	}
	return r[2+len(params):], nil
}

func (d *Device) writeRegister(addr uint16, data ...byte) error {
	return d.command(cmdWriteRegister, append([]byte{byte(addr >> 8), byte(addr)}, data...)...)
}

func (d *Device) readRegister(addr uint16, n int) ([]byte, error) {
	return d.query(cmdReadRegister, n, byte(addr>>8), byte(addr))
}
