// Package bridge assembles the serial to LoRa bridge from its
// configuration.
package bridge

import (
	"context"
	"fmt"
	"io"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	fx "github.com/robotalks/lorabridge/pkg/framework"
	"github.com/robotalks/lorabridge/pkg/link"
	"github.com/robotalks/lorabridge/pkg/radio"
	"github.com/robotalks/lorabridge/pkg/radio/sx126x"
	"github.com/robotalks/lorabridge/pkg/serial"
	"github.com/robotalks/lorabridge/pkg/telemetry/mqtt"
)

// appID scopes the machine derived node id.
const appID = "lorabridge"

// Bridge forwards serial input over LoRa and received packets to serial.
type Bridge struct {
	Loop      *fx.Loop
	Arbiter   *link.Arbiter
	Serial    *serial.Buffered
	Radio     radio.Transceiver
	Telemetry *mqtt.Publisher

	closers []io.Closer
}

// NewBridge opens the serial port and the radio and assembles the bridge.
func (c *Config) NewBridge() (*Bridge, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	rw, err := c.openSerial()
	if err != nil {
		return nil, err
	}
	dev, err := c.openRadio()
	if err != nil {
		closeStream(rw)
		return nil, err
	}
	b, err := c.Assemble(dev, rw)
	if err != nil {
		dev.Close()
		closeStream(rw)
		return nil, err
	}
	b.Loop.AddRunnable(dev)
	b.closers = append(b.closers, dev)
	return b, nil
}

// MustNewBridge creates the bridge and exits on error.
func (c *Config) MustNewBridge() *Bridge {
	b, err := c.NewBridge()
	if err != nil {
		glog.Exitf("create bridge error: %v", err)
	}
	return b
}

// Assemble sets up t, wires it with the serial stream rw into a bridge
// and arms reception when configured to.
func (c *Config) Assemble(t radio.Transceiver, rw io.ReadWriter) (*Bridge, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := radio.Setup(t, c.RadioConfig()); err != nil {
		return nil, fmt.Errorf("radio setup: %w", err)
	}

	b := &Bridge{
		Loop:   fx.NewLoop(),
		Serial: serial.NewBuffered(rw),
		Radio:  t,
	}
	b.Loop.Interval = c.PollInterval
	b.Serial.OnData = b.Loop.TriggerNext

	reporter := (&link.ReporterMux{}).Add(link.LogReporter{}, &link.SerialReporter{Writer: b.Serial})
	if c.MQTTURL != "" {
		pub, err := c.newPublisher()
		if err != nil {
			return nil, err
		}
		b.Telemetry = pub
		reporter.Add(pub)
		b.Loop.AddRunnable(pub)
	}

	b.Arbiter = link.NewArbiter(t, b.Serial, link.Options{
		MaxFrameSize:   c.MaxFrameSize,
		StartListening: c.StartListening,
		Diagnostics:    c.Diagnostics,
		Reporter:       reporter,
		Wake:           b.Loop.TriggerNext,
	})
	if err := b.Arbiter.Start(); err != nil {
		return nil, fmt.Errorf("start receive: %w", err)
	}
	b.Loop.Add(b.Arbiter).AddRunnable(b.Serial)
	return b, nil
}

func (c *Config) newPublisher() (*mqtt.Publisher, error) {
	enc, err := mqtt.ParseEncoding(c.TelemetryEncoding)
	if err != nil {
		return nil, err
	}
	nodeID := c.NodeID
	if nodeID == "" {
		if nodeID, err = NodeID(); err != nil {
			return nil, fmt.Errorf("node id: %w", err)
		}
	}
	return mqtt.NewPublisher(c.MQTTURL, mqtt.PublisherOptions{
		NodeID:   nodeID,
		Encoding: enc,
		Meta:     c.Meta(),
	})
}

// NodeID derives a stable node id from the machine id without exposing it.
func NodeID() (string, error) {
	id, err := machineid.ProtectedID(appID)
	if err != nil {
		return "", err
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id, nil
}

// Name implements framework.Named.
func (b *Bridge) Name() string {
	return "bridge"
}

// Run implements framework.Runnable.
func (b *Bridge) Run(ctx context.Context) error {
	defer b.Close()
	glog.Infof("bridge started in %s state", b.Arbiter.State())
	err := b.Loop.Run(ctx)
	stats := b.Arbiter.Stats()
	glog.Infof("bridge stopped: sent %d frames (%d failed), received %d packets (%d corrupted, %d failed), dropped %d bytes",
		stats.FramesSent, stats.TransmitErrors, stats.PacketsReceived,
		stats.IntegrityErrors, stats.ReceiveErrors, stats.BytesDropped)
	return err
}

// Close releases the hardware.
func (b *Bridge) Close() error {
	var errs fx.AggregatedError
	for _, c := range b.closers {
		errs.Add(c.Close())
	}
	b.closers = nil
	return errs.Aggregate()
}

func (c *Config) openSerial() (io.ReadWriter, error) {
	if c.SerialPort == StdioPort {
		return serial.Stdio(), nil
	}
	return serial.Open(serial.Config{Port: c.SerialPort, BaudRate: c.BaudRate})
}

func (c *Config) openRadio() (*sx126x.Device, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph init: %w", err)
	}
	busy, err := pinByName("busy", c.BusyPin)
	if err != nil {
		return nil, err
	}
	dio1, err := pinByName("dio1", c.DIO1Pin)
	if err != nil {
		return nil, err
	}
	pins := sx126x.Pins{Busy: busy, DIO1: dio1}
	if c.ResetPin != "" {
		if pins.Reset, err = pinByName("reset", c.ResetPin); err != nil {
			return nil, err
		}
	}
	port, err := spireg.Open(c.SPIPort)
	if err != nil {
		return nil, fmt.Errorf("open spi port %q: %w", c.SPIPort, err)
	}
	dev, err := sx126x.New(port, pins, sx126x.Options{
		Config:       c.RadioConfig(),
		TCXOVoltage:  c.TCXOVoltage,
		DIO2RFSwitch: c.DIO2RFSwitch,
	})
	if err != nil {
		port.Close()
		return nil, err
	}
	return dev, nil
}

func pinByName(role, name string) (gpio.PinIO, error) {
	if name == "" {
		return nil, fmt.Errorf("%s pin is required", role)
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("%s pin %q not found", role, name)
	}
	return pin, nil
}

func closeStream(rw io.ReadWriter) {
	if closer, ok := rw.(io.Closer); ok {
		closer.Close()
	}
}
