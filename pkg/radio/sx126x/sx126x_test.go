package sx126x

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/conntest"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"

	"github.com/robotalks/lorabridge/pkg/radio"
)

func newTestDevice(ops ...conntest.IO) (*Device, *conntest.Playback) {
	p := &conntest.Playback{Ops: ops}
	d := newDevice(p, Pins{
		Busy: &gpiotest.Pin{N: "BUSY", L: gpio.Low},
		DIO1: &gpiotest.Pin{N: "DIO1", EdgesChan: make(chan gpio.Level, 1)},
	}, Options{Config: radio.DefaultConfig()})
	d.initialized = true
	return d, p
}

func TestHelpers(t *testing.T) {
	require.Equal(t, uint32(0x36400000), frequencyWord(868000000))
	f1, f2 := imageCalibration(868000000)
	require.Equal(t, []byte{0xD7, 0xDB}, []byte{f1, f2})
	f1, f2 = imageCalibration(433000000)
	require.Equal(t, []byte{0x6B, 0x6F}, []byte{f1, f2})
	require.Equal(t, byte(1), lowDataRateOptimize(12, 125))
	require.Equal(t, byte(0), lowDataRateOptimize(9, 125))
	require.Equal(t, []byte{0x14, 0x24}, syncWordBytes(0x12))
	require.Equal(t, []byte{0x34, 0x44}, syncWordBytes(0x34))
	require.InDelta(t, 31.0, frequencyError([]byte{0x00, 0x01, 0x00}, 125), 1e-9)
	require.InDelta(t, -1.55/12.8, frequencyError([]byte{0x0F, 0xFF, 0xFF}, 125), 1e-9)
	require.Len(t, bandwidthCodes, len(radio.Bandwidths))
}

func TestBeginTransmit(t *testing.T) {
	d, p := newTestDevice(
		conntest.IO{W: []byte{cmdSetStandby, standbyRC}},
		conntest.IO{W: []byte{cmdSetPacketParams, 0x00, 0x08, 0x00, 0x02, 0x01, 0x00}},
		conntest.IO{W: []byte{cmdWriteBuffer, 0x00, 'h', 'i'}},
		conntest.IO{W: []byte{cmdClearIrqStatus, 0xFF, 0xFF}},
		conntest.IO{W: []byte{cmdSetTx, 0x00, 0x00, 0x00}},
	)
	require.NoError(t, d.BeginTransmit([]byte("hi")))
	require.NoError(t, p.Close())
}

func TestBeginTransmitRejects(t *testing.T) {
	d, p := newTestDevice()
	require.True(t, errors.Is(d.BeginTransmit(make([]byte, radio.MaxPayloadSize+1)), radio.ErrPacketTooLong))
	d.initialized = false
	require.True(t, errors.Is(d.BeginTransmit([]byte("x")), radio.ErrNotInitialized))
	require.True(t, errors.Is(d.BeginReceive(), radio.ErrNotInitialized))
	require.NoError(t, p.Close())
}

func TestBeginReceive(t *testing.T) {
	d, p := newTestDevice(
		conntest.IO{W: []byte{cmdSetPacketParams, 0x00, 0x08, 0x00, 0xFF, 0x01, 0x00}},
		conntest.IO{W: []byte{cmdClearIrqStatus, 0xFF, 0xFF}},
		conntest.IO{W: []byte{cmdSetRx, 0xFF, 0xFF, 0xFF}},
	)
	require.NoError(t, d.BeginReceive())
	require.NoError(t, p.Close())
}

func TestReadReceivedData(t *testing.T) {
	d, p := newTestDevice(
		conntest.IO{W: []byte{cmdGetIrqStatus, 0, 0, 0}, R: []byte{0, 0, 0x00, 0x02}},
		conntest.IO{W: []byte{cmdClearIrqStatus, 0xFF, 0xFF}},
		conntest.IO{W: []byte{cmdGetRxBufferStatus, 0, 0, 0}, R: []byte{0, 0, 0x02, 0x10}},
		conntest.IO{W: []byte{cmdReadBuffer, 0x10, 0, 0, 0}, R: []byte{0, 0, 0, 'h', 'i'}},
	)
	data, err := d.ReadReceivedData()
	require.NoError(t, err)
	require.Equal(t, []byte("hi"), data)
	require.NoError(t, p.Close())
}

func TestReadReceivedDataCRCError(t *testing.T) {
	d, p := newTestDevice(
		conntest.IO{W: []byte{cmdGetIrqStatus, 0, 0, 0}, R: []byte{0, 0, 0x00, 0x42}},
		conntest.IO{W: []byte{cmdClearIrqStatus, 0xFF, 0xFF}},
	)
	_, err := d.ReadReceivedData()
	require.True(t, errors.Is(err, radio.ErrCRCMismatch))
	require.NoError(t, p.Close())
}

func TestReadReceivedDataWithoutPacket(t *testing.T) {
	d, p := newTestDevice(
		conntest.IO{W: []byte{cmdGetIrqStatus, 0, 0, 0}, R: []byte{0, 0, 0x00, 0x01}},
		conntest.IO{W: []byte{cmdClearIrqStatus, 0xFF, 0xFF}},
	)
	_, err := d.ReadReceivedData()
	require.True(t, errors.Is(err, ErrNoPacket))
	require.NoError(t, p.Close())
}

func TestLinkQuality(t *testing.T) {
	d, p := newTestDevice(
		conntest.IO{W: []byte{cmdGetPacketStatus, 0, 0, 0, 0}, R: []byte{0, 0, 0x78, 0x28, 0x70}},
		conntest.IO{W: []byte{cmdGetPacketStatus, 0, 0, 0, 0}, R: []byte{0, 0, 0x78, 0xF8, 0x70}},
		conntest.IO{W: []byte{cmdReadRegister, 0x07, 0x6B, 0, 0, 0, 0}, R: []byte{0, 0, 0, 0, 0x00, 0x01, 0x00}},
	)
	require.Equal(t, -60.0, d.SignalStrength())
	require.Equal(t, -2.0, d.SignalToNoiseRatio())
	require.InDelta(t, 31.0, d.FrequencyError(), 1e-9)
	require.NoError(t, p.Close())
}

func TestConfigure(t *testing.T) {
	d, p := newTestDevice(
		conntest.IO{W: []byte{cmdCalibrateImage, 0xD7, 0xDB}},
		conntest.IO{W: []byte{cmdSetRfFrequency, 0x36, 0x40, 0x00, 0x00}},
		conntest.IO{W: []byte{cmdSetModulationParams, 12, 0x04, 3, 1}},
		conntest.IO{W: []byte{cmdSetModulationParams, 12, 0x06, 3, 0}},
	)
	require.NoError(t, d.ConfigureFrequency(868000000))
	require.NoError(t, d.ConfigureSpreadingFactor(12))
	require.NoError(t, d.ConfigureBandwidth(500))
	require.True(t, errors.Is(d.ConfigureFrequency(100000000), radio.ErrInvalidFrequency))
	require.True(t, errors.Is(d.ConfigureSpreadingFactor(13), radio.ErrInvalidSpreadingFactor))
	require.True(t, errors.Is(d.ConfigureBandwidth(100), radio.ErrInvalidBandwidth))
	require.NoError(t, p.Close())
}

func TestBusyTimeout(t *testing.T) {
	d, p := newTestDevice()
	d.busy = &gpiotest.Pin{N: "BUSY", L: gpio.High}
	require.True(t, errors.Is(d.BeginReceive(), ErrBusyTimeout))
	require.NoError(t, p.Close())
}

func TestRunInvokesCallback(t *testing.T) {
	d, _ := newTestDevice()
	called := make(chan struct{}, 1)
	d.RegisterCompletionCallback(func() { called <- struct{}{} })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	d.dio1.(*gpiotest.Pin).EdgesChan <- gpio.High
	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("callback not invoked")
	}
	cancel()
	select {
	case err := <-done:
		require.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}
