package sim

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/lorabridge/pkg/radio"
)

func TestTransceiverRequiresInitialize(t *testing.T) {
	tr := New()
	require.True(t, errors.Is(tr.BeginTransmit([]byte("x")), radio.ErrNotInitialized))
	require.True(t, errors.Is(tr.BeginReceive(), radio.ErrNotInitialized))
	require.Equal(t, []string{CallBeginTransmit, CallBeginReceive}, tr.Calls())
	require.Empty(t, tr.Calls())
}

func TestTransceiverTransmit(t *testing.T) {
	tr := New()
	require.NoError(t, tr.Initialize())
	frame := []byte("ping")
	require.NoError(t, tr.BeginTransmit(frame))
	frame[0] = 'x'
	require.Equal(t, radio.ModeTransmit, tr.Mode())
	require.Equal(t, [][]byte{[]byte("ping")}, tr.Sent())
	require.Empty(t, tr.Sent())

	require.True(t, errors.Is(tr.BeginTransmit(make([]byte, radio.MaxPayloadSize+1)), radio.ErrPacketTooLong))

	failure := errors.New("busy")
	tr.FailNextTransmit(failure)
	require.Equal(t, failure, tr.BeginTransmit(frame))
	require.NoError(t, tr.BeginTransmit(frame))
	require.Len(t, tr.Sent(), 1)
}

func TestTransceiverReceive(t *testing.T) {
	tr := New()
	var completions int
	tr.RegisterCompletionCallback(func() { completions++ })
	require.NoError(t, tr.Initialize())
	require.NoError(t, tr.BeginReceive())
	require.Equal(t, radio.ModeReceive, tr.Mode())

	_, err := tr.ReadReceivedData()
	require.True(t, errors.Is(err, ErrNoPacket))

	tr.Receive([]byte("hi"))
	tr.Corrupt()
	require.Equal(t, 2, completions)
	data, err := tr.ReadReceivedData()
	require.NoError(t, err)
	require.Equal(t, []byte("hi"), data)
	_, err = tr.ReadReceivedData()
	require.True(t, errors.Is(err, radio.ErrCRCMismatch))

	require.Equal(t, -60.0, tr.SignalStrength())
	require.Equal(t, 9.5, tr.SignalToNoiseRatio())
}

func TestTransceiverSettings(t *testing.T) {
	tr := New()
	require.NoError(t, radio.Setup(tr, radio.DefaultConfig()))
	hz, sf, khz := tr.Settings()
	require.Equal(t, uint32(868000000), hz)
	require.Equal(t, uint8(9), sf)
	require.Equal(t, 125.0, khz)
	require.True(t, errors.Is(tr.ConfigureBandwidth(42), radio.ErrInvalidBandwidth))
}
