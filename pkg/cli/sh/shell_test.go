package sh

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/lorabridge/pkg/bridge"
	"github.com/robotalks/lorabridge/pkg/link"
	"github.com/robotalks/lorabridge/pkg/radio"
)

func TestSplitCommands(t *testing.T) {
	require.Equal(t, [][]string{
		{"type", "hello"},
		{"poll", "2"},
		{"state"},
	}, SplitCommands([]string{"type", "hello", ";", "poll", "2", ";", ";", "state", ";"}))
	require.Empty(t, SplitCommands(nil))
}

func TestSessionRoundTrip(t *testing.T) {
	conf := bridge.NewConfig()
	s, err := NewSession(conf)
	require.NoError(t, err)
	require.Equal(t, link.StateAwaitingReceive.String(), s.Status().State)
	require.Equal(t, radio.ModeReceive.String(), s.Status().Radio)

	s.Serial.Feed([]byte("ping"))
	require.Empty(t, s.Poll(1))
	require.Equal(t, 4, s.Status().Pending)

	s.Radio.Receive([]byte("hi"))
	events := s.Poll(1)
	require.Len(t, events, 1)
	require.Equal(t, link.KindReceive, events[0].Kind())
	require.Equal(t, []byte("hi"), s.Serial.TakeOutput())
	require.Equal(t, link.StateIdle.String(), s.Status().State)

	require.Empty(t, s.Poll(1))
	require.Equal(t, [][]byte{[]byte("ping")}, s.Radio.Sent())
	require.Equal(t, link.StateAwaitingTransmit.String(), s.Status().State)

	s.Radio.Complete()
	events = s.Poll(1)
	require.Len(t, events, 1)
	require.Equal(t, link.KindTransmit, events[0].Kind())
	require.Equal(t, link.StateAwaitingReceive.String(), s.Status().State)
	require.Equal(t, uint64(1), s.Status().Stats.FramesSent)
}

func TestSessionFailures(t *testing.T) {
	s, err := NewSession(bridge.NewConfig())
	require.NoError(t, err)

	s.Radio.Corrupt()
	events := s.Poll(1)
	require.Len(t, events, 1)
	require.Equal(t, link.KindIntegrityError, events[0].Kind())
	require.Contains(t, string(s.Serial.TakeOutput()), "CRC error!")

	s.Radio.FailReceive(errors.New("boom"))
	events = s.Poll(1)
	require.Len(t, events, 1)
	require.Equal(t, link.KindReceiveError, events[0].Kind())
	require.Equal(t, link.StateAwaitingReceive.String(), s.Status().State)
}

func TestNewSessionRejectsInvalidConfig(t *testing.T) {
	conf := bridge.NewConfig()
	conf.BandwidthKHz = 99
	_, err := NewSession(conf)
	require.True(t, errors.Is(err, radio.ErrInvalidBandwidth))
}
