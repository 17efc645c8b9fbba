package link

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/lorabridge/pkg/radio"
	"github.com/robotalks/lorabridge/pkg/radio/sim"
)

type fakeSerial struct {
	in  []byte
	out bytes.Buffer
}

func (s *fakeSerial) BytesAvailable() int { return len(s.in) }

func (s *fakeSerial) ReadUpTo(n int) []byte {
	if n > len(s.in) {
		n = len(s.in)
	}
	p := s.in[:n]
	s.in = s.in[n:]
	return p
}

func (s *fakeSerial) Write(p []byte) (int, error) { return s.out.Write(p) }

func (s *fakeSerial) feed(str string) { s.in = append(s.in, str...) }

type eventRecorder struct {
	events []Event
}

func (r *eventRecorder) Report(ev Event) { r.events = append(r.events, ev) }

func (r *eventRecorder) take() []Event {
	events := r.events
	r.events = nil
	return events
}

type arbiterTestCtx struct {
	t       *testing.T
	radio   *sim.Transceiver
	serial  *fakeSerial
	events  *eventRecorder
	arbiter *Arbiter
	wakeUps int
}

func newArbiterTest(t *testing.T, opts Options) *arbiterTestCtx {
	c := &arbiterTestCtx{
		t:      t,
		radio:  sim.New(),
		serial: &fakeSerial{},
		events: &eventRecorder{},
	}
	require.NoError(t, c.radio.Initialize())
	opts.Reporter = c.events
	opts.Wake = func() { c.wakeUps++ }
	c.arbiter = NewArbiter(c.radio, c.serial, opts)
	require.NoError(t, c.arbiter.Start())
	c.radio.Calls()
	return c
}

func (c *arbiterTestCtx) poll() *arbiterTestCtx {
	c.arbiter.PollOnce()
	return c
}

func (c *arbiterTestCtx) expectCalls(calls ...string) *arbiterTestCtx {
	actual := c.radio.Calls()
	if len(calls) == 0 {
		require.Empty(c.t, actual)
	} else {
		require.Equal(c.t, calls, actual)
	}
	return c
}

func (c *arbiterTestCtx) expectState(s State) *arbiterTestCtx {
	require.Equal(c.t, s, c.arbiter.State())
	return c
}

func TestStartListening(t *testing.T) {
	c := newArbiterTest(t, Options{StartListening: true})
	c.expectState(StateAwaitingReceive)
	require.Equal(t, radio.ModeReceive, c.radio.Mode())

	c = newArbiterTest(t, Options{})
	c.expectState(StateIdle)
	require.Equal(t, radio.ModeStandby, c.radio.Mode())
}

func TestPollWithoutCompletionDoesNothing(t *testing.T) {
	c := newArbiterTest(t, Options{StartListening: true})
	c.poll().poll().expectCalls().expectState(StateAwaitingReceive)
	require.Empty(t, c.events.take())
	require.Zero(t, c.serial.out.Len())
}

func TestReceiveEmitsPayloadVerbatim(t *testing.T) {
	c := newArbiterTest(t, Options{StartListening: true})
	c.radio.Receive([]byte("hi"))
	require.Equal(t, 1, c.wakeUps)
	c.poll().
		expectCalls(sim.CallReadReceivedData, sim.CallBeginReceive).
		expectState(StateAwaitingReceive)
	require.Equal(t, "hi", c.serial.out.String())
	events := c.events.take()
	require.Len(t, events, 1)
	require.Equal(t, []byte("hi"), events[0].(*ReceiveEvent).Payload)
	require.Nil(t, events[0].(*ReceiveEvent).Quality)

	c.poll().expectCalls()
}

func TestTransmitWhenIdle(t *testing.T) {
	c := newArbiterTest(t, Options{})
	c.serial.feed("ping")
	c.poll().expectCalls(sim.CallBeginTransmit).expectState(StateAwaitingTransmit)
	require.Equal(t, [][]byte{[]byte("ping")}, c.radio.Sent())
	require.Zero(t, c.arbiter.Pending())
}

func TestTransmitCompletionRearmsReceive(t *testing.T) {
	c := newArbiterTest(t, Options{})
	c.serial.feed("ping")
	c.poll().expectCalls(sim.CallBeginTransmit)
	c.radio.Complete()
	c.poll().expectCalls(sim.CallBeginReceive).expectState(StateAwaitingReceive)
	require.Equal(t, []Event{&TransmitEvent{Size: 4}}, c.events.take())
	require.Equal(t, uint64(1), c.arbiter.Stats().FramesSent)
}

func TestTransmitStartFailureRearmsReceive(t *testing.T) {
	txErr := &radio.StatusError{Op: "transmit", Code: -5}
	c := newArbiterTest(t, Options{})
	c.radio.FailNextTransmit(txErr)
	c.serial.feed("ping")
	c.poll().
		expectCalls(sim.CallBeginTransmit, sim.CallBeginReceive).
		expectState(StateAwaitingReceive)
	require.Equal(t, []Event{&TransmitEvent{Size: 4, Err: txErr}}, c.events.take())
	require.Equal(t, uint64(1), c.arbiter.Stats().TransmitErrors)
	require.Zero(t, c.arbiter.Stats().FramesSent)

	c.radio.Receive([]byte("ok"))
	c.poll().expectCalls(sim.CallReadReceivedData, sim.CallBeginReceive)
	require.Equal(t, "ok", c.serial.out.String())
}

func TestReceiveErrorsRearm(t *testing.T) {
	other := errors.New("spi timeout")
	testCases := []struct {
		name   string
		inject func(*sim.Transceiver)
		expect Event
	}{
		{
			name:   "integrity error",
			inject: (*sim.Transceiver).Corrupt,
			expect: &IntegrityErrorEvent{},
		},
		{
			name:   "other error",
			inject: func(r *sim.Transceiver) { r.FailReceive(other) },
			expect: &ReceiveErrorEvent{Op: "read data", Err: other},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := newArbiterTest(t, Options{StartListening: true, Diagnostics: true})
			tc.inject(c.radio)
			c.poll().
				expectCalls(sim.CallReadReceivedData, sim.CallBeginReceive).
				expectState(StateAwaitingReceive)
			require.Zero(t, c.serial.out.Len())
			require.Equal(t, []Event{tc.expect}, c.events.take())
		})
	}
}

func TestNoTransmitWhileListening(t *testing.T) {
	c := newArbiterTest(t, Options{StartListening: true})
	c.serial.feed("queued")
	c.poll().poll().poll().expectCalls().expectState(StateAwaitingReceive)
	require.Equal(t, 6, c.arbiter.Pending())

	c.radio.Receive([]byte("hello"))
	c.poll().
		expectCalls(sim.CallReadReceivedData, sim.CallBeginReceive).
		expectState(StateIdle)
	require.Equal(t, "hello", c.serial.out.String())

	c.poll().expectCalls(sim.CallBeginTransmit).expectState(StateAwaitingTransmit)
	require.Equal(t, [][]byte{[]byte("queued")}, c.radio.Sent())

	c.radio.Complete()
	c.poll().expectCalls(sim.CallBeginReceive).expectState(StateAwaitingReceive)
}

func TestCompletionWhileIdleAndListening(t *testing.T) {
	c := newArbiterTest(t, Options{StartListening: true})
	c.serial.feed("queued")
	c.radio.Receive([]byte("first"))
	c.poll().
		expectCalls(sim.CallReadReceivedData, sim.CallBeginReceive).
		expectState(StateIdle)
	c.events.take()

	// the next packet completes before the queued frame is admitted
	c.radio.Receive([]byte("second"))
	c.poll().
		expectCalls(sim.CallReadReceivedData, sim.CallBeginReceive).
		expectState(StateIdle)
	require.Empty(t, c.radio.Sent())
	require.Equal(t, "firstsecond", c.serial.out.String())
	events := c.events.take()
	require.Len(t, events, 1)
	require.Equal(t, []byte("second"), events[0].(*ReceiveEvent).Payload)

	c.poll().expectCalls(sim.CallBeginTransmit).expectState(StateAwaitingTransmit)
	require.Equal(t, [][]byte{[]byte("queued")}, c.radio.Sent())
	c.radio.Complete()
	c.poll().expectCalls(sim.CallBeginReceive).expectState(StateAwaitingReceive)
	require.Equal(t, []Event{&TransmitEvent{Size: 6}}, c.events.take())
	require.Equal(t, uint64(2), c.arbiter.Stats().PacketsReceived)
	require.Equal(t, uint64(1), c.arbiter.Stats().FramesSent)
}

func TestNoTransmitWhileTransmitting(t *testing.T) {
	c := newArbiterTest(t, Options{})
	c.serial.feed("one")
	c.poll().expectCalls(sim.CallBeginTransmit)
	c.serial.feed("two")
	c.poll().expectCalls().expectState(StateAwaitingTransmit)
	require.Equal(t, 3, c.arbiter.Pending())
}

func TestInputBound(t *testing.T) {
	c := newArbiterTest(t, Options{StartListening: true, MaxFrameSize: 8})
	c.serial.feed("0123456789")
	c.poll()
	c.serial.feed("ab")
	c.poll()
	require.Equal(t, 8, c.arbiter.Pending())
	require.Zero(t, c.serial.BytesAvailable())
	require.Equal(t, []Event{
		&OverflowEvent{Dropped: 2, Limit: 8},
		&OverflowEvent{Dropped: 2, Limit: 8},
	}, c.events.take())
	require.Equal(t, uint64(4), c.arbiter.Stats().BytesDropped)

	c.radio.Receive(nil)
	c.poll().poll()
	require.Equal(t, [][]byte{[]byte("01234567")}, c.radio.Sent())
}

func TestMaxFrameSizeDefault(t *testing.T) {
	c := newArbiterTest(t, Options{MaxFrameSize: 1000})
	c.serial.feed(string(make([]byte, 300)))
	c.poll()
	sent := c.radio.Sent()
	require.Len(t, sent, 1)
	require.Len(t, sent[0], radio.MaxPayloadSize)
}

func TestDiagnostics(t *testing.T) {
	c := newArbiterTest(t, Options{StartListening: true, Diagnostics: true})
	c.radio.Quality = sim.Quality{RSSI: -42.5, SNR: 9.25, FreqError: 12.3}
	c.arbiter.reporter = (&ReporterMux{}).Add(c.events, &SerialReporter{Writer: &c.serial.out})
	c.radio.Receive([]byte("data"))
	c.poll()
	require.Equal(t, "data\nRSSI: -42.50 dBm\nSNR: 9.25 dB\nfreq error: 12.3 Hz\n", c.serial.out.String())
	events := c.events.take()
	require.Len(t, events, 1)
	require.Equal(t, &LinkQuality{RSSI: -42.5, SNR: 9.25, FreqError: 12.3}, events[0].(*ReceiveEvent).Quality)
}

func TestSpuriousCompletionWhenIdle(t *testing.T) {
	c := newArbiterTest(t, Options{})
	c.radio.Complete()
	c.poll().expectCalls().expectState(StateIdle)
	require.Empty(t, c.events.take())
}

func TestCoalescedCompletions(t *testing.T) {
	c := newArbiterTest(t, Options{StartListening: true})
	c.radio.Receive([]byte("a"))
	c.radio.Complete()
	c.poll().expectCalls(sim.CallReadReceivedData, sim.CallBeginReceive)
	c.poll().expectCalls()
	require.Equal(t, 2, c.wakeUps)
}
