package link

import (
	"errors"

	"github.com/golang/glog"

	fx "github.com/robotalks/lorabridge/pkg/framework"
	"github.com/robotalks/lorabridge/pkg/radio"
)

// SerialPort is the non-blocking serial side consumed by the Arbiter.
type SerialPort interface {
	// BytesAvailable is the number of bytes which can be read now.
	BytesAvailable() int
	// ReadUpTo returns at most n of the available bytes without blocking.
	ReadUpTo(n int) []byte
	// Write writes bytes to the serial output.
	Write(p []byte) (int, error)
}

// Options configures an Arbiter.
type Options struct {
	// MaxFrameSize bounds the outbound frame, defaults to radio.MaxPayloadSize.
	MaxFrameSize int
	// StartListening arms reception in Start, otherwise the arbiter
	// starts idle and the first frame is transmitted right away.
	StartListening bool
	// Diagnostics measures link quality of received packets.
	Diagnostics bool
	// Reporter receives diagnostics, defaults to LogReporter.
	Reporter Reporter
	// Wake is called from interrupt context after the latch is set, e.g.
	// to trigger the next loop iteration. It must not block.
	Wake func()
}

// Stats are counters since start.
type Stats struct {
	FramesSent      uint64
	TransmitErrors  uint64
	PacketsReceived uint64
	IntegrityErrors uint64
	ReceiveErrors   uint64
	BytesDropped    uint64
}

// Arbiter decides what the transceiver and the serial port do next.
type Arbiter struct {
	radio    radio.Transceiver
	serial   SerialPort
	latch    CompletionLatch
	acc      *Accumulator
	options  Options
	reporter Reporter

	state State
	// listening is set while idle with reception still armed, i.e. after
	// a receive completed and outbound bytes are pending.
	listening bool
	txSize    int
	txResult  error
	stats     Stats
}

// NewArbiter creates an Arbiter. Start must be called before PollOnce.
func NewArbiter(t radio.Transceiver, s SerialPort, opts Options) *Arbiter {
	if opts.MaxFrameSize <= 0 || opts.MaxFrameSize > radio.MaxPayloadSize {
		opts.MaxFrameSize = radio.MaxPayloadSize
	}
	a := &Arbiter{
		radio:    t,
		serial:   s,
		acc:      NewAccumulator(opts.MaxFrameSize),
		options:  opts,
		reporter: opts.Reporter,
		state:    StateIdle,
	}
	if a.reporter == nil {
		a.reporter = LogReporter{}
	}
	return a
}

// Start registers the completion callback and, with StartListening, arms
// reception. An error here is fatal.
func (a *Arbiter) Start() error {
	a.radio.RegisterCompletionCallback(a.onCompletion)
	if !a.options.StartListening {
		return nil
	}
	if err := a.radio.BeginReceive(); err != nil {
		return err
	}
	a.setState(StateAwaitingReceive)
	return nil
}

// onCompletion runs in interrupt context: it touches the latch only.
func (a *Arbiter) onCompletion() {
	a.latch.Notify()
	if wake := a.options.Wake; wake != nil {
		wake()
	}
}

// Latch exposes the completion latch, e.g. for injecting completions.
func (a *Arbiter) Latch() *CompletionLatch {
	return &a.latch
}

// State returns the current state.
func (a *Arbiter) State() State {
	return a.state
}

// Pending is the number of serial bytes waiting to be transmitted.
func (a *Arbiter) Pending() int {
	return a.acc.Len()
}

// Stats returns the counters.
func (a *Arbiter) Stats() Stats {
	return a.stats
}

// PollOnce ingests serial input, starts a transmit if eligible and
// handles a completed radio operation, in that order. A completion while
// idle and listening belongs to the armed reception and is handled before
// any transmit is started.
func (a *Arbiter) PollOnce() {
	a.ingest()
	if a.listening && a.latch.TakeAndClear() {
		a.received()
		return
	}
	a.admit()
	if a.latch.TakeAndClear() {
		a.complete()
	}
}

// Control implements framework.Controller.
func (a *Arbiter) Control(fx.ControlContext) error {
	a.PollOnce()
	return nil
}

// AddToLoop implements framework.LoopAdder.
func (a *Arbiter) AddToLoop(loop *fx.Loop) {
	loop.AddController(fx.PrLvControl, a)
}

func (a *Arbiter) ingest() {
	var dropped int
	for avail := a.serial.BytesAvailable(); avail > 0; {
		n := avail
		if room := a.acc.Room(); room > 0 && n > room {
			n = room
		}
		p := a.serial.ReadUpTo(n)
		if len(p) == 0 {
			break
		}
		avail -= len(p)
		dropped += a.acc.Append(p)
	}
	if dropped > 0 {
		a.stats.BytesDropped += uint64(dropped)
		a.reporter.Report(&OverflowEvent{Dropped: dropped, Limit: a.acc.Limit()})
	}
}

func (a *Arbiter) admit() {
	if a.acc.Len() == 0 || a.state != StateIdle {
		return
	}
	frame := a.acc.Take()
	a.listening = false
	a.txSize, a.txResult = len(frame), a.radio.BeginTransmit(frame)
	if a.txResult != nil {
		// nothing is in flight, no completion will follow
		a.transmitted()
		return
	}
	a.setState(StateAwaitingTransmit)
}

func (a *Arbiter) complete() {
	switch a.state {
	case StateAwaitingTransmit:
		a.transmitted()
	case StateAwaitingReceive:
		a.received()
	default:
		glog.V(2).Infof("completion ignored in state %s", a.state)
	}
}

func (a *Arbiter) transmitted() {
	ev := &TransmitEvent{Size: a.txSize, Err: a.txResult}
	if ev.Err != nil {
		a.stats.TransmitErrors++
	} else {
		a.stats.FramesSent++
	}
	a.txSize, a.txResult = 0, nil
	a.reporter.Report(ev)
	a.rearm()
}

func (a *Arbiter) received() {
	payload, err := a.radio.ReadReceivedData()
	switch {
	case err == nil:
		a.stats.PacketsReceived++
		if _, err = a.serial.Write(payload); err != nil {
			glog.Errorf("serial write error: %v", err)
		}
		ev := &ReceiveEvent{Payload: payload}
		if a.options.Diagnostics {
			ev.Quality = &LinkQuality{
				RSSI:      a.radio.SignalStrength(),
				SNR:       a.radio.SignalToNoiseRatio(),
				FreqError: a.radio.FrequencyError(),
			}
		}
		a.reporter.Report(ev)
	case errors.Is(err, radio.ErrCRCMismatch):
		a.stats.IntegrityErrors++
		a.reporter.Report(&IntegrityErrorEvent{})
	default:
		a.stats.ReceiveErrors++
		a.reporter.Report(&ReceiveErrorEvent{Op: "read data", Err: err})
	}
	a.rearm()
	// Reception is armed again but no packet is in flight yet: a frame
	// queued meanwhile becomes eligible for the next admission.
	if a.acc.Len() > 0 {
		a.setState(StateIdle)
		a.listening = true
	}
}

// rearm always leaves the arbiter awaiting reception, even when the
// transceiver reports an error, so the link keeps listening.
func (a *Arbiter) rearm() {
	if err := a.radio.BeginReceive(); err != nil {
		a.stats.ReceiveErrors++
		a.reporter.Report(&ReceiveErrorEvent{Op: "begin receive", Err: err})
	}
	a.listening = false
	a.setState(StateAwaitingReceive)
}

func (a *Arbiter) setState(s State) {
	if a.state != s {
		glog.V(2).Infof("link state %s -> %s", a.state, s)
		a.state = s
	}
}
