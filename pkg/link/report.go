package link

import (
	"fmt"
	"io"

	"github.com/golang/glog"
)

// Reporter receives diagnostics from the arbiter. It is called on the
// arbiter goroutine and must not block.
type Reporter interface {
	Report(Event)
}

// ReportFunc is the func form of Reporter.
type ReportFunc func(Event)

// Report implements Reporter.
func (f ReportFunc) Report(ev Event) {
	f(ev)
}

// ReporterMux fans events out to multiple Reporters.
type ReporterMux struct {
	Reporters []Reporter
}

// Add adds more reporters. nil will be skipped.
func (m *ReporterMux) Add(reporters ...Reporter) *ReporterMux {
	for _, r := range reporters {
		if r != nil {
			m.Reporters = append(m.Reporters, r)
		}
	}
	return m
}

// Report implements Reporter.
func (m *ReporterMux) Report(ev Event) {
	for _, r := range m.Reporters {
		r.Report(ev)
	}
}

// LogReporter logs events using glog.
type LogReporter struct{}

// Report implements Reporter.
func (LogReporter) Report(ev Event) {
	switch e := ev.(type) {
	case *TransmitEvent:
		if e.Err != nil {
			glog.Errorf("%v", e)
		} else {
			glog.V(1).Infof("%v", e)
		}
	case *ReceiveEvent:
		glog.V(1).Infof("%v", e)
	case *IntegrityErrorEvent, *OverflowEvent:
		glog.Warningf("%v", e)
	case *ReceiveErrorEvent:
		glog.Errorf("%v", e)
	default:
		glog.Infof("%s: %v", ev.Kind(), ev)
	}
}

// SerialReporter writes diagnostics as text lines to the serial output.
// A received payload has already been written when its event is reported,
// so link quality lines follow the payload.
type SerialReporter struct {
	Writer io.Writer
}

// Report implements Reporter.
func (r *SerialReporter) Report(ev Event) {
	var err error
	switch e := ev.(type) {
	case *TransmitEvent:
		if e.Err != nil {
			_, err = fmt.Fprintf(r.Writer, "\ntransmit failed: %v\n", e.Err)
		}
	case *ReceiveEvent:
		if q := e.Quality; q != nil {
			_, err = fmt.Fprintf(r.Writer, "\nRSSI: %.2f dBm\nSNR: %.2f dB\nfreq error: %.1f Hz\n",
				q.RSSI, q.SNR, q.FreqError)
		}
	case *IntegrityErrorEvent:
		_, err = fmt.Fprintln(r.Writer, "\nCRC error!")
	case *ReceiveErrorEvent:
		_, err = fmt.Fprintf(r.Writer, "\n%s failed: %v\n", e.Op, e.Err)
	case *OverflowEvent:
		_, err = fmt.Fprintf(r.Writer, "\ninput overflow, dropped %d bytes\n", e.Dropped)
	}
	if err != nil {
		glog.Warningf("write diagnostics error: %v", err)
	}
}
