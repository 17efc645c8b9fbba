package sh

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell"
	"github.com/golang/glog"

	"github.com/robotalks/lorabridge/pkg/bridge"
	fx "github.com/robotalks/lorabridge/pkg/framework"
	"github.com/robotalks/lorabridge/pkg/link"
	"github.com/robotalks/lorabridge/pkg/radio"
	"github.com/robotalks/lorabridge/pkg/radio/sim"
	"github.com/robotalks/lorabridge/pkg/serial"
)

// Shell provides ishell backed interactive shell driving a simulated link.
type Shell struct {
	Interactive bool
	OutputJSON  bool

	Shell   *ishell.Shell
	Config  *bridge.Config
	Session *Session
}

// Session is an arbiter wired to a simulated transceiver and an
// in-memory serial port. The loop is stepped by commands.
type Session struct {
	Radio   *sim.Transceiver
	Serial  *serial.Memory
	Arbiter *link.Arbiter
	Loop    *fx.Loop

	events []link.Event
}

// Status is the printable state of a Session.
type Status struct {
	State   string     `json:"state"`
	Pending int        `json:"pending"`
	Radio   string     `json:"radio"`
	Stats   link.Stats `json:"stats"`
}

const (
	shellKey = "$shell"
	prompt   = "radiosim > "
	// commandSep separates multiple commands given with -e.
	commandSep = ";"
)

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&PollCmd,
		&StateCmd,
		&ResetCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// NewSession creates a Session using the radio and link settings of conf.
func NewSession(conf *bridge.Config) (*Session, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	s := &Session{
		Radio:  sim.New(),
		Serial: &serial.Memory{},
		Loop:   fx.NewLoop(),
	}
	if err := radio.Setup(s.Radio, conf.RadioConfig()); err != nil {
		return nil, err
	}
	reporter := (&link.ReporterMux{}).Add(
		&link.SerialReporter{Writer: s.Serial},
		link.ReportFunc(func(ev link.Event) { s.events = append(s.events, ev) }),
	)
	s.Arbiter = link.NewArbiter(s.Radio, s.Serial, link.Options{
		MaxFrameSize:   conf.MaxFrameSize,
		StartListening: conf.StartListening,
		Diagnostics:    conf.Diagnostics,
		Reporter:       reporter,
	})
	if err := s.Arbiter.Start(); err != nil {
		return nil, err
	}
	s.Loop.Add(s.Arbiter)
	return s, nil
}

// Poll runs n loop iterations and returns the events reported.
func (s *Session) Poll(n int) []link.Event {
	for i := 0; i < n; i++ {
		s.Loop.RunIteration(context.Background())
	}
	events := s.events
	s.events = nil
	return events
}

// Status returns the current status.
func (s *Session) Status() Status {
	return Status{
		State:   s.Arbiter.State().String(),
		Pending: s.Arbiter.Pending(),
		Radio:   s.Radio.Mode().String(),
		Stats:   s.Arbiter.Stats(),
	}
}

// New creates a new shell.
func New(conf *bridge.Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:  ishell.New(),
		Config: conf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(prompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// SessionFrom gets the current Session from ishell context.
func SessionFrom(c *ishell.Context) *Session {
	return ShellFrom(c).Session
}

// Reset starts a new session.
func (s *Shell) Reset() error {
	session, err := NewSession(s.Config)
	if err != nil {
		return err
	}
	s.Session = session
	return nil
}

// Print prints v as JSON or with its default format.
func (s *Shell) Print(c *ishell.Context, v interface{}) {
	if s.OutputJSON {
		out, err := json.Marshal(v)
		if err != nil {
			c.Err(err)
			return
		}
		c.Println(string(out))
		return
	}
	c.Printf("%v\n", v)
}

// PrintEvents prints events reported by the arbiter.
func PrintEvents(c *ishell.Context, events []link.Event) {
	for _, ev := range events {
		c.Printf("[%s] %v\n", ev.Kind(), ev)
	}
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if err := s.Reset(); err != nil {
		glog.Exitf("create session error: %v", err)
	}
	if len(args) > 0 {
		for _, cmd := range SplitCommands(args) {
			if err := s.Shell.Process(cmd...); err != nil {
				glog.Exit(err)
			}
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	glog.Exit("command expected")
}

// SplitCommands splits args into commands separated by ";".
func SplitCommands(args []string) [][]string {
	var cmds [][]string
	var cur []string
	for _, arg := range args {
		if arg == commandSep {
			if len(cur) > 0 {
				cmds = append(cmds, cur)
			}
			cur = nil
			continue
		}
		cur = append(cur, arg)
	}
	if len(cur) > 0 {
		cmds = append(cmds, cur)
	}
	return cmds
}

var (
	// PollCmd runs loop iterations.
	PollCmd = ishell.Cmd{
		Name:    "poll",
		Aliases: []string{"p"},
		Help:    "[N]",
		Func: func(c *ishell.Context) {
			n := 1
			if len(c.Args) > 0 {
				var err error
				if n, err = strconv.Atoi(c.Args[0]); err != nil || n < 1 {
					c.Err(fmt.Errorf("invalid count %q", c.Args[0]))
					return
				}
			}
			PrintEvents(c, SessionFrom(c).Poll(n))
		},
	}

	// StateCmd shows the arbiter state.
	StateCmd = ishell.Cmd{
		Name:    "state",
		Aliases: []string{"s"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			st := s.Session.Status()
			if s.OutputJSON {
				s.Print(c, st)
				return
			}
			c.Printf("state: %s, pending: %d, radio: %s\n", st.State, st.Pending, st.Radio)
			c.Printf("sent: %d (%d failed), received: %d (%d corrupted, %d failed), dropped: %d\n",
				st.Stats.FramesSent, st.Stats.TransmitErrors, st.Stats.PacketsReceived,
				st.Stats.IntegrityErrors, st.Stats.ReceiveErrors, st.Stats.BytesDropped)
		},
	}

	// ResetCmd restarts the session.
	ResetCmd = ishell.Cmd{
		Name: "reset",
		Help: "",
		Func: func(c *ishell.Context) {
			if err := ShellFrom(c).Reset(); err != nil {
				c.Err(err)
			}
		},
	}
)

// JoinArgs joins command arguments with single spaces.
func JoinArgs(c *ishell.Context) string {
	return strings.Join(c.Args, " ")
}

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New(bridge.NewConfig()).Run(flag.Args()...)
}
