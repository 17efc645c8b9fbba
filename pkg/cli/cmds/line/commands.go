package line

import (
	"github.com/abiosoft/ishell"

	"github.com/robotalks/lorabridge/pkg/cli/sh"
)

var (
	// TypeCmd feeds bytes into the serial input.
	TypeCmd = ishell.Cmd{
		Name:    "type",
		Aliases: []string{"t"},
		Help:    "TEXT",
		Func: func(c *ishell.Context) {
			sh.SessionFrom(c).Serial.Feed([]byte(sh.JoinArgs(c)))
		},
	}

	// OutCmd drains the serial output.
	OutCmd = ishell.Cmd{
		Name:    "out",
		Aliases: []string{"o"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := sh.ShellFrom(c)
			out := s.Session.Serial.TakeOutput()
			if s.OutputJSON {
				s.Print(c, string(out))
				return
			}
			c.Printf("%q\n", out)
		},
	}
)

func init() {
	sh.AddCmds(
		&TypeCmd,
		&OutCmd,
	)
}
