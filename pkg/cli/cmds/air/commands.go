package air

import (
	"errors"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/lorabridge/pkg/cli/sh"
)

var (
	// AirCmd delivers a packet over the air.
	AirCmd = ishell.Cmd{
		Name:    "air",
		Aliases: []string{"rx"},
		Help:    "TEXT",
		Func: func(c *ishell.Context) {
			sh.SessionFrom(c).Radio.Receive([]byte(sh.JoinArgs(c)))
		},
	}

	// CorruptCmd delivers a packet failing the integrity check.
	CorruptCmd = ishell.Cmd{
		Name: "corrupt",
		Help: "",
		Func: func(c *ishell.Context) {
			sh.SessionFrom(c).Radio.Corrupt()
		},
	}

	// RxErrorCmd makes the next reception fail with a message.
	RxErrorCmd = ishell.Cmd{
		Name: "rx-error",
		Help: "[MESSAGE]",
		Func: func(c *ishell.Context) {
			msg := sh.JoinArgs(c)
			if msg == "" {
				msg = "read error"
			}
			sh.SessionFrom(c).Radio.FailReceive(errors.New(msg))
		},
	}

	// FailTxCmd makes the next transmit fail.
	FailTxCmd = ishell.Cmd{
		Name: "fail-tx",
		Help: "[MESSAGE]",
		Func: func(c *ishell.Context) {
			msg := sh.JoinArgs(c)
			if msg == "" {
				msg = "transmit error"
			}
			sh.SessionFrom(c).Radio.FailNextTransmit(errors.New(msg))
		},
	}

	// DoneCmd fires the completion interrupt.
	DoneCmd = ishell.Cmd{
		Name:    "done",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			sh.SessionFrom(c).Radio.Complete()
		},
	}

	// SentCmd lists frames transmitted since last time.
	SentCmd = ishell.Cmd{
		Name: "sent",
		Help: "",
		Func: func(c *ishell.Context) {
			s := sh.ShellFrom(c)
			frames := s.Session.Radio.Sent()
			if s.OutputJSON {
				texts := make([]string, len(frames))
				for n, frame := range frames {
					texts[n] = string(frame)
				}
				s.Print(c, texts)
				return
			}
			for _, frame := range frames {
				c.Printf("%q\n", frame)
			}
		},
	}
)

func init() {
	sh.AddCmds(
		&AirCmd,
		&CorruptCmd,
		&RxErrorCmd,
		&FailTxCmd,
		&DoneCmd,
		&SentCmd,
	)
}
