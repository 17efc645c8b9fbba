package main

import (
	"github.com/robotalks/lorabridge/pkg/bridge"
	"github.com/robotalks/lorabridge/pkg/cli/sh"

	_ "github.com/robotalks/lorabridge/pkg/cli/cmds/all"
)

//go-build: CGO_ENABLED=0

func init() {
	bridge.SetupFlags()
}

func main() {
	sh.Main()
}
