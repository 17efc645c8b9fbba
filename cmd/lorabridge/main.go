package main

import (
	"flag"

	"github.com/golang/glog"

	"github.com/robotalks/lorabridge/pkg/bridge"
	fx "github.com/robotalks/lorabridge/pkg/framework"
)

func init() {
	bridge.SetupFlags()
}

func main() {
	flag.Parse()
	defer glog.Flush()

	b := bridge.NewConfig().MustNewBridge()
	if err := fx.NewRunner().HandleSignals().Go(b).Wait(); err != nil {
		glog.Exitf("bridge stopped: %v", err)
	}
}
