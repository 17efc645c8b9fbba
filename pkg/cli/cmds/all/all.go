// Package all registers all shell commands.
package all

import (
	_ "github.com/robotalks/lorabridge/pkg/cli/cmds/air"
	_ "github.com/robotalks/lorabridge/pkg/cli/cmds/line"
)
