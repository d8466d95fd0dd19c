package main

import (
	"github.com/robotalks/taskcore/pkg/cli/sh"
	"github.com/robotalks/taskcore/pkg/system"

	_ "github.com/robotalks/taskcore/pkg/cli/cmds/probe"
)

//go-build: CGO_ENABLED=0

func init() {
	system.SetupFlags()
}

func main() {
	sh.Main()
}
