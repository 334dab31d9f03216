package main

import (
	"github.com/robotalks/fpm.go/pkg/cli/sh"
	"github.com/robotalks/fpm.go/pkg/env"

	_ "github.com/robotalks/fpm.go/pkg/cli/cmds/sensor"
)

//go-build: CGO_ENABLED=0

func init() {
	env.SetupFlags()
}

func main() {
	sh.Main()
}
