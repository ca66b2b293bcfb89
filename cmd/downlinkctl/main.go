package main

import (
	"github.com/robotalks/downlink.go/pkg/cli/sh"

	_ "github.com/robotalks/downlink.go/pkg/cli/cmds/downlink"
)

//go-build: CGO_ENABLED=0

func main() {
	sh.Main()
}
