// Package downlink adds the downlink commands to the ground console.
package downlink

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/downlink.go/pkg/cli/sh"
	dl "github.com/robotalks/downlink.go/pkg/downlink"
	"github.com/robotalks/downlink.go/pkg/msgs"
)

var (
	// StatusCmd exposes StatusQuery command.
	StatusCmd = ishell.Cmd{
		Name:    "status",
		Aliases: []string{"st"},
		Help:    "show mode, state and buffer counters",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			sh.DoCommand(c, &msgs.StatusQuery{})
		}),
	}

	// EventCmd raises any event by name.
	EventCmd = ishell.Cmd{
		Name:    "event",
		Aliases: []string{"ev"},
		Help:    "EVENT",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Err(fmt.Errorf("expect one event, one of %s", eventList()))
				return
			}
			ev, err := dl.ParseEvent(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			sh.DoCommand(c, &msgs.DownlinkCommand{Event: ev.String()})
		}),
	}
)

// CommandName converts an event name to a command name,
// e.g. EnterEclipseSafe to enter-eclipse-safe.
func CommandName(ev dl.Event) string {
	var b strings.Builder
	for n, r := range ev.String() {
		if unicode.IsUpper(r) {
			if n > 0 {
				b.WriteByte('-')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

// EventCmds creates one command per event.
func EventCmds() []*ishell.Cmd {
	events := dl.Events()
	cmds := make([]*ishell.Cmd, 0, len(events))
	for _, ev := range events {
		name := ev.String()
		cmds = append(cmds, &ishell.Cmd{
			Name: CommandName(ev),
			Help: "raise " + name,
			Func: sh.MustBeConnected(func(c *ishell.Context) {
				sh.DoCommand(c, &msgs.DownlinkCommand{Event: name})
			}),
		})
	}
	return cmds
}

func eventList() string {
	var names []string
	for _, ev := range dl.Events() {
		names = append(names, ev.String())
	}
	return strings.Join(names, ", ")
}

func init() {
	sh.AddCmds(&StatusCmd, &EventCmd)
	sh.AddCmds(EventCmds()...)
}
