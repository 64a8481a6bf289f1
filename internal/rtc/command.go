// Package rtc implements the runtime control channel: commands posted by an
// operator or by the process itself are queued per subscriber and consumed by
// the subscriber at its wait checkpoints.
package rtc

import (
	"fmt"
	"strings"
)

// Command is a runtime control opcode.
type Command uint32

const (
	// CommandExecute requests an immediate housekeeping cycle.
	CommandExecute Command = iota + 1
	// CommandShutdown terminates the subscriber. It is always delivered,
	// regardless of the kinds a subscriber asked for.
	CommandShutdown
)

var commandNames = map[Command]string{
	CommandExecute:  "housekeeper_execute",
	CommandShutdown: "shutdown",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint32(c))
}

// Terminal reports whether the command ends the subscriber's wait drain.
func (c Command) Terminal() bool {
	return c == CommandShutdown
}

// ParseCommand converts a runtime control option into a Command.
func ParseCommand(option string) (Command, error) {
	option = strings.TrimSpace(option)
	for cmd, name := range commandNames {
		if option == name {
			return cmd, nil
		}
	}
	return 0, fmt.Errorf("unknown runtime control option %q", option)
}
