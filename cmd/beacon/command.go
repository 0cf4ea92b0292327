package main

import (
	"fmt"
	"strconv"

	"github.com/platinummonkey/beacon/pkg/hit"
)

// parseCommand turns a one-shot subcommand into a hit.
func parseCommand(command string, args []string) (hit.Builder, error) {
	arg := func(i int) string {
		if i < len(args) {
			return args[i]
		}
		return ""
	}

	switch command {
	case "screenview":
		if len(args) != 1 {
			return hit.Builder{}, fmt.Errorf("usage: screenview <name>")
		}
		return hit.ScreenView(args[0]), nil

	case "event":
		if len(args) < 2 || len(args) > 4 {
			return hit.Builder{}, fmt.Errorf("usage: event <category> <action> [label] [value]")
		}
		var value int64
		if v := arg(3); v != "" {
			parsed, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return hit.Builder{}, fmt.Errorf("invalid event value %q: %w", v, err)
			}
			value = parsed
		}
		return hit.Event(args[0], args[1], arg(2), value), nil

	case "exception":
		if len(args) < 1 || len(args) > 2 {
			return hit.Builder{}, fmt.Errorf("usage: exception <description> [fatal]")
		}
		fatal := false
		if v := arg(1); v != "" {
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				return hit.Builder{}, fmt.Errorf("invalid fatal flag %q: %w", v, err)
			}
			fatal = parsed
		}
		return hit.Exception(args[0], fatal), nil

	case "timing":
		if len(args) < 3 || len(args) > 4 {
			return hit.Builder{}, fmt.Errorf("usage: timing <category> <variable> <millis> [label]")
		}
		millis, err := strconv.ParseUint(args[2], 10, 64)
		if err != nil {
			return hit.Builder{}, fmt.Errorf("invalid timing %q: %w", args[2], err)
		}
		return hit.Timing(args[0], args[1], millis, arg(3)), nil

	default:
		return hit.Builder{}, fmt.Errorf("unknown command %q", command)
	}
}
