package selector

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/shlex"

	"go-inkdeck/action"
)

// CommandKind is what a host command asks for
type CommandKind int

const (
	CmdMode CommandKind = iota + 1
	CmdPress
	CmdRelease
	CmdTurn
	CmdReload
	CmdQuit
)

func (k CommandKind) String() string {
	switch k {
	case CmdMode:
		return "mode"
	case CmdPress:
		return "press"
	case CmdRelease:
		return "release"
	case CmdTurn:
		return "turn"
	case CmdReload:
		return "reload"
	case CmdQuit:
		return "quit"
	}
	return "unknown"
}

// Command is one parsed host command line
type Command struct {
	Kind  CommandKind
	Mode  string       // CmdMode
	Input action.Input // CmdPress, CmdRelease, CmdTurn (DialCW or DialCCW)
}

// ParseCommand parses one line:
//
//	mode NAME          switch to a mode ("quoted names" allowed)
//	press INPUT        e.g. press SW3_PRESS, or press 3
//	release INPUT
//	turn cw|ccw
//	reload
//	quit
//
// A blank line or comment returns a zero Command and no error.
func ParseCommand(line string) (Command, error) {
	args, err := shlex.Split(line)
	if err != nil {
		return Command{}, fmt.Errorf("parse %q: %w", line, err)
	}
	if len(args) == 0 {
		return Command{}, nil
	}

	verb := strings.ToLower(args[0])
	want := func(n int) error {
		if len(args) != n+1 {
			return fmt.Errorf("%s takes %d argument(s), got %d", verb, n, len(args)-1)
		}
		return nil
	}

	switch verb {
	case "mode":
		if err := want(1); err != nil {
			return Command{}, err
		}
		return Command{Kind: CmdMode, Mode: args[1]}, nil
	case "press", "release":
		if err := want(1); err != nil {
			return Command{}, err
		}
		in, err := buttonInput(args[1], verb == "press")
		if err != nil {
			return Command{}, err
		}
		kind := CmdPress
		if verb == "release" {
			kind = CmdRelease
		}
		return Command{Kind: kind, Input: in}, nil
	case "turn":
		if err := want(1); err != nil {
			return Command{}, err
		}
		switch strings.ToLower(args[1]) {
		case "cw", "+":
			return Command{Kind: CmdTurn, Input: action.DialCW}, nil
		case "ccw", "-":
			return Command{Kind: CmdTurn, Input: action.DialCCW}, nil
		}
		return Command{}, fmt.Errorf("turn direction %q, want cw or ccw", args[1])
	case "reload":
		if err := want(0); err != nil {
			return Command{}, err
		}
		return Command{Kind: CmdReload}, nil
	case "quit", "exit":
		return Command{Kind: CmdQuit}, nil
	}
	return Command{}, fmt.Errorf("unknown command %q", args[0])
}

// buttonInput accepts an input name or a bare button number
func buttonInput(s string, press bool) (action.Input, error) {
	if n, err := strconv.Atoi(s); err == nil {
		if n < 1 || n > action.MaxButtons {
			return 0, fmt.Errorf("button %d out of range", n)
		}
		if press {
			return action.ButtonPress(n), nil
		}
		return action.ButtonRelease(n), nil
	}
	return action.ParseInput(s)
}
