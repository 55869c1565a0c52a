package confbk

import (
	"fmt"
	"io"
)

// Level is the user-facing output policy for one invocation.
type Level int

const (
	Normal Level = iota
	Silent
	Debug
)

// debugPrefix marks trace lines so they can be told apart from normal output.
const debugPrefix = "[Debug] "

func (l Level) String() string {
	switch l {
	case Silent:
		return "silent"
	case Debug:
		return "debug"
	default:
		return "normal"
	}
}

// LevelFromFlags decides the level from the quiet and verbose flags.
// Asking for both is a usage error.
func LevelFromFlags(quiet, verbose bool) (Level, error) {
	switch {
	case quiet && verbose:
		return Normal, Usagef("--quiet and --verbose cannot be used together")
	case quiet:
		return Silent, nil
	case verbose:
		return Debug, nil
	default:
		return Normal, nil
	}
}

// Printer gates user-facing output on a Level. The zero value discards
// everything it is given.
type Printer struct {
	level Level
	w     io.Writer
}

// NewPrinter returns a Printer writing to w at the given level.
func NewPrinter(level Level, w io.Writer) Printer {
	return Printer{level: level, w: w}
}

// Level returns the printer's level.
func (p Printer) Level() Level { return p.level }

// Note prints msg unless the level is Silent.
func (p Printer) Note(msg string) {
	if p.w == nil || p.level == Silent {
		return
	}
	fmt.Fprintln(p.w, msg)
}

// Notef is Note with formatting.
func (p Printer) Notef(format string, args ...any) {
	p.Note(fmt.Sprintf(format, args...))
}

// Trace prints msg with the debug prefix, only at Debug.
func (p Printer) Trace(msg string) {
	if p.w == nil || p.level != Debug {
		return
	}
	fmt.Fprintln(p.w, debugPrefix+msg)
}

// Tracef is Trace with formatting.
func (p Printer) Tracef(format string, args ...any) {
	p.Trace(fmt.Sprintf(format, args...))
}
