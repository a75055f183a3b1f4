// Package logging builds the zerolog loggers used by the combostat commands.
//
// Output is JSON on stderr with RFC3339Nano timestamps. PRETTY=1 switches
// to the human console writer and DEBUG=1 lowers the level to debug.
package logging

import (
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options control logger construction.
type Options struct {
	Out    io.Writer
	Pretty bool
	Debug  bool
	// Caller adds file:line and function to every event.
	Caller bool
}

// OptionsFromEnv reads PRETTY and DEBUG through getenv.
func OptionsFromEnv(getenv func(string) string) Options {
	return Options{
		Pretty: getenv("PRETTY") == "1",
		Debug:  getenv("DEBUG") == "1",
		Caller: getenv("LOG_CALLER") == "1",
	}
}

// New returns a configured logger.
func New(o Options) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFieldName = "time"
	zerolog.CallerMarshalFunc = callerMarshal

	out := o.Out
	if out == nil {
		out = os.Stderr
	}
	if o.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	if o.Caller {
		logger = logger.Hook(callerHook{})
	}
	if o.Debug {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}
	return logger
}

type callerHook struct{}

func (callerHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	e.Caller(3)
}

func callerMarshal(pc uintptr, file string, line int) string {
	function := ""
	if fn := runtime.FuncForPC(pc); fn != nil {
		name := fn.Name()
		if slash := strings.LastIndex(name, "/"); slash > 0 {
			name = name[slash+1:]
		}
		function = " " + name + "()"
	}
	return file + ":" + strconv.Itoa(line) + function
}
