// Package logx is a thin zerolog wrapper shared by every package.
package logx

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Opts controls logger initialisation.
type Opts struct {
	// Production selects JSON output at info level instead of the console
	// writer at debug level.
	Production bool
	// Level overrides the environment default when set ("debug", "warn"...).
	Level string
	// Out defaults to stderr so stdout stays reserved for the conversation.
	Out io.Writer
}

// Init configures the global logger.
func Init(opts Opts) {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	level := zerolog.DebugLevel
	if opts.Production {
		log.Logger = zerolog.New(out).With().Timestamp().Logger()
		level = zerolog.InfoLevel
	} else {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Caller().Logger()
	}
	if opts.Level != "" {
		if l, err := zerolog.ParseLevel(opts.Level); err == nil {
			level = l
		}
	}
	log.Logger = log.Logger.Level(level)
}

func Debug() *zerolog.Event {
	return log.Debug()
}

func Info() *zerolog.Event {
	return log.Info()
}

func Warn() *zerolog.Event {
	return log.Warn()
}

func Error() *zerolog.Event {
	return log.Error()
}
