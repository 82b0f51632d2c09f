package utils

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type LogConfig struct {
	// Level is one of trace, debug, info, warn, error.
	Level string
	// Format is json, console or auto (console on a terminal).
	Format string
	// Output is stderr, stdout, discard or a file path.
	Output string
}

// NewLogger builds the process logger. Unknown levels fall back to info
// with a warning on stderr.
func NewLogger(cfg LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		if cfg.Level != "" {
			fmt.Fprintf(os.Stderr, "Warning: invalid log level %q, using \"info\"\n", cfg.Level)
		}
		level = zerolog.InfoLevel
	}

	logger := zerolog.New(logWriter(cfg)).Level(level).With().Timestamp().Logger()
	if level <= zerolog.DebugLevel {
		logger = logger.With().Caller().Logger()
	}
	return logger
}

func logWriter(cfg LogConfig) io.Writer {
	var output io.Writer
	switch strings.ToLower(cfg.Output) {
	case "", "stderr":
		output = os.Stderr
	case "stdout":
		output = os.Stdout
	case "discard", "none":
		return io.Discard
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: cannot open log output %s: %v\n", cfg.Output, err)
			output = os.Stderr
		} else {
			output = file
		}
	}

	format := strings.ToLower(cfg.Format)
	if format == "auto" || format == "" {
		format = "json"
		if f, ok := output.(*os.File); ok {
			if fi, err := f.Stat(); err == nil && fi.Mode()&os.ModeCharDevice != 0 {
				format = "console"
			}
		}
	}
	if format == "console" {
		return zerolog.ConsoleWriter{Out: output, TimeFormat: time.Kitchen}
	}
	return output
}
