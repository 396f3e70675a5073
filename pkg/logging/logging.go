// Package logging configures the global zerolog logger and bridges it to the
// libraries that bring their own logger interfaces.
package logging

import (
	"io"
	stdlog "log"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	FormatAuto    = "auto"
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Settings select the level and the output format of the global logger.
type Settings struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

func DefaultSettings() Settings {
	return Settings{Level: "info", Format: FormatAuto}
}

// ParseLevel accepts zerolog level names; the empty string means info.
func ParseLevel(s string) (zerolog.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return zerolog.InfoLevel, nil
	case "warning":
		return zerolog.WarnLevel, nil
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.NoLevel, errors.Wrapf(err, "invalid log level %q", s)
	}
	return lvl, nil
}

// New builds a logger writing to w.
func New(w io.Writer, s Settings) (zerolog.Logger, error) {
	lvl, err := ParseLevel(s.Level)
	if err != nil {
		return zerolog.Nop(), err
	}
	out, err := writerFor(w, s.Format)
	if err != nil {
		return zerolog.Nop(), err
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger(), nil
}

// Init replaces the global logger and routes the standard library logger through it.
func Init(s Settings) error {
	logger, err := New(os.Stderr, s)
	if err != nil {
		return err
	}
	log.Logger = logger
	zerolog.SetGlobalLevel(logger.GetLevel())

	stdlog.SetFlags(0)
	stdlog.SetOutput(logger.With().Str("source", "stdlog").Logger())
	return nil
}

func writerFor(w io.Writer, format string) (io.Writer, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatAuto:
		if isTerminal(w) {
			return consoleWriter(w), nil
		}
		return w, nil
	case FormatConsole:
		return consoleWriter(w), nil
	case FormatJSON:
		return w, nil
	default:
		return nil, errors.Errorf("unknown log format %q", format)
	}
}

func consoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen, NoColor: !isTerminal(w)}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
