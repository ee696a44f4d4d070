package logx

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

type Config struct {
	Level  string `split_words:"true" default:"info"`
	Format string `split_words:"true" default:"json"`
	Caller bool   `split_words:"true" default:"true"`
}

// New builds a logger writing to w.
func New(conf Config, w io.Writer) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if s := strings.TrimSpace(conf.Level); s != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(s))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("log level %q: %w", conf.Level, err)
		}
		level = parsed
	}

	switch strings.ToLower(strings.TrimSpace(conf.Format)) {
	case "", FormatJSON:
	case FormatConsole:
		w = zerolog.ConsoleWriter{Out: w}
	default:
		return zerolog.Nop(), fmt.Errorf("unknown log format %q", conf.Format)
	}

	ctx := zerolog.New(w).Level(level).With().Timestamp()
	if conf.Caller {
		ctx = ctx.Caller()
	}
	return ctx.Stack().Logger(), nil
}

// Init replaces the global logger with one writing to stdout.
func Init(conf Config) error {
	logger, err := New(conf, os.Stdout)
	if err != nil {
		return err
	}
	log.Logger = logger
	return nil
}
