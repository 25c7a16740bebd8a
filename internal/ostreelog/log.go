// Package ostreelog wires the daemon's structured logger. Grounded on the
// teacher's pkg/log (package-level zerolog.Logger, Init(Config), With*
// helpers) with a lumberjack-backed file sink standing in for the systemd
// journal this environment doesn't have.
package ostreelog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the global logger instance used throughout the daemon.
var Logger zerolog.Logger

// Level mirrors the daemon's configured log verbosity.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config controls Init.
type Config struct {
	Level      Level
	JSONOutput bool

	// File, when non-empty, directs log output to a rotating file instead
	// of stdout/stderr.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

func init() {
	// Sane default before Init is called by the CLI entrypoint, so that
	// library code (tests, early startup) never logs through a zero Logger.
	Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
}

// Init (re)configures the global Logger. Safe to call more than once, e.g.
// from a config-reload path.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var output io.Writer = os.Stdout
	if cfg.File != "" {
		output = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    orDefault(cfg.MaxSizeMB, 100),
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
	}

	if cfg.JSONOutput || cfg.File != "" {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// WithComponent creates a child logger tagged with a component field.
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithTransaction creates a child logger tagged with the transaction id.
func WithTransaction(id string) zerolog.Logger {
	return Logger.With().Str("transaction_id", id).Logger()
}

// WithOSName creates a child logger tagged with the osname under operation.
func WithOSName(osname string) zerolog.Logger {
	return Logger.With().Str("osname", osname).Logger()
}

// Journal emits a structured message matching the §6 "Journal messages"
// contract: a fixed message id plus the bus address and, when known, the
// caller's uid.
func Journal(messageID, message, busAddress string, uid *uint32) {
	ev := Logger.Info().Str("message_id", messageID).Str("bus_address", busAddress)
	if uid != nil {
		ev = ev.Uint32("client_uid", *uid)
	}
	ev.Msg(message)
}

func Info(msg string)  { Logger.Info().Msg(msg) }
func Debug(msg string) { Logger.Debug().Msg(msg) }
func Warn(msg string)  { Logger.Warn().Msg(msg) }
func Error(msg string) { Logger.Error().Msg(msg) }

func Errorf(format string, err error) {
	Logger.Error().Err(err).Msg(format)
}
