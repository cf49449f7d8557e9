// Package logger provides structured logging using zerolog.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Config represents logger configuration.
type Config struct {
	Output string // "stdout", "stderr", or file path
	Level  string // "debug", "info", "warn", "error"
	File   string // log file path (used when Output is not stdout/stderr)
	JSON   bool   // JSON lines on stdout/stderr instead of console colors
}

// Init initializes the global zerolog logger with the given configuration.
func Init(cfg Config) error {
	logger, err := New(cfg)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	zerolog.DefaultContextLogger = &logger
	zlog.Logger = logger
	return nil
}

// New builds a logger without installing it globally.
func New(cfg Config) (zerolog.Logger, error) {
	level := parseLevel(cfg.Level)

	console := true
	var writer io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stdout", "":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		path := cfg.File
		if path == "" {
			path = cfg.Output
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return zerolog.Nop(), errors.Wrap(err, "failed to create log directory")
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), errors.Wrap(err, "failed to open log file")
		}
		writer = f
		console = false
	}

	zerolog.TimestampFieldName = "time"
	zerolog.LevelFieldName = "level"
	zerolog.MessageFieldName = "message"
	zerolog.CallerMarshalFunc = shortCaller

	if console && !cfg.JSON {
		zerolog.TimeFieldFormat = time.TimeOnly
		cw := zerolog.ConsoleWriter{Out: writer, TimeFormat: time.TimeOnly}
		if level == zerolog.DebugLevel {
			// Add Caller only for DEBUG level
			cw.PartsOrder = []string{"time", "level", "message", "caller"}
			cw.FormatCaller = func(i interface{}) string {
				return "(" + i.(string) + ")"
			}
			return zerolog.New(cw).Level(level).With().Timestamp().Caller().Logger(), nil
		}
		return zerolog.New(cw).Level(level).With().Timestamp().Logger(), nil
	}

	// Structured output keeps the full timestamp
	zerolog.TimeFieldFormat = time.RFC3339
	ctx := zerolog.New(writer).Level(level).With().Timestamp()
	if level == zerolog.DebugLevel {
		ctx = ctx.Caller()
	}
	return ctx.Logger(), nil
}

// shortCaller trims a caller path to its last directory and file name.
func shortCaller(pc uintptr, file string, line int) string {
	parts := strings.Split(file, string(filepath.Separator))
	if len(parts) > 1 {
		return filepath.Join(parts[len(parts)-2:]...) + ":" + strconv.Itoa(line)
	}
	return filepath.Base(file) + ":" + strconv.Itoa(line)
}

// parseLevel parses the log level string.
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
