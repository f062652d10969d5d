// Package logging configures the process-wide zerolog logger and provides the
// last-resort panic guard used by every goroutine the bot starts.
package logging

import (
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls where log lines go.
type Options struct {
	Level string
	// File enables a rotating JSON log file next to console output.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Setup installs the global logger. The returned closer flushes the file
// sink, if any.
func Setup(opts Options) io.Closer {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(parseLevel(opts.Level))

	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	if opts.File == "" {
		log.Logger = log.Output(console)
		return nopCloser{}
	}

	file := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    orDefault(opts.MaxSizeMB, 10),
		MaxBackups: orDefault(opts.MaxBackups, 5),
		MaxAge:     orDefault(opts.MaxAgeDays, 30),
		Compress:   true,
	}
	log.Logger = log.Output(zerolog.MultiLevelWriter(console, file))
	return file
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func parseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || s == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// Recover logs a panic in the calling goroutine and swallows it. Use as
// `defer logging.Recover("scope")`.
func Recover(scope string) {
	if r := recover(); r != nil {
		log.Error().
			Str("scope", scope).
			Interface("panic", r).
			Str("stack", string(debug.Stack())).
			Msg("recovered from panic")
	}
}

// Go runs fn in a new goroutine guarded by Recover.
func Go(scope string, fn func()) {
	go func() {
		defer Recover(scope)
		fn()
	}()
}
