/*
Package dynoro – logging interface.
*/
package dynoro

import (
	"os"

	"github.com/rs/zerolog"
)

// Logger is the interface callers may supply via Config.
// Each method receives a structured context map (may be nil).
type Logger interface {
	Trace(message string, ctx map[string]any)
	Info(message string, ctx map[string]any)
	Warn(message string, ctx map[string]any)
	Error(message string, ctx map[string]any)
}

// zerologLogger adapts a zerolog.Logger to the Logger interface.
type zerologLogger struct {
	log zerolog.Logger
}

// NewLogger returns a Logger backed by zerolog writing to stderr.
func NewLogger() Logger {
	return &zerologLogger{
		log: zerolog.New(os.Stderr).With().Timestamp().Logger(),
	}
}

// WrapLogger adapts an existing zerolog.Logger.
func WrapLogger(l zerolog.Logger) Logger {
	return &zerologLogger{log: l}
}

func (z *zerologLogger) emit(ev *zerolog.Event, msg string, ctx map[string]any) {
	for k, v := range ctx {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

func (z *zerologLogger) Trace(msg string, ctx map[string]any) { z.emit(z.log.Trace(), msg, ctx) }
func (z *zerologLogger) Info(msg string, ctx map[string]any)  { z.emit(z.log.Info(), msg, ctx) }
func (z *zerologLogger) Warn(msg string, ctx map[string]any)  { z.emit(z.log.Warn(), msg, ctx) }
func (z *zerologLogger) Error(msg string, ctx map[string]any) { z.emit(z.log.Error(), msg, ctx) }

// nopLogger silently discards everything.
type nopLogger struct{}

func (nopLogger) Trace(string, map[string]any) {}
func (nopLogger) Info(string, map[string]any)  {}
func (nopLogger) Warn(string, map[string]any)  {}
func (nopLogger) Error(string, map[string]any) {}
