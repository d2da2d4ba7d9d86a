package log

import (
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Config captures options for configuring the global logger.
type Config struct {
	Level   string    // optional log level ("debug", "info", etc.)
	Output  io.Writer // optional writer (defaults to os.Stdout)
	Service string    // optional service name attached to every log entry
}

var (
	once sync.Once
	base zerolog.Logger

	// broadcastFn mirrors warn+ entries into the push-event plane.
	broadcastFn atomic.Pointer[BroadcastFunc]
)

// BroadcastFunc receives mirrored log entries. Implementations must be
// non-blocking and must not log through this package.
type BroadcastFunc func(level, component, message string, ts time.Time)

// Configure initialises the global zerolog logger exactly once.
func Configure(cfg Config) {
	once.Do(func() {
		level := zerolog.InfoLevel
		if cfg.Level != "" {
			if parsed, err := zerolog.ParseLevel(cfg.Level); err == nil {
				level = parsed
			}
		} else if env := os.Getenv("LOG_LEVEL"); env != "" {
			if parsed, err := zerolog.ParseLevel(env); err == nil {
				level = parsed
			}
		}
		zerolog.SetGlobalLevel(level)
		zerolog.TimeFieldFormat = time.RFC3339

		writer := cfg.Output
		if writer == nil {
			writer = os.Stdout
		}

		service := cfg.Service
		if service == "" {
			service = os.Getenv("LOG_SERVICE")
			if service == "" {
				service = "audioserver"
			}
		}

		base = zerolog.New(writer).With().
			Timestamp().
			Str("service", service).
			Logger()
	})
}

func logger() zerolog.Logger {
	Configure(Config{})
	return base
}

// Base returns the configured base logger instance.
func Base() zerolog.Logger {
	return logger().Hook(tap{})
}

// WithComponent returns a child logger annotated with the given component name.
func WithComponent(component string) zerolog.Logger {
	l := logger().With().Str("component", component).Logger().Hook(tap{component: component})
	return l
}

// SetBroadcastFunc installs (or clears, with nil) the push-event mirror for
// warn-and-above entries.
func SetBroadcastFunc(fn BroadcastFunc) {
	if fn == nil {
		broadcastFn.Store(nil)
		return
	}
	broadcastFn.Store(&fn)
}

// tap forwards warn+ entries to the broadcast sink.
type tap struct {
	component string
}

func (h tap) Run(_ *zerolog.Event, level zerolog.Level, message string) {
	if level < zerolog.WarnLevel || level >= zerolog.NoLevel {
		return
	}
	fn := broadcastFn.Load()
	if fn == nil {
		return
	}
	(*fn)(level.String(), h.component, message, time.Now())
}
