// Package logger builds the process-wide zerolog.Logger: level from
// config, console output for local development or JSON for production
// log collectors, common service/instance fields on every line, and
// optional sampling of the noisy debug/info levels — warn and error are
// never sampled, since those are exactly the lines an operator needs
// when something is wrong.
package logger

import (
	"io"
	stdlog "log"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/logstream/gateway/internal/config"
)

// Init builds the base logger for this process and redirects the
// standard library's log package through it, so a stray log.Println in
// a dependency still comes out structured. It does not mutate the
// zerolog global logger — callers thread the returned Logger through
// explicitly, the way every component in this gateway takes a
// zerolog.Logger constructor argument rather than reaching for a
// package-global.
func Init(cfg config.Config) zerolog.Logger {
	level := zerolog.InfoLevel
	if l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.LogLevel))); err == nil {
		level = l
	}
	zerolog.SetGlobalLevel(level)

	var w io.Writer = os.Stderr
	if cfg.LogFormat == "console" {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}

	base := zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("service", "logstream-gateway").
		Str("instance", cfg.InstanceID).
		Logger()

	result := base
	if cfg.LogSampleN > 1 {
		result = base.Sample(&zerolog.LevelSampler{
			DebugSampler: &zerolog.BasicSampler{N: cfg.LogSampleN},
			InfoSampler:  &zerolog.BasicSampler{N: cfg.LogSampleN},
		})
	}

	stdlog.SetFlags(0)
	stdlog.SetOutput(result)

	return result
}
