package logutil

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"cloud.google.com/go/compute/metadata"
)

// ConfigureLogger sets up the global logger: structured JSON with a severity
// hook when running on GCE, a human-readable console writer everywhere else.
func ConfigureLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if lvl, err := zerolog.ParseLevel(level); err == nil && level != "" {
		zerolog.SetGlobalLevel(lvl)
	}
	log.Logger = log.With().Caller().Stack().Logger()
	if metadata.OnGCE() {
		log.Logger = log.Hook(SeverityHook{})
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

type SeverityHook struct{}

func (h SeverityHook) Run(e *zerolog.Event, level zerolog.Level, _ string) {
	e.Str("severity", level.String())
}
