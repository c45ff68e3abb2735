// Package sentry forwards failures of shard operations to Sentry.
package sentry

import (
	"time"

	sentry "github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
	"gitlab.com/gitlab-org/textshard/internal/config"
)

const flushTimeout = 2 * time.Second

// Reporter sends errors to Sentry. The zero value and a Reporter built from a configuration
// without DSN drop every report.
type Reporter struct {
	enabled bool
}

// ConfigureSentry configures the sentry DSN. An empty DSN disables reporting.
func ConfigureSentry(logger logrus.FieldLogger, version string, cfg config.Sentry) Reporter {
	if cfg.DSN == "" {
		return Reporter{}
	}

	logger.Debug("using sentry for error reporting")

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     "v" + version,
	}); err != nil {
		logger.WithError(err).Warn("unable to initialize sentry client")
		return Reporter{}
	}

	return Reporter{enabled: true}
}

// Enabled tells whether reports are sent anywhere.
func (r Reporter) Enabled() bool {
	return r.enabled
}

// Report sends err tagged with the failed operation and waits for delivery for a short while.
func (r Reporter) Report(operation string, err error) {
	if !r.enabled || err == nil {
		return
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("operation", operation)
		sentry.CaptureException(err)
	})
	sentry.Flush(flushTimeout)
}
