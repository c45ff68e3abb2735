package sentry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"gitlab.com/gitlab-org/textshard/internal/config"
	"gitlab.com/gitlab-org/textshard/internal/testhelper"
)

func TestMain(m *testing.M) {
	testhelper.Run(m)
}

func TestConfigureSentry_disabled(t *testing.T) {
	reporter := ConfigureSentry(testhelper.NewDiscardingLogEntry(t), "1.0.0", config.Sentry{})
	require.False(t, reporter.Enabled())

	// Must not panic or block without a client.
	reporter.Report("build", errors.New("boom"))
	Reporter{}.Report("build", nil)
}

func TestConfigureSentry_invalidDSN(t *testing.T) {
	logger, hook := testhelper.NewCapturingLogger(t)

	reporter := ConfigureSentry(logger, "1.0.0", config.Sentry{DSN: "not a dsn"})
	require.False(t, reporter.Enabled())
	require.Equal(t, "unable to initialize sentry client", hook.LastEntry().Message)
}
