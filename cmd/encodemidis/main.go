package main

import (
	"os"
	"time"

	"github.com/getsentry/sentry-go"
)

const sentryFlushTimeout = 2 * time.Second

// releaseVersion is set via ldflags during build
var releaseVersion = "dev"

func initSentry() bool {
	dsn := getEnv(envSentryDSN, "")
	if dsn == "" {
		return false
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: getEnv(envSentryEnv, "development"),
		Release:     "encodemidis@" + releaseVersion,
	})
	return err == nil
}

func main() {
	loadEnv()
	if initSentry() {
		defer sentry.Flush(sentryFlushTimeout)
	}

	if err := newRootCmd().Execute(); err != nil {
		sentry.CaptureException(err)
		sentry.Flush(sentryFlushTimeout)
		os.Exit(1)
	}
}
