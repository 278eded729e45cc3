package telemetry

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"

	"github.com/vetbook/appointments/pkg/config"
)

// sentryTraceRate is the share of request transactions sent to Sentry.
const sentryTraceRate = 0.2

// probePaths are polled by orchestrators and scrapers; their transactions are never sampled.
var probePaths = []string{"/health", "/metrics"}

// SetupSentry initializes the Sentry SDK. No-ops if DSN is empty.
// The api and worker report under their own ServerName so crashes can be told apart.
func SetupSentry(cfg *config.Config) error {
	if cfg.SentryDSN == "" {
		return nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		Environment:      cfg.Environment,
		Release:          cfg.ServiceName + "@" + cfg.ServiceVersion,
		ServerName:       cfg.ServiceName,
		AttachStacktrace: true,
		TracesSampler:    tracesSampler(sentryTraceRate),
	}); err != nil {
		return fmt.Errorf("sentry init: %w", err)
	}
	return nil
}

// tracesSampler samples at rate except for probe endpoints. Transaction
// names from sentryhttp have the form "GET /health".
func tracesSampler(rate float64) sentry.TracesSampler {
	return func(ctx sentry.SamplingContext) float64 {
		if ctx.Span != nil {
			for _, p := range probePaths {
				if strings.HasSuffix(ctx.Span.Name, " "+p) {
					return 0
				}
			}
		}
		return rate
	}
}

// SentryFlush flushes buffered events before process exit.
func SentryFlush() {
	sentry.Flush(2 * time.Second)
}

// SentryMiddleware returns a net/http middleware that captures panics and errors.
// Repanic: true so the outer Recovery middleware still handles the 500 response.
func SentryMiddleware() func(http.Handler) http.Handler {
	h := sentryhttp.New(sentryhttp.Options{Repanic: true})
	return h.Handle
}
