package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/vetbook/appointments/pkg/logger"
)

type loggedError struct {
	msg  string
	args []any
}

// errorLog records ErrorContext calls and forwards everything else.
type errorLog struct {
	logger.Logger
	mu      sync.Mutex
	entries []loggedError
}

func (l *errorLog) ErrorContext(_ context.Context, msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, loggedError{msg: msg, args: args})
}

func (l *errorLog) recorded() []loggedError {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]loggedError(nil), l.entries...)
}

func (e loggedError) text() string {
	return e.msg + " " + fmt.Sprint(e.args...)
}

// instrumented swaps the fixture's logger and meter for recording ones.
func instrumented(t *testing.T) (*fixture, *errorLog, *sdkmetric.ManualReader) {
	t.Helper()
	f := newFixture(t)
	log := &errorLog{Logger: f.svc.log}
	f.svc.log = log
	reader := sdkmetric.NewManualReader()
	f.svc.instrument(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test"))
	return f, log, reader
}

func failureCount(t *testing.T, reader *sdkmetric.ManualReader, operation string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "appointment.failures" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("unexpected data type %T", m.Data)
			}
			for _, dp := range sum.DataPoints {
				if v, ok := dp.Attributes.Value("operation"); ok && v.AsString() == operation {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func TestCreateAppointment_OutboxFailureLoggedAndCounted(t *testing.T) {
	f, log, reader := instrumented(t)
	f.rec.FailWith(errors.New("outbox unreachable"))

	_, err := f.svc.CreateAppointment(context.Background(), input("V1", at(10, 0), 30))
	if err == nil {
		t.Fatal("expected an error")
	}
	if isDomainError(err) {
		t.Fatalf("outbox failure classified as a domain error: %v", err)
	}

	logged := log.recorded()
	if len(logged) != 1 {
		t.Fatalf("expected one error log, got %d", len(logged))
	}
	if !strings.Contains(logged[0].text(), "outbox unreachable") {
		t.Fatalf("error log lacks the cause: %s", logged[0].text())
	}
	if got := failureCount(t, reader, "save appointment"); got != 1 {
		t.Fatalf("failures{save appointment} = %d, want 1", got)
	}
}

func TestTransition_OutboxFailureLoggedAndCounted(t *testing.T) {
	ctx := context.Background()
	f, log, reader := instrumented(t)
	a := f.create(t, "V1", at(10, 0), 30)

	f.rec.FailWith(errors.New("outbox unreachable"))
	if _, err := f.svc.ConfirmAppointment(ctx, a.ID, "staff-1"); err == nil {
		t.Fatal("expected an error")
	}

	logged := log.recorded()
	if len(logged) != 1 {
		t.Fatalf("expected one error log, got %d", len(logged))
	}
	text := logged[0].text()
	if !strings.Contains(text, a.ID) || !strings.Contains(text, "confirm") {
		t.Fatalf("error log should name the appointment and operation: %s", text)
	}
	if got := failureCount(t, reader, "save appointment"); got != 1 {
		t.Fatalf("failures{save appointment} = %d, want 1", got)
	}
}

func TestDomainErrors_NotLoggedAsFailures(t *testing.T) {
	ctx := context.Background()
	f, log, reader := instrumented(t)
	a := f.create(t, "V1", at(10, 0), 30)

	bad := input("V1", at(12, 0), 30)
	bad.ClientID = ""
	if _, err := f.svc.CreateAppointment(ctx, bad); err == nil {
		t.Fatal("expected a validation error")
	}
	if _, err := f.svc.CreateAppointment(ctx, input("V1", at(10, 15), 30)); err == nil {
		t.Fatal("expected a slot conflict")
	}
	if _, err := f.svc.ConfirmAppointment(ctx, "missing", "staff-1"); err == nil {
		t.Fatal("expected not found")
	}
	if _, err := f.svc.StartAppointment(ctx, a.ID, "staff-1"); err == nil {
		t.Fatal("expected an invalid transition")
	}

	if logged := log.recorded(); len(logged) != 0 {
		t.Fatalf("domain errors must not be logged as failures, got %v", logged)
	}
	for _, op := range []string{"save appointment", "load appointment", "check availability"} {
		if got := failureCount(t, reader, op); got != 0 {
			t.Fatalf("failures{%s} = %d, want 0", op, got)
		}
	}
}
