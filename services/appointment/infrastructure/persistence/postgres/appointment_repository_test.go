package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vetbook/appointments/pkg/config"
	"github.com/vetbook/appointments/pkg/database"
	"github.com/vetbook/appointments/pkg/logger"
	"github.com/vetbook/appointments/services/appointment/domain"
	"github.com/vetbook/appointments/services/appointment/domain/models"
)

func TestTranslate(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", sql.ErrNoRows, domain.ErrAppointmentNotFound},
		{"exclusion violation", &pgconn.PgError{Code: pgExclusionViolation}, domain.ErrSlotUnavailable},
		{"unique violation", &pgconn.PgError{Code: pgUniqueViolation}, domain.ErrAppointmentConflict},
		{"check violation", &pgconn.PgError{Code: pgCheckViolation, ConstraintName: "appointments_duration_check"}, domain.ErrValidation},
		{"wrapped exclusion", fmt.Errorf("exec: %w", &pgconn.PgError{Code: pgExclusionViolation}), domain.ErrSlotUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translate("op", tt.err)
			if !errors.Is(got, tt.want) {
				t.Fatalf("translate(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestTranslate_SlotUnavailableIsValidation(t *testing.T) {
	err := translate("insert appointment", &pgconn.PgError{Code: pgExclusionViolation})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected exclusion violation to be a validation error, got %v", err)
	}
}

func TestTranslate_UnknownErrorWrapped(t *testing.T) {
	cause := errors.New("connection reset")
	got := translate("find appointment a-1", cause)
	if !errors.Is(got, cause) {
		t.Fatalf("expected cause to be preserved, got %v", got)
	}
	for _, kind := range []error{domain.ErrValidation, domain.ErrAppointmentNotFound, domain.ErrAppointmentConflict} {
		if errors.Is(got, kind) {
			t.Fatalf("unexpected kind %v on infrastructure error", kind)
		}
	}
}

func TestNullString(t *testing.T) {
	if ns := nullString(""); ns.Valid {
		t.Error("empty string should map to NULL")
	}
	if ns := nullString("x"); !ns.Valid || ns.String != "x" {
		t.Errorf("unexpected %+v", ns)
	}
}

func TestStatusStrings(t *testing.T) {
	got := statusStrings(models.ActiveStatuses)
	want := []string{"SCHEDULED", "CONFIRMED", "IN_PROGRESS"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

// Integration tests run against a migrated database, skipped unless TEST_DATABASE_URL is set.
func TestAppointmentRepositoryIntegration(t *testing.T) {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping integration tests")
	}

	ctx := context.Background()
	log := logger.New(&config.Config{LogLevel: "error"})
	db, err := database.NewPool(ctx, dbURL, log)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer db.Close()

	repo := NewAppointmentRepository(db, nil)
	vet := fmt.Sprintf("vet-it-%d", time.Now().UnixNano())
	start := time.Now().UTC().Add(72 * time.Hour).Truncate(time.Minute)

	newAppt := func(offset, duration int) *models.Appointment {
		a, err := models.NewAppointment(models.NewAppointmentParams{
			ClientID:        "client-it",
			PatientID:       "patient-it",
			VeterinarianID:  vet,
			AppointmentDate: start.Add(time.Duration(offset) * time.Minute),
			Duration:        duration,
			Reason:          "integration",
		})
		if err != nil {
			t.Fatalf("new appointment: %v", err)
		}
		return a
	}

	first, err := repo.Save(ctx, newAppt(0, 30))
	if err != nil {
		t.Fatalf("save first: %v", err)
	}
	defer repo.Delete(ctx, first.ID) //nolint:errcheck

	t.Run("RoundTrip", func(t *testing.T) {
		got, err := repo.FindByID(ctx, first.ID)
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if got.VeterinarianID != vet || got.Duration != 30 || got.Status != models.StatusScheduled {
			t.Fatalf("unexpected row %+v", got)
		}
		if !got.AppointmentDate.Equal(first.AppointmentDate) {
			t.Fatalf("date mismatch: %s vs %s", got.AppointmentDate, first.AppointmentDate)
		}
	})

	t.Run("ExclusionConstraint", func(t *testing.T) {
		_, err := repo.Save(ctx, newAppt(15, 30))
		if !errors.Is(err, domain.ErrSlotUnavailable) {
			t.Fatalf("expected ErrSlotUnavailable, got %v", err)
		}
	})

	t.Run("AdjacentAllowed", func(t *testing.T) {
		next, err := repo.Save(ctx, newAppt(30, 30))
		if err != nil {
			t.Fatalf("adjacent slot should be accepted: %v", err)
		}
		defer repo.Delete(ctx, next.ID) //nolint:errcheck
	})

	t.Run("Conflicts", func(t *testing.T) {
		conflicts, err := repo.FindConflictingAppointments(ctx, vet, start.Add(10*time.Minute), 10)
		if err != nil {
			t.Fatalf("conflicts: %v", err)
		}
		if len(conflicts) != 1 || conflicts[0].ID != first.ID {
			t.Fatalf("expected only %s, got %v", first.ID, conflicts)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		if _, err := repo.FindByID(ctx, "does-not-exist"); !errors.Is(err, domain.ErrAppointmentNotFound) {
			t.Fatalf("expected ErrAppointmentNotFound, got %v", err)
		}
	})

	t.Run("StaleVersionRejected", func(t *testing.T) {
		loaded, err := repo.FindByID(ctx, first.ID)
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if loaded.Version != 1 {
			t.Fatalf("version = %d, want 1", loaded.Version)
		}

		cancelled, err := loaded.Cancel("staff-a", "clinic closed")
		if err != nil {
			t.Fatalf("cancel: %v", err)
		}
		confirmed, err := loaded.Confirm("staff-b")
		if err != nil {
			t.Fatalf("confirm: %v", err)
		}

		saved, err := repo.Save(ctx, cancelled)
		if err != nil {
			t.Fatalf("save cancel: %v", err)
		}
		if saved.Version != 2 {
			t.Fatalf("version after update = %d, want 2", saved.Version)
		}
		if _, err := repo.Save(ctx, confirmed); !errors.Is(err, domain.ErrAppointmentConflict) {
			t.Fatalf("expected ErrAppointmentConflict, got %v", err)
		}

		got, err := repo.FindByID(ctx, first.ID)
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if got.Status != models.StatusCancelled {
			t.Fatalf("status = %s, want CANCELLED", got.Status)
		}
	})

	t.Run("UpdateMissingRow", func(t *testing.T) {
		ghost := newAppt(600, 30)
		ghost.ID = "does-not-exist"
		ghost.Version = 1
		if _, err := repo.Save(ctx, ghost); !errors.Is(err, domain.ErrAppointmentNotFound) {
			t.Fatalf("expected ErrAppointmentNotFound, got %v", err)
		}
	})
}
