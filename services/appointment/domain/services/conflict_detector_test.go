package services

import (
	"errors"
	"testing"
	"time"

	"github.com/vetbook/appointments/services/appointment/domain"
	"github.com/vetbook/appointments/services/appointment/domain/models"
)

var base = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func at(minutes int) time.Time {
	return base.Add(time.Duration(minutes) * time.Minute)
}

func booked(id, vet string, startMin, duration int, status models.Status) *models.Appointment {
	return &models.Appointment{
		ID:              id,
		VeterinarianID:  vet,
		AppointmentDate: at(startMin),
		Duration:        duration,
		Status:          status,
	}
}

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name       string
		a0, a1     int
		b0, b1     int
		wantResult bool
	}{
		{"identical", 0, 30, 0, 30, true},
		{"partial overlap", 0, 30, 15, 45, true},
		{"partial overlap reversed", 15, 45, 0, 30, true},
		{"a contains b", 0, 60, 15, 30, true},
		{"b contains a", 15, 30, 0, 60, true},
		{"a ends when b starts", 0, 30, 30, 60, false},
		{"b ends when a starts", 30, 60, 0, 30, false},
		{"disjoint", 0, 30, 120, 150, false},
		{"one minute overlap", 0, 31, 30, 60, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Overlaps(at(tt.a0), at(tt.a1), at(tt.b0), at(tt.b1))
			if got != tt.wantResult {
				t.Fatalf("Overlaps([%d,%d), [%d,%d)) = %v, want %v", tt.a0, tt.a1, tt.b0, tt.b1, got, tt.wantResult)
			}
		})
	}
}

func TestFindConflicts(t *testing.T) {
	existing := booked("a1", "V1", 0, 30, models.StatusScheduled)

	tests := []struct {
		name       string
		candidates []*models.Appointment
		vet        string
		startMin   int
		duration   int
		wantIDs    []string
	}{
		{"overlapping scheduled", []*models.Appointment{existing}, "V1", 15, 30, []string{"a1"}},
		{"back to back after", []*models.Appointment{existing}, "V1", 30, 30, nil},
		{"back to back before", []*models.Appointment{existing}, "V1", -30, 30, nil},
		{"proposal contains existing", []*models.Appointment{existing}, "V1", -10, 60, []string{"a1"}},
		{"existing contains proposal", []*models.Appointment{booked("a2", "V1", 0, 120, models.StatusConfirmed)}, "V1", 30, 15, []string{"a2"}},
		{"different time of day", []*models.Appointment{existing}, "V1", 240, 30, nil},
		{"different veterinarian", []*models.Appointment{existing}, "V2", 0, 30, nil},
		{"in progress conflicts", []*models.Appointment{booked("a3", "V1", 0, 30, models.StatusInProgress)}, "V1", 10, 10, []string{"a3"}},
		{"cancelled ignored", []*models.Appointment{booked("a4", "V1", 0, 30, models.StatusCancelled)}, "V1", 0, 30, nil},
		{"completed ignored", []*models.Appointment{booked("a5", "V1", 0, 30, models.StatusCompleted)}, "V1", 0, 30, nil},
		{"no-show ignored", []*models.Appointment{booked("a6", "V1", 0, 30, models.StatusNoShow)}, "V1", 0, 30, nil},
		{"nil candidate skipped", []*models.Appointment{nil, existing}, "V1", 0, 5, []string{"a1"}},
		{
			"every candidate evaluated",
			[]*models.Appointment{
				booked("early", "V1", -60, 30, models.StatusScheduled),
				booked("hit1", "V1", 0, 30, models.StatusScheduled),
				booked("hit2", "V1", 40, 30, models.StatusConfirmed),
				booked("late", "V1", 90, 30, models.StatusScheduled),
			},
			"V1", 20, 30, []string{"hit1", "hit2"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FindConflicts(tt.candidates, tt.vet, at(tt.startMin), tt.duration)
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("expected %d conflicts, got %d", len(tt.wantIDs), len(got))
			}
			for i, c := range got {
				if c.ID != tt.wantIDs[i] {
					t.Errorf("conflict %d: got %s, want %s", i, c.ID, tt.wantIDs[i])
				}
			}
		})
	}
}

func TestSlotUnavailableError(t *testing.T) {
	err := SlotUnavailableError("V1", base, 30, []*models.Appointment{booked("a1", "V1", 0, 30, models.StatusScheduled)})
	if !errors.Is(err, domain.ErrSlotUnavailable) || !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected slot-unavailable validation error, got %v", err)
	}
}

func TestValidateAppointmentForCreation(t *testing.T) {
	now := base.Add(-time.Hour)
	fresh := func() *models.Appointment {
		return &models.Appointment{AppointmentDate: base, Duration: 30}
	}

	t.Run("nil appointment returns error", func(t *testing.T) {
		if err := ValidateAppointmentForCreation(nil, now); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	t.Run("future unsaved appointment is valid", func(t *testing.T) {
		if err := ValidateAppointmentForCreation(fresh(), now); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("appointment starting now is rejected", func(t *testing.T) {
		if err := ValidateAppointmentForCreation(fresh(), base); !errors.Is(err, domain.ErrDateNotInFuture) {
			t.Fatalf("expected ErrDateNotInFuture, got %v", err)
		}
	})

	t.Run("past appointment is rejected", func(t *testing.T) {
		if err := ValidateAppointmentForCreation(fresh(), base.Add(time.Hour)); !errors.Is(err, domain.ErrDateNotInFuture) {
			t.Fatalf("expected ErrDateNotInFuture, got %v", err)
		}
	})

	t.Run("persisted appointment is rejected", func(t *testing.T) {
		a := fresh()
		a.ID = "existing"
		if err := ValidateAppointmentForCreation(a, now); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})
}
