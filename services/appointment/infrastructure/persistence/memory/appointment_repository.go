// Package memory is an in-process AppointmentRepository used by tests and local runs.
// It enforces the same overlap rule as the Postgres exclusion constraint so that
// use-case behavior does not depend on which repository is wired in.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vetbook/appointments/services/appointment/domain"
	"github.com/vetbook/appointments/services/appointment/domain/events"
	"github.com/vetbook/appointments/services/appointment/domain/models"
	"github.com/vetbook/appointments/services/appointment/domain/repositories"
	domainsvcs "github.com/vetbook/appointments/services/appointment/domain/services"
)

// AppointmentRepository stores copies of appointments in a map.
// Events from Save are handed to the publisher while the write lock is held,
// and a publish failure rolls the write back.
type AppointmentRepository struct {
	mu    sync.RWMutex
	byID  map[string]models.Appointment
	pub   events.Publisher
	newID func() string
}

var _ repositories.AppointmentRepository = (*AppointmentRepository)(nil)

// NewAppointmentRepository returns an empty repository. pub may be nil.
func NewAppointmentRepository(pub events.Publisher) *AppointmentRepository {
	return &AppointmentRepository{
		byID:  make(map[string]models.Appointment),
		pub:   pub,
		newID: uuid.NewString,
	}
}

func (r *AppointmentRepository) FindByID(ctx context.Context, id string) (*models.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("find appointment %s: %w", id, domain.ErrAppointmentNotFound)
	}
	return &a, nil
}

func (r *AppointmentRepository) FindByClientID(ctx context.Context, clientID string) ([]*models.Appointment, error) {
	return r.filter(ctx, descending, func(a *models.Appointment) bool {
		return a.ClientID == clientID
	})
}

func (r *AppointmentRepository) FindByVeterinarianID(ctx context.Context, veterinarianID string) ([]*models.Appointment, error) {
	return r.filter(ctx, descending, func(a *models.Appointment) bool {
		return a.VeterinarianID == veterinarianID
	})
}

func (r *AppointmentRepository) FindByDateRange(ctx context.Context, from, to time.Time, statuses []models.Status) ([]*models.Appointment, error) {
	return r.filter(ctx, ascending, func(a *models.Appointment) bool {
		if a.AppointmentDate.Before(from) || !a.AppointmentDate.Before(to) {
			return false
		}
		return statuses == nil || hasStatus(statuses, a.Status)
	})
}

func (r *AppointmentRepository) FindConflictingAppointments(ctx context.Context, veterinarianID string, start time.Time, duration int) ([]*models.Appointment, error) {
	candidates, err := r.filter(ctx, ascending, func(a *models.Appointment) bool {
		return a.VeterinarianID == veterinarianID
	})
	if err != nil {
		return nil, err
	}
	return domainsvcs.FindConflicts(candidates, veterinarianID, start, duration), nil
}

// Save inserts or updates a and publishes the pending events. An update whose
// Version no longer matches the stored row fails with ErrAppointmentConflict.
// If any publish fails the previous state is restored and the error returned.
func (r *AppointmentRepository) Save(ctx context.Context, a *models.Appointment, pending ...events.Builder) (*models.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	saved := *a
	previous, existed := models.Appointment{}, false
	if saved.IsUnsaved() {
		saved.ID = r.newID()
		saved.Version = 1
	} else {
		previous, existed = r.byID[saved.ID]
		if !existed {
			return nil, fmt.Errorf("update appointment %s: %w", saved.ID, domain.ErrAppointmentNotFound)
		}
		if saved.Version != previous.Version {
			return nil, fmt.Errorf("update appointment %s: version %d is stale, stored %d: %w",
				saved.ID, saved.Version, previous.Version, domain.ErrAppointmentConflict)
		}
		saved.Version++
	}

	if err := r.checkOverlap(&saved); err != nil {
		return nil, err
	}
	r.byID[saved.ID] = saved

	if r.pub != nil {
		for _, build := range pending {
			out := saved
			evt := build(&out)
			if err := r.pub.Publish(ctx, evt); err != nil {
				if existed {
					r.byID[saved.ID] = previous
				} else {
					delete(r.byID, saved.ID)
				}
				return nil, fmt.Errorf("record %s: %w", evt.Type, err)
			}
		}
	}

	out := saved
	return &out, nil
}

func (r *AppointmentRepository) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
	return nil
}

func (r *AppointmentRepository) Exists(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byID[id]
	return ok, nil
}

// Len returns the number of stored appointments.
func (r *AppointmentRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// checkOverlap mirrors the appointments_no_overlap exclusion constraint.
// Callers must hold the write lock.
func (r *AppointmentRepository) checkOverlap(a *models.Appointment) error {
	if !a.Status.IsActive() {
		return nil
	}
	for id, other := range r.byID {
		if id == a.ID || other.VeterinarianID != a.VeterinarianID || !other.Status.IsActive() {
			continue
		}
		if domainsvcs.Overlaps(a.AppointmentDate, a.EndsAt(), other.AppointmentDate, other.EndsAt()) {
			return fmt.Errorf("save appointment: overlaps %s: %w", id, domain.ErrSlotUnavailable)
		}
	}
	return nil
}

type order int

const (
	ascending order = iota
	descending
)

func (r *AppointmentRepository) filter(ctx context.Context, o order, keep func(*models.Appointment) bool) ([]*models.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make([]*models.Appointment, 0)
	for _, a := range r.byID {
		if keep(&a) {
			out = append(out, &a)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].AppointmentDate.Equal(out[j].AppointmentDate) {
			return out[i].ID < out[j].ID
		}
		if o == descending {
			return out[i].AppointmentDate.After(out[j].AppointmentDate)
		}
		return out[i].AppointmentDate.Before(out[j].AppointmentDate)
	})
	return out, nil
}

func hasStatus(statuses []models.Status, s models.Status) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}
