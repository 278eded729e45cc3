package models

// Status is the lifecycle state of an Appointment.
type Status string

const (
	StatusScheduled  Status = "SCHEDULED"
	StatusConfirmed  Status = "CONFIRMED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
	StatusNoShow     Status = "NO_SHOW"
)

// ActiveStatuses are the statuses that occupy a veterinarian's time. Only these can conflict.
var ActiveStatuses = []Status{StatusScheduled, StatusConfirmed, StatusInProgress}

// ParseStatus returns the Status named by s and whether it is a known value.
func ParseStatus(s string) (Status, bool) {
	st := Status(s)
	switch st {
	case StatusScheduled, StatusConfirmed, StatusInProgress,
		StatusCompleted, StatusCancelled, StatusNoShow:
		return st, true
	}
	return "", false
}

// IsActive reports whether the status still blocks the appointment's time slot.
func (s Status) IsActive() bool {
	return s == StatusScheduled || s == StatusConfirmed || s == StatusInProgress
}

func (s Status) String() string {
	return string(s)
}
