package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// AppointmentCacheTTL bounds how long a read model survives without a refresh event.
	AppointmentCacheTTL = 24 * time.Hour

	// InvalidationFloorTTL is how long an invalidation keeps rejecting fills
	// older than the version that caused it. It only has to outlive one
	// in-flight database read.
	InvalidationFloorTTL = time.Minute

	appointmentKeyPrefix = "appointment"
)

// ErrCacheMiss is returned by Get when no entry exists for the ID.
var ErrCacheMiss = errors.New("cache: miss")

// CachedAppointment is the denormalized read model stored in Redis.
// It is refreshed by the worker from lifecycle events, so it may lag the
// database by the outbox delivery delay.
type CachedAppointment struct {
	ID                 string
	ClientID           string
	PatientID          string
	VeterinarianID     string
	AppointmentDate    time.Time
	Duration           int
	Status             string
	Reason             string
	Notes              string
	CancellationReason string
	CompletedNotes     string
	ConfirmedBy        string
	StartedBy          string
	CompletedBy        string
	CancelledBy        string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	Version            int
}

// AppointmentCache stores appointment read models as Redis hashes.
// Key format: "appointment:{id}", with the invalidation floor at
// "appointment:{id}:floor".
type AppointmentCache struct {
	client   *RedisClient
	ttl      time.Duration
	floorTTL time.Duration
}

// NewAppointmentCache creates an AppointmentCache backed by r.
func NewAppointmentCache(r *RedisClient) *AppointmentCache {
	return &AppointmentCache{client: r, ttl: AppointmentCacheTTL, floorTTL: InvalidationFloorTTL}
}

// setScript writes the hash only if its version is at least both the stored
// version and the invalidation floor.
// KEYS: entry, floor. ARGV: version, ttl ms, field/value pairs.
var setScript = redis.NewScript(`
local version = tonumber(ARGV[1])
local floor = tonumber(redis.call("GET", KEYS[2]) or "0") or 0
if version < floor then
  return 0
end
local stored = tonumber(redis.call("HGET", KEYS[1], "version") or "0") or 0
if version < stored then
  return 0
end
redis.call("HSET", KEYS[1], unpack(ARGV, 3))
redis.call("PEXPIRE", KEYS[1], ARGV[2])
return 1
`)

// invalidateScript drops the entry and raises the floor to version.
// KEYS: entry, floor. ARGV: version, floor ttl ms.
var invalidateScript = redis.NewScript(`
redis.call("DEL", KEYS[1])
local floor = tonumber(redis.call("GET", KEYS[2]) or "0") or 0
if tonumber(ARGV[1]) >= floor then
  redis.call("SET", KEYS[2], ARGV[1], "PX", ARGV[2])
end
return 1
`)

// Get returns the cached appointment, or ErrCacheMiss.
func (c *AppointmentCache) Get(ctx context.Context, id string) (*CachedAppointment, error) {
	vals, err := c.client.Client().HGetAll(ctx, appointmentKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}
	if len(vals) == 0 {
		return nil, ErrCacheMiss
	}
	return decodeAppointment(vals)
}

// Set writes the read model and its TTL atomically. A write older than the
// stored entry, or than the last invalidation, is dropped so that neither
// out-of-order events nor a slow read-through fill can roll the cache back.
func (c *AppointmentCache) Set(ctx context.Context, a *CachedAppointment) error {
	fields := encodeAppointment(a)
	args := make([]any, 0, 2+2*len(fields))
	args = append(args, a.Version, c.ttl.Milliseconds())
	for k, v := range fields {
		args = append(args, k, v)
	}
	keys := []string{appointmentKey(a.ID), floorKey(a.ID)}
	if err := setScript.Run(ctx, c.client.Client(), keys, args...).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Invalidate removes the entry after the appointment was written at version.
// Fills carrying an older version are refused for InvalidationFloorTTL.
func (c *AppointmentCache) Invalidate(ctx context.Context, id string, version int) error {
	keys := []string{appointmentKey(id), floorKey(id)}
	if err := invalidateScript.Run(ctx, c.client.Client(), keys, version, c.floorTTL.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}

// Delete removes a cached appointment. Deleting a missing key is not an error.
func (c *AppointmentCache) Delete(ctx context.Context, id string) error {
	if err := c.client.Client().Del(ctx, appointmentKey(id)).Err(); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

func appointmentKey(id string) string {
	return appointmentKeyPrefix + ":" + id
}

func floorKey(id string) string {
	return appointmentKey(id) + ":floor"
}

func encodeAppointment(a *CachedAppointment) map[string]any {
	return map[string]any{
		"id":                  a.ID,
		"client_id":           a.ClientID,
		"patient_id":          a.PatientID,
		"veterinarian_id":     a.VeterinarianID,
		"appointment_date":    a.AppointmentDate.UTC().Format(time.RFC3339Nano),
		"duration":            strconv.Itoa(a.Duration),
		"status":              a.Status,
		"reason":              a.Reason,
		"notes":               a.Notes,
		"cancellation_reason": a.CancellationReason,
		"completed_notes":     a.CompletedNotes,
		"confirmed_by":        a.ConfirmedBy,
		"started_by":          a.StartedBy,
		"completed_by":        a.CompletedBy,
		"cancelled_by":        a.CancelledBy,
		"created_at":          a.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":          a.UpdatedAt.UTC().Format(time.RFC3339Nano),
		"version":             strconv.Itoa(a.Version),
	}
}

func decodeAppointment(vals map[string]string) (*CachedAppointment, error) {
	date, err := time.Parse(time.RFC3339Nano, vals["appointment_date"])
	if err != nil {
		return nil, fmt.Errorf("cache parse appointment_date: %w", err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, vals["created_at"])
	if err != nil {
		return nil, fmt.Errorf("cache parse created_at: %w", err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, vals["updated_at"])
	if err != nil {
		return nil, fmt.Errorf("cache parse updated_at: %w", err)
	}
	duration, err := strconv.Atoi(vals["duration"])
	if err != nil {
		return nil, fmt.Errorf("cache parse duration: %w", err)
	}
	version, err := strconv.Atoi(vals["version"])
	if err != nil {
		return nil, fmt.Errorf("cache parse version: %w", err)
	}

	return &CachedAppointment{
		ID:                 vals["id"],
		ClientID:           vals["client_id"],
		PatientID:          vals["patient_id"],
		VeterinarianID:     vals["veterinarian_id"],
		AppointmentDate:    date,
		Duration:           duration,
		Status:             vals["status"],
		Reason:             vals["reason"],
		Notes:              vals["notes"],
		CancellationReason: vals["cancellation_reason"],
		CompletedNotes:     vals["completed_notes"],
		ConfirmedBy:        vals["confirmed_by"],
		StartedBy:          vals["started_by"],
		CompletedBy:        vals["completed_by"],
		CancelledBy:        vals["cancelled_by"],
		CreatedAt:          createdAt,
		UpdatedAt:          updatedAt,
		Version:            version,
	}, nil
}
