package httpx

import (
	"context"
	"net/http"
	"time"
)

// HealthChecker is satisfied by any infrastructure dependency that exposes
// a Ping method (database.Database, cache.RedisClient, events.EventBus and
// kafka.Producer all qualify).
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// HealthChecks holds the set of dependencies to probe in the health endpoint.
// Redis and Kafka are optional; a nil checker is reported as "disabled".
type HealthChecks struct {
	Database HealthChecker
	Redis    HealthChecker
	EventBus HealthChecker
	Kafka    HealthChecker
}

const (
	statusOK          = "ok"
	statusDegraded    = "degraded"
	statusUnreachable = "unreachable"
	statusDisabled    = "disabled"
)

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Redis    string `json:"redis"`
	EventBus string `json:"event_bus"`
	Kafka    string `json:"kafka"`
}

// HealthHandler returns an http.HandlerFunc that probes all registered
// HealthCheckers and reports degraded status if any of them fail.
func HealthHandler(checks HealthChecks) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: statusOK}
		probes := []struct {
			checker HealthChecker
			result  *string
		}{
			{checks.Database, &resp.Database},
			{checks.Redis, &resp.Redis},
			{checks.EventBus, &resp.EventBus},
			{checks.Kafka, &resp.Kafka},
		}
		for _, p := range probes {
			switch {
			case p.checker == nil:
				*p.result = statusDisabled
			case p.checker.Ping(ctx) != nil:
				*p.result = statusUnreachable
				resp.Status = statusDegraded
			default:
				*p.result = statusOK
			}
		}

		status := http.StatusOK
		if resp.Status != statusOK {
			status = http.StatusServiceUnavailable
		}
		JSON(w, status, resp)
	}
}
