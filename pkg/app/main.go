package app

import (
	"github.com/vetbook/appointments/pkg/cache"
	"github.com/vetbook/appointments/pkg/config"
	"github.com/vetbook/appointments/pkg/database"
	"github.com/vetbook/appointments/pkg/events"
	"github.com/vetbook/appointments/pkg/logger"
	"github.com/vetbook/appointments/pkg/workflows"
)

// Application holds shared infrastructure dependencies for all services.
// Passed to each service's route registration and to the worker's consumers during startup.
//
// Logging: app.Logger is backed by a trace-aware handler. Use the context methods
// and trace_id, span_id, request_id and actor_id are injected automatically:
//
//	app.Logger.InfoContext(ctx, "appointment confirmed", "appointment_id", id)
//	app.Logger.ErrorContext(ctx, "failed to save", "error", err)
//
// Use app.Logger.Info/Error (no context) only for startup and shutdown messages.
//
// Redis and TemporalClient are optional; nil means the feature is disabled.
type Application struct {
	Config         *config.Config
	Db             *database.Database
	Logger         logger.Logger
	EventBus       *events.EventBus
	Redis          *cache.RedisClient
	TemporalClient *workflows.TemporalClient
}
