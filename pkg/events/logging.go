package events

import (
	"github.com/ThreeDotsLabs/watermill"

	"github.com/vetbook/appointments/pkg/logger"
)

// slogAdapter bridges logger.Logger to watermill.LoggerAdapter.
// Watermill's Info chatter is demoted to Debug; the bus logs its own lifecycle.
type slogAdapter struct{ log logger.Logger }

func newSlogAdapter(log logger.Logger) watermill.LoggerAdapter {
	return &slogAdapter{log: log.With("component", "watermill")}
}

func (a *slogAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.log.Error(msg, append(fieldsToArgs(fields), "error", err)...)
}

func (a *slogAdapter) Info(msg string, fields watermill.LogFields) {
	a.log.Debug(msg, fieldsToArgs(fields)...)
}

func (a *slogAdapter) Debug(msg string, fields watermill.LogFields) {
	a.log.Debug(msg, fieldsToArgs(fields)...)
}

func (a *slogAdapter) Trace(msg string, fields watermill.LogFields) {
	a.log.Debug(msg, fieldsToArgs(fields)...)
}

func (a *slogAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &slogAdapter{log: a.log.With(fieldsToArgs(fields)...)}
}

func fieldsToArgs(fields watermill.LogFields) []any {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return args
}
