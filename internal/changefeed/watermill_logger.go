package changefeed

import (
	"github.com/ThreeDotsLabs/watermill"
	"go.uber.org/zap"
)

type zapAdapter struct {
	log *zap.Logger
}

// NewWatermillLogger adapts zap to watermill's logger interface.
func NewWatermillLogger(log *zap.Logger) watermill.LoggerAdapter {
	return &zapAdapter{log: log}
}

func (a *zapAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.log.Error(msg, append(toZap(fields), zap.Error(err))...)
}

func (a *zapAdapter) Info(msg string, fields watermill.LogFields) {
	a.log.Info(msg, toZap(fields)...)
}

func (a *zapAdapter) Debug(msg string, fields watermill.LogFields) {
	a.log.Debug(msg, toZap(fields)...)
}

func (a *zapAdapter) Trace(msg string, fields watermill.LogFields) {
	a.log.Debug(msg, toZap(fields)...)
}

func (a *zapAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &zapAdapter{log: a.log.With(toZap(fields)...)}
}

func toZap(fields watermill.LogFields) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		out = append(out, zap.Any(k, v))
	}
	return out
}
