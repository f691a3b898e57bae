// Package services holds helpers shared by the container services.
package services

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type ServiceIdentifier interface {
	ID() string
}

// ServiceLogger tags every event with the owning service.
type ServiceLogger struct {
	logger zerolog.Logger
}

func NewServiceLogger(svc ServiceIdentifier) *ServiceLogger {
	return &ServiceLogger{
		logger: log.With().Str("service", svc.ID()).Logger(),
	}
}

// Operation returns a child logger for one operation request; wallet is
// omitted when empty.
func (l *ServiceLogger) Operation(kind, wallet string) *ServiceLogger {
	ctx := l.logger.With().Str("op", kind)
	if wallet != "" {
		ctx = ctx.Str("wallet", wallet)
	}
	return &ServiceLogger{logger: ctx.Logger()}
}

func (l *ServiceLogger) Info() *zerolog.Event {
	return l.logger.Info()
}

func (l *ServiceLogger) Error() *zerolog.Event {
	return l.logger.Error()
}

func (l *ServiceLogger) Warn() *zerolog.Event {
	return l.logger.Warn()
}

func (l *ServiceLogger) Debug() *zerolog.Event {
	return l.logger.Debug()
}
