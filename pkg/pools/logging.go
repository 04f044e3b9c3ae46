package pools

import (
	"time"

	"github.com/rs/zerolog"
)

// errorReporter forwards internal errors to the optional error handler and the logger,
// then pauses for SleepOnErrorInterval.
type errorReporter struct {
	errorHandler         func(error)
	logger               zerolog.Logger
	sleepOnErrorInterval time.Duration
}

func (er *errorReporter) handleError(err error, msg string) {
	er.logger.Error().Err(err).Msg(msg)

	if er.errorHandler != nil {
		er.errorHandler(err)
	}

	if er.sleepOnErrorInterval > 0 {
		time.Sleep(er.sleepOnErrorInterval)
	}
}
