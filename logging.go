package coalescer

import (
	"errors"

	"github.com/rs/zerolog"
)

// NewLogListener returns a Listener that writes the events of a BatchManager, LoadManager, TaskQueue or store to the logger. Routine
// traffic is logged at trace, lifecycle changes at debug and failures at error.
func NewLogListener(logger zerolog.Logger) Listener {
	return func(event string, val int, msg string, metadata interface{}) {
		switch event {
		case RequestEvent:
			logger.Trace().Int("pending", val).Interface("key", metadata).Msg("key requested.")
		case CoalescedEvent:
			logger.Trace().Int("pending", val).Interface("key", metadata).Msg("key coalesced into the pending batch.")
		case ArmedEvent:
			logger.Trace().Int("ms", val).Msg("flush timer armed.")
		case BatchEvent:
			logger.Debug().Int("keys", val).Msg("flushing batch.")
		case ProcessedEvent:
			logger.Debug().Int("keys", val).Msg("batch processed.")
		case StoredEvent:
			logger.Trace().Int("val", val).Str("msg", msg).Msg("values stored.")
		case TaskEvent:
			logger.Trace().Int("queued", val).Msg("task completed.")
		case FailedEvent:
			err, ok := metadata.(error)
			if !ok {
				err = errors.New(msg)
			}
			logger.Err(err).Int("keys", val).Msg("batch failed.")
		case ErrorEvent:
			err, ok := metadata.(error)
			if !ok {
				err = errors.New(msg)
			}
			logger.Err(err).Msg(msg)
		case CreatedContainerEvent:
			logger.Debug().Msgf("created container %v.", msg)
		case VerifiedContainerEvent:
			logger.Debug().Msgf("verified that container %v already exists.", msg)
		case ShutdownEvent:
			logger.Debug().Msg("shutdown.")
		}
	}
}
