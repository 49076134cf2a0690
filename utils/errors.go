package utils

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/psiproto/ddh-psi-sum/psi"
)

// ProcessingError wraps a round-processing failure with retry guidance for
// the Kafka transport's consumer loop, the same envelope the teacher's
// utils.ProcessingError carries for its message processors.
type ProcessingError struct {
	OriginalError  error
	FailureMessage string
	Temporary      bool
	Backoff        time.Duration
	KafkaMessage   kafka.Message
}

// Error makes ProcessingError an error.
func (e ProcessingError) Error() string {
	msg := fmt.Sprintf("error: %s", e.FailureMessage)
	if e.OriginalError != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.OriginalError)
	}
	return msg
}

// Unwrap exposes the original error for errors.As/errors.Is.
func (e ProcessingError) Unwrap() error { return e.OriginalError }

// ProcessingErrorFromErrorWithMessage converts an error into a ProcessingError,
// classifying it via ErrorIsTemporary.
func ProcessingErrorFromErrorWithMessage(
	err error,
	message string,
	kafkaMessage kafka.Message,
	logger *zerolog.Logger,
) *ProcessingError {
	temporary, backoff := ErrorIsTemporary(err, logger)
	return &ProcessingError{
		OriginalError:  err,
		FailureMessage: message,
		Temporary:      temporary,
		Backoff:        backoff,
		KafkaMessage:   kafkaMessage,
	}
}

// ErrorIsTemporary classifies a round-processing failure against the
// protocol's error taxonomy: every psi.Error is fatal to its session by
// design (KindCryptoFailure aside, which may simply reflect RNG contention),
// so only that one Kind is marked temporary. The Kafka consumer waits out
// the returned backoff before reading its next message; it does not hand
// the failed message to its handler again.
func ErrorIsTemporary(err error, logger *zerolog.Logger) (bool, time.Duration) {
	if psi.IsKind(err, psi.KindCryptoFailure) {
		logger.Warn().Err(err).Msg("transient crypto failure, backing off")
		return true, time.Second
	}
	return false, time.Millisecond
}
