package exchange

import "errors"

var (
	ErrInvalidTransition = errors.New("exchange: invalid transition")
	ErrNotCancellable    = errors.New("exchange: not cancellable in current state")
)

// User-visible failure reasons. These are shown as-is and never carry internal detail.
const (
	ReasonCaptureFailed       = "capture failed"
	ReasonTranscriptionFailed = "transcription failed"
	ReasonNoSpeech            = "no speech detected"
	ReasonSendFailed          = "send failed"
	ReasonDeliveryFailed      = "delivery failed"
	ReasonNoAck               = "no acknowledgement"
	ReasonCancelled           = "cancelled"
	ReasonShutdown            = "shutting down"
)
