package exchange

import (
	"fmt"
	"time"
)

type IncomingState int

const (
	IncomingAnnounced IncomingState = iota
	IncomingAccepted
	IncomingSpeaking
	IncomingDone
	IncomingRejected
)

func (s IncomingState) String() string {
	switch s {
	case IncomingAnnounced:
		return "announced"
	case IncomingAccepted:
		return "accepted"
	case IncomingSpeaking:
		return "speaking"
	case IncomingDone:
		return "done"
	case IncomingRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

func (s IncomingState) Terminal() bool {
	return s == IncomingDone || s == IncomingRejected
}

// Incoming tracks one received message until it is rejected or fully spoken.
type Incoming struct {
	ID     string
	Sender string
	Text   string
	State  IncomingState

	// SpeechErr keeps the synthesis failure, if any; it does not change the outcome.
	SpeechErr error

	ReceivedAt time.Time
	EndedAt    time.Time
}

func NewIncoming(id, sender, text string) *Incoming {
	return &Incoming{
		ID:         id,
		Sender:     sender,
		Text:       text,
		State:      IncomingAnnounced,
		ReceivedAt: time.Now(),
	}
}

func (in *Incoming) move(from, to IncomingState) error {
	if in.State != from {
		return fmt.Errorf("%w: incoming %s %s->%s", ErrInvalidTransition, in.ID, in.State, to)
	}
	in.State = to
	if to.Terminal() {
		in.EndedAt = time.Now()
	}
	return nil
}

func (in *Incoming) Accept() error {
	return in.move(IncomingAnnounced, IncomingAccepted)
}

func (in *Incoming) Reject() error {
	return in.move(IncomingAnnounced, IncomingRejected)
}

func (in *Incoming) StartSpeaking() error {
	return in.move(IncomingAccepted, IncomingSpeaking)
}

// Finish completes speech. A synthesis error is kept for reporting only.
func (in *Incoming) Finish(speechErr error) error {
	if err := in.move(IncomingSpeaking, IncomingDone); err != nil {
		return err
	}
	in.SpeechErr = speechErr
	return nil
}
