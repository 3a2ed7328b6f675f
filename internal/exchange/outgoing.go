package exchange

import (
	"fmt"
	"strings"
	"time"
)

type OutgoingState int

const (
	OutgoingIdle OutgoingState = iota
	OutgoingRecording
	OutgoingTranscribing
	OutgoingSending
	OutgoingAwaitingAck
	OutgoingSucceeded
	OutgoingFailed
	OutgoingCancelled
)

const (
	RecordDuration     = 5 * time.Second
	SampleRate         = 44100
	DefaultLanguage    = "ko"
	DefaultAckTimeout  = 30 * time.Second
	outgoingStateCount = int(OutgoingCancelled) + 1
)

var outgoingStateNames = [outgoingStateCount]string{
	"idle",
	"recording",
	"transcribing",
	"sending",
	"awaiting_ack",
	"succeeded",
	"failed",
	"cancelled",
}

func (s OutgoingState) String() string {
	if s < 0 || int(s) >= outgoingStateCount {
		return "unknown"
	}
	return outgoingStateNames[s]
}

func (s OutgoingState) Terminal() bool {
	return s == OutgoingSucceeded || s == OutgoingFailed || s == OutgoingCancelled
}

var outgoingTransitions = map[OutgoingState][]OutgoingState{
	OutgoingIdle:         {OutgoingRecording},
	OutgoingRecording:    {OutgoingTranscribing, OutgoingFailed, OutgoingCancelled},
	OutgoingTranscribing: {OutgoingSending, OutgoingFailed, OutgoingCancelled},
	OutgoingSending:      {OutgoingAwaitingAck, OutgoingFailed},
	OutgoingAwaitingAck:  {OutgoingSucceeded, OutgoingFailed},
}

// Outgoing tracks one (peer, utterance) send from selection to a terminal outcome.
type Outgoing struct {
	ID     string
	Peer   string
	State  OutgoingState
	Text   string
	Reason string

	CreatedAt time.Time
	SentAt    time.Time
	EndedAt   time.Time
}

func NewOutgoing(id, peer string) *Outgoing {
	return &Outgoing{
		ID:        id,
		Peer:      peer,
		State:     OutgoingIdle,
		CreatedAt: time.Now(),
	}
}

func (o *Outgoing) transition(to OutgoingState) error {
	for _, allowed := range outgoingTransitions[o.State] {
		if allowed == to {
			o.State = to
			if to.Terminal() {
				o.EndedAt = time.Now()
			}
			return nil
		}
	}
	return fmt.Errorf("%w: outgoing %s %s->%s", ErrInvalidTransition, o.ID, o.State, to)
}

// Begin starts capture for the selected peer.
func (o *Outgoing) Begin() error {
	return o.transition(OutgoingRecording)
}

// Captured hands the recording to transcription.
func (o *Outgoing) Captured() error {
	return o.transition(OutgoingTranscribing)
}

// Transcribed stores the trimmed text and moves to Sending. Empty text fails the
// exchange; silence is never sent. The bool reports whether a send should follow.
func (o *Outgoing) Transcribed(text string) (bool, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return false, o.Fail(ReasonNoSpeech)
	}
	if err := o.transition(OutgoingSending); err != nil {
		return false, err
	}
	o.Text = text
	return true, nil
}

// Sent records the result of writing the message frame. There is no retry.
func (o *Outgoing) Sent(writeErr error) error {
	if writeErr != nil {
		return o.Fail(ReasonSendFailed)
	}
	if err := o.transition(OutgoingAwaitingAck); err != nil {
		return err
	}
	o.SentAt = time.Now()
	return nil
}

// Resolve applies the bridge's delivery acknowledgement.
func (o *Outgoing) Resolve(success bool) error {
	if success {
		return o.transition(OutgoingSucceeded)
	}
	return o.Fail(ReasonDeliveryFailed)
}

// Expire fails an exchange whose acknowledgement never arrived.
func (o *Outgoing) Expire() error {
	if o.State != OutgoingAwaitingAck {
		return fmt.Errorf("%w: outgoing %s expire in %s", ErrInvalidTransition, o.ID, o.State)
	}
	return o.Fail(ReasonNoAck)
}

func (o *Outgoing) Fail(reason string) error {
	if err := o.transition(OutgoingFailed); err != nil {
		return err
	}
	o.Reason = reason
	return nil
}

// Cancel abandons the exchange while it is still capturing or transcribing.
func (o *Outgoing) Cancel() error {
	if o.State != OutgoingRecording && o.State != OutgoingTranscribing {
		return fmt.Errorf("%w: outgoing %s in %s", ErrNotCancellable, o.ID, o.State)
	}
	if err := o.transition(OutgoingCancelled); err != nil {
		return err
	}
	o.Reason = ReasonCancelled
	return nil
}

// Succeeded reports the final outcome once terminal.
func (o *Outgoing) Succeeded() bool {
	return o.State == OutgoingSucceeded
}
