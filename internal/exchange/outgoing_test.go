package exchange

import (
	"errors"
	"testing"

	"github.com/danmuck/carlink/internal/testutil/testlog"
)

func TestOutgoingHappyPath(t *testing.T) {
	testlog.Start(t)
	o := NewOutgoing("out.1", "A")
	steps := []func() error{
		o.Begin,
		o.Captured,
		func() error {
			send, err := o.Transcribed("  hi  ")
			if !send {
				t.Fatalf("expected send after non-empty text")
			}
			return err
		},
		func() error { return o.Sent(nil) },
		func() error { return o.Resolve(true) },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	if o.State != OutgoingSucceeded || !o.Succeeded() || o.Text != "hi" {
		t.Fatalf("unexpected final exchange %+v", o)
	}
	if o.SentAt.IsZero() || o.EndedAt.IsZero() {
		t.Fatalf("expected timestamps recorded")
	}
}

func TestOutgoingEmptyTranscriptFails(t *testing.T) {
	testlog.Start(t)
	o := NewOutgoing("out.1", "A")
	_ = o.Begin()
	_ = o.Captured()
	send, err := o.Transcribed(" \n\t ")
	if err != nil {
		t.Fatalf("transcribed: %v", err)
	}
	if send {
		t.Fatalf("silence must not be sent")
	}
	if o.State != OutgoingFailed || o.Reason != ReasonNoSpeech {
		t.Fatalf("unexpected state=%s reason=%q", o.State, o.Reason)
	}
}

func TestOutgoingFailurePaths(t *testing.T) {
	testlog.Start(t)

	o := NewOutgoing("out.send", "A")
	_ = o.Begin()
	_ = o.Captured()
	_, _ = o.Transcribed("hello")
	if err := o.Sent(errors.New("port gone")); err != nil {
		t.Fatalf("sent: %v", err)
	}
	if o.State != OutgoingFailed || o.Reason != ReasonSendFailed {
		t.Fatalf("unexpected state=%s reason=%q", o.State, o.Reason)
	}

	o = NewOutgoing("out.nack", "A")
	_ = o.Begin()
	_ = o.Captured()
	_, _ = o.Transcribed("hello")
	_ = o.Sent(nil)
	if err := o.Resolve(false); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if o.Reason != ReasonDeliveryFailed {
		t.Fatalf("unexpected reason %q", o.Reason)
	}

	o = NewOutgoing("out.timeout", "A")
	if err := o.Expire(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expire before send must fail, got %v", err)
	}
	_ = o.Begin()
	_ = o.Captured()
	_, _ = o.Transcribed("hello")
	_ = o.Sent(nil)
	if err := o.Expire(); err != nil {
		t.Fatalf("expire: %v", err)
	}
	if o.State != OutgoingFailed || o.Reason != ReasonNoAck {
		t.Fatalf("unexpected state=%s reason=%q", o.State, o.Reason)
	}
	if err := o.Resolve(true); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("late ack must not resolve a terminal exchange, got %v", err)
	}
}

func TestOutgoingCancel(t *testing.T) {
	testlog.Start(t)
	o := NewOutgoing("out.1", "A")
	if err := o.Cancel(); !errors.Is(err, ErrNotCancellable) {
		t.Fatalf("idle cancel: expected ErrNotCancellable, got %v", err)
	}
	_ = o.Begin()
	if err := o.Cancel(); err != nil {
		t.Fatalf("cancel while recording: %v", err)
	}
	if o.State != OutgoingCancelled || o.Reason != ReasonCancelled {
		t.Fatalf("unexpected state=%s", o.State)
	}
	if err := o.Captured(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("cancelled exchange must stay terminal, got %v", err)
	}

	o = NewOutgoing("out.2", "A")
	_ = o.Begin()
	_ = o.Captured()
	_, _ = o.Transcribed("hello")
	if err := o.Cancel(); !errors.Is(err, ErrNotCancellable) {
		t.Fatalf("sending cancel: expected ErrNotCancellable, got %v", err)
	}
}

func TestOutgoingStateNames(t *testing.T) {
	testlog.Start(t)
	if OutgoingAwaitingAck.String() != "awaiting_ack" || OutgoingState(99).String() != "unknown" {
		t.Fatalf("unexpected state names")
	}
	if OutgoingSending.Terminal() || !OutgoingCancelled.Terminal() {
		t.Fatalf("unexpected terminal flags")
	}
}
