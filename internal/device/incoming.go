package device

import (
	"context"
	"slices"

	"github.com/danmuck/carlink/internal/events"
	"github.com/danmuck/carlink/internal/exchange"
	"github.com/danmuck/carlink/internal/observability"
	"github.com/rs/zerolog/log"
)

type incomingRun struct {
	ex     *exchange.Incoming
	cancel context.CancelFunc
}

// Announce opens an incoming exchange for a received message. It must only be
// called on the dispatch goroutine.
func (s *Service) Announce(sender, text string) {
	in := exchange.NewIncoming(s.nextID("in"), sender, text)
	s.incoming[in.ID] = &incomingRun{ex: in}
	s.inOrder = append(s.inOrder, in.ID)
	s.bus.Publish(events.Event{
		Kind:       events.MessageAnnounced,
		ExchangeID: in.ID,
		Peer:       sender,
		Text:       text,
		State:      in.State.String(),
	})
	log.Info().Str("exchange", in.ID).Str("peer", sender).Msg("device: message announced")
}

func (s *Service) decide(id string, accept bool) error {
	run, ok := s.incoming[id]
	if !ok {
		return ErrUnknownExchange
	}
	in := run.ex
	if !accept {
		if err := in.Reject(); err != nil {
			return err
		}
		log.Info().Str("exchange", id).Str("peer", in.Sender).Msg("device: message rejected")
		s.finishIncoming(run)
		return nil
	}

	if err := in.Accept(); err != nil {
		return err
	}
	if err := in.StartSpeaking(); err != nil {
		return err
	}
	s.bus.Publish(events.Event{
		Kind:       events.ExchangeState,
		ExchangeID: id,
		Peer:       in.Sender,
		State:      in.State.String(),
	})

	ctx, cancel := context.WithCancel(s.workCtx)
	run.cancel = cancel
	chunks := exchange.ChunkText(in.Text, s.cfg.Incoming.ChunkSize)
	log.Info().Str("exchange", id).Int("chunks", len(chunks)).Msg("device: speaking")
	s.spawn(func() {
		err := s.speak(ctx, chunks)
		s.post(func() { s.spoken(run, err) })
	})
	return nil
}

// speak plays chunks in order and stops at the first failure.
func (s *Service) speak(ctx context.Context, chunks []string) error {
	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.deps.Speaker.Speak(ctx, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) spoken(run *incomingRun, speechErr error) {
	if _, ok := s.incoming[run.ex.ID]; !ok {
		return
	}
	if speechErr != nil {
		log.Warn().Err(speechErr).Str("exchange", run.ex.ID).Msg("device: speech failed")
	}
	if err := run.ex.Finish(speechErr); err != nil {
		log.Error().Err(err).Str("exchange", run.ex.ID).Msg("device: speech transition")
		return
	}
	s.finishIncoming(run)
}

func (s *Service) finishIncoming(run *incomingRun) {
	if run.cancel != nil {
		run.cancel()
	}
	in := run.ex
	delete(s.incoming, in.ID)
	s.inOrder = slices.DeleteFunc(s.inOrder, func(id string) bool { return id == in.ID })

	observability.RecordExchangeOutcome("incoming", in.State.String())
	e := events.Event{
		Kind:       events.IncomingResolved,
		ExchangeID: in.ID,
		Peer:       in.Sender,
		Text:       in.Text,
		State:      in.State.String(),
		Succeeded:  in.State == exchange.IncomingDone && in.SpeechErr == nil,
	}
	if in.SpeechErr != nil {
		e.Reason = "speech failed"
	}
	s.bus.Publish(e)
}
