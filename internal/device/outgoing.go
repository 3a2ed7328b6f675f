package device

import (
	"context"
	"time"

	"github.com/danmuck/carlink/internal/capability"
	"github.com/danmuck/carlink/internal/events"
	"github.com/danmuck/carlink/internal/exchange"
	"github.com/danmuck/carlink/internal/observability"
	"github.com/danmuck/carlink/internal/protocol/frame"
	"github.com/rs/zerolog/log"
)

// outgoingRun pairs an exchange with the resources its pipeline holds.
type outgoingRun struct {
	ex     *exchange.Outgoing
	cancel context.CancelFunc
	clip   *capability.Clip
	timer  *time.Timer
}

func (r *outgoingRun) release() {
	if r.cancel != nil {
		r.cancel()
	}
	if r.timer != nil {
		r.timer.Stop()
	}
	if r.clip != nil {
		if err := r.clip.Release(); err != nil {
			log.Warn().Err(err).Str("exchange", r.ex.ID).Msg("device: clip release failed")
		}
	}
}

func (s *Service) selectPeer(peer string) (string, error) {
	if s.active != nil {
		return "", ErrBusy
	}
	if !s.link.IsOpen() {
		return "", ErrLinkDown
	}
	if !s.registry.Contains(peer) {
		return "", ErrUnknownPeer
	}

	ex := exchange.NewOutgoing(s.nextID("out"), peer)
	if err := ex.Begin(); err != nil {
		return "", err
	}
	ctx, cancel := context.WithCancel(s.workCtx)
	run := &outgoingRun{ex: ex, cancel: cancel}
	s.active = run
	s.publishOutgoing(run)
	log.Info().Str("exchange", ex.ID).Str("peer", peer).Msg("device: recording")

	duration, rate := s.cfg.Outgoing.RecordDuration, s.cfg.Outgoing.SampleRate
	s.spawn(func() {
		clip, err := s.deps.Capturer.Capture(ctx, duration, rate)
		if !s.post(func() { s.captured(ctx, run, clip, err) }) && clip != nil {
			_ = clip.Release()
		}
	})
	return ex.ID, nil
}

func (s *Service) captured(ctx context.Context, run *outgoingRun, clip *capability.Clip, err error) {
	if s.active != run || run.ex.State != exchange.OutgoingRecording {
		if clip != nil {
			_ = clip.Release()
		}
		return
	}
	if err != nil {
		if clip != nil {
			_ = clip.Release()
		}
		log.Warn().Err(err).Str("exchange", run.ex.ID).Msg("device: capture failed")
		s.failOutgoing(run, exchange.ReasonCaptureFailed)
		return
	}
	run.clip = clip
	if err := run.ex.Captured(); err != nil {
		log.Error().Err(err).Str("exchange", run.ex.ID).Msg("device: capture transition")
		s.failOutgoing(run, exchange.ReasonCaptureFailed)
		return
	}
	s.publishOutgoing(run)

	language := s.cfg.Outgoing.Language
	s.spawn(func() {
		text, err := s.deps.Transcriber.Transcribe(ctx, clip, language)
		_ = clip.Release()
		s.post(func() { s.transcribed(run, text, err) })
	})
}

func (s *Service) transcribed(run *outgoingRun, text string, err error) {
	if s.active != run || run.ex.State != exchange.OutgoingTranscribing {
		return
	}
	if err != nil {
		log.Warn().Err(err).Str("exchange", run.ex.ID).Msg("device: transcription failed")
		s.failOutgoing(run, exchange.ReasonTranscriptionFailed)
		return
	}
	send, err := run.ex.Transcribed(text)
	if err != nil {
		log.Error().Err(err).Str("exchange", run.ex.ID).Msg("device: transcription transition")
		s.failOutgoing(run, exchange.ReasonTranscriptionFailed)
		return
	}
	if !send {
		log.Info().Str("exchange", run.ex.ID).Msg("device: empty transcript not sent")
		s.finishOutgoing(run)
		return
	}
	s.publishOutgoing(run)

	// Written on the dispatch goroutine so no frame can be routed between the
	// write and the move to awaiting. A stalled port stalls routing with it; the
	// serial driver has no write deadline to bound this.
	writeErr := s.link.WriteFrame(frame.Message(run.ex.Peer, run.ex.Text))
	if writeErr != nil {
		log.Warn().Err(writeErr).Str("exchange", run.ex.ID).Str("peer", run.ex.Peer).Msg("device: message write failed")
	}
	if err := run.ex.Sent(writeErr); err != nil {
		log.Error().Err(err).Str("exchange", run.ex.ID).Msg("device: send transition")
	}
	if run.ex.State.Terminal() {
		s.finishOutgoing(run)
		return
	}

	s.active = nil
	run.release()
	s.awaiting = append(s.awaiting, run)
	run.timer = time.AfterFunc(s.cfg.Outgoing.AckTimeout, func() {
		s.post(func() { s.expire(run) })
	})
	s.publishOutgoing(run)
	log.Info().
		Str("exchange", run.ex.ID).
		Str("peer", run.ex.Peer).
		Int("chars", len([]rune(run.ex.Text))).
		Msg("device: message sent, awaiting ack")
}

// ResolveAck settles the newest exchange awaiting an ack from peer. It must only be
// called on the dispatch goroutine.
func (s *Service) ResolveAck(peer string, success bool) bool {
	for i := len(s.awaiting) - 1; i >= 0; i-- {
		run := s.awaiting[i]
		if run.ex.Peer != peer {
			continue
		}
		if err := run.ex.Resolve(success); err != nil {
			log.Error().Err(err).Str("exchange", run.ex.ID).Msg("device: ack transition")
			return false
		}
		s.finishOutgoing(run)
		return true
	}
	return false
}

func (s *Service) expire(run *outgoingRun) {
	if run.ex.State != exchange.OutgoingAwaitingAck {
		return
	}
	if err := run.ex.Expire(); err != nil {
		log.Error().Err(err).Str("exchange", run.ex.ID).Msg("device: expire transition")
		return
	}
	log.Warn().
		Str("exchange", run.ex.ID).
		Str("peer", run.ex.Peer).
		Dur("timeout", s.cfg.Outgoing.AckTimeout).
		Msg("device: no acknowledgement")
	s.finishOutgoing(run)
}

func (s *Service) cancelOutgoing() (string, error) {
	run := s.active
	if run == nil {
		return "", ErrUnknownExchange
	}
	if err := run.ex.Cancel(); err != nil {
		return "", err
	}
	log.Info().Str("exchange", run.ex.ID).Str("peer", run.ex.Peer).Msg("device: outgoing cancelled")
	s.finishOutgoing(run)
	return run.ex.ID, nil
}

func (s *Service) failOutgoing(run *outgoingRun, reason string) {
	if err := run.ex.Fail(reason); err != nil {
		log.Error().Err(err).Str("exchange", run.ex.ID).Msg("device: fail transition")
	}
	s.finishOutgoing(run)
}

// finishOutgoing drops a terminal exchange from state and reports its outcome.
func (s *Service) finishOutgoing(run *outgoingRun) {
	if s.active == run {
		s.active = nil
	}
	for i, r := range s.awaiting {
		if r == run {
			s.awaiting = append(s.awaiting[:i], s.awaiting[i+1:]...)
			break
		}
	}
	run.release()

	ex := run.ex
	observability.RecordExchangeOutcome("outgoing", ex.State.String())
	s.publishOutgoing(run)
	if ex.State == exchange.OutgoingCancelled {
		return
	}
	s.bus.Publish(events.Event{
		Kind:       events.SendOutcome,
		ExchangeID: ex.ID,
		Peer:       ex.Peer,
		Text:       ex.Text,
		State:      ex.State.String(),
		Succeeded:  ex.Succeeded(),
		Reason:     ex.Reason,
	})
	if ex.Succeeded() {
		log.Info().Str("exchange", ex.ID).Str("peer", ex.Peer).Msg("device: message delivered")
		return
	}
	log.Warn().Str("exchange", ex.ID).Str("peer", ex.Peer).Str("reason", ex.Reason).Msg("device: send failed")
	s.bus.Publish(events.Event{
		Kind:       events.Log,
		ExchangeID: ex.ID,
		Peer:       ex.Peer,
		Message:    "message to " + ex.Peer + ": " + ex.Reason,
	})
}

func (s *Service) publishOutgoing(run *outgoingRun) {
	s.bus.Publish(events.Event{
		Kind:       events.ExchangeState,
		ExchangeID: run.ex.ID,
		Peer:       run.ex.Peer,
		State:      run.ex.State.String(),
		Reason:     run.ex.Reason,
	})
}
