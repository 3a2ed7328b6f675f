package history

import (
	"context"
	"time"

	"github.com/danmuck/carlink/internal/events"
	"github.com/rs/zerolog/log"
)

const recordTimeout = 2 * time.Second

// Recorder writes resolved exchanges from an event stream into a Store.
type Recorder struct {
	store *Store
}

func NewRecorder(store *Store) *Recorder {
	return &Recorder{store: store}
}

// Run consumes events until ctx is cancelled or the channel closes. Events already
// buffered when ctx is cancelled are still recorded.
func (r *Recorder) Run(ctx context.Context, in <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			r.drain(ctx, in)
			return
		case e, ok := <-in:
			if !ok {
				return
			}
			r.record(ctx, e)
		}
	}
}

func (r *Recorder) drain(ctx context.Context, in <-chan events.Event) {
	for {
		select {
		case e, ok := <-in:
			if !ok {
				return
			}
			r.record(ctx, e)
		default:
			return
		}
	}
}

func (r *Recorder) record(ctx context.Context, e events.Event) {
	entry, ok := EntryFromEvent(e)
	if !ok {
		return
	}
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := r.store.Record(recordCtx, entry); err != nil {
		log.Warn().Err(err).Str("exchange", entry.ExchangeID).Msg("history: record failed")
	}
}

// EntryFromEvent maps terminal exchange events to history rows.
func EntryFromEvent(e events.Event) (Entry, bool) {
	var direction string
	switch e.Kind {
	case events.SendOutcome:
		direction = DirectionOutgoing
	case events.IncomingResolved:
		direction = DirectionIncoming
	default:
		return Entry{}, false
	}
	return Entry{
		ExchangeID: e.ExchangeID,
		Direction:  direction,
		Peer:       e.Peer,
		Text:       e.Text,
		Outcome:    e.State,
		Succeeded:  e.Succeeded,
		Reason:     e.Reason,
		At:         e.At,
	}, true
}
