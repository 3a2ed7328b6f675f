// Package events carries notifications from the dispatch goroutine to whatever
// presents them (control API, history recorder, logs).
package events

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

type Kind string

const (
	LinkOpened       Kind = "link_opened"
	LinkFailed       Kind = "link_failed"
	PeersChanged     Kind = "peers_changed"
	MessageAnnounced Kind = "message_announced"
	SendOutcome      Kind = "send_outcome"
	ExchangeState    Kind = "exchange_state"
	IncomingResolved Kind = "incoming_resolved"
	Log              Kind = "log"
)

const (
	DefaultRecent     = 128
	subscriberBacklog = 64
)

// Event is one upward notification. Fields are populated per Kind.
type Event struct {
	Seq        uint64    `json:"seq"`
	Kind       Kind      `json:"kind"`
	At         time.Time `json:"at"`
	ExchangeID string    `json:"exchange_id,omitempty"`
	Peer       string    `json:"peer,omitempty"`
	Peers      []string  `json:"peers,omitempty"`
	Text       string    `json:"text,omitempty"`
	State      string    `json:"state,omitempty"`
	Succeeded  bool      `json:"succeeded,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Message    string    `json:"message,omitempty"`
}

// Publisher is the write side used by the dispatcher and the device service.
type Publisher interface {
	Publish(Event)
}

// Bus fans events out to subscribers and keeps a bounded history.
// Publish never blocks: a subscriber that falls behind loses events.
type Bus struct {
	mu      sync.RWMutex
	recent  []Event
	limit   int
	subs    map[uint64]chan Event
	nextSub uint64
	seq     atomic.Uint64
	dropped atomic.Uint64
}

func NewBus(limit int) *Bus {
	if limit <= 0 {
		limit = DefaultRecent
	}
	return &Bus{
		recent: make([]Event, 0, limit),
		limit:  limit,
		subs:   make(map[uint64]chan Event),
	}
}

func (b *Bus) Publish(e Event) {
	e.Seq = b.seq.Add(1)
	if e.At.IsZero() {
		e.At = time.Now()
	}
	e.Peers = slices.Clone(e.Peers)

	b.mu.Lock()
	if len(b.recent) == b.limit {
		copy(b.recent, b.recent[1:])
		b.recent = b.recent[:b.limit-1]
	}
	b.recent = append(b.recent, e)
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
	b.mu.Unlock()
}

// Subscribe returns a channel of future events and a cancel func that closes it.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBacklog)
	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
}

// Recent returns up to n of the newest events, oldest first.
func (b *Bus) Recent(n int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if n <= 0 || n > len(b.recent) {
		n = len(b.recent)
	}
	return slices.Clone(b.recent[len(b.recent)-n:])
}

// Dropped counts events lost to slow subscribers.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}
