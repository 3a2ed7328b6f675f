// Package dispatch routes decoded frames to the component that owns them.
package dispatch

import (
	"github.com/danmuck/carlink/internal/events"
	"github.com/danmuck/carlink/internal/observability"
	"github.com/danmuck/carlink/internal/peers"
	"github.com/danmuck/carlink/internal/protocol/frame"
	"github.com/rs/zerolog/log"
)

// AckResolver settles the newest exchange awaiting an ack from peer.
// It reports false when nothing was waiting.
type AckResolver interface {
	ResolveAck(peer string, success bool) bool
}

// Announcer opens a new incoming exchange for a received message.
type Announcer interface {
	Announce(sender, text string)
}

// Dispatcher must be driven from a single goroutine; it owns the registry.
type Dispatcher struct {
	registry *peers.Registry
	acks     AckResolver
	incoming Announcer
	events   events.Publisher
}

func New(registry *peers.Registry, acks AckResolver, incoming Announcer, pub events.Publisher) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		acks:     acks,
		incoming: incoming,
		events:   pub,
	}
}

func (d *Dispatcher) Registry() *peers.Registry {
	return d.registry
}

// Dispatch handles one frame. Frames must be passed in link read order.
func (d *Dispatcher) Dispatch(f frame.Frame) {
	switch f.Kind {
	case frame.KindPeerListing:
		d.peerListing(f.Peers)
	case frame.KindMessage:
		log.Info().Str("peer", f.Peer).Int("chars", len([]rune(f.Text))).Msg("dispatch: message received")
		d.incoming.Announce(f.Peer, f.Text)
	case frame.KindAck:
		if !d.acks.ResolveAck(f.Peer, f.Success) {
			log.Info().
				Str("peer", f.Peer).
				Bool("success", f.Success).
				Msg("dispatch: ack with no pending send discarded")
		}
	case frame.KindRegister:
		log.Debug().Str("peer", f.Peer).Msg("dispatch: register frame ignored")
	default:
		log.Debug().Str("kind", f.Kind.String()).Msg("dispatch: unroutable frame ignored")
	}
}

func (d *Dispatcher) peerListing(raw []string) {
	visible, changed := d.registry.Update(raw)
	observability.SetPeersVisible(len(visible))
	if !changed {
		log.Trace().Int("peers", len(visible)).Msg("dispatch: peer listing unchanged")
		return
	}
	log.Info().Strs("peers", visible).Msg("dispatch: peer listing updated")
	d.events.Publish(events.Event{Kind: events.PeersChanged, Peers: visible})
}
