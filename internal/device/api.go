package device

import (
	"context"
	"time"

	"github.com/danmuck/carlink/internal/exchange"
)

// OutgoingView is a read-only snapshot of an outgoing exchange.
type OutgoingView struct {
	ID        string    `json:"id"`
	Peer      string    `json:"peer"`
	State     string    `json:"state"`
	Text      string    `json:"text,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	SentAt    time.Time `json:"sent_at,omitzero"`
}

// IncomingView is a read-only snapshot of an incoming exchange.
type IncomingView struct {
	ID         string    `json:"id"`
	Sender     string    `json:"sender"`
	Text       string    `json:"text"`
	State      string    `json:"state"`
	ReceivedAt time.Time `json:"received_at"`
}

// Status summarizes the dispatch context.
type Status struct {
	SelfID   string         `json:"self_id"`
	Port     string         `json:"port"`
	LinkOpen bool           `json:"link_open"`
	Peers    []string       `json:"peers"`
	Active   *OutgoingView  `json:"active,omitempty"`
	Awaiting []OutgoingView `json:"awaiting"`
	Incoming []IncomingView `json:"incoming"`
}

// SelectPeer starts recording a message for peer and returns the exchange id.
func (s *Service) SelectPeer(ctx context.Context, peer string) (string, error) {
	var id string
	var err error
	if doErr := s.do(ctx, func() { id, err = s.selectPeer(peer) }); doErr != nil {
		return "", doErr
	}
	return id, err
}

// CancelOutgoing abandons the active recording or transcription.
func (s *Service) CancelOutgoing(ctx context.Context) (string, error) {
	var id string
	var err error
	if doErr := s.do(ctx, func() { id, err = s.cancelOutgoing() }); doErr != nil {
		return "", doErr
	}
	return id, err
}

// Decide accepts (speaks) or rejects an announced incoming message.
func (s *Service) Decide(ctx context.Context, id string, accept bool) error {
	var err error
	if doErr := s.do(ctx, func() { err = s.decide(id, accept) }); doErr != nil {
		return doErr
	}
	return err
}

func (s *Service) Peers(ctx context.Context) ([]string, error) {
	var out []string
	if err := s.do(ctx, func() { out = s.registry.Peers() }); err != nil {
		return nil, err
	}
	return out, nil
}

// Pending lists incoming exchanges in arrival order.
func (s *Service) Pending(ctx context.Context) ([]IncomingView, error) {
	var out []IncomingView
	if err := s.do(ctx, func() { out = s.incomingViews() }); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) Status(ctx context.Context) (Status, error) {
	var st Status
	err := s.do(ctx, func() {
		st = Status{
			SelfID:   s.registry.Self(),
			Port:     s.link.Config().Port,
			LinkOpen: s.link.IsOpen(),
			Peers:    s.registry.Peers(),
			Awaiting: make([]OutgoingView, 0, len(s.awaiting)),
			Incoming: s.incomingViews(),
		}
		if s.active != nil {
			v := outgoingView(s.active.ex)
			st.Active = &v
		}
		for _, run := range s.awaiting {
			st.Awaiting = append(st.Awaiting, outgoingView(run.ex))
		}
	})
	return st, err
}

func (s *Service) incomingViews() []IncomingView {
	out := make([]IncomingView, 0, len(s.inOrder))
	for _, id := range s.inOrder {
		in := s.incoming[id].ex
		out = append(out, IncomingView{
			ID:         in.ID,
			Sender:     in.Sender,
			Text:       in.Text,
			State:      in.State.String(),
			ReceivedAt: in.ReceivedAt,
		})
	}
	return out
}

func outgoingView(ex *exchange.Outgoing) OutgoingView {
	return OutgoingView{
		ID:        ex.ID,
		Peer:      ex.Peer,
		State:     ex.State.String(),
		Text:      ex.Text,
		Reason:    ex.Reason,
		CreatedAt: ex.CreatedAt,
		SentAt:    ex.SentAt,
	}
}
