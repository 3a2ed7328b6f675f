package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/carlink/internal/events"
	"github.com/danmuck/carlink/internal/testutil/testlog"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordAndRecentNewestFirst(t *testing.T) {
	testlog.Start(t)
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, peer := range []string{"A", "B", "C"} {
		err := s.Record(ctx, Entry{
			ExchangeID: "out-" + peer,
			Direction:  DirectionOutgoing,
			Peer:       peer,
			Text:       "앞차 조심",
			Outcome:    "succeeded",
			Succeeded:  true,
			At:         base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("record %s: %v", peer, err)
		}
	}

	got, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 || got[0].Peer != "C" || got[1].Peer != "B" {
		t.Fatalf("unexpected order %+v", got)
	}
	if got[0].Text != "앞차 조심" {
		t.Fatalf("text not preserved: %q", got[0].Text)
	}
}

func TestOpenFileDatabase(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Record(context.Background(), Entry{ExchangeID: "in-1", Direction: DirectionIncoming, Peer: "A"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	_ = s.Close()

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	got, err := reopened.Recent(context.Background(), 0)
	if err != nil || len(got) != 1 || got[0].At.IsZero() {
		t.Fatalf("unexpected entries=%+v err=%v", got, err)
	}
	if _, err := Open("  "); !errors.Is(err, ErrPathRequired) {
		t.Fatalf("expected ErrPathRequired, got %v", err)
	}
}

func TestClampLimit(t *testing.T) {
	testlog.Start(t)
	if ClampLimit(0) != DefaultLimit || ClampLimit(-3) != DefaultLimit || ClampLimit(10_000) != MaxLimit || ClampLimit(7) != 7 {
		t.Fatalf("unexpected clamp results")
	}
}

func TestRecorderPersistsTerminalEvents(t *testing.T) {
	testlog.Start(t)
	s := openTestStore(t)
	bus := events.NewBus(16)
	sub, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewRecorder(s).Run(ctx, sub)
		close(done)
	}()

	bus.Publish(events.Event{Kind: events.PeersChanged, Peers: []string{"A"}})
	bus.Publish(events.Event{Kind: events.SendOutcome, ExchangeID: "out-1", Peer: "A", Text: "hi", State: "failed", Reason: "no acknowledgement"})
	bus.Publish(events.Event{Kind: events.IncomingResolved, ExchangeID: "in-2", Peer: "C", Text: "hello", State: "done", Succeeded: true})

	deadline := time.Now().Add(2 * time.Second)
	var got []Entry
	for time.Now().Before(deadline) {
		got, _ = s.Recent(context.Background(), 10)
		if len(got) == 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %+v", got)
	}
	byID := map[string]Entry{}
	for _, e := range got {
		byID[e.ExchangeID] = e
	}
	if e := byID["out-1"]; e.Direction != DirectionOutgoing || e.Succeeded || e.Reason != "no acknowledgement" {
		t.Fatalf("unexpected outgoing entry %+v", e)
	}
	if e := byID["in-2"]; e.Direction != DirectionIncoming || !e.Succeeded || e.Outcome != "done" {
		t.Fatalf("unexpected incoming entry %+v", e)
	}
}

func TestRecorderDrainsBufferedEventsOnCancel(t *testing.T) {
	testlog.Start(t)
	s := openTestStore(t)
	in := make(chan events.Event, 4)
	in <- events.Event{Kind: events.SendOutcome, ExchangeID: "out-7", Peer: "B", State: "failed", Reason: "shutting down"}
	in <- events.Event{Kind: events.Log, Message: "ignored"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	NewRecorder(s).Run(ctx, in)

	got, err := s.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 1 || got[0].ExchangeID != "out-7" || got[0].Reason != "shutting down" {
		t.Fatalf("buffered outcome not recorded: %+v", got)
	}
}
