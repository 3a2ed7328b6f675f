package device

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/carlink/internal/capability"
	"github.com/danmuck/carlink/internal/events"
	"github.com/danmuck/carlink/internal/link"
)

type memPort struct {
	reads  chan []byte
	closed chan struct{}
	once   sync.Once

	// unread tail of the last chunk; only the link read loop touches it
	pending []byte

	mu      sync.Mutex
	written bytes.Buffer
}

func newMemPort() *memPort {
	return &memPort{reads: make(chan []byte, 16), closed: make(chan struct{})}
}

func (p *memPort) Read(b []byte) (int, error) {
	if len(p.pending) > 0 {
		n := copy(b, p.pending)
		p.pending = p.pending[n:]
		return n, nil
	}
	select {
	case chunk := <-p.reads:
		n := copy(b, chunk)
		p.pending = chunk[n:]
		return n, nil
	case <-p.closed:
		return 0, io.EOF
	case <-time.After(5 * time.Millisecond):
		return 0, nil
	}
}

func (p *memPort) Write(b []byte) (int, error) {
	select {
	case <-p.closed:
		return 0, errors.New("port closed")
	default:
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.Write(b)
}

func (p *memPort) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

func (p *memPort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.String()
}

type harness struct {
	t        *testing.T
	svc      *Service
	port     *memPort
	events   <-chan events.Event
	cancel   context.CancelFunc
	done     chan error
	released atomic.Int32
	spoken   chan string
}

type harnessOpts struct {
	self        string
	transcript  string
	transcribe  capability.TranscribeFunc
	capture     capability.CaptureFunc
	speak       capability.SpeakFunc
	ackTimeout  time.Duration
	shutdownMax time.Duration
}

func startHarness(t *testing.T, opts harnessOpts) *harness {
	t.Helper()
	if opts.self == "" {
		opts.self = "B"
	}
	h := &harness{t: t, port: newMemPort(), done: make(chan error, 1), spoken: make(chan string, 16)}

	if opts.capture == nil {
		opts.capture = func(_ context.Context, d time.Duration, rate int) (*capability.Clip, error) {
			return capability.NewClip("mem.wav", rate, d, func() error {
				h.released.Add(1)
				return nil
			}), nil
		}
	}
	if opts.transcribe == nil {
		text := opts.transcript
		opts.transcribe = func(context.Context, *capability.Clip, string) (string, error) {
			return text, nil
		}
	}
	if opts.speak == nil {
		opts.speak = func(_ context.Context, chunk string) error {
			h.spoken <- chunk
			return nil
		}
	}

	bus := events.NewBus(events.DefaultRecent)
	sub, unsubscribe := bus.Subscribe()
	t.Cleanup(unsubscribe)
	h.events = sub

	cfg := DefaultServiceConfig()
	cfg.Link.Port = "/dev/mem0"
	cfg.Link.PollInterval = 5 * time.Millisecond
	cfg.Outgoing.RecordDuration = 10 * time.Millisecond
	if opts.ackTimeout > 0 {
		cfg.Outgoing.AckTimeout = opts.ackTimeout
	}
	if opts.shutdownMax > 0 {
		cfg.ShutdownTimeout = opts.shutdownMax
	}
	svc, err := NewService(cfg, Deps{
		SelfID:      capability.StaticID(opts.self),
		Capturer:    opts.capture,
		Transcriber: opts.transcribe,
		Speaker:     opts.speak,
		Opener: func(string, int, time.Duration) (link.Port, error) {
			return h.port, nil
		},
		Events: bus,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	h.svc = svc

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- svc.Run(ctx) }()
	t.Cleanup(h.stop)

	h.waitEvent(func(e events.Event) bool { return e.Kind == events.LinkOpened })
	return h
}

func (h *harness) stop() {
	h.cancel()
	select {
	case <-h.done:
	case <-time.After(5 * time.Second):
		h.t.Errorf("service did not stop")
	}
}

func (h *harness) feed(lines string) {
	h.port.reads <- []byte(lines)
}

func (h *harness) waitEvent(match func(events.Event) bool) events.Event {
	h.t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e := <-h.events:
			if match(e) {
				return e
			}
		case <-timeout:
			h.t.Fatalf("timed out waiting for event")
			return events.Event{}
		}
	}
}

func (h *harness) waitWritten(want string) {
	h.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(h.port.Written(), want) {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	h.t.Fatalf("line %q never written, got %q", want, h.port.Written())
}

// listPeers feeds a listing and waits for it to be applied.
func (h *harness) listPeers(line string) {
	h.t.Helper()
	h.feed(line)
	h.waitEvent(func(e events.Event) bool { return e.Kind == events.PeersChanged })
}

func (h *harness) status() Status {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	st, err := h.svc.Status(ctx)
	if err != nil {
		h.t.Fatalf("status: %v", err)
	}
	return st
}

func isOutcome(e events.Event) bool {
	return e.Kind == events.SendOutcome
}
