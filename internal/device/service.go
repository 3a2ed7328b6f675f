package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/danmuck/carlink/internal/capability"
	"github.com/danmuck/carlink/internal/dispatch"
	"github.com/danmuck/carlink/internal/events"
	"github.com/danmuck/carlink/internal/exchange"
	"github.com/danmuck/carlink/internal/link"
	"github.com/danmuck/carlink/internal/peers"
	"github.com/danmuck/carlink/internal/protocol/frame"
	"github.com/rs/zerolog/log"
)

const frameBacklog = 32

var (
	ErrBusy              = errors.New("device: a recording is already in progress")
	ErrUnknownPeer       = errors.New("device: peer not visible")
	ErrUnknownExchange   = errors.New("device: unknown exchange")
	ErrLinkDown          = errors.New("device: link not open")
	ErrNotRunning        = errors.New("device: service not running")
	ErrRunning           = errors.New("device: service already started")
	ErrMissingCapability = errors.New("device: missing capability")
)

// Deps are the external collaborators the service drives.
type Deps struct {
	SelfID      capability.SelfIDProvider
	Capturer    capability.Capturer
	Transcriber capability.Transcriber
	Speaker     capability.Speaker
	// Opener defaults to the serial port opener.
	Opener link.Opener
	// Events defaults to a private bus.
	Events events.Publisher
}

// Service is the dispatch context: one goroutine consumes link frames, worker
// results and caller commands in turn.
type Service struct {
	cfg  ServiceConfig
	deps Deps
	bus  events.Publisher

	commands chan func()
	results  chan func()
	quit     chan struct{}
	stopped  chan struct{}
	started  atomic.Bool
	ready    atomic.Bool
	workers  sync.WaitGroup

	// owned by the dispatch goroutine
	link       *link.Link
	registry   *peers.Registry
	dispatcher *dispatch.Dispatcher
	workCtx    context.Context
	seq        uint64
	active     *outgoingRun
	awaiting   []*outgoingRun
	incoming   map[string]*incomingRun
	inOrder    []string
}

func NewService(cfg ServiceConfig, deps Deps) (*Service, error) {
	switch {
	case deps.SelfID == nil:
		return nil, fmt.Errorf("%w: self id provider", ErrMissingCapability)
	case deps.Capturer == nil:
		return nil, fmt.Errorf("%w: capturer", ErrMissingCapability)
	case deps.Transcriber == nil:
		return nil, fmt.Errorf("%w: transcriber", ErrMissingCapability)
	case deps.Speaker == nil:
		return nil, fmt.Errorf("%w: speaker", ErrMissingCapability)
	}
	bus := deps.Events
	if bus == nil {
		bus = events.NewBus(events.DefaultRecent)
	}
	return &Service{
		cfg:      cfg.WithDefaults(),
		deps:     deps,
		bus:      bus,
		commands: make(chan func()),
		results:  make(chan func()),
		quit:     make(chan struct{}),
		stopped:  make(chan struct{}),
		incoming: make(map[string]*incomingRun),
	}, nil
}

func (s *Service) Config() ServiceConfig {
	return s.cfg
}

// Ready reports whether the link is open and the loop is serving.
func (s *Service) Ready() bool {
	return s.ready.Load()
}

// Run opens the link and serves until ctx is cancelled or startup fails. A Service
// runs at most once.
func (s *Service) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer close(s.stopped)

	self, err := s.deps.SelfID.SelfID()
	if err != nil {
		log.Error().Err(err).Msg("device: vehicle id unavailable")
		return fmt.Errorf("device: resolve vehicle id: %w", err)
	}
	s.registry = peers.NewRegistry(self)
	s.dispatcher = dispatch.New(s.registry, s, s, s.bus)

	l, err := link.Open(s.cfg.Link, s.deps.Opener)
	if err != nil {
		log.Error().Err(err).Str("port", s.cfg.Link.Port).Msg("device: link open failed")
		s.bus.Publish(events.Event{Kind: events.LinkFailed, Reason: err.Error()})
		return err
	}
	s.link = l
	s.bus.Publish(events.Event{Kind: events.LinkOpened, Message: l.Config().Port})

	workCtx, cancelWork := context.WithCancel(ctx)
	defer cancelWork()
	s.workCtx = workCtx

	linkCtx, stopLink := context.WithCancel(ctx)
	defer stopLink()
	frames := make(chan frame.Frame, frameBacklog)
	linkDone := make(chan error, 1)
	go func() {
		linkDone <- l.Run(linkCtx, func(f frame.Frame) {
			select {
			case frames <- f:
			case <-linkCtx.Done():
			}
		})
	}()

	if err := l.WriteFrame(frame.Register(self)); err != nil {
		log.Warn().Err(err).Str("self", self).Msg("device: register failed")
	} else {
		log.Info().Str("self", self).Msg("device: registered")
	}
	s.ready.Store(true)

	linkErr := linkDone
	for {
		select {
		case <-ctx.Done():
			return s.shutdown(stopLink, cancelWork, linkDone, linkErr == nil)
		case f := <-frames:
			s.dispatcher.Dispatch(f)
		case fn := <-s.results:
			fn()
		case fn := <-s.commands:
			fn()
		case err := <-linkErr:
			for drained := false; !drained; {
				select {
				case f := <-frames:
					s.dispatcher.Dispatch(f)
				default:
					drained = true
				}
			}
			s.linkLost(err)
			linkErr = nil
		}
	}
}

func (s *Service) linkLost(err error) {
	s.ready.Store(false)
	if err == nil {
		err = link.ErrRead
	}
	log.Error().Err(err).Msg("device: link lost")
	s.bus.Publish(events.Event{Kind: events.LinkFailed, Reason: err.Error()})
}

// shutdown abandons in-flight exchanges, stops the link and waits a bounded time
// for workers. Nothing is written to the link after this begins.
func (s *Service) shutdown(stopLink, cancelWork context.CancelFunc, linkDone <-chan error, linkReturned bool) error {
	close(s.quit)
	s.ready.Store(false)
	stopLink()
	cancelWork()

	if run := s.active; run != nil {
		if err := run.ex.Cancel(); err == nil {
			run.ex.Reason = exchange.ReasonShutdown
		}
		s.finishOutgoing(run)
	}
	for len(s.awaiting) > 0 {
		run := s.awaiting[len(s.awaiting)-1]
		if err := run.ex.Fail(exchange.ReasonShutdown); err != nil {
			log.Debug().Err(err).Str("exchange", run.ex.ID).Msg("device: shutdown fail")
		}
		s.finishOutgoing(run)
	}
	for _, id := range s.inOrder {
		log.Debug().Str("exchange", id).Msg("device: incoming abandoned")
	}
	s.incoming = make(map[string]*incomingRun)
	s.inOrder = nil

	waitCtx, cancelWait := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancelWait()
	workersDone := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(workersDone)
	}()
	select {
	case <-workersDone:
	case <-waitCtx.Done():
		log.Warn().Dur("timeout", s.cfg.ShutdownTimeout).Msg("device: workers still running at shutdown")
	}
	if !linkReturned {
		select {
		case <-linkDone:
		case <-waitCtx.Done():
			log.Warn().Msg("device: link read loop still running at shutdown")
		}
	}
	_ = s.link.Close()
	log.Info().Msg("device: stopped")
	return nil
}

// do runs fn on the dispatch goroutine and waits for it.
func (s *Service) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case s.commands <- func() { defer close(done); fn() }:
	case <-s.stopped:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
	<-done
	return nil
}

// post hands a worker result to the dispatch goroutine. It reports false once
// shutdown has begun; the caller then owns cleanup.
func (s *Service) post(fn func()) bool {
	select {
	case s.results <- fn:
		return true
	case <-s.quit:
		return false
	}
}

func (s *Service) spawn(fn func()) {
	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		fn()
	}()
}

func (s *Service) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}
