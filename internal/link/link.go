package link

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/carlink/internal/observability"
	"github.com/danmuck/carlink/internal/protocol/frame"
	"github.com/rs/zerolog/log"
)

const readChunkBytes = 256

var (
	ErrConnection = errors.New("link: connection failed")
	ErrRead       = errors.New("link: read failed")
	ErrWrite      = errors.New("link: write failed")
	ErrNotOpen    = fmt.Errorf("%w: link not open", ErrWrite)
	ErrRunning    = errors.New("link: read loop already running")
)

// Port is the byte stream behind a Link. A Read that times out returns 0, nil.
// Close must unblock a pending Read.
type Port interface {
	io.Reader
	io.Writer
	io.Closer
}

// Opener opens the physical port.
type Opener func(port string, baudRate int, readTimeout time.Duration) (Port, error)

// Link owns one open port.
type Link struct {
	cfg  Config
	port Port

	writeMu   sync.Mutex
	closed    atomic.Bool
	running   atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Open opens the port once. Failures wrap ErrConnection and are not retried.
func Open(cfg Config, open Opener) (*Link, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	if open == nil {
		open = SerialOpener
	}
	port, err := open(cfg.Port, cfg.BaudRate, cfg.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConnection, cfg.Port, err)
	}
	log.Info().
		Str("port", cfg.Port).
		Int("baud", cfg.BaudRate).
		Msg("serial link opened")
	return &Link{cfg: cfg, port: port}, nil
}

func (l *Link) Config() Config {
	return l.cfg
}

// IsOpen reports whether the port is still held.
func (l *Link) IsOpen() bool {
	return l != nil && !l.closed.Load()
}

// Run reads until ctx is cancelled or the port fails. onFrame is called on the
// calling goroutine, once per decoded frame, in read order. Cancellation closes the
// port; a clean stop returns nil.
func (l *Link) Run(ctx context.Context, onFrame func(frame.Frame)) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer l.running.Store(false)

	stop := context.AfterFunc(ctx, func() {
		_ = l.Close()
	})
	defer stop()

	splitter := NewLineSplitter(l.cfg.MaxLineBytes)
	buf := make([]byte, readChunkBytes)
	for {
		if ctx.Err() != nil || l.closed.Load() {
			return nil
		}
		n, err := l.port.Read(buf)
		if n > 0 {
			lines, dropped := splitter.Feed(buf[:n])
			for i := 0; i < dropped; i++ {
				observability.RecordFrameDropped("overlong")
				log.Debug().Int("max_bytes", l.cfg.MaxLineBytes).Msg("link: overlong line dropped")
			}
			for _, line := range lines {
				l.deliver(line, onFrame)
			}
		}
		if err != nil {
			if ctx.Err() != nil || l.closed.Load() {
				return nil
			}
			_ = l.Close()
			return fmt.Errorf("%w: %v", ErrRead, err)
		}
		if n == 0 {
			timer := time.NewTimer(l.cfg.PollInterval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil
			case <-timer.C:
			}
		}
	}
}

func (l *Link) deliver(line []byte, onFrame func(frame.Frame)) {
	line = bytes.TrimRight(line, "\r")
	if len(line) == 0 {
		return
	}
	f, err := frame.Decode(line)
	if err != nil {
		observability.RecordFrameDropped("decode")
		log.Debug().Err(err).Bytes("line", line).Msg("link: frame dropped")
		return
	}
	observability.RecordFrameReceived(f.Kind.String())
	log.Debug().Str("kind", f.Kind.String()).Bytes("line", line).Msg("link: frame received")
	if onFrame != nil {
		onFrame(f)
	}
}

// Write sends one encoded line. Safe for concurrent use.
func (l *Link) Write(line []byte) error {
	if l == nil {
		return ErrNotOpen
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if l.closed.Load() {
		observability.RecordLinkWrite(ErrNotOpen)
		return ErrNotOpen
	}
	_, err := l.port.Write(line)
	observability.RecordLinkWrite(err)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	log.Debug().Bytes("line", bytes.TrimRight(line, "\r\n")).Msg("link: line sent")
	return nil
}

func (l *Link) WriteFrame(f frame.Frame) error {
	line, err := frame.Encode(f)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return l.Write(line)
}

// Close releases the port. Only the first call reaches the port.
func (l *Link) Close() error {
	if l == nil {
		return nil
	}
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		l.writeMu.Lock()
		defer l.writeMu.Unlock()
		l.closeErr = l.port.Close()
		log.Info().Str("port", l.cfg.Port).Msg("serial link closed")
	})
	return l.closeErr
}
