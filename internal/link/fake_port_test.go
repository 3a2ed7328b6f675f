package link

import (
	"bytes"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var errFakeClosed = errors.New("fake port closed")

type fakePort struct {
	reads   chan []byte
	readErr chan error
	closed  chan struct{}
	pending []byte

	mu       sync.Mutex
	written  bytes.Buffer
	writeErr error

	closeOnce  sync.Once
	closeCalls atomic.Int32
}

func newFakePort() *fakePort {
	return &fakePort{
		reads:   make(chan []byte, 64),
		readErr: make(chan error, 1),
		closed:  make(chan struct{}),
	}
}

func (p *fakePort) Read(b []byte) (int, error) {
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
	case err := <-p.readErr:
		return 0, err
	case <-p.closed:
		return 0, errFakeClosed
	case <-time.After(10 * time.Millisecond):
		return 0, nil
	}
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	return p.written.Write(b)
}

func (p *fakePort) Close() error {
	p.closeCalls.Add(1)
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

func (p *fakePort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.String()
}

func openerFor(p *fakePort) Opener {
	return func(string, int, time.Duration) (Port, error) {
		return p, nil
	}
}
