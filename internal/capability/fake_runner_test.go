package capability

import (
	"context"
	"os"
	"sync"
)

type runCall struct {
	name string
	args []string
}

type fakeRunner struct {
	mu     sync.Mutex
	calls  []runCall
	stdout string
	stderr string
	code   int32
	err    error
	// writeOut is written to the last argument of each call.
	writeOut []byte
}

func (r *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, int32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, runCall{name: name, args: append([]string(nil), args...)})
	if r.writeOut != nil && len(args) > 0 {
		_ = os.WriteFile(args[len(args)-1], r.writeOut, 0o600)
	}
	return []byte(r.stdout), []byte(r.stderr), r.code, r.err
}

func (r *fakeRunner) last() runCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return runCall{}
	}
	return r.calls[len(r.calls)-1]
}
