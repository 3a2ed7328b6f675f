// Package peers keeps the set of vehicles currently reachable over the radio.
//
// Every peer listing from the bridge replaces the previous one; listings are never
// merged. The registry is owned by a single goroutine and is not locked.
package peers

import "slices"

// MaxPeers bounds how many peers are shown at once.
const MaxPeers = 20

// Update derives the visible peer list from one raw listing: the local id and
// empty entries are removed, order is kept, and the result is truncated to MaxPeers.
func Update(raw []string, self string) []string {
	out := make([]string, 0, min(len(raw), MaxPeers))
	for _, p := range raw {
		if p == "" || p == self {
			continue
		}
		out = append(out, p)
		if len(out) == MaxPeers {
			break
		}
	}
	return out
}

// Registry stores the most recently computed visible list.
type Registry struct {
	self  string
	peers []string
}

func NewRegistry(self string) *Registry {
	return &Registry{self: self, peers: []string{}}
}

func (r *Registry) Self() string {
	return r.self
}

// Update replaces the visible list and reports whether it changed.
func (r *Registry) Update(raw []string) ([]string, bool) {
	next := Update(raw, r.self)
	changed := !slices.Equal(next, r.peers)
	r.peers = next
	return slices.Clone(next), changed
}

func (r *Registry) Peers() []string {
	return slices.Clone(r.peers)
}

func (r *Registry) Contains(peer string) bool {
	return slices.Contains(r.peers, peer)
}

func (r *Registry) Len() int {
	return len(r.peers)
}
