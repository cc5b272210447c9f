// Package presence tracks which subjects currently hold live
// connections. The registry is process-local and advisory: it decides
// where best-effort pushes go, never whether a write is durable. A
// restart losing all entries is acceptable.
package presence

import "sync"

type Registry struct {
	mu sync.RWMutex
	// conns maps a subject id to the set of its open connection ids.
	// A subject with several devices has several entries in the set;
	// the key is removed when the set drains so online checks are a
	// plain existence test.
	conns map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]map[string]struct{}),
	}
}

func (r *Registry) Register(subjectId, connectionId string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[subjectId]
	if !ok {
		set = make(map[string]struct{})
		r.conns[subjectId] = set
	}
	set[connectionId] = struct{}{}
}

// Unregister removes a connection from the subject's set. It is a
// no-op when the pair is absent, so disconnect paths may call it
// unconditionally.
func (r *Registry) Unregister(subjectId, connectionId string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[subjectId]
	if !ok {
		return
	}

	delete(set, connectionId)
	if len(set) == 0 {
		delete(r.conns, subjectId)
	}
}

// ConnectionsFor returns a snapshot of the subject's open connection
// ids. The returned slice is owned by the caller.
func (r *Registry) ConnectionsFor(subjectId string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.conns[subjectId]
	if !ok {
		return nil
	}

	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

func (r *Registry) IsOnline(subjectId string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.conns[subjectId]
	return ok
}
