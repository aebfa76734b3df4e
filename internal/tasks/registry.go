// Package tasks tracks in-flight cancellable operations per owner.
package tasks

import "sync"

// CancelToken is a settable flag bound to one in-flight operation. It is
// polled cooperatively at suspension points and never pre-empts a running
// external process.
type CancelToken struct {
	once sync.Once
	done chan struct{}
}

func newToken() *CancelToken {
	return &CancelToken{done: make(chan struct{})}
}

// Cancel sets the token. Safe to call multiple times.
func (t *CancelToken) Cancel() {
	t.once.Do(func() { close(t.done) })
}

// Cancelled reports whether the token has been set.
func (t *CancelToken) Cancelled() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed when the token is set, for select-based
// waits such as retry backoff sleeps.
func (t *CancelToken) Done() <-chan struct{} {
	return t.done
}

// Registry keeps per-owner cancellable-operation bookkeeping. An owner may
// hold several tokens at once; one cancel action sets them all.
type Registry struct {
	mu     sync.Mutex
	owners map[int64][]*CancelToken
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{owners: make(map[int64][]*CancelToken)}
}

// Register creates and tracks a token for one operation.
func (r *Registry) Register(ownerID int64) *CancelToken {
	token := newToken()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owners[ownerID] = append(r.owners[ownerID], token)
	return token
}

// Unregister stops tracking a token once its operation has finished.
func (r *Registry) Unregister(ownerID int64, token *CancelToken) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tokens := r.owners[ownerID]
	for i, candidate := range tokens {
		if candidate == token {
			r.owners[ownerID] = append(tokens[:i], tokens[i+1:]...)
			break
		}
	}
	if len(r.owners[ownerID]) == 0 {
		delete(r.owners, ownerID)
	}
}

// CancelAll sets every token registered for the owner and reports how many
// operations were told to stop.
func (r *Registry) CancelAll(ownerID int64) int {
	r.mu.Lock()
	tokens := append([]*CancelToken(nil), r.owners[ownerID]...)
	r.mu.Unlock()

	for _, token := range tokens {
		token.Cancel()
	}
	return len(tokens)
}

// Active reports how many operations the owner currently has registered.
func (r *Registry) Active(ownerID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.owners[ownerID])
}

// Total reports how many operations are registered across all owners.
func (r *Registry) Total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, tokens := range r.owners {
		total += len(tokens)
	}
	return total
}
