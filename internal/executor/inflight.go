package executor

import "sync"

// inflightRegistry tracks which symbols currently have an execution attempt
// running. It is the single piece of mutable state shared between the scan
// loops and the coordinator, guarded by one mutex.
type inflightRegistry struct {
	mu     sync.Mutex
	active map[string]string // symbol -> attempt ID
}

func newInflightRegistry() *inflightRegistry {
	return &inflightRegistry{active: make(map[string]string)}
}

// tryAcquire marks symbol as busy. It returns false if another attempt
// already holds the symbol.
func (r *inflightRegistry) tryAcquire(symbol, attemptID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.active[symbol]; busy {
		return false
	}
	r.active[symbol] = attemptID
	return true
}

// release frees the symbol. Releasing an unheld symbol is a no-op.
func (r *inflightRegistry) release(symbol string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, symbol)
}

// isActive reports whether an attempt currently holds the symbol.
func (r *inflightRegistry) isActive(symbol string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, busy := r.active[symbol]
	return busy
}
