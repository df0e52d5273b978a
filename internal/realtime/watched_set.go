package realtime

import "sync"

// WatchedSymbolSet tracks which symbols the broadcast loop polls. Default
// symbols are always present; listener-requested symbols are reference
// counted so they drop out once the last interested listener disconnects.
// Mutations are visible to the next tick; an in-flight tick may use the
// previous snapshot.
type WatchedSymbolSet struct {
	mu       sync.RWMutex
	defaults []string
	extra    map[string]int
}

func NewWatchedSymbolSet(defaults []string) *WatchedSymbolSet {
	return &WatchedSymbolSet{
		defaults: append([]string(nil), defaults...),
		extra:    make(map[string]int),
	}
}

// Acquire adds listener-requested symbols, bumping their refcount.
func (w *WatchedSymbolSet) Acquire(symbols []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, s := range symbols {
		if w.isDefaultLocked(s) {
			continue
		}
		w.extra[s]++
	}
}

// Release drops one reference per symbol, removing symbols nobody watches.
func (w *WatchedSymbolSet) Release(symbols []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, s := range symbols {
		if count, ok := w.extra[s]; ok {
			if count <= 1 {
				delete(w.extra, s)
			} else {
				w.extra[s] = count - 1
			}
		}
	}
}

// Snapshot returns the current watch list: defaults plus live extras.
func (w *WatchedSymbolSet) Snapshot() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	symbols := append([]string(nil), w.defaults...)
	for s := range w.extra {
		symbols = append(symbols, s)
	}
	return symbols
}

func (w *WatchedSymbolSet) isDefaultLocked(symbol string) bool {
	for _, d := range w.defaults {
		if d == symbol {
			return true
		}
	}
	return false
}
