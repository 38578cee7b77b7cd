package likes

import (
	"strings"
	"sync"

	"github.com/tidwall/btree"
)

// Entry is one row of a registry snapshot.
type Entry struct {
	Stock string `json:"stock"`
	Likes int    `json:"likes"`
}

// Registry records which anonymized clients have liked which stock.
// A client can like a given stock at most once; there is no removal.
type Registry struct {
	mu     sync.RWMutex
	stocks btree.Map[string, map[string]struct{}]
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{}
}

// Normalize upper-cases a stock symbol. All lookups go through it.
func Normalize(symbol string) string {
	return strings.ToUpper(symbol)
}

// Count returns the number of distinct clients that liked symbol.
func (r *Registry) Count(symbol string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.stocks.Get(Normalize(symbol))
	if !ok {
		return 0
	}
	return len(set)
}

// Register records a like from id for symbol. It reports whether the like
// was accepted; a repeated (id, symbol) pair is a no-op and returns false.
func (r *Registry) Register(symbol, id string) bool {
	symbol = Normalize(symbol)

	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.stocks.Get(symbol)
	if !ok {
		set = make(map[string]struct{})
		r.stocks.Set(symbol, set)
	}
	if _, dup := set[id]; dup {
		return false
	}
	set[id] = struct{}{}
	return true
}

// Len returns the number of symbols that have at least one like.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stocks.Len()
}

// Snapshot returns current counts ordered by symbol.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, r.stocks.Len())
	r.stocks.Scan(func(symbol string, set map[string]struct{}) bool {
		out = append(out, Entry{Stock: symbol, Likes: len(set)})
		return true
	})
	return out
}
