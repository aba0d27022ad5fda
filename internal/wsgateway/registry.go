package wsgateway

import (
	"sync"
)

// SubscriberRegistry indexes subscribers by id and by focus symbol
type SubscriberRegistry struct {
	subscribers map[string]*Subscriber            // id -> subscriber
	bySymbol    map[string]map[string]*Subscriber // symbol -> id -> subscriber
	mu          sync.RWMutex
}

// NewSubscriberRegistry creates an empty registry
func NewSubscriberRegistry() *SubscriberRegistry {
	return &SubscriberRegistry{
		subscribers: make(map[string]*Subscriber),
		bySymbol:    make(map[string]map[string]*Subscriber),
	}
}

// Add adds a subscriber to the registry
func (r *SubscriberRegistry) Add(sub *Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.subscribers[sub.ID] = sub

	if r.bySymbol[sub.Symbol] == nil {
		r.bySymbol[sub.Symbol] = make(map[string]*Subscriber)
	}
	r.bySymbol[sub.Symbol][sub.ID] = sub
}

// Remove removes a subscriber; it reports whether it was present
func (r *SubscriberRegistry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, exists := r.subscribers[id]
	if !exists {
		return false
	}

	delete(r.subscribers, id)

	if symbolSubs, exists := r.bySymbol[sub.Symbol]; exists {
		delete(symbolSubs, id)
		if len(symbolSubs) == 0 {
			delete(r.bySymbol, sub.Symbol)
		}
	}
	return true
}

// Get retrieves a subscriber by ID
func (r *SubscriberRegistry) Get(id string) (*Subscriber, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, exists := r.subscribers[id]
	return sub, exists
}

// GetAll retrieves all subscribers
func (r *SubscriberRegistry) GetAll() []*Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := make([]*Subscriber, 0, len(r.subscribers))
	for _, sub := range r.subscribers {
		subs = append(subs, sub)
	}
	return subs
}

// Count returns the total number of subscribers
func (r *SubscriberRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subscribers)
}

// CountBySymbol returns subscriber counts per focus symbol
func (r *SubscriberRegistry) CountBySymbol() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[string]int, len(r.bySymbol))
	for symbol, subs := range r.bySymbol {
		counts[symbol] = len(subs)
	}
	return counts
}
