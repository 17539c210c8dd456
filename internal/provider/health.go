package provider

import (
	"sort"
	"sync"
	"time"
)

// HealthTracker keeps one circuit breaker per provider.
type HealthTracker struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker

	failureThreshold int
	probeInterval    time.Duration
}

func NewHealthTracker(failureThreshold int, probeInterval time.Duration) *HealthTracker {
	return &HealthTracker{
		breakers:         make(map[string]*CircuitBreaker),
		failureThreshold: failureThreshold,
		probeInterval:    probeInterval,
	}
}

// Breaker returns the breaker for provider, creating it on first use.
func (ht *HealthTracker) Breaker(provider string) *CircuitBreaker {
	ht.mu.RLock()
	cb, ok := ht.breakers[provider]
	ht.mu.RUnlock()
	if ok {
		return cb
	}

	ht.mu.Lock()
	defer ht.mu.Unlock()
	if cb, ok := ht.breakers[provider]; ok {
		return cb
	}
	cb = NewCircuitBreaker(ht.failureThreshold, ht.probeInterval)
	ht.breakers[provider] = cb
	return cb
}

func (ht *HealthTracker) Allow(provider string) bool {
	return ht.Breaker(provider).Allow()
}

func (ht *HealthTracker) RecordSuccess(provider string) {
	ht.Breaker(provider).RecordSuccess()
}

func (ht *HealthTracker) RecordFailure(provider string) {
	ht.Breaker(provider).RecordFailure()
}

// ProviderHealth is one row of Snapshot.
type ProviderHealth struct {
	Provider string `json:"provider"`
	State    string `json:"state"`
}

// Snapshot lists the breaker state of every provider seen so far.
func (ht *HealthTracker) Snapshot() []ProviderHealth {
	ht.mu.RLock()
	defer ht.mu.RUnlock()

	out := make([]ProviderHealth, 0, len(ht.breakers))
	for name, cb := range ht.breakers {
		out = append(out, ProviderHealth{Provider: name, State: cb.State().String()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

// Reset closes every breaker. Used after the provider set is reloaded.
func (ht *HealthTracker) Reset() {
	ht.mu.RLock()
	defer ht.mu.RUnlock()
	for _, cb := range ht.breakers {
		cb.Reset()
	}
}
