package sender

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxTrackedContacts caps the cooldown map so a long-running worker cannot
// grow it without bound.
const maxTrackedContacts = 4096

// RateGate holds the two independent send gates: an account-level
// messages-per-second budget and a per-contact cooldown enforcing minimum
// spacing between consecutive sends to the same contact. Safe for concurrent
// use.
type RateGate struct {
	mu        sync.Mutex
	accounts  map[string]*rate.Limiter
	perSecond rate.Limit
	burst     int

	lastSend map[string]time.Time
	cooldown time.Duration
}

func NewRateGate(perSecond float64, cooldown time.Duration) *RateGate {
	if perSecond <= 0 {
		perSecond = 1
	}
	return &RateGate{
		accounts:  make(map[string]*rate.Limiter),
		perSecond: rate.Limit(perSecond),
		burst:     1,
		lastSend:  make(map[string]time.Time),
		cooldown:  cooldown,
	}
}

// AllowAccount consumes one token from the account's budget, returning false
// when the budget is exhausted.
func (g *RateGate) AllowAccount(accountID string) bool {
	g.mu.Lock()
	limiter, ok := g.accounts[accountID]
	if !ok {
		limiter = rate.NewLimiter(g.perSecond, g.burst)
		g.accounts[accountID] = limiter
	}
	g.mu.Unlock()
	return limiter.Allow()
}

// AllowContact reports whether enough time has passed since the last send to
// this contact.
func (g *RateGate) AllowContact(contactID string) bool {
	if g.cooldown <= 0 {
		return true
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	last, ok := g.lastSend[contactID]
	if !ok {
		return true
	}
	return time.Since(last) >= g.cooldown
}

// RecordSend stamps the contact cooldown after a successful delivery.
func (g *RateGate) RecordSend(contactID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.lastSend) >= maxTrackedContacts {
		cutoff := time.Now().Add(-g.cooldown)
		for id, t := range g.lastSend {
			if t.Before(cutoff) {
				delete(g.lastSend, id)
			}
		}
	}
	g.lastSend[contactID] = time.Now()
}
