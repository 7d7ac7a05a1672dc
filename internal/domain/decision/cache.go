package decision

import (
	"sync"
	"time"

	"github.com/maternacare/cds/internal/domain/rules"
)

// cacheEntry holds one module's active rule set and its expiration time.
type cacheEntry struct {
	rules     []*rules.DecisionRule
	expiresAt time.Time
}

// RuleCache is a thread-safe per-module rule cache with lazy expiration.
// Population on miss is idempotent: two concurrent misses both compute from
// the same repository state and last-writer-wins on the slot.
type RuleCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	ttl     time.Duration
	now     func() time.Time

	hits         int64
	misses       int64
	lastWarmedAt time.Time
}

// NewRuleCache creates a cache with the given entry TTL. The clock is
// overridable for tests.
func NewRuleCache(ttl time.Duration) *RuleCache {
	return &RuleCache{
		entries: make(map[string]*cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached rule set for a module. Expired entries are deleted
// on access and reported as a miss.
func (c *RuleCache) Get(moduleCode string) ([]*rules.DecisionRule, bool) {
	c.mu.RLock()
	entry, ok := c.entries[moduleCode]
	c.mu.RUnlock()
	if !ok {
		c.miss()
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, moduleCode)
		c.mu.Unlock()
		c.miss()
		return nil, false
	}
	c.hit()
	return entry.rules, true
}

// Set stores a module's rule set with the cache TTL.
func (c *RuleCache) Set(moduleCode string, ruleSet []*rules.DecisionRule) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[moduleCode] = &cacheEntry{
		rules:     ruleSet,
		expiresAt: c.now().Add(c.ttl),
	}
}

// Invalidate drops one module's entry.
func (c *RuleCache) Invalidate(moduleCode string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, moduleCode)
}

// InvalidateAll drops every entry.
func (c *RuleCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
}

// MarkWarmed records a completed warm-up pass.
func (c *RuleCache) MarkWarmed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastWarmedAt = c.now()
}

func (c *RuleCache) hit() {
	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
}

func (c *RuleCache) miss() {
	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
}

// Stats is the cache observability snapshot.
type Stats struct {
	Entries      int        `json:"entries"`
	Hits         int64      `json:"hits"`
	Misses       int64      `json:"misses"`
	HitRate      float64    `json:"hit_rate"`
	LastWarmedAt *time.Time `json:"last_warmed_at,omitempty"`
}

// Stats returns a point-in-time snapshot.
func (c *RuleCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Stats{
		Entries: len(c.entries),
		Hits:    c.hits,
		Misses:  c.misses,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	if !c.lastWarmedAt.IsZero() {
		warmed := c.lastWarmedAt
		s.LastWarmedAt = &warmed
	}
	return s
}
