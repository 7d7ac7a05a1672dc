package rules

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// repoMem is an in-memory rule repository used when the server runs without
// a database (development seed mode) and by the test suite.
type repoMem struct {
	mu    sync.RWMutex
	items map[uuid.UUID]*DecisionRule
}

// NewRepoMem returns an empty in-memory rule repository.
func NewRepoMem() Repository {
	return &repoMem{items: make(map[uuid.UUID]*DecisionRule)}
}

func (r *repoMem) Insert(_ context.Context, rule *DecisionRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	cp := *rule
	r.items[rule.ID] = &cp
	return nil
}

func (r *repoMem) Update(_ context.Context, rule *DecisionRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.items[rule.ID]
	if !ok {
		return &NotFoundError{Resource: "rule", ID: rule.ID.String()}
	}
	cp := *rule
	cp.CreatedAt = existing.CreatedAt
	cp.UpdatedAt = time.Now()
	r.items[rule.ID] = &cp
	return nil
}

func (r *repoMem) GetByID(_ context.Context, id uuid.UUID) (*DecisionRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.items[id]
	if !ok {
		return nil, &NotFoundError{Resource: "rule", ID: id.String()}
	}
	cp := *rule
	return &cp, nil
}

func (r *repoMem) GetByCodeVersion(_ context.Context, moduleCode, ruleCode string, version float64) (*DecisionRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rule := range r.items {
		if rule.ModuleCode == moduleCode && rule.RuleCode == ruleCode && rule.Version == version {
			cp := *rule
			return &cp, nil
		}
	}
	return nil, &NotFoundError{Resource: "rule", ID: ruleCode}
}

func (r *repoMem) SupersedeActive(_ context.Context, moduleCode, ruleCode string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rule := range r.items {
		if rule.ModuleCode == moduleCode && rule.RuleCode == ruleCode && rule.Status == StatusActive {
			rule.Status = StatusSuperseded
			rule.UpdatedAt = time.Now()
			n++
		}
	}
	return n, nil
}

func (r *repoMem) ListActive(_ context.Context, moduleCode string) ([]*DecisionRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var items []*DecisionRule
	for _, rule := range r.items {
		if rule.ModuleCode == moduleCode && rule.Status == StatusActive {
			cp := *rule
			items = append(items, &cp)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].RuleCode < items[j].RuleCode })
	return items, nil
}

func (r *repoMem) List(_ context.Context, moduleCode string, activeOnly bool, limit, offset int) ([]*DecisionRule, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var items []*DecisionRule
	for _, rule := range r.items {
		if moduleCode != "" && rule.ModuleCode != moduleCode {
			continue
		}
		if activeOnly && rule.Status != StatusActive {
			continue
		}
		cp := *rule
		items = append(items, &cp)
	}
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.ModuleCode != b.ModuleCode {
			return a.ModuleCode < b.ModuleCode
		}
		if a.RuleCode != b.RuleCode {
			return a.RuleCode < b.RuleCode
		}
		return a.Version > b.Version
	})

	total := len(items)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return items[offset:end], total, nil
}

func (r *repoMem) ListAll(_ context.Context) ([]*DecisionRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := make([]*DecisionRule, 0, len(r.items))
	for _, rule := range r.items {
		cp := *rule
		items = append(items, &cp)
	}
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.ModuleCode != b.ModuleCode {
			return a.ModuleCode < b.ModuleCode
		}
		if a.RuleCode != b.RuleCode {
			return a.RuleCode < b.RuleCode
		}
		return a.Version < b.Version
	})
	return items, nil
}
