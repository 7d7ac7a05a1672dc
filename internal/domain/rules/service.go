package rules

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/maternacare/cds/internal/platform/telemetry"
)

// CacheInvalidator is implemented by the decision cache. The repository side
// owns the contract: every mutation must invalidate before returning.
type CacheInvalidator interface {
	Invalidate(moduleCode string)
	InvalidateAll()
}

// Service wraps the rule repository with validation, import, integrity
// checking and cache invalidation.
type Service struct {
	repo  Repository
	cache CacheInvalidator
	tel   *telemetry.TelemetryProvider
	log   zerolog.Logger

	mu         sync.Mutex
	lastReport *IntegrityReport
	moduleLocks map[string]*sync.Mutex
}

// NewService builds a rule service. cache and tel may be nil (tests).
func NewService(repo Repository, cache CacheInvalidator, tel *telemetry.TelemetryProvider, log zerolog.Logger) *Service {
	return &Service{
		repo:        repo,
		cache:       cache,
		tel:         tel,
		log:         log,
		moduleLocks: make(map[string]*sync.Mutex),
	}
}

// lockModule acquires the per-module write lock and returns its release
// function. Import and patch writes to the same module are serialized;
// different modules proceed independently.
func (s *Service) lockModule(moduleCode string) func() {
	s.mu.Lock()
	lock, ok := s.moduleLocks[moduleCode]
	if !ok {
		lock = &sync.Mutex{}
		s.moduleLocks[moduleCode] = lock
	}
	s.mu.Unlock()
	lock.Lock()
	return lock.Unlock
}

func (s *Service) invalidate(moduleCode string) {
	if s.cache != nil {
		s.cache.Invalidate(moduleCode)
	}
}

func (s *Service) invalidateAll() {
	if s.cache != nil {
		s.cache.InvalidateAll()
	}
}

// ActiveRules returns the active rules for a module ordered by severity
// descending then rule code ascending. This ordering is what callers display,
// so it must be stable.
func (s *Service) ActiveRules(ctx context.Context, moduleCode string) ([]*DecisionRule, error) {
	items, err := s.repo.ListActive(ctx, moduleCode)
	if err != nil {
		return nil, err
	}
	SortForEvaluation(items)
	return items, nil
}

// SortForEvaluation orders rules severity-desc then ruleCode-asc in place.
func SortForEvaluation(items []*DecisionRule) {
	sort.SliceStable(items, func(i, j int) bool {
		ri, rj := SeverityRank(items[i].AlertSeverity), SeverityRank(items[j].AlertSeverity)
		if ri != rj {
			return ri > rj
		}
		return items[i].RuleCode < items[j].RuleCode
	})
}

// ListRules returns a page of rules, optionally filtered by module and
// activation state.
func (s *Service) ListRules(ctx context.Context, moduleCode string, activeOnly bool, limit, offset int) ([]*DecisionRule, int, error) {
	return s.repo.List(ctx, moduleCode, activeOnly, limit, offset)
}

// GetRule fetches one rule version by id.
func (s *Service) GetRule(ctx context.Context, id uuid.UUID) (*DecisionRule, error) {
	return s.repo.GetByID(ctx, id)
}

// RulePatch carries the admin-editable fields. Provenance (rule code, DAK
// source id) cannot be expressed here and so cannot be changed.
type RulePatch struct {
	RuleName        *string   `json:"rule_name,omitempty"`
	Description     *string   `json:"description,omitempty"`
	AlertSeverity   *string   `json:"alert_severity,omitempty"`
	AlertTitle      *string   `json:"alert_title,omitempty"`
	AlertMessage    *string   `json:"alert_message,omitempty"`
	Recommendations *[]string `json:"recommendations,omitempty"`
	IsActive        *bool     `json:"is_active,omitempty"`

	// Rejected if supplied: provenance is immutable.
	RuleCode    *string `json:"rule_code,omitempty"`
	DAKSourceID *string `json:"dak_source_id,omitempty"`
}

// PatchRule updates only the supplied fields of one rule version. Activating
// a version supersedes any other active version of the same rule code first,
// keeping the one-active-version invariant. The module cache is invalidated
// on success.
func (s *Service) PatchRule(ctx context.Context, id uuid.UUID, patch *RulePatch) (*DecisionRule, error) {
	if patch.RuleCode != nil {
		return nil, &ValidationError{Field: "rule_code", Reason: "immutable provenance field"}
	}
	if patch.DAKSourceID != nil {
		return nil, &ValidationError{Field: "dak_source_id", Reason: "immutable provenance field"}
	}
	if patch.AlertSeverity != nil && !ValidSeverity(*patch.AlertSeverity) {
		return nil, &ValidationError{Field: "alert_severity", Reason: "must be red, yellow or green"}
	}

	rule, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock := s.lockModule(rule.ModuleCode)
	defer unlock()

	if patch.RuleName != nil {
		rule.RuleName = *patch.RuleName
	}
	if patch.Description != nil {
		rule.Description = patch.Description
	}
	if patch.AlertSeverity != nil {
		rule.AlertSeverity = *patch.AlertSeverity
	}
	if patch.AlertTitle != nil {
		rule.AlertTitle = *patch.AlertTitle
	}
	if patch.AlertMessage != nil {
		rule.AlertMessage = *patch.AlertMessage
	}
	if patch.Recommendations != nil {
		rule.Recommendations = *patch.Recommendations
	}
	if patch.IsActive != nil {
		if *patch.IsActive && rule.Status != StatusActive {
			if _, err := s.repo.SupersedeActive(ctx, rule.ModuleCode, rule.RuleCode); err != nil {
				return nil, err
			}
			rule.Status = StatusActive
		} else if !*patch.IsActive && rule.Status == StatusActive {
			rule.Status = StatusSuperseded
		}
	}

	if err := s.repo.Update(ctx, rule); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("rule_code", rule.RuleCode).
		Str("module", rule.ModuleCode).
		Str("status", string(rule.Status)).
		Msg("rule patched")

	s.invalidate(rule.ModuleCode)
	return rule, nil
}
