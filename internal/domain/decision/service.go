// Package decision composes the normalizer, the rule repository and the
// evaluation engine into the decision-support entry points, fronted by a
// per-module rule cache.
package decision

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/maternacare/cds/internal/domain/engine"
	"github.com/maternacare/cds/internal/domain/observation"
	"github.com/maternacare/cds/internal/domain/rules"
	"github.com/maternacare/cds/internal/platform/telemetry"
)

// DefaultCacheTTL bounds staleness for rule edits made outside this process.
// In-process edits invalidate the cache directly.
const DefaultCacheTTL = 5 * time.Minute

// Service evaluates clinical findings against the active rule set.
type Service struct {
	rules      *rules.Service
	cache      *RuleCache
	dangerSign *engine.DangerSignEvaluator
	tel        *telemetry.TelemetryProvider
	log        zerolog.Logger
}

// NewService wires the decision pipeline. The telemetry provider may be nil.
func NewService(ruleSvc *rules.Service, cache *RuleCache, ds *engine.DangerSignEvaluator, tel *telemetry.TelemetryProvider, log zerolog.Logger) *Service {
	return &Service{
		rules:      ruleSvc,
		cache:      cache,
		dangerSign: ds,
		tel:        tel,
		log:        log,
	}
}

// Cache exposes the rule cache for admin endpoints and for registration as
// the rule service's invalidator.
func (s *Service) Cache() *RuleCache {
	return s.cache
}

// ActiveRulesCached returns the module's active rules in evaluation order,
// serving from the cache when fresh.
func (s *Service) ActiveRulesCached(ctx context.Context, moduleCode string) ([]*rules.DecisionRule, error) {
	module := observation.CanonicalModule(moduleCode)
	if module == "" {
		return nil, &rules.ValidationError{Field: "module", Reason: "unknown care module " + moduleCode}
	}

	if cached, hit := s.cache.Get(module); hit {
		if s.tel != nil {
			s.tel.CacheHit()
		}
		return cached, nil
	}
	if s.tel != nil {
		s.tel.CacheMiss()
	}

	active, err := s.rules.ActiveRules(ctx, module)
	if err != nil {
		return nil, err
	}
	s.cache.Set(module, active)
	return active, nil
}

// Warm populates cache entries for the given care modules; with no modules
// given it warms every known module. Unknown codes fail the whole call before
// any entry is touched.
func (s *Service) Warm(ctx context.Context, modules ...string) error {
	if len(modules) == 0 {
		modules = observation.KnownModules
	}
	canonical := make([]string, 0, len(modules))
	for _, code := range modules {
		module := observation.CanonicalModule(code)
		if module == "" {
			return &rules.ValidationError{Field: "modules", Reason: "unknown care module " + code}
		}
		canonical = append(canonical, module)
	}

	total := 0
	for _, module := range canonical {
		active, err := s.rules.ActiveRules(ctx, module)
		if err != nil {
			return err
		}
		s.cache.Set(module, active)
		total += len(active)
	}
	s.cache.MarkWarmed()
	if s.tel != nil {
		s.tel.SetActiveRules(int64(total))
	}
	s.log.Info().Int("active_rules", total).Strs("modules", canonical).Msg("rule cache warmed")
	return nil
}

// InvalidateModule drops one module's cache entry, resolving the code the
// same way lookups do so "anc" and "ANC" hit the same slot. The literal "all"
// (or an empty code) drops everything.
func (s *Service) InvalidateModule(code string) error {
	if code == "" || strings.EqualFold(code, "all") {
		s.cache.InvalidateAll()
		return nil
	}
	module := observation.CanonicalModule(code)
	if module == "" {
		return &rules.ValidationError{Field: "module_code", Reason: "unknown care module " + code}
	}
	s.cache.Invalidate(module)
	return nil
}

// Evaluation is the decision-support response for one findings submission.
type Evaluation struct {
	ModuleCode     string          `json:"module_code"`
	Alerts         []engine.Alert  `json:"alerts"`
	RulesEvaluated int             `json:"rules_evaluated"`
	RulesSkipped   int             `json:"rules_skipped"`
	EvaluatedAt    time.Time       `json:"evaluated_at"`
	Findings       map[string]bool `json:"findings_recognized"`
}

// EvaluateFindings normalizes raw findings and runs them through the
// module's active rules.
func (s *Service) EvaluateFindings(ctx context.Context, moduleCode string, raw map[string]interface{}) (*Evaluation, error) {
	obs, err := observation.Normalize(raw, moduleCode)
	if err != nil {
		return nil, &rules.ValidationError{Field: "module", Reason: err.Error()}
	}

	active, err := s.ActiveRulesCached(ctx, obs.ModuleCode)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result := engine.Evaluate(obs, active)
	elapsed := time.Since(start)

	if s.tel != nil {
		s.tel.RuleEvaluation(obs.ModuleCode, elapsed)
		s.tel.RulesSkipped(int64(result.Skipped))
		bySeverity := map[string]int64{}
		for _, a := range result.Alerts {
			bySeverity[string(a.Severity)]++
		}
		for severity, n := range bySeverity {
			s.tel.AlertsFired(severity, n)
		}
	}

	recognized := make(map[string]bool, obs.Len())
	for _, key := range obs.Keys() {
		recognized[key] = true
	}

	s.log.Info().
		Str("module", obs.ModuleCode).
		Int("rules_evaluated", len(active)).
		Int("alerts", len(result.Alerts)).
		Int("skipped", result.Skipped).
		Dur("elapsed", elapsed).
		Msg("findings evaluated")

	return &Evaluation{
		ModuleCode:     obs.ModuleCode,
		Alerts:         result.Alerts,
		RulesEvaluated: len(active),
		RulesSkipped:   result.Skipped,
		EvaluatedAt:    time.Now().UTC(),
		Findings:       recognized,
	}, nil
}

// DecisionSupport summarizes the guidance currently active for a module.
type DecisionSupport struct {
	ModuleCode string   `json:"module_code"`
	Count      int      `json:"count"`
	ActiveOnly bool     `json:"active_only"`
	Messages   []string `json:"messages"`
}

// ModuleGuidance returns the health-worker-facing messages of the module's
// active rules, in evaluation order. Rules not flagged for health-worker
// display are counted but their messages are withheld.
func (s *Service) ModuleGuidance(ctx context.Context, moduleCode string) (*DecisionSupport, error) {
	active, err := s.ActiveRulesCached(ctx, moduleCode)
	if err != nil {
		return nil, err
	}

	module := observation.CanonicalModule(moduleCode)
	messages := make([]string, 0, len(active))
	for _, r := range active {
		if !r.DisplayToHealthWorker {
			continue
		}
		messages = append(messages, r.AlertMessage)
	}
	return &DecisionSupport{
		ModuleCode: module,
		Count:      len(active),
		ActiveOnly: true,
		Messages:   messages,
	}, nil
}

// AssessDangerSigns runs the selected signs through the referral state
// machine.
func (s *Service) AssessDangerSigns(selected []string) engine.DangerSignOutcome {
	outcome := s.dangerSign.Evaluate(selected)
	if outcome.Action == engine.ActionUrgentReferral {
		s.log.Warn().
			Str("sign", outcome.Matched.Sign).
			Msg("danger sign requires urgent referral")
	}
	return outcome
}

// DangerSignCatalog lists the recognized signs and their management guidance.
func (s *Service) DangerSignCatalog() []engine.DangerSign {
	return s.dangerSign.Catalog()
}
