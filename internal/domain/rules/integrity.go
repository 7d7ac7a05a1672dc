package rules

import (
	"context"

	"github.com/maternacare/cds/internal/domain/observation"
)

// Issue kinds reported by the integrity check.
const (
	IssueMissingProvenance = "missing_provenance"
	IssueDuplicateActive   = "duplicate_active_rule"
	IssueUnknownKey        = "unknown_observation_key"
	IssueBadRating         = "invalid_evidence_rating"
)

// IntegrityIssue is one diagnostic finding. Issues are reported, never
// thrown; the check is a report, not a gate.
type IntegrityIssue struct {
	RuleCode    string `json:"rule_code"`
	ModuleCode  string `json:"module_code"`
	Kind        string `json:"kind"`
	Description string `json:"description"`
}

// IntegrityReport summarises one pass over every rule version in the store.
type IntegrityReport struct {
	TotalRules  int              `json:"total_rules"`
	ValidRules  int              `json:"valid_rules"`
	IssuesFound int              `json:"issues_found"`
	Issues      []IntegrityIssue `json:"issues"`
}

// Compliance returns the percentage of rules without issues, 0-100.
func (r *IntegrityReport) Compliance() float64 {
	if r.TotalRules == 0 {
		return 100
	}
	return float64(r.ValidRules) / float64(r.TotalRules) * 100
}

// IntegrityCheck validates every stored rule: active rules must carry
// dak_source_id and who_guideline_ref, no two active versions may share a
// ruleCode within a module, trigger clauses may only reference the module's
// known observation keys, and evidence ratings must be within A-D.
func (s *Service) IntegrityCheck(ctx context.Context) (*IntegrityReport, error) {
	all, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	report := &IntegrityReport{TotalRules: len(all)}
	flagged := make(map[string]bool, len(all))
	flag := func(rule *DecisionRule, kind, description string) {
		report.Issues = append(report.Issues, IntegrityIssue{
			RuleCode:    rule.RuleCode,
			ModuleCode:  rule.ModuleCode,
			Kind:        kind,
			Description: description,
		})
		flagged[rule.ID.String()] = true
	}

	activeByCode := make(map[string]int)
	for _, rule := range all {
		if rule.IsActive() {
			activeByCode[rule.ModuleCode+"|"+rule.RuleCode]++
		}
	}

	for _, rule := range all {
		if rule.IsActive() {
			if rule.DAKSourceID == "" {
				flag(rule, IssueMissingProvenance, "active rule has empty dak_source_id")
			}
			if rule.WHOGuidelineRef == "" {
				flag(rule, IssueMissingProvenance, "active rule has empty who_guideline_ref")
			}
			if activeByCode[rule.ModuleCode+"|"+rule.RuleCode] > 1 {
				flag(rule, IssueDuplicateActive, "more than one active version for this rule code")
			}
		}
		if !ValidEvidenceRating(rule.EvidenceRating) {
			flag(rule, IssueBadRating, "evidence rating "+rule.EvidenceRating+" outside A-D")
		}
		known := observation.KnownKeys(rule.ModuleCode)
		for _, clause := range rule.TriggerClauses {
			if known == nil {
				flag(rule, IssueUnknownKey, "module "+rule.ModuleCode+" has no observation vocabulary")
				break
			}
			if _, ok := known[clause.Key]; !ok {
				flag(rule, IssueUnknownKey, "trigger references unknown key "+clause.Key)
			}
		}
	}

	report.IssuesFound = len(report.Issues)
	report.ValidRules = report.TotalRules - len(flagged)

	s.mu.Lock()
	s.lastReport = report
	s.mu.Unlock()

	return report, nil
}

// ComplianceReport derives the compliance percentage from the most recent
// integrity check, running a fresh check if none has happened yet.
func (s *Service) ComplianceReport(ctx context.Context) (*ComplianceSummary, error) {
	s.mu.Lock()
	report := s.lastReport
	s.mu.Unlock()

	if report == nil {
		fresh, err := s.IntegrityCheck(ctx)
		if err != nil {
			return nil, err
		}
		report = fresh
	}

	return &ComplianceSummary{
		TotalRules: report.TotalRules,
		ValidRules: report.ValidRules,
		Compliance: report.Compliance(),
	}, nil
}

// ComplianceSummary is the compliance-report payload.
type ComplianceSummary struct {
	TotalRules int     `json:"total_rules"`
	ValidRules int     `json:"valid_rules"`
	Compliance float64 `json:"compliance"`
}
