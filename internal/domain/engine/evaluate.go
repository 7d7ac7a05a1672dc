// Package engine evaluates decision rules against normalised observation
// sets. Everything here is pure: inputs are immutable, outputs are freshly
// allocated, and nothing touches storage or the network, so concurrent calls
// need no coordination.
package engine

import (
	"strings"
	"time"

	"github.com/maternacare/cds/internal/domain/observation"
	"github.com/maternacare/cds/internal/domain/rules"
)

// Alert is one fired rule, shaped for display. Ordering within a Result is
// significant: callers show only the top entries.
type Alert struct {
	RuleCode         string    `json:"rule_code"`
	Severity         string    `json:"severity"`
	Title            string    `json:"title"`
	Message          string    `json:"message"`
	Recommendations  []string  `json:"recommendations"`
	ReferralRequired bool      `json:"referral_required"`
	Urgency          string    `json:"urgency"`
	Timestamp        time.Time `json:"timestamp"`
}

// Result carries the fired alerts in rule priority order plus the count of
// rules that could not be evaluated and were passed over.
type Result struct {
	Alerts  []Alert `json:"alerts"`
	Skipped int     `json:"skipped"`
}

// Evaluate runs every rule against the observation set. Rules must already be
// in display order (severity desc, rule code asc); the output preserves that
// order. A rule whose trigger references a key absent from the set does not
// fire, because absence of data is not evidence of the condition. A rule
// whose trigger cannot be evaluated at all is skipped and counted, never
// fatal.
func Evaluate(obs *observation.Set, ruleList []*rules.DecisionRule) Result {
	now := time.Now()
	result := Result{}

	for _, rule := range ruleList {
		fired, ok := ruleFires(obs, rule)
		if !ok {
			result.Skipped++
			continue
		}
		if !fired {
			continue
		}
		result.Alerts = append(result.Alerts, Alert{
			RuleCode:         rule.RuleCode,
			Severity:         rule.AlertSeverity,
			Title:            rule.AlertTitle,
			Message:          rule.AlertMessage,
			Recommendations:  append([]string(nil), rule.Recommendations...),
			ReferralRequired: rule.AlertSeverity == rules.SeverityRed,
			Urgency:          urgencyFor(rule.AlertSeverity),
			Timestamp:        now,
		})
	}
	return result
}

func urgencyFor(severity string) string {
	switch severity {
	case rules.SeverityRed:
		return "urgent"
	case rules.SeverityYellow:
		return "moderate"
	}
	return "routine"
}

// ruleFires evaluates a rule's AND-combined clauses. The second return is
// false when the rule is malformed and must be skipped.
func ruleFires(obs *observation.Set, rule *rules.DecisionRule) (fired bool, ok bool) {
	if len(rule.TriggerClauses) == 0 {
		// Nothing to test: a rule with no trigger never fires.
		return false, true
	}
	for _, clause := range rule.TriggerClauses {
		value, present := obs.Get(clause.Key)
		if !present {
			return false, true
		}
		holds, evalOK := clauseHolds(value, clause)
		if !evalOK {
			return false, false
		}
		if !holds {
			return false, true
		}
	}
	return true, true
}

// clauseHolds tests one predicate. The second return is false for operator or
// type combinations that cannot be evaluated.
func clauseHolds(value observation.Value, clause rules.TriggerClause) (bool, bool) {
	switch clause.Operator {
	case ">", ">=", "<", "<=":
		if value.Kind != observation.KindNumber || clause.Kind != rules.ThresholdNumber {
			return false, false
		}
		return compareNumbers(value.Number, clause.Operator, clause.Number), true

	case "==":
		return equals(value, clause)

	case "in":
		if len(clause.Values) == 0 {
			return false, false
		}
		switch value.Kind {
		case observation.KindString:
			return containsFold(clause.Values, value.String), true
		case observation.KindStringSet:
			for _, member := range value.StringSet {
				if containsFold(clause.Values, member) {
					return true, true
				}
			}
			return false, true
		}
		return false, false
	}
	return false, false
}

func compareNumbers(have float64, op string, want float64) bool {
	switch op {
	case ">":
		return have > want
	case ">=":
		return have >= want
	case "<":
		return have < want
	case "<=":
		return have <= want
	}
	return false
}

func equals(value observation.Value, clause rules.TriggerClause) (bool, bool) {
	switch value.Kind {
	case observation.KindNumber:
		if clause.Kind != rules.ThresholdNumber {
			return false, false
		}
		return value.Number == clause.Number, true
	case observation.KindString:
		if clause.Kind != rules.ThresholdText {
			return false, false
		}
		return strings.EqualFold(value.String, clause.Text), true
	case observation.KindBool:
		if clause.Kind != rules.ThresholdText {
			return false, false
		}
		want := strings.EqualFold(clause.Text, "true") || strings.EqualFold(clause.Text, "yes")
		return value.Bool == want, true
	}
	return false, false
}

func containsFold(haystack []string, needle string) bool {
	for _, s := range haystack {
		if strings.EqualFold(s, needle) {
			return true
		}
	}
	return false
}
