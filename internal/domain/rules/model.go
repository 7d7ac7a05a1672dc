package rules

import (
	"time"

	"github.com/google/uuid"
)

// RuleStatus is the lifecycle state of one rule version. Rules are never
// deleted; a superseded version stays queryable for audit traceability.
type RuleStatus string

const (
	StatusDraft      RuleStatus = "draft"
	StatusActive     RuleStatus = "active"
	StatusSuperseded RuleStatus = "superseded"
)

// Alert severities, ordered red > yellow > green.
const (
	SeverityRed    = "red"
	SeverityYellow = "yellow"
	SeverityGreen  = "green"
)

// SeverityRank maps a severity to its sort priority. Unknown severities rank
// lowest so a bad value never outranks a real one.
func SeverityRank(severity string) int {
	switch severity {
	case SeverityRed:
		return 3
	case SeverityYellow:
		return 2
	case SeverityGreen:
		return 1
	}
	return 0
}

// ThresholdKind discriminates the comparison value carried by a clause.
type ThresholdKind string

const (
	ThresholdNumber ThresholdKind = "number"
	ThresholdText   ThresholdKind = "text"
	ThresholdList   ThresholdKind = "list"
)

// TriggerClause is one (observationKey, operator, threshold) predicate. All
// clauses of a rule must hold for the rule to fire.
type TriggerClause struct {
	Key      string        `json:"key"`
	Operator string        `json:"operator"` // > >= < <= == in
	Kind     ThresholdKind `json:"kind"`
	Number   float64       `json:"number,omitempty"`
	Text     string        `json:"text,omitempty"`
	Values   []string      `json:"values,omitempty"`
}

// DecisionRule maps to the dak_rule table. Provenance fields (RuleCode,
// DAKSourceID, WHOGuidelineRef, GuidelineVersion, EvidenceRating) are set at
// import and immutable through patching.
type DecisionRule struct {
	ID                 uuid.UUID          `db:"id" json:"id"`
	RuleCode           string             `db:"rule_code" json:"rule_code"`
	DAKSourceID        string             `db:"dak_source_id" json:"dak_source_id"`
	GuidelineVersion   *string            `db:"guideline_version" json:"guideline_version,omitempty"`
	EvidenceRating     string             `db:"evidence_rating" json:"evidence_rating"`
	WHOGuidelineRef    string             `db:"who_guideline_ref" json:"who_guideline_ref"`
	ModuleCode         string             `db:"module_code" json:"module_code"`
	Status             RuleStatus         `db:"status" json:"status"`
	DisplayToHealthWorker bool            `db:"display_to_health_worker" json:"display_to_health_worker"`
	RuleName           string             `db:"rule_name" json:"rule_name"`
	Description        *string            `db:"description" json:"description,omitempty"`
	AlertSeverity      string             `db:"alert_severity" json:"alert_severity"`
	AlertTitle         string             `db:"alert_title" json:"alert_title"`
	AlertMessage       string             `db:"alert_message" json:"alert_message"`
	Recommendations    []string           `db:"recommendations" json:"recommendations"`
	TriggerClauses     []TriggerClause    `db:"trigger_clauses" json:"trigger_clauses"`
	ClinicalThresholds map[string]float64 `db:"clinical_thresholds" json:"clinical_thresholds,omitempty"`
	Version            float64            `db:"version" json:"version"`
	CreatedAt          time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time          `db:"updated_at" json:"updated_at"`
}

// IsActive reports whether this version participates in evaluation.
func (r *DecisionRule) IsActive() bool {
	return r.Status == StatusActive
}

// validOperators is the closed operator set for trigger clauses.
var validOperators = map[string]bool{
	">": true, ">=": true, "<": true, "<=": true, "==": true, "in": true,
}

// ValidOperator reports whether op is a recognised clause operator.
func ValidOperator(op string) bool {
	return validOperators[op]
}

// validEvidenceRatings per the DAK grading scheme.
var validEvidenceRatings = map[string]bool{"A": true, "B": true, "C": true, "D": true}

// ValidEvidenceRating reports whether rating is within the A-D grading scheme.
func ValidEvidenceRating(rating string) bool {
	return validEvidenceRatings[rating]
}

// validSeverities for alert classification.
var validSeverities = map[string]bool{SeverityRed: true, SeverityYellow: true, SeverityGreen: true}

// ValidSeverity reports whether severity is one of red, yellow, green.
func ValidSeverity(severity string) bool {
	return validSeverities[severity]
}
