package rules

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Reasons attached to rejected import rows.
const (
	ReasonMalformedJSON   = "malformed_json"
	ReasonMissingField    = "missing_required_field"
	ReasonInvalidOperator = "invalid_operator"
	ReasonInvalidSeverity = "invalid_severity"
	ReasonInvalidRating   = "invalid_evidence_rating"
	ReasonInvalidModule   = "invalid_module"
	ReasonInvalidVersion  = "invalid_version"
	ReasonBadRowShape     = "bad_row_shape"
)

// requiredColumns is the DAK CSV column contract. Order in the file is free;
// the header row decides the mapping.
var requiredColumns = []string{
	"rule_identifier", "dak_source_id", "guideline_doc_version", "evidence_rating",
	"display_to_health_worker", "applicable_module", "is_rule_active", "rule_name",
	"rule_description", "alert_severity", "alert_title", "alert_message",
	"recommendations", "trigger_conditions", "who_guideline_ref",
	"clinical_thresholds", "version",
}

// ImportRowError reports one rejected row. Row is 1-based counting data rows,
// not the header.
type ImportRowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

// ImportResult aggregates one bulk import run.
type ImportResult struct {
	JobID    string           `json:"job_id"`
	Accepted int              `json:"accepted"`
	Updated  int              `json:"updated"`
	Rejected int              `json:"rejected"`
	Errors   []ImportRowError `json:"errors"`
}

// ImportCSV streams DAK rule rows from r into the repository. Rows are read
// one at a time so memory stays bounded for large files. A row that fails to
// parse is rejected and reported; only an unreadable file or a header missing
// required columns aborts the whole import. Writes for each row are
// serialized per module so concurrent imports cannot race on supersession.
func (s *Service) ImportCSV(ctx context.Context, r io.Reader) (*ImportResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	cols, err := mapColumns(header)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{JobID: uuid.NewString()}
	rowNum := 0

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		rowNum++
		if err != nil {
			result.Rejected++
			result.Errors = append(result.Errors, ImportRowError{Row: rowNum, Reason: ReasonBadRowShape, Detail: err.Error()})
			continue
		}

		rule, rowErr := parseRow(record, cols)
		if rowErr != nil {
			result.Rejected++
			rowErr.Row = rowNum
			result.Errors = append(result.Errors, *rowErr)
			continue
		}

		updated, err := s.storeImportedRule(ctx, rule)
		if err != nil {
			result.Rejected++
			result.Errors = append(result.Errors, ImportRowError{Row: rowNum, Reason: "storage_error", Detail: err.Error()})
			continue
		}
		if updated {
			result.Updated++
		} else {
			result.Accepted++
		}
	}

	if s.tel != nil {
		s.tel.ImportRows("imported", int64(result.Accepted))
		s.tel.ImportRows("updated", int64(result.Updated))
		s.tel.ImportRows("rejected", int64(result.Rejected))
	}
	s.log.Info().
		Str("job_id", result.JobID).
		Int("accepted", result.Accepted).
		Int("updated", result.Updated).
		Int("rejected", result.Rejected).
		Msg("dak csv import complete")

	s.invalidateAll()
	return result, nil
}

// storeImportedRule applies supersede-by-ruleCode semantics for one parsed
// row under the module's write lock. It reports whether an existing
// ruleCode+version row was replaced.
func (s *Service) storeImportedRule(ctx context.Context, rule *DecisionRule) (bool, error) {
	unlock := s.lockModule(rule.ModuleCode)
	defer unlock()

	existing, err := s.repo.GetByCodeVersion(ctx, rule.ModuleCode, rule.RuleCode, rule.Version)
	if err != nil {
		var nf *NotFoundError
		if !errors.As(err, &nf) {
			return false, err
		}
		existing = nil
	}

	if rule.Status == StatusActive {
		if _, err := s.repo.SupersedeActive(ctx, rule.ModuleCode, rule.RuleCode); err != nil {
			return false, err
		}
	}

	if existing != nil {
		rule.ID = existing.ID
		return true, s.repo.Update(ctx, rule)
	}
	return false, s.repo.Insert(ctx, rule)
}

func mapColumns(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(strings.ToLower(name))] = i
	}
	for _, required := range requiredColumns {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("csv header missing required column %q", required)
		}
	}
	return cols, nil
}

func field(record []string, cols map[string]int, name string) string {
	idx, ok := cols[name]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

// parseRow converts one CSV record into a DecisionRule, parsing the three
// JSON-bearing cells into their strict sub-structures so raw JSON text never
// travels past ingestion.
func parseRow(record []string, cols map[string]int) (*DecisionRule, *ImportRowError) {
	ruleCode := field(record, cols, "rule_identifier")
	dakSourceID := field(record, cols, "dak_source_id")
	ruleName := field(record, cols, "rule_name")
	if ruleCode == "" || dakSourceID == "" || ruleName == "" {
		return nil, &ImportRowError{Reason: ReasonMissingField, Detail: "rule_identifier, dak_source_id and rule_name are required"}
	}

	module := strings.ToUpper(field(record, cols, "applicable_module"))
	if module == "" {
		return nil, &ImportRowError{Reason: ReasonInvalidModule, Detail: "applicable_module is empty"}
	}

	rating := strings.ToUpper(field(record, cols, "evidence_rating"))
	if !ValidEvidenceRating(rating) {
		return nil, &ImportRowError{Reason: ReasonInvalidRating, Detail: "evidence_rating must be A, B, C or D"}
	}

	severity := strings.ToLower(field(record, cols, "alert_severity"))
	if !ValidSeverity(severity) {
		return nil, &ImportRowError{Reason: ReasonInvalidSeverity, Detail: "alert_severity must be red, yellow or green"}
	}

	version, err := strconv.ParseFloat(field(record, cols, "version"), 64)
	if err != nil || version <= 0 {
		return nil, &ImportRowError{Reason: ReasonInvalidVersion, Detail: "version must be a positive number"}
	}

	recommendations, err := parseRecommendations(field(record, cols, "recommendations"))
	if err != nil {
		return nil, &ImportRowError{Reason: ReasonMalformedJSON, Detail: "recommendations: " + err.Error()}
	}
	clauses, err := ParseTriggerConditions(field(record, cols, "trigger_conditions"))
	if err != nil {
		return nil, &ImportRowError{Reason: ReasonMalformedJSON, Detail: "trigger_conditions: " + err.Error()}
	}
	for _, clause := range clauses {
		if !ValidOperator(clause.Operator) {
			return nil, &ImportRowError{Reason: ReasonInvalidOperator, Detail: "operator " + clause.Operator}
		}
	}
	thresholds, err := parseThresholds(field(record, cols, "clinical_thresholds"))
	if err != nil {
		return nil, &ImportRowError{Reason: ReasonMalformedJSON, Detail: "clinical_thresholds: " + err.Error()}
	}

	status := StatusDraft
	if active := parseFlag(field(record, cols, "is_rule_active")); active {
		status = StatusActive
	}

	rule := &DecisionRule{
		RuleCode:              ruleCode,
		DAKSourceID:           dakSourceID,
		EvidenceRating:        rating,
		WHOGuidelineRef:       field(record, cols, "who_guideline_ref"),
		ModuleCode:            module,
		Status:                status,
		DisplayToHealthWorker: parseFlag(field(record, cols, "display_to_health_worker")),
		RuleName:              ruleName,
		AlertSeverity:         severity,
		AlertTitle:            field(record, cols, "alert_title"),
		AlertMessage:          field(record, cols, "alert_message"),
		Recommendations:       recommendations,
		TriggerClauses:        clauses,
		ClinicalThresholds:    thresholds,
		Version:               version,
	}
	if v := field(record, cols, "guideline_doc_version"); v != "" {
		rule.GuidelineVersion = &v
	}
	if d := field(record, cols, "rule_description"); d != "" {
		rule.Description = &d
	}
	return rule, nil
}

func parseFlag(s string) bool {
	switch strings.ToLower(s) {
	case "true", "yes", "y", "1":
		return true
	}
	return false
}

func parseRecommendations(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// rawClause is the JSON shape of one trigger condition inside the CSV cell:
// {"systolicBP": {"operator": ">=", "value": 140}, ...}.
type rawClause struct {
	Operator string          `json:"operator"`
	Value    json.RawMessage `json:"value"`
}

// ParseTriggerConditions parses the trigger_conditions JSON cell into typed
// clauses, sorted by observation key for determinism.
func ParseTriggerConditions(raw string) ([]TriggerClause, error) {
	if raw == "" {
		return nil, nil
	}
	var byKey map[string]rawClause
	if err := json.Unmarshal([]byte(raw), &byKey); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]TriggerClause, 0, len(byKey))
	for _, key := range keys {
		rc := byKey[key]
		clause := TriggerClause{Key: key, Operator: rc.Operator}

		var num float64
		var text string
		var list []string
		switch {
		case json.Unmarshal(rc.Value, &num) == nil:
			clause.Kind = ThresholdNumber
			clause.Number = num
		case json.Unmarshal(rc.Value, &text) == nil:
			clause.Kind = ThresholdText
			clause.Text = text
		case json.Unmarshal(rc.Value, &list) == nil:
			clause.Kind = ThresholdList
			clause.Values = list
		default:
			return nil, fmt.Errorf("clause %s: unsupported value shape", key)
		}
		clauses = append(clauses, clause)
	}
	return clauses, nil
}

func parseThresholds(raw string) (map[string]float64, error) {
	if raw == "" {
		return nil, nil
	}
	var out map[string]float64
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}
