package rules

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ── Test helpers ──

type fakeCache struct {
	invalidated    []string
	invalidatedAll int
}

func (f *fakeCache) Invalidate(moduleCode string) { f.invalidated = append(f.invalidated, moduleCode) }
func (f *fakeCache) InvalidateAll()               { f.invalidatedAll++ }

func newTestService(t *testing.T) (*Service, *fakeCache) {
	t.Helper()
	cache := &fakeCache{}
	svc := NewService(NewRepoMem(), cache, nil, zerolog.Nop())
	return svc, cache
}

var csvHeader = []string{
	"rule_identifier", "dak_source_id", "guideline_doc_version", "evidence_rating",
	"display_to_health_worker", "applicable_module", "is_rule_active", "rule_name",
	"rule_description", "alert_severity", "alert_title", "alert_message",
	"recommendations", "trigger_conditions", "who_guideline_ref",
	"clinical_thresholds", "version",
}

type csvRow struct {
	code, module, severity, trigger, version, active, rating string
}

func buildCSV(t *testing.T, rows ...csvRow) string {
	t.Helper()
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		t.Fatal(err)
	}
	for _, r := range rows {
		if r.severity == "" {
			r.severity = "yellow"
		}
		if r.version == "" {
			r.version = "1"
		}
		if r.active == "" {
			r.active = "true"
		}
		if r.rating == "" {
			r.rating = "A"
		}
		if r.trigger == "" {
			r.trigger = `{"systolicBP":{"operator":">=","value":140}}`
		}
		record := []string{
			r.code, "DAK.1." + r.code, "v2", r.rating,
			"true", r.module, r.active, "Rule " + r.code,
			"desc", r.severity, "Title", "Message",
			`["Do the thing"]`, r.trigger, "WHO-REF-1",
			`{"systolicBP":140}`, r.version,
		}
		if err := w.Write(record); err != nil {
			t.Fatal(err)
		}
	}
	w.Flush()
	return buf.String()
}

// ── CSV import ──

func TestService_ImportCSV_AcceptsValidRows(t *testing.T) {
	svc, cache := newTestService(t)
	data := buildCSV(t,
		csvRow{code: "ANC.R1", module: "ANC", severity: "red"},
		csvRow{code: "ANC.R2", module: "ANC"},
	)

	result, err := svc.ImportCSV(context.Background(), strings.NewReader(data))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Accepted != 2 || result.Rejected != 0 {
		t.Fatalf("expected 2 accepted, got %+v", result)
	}
	if result.JobID == "" {
		t.Error("expected a job id")
	}
	if cache.invalidatedAll != 1 {
		t.Error("import must invalidate the cache")
	}

	active, err := svc.ActiveRules(context.Background(), "ANC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("expected 2 active rules, got %d", len(active))
	}
}

func TestService_ImportCSV_RejectsMalformedJSON(t *testing.T) {
	svc, _ := newTestService(t)
	data := buildCSV(t,
		csvRow{code: "ANC.R1", module: "ANC", trigger: `{"systolicBP": not json`},
		csvRow{code: "ANC.R2", module: "ANC"},
	)

	result, err := svc.ImportCSV(context.Background(), strings.NewReader(data))
	if err != nil {
		t.Fatalf("batch must not fail on one bad row: %v", err)
	}
	if result.Accepted != 1 || result.Rejected != 1 {
		t.Fatalf("expected 1 accepted 1 rejected, got %+v", result)
	}
	if result.Errors[0].Reason != ReasonMalformedJSON {
		t.Errorf("expected reason %s, got %s", ReasonMalformedJSON, result.Errors[0].Reason)
	}
	if result.Errors[0].Row != 1 {
		t.Errorf("expected row 1 flagged, got %d", result.Errors[0].Row)
	}
}

func TestService_ImportCSV_RejectsInvalidFields(t *testing.T) {
	svc, _ := newTestService(t)
	data := buildCSV(t,
		csvRow{code: "R1", module: "ANC", rating: "F"},
		csvRow{code: "R2", module: "ANC", severity: "purple"},
		csvRow{code: "R3", module: "ANC", version: "zero"},
		csvRow{code: "R4", module: "ANC", trigger: `{"systolicBP":{"operator":"~=","value":1}}`},
	)

	result, err := svc.ImportCSV(context.Background(), strings.NewReader(data))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Rejected != 4 {
		t.Fatalf("expected all 4 rows rejected, got %+v", result)
	}
	reasons := map[string]bool{}
	for _, e := range result.Errors {
		reasons[e.Reason] = true
	}
	for _, want := range []string{ReasonInvalidRating, ReasonInvalidSeverity, ReasonInvalidVersion, ReasonInvalidOperator} {
		if !reasons[want] {
			t.Errorf("expected a rejection with reason %s", want)
		}
	}
}

func TestService_ImportCSV_MissingHeaderColumnIsFatal(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.ImportCSV(context.Background(), strings.NewReader("rule_identifier,version\nR1,1\n"))
	if err == nil {
		t.Fatal("expected top-level error for missing required columns")
	}
}

func TestService_ImportCSV_Idempotent(t *testing.T) {
	svc, _ := newTestService(t)
	data := buildCSV(t,
		csvRow{code: "ANC.R1", module: "ANC"},
		csvRow{code: "ANC.R2", module: "ANC"},
	)

	first, err := svc.ImportCSV(context.Background(), strings.NewReader(data))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := svc.ImportCSV(context.Background(), strings.NewReader(data))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Accepted != 2 || second.Updated != 2 || second.Accepted != 0 {
		t.Fatalf("expected second run to update, not duplicate: first=%+v second=%+v", first, second)
	}

	active, _ := svc.ActiveRules(context.Background(), "ANC")
	if len(active) != 2 {
		t.Fatalf("expected 2 active rules after double import, got %d", len(active))
	}
}

func TestService_ImportCSV_NewVersionSupersedesOld(t *testing.T) {
	svc, _ := newTestService(t)

	v1 := buildCSV(t, csvRow{code: "ANC.R1", module: "ANC", version: "1"})
	if _, err := svc.ImportCSV(context.Background(), strings.NewReader(v1)); err != nil {
		t.Fatal(err)
	}
	v2 := buildCSV(t, csvRow{code: "ANC.R1", module: "ANC", version: "2"})
	if _, err := svc.ImportCSV(context.Background(), strings.NewReader(v2)); err != nil {
		t.Fatal(err)
	}

	active, _ := svc.ActiveRules(context.Background(), "ANC")
	if len(active) != 1 {
		t.Fatalf("expected exactly one active version, got %d", len(active))
	}
	if active[0].Version != 2 {
		t.Errorf("expected version 2 active, got %g", active[0].Version)
	}

	all, _, _ := svc.ListRules(context.Background(), "ANC", false, 100, 0)
	if len(all) != 2 {
		t.Fatalf("old version must be kept, expected 2 stored versions, got %d", len(all))
	}
}

// ── Ordering ──

func TestService_ActiveRules_OrderedBySeverityThenCode(t *testing.T) {
	svc, _ := newTestService(t)
	data := buildCSV(t,
		csvRow{code: "ANC.B", module: "ANC", severity: "green"},
		csvRow{code: "ANC.D", module: "ANC", severity: "red"},
		csvRow{code: "ANC.A", module: "ANC", severity: "yellow"},
		csvRow{code: "ANC.C", module: "ANC", severity: "red"},
	)
	if _, err := svc.ImportCSV(context.Background(), strings.NewReader(data)); err != nil {
		t.Fatal(err)
	}

	active, err := svc.ActiveRules(context.Background(), "ANC")
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, r := range active {
		got = append(got, r.RuleCode)
	}
	want := []string{"ANC.C", "ANC.D", "ANC.A", "ANC.B"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
}

// ── Patch ──

func TestService_PatchRule_UpdatesSuppliedFieldsOnly(t *testing.T) {
	svc, cache := newTestService(t)
	data := buildCSV(t, csvRow{code: "ANC.R1", module: "ANC"})
	if _, err := svc.ImportCSV(context.Background(), strings.NewReader(data)); err != nil {
		t.Fatal(err)
	}
	active, _ := svc.ActiveRules(context.Background(), "ANC")
	id := active[0].ID

	name := "Renamed rule"
	patched, err := svc.PatchRule(context.Background(), id, &RulePatch{RuleName: &name})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if patched.RuleName != name {
		t.Errorf("expected renamed rule, got %s", patched.RuleName)
	}
	if patched.AlertSeverity != "yellow" {
		t.Errorf("untouched field changed: %s", patched.AlertSeverity)
	}
	found := false
	for _, m := range cache.invalidated {
		if m == "ANC" {
			found = true
		}
	}
	if !found {
		t.Error("patch must invalidate the module cache")
	}
}

func TestService_PatchRule_RejectsProvenanceChange(t *testing.T) {
	svc, _ := newTestService(t)
	data := buildCSV(t, csvRow{code: "ANC.R1", module: "ANC"})
	if _, err := svc.ImportCSV(context.Background(), strings.NewReader(data)); err != nil {
		t.Fatal(err)
	}
	active, _ := svc.ActiveRules(context.Background(), "ANC")

	newCode := "ANC.R1.hacked"
	_, err := svc.PatchRule(context.Background(), active[0].ID, &RulePatch{RuleCode: &newCode})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestService_PatchRule_NotFound(t *testing.T) {
	svc, _ := newTestService(t)
	name := "x"
	_, err := svc.PatchRule(context.Background(), uuid.New(), &RulePatch{RuleName: &name})
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestService_PatchRule_DeactivateAndReactivate(t *testing.T) {
	svc, _ := newTestService(t)
	data := buildCSV(t, csvRow{code: "ANC.R1", module: "ANC"})
	if _, err := svc.ImportCSV(context.Background(), strings.NewReader(data)); err != nil {
		t.Fatal(err)
	}
	active, _ := svc.ActiveRules(context.Background(), "ANC")
	id := active[0].ID

	off := false
	if _, err := svc.PatchRule(context.Background(), id, &RulePatch{IsActive: &off}); err != nil {
		t.Fatal(err)
	}
	if remaining, _ := svc.ActiveRules(context.Background(), "ANC"); len(remaining) != 0 {
		t.Fatal("expected no active rules after deactivation")
	}

	on := true
	if _, err := svc.PatchRule(context.Background(), id, &RulePatch{IsActive: &on}); err != nil {
		t.Fatal(err)
	}
	if restored, _ := svc.ActiveRules(context.Background(), "ANC"); len(restored) != 1 {
		t.Fatal("expected one active rule after reactivation")
	}
}

// ── Integrity ──

func TestService_IntegrityCheck_CleanStore(t *testing.T) {
	svc, _ := newTestService(t)
	data := buildCSV(t, csvRow{code: "ANC.R1", module: "ANC"})
	if _, err := svc.ImportCSV(context.Background(), strings.NewReader(data)); err != nil {
		t.Fatal(err)
	}

	report, err := svc.IntegrityCheck(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.TotalRules != 1 || report.ValidRules != 1 || report.IssuesFound != 0 {
		t.Fatalf("expected clean report, got %+v", report)
	}
}

func TestService_IntegrityCheck_FlagsViolations(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// Two active versions of the same code, inserted past the import path.
	for _, v := range []float64{1, 2} {
		rule := &DecisionRule{
			RuleCode: "ANC.DUP", DAKSourceID: "DAK.1", EvidenceRating: "A",
			WHOGuidelineRef: "WHO-1", ModuleCode: "ANC", Status: StatusActive,
			RuleName: "dup", AlertSeverity: "red", Version: v,
		}
		if err := svc.repo.Insert(ctx, rule); err != nil {
			t.Fatal(err)
		}
	}
	// Missing provenance and unknown trigger key.
	bad := &DecisionRule{
		RuleCode: "ANC.BAD", DAKSourceID: "", EvidenceRating: "Z",
		WHOGuidelineRef: "", ModuleCode: "ANC", Status: StatusActive,
		RuleName: "bad", AlertSeverity: "yellow", Version: 1,
		TriggerClauses: []TriggerClause{{Key: "notAKey", Operator: ">", Kind: ThresholdNumber, Number: 1}},
	}
	if err := svc.repo.Insert(ctx, bad); err != nil {
		t.Fatal(err)
	}

	report, err := svc.IntegrityCheck(ctx)
	if err != nil {
		t.Fatal(err)
	}
	kinds := map[string]int{}
	for _, issue := range report.Issues {
		kinds[issue.Kind]++
	}
	if kinds[IssueDuplicateActive] != 2 {
		t.Errorf("expected both duplicate versions flagged, got %d", kinds[IssueDuplicateActive])
	}
	if kinds[IssueMissingProvenance] != 2 {
		t.Errorf("expected 2 provenance issues, got %d", kinds[IssueMissingProvenance])
	}
	if kinds[IssueUnknownKey] != 1 {
		t.Errorf("expected 1 unknown-key issue, got %d", kinds[IssueUnknownKey])
	}
	if kinds[IssueBadRating] != 1 {
		t.Errorf("expected 1 rating issue, got %d", kinds[IssueBadRating])
	}
	if report.ValidRules != 0 {
		t.Errorf("expected no valid rules, got %d", report.ValidRules)
	}
}

func TestService_ComplianceReport_DerivedFromLastCheck(t *testing.T) {
	svc, _ := newTestService(t)
	data := buildCSV(t,
		csvRow{code: "ANC.R1", module: "ANC"},
		csvRow{code: "ANC.R2", module: "ANC"},
	)
	if _, err := svc.ImportCSV(context.Background(), strings.NewReader(data)); err != nil {
		t.Fatal(err)
	}

	summary, err := svc.ComplianceReport(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if summary.TotalRules != 2 || summary.Compliance != 100 {
		t.Fatalf("expected 100%% compliance over 2 rules, got %+v", summary)
	}
}
