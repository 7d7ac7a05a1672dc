package engine

import (
	"testing"

	"github.com/maternacare/cds/internal/domain/observation"
	"github.com/maternacare/cds/internal/domain/rules"
)

func obsSet(t *testing.T, raw map[string]interface{}) *observation.Set {
	t.Helper()
	set, err := observation.Normalize(raw, observation.ModuleANC)
	if err != nil {
		t.Fatal(err)
	}
	return set
}

func numberRule(code, severity, key, op string, threshold float64) *rules.DecisionRule {
	return &rules.DecisionRule{
		RuleCode:      code,
		ModuleCode:    observation.ModuleANC,
		Status:        rules.StatusActive,
		AlertSeverity: severity,
		AlertTitle:    "title " + code,
		AlertMessage:  "message " + code,
		TriggerClauses: []rules.TriggerClause{
			{Key: key, Operator: op, Kind: rules.ThresholdNumber, Number: threshold},
		},
	}
}

// ── Evaluate ──

func TestEvaluate_FiresOnThreshold(t *testing.T) {
	obs := obsSet(t, map[string]interface{}{"systolicBP": 150})
	ruleList := []*rules.DecisionRule{numberRule("ANC.BP", "red", "systolicBP", ">=", 140)}

	result := Evaluate(obs, ruleList)
	if len(result.Alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(result.Alerts))
	}
	alert := result.Alerts[0]
	if alert.RuleCode != "ANC.BP" || !alert.ReferralRequired || alert.Urgency != "urgent" {
		t.Fatalf("unexpected alert %+v", alert)
	}
}

func TestEvaluate_NoDataNoFire(t *testing.T) {
	obs := obsSet(t, map[string]interface{}{"hemoglobin": 7})
	ruleList := []*rules.DecisionRule{numberRule("ANC.BP", "red", "systolicBP", ">=", 140)}

	result := Evaluate(obs, ruleList)
	if len(result.Alerts) != 0 {
		t.Fatal("rule referencing an absent key must not fire")
	}
	if result.Skipped != 0 {
		t.Fatal("absent data is not a skip")
	}
}

func TestEvaluate_AllClausesMustHold(t *testing.T) {
	rule := numberRule("ANC.PE", "red", "systolicBP", ">=", 140)
	rule.TriggerClauses = append(rule.TriggerClauses, rules.TriggerClause{
		Key: "urineProtein", Operator: "==", Kind: rules.ThresholdText, Text: "positive",
	})

	fires := Evaluate(obsSet(t, map[string]interface{}{
		"systolicBP": 150, "urineProtein": "positive",
	}), []*rules.DecisionRule{rule})
	if len(fires.Alerts) != 1 {
		t.Fatal("expected rule to fire when all clauses hold")
	}

	partial := Evaluate(obsSet(t, map[string]interface{}{
		"systolicBP": 150, "urineProtein": "negative",
	}), []*rules.DecisionRule{rule})
	if len(partial.Alerts) != 0 {
		t.Fatal("expected rule not to fire when one clause fails")
	}
}

func TestEvaluate_PreservesRuleOrder(t *testing.T) {
	ruleList := []*rules.DecisionRule{
		numberRule("ANC.A", "red", "systolicBP", ">", 0),
		numberRule("ANC.B", "red", "systolicBP", ">", 0),
		numberRule("ANC.C", "yellow", "systolicBP", ">", 0),
	}
	obs := obsSet(t, map[string]interface{}{"systolicBP": 120})

	for run := 0; run < 5; run++ {
		result := Evaluate(obs, ruleList)
		if len(result.Alerts) != 3 {
			t.Fatalf("expected 3 alerts, got %d", len(result.Alerts))
		}
		for i, want := range []string{"ANC.A", "ANC.B", "ANC.C"} {
			if result.Alerts[i].RuleCode != want {
				t.Fatalf("run %d: expected %s at position %d, got %s", run, want, i, result.Alerts[i].RuleCode)
			}
		}
	}
}

func TestEvaluate_InOperatorAgainstSet(t *testing.T) {
	rule := &rules.DecisionRule{
		RuleCode:      "ANC.DS",
		ModuleCode:    observation.ModuleANC,
		Status:        rules.StatusActive,
		AlertSeverity: "red",
		TriggerClauses: []rules.TriggerClause{
			{Key: "dangerSigns", Operator: "in", Kind: rules.ThresholdList, Values: []string{"Convulsing", "Vaginal bleeding"}},
		},
	}

	hit := Evaluate(obsSet(t, map[string]interface{}{
		"dangerSigns": []interface{}{"Convulsing"},
	}), []*rules.DecisionRule{rule})
	if len(hit.Alerts) != 1 {
		t.Fatal("expected set membership to fire")
	}

	miss := Evaluate(obsSet(t, map[string]interface{}{
		"dangerSigns": []interface{}{"Fever"},
	}), []*rules.DecisionRule{rule})
	if len(miss.Alerts) != 0 {
		t.Fatal("expected no fire for non-member")
	}
}

func TestEvaluate_MalformedRuleSkippedNotFatal(t *testing.T) {
	bad := &rules.DecisionRule{
		RuleCode:      "ANC.BAD",
		AlertSeverity: "red",
		TriggerClauses: []rules.TriggerClause{
			// Numeric comparison against a text threshold cannot be evaluated.
			{Key: "systolicBP", Operator: ">", Kind: rules.ThresholdText, Text: "high"},
		},
	}
	good := numberRule("ANC.OK", "yellow", "systolicBP", ">", 100)

	result := Evaluate(obsSet(t, map[string]interface{}{"systolicBP": 150}),
		[]*rules.DecisionRule{bad, good})
	if result.Skipped != 1 {
		t.Fatalf("expected 1 skip, got %d", result.Skipped)
	}
	if len(result.Alerts) != 1 || result.Alerts[0].RuleCode != "ANC.OK" {
		t.Fatal("good rule must still evaluate after a skipped one")
	}
}

func TestEvaluate_EmptyTriggerNeverFires(t *testing.T) {
	rule := &rules.DecisionRule{RuleCode: "ANC.EMPTY", AlertSeverity: "green"}
	result := Evaluate(obsSet(t, map[string]interface{}{"systolicBP": 150}), []*rules.DecisionRule{rule})
	if len(result.Alerts) != 0 || result.Skipped != 0 {
		t.Fatalf("empty trigger should neither fire nor skip, got %+v", result)
	}
}

func TestEvaluate_BooleanEquality(t *testing.T) {
	rule := &rules.DecisionRule{
		RuleCode:      "ANC.CS",
		AlertSeverity: "yellow",
		TriggerClauses: []rules.TriggerClause{
			{Key: "previousCesarean", Operator: "==", Kind: rules.ThresholdText, Text: "true"},
		},
	}
	result := Evaluate(obsSet(t, map[string]interface{}{"previousCesarean": "yes"}), []*rules.DecisionRule{rule})
	if len(result.Alerts) != 1 {
		t.Fatal("expected boolean equality to fire")
	}
}

// ── Danger signs ──

func TestDangerSigns_ReferralOnMatch(t *testing.T) {
	e := NewDangerSignEvaluator(DefaultDangerSignCatalog())
	outcome := e.Evaluate([]string{"Convulsing"})
	if outcome.Action != ActionUrgentReferral {
		t.Fatalf("expected urgent referral, got %s", outcome.Action)
	}
	if outcome.Matched == nil || outcome.Matched.Sign != "Convulsing" {
		t.Fatal("expected matched catalog entry")
	}
	if outcome.Annotation == "" || outcome.Matched.Management == "" {
		t.Fatal("expected management annotation on referral")
	}
}

func TestDangerSigns_NoneContinuesContact(t *testing.T) {
	e := NewDangerSignEvaluator(DefaultDangerSignCatalog())
	for _, selected := range [][]string{nil, {}, {"None"}, {"none"}, {""}} {
		outcome := e.Evaluate(selected)
		if outcome.Action != ActionContinueContact {
			t.Fatalf("selection %v: expected continue contact, got %s", selected, outcome.Action)
		}
		if outcome.Matched != nil {
			t.Fatal("continue contact must not carry a matched sign")
		}
	}
}

func TestDangerSigns_FirstMatchInInputOrder(t *testing.T) {
	e := NewDangerSignEvaluator(DefaultDangerSignCatalog())
	outcome := e.Evaluate([]string{"Fever", "Convulsing"})
	if outcome.Matched == nil || outcome.Matched.Sign != "Fever" {
		t.Fatalf("expected first selected sign to match, got %+v", outcome.Matched)
	}
}

func TestDangerSigns_UnknownSignIgnored(t *testing.T) {
	e := NewDangerSignEvaluator(DefaultDangerSignCatalog())
	outcome := e.Evaluate([]string{"Mild fatigue"})
	if outcome.Action != ActionContinueContact {
		t.Fatal("sign outside the catalog must not trigger referral")
	}
}

func TestDangerSigns_CatalogHasThirteenEntries(t *testing.T) {
	catalog := DefaultDangerSignCatalog()
	if len(catalog) != 13 {
		t.Fatalf("expected 13 catalog entries, got %d", len(catalog))
	}
	for _, entry := range catalog {
		if entry.Sign == "" || entry.Severity == "" || entry.Urgency == "" || entry.Management == "" {
			t.Fatalf("incomplete catalog entry %+v", entry)
		}
	}
}

func TestDangerSigns_InjectedCatalog(t *testing.T) {
	e := NewDangerSignEvaluator([]DangerSign{
		{Sign: "Test sign", Severity: "red", Urgency: "immediate", Management: "refer"},
	})
	if e.Evaluate([]string{"Test sign"}).Action != ActionUrgentReferral {
		t.Fatal("expected injected catalog to drive matching")
	}
	if e.Evaluate([]string{"Convulsing"}).Action != ActionContinueContact {
		t.Fatal("default catalog entries must not leak into injected table")
	}
}
