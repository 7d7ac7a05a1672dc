package engine

import "strings"

// Terminal actions of the danger-sign check. It is a two-state machine: the
// first selected sign found in the catalog forces referral, otherwise the
// contact continues normally.
const (
	ActionUrgentReferral  = "URGENT_REFERRAL"
	ActionContinueContact = "CONTINUE_ANC_CONTACT"
)

// NoneSelected is the explicit "no danger signs" marker some forms submit.
const NoneSelected = "None"

// DangerSign is one catalog entry with the guideline metadata shown to the
// health worker on referral.
type DangerSign struct {
	Sign       string `json:"sign"`
	Severity   string `json:"severity"`
	Urgency    string `json:"urgency"`
	Management string `json:"management"`
}

// DefaultDangerSignCatalog returns the ANC danger-sign catalog. Callers treat
// the returned slice as immutable; the evaluator takes it as injected
// configuration so tests can substitute a smaller table.
func DefaultDangerSignCatalog() []DangerSign {
	return []DangerSign{
		{Sign: "Vaginal bleeding", Severity: "red", Urgency: "immediate", Management: "Urgent hospital transfer. Do not perform vaginal examination. Establish IV access."},
		{Sign: "Convulsing", Severity: "red", Urgency: "immediate", Management: "Urgent hospital transfer. Protect airway, place in recovery position, give magnesium sulphate per protocol."},
		{Sign: "Severe headache", Severity: "red", Urgency: "immediate", Management: "Urgent hospital transfer. Measure blood pressure and test urine for protein before departure."},
		{Sign: "Visual disturbance", Severity: "red", Urgency: "immediate", Management: "Urgent hospital transfer. Assess for pre-eclampsia, measure blood pressure."},
		{Sign: "Fever", Severity: "red", Urgency: "immediate", Management: "Urgent hospital transfer. Start antipyretic, screen for malaria where endemic."},
		{Sign: "Severe vomiting", Severity: "red", Urgency: "immediate", Management: "Urgent hospital transfer. Begin oral or IV rehydration en route."},
		{Sign: "Severe abdominal pain", Severity: "red", Urgency: "immediate", Management: "Urgent hospital transfer. Keep nil by mouth, monitor vital signs."},
		{Sign: "Fluid leakage", Severity: "red", Urgency: "immediate", Management: "Urgent hospital transfer. Suspect rupture of membranes, note time of onset and fluid colour."},
		{Sign: "Reduced fetal movement", Severity: "red", Urgency: "immediate", Management: "Urgent hospital transfer. Auscultate fetal heart rate before departure if possible."},
		{Sign: "Swollen face or hands", Severity: "red", Urgency: "immediate", Management: "Urgent hospital transfer. Measure blood pressure and test urine for protein."},
		{Sign: "Difficulty breathing", Severity: "red", Urgency: "immediate", Management: "Urgent hospital transfer. Position semi-upright, give oxygen if available."},
		{Sign: "Unconscious", Severity: "red", Urgency: "immediate", Management: "Urgent hospital transfer. Protect airway, place in recovery position, never leave unattended."},
		{Sign: "Labour pains before term", Severity: "red", Urgency: "immediate", Management: "Urgent hospital transfer. Record gestational age and contraction pattern."},
	}
}

// DangerSignOutcome is the terminal state plus the matched catalog entry on
// referral.
type DangerSignOutcome struct {
	Action     string      `json:"action"`
	Matched    *DangerSign `json:"matched,omitempty"`
	Annotation string      `json:"annotation"`
}

// DangerSignEvaluator checks selected signs against an injected catalog.
type DangerSignEvaluator struct {
	catalog []DangerSign
	index   map[string]*DangerSign
}

// NewDangerSignEvaluator builds an evaluator over the given catalog.
func NewDangerSignEvaluator(catalog []DangerSign) *DangerSignEvaluator {
	e := &DangerSignEvaluator{
		catalog: catalog,
		index:   make(map[string]*DangerSign, len(catalog)),
	}
	for i := range catalog {
		e.index[strings.ToLower(catalog[i].Sign)] = &catalog[i]
	}
	return e
}

// Catalog returns the evaluator's danger-sign table.
func (e *DangerSignEvaluator) Catalog() []DangerSign {
	return e.catalog
}

// Evaluate walks the selected signs in input order; the first one present in
// the catalog forces urgent referral. An empty selection or the explicit
// "None" marker yields the continue-contact state.
func (e *DangerSignEvaluator) Evaluate(selected []string) DangerSignOutcome {
	for _, sign := range selected {
		trimmed := strings.TrimSpace(sign)
		if trimmed == "" || strings.EqualFold(trimmed, NoneSelected) {
			continue
		}
		if match, ok := e.index[strings.ToLower(trimmed)]; ok {
			return DangerSignOutcome{
				Action:     ActionUrgentReferral,
				Matched:    match,
				Annotation: match.Sign + ": " + match.Management,
			}
		}
	}
	return DangerSignOutcome{
		Action:     ActionContinueContact,
		Annotation: "No danger signs reported. Continue routine ANC contact schedule.",
	}
}
