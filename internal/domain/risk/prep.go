package risk

// PrEP risk classification cutoffs. Fixed constants per the governing rule
// set, not configuration.
const (
	prepModerateCutoff = 5
	prepHighCutoff     = 10
)

// DefaultPrEPFactorTable returns the weighted factor checklist used for PrEP
// risk scoring, grouped into behavioral, partner and pregnancy categories.
// Callers treat the table as immutable; the scorer takes it as injected
// configuration.
func DefaultPrEPFactorTable() []RiskFactor {
	return []RiskFactor{
		{Category: "partner", ID: "partner_hiv_positive", Label: "Partner living with HIV", Points: 5},
		{Category: "partner", ID: "partner_not_on_art", Label: "Partner with HIV not on ART or not suppressed", Points: 3},
		{Category: "partner", ID: "partner_unknown_status", Label: "Partner of unknown HIV status", Points: 2},
		{Category: "behavioral", ID: "inconsistent_condom", Label: "Inconsistent or no condom use", Points: 3},
		{Category: "behavioral", ID: "multiple_partners", Label: "More than one sexual partner in the last 6 months", Points: 3},
		{Category: "behavioral", ID: "recent_sti", Label: "STI diagnosed or treated in the last 6 months", Points: 2},
		{Category: "behavioral", ID: "injection_drug_use", Label: "Injection drug use with shared equipment", Points: 3},
		{Category: "behavioral", ID: "transactional_sex", Label: "Transactional sex", Points: 3},
		{Category: "pregnancy", ID: "pregnant", Label: "Currently pregnant", Points: 1},
		{Category: "pregnancy", ID: "breastfeeding", Label: "Currently breastfeeding", Points: 1},
	}
}

// PrEPScorer scores a factor checklist against a fixed weight table.
type PrEPScorer struct {
	table    []RiskFactor
	maxScore int
}

// NewPrEPScorer builds a scorer over the given factor table.
func NewPrEPScorer(table []RiskFactor) *PrEPScorer {
	s := &PrEPScorer{table: table}
	for _, f := range table {
		s.maxScore += f.Points
	}
	return s
}

// MaxScore is the sum of all factor points in the table, computed once. It is
// the single authoritative denominator for score displays.
func (s *PrEPScorer) MaxScore() int {
	return s.maxScore
}

// Score sums the points of the present factors and returns the evaluated
// checklist. Unknown ids in present are ignored.
func (s *PrEPScorer) Score(present map[string]bool) (int, []RiskFactor) {
	score := 0
	factors := make([]RiskFactor, len(s.table))
	for i, f := range s.table {
		f.Present = present[f.ID]
		if f.Present {
			score += f.Points
		}
		factors[i] = f
	}
	return score, factors
}

// ClassifyPrEPRisk maps a score to a level: below 5 low, 5 to 9 moderate,
// 10 and above high.
func ClassifyPrEPRisk(score int) RiskLevel {
	switch {
	case score >= prepHighCutoff:
		return LevelHigh
	case score >= prepModerateCutoff:
		return LevelModerate
	}
	return LevelLow
}

// PrEPClinical carries the clinical data the contraindication check needs.
type PrEPClinical struct {
	HIVStatus           string   `json:"hiv_status"`
	AcuteHIVSymptoms    bool     `json:"acute_hiv_symptoms"`
	CreatinineClearance *float64 `json:"creatinine_clearance,omitempty"`
	HepatitisBPositive  bool     `json:"hepatitis_b_positive"`
	TenofovirAllergy    bool     `json:"tenofovir_allergy"`
}

// Contraindication is one finding against starting PrEP. Absolute ones rule
// PrEP out regardless of risk score; relative ones push the decision to
// conditional handling.
type Contraindication struct {
	Description string `json:"description"`
	Absolute    bool   `json:"absolute"`
}

// CheckPrEPContraindications evaluates the clinical data in a fixed order so
// the output list is deterministic.
func CheckPrEPContraindications(c PrEPClinical) []Contraindication {
	var out []Contraindication
	if c.HIVStatus == "positive" {
		out = append(out, Contraindication{
			Description: "HIV positive status: PrEP is not indicated, link to ART services",
			Absolute:    true,
		})
	}
	if c.AcuteHIVSymptoms {
		out = append(out, Contraindication{
			Description: "Symptoms of acute HIV infection: defer PrEP, retest in 4 weeks",
			Absolute:    true,
		})
	}
	if c.CreatinineClearance != nil && *c.CreatinineClearance < 60 {
		out = append(out, Contraindication{
			Description: "Renal impairment (creatinine clearance below 60 mL/min)",
		})
	}
	if c.HepatitisBPositive {
		out = append(out, Contraindication{
			Description: "Active Hepatitis B: stopping PrEP may flare hepatitis, specialist input needed",
		})
	}
	if c.TenofovirAllergy {
		out = append(out, Contraindication{
			Description: "Documented allergy to tenofovir-based regimens",
		})
	}
	return out
}

// DeterminePrEPEligibility combines risk level and contraindications. Any
// absolute contraindication makes the client ineligible regardless of score;
// a relative contraindication or low risk yields the conditional state.
func DeterminePrEPEligibility(level RiskLevel, contraindications []Contraindication) Eligibility {
	for _, c := range contraindications {
		if c.Absolute {
			return Ineligible
		}
	}
	if len(contraindications) > 0 || level == LevelLow {
		return Conditional
	}
	return Eligible
}

// PrEPAssessment is the full PrEP evaluation output, produced fresh per call.
type PrEPAssessment struct {
	Score             int          `json:"score"`
	MaxScore          int          `json:"max_score"`
	Level             RiskLevel    `json:"level"`
	Factors           []RiskFactor `json:"factors"`
	Recommendations   []string     `json:"recommendations"`
	Contraindications []string     `json:"contraindications"`
	Eligibility       Eligibility  `json:"eligibility"`
}

// Assess runs the complete PrEP pipeline: score, classify, check
// contraindications, decide eligibility.
func (s *PrEPScorer) Assess(present map[string]bool, clinical PrEPClinical) *PrEPAssessment {
	score, factors := s.Score(present)
	level := ClassifyPrEPRisk(score)
	contraindications := CheckPrEPContraindications(clinical)
	eligibility := DeterminePrEPEligibility(level, contraindications)

	a := &PrEPAssessment{
		Score:       score,
		MaxScore:    s.maxScore,
		Level:       level,
		Factors:     factors,
		Eligibility: eligibility,
	}
	for _, c := range contraindications {
		a.Contraindications = append(a.Contraindications, c.Description)
	}
	a.Recommendations = prepRecommendations(level, eligibility)
	return a
}

func prepRecommendations(level RiskLevel, eligibility Eligibility) []string {
	switch eligibility {
	case Ineligible:
		return []string{
			"Do not initiate PrEP.",
			"Confirm HIV status and link to care as appropriate.",
		}
	case Conditional:
		recs := []string{
			"Discuss PrEP with the client; initiation depends on preference and clinical review.",
		}
		if level == LevelLow {
			recs = append(recs, "Reassess risk at the next visit; risk behaviour can change quickly.")
		}
		return recs
	}
	return []string{
		"Offer PrEP initiation today.",
		"Baseline creatinine and Hepatitis B screening before the first refill.",
		"Schedule follow-up HIV testing every 3 months while on PrEP.",
	}
}
