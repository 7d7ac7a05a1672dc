package risk

// RiskLevel classifies a computed score or lab value.
type RiskLevel string

const (
	LevelLow      RiskLevel = "low"
	LevelMedium   RiskLevel = "medium"
	LevelModerate RiskLevel = "moderate"
	LevelHigh     RiskLevel = "high"
	LevelCritical RiskLevel = "critical"
)

// Rank orders levels for composite comparison: critical > high >
// moderate/medium > low. Moderate and medium are synonyms from different
// scoring schemes and rank equally.
func (l RiskLevel) Rank() int {
	switch l {
	case LevelCritical:
		return 4
	case LevelHigh:
		return 3
	case LevelModerate, LevelMedium:
		return 2
	case LevelLow:
		return 1
	}
	return 0
}

// MaxLevel returns the most severe of the given levels, never an average. A
// single critical finding must not be diluted by several normal ones.
func MaxLevel(levels ...RiskLevel) RiskLevel {
	out := LevelLow
	for _, l := range levels {
		if l.Rank() > out.Rank() {
			out = l
		}
	}
	return out
}

// RiskFactor is one checklist entry of a scoring scheme. Points are fixed per
// factor id; Present is the only per-assessment field.
type RiskFactor struct {
	Category string `json:"category"`
	ID       string `json:"id"`
	Label    string `json:"label"`
	Points   int    `json:"points"`
	Present  bool   `json:"present"`
}

// Eligibility is the tri-state PrEP decision. Conditional is deliberate: for
// low risk with no contraindications the offer is left to patient preference
// rather than collapsed to yes or no.
type Eligibility string

const (
	Eligible    Eligibility = "eligible"
	Conditional Eligibility = "conditional"
	Ineligible  Eligibility = "ineligible"
)
