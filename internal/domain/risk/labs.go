package risk

import "fmt"

// LabCategory names one monitored laboratory parameter.
type LabCategory string

const (
	LabCD4        LabCategory = "cd4"
	LabViralLoad  LabCategory = "viral_load"
	LabLiver      LabCategory = "liver"
	LabCreatinine LabCategory = "creatinine"
)

// labBand is one tier of a category's threshold table.
type labBand struct {
	level          RiskLevel
	description    string
	recommendation string
}

// labTable fixes, per category, the three-tier cutoffs and their
// directionality. CD4 worsens downward; viral load, liver enzymes and
// creatinine worsen upward.
type labTable struct {
	lowerIsWorse bool
	critical     float64
	high         float64
	medium       float64
	bands        map[RiskLevel]labBand
}

var labTables = map[LabCategory]labTable{
	LabCD4: {
		lowerIsWorse: true,
		critical:     100, high: 200, medium: 350,
		bands: map[RiskLevel]labBand{
			LevelCritical: {LevelCritical, "Severe immunosuppression", "Urgent clinical review; start or intensify opportunistic infection prophylaxis."},
			LevelHigh:     {LevelHigh, "Advanced immunosuppression", "Cotrimoxazole prophylaxis; fast-track ART adherence support."},
			LevelMedium:   {LevelMedium, "Moderate immunosuppression", "Monitor CD4 at next scheduled visit; reinforce adherence."},
			LevelLow:      {LevelLow, "CD4 within acceptable range", "Continue routine monitoring."},
		},
	},
	LabViralLoad: {
		critical: 100000, high: 10000, medium: 1000,
		bands: map[RiskLevel]labBand{
			LevelCritical: {LevelCritical, "Very high viral load", "Immediate adherence assessment; evaluate for treatment failure and regimen switch."},
			LevelHigh:     {LevelHigh, "Unsuppressed viral load", "Enhanced adherence counselling; repeat viral load in 3 months."},
			LevelMedium:   {LevelMedium, "Low-level viraemia", "Repeat viral load; reinforce adherence."},
			LevelLow:      {LevelLow, "Viral load suppressed", "Continue current regimen and routine monitoring."},
		},
	},
	LabLiver: {
		critical: 200, high: 120, medium: 40,
		bands: map[RiskLevel]labBand{
			LevelCritical: {LevelCritical, "Severe transaminase elevation", "Stop hepatotoxic drugs; urgent hepatology review."},
			LevelHigh:     {LevelHigh, "Marked transaminase elevation", "Review medications; repeat liver panel within a week."},
			LevelMedium:   {LevelMedium, "Mild transaminase elevation", "Repeat liver panel at next visit; screen for viral hepatitis."},
			LevelLow:      {LevelLow, "Liver enzymes within range", "Continue routine monitoring."},
		},
	},
	LabCreatinine: {
		critical: 3.0, high: 2.0, medium: 1.3,
		bands: map[RiskLevel]labBand{
			LevelCritical: {LevelCritical, "Severe renal impairment", "Urgent renal review; stop nephrotoxic drugs including tenofovir."},
			LevelHigh:     {LevelHigh, "Significant renal impairment", "Dose-adjust renally cleared drugs; repeat creatinine within a week."},
			LevelMedium:   {LevelMedium, "Mild renal impairment", "Recheck creatinine at next visit; review nephrotoxic co-medication."},
			LevelLow:      {LevelLow, "Creatinine within range", "Continue routine monitoring."},
		},
	},
}

// LabAssessment is the banding outcome for one category and value.
type LabAssessment struct {
	Category       LabCategory `json:"category"`
	Value          float64     `json:"value"`
	Level          RiskLevel   `json:"level"`
	Description    string      `json:"description"`
	Recommendation string      `json:"recommendation"`
}

// AssessLabValue bands a numeric lab value for its category. Unknown
// categories are a caller error.
func AssessLabValue(category LabCategory, value float64) (*LabAssessment, error) {
	table, ok := labTables[category]
	if !ok {
		return nil, fmt.Errorf("unknown lab category %q", category)
	}

	var level RiskLevel
	if table.lowerIsWorse {
		switch {
		case value < table.critical:
			level = LevelCritical
		case value < table.high:
			level = LevelHigh
		case value < table.medium:
			level = LevelMedium
		default:
			level = LevelLow
		}
	} else {
		switch {
		case value >= table.critical:
			level = LevelCritical
		case value >= table.high:
			level = LevelHigh
		case value >= table.medium:
			level = LevelMedium
		default:
			level = LevelLow
		}
	}

	band := table.bands[level]
	return &LabAssessment{
		Category:       category,
		Value:          value,
		Level:          level,
		Description:    band.description,
		Recommendation: band.recommendation,
	}, nil
}

// OverallLabRisk is the maximum severity across the given assessments.
func OverallLabRisk(assessments []*LabAssessment) RiskLevel {
	levels := make([]RiskLevel, len(assessments))
	for i, a := range assessments {
		levels[i] = a.Level
	}
	return MaxLevel(levels...)
}
