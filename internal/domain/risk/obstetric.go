package risk

import (
	"fmt"

	"github.com/maternacare/cds/internal/domain/rules"
)

// Parity categories by number of live births.
const (
	Nullipara       = "nullipara"
	Primipara       = "primipara"
	Multipara       = "multipara"
	GrandMultipara  = "grand_multipara"
	grandMultiparaAt = 5
)

// Historical complications recognised by the obstetric assessment, each with
// its targeted recommendation.
var complicationRecommendations = map[string]string{
	"previous_cesarean":     "Plan facility delivery with surgical capacity; discuss mode of delivery early.",
	"pre_eclampsia":         "Monitor blood pressure and urine protein at every contact; consider low-dose aspirin per protocol.",
	"gestational_diabetes":  "Screen for gestational diabetes early; arrange dietary counselling.",
	"preterm_labor":         "Watch for preterm contractions; educate on early warning signs.",
	"postpartum_hemorrhage": "Deliver at a facility with blood transfusion capacity; active management of third stage.",
}

// ObstetricHistory is the caller-supplied gravida/para record.
type ObstetricHistory struct {
	Gravida        int      `json:"gravida"`
	Para           int      `json:"para"`
	Abortions      int      `json:"abortions"`
	LivingChildren int      `json:"living_children"`
	Complications  []string `json:"complications"`
}

// ObstetricValidation reports the numeric-relationship check outcome.
type ObstetricValidation struct {
	IsValid bool     `json:"is_valid"`
	Errors  []string `json:"errors,omitempty"`
}

// ValidateObstetricHistory checks the arithmetic invariants of an obstetric
// history: counts are non-negative, para plus abortions cannot exceed
// gravida, and living children cannot exceed para.
func ValidateObstetricHistory(h ObstetricHistory) ObstetricValidation {
	v := ObstetricValidation{IsValid: true}
	fail := func(msg string) {
		v.IsValid = false
		v.Errors = append(v.Errors, msg)
	}

	if h.Gravida < 0 || h.Para < 0 || h.Abortions < 0 || h.LivingChildren < 0 {
		fail("obstetric counts cannot be negative")
	}
	if h.Para+h.Abortions > h.Gravida {
		fail(fmt.Sprintf("para (%d) + abortions (%d) exceeds gravida (%d)", h.Para, h.Abortions, h.Gravida))
	}
	if h.LivingChildren > h.Para {
		fail(fmt.Sprintf("living children (%d) exceeds para (%d)", h.LivingChildren, h.Para))
	}
	return v
}

// ClassifyParity maps live-birth count to its category.
func ClassifyParity(para int) string {
	switch {
	case para == 0:
		return Nullipara
	case para == 1:
		return Primipara
	case para >= grandMultiparaAt:
		return GrandMultipara
	}
	return Multipara
}

// ObstetricAssessment is the obstetric risk output, produced fresh per call.
type ObstetricAssessment struct {
	ParityCategory  string    `json:"parity_category"`
	Level           RiskLevel `json:"level"`
	Complications   []string  `json:"complications"`
	Recommendations []string  `json:"recommendations"`
}

// AssessObstetricRisk validates the history and classifies risk. An invalid
// history returns a ValidationError and no assessment; a silently wrong score
// is worse than no score.
func AssessObstetricRisk(h ObstetricHistory) (*ObstetricAssessment, error) {
	if v := ValidateObstetricHistory(h); !v.IsValid {
		return nil, &rules.ValidationError{Field: "obstetric_history", Reason: v.Errors[0]}
	}

	parity := ClassifyParity(h.Para)
	level := LevelLow
	var recs []string

	// Repeated entries count once; a duplicated complication is still one
	// complication.
	known := 0
	seen := make(map[string]bool, len(h.Complications))
	for _, c := range h.Complications {
		rec, ok := complicationRecommendations[c]
		if !ok || seen[c] {
			continue
		}
		seen[c] = true
		known++
		recs = append(recs, rec)
	}

	if parity == GrandMultipara {
		level = LevelModerate
		recs = append(recs, "Grand multipara: enhanced monitoring for uterine atony and malpresentation.")
	}
	if h.Gravida >= 5 || known >= 2 {
		level = LevelHigh
		recs = append(recs, "High risk pregnancy: refer for specialist antenatal review and facility delivery planning.")
	}
	if level == LevelLow {
		recs = append(recs, "Continue routine ANC contact schedule.")
	}

	return &ObstetricAssessment{
		ParityCategory:  parity,
		Level:           level,
		Complications:   append([]string(nil), h.Complications...),
		Recommendations: recs,
	}, nil
}
