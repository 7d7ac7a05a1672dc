package risk

import (
	"github.com/rs/zerolog"
)

// Service fronts the pure scoring functions with logging. The scorer's factor
// table is injected so deployments can carry an adapted weight table.
type Service struct {
	prep *PrEPScorer
	log  zerolog.Logger
}

func NewService(prep *PrEPScorer, log zerolog.Logger) *Service {
	return &Service{prep: prep, log: log}
}

// AssessPrEP scores a factor checklist and decides eligibility.
func (s *Service) AssessPrEP(present map[string]bool, clinical PrEPClinical) *PrEPAssessment {
	a := s.prep.Assess(present, clinical)
	s.log.Debug().
		Int("score", a.Score).
		Str("level", string(a.Level)).
		Str("eligibility", string(a.Eligibility)).
		Msg("prep risk assessed")
	return a
}

// PrEPFactorTable exposes the active weight table for display.
func (s *Service) PrEPFactorTable() []RiskFactor {
	_, factors := s.prep.Score(nil)
	return factors
}

// AssessObstetric validates and classifies an obstetric history.
func (s *Service) AssessObstetric(h ObstetricHistory) (*ObstetricAssessment, error) {
	a, err := AssessObstetricRisk(h)
	if err != nil {
		return nil, err
	}
	s.log.Debug().
		Str("parity", a.ParityCategory).
		Str("level", string(a.Level)).
		Msg("obstetric risk assessed")
	return a, nil
}

// LabPanel is one lab reading submitted for banding.
type LabPanel struct {
	Category LabCategory `json:"category"`
	Value    float64     `json:"value"`
}

// LabRiskResult carries the per-category assessments and the composite level.
type LabRiskResult struct {
	Assessments []*LabAssessment `json:"assessments"`
	OverallRisk RiskLevel        `json:"overall_risk"`
}

// AssessLabs bands each submitted reading and takes the maximum severity as
// the composite. A reading with an unknown category fails the whole request,
// since a partial panel would misrepresent the composite.
func (s *Service) AssessLabs(panels []LabPanel) (*LabRiskResult, error) {
	result := &LabRiskResult{}
	for _, p := range panels {
		a, err := AssessLabValue(p.Category, p.Value)
		if err != nil {
			return nil, err
		}
		result.Assessments = append(result.Assessments, a)
	}
	result.OverallRisk = OverallLabRisk(result.Assessments)
	return result, nil
}
