package observation

import "strings"

// Care module codes understood by the decision support core.
const (
	ModuleANC               = "ANC"
	ModuleART               = "ART"
	ModulePrEP              = "PREP"
	ModulePharmacovigilance = "PHARMACOVIGILANCE"
)

// KnownModules lists the module codes with a defined vocabulary.
var KnownModules = []string{ModuleANC, ModuleART, ModulePrEP, ModulePharmacovigilance}

// IsKnownModule reports whether code names a defined module vocabulary.
// Matching is case-insensitive.
func IsKnownModule(code string) bool {
	_, ok := vocabularies[strings.ToUpper(code)]
	return ok
}

// CanonicalModule returns the upper-case module code, or "" if unknown.
func CanonicalModule(code string) string {
	up := strings.ToUpper(code)
	if _, ok := vocabularies[up]; ok {
		return up
	}
	return ""
}

// vocabularies fixes, per module, the closed set of observation keys the rule
// engine understands and the value kind each key carries. Keys absent from a
// module's table are dropped during normalization.
var vocabularies = map[string]map[string]Kind{
	ModuleANC: {
		"systolicBP":          KindNumber,
		"diastolicBP":         KindNumber,
		"hemoglobin":          KindNumber,
		"temperature":         KindNumber,
		"pulseRate":           KindNumber,
		"weight":              KindNumber,
		"muac":                KindNumber,
		"gestationalAgeWeeks": KindNumber,
		"fundalHeight":        KindNumber,
		"fetalHeartRate":      KindNumber,
		"fetalMovementCount":  KindNumber,
		"urineProtein":        KindString,
		"dangerSigns":         KindStringSet,
		"symptoms":            KindStringSet,
		"previousCesarean":    KindBool,
		"multiplePregnancy":   KindBool,
	},
	ModuleART: {
		"cd4Count":         KindNumber,
		"viralLoad":        KindNumber,
		"alt":              KindNumber,
		"ast":              KindNumber,
		"creatinine":       KindNumber,
		"hemoglobin":       KindNumber,
		"weight":           KindNumber,
		"whoStage":         KindNumber,
		"adherencePercent": KindNumber,
		"onART":            KindBool,
		"tbSymptoms":       KindStringSet,
		"regimen":          KindString,
	},
	ModulePrEP: {
		"hivStatus":            KindString,
		"creatinineClearance":  KindNumber,
		"weight":               KindNumber,
		"riskScore":            KindNumber,
		"acuteHivSymptoms":     KindBool,
		"hepatitisBPositive":   KindBool,
		"tenofovirAllergy":     KindBool,
		"partnerHivPositive":   KindBool,
		"inconsistentCondomUse": KindBool,
		"recentSTI":            KindBool,
		"multiplePartners":     KindBool,
		"injectionDrugUse":     KindBool,
		"transactionalSex":     KindBool,
		"partnerNotOnART":      KindBool,
		"pregnant":             KindBool,
		"breastfeeding":        KindBool,
	},
	ModulePharmacovigilance: {
		"medicationName":      KindString,
		"reactionType":        KindString,
		"reactionSeverity":    KindString,
		"onsetDays":           KindNumber,
		"dechallengePositive": KindBool,
		"rechallengePositive": KindBool,
		"concomitantDrugs":    KindStringSet,
	},
}

// aliases maps common upstream form field names onto canonical vocabulary
// keys. Lookup is done on a lower-cased, separator-stripped form of the
// incoming key, so "systolic_bp", "Systolic BP" and "systolicBp" all land on
// systolicBP.
var aliases = map[string]string{
	"bpsystolic":         "systolicBP",
	"sbp":                "systolicBP",
	"bpdiastolic":        "diastolicBP",
	"dbp":                "diastolicBP",
	"hb":                 "hemoglobin",
	"haemoglobin":        "hemoglobin",
	"temp":               "temperature",
	"pulse":              "pulseRate",
	"gestationalage":     "gestationalAgeWeeks",
	"gaweeks":            "gestationalAgeWeeks",
	"fhr":                "fetalHeartRate",
	"fetalmovements":     "fetalMovementCount",
	"kickcount":          "fetalMovementCount",
	"cd4":                "cd4Count",
	"vl":                 "viralLoad",
	"viralloadcopies":    "viralLoad",
	"creatinineclearance": "creatinineClearance",
	"crcl":               "creatinineClearance",
	"hivresult":          "hivStatus",
	"hepb":               "hepatitisBPositive",
	"hepatitisb":         "hepatitisBPositive",
	"condomuse":          "inconsistentCondomUse",
	"sti":                "recentSTI",
}

// KnownKeys returns the canonical observation keys for a module, or nil for
// an unknown module.
func KnownKeys(moduleCode string) map[string]Kind {
	return vocabularies[strings.ToUpper(moduleCode)]
}

// canonicalKey resolves an incoming field name to its vocabulary key for the
// module, or "" when the field is not recognised.
func canonicalKey(moduleCode, raw string) string {
	vocab := vocabularies[moduleCode]
	if vocab == nil {
		return ""
	}
	if _, ok := vocab[raw]; ok {
		return raw
	}
	folded := foldKey(raw)
	if canon, ok := aliases[folded]; ok {
		if _, known := vocab[canon]; known {
			return canon
		}
	}
	// Case-insensitive match against the vocabulary itself.
	for k := range vocab {
		if foldKey(k) == folded {
			return k
		}
	}
	return ""
}

func foldKey(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '_', '-', ' ', '.':
			continue
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}
