package observation

import "testing"

// ── Normalize ──

func TestNormalize_UnknownModule(t *testing.T) {
	_, err := Normalize(map[string]interface{}{"systolicBP": 120}, "DENTAL")
	if err == nil {
		t.Fatal("expected error for unknown module")
	}
}

func TestNormalize_DropsUnknownKeys(t *testing.T) {
	set, err := Normalize(map[string]interface{}{
		"systolicBP":    150,
		"favoriteColor": "blue",
	}, ModuleANC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if set.Len() != 1 {
		t.Fatalf("expected 1 recognised key, got %d", set.Len())
	}
	if _, ok := set.Get("favoriteColor"); ok {
		t.Error("unknown key should have been dropped")
	}
}

func TestNormalize_NumericStringCoercion(t *testing.T) {
	set, err := Normalize(map[string]interface{}{"hemoglobin": "9.5"}, ModuleANC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, ok := set.Get("hemoglobin")
	if !ok || v.Kind != KindNumber || v.Number != 9.5 {
		t.Fatalf("expected hemoglobin=9.5, got %+v", v)
	}
}

func TestNormalize_BooleanStrings(t *testing.T) {
	cases := map[string]bool{
		"yes": true, "Yes": true, "true": true, "1": true,
		"no": false, "NO": false, "false": false, "0": false,
	}
	for input, want := range cases {
		set, err := Normalize(map[string]interface{}{"previousCesarean": input}, ModuleANC)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		v, ok := set.Get("previousCesarean")
		if !ok || v.Kind != KindBool || v.Bool != want {
			t.Errorf("input %q: expected bool %v, got %+v", input, want, v)
		}
	}
}

func TestNormalize_UncoercibleValueDropped(t *testing.T) {
	set, err := Normalize(map[string]interface{}{"systolicBP": "high-ish"}, ModuleANC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := set.Get("systolicBP"); ok {
		t.Error("uncoercible numeric value should have been dropped")
	}
}

func TestNormalize_FieldNameAliases(t *testing.T) {
	set, err := Normalize(map[string]interface{}{
		"bp_systolic": 145,
		"Hb":          8.2,
		"ga_weeks":    32,
	}, ModuleANC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, key := range []string{"systolicBP", "hemoglobin", "gestationalAgeWeeks"} {
		if _, ok := set.Get(key); !ok {
			t.Errorf("expected alias to resolve to %s", key)
		}
	}
}

func TestNormalize_ModuleCodeCaseInsensitive(t *testing.T) {
	set, err := Normalize(map[string]interface{}{"cd4": 180}, "art")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if set.ModuleCode != ModuleART {
		t.Errorf("expected canonical module ART, got %s", set.ModuleCode)
	}
	if _, ok := set.Get("cd4Count"); !ok {
		t.Error("expected cd4 alias to resolve for ART module")
	}
}

func TestNormalize_StringSetFromSlice(t *testing.T) {
	set, err := Normalize(map[string]interface{}{
		"dangerSigns": []interface{}{"Convulsing", "Severe headache"},
	}, ModuleANC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, ok := set.Get("dangerSigns")
	if !ok || v.Kind != KindStringSet {
		t.Fatalf("expected string set, got %+v", v)
	}
	if !v.Contains("Convulsing") {
		t.Error("expected set to contain Convulsing")
	}
}

func TestNormalize_StringSetFromCommaSeparated(t *testing.T) {
	set, err := Normalize(map[string]interface{}{
		"dangerSigns": "Vaginal bleeding, Fever",
	}, ModuleANC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, _ := set.Get("dangerSigns")
	if len(v.StringSet) != 2 || !v.Contains("Fever") {
		t.Fatalf("expected two members incl. Fever, got %v", v.StringSet)
	}
}

func TestNormalize_EmptyStringSet(t *testing.T) {
	set, err := Normalize(map[string]interface{}{"dangerSigns": ""}, ModuleANC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, ok := set.Get("dangerSigns")
	if !ok || len(v.StringSet) != 0 {
		t.Fatalf("expected empty set present, got %+v", v)
	}
}

// ── Value ──

func TestValue_ContainsNonSetKind(t *testing.T) {
	if NumberValue(5).Contains("5") {
		t.Error("Contains must be false for non-set kinds")
	}
}
