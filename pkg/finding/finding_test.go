package finding

import "testing"

func TestSeverityScoreOrdering(t *testing.T) {
	if High.Score() <= Medium.Score() {
		t.Errorf("high (%d) should outrank medium (%d)", High.Score(), Medium.Score())
	}
	if Medium.Score() <= Low.Score() {
		t.Errorf("medium (%d) should outrank low (%d)", Medium.Score(), Low.Score())
	}
	if Low.Score() <= Severity("bogus").Score() {
		t.Errorf("low (%d) should outrank unknown severities", Low.Score())
	}
}

func TestSeverityIsValid(t *testing.T) {
	for _, s := range []Severity{High, Medium, Low} {
		if !s.IsValid() {
			t.Errorf("%q should be valid", s)
		}
	}
	if Severity("HIGH").IsValid() {
		t.Error("severities are lowercase; HIGH should not validate")
	}
}

func TestCategoryCanonical(t *testing.T) {
	tests := []struct {
		in   Category
		want Category
	}{
		{CategoryInjection, CategoryInjection},
		{CategoryXSS, CategoryXSS},
		{Category("made-up"), CategoryOther},
		{Category(""), CategoryOther},
	}
	for _, tt := range tests {
		if got := tt.in.Canonical(); got != tt.want {
			t.Errorf("Canonical(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFindingKeyStableAcrossDetectors(t *testing.T) {
	a := Finding{Category: CategoryXSS, URL: "https://site/login", Title: "Reflected XSS in user", DetectedBy: "xss"}
	b := Finding{Category: CategoryXSS, URL: "https://site/login", Title: "Reflected XSS in user", DetectedBy: "other-detector"}
	if a.Key() != b.Key() {
		t.Errorf("keys should ignore detector identity: %q vs %q", a.Key(), b.Key())
	}
	c := Finding{Category: CategoryXSS, URL: "https://site/search", Title: "Reflected XSS in user"}
	if a.Key() == c.Key() {
		t.Error("keys must differ by location")
	}
}
