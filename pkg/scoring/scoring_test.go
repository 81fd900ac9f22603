package scoring

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/defendx/defendx/pkg/finding"
)

func f(sev finding.Severity, cat finding.Category, title string) finding.Finding {
	return finding.Finding{
		Category: cat,
		Severity: sev,
		Title:    title,
		URL:      "https://example.com/",
	}
}

func TestSummarizeTierPrecedence(t *testing.T) {
	tests := []struct {
		name     string
		findings []finding.Finding
		want     Tier
	}{
		{"no findings", nil, TierClean},
		{"only low", []finding.Finding{f(finding.Low, finding.CategoryCookie, "a")}, TierLow},
		{"medium beats low", []finding.Finding{
			f(finding.Low, finding.CategoryCookie, "a"),
			f(finding.Medium, finding.CategoryCORS, "b"),
		}, TierMedium},
		{"high beats everything", []finding.Finding{
			f(finding.Low, finding.CategoryCookie, "a"),
			f(finding.Medium, finding.CategoryCORS, "b"),
			f(finding.High, finding.CategoryInjection, "c"),
		}, TierHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Summarize(tt.findings, false).RiskTier)
		})
	}
}

func TestSummarizeFailedScanIsUnknown(t *testing.T) {
	s := Summarize([]finding.Finding{f(finding.High, finding.CategoryXSS, "x")}, true)
	require.Equal(t, TierUnknown, s.RiskTier)
	// Partial findings still counted.
	require.Equal(t, 1, s.Total)
}

func TestSummarizeCounts(t *testing.T) {
	s := Summarize([]finding.Finding{
		f(finding.High, finding.CategoryInjection, "a"),
		f(finding.High, finding.CategoryXSS, "b"),
		f(finding.Low, finding.CategoryMisconfiguration, "c"),
	}, false)
	require.Equal(t, 3, s.Total)
	require.Equal(t, 2, s.BySeverity[finding.High])
	require.Equal(t, 1, s.BySeverity[finding.Low])
	require.Equal(t, 1, s.ByCategory[finding.CategoryInjection])
}

func TestHealthPerfectWithNoFindings(t *testing.T) {
	h := ComputeHealth(nil, DefaultWeights())
	require.Equal(t, 100, h.Score)
	require.Equal(t, "A+", h.Grade)
	require.NotEmpty(t, h.Recommendations)
}

func TestHealthScoreMonotonicInFindings(t *testing.T) {
	w := DefaultWeights()
	one := ComputeHealth([]finding.Finding{
		f(finding.Low, finding.CategoryCookie, "a"),
	}, w)
	more := ComputeHealth([]finding.Finding{
		f(finding.Low, finding.CategoryCookie, "a"),
		f(finding.High, finding.CategoryInjection, "b"),
		f(finding.High, finding.CategorySensitiveData, "c"),
	}, w)
	require.Less(t, more.Score, one.Score)
	require.Greater(t, more.RiskPoints, one.RiskPoints)
}

func TestHealthSeverityOutweighsCount(t *testing.T) {
	w := DefaultWeights()
	manyLow := make([]finding.Finding, 5)
	for i := range manyLow {
		manyLow[i] = f(finding.Low, finding.CategoryCookie, string(rune('a'+i)))
	}
	oneHigh := []finding.Finding{f(finding.High, finding.CategoryInjection, "z")}
	require.Less(t, ComputeHealth(oneHigh, w).Score, ComputeHealth(manyLow, w).Score)
}

func TestHealthScoreFloorsAtZero(t *testing.T) {
	w := DefaultWeights()
	var fs []finding.Finding
	for i := 0; i < 40; i++ {
		fs = append(fs, f(finding.High, finding.CategoryInjection, string(rune('a'+i))))
	}
	h := ComputeHealth(fs, w)
	require.Equal(t, 0, h.Score)
	require.Equal(t, "F", h.Grade)
}

func TestGradeLadder(t *testing.T) {
	tests := []struct {
		score int
		grade string
	}{
		{100, "A+"}, {95, "A+"}, {94, "A"}, {90, "A"},
		{89, "B+"}, {85, "B+"}, {84, "B"}, {80, "B"},
		{79, "C+"}, {75, "C+"}, {74, "C"}, {70, "C"},
		{69, "D"}, {60, "D"}, {59, "F"}, {0, "F"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.grade, gradeFor(tt.score), "score %d", tt.score)
	}
}

func TestDistributionPercentages(t *testing.T) {
	h := ComputeHealth([]finding.Finding{
		f(finding.High, finding.CategoryInjection, "a"),
		f(finding.Low, finding.CategoryCookie, "b"),
		f(finding.Low, finding.CategoryCookie, "c"),
		f(finding.Low, finding.CategoryCookie, "d"),
	}, DefaultWeights())
	require.InDelta(t, 25.0, h.Distribution[finding.High], 0.1)
	require.InDelta(t, 75.0, h.Distribution[finding.Low], 0.1)
}

func TestRecommendationsReflectCategories(t *testing.T) {
	h := ComputeHealth([]finding.Finding{
		f(finding.High, finding.CategoryInjection, "a"),
	}, DefaultWeights())
	require.NotEmpty(t, h.Recommendations)
	require.Contains(t, h.Recommendations[0], "high severity")
}

func TestDedupeByKey(t *testing.T) {
	a := f(finding.High, finding.CategoryInjection, "same")
	b := a
	b.DetectedBy = "other-detector"
	c := f(finding.Low, finding.CategoryCookie, "different")

	got := DedupeByKey([]finding.Finding{a, b, c, a})
	require.Len(t, got, 2)
}

func TestDeterministicAcrossOrderings(t *testing.T) {
	set := []finding.Finding{
		f(finding.High, finding.CategoryInjection, "a"),
		f(finding.Medium, finding.CategoryCORS, "b"),
		f(finding.Low, finding.CategoryCookie, "c"),
	}
	reversed := []finding.Finding{set[2], set[1], set[0]}
	require.Equal(t, ComputeHealth(set, DefaultWeights()).Score, ComputeHealth(reversed, DefaultWeights()).Score)
	require.Equal(t, Summarize(set, false), Summarize(reversed, false))
}
