package scoring

import (
	"fmt"
	"math"
	"sort"

	"github.com/defendx/defendx/pkg/finding"
)

// WeightTable controls how findings convert into risk points.
type WeightTable struct {
	Severity map[finding.Severity]float64
	// Category multipliers scale points for weakness classes with
	// outsized real-world impact.
	Category map[finding.Category]float64
}

// DefaultWeights returns the standard table.
func DefaultWeights() WeightTable {
	return WeightTable{
		Severity: map[finding.Severity]float64{
			finding.High:   7.5,
			finding.Medium: 4.0,
			finding.Low:    1.0,
		},
		Category: map[finding.Category]float64{
			finding.CategoryInjection:        1.4,
			finding.CategoryXSS:              1.3,
			finding.CategorySensitiveData:    1.5,
			finding.CategoryExposure:         1.2,
			finding.CategoryCORS:             1.1,
			finding.CategoryAuthWeakness:     1.3,
			finding.CategoryMisconfiguration: 1.0,
			finding.CategoryInfoDisclosure:   1.0,
			finding.CategoryCookie:           1.0,
			finding.CategoryOther:            1.0,
		},
	}
}

func (w WeightTable) points(f finding.Finding) float64 {
	sev := w.Severity[f.Severity]
	mult, ok := w.Category[f.Category.Canonical()]
	if !ok {
		mult = 1.0
	}
	return sev * mult
}

// HealthScore is the 0-100 security posture of a target, computed over
// its deduplicated finding history.
type HealthScore struct {
	Score      int     `json:"score"`
	Grade      string  `json:"grade"`
	Status     string  `json:"status"`
	RiskPoints float64 `json:"risk_points"`

	// Distribution is the share of findings per severity, in percent.
	Distribution map[finding.Severity]float64 `json:"distribution"`

	Recommendations []string `json:"recommendations"`
}

// grades maps score floors to letter grades, checked in order.
var grades = []struct {
	floor int
	grade string
}{
	{95, "A+"},
	{90, "A"},
	{85, "B+"},
	{80, "B"},
	{75, "C+"},
	{70, "C"},
	{60, "D"},
	{0, "F"},
}

func gradeFor(score int) string {
	for _, g := range grades {
		if score >= g.floor {
			return g.grade
		}
	}
	return "F"
}

func statusFor(score int) string {
	switch {
	case score >= 90:
		return "excellent"
	case score >= 75:
		return "good"
	case score >= 60:
		return "needs attention"
	default:
		return "at risk"
	}
}

// ComputeHealth scores a deduplicated set of findings. Each finding
// subtracts weighted points from a perfect 100; the floor is 0.
func ComputeHealth(findings []finding.Finding, weights WeightTable) HealthScore {
	var points float64
	counts := map[finding.Severity]int{}
	categories := map[finding.Category]bool{}
	for _, f := range findings {
		points += weights.points(f)
		counts[f.Severity]++
		categories[f.Category.Canonical()] = true
	}

	score := 100 - int(math.Round(points))
	if score < 0 {
		score = 0
	}

	h := HealthScore{
		Score:        score,
		Grade:        gradeFor(score),
		Status:       statusFor(score),
		RiskPoints:   points,
		Distribution: map[finding.Severity]float64{},
	}
	if len(findings) > 0 {
		total := float64(len(findings))
		for sev, n := range counts {
			h.Distribution[sev] = math.Round(float64(n)/total*1000) / 10
		}
	}
	h.Recommendations = recommend(counts, categories)
	return h
}

// recommend produces prioritized remediation guidance from what the
// finding history contains.
func recommend(counts map[finding.Severity]int, categories map[finding.Category]bool) []string {
	var recs []string
	if counts[finding.High] > 0 {
		recs = append(recs, fmt.Sprintf("Remediate the %d high severity finding(s) first; they are directly exploitable.", counts[finding.High]))
	}
	categoryAdvice := []struct {
		cat    finding.Category
		advice string
	}{
		{finding.CategoryInjection, "Move all database access to parameterized queries."},
		{finding.CategoryXSS, "Adopt contextual output encoding for all user-controlled data."},
		{finding.CategorySensitiveData, "Rotate any credentials that appeared in page content and move secrets out of the document root."},
		{finding.CategoryExposure, "Remove or block access to exposed administrative and metadata paths."},
		{finding.CategoryCORS, "Tighten the CORS policy to an exact origin allowlist."},
		{finding.CategoryMisconfiguration, "Deploy the standard security header set through a shared middleware."},
		{finding.CategoryCookie, "Set HttpOnly, Secure, and SameSite on all cookies."},
	}
	for _, ca := range categoryAdvice {
		if categories[ca.cat] {
			recs = append(recs, ca.advice)
		}
	}
	if len(recs) == 0 {
		recs = append(recs, "No outstanding findings. Keep scanning on a regular schedule.")
	}
	return recs
}

// DedupeByKey collapses findings that share a key, keeping the first
// occurrence, and returns them in stable key order. Health scoring
// uses it so repeated scans do not double-count the same weakness.
func DedupeByKey(findings []finding.Finding) []finding.Finding {
	seen := map[string]bool{}
	var out []finding.Finding
	for _, f := range findings {
		k := f.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, f)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}
