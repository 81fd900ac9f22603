// Package scoring aggregates findings into risk summaries and a
// longer-term health score.
package scoring

import (
	"github.com/defendx/defendx/pkg/finding"
)

// Tier is the overall risk classification of one scan.
type Tier string

const (
	TierHigh    Tier = "high"
	TierMedium  Tier = "medium"
	TierLow     Tier = "low"
	TierClean   Tier = "clean"
	TierUnknown Tier = "unknown"
)

// Summary aggregates the findings of one scan.
type Summary struct {
	Total      int                      `json:"total"`
	BySeverity map[finding.Severity]int `json:"by_severity"`
	ByCategory map[finding.Category]int `json:"by_category"`
	RiskTier   Tier                     `json:"risk_tier"`
}

// Summarize builds the summary for a finished scan. The tier is the
// worst severity present; a scan with no findings is clean. Failed
// scans are unknown regardless of any partial findings, since absence
// of evidence from a broken scan proves nothing.
func Summarize(findings []finding.Finding, failed bool) Summary {
	s := Summary{
		Total:      len(findings),
		BySeverity: map[finding.Severity]int{},
		ByCategory: map[finding.Category]int{},
	}
	for _, f := range findings {
		s.BySeverity[f.Severity]++
		s.ByCategory[f.Category.Canonical()]++
	}

	switch {
	case failed:
		s.RiskTier = TierUnknown
	case s.BySeverity[finding.High] > 0:
		s.RiskTier = TierHigh
	case s.BySeverity[finding.Medium] > 0:
		s.RiskTier = TierMedium
	case s.BySeverity[finding.Low] > 0:
		s.RiskTier = TierLow
	default:
		s.RiskTier = TierClean
	}
	return s
}
