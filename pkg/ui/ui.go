// Package ui renders scan output for terminals.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/defendx/defendx/pkg/finding"
	"github.com/defendx/defendx/pkg/scoring"
)

var (
	highStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	mediumStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Bold(true)
	lowStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	cleanStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	titleStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
	urlStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
)

// SeverityBadge renders a colored severity label.
func SeverityBadge(s finding.Severity) string {
	label := strings.ToUpper(string(s))
	switch s {
	case finding.High:
		return highStyle.Render(label)
	case finding.Medium:
		return mediumStyle.Render(label)
	case finding.Low:
		return lowStyle.Render(label)
	}
	return dimStyle.Render(label)
}

// TierBadge renders a risk tier.
func TierBadge(t scoring.Tier) string {
	switch t {
	case scoring.TierHigh:
		return highStyle.Render("HIGH RISK")
	case scoring.TierMedium:
		return mediumStyle.Render("MEDIUM RISK")
	case scoring.TierLow:
		return lowStyle.Render("LOW RISK")
	case scoring.TierClean:
		return cleanStyle.Render("CLEAN")
	}
	return dimStyle.Render("UNKNOWN")
}

// GradeBadge renders a health grade.
func GradeBadge(grade string) string {
	switch {
	case strings.HasPrefix(grade, "A"):
		return cleanStyle.Render(grade)
	case strings.HasPrefix(grade, "B"):
		return lowStyle.Render(grade)
	case strings.HasPrefix(grade, "C"):
		return mediumStyle.Render(grade)
	}
	return highStyle.Render(grade)
}

// RenderFinding formats one finding as an indented block.
func RenderFinding(f finding.Finding) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s\n", SeverityBadge(f.Severity), titleStyle.Render(f.Title))
	fmt.Fprintf(&b, "    %s\n", urlStyle.Render(f.URL))
	if f.Parameter != "" {
		fmt.Fprintf(&b, "    parameter: %s\n", f.Parameter)
	}
	if f.Description != "" {
		fmt.Fprintf(&b, "    %s\n", f.Description)
	}
	if f.Remediation != "" {
		fmt.Fprintf(&b, "    %s %s\n", dimStyle.Render("fix:"), f.Remediation)
	}
	return b.String()
}

// RenderSummary formats the scan summary line.
func RenderSummary(s scoring.Summary) string {
	return fmt.Sprintf("%s  %d finding(s): %d high, %d medium, %d low",
		TierBadge(s.RiskTier),
		s.Total,
		s.BySeverity[finding.High],
		s.BySeverity[finding.Medium],
		s.BySeverity[finding.Low])
}

// RenderHealth formats a health score block.
func RenderHealth(h scoring.HealthScore) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Health: %d/100 %s (%s)\n", h.Score, GradeBadge(h.Grade), h.Status)
	for _, rec := range h.Recommendations {
		fmt.Fprintf(&b, "  - %s\n", rec)
	}
	return b.String()
}
