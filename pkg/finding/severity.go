package finding

// Severity represents the severity level of a security finding.
// All values are lowercase strings, matching the convention used
// across the detector packages.
type Severity string

const (
	// High represents significant impact requiring prompt fix
	// (SQL injection, reflected secrets, exposed admin panels).
	High Severity = "high"

	// Medium represents moderate impact (reflected XSS, CORS
	// misconfiguration, verbose errors, insecure cookies).
	Medium Severity = "medium"

	// Low represents limited impact (missing hardening headers,
	// server fingerprinting).
	Low Severity = "low"
)

// IsValid reports whether s is a recognized severity level.
func (s Severity) IsValid() bool {
	switch s {
	case High, Medium, Low:
		return true
	}
	return false
}

// Score returns a numeric score for sorting and comparison.
// High=3, Medium=2, Low=1, unknown=0.
func (s Severity) Score() int {
	switch s {
	case High:
		return 3
	case Medium:
		return 2
	case Low:
		return 1
	default:
		return 0
	}
}

// String returns the severity as a string.
func (s Severity) String() string {
	return string(s)
}
