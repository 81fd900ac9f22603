// Package finding defines the canonical vulnerability finding record
// shared by every detector and by the scoring layer.
package finding

// Finding is a single reported vulnerability signal. It is produced by
// exactly one detector and is immutable after creation.
//
// Location (URL and optionally Parameter) must reference a URL or form
// that exists in the attack-surface snapshot the finding was derived
// from; probe URLs with injected payloads belong in Evidence, never in
// URL.
type Finding struct {
	Category    Category          `json:"category"`
	Severity    Severity          `json:"severity"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	URL         string            `json:"url"`
	Parameter   string            `json:"parameter,omitempty"`
	Evidence    map[string]string `json:"evidence,omitempty"`
	Remediation string            `json:"remediation,omitempty"`
	References  []string          `json:"references,omitempty"`
	DetectedBy  string            `json:"detected_by,omitempty"`
}

// Key returns a stable identity for deduplication across scan history:
// two findings with the same key describe the same issue at the same
// location, regardless of which scan produced them.
func (f Finding) Key() string {
	return string(f.Category.Canonical()) + "|" + f.URL + "|" + f.Title
}
