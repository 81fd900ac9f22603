package finding

// Category classifies a finding into the fixed OWASP-style taxonomy
// understood by the aggregation layer. Detectors must only emit these
// values; anything else is folded into CategoryOther at aggregation
// time rather than rejected.
type Category string

const (
	CategoryInjection        Category = "injection"
	CategoryXSS              Category = "xss"
	CategoryMisconfiguration Category = "misconfiguration"
	CategoryInfoDisclosure   Category = "information-disclosure"
	CategoryCORS             Category = "cors"
	CategorySensitiveData    Category = "sensitive-data"
	CategoryCookie           Category = "cookie"
	CategoryExposure         Category = "exposure"
	CategoryAuthWeakness     Category = "auth-weakness"
	CategoryOther            Category = "other"
)

// Categories returns the full taxonomy in stable order.
func Categories() []Category {
	return []Category{
		CategoryInjection,
		CategoryXSS,
		CategoryMisconfiguration,
		CategoryInfoDisclosure,
		CategoryCORS,
		CategorySensitiveData,
		CategoryCookie,
		CategoryExposure,
		CategoryAuthWeakness,
		CategoryOther,
	}
}

// IsValid reports whether c belongs to the fixed taxonomy.
func (c Category) IsValid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

// Canonical returns c if it belongs to the taxonomy, CategoryOther
// otherwise. Aggregation uses this so that a detector emitting an
// unknown category degrades gracefully instead of failing the scan.
func (c Category) Canonical() Category {
	if c.IsValid() {
		return c
	}
	return CategoryOther
}

// String returns the category as a string.
func (c Category) String() string {
	return string(c)
}
