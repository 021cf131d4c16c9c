package guardrails

import "strings"

// Severity is how likely a harm category is triggered, as judged by the provider
type Severity string

const (
	SeverityNegligible Severity = "NEGLIGIBLE"
	SeverityLow        Severity = "LOW"
	SeverityMedium     Severity = "MEDIUM"
	SeverityHigh       Severity = "HIGH"

	// SeverityUnknown stands in for anything the provider returns that is not one
	// of the levels above
	SeverityUnknown Severity = "UNKNOWN"
)

// ParseSeverity maps a provider probability string to a Severity. It never fails:
// unrecognised values become SeverityUnknown.
func ParseSeverity(s string) Severity {
	switch Severity(strings.ToUpper(strings.TrimSpace(s))) {
	case SeverityNegligible:
		return SeverityNegligible
	case SeverityLow:
		return SeverityLow
	case SeverityMedium:
		return SeverityMedium
	case SeverityHigh:
		return SeverityHigh
	default:
		return SeverityUnknown
	}
}

// Label returns the human-facing label for the severity
func (s Severity) Label() string {
	switch s {
	case SeverityNegligible:
		return "Safe"
	case SeverityLow:
		return "Low"
	case SeverityMedium:
		return "Medium"
	case SeverityHigh:
		return "High"
	default:
		return "Unknown"
	}
}

// Rank orders severities from SeverityUnknown (0) to SeverityHigh (4)
func (s Severity) Rank() int {
	switch s {
	case SeverityNegligible:
		return 1
	case SeverityLow:
		return 2
	case SeverityMedium:
		return 3
	case SeverityHigh:
		return 4
	default:
		return 0
	}
}

// String implements fmt.Stringer
func (s Severity) String() string {
	if s == "" {
		return string(SeverityUnknown)
	}
	return string(s)
}

const harmCategoryPrefix = "HARM_CATEGORY_"

// DisplayCategory turns a provider category such as "HARM_CATEGORY_HATE_SPEECH"
// into "hate speech"
func DisplayCategory(category string) string {
	name := strings.TrimPrefix(category, harmCategoryPrefix)
	return strings.ReplaceAll(strings.ToLower(name), "_", " ")
}
