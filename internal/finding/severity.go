package finding

import (
	"fmt"
	"strings"
)

// Severity is the four-level impact scale used for every reported finding.
type Severity string

const (
	Critical Severity = "critical"
	High     Severity = "high"
	Medium   Severity = "medium"
	Low      Severity = "low"
)

// Severities lists the scale from most to least severe.
var Severities = []Severity{Critical, High, Medium, Low}

// IsValid reports whether s is a recognized severity level.
func (s Severity) IsValid() bool {
	switch s {
	case Critical, High, Medium, Low:
		return true
	}
	return false
}

// Rank returns a numeric rank for sorting. Critical=4 ... Low=1, unknown=0.
func (s Severity) Rank() int {
	switch s {
	case Critical:
		return 4
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

func (s Severity) String() string {
	return string(s)
}

// ParseSeverity accepts any casing plus the common advisory aliases
// ("moderate", "important").
func ParseSeverity(v string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "critical":
		return Critical, nil
	case "high", "important":
		return High, nil
	case "medium", "moderate":
		return Medium, nil
	case "low", "info", "informational", "negligible":
		return Low, nil
	}
	return "", fmt.Errorf("%w: %q (want one of %v)", ErrInvalidSeverity, v, Severities)
}

// Confidence expresses how likely a finding is a true positive.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Rank returns High=3, Medium=2, Low=1, unknown=0.
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceHigh:
		return 3
	case ConfidenceMedium:
		return 2
	case ConfidenceLow:
		return 1
	default:
		return 0
	}
}

func (c Confidence) String() string {
	return string(c)
}

// Thresholds maps a CVSS-like base score onto the severity scale.
// A score at or above a bound falls into that bucket.
type Thresholds struct {
	Critical float64 `mapstructure:"critical"`
	High     float64 `mapstructure:"high"`
	Medium   float64 `mapstructure:"medium"`
	Low      float64 `mapstructure:"low"`
}

// DefaultThresholds are the CVSS v3 qualitative rating bounds.
var DefaultThresholds = Thresholds{Critical: 9.0, High: 7.0, Medium: 4.0, Low: 0.1}

// FromScore buckets score. Scores below the low bound still map to Low;
// an advisory that was published is never dropped for scoring low.
func (t Thresholds) FromScore(score float64) Severity {
	switch {
	case score >= t.Critical:
		return Critical
	case score >= t.High:
		return High
	case score >= t.Medium:
		return Medium
	default:
		return Low
	}
}

// Validate checks that the bounds are strictly descending and positive.
func (t Thresholds) Validate() error {
	if !(t.Critical > t.High && t.High > t.Medium && t.Medium > t.Low && t.Low > 0) {
		return fmt.Errorf("finding: severity thresholds must descend critical > high > medium > low > 0, got %.1f/%.1f/%.1f/%.1f",
			t.Critical, t.High, t.Medium, t.Low)
	}
	return nil
}
