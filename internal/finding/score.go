package finding

// Summary holds per-severity counts.
type Summary struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

// Total returns the sum of all buckets.
func (s Summary) Total() int {
	return s.Critical + s.High + s.Medium + s.Low
}

// Add increments the bucket for sev. Unknown severities are ignored.
func (s *Summary) Add(sev Severity) {
	switch sev {
	case Critical:
		s.Critical++
	case High:
		s.High++
	case Medium:
		s.Medium++
	case Low:
		s.Low++
	}
}

// Summarize counts findings per severity.
func Summarize(findings []Finding) Summary {
	var s Summary
	for _, f := range findings {
		s.Add(f.Severity)
	}
	return s
}

// Risk weights per severity bucket and the score ceiling.
const (
	weightCritical = 25
	weightHigh     = 15
	weightMedium   = 8
	weightLow      = 3
	MaxRiskScore   = 100
)

// RiskScore computes min(100, 25c + 15h + 8m + 3l). It depends only on the
// counts, never on finding order.
func RiskScore(s Summary) int {
	score := weightCritical*s.Critical + weightHigh*s.High + weightMedium*s.Medium + weightLow*s.Low
	if score > MaxRiskScore {
		return MaxRiskScore
	}
	return score
}
