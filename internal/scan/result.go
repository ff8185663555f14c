package scan

import (
	"time"

	"codebot/internal/finding"
	"codebot/internal/source"
)

// Warning kinds recorded on a result.
const (
	KindFetchFailed        = "fetch_failed"
	KindTooLarge           = "too_large"
	KindNotFound           = "not_found"
	KindParseError         = "parse_error"
	KindEngineError        = "engine_error"
	KindEnginePanic        = "engine_panic"
	KindAdvisoryIncomplete = "advisory_incomplete"
	KindCancelled          = "cancelled"
	KindListFailed         = "list_failed"
)

// Warning is a soft error: the scan continued past it.
type Warning struct {
	File    string `json:"file,omitempty"`
	Engine  string `json:"engine,omitempty"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// SkippedFile is a listed file that was not scanned.
type SkippedFile struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Result is the response of one scan call. The four severity slices
// partition Findings; Total always equals Summary.Total().
type Result struct {
	ScanID        string            `json:"scan_id"`
	Success       bool              `json:"success"`
	RepositoryURL string            `json:"repository_url"`
	StartedAt     time.Time         `json:"started_at"`
	DurationMS    int64             `json:"scan_duration_ms"`
	FilesScanned  int               `json:"files_scanned"`
	Total         int               `json:"total_vulnerabilities"`
	Summary       finding.Summary   `json:"summary"`
	Critical      []finding.Finding `json:"critical"`
	High          []finding.Finding `json:"high"`
	Medium        []finding.Finding `json:"medium"`
	Low           []finding.Finding `json:"low"`
	RiskScore     int               `json:"risk_score"`
	NextChunk     *source.Cursor    `json:"next_chunk_start"`
	Remaining     int               `json:"remaining_files"`
	TotalFiles    int               `json:"total_files"`

	ScannersUsed          []string      `json:"scanners_used"`
	ScannedFiles          []string      `json:"scanned_files"`
	FilesSkipped          []SkippedFile `json:"files_skipped,omitempty"`
	FilteredLowConfidence int           `json:"filtered_low_confidence"`
	Incomplete            bool          `json:"incomplete"`
	Warnings              []Warning     `json:"warnings,omitempty"`
}

// Findings returns every finding, most severe first.
func (r *Result) Findings() []finding.Finding {
	out := make([]finding.Finding, 0, r.Total)
	out = append(out, r.Critical...)
	out = append(out, r.High...)
	out = append(out, r.Medium...)
	out = append(out, r.Low...)
	return out
}

// setFindings sorts findings, partitions them by severity and recomputes
// the summary, total and risk score.
func (r *Result) setFindings(findings []finding.Finding) {
	finding.Sort(findings)
	r.Critical = []finding.Finding{}
	r.High = []finding.Finding{}
	r.Medium = []finding.Finding{}
	r.Low = []finding.Finding{}
	for i := range findings {
		if !findings[i].Severity.IsValid() {
			findings[i].Severity = finding.Low
		}
	}
	for _, f := range findings {
		switch f.Severity {
		case finding.Critical:
			r.Critical = append(r.Critical, f)
		case finding.High:
			r.High = append(r.High, f)
		case finding.Medium:
			r.Medium = append(r.Medium, f)
		default:
			r.Low = append(r.Low, f)
		}
	}
	r.Summary = finding.Summarize(findings)
	r.Total = r.Summary.Total()
	r.RiskScore = finding.RiskScore(r.Summary)
}

// HasAtLeast reports whether any finding is at or above sev.
func (r *Result) HasAtLeast(sev finding.Severity) bool {
	for _, f := range r.Findings() {
		if f.Severity.Rank() >= sev.Rank() {
			return true
		}
	}
	return false
}
