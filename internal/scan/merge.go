package scan

import (
	"slices"

	"codebot/internal/finding"
)

// Dedupe collapses findings that share a (file, line, category, title)
// key, keeping the most confident one. The result is sorted.
func Dedupe(findings []finding.Finding) []finding.Finding {
	sorted := slices.Clone(findings)
	finding.Sort(sorted)

	index := make(map[finding.Key]int, len(sorted))
	out := make([]finding.Finding, 0, len(sorted))
	for _, f := range sorted {
		k := f.Key()
		i, ok := index[k]
		if !ok {
			index[k] = len(out)
			out = append(out, f)
			continue
		}
		if f.Confidence.Rank() > out[i].Confidence.Rank() {
			out[i] = f
		}
	}
	finding.Sort(out)
	return out
}

// FilterLowConfidence drops low-confidence findings unless include is set
// and returns how many were dropped.
func FilterLowConfidence(findings []finding.Finding, include bool) ([]finding.Finding, int) {
	if include {
		return findings, 0
	}
	out := findings[:0:0]
	dropped := 0
	for _, f := range findings {
		if f.Confidence == finding.ConfidenceLow {
			dropped++
			continue
		}
		out = append(out, f)
	}
	return out, dropped
}

// MergeResults combines consecutive chunks of one repository scan. Counts
// add, findings are re-deduplicated and the risk score is recomputed over
// the union. The continuation comes from b, the later chunk.
func MergeResults(a, b *Result) *Result {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}

	m := &Result{
		ScanID:                a.ScanID,
		Success:               a.Success && b.Success,
		RepositoryURL:         a.RepositoryURL,
		StartedAt:             a.StartedAt,
		DurationMS:            a.DurationMS + b.DurationMS,
		FilesScanned:          a.FilesScanned + b.FilesScanned,
		NextChunk:             b.NextChunk,
		Remaining:             b.Remaining,
		TotalFiles:            max(a.TotalFiles, b.TotalFiles),
		ScannedFiles:          append(slices.Clone(a.ScannedFiles), b.ScannedFiles...),
		FilesSkipped:          append(slices.Clone(a.FilesSkipped), b.FilesSkipped...),
		FilteredLowConfidence: a.FilteredLowConfidence + b.FilteredLowConfidence,
		Incomplete:            a.Incomplete || b.Incomplete,
		Warnings:              append(slices.Clone(a.Warnings), b.Warnings...),
	}
	if m.RepositoryURL == "" {
		m.RepositoryURL = b.RepositoryURL
	}

	used := append(slices.Clone(a.ScannersUsed), b.ScannersUsed...)
	slices.Sort(used)
	m.ScannersUsed = slices.Compact(used)

	m.setFindings(Dedupe(append(a.Findings(), b.Findings()...)))
	return m
}
