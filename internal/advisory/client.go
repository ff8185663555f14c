// Package advisory is the boundary to external vulnerability databases.
// Lookups are batched, paced and retried; a failed batch degrades to empty
// results for its packages instead of failing the whole call.
package advisory

import (
	"context"
	"errors"
	"time"

	"codebot/internal/manifest"
)

var (
	// ErrBatchFailed marks a result whose batch could not be resolved.
	ErrBatchFailed = errors.New("advisory: batch lookup failed")
	// ErrRateLimited is returned when the database keeps answering 429.
	ErrRateLimited = errors.New("advisory: rate limited")
	// ErrIncomplete is returned by Lookup alongside the results when at
	// least one batch failed.
	ErrIncomplete = errors.New("advisory: lookup incomplete")
)

// Advisory is one published vulnerability affecting a package version.
type Advisory struct {
	ID      string   `json:"id"`
	Aliases []string `json:"aliases,omitempty"`
	Summary string   `json:"summary"`
	Details string   `json:"details,omitempty"`
	// Score is the CVSS base score, 0 when the advisory carries none.
	Score float64 `json:"score,omitempty"`
	// Vector is the raw CVSS vector the score was derived from.
	Vector string `json:"vector,omitempty"`
	// Severity is the database-specific qualitative label, if any.
	Severity   string    `json:"severity,omitempty"`
	Affected   string    `json:"affected,omitempty"`
	Fixed      string    `json:"fixed,omitempty"`
	References []string  `json:"references,omitempty"`
	Published  time.Time `json:"published,omitempty"`
}

// ReferenceID prefers a CVE alias over the database id.
func (a Advisory) ReferenceID() string {
	for _, alias := range a.Aliases {
		if len(alias) > 4 && alias[:4] == "CVE-" {
			return alias
		}
	}
	return a.ID
}

// Result pairs a descriptor with the advisories found for it. Err is set
// when the descriptor's batch failed; Advisories is then empty.
type Result struct {
	Descriptor manifest.Descriptor
	Advisories []Advisory
	Err        error
}

// Client looks up advisories for a batch of descriptors. The returned slice
// is aligned with the input. A non-nil error wrapping ErrIncomplete means
// some entries carry Err and the rest are valid.
type Client interface {
	Lookup(ctx context.Context, batch []manifest.Descriptor) ([]Result, error)
}
