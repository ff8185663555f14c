// Package source enumerates repository files in scan priority order and
// fetches their content with a size bound.
package source

import (
	"context"
	"errors"
	"strconv"
)

var (
	ErrNotFound          = errors.New("source: file not found")
	ErrTooLarge          = errors.New("source: file too large")
	ErrInvalidRepository = errors.New("source: invalid repository")
	ErrRateLimited       = errors.New("source: rate limited")
)

// Cursor is the offset of the next unscanned file in a source's ordering.
// Callers should treat it as opaque and hand it back unchanged.
type Cursor int

func (c Cursor) String() string { return strconv.Itoa(int(c)) }

// Rank orders files for scanning. Lower ranks are scanned first.
type Rank int

const (
	RankDependency Rank = iota
	RankConfig
	RankSource
)

func (r Rank) String() string {
	switch r {
	case RankDependency:
		return "dependency"
	case RankConfig:
		return "config"
	case RankSource:
		return "source"
	default:
		return "unknown"
	}
}

// File is one scannable entry.
type File struct {
	Path string `json:"path"`
	Rank Rank   `json:"priority_rank"`
	// Size in bytes when the source knows it up front, otherwise 0.
	Size int64 `json:"size,omitempty"`
}

// Listing is one page of a source's ordering.
type Listing struct {
	Files []File
	// Next is nil once the ordering is exhausted.
	Next      *Cursor
	Remaining int
	// Total is the number of scannable files in the repository.
	Total int
	// Ignored counts entries excluded by the skip list.
	Ignored int
}

// FileSource is the boundary the scanner reads repositories through.
type FileSource interface {
	// ValidateRepository rejects malformed identifiers before any I/O.
	ValidateRepository(repo string) error
	ListFiles(ctx context.Context, repo string, start Cursor, limit int) (Listing, error)
	// FetchContent returns ErrTooLarge when the file exceeds maxBytes and
	// ErrNotFound when it does not exist.
	FetchContent(ctx context.Context, repo, path string, maxBytes int64) ([]byte, error)
}

// Page cuts ordered[start:start+limit] and fills in the continuation. A
// limit <= 0 returns everything from start.
func Page(ordered []File, start Cursor, limit int) Listing {
	total := len(ordered)
	from := min(max(int(start), 0), total)
	to := total
	if limit > 0 {
		to = min(from+limit, total)
	}

	l := Listing{
		Files:     append([]File(nil), ordered[from:to]...),
		Remaining: total - to,
		Total:     total,
	}
	if to < total {
		next := Cursor(to)
		l.Next = &next
	}
	return l
}
