// Package patterns holds the static catalog of vulnerability signatures
// used by the code and secret engines.
//
// The catalog is plain data: a pattern is a Pattern value tagged with a
// finding.Category, so adding a detection means adding an entry to one of
// the category tables. Matchers are RE2 expressions evaluated one line at a
// time, which keeps matching linear in the size of the input.
package patterns

import (
	"path/filepath"
	"regexp"
	"strings"

	"codebot/internal/finding"
)

// Pattern is one vulnerability signature.
type Pattern struct {
	ID          string
	Title       string
	Description string

	// Expr is the RE2 source of Matcher. ExcludeExpr, when set, suppresses a
	// match if it also matches the line.
	Expr        string
	ExcludeExpr string
	Matcher     *regexp.Regexp
	Exclude     *regexp.Regexp

	Severity   finding.Severity
	Confidence finding.Confidence
	Category   finding.Category

	// Extensions limits the pattern to files with these extensions
	// (lowercase, leading dot). Empty means every scannable file.
	Extensions []string

	Impact      string
	RootCause   string
	Fix         string
	ReferenceID string
}

// AppliesTo reports whether the pattern should run against files with ext.
func (p Pattern) AppliesTo(ext string) bool {
	if len(p.Extensions) == 0 {
		return true
	}
	ext = normalizeExt(ext)
	for _, e := range p.Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

// Excluded reports whether line carries a pattern-specific exclusion.
func (p Pattern) Excluded(line string) bool {
	return p.Exclude != nil && p.Exclude.MatchString(line)
}

// MaxLineLength bounds the input handed to a matcher. Longer lines are
// almost always minified or generated code.
const MaxLineLength = 4096

var (
	py    = []string{".py"}
	js    = []string{".js", ".ts", ".jsx", ".tsx"}
	node  = []string{".js", ".ts"}
	jsx   = []string{".jsx", ".tsx", ".js", ".ts"}
	web   = []string{".js", ".ts", ".jsx", ".tsx", ".html"}
	golng = []string{".go"}
	java  = []string{".java", ".kt"}
	php   = []string{".php"}
	ruby  = []string{".rb"}
)

// library is assembled once in init and never mutated afterwards. Its
// order is the order findings are produced in.
var library []Pattern

func init() {
	tables := [][]Pattern{
		secretPatterns,
		injectionPatterns,
		xssPatterns,
		deserializationPatterns,
		pathTraversalPatterns,
		cryptoPatterns,
		authPatterns,
		authzPatterns,
		logicPatterns,
		errorPatterns,
		httpPatterns,
		frameworkPatterns,
	}
	for _, table := range tables {
		for _, p := range table {
			p.Matcher = regexp.MustCompile(p.Expr)
			if p.ExcludeExpr != "" {
				p.Exclude = regexp.MustCompile(p.ExcludeExpr)
			}
			library = append(library, p)
		}
	}
}

// All returns every pattern in catalog order. The returned slice is a copy;
// the compiled matchers are shared and safe for concurrent use.
func All() []Pattern {
	out := make([]Pattern, len(library))
	copy(out, library)
	return out
}

// For returns the patterns applicable to files with extension ext, in
// catalog order. ext may be given with or without the leading dot.
func For(ext string) []Pattern {
	ext = normalizeExt(ext)
	var out []Pattern
	for _, p := range library {
		if p.AppliesTo(ext) {
			out = append(out, p)
		}
	}
	return out
}

// ForFile is For applied to the extension of path.
func ForFile(path string) []Pattern {
	return For(filepath.Ext(path))
}

// ByCategory returns the patterns tagged with any of cats, in catalog order.
func ByCategory(cats ...finding.Category) []Pattern {
	var out []Pattern
	for _, p := range library {
		for _, c := range cats {
			if p.Category == c {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

// Lookup finds a pattern by ID.
func Lookup(id string) (Pattern, bool) {
	for _, p := range library {
		if p.ID == id {
			return p, true
		}
	}
	return Pattern{}, false
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
