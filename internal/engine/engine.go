// Package engine contains the scanner engines. Each engine inspects one
// file at a time and reports findings; engines share no mutable state, so
// a single instance may scan many files concurrently.
package engine

import (
	"context"
	"path"
	"regexp"
	"strings"

	"codebot/internal/finding"
)

// Engine names as reported in Finding.Scanner and scanners_used.
const (
	NameDependency  = "dependency"
	NameSecret      = "secret"
	NameCodePattern = "code_pattern"
	NameConfig      = "config"
	NameCICD        = "cicd"
)

// Engine is the contract every scanner implements.
//
// Scan returns the findings for one file. A non-nil error is soft: the
// findings returned alongside it are still valid and the caller records the
// error as a warning. Engines must not panic on malformed input, but
// callers recover anyway.
type Engine interface {
	Name() string
	// Extensions lists the file extensions the engine handles. Engines that
	// select files by name rather than extension return nil.
	Extensions() []string
	Applies(filePath string) bool
	Scan(ctx context.Context, filePath string, content []byte) ([]finding.Finding, error)
}

// Defaults returns the five engines with default settings, in the order
// their findings are merged.
func Defaults(deps DependencyOptions, secrets SecretOptions) []Engine {
	return []Engine{
		NewDependencyEngine(deps),
		NewSecretEngine(secrets),
		NewCodeEngine(),
		NewConfigEngine(),
		NewCICDEngine(),
	}
}

const snippetLen = 200

// lines splits content into lines without trailing carriage returns.
// Lines longer than maxLen are truncated so matchers see bounded input.
func lines(content []byte, maxLen int) []string {
	out := strings.Split(string(content), "\n")
	for i, l := range out {
		l = strings.TrimSuffix(l, "\r")
		if maxLen > 0 && len(l) > maxLen {
			l = l[:maxLen]
		}
		out[i] = l
	}
	return out
}

func snippet(line string) string {
	s := strings.TrimSpace(line)
	if len(s) > snippetLen {
		s = s[:snippetLen]
	}
	return s
}

func ext(filePath string) string {
	return strings.ToLower(path.Ext(filePath))
}

func base(filePath string) string {
	return path.Base(strings.ReplaceAll(filePath, `\`, "/"))
}

// isComment reports whether line is a whole-line comment in the syntax of
// the file's language. Unknown extensions accept the common markers.
func isComment(line, filePath string) bool {
	s := strings.TrimSpace(line)
	if s == "" {
		return false
	}
	switch ext(filePath) {
	case ".py":
		return strings.HasPrefix(s, "#") || strings.HasPrefix(s, `"""`) || strings.HasPrefix(s, "'''")
	case ".rb", ".sh", ".bash", ".zsh", ".yml", ".yaml", ".toml":
		return strings.HasPrefix(s, "#")
	case ".php":
		return strings.HasPrefix(s, "//") || strings.HasPrefix(s, "#") || strings.HasPrefix(s, "/*") || strings.HasPrefix(s, "*")
	case ".js", ".ts", ".jsx", ".tsx", ".java", ".kt", ".go", ".cs", ".rs", ".swift", ".scala", ".c", ".cpp", ".h":
		return strings.HasPrefix(s, "//") || strings.HasPrefix(s, "/*") || strings.HasPrefix(s, "*")
	case ".html", ".xml", ".vue", ".svelte":
		return strings.HasPrefix(s, "<!--")
	}
	for _, p := range []string{"#", "//", "/*", "*", "<!--", ";"} {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

var (
	// Whole words only: "latest" or "pytest" must not veto a match. Underscores
	// and digits count as separators so test_user still qualifies.
	falsePositiveWords = regexp.MustCompile(`(?i)(?:^|[^a-z])(?:tests?|mock(?:s|ed)?|fake|dummy|examples?|samples?|placeholder)(?:[^a-z]|$)`)
	docIndicators      = []string{"example:", "e.g.", "usage:", "note:", "@param", "@return", "@example", "todo:", ">>>", "docstring"}
)

func looksLikeDoc(line string) bool {
	l := strings.ToLower(line)
	for _, d := range docIndicators {
		if strings.Contains(l, d) {
			return true
		}
	}
	return false
}

// isTestPath matches test directories and test file naming conventions.
func isTestPath(filePath string) bool {
	p := strings.ToLower(filePath)
	return strings.Contains(p, "/test") || strings.HasPrefix(p, "test") || strings.Contains(p, "_test.")
}
