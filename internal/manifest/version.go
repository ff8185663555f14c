package manifest

import (
	"strings"

	"github.com/Masterminds/semver/v3"
)

// unresolvable specifiers carry no version an advisory database could match.
var unresolvablePrefixes = []string{
	"git+", "git:", "git@", "github:", "http:", "https:", "file:", "link:",
	"workspace:", "npm:", "portal:", "patch:",
}

// EffectiveVersion reduces a declared constraint to the version an
// advisory lookup should use. Exact pins are returned as written, minus
// the operator. Ranges reduce to their lower bound when it parses as a
// version. Anything else is passed through unchanged so the advisory
// client can best-effort match it.
// An empty result means the dependency cannot be looked up at all.
func EffectiveVersion(constraint string) string {
	c := strings.TrimSpace(constraint)
	if c == "" || c == "*" || c == "latest" || c == "x" {
		return ""
	}
	lower := strings.ToLower(c)
	for _, p := range unresolvablePrefixes {
		if strings.HasPrefix(lower, p) {
			return ""
		}
	}

	// Take the first clause of compound ranges: ">=1.2, <2", ">=1.2 <2", "1.2 || 2.0".
	first := c
	if i := strings.IndexAny(first, ",|"); i >= 0 {
		first = first[:i]
	}
	first = strings.TrimSpace(first)
	if fields := strings.Fields(first); len(fields) > 1 && isOperator(fields[0]) {
		first = fields[0] + fields[1]
	} else if len(fields) > 0 {
		first = fields[0]
	}

	if strings.HasPrefix(first, "<") || strings.HasPrefix(first, "!=") {
		// An upper bound or exclusion says nothing about what is installed.
		return c
	}

	trimmed := strings.TrimLeft(first, "=^~> ")
	op := strings.TrimSpace(first[:len(first)-len(trimmed)])
	bare := strings.TrimPrefix(trimmed, "v")
	wildcard := strings.HasSuffix(bare, ".*") || strings.HasSuffix(bare, ".x")
	bare = strings.TrimSuffix(bare, ".*")
	bare = strings.TrimSuffix(bare, ".x")
	if bare == "" {
		return ""
	}
	if strings.ContainsAny(bare, "*xX") && !strings.ContainsAny(bare, "-+") {
		return c
	}
	if !wildcard && (op == "" || op == "=" || op == "==" || op == "===") {
		// The declared pin is what advisories are matched against.
		return bare
	}

	v, err := semver.NewVersion(bare)
	if err != nil {
		// Non-semver schemes (PEP 440 post releases, Maven qualifiers) are
		// still meaningful to the advisory database verbatim.
		return bare
	}
	if strings.Count(bare, ".") >= 2 || v.Prerelease() != "" {
		return bare
	}
	return v.String()
}

func isOperator(s string) bool {
	switch s {
	case "=", "==", "===", ">", ">=", "<", "<=", "~", "~=", "~>", "^", "!=":
		return true
	}
	return false
}
