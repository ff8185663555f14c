package engine

import (
	"context"

	"codebot/internal/finding"
	"codebot/internal/patterns"
)

var codeExtensions = []string{
	".py", ".js", ".ts", ".jsx", ".tsx", ".java", ".go", ".rb", ".php",
	".cs", ".rs", ".swift", ".kt", ".html",
}

// CodeEngine applies the pattern library to source files line by line.
type CodeEngine struct {
	// Patterns overrides the library. Nil uses every non-secret pattern.
	Patterns []patterns.Pattern
}

func NewCodeEngine() *CodeEngine { return &CodeEngine{} }

func (e *CodeEngine) Name() string         { return NameCodePattern }
func (e *CodeEngine) Extensions() []string { return codeExtensions }

func (e *CodeEngine) Applies(filePath string) bool {
	x := ext(filePath)
	for _, c := range codeExtensions {
		if c == x {
			return true
		}
	}
	return false
}

func (e *CodeEngine) patternsFor(filePath string) []patterns.Pattern {
	src := e.Patterns
	if src == nil {
		src = patterns.ForFile(filePath)
	}
	x := ext(filePath)
	out := make([]patterns.Pattern, 0, len(src))
	for _, p := range src {
		// Credentials belong to the secret engine.
		if p.Category == finding.Secret || !p.AppliesTo(x) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Scan reports each (pattern, line) pair at most once, ordered by catalog
// position and then line.
func (e *CodeEngine) Scan(ctx context.Context, filePath string, content []byte) ([]finding.Finding, error) {
	pats := e.patternsFor(filePath)
	if len(pats) == 0 {
		return nil, nil
	}
	src := lines(content, patterns.MaxLineLength)
	testFile := isTestPath(filePath)

	var out []finding.Finding
	for _, p := range pats {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		for i, line := range src {
			if !p.Matcher.MatchString(line) || p.Excluded(line) {
				continue
			}
			if isComment(line, filePath) || looksLikeDoc(line) {
				continue
			}
			if p.Confidence != finding.ConfidenceHigh && (testFile || falsePositiveWords.MatchString(line)) {
				continue
			}
			out = append(out, fromPattern(p, filePath, i+1, snippet(line), NameCodePattern))
		}
	}
	return out, nil
}

func fromPattern(p patterns.Pattern, filePath string, line int, code, scanner string) finding.Finding {
	return finding.Finding{
		Title:        p.Title,
		Description:  p.Description,
		FilePath:     filePath,
		Line:         line,
		Severity:     p.Severity,
		Confidence:   p.Confidence,
		Category:     p.Category,
		Impact:       p.Impact,
		RootCause:    p.RootCause,
		SuggestedFix: p.Fix,
		ReferenceID:  p.ReferenceID,
		Scanner:      scanner,
		RuleID:       p.ID,
		CodeSnippet:  code,
	}
}
