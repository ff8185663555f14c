package finding

import (
	"fmt"
	"sort"
)

// Category tags what kind of weakness a finding describes. It is
// serialized as vulnerability_type.
type Category string

const (
	Injection       Category = "injection"
	XSS             Category = "xss"
	PathTraversal   Category = "path_traversal"
	Deserialization Category = "insecure_deserialization"
	Secret          Category = "hardcoded_secret"
	Crypto          Category = "weak_cryptography"
	Auth            Category = "authentication"
	Authz           Category = "authorization"
	BusinessLogic   Category = "business_logic"
	ErrorHandling   Category = "error_handling"
	HTTP            Category = "http_security"
	Framework       Category = "framework"
	Misconfig       Category = "misconfiguration"
	CICD            Category = "cicd_security"
	Dependency      Category = "vulnerable_dependency"
)

// Finding is a single reported vulnerability tied to a location. Line is
// 1-based; 0 means the finding applies to the whole file.
type Finding struct {
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	FilePath         string     `json:"file_path"`
	Line             int        `json:"line"`
	Severity         Severity   `json:"severity"`
	Confidence       Confidence `json:"confidence"`
	Category         Category   `json:"vulnerability_type"`
	Impact           string     `json:"impact"`
	RootCause        string     `json:"root_cause"`
	SuggestedFix     string     `json:"suggested_fix"`
	SuggestedVersion string     `json:"suggested_version,omitempty"`
	ReferenceID      string     `json:"external_reference_id,omitempty"`
	Scanner          string     `json:"scanner"`
	RuleID           string     `json:"rule_id,omitempty"`
	CodeSnippet      string     `json:"code_snippet,omitempty"`
}

// Key identifies the underlying issue a finding reports. Two findings with
// the same key are the same issue seen through different rules.
type Key struct {
	FilePath string
	Line     int
	Category Category
	Title    string
}

func (f Finding) Key() Key {
	return Key{FilePath: f.FilePath, Line: f.Line, Category: f.Category, Title: f.Title}
}

func (f Finding) String() string {
	return fmt.Sprintf("[%s] %s (%s:%d)", f.Severity, f.Title, f.FilePath, f.Line)
}

// Sort orders findings by severity (most severe first), then file, line,
// title, confidence, scanner and rule. Sorting the same set always yields
// the same sequence.
func Sort(findings []Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		if a.FilePath != b.FilePath {
			return a.FilePath < b.FilePath
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.Title != b.Title {
			return a.Title < b.Title
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.Confidence.Rank() != b.Confidence.Rank() {
			return a.Confidence.Rank() > b.Confidence.Rank()
		}
		if a.Scanner != b.Scanner {
			return a.Scanner < b.Scanner
		}
		if a.RuleID != b.RuleID {
			return a.RuleID < b.RuleID
		}
		return a.Description < b.Description
	})
}
