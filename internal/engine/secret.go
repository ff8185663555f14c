package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"codebot/internal/finding"
	"codebot/internal/patterns"
)

// Entropy defaults for generic credential patterns.
const (
	DefaultEntropyThreshold = 3.5
	DefaultMinSecretLength  = 16
)

// SecretOptions tunes the false-positive filters.
type SecretOptions struct {
	EntropyThreshold float64 `mapstructure:"entropy_threshold"`
	MinLength        int     `mapstructure:"min_length"`
}

// DefaultSecretOptions returns the documented defaults.
func DefaultSecretOptions() SecretOptions {
	return SecretOptions{EntropyThreshold: DefaultEntropyThreshold, MinLength: DefaultMinSecretLength}
}

var secretSkipPaths = regexp.MustCompile(`(?i)\.lock$|\.min\.(js|css)$|node_modules/|vendor/|\.git/|(^|/)test[^/]*\.py$|_test\.py$|\.(test|spec)\.[jt]sx?$|mock|fixture|(^|/)readme[^/]*$|(^|/)docs?/`)

var secretPlaceholders = []*regexp.Regexp{
	regexp.MustCompile(`(?i)example`),
	regexp.MustCompile(`(?i)test`),
	regexp.MustCompile(`(?i)fake`),
	regexp.MustCompile(`(?i)dummy`),
	regexp.MustCompile(`(?i)sample`),
	regexp.MustCompile(`(?i)placeholder`),
	regexp.MustCompile(`(?i)your[_-]?(api[_-]?)?(key|token|secret)`),
	regexp.MustCompile(`(?i)xxx+`),
	regexp.MustCompile(`12345`),
	regexp.MustCompile(`(?i)changeme`),
	regexp.MustCompile(`(?i)password123`),
	regexp.MustCompile(`(?i)sk_test_`),
}

var templateMarkers = []string{"<YOUR", "{{", "${", "%{", "YOUR_", "ENTER_", "INSERT_", "REPLACE_", "***"}

// SecretEngine finds credential-shaped literals and filters placeholders
// and low-entropy values.
type SecretEngine struct {
	opts     SecretOptions
	patterns []patterns.Pattern
}

func NewSecretEngine(opts SecretOptions) *SecretEngine {
	if opts.EntropyThreshold <= 0 {
		opts.EntropyThreshold = DefaultEntropyThreshold
	}
	if opts.MinLength <= 0 {
		opts.MinLength = DefaultMinSecretLength
	}
	return &SecretEngine{opts: opts, patterns: patterns.ByCategory(finding.Secret)}
}

func (e *SecretEngine) Name() string         { return NameSecret }
func (e *SecretEngine) Extensions() []string { return nil }

func (e *SecretEngine) Applies(filePath string) bool {
	return !secretSkipPaths.MatchString(strings.ReplaceAll(filePath, `\`, "/"))
}

// Scan reports each distinct secret once per file, at its first occurrence.
func (e *SecretEngine) Scan(ctx context.Context, filePath string, content []byte) ([]finding.Finding, error) {
	src := lines(content, patterns.MaxLineLength)
	seen := make(map[string]bool)

	var out []finding.Finding
	for _, p := range e.patterns {
		if !p.AppliesTo(ext(filePath)) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}
		for i, line := range src {
			if isComment(line, filePath) || p.Excluded(line) {
				continue
			}
			for _, m := range p.Matcher.FindAllStringSubmatchIndex(line, -1) {
				value := line[m[0]:m[1]]
				if len(m) >= 4 && m[2] >= 0 {
					value = line[m[2]:m[3]]
				}

				if isPlaceholder(value) {
					continue
				}
				// Surrounding words only veto the weaker patterns; vendor
				// token formats stand on their own.
				if p.Confidence != finding.ConfidenceHigh && falsePositiveWords.MatchString(line) {
					continue
				}
				if p.Confidence != finding.ConfidenceHigh && !e.dense(value) {
					continue
				}

				sum := sha256.Sum256([]byte(value))
				h := hex.EncodeToString(sum[:8])
				if seen[h] {
					continue
				}
				seen[h] = true

				f := fromPattern(p, filePath, i+1, snippet(strings.ReplaceAll(line, value, Mask(value))), NameSecret)
				out = append(out, f)
			}
		}
	}
	return out, nil
}

// isPlaceholder checks the secret value itself, never the rest of the line.
func isPlaceholder(value string) bool {
	for _, re := range secretPlaceholders {
		if re.MatchString(value) {
			return true
		}
	}
	upper := strings.ToUpper(value)
	for _, m := range templateMarkers {
		if strings.Contains(upper, m) {
			return true
		}
	}
	return false
}

// dense reports whether value is long and random enough to be a real
// credential rather than a word or a repeated filler.
func (e *SecretEngine) dense(value string) bool {
	return len(value) >= e.opts.MinLength && ShannonEntropy(value) >= e.opts.EntropyThreshold
}

// Mask keeps the first and last four characters of s.
func Mask(s string) string {
	if len(s) > 8 {
		return s[:4] + strings.Repeat("*", 8) + s[len(s)-4:]
	}
	return strings.Repeat("*", len(s))
}
