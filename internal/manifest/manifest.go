// Package manifest turns dependency manifests and lock files into
// normalized (ecosystem, name, version) descriptors.
package manifest

import (
	"bytes"
	"fmt"
	"path"
	"sort"
	"strings"
)

// Ecosystem names follow the OSV schema so descriptors can be sent to the
// advisory database without translation.
type Ecosystem string

const (
	PyPI      Ecosystem = "PyPI"
	NPM       Ecosystem = "npm"
	Go        Ecosystem = "Go"
	CratesIO  Ecosystem = "crates.io"
	RubyGems  Ecosystem = "RubyGems"
	Packagist Ecosystem = "Packagist"
	Maven     Ecosystem = "Maven"
)

// Descriptor is one declared dependency.
type Descriptor struct {
	Ecosystem Ecosystem `json:"ecosystem"`
	Name      string    `json:"name"`
	// Version is the effective version used for advisory lookup. It is
	// either an exact version or, when the constraint could not be reduced,
	// the constraint passed through unchanged.
	Version string `json:"version"`
	// Constraint is the specifier as written in the manifest.
	Constraint string `json:"constraint,omitempty"`
	Manifest   string `json:"manifest,omitempty"`
	Line       int    `json:"line,omitempty"`
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s/%s@%s", d.Ecosystem, d.Name, d.Version)
}

// Parser reads one manifest format.
type Parser interface {
	// Name identifies the format in logs and parse errors.
	Name() string
	Ecosystem() Ecosystem
	CanParse(filename string) bool
	Parse(content []byte) ([]Descriptor, error)
}

// ParseError reports a malformed manifest. Scanning continues; the error
// is surfaced as a warning on the scan result.
type ParseError struct {
	File   string
	Format string
	Err    error
}

func (e *ParseError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("manifest: parse %s: %v", e.Format, e.Err)
	}
	return fmt.Sprintf("manifest: parse %s (%s): %v", e.File, e.Format, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// parsers is the registry, consulted in order. Lock files come before
// their manifests so a file name never matches a looser parser first.
var parsers = []Parser{
	&RequirementsParser{},
	&PyprojectParser{},
	&PoetryLockParser{},
	&PipfileLockParser{},
	&PipfileParser{},
	&PackageJSONParser{},
	&PackageLockParser{},
	&YarnLockParser{},
	&GoModParser{},
	&GoSumParser{},
	&CargoTomlParser{},
	&CargoLockParser{},
	&GemfileLockParser{},
	&GemfileParser{},
	&ComposerJSONParser{},
	&ComposerLockParser{},
	&PomParser{},
	&GradleParser{},
}

// ParserFor returns the parser for filename, or nil.
func ParserFor(filename string) Parser {
	for _, p := range parsers {
		if p.CanParse(filename) {
			return p
		}
	}
	return nil
}

// IsManifest reports whether any parser accepts filename.
func IsManifest(filename string) bool {
	return ParserFor(filename) != nil
}

// Parse parses content with the parser registered for file. Malformed
// input yields an empty list and a *ParseError. Descriptors are tagged
// with file and returned in a stable order.
func Parse(file string, content []byte) ([]Descriptor, error) {
	p := ParserFor(file)
	if p == nil {
		return nil, nil
	}
	deps, err := p.Parse(content)
	if err != nil {
		return []Descriptor{}, &ParseError{File: file, Format: p.Name(), Err: err}
	}
	for i := range deps {
		deps[i].Manifest = file
	}
	return deps, nil
}

func baseName(filename string) string {
	return path.Base(strings.ReplaceAll(filename, "\\", "/"))
}

// finalize drops descriptors without a usable version, removes duplicates
// and sorts by name then version. Map iteration order in the JSON and TOML
// formats would otherwise leak into results.
func finalize(deps []Descriptor) []Descriptor {
	seen := make(map[string]bool, len(deps))
	out := deps[:0]
	for _, d := range deps {
		if d.Name == "" || d.Version == "" {
			continue
		}
		k := d.String()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, d)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Version < out[j].Version
	})
	return out
}

// lineOf returns the 1-based line of the first line containing needle,
// or 0 when absent.
func lineOf(content []byte, needle string) int {
	if needle == "" {
		return 0
	}
	idx := bytes.Index(content, []byte(needle))
	if idx < 0 {
		return 0
	}
	return bytes.Count(content[:idx], []byte("\n")) + 1
}

func quoted(name string) string {
	return `"` + name + `"`
}
