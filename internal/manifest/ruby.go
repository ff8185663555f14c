package manifest

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"
)

var (
	gemSpecLine     = regexp.MustCompile(`^ {4}([A-Za-z0-9_.\-]+) \(([^)]+)\)$`)
	gemfileDeclLine = regexp.MustCompile(`^\s*gem\s*\(?\s*['"]([^'"]+)['"]\s*(?:,\s*['"]([^'"]+)['"])?`)
)

// GemfileLockParser reads the specs sections of Gemfile.lock. Only
// four-space indented entries are resolved gems; six-space entries are
// their dependency constraints.
type GemfileLockParser struct{}

func (p *GemfileLockParser) Name() string         { return "Gemfile.lock" }
func (p *GemfileLockParser) Ecosystem() Ecosystem { return RubyGems }

func (p *GemfileLockParser) CanParse(filename string) bool {
	return baseName(filename) == "Gemfile.lock"
}

func (p *GemfileLockParser) Parse(content []byte) ([]Descriptor, error) {
	var deps []Descriptor
	scanner := bufio.NewScanner(bytes.NewReader(content))
	section := ""
	inSpecs := false
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), " \r")
		if line == "" {
			inSpecs = false
			continue
		}
		if !strings.HasPrefix(line, " ") {
			section = line
			inSpecs = false
			continue
		}
		if strings.TrimSpace(line) == "specs:" {
			inSpecs = section == "GEM"
			continue
		}
		if !inSpecs {
			continue
		}
		m := gemSpecLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		// Platform-specific versions look like 1.13.3-x86_64-linux.
		version := m[2]
		if i := strings.Index(version, "-"); i > 0 {
			version = version[:i]
		}
		deps = append(deps, Descriptor{
			Ecosystem:  RubyGems,
			Name:       m[1],
			Version:    version,
			Constraint: m[2],
			Line:       lineNo,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return finalize(deps), nil
}

// GemfileParser reads gem declarations from a Gemfile. Only the first
// version argument is used; gems declared without one cannot be looked up
// and are dropped.
type GemfileParser struct{}

func (p *GemfileParser) Name() string         { return "Gemfile" }
func (p *GemfileParser) Ecosystem() Ecosystem { return RubyGems }

func (p *GemfileParser) CanParse(filename string) bool {
	name := baseName(filename)
	return name == "Gemfile" || name == "gems.rb"
}

func (p *GemfileParser) Parse(content []byte) ([]Descriptor, error) {
	var deps []Descriptor
	scanner := bufio.NewScanner(bytes.NewReader(content))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		m := gemfileDeclLine.FindStringSubmatch(line)
		if m == nil || m[2] == "" {
			continue
		}
		deps = append(deps, Descriptor{
			Ecosystem:  RubyGems,
			Name:       m[1],
			Version:    EffectiveVersion(m[2]),
			Constraint: m[2],
			Line:       lineNo,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return finalize(deps), nil
}
