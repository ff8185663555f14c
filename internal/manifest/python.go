package manifest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

var (
	requirementLine = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9_.\-]*)(?:\[[^\]]*\])?\s*((?:===|==|>=|<=|~=|!=|>|<)\s*[0-9][0-9A-Za-z.\-*+!]*(?:\s*,\s*(?:===|==|>=|<=|~=|!=|>|<)\s*[0-9][0-9A-Za-z.\-*+!]*)*)`)
	pep508Name      = regexp.MustCompile(`^\s*([A-Za-z0-9][A-Za-z0-9_.\-]*)(?:\[[^\]]*\])?\s*\(?\s*([^;)]*)`)
)

// RequirementsParser reads pip requirements files (requirements.txt,
// requirements-dev.txt, dev-requirements.txt).
type RequirementsParser struct{}

func (p *RequirementsParser) Name() string         { return "requirements.txt" }
func (p *RequirementsParser) Ecosystem() Ecosystem { return PyPI }

func (p *RequirementsParser) CanParse(filename string) bool {
	name := strings.ToLower(baseName(filename))
	return strings.HasSuffix(name, ".txt") && strings.Contains(name, "requirements")
}

func (p *RequirementsParser) Parse(content []byte) ([]Descriptor, error) {
	var deps []Descriptor
	scanner := bufio.NewScanner(bytes.NewReader(content))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "-") || strings.Contains(line, "://") {
			continue
		}
		if i := strings.Index(line, ";"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		m := requirementLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		spec := strings.ReplaceAll(m[2], " ", "")
		deps = append(deps, Descriptor{
			Ecosystem:  PyPI,
			Name:       normalizePyPIName(m[1]),
			Version:    EffectiveVersion(spec),
			Constraint: spec,
			Line:       lineNo,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return finalize(deps), nil
}

// PyprojectParser reads pyproject.toml, covering both PEP 621
// [project].dependencies and Poetry's [tool.poetry.*dependencies] tables.
type PyprojectParser struct{}

func (p *PyprojectParser) Name() string         { return "pyproject.toml" }
func (p *PyprojectParser) Ecosystem() Ecosystem { return PyPI }

func (p *PyprojectParser) CanParse(filename string) bool {
	return strings.EqualFold(baseName(filename), "pyproject.toml")
}

type pyproject struct {
	Project struct {
		Dependencies         []string            `toml:"dependencies"`
		OptionalDependencies map[string][]string `toml:"optional-dependencies"`
	} `toml:"project"`
	Tool struct {
		Poetry struct {
			Dependencies    map[string]any `toml:"dependencies"`
			DevDependencies map[string]any `toml:"dev-dependencies"`
			Group           map[string]struct {
				Dependencies map[string]any `toml:"dependencies"`
			} `toml:"group"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

func (p *PyprojectParser) Parse(content []byte) ([]Descriptor, error) {
	var doc pyproject
	if err := toml.Unmarshal(content, &doc); err != nil {
		return nil, err
	}

	var deps []Descriptor
	addPEP508 := func(req string) {
		m := pep508Name.FindStringSubmatch(req)
		if m == nil {
			return
		}
		spec := strings.ReplaceAll(strings.TrimSpace(m[2]), " ", "")
		if spec == "" {
			return
		}
		deps = append(deps, Descriptor{
			Ecosystem:  PyPI,
			Name:       normalizePyPIName(m[1]),
			Version:    EffectiveVersion(spec),
			Constraint: spec,
			Line:       lineOf(content, quoted(m[1])),
		})
	}
	for _, req := range doc.Project.Dependencies {
		addPEP508(req)
	}
	for _, group := range doc.Project.OptionalDependencies {
		for _, req := range group {
			addPEP508(req)
		}
	}

	addPoetry := func(table map[string]any) {
		for name, v := range table {
			if strings.EqualFold(name, "python") {
				continue
			}
			spec := poetrySpec(v)
			deps = append(deps, Descriptor{
				Ecosystem:  PyPI,
				Name:       normalizePyPIName(name),
				Version:    EffectiveVersion(spec),
				Constraint: spec,
				Line:       lineOf(content, name+" ="),
			})
		}
	}
	addPoetry(doc.Tool.Poetry.Dependencies)
	addPoetry(doc.Tool.Poetry.DevDependencies)
	for _, g := range doc.Tool.Poetry.Group {
		addPoetry(g.Dependencies)
	}
	return finalize(deps), nil
}

func poetrySpec(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		if s, ok := t["version"].(string); ok {
			return s
		}
	}
	return ""
}

// PoetryLockParser reads poetry.lock.
type PoetryLockParser struct{}

func (p *PoetryLockParser) Name() string         { return "poetry.lock" }
func (p *PoetryLockParser) Ecosystem() Ecosystem { return PyPI }

func (p *PoetryLockParser) CanParse(filename string) bool {
	return strings.EqualFold(baseName(filename), "poetry.lock")
}

type tomlLock struct {
	Package []struct {
		Name    string `toml:"name"`
		Version string `toml:"version"`
		Source  any    `toml:"source"`
	} `toml:"package"`
}

func (p *PoetryLockParser) Parse(content []byte) ([]Descriptor, error) {
	var lock tomlLock
	if err := toml.Unmarshal(content, &lock); err != nil {
		return nil, err
	}
	deps := make([]Descriptor, 0, len(lock.Package))
	for _, pkg := range lock.Package {
		deps = append(deps, Descriptor{
			Ecosystem:  PyPI,
			Name:       normalizePyPIName(pkg.Name),
			Version:    pkg.Version,
			Constraint: "==" + pkg.Version,
			Line:       lineOf(content, fmt.Sprintf("name = %q", pkg.Name)),
		})
	}
	return finalize(deps), nil
}

// PipfileParser reads the [packages] and [dev-packages] tables of a Pipfile.
type PipfileParser struct{}

func (p *PipfileParser) Name() string         { return "Pipfile" }
func (p *PipfileParser) Ecosystem() Ecosystem { return PyPI }

func (p *PipfileParser) CanParse(filename string) bool {
	return baseName(filename) == "Pipfile"
}

type pipfile struct {
	Packages    map[string]any `toml:"packages"`
	DevPackages map[string]any `toml:"dev-packages"`
}

func (p *PipfileParser) Parse(content []byte) ([]Descriptor, error) {
	var doc pipfile
	if err := toml.Unmarshal(content, &doc); err != nil {
		return nil, err
	}
	var deps []Descriptor
	for _, table := range []map[string]any{doc.Packages, doc.DevPackages} {
		for name, v := range table {
			// Same value shapes as Poetry: "==1.0", "*" or {version = "..."}.
			spec := poetrySpec(v)
			deps = append(deps, Descriptor{
				Ecosystem:  PyPI,
				Name:       normalizePyPIName(name),
				Version:    EffectiveVersion(spec),
				Constraint: spec,
				Line:       lineOf(content, name+" ="),
			})
		}
	}
	return finalize(deps), nil
}

// PipfileLockParser reads the default and develop sections of Pipfile.lock.
type PipfileLockParser struct{}

func (p *PipfileLockParser) Name() string         { return "Pipfile.lock" }
func (p *PipfileLockParser) Ecosystem() Ecosystem { return PyPI }

func (p *PipfileLockParser) CanParse(filename string) bool {
	return baseName(filename) == "Pipfile.lock"
}

type pipfileLock struct {
	Default map[string]struct {
		Version string `json:"version"`
	} `json:"default"`
	Develop map[string]struct {
		Version string `json:"version"`
	} `json:"develop"`
}

func (p *PipfileLockParser) Parse(content []byte) ([]Descriptor, error) {
	var lock pipfileLock
	if err := json.Unmarshal(content, &lock); err != nil {
		return nil, err
	}
	var deps []Descriptor
	add := func(name, spec string) {
		deps = append(deps, Descriptor{
			Ecosystem:  PyPI,
			Name:       normalizePyPIName(name),
			Version:    EffectiveVersion(spec),
			Constraint: spec,
			Line:       lineOf(content, quoted(name)+":"),
		})
	}
	for name, pkg := range lock.Default {
		add(name, pkg.Version)
	}
	for name, pkg := range lock.Develop {
		add(name, pkg.Version)
	}
	return finalize(deps), nil
}

// normalizePyPIName applies PEP 503 normalization.
func normalizePyPIName(name string) string {
	name = strings.ToLower(name)
	return strings.NewReplacer("_", "-", ".", "-").Replace(name)
}
