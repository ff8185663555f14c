package manifest

import (
	"fmt"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// CargoTomlParser reads Cargo.toml dependency tables.
type CargoTomlParser struct{}

func (p *CargoTomlParser) Name() string         { return "Cargo.toml" }
func (p *CargoTomlParser) Ecosystem() Ecosystem { return CratesIO }

func (p *CargoTomlParser) CanParse(filename string) bool {
	return baseName(filename) == "Cargo.toml"
}

type cargoManifest struct {
	Dependencies      map[string]any `toml:"dependencies"`
	DevDependencies   map[string]any `toml:"dev-dependencies"`
	BuildDependencies map[string]any `toml:"build-dependencies"`
	Workspace         struct {
		Dependencies map[string]any `toml:"dependencies"`
	} `toml:"workspace"`
}

// cargoRequirement makes Cargo's implicit caret explicit: "1.0" means ^1.0.
func cargoRequirement(spec string) string {
	if spec != "" && spec[0] >= '0' && spec[0] <= '9' {
		return "^" + spec
	}
	return spec
}

func (p *CargoTomlParser) Parse(content []byte) ([]Descriptor, error) {
	var m cargoManifest
	if err := toml.Unmarshal(content, &m); err != nil {
		return nil, err
	}

	var deps []Descriptor
	for _, table := range []map[string]any{m.Dependencies, m.DevDependencies, m.BuildDependencies, m.Workspace.Dependencies} {
		for name, v := range table {
			spec, crate := cargoSpec(name, v)
			deps = append(deps, Descriptor{
				Ecosystem:  CratesIO,
				Name:       crate,
				Version:    EffectiveVersion(cargoRequirement(spec)),
				Constraint: spec,
				Line:       lineOf(content, name+" ="),
			})
		}
	}
	return finalize(deps), nil
}

// cargoSpec handles `serde = "1.0"` and `serde = { version = "1", package = "serde_x" }`.
// Path and git dependencies have no registry version.
func cargoSpec(name string, v any) (spec, crate string) {
	crate = name
	switch t := v.(type) {
	case string:
		return t, crate
	case map[string]any:
		if pkg, ok := t["package"].(string); ok {
			crate = pkg
		}
		if _, ok := t["git"]; ok {
			return "", crate
		}
		if _, ok := t["path"]; ok {
			return "", crate
		}
		if s, ok := t["version"].(string); ok {
			return s, crate
		}
	}
	return "", crate
}

// CargoLockParser reads Cargo.lock [[package]] entries.
type CargoLockParser struct{}

func (p *CargoLockParser) Name() string         { return "Cargo.lock" }
func (p *CargoLockParser) Ecosystem() Ecosystem { return CratesIO }

func (p *CargoLockParser) CanParse(filename string) bool {
	return baseName(filename) == "Cargo.lock"
}

func (p *CargoLockParser) Parse(content []byte) ([]Descriptor, error) {
	var lock tomlLock
	if err := toml.Unmarshal(content, &lock); err != nil {
		return nil, err
	}
	deps := make([]Descriptor, 0, len(lock.Package))
	for _, pkg := range lock.Package {
		// Workspace members have no source; they are not published crates.
		if pkg.Source == nil {
			continue
		}
		if src, ok := pkg.Source.(string); ok && !strings.HasPrefix(src, "registry+") && !strings.HasPrefix(src, "sparse+") {
			continue
		}
		deps = append(deps, Descriptor{
			Ecosystem:  CratesIO,
			Name:       pkg.Name,
			Version:    pkg.Version,
			Constraint: "=" + pkg.Version,
			Line:       lineOf(content, fmt.Sprintf("name = %q", pkg.Name)),
		})
	}
	return finalize(deps), nil
}
