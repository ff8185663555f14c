package manifest

import (
	"encoding/json"
	"strings"
)

// ComposerJSONParser reads composer.json require and require-dev.
type ComposerJSONParser struct{}

func (p *ComposerJSONParser) Name() string         { return "composer.json" }
func (p *ComposerJSONParser) Ecosystem() Ecosystem { return Packagist }

func (p *ComposerJSONParser) CanParse(filename string) bool {
	return baseName(filename) == "composer.json"
}

type composerJSON struct {
	Require    map[string]string `json:"require"`
	RequireDev map[string]string `json:"require-dev"`
}

func (p *ComposerJSONParser) Parse(content []byte) ([]Descriptor, error) {
	var data composerJSON
	if err := json.Unmarshal(content, &data); err != nil {
		return nil, err
	}
	var deps []Descriptor
	for _, table := range []map[string]string{data.Require, data.RequireDev} {
		for name, spec := range table {
			if isPlatformPackage(name) {
				continue
			}
			deps = append(deps, Descriptor{
				Ecosystem:  Packagist,
				Name:       name,
				Version:    EffectiveVersion(spec),
				Constraint: spec,
				Line:       lineOf(content, quoted(name)),
			})
		}
	}
	return finalize(deps), nil
}

// ComposerLockParser reads composer.lock packages and packages-dev.
type ComposerLockParser struct{}

func (p *ComposerLockParser) Name() string         { return "composer.lock" }
func (p *ComposerLockParser) Ecosystem() Ecosystem { return Packagist }

func (p *ComposerLockParser) CanParse(filename string) bool {
	return baseName(filename) == "composer.lock"
}

type composerLock struct {
	Packages []struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"packages"`
	PackagesDev []struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"packages-dev"`
}

func (p *ComposerLockParser) Parse(content []byte) ([]Descriptor, error) {
	var lock composerLock
	if err := json.Unmarshal(content, &lock); err != nil {
		return nil, err
	}
	var deps []Descriptor
	for _, pkg := range append(lock.Packages, lock.PackagesDev...) {
		deps = append(deps, Descriptor{
			Ecosystem:  Packagist,
			Name:       pkg.Name,
			Version:    strings.TrimPrefix(pkg.Version, "v"),
			Constraint: pkg.Version,
			Line:       lineOf(content, `"name": `+quoted(pkg.Name)),
		})
	}
	return finalize(deps), nil
}

// isPlatformPackage matches php itself and extensions, which Packagist
// does not host.
func isPlatformPackage(name string) bool {
	return name == "php" || strings.HasPrefix(name, "ext-") || strings.HasPrefix(name, "lib-") ||
		name == "composer-plugin-api"
}
