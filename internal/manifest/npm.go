package manifest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
)

// PackageJSONParser reads package.json dependencies and devDependencies.
type PackageJSONParser struct{}

func (p *PackageJSONParser) Name() string         { return "package.json" }
func (p *PackageJSONParser) Ecosystem() Ecosystem { return NPM }

func (p *PackageJSONParser) CanParse(filename string) bool {
	return baseName(filename) == "package.json"
}

type packageJSON struct {
	Dependencies         map[string]string `json:"dependencies"`
	DevDependencies      map[string]string `json:"devDependencies"`
	OptionalDependencies map[string]string `json:"optionalDependencies"`
}

func (p *PackageJSONParser) Parse(content []byte) ([]Descriptor, error) {
	var data packageJSON
	if err := json.Unmarshal(content, &data); err != nil {
		return nil, err
	}

	var deps []Descriptor
	for _, table := range []map[string]string{data.Dependencies, data.DevDependencies, data.OptionalDependencies} {
		for name, spec := range table {
			deps = append(deps, Descriptor{
				Ecosystem:  NPM,
				Name:       name,
				Version:    EffectiveVersion(spec),
				Constraint: spec,
				Line:       lineOf(content, quoted(name)),
			})
		}
	}
	return finalize(deps), nil
}

// PackageLockParser reads package-lock.json and npm-shrinkwrap.json in
// both the v1 nested "dependencies" layout and the v2/v3 "packages" map.
type PackageLockParser struct{}

func (p *PackageLockParser) Name() string         { return "package-lock.json" }
func (p *PackageLockParser) Ecosystem() Ecosystem { return NPM }

func (p *PackageLockParser) CanParse(filename string) bool {
	name := baseName(filename)
	return name == "package-lock.json" || name == "npm-shrinkwrap.json"
}

type lockDependency struct {
	Version      string                    `json:"version"`
	Dependencies map[string]lockDependency `json:"dependencies"`
}

type packageLock struct {
	LockfileVersion int                       `json:"lockfileVersion"`
	Packages        map[string]lockDependency `json:"packages"`
	Dependencies    map[string]lockDependency `json:"dependencies"`
}

func (p *PackageLockParser) Parse(content []byte) ([]Descriptor, error) {
	var lock packageLock
	if err := json.Unmarshal(content, &lock); err != nil {
		return nil, err
	}

	var deps []Descriptor
	if len(lock.Packages) > 0 {
		for key, pkg := range lock.Packages {
			// "" is the root project; nested entries look like
			// node_modules/a/node_modules/b.
			i := strings.LastIndex(key, "node_modules/")
			if i < 0 {
				continue
			}
			name := key[i+len("node_modules/"):]
			deps = append(deps, lockDescriptor(content, name, pkg.Version))
		}
		return finalize(deps), nil
	}

	var walk func(map[string]lockDependency)
	walk = func(m map[string]lockDependency) {
		for name, dep := range m {
			deps = append(deps, lockDescriptor(content, name, dep.Version))
			walk(dep.Dependencies)
		}
	}
	walk(lock.Dependencies)
	return finalize(deps), nil
}

func lockDescriptor(content []byte, name, version string) Descriptor {
	return Descriptor{
		Ecosystem:  NPM,
		Name:       name,
		Version:    EffectiveVersion(version),
		Constraint: version,
		Line:       lineOf(content, "node_modules/"+name+`"`),
	}
}

// YarnLockParser reads yarn.lock (v1 and berry). The format is line based:
// an unindented header listing one or more "name@range" specifiers, then
// an indented version field.
type YarnLockParser struct{}

func (p *YarnLockParser) Name() string         { return "yarn.lock" }
func (p *YarnLockParser) Ecosystem() Ecosystem { return NPM }

func (p *YarnLockParser) CanParse(filename string) bool {
	return baseName(filename) == "yarn.lock"
}

func (p *YarnLockParser) Parse(content []byte) ([]Descriptor, error) {
	var deps []Descriptor
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var current string
	headerLine := 0
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if !strings.HasPrefix(raw, " ") && strings.HasSuffix(trimmed, ":") {
			current = yarnPackageName(strings.TrimSuffix(trimmed, ":"))
			headerLine = lineNo
			continue
		}
		if current == "" {
			continue
		}
		if v, ok := yarnVersion(trimmed); ok {
			deps = append(deps, Descriptor{
				Ecosystem:  NPM,
				Name:       current,
				Version:    EffectiveVersion(v),
				Constraint: v,
				Line:       headerLine,
			})
			current = ""
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return finalize(deps), nil
}

// yarnPackageName extracts the package name from a header such as
// `"@babel/core@^7.0.0", "@babel/core@^7.1.0"`.
func yarnPackageName(header string) string {
	first := strings.TrimSpace(strings.Split(header, ",")[0])
	first = strings.Trim(first, `"`)
	at := strings.LastIndex(first, "@")
	if at <= 0 {
		return ""
	}
	name := first[:at]
	// berry writes "name@npm:^1.0.0".
	return strings.TrimSuffix(name, "@npm")
}

func yarnVersion(line string) (string, bool) {
	for _, prefix := range []string{"version ", "version: "} {
		if strings.HasPrefix(line, prefix) {
			return strings.Trim(strings.TrimSpace(strings.TrimPrefix(line, prefix)), `"`), true
		}
	}
	return "", false
}
