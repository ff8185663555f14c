package manifest

import (
	"bufio"
	"bytes"
	"strings"
)

// GoModParser parses go.mod require directives, single-line and block form.
type GoModParser struct{}

func (p *GoModParser) Name() string         { return "go.mod" }
func (p *GoModParser) Ecosystem() Ecosystem { return Go }

func (p *GoModParser) CanParse(filename string) bool {
	return baseName(filename) == "go.mod"
}

func (p *GoModParser) Parse(content []byte) ([]Descriptor, error) {
	var deps []Descriptor
	scanner := bufio.NewScanner(bytes.NewReader(content))
	inRequire := false
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if i := strings.Index(line, "//"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		switch {
		case line == "require (":
			inRequire = true
			continue
		case line == ")" && inRequire:
			inRequire = false
			continue
		}

		var parts []string
		if strings.HasPrefix(line, "require ") {
			parts = strings.Fields(strings.TrimPrefix(line, "require "))
		} else if inRequire {
			parts = strings.Fields(line)
		}
		// Indirect requirements stay in: they are linked into the binary
		// just the same.
		if len(parts) >= 2 {
			deps = append(deps, goDescriptor(parts[0], parts[1], lineNo))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return finalize(deps), nil
}

// GoSumParser parses go.sum. Each module version appears twice (module
// hash and go.mod hash); finalize collapses the pair.
type GoSumParser struct{}

func (p *GoSumParser) Name() string         { return "go.sum" }
func (p *GoSumParser) Ecosystem() Ecosystem { return Go }

func (p *GoSumParser) CanParse(filename string) bool {
	return baseName(filename) == "go.sum"
}

func (p *GoSumParser) Parse(content []byte) ([]Descriptor, error) {
	var deps []Descriptor
	scanner := bufio.NewScanner(bytes.NewReader(content))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		parts := strings.Fields(scanner.Text())
		if len(parts) != 3 || !strings.HasPrefix(parts[2], "h1:") {
			continue
		}
		version := strings.TrimSuffix(parts[1], "/go.mod")
		deps = append(deps, goDescriptor(parts[0], version, lineNo))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return finalize(deps), nil
}

// goDescriptor strips the "v" prefix and +incompatible suffix; OSV records
// Go versions without them.
func goDescriptor(module, version string, line int) Descriptor {
	v := strings.TrimPrefix(version, "v")
	v = strings.TrimSuffix(v, "+incompatible")
	return Descriptor{
		Ecosystem:  Go,
		Name:       module,
		Version:    v,
		Constraint: version,
		Line:       line,
	}
}
