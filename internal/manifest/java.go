package manifest

import (
	"encoding/xml"
	"regexp"
	"strings"
)

// PomParser reads Maven pom.xml dependencies, resolving ${property}
// references against the pom's own <properties>. Versions that stay
// unresolved (inherited from a parent or BOM) are dropped.
type PomParser struct{}

func (p *PomParser) Name() string         { return "pom.xml" }
func (p *PomParser) Ecosystem() Ecosystem { return Maven }

func (p *PomParser) CanParse(filename string) bool {
	return baseName(filename) == "pom.xml"
}

type pomDependency struct {
	GroupID    string `xml:"groupId"`
	ArtifactID string `xml:"artifactId"`
	Version    string `xml:"version"`
}

type pomProject struct {
	Version    string `xml:"version"`
	Properties struct {
		Entries []struct {
			XMLName xml.Name
			Value   string `xml:",chardata"`
		} `xml:",any"`
	} `xml:"properties"`
	Dependencies         []pomDependency `xml:"dependencies>dependency"`
	DependencyManagement []pomDependency `xml:"dependencyManagement>dependencies>dependency"`
}

var pomProperty = regexp.MustCompile(`\$\{([^}]+)\}`)

func (p *PomParser) Parse(content []byte) ([]Descriptor, error) {
	var project pomProject
	if err := xml.Unmarshal(content, &project); err != nil {
		return nil, err
	}

	props := map[string]string{"project.version": project.Version}
	for _, e := range project.Properties.Entries {
		props[e.XMLName.Local] = strings.TrimSpace(e.Value)
	}
	resolve := func(v string) string {
		return pomProperty.ReplaceAllStringFunc(v, func(ref string) string {
			if val, ok := props[ref[2:len(ref)-1]]; ok {
				return val
			}
			return ref
		})
	}

	var deps []Descriptor
	for _, d := range append(project.Dependencies, project.DependencyManagement...) {
		version := resolve(strings.TrimSpace(d.Version))
		if version == "" || strings.Contains(version, "${") {
			continue
		}
		deps = append(deps, Descriptor{
			Ecosystem:  Maven,
			Name:       strings.TrimSpace(d.GroupID) + ":" + strings.TrimSpace(d.ArtifactID),
			Version:    mavenVersion(version),
			Constraint: version,
			Line:       lineOf(content, "<artifactId>"+strings.TrimSpace(d.ArtifactID)+"</artifactId>"),
		})
	}
	return finalize(deps), nil
}

// mavenVersion reduces a range such as [1.2,2.0) to its lower bound.
func mavenVersion(v string) string {
	if strings.HasPrefix(v, "[") || strings.HasPrefix(v, "(") {
		inner := strings.Trim(v, "[]()")
		if i := strings.Index(inner, ","); i >= 0 {
			inner = inner[:i]
		}
		return strings.TrimSpace(inner)
	}
	return v
}

var gradleDependency = regexp.MustCompile(`^\s*(?:implementation|api|compile|compileOnly|runtimeOnly|runtime|testImplementation|testCompile|testRuntimeOnly|annotationProcessor|kapt|classpath)\s*\(?\s*["']([^:"'\s]+):([^:"'\s]+):([^:"'\s@]+)(?:@[^"']*)?["']`)

// GradleParser reads string-notation dependencies from build.gradle and
// build.gradle.kts.
type GradleParser struct{}

func (p *GradleParser) Name() string         { return "build.gradle" }
func (p *GradleParser) Ecosystem() Ecosystem { return Maven }

func (p *GradleParser) CanParse(filename string) bool {
	name := baseName(filename)
	return name == "build.gradle" || name == "build.gradle.kts"
}

func (p *GradleParser) Parse(content []byte) ([]Descriptor, error) {
	var deps []Descriptor
	for i, line := range strings.Split(string(content), "\n") {
		m := gradleDependency.FindStringSubmatch(line)
		if m == nil || strings.Contains(m[3], "$") {
			continue
		}
		deps = append(deps, Descriptor{
			Ecosystem:  Maven,
			Name:       m[1] + ":" + m[2],
			Version:    strings.TrimSuffix(m[3], "+"),
			Constraint: m[3],
			Line:       i + 1,
		})
	}
	return finalize(deps), nil
}
