package engine

import (
	"context"
	"fmt"
	"strings"

	"codebot/internal/advisory"
	"codebot/internal/finding"
	"codebot/internal/manifest"
)

// DependencyOptions configures advisory lookups.
type DependencyOptions struct {
	// Client is the advisory database. Nil disables the engine.
	Client     advisory.Client
	Thresholds finding.Thresholds
}

// DependencyEngine parses manifests and reports every advisory that
// affects a declared version.
type DependencyEngine struct {
	client     advisory.Client
	thresholds finding.Thresholds
}

func NewDependencyEngine(opts DependencyOptions) *DependencyEngine {
	t := opts.Thresholds
	if t == (finding.Thresholds{}) {
		t = finding.DefaultThresholds
	}
	return &DependencyEngine{client: opts.Client, thresholds: t}
}

func (e *DependencyEngine) Name() string         { return NameDependency }
func (e *DependencyEngine) Extensions() []string { return nil }

func (e *DependencyEngine) Applies(filePath string) bool {
	return e.client != nil && manifest.IsManifest(filePath)
}

// Scan returns a *manifest.ParseError for malformed manifests and an error
// wrapping advisory.ErrIncomplete when some lookups failed; findings for
// the lookups that succeeded are returned either way.
func (e *DependencyEngine) Scan(ctx context.Context, filePath string, content []byte) ([]finding.Finding, error) {
	deps, err := manifest.Parse(filePath, content)
	if err != nil {
		return nil, err
	}
	if len(deps) == 0 || e.client == nil {
		return nil, nil
	}

	results, lookupErr := e.client.Lookup(ctx, deps)
	src := lines(content, 4096)

	var out []finding.Finding
	for _, res := range results {
		for _, adv := range res.Advisories {
			out = append(out, e.toFinding(filePath, src, res.Descriptor, adv))
		}
	}
	if lookupErr != nil {
		return out, fmt.Errorf("%s: %w", filePath, lookupErr)
	}
	return out, nil
}

// Severity comes from the CVSS score when there is one, then the
// database's own label, then Medium.
func (e *DependencyEngine) severity(adv advisory.Advisory) finding.Severity {
	if adv.Score > 0 {
		return e.thresholds.FromScore(adv.Score)
	}
	if s, err := finding.ParseSeverity(adv.Severity); err == nil {
		return s
	}
	return finding.Medium
}

func (e *DependencyEngine) toFinding(filePath string, src []string, d manifest.Descriptor, adv advisory.Advisory) finding.Finding {
	sev := e.severity(adv)
	summary := adv.Summary
	if summary == "" {
		summary = "Known vulnerability " + adv.ID
	}

	desc := fmt.Sprintf("%s %s is affected by %s: %s", d.Name, d.Version, adv.ID, summary)
	if adv.Affected != "" {
		desc += fmt.Sprintf(" (affected: %s)", adv.Affected)
	}

	f := finding.Finding{
		Title:            fmt.Sprintf("Vulnerable Dependency: %s@%s (%s)", d.Name, d.Version, adv.ID),
		Description:      desc,
		FilePath:         filePath,
		Line:             d.Line,
		Severity:         sev,
		Confidence:       finding.ConfidenceHigh,
		Category:         finding.Dependency,
		Impact:           dependencyImpact[sev],
		RootCause:        fmt.Sprintf("The package %s version %s contains a known security vulnerability.", d.Name, d.Version),
		SuggestedFix:     upgradeAdvice(d, adv.Fixed),
		SuggestedVersion: adv.Fixed,
		ReferenceID:      adv.ReferenceID(),
		Scanner:          NameDependency,
		RuleID:           adv.ID,
		CodeSnippet:      snippet(srcLine(src, d.Line)),
	}
	if len(adv.References) > 0 {
		f.Description += " See " + adv.References[0]
	}
	return f
}

var dependencyImpact = map[finding.Severity]string{
	finding.Critical: "A critical vulnerability that is likely exploitable remotely, possibly leading to full compromise.",
	finding.High:     "A serious vulnerability that could lead to data exposure or code execution.",
	finding.Medium:   "A vulnerability that could be exploited under specific conditions.",
	finding.Low:      "A minor vulnerability with limited impact.",
}

// upgradeAdvice names the fixed version and the ecosystem's command for
// installing it.
func upgradeAdvice(d manifest.Descriptor, fixed string) string {
	if fixed == "" {
		return fmt.Sprintf("Check for available updates to %s. No fixed version is published yet; consider replacing the package or mitigating the issue.", d.Name)
	}
	var cmd string
	switch d.Ecosystem {
	case manifest.PyPI:
		cmd = fmt.Sprintf("Run: pip install '%s>=%s'", d.Name, fixed)
	case manifest.NPM:
		cmd = fmt.Sprintf("Run: npm install %s@%s", d.Name, fixed)
	case manifest.Go:
		cmd = fmt.Sprintf("Run: go get %s@%s", d.Name, goVersion(fixed))
	case manifest.CratesIO:
		cmd = fmt.Sprintf("Update Cargo.toml: %s = \"%s\", then run cargo update -p %s", d.Name, fixed, d.Name)
	case manifest.RubyGems:
		cmd = fmt.Sprintf("Update the Gemfile to '~> %s' and run: bundle update %s", fixed, d.Name)
	case manifest.Packagist:
		cmd = fmt.Sprintf("Run: composer require %s:^%s", d.Name, fixed)
	case manifest.Maven:
		cmd = fmt.Sprintf("Update the %s version to %s in pom.xml or build.gradle", d.Name, fixed)
	default:
		cmd = "Update the version in " + base(d.Manifest)
	}
	return fmt.Sprintf("Upgrade %s from version %s to %s or later. %s", d.Name, d.Version, fixed, cmd)
}

func goVersion(v string) string {
	if strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}
