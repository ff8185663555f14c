package engine

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"codebot/internal/finding"
)

type ciPlatform int

const (
	ciNone ciPlatform = iota
	ciGitHub
	ciGitLab
	ciCircle
	ciTravis
	ciJenkins
	ciOther
)

func classifyCI(filePath string) ciPlatform {
	p := strings.ToLower(strings.ReplaceAll(filePath, `\`, "/"))
	name := base(p)
	yml := strings.HasSuffix(p, ".yml") || strings.HasSuffix(p, ".yaml")
	switch {
	case yml && (strings.HasPrefix(p, ".github/workflows/") || strings.Contains(p, "/.github/workflows/")):
		return ciGitHub
	case strings.HasPrefix(name, ".gitlab-ci") && yml:
		return ciGitLab
	case (strings.HasPrefix(p, ".circleci/") || strings.Contains(p, "/.circleci/")) && yml:
		return ciCircle
	case strings.HasPrefix(name, ".travis") && yml:
		return ciTravis
	case name == "jenkinsfile" || strings.HasPrefix(name, "jenkinsfile."):
		return ciJenkins
	case yml && (strings.HasPrefix(name, "azure-pipelines") || strings.HasPrefix(name, "bitbucket-pipelines")):
		return ciOther
	}
	return ciNone
}

var (
	ruleGHAInjection = rule{
		ID: "GHA001", Title: "Script Injection in Workflow",
		Description: "Attacker-controlled event data is expanded directly inside a run script.",
		Severity:    finding.Critical, Confidence: finding.ConfidenceHigh, Category: finding.CICD,
		Impact:      "Anyone who can open an issue or pull request can run commands with the workflow's token and secrets.",
		RootCause:   "${{ }} expressions are substituted into the script before the shell parses it.",
		Fix:         "Pass the value through an environment variable (env: TITLE: ${{ github.event.issue.title }}) and reference \"$TITLE\" in the script.",
		ReferenceID: "CWE-78",
	}
	ruleGHATrigger = rule{
		ID: "GHA002", Title: "Dangerous Workflow Trigger",
		Description: "The workflow runs with repository secrets on events that untrusted users can cause.",
		Severity:    finding.High, Confidence: finding.ConfidenceMedium, Category: finding.CICD,
		Impact:      "Code or data from forks can reach a context with write tokens and secrets.",
		RootCause:   "pull_request_target, issue_comment or workflow_run runs in the base repository context.",
		Fix:         "Use pull_request where possible, and never check out or run fork code in privileged workflows.",
		ReferenceID: "CWE-863",
	}
	ruleGHASecretInRun = rule{
		ID: "GHA003", Title: "Secret Expanded in Run Script",
		Description: "A secret is substituted directly into a shell command.",
		Severity:    finding.Medium, Confidence: finding.ConfidenceMedium, Category: finding.CICD,
		Impact:      "The secret can leak through command echo, process listings or error output.",
		RootCause:   "${{ secrets.* }} is used inline in run.",
		Fix:         "Map the secret to an environment variable with env: and reference the variable.",
		ReferenceID: "CWE-532",
	}
	ruleGHAUnpinned = rule{
		ID: "GHA004", Title: "Unpinned Action Reference",
		Description: "A third-party action is referenced by a mutable branch or tag.",
		Severity:    finding.Medium, Confidence: finding.ConfidenceHigh, Category: finding.CICD,
		Impact:      "A compromised or retagged action runs with the workflow's permissions.",
		RootCause:   "The uses: reference is not a full commit SHA.",
		Fix:         "Pin the action to a full 40-character commit SHA and track updates with Dependabot.",
		ReferenceID: "CWE-829",
	}
	ruleGHAPermissions = rule{
		ID: "GHA005", Title: "Excessive Workflow Permissions",
		Description: "The workflow token is granted write access.",
		Severity:    finding.Low, Confidence: finding.ConfidenceMedium, Category: finding.CICD,
		Impact:      "Any step that is compromised can push code or modify releases.",
		RootCause:   "Permissions are broader than the jobs need.",
		Fix:         "Set permissions: contents: read at the top level and grant writes per job.",
		ReferenceID: "CWE-250",
	}
	ruleGHAUntrustedCheckout = rule{
		ID: "GHA006", Title: "Untrusted Checkout in Privileged Workflow",
		Description: "A pull_request_target workflow checks out the pull request head.",
		Severity:    finding.Critical, Confidence: finding.ConfidenceHigh, Category: finding.CICD,
		Impact:      "Fork code runs with access to secrets and a write token.",
		RootCause:   "actions/checkout is given the head ref or SHA of the pull request.",
		Fix:         "Check out the base ref only, or split into an unprivileged pull_request workflow.",
		ReferenceID: "CWE-829",
	}
	ruleGitLabUntrusted = rule{
		ID: "GITLAB001", Title: "Untrusted CI Variable in Script",
		Description: "A script expands a variable that contributors control.",
		Severity:    finding.High, Confidence: finding.ConfidenceMedium, Category: finding.CICD,
		Impact:      "Branch names or merge request titles can inject shell commands.",
		RootCause:   "Untrusted predefined variables are used unquoted in scripts.",
		Fix:         "Quote the variable and validate its format before use.",
		ReferenceID: "CWE-78",
	}
	ruleGitLabAllowFailure = rule{
		ID: "GITLAB002", Title: "Security Job Allowed to Fail",
		Description: "A security job is configured with allow_failure: true.",
		Severity:    finding.Medium, Confidence: finding.ConfidenceMedium, Category: finding.CICD,
		Impact:      "Security checks can fail without blocking the pipeline.",
		RootCause:   "allow_failure is enabled on a scanning job.",
		Fix:         "Remove allow_failure from security-critical jobs.",
		ReferenceID: "CWE-693",
	}
	ruleJenkinsBypass = rule{
		ID: "JENKINS001", Title: "Script Security Bypass",
		Description: "The Jenkinsfile uses annotations that escape the script sandbox.",
		Severity:    finding.High, Confidence: finding.ConfidenceMedium, Category: finding.CICD,
		Impact:      "Pipeline code can run outside the Groovy sandbox.",
		RootCause:   "@NonCPS or @Grab is used.",
		Fix:         "Avoid @NonCPS and @Grab, or move the logic into an approved shared library.",
		ReferenceID: "CWE-693",
	}
	ruleJenkinsCredentials = rule{
		ID: "JENKINS002", Title: "Credentials in Pipeline Definition",
		Description: "A credential appears to be hardcoded in the Jenkinsfile.",
		Severity:    finding.Critical, Confidence: finding.ConfidenceMedium, Category: finding.Secret,
		Impact:      "The credential is exposed to everyone with repository access and in build logs.",
		RootCause:   "The value is written inline instead of using the credentials store.",
		Fix:         "Use withCredentials([string(credentialsId: 'id', variable: 'SECRET')]).",
		ReferenceID: "CWE-798",
	}
	ruleJenkinsScript = rule{
		ID: "JENKINS003", Title: "Unsafe Script Block",
		Description: "A script block evaluates code or interpolates variables into shell commands.",
		Severity:    finding.Medium, Confidence: finding.ConfidenceLow, Category: finding.CICD,
		Impact:      "Interpolated values can inject commands into the build agent.",
		RootCause:   "Groovy string interpolation inside sh or evaluate.",
		Fix:         "Use single-quoted sh strings and pass values through environment variables.",
		ReferenceID: "CWE-94",
	}
	ruleCircleFingerprint = rule{
		ID: "CIRCLE001", Title: "SSH Fingerprint in Configuration",
		Description: "An SSH key fingerprint is hardcoded.",
		Severity:    finding.Low, Confidence: finding.ConfidenceHigh, Category: finding.CICD,
		Impact:      "The fingerprint reveals which deploy key the pipeline can use.",
		RootCause:   "The fingerprint is stored in the config file.",
		Fix:         "Keep deploy key selection in a CircleCI context.",
		ReferenceID: "CWE-312",
	}
	ruleTravisSecure = rule{
		ID: "TRAVIS001", Title: "Encrypted Variable in Configuration",
		Description: "A secure environment variable is stored in the Travis configuration.",
		Severity:    finding.Low, Confidence: finding.ConfidenceLow, Category: finding.CICD,
		Impact:      "Encrypted values can still be exposed in logs when echoed by scripts.",
		RootCause:   "secure: values are embedded in the repository.",
		Fix:         "Make sure scripts never print the decrypted value, or move it to repository settings.",
		ReferenceID: "CWE-312",
	}
	ruleCircleOrb = rule{
		ID: "CIRCLE002", Title: "Unpinned Orb Reference",
		Description: "An orb is referenced without an exact version.",
		Severity:    finding.Medium, Confidence: finding.ConfidenceHigh, Category: finding.CICD,
		Impact:      "A new orb release runs in the pipeline with its contexts and secrets without review.",
		RootCause:   "The orb uses @volatile, a partial version or no version at all.",
		Fix:         "Pin the orb to a full semantic version such as circleci/node@5.1.0.",
		ReferenceID: "CWE-829",
	}
	rulePipelineImage = rule{
		ID: "CICD003", Title: "Unpinned Pipeline Image",
		Description: "A job image uses the latest tag or no tag.",
		Severity:    finding.Medium, Confidence: finding.ConfidenceHigh, Category: finding.CICD,
		Impact:      "Jobs silently run a different, possibly compromised, image with the pipeline's secrets.",
		RootCause:   "The image: reference names a mutable tag.",
		Fix:         "Pin a version tag or a digest, for example node:20.11-alpine@sha256:...",
		ReferenceID: "CWE-829",
	}
	rulePipelineCredentials = rule{
		ID: "CICD004", Title: "Credentials in Pipeline Definition",
		Description: "A credential appears to be hardcoded in the pipeline configuration.",
		Severity:    finding.Critical, Confidence: finding.ConfidenceMedium, Category: finding.Secret,
		Impact:      "The credential is exposed to everyone with repository access and in build logs.",
		RootCause:   "The value is written inline instead of using the platform's secret store.",
		Fix:         "Store the value as a protected CI variable or secret and reference it by name.",
		ReferenceID: "CWE-798",
	}
	ruleSSLDisabled = rule{
		ID: "CICD002", Title: "TLS Verification Disabled in Pipeline",
		Description: "A pipeline command turns off certificate verification.",
		Severity:    finding.High, Confidence: finding.ConfidenceHigh, Category: finding.CICD,
		Impact:      "Downloads and pushes can be intercepted and modified.",
		RootCause:   "Verification was disabled to work around a certificate problem.",
		Fix:         "Fix the certificate problem and remove the insecure flag.",
		ReferenceID: "CWE-295",
	}
)

var (
	ghaUntrustedInput = regexp.MustCompile(`\$\{\{\s*(?:github\.event\.(?:issue|pull_request|comment|review|review_comment|discussion|discussion_comment|pages\.\w+|head_commit|commits\.\w+)\.(?:title|body|message|page_name|head\.ref|head\.label|author\.(?:name|email))|github\.event\.inputs\.[\w-]+|inputs\.[\w-]+|github\.event\.client_payload[\w.-]*|github\.head_ref)\s*\}\}`)
	ghaSecret         = regexp.MustCompile(`\$\{\{\s*secrets\.[\w-]+\s*\}\}`)
	ghaHeadRef        = regexp.MustCompile(`github\.event\.pull_request\.head\.(?:ref|sha)|github\.head_ref`)
	commitSHA         = regexp.MustCompile(`^[0-9a-f]{40}$`)
	dangerousTriggers = map[string]bool{"pull_request_target": true, "issue_comment": true, "workflow_run": true}

	gitlabUntrusted = regexp.MustCompile(`\$\{?CI_(?:COMMIT_(?:REF_NAME|BRANCH|TAG|MESSAGE|TITLE|DESCRIPTION)|MERGE_REQUEST_(?:TITLE|DESCRIPTION|SOURCE_BRANCH_NAME))\b`)
	securityJobName = regexp.MustCompile(`(?i)security|sast|dast|scan|audit|secret[_-]?detection|dependency`)

	jenkinsBypass      = regexp.MustCompile(`@(?:NonCPS|Grab)\b`)
	inlineCredential   = regexp.MustCompile(`(?i)(?:password|passwd|secret|token|api[_-]?key)\s*[=:]\s*["'][^"'$]{8,}["']`)
	jenkinsScript      = regexp.MustCompile(`\b(?:evaluate|execute)\s*\(|\bsh\s*\(?\s*"[^"]*\$\{?\w`)
	circleFingerprint  = regexp.MustCompile(`^\s*-\s*["']?(?:[a-f0-9]{2}:){15}[a-f0-9]{2}["']?\s*$|SHA256:[A-Za-z0-9+/]{43}`)
	travisSecure       = regexp.MustCompile(`^\s*(?:-\s*)?secure:\s*["']?[A-Za-z0-9+/=]{20,}`)
	exactOrbVersion    = regexp.MustCompile(`^\d+\.\d+\.\d+$`)
	sslDisabled        = regexp.MustCompile(`(?:--insecure\b|--no-check-certificate\b|\s-k\s|GIT_SSL_NO_VERIFY\s*[=:]\s*["']?(?:true|1)|NODE_TLS_REJECT_UNAUTHORIZED\s*[=:]\s*["']?0|(?i:sslverify)\s*=?\s*false)`)
)

// CICDEngine checks pipeline definitions. GitHub Actions and GitLab CI are
// walked as YAML, job images and orbs are checked on every YAML platform,
// and the rest uses line rules.
type CICDEngine struct{}

func NewCICDEngine() *CICDEngine { return &CICDEngine{} }

func (e *CICDEngine) Name() string         { return NameCICD }
func (e *CICDEngine) Extensions() []string { return nil }

func (e *CICDEngine) Applies(filePath string) bool { return classifyCI(filePath) != ciNone }

func (e *CICDEngine) Scan(ctx context.Context, filePath string, content []byte) ([]finding.Finding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src := lines(content, 4096)
	var (
		out []finding.Finding
		err error
	)
	add := func(r rule, line int) {
		out = append(out, r.at(NameCICD, filePath, line, srcLine(src, line)))
	}

	platform := classifyCI(filePath)
	switch platform {
	case ciGitHub:
		err = scanWorkflow(content, add)
	case ciGitLab:
		err = scanGitLab(content, add)
	case ciJenkins:
		for i, l := range src {
			if isComment(l, ".groovy") {
				continue
			}
			if jenkinsBypass.MatchString(l) {
				add(ruleJenkinsBypass, i+1)
			}
			if jenkinsScript.MatchString(l) {
				add(ruleJenkinsScript, i+1)
			}
		}
	case ciCircle:
		inFingerprints := false
		for i, l := range src {
			if strings.Contains(l, "fingerprints:") {
				inFingerprints = true
				continue
			}
			if inFingerprints && circleFingerprint.MatchString(l) {
				add(ruleCircleFingerprint, i+1)
				continue
			}
			inFingerprints = false
		}
	case ciTravis:
		for i, l := range src {
			if travisSecure.MatchString(l) {
				add(ruleTravisSecure, i+1)
			}
		}
	}

	if platform != ciJenkins && err == nil {
		err = scanPipelineImages(content, platform, add)
	}

	credentials := rulePipelineCredentials
	if platform == ciJenkins {
		credentials = ruleJenkinsCredentials
	}
	// Shell hygiene and inline credentials apply to every platform.
	for i, l := range src {
		if isComment(l, filePath) {
			continue
		}
		if inlineCredential.MatchString(l) && !falsePositiveWords.MatchString(l) {
			add(credentials, i+1)
		}
		if pipeToShell.MatchString(l) {
			add(rulePipeShell, i+1)
		}
		if sslDisabled.MatchString(l + " ") {
			add(ruleSSLDisabled, i+1)
		}
	}
	return dedupe(out), err
}

// GitHub Actions

func scanWorkflow(content []byte, add func(rule, int)) error {
	var doc yaml.Node
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return fmt.Errorf("invalid workflow: %w", err)
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil
	}
	root := doc.Content[0]

	privileged := checkTriggers(mappingValue(root, "on"), add)
	checkWorkflowPermissions(mappingValue(root, "permissions"), add)

	jobs := mappingValue(root, "jobs")
	if jobs == nil || jobs.Kind != yaml.MappingNode {
		return nil
	}
	for i := 1; i < len(jobs.Content); i += 2 {
		job := jobs.Content[i]
		checkWorkflowPermissions(mappingValue(job, "permissions"), add)
		if uses := mappingValue(job, "uses"); uses != nil {
			checkActionRef(uses, add)
		}
		steps := mappingValue(job, "steps")
		if steps == nil || steps.Kind != yaml.SequenceNode {
			continue
		}
		for _, step := range steps.Content {
			checkStep(step, privileged, add)
		}
	}
	return nil
}

// checkTriggers reports dangerous events and whether any was found.
func checkTriggers(on *yaml.Node, add func(rule, int)) bool {
	if on == nil {
		return false
	}
	found := false
	report := func(n *yaml.Node) {
		if dangerousTriggers[n.Value] {
			add(ruleGHATrigger, n.Line)
			found = true
		}
	}
	switch on.Kind {
	case yaml.ScalarNode:
		report(on)
	case yaml.SequenceNode:
		for _, n := range on.Content {
			report(n)
		}
	case yaml.MappingNode:
		for i := 0; i < len(on.Content); i += 2 {
			report(on.Content[i])
		}
	}
	return found
}

func checkWorkflowPermissions(perms *yaml.Node, add func(rule, int)) {
	if perms == nil {
		return
	}
	switch perms.Kind {
	case yaml.ScalarNode:
		if perms.Value == "write-all" {
			r := ruleGHAPermissions
			r.Severity, r.Confidence = finding.Medium, finding.ConfidenceHigh
			add(r, perms.Line)
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(perms.Content); i += 2 {
			scope, level := perms.Content[i], perms.Content[i+1]
			if level.Value == "write" && (scope.Value == "contents" || scope.Value == "packages" || scope.Value == "actions" || scope.Value == "id-token") {
				add(ruleGHAPermissions, level.Line)
			}
		}
	}
}

func checkStep(step *yaml.Node, privileged bool, add func(rule, int)) {
	if uses := mappingValue(step, "uses"); uses != nil {
		checkActionRef(uses, add)
		if privileged && strings.HasPrefix(uses.Value, "actions/checkout@") {
			if ref := mappingValue(mappingValue(step, "with"), "ref"); ref != nil && ghaHeadRef.MatchString(ref.Value) {
				add(ruleGHAUntrustedCheckout, ref.Line)
			}
		}
	}

	run := mappingValue(step, "run")
	if run == nil || run.Kind != yaml.ScalarNode {
		return
	}
	// Block scalars start on the line after the indicator.
	first := run.Line
	if run.Style == yaml.LiteralStyle || run.Style == yaml.FoldedStyle {
		first++
	}
	for j, l := range strings.Split(run.Value, "\n") {
		if ghaUntrustedInput.MatchString(l) {
			add(ruleGHAInjection, first+j)
		}
		if ghaSecret.MatchString(l) {
			add(ruleGHASecretInRun, first+j)
		}
	}
}

func checkActionRef(uses *yaml.Node, add func(rule, int)) {
	action := uses.Value
	if strings.HasPrefix(action, "./") || strings.HasPrefix(action, "docker://") {
		return
	}
	name, ref, ok := strings.Cut(action, "@")
	if !ok {
		add(ruleGHAUnpinned, uses.Line)
		return
	}
	if commitSHA.MatchString(ref) {
		return
	}
	switch ref {
	case "main", "master", "latest", "dev", "develop":
		r := ruleGHAUnpinned
		r.Severity = finding.High
		add(r, uses.Line)
		return
	}
	// First-party actions on version tags are common and low risk.
	if strings.HasPrefix(name, "actions/") || strings.HasPrefix(name, "github/") {
		return
	}
	r := ruleGHAUnpinned
	r.Severity, r.Confidence = finding.Low, finding.ConfidenceMedium
	add(r, uses.Line)
}

// GitLab CI

var gitlabReserved = map[string]bool{
	"stages": true, "variables": true, "default": true, "include": true, "workflow": true,
	"image": true, "services": true, "before_script": true, "after_script": true, "cache": true,
}

func scanGitLab(content []byte, add func(rule, int)) error {
	var doc yaml.Node
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return fmt.Errorf("invalid gitlab-ci file: %w", err)
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil
	}
	root := doc.Content[0]
	for i := 0; i+1 < len(root.Content); i += 2 {
		name, job := root.Content[i], root.Content[i+1]
		if gitlabReserved[name.Value] || job.Kind != yaml.MappingNode {
			continue
		}
		if securityJobName.MatchString(name.Value) {
			if af := mappingValue(job, "allow_failure"); isTrue(af) {
				add(ruleGitLabAllowFailure, af.Line)
			}
		}
		for _, key := range []string{"script", "before_script", "after_script"} {
			script := mappingValue(job, key)
			if script == nil {
				continue
			}
			cmds := script.Content
			if script.Kind == yaml.ScalarNode {
				cmds = []*yaml.Node{script}
			}
			for _, c := range cmds {
				if gitlabUntrusted.MatchString(c.Value) {
					add(ruleGitLabUntrusted, c.Line)
				}
			}
		}
	}
	return nil
}

// Job images and orbs

// scanPipelineImages reports image: references with a mutable tag anywhere
// in the document, and CircleCI orbs without an exact version.
func scanPipelineImages(content []byte, platform ciPlatform, add func(rule, int)) error {
	docs, err := decodeDocuments(content)
	if err != nil {
		return fmt.Errorf("invalid pipeline file: %w", err)
	}
	for _, root := range docs {
		walkImages(root, add)
		if platform == ciCircle {
			checkOrbs(mappingValue(root, "orbs"), add)
		}
	}
	return nil
}

func walkImages(n *yaml.Node, add func(rule, int)) {
	switch n.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, val := n.Content[i], n.Content[i+1]
			if key.Value == "image" {
				// GitLab and Bitbucket also accept image: {name: ...}.
				if name := mappingValue(val, "name"); name != nil {
					val = name
				}
				if val.Kind == yaml.ScalarNode {
					checkPipelineImage(val, add)
					continue
				}
			}
			walkImages(val, add)
		}
	case yaml.SequenceNode, yaml.DocumentNode:
		for _, c := range n.Content {
			walkImages(c, add)
		}
	}
}

func checkPipelineImage(n *yaml.Node, add func(rule, int)) {
	image := strings.TrimSpace(n.Value)
	if image == "" || strings.Contains(image, "$") || strings.HasPrefix(image, "docker://") {
		return
	}
	if mutableImage(image) {
		add(rulePipelineImage, n.Line)
	}
}

func checkOrbs(orbs *yaml.Node, add func(rule, int)) {
	if orbs == nil || orbs.Kind != yaml.MappingNode {
		return
	}
	for i := 1; i < len(orbs.Content); i += 2 {
		ref := orbs.Content[i]
		// Inline orb definitions are mappings.
		if ref.Kind != yaml.ScalarNode {
			continue
		}
		_, version, ok := strings.Cut(ref.Value, "@")
		switch {
		case !ok || version == "volatile":
			r := ruleCircleOrb
			r.Severity = finding.High
			add(r, ref.Line)
		case !exactOrbVersion.MatchString(version):
			r := ruleCircleOrb
			r.Severity, r.Confidence = finding.Low, finding.ConfidenceMedium
			add(r, ref.Line)
		}
	}
}
