package engine

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"codebot/internal/finding"
)

var (
	ruleRootUser = rule{
		ID: "DOCKER001", Title: "Container Runs as Root",
		Description: "The image or workload runs its process as root.",
		Severity:    finding.Medium, Confidence: finding.ConfidenceHigh, Category: finding.Misconfig,
		Impact:      "A compromised process has root inside the container, which widens any container escape.",
		RootCause:   "No unprivileged user is configured.",
		Fix:         "Create a dedicated user and switch to it with USER, or set runAsNonRoot: true.",
		ReferenceID: "CWE-250",
	}
	ruleUnpinnedImage = rule{
		ID: "DOCKER002", Title: "Unpinned Base Image",
		Description: "The base image uses the latest tag or no tag.",
		Severity:    finding.Low, Confidence: finding.ConfidenceHigh, Category: finding.Misconfig,
		Impact:      "Builds silently pick up a different, possibly compromised, image.",
		RootCause:   "The FROM line names a mutable tag.",
		Fix:         "Pin a version tag or a digest, for example node:20.11-alpine@sha256:...",
		ReferenceID: "CWE-1357",
	}
	ruleBuildSecret = rule{
		ID: "DOCKER003", Title: "Secret in Image Build Instruction",
		Description: "A credential is set with ENV or ARG.",
		Severity:    finding.High, Confidence: finding.ConfidenceMedium, Category: finding.Secret,
		Impact:      "Values set in ENV and ARG are stored in image layers and history.",
		RootCause:   "A secret was passed through the Dockerfile.",
		Fix:         "Use build secrets (RUN --mount=type=secret) or inject at runtime.",
		ReferenceID: "CWE-538",
	}
	ruleRemoteAdd = rule{
		ID: "DOCKER004", Title: "Remote File Added Without Verification",
		Description: "ADD downloads a file from a URL during the build.",
		Severity:    finding.Medium, Confidence: finding.ConfidenceHigh, Category: finding.Misconfig,
		Impact:      "The downloaded content is not checksummed and may change between builds.",
		RootCause:   "ADD was used for a remote URL.",
		Fix:         "Download with curl in RUN and verify a checksum, or use ADD --checksum.",
		ReferenceID: "CWE-494",
	}
	rulePipeShell = rule{
		ID: "CICD001", Title: "Remote Script Piped to Shell",
		Description: "A script is downloaded and executed in one step.",
		Severity:    finding.High, Confidence: finding.ConfidenceHigh, Category: finding.CICD,
		Impact:      "Whoever controls the URL or the network path runs code in the build.",
		RootCause:   "curl or wget output is piped into a shell.",
		Fix:         "Download the script, verify its checksum or signature, then run it.",
		ReferenceID: "CWE-494",
	}
	rulePrivileged = rule{
		ID: "K8S001", Title: "Privileged Container",
		Description: "The container runs in privileged mode.",
		Severity:    finding.High, Confidence: finding.ConfidenceHigh, Category: finding.Misconfig,
		Impact:      "Privileged containers have full access to host devices and can escape trivially.",
		RootCause:   "privileged is set to true.",
		Fix:         "Remove privileged and grant only the specific capabilities required.",
		ReferenceID: "CWE-250",
	}
	ruleEscalation = rule{
		ID: "K8S002", Title: "Privilege Escalation Allowed",
		Description: "allowPrivilegeEscalation is true.",
		Severity:    finding.Medium, Confidence: finding.ConfidenceHigh, Category: finding.Misconfig,
		Impact:      "setuid binaries inside the container can gain more privileges than the process started with.",
		RootCause:   "The security context explicitly allows escalation.",
		Fix:         "Set allowPrivilegeEscalation: false.",
		ReferenceID: "CWE-269",
	}
	ruleHostNamespace = rule{
		ID: "K8S003", Title: "Host Namespace Shared",
		Description: "The workload shares the host network, PID or IPC namespace.",
		Severity:    finding.High, Confidence: finding.ConfidenceHigh, Category: finding.Misconfig,
		Impact:      "The container can observe and interfere with host processes and traffic.",
		RootCause:   "A host namespace option is enabled.",
		Fix:         "Remove hostNetwork, hostPID and hostIPC, or network_mode: host.",
		ReferenceID: "CWE-668",
	}
	ruleCapAdd = rule{
		ID: "K8S004", Title: "Dangerous Capability Added",
		Description: "A broad Linux capability is granted to the container.",
		Severity:    finding.High, Confidence: finding.ConfidenceHigh, Category: finding.Misconfig,
		Impact:      "Capabilities such as SYS_ADMIN are close to full root on the host.",
		RootCause:   "cap_add or capabilities.add includes a dangerous capability.",
		Fix:         "Drop ALL capabilities and add back only narrow ones that are required.",
		ReferenceID: "CWE-250",
	}
	ruleDockerSocket = rule{
		ID: "K8S005", Title: "Docker Socket Mounted",
		Description: "The container runtime socket is mounted into the container.",
		Severity:    finding.Critical, Confidence: finding.ConfidenceHigh, Category: finding.Misconfig,
		Impact:      "Access to the socket is equivalent to root on the host.",
		RootCause:   "/var/run/docker.sock is mounted as a volume.",
		Fix:         "Remove the mount or use a restricted proxy for the Docker API.",
		ReferenceID: "CWE-250",
	}
	ruleSecretEnvRef = rule{
		ID: "K8S006", Title: "Secret Exposed as Environment Variable",
		Description: "A Kubernetes secret is injected through an environment variable.",
		Severity:    finding.Low, Confidence: finding.ConfidenceMedium, Category: finding.Misconfig,
		Impact:      "Environment variables leak through crash dumps, logs and child processes.",
		RootCause:   "secretKeyRef is used instead of a mounted file.",
		Fix:         "Mount the secret as a read-only volume and read it from disk.",
		ReferenceID: "CWE-526",
	}
)

// Dockerfile

type dockerInstruction struct {
	Command string
	Args    string
	Line    int
	Text    string
}

func parseDockerfile(content []byte) []dockerInstruction {
	src := lines(content, 0)
	var out []dockerInstruction

	for i := 0; i < len(src); i++ {
		line := strings.TrimSpace(src[i])
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		start := i + 1
		full := line
		for strings.HasSuffix(full, `\`) && i+1 < len(src) {
			full = strings.TrimSuffix(full, `\`)
			i++
			next := strings.TrimSpace(src[i])
			if strings.HasPrefix(next, "#") {
				full += `\`
				continue
			}
			full += " " + next
		}

		parts := strings.Fields(full)
		if len(parts) == 0 {
			continue
		}
		out = append(out, dockerInstruction{
			Command: strings.ToUpper(parts[0]),
			Args:    strings.TrimSpace(full[len(parts[0]):]),
			Line:    start,
			Text:    line,
		})
	}
	return out
}

var (
	dockerSecretKey = regexp.MustCompile(`(?i)(PASSWORD|PASSWD|SECRET|TOKEN|API_?KEY|PRIVATE_?KEY|ACCESS_?KEY|CREDENTIALS?)`)
	pipeToShell     = regexp.MustCompile(`(?i)\b(curl|wget)\b[^|;&]*\|\s*(sudo\s+)?(ba|z|da)?sh\b`)
	remoteURL       = regexp.MustCompile(`(?i)^https?://`)
)

func scanDockerfile(filePath string, content []byte) []finding.Finding {
	instructions := parseDockerfile(content)
	var out []finding.Finding

	stages := map[string]bool{}
	var lastFrom *dockerInstruction
	userInStage := false

	for i := range instructions {
		in := instructions[i]
		switch in.Command {
		case "FROM":
			lastFrom = &instructions[i]
			userInStage = false
			if f, ok := checkBaseImage(in, stages); ok {
				out = append(out, f.at(NameConfig, filePath, in.Line, in.Text))
			}
			if fields := strings.Fields(in.Args); len(fields) >= 3 && strings.EqualFold(fields[len(fields)-2], "AS") {
				stages[strings.ToLower(fields[len(fields)-1])] = true
			}
		case "USER":
			userInStage = true
			u := strings.SplitN(strings.TrimSpace(in.Args), ":", 2)[0]
			if u == "root" || u == "0" {
				out = append(out, ruleRootUser.at(NameConfig, filePath, in.Line, in.Text))
			}
		case "ENV", "ARG":
			if hasBuildSecret(in.Args) {
				out = append(out, ruleBuildSecret.at(NameConfig, filePath, in.Line, in.Text))
			}
		case "ADD":
			for _, a := range strings.Fields(in.Args) {
				if remoteURL.MatchString(a) {
					out = append(out, ruleRemoteAdd.at(NameConfig, filePath, in.Line, in.Text))
					break
				}
			}
		case "RUN":
			if pipeToShell.MatchString(in.Args) {
				out = append(out, rulePipeShell.at(NameConfig, filePath, in.Line, in.Text))
			}
		}
	}

	// Only the final stage determines the runtime user.
	if lastFrom != nil && !userInStage && !strings.HasPrefix(strings.ToLower(lastFrom.Args), "scratch") {
		missing := ruleRootUser
		missing.Description = "No USER instruction in the final stage, so the container runs as root."
		missing.Confidence = finding.ConfidenceMedium
		out = append(out, missing.at(NameConfig, filePath, lastFrom.Line, lastFrom.Text))
	}
	return out
}

func checkBaseImage(in dockerInstruction, stages map[string]bool) (rule, bool) {
	var image string
	for _, f := range strings.Fields(in.Args) {
		if strings.HasPrefix(f, "--") {
			continue
		}
		image = f
		break
	}
	lower := strings.ToLower(image)
	if image == "" || lower == "scratch" || stages[lower] || strings.Contains(image, "$") {
		return rule{}, false
	}
	if mutableImage(image) {
		return ruleUnpinnedImage, true
	}
	return rule{}, false
}

// mutableImage reports whether an image reference has neither a digest nor
// a tag other than latest.
func mutableImage(image string) bool {
	if strings.Contains(image, "@sha256:") {
		return false
	}
	// A colon after the last slash is a tag; one before it is a registry port.
	name := image[strings.LastIndex(image, "/")+1:]
	tag := ""
	if i := strings.LastIndex(name, ":"); i >= 0 {
		tag = name[i+1:]
	}
	return tag == "" || tag == "latest"
}

func hasBuildSecret(args string) bool {
	// ENV KEY=VALUE [KEY=VALUE...] or the legacy ENV KEY VALUE.
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return false
	}
	if !strings.Contains(fields[0], "=") {
		return len(fields) > 1 && dockerSecretKey.MatchString(fields[0]) && !strings.HasPrefix(fields[1], "$")
	}
	for _, f := range fields {
		k, v, ok := strings.Cut(f, "=")
		if !ok || !dockerSecretKey.MatchString(k) {
			continue
		}
		v = strings.Trim(v, `"'`)
		if v != "" && !strings.HasPrefix(v, "$") {
			return true
		}
	}
	return false
}

// YAML helpers

// mappingValue returns the value node for key in a mapping node.
func mappingValue(m *yaml.Node, key string) *yaml.Node {
	if m == nil || m.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

func isTrue(n *yaml.Node) bool {
	if n == nil || n.Kind != yaml.ScalarNode {
		return false
	}
	switch strings.ToLower(n.Value) {
	case "true", "yes", "on":
		return true
	}
	return false
}

func isFalse(n *yaml.Node) bool {
	if n == nil || n.Kind != yaml.ScalarNode {
		return false
	}
	switch strings.ToLower(n.Value) {
	case "false", "no", "off":
		return true
	}
	return false
}

// decodeDocuments parses every document of a multi-document YAML stream.
func decodeDocuments(content []byte) ([]*yaml.Node, error) {
	dec := yaml.NewDecoder(strings.NewReader(string(content)))
	var docs []*yaml.Node
	for {
		var doc yaml.Node
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			return docs, nil
		}
		if err != nil {
			return docs, err
		}
		if len(doc.Content) > 0 {
			docs = append(docs, doc.Content[0])
		}
	}
}

// srcLine returns the text of 1-based line n.
func srcLine(src []string, n int) string {
	if n < 1 || n > len(src) {
		return ""
	}
	return src[n-1]
}

var dangerousCaps = map[string]bool{
	"ALL": true, "SYS_ADMIN": true, "NET_ADMIN": true, "SYS_PTRACE": true, "SYS_MODULE": true, "DAC_READ_SEARCH": true,
}

// docker-compose

func scanCompose(filePath string, content []byte) ([]finding.Finding, error) {
	docs, err := decodeDocuments(content)
	if err != nil {
		return nil, fmt.Errorf("invalid compose file: %w", err)
	}
	src := lines(content, 4096)
	var out []finding.Finding
	add := func(r rule, n *yaml.Node) {
		out = append(out, r.at(NameConfig, filePath, n.Line, srcLine(src, n.Line)))
	}

	for _, root := range docs {
		services := mappingValue(root, "services")
		if services == nil || services.Kind != yaml.MappingNode {
			continue
		}
		for i := 1; i < len(services.Content); i += 2 {
			svc := services.Content[i]
			if v := mappingValue(svc, "privileged"); isTrue(v) {
				add(rulePrivileged, v)
			}
			for _, key := range []string{"network_mode", "pid", "ipc"} {
				if v := mappingValue(svc, key); v != nil && v.Value == "host" {
					add(ruleHostNamespace, v)
				}
			}
			if v := mappingValue(svc, "user"); v != nil && (v.Value == "root" || v.Value == "0" || strings.HasPrefix(v.Value, "0:")) {
				add(ruleRootUser, v)
			}
			if caps := mappingValue(svc, "cap_add"); caps != nil {
				for _, c := range caps.Content {
					if dangerousCaps[strings.TrimPrefix(strings.ToUpper(c.Value), "CAP_")] {
						add(ruleCapAdd, c)
					}
				}
			}
			if vols := mappingValue(svc, "volumes"); vols != nil {
				for _, v := range vols.Content {
					text := v.Value
					if v.Kind == yaml.MappingNode {
						if s := mappingValue(v, "source"); s != nil {
							text = s.Value
						}
					}
					if strings.Contains(text, "docker.sock") {
						add(ruleDockerSocket, v)
					}
				}
			}
			checkComposeEnv(mappingValue(svc, "environment"), add)
		}
	}
	return out, nil
}

func checkComposeEnv(env *yaml.Node, add func(rule, *yaml.Node)) {
	if env == nil {
		return
	}
	check := func(key, val string, n *yaml.Node) {
		lower := strings.ToLower(strings.TrimSpace(val))
		switch {
		case envDebugKey.MatchString(key) && (lower == "true" || lower == "1" || lower == "yes"):
			add(ruleDebug, n)
		case key == "NODE_TLS_REJECT_UNAUTHORIZED" && lower == "0":
			add(ruleTLSVerify, n)
		case envSecretKey.MatchString(key) && defaultValues[lower]:
			add(ruleDefaultSecret, n)
		}
	}
	switch env.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(env.Content); i += 2 {
			check(env.Content[i].Value, env.Content[i+1].Value, env.Content[i])
		}
	case yaml.SequenceNode:
		for _, item := range env.Content {
			if k, v, ok := strings.Cut(item.Value, "="); ok {
				check(k, v, item)
			}
		}
	}
}

// Kubernetes manifests

func isKubernetes(root *yaml.Node) bool {
	return mappingValue(root, "apiVersion") != nil && mappingValue(root, "kind") != nil
}

// scanKubernetes walks every mapping in each manifest document. YAML that
// does not parse or is not a manifest yields nothing; arbitrary YAML files
// are too common to report on.
func scanKubernetes(filePath string, content []byte) []finding.Finding {
	docs, _ := decodeDocuments(content)
	src := lines(content, 4096)
	var out []finding.Finding
	add := func(r rule, n *yaml.Node) {
		out = append(out, r.at(NameConfig, filePath, n.Line, srcLine(src, n.Line)))
	}
	for _, root := range docs {
		if !isKubernetes(root) {
			continue
		}
		walkKubernetes(root, add)
	}
	return out
}

func walkKubernetes(n *yaml.Node, add func(rule, *yaml.Node)) {
	switch n.Kind {
	case yaml.SequenceNode:
		for _, c := range n.Content {
			walkKubernetes(c, add)
		}
		return
	case yaml.MappingNode:
	default:
		return
	}

	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i], n.Content[i+1]
		switch key.Value {
		case "privileged":
			if isTrue(val) {
				add(rulePrivileged, val)
			}
		case "allowPrivilegeEscalation":
			if isTrue(val) {
				add(ruleEscalation, val)
			}
		case "runAsNonRoot":
			if isFalse(val) {
				add(ruleRootUser, val)
			}
		case "runAsUser":
			if val.Value == "0" {
				add(ruleRootUser, val)
			}
		case "hostNetwork", "hostPID", "hostIPC":
			if isTrue(val) {
				add(ruleHostNamespace, val)
			}
		case "secretKeyRef":
			add(ruleSecretEnvRef, key)
		case "add":
			if val.Kind == yaml.SequenceNode {
				for _, c := range val.Content {
					if dangerousCaps[strings.TrimPrefix(strings.ToUpper(c.Value), "CAP_")] {
						add(ruleCapAdd, c)
					}
				}
			}
		case "hostPath":
			if p := mappingValue(val, "path"); p != nil && strings.Contains(p.Value, "docker.sock") {
				add(ruleDockerSocket, p)
			}
		}
		walkKubernetes(val, add)
	}
}
