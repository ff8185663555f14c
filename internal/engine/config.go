package engine

import (
	"context"
	"regexp"
	"strings"

	"github.com/joho/godotenv"

	"codebot/internal/finding"
)

// rule is a check whose metadata is fixed; where it reports the same issue
// as a library pattern it shares that pattern's title and category so the
// two collapse on merge.
type rule struct {
	ID          string
	Title       string
	Description string
	Severity    finding.Severity
	Confidence  finding.Confidence
	Category    finding.Category
	Impact      string
	RootCause   string
	Fix         string
	ReferenceID string
}

func (r rule) at(scanner, filePath string, line int, code string) finding.Finding {
	return finding.Finding{
		Title:        r.Title,
		Description:  r.Description,
		FilePath:     filePath,
		Line:         line,
		Severity:     r.Severity,
		Confidence:   r.Confidence,
		Category:     r.Category,
		Impact:       r.Impact,
		RootCause:    r.RootCause,
		SuggestedFix: r.Fix,
		ReferenceID:  r.ReferenceID,
		Scanner:      scanner,
		RuleID:       r.ID,
		CodeSnippet:  snippet(code),
	}
}

var (
	ruleDebug = rule{
		ID: "CONFIG001", Title: "Debug Mode Enabled",
		Description: "A debug flag is switched on in configuration.",
		Severity:    finding.High, Confidence: finding.ConfidenceHigh, Category: finding.ErrorHandling,
		Impact:      "Detailed error pages expose stack traces, settings and source to anyone who triggers an error.",
		RootCause:   "A development setting was committed to a configuration that reaches production.",
		Fix:         "Default the flag to off and enable it only through the environment of development machines.",
		ReferenceID: "CWE-489",
	}
	ruleDjangoSecret = rule{
		ID: "CONFIG002", Title: "Django Weak SECRET_KEY",
		Description: "SECRET_KEY is a default, placeholder or short literal.",
		Severity:    finding.Critical, Confidence: finding.ConfidenceHigh, Category: finding.Misconfig,
		Impact:      "Sessions, password reset tokens and signed cookies can be forged.",
		RootCause:   "The generated development key or a placeholder was never replaced.",
		Fix:         "Generate a new key with django.core.management.utils.get_random_secret_key() and load it from the environment.",
		ReferenceID: "CWE-798",
	}
	ruleAllowedHosts = rule{
		ID: "CONFIG003", Title: "Django ALLOWED_HOSTS Wildcard",
		Description: "ALLOWED_HOSTS accepts any Host header.",
		Severity:    finding.Medium, Confidence: finding.ConfidenceHigh, Category: finding.Misconfig,
		Impact:      "Host header injection enables cache poisoning and password reset poisoning.",
		RootCause:   "A wildcard was used instead of the deployed domain names.",
		Fix:         "List the exact domains: ALLOWED_HOSTS = ['example.org', 'www.example.org'].",
		ReferenceID: "CWE-644",
	}
	ruleInsecureCookie = rule{
		ID: "CONFIG004", Title: "Django Insecure Cookie Settings",
		Description: "Session or CSRF cookies are allowed over plain HTTP.",
		Severity:    finding.Medium, Confidence: finding.ConfidenceHigh, Category: finding.Misconfig,
		Impact:      "Cookies can be intercepted on the network and sessions hijacked.",
		RootCause:   "The Secure flag is explicitly disabled.",
		Fix:         "Set SESSION_COOKIE_SECURE = True and CSRF_COOKIE_SECURE = True.",
		ReferenceID: "CWE-614",
	}
	ruleCSRFMiddleware = rule{
		ID: "CONFIG005", Title: "CSRF Protection Disabled",
		Description: "MIDDLEWARE does not include CsrfViewMiddleware.",
		Severity:    finding.High, Confidence: finding.ConfidenceMedium, Category: finding.Framework,
		Impact:      "Any site can submit state-changing requests on behalf of logged-in users.",
		RootCause:   "The CSRF middleware was removed or commented out.",
		Fix:         "Restore 'django.middleware.csrf.CsrfViewMiddleware' in MIDDLEWARE.",
		ReferenceID: "CWE-352",
	}
	ruleCORS = rule{
		ID: "CONFIG006", Title: "Permissive CORS Policy",
		Description: "Cross-origin requests are accepted from any origin.",
		Severity:    finding.Medium, Confidence: finding.ConfidenceHigh, Category: finding.HTTP,
		Impact:      "Any website can read responses meant for the application's own front end.",
		RootCause:   "CORS was opened to every origin for convenience.",
		Fix:         "Allow only the specific origins that need access.",
		ReferenceID: "CWE-942",
	}
	ruleTrustProxy = rule{
		ID: "CONFIG007", Title: "Express Trust Proxy Enabled",
		Description: "Express trusts every proxy hop for client IP and protocol.",
		Severity:    finding.Low, Confidence: finding.ConfidenceMedium, Category: finding.Framework,
		Impact:      "Clients can spoof their IP address through X-Forwarded-For and bypass IP based limits.",
		RootCause:   "trust proxy was set to true instead of a hop count or address list.",
		Fix:         "Use app.set('trust proxy', 1) or list the proxy addresses.",
		ReferenceID: "CWE-348",
	}
	ruleTLSVerify = rule{
		ID: "CONFIG008", Title: "TLS Certificate Validation Disabled",
		Description: "Certificate verification is turned off.",
		Severity:    finding.Critical, Confidence: finding.ConfidenceHigh, Category: finding.Misconfig,
		Impact:      "Traffic can be intercepted and modified by a man in the middle.",
		RootCause:   "Verification was disabled to work around a certificate problem.",
		Fix:         "Fix the certificate chain or trust store and re-enable verification.",
		ReferenceID: "CWE-295",
	}
	ruleDefaultSecret = rule{
		ID: "CONFIG009", Title: "Weak or Default Secret",
		Description: "A secret setting holds a well-known default value.",
		Severity:    finding.High, Confidence: finding.ConfidenceHigh, Category: finding.Misconfig,
		Impact:      "Default credentials are the first thing an attacker tries.",
		RootCause:   "A template value was deployed without being changed.",
		Fix:         "Generate a strong random value and provide it through a secret store.",
		ReferenceID: "CWE-1392",
	}
	ruleHTTP = rule{
		ID: "CONFIG010", Title: "Insecure HTTP Transport",
		Description: "A service URL in configuration uses plain HTTP.",
		Severity:    finding.Medium, Confidence: finding.ConfidenceMedium, Category: finding.HTTP,
		Impact:      "Data and credentials sent to this endpoint travel in cleartext.",
		RootCause:   "The endpoint was configured without TLS.",
		Fix:         "Use https:// for every non-local endpoint.",
		ReferenceID: "CWE-319",
	}
	ruleServerTokens = rule{
		ID: "CONFIG011", Title: "Server Version Disclosure",
		Description: "The web server advertises its version or lists directories.",
		Severity:    finding.Low, Confidence: finding.ConfidenceHigh, Category: finding.Misconfig,
		Impact:      "Attackers learn which exploits apply or browse files that were never linked.",
		RootCause:   "Informational server features are left at permissive settings.",
		Fix:         "Set server_tokens off and autoindex off.",
		ReferenceID: "CWE-200",
	}
)

// ConfigEngine checks configuration files. Formats with a schema are
// parsed and checked structurally; everything else falls back to line
// rules.
type ConfigEngine struct{}

func NewConfigEngine() *ConfigEngine { return &ConfigEngine{} }

func (e *ConfigEngine) Name() string { return NameConfig }

func (e *ConfigEngine) Extensions() []string {
	return []string{".py", ".env", ".yml", ".yaml", ".js", ".ts", ".ini", ".conf", ".cfg", ".properties", ".toml"}
}

type configKind int

const (
	kindNone configKind = iota
	kindDjango
	kindDotenv
	kindDockerfile
	kindCompose
	kindYAML
	kindNode
	kindText
)

var (
	composeName = regexp.MustCompile(`(?i)^(docker-)?compose([.-][^/]*)?\.ya?ml$`)
	nodeConfig  = regexp.MustCompile(`(?i)^(config|app|server|index|main)\.(js|ts|mjs|cjs)$|config\.(js|ts)$`)
	ciPath      = regexp.MustCompile(`(?i)(^|/)(\.github/|\.gitlab-ci|\.circleci/|\.travis|azure-pipelines|bitbucket-pipelines)`)
)

func classifyConfig(filePath string) configKind {
	name := base(filePath)
	lower := strings.ToLower(name)
	p := strings.ReplaceAll(filePath, `\`, "/")
	switch {
	case lower == "settings.py" || (strings.Contains(p, "/settings/") && ext(p) == ".py"):
		return kindDjango
	case lower == ".env" || strings.HasPrefix(lower, ".env.") || ext(p) == ".env":
		return kindDotenv
	case name == "Dockerfile" || strings.HasPrefix(name, "Dockerfile.") || ext(p) == ".dockerfile":
		return kindDockerfile
	case composeName.MatchString(name):
		return kindCompose
	case ext(p) == ".yml" || ext(p) == ".yaml":
		if ciPath.MatchString(p) {
			return kindNone
		}
		return kindYAML
	case nodeConfig.MatchString(name):
		return kindNode
	}
	switch ext(p) {
	case ".ini", ".conf", ".cfg", ".properties", ".toml":
		return kindText
	}
	if lower == ".htaccess" {
		return kindText
	}
	return kindNone
}

func (e *ConfigEngine) Applies(filePath string) bool {
	return classifyConfig(filePath) != kindNone
}

func (e *ConfigEngine) Scan(ctx context.Context, filePath string, content []byte) ([]finding.Finding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var (
		out []finding.Finding
		err error
	)
	switch classifyConfig(filePath) {
	case kindDjango:
		out = scanDjango(filePath, content)
	case kindDotenv:
		out = scanDotenv(filePath, content)
	case kindDockerfile:
		out = scanDockerfile(filePath, content)
	case kindCompose:
		out, err = scanCompose(filePath, content)
	case kindYAML:
		out = scanKubernetes(filePath, content)
	case kindNode:
		out = scanLines(filePath, content, nodeRules)
	case kindText:
		out = scanLines(filePath, content, textRules)
	}
	return dedupe(out), err
}

// dedupe drops repeats of the same rule on the same line.
func dedupe(in []finding.Finding) []finding.Finding {
	type key struct {
		rule string
		line int
	}
	seen := make(map[key]bool, len(in))
	out := in[:0]
	for _, f := range in {
		k := key{f.RuleID, f.Line}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, f)
	}
	return out
}

// lineRule applies r to every non-comment line matching expr.
type lineRule struct {
	rule
	expr    *regexp.Regexp
	exclude *regexp.Regexp
}

var nodeRules = []lineRule{
	{rule: ruleTrustProxy, expr: regexp.MustCompile(`(?i)trust\s*proxy["']?\s*[,:]\s*true`)},
	{rule: ruleTLSVerify, expr: regexp.MustCompile(`(?i)(?:rejectUnauthorized|NODE_TLS_REJECT_UNAUTHORIZED)["']?\s*[=:]\s*(?:false|0|["']0["'])`)},
	{rule: ruleCORS, expr: regexp.MustCompile(`(?i)(?:Access-Control-Allow-Origin["']?\s*[,:=]\s*["']\*["']|cors\s*\(\s*\{\s*origin\s*:\s*(?:["']\*["']|true))`)},
	{rule: ruleHTTP, expr: regexp.MustCompile(`(?i)(?:api[_-]?url|base[_-]?url|endpoint|host)["']?\s*[=:]\s*["']http://`), exclude: localURL},
}

var textRules = []lineRule{
	{rule: ruleDebug, expr: regexp.MustCompile(`(?i)^\s*(?:app[_.])?debug\s*[=:]\s*["']?(?:true|on|yes|1)\b`)},
	{rule: ruleTLSVerify, expr: regexp.MustCompile(`(?i)^\s*(?:ssl[_.-]?verify|verify[_.-]?ssl|tls[_.-]?verify|sslverify)\s*[=:]\s*["']?(?:false|off|no|0)\b`)},
	{rule: ruleCORS, expr: regexp.MustCompile(`(?i)Access-Control-Allow-Origin["']?\s+["']?\*|cors[_.-]?allowed[_.-]?origins?\s*[=:]\s*["']?\*`)},
	{rule: ruleHTTP, expr: regexp.MustCompile(`(?i)(?:url|endpoint|uri|host)\w*\s*[=:]\s*["']?http://`), exclude: localURL},
	{rule: ruleServerTokens, expr: regexp.MustCompile(`(?i)^\s*(?:server_tokens\s+on|autoindex\s+on|ServerSignature\s+On|Options\s+.*\+?Indexes)`)},
}

var localURL = regexp.MustCompile(`(?i)http://(?:localhost|127\.0\.0\.1|0\.0\.0\.0|\[::1\]|[a-z0-9-]+(?::\d+)?(?:/|["']|$))`)

func scanLines(filePath string, content []byte, rules []lineRule) []finding.Finding {
	var out []finding.Finding
	src := lines(content, 4096)
	for _, r := range rules {
		for i, l := range src {
			if isComment(l, filePath) || !r.expr.MatchString(l) {
				continue
			}
			if r.exclude != nil && r.exclude.MatchString(l) {
				continue
			}
			out = append(out, r.at(NameConfig, filePath, i+1, l))
		}
	}
	return out
}

// Django settings

var (
	pyAssign       = regexp.MustCompile(`^([A-Z][A-Z0-9_]*)\s*=\s*(.*)$`)
	pyStringValue  = regexp.MustCompile(`^[rbuRBU]?["']([^"']*)["']\s*(?:#.*)?$`)
	quotedWildcard = regexp.MustCompile(`["']\*["']`)
	weakSecrets    = regexp.MustCompile(`(?i)^(?:django-insecure-|secret|changeme|change-me|yoursecretkey|your-secret-key|dev|development|insecure|default|replace)`)
)

type pyAssignment struct {
	value string
	line  int
	text  string
}

// parseSettings collects top-level NAME = value assignments. Bracketed
// values spanning several lines are joined with commented lines dropped.
func parseSettings(content []byte) map[string]pyAssignment {
	src := lines(content, 0)
	out := make(map[string]pyAssignment)
	for i := 0; i < len(src); i++ {
		m := pyAssign.FindStringSubmatch(src[i])
		if m == nil {
			continue
		}
		a := pyAssignment{value: strings.TrimSpace(m[2]), line: i + 1, text: src[i]}
		depth := bracketDepth(a.value)
		for depth > 0 && i+1 < len(src) {
			i++
			next := strings.TrimSpace(src[i])
			if strings.HasPrefix(next, "#") {
				continue
			}
			a.value += " " + next
			depth += bracketDepth(next)
		}
		out[m[1]] = a
	}
	return out
}

func bracketDepth(s string) int {
	d := 0
	inStr := byte(0)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inStr != 0:
			if c == inStr {
				inStr = 0
			}
		case c == '"' || c == '\'':
			inStr = c
		case c == '#':
			return d
		case c == '[' || c == '(' || c == '{':
			d++
		case c == ']' || c == ')' || c == '}':
			d--
		}
	}
	return d
}

func scanDjango(filePath string, content []byte) []finding.Finding {
	settings := parseSettings(content)
	var out []finding.Finding

	if a, ok := settings["DEBUG"]; ok && strings.HasPrefix(a.value, "True") {
		out = append(out, ruleDebug.at(NameConfig, filePath, a.line, a.text))
	}
	if a, ok := settings["SECRET_KEY"]; ok {
		if m := pyStringValue.FindStringSubmatch(a.value); m != nil {
			if key := m[1]; weakSecrets.MatchString(key) || len(key) < 50 {
				out = append(out, ruleDjangoSecret.at(NameConfig, filePath, a.line, a.text))
			}
		}
	}
	if a, ok := settings["ALLOWED_HOSTS"]; ok && quotedWildcard.MatchString(a.value) {
		out = append(out, ruleAllowedHosts.at(NameConfig, filePath, a.line, a.text))
	}
	for _, name := range []string{"SESSION_COOKIE_SECURE", "CSRF_COOKIE_SECURE"} {
		if a, ok := settings[name]; ok && strings.HasPrefix(a.value, "False") {
			out = append(out, ruleInsecureCookie.at(NameConfig, filePath, a.line, a.text))
		}
	}
	for _, name := range []string{"MIDDLEWARE", "MIDDLEWARE_CLASSES"} {
		if a, ok := settings[name]; ok && strings.HasPrefix(a.value, "[") && !strings.Contains(a.value, "CsrfViewMiddleware") {
			out = append(out, ruleCSRFMiddleware.at(NameConfig, filePath, a.line, a.text))
		}
	}
	for _, name := range []string{"CORS_ALLOW_ALL_ORIGINS", "CORS_ORIGIN_ALLOW_ALL"} {
		if a, ok := settings[name]; ok && strings.HasPrefix(a.value, "True") {
			out = append(out, ruleCORS.at(NameConfig, filePath, a.line, a.text))
		}
	}
	return out
}

// .env files

var (
	envLine       = regexp.MustCompile(`^\s*(?:export\s+)?([A-Za-z_][A-Za-z0-9_.-]*)\s*=\s*(.*)$`)
	envDebugKey   = regexp.MustCompile(`(?i)^(?:[A-Z]+_)?DEBUG$`)
	envSecretKey  = regexp.MustCompile(`(?i)(?:SECRET|PASSWORD|PASSWD|TOKEN|API_KEY|PRIVATE_KEY)`)
	envURLKey     = regexp.MustCompile(`(?i)(?:URL|URI|ENDPOINT|HOST)$`)
	envTemplate   = regexp.MustCompile(`(?i)\.(example|sample|template|dist|defaults?)$`)
	defaultValues = map[string]bool{
		"changeme": true, "change_me": true, "secret": true, "password": true, "admin": true,
		"default": true, "123456": true, "12345678": true, "test": true, "root": true,
		"pass": true, "qwerty": true, "letmein": true, "mysecret": true, "supersecret": true,
	}
)

func scanDotenv(filePath string, content []byte) []finding.Finding {
	values, err := godotenv.UnmarshalBytes(content)
	if err != nil {
		values = nil
	}
	template := envTemplate.MatchString(base(filePath))

	var out []finding.Finding
	for i, l := range lines(content, 4096) {
		if isComment(l, filePath) {
			continue
		}
		m := envLine.FindStringSubmatch(l)
		if m == nil {
			continue
		}
		key := m[1]
		val, ok := values[key]
		if !ok {
			val = strings.Trim(strings.TrimSpace(m[2]), `"'`)
		}
		lower := strings.ToLower(strings.TrimSpace(val))

		switch {
		case envDebugKey.MatchString(key) && (lower == "true" || lower == "1" || lower == "yes" || lower == "on"):
			out = append(out, ruleDebug.at(NameConfig, filePath, i+1, l))
		case key == "NODE_TLS_REJECT_UNAUTHORIZED" && lower == "0":
			out = append(out, ruleTLSVerify.at(NameConfig, filePath, i+1, l))
		case envSecretKey.MatchString(key) && !template && defaultValues[lower]:
			out = append(out, ruleDefaultSecret.at(NameConfig, filePath, i+1, key+"=********"))
		case envURLKey.MatchString(key) && strings.HasPrefix(lower, "http://") && !localURL.MatchString(lower):
			out = append(out, ruleHTTP.at(NameConfig, filePath, i+1, l))
		}
	}
	return out
}
