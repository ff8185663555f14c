package patterns

import "codebot/internal/finding"

var httpPatterns = []Pattern{
	{
		ID:          "HTTP001",
		Title:       "Insecure HTTP Transport",
		Description: "A plain-HTTP URL or a disabled HTTPS redirect is configured.",
		Expr:        `(?:["']http://[A-Za-z0-9]|SECURE_SSL_REDIRECT\s*=\s*False)`,
		ExcludeExpr: `(?i)localhost|127\.0\.0\.1|0\.0\.0\.0|example\.(?:com|org)|schemas?\.|w3\.org|xmlns`,
		Severity:    finding.Medium,
		Confidence:  finding.ConfidenceMedium,
		Category:    finding.HTTP,
		Impact:      "Traffic can be read or modified in transit.",
		RootCause:   "Transport security is not enforced.",
		Fix:         "Use https:// endpoints and enable HTTPS redirects and HSTS.",
		ReferenceID: "CWE-319",
	},
	{
		ID:          "HTTP002",
		Title:       "Permissive CORS Policy",
		Description: "Access-Control-Allow-Origin is set to any origin.",
		Expr:        `(?i)(?:Access-Control-Allow-Origin["']?\s*[,:=]\s*["']\*["']|CORS_ORIGIN_ALLOW_ALL\s*=\s*True|CORS_ALLOW_ALL_ORIGINS\s*=\s*True|origin\s*:\s*["']\*["']|AllowAllOrigins\s*:\s*true)`,
		Severity:    finding.Medium,
		Confidence:  finding.ConfidenceHigh,
		Category:    finding.HTTP,
		Impact:      "Any website can read responses from this API in users' browsers.",
		RootCause:   "CORS is configured with a wildcard origin.",
		Fix:         "Allow an explicit list of trusted origins.",
		ReferenceID: "CWE-942",
	},
	{
		ID:          "HTTP003",
		Title:       "Open Redirect",
		Description: "A redirect target comes from the request.",
		Expr:        `(?i)(?:\bredirect\s*\(\s*|location\.href\s*=\s*|window\.location\s*=\s*|res\.redirect\s*\(\s*|http\.Redirect\s*\(\s*w\s*,\s*r\s*,\s*)(?:request\.|req\.|params\.|query\.|r\.URL\.Query\(\)|r\.FormValue)`,
		Severity:    finding.Medium,
		Confidence:  finding.ConfidenceHigh,
		Category:    finding.HTTP,
		Impact:      "Phishing via trusted-domain links.",
		RootCause:   "Redirect destinations are not validated.",
		Fix:         "Redirect only to relative paths or an allowlist of hosts.",
		ReferenceID: "CWE-601",
	},
}

var frameworkPatterns = []Pattern{
	{
		ID:          "DJANGO001",
		Title:       "Django Secret Key in Settings",
		Description: "SECRET_KEY is a literal rather than read from the environment.",
		Expr:        `^\s*SECRET_KEY\s*=\s*["'][^"']{20,}["']`,
		ExcludeExpr: `(?i)environ|getenv|config\(`,
		Severity:    finding.Critical,
		Confidence:  finding.ConfidenceHigh,
		Category:    finding.Framework,
		Extensions:  py,
		Impact:      "Sessions, password reset tokens and signed data can be forged.",
		RootCause:   "The Django signing key is committed.",
		Fix:         "SECRET_KEY = os.environ[\"DJANGO_SECRET_KEY\"] and rotate the old key.",
		ReferenceID: "CWE-798",
	},
	{
		ID:          "DJANGO002",
		Title:       "Django Raw SQL Query",
		Description: "Model.objects.raw receives a formatted query.",
		Expr:        `\.raw\s*\(\s*[fF]?["'][^"']*(?:%s|\{)[^"']*["']\s*(?:%|\.format|\+)`,
		Severity:    finding.Critical,
		Confidence:  finding.ConfidenceHigh,
		Category:    finding.Injection,
		Extensions:  py,
		Impact:      "SQL injection through the ORM escape hatch.",
		RootCause:   "String formatting is applied before raw() runs.",
		Fix:         "Pass params separately: Model.objects.raw(\"... WHERE id = %s\", [id]).",
		ReferenceID: "CWE-89",
	},
	{
		ID:          "DJANGO003",
		Title:       "CSRF Protection Disabled",
		Description: "A view is exempted from CSRF protection.",
		Expr:        `@csrf_exempt\b`,
		Severity:    finding.High,
		Confidence:  finding.ConfidenceHigh,
		Category:    finding.Framework,
		Extensions:  py,
		Impact:      "Cross-site requests can perform state-changing actions as the victim.",
		RootCause:   "The CSRF middleware is bypassed for this view.",
		Fix:         "Remove @csrf_exempt and send the CSRF token from clients.",
		ReferenceID: "CWE-352",
	},
	{
		ID:          "EXPRESS001",
		Title:       "Express Trust Proxy Enabled",
		Description: "Express trusts every proxy hop for client IP and protocol.",
		Expr:        `app\.set\s*\(\s*["']trust proxy["']\s*,\s*true\s*\)`,
		Severity:    finding.Low,
		Confidence:  finding.ConfidenceMedium,
		Category:    finding.Framework,
		Extensions:  node,
		Impact:      "Clients can spoof X-Forwarded-For to evade IP-based controls.",
		RootCause:   "trust proxy is set to true instead of a hop count or subnet.",
		Fix:         "Set trust proxy to the number of proxies or their addresses.",
		ReferenceID: "CWE-348",
	},
	{
		ID:          "FLASK001",
		Title:       "Flask Server Bound to All Interfaces in Debug",
		Description: "The Flask development server is exposed on 0.0.0.0.",
		Expr:        `app\.run\([^)]*host\s*=\s*["']0\.0\.0\.0["']`,
		Severity:    finding.Medium,
		Confidence:  finding.ConfidenceMedium,
		Category:    finding.Framework,
		Extensions:  py,
		Impact:      "The development server is reachable from the network.",
		RootCause:   "The built-in server is used for deployment.",
		Fix:         "Serve with gunicorn or uWSGI behind a reverse proxy.",
		ReferenceID: "CWE-668",
	},
}
