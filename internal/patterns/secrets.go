package patterns

import "codebot/internal/finding"

// secretPatterns match credential-shaped literals. When an expression has
// a capture group, group 1 is the secret itself; the secret engine runs its
// entropy and placeholder checks against that group.
var secretPatterns = []Pattern{
	{
		ID:          "SECRET001",
		Title:       "AWS Access Key Exposed",
		Description: "An AWS access key ID is committed to the repository.",
		Expr:        `\b((?:AKIA|A3T[A-Z0-9]|AGPA|AIDA|AROA|AIPA|ANPA|ANVA|ASIA)[A-Z0-9]{16})\b`,
		ExcludeExpr: `(?i)example|fake|dummy|sample`,
		Severity:    finding.Critical,
		Confidence:  finding.ConfidenceHigh,
		Category:    finding.Secret,
		Impact:      "Anyone with repository access can act against the AWS account with the key's permissions.",
		RootCause:   "An access key was written into source instead of being read from the environment or a secrets manager.",
		Fix:         "Deactivate and rotate the key in IAM, then load credentials from the environment or AWS Secrets Manager.",
		ReferenceID: "CWE-798",
	},
	{
		ID:          "SECRET002",
		Title:       "AWS Secret Access Key Exposed",
		Description: "An AWS secret access key is assigned to a variable in source.",
		Expr:        `(?i)(?:aws_secret_access_key|aws_secret_key|secret_access_key)\s*[=:]\s*["']([A-Za-z0-9/+=]{40})["']`,
		Severity:    finding.Critical,
		Confidence:  finding.ConfidenceHigh,
		Category:    finding.Secret,
		Impact:      "Paired with an access key ID this grants full programmatic access to the AWS account.",
		RootCause:   "A long-lived AWS secret was hardcoded.",
		Fix:         "Rotate the key pair and use instance roles or environment-provided credentials.",
		ReferenceID: "CWE-798",
	},
	{
		ID:          "SECRET003",
		Title:       "GitHub Token Exposed",
		Description: "A GitHub personal access token is present in source.",
		Expr:        `\b(ghp_[A-Za-z0-9]{36}|github_pat_[A-Za-z0-9]{22}_[A-Za-z0-9]{59}|gh[ousr]_[A-Za-z0-9]{36})\b`,
		Severity:    finding.Critical,
		Confidence:  finding.ConfidenceHigh,
		Category:    finding.Secret,
		Impact:      "The token can read or push to every repository the owner can reach.",
		RootCause:   "A personal token was committed instead of being injected at runtime.",
		Fix:         "Revoke the token in GitHub settings and supply it through CI secrets or the environment.",
		ReferenceID: "CWE-798",
	},
	{
		ID:          "SECRET004",
		Title:       "Hardcoded API Key",
		Description: "A value assigned to an API key or token variable looks like a real credential.",
		Expr:        `(?i)(?:api[_-]?key|apikey|api[_-]?secret|api[_-]?token|access[_-]?token|auth[_-]?token)["']?\s*[=:]\s*["']([A-Za-z0-9_\-]{20,})["']`,
		Severity:    finding.High,
		Confidence:  finding.ConfidenceMedium,
		Category:    finding.Secret,
		Impact:      "The third-party account behind the key can be abused and billed to the owner.",
		RootCause:   "An API credential was embedded in code.",
		Fix:         "Rotate the key and read it from an environment variable or secret store.",
		ReferenceID: "CWE-798",
	},
	{
		ID:          "SECRET005",
		Title:       "Private Key Committed",
		Description: "A PEM private key block is present in the repository.",
		Expr:        `-----BEGIN\s+(?:RSA\s+|DSA\s+|EC\s+|OPENSSH\s+|PGP\s+|ENCRYPTED\s+)?PRIVATE\s+KEY(?:\s+BLOCK)?-----`,
		Severity:    finding.Critical,
		Confidence:  finding.ConfidenceHigh,
		Category:    finding.Secret,
		Impact:      "Whoever holds the key can impersonate the server or decrypt its traffic.",
		RootCause:   "Key material was stored alongside source code.",
		Fix:         "Regenerate the key pair, remove the file from history and mount keys from a secret store.",
		ReferenceID: "CWE-321",
	},
	{
		ID:          "SECRET006",
		Title:       "Database Connection String with Credentials",
		Description: "A database URL embeds a username and password.",
		Expr:        `(?i)((?:mongodb(?:\+srv)?|mysql|postgresql|postgres|redis|mssql|amqp)://[^:\s"'/]+:[^@\s"']+@[^/\s"']+)`,
		ExcludeExpr: `(?i)localhost|127\.0\.0\.1|example\.com|user:pass|username:password|\$\{|\{\{`,
		Severity:    finding.Critical,
		Confidence:  finding.ConfidenceHigh,
		Category:    finding.Secret,
		Impact:      "Direct access to the database with the embedded account's privileges.",
		RootCause:   "Credentials were inlined into a connection string.",
		Fix:         "Build the connection string from environment variables and rotate the password.",
		ReferenceID: "CWE-798",
	},
	{
		ID:          "SECRET007",
		Title:       "Hardcoded Signing Secret",
		Description: "A JWT or session signing secret is hardcoded.",
		Expr:        `(?i)(?:jwt[_-]?secret|secret[_-]?key|signing[_-]?key)["']?\s*[=:]\s*["']([A-Za-z0-9_\-!@#$%^&*]{16,})["']`,
		ExcludeExpr: `(?i)your[_-]?secret|change[_-]?me|example|getenv|environ`,
		Severity:    finding.Critical,
		Confidence:  finding.ConfidenceMedium,
		Category:    finding.Secret,
		Impact:      "Attackers can forge tokens or sessions for any user.",
		RootCause:   "The signing secret lives in source control.",
		Fix:         "Generate a new random secret and load it from the environment.",
		ReferenceID: "CWE-798",
	},
	{
		ID:          "SECRET008",
		Title:       "Slack Webhook URL Exposed",
		Description: "A Slack incoming webhook URL is committed.",
		Expr:        `(https://hooks\.slack\.com/services/T[A-Z0-9]+/B[A-Z0-9]+/[A-Za-z0-9]+)`,
		Severity:    finding.Medium,
		Confidence:  finding.ConfidenceHigh,
		Category:    finding.Secret,
		Impact:      "Anyone can post messages into the workspace channel.",
		RootCause:   "The webhook URL was stored in code.",
		Fix:         "Regenerate the webhook and keep the URL in a secret store.",
		ReferenceID: "CWE-798",
	},
	{
		ID:          "SECRET009",
		Title:       "Google API Key Exposed",
		Description: "A Google Cloud API key is committed.",
		Expr:        `\b(AIza[A-Za-z0-9_\-]{35})`,
		Severity:    finding.High,
		Confidence:  finding.ConfidenceHigh,
		Category:    finding.Secret,
		Impact:      "Quota theft and access to any Google API the key is enabled for.",
		RootCause:   "An unrestricted API key was hardcoded.",
		Fix:         "Restrict or delete the key in the Cloud console and load a new one at runtime.",
		ReferenceID: "CWE-798",
	},
	{
		ID:          "SECRET010",
		Title:       "Stripe API Key Exposed",
		Description: "A Stripe secret or restricted key is committed.",
		Expr:        `\b((?:sk|rk)_(?:live|test)_[A-Za-z0-9]{24,})`,
		Severity:    finding.Critical,
		Confidence:  finding.ConfidenceHigh,
		Category:    finding.Secret,
		Impact:      "Charges, refunds and customer data are reachable with the key.",
		RootCause:   "A payment provider key was hardcoded.",
		Fix:         "Roll the key in the Stripe dashboard and read it from the environment.",
		ReferenceID: "CWE-798",
	},
	{
		ID:          "SECRET011",
		Title:       "Hardcoded Password",
		Description: "A password literal is assigned in source.",
		Expr:        `(?i)(?:password|passwd|pwd|pass)["']?\s*[=:]\s*["']([^"'\s][^"']{7,})["']`,
		ExcludeExpr: `(?i)example|dummy|fake|password123|changeme|your_password|getenv|environ|\{\{`,
		Severity:    finding.High,
		Confidence:  finding.ConfidenceMedium,
		Category:    finding.Secret,
		Impact:      "The account protected by the password is open to anyone reading the code.",
		RootCause:   "A credential was written into source.",
		Fix:         "Remove the literal, rotate the password and inject it through configuration.",
		ReferenceID: "CWE-259",
	},
	{
		ID:          "SECRET012",
		Title:       "GitLab Token Exposed",
		Description: "A GitLab personal or project access token is committed.",
		Expr:        `\b(glpat-[A-Za-z0-9_\-]{20})\b`,
		Severity:    finding.Critical,
		Confidence:  finding.ConfidenceHigh,
		Category:    finding.Secret,
		Impact:      "Repository and API access as the token owner.",
		RootCause:   "A GitLab token was hardcoded.",
		Fix:         "Revoke the token and use CI/CD variables instead.",
		ReferenceID: "CWE-798",
	},
	{
		ID:          "SECRET013",
		Title:       "npm Access Token Exposed",
		Description: "An npm automation or publish token is committed.",
		Expr:        `\b(npm_[A-Za-z0-9]{36})\b`,
		Severity:    finding.High,
		Confidence:  finding.ConfidenceHigh,
		Category:    finding.Secret,
		Impact:      "Attackers can publish malicious versions of the owner's packages.",
		RootCause:   "A registry token was stored in the repository, often in .npmrc.",
		Fix:         "Revoke the token on npmjs.com and provide it via NPM_TOKEN in CI.",
		ReferenceID: "CWE-798",
	},
}
