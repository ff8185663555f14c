package patterns

import "codebot/internal/finding"

var authPatterns = []Pattern{
	{
		ID:          "AUTH001",
		Title:       "Route Without Authentication Check",
		Description: "A route is declared without an authentication decorator or middleware on the same line.",
		Expr:        `(?i)(?:@app\.route\(["'][^"']+["']\)|router\.(?:get|post|put|delete)\(["'])`,
		ExcludeExpr: `(?i)auth|login_required|jwt_required|authenticate|protect|verify`,
		Severity:    finding.High,
		Confidence:  finding.ConfidenceLow,
		Category:    finding.Auth,
		Impact:      "Endpoints may be reachable without logging in.",
		RootCause:   "No authentication guard is visible on the route definition.",
		Fix:         "Add @login_required / @jwt_required or an authenticate middleware.",
		ReferenceID: "CWE-306",
	},
	{
		ID:          "AUTH002",
		Title:       "Weak Session Cookie Configuration",
		Description: "Session cookies are not marked Secure or HttpOnly.",
		Expr:        `(?i)(?:SESSION_COOKIE_SECURE\s*=\s*False|SESSION_COOKIE_HTTPONLY\s*=\s*False|cookie\.secure\s*=\s*false|secure\s*:\s*false|httpOnly\s*:\s*false|HttpOnly\s*:\s*false|Secure\s*:\s*false)`,
		Severity:    finding.Medium,
		Confidence:  finding.ConfidenceHigh,
		Category:    finding.Auth,
		Impact:      "Session cookies can be sent over plain HTTP or read by scripts.",
		RootCause:   "Cookie security attributes are disabled.",
		Fix:         "Set Secure and HttpOnly on session cookies and use SameSite.",
		ReferenceID: "CWE-614",
	},
	{
		ID:          "AUTH003",
		Title:       "Hardcoded Salt or IV",
		Description: "A salt, IV or nonce is a constant literal.",
		Expr:        `(?i)\b(?:salt|iv|nonce)\s*:?=\s*b?["'][A-Za-z0-9+/=]{16,}["']`,
		Severity:    finding.High,
		Confidence:  finding.ConfidenceHigh,
		Category:    finding.Auth,
		Impact:      "Reused salts enable precomputation; reused IVs break cipher confidentiality.",
		RootCause:   "Randomized cryptographic input was fixed at build time.",
		Fix:         "Generate a fresh random salt or nonce per operation and store it with the ciphertext.",
		ReferenceID: "CWE-329",
	},
	{
		ID:          "AUTH004",
		Title:       "Plaintext Password Storage",
		Description: "A password field is assigned directly from request data.",
		Expr:        `(?i)(?:user\.password|\.password)\s*=\s*(?:request\.|req\.body\.)`,
		Severity:    finding.Critical,
		Confidence:  finding.ConfidenceMedium,
		Category:    finding.Auth,
		Impact:      "A database leak exposes every user's password.",
		RootCause:   "The password is stored without hashing.",
		Fix:         "Hash with bcrypt/Argon2 (e.g. make_password, bcrypt.hash) before storing.",
		ReferenceID: "CWE-256",
	},
	{
		ID:          "AUTH005",
		Title:       "JWT Signature Verification Disabled",
		Description: "A JWT is decoded without verifying its signature or with the none algorithm.",
		Expr:        `(?i)(?:verify_signature["']?\s*:\s*False|verify\s*=\s*False[^\n]*jwt|jwt\.decode\([^)]*verify\s*=\s*False|algorithms?\s*[=:]\s*\[?\s*["']none["'])`,
		Severity:    finding.Critical,
		Confidence:  finding.ConfidenceHigh,
		Category:    finding.Auth,
		Impact:      "Attackers can forge tokens with arbitrary claims.",
		RootCause:   "Signature checks were disabled.",
		Fix:         "Always verify signatures and pin the expected algorithm.",
		ReferenceID: "CWE-347",
	},
}

var authzPatterns = []Pattern{
	{
		ID:          "AUTHZ001",
		Title:       "Insecure Direct Object Reference",
		Description: "An object is fetched by an identifier taken straight from the request.",
		Expr:        `(?i)(?:get|find|fetch)(?:One|By(?:Id|PK))?\s*\(\s*(?:req\.params|request\.GET|params\.|query\.)`,
		Severity:    finding.High,
		Confidence:  finding.ConfidenceMedium,
		Category:    finding.Authz,
		Impact:      "Users can access other users' records by changing an ID.",
		RootCause:   "Ownership is not checked when loading the object.",
		Fix:         "Scope lookups to the current user or verify ownership before returning data.",
		ReferenceID: "CWE-639",
	},
	{
		ID:          "AUTHZ002",
		Title:       "Missing Authorization Check",
		Description: "A destructive operation uses a request-supplied identifier.",
		Expr:        `(?i)\.(?:delete|update|remove|destroy)\s*\([^)]*(?:req\.params|request\.GET)`,
		Severity:    finding.High,
		Confidence:  finding.ConfidenceMedium,
		Category:    finding.Authz,
		Impact:      "Any authenticated user may modify or delete resources they do not own.",
		RootCause:   "No permission check precedes the mutation.",
		Fix:         "Check the caller's permissions on the target before mutating it.",
		ReferenceID: "CWE-862",
	},
	{
		ID:          "AUTHZ003",
		Title:       "Mass Assignment",
		Description: "A model is created or updated from the whole request body.",
		Expr:        `(?i)\.(?:update|create|save)\s*\(\s*(?:req\.body|request\.(?:POST|data)|params\.permit!)`,
		Severity:    finding.High,
		Confidence:  finding.ConfidenceMedium,
		Category:    finding.Authz,
		Impact:      "Clients can set privileged fields such as is_admin.",
		RootCause:   "Request fields are bound to the model without an allowlist.",
		Fix:         "Copy only allowed fields or use a serializer with explicit fields.",
		ReferenceID: "CWE-915",
	},
}
