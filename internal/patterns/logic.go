package patterns

import "codebot/internal/finding"

var logicPatterns = []Pattern{
	{
		ID:          "LOGIC001",
		Title:       "Sensitive Endpoint Without Rate Limiting",
		Description: "A login, registration or password endpoint is declared; no limiter is visible on it.",
		Expr:        `(?i)(?:@app\.route|router\.post|app\.post)\s*\(["']/(?:login|signin|register|signup|password|reset)`,
		ExcludeExpr: `(?i)limit`,
		Severity:    finding.Medium,
		Confidence:  finding.ConfidenceLow,
		Category:    finding.BusinessLogic,
		Impact:      "Credential stuffing and brute force are unthrottled.",
		RootCause:   "No rate limiting middleware on an authentication endpoint.",
		Fix:         "Add a limiter (flask-limiter, express-rate-limit) to the route.",
		ReferenceID: "CWE-307",
	},
	{
		ID:          "LOGIC002",
		Title:       "Time-of-Check Time-of-Use Race",
		Description: "A path is checked for existence and then used on the same line.",
		Expr:        `if\s+os\.path\.exists\([^)]+\)\s*:\s*\S*(?:open|remove|unlink|rename)\s*\(`,
		Severity:    finding.Medium,
		Confidence:  finding.ConfidenceLow,
		Category:    finding.BusinessLogic,
		Impact:      "The file can be swapped between the check and the use.",
		RootCause:   "Check and use are separate filesystem operations.",
		Fix:         "Open the file directly and handle the error, or use O_EXCL.",
		ReferenceID: "CWE-367",
	},
	{
		ID:          "LOGIC003",
		Title:       "Unchecked Arithmetic on Monetary Value",
		Description: "A monetary quantity is combined without bounds checking.",
		Expr:        `(?i)\b(?:amount|price|quantity|balance)\s*(?:\+|\*)\s*(?:\d+|[\w.]+)`,
		Severity:    finding.Medium,
		Confidence:  finding.ConfidenceLow,
		Category:    finding.BusinessLogic,
		Impact:      "Overflow or negative values can manipulate totals.",
		RootCause:   "Client-influenced quantities are not validated.",
		Fix:         "Validate ranges and use decimal types for currency.",
		ReferenceID: "CWE-190",
	},
}

var errorPatterns = []Pattern{
	{
		ID:          "ERROR001",
		Title:       "Debug Mode Enabled",
		Description: "Debug mode is switched on in code.",
		Expr:        `(?:\bDEBUG\s*=\s*True\b|\bdebug\s*=\s*True\b|app\.run\([^)]*debug\s*=\s*True)`,
		Severity:    finding.High,
		Confidence:  finding.ConfidenceHigh,
		Category:    finding.ErrorHandling,
		Impact:      "Stack traces, settings and sometimes an interactive console are exposed.",
		RootCause:   "A development setting is active in committed code.",
		Fix:         "Read the debug flag from the environment and default it to off.",
		ReferenceID: "CWE-489",
	},
	{
		ID:          "ERROR002",
		Title:       "Sensitive Data in Error Output",
		Description: "An exception handler logs or prints secret-looking values.",
		Expr:        `(?i)(?:except[^:]*:|catch\s*\([^)]*\)\s*\{)\s*(?:print|console\.log|logger\.error|log\.error)\s*\([^)]*(?:password|secret|token|api_?key)`,
		Severity:    finding.Medium,
		Confidence:  finding.ConfidenceMedium,
		Category:    finding.ErrorHandling,
		Impact:      "Credentials end up in logs.",
		RootCause:   "Error paths log raw sensitive data.",
		Fix:         "Log identifiers only and redact secrets.",
		ReferenceID: "CWE-209",
	},
	{
		ID:          "ERROR003",
		Title:       "Stack Trace Returned to Client",
		Description: "An error's stack or traceback is written into the HTTP response.",
		Expr:        `(?i)(?:res\.(?:send|json)\s*\([^)]*(?:err|error)\.stack|traceback\.format_exc\(\)[^\n]*(?:return|Response)|http\.Error\s*\([^,]+,\s*err\.Error\(\))`,
		Severity:    finding.Low,
		Confidence:  finding.ConfidenceMedium,
		Category:    finding.ErrorHandling,
		Impact:      "Internal paths and library versions leak to attackers.",
		RootCause:   "Raw error details are sent to clients.",
		Fix:         "Return a generic message and log the detail server-side.",
		ReferenceID: "CWE-209",
	},
}
