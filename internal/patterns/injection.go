package patterns

import "codebot/internal/finding"

// bt is a backtick, for expressions that match JavaScript template literals.
const bt = "`"

const (
	sqlConcatImpact = "Full database compromise: attackers can read, modify or delete any row."
	sqlConcatCause  = "The query text is assembled from runtime values instead of bound parameters."
	sqlConcatFix    = "Use parameterized queries, e.g. cursor.execute(\"SELECT * FROM users WHERE id = %s\", (user_id,)) or db.Query(\"... WHERE id = $1\", id)."

	cmdImpact = "Arbitrary command execution on the host with the application's privileges."
	cmdCause  = "Untrusted input reaches a shell or interpreter."
)

var injectionPatterns = []Pattern{
	{
		ID:          "SQLI001",
		Title:       "SQL Injection via String Concatenation",
		Description: "A database call receives a query string built with concatenation or %-formatting.",
		Expr:        `(?i)(?:execute|executemany|raw|rawQuery)\s*\(\s*["'][^"']*(?:%s|\{|\+)[^"']*["'](?:\s*%|\s*\.format|\s*\+)`,
		Severity:    finding.Critical,
		Confidence:  finding.ConfidenceHigh,
		Category:    finding.Injection,
		Extensions:  py,
		Impact:      sqlConcatImpact,
		RootCause:   sqlConcatCause,
		Fix:         sqlConcatFix,
		ReferenceID: "CWE-89",
	},
	{
		ID:          "SQLI002",
		Title:       "SQL Injection via f-string",
		Description: "A database call receives an f-string with interpolated values.",
		Expr:        `(?i)(?:execute|executemany)\s*\(\s*f["'][^"']*\{[^}]+\}[^"']*["']`,
		Severity:    finding.Critical,
		Confidence:  finding.ConfidenceHigh,
		Category:    finding.Injection,
		Extensions:  py,
		Impact:      sqlConcatImpact,
		RootCause:   "Values are interpolated directly into SQL text.",
		Fix:         sqlConcatFix,
		ReferenceID: "CWE-89",
	},
	{
		ID:          "SQLI003",
		Title:       "SQL Injection via Template Literal",
		Description: "A query is built from a JavaScript template literal with embedded expressions.",
		Expr:        `(?i)(?:query|execute|raw)\s*\(\s*` + bt + `[^` + bt + `]*\$\{[^}]+\}`,
		Severity:    finding.Critical,
		Confidence:  finding.ConfidenceHigh,
		Category:    finding.Injection,
		Extensions:  js,
		Impact:      sqlConcatImpact,
		RootCause:   "Template literal interpolation places raw values into SQL.",
		Fix:         "Pass values as bind parameters: db.query(\"SELECT * FROM users WHERE id = $1\", [id]).",
		ReferenceID: "CWE-89",
	},
	{
		ID:          "SQLI004",
		Title:       "SQL Injection via String Concatenation",
		Description: "A query is concatenated with request data.",
		Expr:        `(?i)(?:query|execute)\s*\(\s*["'][^"']+["']?\s*\+\s*(?:req\.|request\.|params\.|query\.)`,
		Severity:    finding.Critical,
		Confidence:  finding.ConfidenceHigh,
		Category:    finding.Injection,
		Extensions:  js,
		Impact:      sqlConcatImpact,
		RootCause:   sqlConcatCause,
		Fix:         "Pass values as bind parameters: db.query(\"SELECT * FROM users WHERE id = ?\", [req.params.id]).",
		ReferenceID: "CWE-89",
	},
	{
		ID:          "SQLI005",
		Title:       "SQL Injection via String Concatenation",
		Description: "A SELECT ... WHERE literal is extended with concatenation or formatting.",
		Expr:        `(?i)["']SELECT\s+.*\s+FROM\s+.*\s+WHERE\s+.*["'](?:\s*\+|\s*%|\s*\.format)`,
		Severity:    finding.High,
		Confidence:  finding.ConfidenceHigh,
		Category:    finding.Injection,
		Impact:      sqlConcatImpact,
		RootCause:   sqlConcatCause,
		Fix:         sqlConcatFix,
		ReferenceID: "CWE-89",
	},
	{
		ID:          "SQLI006",
		Title:       "SQL Injection via String Concatenation",
		Description: "A variable holding SQL text is concatenated with another value.",
		Expr:        `(?i)(?:query|sql)\s*:?=\s*["'](?:SELECT|INSERT|UPDATE|DELETE)\s+[^"']*["']?\s*\+\s*\w+`,
		Severity:    finding.High,
		Confidence:  finding.ConfidenceMedium,
		Category:    finding.Injection,
		Impact:      sqlConcatImpact,
		RootCause:   sqlConcatCause,
		Fix:         sqlConcatFix,
		ReferenceID: "CWE-89",
	},
	{
		ID:          "SQLI007",
		Title:       "SQL Injection via String Formatting",
		Description: "A Go database call receives a query produced by fmt.Sprintf.",
		Expr:        `\.(?:Query|QueryRow|QueryContext|QueryRowContext|Exec|ExecContext|Raw)\s*\(\s*(?:ctx\s*,\s*)?fmt\.Sprintf\(`,
		Severity:    finding.Critical,
		Confidence:  finding.ConfidenceHigh,
		Category:    finding.Injection,
		Extensions:  golng,
		Impact:      sqlConcatImpact,
		RootCause:   "fmt.Sprintf places values into SQL text.",
		Fix:         "Use placeholders: db.QueryContext(ctx, \"SELECT * FROM users WHERE id = $1\", id).",
		ReferenceID: "CWE-89",
	},
	{
		ID:          "SQLI008",
		Title:       "SQL Injection via String Concatenation",
		Description: "A JDBC or JPA query string is concatenated with a value.",
		Expr:        `(?:executeQuery|executeUpdate|execute|prepareStatement|createQuery|createNativeQuery)\s*\(\s*"[^"]*"\s*\+`,
		Severity:    finding.Critical,
		Confidence:  finding.ConfidenceHigh,
		Category:    finding.Injection,
		Extensions:  java,
		Impact:      sqlConcatImpact,
		RootCause:   sqlConcatCause,
		Fix:         "Use PreparedStatement with ? placeholders and setString/setInt.",
		ReferenceID: "CWE-89",
	},
	{
		ID:          "SQLI009",
		Title:       "SQL Injection via Superglobal",
		Description: "A PHP query call uses request superglobals directly.",
		Expr:        `(?i)(?:mysql_query|mysqli_query|->query|->exec|pg_query)\s*\([^)]*\$_(?:GET|POST|REQUEST|COOKIE)`,
		Severity:    finding.Critical,
		Confidence:  finding.ConfidenceHigh,
		Category:    finding.Injection,
		Extensions:  php,
		Impact:      sqlConcatImpact,
		RootCause:   "Request input is placed into SQL without binding.",
		Fix:         "Use PDO prepared statements with bound parameters.",
		ReferenceID: "CWE-89",
	},
	{
		ID:          "SQLI010",
		Title:       "SQL Injection via String Interpolation",
		Description: "An ActiveRecord condition interpolates a value into a SQL fragment.",
		Expr:        `\.(?:where|find_by_sql|order|joins)\s*\(\s*"[^"]*#\{`,
		Severity:    finding.High,
		Confidence:  finding.ConfidenceHigh,
		Category:    finding.Injection,
		Extensions:  ruby,
		Impact:      sqlConcatImpact,
		RootCause:   "Ruby string interpolation builds the SQL fragment.",
		Fix:         "Use hash conditions or placeholders: where(\"id = ?\", id).",
		ReferenceID: "CWE-89",
	},
	{
		ID:          "CMDI001",
		Title:       "Command Injection via os.system",
		Description: "os.system runs a command string built from variables.",
		Expr:        `os\.system\s*\(\s*(?:f["']|["'][^"']*(?:%|\{|\+)|[^"')]+\+)`,
		Severity:    finding.Critical,
		Confidence:  finding.ConfidenceHigh,
		Category:    finding.Injection,
		Extensions:  py,
		Impact:      cmdImpact,
		RootCause:   cmdCause,
		Fix:         "Use subprocess.run([...], shell=False) with an argument list and validate inputs.",
		ReferenceID: "CWE-78",
	},
	{
		ID:          "CMDI002",
		Title:       "Command Injection via subprocess shell=True",
		Description: "A subprocess call enables shell interpretation.",
		Expr:        `subprocess\.(?:call|run|Popen|check_output|check_call)\s*\([^)]*shell\s*=\s*True`,
		Severity:    finding.High,
		Confidence:  finding.ConfidenceMedium,
		Category:    finding.Injection,
		Extensions:  py,
		Impact:      cmdImpact,
		RootCause:   "shell=True hands the whole command line to /bin/sh.",
		Fix:         "Pass an argument list with shell=False.",
		ReferenceID: "CWE-78",
	},
	{
		ID:          "CMDI003",
		Title:       "Code Injection via eval()",
		Description: "eval() evaluates request, argv or environment data.",
		Expr:        `\beval\s*\(\s*(?:request\.|input\(|sys\.argv|os\.environ)`,
		Severity:    finding.Critical,
		Confidence:  finding.ConfidenceHigh,
		Category:    finding.Injection,
		Extensions:  py,
		Impact:      "Arbitrary Python execution inside the application process.",
		RootCause:   "External input is evaluated as code.",
		Fix:         "Use ast.literal_eval for literals or explicit parsing.",
		ReferenceID: "CWE-94",
	},
	{
		ID:          "CMDI004",
		Title:       "Command Injection via child_process",
		Description: "A child_process call builds its command from a template or request data.",
		Expr:        `\b(?:exec|execSync|spawn|spawnSync)\s*\(\s*(?:` + bt + `[^` + bt + `]*\$\{|["'][^"']+["']\s*\+\s*(?:req\.|request\.|params\.|query\.))`,
		Severity:    finding.Critical,
		Confidence:  finding.ConfidenceHigh,
		Category:    finding.Injection,
		Extensions:  node,
		Impact:      cmdImpact,
		RootCause:   cmdCause,
		Fix:         "Use execFile/spawn with an argument array and no shell.",
		ReferenceID: "CWE-78",
	},
	{
		ID:          "CMDI005",
		Title:       "Command Injection via os.system",
		Description: "os.system is called with a variable.",
		Expr:        `os\.system\s*\(\s*\w+\s*\)`,
		Severity:    finding.High,
		Confidence:  finding.ConfidenceMedium,
		Category:    finding.Injection,
		Extensions:  py,
		Impact:      cmdImpact,
		RootCause:   "A shell command string comes from a variable of unknown origin.",
		Fix:         "Replace os.system with subprocess.run and an argument list.",
		ReferenceID: "CWE-78",
	},
	{
		ID:          "CMDI006",
		Title:       "Code Injection via eval()",
		Description: "eval() is called on a variable.",
		Expr:        `\beval\s*\(\s*\w+\s*\)`,
		Severity:    finding.Critical,
		Confidence:  finding.ConfidenceMedium,
		Category:    finding.Injection,
		Extensions:  py,
		Impact:      "Arbitrary code execution if the variable is attacker influenced.",
		RootCause:   "Dynamic evaluation of data.",
		Fix:         "Remove eval; parse the data explicitly.",
		ReferenceID: "CWE-94",
	},
	{
		ID:          "CMDI007",
		Title:       "Code Injection via exec()",
		Description: "exec() runs dynamically supplied Python code.",
		Expr:        `(?:^|[^.\w])exec\s*\(\s*\w+`,
		Severity:    finding.Critical,
		Confidence:  finding.ConfidenceMedium,
		Category:    finding.Injection,
		Extensions:  py,
		Impact:      "Arbitrary code execution if the argument is attacker influenced.",
		RootCause:   "Dynamic execution of data.",
		Fix:         "Remove exec and dispatch to known functions instead.",
		ReferenceID: "CWE-94",
	},
	{
		ID:          "CMDI008",
		Title:       "Command Injection via Shell Invocation",
		Description: "exec.Command starts a shell with -c and a composed command line.",
		Expr:        `exec\.Command(?:Context)?\s*\(\s*(?:ctx\s*,\s*)?"(?:sh|bash|/bin/sh|/bin/bash|cmd|cmd\.exe)"\s*,\s*"(?:-c|/c|/C)"\s*,\s*(?:fmt\.Sprintf|[^)]*\+)`,
		Severity:    finding.High,
		Confidence:  finding.ConfidenceHigh,
		Category:    finding.Injection,
		Extensions:  golng,
		Impact:      cmdImpact,
		RootCause:   "A composed string is interpreted by a shell.",
		Fix:         "Call the binary directly: exec.CommandContext(ctx, \"git\", \"clone\", url).",
		ReferenceID: "CWE-78",
	},
	{
		ID:          "CMDI009",
		Title:       "Command Injection via Superglobal",
		Description: "A PHP execution function receives request data.",
		Expr:        `(?i)\b(?:eval|system|shell_exec|passthru|exec|popen|proc_open)\s*\(\s*[^)]*\$_(?:GET|POST|REQUEST|COOKIE)`,
		Severity:    finding.Critical,
		Confidence:  finding.ConfidenceHigh,
		Category:    finding.Injection,
		Extensions:  php,
		Impact:      cmdImpact,
		RootCause:   cmdCause,
		Fix:         "Never pass request data to execution functions; use escapeshellarg and allowlists.",
		ReferenceID: "CWE-78",
	},
	{
		ID:          "CMDI010",
		Title:       "Command Injection via Runtime.exec",
		Description: "Runtime.exec is given a concatenated command line.",
		Expr:        `Runtime\.getRuntime\(\)\.exec\s*\(\s*[^)]*\+`,
		Severity:    finding.Critical,
		Confidence:  finding.ConfidenceHigh,
		Category:    finding.Injection,
		Extensions:  java,
		Impact:      cmdImpact,
		RootCause:   cmdCause,
		Fix:         "Use ProcessBuilder with a fixed executable and separate arguments.",
		ReferenceID: "CWE-78",
	},
}

var xssPatterns = []Pattern{
	{
		ID:          "XSS001",
		Title:       "Cross-Site Scripting via innerHTML",
		Description: "innerHTML is assigned request data or a template literal.",
		Expr:        `\.innerHTML\s*=\s*(?:req\.|request\.|params\.|query\.|location\.|` + bt + `[^` + bt + `]*\$\{)`,
		Severity:    finding.High,
		Confidence:  finding.ConfidenceHigh,
		Category:    finding.XSS,
		Extensions:  web,
		Impact:      "Script execution in victims' browsers, leading to session theft.",
		RootCause:   "Untrusted data is inserted into the DOM as HTML.",
		Fix:         "Use textContent or sanitize with DOMPurify before assigning HTML.",
		ReferenceID: "CWE-79",
	},
	{
		ID:          "XSS002",
		Title:       "Cross-Site Scripting via dangerouslySetInnerHTML",
		Description: "React renders raw HTML without visible sanitization.",
		Expr:        `dangerouslySetInnerHTML\s*=\s*\{\s*\{\s*__html\s*:`,
		ExcludeExpr: `DOMPurify|sanitize`,
		Severity:    finding.High,
		Confidence:  finding.ConfidenceMedium,
		Category:    finding.XSS,
		Extensions:  jsx,
		Impact:      "Script execution in victims' browsers.",
		RootCause:   "HTML is rendered verbatim.",
		Fix:         "Sanitize the HTML (DOMPurify.sanitize) or render text instead.",
		ReferenceID: "CWE-79",
	},
	{
		ID:          "XSS003",
		Title:       "Cross-Site Scripting via document.write",
		Description: "document.write outputs location data or a template literal.",
		Expr:        `document\.write(?:ln)?\s*\(\s*(?:location\.|window\.|document\.URL|` + bt + `[^` + bt + `]*\$\{)`,
		Severity:    finding.High,
		Confidence:  finding.ConfidenceHigh,
		Category:    finding.XSS,
		Extensions:  []string{".js", ".html"},
		Impact:      "DOM-based script injection.",
		RootCause:   "URL-controlled data is written as markup.",
		Fix:         "Build DOM nodes and set textContent.",
		ReferenceID: "CWE-79",
	},
	{
		ID:          "XSS004",
		Title:       "Cross-Site Scripting via Unescaped Template Output",
		Description: "A Go template.HTML conversion wraps a non-constant value.",
		Expr:        `template\.HTML\s*\(\s*[^")]`,
		Severity:    finding.Medium,
		Confidence:  finding.ConfidenceMedium,
		Category:    finding.XSS,
		Extensions:  golng,
		Impact:      "html/template escaping is bypassed for the wrapped value.",
		RootCause:   "Dynamic content is marked as trusted HTML.",
		Fix:         "Pass plain strings to templates and let html/template escape them.",
		ReferenceID: "CWE-79",
	},
}

var deserializationPatterns = []Pattern{
	{
		ID:          "DESER001",
		Title:       "Insecure Deserialization via pickle",
		Description: "pickle loads data that may not be trusted.",
		Expr:        `pickle\.(?:loads?|Unpickler)\s*\(`,
		Severity:    finding.Critical,
		Confidence:  finding.ConfidenceMedium,
		Category:    finding.Deserialization,
		Extensions:  py,
		Impact:      "Unpickling attacker data executes arbitrary code.",
		RootCause:   "pickle reconstructs arbitrary objects.",
		Fix:         "Use JSON or another data-only format for untrusted input.",
		ReferenceID: "CWE-502",
	},
	{
		ID:          "DESER002",
		Title:       "Insecure Deserialization via yaml.load",
		Description: "yaml.load is called without a safe loader.",
		Expr:        `yaml\.load\s*\(`,
		ExcludeExpr: `Loader\s*=\s*(?:yaml\.)?(?:Safe|CSafe|Base)Loader|safe_load`,
		Severity:    finding.Critical,
		Confidence:  finding.ConfidenceHigh,
		Category:    finding.Deserialization,
		Extensions:  py,
		Impact:      "YAML tags can instantiate arbitrary Python objects.",
		RootCause:   "The default loader is unsafe for untrusted input.",
		Fix:         "Use yaml.safe_load or Loader=yaml.SafeLoader.",
		ReferenceID: "CWE-502",
	},
	{
		ID:          "DESER003",
		Title:       "Insecure Deserialization via ObjectInputStream",
		Description: "Java native deserialization of a stream.",
		Expr:        `new\s+ObjectInputStream\s*\(`,
		Severity:    finding.High,
		Confidence:  finding.ConfidenceMedium,
		Category:    finding.Deserialization,
		Extensions:  java,
		Impact:      "Gadget chains on the classpath allow remote code execution.",
		RootCause:   "Native serialization trusts the class names in the stream.",
		Fix:         "Use a data format such as JSON, or an ObjectInputFilter allowlist.",
		ReferenceID: "CWE-502",
	},
	{
		ID:          "DESER004",
		Title:       "Insecure Deserialization via unserialize",
		Description: "PHP unserialize receives request data.",
		Expr:        `(?i)unserialize\s*\(\s*[^)]*\$_(?:GET|POST|REQUEST|COOKIE)`,
		Severity:    finding.Critical,
		Confidence:  finding.ConfidenceHigh,
		Category:    finding.Deserialization,
		Extensions:  php,
		Impact:      "Object injection leading to code execution.",
		RootCause:   "Untrusted serialized data is restored into objects.",
		Fix:         "Use json_decode for client data.",
		ReferenceID: "CWE-502",
	},
}

var pathTraversalPatterns = []Pattern{
	{
		ID:          "PATH001",
		Title:       "Path Traversal via File Open",
		Description: "open() receives a path derived from the request.",
		Expr:        `\bopen\s*\(\s*(?:request\.|os\.path\.join\s*\([^)]*request)`,
		Severity:    finding.High,
		Confidence:  finding.ConfidenceMedium,
		Category:    finding.PathTraversal,
		Extensions:  py,
		Impact:      "Reading or overwriting files outside the intended directory.",
		RootCause:   "User-controlled path components are not normalized or confined.",
		Fix:         "Resolve the path and verify it stays under a base directory; prefer an allowlist of names.",
		ReferenceID: "CWE-22",
	},
	{
		ID:          "PATH002",
		Title:       "Path Traversal via fs Call",
		Description: "A Node fs call receives request data directly.",
		Expr:        `fs\.(?:readFile|readFileSync|writeFile|writeFileSync|unlink|readdir|stat|createReadStream)\s*\(\s*(?:req\.|request\.|params\.)`,
		Severity:    finding.High,
		Confidence:  finding.ConfidenceHigh,
		Category:    finding.PathTraversal,
		Extensions:  node,
		Impact:      "Reading or overwriting files outside the intended directory.",
		RootCause:   "Request input is used as a filesystem path.",
		Fix:         "Use path.resolve and check the result starts with the allowed root.",
		ReferenceID: "CWE-22",
	},
	{
		ID:          "PATH003",
		Title:       "Path Traversal via File Open",
		Description: "A Go file operation joins a path with request input.",
		Expr:        `os\.(?:Open|ReadFile|Create|OpenFile|Remove)\s*\(\s*filepath\.Join\s*\([^)]*r\.(?:URL|Form|FormValue|PathValue)`,
		Severity:    finding.High,
		Confidence:  finding.ConfidenceHigh,
		Category:    finding.PathTraversal,
		Extensions:  golng,
		Impact:      "Reading or overwriting files outside the intended directory.",
		RootCause:   "filepath.Join does not stop ../ segments.",
		Fix:         "Use os.Root (Go 1.24+) or verify the cleaned path keeps the base prefix.",
		ReferenceID: "CWE-22",
	},
}
