package patterns

import "codebot/internal/finding"

var cryptoPatterns = []Pattern{
	{
		ID:          "CRYPTO001",
		Title:       "Weak Hash Algorithm: MD5",
		Description: "MD5 is used for hashing.",
		Expr:        `(?i)(?:hashlib\.md5|createHash\s*\(\s*["']md5["']|\bmd5\.(?:New|Sum)\b|MessageDigest\.getInstance\s*\(\s*"MD5"|\bMD5\s*\()`,
		Severity:    finding.Medium,
		Confidence:  finding.ConfidenceHigh,
		Category:    finding.Crypto,
		Impact:      "Collisions are practical; MD5 must not protect passwords or integrity.",
		RootCause:   "A broken digest algorithm was chosen.",
		Fix:         "Use SHA-256 or better; for passwords use bcrypt, scrypt or Argon2.",
		ReferenceID: "CWE-328",
	},
	{
		ID:          "CRYPTO002",
		Title:       "Weak Hash Algorithm: SHA-1",
		Description: "SHA-1 is used for hashing.",
		Expr:        `(?i)(?:hashlib\.sha1|createHash\s*\(\s*["']sha1["']|\bsha1\.(?:New|Sum)\b|MessageDigest\.getInstance\s*\(\s*"SHA-?1"|\bSHA1\s*\()`,
		Severity:    finding.Medium,
		Confidence:  finding.ConfidenceHigh,
		Category:    finding.Crypto,
		Impact:      "Chosen-prefix collisions against SHA-1 are feasible.",
		RootCause:   "A deprecated digest algorithm was chosen.",
		Fix:         "Use SHA-256 or SHA-3.",
		ReferenceID: "CWE-328",
	},
	{
		ID:          "CRYPTO003",
		Title:       "Insecure Random Number Generation",
		Description: "A non-cryptographic PRNG is used; this matters when the value is a token or key.",
		Expr:        `(?:\brandom\.(?:random|randint|choice|randrange)\s*\(|Math\.random\s*\(\)|\bmath/rand"|\brand\.(?:Intn|Int63|Read)\()`,
		Severity:    finding.Medium,
		Confidence:  finding.ConfidenceLow,
		Category:    finding.Crypto,
		Impact:      "Predictable values can be guessed if used for secrets.",
		RootCause:   "A statistical PRNG was used where unpredictability may be required.",
		Fix:         "Use secrets (Python), crypto.randomBytes (Node) or crypto/rand (Go) for security values.",
		ReferenceID: "CWE-338",
	},
	{
		ID:          "CRYPTO004",
		Title:       "TLS Certificate Verification Disabled",
		Description: "Certificate verification is turned off for outgoing TLS.",
		Expr:        `(?:InsecureSkipVerify\s*:\s*true|verify\s*=\s*False|rejectUnauthorized\s*:\s*false|CURLOPT_SSL_VERIFYPEER\s*,\s*(?:false|0))`,
		Severity:    finding.High,
		Confidence:  finding.ConfidenceHigh,
		Category:    finding.Crypto,
		Impact:      "Man-in-the-middle attackers can read and alter traffic.",
		RootCause:   "Certificate validation was disabled, often to work around a test setup.",
		Fix:         "Remove the override and trust the correct CA bundle instead.",
		ReferenceID: "CWE-295",
	},
	{
		ID:          "CRYPTO005",
		Title:       "Weak Cipher",
		Description: "DES, 3DES, RC4 or ECB mode is used.",
		Expr:        `(?:\bdes\.NewCipher|\bdes\.NewTripleDESCipher|\brc4\.NewCipher|Cipher\.getInstance\s*\(\s*"(?:DES|DESede|RC4|AES/ECB)[^"]*"|\bDES3?\.new\s*\(|\bARC4\.new\s*\(|AES\.MODE_ECB|createCipheriv\s*\(\s*["'](?:des|rc4|aes-\d+-ecb))`,
		Severity:    finding.High,
		Confidence:  finding.ConfidenceHigh,
		Category:    finding.Crypto,
		Impact:      "Encrypted data can be recovered or manipulated.",
		RootCause:   "An obsolete cipher or mode was selected.",
		Fix:         "Use AES-GCM or ChaCha20-Poly1305.",
		ReferenceID: "CWE-327",
	},
}
