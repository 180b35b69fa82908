package scrub

// DefaultRules covers what callers tend to read out or paste: card and
// bank numbers, US social security numbers, and API credentials.
func DefaultRules() []Rule {
	return []Rule{
		// 14+ digits so epoch-millisecond timestamps are left alone.
		{
			ID:       "payment-card",
			Pattern:  `\b(?:\d[ -]?){13,18}\d\b`,
			Validate: luhn,
		},
		{
			ID:      "us-ssn",
			Pattern: `\b\d{3}-\d{2}-\d{4}\b`,
		},
		{
			ID:       "bank-account",
			Pattern:  `(?i)(?:account|routing)(?:\s+(?:number|no\.?|#))?\s*(?:is|:)?\s*\d[\d -]{5,20}\d`,
			Keywords: []string{"account", "routing"},
		},
		{
			ID:      "openai-key",
			Pattern: `sk-(?:proj-)?[A-Za-z0-9_-]{20,}`,
		},
		{
			ID:       "bearer-token",
			Pattern:  `(?i)bearer\s+[A-Za-z0-9._~+/-]{16,}=*`,
			Keywords: []string{"bearer"},
		},
		{
			ID:      "jwt",
			Pattern: `eyJ[A-Za-z0-9_-]{8,}\.eyJ[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{8,}`,
		},
		{
			ID:       "password",
			Pattern:  `(?i)\b(?:password|passcode|pin)\s*(?:is|:|=)\s*[^\s"',}\]]{4,}`,
			Keywords: []string{"password", "passcode", "pin"},
		},
		{
			ID:      "private-key",
			Pattern: `-----BEGIN (?:RSA |EC |OPENSSH )?PRIVATE KEY-----`,
		},
	}
}

// luhn reports whether the digits in s pass the card checksum.
func luhn(s string) bool {
	sum, n := 0, 0
	double := false
	for i := len(s) - 1; i >= 0; i-- {
		c := s[i]
		if c < '0' || c > '9' {
			continue
		}
		d := int(c - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
		n++
	}
	return n >= 14 && sum%10 == 0
}
