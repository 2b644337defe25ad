package digest

import "strings"

// ParseChallenge parses a WWW-Authenticate/Proxy-Authenticate header
// value, scheme token included ("Digest realm=..."); a value with no
// space is read as Digest parameters alone. Unknown parameters are
// ignored.
func ParseChallenge(value string) (Challenge, error) {
	value = strings.TrimSpace(value)
	scheme := "Digest"
	if idx := strings.IndexByte(value, ' '); idx >= 0 {
		scheme = value[:idx]
		value = value[idx+1:]
	}
	if !strings.EqualFold(scheme, "Digest") {
		return Challenge{}, &UnsupportedSchemeError{Scheme: scheme}
	}

	c := Challenge{Scheme: "Digest"}
	for _, part := range splitParams(value) {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		v = strings.Trim(strings.TrimSpace(v), `"`)
		switch strings.ToLower(k) {
		case "realm":
			c.Realm = v
		case "nonce":
			c.Nonce = v
		case "algorithm":
			c.Algorithm = v
		case "qop":
			for _, q := range strings.Split(v, ",") {
				c.Qop = append(c.Qop, strings.TrimSpace(q))
			}
		case "opaque":
			c.Opaque = v
		case "stale":
			c.Stale = strings.EqualFold(v, "true")
		case "domain":
			c.Domain = v
		}
	}
	return c, nil
}

// UnsupportedSchemeError is returned by ParseChallenge for a
// non-Digest authentication scheme.
type UnsupportedSchemeError struct{ Scheme string }

func (e *UnsupportedSchemeError) Error() string {
	return "digest: unsupported auth scheme " + e.Scheme
}

// splitParams splits a comma-separated parameter list, respecting
// quoted commas.
func splitParams(s string) []string {
	var parts []string
	inQuote := false
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			inQuote = !inQuote
		case ',':
			if !inQuote {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}
