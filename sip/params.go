package sip

import (
	"slices"
	"strings"
)

// Param is a single key/value pair of a URI- or header-parameter list.
// A value-less parameter (e.g. ";lr") carries an empty V.
type Param struct {
	K string
	V string
}

// Params is an ordered list of parameters, used for URI parameters, URI
// headers, and header parameters (e.g. Via ";branch=...", tags on
// From/To). Order of insertion is preserved on serialization. Set
// replaces an existing key in place; ParseParams and plain appends keep
// repeated keys as given.
type Params []Param

func NewParams() Params { return make(Params, 0, 4) }

func (p Params) index(key string) int {
	for i, kv := range p {
		if strings.EqualFold(kv.K, key) {
			return i
		}
	}
	return -1
}

// Get returns the value for key and whether it was present.
func (p Params) Get(key string) (string, bool) {
	if i := p.index(key); i >= 0 {
		return p[i].V, true
	}
	return "", false
}

// Has reports whether key is present, regardless of value.
func (p Params) Has(key string) bool { return p.index(key) >= 0 }

// Set adds or overwrites key with value, preserving original position.
func (p *Params) Set(key, value string) {
	if i := p.index(key); i >= 0 {
		(*p)[i].V = value
		return
	}
	*p = append(*p, Param{K: key, V: value})
}

// Remove deletes key if present.
func (p *Params) Remove(key string) {
	if i := p.index(key); i >= 0 {
		*p = slices.Delete(*p, i, i+1)
	}
}

// Clone returns an independent copy.
func (p Params) Clone() Params { return slices.Clone(p) }

// Keys returns parameter names in insertion order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for _, kv := range p {
		keys = append(keys, kv.K)
	}
	return keys
}

// String renders the parameters joined by sep, quoting values that
// contain characters unsafe for a bare token.
func (p Params) String(sep byte) string {
	if len(p) == 0 {
		return ""
	}
	var b strings.Builder
	for i, kv := range p {
		if i > 0 {
			b.WriteByte(sep)
		}
		b.WriteString(kv.K)
		if kv.V == "" {
			continue
		}
		b.WriteByte('=')
		if needsQuoting(kv.V) {
			b.WriteByte('"')
			b.WriteString(kv.V)
			b.WriteByte('"')
		} else {
			b.WriteString(kv.V)
		}
	}
	return b.String()
}

func needsQuoting(v string) bool {
	for _, r := range v {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '.' || r == '!' || r == '%' || r == '*' || r == '_' || r == '+' || r == '`' || r == '\'' || r == '~':
		default:
			return true
		}
	}
	return false
}

// ParseParams parses a ";"-or-"&"-separated parameter list, where values
// may be quoted. s must not include the leading separator.
func ParseParams(s string, sep byte) Params {
	params := NewParams()
	if s == "" {
		return params
	}
	for _, part := range splitUnquoted(s, sep) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if idx := strings.IndexByte(part, '='); idx >= 0 {
			k := part[:idx]
			v := strings.Trim(part[idx+1:], `"`)
			params = append(params, Param{K: k, V: v})
		} else {
			params = append(params, Param{K: part, V: ""})
		}
	}
	return params
}

// splitUnquoted splits s on sep, ignoring separators inside double quotes.
func splitUnquoted(s string, sep byte) []string {
	var parts []string
	inQuote := false
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			inQuote = !inQuote
		case sep:
			if !inQuote {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}
