package sip

import (
	"strconv"
	"strings"
)

// URI is a sip: or sips: URI (RFC 3261 §19.1). Other schemes (tel:,
// etc.) are out of scope for this UAC core.
type URI struct {
	Encrypted bool // true for sips:

	User     string
	Password string
	Host     string
	Port     int // 0 means "not present"

	UriParams Params
	Headers   Params
}

// String renders the URI in canonical form.
func (u URI) String() string {
	var b strings.Builder
	u.WriteTo(&b)
	return b.String()
}

func (u URI) WriteTo(b *strings.Builder) {
	if u.Encrypted {
		b.WriteString("sips:")
	} else {
		b.WriteString("sip:")
	}
	if u.User != "" {
		b.WriteString(u.User)
		if u.Password != "" {
			b.WriteByte(':')
			b.WriteString(u.Password)
		}
		b.WriteByte('@')
	}
	b.WriteString(bracketIfV6(u.Host))
	if u.Port > 0 {
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(u.Port))
	}
	if len(u.UriParams) > 0 {
		b.WriteByte(';')
		b.WriteString(u.UriParams.String(';'))
	}
	if len(u.Headers) > 0 {
		b.WriteByte('?')
		b.WriteString(u.Headers.String('&'))
	}
}

func bracketIfV6(host string) string {
	if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		return "[" + host + "]"
	}
	return host
}

// Clone returns a deep copy.
func (u URI) Clone() URI {
	c := u
	c.UriParams = u.UriParams.Clone()
	c.Headers = u.Headers.Clone()
	return c
}

// Equal implements RFC 3261 §19.1.4 comparison: scheme, user, host, port
// are compared case-sensitively on user and case-insensitively on host;
// URI parameters that are present on both sides must match, and
// parameters affecting the interpretation (user, ttl, method, transport)
// must be present/absent identically.
func (u URI) Equal(o URI) bool {
	if u.Encrypted != o.Encrypted {
		return false
	}
	if u.User != o.User || u.Password != o.Password {
		return false
	}
	if !strings.EqualFold(u.Host, o.Host) {
		return false
	}
	if u.portOrDefault() != o.portOrDefault() {
		return false
	}
	critical := []string{"user", "ttl", "method", "transport"}
	for _, k := range critical {
		av, aok := u.UriParams.Get(k)
		bv, bok := o.UriParams.Get(k)
		if aok != bok {
			return false
		}
		if aok && !strings.EqualFold(av, bv) {
			return false
		}
	}
	// any other parameter present on both sides must carry the same
	// value (case-insensitively); one present on only one side is
	// ignored (RFC 3261 §19.1.4).
	for _, kv := range u.UriParams {
		bv, ok := o.UriParams.Get(kv.K)
		if ok && !strings.EqualFold(bv, kv.V) {
			return false
		}
	}
	return true
}

func (u URI) portOrDefault() int {
	if u.Port > 0 {
		return u.Port
	}
	return 5060
}

// ParseURI parses a sip:/sips: URI per RFC 3261 §25.1 (subset needed by
// this core: scheme, userinfo, host, bracketed-IPv6 host, port, uri
// parameters, headers-part). Unknown parameters are preserved in order.
func ParseURI(s string) (URI, error) {
	var u URI
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "sips:"):
		u.Encrypted = true
		s = s[len("sips:"):]
	case strings.HasPrefix(s, "sip:"):
		s = s[len("sip:"):]
	default:
		return URI{}, newParseError(MalformedStartLine, "uri missing sip/sips scheme: "+s)
	}

	// headers part after unescaped '?'
	if idx := strings.IndexByte(s, '?'); idx >= 0 {
		u.Headers = ParseParams(s[idx+1:], '&')
		s = s[:idx]
	}

	// uri-params after first unescaped ';' that is not inside userinfo
	// (userinfo cannot itself contain ';' unescaped in our accepted grammar)
	if idx := strings.IndexByte(s, ';'); idx >= 0 {
		u.UriParams = ParseParams(s[idx+1:], ';')
		s = s[:idx]
	}

	hostport := s
	if idx := strings.LastIndexByte(s, '@'); idx >= 0 {
		userinfo := s[:idx]
		hostport = s[idx+1:]
		if cidx := strings.IndexByte(userinfo, ':'); cidx >= 0 {
			u.User = userinfo[:cidx]
			u.Password = userinfo[cidx+1:]
		} else {
			u.User = userinfo
		}
	}

	host, port, err := splitHostPort(hostport)
	if err != nil {
		return URI{}, err
	}
	u.Host = host
	u.Port = port
	return u, nil
}

func splitHostPort(hostport string) (string, int, error) {
	if strings.HasPrefix(hostport, "[") {
		end := strings.IndexByte(hostport, ']')
		if end < 0 {
			return "", 0, newParseError(MalformedStartLine, "unterminated ipv6 host: "+hostport)
		}
		host := hostport[1:end]
		rest := hostport[end+1:]
		if rest == "" {
			return host, 0, nil
		}
		if !strings.HasPrefix(rest, ":") {
			return "", 0, newParseError(MalformedStartLine, "malformed port after ipv6 host: "+hostport)
		}
		p, err := strconv.Atoi(rest[1:])
		if err != nil {
			return "", 0, newParseError(MalformedStartLine, "bad port: "+rest[1:])
		}
		return host, p, nil
	}
	if idx := strings.LastIndexByte(hostport, ':'); idx >= 0 {
		p, err := strconv.Atoi(hostport[idx+1:])
		if err != nil {
			return "", 0, newParseError(MalformedStartLine, "bad port: "+hostport[idx+1:])
		}
		return hostport[:idx], p, nil
	}
	return hostport, 0, nil
}
