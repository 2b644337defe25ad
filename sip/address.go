package sip

import "strings"

// Address is the value shape shared by From, To, and Contact headers:
// an optional display name, a URI (bracketed or bare), and parameters
// such as "tag" or "expires".
type Address struct {
	DisplayName string
	URI         URI
	Params      Params
}

func (a Address) String() string {
	var b strings.Builder
	if a.DisplayName != "" {
		b.WriteByte('"')
		b.WriteString(a.DisplayName)
		b.WriteString("\" ")
	}
	b.WriteByte('<')
	a.URI.WriteTo(&b)
	b.WriteByte('>')
	if len(a.Params) > 0 {
		b.WriteByte(';')
		b.WriteString(a.Params.String(';'))
	}
	return b.String()
}

func (a Address) Clone() Address {
	return Address{DisplayName: a.DisplayName, URI: a.URI.Clone(), Params: a.Params.Clone()}
}

func (a Address) Tag() (string, bool) { return a.Params.Get("tag") }

// ParseAddress parses a From/To/Contact header value: optional quoted or
// token display-name, "<uri>" or bare uri, then ";param" pairs.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	var a Address

	if strings.HasPrefix(s, "\"") {
		end := strings.Index(s[1:], "\"")
		if end < 0 {
			return Address{}, newParseError(MalformedHeader, "unterminated display name: "+s)
		}
		a.DisplayName = s[1 : end+1]
		s = strings.TrimSpace(s[end+2:])
	} else if idx := strings.IndexByte(s, '<'); idx > 0 {
		a.DisplayName = strings.TrimSpace(s[:idx])
		s = s[idx:]
	}

	if strings.HasPrefix(s, "<") {
		end := strings.IndexByte(s, '>')
		if end < 0 {
			return Address{}, newParseError(MalformedHeader, "unterminated uri: "+s)
		}
		uri, err := ParseURI(s[1:end])
		if err != nil {
			return Address{}, err
		}
		a.URI = uri
		rest := s[end+1:]
		rest = strings.TrimPrefix(strings.TrimSpace(rest), ";")
		a.Params = ParseParams(rest, ';')
		return a, nil
	}

	// bare URI, params are part of the URI's own uri-params in this form
	// (RFC 3261 §20.10 allows this only without display-name); split the
	// first ';' that follows the URI as header params instead, since a
	// bare-form address's params belong to the header, not the URI.
	uriPart := s
	var paramPart string
	if idx := strings.IndexByte(s, ';'); idx >= 0 {
		uriPart = s[:idx]
		paramPart = s[idx+1:]
	}
	uri, err := ParseURI(strings.TrimSpace(uriPart))
	if err != nil {
		return Address{}, err
	}
	a.URI = uri
	a.Params = ParseParams(paramPart, ';')
	return a, nil
}
