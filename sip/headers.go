package sip

import (
	"slices"
	"strings"
)

// Header is one header line: a canonicalized name and its raw value
// (everything after "Name:" and the single leading space, whitespace
// preserved verbatim per SPEC_FULL §4.1).
type Header struct {
	Name  string
	Value string
}

// compactForms maps the single-letter compact header names (RFC 3261
// §7.3.3) to their canonical long form.
var compactForms = map[string]string{
	"v": "Via",
	"f": "From",
	"t": "To",
	"i": "Call-ID",
	"m": "Contact",
	"c": "Content-Type",
	"l": "Content-Length",
	"s": "Subject",
	"k": "Supported",
	"e": "Content-Encoding",
}

// canonicalOrder is the header-name emission order required by
// SPEC_FULL §3. Names not listed are emitted in insertion order after
// the last named bucket and before Content-Type/Content-Length.
var canonicalOrder = []string{
	"Via",
	"Max-Forwards",
	"From",
	"To",
	"Call-ID",
	"CSeq",
	"Contact",
	"Route",
	"Record-Route",
	"Authorization",
	"Proxy-Authorization",
	"WWW-Authenticate",
	"Proxy-Authenticate",
	"Expires",
	"User-Agent",
	"Server",
	"Allow",
	"Supported",
}

// repeatedHeaders lists header names that are preferred as repeated
// lines rather than comma-joined when serialized (SPEC_FULL §3).
var repeatedHeaders = map[string]bool{
	"Via":          true,
	"Route":        true,
	"Record-Route": true,
}

// CanonicalHeaderName expands compact forms and normalizes casing to the
// library's canonical spelling; any other name is title-cased per-hyphen
// segment (e.g. "x-custom" -> "X-Custom") so lookups are case-insensitive
// while display stays stable.
func CanonicalHeaderName(name string) string {
	lower := strings.ToLower(name)
	if long, ok := compactForms[lower]; ok {
		return long
	}
	for _, known := range knownLongForms {
		if strings.EqualFold(known, name) {
			return known
		}
	}
	parts := strings.Split(name, "-")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + strings.ToLower(p[1:])
	}
	return strings.Join(parts, "-")
}

var knownLongForms = []string{
	"Via", "From", "To", "Call-ID", "Contact", "Content-Type",
	"Content-Length", "Subject", "Supported", "Content-Encoding",
	"CSeq", "Max-Forwards", "Route", "Record-Route", "Authorization",
	"Proxy-Authorization", "WWW-Authenticate", "Proxy-Authenticate",
	"Expires", "User-Agent", "Server", "Allow",
}

// HeaderStore is the ordered, case-insensitive multimap described in
// SPEC_FULL §3. Arrival order is preserved; the zero value is ready to
// use.
type HeaderStore struct {
	entries []Header
}

// Add appends a header, preserving arrival order, canonicalizing name.
func (hs *HeaderStore) Add(name, value string) {
	hs.entries = append(hs.entries, Header{Name: CanonicalHeaderName(name), Value: value})
}

// AddFront inserts a header before all others.
func (hs *HeaderStore) AddFront(name, value string) {
	hs.entries = append([]Header{{Name: CanonicalHeaderName(name), Value: value}}, hs.entries...)
}

// Set replaces all existing values for name with a single value.
func (hs *HeaderStore) Set(name, value string) {
	hs.RemoveAll(name)
	hs.Add(name, value)
}

// Get returns the first value for name, if any.
func (hs *HeaderStore) Get(name string) (string, bool) {
	name = CanonicalHeaderName(name)
	for _, h := range hs.entries {
		if h.Name == name {
			return h.Value, true
		}
	}
	return "", false
}

// GetAll returns every value for name in arrival order.
func (hs *HeaderStore) GetAll(name string) []string {
	name = CanonicalHeaderName(name)
	var vals []string
	for _, h := range hs.entries {
		if h.Name == name {
			vals = append(vals, h.Value)
		}
	}
	return vals
}

// Has reports whether at least one header with name is present.
func (hs *HeaderStore) Has(name string) bool {
	_, ok := hs.Get(name)
	return ok
}

// RemoveAll deletes every header with name.
func (hs *HeaderStore) RemoveAll(name string) {
	name = CanonicalHeaderName(name)
	out := hs.entries[:0:0]
	for _, h := range hs.entries {
		if h.Name != name {
			out = append(out, h)
		}
	}
	hs.entries = out
}

// Names returns the distinct header names in first-seen order.
func (hs *HeaderStore) Names() []string {
	var names []string
	seen := map[string]bool{}
	for _, h := range hs.entries {
		if !seen[h.Name] {
			seen[h.Name] = true
			names = append(names, h.Name)
		}
	}
	return names
}

// All returns every header in arrival order.
func (hs *HeaderStore) All() []Header { return hs.entries }

// Clone returns an independent copy.
func (hs *HeaderStore) Clone() HeaderStore {
	return HeaderStore{entries: slices.Clone(hs.entries)}
}

// WriteTo serializes headers in the canonical order of SPEC_FULL §3,
// with Content-Length emitted last. Headers sharing a name are either
// repeated (Via/Route/Record-Route) or comma-joined.
func (hs *HeaderStore) WriteTo(b *strings.Builder) {
	remaining := slices.Clone(hs.entries)
	take := func(name string) []Header {
		var out []Header
		rest := remaining[:0:0]
		for _, h := range remaining {
			if h.Name == name {
				out = append(out, h)
			} else {
				rest = append(rest, h)
			}
		}
		remaining = rest
		return out
	}

	writeBucket := func(name string) {
		hdrs := take(name)
		writeHeaderGroup(b, name, hdrs)
	}

	for _, name := range canonicalOrder {
		writeBucket(name)
	}

	// everything else (insertion order), except Content-Type/Content-Length
	ct := take("Content-Type")
	cl := take("Content-Length")
	for _, h := range remaining {
		b.WriteString(h.Name)
		b.WriteString(": ")
		b.WriteString(h.Value)
		b.WriteString("\r\n")
	}
	writeHeaderGroup(b, "Content-Type", ct)
	writeHeaderGroup(b, "Content-Length", cl)
}

func writeHeaderGroup(b *strings.Builder, name string, hdrs []Header) {
	if len(hdrs) == 0 {
		return
	}
	if repeatedHeaders[name] || len(hdrs) == 1 {
		for _, h := range hdrs {
			b.WriteString(h.Name)
			b.WriteString(": ")
			b.WriteString(h.Value)
			b.WriteString("\r\n")
		}
		return
	}
	vals := make([]string, len(hdrs))
	for i, h := range hdrs {
		vals[i] = h.Value
	}
	b.WriteString(name)
	b.WriteString(": ")
	b.WriteString(strings.Join(vals, ", "))
	b.WriteString("\r\n")
}
