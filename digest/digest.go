// Package digest computes RFC 7616/2617 Digest access-authentication
// header values (SPEC_FULL §4.3). Its Credentials/Challenge field names
// mirror github.com/icholy/digest's Options/Challenge shape — the
// teacher's own Digest dependency (see client.go's digestAuthApply) —
// but the hashing here covers the full MD5/SHA-256/SHA-512 (and
// "-sess" variant) algorithm family RFC 7616 and this specification
// require, which icholy/digest does not expose (DESIGN.md).
package digest

import (
	"crypto/md5"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"
)

// Algorithm names accepted in a Challenge/Credentials (SPEC_FULL §3).
const (
	MD5        = "MD5"
	MD5Sess    = "MD5-sess"
	SHA256     = "SHA-256"
	SHA256Sess = "SHA-256-sess"
	SHA512     = "SHA-512"
	SHA512Sess = "SHA-512-sess"
)

// QOP values.
const (
	QopAuth    = "auth"
	QopAuthInt = "auth-int"
)

// Credentials is the caller-supplied identity (SPEC_FULL §3).
type Credentials struct {
	Username      string
	Password      string
	PreferredRealm string
	DisplayName   string
	UserAgent     string
}

// Challenge is a parsed WWW-Authenticate/Proxy-Authenticate value
// (SPEC_FULL §3).
type Challenge struct {
	Scheme    string // always "Digest" for this engine
	Realm     string
	Nonce     string
	Algorithm string // defaults to MD5 if empty
	Qop       []string
	Opaque    string
	Stale     bool
	Domain    string
}

func algoOf(c Challenge) string {
	if c.Algorithm == "" {
		return MD5
	}
	return c.Algorithm
}

func supportsQop(c Challenge, qop string) bool {
	for _, q := range c.Qop {
		if q == qop {
			return true
		}
	}
	return false
}

func hasher(algorithm string) (func() hash.Hash, error) {
	switch strings.TrimSuffix(strings.ToUpper(algorithm), "-SESS") {
	case "MD5":
		return md5.New, nil
	case "SHA-256":
		return sha256.New, nil
	case "SHA-512":
		return sha512.New, nil
	default:
		return nil, fmt.Errorf("digest: unsupported algorithm %q", algorithm)
	}
}

func isSess(algorithm string) bool {
	return strings.HasSuffix(strings.ToUpper(algorithm), "-SESS")
}

func hashHex(h func() hash.Hash, parts ...string) string {
	hh := h()
	for i, p := range parts {
		if i > 0 {
			hh.Write([]byte(":"))
		}
		hh.Write([]byte(p))
	}
	return hex.EncodeToString(hh.Sum(nil))
}

// Params is the input to Authorization beyond the static Credentials/Challenge:
// the request being authorized and the selected nonce-count/cnonce for
// this attempt (SPEC_FULL §4.3 steps 5-6).
type Params struct {
	Method string
	URI    string
	Body   []byte // only consulted when qop is negotiated as auth-int
	NC     uint32 // nonce count, 1-based
	CNonce string
}

// Authorization computes the full Authorization/Proxy-Authorization
// header value (without the "Authorization: " prefix) per SPEC_FULL
// §4.3 and §6.2.
func Authorization(cred Credentials, chal Challenge, p Params) (string, error) {
	algorithm := algoOf(chal)
	h, err := hasher(algorithm)
	if err != nil {
		return "", err
	}

	ha1 := hashHex(h, cred.Username, chal.Realm, cred.Password)
	if isSess(algorithm) {
		ha1 = hashHex(h, ha1, chal.Nonce, p.CNonce)
	}

	qop := ""
	switch {
	case supportsQop(chal, QopAuthInt) && p.Body != nil:
		qop = QopAuthInt
	case supportsQop(chal, QopAuth):
		qop = QopAuth
	case len(chal.Qop) > 0:
		qop = chal.Qop[0]
	}

	var ha2 string
	if qop == QopAuthInt {
		ha2 = hashHex(h, p.Method, p.URI, hashHex(h, string(p.Body)))
	} else {
		ha2 = hashHex(h, p.Method, p.URI)
	}

	ncStr := fmt.Sprintf("%08x", p.NC)

	var response string
	if qop != "" {
		response = hashHex(h, ha1, chal.Nonce, ncStr, p.CNonce, qop, ha2)
	} else {
		response = hashHex(h, ha1, chal.Nonce, ha2)
	}

	var b strings.Builder
	fmt.Fprintf(&b, `username="%s", realm="%s", nonce="%s", uri="%s", algorithm=%s, response="%s"`,
		cred.Username, chal.Realm, chal.Nonce, p.URI, algorithm, response)
	if chal.Opaque != "" {
		fmt.Fprintf(&b, `, opaque="%s"`, chal.Opaque)
	}
	if qop != "" {
		fmt.Fprintf(&b, `, qop=%s, nc=%s, cnonce="%s"`, qop, ncStr, p.CNonce)
	}
	return b.String(), nil
}
